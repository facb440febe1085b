// Package config предоставляет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env"`
	StorageConnectionString string `yaml:"storage_connection_string"`
	MigrationsPath          string `yaml:"migrations_path"`
	RedisConnection         `yaml:"redis_connection"`
	RabbitMQ                `yaml:"rabbitmq"`
	HTTPServer              `yaml:"http_server"`
	JWTToken                `yaml:"jwttoken"`
	Entitlement             `yaml:"entitlement"`
	Payments                `yaml:"payments"`
	BotGateway              `yaml:"bot_gateway"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// RabbitMQ структура для настройки подключения к rabbitmq
type RabbitMQ struct {
	URL string `yaml:"url"`
}

// JWTToken структура для работы с jwt-токеном мини-приложения
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
}

// Entitlement задаёт окна доступа: длину пробного периода
// и размер реферального бонуса.
type Entitlement struct {
	TrialLength    time.Duration `yaml:"trial_length"`
	ReferralCredit time.Duration `yaml:"referral_credit"`
	AskFlowTTL     time.Duration `yaml:"ask_flow_ttl"`
}

// Payments содержит секрет вебхука подтверждений и прейскурант
// оплачиваемых действий.
type Payments struct {
	WebhookSecret         string `yaml:"webhook_secret"`
	PriceSubMonth         int    `yaml:"price_sub_month"`
	PriceSubYear          int    `yaml:"price_sub_year"`
	PriceSubLifetime      int    `yaml:"price_sub_lifetime"`
	PriceElevatedQuestion int    `yaml:"price_elevated_question"`
	PriceDataExport       int    `yaml:"price_data_export"`
	PricePriorityBump     int    `yaml:"price_priority_bump"`
}

// BotGateway структура для настройки HTTP-клиента шлюза бота,
// через который уходят исходящие доставки.
type BotGateway struct {
	APIURL   string        `yaml:"api_url"`
	APIToken string        `yaml:"api_token"`
	Timeout  time.Duration `yaml:"timeout"`
}

// MustLoad функция для загрузки конфига, путь берётся из CONFIG_PATH
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}
