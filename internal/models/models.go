// Package models содержит доменные структуры сервиса анонимных вопросов,
// а также вспомогательные типы для приёма данных из внешних источников
// (JSON-запросы шлюза бота, сообщения очередей).
package models

import "time"

// Тарифы вопросов.
const (
	// TierNormal — обычный вопрос, доступен всем.
	TierNormal = "normal"
	// TierElevated — элитный вопрос, требует активной подписки или разовой оплаты.
	TierElevated = "elevated"
)

// Уровни подписки.
const (
	SubMonth    = "month"
	SubYear     = "year"
	SubLifetime = "lifetime"
)

// LifetimeExpiry хранится вместо NULL для пожизненной подписки:
// NULL означает отсутствие подписки, а не её бессрочность.
var LifetimeExpiry = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// Identity представляет учётную запись платформы, когда-либо запускавшую бота.
// TrialEnd и SubscriptionExpiry могут быть nil — пробный период не выдан
// или подписки нет. ReferrerID выставляется один раз и не перезаписывается.
type Identity struct {
	ID                 int64      // Идентификатор, назначенный платформой
	Username           string     // Отображаемое имя, может быть пустым
	TrialEnd           *time.Time // Конец пробного периода
	SubscriptionExpiry *time.Time // Окончание подписки
	SubscriptionTier   string     // Уровень подписки (month/year/lifetime)
	ReferrerID         *int64     // Кто пригласил, выставляется однократно
	ReferralCount      int        // Сколько приглашений зачтено этому пользователю
	IsCelebrity        bool       // Премиальный респондент: вопросы ему платные
	IsSuspended        bool       // Заблокирован
	HasPriority        bool       // Купленный приоритетный показ
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Question — один заданный вопрос. Answer и Answered меняются ровно один раз,
// при первом подходящем ответе. Строки никогда не удаляются.
type Question struct {
	ID               int64
	FromUser         int64 // Кто спросил; наружу никогда не раскрывается
	ToUser           int64
	Body             string
	Answer           *string
	Answered         bool
	Tier             string // normal или elevated
	Likes            int
	CorrelationToken string // UUID, вшивается в доставленное сообщение
	CreatedAt        time.Time
}

// Виды оплачиваемых действий. Выбираются при создании счёта
// и хранятся на сервере — подтверждение платежа несёт только payload.
const (
	KindSubMonth         = "sub_month"
	KindSubYear          = "sub_year"
	KindSubLifetime      = "sub_lifetime"
	KindElevatedQuestion = "elevated_question"
	KindDataExport       = "data_export"
	KindPriorityBump     = "priority_bump"
)

// PurchaseContext — контекст отложенного действия, которое завершается
// после подтверждения оплаты (сейчас это только элитный вопрос).
type PurchaseContext struct {
	ResponderID int64  `json:"responder_id,omitempty"`
	Body        string `json:"body,omitempty"`
}

// PendingPurchase — ожидающая корреляция платежа. Создаётся при выставлении
// счёта, потребляется ровно один раз при подтверждении. Payload — UUID,
// уходящий в платёжный запрос платформы и возвращающийся в подтверждении.
type PendingPurchase struct {
	Payload    string
	UserID     int64
	Kind       string
	Amount     int
	Context    *PurchaseContext
	CreatedAt  time.Time
	ConsumedAt *time.Time
}

// Stats — агрегаты по вопросам для личного кабинета.
type Stats struct {
	Sent     int `json:"sent"`
	Received int `json:"received"`
	Answered int `json:"answered"`
	Pending  int `json:"pending"`
}

// Delivery — исходящее сообщение пользователю, публикуется в очередь
// deliveries и отправляется шлюзом бота. CorrelationToken присутствует
// только у доставляемых вопросов.
type Delivery struct {
	IdentityID       int64  `json:"identity_id"`
	Text             string `json:"text"`
	CorrelationToken string `json:"correlation_token,omitempty"`
}

// Invoice — предложение оплаты, публикуется в очередь invoices.
type Invoice struct {
	IdentityID int64  `json:"identity_id"`
	Title      string `json:"title"`
	Amount     int    `json:"amount"`
	Payload    string `json:"payload"`
}

// OperatorAlert — сигнал оператору о платеже, который не удалось
// сопоставить: деньги получены, действие не определено.
type OperatorAlert struct {
	PayerID int64  `json:"payer_id"`
	Amount  int    `json:"amount"`
	Payload string `json:"payload"`
	Reason  string `json:"reason"`
}
