package rabbitmq

// QueueConfig описывает очередь и её ключ маршрутизации в exchange deliveries.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// Имена очередей исходящего трафика.
const (
	// QueueDeliveries — тексты пользователям (вопросы, ответы, подсказки).
	QueueDeliveries = "delivery.text"
	// QueueInvoices — предложения оплаты.
	QueueInvoices = "delivery.invoice"
	// QueueOperatorAlerts — несопоставленные платежи для оператора.
	QueueOperatorAlerts = "operator.alert"
)

// GetDeliveryQueues возвращает очереди, которые потребляет cmd/sender.
func GetDeliveryQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: QueueDeliveries, RoutingKey: "text"},
		{QueueName: QueueInvoices, RoutingKey: "invoice"},
		{QueueName: QueueOperatorAlerts, RoutingKey: "alert"},
	}
}
