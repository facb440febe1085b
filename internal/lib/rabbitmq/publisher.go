package rabbitmq

import (
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"
)

// Publish сериализует message в JSON и публикует его в exchange с ключом
// routingKey. Сообщения помечаются persistent, чтобы пережить перезапуск
// брокера: исходящие доставки ставятся в очередь fire-and-forget, и
// потерять их при рестарте нельзя.
func Publish(ch *amqp.Channel, exchange, routingKey string, message any) error {
	const op = "rabbitmq.Publish"

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}
	if err := ch.Publish(exchange, routingKey, false, false, pub); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
