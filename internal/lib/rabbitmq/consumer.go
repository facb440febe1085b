package rabbitmq

import (
	"context"
	"fmt"
	"log"

	"github.com/streadway/amqp"
)

// maxInFlight ограничивает число сообщений в одновременной обработке;
// согласован с Qos канала.
const maxInFlight = 10

// Consume подписывается на очередь и передаёт тело каждого сообщения
// в handler. Ошибка handler ведёт к nack с повторной постановкой,
// успех — к ack. Подписка живёт до отмены ctx или закрытия канала.
func Consume(ctx context.Context, ch *amqp.Channel, queueName string, handler func([]byte) error) error {
	const op = "rabbitmq.Consume"

	deliveries, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	sem := make(chan struct{}, maxInFlight)
	go func() {
		for {
			select {
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				sem <- struct{}{}
				go func(d amqp.Delivery) {
					defer func() { <-sem }()
					settle(d, handler(d.Body))
				}(d)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// settle подтверждает или возвращает сообщение по результату обработки.
func settle(d amqp.Delivery, handlerErr error) {
	if handlerErr != nil {
		if err := d.Nack(false, true); err != nil {
			log.Printf("nack failed: %v", err)
		}
		return
	}
	if err := d.Ack(false); err != nil {
		log.Printf("ack failed: %v", err)
	}
}
