package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher — публикатор сообщений в RabbitMQ.
//
// Сообщения публикуются persistent, в формате JSON. MessageId несёт
// идентификатор события (ключ дедупликации на стороне потребителя),
// CorrelationId — идентификатор workflow, чтобы по логам брокера
// можно было собрать всю историю одного workflow.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт публикатор.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish сериализует payload в JSON и публикует в exchange.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, messageID, correlationID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	err = p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		return ch.PublishWithContext(ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,              // mandatory
			false,              // immediate
			amqp.Publishing{
				ContentType:   "application/json",
				DeliveryMode:  amqp.Persistent,
				MessageId:     messageID,
				CorrelationId: correlationID,
				Timestamp:     time.Now(),
				Body:          body,
			},
		)
	})
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
	}

	p.logger.Debug("message published",
		"exchange", exchange,
		"routing_key", routingKey,
		"message_id", messageID,
	)

	return nil
}
