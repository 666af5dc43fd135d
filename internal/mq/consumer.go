package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DeliveryHandler — обработчик входящего сообщения.
//
// Возврат nil — сообщение подтверждается (ack). Возврат ошибки —
// сообщение отклоняется без повторной постановки (nack, requeue=false)
// и уходит в DLQ очереди; повторные попытки обработки выполняет сам
// обработчик до возврата ошибки. Ошибка отмены контекста означает
// остановку потребителя, а не порчу сообщения: оно возвращается в
// очередь (nack, requeue=true) и будет обработано после рестарта.
type DeliveryHandler func(ctx context.Context, d amqp.Delivery) error

// Consumer — потребитель сообщений из очереди.
//
// Читает сообщения с ручным подтверждением и ограниченным prefetch.
type Consumer struct {
	conn    *Connection
	queue   Queue
	handler DeliveryHandler
	logger  *slog.Logger

	prefetch int

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// ConsumerConfig — конфигурация потребителя.
type ConsumerConfig struct {
	Queue    Queue
	Handler  DeliveryHandler
	Prefetch int
}

// NewConsumer создаёт потребителя очереди.
func NewConsumer(conn *Connection, cfg ConsumerConfig, logger *slog.Logger) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 10
	}

	return &Consumer{
		conn:     conn,
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		logger:   logger,
		prefetch: prefetch,
	}
}

// Start запускает цикл потребления. Блокирует до отмены контекста.
// При переподключении соединения потребление возобновляется.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	for {
		if err := c.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("consume loop ended", "queue", c.queue, "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-c.conn.ReconnectNotify():
			c.logger.Info("resuming consumption after reconnect", "queue", c.queue)
		}
	}
}

// consume настраивает канал и обрабатывает поставки до ошибки канала.
func (c *Consumer) consume(ctx context.Context) error {
	ch := c.conn.Channel()
	if ch == nil {
		return fmt.Errorf("no channel available")
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		string(c.queue), // queue
		"",              // consumer tag
		false,           // auto-ack
		false,           // exclusive
		false,           // no-local
		false,           // no-wait
		nil,             // args
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	c.logger.Info("consumer started", "queue", c.queue, "prefetch", c.prefetch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.wg.Add(1)
			c.handleDelivery(ctx, d)
			c.wg.Done()
		}
	}
}

// handleDelivery обрабатывает одно сообщение и подтверждает его.
func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	if err := c.handler(ctx, d); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			c.logger.Info("handling interrupted by shutdown, requeueing",
				"queue", c.queue,
				"message_id", d.MessageId,
			)
			if nackErr := d.Nack(false, true); nackErr != nil {
				c.logger.Error("nack failed", "error", nackErr)
			}
			return
		}

		c.logger.Error("message handling failed, dead-lettering",
			"queue", c.queue,
			"message_id", d.MessageId,
			"error", err,
		)
		// requeue=false — сообщение уходит в DLQ по x-dead-letter-exchange
		if nackErr := d.Nack(false, false); nackErr != nil {
			c.logger.Error("nack failed", "error", nackErr)
		}
		return
	}

	if err := d.Ack(false); err != nil {
		c.logger.Error("ack failed", "message_id", d.MessageId, "error", err)
	}
}

// Stop останавливает потребителя и дожидается обработки текущего сообщения.
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// ParsePayload десериализует тело сообщения в указанный тип.
func ParsePayload[T any](d amqp.Delivery) (T, error) {
	var payload T
	if err := json.Unmarshal(d.Body, &payload); err != nil {
		return payload, fmt.Errorf("unmarshal payload: %w", err)
	}
	return payload, nil
}
