package mq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

// fakeAcker записывает подтверждения доставки.
type fakeAcker struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *fakeAcker) Ack(_ uint64, _ bool) error { a.acked = true; return nil }

func (a *fakeAcker) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked = true
	a.requeue = requeue
	return nil
}

func (a *fakeAcker) Reject(_ uint64, _ bool) error { return nil }

func newTestConsumer(handler DeliveryHandler) *Consumer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewConsumer(nil, ConsumerConfig{Queue: QueueWorkflowEvents, Handler: handler}, logger)
}

func TestConsumer_HandleDelivery_AcksOnSuccess(t *testing.T) {
	c := newTestConsumer(func(context.Context, amqp.Delivery) error { return nil })
	acker := &fakeAcker{}

	c.handleDelivery(context.Background(), amqp.Delivery{Acknowledger: acker})

	if !acker.acked {
		t.Error("expected the message to be acked")
	}
	if acker.nacked {
		t.Error("successful message must not be nacked")
	}
}

func TestConsumer_HandleDelivery_DeadLettersOnError(t *testing.T) {
	c := newTestConsumer(func(context.Context, amqp.Delivery) error {
		return errors.New("handler failed")
	})
	acker := &fakeAcker{}

	c.handleDelivery(context.Background(), amqp.Delivery{Acknowledger: acker})

	if !acker.nacked || acker.requeue {
		t.Errorf("expected nack without requeue, got nacked=%v requeue=%v", acker.nacked, acker.requeue)
	}
}

func TestConsumer_HandleDelivery_RequeuesOnShutdown(t *testing.T) {
	// Отмена контекста при остановке возвращает сообщение в очередь, а не в DLQ
	c := newTestConsumer(func(context.Context, amqp.Delivery) error {
		return context.Canceled
	})
	acker := &fakeAcker{}

	c.handleDelivery(context.Background(), amqp.Delivery{Acknowledger: acker})

	if !acker.nacked || !acker.requeue {
		t.Errorf("expected nack with requeue, got nacked=%v requeue=%v", acker.nacked, acker.requeue)
	}
	if acker.acked {
		t.Error("interrupted message must not be acked")
	}
}

func TestConsumer_HandleDelivery_RequeuesOnWrappedCancellation(t *testing.T) {
	c := newTestConsumer(func(context.Context, amqp.Delivery) error {
		return fmt.Errorf("dispatch event: %w", context.DeadlineExceeded)
	})
	acker := &fakeAcker{}

	c.handleDelivery(context.Background(), amqp.Delivery{Acknowledger: acker})

	if !acker.nacked || !acker.requeue {
		t.Errorf("expected nack with requeue, got nacked=%v requeue=%v", acker.nacked, acker.requeue)
	}
}
