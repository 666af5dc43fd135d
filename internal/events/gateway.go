package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Maestro/internal/mq"
	"github.com/shaiso/Maestro/internal/repo"
	"github.com/shaiso/Maestro/internal/telemetry"
)

// Handler — подписчик на события задач.
//
// Реализуется координатором: на завершение задачи — продвижение
// зависимых, на провал — перевод workflow в FAILED.
type Handler interface {
	OnTaskCompleted(ctx context.Context, ev WorkflowEvent) error
	OnTaskFailed(ctx context.Context, ev WorkflowEvent) error
}

// GatewayConfig — конфигурация шлюза событий.
type GatewayConfig struct {
	// Source — имя сервиса, проставляемое в исходящие события.
	Source string

	// HandlerRetries — число попыток обработки входящего события
	// до отправки в DLQ.
	HandlerRetries int

	// RetryDelay — пауза между попытками обработки.
	RetryDelay time.Duration
}

// Gateway — шлюз событий workflow.
//
// Исходящий путь: Publish сериализует событие и отправляет его в
// exchange с ключом упорядочивания workflowId. Ошибка публикации
// возвращается вызывающему — он решает, критична ли потеря события.
//
// Входящий путь: HandleDelivery проверяет ledger обработанных
// событий, передаёт событие обработчику и фиксирует eventId в
// ledger. Повторная доставка того же события — no-op.
type Gateway struct {
	publisher *mq.Publisher
	store     repo.Store
	handler   Handler
	logger    *slog.Logger
	metrics   *telemetry.Metrics

	source         string
	handlerRetries int
	retryDelay     time.Duration
}

// NewGateway создаёт шлюз событий.
func NewGateway(publisher *mq.Publisher, store repo.Store, handler Handler, metrics *telemetry.Metrics, cfg GatewayConfig, logger *slog.Logger) *Gateway {
	retries := cfg.HandlerRetries
	if retries <= 0 {
		retries = 3
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	source := cfg.Source
	if source == "" {
		source = "maestro"
	}

	return &Gateway{
		publisher:      publisher,
		store:          store,
		handler:        handler,
		logger:         logger,
		metrics:        metrics,
		source:         source,
		handlerRetries: retries,
		retryDelay:     delay,
	}
}

// Source возвращает имя сервиса для исходящих событий.
func (g *Gateway) Source() string {
	return g.source
}

// SetHandler привязывает обработчик входящих событий.
//
// Обработчику (координатору) нужен исполнитель, исполнителю — шлюз
// как публикатор; отложенная привязка разрывает цикл при сборке.
// Вызывается до запуска потребителя.
func (g *Gateway) SetHandler(handler Handler) {
	g.handler = handler
}

// Publish публикует событие в exchange workflow-событий.
//
// Все события одного workflow публикуются с одним CorrelationId,
// поэтому попадают в одну очередь в порядке публикации.
func (g *Gateway) Publish(ctx context.Context, ev WorkflowEvent) error {
	err := g.publisher.Publish(ctx,
		mq.ExchangeWorkflows,
		mq.RoutingKeyEvents,
		ev.EventID,
		ev.WorkflowID.String(),
		ev,
	)
	if err != nil {
		return fmt.Errorf("publish event %s: %w", ev.EventType, err)
	}

	if g.metrics != nil {
		g.metrics.EventsPublished.WithLabelValues(string(ev.EventType)).Inc()
	}

	g.logger.Info("event published",
		"event_id", ev.EventID,
		"event_type", ev.EventType,
		"workflow_id", ev.WorkflowID,
	)
	return nil
}

// HandleDelivery обрабатывает входящее сообщение очереди событий.
//
// Возврат ошибки означает, что все попытки исчерпаны и сообщение
// должно уйти в DLQ. Непарсящееся сообщение тоже уходит в DLQ —
// повторная доставка его не исправит.
func (g *Gateway) HandleDelivery(ctx context.Context, d amqp.Delivery) error {
	ev, err := mq.ParsePayload[WorkflowEvent](d)
	if err != nil {
		return fmt.Errorf("parse event: %w", err)
	}
	if ev.EventID == "" || ev.WorkflowID == uuid.Nil {
		return fmt.Errorf("malformed event: missing eventId or workflowId")
	}

	processed, err := g.store.EventProcessed(ctx, ev.EventID)
	if err != nil {
		return fmt.Errorf("check processed ledger: %w", err)
	}
	if processed {
		g.logger.Debug("duplicate event skipped", "event_id", ev.EventID)
		if g.metrics != nil {
			g.metrics.EventsDuplicate.Inc()
		}
		return nil
	}

	if err := g.dispatchWithRetries(ctx, ev); err != nil {
		return err
	}

	if err := g.store.RecordEvent(ctx, ev.EventID); err != nil {
		return fmt.Errorf("record event %s: %w", ev.EventID, err)
	}

	if g.metrics != nil {
		g.metrics.EventsConsumed.WithLabelValues(string(ev.EventType)).Inc()
	}

	return nil
}

// dispatchWithRetries передаёт событие обработчику с повторами.
func (g *Gateway) dispatchWithRetries(ctx context.Context, ev WorkflowEvent) error {
	var lastErr error

	for attempt := 1; attempt <= g.handlerRetries; attempt++ {
		lastErr = g.dispatch(ctx, ev)
		if lastErr == nil {
			return nil
		}

		g.logger.Warn("event handling attempt failed",
			"event_id", ev.EventID,
			"event_type", ev.EventType,
			"attempt", attempt,
			"error", lastErr,
		)

		if attempt < g.handlerRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(g.retryDelay):
			}
		}
	}

	return fmt.Errorf("%w: %s after %d attempts: %v", ErrHandlerFailed, ev.EventType, g.handlerRetries, lastErr)
}

// dispatch маршрутизирует событие по типу.
//
// События, не требующие реакции координатора (WORKFLOW_STARTED,
// TASK_STARTED, терминальные события workflow), подтверждаются
// без обработки: они нужны внешним потребителям потока.
func (g *Gateway) dispatch(ctx context.Context, ev WorkflowEvent) error {
	switch ev.EventType {
	case TaskCompleted:
		if g.handler == nil {
			return nil
		}
		return g.handler.OnTaskCompleted(ctx, ev)
	case TaskFailed:
		if g.handler == nil {
			return nil
		}
		return g.handler.OnTaskFailed(ctx, ev)
	case WorkflowStarted, WorkflowCompleted, WorkflowFailed, TaskStarted:
		return nil
	default:
		g.logger.Warn("unknown event type, acknowledging", "event_type", ev.EventType)
		return nil
	}
}
