package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Maestro/internal/repo"
)

// fakeHandler считает вызовы и может возвращать ошибки.
type fakeHandler struct {
	completed int
	failed    int
	err       error
	failUntil int
}

func (h *fakeHandler) OnTaskCompleted(_ context.Context, _ WorkflowEvent) error {
	h.completed++
	if h.failUntil > 0 && h.completed <= h.failUntil {
		return errors.New("transient")
	}
	return h.err
}

func (h *fakeHandler) OnTaskFailed(_ context.Context, _ WorkflowEvent) error {
	h.failed++
	return h.err
}

func newTestGateway(handler Handler) (*Gateway, *repo.MemStore) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repo.NewMemStore()
	cfg := GatewayConfig{
		Source:         "test",
		HandlerRetries: 3,
		RetryDelay:     time.Millisecond,
	}
	return NewGateway(nil, store, handler, nil, cfg, logger), store
}

func delivery(t *testing.T, ev WorkflowEvent) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return amqp.Delivery{Body: body, ContentType: "application/json"}
}

func TestGateway_HandleDelivery_DispatchesTaskCompleted(t *testing.T) {
	handler := &fakeHandler{}
	gw, _ := newTestGateway(handler)

	ev := NewTaskEvent(TaskCompleted, uuid.New(), uuid.New(), "COMPLETED", "test")
	if err := gw.HandleDelivery(context.Background(), delivery(t, ev)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handler.completed != 1 {
		t.Errorf("expected 1 OnTaskCompleted call, got %d", handler.completed)
	}
}

func TestGateway_HandleDelivery_DuplicateSkipped(t *testing.T) {
	handler := &fakeHandler{}
	gw, _ := newTestGateway(handler)

	ev := NewTaskEvent(TaskCompleted, uuid.New(), uuid.New(), "COMPLETED", "test")
	d := delivery(t, ev)

	ctx := context.Background()
	if err := gw.HandleDelivery(ctx, d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Повторная доставка того же eventId — no-op
	if err := gw.HandleDelivery(ctx, d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handler.completed != 1 {
		t.Errorf("duplicate reached the handler: %d calls", handler.completed)
	}
}

func TestGateway_HandleDelivery_RetriesThenSucceeds(t *testing.T) {
	handler := &fakeHandler{failUntil: 2}
	gw, store := newTestGateway(handler)

	ev := NewTaskEvent(TaskCompleted, uuid.New(), uuid.New(), "COMPLETED", "test")
	if err := gw.HandleDelivery(context.Background(), delivery(t, ev)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handler.completed != 3 {
		t.Errorf("expected 3 attempts, got %d", handler.completed)
	}

	processed, err := store.EventProcessed(context.Background(), ev.EventID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !processed {
		t.Error("event not recorded in the ledger after success")
	}
}

func TestGateway_HandleDelivery_RetriesExhausted(t *testing.T) {
	handler := &fakeHandler{err: errors.New("permanent")}
	gw, store := newTestGateway(handler)

	ev := NewTaskEvent(TaskFailed, uuid.New(), uuid.New(), "FAILED", "test")
	err := gw.HandleDelivery(context.Background(), delivery(t, ev))
	if !errors.Is(err, ErrHandlerFailed) {
		t.Fatalf("expected ErrHandlerFailed, got %v", err)
	}
	if handler.failed != 3 {
		t.Errorf("expected 3 attempts, got %d", handler.failed)
	}

	// Необработанное событие не попадает в ledger: после DLQ его можно переиграть
	processed, err := store.EventProcessed(context.Background(), ev.EventID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed {
		t.Error("failed event recorded in the ledger")
	}
}

func TestGateway_HandleDelivery_CanceledDuringRetry(t *testing.T) {
	handler := &fakeHandler{err: errors.New("transient")}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := GatewayConfig{
		Source:         "test",
		HandlerRetries: 3,
		RetryDelay:     time.Second,
	}
	gw := NewGateway(nil, repo.NewMemStore(), handler, nil, cfg, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Остановка посреди паузы между повторами возвращает ошибку
	// контекста, а не ErrHandlerFailed: потребитель по ней отличает
	// прерванную обработку от исчерпанных попыток
	ev := NewTaskEvent(TaskCompleted, uuid.New(), uuid.New(), "COMPLETED", "test")
	err := gw.HandleDelivery(ctx, delivery(t, ev))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context error, got %v", err)
	}
	if handler.completed != 1 {
		t.Errorf("expected 1 attempt before cancellation, got %d", handler.completed)
	}
}

func TestGateway_HandleDelivery_MalformedPayload(t *testing.T) {
	gw, _ := newTestGateway(&fakeHandler{})

	d := amqp.Delivery{Body: []byte("not json")}
	if err := gw.HandleDelivery(context.Background(), d); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestGateway_HandleDelivery_MissingIdentifiers(t *testing.T) {
	gw, _ := newTestGateway(&fakeHandler{})

	ev := WorkflowEvent{EventType: TaskCompleted}
	if err := gw.HandleDelivery(context.Background(), delivery(t, ev)); err == nil {
		t.Fatal("expected error for event without identifiers")
	}
}

func TestGateway_HandleDelivery_UnknownTypeAcked(t *testing.T) {
	handler := &fakeHandler{}
	gw, _ := newTestGateway(handler)

	ev := NewWorkflowEvent("SOMETHING_ELSE", uuid.New(), "", "test")
	if err := gw.HandleDelivery(context.Background(), delivery(t, ev)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handler.completed != 0 || handler.failed != 0 {
		t.Error("unknown event type reached the handler")
	}
}

func TestGateway_HandleDelivery_LifecycleEventsAcked(t *testing.T) {
	handler := &fakeHandler{}
	gw, _ := newTestGateway(handler)

	ctx := context.Background()
	for _, eventType := range []EventType{WorkflowStarted, WorkflowCompleted, WorkflowFailed, TaskStarted} {
		ev := NewWorkflowEvent(eventType, uuid.New(), "", "test")
		if err := gw.HandleDelivery(ctx, delivery(t, ev)); err != nil {
			t.Fatalf("%s: unexpected error: %v", eventType, err)
		}
	}
	if handler.completed != 0 || handler.failed != 0 {
		t.Error("lifecycle events must not reach the handler")
	}
}

func TestNewWorkflowEvent(t *testing.T) {
	wfID := uuid.New()
	ev := NewWorkflowEvent(WorkflowStarted, wfID, "RUNNING", "maestro-api")

	if ev.EventID == "" {
		t.Error("expected a generated event id")
	}
	if ev.WorkflowID != wfID || ev.Status != "RUNNING" || ev.Source != "maestro-api" {
		t.Errorf("unexpected event fields: %+v", ev)
	}
	if ev.Version != schemaVersion {
		t.Errorf("expected version %d, got %d", schemaVersion, ev.Version)
	}
	if ev.TaskID != nil {
		t.Error("workflow-level event must not carry a task id")
	}
}
