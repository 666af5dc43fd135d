package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Maestro/internal/domain"
	"github.com/shaiso/Maestro/internal/events"
	"github.com/shaiso/Maestro/internal/repo"
	"github.com/shaiso/Maestro/internal/service"
)

// TaskPromoter — продвижение зависимых задач после завершения
// родителя. Реализуется executor.Executor.
type TaskPromoter interface {
	TriggerNextTasks(ctx context.Context, workflowID uuid.UUID) error
}

// Coordinator — реакция на события жизненного цикла задач.
//
// Реализует events.Handler: по TASK_COMPLETED продвигает зависимые
// задачи, по TASK_FAILED доводит workflow до FAILED. Обе реакции
// идемпотентны — событие может прийти повторно или с опозданием,
// когда синхронный путь исполнителя уже сделал ту же работу.
type Coordinator struct {
	store     repo.Store
	promoter  TaskPromoter
	publisher service.EventPublisher
	logger    *slog.Logger
}

// New создаёт координатора.
func New(store repo.Store, promoter TaskPromoter, publisher service.EventPublisher, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		store:     store,
		promoter:  promoter,
		publisher: publisher,
		logger:    logger,
	}
}

// OnTaskCompleted продвигает задачи, ждавшие завершившуюся.
func (c *Coordinator) OnTaskCompleted(ctx context.Context, ev events.WorkflowEvent) error {
	c.logger.Debug("task completion event received",
		"workflow_id", ev.WorkflowID,
		"task_id", ev.TaskID,
	)
	return c.promoter.TriggerNextTasks(ctx, ev.WorkflowID)
}

// OnTaskFailed доводит workflow упавшей задачи до FAILED.
//
// Обычно это уже сделал пересчёт статуса при фиксации провала;
// здесь — сходящаяся страховка для случая, когда экземпляр,
// зафиксировавший провал, не дожил до пересчёта.
func (c *Coordinator) OnTaskFailed(ctx context.Context, ev events.WorkflowEvent) error {
	err := c.store.Atomic(ctx, func(ctx context.Context, store repo.Store) error {
		if err := store.LockWorkflow(ctx, ev.WorkflowID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil
			}
			return err
		}
		wf, err := store.GetWorkflow(ctx, ev.WorkflowID)
		if err != nil {
			return err
		}
		if wf.Status.IsTerminal() {
			return nil
		}

		if err := store.UpdateWorkflowStatus(ctx, ev.WorkflowID, domain.WorkflowStatusFailed); err != nil {
			return err
		}

		failEv := events.NewWorkflowEvent(events.WorkflowFailed, ev.WorkflowID, string(domain.WorkflowStatusFailed), c.publisher.Source())
		store.AfterCommit(func(ctx context.Context) {
			if err := c.publisher.Publish(ctx, failEv); err != nil {
				c.logger.Error("event publication failed", "event_type", failEv.EventType, "error", err)
			}
		})

		c.logger.Warn("workflow failed",
			"workflow_id", ev.WorkflowID,
			"task_id", ev.TaskID,
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("handle task failure for %s: %w", ev.WorkflowID, err)
	}
	return nil
}
