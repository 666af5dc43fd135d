package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Maestro/internal/domain"
	"github.com/shaiso/Maestro/internal/events"
	"github.com/shaiso/Maestro/internal/repo"
)

// EventPublisher — публикация событий жизненного цикла.
//
// Реализуется events.Gateway; интерфейс позволяет подменять
// публикатор в тестах.
type EventPublisher interface {
	Publish(ctx context.Context, ev events.WorkflowEvent) error
	Source() string
}

// TaskService — операции над задачами: смена статуса, назначение
// исполнителя, чтение.
type TaskService struct {
	store     repo.Store
	publisher EventPublisher
	logger    *slog.Logger
}

// NewTaskService создаёт сервис задач.
func NewTaskService(store repo.Store, publisher EventPublisher, logger *slog.Logger) *TaskService {
	return &TaskService{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// Get возвращает задачу по идентификатору.
func (s *TaskService) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, translateNotFound(err, ErrTaskNotFound)
	}
	return task, nil
}

// ListByWorkflow возвращает задачи workflow, опционально по статусам.
func (s *TaskService) ListByWorkflow(ctx context.Context, workflowID uuid.UUID, statuses ...domain.TaskStatus) ([]domain.Task, error) {
	tasks, err := s.store.ListTasks(ctx, workflowID, statuses...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// Assign назначает исполнителя задачи.
func (s *TaskService) Assign(ctx context.Context, id uuid.UUID, assignee string) (*domain.Task, error) {
	if err := s.store.UpdateTaskAssignee(ctx, id, assignee); err != nil {
		return nil, translateNotFound(err, ErrTaskNotFound)
	}

	s.logger.Info("task assigned", "task_id", id, "assignee", assignee)
	return s.Get(ctx, id)
}

// ChangeStatus переводит задачу в новый статус.
//
// Переход проверяется по закрытой таблице допустимых переходов;
// повторный перевод в текущий статус — идемпотентный no-op без
// события. После смены статуса задачи статус workflow
// пересчитывается из статусов всех его задач в одной транзакции.
// События о смене статуса публикуются только после фиксации.
func (s *TaskService) ChangeStatus(ctx context.Context, id uuid.UUID, to domain.TaskStatus) (*domain.Task, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	err = s.store.Atomic(ctx, func(ctx context.Context, store repo.Store) error {
		if err := store.LockWorkflow(ctx, task.WorkflowID); err != nil {
			return translateNotFound(err, ErrWorkflowNotFound)
		}

		// Перечитываем под блокировкой workflow
		task, err = store.GetTask(ctx, id)
		if err != nil {
			return translateNotFound(err, ErrTaskNotFound)
		}
		if task.Status == to {
			return nil
		}
		if err := task.Transition(to); err != nil {
			return err
		}
		if err := store.UpdateTaskStatus(ctx, id, to); err != nil {
			return err
		}

		// Переход PENDING → READY события не порождает
		if eventType, ok := taskEventType(to); ok {
			taskEv := events.NewTaskEvent(eventType, task.WorkflowID, task.ID, string(to), s.publisher.Source())
			store.AfterCommit(func(ctx context.Context) {
				s.publish(ctx, taskEv)
			})
		}

		return s.recomputeWorkflow(ctx, store, task.WorkflowID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("task status changed", "task_id", id, "status", task.Status)
	return task, nil
}

// recomputeWorkflow пересчитывает статус workflow из статусов задач
// и ставит публикацию терминального события в очередь after-commit.
func (s *TaskService) recomputeWorkflow(ctx context.Context, store repo.Store, workflowID uuid.UUID) error {
	wf, err := store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return translateNotFound(err, ErrWorkflowNotFound)
	}
	if wf.Status == domain.WorkflowStatusCreated {
		return nil
	}

	derived := domain.DeriveWorkflowStatus(wf.Tasks)
	if derived == wf.Status {
		return nil
	}

	if err := store.UpdateWorkflowStatus(ctx, workflowID, derived); err != nil {
		return err
	}

	s.logger.Info("workflow status recomputed",
		"workflow_id", workflowID,
		"from", wf.Status,
		"to", derived,
	)

	if derived.IsTerminal() {
		eventType := events.WorkflowCompleted
		if derived == domain.WorkflowStatusFailed {
			eventType = events.WorkflowFailed
		}
		wfEv := events.NewWorkflowEvent(eventType, workflowID, string(derived), s.publisher.Source())
		store.AfterCommit(func(ctx context.Context) {
			s.publish(ctx, wfEv)
		})
	}

	return nil
}

// publish отправляет событие, логируя ошибку: состояние уже
// зафиксировано, откатывать нечего.
func (s *TaskService) publish(ctx context.Context, ev events.WorkflowEvent) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Error("event publication failed",
			"event_type", ev.EventType,
			"workflow_id", ev.WorkflowID,
			"error", err,
		)
	}
}

// taskEventType сопоставляет статус задачи типу события.
func taskEventType(status domain.TaskStatus) (events.EventType, bool) {
	switch status {
	case domain.TaskStatusInProgress:
		return events.TaskStarted, true
	case domain.TaskStatusCompleted:
		return events.TaskCompleted, true
	case domain.TaskStatusFailed:
		return events.TaskFailed, true
	default:
		return "", false
	}
}
