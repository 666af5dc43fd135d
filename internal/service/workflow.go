package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Maestro/internal/domain"
	"github.com/shaiso/Maestro/internal/engine"
	"github.com/shaiso/Maestro/internal/repo"
)

// Executor — запуск выполнения workflow.
//
// Реализуется пакетом executor; интерфейс объявлен здесь, чтобы
// сервисный слой не зависел от исполнителя напрямую.
type Executor interface {
	ExecuteWorkflow(ctx context.Context, workflowID uuid.UUID) error
}

// WorkflowService — операции над workflow: создание, наполнение
// задачами, запуск, удаление.
type WorkflowService struct {
	store    repo.Store
	executor Executor
	logger   *slog.Logger
}

// NewWorkflowService создаёт сервис workflow.
func NewWorkflowService(store repo.Store, executor Executor, logger *slog.Logger) *WorkflowService {
	return &WorkflowService{
		store:    store,
		executor: executor,
		logger:   logger,
	}
}

// Create создаёт пустой workflow в статусе CREATED.
func (s *WorkflowService) Create(ctx context.Context, owner, name string) (*domain.Workflow, error) {
	if name == "" {
		return nil, fmt.Errorf("workflow name cannot be blank")
	}

	wf := &domain.Workflow{
		ID:        uuid.New(),
		Name:      name,
		Status:    domain.WorkflowStatusCreated,
		Owner:     owner,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.CreateWorkflow(ctx, wf); err != nil {
		return nil, fmt.Errorf("create workflow: %w", err)
	}

	s.logger.Info("workflow created", "workflow_id", wf.ID, "name", wf.Name, "owner", owner)
	return wf, nil
}

// Get возвращает workflow с задачами и рёбрами зависимостей.
func (s *WorkflowService) Get(ctx context.Context, owner string, id uuid.UUID) (*domain.Workflow, error) {
	return s.getOwned(ctx, s.store, owner, id)
}

// List возвращает workflows владельца с фильтрацией и пагинацией.
func (s *WorkflowService) List(ctx context.Context, filter repo.WorkflowFilter) ([]domain.Workflow, error) {
	workflows, err := s.store.ListWorkflows(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	return workflows, nil
}

// Delete удаляет workflow вместе с задачами и зависимостями.
// Выполняющийся workflow удалить нельзя.
func (s *WorkflowService) Delete(ctx context.Context, owner string, id uuid.UUID) error {
	err := s.store.Atomic(ctx, func(ctx context.Context, store repo.Store) error {
		wf, err := s.getOwned(ctx, store, owner, id)
		if err != nil {
			return err
		}
		if wf.Status == domain.WorkflowStatusRunning {
			return ErrWorkflowRunning
		}
		return store.DeleteWorkflow(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("workflow deleted", "workflow_id", id)
	return nil
}

// AddTasks добавляет пакет задач в workflow.
//
// Зависимости внутри пакета задаются алиасами. Пакет проходит
// структурную валидацию (полный список нарушений одной ошибкой),
// затем итоговый граф workflow проверяется на ацикличность вместе
// с уже существующими задачами.
func (s *WorkflowService) AddTasks(ctx context.Context, owner string, workflowID uuid.UUID, defs []engine.TaskDef) ([]domain.Task, error) {
	if err := engine.ValidateDefinition(defs); err != nil {
		return nil, err
	}

	var created []domain.Task

	err := s.store.Atomic(ctx, func(ctx context.Context, store repo.Store) error {
		if err := store.LockWorkflow(ctx, workflowID); err != nil {
			return translateNotFound(err, ErrWorkflowNotFound)
		}
		wf, err := s.getOwned(ctx, store, owner, workflowID)
		if err != nil {
			return err
		}
		if wf.Status != domain.WorkflowStatusCreated {
			return fmt.Errorf("%w: status %s", ErrWorkflowNotEditable, wf.Status)
		}

		created = materialize(workflowID, defs)

		combined := append(append([]domain.Task{}, wf.Tasks...), created...)
		if err := engine.ValidateResolvedGraph(combined); err != nil {
			return err
		}

		return store.CreateTasks(ctx, created)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("tasks added", "workflow_id", workflowID, "count", len(created))
	return created, nil
}

// AddTask добавляет одну задачу в workflow, зависимости — по
// идентификаторам существующих задач.
func (s *WorkflowService) AddTask(ctx context.Context, owner string, workflowID uuid.UUID, title, description, assignee string, dependsOn []uuid.UUID) (*domain.Task, error) {
	if title == "" {
		return nil, fmt.Errorf("task title cannot be blank")
	}

	task := domain.Task{
		ID:          uuid.New(),
		WorkflowID:  workflowID,
		Title:       title,
		Description: description,
		Status:      domain.TaskStatusPending,
		Assignee:    assignee,
		DependsOn:   dependsOn,
		CreatedAt:   time.Now().UTC(),
	}

	err := s.store.Atomic(ctx, func(ctx context.Context, store repo.Store) error {
		if err := store.LockWorkflow(ctx, workflowID); err != nil {
			return translateNotFound(err, ErrWorkflowNotFound)
		}
		wf, err := s.getOwned(ctx, store, owner, workflowID)
		if err != nil {
			return err
		}
		if wf.Status != domain.WorkflowStatusCreated {
			return fmt.Errorf("%w: status %s", ErrWorkflowNotEditable, wf.Status)
		}

		combined := append(append([]domain.Task{}, wf.Tasks...), task)
		if err := engine.ValidateResolvedGraph(combined); err != nil {
			return err
		}

		return store.CreateTasks(ctx, []domain.Task{task})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("task added", "workflow_id", workflowID, "task_id", task.ID)
	return &task, nil
}

// DeleteTask удаляет задачу из ещё не запущенного workflow.
func (s *WorkflowService) DeleteTask(ctx context.Context, owner string, workflowID, taskID uuid.UUID) error {
	return s.store.Atomic(ctx, func(ctx context.Context, store repo.Store) error {
		if err := store.LockWorkflow(ctx, workflowID); err != nil {
			return translateNotFound(err, ErrWorkflowNotFound)
		}
		wf, err := s.getOwned(ctx, store, owner, workflowID)
		if err != nil {
			return err
		}
		if wf.Status != domain.WorkflowStatusCreated {
			return fmt.Errorf("%w: status %s", ErrWorkflowNotEditable, wf.Status)
		}
		if wf.TaskByID(taskID) == nil {
			return ErrTaskNotFound
		}
		return store.DeleteTask(ctx, taskID)
	})
}

// Start переводит workflow в READY и запускает выполнение.
//
// Готовыми становятся только задачи-источники (без зависимостей);
// остальные ждут завершения родителей. Передача исполнителю
// происходит после фиксации транзакции.
func (s *WorkflowService) Start(ctx context.Context, owner string, id uuid.UUID) error {
	err := s.store.Atomic(ctx, func(ctx context.Context, store repo.Store) error {
		if err := store.LockWorkflow(ctx, id); err != nil {
			return translateNotFound(err, ErrWorkflowNotFound)
		}
		wf, err := s.getOwned(ctx, store, owner, id)
		if err != nil {
			return err
		}
		if wf.Status != domain.WorkflowStatusCreated || len(wf.Tasks) == 0 {
			return fmt.Errorf("%w: status %s, tasks %d", ErrWorkflowNotStartable, wf.Status, len(wf.Tasks))
		}

		if err := store.UpdateWorkflowStatus(ctx, id, domain.WorkflowStatusReady); err != nil {
			return err
		}
		for _, task := range wf.SourceTasks() {
			if err := store.UpdateTaskStatus(ctx, task.ID, domain.TaskStatusReady); err != nil {
				return err
			}
		}

		store.AfterCommit(func(ctx context.Context) {
			go func() {
				if err := s.executor.ExecuteWorkflow(context.WithoutCancel(ctx), id); err != nil {
					s.logger.Error("workflow execution failed", "workflow_id", id, "error", err)
				}
			}()
		})
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("workflow started", "workflow_id", id)
	return nil
}

// getOwned загружает workflow и проверяет владельца.
func (s *WorkflowService) getOwned(ctx context.Context, store repo.Store, owner string, id uuid.UUID) (*domain.Workflow, error) {
	wf, err := store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, translateNotFound(err, ErrWorkflowNotFound)
	}
	if wf.Owner != owner {
		return nil, ErrAccessDenied
	}
	return wf, nil
}

// materialize превращает определения задач в доменные задачи,
// разрешая алиасы зависимостей в идентификаторы.
func materialize(workflowID uuid.UUID, defs []engine.TaskDef) []domain.Task {
	ids := make(map[string]uuid.UUID, len(defs))
	for _, def := range defs {
		ids[def.Alias] = uuid.New()
	}

	now := time.Now().UTC()
	tasks := make([]domain.Task, 0, len(defs))
	for _, def := range defs {
		dependsOn := make([]uuid.UUID, 0, len(def.DependsOn))
		for _, alias := range def.DependsOn {
			dependsOn = append(dependsOn, ids[alias])
		}
		tasks = append(tasks, domain.Task{
			ID:          ids[def.Alias],
			WorkflowID:  workflowID,
			Title:       def.Title,
			Description: def.Description,
			Status:      domain.TaskStatusPending,
			DependsOn:   dependsOn,
			CreatedAt:   now,
		})
	}
	return tasks
}

// translateNotFound подменяет repo.ErrNotFound доменной ошибкой.
func translateNotFound(err, notFound error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return notFound
	}
	return err
}
