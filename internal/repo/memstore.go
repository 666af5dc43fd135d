package repo

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Maestro/internal/domain"
)

// MemStore — in-memory реализация Store.
//
// Используется в тестах и локальной разработке вместо Postgres.
// Atomic сериализует транзакции одним мьютексом; отката при
// ошибке нет — тесты не должны на него полагаться.
type MemStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	workflows map[uuid.UUID]domain.Workflow
	tasks     map[uuid.UUID]domain.Task
	events    map[string]bool
}

// memTx — представление MemStore внутри транзакции.
//
// Вложенность и after-commit хуки привязаны к экземпляру транзакции,
// а не к разделяемому MemStore: конкурирующий Atomic из другой
// горутины не может принять чужую открытую транзакцию за свою.
type memTx struct {
	*MemStore
	hooks *[]func(ctx context.Context)
}

// Atomic реализует Store. Вложенный Atomic выполняется в объемлющей
// транзакции.
func (t *memTx) Atomic(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	return fn(ctx, t)
}

// AfterCommit реализует Store.
func (t *memTx) AfterCommit(fn func(ctx context.Context)) {
	*t.hooks = append(*t.hooks, fn)
}

// NewMemStore создаёт пустой MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		workflows: make(map[uuid.UUID]domain.Workflow),
		tasks:     make(map[uuid.UUID]domain.Task),
		events:    make(map[string]bool),
	}
}

// CreateWorkflow реализует Store.
func (s *MemStore) CreateWorkflow(_ context.Context, wf *domain.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workflows[wf.ID]; exists {
		return ErrAlreadyExists
	}
	stored := *wf
	stored.Tasks = nil
	s.workflows[wf.ID] = stored
	return nil
}

// GetWorkflow реализует Store.
func (s *MemStore) GetWorkflow(ctx context.Context, id uuid.UUID) (*domain.Workflow, error) {
	s.mu.Lock()
	wf, exists := s.workflows[id]
	s.mu.Unlock()

	if !exists {
		return nil, ErrNotFound
	}

	tasks, err := s.ListTasks(ctx, id)
	if err != nil {
		return nil, err
	}
	wf.Tasks = tasks
	return &wf, nil
}

// ListWorkflows реализует Store.
func (s *MemStore) ListWorkflows(_ context.Context, filter WorkflowFilter) ([]domain.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Workflow
	for _, wf := range s.workflows {
		if wf.Owner != filter.Owner {
			continue
		}
		if filter.Status != nil && wf.Status != *filter.Status {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(wf.Name), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, wf)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// UpdateWorkflowStatus реализует Store.
func (s *MemStore) UpdateWorkflowStatus(_ context.Context, id uuid.UUID, status domain.WorkflowStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, exists := s.workflows[id]
	if !exists {
		return ErrNotFound
	}
	wf.Status = status
	s.workflows[id] = wf
	return nil
}

// DeleteWorkflow реализует Store.
func (s *MemStore) DeleteWorkflow(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workflows[id]; !exists {
		return ErrNotFound
	}
	delete(s.workflows, id)
	for taskID, task := range s.tasks {
		if task.WorkflowID == id {
			delete(s.tasks, taskID)
		}
	}
	return nil
}

// LockWorkflow реализует Store. Для MemStore — проверка существования:
// сериализацию обеспечивает мьютекс Atomic.
func (s *MemStore) LockWorkflow(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workflows[id]; !exists {
		return ErrNotFound
	}
	return nil
}

// CreateTasks реализует Store.
func (s *MemStore) CreateTasks(_ context.Context, tasks []domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range tasks {
		if _, exists := s.tasks[tasks[i].ID]; exists {
			return ErrAlreadyExists
		}
	}
	for i := range tasks {
		s.tasks[tasks[i].ID] = tasks[i]
	}
	return nil
}

// GetTask реализует Store.
func (s *MemStore) GetTask(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[id]
	if !exists {
		return nil, ErrNotFound
	}
	return &task, nil
}

// ListTasks реализует Store.
func (s *MemStore) ListTasks(_ context.Context, workflowID uuid.UUID, statuses ...domain.TaskStatus) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tasks []domain.Task
	for _, task := range s.tasks {
		if task.WorkflowID != workflowID {
			continue
		}
		if len(statuses) > 0 {
			match := false
			for _, st := range statuses {
				if task.Status == st {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		tasks = append(tasks, task)
	}

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID.String() < tasks[j].ID.String()
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})

	domain.RebuildDependents(tasks)
	return tasks, nil
}

// UpdateTaskStatus реализует Store.
func (s *MemStore) UpdateTaskStatus(_ context.Context, id uuid.UUID, status domain.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[id]
	if !exists {
		return ErrNotFound
	}
	task.Status = status
	s.tasks[id] = task
	return nil
}

// UpdateTaskAssignee реализует Store.
func (s *MemStore) UpdateTaskAssignee(_ context.Context, id uuid.UUID, assignee string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[id]
	if !exists {
		return ErrNotFound
	}
	task.Assignee = assignee
	s.tasks[id] = task
	return nil
}

// DeleteTask реализует Store.
func (s *MemStore) DeleteTask(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[id]; !exists {
		return ErrNotFound
	}
	delete(s.tasks, id)
	for taskID, task := range s.tasks {
		filtered := task.DependsOn[:0]
		for _, dep := range task.DependsOn {
			if dep != id {
				filtered = append(filtered, dep)
			}
		}
		task.DependsOn = filtered
		s.tasks[taskID] = task
	}
	return nil
}

// EventProcessed реализует Store.
func (s *MemStore) EventProcessed(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[eventID], nil
}

// RecordEvent реализует Store.
func (s *MemStore) RecordEvent(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[eventID] = true
	return nil
}

// Atomic реализует Store. Транзакции сериализуются одним мьютексом;
// хуки выполняются после освобождения мьютекса и только при успехе.
func (s *MemStore) Atomic(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	s.txMu.Lock()

	var hooks []func(ctx context.Context)
	err := fn(ctx, &memTx{MemStore: s, hooks: &hooks})

	s.txMu.Unlock()

	if err != nil {
		return err
	}
	for _, hook := range hooks {
		hook(ctx)
	}
	return nil
}

// AfterCommit реализует Store.
func (s *MemStore) AfterCommit(fn func(ctx context.Context)) {
	// Вне транзакции коммитить нечего
	fn(context.Background())
}
