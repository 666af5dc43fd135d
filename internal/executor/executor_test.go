package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Maestro/internal/domain"
	"github.com/shaiso/Maestro/internal/events"
	"github.com/shaiso/Maestro/internal/lock"
	"github.com/shaiso/Maestro/internal/repo"
	"github.com/shaiso/Maestro/internal/service"
)

// fakeLockStore — in-memory реализация lock.Store.
type fakeLockStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeLockStore() *fakeLockStore {
	return &fakeLockStore{data: make(map[string]string)}
}

func (s *fakeLockStore) SetNX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = value
	return true, nil
}

func (s *fakeLockStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *fakeLockStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *fakeLockStore) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[key] != value {
		return false, nil
	}
	delete(s.data, key)
	return true, nil
}

// fakePublisher записывает опубликованные события.
type fakePublisher struct {
	mu     sync.Mutex
	events []events.WorkflowEvent
}

func (p *fakePublisher) Publish(_ context.Context, ev events.WorkflowEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) Source() string { return "test" }

func (p *fakePublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.EventType
	}
	return out
}

func (p *fakePublisher) count(eventType events.EventType) int {
	n := 0
	for _, t := range p.types() {
		if t == eventType {
			n++
		}
	}
	return n
}

type testEnv struct {
	store     *repo.MemStore
	locker    *lock.Locker
	publisher *fakePublisher
	executor  *Executor
	pool      *Pool
}

// newTestEnv собирает исполнителя на in-memory хранилищах.
//
// Пул на одном воркере: MemStore сериализует транзакции глобально,
// и тестам не нужен недетерминизм параллельного выполнения.
func newTestEnv(run TaskFunc) *testEnv {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repo.NewMemStore()
	locker := lock.NewLocker(newFakeLockStore(), logger)
	publisher := &fakePublisher{}
	tasks := service.NewTaskService(store, publisher, logger)
	pool := NewPool(PoolConfig{CoreSize: 1, MaxSize: 1, QueueCapacity: 64}, logger)

	cfg := Config{
		MaxRetries:  3,
		BaseBackoff: time.Millisecond,
		LockTTL:     time.Second,
		LockWait:    200 * time.Millisecond,
		LockRetry:   5 * time.Millisecond,
	}
	exec := New(store, tasks, locker, publisher, pool, nil, run, cfg, logger)

	return &testEnv{
		store:     store,
		locker:    locker,
		publisher: publisher,
		executor:  exec,
		pool:      pool,
	}
}

func (e *testEnv) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e.pool.Shutdown(ctx)
}

// seedWorkflow создаёт запущенный workflow: статус READY, задачи без
// зависимостей в READY, остальные в PENDING.
func seedWorkflow(t *testing.T, store *repo.MemStore, edges map[string][]string) (uuid.UUID, map[string]uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	wf := &domain.Workflow{
		ID:        uuid.New(),
		Name:      "test",
		Status:    domain.WorkflowStatusReady,
		Owner:     "tester",
		CreatedAt: time.Now().UTC(),
	}
	if err := store.CreateWorkflow(ctx, wf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ids := make(map[string]uuid.UUID, len(edges))
	for name := range edges {
		ids[name] = uuid.New()
	}

	var tasks []domain.Task
	for name, parents := range edges {
		task := domain.Task{
			ID:         ids[name],
			WorkflowID: wf.ID,
			Title:      name,
			Status:     domain.TaskStatusPending,
			CreatedAt:  time.Now().UTC(),
		}
		if len(parents) == 0 {
			task.Status = domain.TaskStatusReady
		}
		for _, parent := range parents {
			task.DependsOn = append(task.DependsOn, ids[parent])
		}
		tasks = append(tasks, task)
	}
	if err := store.CreateTasks(ctx, tasks); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return wf.ID, ids
}

// waitFor опрашивает условие до истечения таймаута.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

func workflowStatus(t *testing.T, store *repo.MemStore, id uuid.UUID) domain.WorkflowStatus {
	t.Helper()
	wf, err := store.GetWorkflow(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return wf.Status
}

func taskStatus(t *testing.T, store *repo.MemStore, id uuid.UUID) domain.TaskStatus {
	t.Helper()
	task, err := store.GetTask(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return task.Status
}

func TestExecutor_ChainCompletesWorkflow(t *testing.T) {
	var mu sync.Mutex
	executed := make(map[string]int)

	env := newTestEnv(func(_ context.Context, task domain.Task) error {
		mu.Lock()
		defer mu.Unlock()
		executed[task.Title]++
		return nil
	})
	defer env.close()

	wfID, ids := seedWorkflow(t, env.store, map[string][]string{
		"a": nil,
		"b": {"a"},
		"c": {"b"},
	})

	if err := env.executor.ExecuteWorkflow(context.Background(), wfID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		return workflowStatus(t, env.store, wfID) == domain.WorkflowStatusCompleted
	}, "workflow did not complete")

	for name, id := range ids {
		if st := taskStatus(t, env.store, id); st != domain.TaskStatusCompleted {
			t.Errorf("task %s: expected COMPLETED, got %s", name, st)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for name, n := range executed {
		if n != 1 {
			t.Errorf("task %s executed %d times", name, n)
		}
	}
	if len(executed) != 3 {
		t.Errorf("expected 3 executed tasks, got %d", len(executed))
	}

	if env.publisher.count(events.WorkflowStarted) != 1 {
		t.Error("expected a single WORKFLOW_STARTED event")
	}
	if env.publisher.count(events.WorkflowCompleted) != 1 {
		t.Error("expected a single WORKFLOW_COMPLETED event")
	}
	if got := env.publisher.count(events.TaskCompleted); got != 3 {
		t.Errorf("expected 3 TASK_COMPLETED events, got %d", got)
	}
}

func TestExecutor_DiamondPromotesJoinAfterBothParents(t *testing.T) {
	var mu sync.Mutex
	var order []string

	env := newTestEnv(func(_ context.Context, task domain.Task) error {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, task.Title)
		return nil
	})
	defer env.close()

	wfID, ids := seedWorkflow(t, env.store, map[string][]string{
		"a": nil,
		"b": {"a"},
		"c": {"a"},
		"d": {"b", "c"},
	})

	if err := env.executor.ExecuteWorkflow(context.Background(), wfID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		return workflowStatus(t, env.store, wfID) == domain.WorkflowStatusCompleted
	}, "workflow did not complete")

	if st := taskStatus(t, env.store, ids["d"]); st != domain.TaskStatusCompleted {
		t.Fatalf("join task: expected COMPLETED, got %s", st)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 4 {
		t.Fatalf("expected 4 executions, got %v", order)
	}
	if order[0] != "a" || order[3] != "d" {
		t.Errorf("expected a first and d last, got %v", order)
	}
}

func TestExecutor_RetriesTransientFailure(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	env := newTestEnv(func(_ context.Context, _ domain.Task) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	defer env.close()

	wfID, ids := seedWorkflow(t, env.store, map[string][]string{"a": nil})

	if err := env.executor.ExecuteWorkflow(context.Background(), wfID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		return workflowStatus(t, env.store, wfID) == domain.WorkflowStatusCompleted
	}, "workflow did not complete")

	if st := taskStatus(t, env.store, ids["a"]); st != domain.TaskStatusCompleted {
		t.Errorf("expected COMPLETED after retries, got %s", st)
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecutor_PermanentFailureFailsWorkflow(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	env := newTestEnv(func(_ context.Context, task domain.Task) error {
		if task.Title != "b" {
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		attempts++
		return errors.New("broken")
	})
	defer env.close()

	wfID, ids := seedWorkflow(t, env.store, map[string][]string{
		"a": nil,
		"b": {"a"},
		"c": {"b"},
	})

	if err := env.executor.ExecuteWorkflow(context.Background(), wfID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		return workflowStatus(t, env.store, wfID) == domain.WorkflowStatusFailed
	}, "workflow did not fail")

	if st := taskStatus(t, env.store, ids["b"]); st != domain.TaskStatusFailed {
		t.Errorf("expected FAILED, got %s", st)
	}
	// Потомок упавшей задачи не продвигается
	if st := taskStatus(t, env.store, ids["c"]); st != domain.TaskStatusPending {
		t.Errorf("expected PENDING for the dependent, got %s", st)
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 3 {
		t.Errorf("expected 3 attempts before giving up, got %d", attempts)
	}

	if env.publisher.count(events.TaskFailed) != 1 {
		t.Error("expected a single TASK_FAILED event")
	}
	if env.publisher.count(events.WorkflowFailed) != 1 {
		t.Error("expected a single WORKFLOW_FAILED event")
	}
}

func TestExecutor_SkipsAlreadyExecutedTask(t *testing.T) {
	var mu sync.Mutex
	executed := 0

	env := newTestEnv(func(_ context.Context, _ domain.Task) error {
		mu.Lock()
		defer mu.Unlock()
		executed++
		return nil
	})
	defer env.close()

	wfID, ids := seedWorkflow(t, env.store, map[string][]string{"a": nil})

	// Маркер идемпотентности уже стоит: задачу выполнил другой экземпляр
	ctx := context.Background()
	doneKey := lock.TaskDoneKey(ids["a"].String())
	if err := env.locker.MarkExecuted(ctx, doneKey, time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := env.executor.ExecuteWorkflow(ctx, wfID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if executed != 0 {
		t.Errorf("task executed %d times despite the idempotency marker", executed)
	}
}

func TestExecutor_ExecuteWorkflow_NotStarted(t *testing.T) {
	env := newTestEnv(func(_ context.Context, _ domain.Task) error { return nil })
	defer env.close()

	ctx := context.Background()
	wf := &domain.Workflow{
		ID:        uuid.New(),
		Name:      "draft",
		Status:    domain.WorkflowStatusCreated,
		Owner:     "tester",
		CreatedAt: time.Now().UTC(),
	}
	if err := env.store.CreateWorkflow(ctx, wf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := env.executor.ExecuteWorkflow(ctx, wf.ID); err == nil {
		t.Fatal("expected error for a CREATED workflow")
	}
}

func TestExecutor_InProgressTaskReexecuted(t *testing.T) {
	var mu sync.Mutex
	runs := 0

	env := newTestEnv(func(_ context.Context, _ domain.Task) error {
		mu.Lock()
		defer mu.Unlock()
		runs++
		return nil
	})
	defer env.close()

	wfID, ids := seedWorkflow(t, env.store, map[string][]string{"a": nil})

	ctx := context.Background()
	// Держатель блокировки упал посреди выполнения: lease истёк,
	// задача зависла в IN_PROGRESS без маркера идемпотентности
	if err := env.store.UpdateTaskStatus(ctx, ids["a"], domain.TaskStatusInProgress); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := env.store.UpdateWorkflowStatus(ctx, wfID, domain.WorkflowStatusRunning); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	task, err := env.store.GetTask(ctx, ids["a"])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env.executor.runTaskWithLock(ctx, *task)

	mu.Lock()
	got := runs
	mu.Unlock()
	if got != 1 {
		t.Errorf("expected 1 execution, got %d", got)
	}
	if st := taskStatus(t, env.store, ids["a"]); st != domain.TaskStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", st)
	}
	if st := workflowStatus(t, env.store, wfID); st != domain.WorkflowStatusCompleted {
		t.Errorf("expected workflow COMPLETED, got %s", st)
	}
}

func TestExecutor_TriggerNextTasks_UnknownWorkflow(t *testing.T) {
	env := newTestEnv(func(_ context.Context, _ domain.Task) error { return nil })
	defer env.close()

	// Удалённый workflow — не ошибка: событие могло отстать
	if err := env.executor.TriggerNextTasks(context.Background(), uuid.New()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
