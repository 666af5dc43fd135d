package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Maestro/internal/domain"
)

// PGStore — реализация Store поверх Postgres.
type PGStore struct {
	pool *pgxpool.Pool
	db   DB

	// hooks — очередь after-commit хуков текущей транзакции.
	// nil вне транзакции.
	hooks *[]func(ctx context.Context)
}

// NewPGStore создаёт PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool, db: pool}
}

// CreateWorkflow реализует Store.
func (s *PGStore) CreateWorkflow(ctx context.Context, wf *domain.Workflow) error {
	query := `
		INSERT INTO workflows (id, name, status, owner, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.Exec(ctx, query, wf.ID, wf.Name, wf.Status, wf.Owner, wf.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

// GetWorkflow реализует Store.
func (s *PGStore) GetWorkflow(ctx context.Context, id uuid.UUID) (*domain.Workflow, error) {
	query := `
		SELECT id, name, status, owner, created_at
		FROM workflows
		WHERE id = $1
	`
	var wf domain.Workflow
	err := s.db.QueryRow(ctx, query, id).Scan(&wf.ID, &wf.Name, &wf.Status, &wf.Owner, &wf.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan workflow: %w", err)
	}

	tasks, err := s.ListTasks(ctx, id)
	if err != nil {
		return nil, err
	}
	wf.Tasks = tasks

	return &wf, nil
}

// ListWorkflows реализует Store.
func (s *PGStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]domain.Workflow, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, name, status, owner, created_at
		FROM workflows
		WHERE owner = $1
		  AND ($2::text IS NULL OR status = $2)
		  AND ($3::text = '' OR name ILIKE '%' || $3 || '%')
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`
	var status *string
	if filter.Status != nil {
		v := string(*filter.Status)
		status = &v
	}

	rows, err := s.db.Query(ctx, query, filter.Owner, status, filter.Search, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []domain.Workflow
	for rows.Next() {
		var wf domain.Workflow
		if err := rows.Scan(&wf.ID, &wf.Name, &wf.Status, &wf.Owner, &wf.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

// UpdateWorkflowStatus реализует Store.
func (s *PGStore) UpdateWorkflowStatus(ctx context.Context, id uuid.UUID, status domain.WorkflowStatus) error {
	result, err := s.db.Exec(ctx, `UPDATE workflows SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update workflow status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWorkflow реализует Store.
// Tasks и рёбра удаляются каскадно (FK ON DELETE CASCADE).
func (s *PGStore) DeleteWorkflow(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LockWorkflow реализует Store.
func (s *PGStore) LockWorkflow(ctx context.Context, id uuid.UUID) error {
	var locked uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM workflows WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock workflow: %w", err)
	}
	return nil
}

// CreateTasks реализует Store.
func (s *PGStore) CreateTasks(ctx context.Context, tasks []domain.Task) error {
	taskQuery := `
		INSERT INTO tasks (id, workflow_id, title, description, status, assignee, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for i := range tasks {
		t := &tasks[i]
		_, err := s.db.Exec(ctx, taskQuery,
			t.ID, t.WorkflowID, t.Title, nullString(t.Description), t.Status, nullString(t.Assignee), t.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert task %s: %w", t.Title, err)
		}
	}

	edgeQuery := `
		INSERT INTO task_dependencies (task_id, depends_on_id)
		VALUES ($1, $2)
	`
	for i := range tasks {
		for _, parentID := range tasks[i].DependsOn {
			if _, err := s.db.Exec(ctx, edgeQuery, tasks[i].ID, parentID); err != nil {
				return fmt.Errorf("insert dependency edge: %w", err)
			}
		}
	}

	return nil
}

// GetTask реализует Store.
func (s *PGStore) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `
		SELECT id, workflow_id, title, description, status, assignee, created_at
		FROM tasks
		WHERE id = $1
	`
	task, err := scanTask(s.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	deps, err := s.taskDependencies(ctx, id)
	if err != nil {
		return nil, err
	}
	task.DependsOn = deps

	return task, nil
}

// ListTasks реализует Store.
func (s *PGStore) ListTasks(ctx context.Context, workflowID uuid.UUID, statuses ...domain.TaskStatus) ([]domain.Task, error) {
	query := `
		SELECT id, workflow_id, title, description, status, assignee, created_at
		FROM tasks
		WHERE workflow_id = $1
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		ORDER BY created_at ASC, id ASC
	`
	statusList := make([]string, len(statuses))
	for i, st := range statuses {
		statusList[i] = string(st)
	}

	rows, err := s.db.Query(ctx, query, workflowID, statusList)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.loadDependencies(ctx, workflowID, tasks); err != nil {
		return nil, err
	}
	domain.RebuildDependents(tasks)

	return tasks, nil
}

// UpdateTaskStatus реализует Store.
func (s *PGStore) UpdateTaskStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus) error {
	result, err := s.db.Exec(ctx, `UPDATE tasks SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateTaskAssignee реализует Store.
func (s *PGStore) UpdateTaskAssignee(ctx context.Context, id uuid.UUID, assignee string) error {
	result, err := s.db.Exec(ctx, `UPDATE tasks SET assignee = $2 WHERE id = $1`, id, nullString(assignee))
	if err != nil {
		return fmt.Errorf("update task assignee: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTask реализует Store.
func (s *PGStore) DeleteTask(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// EventProcessed реализует Store.
func (s *PGStore) EventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)`, eventID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check processed event: %w", err)
	}
	return exists, nil
}

// RecordEvent реализует Store.
func (s *PGStore) RecordEvent(ctx context.Context, eventID string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO processed_events (event_id) VALUES ($1) ON CONFLICT (event_id) DO NOTHING`, eventID)
	if err != nil {
		return fmt.Errorf("record processed event: %w", err)
	}
	return nil
}

// Atomic реализует Store.
//
// Вложенный Atomic выполняется в объемлющей транзакции.
// After-commit хуки выполняются после коммита в порядке регистрации.
func (s *PGStore) Atomic(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	if s.hooks != nil {
		// Уже в транзакции
		return fn(ctx, s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	hooks := make([]func(ctx context.Context), 0)
	txStore := &PGStore{pool: s.pool, db: tx, hooks: &hooks}

	if err := fn(ctx, txStore); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	for _, hook := range hooks {
		hook(ctx)
	}
	return nil
}

// AfterCommit реализует Store.
func (s *PGStore) AfterCommit(fn func(ctx context.Context)) {
	if s.hooks != nil {
		*s.hooks = append(*s.hooks, fn)
		return
	}
	// Вне транзакции коммитить нечего
	fn(context.Background())
}

// --- Helpers ---

// taskDependencies возвращает рёбра DependsOn одного task.
func (s *PGStore) taskDependencies(ctx context.Context, taskID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx,
		`SELECT depends_on_id FROM task_dependencies WHERE task_id = $1`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task dependencies: %w", err)
	}
	defer rows.Close()

	var deps []uuid.UUID
	for rows.Next() {
		var dep uuid.UUID
		if err := rows.Scan(&dep); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		deps = append(deps, dep)
	}
	return deps, rows.Err()
}

// loadDependencies загружает рёбра DependsOn всех tasks workflow одним запросом.
func (s *PGStore) loadDependencies(ctx context.Context, workflowID uuid.UUID, tasks []domain.Task) error {
	rows, err := s.db.Query(ctx, `
		SELECT d.task_id, d.depends_on_id
		FROM task_dependencies d
		JOIN tasks t ON t.id = d.task_id
		WHERE t.workflow_id = $1
	`, workflowID)
	if err != nil {
		return fmt.Errorf("list workflow dependencies: %w", err)
	}
	defer rows.Close()

	deps := make(map[uuid.UUID][]uuid.UUID)
	for rows.Next() {
		var taskID, dependsOnID uuid.UUID
		if err := rows.Scan(&taskID, &dependsOnID); err != nil {
			return fmt.Errorf("scan dependency edge: %w", err)
		}
		deps[taskID] = append(deps[taskID], dependsOnID)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range tasks {
		tasks[i].DependsOn = deps[tasks[i].ID]
	}
	return nil
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var task domain.Task
	var description, assignee *string

	err := row.Scan(
		&task.ID,
		&task.WorkflowID,
		&task.Title,
		&description,
		&task.Status,
		&assignee,
		&task.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}

	if description != nil {
		task.Description = *description
	}
	if assignee != nil {
		task.Assignee = *assignee
	}
	return &task, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
