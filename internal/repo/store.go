package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/shaiso/Maestro/internal/domain"
)

// WorkflowFilter — фильтр для списка workflows.
type WorkflowFilter struct {
	// Owner — владелец (обязателен: workflows видны только владельцу).
	Owner string

	// Status — фильтр по статусу (nil — без фильтра).
	Status *domain.WorkflowStatus

	// Search — подстрока имени.
	Search string

	// Limit, Offset — пагинация.
	Limit  int
	Offset int
}

// Store — контракт хранилища workflows и tasks.
//
// Реализации: PGStore (Postgres) и MemStore (in-memory, для тестов).
//
// Atomic выполняет fn в одной транзакции; хуки, зарегистрированные
// через AfterCommit внутри fn, выполняются только после успешного
// коммита. Так события о смене состояния публикуются только для
// состояний, которые действительно зафиксированы.
type Store interface {
	// CreateWorkflow сохраняет новый workflow (без tasks).
	CreateWorkflow(ctx context.Context, wf *domain.Workflow) error

	// GetWorkflow возвращает workflow с полным набором tasks,
	// рёбрами DependsOn и перестроенным индексом Dependents.
	GetWorkflow(ctx context.Context, id uuid.UUID) (*domain.Workflow, error)

	// ListWorkflows возвращает workflows по фильтру (без tasks).
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]domain.Workflow, error)

	// UpdateWorkflowStatus обновляет статус workflow.
	UpdateWorkflowStatus(ctx context.Context, id uuid.UUID, status domain.WorkflowStatus) error

	// DeleteWorkflow удаляет workflow вместе с его tasks.
	DeleteWorkflow(ctx context.Context, id uuid.UUID) error

	// LockWorkflow захватывает строку workflow до конца текущей
	// транзакции, сериализуя пересчёт статуса между экземплярами.
	// Имеет смысл только внутри Atomic.
	LockWorkflow(ctx context.Context, id uuid.UUID) error

	// CreateTasks сохраняет batch tasks вместе с рёбрами DependsOn.
	CreateTasks(ctx context.Context, tasks []domain.Task) error

	// GetTask возвращает task с рёбрами DependsOn.
	GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// ListTasks возвращает tasks workflow, опционально отфильтрованные
	// по набору статусов.
	ListTasks(ctx context.Context, workflowID uuid.UUID, statuses ...domain.TaskStatus) ([]domain.Task, error)

	// UpdateTaskStatus обновляет статус task.
	UpdateTaskStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus) error

	// UpdateTaskAssignee обновляет исполнителя task.
	UpdateTaskAssignee(ctx context.Context, id uuid.UUID, assignee string) error

	// DeleteTask удаляет task вместе с его рёбрами.
	DeleteTask(ctx context.Context, id uuid.UUID) error

	// EventProcessed проверяет запись о событии в ledger.
	EventProcessed(ctx context.Context, eventID string) (bool, error)

	// RecordEvent записывает событие в ledger обработанных.
	RecordEvent(ctx context.Context, eventID string) error

	// Atomic выполняет fn в одной транзакции.
	Atomic(ctx context.Context, fn func(ctx context.Context, s Store) error) error

	// AfterCommit откладывает fn до успешного коммита объемлющей
	// транзакции. Вне транзакции fn выполняется немедленно.
	AfterCommit(fn func(ctx context.Context))
}
