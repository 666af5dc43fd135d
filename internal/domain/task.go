package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Task — отдельная единица работы внутри workflow.
//
// Принадлежность к workflow фиксируется при создании и не меняется.
// Рёбра DAG задаются через DependsOn; Dependents — производный
// обратный индекс, перестраиваемый при загрузке (RebuildDependents).
type Task struct {
	// ID — уникальный идентификатор task.
	ID uuid.UUID `json:"id"`

	// WorkflowID — ссылка на владеющий workflow (неизменяема).
	WorkflowID uuid.UUID `json:"workflow_id"`

	// Title — название task.
	Title string `json:"title"`

	// Description — описание работы.
	Description string `json:"description,omitempty"`

	// Status — текущий статус (см. TaskStatus).
	Status TaskStatus `json:"status"`

	// Assignee — исполнитель task (опционально).
	Assignee string `json:"assignee,omitempty"`

	// DependsOn — tasks, от завершения которых зависит этот task.
	DependsOn []uuid.UUID `json:"depends_on,omitempty"`

	// Dependents — tasks, зависящие от этого task.
	// Производное поле, никогда не редактируется напрямую.
	Dependents []uuid.UUID `json:"dependents,omitempty"`

	// CreatedAt — время создания task.
	CreatedAt time.Time `json:"created_at"`
}

// Transition переводит task в статус to.
//
// Допустимые переходы заданы таблицей в status.go; недопустимый
// переход возвращает ErrIllegalTransition. Переход в текущий
// статус — идемпотентный no-op.
func (t *Task) Transition(to TaskStatus) error {
	if t.Status == to {
		return nil
	}
	if !t.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, t.Status, to)
	}
	t.Status = to
	return nil
}

// DependsOnAllCompleted проверяет, завершены ли все родители task.
// statusOf возвращает статус родителя по его ID.
func (t *Task) DependsOnAllCompleted(statusOf func(uuid.UUID) (TaskStatus, bool)) bool {
	for _, parentID := range t.DependsOn {
		status, ok := statusOf(parentID)
		if !ok || status != TaskStatusCompleted {
			return false
		}
	}
	return true
}
