package domain

import (
	"time"

	"github.com/google/uuid"
)

// Workflow — многошаговый процесс, выраженный как DAG из tasks.
//
// Workflow владеет своими tasks эксклюзивно: удаление workflow
// удаляет все его tasks. Набор tasks неизменяем после того, как
// workflow покинул статус CREATED.
type Workflow struct {
	// ID — уникальный идентификатор workflow.
	ID uuid.UUID `json:"id"`

	// Name — имя workflow.
	Name string `json:"name"`

	// Status — текущий статус (см. WorkflowStatus).
	Status WorkflowStatus `json:"status"`

	// Owner — владелец workflow. Операции над workflow
	// доступны только владельцу.
	Owner string `json:"owner"`

	// Tasks — tasks этого workflow в порядке создания.
	Tasks []Task `json:"tasks,omitempty"`

	// CreatedAt — время создания workflow.
	CreatedAt time.Time `json:"created_at"`
}

// TaskByID возвращает task по его ID или nil.
func (w *Workflow) TaskByID(id uuid.UUID) *Task {
	for i := range w.Tasks {
		if w.Tasks[i].ID == id {
			return &w.Tasks[i]
		}
	}
	return nil
}

// SourceTasks возвращает tasks без зависимостей (точки входа DAG).
func (w *Workflow) SourceTasks() []*Task {
	var sources []*Task
	for i := range w.Tasks {
		if len(w.Tasks[i].DependsOn) == 0 {
			sources = append(sources, &w.Tasks[i])
		}
	}
	return sources
}

// TasksByStatus возвращает tasks в указанном статусе.
func (w *Workflow) TasksByStatus(status TaskStatus) []*Task {
	var out []*Task
	for i := range w.Tasks {
		if w.Tasks[i].Status == status {
			out = append(out, &w.Tasks[i])
		}
	}
	return out
}

// RebuildDependents перестраивает производный обратный индекс
// Dependents по рёбрам DependsOn.
//
// DependsOn — единственный источник истины для рёбер графа;
// Dependents никогда не редактируется напрямую.
func RebuildDependents(tasks []Task) {
	dependents := make(map[uuid.UUID][]uuid.UUID, len(tasks))
	for i := range tasks {
		for _, parentID := range tasks[i].DependsOn {
			dependents[parentID] = append(dependents[parentID], tasks[i].ID)
		}
	}
	for i := range tasks {
		tasks[i].Dependents = dependents[tasks[i].ID]
	}
}
