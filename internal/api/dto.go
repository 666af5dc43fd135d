package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Maestro/internal/domain"
	"github.com/shaiso/Maestro/internal/engine"
)

// Workflow DTOs

// CreateWorkflowRequest — запрос на создание workflow.
type CreateWorkflowRequest struct {
	Name string `json:"name"`
}

// WorkflowResponse — ответ с workflow.
type WorkflowResponse struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	Status    string         `json:"status"`
	Owner     string         `json:"owner"`
	Tasks     []TaskResponse `json:"tasks,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// WorkflowFromDomain конвертирует domain.Workflow в WorkflowResponse.
func WorkflowFromDomain(w domain.Workflow) WorkflowResponse {
	resp := WorkflowResponse{
		ID:        w.ID,
		Name:      w.Name,
		Status:    string(w.Status),
		Owner:     w.Owner,
		CreatedAt: w.CreatedAt,
	}
	for _, task := range w.Tasks {
		resp.Tasks = append(resp.Tasks, TaskFromDomain(task))
	}
	return resp
}

// Task DTOs

// TaskDefRequest — определение задачи внутри batch-запроса.
type TaskDefRequest struct {
	Alias       string   `json:"alias"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty"`
}

// AddTasksRequest — запрос на добавление пакета задач.
type AddTasksRequest struct {
	Tasks []TaskDefRequest `json:"tasks"`
}

// Defs конвертирует запрос в определения задач.
func (r AddTasksRequest) Defs() []engine.TaskDef {
	defs := make([]engine.TaskDef, 0, len(r.Tasks))
	for _, t := range r.Tasks {
		defs = append(defs, engine.TaskDef{
			Alias:       t.Alias,
			Title:       t.Title,
			Description: t.Description,
			DependsOn:   t.DependsOn,
		})
	}
	return defs
}

// AddTaskRequest — запрос на добавление одной задачи.
// Зависимости — идентификаторы существующих задач workflow.
type AddTaskRequest struct {
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Assignee    string      `json:"assignee,omitempty"`
	DependsOn   []uuid.UUID `json:"depends_on,omitempty"`
}

// ChangeStatusRequest — запрос на смену статуса задачи.
type ChangeStatusRequest struct {
	Status string `json:"status"`
}

// AssignTaskRequest — запрос на назначение исполнителя.
type AssignTaskRequest struct {
	Assignee string `json:"assignee"`
}

// TaskResponse — ответ с задачей.
type TaskResponse struct {
	ID          uuid.UUID   `json:"id"`
	WorkflowID  uuid.UUID   `json:"workflow_id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Status      string      `json:"status"`
	Assignee    string      `json:"assignee,omitempty"`
	DependsOn   []uuid.UUID `json:"depends_on,omitempty"`
	Dependents  []uuid.UUID `json:"dependents,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// TaskFromDomain конвертирует domain.Task в TaskResponse.
func TaskFromDomain(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		WorkflowID:  t.WorkflowID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Assignee:    t.Assignee,
		DependsOn:   t.DependsOn,
		Dependents:  t.Dependents,
		CreatedAt:   t.CreatedAt,
	}
}
