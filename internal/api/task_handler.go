package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/shaiso/Maestro/internal/domain"
)

// ListWorkflowTasks возвращает задачи workflow.
// GET /api/v1/workflows/{id}/tasks?status=READY,IN_PROGRESS
func (h *Handler) ListWorkflowTasks(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid workflow id")
		return
	}

	// Проверка владельца через загрузку workflow
	if _, err := h.workflows.Get(r.Context(), ownerFrom(r), id); err != nil {
		HandleServiceError(w, h.logger, err)
		return
	}

	var statuses []domain.TaskStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			statuses = append(statuses, domain.TaskStatus(strings.TrimSpace(s)))
		}
	}

	tasks, err := h.tasks.ListByWorkflow(r.Context(), id, statuses...)
	if HandleServiceError(w, h.logger, err) {
		return
	}

	result := make([]TaskResponse, len(tasks))
	for i, task := range tasks {
		result[i] = TaskFromDomain(task)
	}

	List(w, result, len(result))
}

// GetTask возвращает задачу по ID.
// GET /api/v1/tasks/{id}
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid task id")
		return
	}

	task, err := h.tasks.Get(r.Context(), id)
	if HandleServiceError(w, h.logger, err) {
		return
	}

	Success(w, TaskFromDomain(*task))
}

// ChangeTaskStatus переводит задачу в новый статус.
// POST /api/v1/tasks/{id}/status
func (h *Handler) ChangeTaskStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid task id")
		return
	}

	var req ChangeStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.Status == "" {
		BadRequest(w, "status is required")
		return
	}

	task, err := h.tasks.ChangeStatus(r.Context(), id, domain.TaskStatus(req.Status))
	if HandleServiceError(w, h.logger, err) {
		return
	}

	Success(w, TaskFromDomain(*task))
}

// AssignTask назначает исполнителя задачи.
// POST /api/v1/tasks/{id}/assign
func (h *Handler) AssignTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid task id")
		return
	}

	var req AssignTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	task, err := h.tasks.Assign(r.Context(), id, req.Assignee)
	if HandleServiceError(w, h.logger, err) {
		return
	}

	Success(w, TaskFromDomain(*task))
}
