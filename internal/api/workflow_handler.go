package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/Maestro/internal/domain"
	"github.com/shaiso/Maestro/internal/repo"
)

// CreateWorkflow создаёт новый workflow.
// POST /api/v1/workflows
func (h *Handler) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.Name == "" {
		BadRequest(w, "name is required")
		return
	}

	wf, err := h.workflows.Create(r.Context(), ownerFrom(r), req.Name)
	if HandleServiceError(w, h.logger, err) {
		return
	}

	Created(w, WorkflowFromDomain(*wf))
}

// ListWorkflows возвращает workflows вызывающего.
// GET /api/v1/workflows?status=&search=&limit=&offset=
func (h *Handler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	filter := repo.WorkflowFilter{
		Owner:  ownerFrom(r),
		Search: r.URL.Query().Get("search"),
	}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.WorkflowStatus(raw)
		filter.Status = &status
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			BadRequest(w, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			BadRequest(w, "invalid offset")
			return
		}
		filter.Offset = offset
	}

	workflows, err := h.workflows.List(r.Context(), filter)
	if HandleServiceError(w, h.logger, err) {
		return
	}

	result := make([]WorkflowResponse, len(workflows))
	for i, wf := range workflows {
		result[i] = WorkflowFromDomain(wf)
	}

	List(w, result, len(result))
}

// GetWorkflow возвращает workflow с задачами.
// GET /api/v1/workflows/{id}
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid workflow id")
		return
	}

	wf, err := h.workflows.Get(r.Context(), ownerFrom(r), id)
	if HandleServiceError(w, h.logger, err) {
		return
	}

	Success(w, WorkflowFromDomain(*wf))
}

// DeleteWorkflow удаляет workflow.
// DELETE /api/v1/workflows/{id}
func (h *Handler) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid workflow id")
		return
	}

	if HandleServiceError(w, h.logger, h.workflows.Delete(r.Context(), ownerFrom(r), id)) {
		return
	}

	NoContent(w)
}

// AddTasks добавляет пакет задач в workflow.
// POST /api/v1/workflows/{id}/tasks/batch
func (h *Handler) AddTasks(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid workflow id")
		return
	}

	var req AddTasksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	tasks, err := h.workflows.AddTasks(r.Context(), ownerFrom(r), id, req.Defs())
	if HandleServiceError(w, h.logger, err) {
		return
	}

	result := make([]TaskResponse, len(tasks))
	for i, task := range tasks {
		result[i] = TaskFromDomain(task)
	}

	JSON(w, http.StatusCreated, ListResponse{Data: result, Total: len(result)})
}

// AddTask добавляет одну задачу в workflow.
// POST /api/v1/workflows/{id}/tasks
func (h *Handler) AddTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid workflow id")
		return
	}

	var req AddTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.Title == "" {
		BadRequest(w, "title is required")
		return
	}

	task, err := h.workflows.AddTask(r.Context(), ownerFrom(r), id, req.Title, req.Description, req.Assignee, req.DependsOn)
	if HandleServiceError(w, h.logger, err) {
		return
	}

	Created(w, TaskFromDomain(*task))
}

// RemoveTask удаляет задачу из ещё не запущенного workflow.
// DELETE /api/v1/workflows/{id}/tasks/{taskId}
func (h *Handler) RemoveTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid workflow id")
		return
	}
	taskID, err := uuid.Parse(r.PathValue("taskId"))
	if err != nil {
		BadRequest(w, "invalid task id")
		return
	}

	if HandleServiceError(w, h.logger, h.workflows.DeleteTask(r.Context(), ownerFrom(r), id, taskID)) {
		return
	}

	NoContent(w)
}

// StartWorkflow запускает выполнение workflow.
// POST /api/v1/workflows/{id}/start
func (h *Handler) StartWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid workflow id")
		return
	}

	if HandleServiceError(w, h.logger, h.workflows.Start(r.Context(), ownerFrom(r), id)) {
		return
	}

	wf, err := h.workflows.Get(r.Context(), ownerFrom(r), id)
	if HandleServiceError(w, h.logger, err) {
		return
	}

	Success(w, WorkflowFromDomain(*wf))
}
