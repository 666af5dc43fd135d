package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
		Identity(),
	)

	// Workflows
	mux.Handle("GET /api/v1/workflows", chain(http.HandlerFunc(h.ListWorkflows)))
	mux.Handle("POST /api/v1/workflows", chain(http.HandlerFunc(h.CreateWorkflow)))
	mux.Handle("GET /api/v1/workflows/{id}", chain(http.HandlerFunc(h.GetWorkflow)))
	mux.Handle("DELETE /api/v1/workflows/{id}", chain(http.HandlerFunc(h.DeleteWorkflow)))
	mux.Handle("POST /api/v1/workflows/{id}/start", chain(http.HandlerFunc(h.StartWorkflow)))

	// Tasks внутри workflow
	mux.Handle("GET /api/v1/workflows/{id}/tasks", chain(http.HandlerFunc(h.ListWorkflowTasks)))
	mux.Handle("POST /api/v1/workflows/{id}/tasks", chain(http.HandlerFunc(h.AddTask)))
	mux.Handle("POST /api/v1/workflows/{id}/tasks/batch", chain(http.HandlerFunc(h.AddTasks)))
	mux.Handle("DELETE /api/v1/workflows/{id}/tasks/{taskId}", chain(http.HandlerFunc(h.RemoveTask)))

	// Tasks
	mux.Handle("GET /api/v1/tasks/{id}", chain(http.HandlerFunc(h.GetTask)))
	mux.Handle("POST /api/v1/tasks/{id}/status", chain(http.HandlerFunc(h.ChangeTaskStatus)))
	mux.Handle("POST /api/v1/tasks/{id}/assign", chain(http.HandlerFunc(h.AssignTask)))
}
