package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/Maestro/internal/events"
	"github.com/shaiso/Maestro/internal/repo"
	"github.com/shaiso/Maestro/internal/service"
)

type fakeExecutor struct {
	mu      sync.Mutex
	started []uuid.UUID
}

func (e *fakeExecutor) ExecuteWorkflow(_ context.Context, workflowID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = append(e.started, workflowID)
	return nil
}

type fakePublisher struct{}

func (fakePublisher) Publish(_ context.Context, _ events.WorkflowEvent) error { return nil }
func (fakePublisher) Source() string                                          { return "test" }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repo.NewMemStore()
	workflows := service.NewWorkflowService(store, &fakeExecutor{}, logger)
	tasks := service.NewTaskService(store, fakePublisher{}, logger)

	handler := NewHandler(Config{Workflows: workflows, Tasks: tasks, Logger: logger})
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(t *testing.T, srv *httptest.Server, method, path, user string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeData[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var wrapper struct {
		Data T `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return wrapper.Data
}

func decodeError(t *testing.T, resp *http.Response) ErrorDetail {
	t.Helper()
	var wrapper ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return wrapper.Error
}

func createWorkflow(t *testing.T, srv *httptest.Server, user, name string) WorkflowResponse {
	t.Helper()
	resp := doRequest(t, srv, http.MethodPost, "/api/v1/workflows", user, CreateWorkflowRequest{Name: name})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	return decodeData[WorkflowResponse](t, resp)
}

func TestAPI_MissingIdentity(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/workflows", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if detail := decodeError(t, resp); detail.Code != ErrCodeUnauthorized {
		t.Errorf("expected UNAUTHORIZED, got %s", detail.Code)
	}
}

func TestAPI_CreateAndGetWorkflow(t *testing.T) {
	srv := newTestServer(t)

	wf := createWorkflow(t, srv, "alice", "deploy")
	if wf.Status != "CREATED" || wf.Owner != "alice" {
		t.Errorf("unexpected workflow: %+v", wf)
	}

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/workflows/"+wf.ID.String(), "alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	got := decodeData[WorkflowResponse](t, resp)
	if got.ID != wf.ID {
		t.Errorf("expected workflow %s, got %s", wf.ID, got.ID)
	}
}

func TestAPI_CreateWorkflow_BlankName(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, srv, http.MethodPost, "/api/v1/workflows", "alice", CreateWorkflowRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestAPI_GetWorkflow_ForeignOwner(t *testing.T) {
	srv := newTestServer(t)

	wf := createWorkflow(t, srv, "alice", "deploy")

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/workflows/"+wf.ID.String(), "bob", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestAPI_GetWorkflow_NotFound(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/workflows/"+uuid.NewString(), "alice", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestAPI_GetWorkflow_BadID(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/workflows/not-a-uuid", "alice", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestAPI_AddTasksBatch(t *testing.T) {
	srv := newTestServer(t)

	wf := createWorkflow(t, srv, "alice", "deploy")

	resp := doRequest(t, srv, http.MethodPost, "/api/v1/workflows/"+wf.ID.String()+"/tasks/batch", "alice", AddTasksRequest{
		Tasks: []TaskDefRequest{
			{Alias: "build", Title: "Build"},
			{Alias: "test", Title: "Test", DependsOn: []string{"build"}},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var wrapper ListResponse
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wrapper.Total != 2 {
		t.Errorf("expected 2 created tasks, got %d", wrapper.Total)
	}
}

func TestAPI_AddTasksBatch_ValidationDetails(t *testing.T) {
	srv := newTestServer(t)

	wf := createWorkflow(t, srv, "alice", "deploy")

	// Самозависимость и несуществующий алиас — оба нарушения в ответе
	resp := doRequest(t, srv, http.MethodPost, "/api/v1/workflows/"+wf.ID.String()+"/tasks/batch", "alice", AddTasksRequest{
		Tasks: []TaskDefRequest{
			{Alias: "build", Title: "Build"},
			{Alias: "test", Title: "Test", DependsOn: []string{"test", "ghost"}},
		},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	detail := decodeError(t, resp)
	if len(detail.Details) != 2 {
		t.Errorf("expected 2 violations, got %v", detail.Details)
	}
}

func TestAPI_AddTasksBatch_Cycle(t *testing.T) {
	srv := newTestServer(t)

	wf := createWorkflow(t, srv, "alice", "deploy")

	resp := doRequest(t, srv, http.MethodPost, "/api/v1/workflows/"+wf.ID.String()+"/tasks/batch", "alice", AddTasksRequest{
		Tasks: []TaskDefRequest{
			{Alias: "a", Title: "A", DependsOn: []string{"b"}},
			{Alias: "b", Title: "B", DependsOn: []string{"a"}},
		},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestAPI_StartWorkflow(t *testing.T) {
	srv := newTestServer(t)

	wf := createWorkflow(t, srv, "alice", "deploy")
	doRequest(t, srv, http.MethodPost, "/api/v1/workflows/"+wf.ID.String()+"/tasks/batch", "alice", AddTasksRequest{
		Tasks: []TaskDefRequest{{Alias: "a", Title: "A"}},
	})

	resp := doRequest(t, srv, http.MethodPost, "/api/v1/workflows/"+wf.ID.String()+"/start", "alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	got := decodeData[WorkflowResponse](t, resp)
	if got.Status != "READY" {
		t.Errorf("expected READY after start, got %s", got.Status)
	}
}

func TestAPI_StartWorkflow_Empty(t *testing.T) {
	srv := newTestServer(t)

	wf := createWorkflow(t, srv, "alice", "deploy")

	resp := doRequest(t, srv, http.MethodPost, "/api/v1/workflows/"+wf.ID.String()+"/start", "alice", nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestAPI_TaskLifecycle(t *testing.T) {
	srv := newTestServer(t)

	wf := createWorkflow(t, srv, "alice", "deploy")
	doRequest(t, srv, http.MethodPost, "/api/v1/workflows/"+wf.ID.String()+"/tasks/batch", "alice", AddTasksRequest{
		Tasks: []TaskDefRequest{{Alias: "a", Title: "A"}},
	})
	doRequest(t, srv, http.MethodPost, "/api/v1/workflows/"+wf.ID.String()+"/start", "alice", nil)

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/workflows/"+wf.ID.String()+"/tasks", "alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var wrapper struct {
		Data []TaskResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(wrapper.Data) != 1 {
		t.Fatalf("expected 1 task, got %d", len(wrapper.Data))
	}
	taskID := wrapper.Data[0].ID

	// READY → IN_PROGRESS
	resp = doRequest(t, srv, http.MethodPost, "/api/v1/tasks/"+taskID.String()+"/status", "alice", ChangeStatusRequest{Status: "IN_PROGRESS"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	task := decodeData[TaskResponse](t, resp)
	if task.Status != "IN_PROGRESS" {
		t.Errorf("expected IN_PROGRESS, got %s", task.Status)
	}

	// Недопустимый переход
	resp = doRequest(t, srv, http.MethodPost, "/api/v1/tasks/"+taskID.String()+"/status", "alice", ChangeStatusRequest{Status: "READY"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}

	// Назначение исполнителя
	resp = doRequest(t, srv, http.MethodPost, "/api/v1/tasks/"+taskID.String()+"/assign", "alice", AssignTaskRequest{Assignee: "bob"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	task = decodeData[TaskResponse](t, resp)
	if task.Assignee != "bob" {
		t.Errorf("expected assignee bob, got %s", task.Assignee)
	}
}

func TestAPI_ChangeTaskStatus_UnknownStatus(t *testing.T) {
	srv := newTestServer(t)

	wf := createWorkflow(t, srv, "alice", "deploy")
	doRequest(t, srv, http.MethodPost, "/api/v1/workflows/"+wf.ID.String()+"/tasks/batch", "alice", AddTasksRequest{
		Tasks: []TaskDefRequest{{Alias: "a", Title: "A"}},
	})

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/workflows/"+wf.ID.String()+"/tasks", "alice", nil)
	var wrapper struct {
		Data []TaskResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Неизвестный статус не проходит таблицу переходов
	resp = doRequest(t, srv, http.MethodPost, "/api/v1/tasks/"+wrapper.Data[0].ID.String()+"/status", "alice", ChangeStatusRequest{Status: "SOMETHING"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestAPI_DeleteWorkflow(t *testing.T) {
	srv := newTestServer(t)

	wf := createWorkflow(t, srv, "alice", "deploy")

	resp := doRequest(t, srv, http.MethodDelete, "/api/v1/workflows/"+wf.ID.String(), "alice", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	resp = doRequest(t, srv, http.MethodGet, "/api/v1/workflows/"+wf.ID.String(), "alice", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestAPI_RemoveTask(t *testing.T) {
	srv := newTestServer(t)

	wf := createWorkflow(t, srv, "alice", "deploy")
	resp := doRequest(t, srv, http.MethodPost, "/api/v1/workflows/"+wf.ID.String()+"/tasks", "alice", AddTaskRequest{Title: "A"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	task := decodeData[TaskResponse](t, resp)

	path := fmt.Sprintf("/api/v1/workflows/%s/tasks/%s", wf.ID, task.ID)
	resp = doRequest(t, srv, http.MethodDelete, path, "alice", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
}

func TestAPI_ListWorkflows_Filters(t *testing.T) {
	srv := newTestServer(t)

	createWorkflow(t, srv, "alice", "deploy api")
	createWorkflow(t, srv, "alice", "nightly etl")
	createWorkflow(t, srv, "bob", "deploy web")

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/workflows", "alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var wrapper struct {
		Data []WorkflowResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(wrapper.Data) != 2 {
		t.Errorf("expected 2 workflows for alice, got %d", len(wrapper.Data))
	}

	resp = doRequest(t, srv, http.MethodGet, "/api/v1/workflows?search=deploy", "alice", nil)
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(wrapper.Data) != 1 || wrapper.Data[0].Name != "deploy api" {
		t.Errorf("unexpected search result: %v", wrapper.Data)
	}

	resp = doRequest(t, srv, http.MethodGet, "/api/v1/workflows?status=CREATED", "alice", nil)
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(wrapper.Data) != 2 {
		t.Errorf("expected 2 CREATED workflows, got %d", len(wrapper.Data))
	}
}
