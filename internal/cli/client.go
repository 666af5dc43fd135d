package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// WorkflowResponse — workflow из API.
type WorkflowResponse struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Status    string         `json:"status"`
	Owner     string         `json:"owner"`
	Tasks     []TaskResponse `json:"tasks,omitempty"`
	CreatedAt string         `json:"created_at"`
}

// TaskResponse — task из API.
type TaskResponse struct {
	ID          string   `json:"id"`
	WorkflowID  string   `json:"workflow_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status"`
	Assignee    string   `json:"assignee,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty"`
	Dependents  []string `json:"dependents,omitempty"`
	CreatedAt   string   `json:"created_at"`
}

// --- Request types ---

// TaskDefRequest — определение задачи в batch-запросе.
type TaskDefRequest struct {
	Alias       string   `json:"alias"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty"`
}

// AddTasksRequest — добавление пакета задач.
type AddTasksRequest struct {
	Tasks []TaskDefRequest `json:"tasks"`
}

// AddTaskRequest — добавление одной задачи.
type AddTaskRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Assignee    string   `json:"assignee,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty"`
}

// ListWorkflowsOpts — параметры фильтрации workflows.
type ListWorkflowsOpts struct {
	Status string
	Search string
	Limit  int
	Offset int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Maestro API.
type Client struct {
	baseURL    string
	user       string
	httpClient *http.Client
}

// NewClient создаёт клиент API. user подставляется в заголовок
// X-User-ID каждого запроса.
func NewClient(baseURL, user string) *Client {
	return &Client{
		baseURL:    baseURL,
		user:       user,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// --- Workflows ---

// ListWorkflows возвращает workflows вызывающего.
func (c *Client) ListWorkflows(opts ListWorkflowsOpts) ([]WorkflowResponse, error) {
	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Search != "" {
		params.Set("search", opts.Search)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", strconv.Itoa(opts.Offset))
	}

	var workflows []WorkflowResponse
	err := c.list("/api/v1/workflows", params, &workflows)
	return workflows, err
}

// CreateWorkflow создаёт workflow.
func (c *Client) CreateWorkflow(name string) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.post("/api/v1/workflows", map[string]string{"name": name}, &wf)
	return &wf, err
}

// GetWorkflow возвращает workflow с задачами.
func (c *Client) GetWorkflow(id string) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.get("/api/v1/workflows/"+id, &wf)
	return &wf, err
}

// DeleteWorkflow удаляет workflow.
func (c *Client) DeleteWorkflow(id string) error {
	return c.delete("/api/v1/workflows/" + id)
}

// StartWorkflow запускает выполнение workflow.
func (c *Client) StartWorkflow(id string) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.post("/api/v1/workflows/"+id+"/start", nil, &wf)
	return &wf, err
}

// AddTasks добавляет пакет задач в workflow.
func (c *Client) AddTasks(workflowID string, req AddTasksRequest) ([]TaskResponse, error) {
	resp, err := c.do(http.MethodPost, "/api/v1/workflows/"+workflowID+"/tasks/batch", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return nil, err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	var tasks []TaskResponse
	return tasks, json.Unmarshal(lr.Data, &tasks)
}

// AddTask добавляет одну задачу в workflow.
func (c *Client) AddTask(workflowID string, req AddTaskRequest) (*TaskResponse, error) {
	var task TaskResponse
	err := c.post("/api/v1/workflows/"+workflowID+"/tasks", req, &task)
	return &task, err
}

// RemoveTask удаляет задачу из workflow.
func (c *Client) RemoveTask(workflowID, taskID string) error {
	return c.delete("/api/v1/workflows/" + workflowID + "/tasks/" + taskID)
}

// ListTasks возвращает задачи workflow. status — список статусов
// через запятую, пустая строка — все задачи.
func (c *Client) ListTasks(workflowID, status string) ([]TaskResponse, error) {
	params := url.Values{}
	if status != "" {
		params.Set("status", status)
	}

	var tasks []TaskResponse
	err := c.list("/api/v1/workflows/"+workflowID+"/tasks", params, &tasks)
	return tasks, err
}

// --- Tasks ---

// GetTask возвращает задачу по ID.
func (c *Client) GetTask(id string) (*TaskResponse, error) {
	var task TaskResponse
	err := c.get("/api/v1/tasks/"+id, &task)
	return &task, err
}

// ChangeTaskStatus переводит задачу в новый статус.
func (c *Client) ChangeTaskStatus(id, status string) (*TaskResponse, error) {
	var task TaskResponse
	err := c.post("/api/v1/tasks/"+id+"/status", map[string]string{"status": status}, &task)
	return &task, err
}

// AssignTask назначает исполнителя задачи.
func (c *Client) AssignTask(id, assignee string) (*TaskResponse, error) {
	var task TaskResponse
	err := c.post("/api/v1/tasks/"+id+"/assign", map[string]string{"assignee": assignee}, &task)
	return &task, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-User-ID", c.user)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
