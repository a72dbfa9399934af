// Package client is a thin HTTP/JSON client over the ControlAPI, used by
// cmd/supervm. It carries no scheduling logic of its own.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds every request made through the Client.
const DefaultTimeout = 30 * time.Second

// Client is a small wrapper around http.Client targeting one ControlAPI
// address.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client for the ControlAPI at addr (host:port, scheme
// defaults to http).
func NewClient(addr string) *Client {
	base := addr
	if !hasScheme(base) {
		base = "http://" + base
	}
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

func hasScheme(addr string) bool {
	for i := 0; i < len(addr); i++ {
		if addr[i] == ':' && i+2 < len(addr) && addr[i+1] == '/' && addr[i+2] == '/' {
			return true
		}
		if addr[i] == '/' {
			return false
		}
	}
	return false
}

// apiError mirrors the ControlAPI's {error, kind} response body.
type apiError struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (c *Client) do(method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (%s)", method, path, apiErr.Error, apiErr.Kind)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// NodeView is the wire shape of one node in a listing response.
type NodeView struct {
	ID       string            `json:"id"`
	Label    string            `json:"label"`
	Address  string            `json:"address"`
	Role     string            `json:"role"`
	Status   string            `json:"status"`
	Load     float64           `json:"load"`
	Capacity NodeCapacityView  `json:"capacity"`
	Labels   map[string]string `json:"labels,omitempty"`
}

// NodeCapacityView mirrors types.NodeCapacity.
type NodeCapacityView struct {
	CPUCores int `json:"cpuCores"`
	MemoryMB int `json:"memoryMb"`
	GPUCount int `json:"gpuCount"`
}

type listNodesResponse struct {
	Nodes       []NodeView `json:"nodes"`
	ActiveNodes int        `json:"activeNodes"`
}

// ListNodes returns every node known to the fleet.
func (c *Client) ListNodes() ([]NodeView, error) {
	var resp listNodesResponse
	if err := c.do(http.MethodGet, "/api/nodes", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Nodes, nil
}

// GetNode fetches one node by id.
func (c *Client) GetNode(id string) (*NodeView, error) {
	var node NodeView
	if err := c.do(http.MethodGet, "/api/nodes/"+id, nil, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// DrainNode marks a node Draining, removing it from scheduling without
// treating it as failed.
func (c *Client) DrainNode(id string) (*NodeView, error) {
	var node NodeView
	if err := c.do(http.MethodPost, "/api/nodes/"+id+"/drain", nil, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// UndrainNode returns a Draining node to Running.
func (c *Client) UndrainNode(id string) (*NodeView, error) {
	var node NodeView
	if err := c.do(http.MethodPost, "/api/nodes/"+id+"/undrain", nil, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// TaskSummary is the wire shape of one task in a listing response.
type TaskSummary struct {
	ID          string    `json:"ID"`
	Kind        string    `json:"Kind"`
	Status      string    `json:"Status"`
	SubmittedAt time.Time `json:"SubmittedAt"`
	StartedAt   time.Time `json:"StartedAt"`
	EndedAt     time.Time `json:"EndedAt"`
	Elapsed     int64     `json:"Elapsed"`
}

type listTasksResponse struct {
	Tasks          []TaskSummary `json:"tasks"`
	ActiveTasks    int           `json:"activeTasks"`
	CompletedTasks int           `json:"completedTasks"`
	FailedTasks    int           `json:"failedTasks"`
}

// ListTasks lists task summaries, optionally filtered by kind/status.
func (c *Client) ListTasks(kind, status string) ([]TaskSummary, error) {
	path := "/api/tasks"
	q := ""
	if kind != "" {
		q += "kind=" + kind
	}
	if status != "" {
		if q != "" {
			q += "&"
		}
		q += "status=" + status
	}
	if q != "" {
		path += "?" + q
	}

	var resp listTasksResponse
	if err := c.do(http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// TaskOutcome is the wire shape submit endpoints return.
type TaskOutcome struct {
	TaskID        string                 `json:"taskId"`
	Success       bool                   `json:"success"`
	Result        map[string]interface{} `json:"result,omitempty"`
	ExecutionTime int64                  `json:"executionTime"`
	NodesUsed     int                    `json:"nodesUsed"`
}

// GetTask fetches one task's full record, including its result or error.
func (c *Client) GetTask(id string) (map[string]interface{}, error) {
	var task map[string]interface{}
	if err := c.do(http.MethodGet, "/api/tasks/"+id, nil, &task); err != nil {
		return nil, err
	}
	return task, nil
}

// SubmitRender submits a render task.
func (c *Client) SubmitRender(body map[string]interface{}) (*TaskOutcome, error) {
	return c.submit("/api/super-vm/render", body)
}

// SubmitProcess submits a compute task.
func (c *Client) SubmitProcess(body map[string]interface{}) (*TaskOutcome, error) {
	return c.submit("/api/super-vm/process", body)
}

// SubmitBrowser submits a browser automation task.
func (c *Client) SubmitBrowser(body map[string]interface{}) (*TaskOutcome, error) {
	return c.submit("/api/super-vm/browser", body)
}

// SubmitSync submits a file sync task.
func (c *Client) SubmitSync(body map[string]interface{}) (*TaskOutcome, error) {
	return c.submit("/api/super-vm/sync", body)
}

func (c *Client) submit(path string, body map[string]interface{}) (*TaskOutcome, error) {
	var outcome TaskOutcome
	if err := c.do(http.MethodPost, path, body, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}

// Scale requests delta additional nodes from the provider.
func (c *Client) Scale(nodes int, template map[string]interface{}) error {
	body := map[string]interface{}{"nodes": nodes}
	if template != nil {
		body["template"] = template
	}
	return c.do(http.MethodPost, "/api/super-vm/scale", body, nil)
}

// Status fetches the SuperVM status snapshot.
func (c *Client) Status() (map[string]interface{}, error) {
	var status map[string]interface{}
	if err := c.do(http.MethodGet, "/api/super-vm/status", nil, &status); err != nil {
		return nil, err
	}
	return status, nil
}
