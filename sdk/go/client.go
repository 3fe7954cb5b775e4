package worktallysdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Worktally HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	ActorID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Member is a project member with an hourly rate.
type Member struct {
	Email      string `json:"email"`
	HourlyRate string `json:"hourly_rate"`
}

// Attribution records who completed a task and at what rate.
type Attribution struct {
	MemberEmail string `json:"member_email"`
	HourlyRate  string `json:"hourly_rate"`
}

// Task represents the API task model.
type Task struct {
	ID                  string       `json:"id"`
	Name                string       `json:"name"`
	Description         string       `json:"description,omitempty"`
	StartDate           string       `json:"start_date,omitempty"`
	EndDate             string       `json:"end_date,omitempty"`
	AssignedMembers     []Member     `json:"assigned_members,omitempty"`
	PrerequisiteTasks   []string     `json:"prerequisite_tasks,omitempty"`
	Completed           bool         `json:"completed"`
	CompletionTimestamp *string      `json:"completion_timestamp,omitempty"`
	HoursWorked         string       `json:"hours_worked"`
	Attribution         *Attribution `json:"attribution,omitempty"`
}

// Project represents the API project model. Hours and cost are decimal
// strings.
type Project struct {
	ID                  string   `json:"id"`
	Version             int64    `json:"version"`
	Name                string   `json:"name"`
	CreatedBy           string   `json:"created_by"`
	Members             []Member `json:"members,omitempty"`
	Tasks               []Task   `json:"tasks,omitempty"`
	Completed           bool     `json:"completed"`
	CompletionTimestamp *string  `json:"completion_timestamp,omitempty"`
	TotalHoursWorked    string   `json:"total_hours_worked"`
	TotalCost           string   `json:"total_cost"`
	CreatedAt           string   `json:"created_at"`
}

// TaskDraft describes a task to create.
type TaskDraft struct {
	ID                string   `json:"id,omitempty"`
	Name              string   `json:"name"`
	Description       string   `json:"description,omitempty"`
	StartDate         string   `json:"start_date,omitempty"`
	EndDate           string   `json:"end_date,omitempty"`
	AssignedMembers   []string `json:"assigned_members,omitempty"`
	PrerequisiteTasks []string `json:"prerequisite_tasks,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateProject creates a project with members and initial tasks.
func (c *Client) CreateProject(ctx context.Context, name string, members []Member, tasks []TaskDraft) (Project, error) {
	body := map[string]any{
		"name":    name,
		"members": members,
		"tasks":   tasks,
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects", body, &resp)
	return resp, err
}

// GetProject fetches a project by id.
func (c *Client) GetProject(ctx context.Context, projectID string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, c.projectPath(projectID, ""), nil, &resp)
	return resp, err
}

// ListProjects returns all projects.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var resp []Project
	err := c.do(ctx, http.MethodGet, "v0/projects", nil, &resp)
	return resp, err
}

// DeleteProject removes a project.
func (c *Client) DeleteProject(ctx context.Context, projectID string) error {
	return c.do(ctx, http.MethodDelete, c.projectPath(projectID, ""), nil, nil)
}

// CreateTask adds a task to a project.
func (c *Client) CreateTask(ctx context.Context, projectID string, draft TaskDraft) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, c.projectPath(projectID, "tasks"), draft, &resp)
	return resp, err
}

// CompleteTask completes a task, recording the hours worked. Hours are a
// decimal string like "3.5". The returned project carries the totals
// recomputed in the same write, including the completed flag when this was
// the last open task.
func (c *Client) CompleteTask(ctx context.Context, projectID, taskID, hours string) (Project, error) {
	body := map[string]any{"hours_worked": hours}
	endpoint := c.projectPath(projectID, fmt.Sprintf("tasks/%s/complete", url.PathEscape(taskID)))
	var resp Project
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Events returns recent events, newest first.
func (c *Client) Events(ctx context.Context, limit int, projectID string) ([]Event, error) {
	endpoint := "v0/events"
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if projectID != "" {
		q.Set("project_id", projectID)
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(projectID, p string) string {
	base := fmt.Sprintf("v0/projects/%s", url.PathEscape(projectID))
	if p == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
