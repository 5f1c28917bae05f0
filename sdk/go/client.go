package humantasksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal human task HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	// ActorID and GroupIDs are sent as X-Actor-Id / X-Group-Ids when no
	// credentials are set; servers accept them only with allow_header_actor.
	ActorID    string
	GroupIDs   []string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client for baseURL, which includes the API base path
// (for example http://localhost:8080/v1).
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

type Text struct {
	Language string `json:"language"`
	Text     string `json:"text"`
}

type Content struct {
	Type       string `json:"type,omitempty"`
	AccessType string `json:"access_type,omitempty"`
	Data       []byte `json:"data,omitempty"`
}

// NewTask describes a task to add. Entities are "user:<id>" or "group:<id>".
type NewTask struct {
	Priority               int      `json:"priority,omitempty"`
	Names                  []Text   `json:"names,omitempty"`
	Subjects               []Text   `json:"subjects,omitempty"`
	Descriptions           []Text   `json:"descriptions,omitempty"`
	Skipable               *bool    `json:"skipable,omitempty"`
	PotentialOwners        []string `json:"potential_owners,omitempty"`
	BusinessAdministrators []string `json:"business_administrators,omitempty"`
	Recipients             []string `json:"recipients,omitempty"`
	ExcludedOwners         []string `json:"excluded_owners,omitempty"`
	TaskStakeholders       []string `json:"task_stakeholders,omitempty"`
	Input                  *Content `json:"input,omitempty"`
}

type ContentRef struct {
	ContentID  int64  `json:"content_id"`
	Type       string `json:"type,omitempty"`
	AccessType string `json:"access_type,omitempty"`
}

// Task represents the API task model.
type Task struct {
	ID                     int64       `json:"id"`
	Version                int64       `json:"version"`
	Priority               int         `json:"priority"`
	Status                 string      `json:"status"`
	PreviousStatus         *string     `json:"previous_status,omitempty"`
	ActualOwner            *string     `json:"actual_owner,omitempty"`
	CreatedBy              *string     `json:"created_by,omitempty"`
	Skipable               bool        `json:"skipable"`
	Names                  []Text      `json:"names"`
	Document               *ContentRef `json:"document,omitempty"`
	Output                 *ContentRef `json:"output,omitempty"`
	Fault                  *ContentRef `json:"fault,omitempty"`
	FaultName              string      `json:"fault_name,omitempty"`
	CreatedOn              string      `json:"created_on"`
	PotentialOwners        []string    `json:"potential_owners"`
	BusinessAdministrators []string    `json:"business_administrators"`
	Recipients             []string    `json:"recipients"`
}

type TaskSummary struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Subject     string  `json:"subject,omitempty"`
	Status      string  `json:"status"`
	Priority    int     `json:"priority"`
	ActualOwner *string `json:"actual_owner,omitempty"`
	CreatedOn   string  `json:"created_on"`
}

type StoredContent struct {
	ID         int64  `json:"id"`
	Type       string `json:"type,omitempty"`
	AccessType string `json:"access_type"`
	Size       int64  `json:"size"`
	Data       []byte `json:"data"`
	CreatedAt  string `json:"created_at"`
}

// Operation carries the optional arguments of a task operation.
type Operation struct {
	Target    string   `json:"target,omitempty"`
	Entities  []string `json:"entities,omitempty"`
	Output    *Content `json:"output,omitempty"`
	Fault     *Content `json:"fault,omitempty"`
	FaultName string   `json:"fault_name,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code and Details come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// AddTask adds a task and returns it as stored.
func (c *Client) AddTask(ctx context.Context, task NewTask) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", task, &resp)
	return resp, err
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, id int64) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "tasks/"+strconv.FormatInt(id, 10), nil, &resp)
	return resp, err
}

// Operate runs a lifecycle operation (claim, start, complete, ...) on a task.
func (c *Client) Operate(ctx context.Context, id int64, operation string, args Operation) (Task, error) {
	var resp Task
	endpoint := fmt.Sprintf("tasks/%d/%s", id, url.PathEscape(operation))
	err := c.do(ctx, http.MethodPost, endpoint, args, &resp)
	return resp, err
}

// AssignedTasks lists tasks for the caller in the given role
// ("potential-owner" or "recipient").
func (c *Client) AssignedTasks(ctx context.Context, role, locale string, statuses ...string) ([]TaskSummary, error) {
	q := url.Values{}
	if role != "" {
		q.Set("role", role)
	}
	if locale != "" {
		q.Set("locale", locale)
	}
	if len(statuses) > 0 {
		q.Set("status", strings.Join(statuses, ","))
	}
	endpoint := "tasks"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []TaskSummary `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// GetContent fetches a stored document.
func (c *Client) GetContent(ctx context.Context, id int64) (StoredContent, error) {
	var resp StoredContent
	err := c.do(ctx, http.MethodGet, "contents/"+strconv.FormatInt(id, 10), nil, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string, terminalOnly bool) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if terminalOnly {
		q.Set("terminal", "true")
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
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
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
		if len(c.GroupIDs) > 0 {
			req.Header.Set("X-Group-Ids", strings.Join(c.GroupIDs, ","))
		}
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
			apiErr.Details = envelope.Error.Details
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
