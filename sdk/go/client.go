package maintlinesdk

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

// Client is a minimal Maintline HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	// ActorID is sent as X-Actor-Id when no bearer token is set.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// WorkOrder represents the API work order model (partial).
type WorkOrder struct {
	Code         int64      `json:"code"`
	MachineCode  int64      `json:"machine_code"`
	MachineName  string     `json:"machine_name,omitempty"`
	ActivityCode *int64     `json:"activity_code,omitempty"`
	ActivityName *string    `json:"activity_name,omitempty"`
	State        string     `json:"state"`
	NextState    *string    `json:"next_state,omitempty"`
	Priority     string     `json:"priority"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	TotalHours   *int       `json:"total_hours,omitempty"`
	OnSchedule   *bool      `json:"on_schedule,omitempty"`
	DaySchedule  *time.Time `json:"day_schedule,omitempty"`
}

// Draft is a planned follow-up of a preventive work order.
type Draft struct {
	Code          int64     `json:"code"`
	PlannedDay    time.Time `json:"planned_day"`
	WorkOrderCode int64     `json:"work_order_code"`
	ActivityName  string    `json:"activity_name,omitempty"`
	MachineName   string    `json:"machine_name,omitempty"`
}

type Indicator struct {
	MachineCode int64       `json:"machine_code"`
	MachineName string      `json:"machine_name"`
	Hours       int         `json:"hours"`
	WorkOrders  []WorkOrder `json:"work_orders"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

type list[T any] struct {
	Items []T `json:"items"`
}

// CreateWorkOrderInput mirrors the create request; nil fields are omitted.
type CreateWorkOrderInput struct {
	MachineCode  int64   `json:"machine_code"`
	EngineCode   *int64  `json:"engine_code,omitempty"`
	ActivityCode *int64  `json:"activity_code,omitempty"`
	Priority     *string `json:"priority,omitempty"`
}

func (c *Client) CreateWorkOrder(ctx context.Context, in CreateWorkOrderInput) (WorkOrder, error) {
	var resp WorkOrder
	err := c.do(ctx, http.MethodPost, "work-orders", in, &resp)
	return resp, err
}

func (c *Client) GetWorkOrder(ctx context.Context, code int64) (WorkOrder, error) {
	var resp WorkOrder
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("work-orders/%d", code), nil, &resp)
	return resp, err
}

// ListWorkOrders lists orders of a WEEKLY, MONTHLY or ANNUAL window around
// date (YYYY-MM-DD). Empty arguments use the server defaults.
func (c *Client) ListWorkOrders(ctx context.Context, rangeKind, date string) ([]WorkOrder, error) {
	q := url.Values{}
	setIf(q, "range", rangeKind)
	setIf(q, "date", date)
	var resp list[WorkOrder]
	err := c.do(ctx, http.MethodGet, withQuery("work-orders", q), nil, &resp)
	return resp.Items, err
}

// Advance sends a transition request. fields carries the state-specific
// payload, e.g. security_measures for DOING.
func (c *Client) Advance(ctx context.Context, code int64, state string, fields map[string]any) (WorkOrder, error) {
	body := map[string]any{}
	for k, v := range fields {
		body[k] = v
	}
	body["state"] = state
	var resp WorkOrder
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("work-orders/%d", code), body, &resp)
	return resp, err
}

func (c *Client) DeleteWorkOrder(ctx context.Context, code int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("work-orders/%d", code), nil, nil)
}

func (c *Client) Schedule(ctx context.Context, date string, strict bool) ([]WorkOrder, error) {
	q := url.Values{}
	setIf(q, "date", date)
	if strict {
		q.Set("strict", "true")
	}
	var resp list[WorkOrder]
	err := c.do(ctx, http.MethodGet, withQuery("schedule", q), nil, &resp)
	return resp.Items, err
}

func (c *Client) Indicators(ctx context.Context, date string, strict bool) ([]Indicator, error) {
	q := url.Values{}
	setIf(q, "date", date)
	if strict {
		q.Set("strict", "true")
	}
	var resp list[Indicator]
	err := c.do(ctx, http.MethodGet, withQuery("indicators", q), nil, &resp)
	return resp.Items, err
}

func (c *Client) Drafts(ctx context.Context, date string) ([]Draft, error) {
	q := url.Values{}
	setIf(q, "date", date)
	var resp list[Draft]
	err := c.do(ctx, http.MethodGet, withQuery("drafts", q), nil, &resp)
	return resp.Items, err
}

// PromoteDraft turns a draft into a work order; an empty priority keeps the
// priority of the originating order.
func (c *Client) PromoteDraft(ctx context.Context, code int64, priority string) (WorkOrder, error) {
	body := map[string]any{}
	if priority != "" {
		body["priority"] = priority
	}
	var resp WorkOrder
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("drafts/%d/promote", code), body, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing, newest first.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	setIf(q, "cursor", cursor)
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery("events", q), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
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
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}
