package caregatesdk

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client is a minimal Caregate HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	// ActorID is sent as X-Actor-Id for servers started with --allow-actor-header.
	ActorID     string
	Timeout     time.Duration
	Retries     int

	rc *resty.Client
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
		Retries: 2,
	}
}

type Case struct {
	ID           string `json:"id"`
	OrgID        string `json:"org_id"`
	ClientName   string `json:"client_name"`
	AttorneyName string `json:"attorney_name,omitempty"`
	CaseType     string `json:"case_type,omitempty"`
	Status       string `json:"status"`
	ClosureType  string `json:"closure_type,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

type Flag struct {
	ID          string  `json:"id"`
	CaseID      string  `json:"case_id"`
	Type        string  `json:"type"`
	Label       string  `json:"label"`
	Description string  `json:"description,omitempty"`
	Severity    string  `json:"severity"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	ResolvedAt  *string `json:"resolved_at,omitempty"`
}

type Task struct {
	ID         string  `json:"task_id"`
	CaseID     string  `json:"case_id"`
	Type       string  `json:"type"`
	Title      string  `json:"title"`
	DueDate    *string `json:"due_date,omitempty"`
	Status     string  `json:"status"`
	AssignedTo *string `json:"assigned_to,omitempty"`
}

type RiskSummary struct {
	VitalityScore         *float64 `json:"vitality_score,omitempty"`
	RAGStatus             string   `json:"rag_status,omitempty"`
	VigilanceRiskCategory string   `json:"vigilance_risk_category,omitempty"`
	Source                string   `json:"source,omitempty"`
	RecordedAt            string   `json:"recorded_at,omitempty"`
}

type Issue struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

type LockdownResult struct {
	CanRelease bool    `json:"can_release"`
	RiskLevel  string  `json:"risk_level"`
	Issues     []Issue `json:"issues"`
}

// LockdownRun is one stored release-gate evaluation.
type LockdownRun struct {
	ID          string         `json:"id"`
	CaseID      string         `json:"case_id"`
	EvaluatedOn string         `json:"evaluated_on"`
	Result      LockdownResult `json:"result"`
	Risk        RiskSummary    `json:"risk"`
	ActorID     string         `json:"actor_id"`
	CreatedAt   string         `json:"created_at"`
}

type LockdownPreview struct {
	CaseID      string         `json:"case_id"`
	EvaluatedOn string         `json:"evaluated_on"`
	Result      LockdownResult `json:"result"`
	Risk        RiskSummary    `json:"risk"`
}

type Release struct {
	ID             string `json:"id"`
	CaseID         string `json:"case_id"`
	ReportKind     string `json:"report_kind"`
	RunID          string `json:"run_id"`
	Overridden     bool   `json:"overridden"`
	OverrideReason string `json:"override_reason,omitempty"`
	ActorID        string `json:"actor_id"`
	CreatedAt      string `json:"created_at"`
}

// ReleaseResult pairs a release with the run that allowed it.
type ReleaseResult struct {
	Release Release     `json:"release"`
	Run     LockdownRun `json:"run"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	OrgID      string         `json:"org_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ReleaseBlocked reports whether err is a refused release.
func ReleaseBlocked(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusConflict && apiErr.Code == "release_blocked"
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

// CreateCase creates a case.
func (c *Client) CreateCase(ctx context.Context, clientName, attorneyName, caseType string) (Case, error) {
	body := map[string]any{"client_name": clientName}
	if attorneyName != "" {
		body["attorney_name"] = attorneyName
	}
	if caseType != "" {
		body["case_type"] = caseType
	}
	var resp Case
	err := c.do(ctx, http.MethodPost, "cases", body, &resp)
	return resp, err
}

func (c *Client) GetCase(ctx context.Context, caseID string) (Case, error) {
	var resp Case
	err := c.do(ctx, http.MethodGet, "cases/"+caseID, nil, &resp)
	return resp, err
}

// AddFlag adds a clinical or SDOH flag.
func (c *Client) AddFlag(ctx context.Context, caseID, flagType, label, severity string) (Flag, error) {
	body := map[string]any{
		"type":     flagType,
		"label":    label,
		"severity": severity,
	}
	var resp Flag
	err := c.do(ctx, http.MethodPost, "cases/"+caseID+"/flags", body, &resp)
	return resp, err
}

func (c *Client) ResolveFlag(ctx context.Context, flagID string) (Flag, error) {
	var resp Flag
	err := c.do(ctx, http.MethodPost, "flags/"+flagID+"/resolve", nil, &resp)
	return resp, err
}

// CreateTask creates a task; dueDate is YYYY-MM-DD or empty.
func (c *Client) CreateTask(ctx context.Context, caseID, title, dueDate string) (Task, error) {
	body := map[string]any{"title": title}
	if dueDate != "" {
		body["due_date"] = dueDate
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "cases/"+caseID+"/tasks", body, &resp)
	return resp, err
}

func (c *Client) SetTaskStatus(ctx context.Context, taskID, status string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks/"+taskID+"/status", map[string]any{"status": status}, &resp)
	return resp, err
}

func (c *Client) RecordRisk(ctx context.Context, caseID string, rs RiskSummary) (RiskSummary, error) {
	var resp RiskSummary
	err := c.do(ctx, http.MethodPut, "cases/"+caseID+"/risk", rs, &resp)
	return resp, err
}

// EvaluateLockdown runs and stores a release-gate evaluation.
func (c *Client) EvaluateLockdown(ctx context.Context, caseID string) (LockdownRun, error) {
	var resp LockdownRun
	err := c.do(ctx, http.MethodPost, "cases/"+caseID+"/lockdown", nil, &resp)
	return resp, err
}

// PreviewLockdown evaluates the release gate without storing a run.
func (c *Client) PreviewLockdown(ctx context.Context, caseID string) (LockdownPreview, error) {
	var resp LockdownPreview
	err := c.do(ctx, http.MethodGet, "cases/"+caseID+"/lockdown", nil, &resp)
	return resp, err
}

// ReleaseReport asks the server to release a report. A refused release
// returns an *APIError for which ReleaseBlocked is true.
func (c *Client) ReleaseReport(ctx context.Context, caseID, reportKind string) (ReleaseResult, error) {
	var resp ReleaseResult
	err := c.do(ctx, http.MethodPost, "cases/"+caseID+"/releases", map[string]any{"report_kind": reportKind}, &resp)
	return resp, err
}

// OverrideRelease releases despite BLOCK issues; the org must allow overrides.
func (c *Client) OverrideRelease(ctx context.Context, caseID, reportKind, reason string) (ReleaseResult, error) {
	body := map[string]any{
		"report_kind":     reportKind,
		"override":        true,
		"override_reason": reason,
	}
	var resp ReleaseResult
	err := c.do(ctx, http.MethodPost, "cases/"+caseID+"/releases", body, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	var resp PaginatedEvents
	req, err := c.request(ctx)
	if err != nil {
		return resp, err
	}
	if limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		req.SetQueryParam("cursor", cursor)
	}
	res, err := req.SetResult(&resp).Get(c.path("events"))
	if err != nil {
		return resp, err
	}
	return resp, checkResponse(res)
}

func (c *Client) client() *resty.Client {
	if c.rc == nil {
		c.rc = resty.New().
			SetTimeout(c.Timeout).
			SetRetryCount(c.Retries).
			SetRetryWaitTime(200 * time.Millisecond).
			SetRetryMaxWaitTime(2 * time.Second).
			SetHeader("Accept", "application/json")
	}
	return c.rc
}

func (c *Client) request(ctx context.Context) (*resty.Request, error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("base URL required")
	}
	req := c.client().R().SetContext(ctx).SetError(&errorEnvelope{})
	switch {
	case c.BearerToken != "":
		req.SetAuthToken(c.BearerToken)
	case c.APIKey != "":
		req.SetHeader("X-Api-Key", c.APIKey)
	}
	if c.ActorID != "" {
		req.SetHeader("X-Actor-Id", c.ActorID)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	req, err := c.request(ctx)
	if err != nil {
		return err
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	res, err := req.Execute(method, c.path(endpoint))
	if err != nil {
		return err
	}
	return checkResponse(res)
}

func checkResponse(res *resty.Response) error {
	if res.IsSuccess() {
		return nil
	}
	apiErr := &APIError{StatusCode: res.StatusCode(), Body: string(res.Body())}
	if env, ok := res.Error().(*errorEnvelope); ok && env != nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Details = env.Error.Details
	}
	return apiErr
}

func (c *Client) path(p string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(p, "/")
}
