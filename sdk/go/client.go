package buildlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Client is a minimal Buildline HTTP API client.
type Client struct {
	// BaseURL includes the API base path, e.g. http://127.0.0.1:8080/v1.
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{BaseURL: baseURL, Timeout: 10 * time.Second}
}

type Project struct {
	ID              string `json:"id"`
	IncorporationID string `json:"incorporation_id"`
	ModelProjectID  string `json:"model_project_id"`
	Code            string `json:"code"`
	Name            string `json:"name"`
	LotNumber       string `json:"lot_number,omitempty"`
	Status          string `json:"status"`
}

type Phase struct {
	ID                   string          `json:"id"`
	ProjectID            string          `json:"project_id"`
	PhaseCode            string          `json:"phase_code"`
	Name                 string          `json:"name"`
	Status               string          `json:"status"`
	CompletionPercentage decimal.Decimal `json:"completion_percentage"`
	AssignedTo           string          `json:"assigned_to,omitempty"`
}

type Task struct {
	ID                   string          `json:"id"`
	PhaseProjectID       string          `json:"phase_project_id"`
	TaskCode             string          `json:"task_code"`
	Name                 string          `json:"name"`
	Status               string          `json:"status"`
	CompletionPercentage decimal.Decimal `json:"completion_percentage"`
	EstimatedCost        decimal.Decimal `json:"estimated_cost"`
	ActualCost           decimal.Decimal `json:"actual_cost"`
}

type PhaseTree struct {
	Phase
	Tasks []Task `json:"tasks"`
}

// ProjectTree is a project with its phases and tasks.
type ProjectTree struct {
	Project Project     `json:"project"`
	Phases  []PhaseTree `json:"phases"`
}

type Issue struct {
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Contract struct {
	ID            string          `json:"id"`
	Number        string          `json:"number"`
	LeadID        string          `json:"lead_id"`
	Status        string          `json:"status"`
	ContractValue decimal.Decimal `json:"contract_value"`
}

type Owner struct {
	FullName   string `json:"full_name"`
	Email      string `json:"email,omitempty"`
	Percentage string `json:"percentage"`
}

// ConvertLeadRequest mirrors the conversion body. Money and percentages are decimal strings.
type ConvertLeadRequest struct {
	IncorporationID   string   `json:"incorporation_id,omitempty"`
	PaymentMethodID   string   `json:"payment_method_id"`
	ManagementCompany string   `json:"management_company"`
	RealtorID         string   `json:"realtor_id,omitempty"`
	HOAID             string   `json:"hoa_id,omitempty"`
	ContractValue     string   `json:"contract_value,omitempty"`
	SignedDate        string   `json:"signed_date,omitempty"`
	ProjectIDs        []string `json:"project_ids,omitempty"`
	Owners            []Owner  `json:"owners,omitempty"`
}

type ConversionResult struct {
	Contract *Contract `json:"contract,omitempty"`
	Warnings []Issue   `json:"warnings"`
	Projects []struct {
		ProjectID   string          `json:"project_id"`
		AgreedPrice decimal.Decimal `json:"agreed_price"`
	} `json:"projects"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code and Details come from the error envelope
// when the body carries one.
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

// IsPreconditionFailed reports a lifecycle action refused in the entity's current status.
func IsPreconditionFailed(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == "precondition_failed"
}

// CreateProject creates a project and instantiates its model project.
func (c *Client) CreateProject(ctx context.Context, incorporationID, modelProjectID, code, name string) (Project, error) {
	body := map[string]any{
		"incorporation_id": incorporationID,
		"model_project_id": modelProjectID,
		"code":             code,
		"name":             name,
	}
	var resp struct {
		Project Project `json:"project"`
	}
	err := c.do(ctx, http.MethodPost, "projects", body, &resp)
	return resp.Project, err
}

func (c *Client) ProjectTree(ctx context.Context, projectID string) (ProjectTree, error) {
	var resp ProjectTree
	err := c.do(ctx, http.MethodGet, "projects/"+url.PathEscape(projectID), nil, &resp)
	return resp, err
}

// PrepareProject marks phases ready to start or waiting on prerequisites.
func (c *Client) PrepareProject(ctx context.Context, projectID string) ([]Phase, error) {
	var resp []Phase
	err := c.do(ctx, http.MethodPost, "projects/"+url.PathEscape(projectID)+"/prepare", nil, &resp)
	return resp, err
}

// PhaseAction runs a phase lifecycle action such as start, complete, pause or cancel.
func (c *Client) PhaseAction(ctx context.Context, phaseID, action string) (Phase, error) {
	var resp Phase
	err := c.do(ctx, http.MethodPost, "phases/"+url.PathEscape(phaseID)+"/"+action, nil, &resp)
	return resp, err
}

// TaskAction runs a task lifecycle action such as start, complete or approve.
func (c *Client) TaskAction(ctx context.Context, taskID, action string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks/"+url.PathEscape(taskID)+"/"+action, nil, &resp)
	return resp, err
}

func (c *Client) UpdateTaskProgress(ctx context.Context, taskID string, percentage decimal.Decimal) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPut, "tasks/"+url.PathEscape(taskID)+"/progress", map[string]any{"percentage": percentage.String()}, &resp)
	return resp, err
}

// ConvertLead converts a lead. A rejected conversion returns an *APIError whose
// Details hold the errors and warnings.
func (c *Client) ConvertLead(ctx context.Context, leadID string, req ConvertLeadRequest) (ConversionResult, error) {
	var resp ConversionResult
	err := c.do(ctx, http.MethodPost, "leads/"+url.PathEscape(leadID)+"/convert", req, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing, newest first.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
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
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
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
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message, apiErr.Details = env.Error.Code, env.Error.Message, env.Error.Details
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
