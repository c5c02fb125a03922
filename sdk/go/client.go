package missionctlsdk

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

// Client is a minimal Missionctl HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
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

// Mission represents the API mission model (partial).
type Mission struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	Title       string  `json:"title"`
	Type        string  `json:"type"`
	Status      string  `json:"status"`
	Progress    int     `json:"progress"`
	Priority    string  `json:"priority"`
	StartedAt   *string `json:"started_at,omitempty"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

// PlanStep represents one node of a mission plan.
type PlanStep struct {
	ID        string  `json:"id"`
	MissionID string  `json:"mission_id"`
	ParentID  *string `json:"parent_id,omitempty"`
	Title     string  `json:"title"`
	Status    string  `json:"status"`
	Order     int     `json:"order"`
}

// Activity represents one ledger entry.
type Activity struct {
	ID        int64          `json:"id"`
	MissionID string         `json:"mission_id"`
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Details   string         `json:"details,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// Document represents mission document metadata.
type Document struct {
	ID         string `json:"id"`
	MissionID  string `json:"mission_id"`
	Name       string `json:"name"`
	FileType   string `json:"file_type"`
	FileSize   int64  `json:"file_size"`
	Status     string `json:"status"`
	IsVerified bool   `json:"is_verified"`
}

// UserStats carries the aggregate mission counters.
type UserStats struct {
	ID                string `json:"id"`
	TotalMissions     int    `json:"total_missions"`
	CompletedMissions int    `json:"completed_missions"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedActivities wraps activity listings with cursors.
type PaginatedActivities struct {
	Items      []Activity `json:"items"`
	NextCursor string     `json:"next_cursor"`
}

// CreateMission creates a mission.
func (c *Client) CreateMission(ctx context.Context, title, missionType string) (Mission, error) {
	body := map[string]any{
		"title": title,
	}
	if missionType != "" {
		body["type"] = missionType
	}
	var resp Mission
	err := c.do(ctx, http.MethodPost, "missions", body, &resp)
	return resp, err
}

// GetMission fetches a mission by id.
func (c *Client) GetMission(ctx context.Context, id string) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodGet, "missions/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Start moves a mission to running.
func (c *Client) Start(ctx context.Context, id string) (Mission, error) {
	return c.transition(ctx, id, "start")
}

// Pause moves a running mission to paused.
func (c *Client) Pause(ctx context.Context, id string) (Mission, error) {
	return c.transition(ctx, id, "pause")
}

// Resume moves a paused mission back to running.
func (c *Client) Resume(ctx context.Context, id string) (Mission, error) {
	return c.transition(ctx, id, "resume")
}

// Complete finishes a running mission.
func (c *Client) Complete(ctx context.Context, id string) (Mission, error) {
	return c.transition(ctx, id, "complete")
}

// Cancel cancels a non-terminal mission.
func (c *Client) Cancel(ctx context.Context, id string) (Mission, error) {
	return c.transition(ctx, id, "cancel")
}

// Fail marks a mission as failed with a reason.
func (c *Client) Fail(ctx context.Context, id, reason string) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodPost, "missions/"+url.PathEscape(id)+"/fail", map[string]any{"reason": reason}, &resp)
	return resp, err
}

func (c *Client) transition(ctx context.Context, id, action string) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodPost, "missions/"+url.PathEscape(id)+"/"+action, nil, &resp)
	return resp, err
}

// AddStep adds a plan step; parentID may be empty for a root step.
func (c *Client) AddStep(ctx context.Context, missionID, parentID, title string, order int) (PlanStep, error) {
	body := map[string]any{
		"title": title,
		"order": order,
	}
	if parentID != "" {
		body["parent_id"] = parentID
	}
	var resp PlanStep
	err := c.do(ctx, http.MethodPost, "missions/"+url.PathEscape(missionID)+"/steps", body, &resp)
	return resp, err
}

// SetStepStatus assigns a plan step status.
func (c *Client) SetStepStatus(ctx context.Context, stepID, status string) (PlanStep, error) {
	var resp PlanStep
	err := c.do(ctx, http.MethodPost, "steps/"+url.PathEscape(stepID)+"/status", map[string]any{"status": status}, &resp)
	return resp, err
}

// Activities returns recent ledger entries for a mission.
func (c *Client) Activities(ctx context.Context, missionID string, limit int) ([]Activity, error) {
	page, err := c.ActivitiesPage(ctx, missionID, limit, "")
	return page.Items, err
}

// ActivitiesPage returns a paginated activity listing.
func (c *Client) ActivitiesPage(ctx context.Context, missionID string, limit int, cursor string) (PaginatedActivities, error) {
	endpoint := "missions/" + url.PathEscape(missionID) + "/activities"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedActivities
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// AddDocument registers document metadata on a mission.
func (c *Client) AddDocument(ctx context.Context, missionID, name, fileType string, fileSize int64) (Document, error) {
	body := map[string]any{
		"name":      name,
		"file_size": fileSize,
	}
	if fileType != "" {
		body["file_type"] = fileType
	}
	var resp Document
	err := c.do(ctx, http.MethodPost, "missions/"+url.PathEscape(missionID)+"/documents", body, &resp)
	return resp, err
}

// VerifyDocument marks a document as verified.
func (c *Client) VerifyDocument(ctx context.Context, id string) (Document, error) {
	var resp Document
	err := c.do(ctx, http.MethodPost, "documents/"+url.PathEscape(id)+"/verify", nil, &resp)
	return resp, err
}

// Stats returns the caller's aggregate mission counters.
func (c *Client) Stats(ctx context.Context) (UserStats, error) {
	var resp UserStats
	err := c.do(ctx, http.MethodGet, "me/stats", nil, &resp)
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
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
