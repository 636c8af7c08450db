package mcp

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

	"github.com/DevRickLin/feishu-task-engine/internal/biz/domain"
)

// Client is the HTTP client for the engine API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new engine API client
func NewClient(baseURL string) *Client {
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 2 * time.Minute, // purge runs can page through 1000 messages
		},
	}
}

// APIError is a non-2xx answer from the engine
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// ScheduleRequest mirrors POST /api/messages
type ScheduleRequest struct {
	ScopeID   string   `json:"scope_id"`
	ChannelID string   `json:"channel_id"`
	Content   string   `json:"content"`
	Media     []string `json:"media,omitempty"`
	When      string   `json:"when"`
	Interval  string   `json:"interval,omitempty"`
	CreatedBy string   `json:"created_by,omitempty"`
}

// PurgeRuleRequest mirrors POST /api/purge-rules
type PurgeRuleRequest struct {
	ScopeID   string `json:"scope_id"`
	ChannelID string `json:"channel_id"`
	Mode      string `json:"mode"`
	Interval  string `json:"interval,omitempty"`
	Every     int64  `json:"every,omitempty"`
	Unit      string `json:"unit,omitempty"`
	ScanLimit int    `json:"scan_limit,omitempty"`
	CreatedBy string `json:"created_by,omitempty"`
}

// PurgeRunRequest mirrors POST /api/purge/run
type PurgeRunRequest struct {
	ScopeID   string `json:"scope_id"`
	ChannelID string `json:"channel_id"`
	Mode      string `json:"mode"`
	ScanLimit int    `json:"scan_limit,omitempty"`
}

// PurgeRunResponse carries the counts and, for a partial purge, the error
type PurgeRunResponse struct {
	Result domain.PurgeResult `json:"result"`
	Error  string             `json:"error,omitempty"`
}

// ============ Scheduled Messages ============

// ScheduleMessage creates a scheduled message
func (c *Client) ScheduleMessage(ctx context.Context, req ScheduleRequest) (*domain.ScheduledMessage, error) {
	var msg domain.ScheduledMessage
	if err := c.do(ctx, http.MethodPost, "/api/messages", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessages lists scheduled messages of a scope, optionally for one chat
func (c *Client) ListMessages(ctx context.Context, scopeID, channelID string) ([]domain.ScheduledMessage, error) {
	q := url.Values{"scope_id": {scopeID}}
	if channelID != "" {
		q.Set("channel_id", channelID)
	}
	var result struct {
		Messages []domain.ScheduledMessage `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/messages?"+q.Encode(), nil, &result); err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// PauseMessage pauses a scheduled message
func (c *Client) PauseMessage(ctx context.Context, scopeID string, id int64) error {
	return c.do(ctx, http.MethodPost, itemPath("/api/messages", id, "pause", scopeID), nil, nil)
}

// ResumeMessage resumes a scheduled message
func (c *Client) ResumeMessage(ctx context.Context, scopeID string, id int64) error {
	return c.do(ctx, http.MethodPost, itemPath("/api/messages", id, "resume", scopeID), nil, nil)
}

// RemoveMessage deletes a scheduled message
func (c *Client) RemoveMessage(ctx context.Context, scopeID string, id int64) error {
	return c.do(ctx, http.MethodDelete, itemPath("/api/messages", id, "", scopeID), nil, nil)
}

// ============ Purge Rules ============

// SetPurgeRule creates or replaces the purge rule of a chat
func (c *Client) SetPurgeRule(ctx context.Context, req PurgeRuleRequest) (*domain.PurgeRule, error) {
	var rule domain.PurgeRule
	if err := c.do(ctx, http.MethodPost, "/api/purge-rules", req, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// ListPurgeRules lists purge rules of a scope
func (c *Client) ListPurgeRules(ctx context.Context, scopeID string) ([]domain.PurgeRule, error) {
	var result struct {
		Rules []domain.PurgeRule `json:"rules"`
	}
	path := "/api/purge-rules?" + url.Values{"scope_id": {scopeID}}.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Rules, nil
}

// PausePurgeRule pauses a purge rule
func (c *Client) PausePurgeRule(ctx context.Context, scopeID string, id int64) error {
	return c.do(ctx, http.MethodPost, itemPath("/api/purge-rules", id, "pause", scopeID), nil, nil)
}

// ResumePurgeRule resumes a purge rule
func (c *Client) ResumePurgeRule(ctx context.Context, scopeID string, id int64) error {
	return c.do(ctx, http.MethodPost, itemPath("/api/purge-rules", id, "resume", scopeID), nil, nil)
}

// RemovePurgeRule deletes a purge rule
func (c *Client) RemovePurgeRule(ctx context.Context, scopeID string, id int64) error {
	return c.do(ctx, http.MethodDelete, itemPath("/api/purge-rules", id, "", scopeID), nil, nil)
}

// RunPurge runs a one-shot purge
func (c *Client) RunPurge(ctx context.Context, req PurgeRunRequest) (*PurgeRunResponse, error) {
	var resp PurgeRunResponse
	if err := c.do(ctx, http.MethodPost, "/api/purge/run", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks that the engine is up
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// ============ HTTP Helpers ============

func itemPath(base string, id int64, action, scopeID string) string {
	path := fmt.Sprintf("%s/%d", base, id)
	if action != "" {
		path += "/" + action
	}
	return path + "?" + url.Values{"scope_id": {scopeID}}.Encode()
}

func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal body: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP %s failed: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
