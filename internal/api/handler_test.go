package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/DevRickLin/feishu-task-engine/internal/biz/domain"
	"github.com/DevRickLin/feishu-task-engine/internal/biz/usecase"
	"github.com/DevRickLin/feishu-task-engine/internal/data"
)

// stubGateway implements repo.ChannelGateway for testing
type stubGateway struct {
	items   []domain.ChannelItem
	removed int
}

func (g *stubGateway) ResolveChannel(ctx context.Context, channelID string) (*domain.Channel, error) {
	if channelID == "oc_gone" {
		return nil, domain.ErrChannelNotFound
	}
	return &domain.Channel{ID: channelID, ScopeID: "tenant-1"}, nil
}

func (g *stubGateway) Send(ctx context.Context, ch *domain.Channel, payload domain.Payload) error {
	return nil
}

func (g *stubGateway) PageRecent(ctx context.Context, ch *domain.Channel, limit int, before string) ([]domain.ChannelItem, string, error) {
	if len(g.items) > limit {
		return g.items[:limit], "", nil
	}
	return g.items, "", nil
}

func (g *stubGateway) BulkRemove(ctx context.Context, ch *domain.Channel, ids []string) (int, error) {
	g.removed += len(ids)
	return len(ids), nil
}

func (g *stubGateway) IsPrivileged(ctx context.Context, ch *domain.Channel, authorID string) (bool, error) {
	return authorID == "ou_owner", nil
}

func newTestServer(t *testing.T) (*httptest.Server, *stubGateway) {
	t.Helper()
	taskRepo, err := data.NewTaskRepo(filepath.Join(t.TempDir(), "tasks.sqlite"))
	if err != nil {
		t.Fatalf("Failed to open repo: %v", err)
	}
	t.Cleanup(func() { taskRepo.Close() })

	gw := &stubGateway{}
	s := NewServer(
		usecase.NewTaskUsecase(taskRepo, gw, nil),
		usecase.NewPurgeUsecase(taskRepo, gw, nil, nil),
		"127.0.0.1:0",
		nil,
	)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, gw
}

func doJSON(t *testing.T, method, url string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := doJSON(t, http.MethodGet, ts.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
}

func TestScheduleAndListMessages(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/messages", ScheduleRequest{
		ScopeID:   "tenant-1",
		ChannelID: "oc_chat",
		Content:   "standup",
		When:      "10m",
		Interval:  "1d",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", resp.StatusCode)
	}
	var created domain.ScheduledMessage
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if created.ID == 0 || created.IntervalSeconds != 86400 {
		t.Errorf("Unexpected message: %+v", created)
	}
	if d := time.Until(created.DueAt); d < 9*time.Minute || d > 11*time.Minute {
		t.Errorf("Expected due in ~10m, got %v", d)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/messages?scope_id=tenant-1", nil)
	var list struct {
		Messages []domain.ScheduledMessage `json:"messages"`
	}
	json.NewDecoder(resp.Body).Decode(&list)
	if len(list.Messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(list.Messages))
	}
	if list.Messages[0].Content != "standup" {
		t.Errorf("Expected content 'standup', got %q", list.Messages[0].Content)
	}
}

func TestScheduleMessageErrors(t *testing.T) {
	ts, _ := newTestServer(t)

	tests := []struct {
		name string
		req  ScheduleRequest
		want int
	}{
		{"bad when", ScheduleRequest{ScopeID: "s", ChannelID: "oc_chat", Content: "x", When: "tomorrow-ish"}, http.StatusBadRequest},
		{"too soon", ScheduleRequest{ScopeID: "s", ChannelID: "oc_chat", Content: "x", When: "2s"}, http.StatusBadRequest},
		{"empty payload", ScheduleRequest{ScopeID: "s", ChannelID: "oc_chat", When: "1h"}, http.StatusBadRequest},
		{"bad interval", ScheduleRequest{ScopeID: "s", ChannelID: "oc_chat", Content: "x", When: "1h", Interval: "0m"}, http.StatusBadRequest},
		{"missing channel", ScheduleRequest{ScopeID: "s", ChannelID: "oc_gone", Content: "x", When: "1h"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, http.MethodPost, ts.URL+"/api/messages", tt.req)
			if resp.StatusCode != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestMessageItemActions(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/messages", ScheduleRequest{
		ScopeID: "tenant-1", ChannelID: "oc_chat", Content: "x", When: "1h",
	})
	var created domain.ScheduledMessage
	json.NewDecoder(resp.Body).Decode(&created)
	base := fmt.Sprintf("%s/api/messages/%d", ts.URL, created.ID)

	if resp := doJSON(t, http.MethodPost, base+"/pause?scope_id=tenant-1", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("Expected pause 200, got %d", resp.StatusCode)
	}
	if resp := doJSON(t, http.MethodPost, base+"/resume?scope_id=tenant-1", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("Expected resume 200, got %d", resp.StatusCode)
	}
	if resp := doJSON(t, http.MethodPost, base+"/pause?scope_id=tenant-2", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 across scopes, got %d", resp.StatusCode)
	}
	if resp := doJSON(t, http.MethodPost, base+"/explode?scope_id=tenant-1", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown action, got %d", resp.StatusCode)
	}
	if resp := doJSON(t, http.MethodDelete, base+"?scope_id=tenant-1", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("Expected delete 200, got %d", resp.StatusCode)
	}
	if resp := doJSON(t, http.MethodDelete, base+"?scope_id=tenant-1", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected second delete 404, got %d", resp.StatusCode)
	}
	if resp := doJSON(t, http.MethodDelete, ts.URL+"/api/messages/abc?scope_id=tenant-1", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad id, got %d", resp.StatusCode)
	}
}

func TestPurgeRules(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/purge-rules", PurgeRuleRequest{
		ScopeID: "tenant-1", ChannelID: "oc_chat", Mode: "media", Every: 2, Unit: "hours",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	var rule domain.PurgeRule
	json.NewDecoder(resp.Body).Decode(&rule)
	if rule.IntervalSeconds != 7200 || rule.Mode != domain.PurgeModeMedia {
		t.Errorf("Unexpected rule: %+v", rule)
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/purge-rules", PurgeRuleRequest{
		ScopeID: "tenant-1", ChannelID: "oc_chat", Mode: "bots", Interval: "1h",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad mode, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/purge-rules?scope_id=tenant-1", nil)
	var list struct {
		Rules []domain.PurgeRule `json:"rules"`
	}
	json.NewDecoder(resp.Body).Decode(&list)
	if len(list.Rules) != 1 {
		t.Fatalf("Expected 1 rule, got %d", len(list.Rules))
	}

	base := fmt.Sprintf("%s/api/purge-rules/%d", ts.URL, rule.ID)
	if resp := doJSON(t, http.MethodPost, base+"/pause?scope_id=tenant-1", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("Expected pause 200, got %d", resp.StatusCode)
	}
	if resp := doJSON(t, http.MethodDelete, base+"?scope_id=tenant-1", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("Expected delete 200, got %d", resp.StatusCode)
	}
}

func TestPurgeRun(t *testing.T) {
	ts, gw := newTestServer(t)
	now := time.Now()
	gw.items = []domain.ChannelItem{
		{ID: "om_1", AuthorID: "ou_user", CreatedAt: now.Add(-time.Minute)},
		{ID: "om_2", AuthorID: "ou_owner", CreatedAt: now.Add(-time.Minute)},
		{ID: "om_3", AuthorID: "ou_user", CreatedAt: now.Add(-20 * 24 * time.Hour)},
	}

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/purge/run", PurgeRunRequest{ScopeID: "tenant-1", ChannelID: "oc_chat", Mode: "nonadmin"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	var out struct {
		Result domain.PurgeResult `json:"result"`
	}
	json.NewDecoder(resp.Body).Decode(&out)
	want := domain.PurgeResult{Scanned: 3, Matched: 2, Deleted: 1, TooOld: 1}
	if out.Result != want {
		t.Errorf("Expected %+v, got %+v", want, out.Result)
	}

	if resp := doJSON(t, http.MethodPost, ts.URL+"/api/purge/run", PurgeRunRequest{ScopeID: "tenant-1", ChannelID: "oc_chat", Mode: "bots"}); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad mode, got %d", resp.StatusCode)
	}
	if resp := doJSON(t, http.MethodPost, ts.URL+"/api/purge/run", PurgeRunRequest{ScopeID: "tenant-1", Mode: "all"}); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 without channel, got %d", resp.StatusCode)
	}
	if resp := doJSON(t, http.MethodPost, ts.URL+"/api/purge/run", PurgeRunRequest{ChannelID: "oc_chat", Mode: "all"}); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 without scope, got %d", resp.StatusCode)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&domain.ValidationError{Field: "x", Message: "y"}, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", domain.ErrNotFound), http.StatusNotFound},
		{domain.ErrChannelNotFound, http.StatusNotFound},
		{domain.ErrEmptyPayload, http.StatusBadRequest},
		{domain.ErrRuleConflict, http.StatusConflict},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("Expected %d for %v, got %d", tt.want, tt.err, got)
		}
	}
}
