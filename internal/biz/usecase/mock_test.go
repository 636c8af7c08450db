package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/DevRickLin/feishu-task-engine/internal/biz/domain"
)

// ========== Clock ==========

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(unix int64) *fakeClock {
	return &fakeClock{now: time.Unix(unix, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ========== Task Repo ==========

type mockTaskRepo struct {
	mu       sync.Mutex
	nextID   int64
	messages map[int64]*domain.ScheduledMessage
	rules    map[int64]*domain.PurgeRule
	listErr  error
}

func newMockTaskRepo() *mockTaskRepo {
	return &mockTaskRepo{
		messages: make(map[int64]*domain.ScheduledMessage),
		rules:    make(map[int64]*domain.PurgeRule),
	}
}

func (m *mockTaskRepo) CreateMessage(ctx context.Context, msg *domain.ScheduledMessage) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	cp := *msg
	cp.ID = m.nextID
	m.messages[cp.ID] = &cp
	return cp.ID, nil
}

func (m *mockTaskRepo) ListDueMessages(ctx context.Context, now time.Time, limit int) ([]*domain.ScheduledMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var due []*domain.ScheduledMessage
	for _, msg := range m.messages {
		if msg.Active && !msg.DueAt.After(now) {
			cp := *msg
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].DueAt.Equal(due[j].DueAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].DueAt.Before(due[j].DueAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *mockTaskRepo) AdvanceMessage(ctx context.Context, id int64, nextDue time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return domain.ErrNotFound
	}
	msg.DueAt = nextDue
	msg.LastError = ""
	return nil
}

func (m *mockTaskRepo) DeactivateMessage(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return domain.ErrNotFound
	}
	msg.Active = false
	msg.LastError = ""
	return nil
}

func (m *mockTaskRepo) RecordMessageError(ctx context.Context, id int64, retryAt time.Time, errText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return domain.ErrNotFound
	}
	msg.DueAt = retryAt
	msg.LastError = errText
	return nil
}

func (m *mockTaskRepo) GetMessage(ctx context.Context, scopeID string, id int64) (*domain.ScheduledMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok || msg.ScopeID != scopeID {
		return nil, nil
	}
	cp := *msg
	return &cp, nil
}

func (m *mockTaskRepo) ListMessages(ctx context.Context, scopeID, channelID string, limit int) ([]*domain.ScheduledMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ScheduledMessage
	for _, msg := range m.messages {
		if msg.ScopeID == scopeID && (channelID == "" || msg.ChannelID == channelID) {
			cp := *msg
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockTaskRepo) PauseMessage(ctx context.Context, scopeID string, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok || msg.ScopeID != scopeID {
		return false, nil
	}
	msg.Active = false
	return true, nil
}

func (m *mockTaskRepo) ResumeMessage(ctx context.Context, scopeID string, id int64, earliest time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok || msg.ScopeID != scopeID {
		return false, nil
	}
	msg.Active = true
	if msg.DueAt.Before(earliest) {
		msg.DueAt = earliest
	}
	return true, nil
}

func (m *mockTaskRepo) DeleteMessage(ctx context.Context, scopeID string, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok || msg.ScopeID != scopeID {
		return false, nil
	}
	delete(m.messages, id)
	return true, nil
}

func (m *mockTaskRepo) UpsertPurgeRule(ctx context.Context, rule *domain.PurgeRule) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.rules {
		if existing.ChannelID == rule.ChannelID {
			if existing.ScopeID != rule.ScopeID {
				return 0, domain.ErrRuleConflict
			}
			cp := *rule
			cp.ID = id
			cp.Active = true
			cp.LastError = ""
			cp.CreatedBy = existing.CreatedBy
			m.rules[id] = &cp
			return id, nil
		}
	}
	m.nextID++
	cp := *rule
	cp.ID = m.nextID
	m.rules[cp.ID] = &cp
	return cp.ID, nil
}

func (m *mockTaskRepo) ListDuePurgeRules(ctx context.Context, now time.Time, limit int) ([]*domain.PurgeRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var due []*domain.PurgeRule
	for _, r := range m.rules {
		if r.Active && !r.NextRunAt.After(now) {
			cp := *r
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].NextRunAt.Equal(due[j].NextRunAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].NextRunAt.Before(due[j].NextRunAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *mockTaskRepo) AdvancePurgeRule(ctx context.Context, id int64, nextRun time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.NextRunAt = nextRun
	r.LastError = ""
	return nil
}

func (m *mockTaskRepo) RecordPurgeRuleError(ctx context.Context, id int64, nextRun time.Time, errText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.NextRunAt = nextRun
	r.LastError = errText
	return nil
}

func (m *mockTaskRepo) GetPurgeRule(ctx context.Context, scopeID string, id int64) (*domain.PurgeRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok || r.ScopeID != scopeID {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *mockTaskRepo) ListPurgeRules(ctx context.Context, scopeID string, limit int) ([]*domain.PurgeRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.PurgeRule
	for _, r := range m.rules {
		if r.ScopeID == scopeID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockTaskRepo) PausePurgeRule(ctx context.Context, scopeID string, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok || r.ScopeID != scopeID {
		return false, nil
	}
	r.Active = false
	return true, nil
}

func (m *mockTaskRepo) ResumePurgeRule(ctx context.Context, scopeID string, id int64, earliest time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok || r.ScopeID != scopeID {
		return false, nil
	}
	r.Active = true
	if r.NextRunAt.Before(earliest) {
		r.NextRunAt = earliest
	}
	return true, nil
}

func (m *mockTaskRepo) DeletePurgeRule(ctx context.Context, scopeID string, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok || r.ScopeID != scopeID {
		return false, nil
	}
	delete(m.rules, id)
	return true, nil
}

func (m *mockTaskRepo) Close() error {
	return nil
}

func (m *mockTaskRepo) message(id int64) domain.ScheduledMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.messages[id]
}

func (m *mockTaskRepo) rule(id int64) domain.PurgeRule {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rules[id]
}

// ========== Channel Gateway ==========

type mockGateway struct {
	mu sync.Mutex

	missing    map[string]bool // channel ids that fail to resolve
	sendErrs   []error         // consumed one per Send call
	sent       []domain.Payload
	sentTo     []string
	items      []domain.ChannelItem // newest first
	pageErr    error
	pageSizes  []int
	removeErrs map[int]error // by call index
	removed    [][]string
	admins     map[string]bool
	privCalls  map[string]int
}

func newMockGateway() *mockGateway {
	return &mockGateway{
		missing:    make(map[string]bool),
		removeErrs: make(map[int]error),
		admins:     make(map[string]bool),
		privCalls:  make(map[string]int),
	}
}

func (g *mockGateway) ResolveChannel(ctx context.Context, channelID string) (*domain.Channel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.missing[channelID] {
		return nil, domain.ErrChannelNotFound
	}
	return &domain.Channel{ID: channelID, ScopeID: "tenant-1"}, nil
}

func (g *mockGateway) Send(ctx context.Context, ch *domain.Channel, payload domain.Payload) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.sendErrs) > 0 {
		err := g.sendErrs[0]
		g.sendErrs = g.sendErrs[1:]
		if err != nil {
			return err
		}
	}
	g.sent = append(g.sent, payload)
	g.sentTo = append(g.sentTo, ch.ID)
	return nil
}

func (g *mockGateway) PageRecent(ctx context.Context, ch *domain.Channel, limit int, before string) ([]domain.ChannelItem, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pageSizes = append(g.pageSizes, limit)
	if g.pageErr != nil {
		return nil, "", g.pageErr
	}
	start := 0
	if before != "" {
		start, _ = strconv.Atoi(before)
	}
	if start >= len(g.items) {
		return nil, "", nil
	}
	end := start + limit
	if end > len(g.items) {
		end = len(g.items)
	}
	next := ""
	if end < len(g.items) {
		next = strconv.Itoa(end)
	}
	return append([]domain.ChannelItem(nil), g.items[start:end]...), next, nil
}

func (g *mockGateway) BulkRemove(ctx context.Context, ch *domain.Channel, ids []string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(ids) > domain.BulkRemoveLimit {
		return 0, fmt.Errorf("chunk of %d exceeds limit", len(ids))
	}
	call := len(g.removed)
	g.removed = append(g.removed, append([]string(nil), ids...))
	if err := g.removeErrs[call]; err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (g *mockGateway) IsPrivileged(ctx context.Context, ch *domain.Channel, authorID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.privCalls[authorID]++
	if authorID == "ou_broken" {
		return false, errors.New("lookup failed")
	}
	return g.admins[authorID], nil
}

func (g *mockGateway) sendCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sent)
}

// makeItems builds n items newest first, one second apart, starting at newest
func makeItems(n int, newest time.Time) []domain.ChannelItem {
	items := make([]domain.ChannelItem, n)
	for i := range items {
		items[i] = domain.ChannelItem{
			ID:        fmt.Sprintf("om_%03d", i),
			AuthorID:  "ou_user",
			MsgType:   "text",
			CreatedAt: newest.Add(-time.Duration(i) * time.Second),
		}
	}
	return items
}
