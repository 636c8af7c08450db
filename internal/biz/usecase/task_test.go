package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DevRickLin/feishu-task-engine/internal/biz/domain"
)

func newTestTaskUsecase() (*TaskUsecase, *mockTaskRepo, *mockGateway, *fakeClock) {
	repo := newMockTaskRepo()
	gw := newMockGateway()
	clock := newFakeClock(t0)
	return NewTaskUsecase(repo, gw, clock), repo, gw, clock
}

func TestTaskUsecase_ScheduleMessage(t *testing.T) {
	uc, repo, _, clock := newTestTaskUsecase()

	msg, err := uc.ScheduleMessage(context.Background(), domain.ScheduledMessageInput{
		ScopeID:         "tenant-1",
		ChannelID:       "oc_chat",
		Content:         "  daily report  ",
		Media:           []string{"https://example.com/a.png", "ftp://nope"},
		DueAt:           clock.Now().Add(time.Minute),
		IntervalSeconds: 3600,
		CreatedBy:       "ou_alice",
	})
	if err != nil {
		t.Fatalf("ScheduleMessage failed: %v", err)
	}
	if msg.ID == 0 {
		t.Error("Expected id to be assigned")
	}

	stored := repo.message(msg.ID)
	if stored.Content != "daily report" {
		t.Errorf("Expected trimmed content, got %q", stored.Content)
	}
	if len(stored.Media) != 1 {
		t.Errorf("Expected 1 media url kept, got %d", len(stored.Media))
	}
	if !stored.Active {
		t.Error("Expected new message to be active")
	}
}

func TestTaskUsecase_ScheduleMessageRejects(t *testing.T) {
	uc, _, gw, clock := newTestTaskUsecase()
	gw.missing["oc_gone"] = true
	ctx := context.Background()

	tests := []struct {
		name string
		in   domain.ScheduledMessageInput
		want error
	}{
		{
			name: "empty payload",
			in:   domain.ScheduledMessageInput{ScopeID: "s", ChannelID: "oc_chat", Content: " ", DueAt: clock.Now().Add(time.Hour)},
			want: domain.ErrEmptyPayload,
		},
		{
			name: "missing channel",
			in:   domain.ScheduledMessageInput{ScopeID: "s", ChannelID: "oc_gone", Content: "x", DueAt: clock.Now().Add(time.Hour)},
			want: domain.ErrChannelNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := uc.ScheduleMessage(ctx, tt.in); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	_, err := uc.ScheduleMessage(ctx, domain.ScheduledMessageInput{
		ScopeID: "s", ChannelID: "oc_chat", Content: "x", DueAt: clock.Now().Add(3 * time.Second),
	})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Field != "due_at" {
		t.Errorf("Expected due_at validation error, got %v", err)
	}
}

func TestTaskUsecase_ResumeNeverFiresImmediately(t *testing.T) {
	uc, repo, _, clock := newTestTaskUsecase()
	ctx := context.Background()

	id := seedMessage(t, repo, domain.ScheduledMessage{Content: "x", DueAt: time.Unix(t0-3600, 0)})
	if err := uc.PauseMessage(ctx, "tenant-1", id); err != nil {
		t.Fatalf("PauseMessage failed: %v", err)
	}
	if repo.message(id).Active {
		t.Error("Expected paused message to be inactive")
	}

	if err := uc.ResumeMessage(ctx, "tenant-1", id); err != nil {
		t.Fatalf("ResumeMessage failed: %v", err)
	}
	got := repo.message(id)
	if !got.Active {
		t.Error("Expected resumed message to be active")
	}
	if got.DueAt.Before(clock.Now().Add(domain.ResumeGrace)) {
		t.Errorf("Expected due at least %v from now, got %v", domain.ResumeGrace, got.DueAt.Sub(clock.Now()))
	}
}

func TestTaskUsecase_ScopeIsolation(t *testing.T) {
	uc, repo, _, _ := newTestTaskUsecase()
	ctx := context.Background()

	id := seedMessage(t, repo, domain.ScheduledMessage{Content: "x", DueAt: time.Unix(t0+60, 0)})

	if err := uc.PauseMessage(ctx, "tenant-2", id); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound across scopes, got %v", err)
	}
	if err := uc.RemoveMessage(ctx, "tenant-2", id); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound across scopes, got %v", err)
	}
	if err := uc.RemoveMessage(ctx, "tenant-1", 9999); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown id, got %v", err)
	}

	var verr *domain.ValidationError
	if err := uc.PauseMessage(ctx, " ", id); !errors.As(err, &verr) {
		t.Errorf("Expected validation error for blank scope, got %v", err)
	}

	if err := uc.RemoveMessage(ctx, "tenant-1", id); err != nil {
		t.Fatalf("RemoveMessage failed: %v", err)
	}
	list, _ := uc.ListMessages(ctx, "tenant-1", "")
	if len(list) != 0 {
		t.Errorf("Expected empty list after remove, got %d", len(list))
	}
}

func TestTaskUsecase_ListMessagesFiltersChannel(t *testing.T) {
	uc, repo, _, _ := newTestTaskUsecase()
	ctx := context.Background()

	seedMessage(t, repo, domain.ScheduledMessage{Content: "a", ChannelID: "oc_a", DueAt: time.Unix(t0+60, 0)})
	seedMessage(t, repo, domain.ScheduledMessage{Content: "b", ChannelID: "oc_b", DueAt: time.Unix(t0+60, 0)})
	seedMessage(t, repo, domain.ScheduledMessage{Content: "c", ChannelID: "oc_a", DueAt: time.Unix(t0+60, 0)})

	list, err := uc.ListMessages(ctx, "tenant-1", "oc_a")
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(list))
	}
	if list[0].Content != "c" {
		t.Errorf("Expected newest first, got %q", list[0].Content)
	}
}

func TestTaskUsecase_SetPurgeRuleIsUpsert(t *testing.T) {
	uc, repo, _, clock := newTestTaskUsecase()
	ctx := context.Background()

	first, err := uc.SetPurgeRule(ctx, domain.PurgeRuleInput{
		ScopeID: "tenant-1", ChannelID: "oc_chat", Mode: "media", IntervalSeconds: 600,
	})
	if err != nil {
		t.Fatalf("SetPurgeRule failed: %v", err)
	}
	if first.ScanLimit != domain.DefaultRuleScanLimit {
		t.Errorf("Expected default scan limit %d, got %d", domain.DefaultRuleScanLimit, first.ScanLimit)
	}
	if first.NextRunAt.Unix() != clock.Now().Unix()+600 {
		t.Errorf("Expected first run one interval out, got %d", first.NextRunAt.Unix())
	}

	repo.PausePurgeRule(ctx, "tenant-1", first.ID)

	second, err := uc.SetPurgeRule(ctx, domain.PurgeRuleInput{
		ScopeID: "tenant-1", ChannelID: "oc_chat", Mode: "all", IntervalSeconds: 60, ScanLimit: 5000,
	})
	if err != nil {
		t.Fatalf("SetPurgeRule failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("Expected same rule id %d, got %d", first.ID, second.ID)
	}

	rules, _ := uc.ListPurgeRules(ctx, "tenant-1")
	if len(rules) != 1 {
		t.Fatalf("Expected 1 rule per channel, got %d", len(rules))
	}
	r := rules[0]
	if r.Mode != domain.PurgeModeAll || r.ScanLimit != domain.MaxScanLimit || !r.Active {
		t.Errorf("Expected replaced active rule with clamped scan limit, got %+v", r)
	}
}

func TestTaskUsecase_SetPurgeRuleStaysInScope(t *testing.T) {
	uc, _, _, _ := newTestTaskUsecase()
	ctx := context.Background()

	first, err := uc.SetPurgeRule(ctx, domain.PurgeRuleInput{
		ScopeID: "tenantA", ChannelID: "oc_chat", Mode: "media", IntervalSeconds: 600,
	})
	if err != nil {
		t.Fatalf("SetPurgeRule failed: %v", err)
	}

	_, err = uc.SetPurgeRule(ctx, domain.PurgeRuleInput{
		ScopeID: "tenantB", ChannelID: "oc_chat", Mode: "all", IntervalSeconds: 60,
	})
	if !errors.Is(err, domain.ErrRuleConflict) {
		t.Fatalf("Expected ErrRuleConflict, got %v", err)
	}

	rules, _ := uc.ListPurgeRules(ctx, "tenantA")
	if len(rules) != 1 || rules[0].ID != first.ID || rules[0].Mode != domain.PurgeModeMedia {
		t.Errorf("Expected tenantA's media rule untouched, got %+v", rules)
	}
	if rules, _ := uc.ListPurgeRules(ctx, "tenantB"); len(rules) != 0 {
		t.Errorf("Expected no rules for tenantB, got %d", len(rules))
	}
}

func TestTaskUsecase_SetPurgeRuleRejects(t *testing.T) {
	uc, _, _, _ := newTestTaskUsecase()
	ctx := context.Background()

	tests := []struct {
		name  string
		in    domain.PurgeRuleInput
		field string
	}{
		{"bad mode", domain.PurgeRuleInput{ScopeID: "s", ChannelID: "oc", Mode: "bots", IntervalSeconds: 60}, "mode"},
		{"too frequent", domain.PurgeRuleInput{ScopeID: "s", ChannelID: "oc", Mode: "all", IntervalSeconds: 4}, "interval_seconds"},
		{"too rare", domain.PurgeRuleInput{ScopeID: "s", ChannelID: "oc", Mode: "all", IntervalSeconds: 31 * 24 * 3600}, "interval_seconds"},
		{"no channel", domain.PurgeRuleInput{ScopeID: "s", Mode: "all", IntervalSeconds: 60}, "channel_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := uc.SetPurgeRule(ctx, tt.in)
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected validation error, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Expected field %s, got %s", tt.field, verr.Field)
			}
		})
	}
}

func TestTaskUsecase_PurgeRuleLifecycle(t *testing.T) {
	uc, repo, _, clock := newTestTaskUsecase()
	ctx := context.Background()

	id := seedRule(t, repo, "oc_chat", t0-100)

	if err := uc.PausePurgeRule(ctx, "tenant-1", id); err != nil {
		t.Fatalf("PausePurgeRule failed: %v", err)
	}
	due, _ := repo.ListDuePurgeRules(ctx, clock.Now(), 10)
	if len(due) != 0 {
		t.Errorf("Expected paused rule not to be due, got %d", len(due))
	}

	if err := uc.ResumePurgeRule(ctx, "tenant-1", id); err != nil {
		t.Fatalf("ResumePurgeRule failed: %v", err)
	}
	if repo.rule(id).NextRunAt.Before(clock.Now().Add(domain.ResumeGrace)) {
		t.Error("Expected resumed rule not to run immediately")
	}

	if err := uc.RemovePurgeRule(ctx, "tenant-1", id); err != nil {
		t.Fatalf("RemovePurgeRule failed: %v", err)
	}
	if err := uc.RemovePurgeRule(ctx, "tenant-1", id); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second remove, got %v", err)
	}
}
