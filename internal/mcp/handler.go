package mcp

import (
	"context"
	"fmt"

	"github.com/DevRickLin/feishu-task-engine/internal/biz/domain"
)

// Handler serves MCP tool calls through the engine API client.
// Every call is made on behalf of one scope (the tenant), and chat_id
// falls back to the chat the agent was started for.
type Handler struct {
	client    *Client
	scopeID   string
	channelID string
	createdBy string
}

// NewHandler creates a new MCP handler
func NewHandler(client *Client, scopeID, channelID, createdBy string) *Handler {
	return &Handler{
		client:    client,
		scopeID:   scopeID,
		channelID: channelID,
		createdBy: createdBy,
	}
}

func (h *Handler) chat(chatID string) string {
	if chatID != "" {
		return chatID
	}
	return h.channelID
}

// ============ Scheduled Message Tools ============

func (h *Handler) ScheduleMessage(ctx context.Context, in ScheduleMessageInput) MessageOutput {
	msg, err := h.client.ScheduleMessage(ctx, ScheduleRequest{
		ScopeID:   h.scopeID,
		ChannelID: h.chat(in.ChatID),
		Content:   in.Content,
		Media:     in.Media,
		When:      in.When,
		Interval:  in.Interval,
		CreatedBy: h.createdBy,
	})
	if err != nil {
		return MessageOutput{Error: err.Error()}
	}
	view := messageView(msg)
	return MessageOutput{Message: &view}
}

func (h *Handler) ListScheduledMessages(ctx context.Context, in ListScheduledMessagesInput) MessagesOutput {
	msgs, err := h.client.ListMessages(ctx, h.scopeID, in.ChatID)
	out := MessagesOutput{Messages: make([]MessageView, 0, len(msgs))}
	if err != nil {
		out.Error = err.Error()
		return out
	}
	for i := range msgs {
		out.Messages = append(out.Messages, messageView(&msgs[i]))
	}
	return out
}

func (h *Handler) PauseScheduledMessage(ctx context.Context, in ItemInput) SuccessOutput {
	return success(h.client.PauseMessage(ctx, h.scopeID, in.ID))
}

func (h *Handler) ResumeScheduledMessage(ctx context.Context, in ItemInput) SuccessOutput {
	return success(h.client.ResumeMessage(ctx, h.scopeID, in.ID))
}

func (h *Handler) RemoveScheduledMessage(ctx context.Context, in ItemInput) SuccessOutput {
	return success(h.client.RemoveMessage(ctx, h.scopeID, in.ID))
}

// ============ Purge Tools ============

func (h *Handler) SetPurgeRule(ctx context.Context, in SetPurgeRuleInput) RuleOutput {
	rule, err := h.client.SetPurgeRule(ctx, PurgeRuleRequest{
		ScopeID:   h.scopeID,
		ChannelID: h.chat(in.ChatID),
		Mode:      in.Mode,
		Every:     in.Every,
		Unit:      in.Unit,
		ScanLimit: in.ScanLimit,
		CreatedBy: h.createdBy,
	})
	if err != nil {
		return RuleOutput{Error: err.Error()}
	}
	view := ruleView(rule)
	return RuleOutput{Rule: &view}
}

func (h *Handler) ListPurgeRules(ctx context.Context, _ struct{}) RulesOutput {
	rules, err := h.client.ListPurgeRules(ctx, h.scopeID)
	out := RulesOutput{Rules: make([]RuleView, 0, len(rules))}
	if err != nil {
		out.Error = err.Error()
		return out
	}
	for i := range rules {
		out.Rules = append(out.Rules, ruleView(&rules[i]))
	}
	return out
}

func (h *Handler) PausePurgeRule(ctx context.Context, in ItemInput) SuccessOutput {
	return success(h.client.PausePurgeRule(ctx, h.scopeID, in.ID))
}

func (h *Handler) ResumePurgeRule(ctx context.Context, in ItemInput) SuccessOutput {
	return success(h.client.ResumePurgeRule(ctx, h.scopeID, in.ID))
}

func (h *Handler) RemovePurgeRule(ctx context.Context, in ItemInput) SuccessOutput {
	return success(h.client.RemovePurgeRule(ctx, h.scopeID, in.ID))
}

func (h *Handler) PurgeChannel(ctx context.Context, in PurgeChannelInput) PurgeOutput {
	resp, err := h.client.RunPurge(ctx, PurgeRunRequest{
		ScopeID:   h.scopeID,
		ChannelID: h.chat(in.ChatID),
		Mode:      in.Mode,
		ScanLimit: in.ScanLimit,
	})
	if err != nil {
		return PurgeOutput{Error: err.Error()}
	}
	return PurgeOutput{
		Result:  resp.Result,
		Summary: summarize(resp.Result),
		Error:   resp.Error,
	}
}

func summarize(r domain.PurgeResult) string {
	s := fmt.Sprintf("Scanned %d, matched %d, deleted %d.", r.Scanned, r.Matched, r.Deleted)
	if r.TooOld > 0 {
		s += fmt.Sprintf(" Skipped %d (older than 14 days).", r.TooOld)
	}
	return s
}

func success(err error) SuccessOutput {
	if err != nil {
		return SuccessOutput{Error: err.Error()}
	}
	return SuccessOutput{Success: true}
}
