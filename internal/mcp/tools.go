package mcp

import (
	"time"

	"github.com/DevRickLin/feishu-task-engine/internal/biz/domain"
)

// ToolDefinition names an MCP tool and tells the agent when to use it
type ToolDefinition struct {
	Name        string
	Description string
}

// Tool names
const (
	ToolScheduleMessage        = "schedule_message"
	ToolListScheduledMessages  = "list_scheduled_messages"
	ToolPauseScheduledMessage  = "pause_scheduled_message"
	ToolResumeScheduledMessage = "resume_scheduled_message"
	ToolRemoveScheduledMessage = "remove_scheduled_message"
	ToolSetPurgeRule           = "set_purge_rule"
	ToolListPurgeRules         = "list_purge_rules"
	ToolPausePurgeRule         = "pause_purge_rule"
	ToolResumePurgeRule        = "resume_purge_rule"
	ToolRemovePurgeRule        = "remove_purge_rule"
	ToolPurgeChannel           = "purge_channel"
)

// GetToolDefinitions returns all available MCP tool definitions
func GetToolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        ToolScheduleMessage,
			Description: "Schedule a message to a Feishu chat. 'when' accepts an offset like '1h30m', 'hh/mm', unix seconds, or a UTC time like '2026-01-02 15:04'. Set 'interval' (e.g. '1d', '2h') to repeat it.",
		},
		{
			Name:        ToolListScheduledMessages,
			Description: "List scheduled messages, newest first. Filter by chat_id to see one chat.",
		},
		{
			Name:        ToolPauseScheduledMessage,
			Description: "Pause a scheduled message so it stops firing. It keeps its schedule.",
		},
		{
			Name:        ToolResumeScheduledMessage,
			Description: "Resume a paused scheduled message. A missed due time is pushed to at least 15 seconds from now.",
		},
		{
			Name:        ToolRemoveScheduledMessage,
			Description: "Delete a scheduled message permanently.",
		},
		{
			Name:        ToolSetPurgeRule,
			Description: "Create or replace the recurring purge rule of a chat. Mode is 'all', 'media' (messages with attachments) or 'nonadmin' (messages from anyone but the owner and managers). Messages older than 14 days are skipped.",
		},
		{
			Name:        ToolListPurgeRules,
			Description: "List purge rules with their next run and last error.",
		},
		{
			Name:        ToolPausePurgeRule,
			Description: "Pause a purge rule.",
		},
		{
			Name:        ToolResumePurgeRule,
			Description: "Resume a paused purge rule.",
		},
		{
			Name:        ToolRemovePurgeRule,
			Description: "Delete a purge rule.",
		},
		{
			Name:        ToolPurgeChannel,
			Description: "Purge a chat once, right now, and report scanned/matched/deleted counts. Use only when the user explicitly asks to clean a chat.",
		},
	}
}

// Description looks up a tool's description by name
func Description(name string) string {
	for _, def := range GetToolDefinitions() {
		if def.Name == name {
			return def.Description
		}
	}
	return ""
}

// ============ Inputs ============

type ScheduleMessageInput struct {
	ChatID   string   `json:"chat_id,omitempty" jsonschema:"target chat; defaults to the current chat"`
	Content  string   `json:"content,omitempty" jsonschema:"message text"`
	Media    []string `json:"media,omitempty" jsonschema:"http(s) URLs to attach; images are uploaded, other files are linked"`
	When     string   `json:"when" jsonschema:"offset like '30m' or '1d2h', unix seconds, or UTC 'YYYY-MM-DD HH:MM'"`
	Interval string   `json:"interval,omitempty" jsonschema:"repeat interval such as '1d' or '2h30m'; omit for a one-shot message"`
}

type ListScheduledMessagesInput struct {
	ChatID string `json:"chat_id,omitempty" jsonschema:"only list messages for this chat"`
}

type ItemInput struct {
	ID int64 `json:"id" jsonschema:"id returned by the list tool"`
}

type SetPurgeRuleInput struct {
	ChatID    string `json:"chat_id,omitempty" jsonschema:"target chat; defaults to the current chat"`
	Mode      string `json:"mode" jsonschema:"'all', 'media' or 'nonadmin'"`
	Every     int64  `json:"every" jsonschema:"how many units between runs"`
	Unit      string `json:"unit" jsonschema:"'minutes', 'hours' or 'days'"`
	ScanLimit int    `json:"scan_limit,omitempty" jsonschema:"recent messages to inspect per run, 1 to 1000 (default 200)"`
}

type PurgeChannelInput struct {
	ChatID    string `json:"chat_id,omitempty" jsonschema:"target chat; defaults to the current chat"`
	Mode      string `json:"mode" jsonschema:"'all', 'media' or 'nonadmin'"`
	ScanLimit int    `json:"scan_limit,omitempty" jsonschema:"recent messages to inspect, 1 to 1000 (default 100)"`
}

// ============ Outputs ============

// MessageView is a scheduled message as shown to the agent
type MessageView struct {
	ID        int64    `json:"id"`
	ChatID    string   `json:"chat_id"`
	Content   string   `json:"content"`
	Media     []string `json:"media,omitempty"`
	DueAt     string   `json:"due_at"` // RFC3339, UTC
	Repeat    string   `json:"repeat"`
	Active    bool     `json:"active"`
	LastError string   `json:"last_error,omitempty"`
}

// RuleView is a purge rule as shown to the agent
type RuleView struct {
	ID        int64  `json:"id"`
	ChatID    string `json:"chat_id"`
	Mode      string `json:"mode"`
	Every     string `json:"every"`
	ScanLimit int    `json:"scan_limit"`
	NextRunAt string `json:"next_run_at"` // RFC3339, UTC
	Active    bool   `json:"active"`
	LastError string `json:"last_error,omitempty"`
}

func messageView(m *domain.ScheduledMessage) MessageView {
	return MessageView{
		ID:        m.ID,
		ChatID:    m.ChannelID,
		Content:   m.Content,
		Media:     m.Media,
		DueAt:     m.DueAt.UTC().Format(time.RFC3339),
		Repeat:    domain.FormatIntervalLabel(m.IntervalSeconds),
		Active:    m.Active,
		LastError: m.LastError,
	}
}

func ruleView(r *domain.PurgeRule) RuleView {
	return RuleView{
		ID:        r.ID,
		ChatID:    r.ChannelID,
		Mode:      string(r.Mode),
		Every:     domain.FormatIntervalLabel(r.IntervalSeconds),
		ScanLimit: r.ScanLimit,
		NextRunAt: r.NextRunAt.UTC().Format(time.RFC3339),
		Active:    r.Active,
		LastError: r.LastError,
	}
}

type MessageOutput struct {
	Message *MessageView `json:"message,omitempty"`
	Error   string       `json:"error,omitempty"`
}

type MessagesOutput struct {
	Messages []MessageView `json:"messages"`
	Error    string        `json:"error,omitempty"`
}

type RuleOutput struct {
	Rule  *RuleView `json:"rule,omitempty"`
	Error string    `json:"error,omitempty"`
}

type RulesOutput struct {
	Rules []RuleView `json:"rules"`
	Error string     `json:"error,omitempty"`
}

type SuccessOutput struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type PurgeOutput struct {
	Result  domain.PurgeResult `json:"result"`
	Summary string             `json:"summary,omitempty"`
	Error   string             `json:"error,omitempty"`
}
