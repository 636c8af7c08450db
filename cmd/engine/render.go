package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/DevRickLin/feishu-task-engine/internal/biz/domain"
)

const (
	previewRunes = 60
	errorRunes   = 40
	timeLayout   = "2006-01-02 15:04 UTC"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	idStyle     = lipgloss.NewStyle().Bold(true)
	activeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func renderMessages(msgs []*domain.ScheduledMessage) string {
	if len(msgs) == 0 {
		return mutedStyle.Render("No scheduled messages found.")
	}
	lines := []string{titleStyle.Render(fmt.Sprintf("Schedules (latest %d)", len(msgs)))}
	for _, m := range msgs {
		lines = append(lines, renderMessage(m))
	}
	return strings.Join(lines, "\n")
}

func renderMessage(m *domain.ScheduledMessage) string {
	status := activeStyle.Render("active")
	if !m.Active {
		status = mutedStyle.Render("paused/done")
	}
	preview := truncate(strings.Join(strings.Fields(m.Content), " "), previewRunes)

	line := strings.Join([]string{
		idStyle.Render(fmt.Sprintf("#%d", m.ID)),
		m.ChannelID,
		m.DueAt.UTC().Format(timeLayout),
		domain.FormatIntervalLabel(m.IntervalSeconds),
		status,
		fmt.Sprintf("media:%d", len(m.Media)),
		fmt.Sprintf("%q", preview),
	}, " | ")
	return line + renderLastError(m.LastError)
}

func renderRules(rules []*domain.PurgeRule) string {
	if len(rules) == 0 {
		return mutedStyle.Render("No auto-purge rules found.")
	}
	lines := []string{titleStyle.Render("Auto-Purge Rules")}
	for _, r := range rules {
		lines = append(lines, renderRule(r))
	}
	return strings.Join(lines, "\n")
}

func renderRule(r *domain.PurgeRule) string {
	status := activeStyle.Render("active")
	if !r.Active {
		status = mutedStyle.Render("paused")
	}
	line := strings.Join([]string{
		idStyle.Render(fmt.Sprintf("#%d", r.ID)),
		r.ChannelID,
		"mode:" + string(r.Mode),
		domain.FormatIntervalLabel(r.IntervalSeconds),
		fmt.Sprintf("scan:%d", r.ScanLimit),
		"next " + r.NextRunAt.UTC().Format(timeLayout),
		status,
	}, " | ")
	return line + renderLastError(r.LastError)
}

func renderPurgeResult(channelID string, mode domain.PurgeMode, res domain.PurgeResult) string {
	return strings.Join([]string{
		titleStyle.Render(fmt.Sprintf("Purge Complete (%s)", mode)),
		"Channel: " + channelID,
		fmt.Sprintf("Scanned: %d", res.Scanned),
		fmt.Sprintf("Matched: %d", res.Matched),
		fmt.Sprintf("Deleted: %d", res.Deleted),
		fmt.Sprintf("Skipped (older than 14 days): %d", res.TooOld),
	}, "\n")
}

func renderScheduled(m *domain.ScheduledMessage, now time.Time) string {
	when := m.DueAt.UTC().Format(timeLayout)
	if d := m.DueAt.Sub(now).Round(time.Second); d > 0 {
		when += fmt.Sprintf(" (in %s)", d)
	}
	return fmt.Sprintf("%s message %s to %s at %s, %s",
		activeStyle.Render("Scheduled"),
		idStyle.Render(fmt.Sprintf("#%d", m.ID)),
		m.ChannelID, when, domain.FormatIntervalLabel(m.IntervalSeconds))
}

func renderLastError(lastError string) string {
	if lastError == "" {
		return ""
	}
	return " | " + errorStyle.Render("err: "+truncate(lastError, errorRunes))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
