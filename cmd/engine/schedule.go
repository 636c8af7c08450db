package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/DevRickLin/feishu-task-engine/internal/biz/domain"
)

var (
	scheduleWhen  string
	scheduleEvery string
	scheduleText  string
	scheduleMedia []string
	scheduleChat  string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage scheduled messages",
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add <chat_id>",
	Short: "Schedule a message",
	Long: `Schedule a message to a chat.

--when accepts an offset such as "1h30m", "hh/mm" or "dd/hh/mm", unix
seconds, or a UTC time such as "2026-01-02 15:04". --every repeats the
message, e.g. "1d".`,
	Example: `  engine schedule add oc_xxx --when 10m --text "standup in 5"
  engine schedule add oc_xxx --when "2026-01-05 09:00" --every 1d --text "morning" --media https://example.com/a.png`,
	Args: cobra.ExactArgs(1),
	RunE: runScheduleAdd,
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled messages, newest first",
	Args:  cobra.NoArgs,
	RunE:  runScheduleList,
}

var schedulePauseCmd = &cobra.Command{
	Use:   "pause <id>",
	Short: "Pause a scheduled message",
	Args:  cobra.ExactArgs(1),
	RunE:  scheduleItemRun("Paused", func(a *app) itemFunc { return a.uc.Task.PauseMessage }),
}

var scheduleResumeCmd = &cobra.Command{
	Use:   "resume <id>",
	Short: "Resume a paused message",
	Args:  cobra.ExactArgs(1),
	RunE:  scheduleItemRun("Resumed", func(a *app) itemFunc { return a.uc.Task.ResumeMessage }),
}

var scheduleRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Delete a scheduled message",
	Args:  cobra.ExactArgs(1),
	RunE:  scheduleItemRun("Removed", func(a *app) itemFunc { return a.uc.Task.RemoveMessage }),
}

func init() {
	scheduleAddCmd.Flags().StringVar(&scheduleWhen, "when", "", "when to send")
	_ = scheduleAddCmd.MarkFlagRequired("when")
	scheduleAddCmd.Flags().StringVar(&scheduleEvery, "every", "", "repeat interval; empty sends once")
	scheduleAddCmd.Flags().StringVar(&scheduleText, "text", "", "message text")
	scheduleAddCmd.Flags().StringSliceVar(&scheduleMedia, "media", nil, "http(s) URL to attach (repeatable)")

	scheduleListCmd.Flags().StringVar(&scheduleChat, "chat", "", "only list messages for this chat")

	scheduleCmd.AddCommand(scheduleAddCmd, scheduleListCmd, schedulePauseCmd, scheduleResumeCmd, scheduleRemoveCmd)
}

func runScheduleAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	channelID := args[0]

	now := time.Now()
	due, err := domain.ParseScheduleTime(scheduleWhen, now)
	if err != nil {
		return err
	}
	var interval int64
	if strings.TrimSpace(scheduleEvery) != "" {
		if interval, err = domain.ParseInterval(scheduleEvery); err != nil {
			return err
		}
	}

	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	scopeID, err := a.scopeFor(ctx, channelID)
	if err != nil {
		return err
	}

	msg, err := a.uc.Task.ScheduleMessage(ctx, domain.ScheduledMessageInput{
		ScopeID:         scopeID,
		ChannelID:       channelID,
		Content:         scheduleText,
		Media:           scheduleMedia,
		DueAt:           due,
		IntervalSeconds: interval,
		CreatedBy:       "cli",
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderScheduled(msg, now))
	return nil
}

func runScheduleList(cmd *cobra.Command, args []string) error {
	scopeID, err := scope()
	if err != nil {
		return err
	}
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	msgs, err := a.uc.Task.ListMessages(cmd.Context(), scopeID, scheduleChat)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderMessages(msgs))
	return nil
}
