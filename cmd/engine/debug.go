package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/DevRickLin/feishu-task-engine/internal/biz/domain"
)

var (
	sendText     string
	sendMedia    []string
	historyLimit int
)

var sendCmd = &cobra.Command{
	Use:     "send <chat_id>",
	Short:   "Send a message right away, bypassing the store",
	Example: `  engine send oc_xxx --text "hello" --media https://example.com/a.png`,
	Args:    cobra.ExactArgs(1),
	RunE:    runSend,
}

var historyCmd = &cobra.Command{
	Use:   "history <chat_id>",
	Short: "Show the newest messages of a chat as a purge would see them",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	sendCmd.Flags().StringVar(&sendText, "text", "", "message text")
	sendCmd.Flags().StringSliceVar(&sendMedia, "media", nil, "http(s) URL to attach (repeatable)")

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "messages to show (1-1000)")

	rootCmd.AddCommand(sendCmd, historyCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	payload := domain.Payload{
		Text:  strings.TrimSpace(sendText),
		Media: domain.FilterMediaURLs(sendMedia),
	}
	if payload.IsEmpty() {
		return domain.ErrEmptyPayload
	}

	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	ch, err := a.repos.Gateway.ResolveChannel(ctx, args[0])
	if err != nil {
		return err
	}
	if err := a.repos.Gateway.Send(ctx, ch, payload); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s to %s (%s)\n", activeStyle.Render("Sent"), ch.ID, ch.Name)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	ch, err := a.repos.Gateway.ResolveChannel(ctx, args[0])
	if err != nil {
		return err
	}

	limit := domain.ClampScanLimit(historyLimit, 20)
	var items []domain.ChannelItem
	cursor := ""
	for len(items) < limit {
		page, next, err := a.repos.Gateway.PageRecent(ctx, ch, min(limit-len(items), domain.PurgePageLimit), cursor)
		if err != nil {
			return err
		}
		items = append(items, page...)
		if next == "" || len(page) == 0 {
			break
		}
		cursor = next
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%s: newest %d", ch.Name, len(items))))
	now := time.Now()
	for _, item := range items {
		fmt.Fprintln(out, renderItem(item, now))
	}
	return nil
}

func renderItem(item domain.ChannelItem, now time.Time) string {
	age := item.Age(now).Round(time.Minute)
	fields := []string{
		item.ID,
		item.AuthorID,
		item.MsgType,
		age.String() + " ago",
	}
	line := strings.Join(fields, " | ")
	if item.HasAttachments {
		line += " | " + warnStyle.Render("media")
	}
	if item.Age(now) > domain.PurgeAgeLimit {
		line += " | " + mutedStyle.Render("too old to delete")
	}
	return line
}
