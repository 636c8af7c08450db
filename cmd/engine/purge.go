package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DevRickLin/feishu-task-engine/internal/biz/domain"
)

var (
	purgeMode  string
	purgeLimit int
	purgeEvery int64
	purgeUnit  string
	purgeAfter string
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Purge chats once or on a schedule",
}

var purgeRunCmd = &cobra.Command{
	Use:   "run <chat_id>",
	Short: "Purge a chat now",
	Long: `Purge a chat now.

Mode "all" removes every message, "media" only messages with
attachments, and "nonadmin" messages not sent by the chat owner or a
manager. Messages older than 14 days are skipped.`,
	Example: "  engine purge run oc_xxx --mode media --limit 300",
	Args:    cobra.ExactArgs(1),
	RunE:    runPurgeRun,
}

var purgeSetCmd = &cobra.Command{
	Use:     "set <chat_id>",
	Short:   "Create or replace the auto-purge rule of a chat",
	Example: "  engine purge set oc_xxx --mode nonadmin --every 6 --unit hours",
	Args:    cobra.ExactArgs(1),
	RunE:    runPurgeSet,
}

var purgeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List auto-purge rules",
	Args:  cobra.NoArgs,
	RunE:  runPurgeList,
}

var purgePauseCmd = &cobra.Command{
	Use:   "pause <id>",
	Short: "Pause an auto-purge rule",
	Args:  cobra.ExactArgs(1),
	RunE:  ruleItemRun("Paused", func(a *app) itemFunc { return a.uc.Task.PausePurgeRule }),
}

var purgeResumeCmd = &cobra.Command{
	Use:   "resume <id>",
	Short: "Resume an auto-purge rule",
	Args:  cobra.ExactArgs(1),
	RunE:  ruleItemRun("Resumed", func(a *app) itemFunc { return a.uc.Task.ResumePurgeRule }),
}

var purgeRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Delete an auto-purge rule",
	Args:  cobra.ExactArgs(1),
	RunE:  ruleItemRun("Removed", func(a *app) itemFunc { return a.uc.Task.RemovePurgeRule }),
}

func init() {
	purgeRunCmd.Flags().StringVar(&purgeMode, "mode", "", "all, media or nonadmin")
	purgeRunCmd.Flags().IntVar(&purgeLimit, "limit", domain.DefaultManualScanLimit, "recent messages to inspect (1-1000)")
	_ = purgeRunCmd.MarkFlagRequired("mode")

	purgeSetCmd.Flags().StringVar(&purgeMode, "mode", "", "all, media or nonadmin")
	purgeSetCmd.Flags().Int64Var(&purgeEvery, "every", 1, "units between runs")
	purgeSetCmd.Flags().StringVar(&purgeUnit, "unit", "hours", "seconds, minutes, hours or days")
	purgeSetCmd.Flags().StringVar(&purgeAfter, "interval", "", "interval such as 6h or 1d; overrides --every/--unit")
	purgeSetCmd.Flags().IntVar(&purgeLimit, "limit", domain.DefaultRuleScanLimit, "recent messages to inspect per run (1-1000)")
	_ = purgeSetCmd.MarkFlagRequired("mode")

	purgeCmd.AddCommand(purgeRunCmd, purgeSetCmd, purgeListCmd, purgePauseCmd, purgeResumeCmd, purgeRemoveCmd)
}

func runPurgeRun(cmd *cobra.Command, args []string) error {
	mode, err := domain.ParsePurgeMode(purgeMode)
	if err != nil {
		return err
	}
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.uc.Purge.PurgeChannel(cmd.Context(), args[0], string(mode), purgeLimit)
	if err != nil && result.Scanned == 0 {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderPurgeResult(args[0], mode, result))
	if err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), warnStyle.Render("Some deletions failed: ")+err.Error())
	}
	return nil
}

func runPurgeSet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	channelID := args[0]

	var interval int64
	var err error
	if strings.TrimSpace(purgeAfter) != "" {
		interval, err = domain.ParseInterval(purgeAfter)
	} else {
		interval, err = domain.IntervalFromUnit(purgeEvery, purgeUnit)
	}
	if err != nil {
		return err
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

	rule, err := a.uc.Task.SetPurgeRule(ctx, domain.PurgeRuleInput{
		ScopeID:         scopeID,
		ChannelID:       channelID,
		Mode:            purgeMode,
		IntervalSeconds: interval,
		ScanLimit:       purgeLimit,
		CreatedBy:       "cli",
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), activeStyle.Render("Auto-purge set")+" "+renderRule(rule))
	return nil
}

func runPurgeList(cmd *cobra.Command, args []string) error {
	scopeID, err := scope()
	if err != nil {
		return err
	}
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	rules, err := a.uc.Task.ListPurgeRules(cmd.Context(), scopeID)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderRules(rules))
	return nil
}
