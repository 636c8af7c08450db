package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type itemFunc func(ctx context.Context, scopeID string, id int64) error

// scheduleItemRun builds a RunE for the pause/resume/remove commands,
// which only need the store.
func scheduleItemRun(verb string, pick func(*app) itemFunc) func(*cobra.Command, []string) error {
	return itemRun(verb, "message", pick)
}

func ruleItemRun(verb string, pick func(*app) itemFunc) func(*cobra.Command, []string) error {
	return itemRun(verb, "purge rule", pick)
}

func itemRun(verb, noun string, pick func(*app) itemFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		scopeID, err := scope()
		if err != nil {
			return err
		}
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := pick(a)(cmd.Context(), scopeID, id); err != nil {
			return fmt.Errorf("%s #%d: %w", noun, id, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", activeStyle.Render(verb), noun, idStyle.Render(fmt.Sprintf("#%d", id)))
		return nil
	}
}
