package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/DevRickLin/feishu-task-engine/internal/conf"
)

var (
	configPath string
	debugFlag  bool
	scopeFlag  string

	cfg    *conf.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "engine",
	Short:         "Scheduled messages and purge rules for Feishu chats",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := conf.Load(configPath)
		if err != nil {
			return err
		}
		if debugFlag {
			loaded.Debug = true
		}
		cfg = loaded
		logger = newLogger(cfg.Debug)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $ENGINE_CONFIG or configs/engine.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&scopeFlag, "scope", "", "tenant scope (default $ENGINE_SCOPE_ID)")

	rootCmd.AddCommand(serveCmd, scheduleCmd, purgeCmd)
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: ")+err.Error())
		os.Exit(1)
	}
}
