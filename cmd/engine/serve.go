package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/DevRickLin/feishu-task-engine/internal/api"
	"github.com/DevRickLin/feishu-task-engine/internal/service"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and the HTTP API",
	Long: `Run the scheduler and the HTTP API until interrupted.

Only one engine may serve a database at a time; a lock file next to
the database enforces this on the local host.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(filepath.Dir(cfg.LockPath()), 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", cfg.LockPath(), err)
	}
	if !locked {
		return fmt.Errorf("another engine is already serving %s", cfg.Store.DBPath)
	}
	defer lock.Unlock()

	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := service.NewScheduler(a.uc.Dispatch, a.uc.Purge, cfg.PollInterval(), logger)
	apiServer := api.NewServer(a.uc.Task, a.uc.Purge, cfg.API.Addr, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return apiServer.Start()
	})

	g.Go(func() error {
		if err := scheduler.Start(gctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		<-gctx.Done()
		scheduler.Stop()
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return apiServer.Stop(shutdownCtx)
	})

	logger.Info("engine running",
		"db", cfg.Store.DBPath,
		"api", cfg.API.Addr,
		"poll", cfg.PollInterval().String(),
	)
	return g.Wait()
}
