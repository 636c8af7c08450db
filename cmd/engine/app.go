package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/DevRickLin/feishu-task-engine/internal/biz"
	"github.com/DevRickLin/feishu-task-engine/internal/biz/domain"
	"github.com/DevRickLin/feishu-task-engine/internal/data"
	"github.com/DevRickLin/feishu-task-engine/internal/infra/feishu"
)

// app is the store, the optional Feishu gateway and the usecases on top
type app struct {
	repos *data.Repositories
	uc    *biz.Usecases
}

// openApp opens the task store. withFeishu also connects the gateway,
// which every command that resolves or touches a chat needs.
func openApp(withFeishu bool) (*app, error) {
	var client *feishu.Client
	if withFeishu {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		client = feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret,
			feishu.WithRateLimit(cfg.Feishu.RPS),
			feishu.WithLogger(logger),
			feishu.WithDebug(cfg.Debug),
		)
	}

	repos, err := data.NewRepositories(client, cfg.Store.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return &app{
		repos: repos,
		uc:    biz.NewUsecases(repos.Task, repos.Gateway, logger),
	}, nil
}

func (a *app) Close() {
	if err := a.repos.Close(); err != nil {
		logger.Warn("failed to close store", "error", err)
	}
}

// scope returns the --scope flag or the configured default
func scope() (string, error) {
	if scopeFlag != "" {
		return scopeFlag, nil
	}
	if cfg.ScopeID != "" {
		return cfg.ScopeID, nil
	}
	return "", &domain.ValidationError{Field: "scope", Message: "pass --scope or set ENGINE_SCOPE_ID"}
}

// scopeFor falls back to the chat's own tenant when no scope is configured
func (a *app) scopeFor(ctx context.Context, channelID string) (string, error) {
	if s, err := scope(); err == nil {
		return s, nil
	}
	ch, err := a.repos.Gateway.ResolveChannel(ctx, channelID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve channel %s: %w", channelID, err)
	}
	return ch.ScopeID, nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &domain.ValidationError{Field: "id", Message: fmt.Sprintf("%q is not a valid id", raw)}
	}
	return id, nil
}
