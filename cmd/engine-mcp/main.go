package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/DevRickLin/feishu-task-engine/internal/conf"
	"github.com/DevRickLin/feishu-task-engine/internal/mcp"
	"github.com/DevRickLin/feishu-task-engine/mcpserver"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// The MCP server speaks over stdio, so everything else goes to stderr.
// Tool calls are relayed to a running "engine serve" through its HTTP API.
func main() {
	cfg, err := conf.Load("")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})).With("component", "MCP")

	if cfg.ScopeID == "" {
		logger.Error("ENGINE_SCOPE_ID is required")
		os.Exit(1)
	}

	client := mcp.NewClient(cfg.API.Addr)
	handler := mcp.NewHandler(client, cfg.ScopeID, cfg.MCP.ChannelID, cfg.MCP.CreatedBy)
	server := mcpserver.NewServer(handler, version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Health(ctx); err != nil {
		logger.Warn("engine API not reachable yet", "addr", cfg.API.Addr, "error", err)
	}

	logger.Info("MCP server starting", "api", cfg.API.Addr, "scope", cfg.ScopeID, "version", version)
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("MCP server stopped", "error", err)
		os.Exit(1)
	}
}
