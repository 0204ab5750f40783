package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/api/option"

	"github.com/sheethub/sheethub/internal/core"
	"github.com/sheethub/sheethub/internal/db"
	httpsvr "github.com/sheethub/sheethub/internal/http"
	mcpsvr "github.com/sheethub/sheethub/internal/mcp"
	"github.com/sheethub/sheethub/internal/spreadsheet"
	"github.com/sheethub/sheethub/internal/tools"
)

var (
	version   = ""
	gitCommit = ""
	buildTime = ""
)

func main() {
	cfg, err := core.LoadConfig(os.Getenv)
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	// stdout carries protocol frames in stdio mode.
	var logOut io.Writer = os.Stdout
	if cfg.Transport == core.TransportStdio {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{Level: cfg.LogLevel}))
	logger.Info("profile loaded", "profile", cfg.Profile.Name, "read_only", cfg.Profile.ReadOnly)

	key, err := spreadsheet.ParseServiceAccountKey(cfg.ServiceAccountKey)
	if err != nil {
		logger.Error("service account key invalid", "err", err)
		os.Exit(1)
	}
	scopes := []string{spreadsheet.ScopeSpreadsheets, spreadsheet.ScopeDriveReadOnly}
	if cfg.Profile.ReadOnly {
		scopes = []string{spreadsheet.ScopeSpreadsheetsReadOnly, spreadsheet.ScopeDriveReadOnly}
	}
	tokenSource, err := spreadsheet.NewTokenSource(key, scopes)
	if err != nil {
		logger.Error("token source init failed", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	client, err := spreadsheet.NewGoogleClient(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		logger.Error("sheets client init failed", "err", err)
		os.Exit(1)
	}

	var audit *core.AuditService
	if cfg.AuditEnabled() {
		database, err := db.New(cfg.AuditDatabaseDriver, cfg.AuditDatabaseURL)
		if err != nil {
			logger.Error("database connection failed", "driver", cfg.AuditDatabaseDriver, "err", err)
			os.Exit(1)
		}
		defer database.Close()
		audit = core.NewAuditService(database)
	}

	policy := core.NewPolicy(cfg.SpreadsheetAllowlist, cfg.ToolAllowlist, cfg.Profile.ReadOnly)
	registry := tools.NewRegistry()
	invoker := tools.NewInvoker(registry, client, policy, audit, logger)
	dispatcher := mcpsvr.NewDispatcher(invoker, mcpsvr.ServerInfo{Name: "sheethub", Version: versionOrDev()}, logger)

	logger.Info("effective config",
		"profile", cfg.Profile.Name,
		"transport", cfg.Transport,
		"http_listen", cfg.HTTPListen,
		"mcp_listen", cfg.MCPListen,
		"service_account", key.ClientEmail,
		"tools", registry.Len(),
		"allowed_tools", policy.AllowedTools(),
		"audit_enabled", cfg.AuditEnabled(),
		"log_level", cfg.LogLevel.String(),
	)

	if cfg.Transport == core.TransportStdio {
		runStdio(dispatcher, logger)
		return
	}

	httpServer := httpsvr.NewServer(cfg.HTTPListen, dispatcher, audit, cfg.CORSAllowedOrigin, logger, httpsvr.BuildInfo{
		Version:   version,
		GitCommit: gitCommit,
		BuildTime: buildTime,
	})
	var streamServer *mcpsvr.StreamServer
	if cfg.MCPListen != "" {
		streamServer = mcpsvr.NewStreamServer(cfg.MCPListen, dispatcher, logger)
	}

	errCh := make(chan error, 2)
	go func() { errCh <- httpServer.ListenAndServe() }()
	if streamServer != nil {
		go func() { errCh <- streamServer.ListenAndServe() }()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	httpServer.Shutdown(shutdownCtx)
	if streamServer != nil {
		streamServer.Shutdown(shutdownCtx)
	}
	logger.Info("shutdown complete")
}

func runStdio(dispatcher *mcpsvr.Dispatcher, logger *slog.Logger) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stream := mcpsvr.NewStreamServer("", dispatcher, logger)
	done := make(chan error, 1)
	go func() { done <- stream.Serve(ctx, os.Stdin, os.Stdout) }()
	logger.Info("stdio transport ready")

	select {
	case <-ctx.Done():
		logger.Info("shutting down", "reason", "signal")
	case err := <-done:
		if err != nil {
			logger.Error("stdio transport failed", "err", err)
			os.Exit(1)
		}
		logger.Info("stdin closed, exiting")
	}
}

func versionOrDev() string {
	if version == "" {
		return "dev"
	}
	return version
}
