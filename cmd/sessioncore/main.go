// Package main provides the CLI entry point for sessioncore, the
// session execution engine spec.md describes: it wires the core
// components (event streams, memory store, tool registry, sandbox
// pool, session store, planner/executor/flow, task runner,
// orchestrator) onto their concrete backends and serves the reference
// HTTP/SSE transport.
//
// Usage:
//
//	sessioncore serve --config sessioncore.yaml
//
// Configuration can also be supplied entirely through environment
// variables; see internal/config.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/flowstack/sessioncore/internal/agentmemory"
	"github.com/flowstack/sessioncore/internal/agentstore"
	"github.com/flowstack/sessioncore/internal/browser"
	"github.com/flowstack/sessioncore/internal/config"
	"github.com/flowstack/sessioncore/internal/eventstream"
	"github.com/flowstack/sessioncore/internal/httpapi"
	"github.com/flowstack/sessioncore/internal/llmclient"
	"github.com/flowstack/sessioncore/internal/observability"
	"github.com/flowstack/sessioncore/internal/orchestrator"
	"github.com/flowstack/sessioncore/internal/sandboxhttp"
	"github.com/flowstack/sessioncore/internal/sandboxpool"
	"github.com/flowstack/sessioncore/internal/sessionstore"
	"github.com/flowstack/sessioncore/internal/taskrunner"
	"github.com/flowstack/sessioncore/internal/toolkit"
)

// Build information, populated by ldflags at build time, matching the
// teacher's cmd/nexus version-injection convention.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "sessioncore",
		Short:   "sessioncore - autonomous agent session execution engine",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	var configPath string
	var debug bool
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sessioncore HTTP/SSE server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML/JSON5 configuration file")
	serveCmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	root.AddCommand(serveCmd)
	return root
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if debug {
		cfg.Observability.LogLevel = "debug"
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})
	logger.Info(ctx, "starting sessioncore", "version", version, "commit", commit)

	if cfg.LLM.APIKey == "" {
		return fmt.Errorf("fatal: missing LLM API key")
	}

	var db *sql.DB
	if cfg.Database.URL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("fatal: open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("fatal: database unreachable: %w", err)
		}
		defer db.Close()
	}

	agents, sessions, memory, streams, err := wireStores(ctx, db)
	if err != nil {
		return err
	}

	llm, err := wireLLM(cfg)
	if err != nil {
		return fmt.Errorf("fatal: %w", err)
	}

	tools := wireTools(cfg)

	sandboxProvisioner := sandboxhttp.NewProvisioner(sandboxhttp.Config{
		AddressTemplate: fmt.Sprintf("http://%s-%%s:8080", sandboxName(cfg)),
	})
	sandboxPool := sandboxpool.New(sandboxProvisioner, cfg.Sandbox.TTL)

	orch := orchestrator.New(orchestrator.Config{
		Agents:             agents,
		Sessions:           sessions,
		Streams:            streams,
		Sandbox:            sandboxPool,
		Memory:             memory,
		LLM:                llm,
		Tools:              tools,
		DefaultModel:       cfg.LLM.DefaultModel,
		DefaultTemperature: cfg.LLM.Temperature,
		DefaultMaxTokens:   cfg.LLM.MaxTokens,
		SandboxClientFor: func(handle *sandboxpool.Handle) taskrunner.SandboxClient {
			return sandboxProvisioner.ClientFor(handle)
		},
	})

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler: httpapi.New(orch, slogFrom(logger)),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Session.ShutdownTimeout)
	defer cancel()

	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "orchestrator shutdown error", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "http server shutdown error", "error", err)
	}
	return nil
}

func wireStores(ctx context.Context, db *sql.DB) (agentstore.Store, sessionstore.Store, agentmemory.Store, eventstream.Factory, error) {
	if db == nil {
		return agentstore.NewMemoryStore(), sessionstore.NewMemoryStore(), agentmemory.NewInMemoryStore(), eventstream.NewMemoryFactory(), nil
	}
	if err := agentstore.EnsureSchema(ctx, db); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("fatal: agent schema: %w", err)
	}
	if err := sessionstore.EnsureSchema(ctx, db); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("fatal: session schema: %w", err)
	}
	if err := agentmemory.EnsureSchema(ctx, db); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("fatal: memory schema: %w", err)
	}
	if err := eventstream.EnsureSchema(ctx, db); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("fatal: event schema: %w", err)
	}
	return agentstore.NewCockroachStore(db),
		sessionstore.NewCockroachStore(db),
		agentmemory.NewCockroachStore(db),
		eventstream.NewCockroachFactory(db),
		nil
}

func wireLLM(cfg *config.Config) (llmclient.Client, error) {
	switch cfg.LLM.Provider {
	case "", "anthropic":
		return llmclient.NewAnthropicClient(llmclient.AnthropicConfig{
			APIKey:       cfg.LLM.APIKey,
			BaseURL:      cfg.LLM.BaseURL,
			DefaultModel: cfg.LLM.DefaultModel,
			MaxRetries:   cfg.Session.MaxRetries,
			RetryDelay:   cfg.Session.RetryInterval,
		})
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.LLM.Provider)
	}
}

func wireTools(cfg *config.Config) *toolkit.Registry {
	registry := toolkit.NewRegistry()
	registry.Register(toolkit.NewShellTool())
	registry.Register(toolkit.NewFileTool(""))
	registry.Register(&toolkit.NotifyUserTool{})
	registry.Register(&toolkit.AskUserTool{})
	if cfg.Search.Enabled {
		registry.Register(toolkit.NewSearchTool(toolkit.SearchConfig{
			Backend:     "brave",
			BraveAPIKey: cfg.Search.APIKey,
		}))
	}
	if cfg.Browser.Enabled {
		pool, err := browser.NewPool(browser.PoolConfig{
			MaxInstances:   cfg.Browser.MaxInstances,
			Timeout:        cfg.Browser.Timeout,
			Headless:       cfg.Browser.Headless,
			ViewportWidth:  cfg.Browser.ViewportWidth,
			ViewportHeight: cfg.Browser.ViewportHeight,
			RemoteURL:      cfg.Browser.RemoteURL,
		})
		if err != nil {
			slog.Error("browser pool unavailable, browser tool disabled", "error", err)
		} else {
			registry.Register(toolkit.NewBrowserTool(pool))
		}
	}
	return registry
}

func sandboxName(cfg *config.Config) string {
	if cfg.Sandbox.Network != "" {
		return cfg.Sandbox.Network
	}
	return "sandbox"
}

// slogFrom adapts observability.Logger onto *slog.Logger for packages
// (like httpapi) that only need the plain stdlib logging interface.
func slogFrom(l *observability.Logger) *slog.Logger {
	return l.Slog()
}
