package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"
	"github.com/jkaninda/pyguard-terminal/internal/config"
	"github.com/jkaninda/pyguard-terminal/internal/gateway"
	"github.com/jkaninda/pyguard-terminal/internal/gateway/httpapi"
	"github.com/jkaninda/pyguard-terminal/internal/gateway/ws"
	"github.com/jkaninda/pyguard-terminal/internal/observability"
	"github.com/jkaninda/pyguard-terminal/internal/patterns"
	"github.com/jkaninda/pyguard-terminal/internal/ratelimit"
	"github.com/jkaninda/pyguard-terminal/internal/scheduler"
	"github.com/jkaninda/pyguard-terminal/internal/security"
	"github.com/jkaninda/pyguard-terminal/internal/storage"
	sqlitestore "github.com/jkaninda/pyguard-terminal/internal/storage/sqlite"
	"github.com/jkaninda/pyguard-terminal/internal/terminal"
	"github.com/jkaninda/pyguard-terminal/internal/validator"
	"github.com/jkaninda/pyguard-terminal/internal/workspace"
)

var (
	serveConfigPath string
	servePort       string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the terminal gateway server",
	RunE:  runServe,
}

func init() {
	// Register flags on both root and serve so that
	// `pyguard-terminal --config path` and `pyguard-terminal serve --config path` both work.
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&serveConfigPath, "config", config.DefaultConfigPath(), "path to config file")
		cmd.Flags().StringVar(&servePort, "port", "", "override HTTP listen port (e.g. :8080)")
	}
}

// runServe wires the admission gate, rate limiter, validator, executor,
// history store and gateways together and blocks until shutdown.
func runServe(_ *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	configPath := goutils.Env("PYGUARD_CONFIG", serveConfigPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		logger.Info("no config file found, using defaults", slog.String("path", configPath))
		cfg = config.Default()
	}

	// Apply CLI overrides.
	if servePort != "" {
		cfg.Server.ListenAddr = servePort
	}

	logger.Info("starting pyguard terminal",
		slog.String("addr", cfg.Server.Addr()),
		slog.String("ws_path", cfg.Server.TerminalPath()),
	)

	// Runtime directories. The workspace supplies defaults; explicit config
	// paths win.
	if cfg.SandboxRoot == "" || cfg.DataDir == "" {
		wsp, err := workspace.Default()
		if err != nil {
			return err
		}
		if err := wsp.EnsureAll(); err != nil {
			return err
		}
		if cfg.SandboxRoot == "" {
			cfg.SandboxRoot = wsp.SandboxDir()
		}
		if cfg.DataDir == "" {
			cfg.DataDir = wsp.DataDir()
		}
	}
	sandboxRoot := cfg.ResolvedSandboxRoot()
	if err := os.MkdirAll(sandboxRoot, 0750); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.ResolvedDataDir(), 0750); err != nil {
		return err
	}

	if !cfg.CredentialConfigured() {
		logger.Warn("credential not set, pyguard fix/analyze will be refused",
			slog.String("env", cfg.Executor.Credential()),
		)
	}

	// Observability.
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return err
	}
	defer func() {
		if obs != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			obs.Shutdown(shutdownCtx)
		}
	}()
	metrics := obs.MetricsOrNil()

	var healthCfg *config.HealthConfig
	if cfg.Observability != nil {
		healthCfg = cfg.Observability.Health
	}
	if obs != nil && obs.Health != nil && healthCfg.SandboxCheck() {
		obs.Health.AddCheck("sandbox-dir", observability.DirCheck(sandboxRoot))
	}

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Command admission.
	gate := security.NewGate(cfg.Security.ExtraAllowedCommands...)
	var admission ws.Gate = gate
	if metrics != nil {
		admission = observability.NewInstrumentedGate(gate, metrics, obs.TracerOrNil())
	}

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		MaxCommands: cfg.RateLimit.Max(),
		Window:      cfg.RateLimit.Window(),
	})

	// Static Python validation (optional).
	var hook *validator.Hook
	if cfg.Validator.IsEnabled() {
		db := patterns.Open(cfg.Validator.Patterns(), logger)
		var cv validator.CodeValidator = validator.New(db, logger)
		if metrics != nil {
			cv = observability.NewInstrumentedValidator(cv, metrics, obs.TracerOrNil())
		}
		hook = validator.NewHook(cv, sandboxRoot, cfg.Executor.Entry(), logger)
		logger.Debug("validator enabled", slog.String("patterns", cfg.Validator.Patterns()))
	}

	// Executor.
	exec := terminal.NewExecutor(terminal.Config{
		SandboxRoot:   sandboxRoot,
		CLIName:       cfg.Executor.CLI(),
		Interpreter:   cfg.Executor.Python(),
		Entrypoint:    cfg.Executor.Entry(),
		CredentialEnv: cfg.Executor.Credential(),
		Timeout:       cfg.Executor.Timeout(),
		KillGrace:     cfg.Executor.KillGrace(),
	}, hook, logger)
	var runner ws.Runner = exec
	if metrics != nil {
		runner = observability.NewInstrumentedRunner(exec, metrics, obs.TracerOrNil())
	}

	// Command history (optional).
	var historyStore storage.HistoryStore
	var historyCfg config.HistoryConfig
	if cfg.History != nil && cfg.History.Enabled {
		historyCfg = *cfg.History
		store, err := sqlitestore.Open(sqlitestore.Config{
			Path:        cfg.HistoryPath(),
			JournalMode: cfg.History.Journal(),
		}, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("closing history store", slog.String("error", err.Error()))
			}
		}()
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		historyStore = store
		logger.Debug("command history enabled", slog.String("path", cfg.HistoryPath()))

		if obs != nil && obs.Health != nil && healthCfg.DBCheck() {
			obs.Health.AddCheck("history-db", func(ctx context.Context) error {
				_, err := store.Count(ctx)
				return err
			})
		}
	}

	// Background maintenance (history retention, idle limiter pruning).
	var schedMetrics *scheduler.Metrics
	if metrics != nil {
		schedMetrics = scheduler.NewMetrics(metrics.Registry)
	}
	maint := scheduler.New(historyCfg, historyStore, limiter, schedMetrics, logger)
	if err := maint.Start(ctx); err != nil {
		return err
	}
	defer maint.Stop()

	// Terminal WebSocket server.
	var wsMetrics ws.Metrics
	if metrics != nil {
		wsMetrics = metrics
	}
	wsServer := ws.NewServer(admission, limiter, runner, historyStore, wsMetrics, cfg.Server.AllowedOrigins, logger)

	// HTTP gateway.
	httpCfg := httpapi.Config{
		ListenAddr:     cfg.Server.Addr(),
		Version:        version,
		TerminalPath:   cfg.Server.TerminalPath(),
		EnableDocs:     cfg.Server.EnableDocs,
		MaxRequestSize: cfg.Server.MaxRequestSize(),
	}
	if obs != nil {
		httpCfg.Metrics = metrics
		httpCfg.HealthChecker = obs.Health
		if metrics != nil {
			httpCfg.MetricsRegistry = metrics.Registry
		}
		if obs.Tracer != nil {
			httpCfg.Tracer = obs.Tracer.Tracer()
		}
		if cfg.Observability != nil && cfg.Observability.Metrics != nil {
			httpCfg.MetricsPath = cfg.Observability.Metrics.Path
		}
	}
	httpGW := httpapi.NewGateway(httpCfg, cfg.CredentialConfigured, wsServer, logger)
	httpGW.WithHandler(cfg.Server.TerminalPath(), wsServer.Handler())
	var gw gateway.Gateway = httpGW

	// Run until signal or server error.
	errs := make(chan error, 1)
	go func() {
		errs <- gw.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			logger.Error("gateway exited with error", slog.String("error", err.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gw.Stop(shutdownCtx); err != nil {
		logger.Error("stopping gateway", slog.String("error", err.Error()))
	}

	return nil
}
