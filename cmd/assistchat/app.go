package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"AssistChat/internal/completion"
	"AssistChat/internal/config"
	"AssistChat/internal/controller"
	"AssistChat/internal/session"
	"AssistChat/internal/storage"
	"AssistChat/internal/telemetry"
)

// app holds everything a command needs to drive the conversation
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *storage.SQLite
	client *completion.Client
	ctl    *controller.Controller

	closers []func()
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}

	logger, logFile, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger
	a.closers = append(a.closers, func() { closeQuietly(logFile) })

	tracer, meter, cleanup, err := telemetry.InitTelemetry(ctx, cfg.LogDir)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	var kv session.KV
	if cfg.Storage.Memory {
		kv = storage.NewMemory()
		logger.Info("using in-memory chat history")
	} else {
		db, err := storage.Open(cfg.Storage.DBPath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.db = db
		a.closers = append(a.closers, func() { closeQuietly(db) })
		kv = db
	}

	if cfg.Debug {
		logger.Info("Debug mode enabled")
	}

	a.client = completion.NewClient(cfg.Provider, completion.Options{
		Logger: logger,
		Tracer: tracer,
		Meter:  meter,
	})
	if a.client.DemoMode() {
		logger.Warn("AI_API_KEY not set, replies come from demo mode")
	}

	store := session.NewStore(kv, cfg.Storage.HistoryKey, logger)
	a.ctl = controller.New(store, a.client, logger)
	logger.Info("conversation loaded", "message_count", len(a.ctl.Messages()))
	return a, nil
}

// Close releases resources in reverse order of acquisition
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// applyFlags lets explicitly set flags win over the environment.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Storage.DBPath = dbPath
	}
	if flags.Changed("log-dir") {
		cfg.LogDir = logDir
	}
	if flags.Changed("debug") {
		cfg.Debug = debug
	}
	if flags.Changed("memory") {
		cfg.Storage.Memory = memoryOnly
	}
	if flags.Lookup("addr") != nil && flags.Changed("addr") {
		cfg.Server.Addr = listenAddr
	}
	if flags.Lookup("static") != nil && flags.Changed("static") {
		cfg.Server.StaticDir = staticDir
	}
	return cfg.Normalize()
}

func closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil {
		slog.Error("failed to close resource", "error", err)
	}
}
