package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"auto_responder/internal/config"
	"auto_responder/internal/health"
	"auto_responder/internal/model"
	"auto_responder/internal/responder"
	"auto_responder/internal/session"
	"auto_responder/internal/stats"
	"auto_responder/internal/supervisor"
	"auto_responder/internal/telegram"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log, closeLog, err := newLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		slog.Error("open log file", "path", cfg.LogFile, "error", err)
		os.Exit(1)
	}
	defer closeLog()

	if dir := filepath.Dir(cfg.SessionDB); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create session directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := session.NewSQLite(cfg.SessionDB)
	if err != nil {
		log.Error("open session database", "path", cfg.SessionDB, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	client := telegram.New(telegram.Options{
		Token:       cfg.BotToken(),
		Endpoint:    cfg.APIEndpoint,
		SessionName: cfg.SessionName,
		Store:       store,
		Log:         log.With("component", "telegram"),
	})

	st := stats.New(time.Now())
	engine := responder.New(client, cfg, st, log.With("component", "responder"))
	sup := supervisor.New(client, engine, cfg, st, log.With("component", "supervisor"))
	monitor := health.New(sup, cfg.HealthCheckInterval, log.With("component", "health"))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting auto-responder",
		"session", cfg.SessionName,
		"respond_to", respondTo(cfg.RespondTo),
		"chat_cooldown", cfg.ChatCooldown,
		"user_cooldown", cfg.UserCooldown,
		"max_restart_attempts", cfg.MaxRestartAttempts,
	)

	if keys := cfg.LoginSettings(); len(keys) > 0 {
		log.Info("bot token mode, interactive login settings are ignored", "keys", strings.Join(keys, ","))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sup.Run(gctx)
	})
	g.Go(func() error {
		monitor.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sup.Shutdown()
		return nil
	})

	err = g.Wait()
	if errors.Is(err, model.ErrExhaustedRestarts) {
		log.Error("giving up", "error", err)
		_ = store.Close()
		closeLog()
		os.Exit(1)
	}
	if err != nil {
		log.Error("stopped with error", "error", err)
	}

	log.Info("auto-responder stopped", st.Snapshot().LogAttrs()...)
}

// newLogger writes text logs to stdout and, when file is set, appends them to file.
func newLogger(level, file string) (*slog.Logger, func(), error) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error", "critical":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	closeFn := func() {}
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", file, err)
		}
		out = io.MultiWriter(os.Stdout, f)
		closeFn = func() { _ = f.Close() }
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl})), closeFn, nil
}

func respondTo(set model.TriggerSet) string {
	var names []string
	for _, t := range model.TriggerPriority {
		if set.Enabled(t) {
			names = append(names, string(t))
		}
	}
	return strings.Join(names, ",")
}
