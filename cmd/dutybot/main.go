// Command dutybot runs the moderated workflow engine: the Telegram listener,
// the ops HTTP surface and the violation recorder, wired over sqlite and an
// optional Redis rate-window backend.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/sync/errgroup"

	"dutybot/internal/audit"
	"dutybot/internal/catalog"
	"dutybot/internal/conversation"
	"dutybot/internal/engine"
	"dutybot/internal/moderation"
	"dutybot/internal/notify"
	"dutybot/internal/ops"
	"dutybot/internal/platform/config"
	"dutybot/internal/platform/logger"
	"dutybot/internal/platform/metrics"
	platformredis "dutybot/internal/platform/redis"
	"dutybot/internal/profile"
	"dutybot/internal/ratelimit"
	"dutybot/internal/storage/sqlite"
	"dutybot/internal/transport/telegram"
)

func main() {
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return err
	}
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	cat, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	m := metrics.New()
	auditor := audit.NewService(store, audit.WithLogger(log))

	recorder := ratelimit.NewAsyncRecorder(store, 256, log)

	windows, err := rateWindows(cfg, log)
	if err != nil {
		return err
	}
	limiter := ratelimit.New(windows, map[ratelimit.Kind]ratelimit.Config{
		ratelimit.KindMessage: {Limit: cfg.MessageLimit, Window: cfg.MessageWindow, MinInterval: cfg.MessageMinInterval},
		ratelimit.KindAction:  {Limit: cfg.ActionLimit, Window: cfg.ActionWindow, MinInterval: cfg.ActionMinInterval},
	}, ratelimit.WithLogger(log), ratelimit.WithViolationRecorder(recorder))

	bot, err := telegram.NewBot(cfg.BotToken, cfg.GroupChatID, log)
	if err != nil {
		return err
	}

	nextID, err := store.MaxRequestID(ctx)
	if err != nil {
		return err
	}
	ledger := moderation.NewMemoryLedgerFrom(nextID + 1)
	workflow := moderation.NewWorkflow(ledger, store, bot, bot, auditor,
		moderation.Config{
			Reviewers:          cfg.ReviewerIDs,
			Warnings:           notify.Surface{ChatID: cfg.ReportsChatID, TopicID: cfg.WarningsTopicID},
			Leave:              notify.Surface{ChatID: cfg.ReportsChatID, TopicID: cfg.LeaveTopicID},
			FallbackInviteLink: cfg.FallbackInviteLink,
		},
		moderation.WithLogger(log), moderation.WithMetrics(m),
	)

	machine := conversation.NewMachine(conversation.NewMemoryStore(), cat,
		conversation.WithLogger(log))
	profiles := profile.NewService(store, profile.WithLogger(log))

	eng := engine.New(limiter, machine, workflow, profiles, auditor, bot,
		engine.Config{Reviewers: cfg.ReviewerIDs, WarnCooldown: cfg.WarnCooldown},
		engine.WithLogger(log), engine.WithMetrics(m),
	)

	listener := telegram.NewListener(bot, eng, log)
	opsServer := ops.NewServer(cfg.OpsAddr, eng, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return listener.Run(ctx) })
	g.Go(func() error { return opsServer.Run(ctx) })
	g.Go(func() error { return recorder.Run(ctx) })
	return g.Wait()
}

func loadCatalog(cfg config.Config) (*catalog.Catalog, error) {
	if cfg.CatalogPath != "" {
		return catalog.Load(cfg.CatalogPath)
	}
	return catalog.Default()
}

// rateWindows picks the window backend: Redis when configured, otherwise the
// in-process store.
func rateWindows(cfg config.Config, log *slog.Logger) (ratelimit.WindowStore, error) {
	client, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	if client == nil {
		log.Info("rate windows in memory")
		return ratelimit.NewMemoryWindows(), nil
	}
	log.Info("rate windows in redis")
	return ratelimit.NewRedisWindows(client.Client), nil
}
