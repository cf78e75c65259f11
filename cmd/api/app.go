package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"memoir-platform/internal/albums"
	"memoir-platform/internal/alerts"
	"memoir-platform/internal/audit"
	"memoir-platform/internal/config"
	"memoir-platform/internal/conversation"
	"memoir-platform/internal/media"
	"memoir-platform/internal/outbox"
	"memoir-platform/internal/resolver"
	"memoir-platform/internal/scheduler"
	"memoir-platform/internal/trials"
	"memoir-platform/internal/webhook"
	"memoir-platform/internal/whatsapp"
	"memoir-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// app holds the wired dependency graph shared by serve and tick.
type app struct {
	cfg config.Config
	log *slog.Logger

	db  *sql.DB
	rdb *redis.Client

	trials       *trials.PostgresRepo
	catalog      albums.Catalog
	views        albums.ViewReader
	trialService *trials.Service
	gateway      whatsapp.Gateway
	outbox       *outbox.Dispatcher
	media        *media.Runner
	conversation *conversation.Service
	scheduler    *scheduler.Scheduler
	processor    *webhook.Processor

	closers []func() error
}

func newApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}
	if err := a.wire(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg, log := a.cfg, a.log

	db, err := utils.OpenPostgres(ctx, cfg.PostgresDSN(), utils.PostgresPoolConfig{MaxOpenConns: cfg.DB.MaxOpenConns})
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, db.Close)

	var locker conversation.Locker
	if addr := cfg.RedisAddr(); addr != "" {
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.rdb = rdb
		a.closers = append(a.closers, rdb.Close)
		locker = conversation.NewRedisLocker(rdb, 0)
	} else {
		log.Warn("REDIS_HOST not set; trial locks are process-local")
		locker = conversation.NewLocalLocker()
	}

	a.trials = trials.NewPostgresRepo(db)
	pgCatalog := albums.NewPostgresCatalog(db)
	a.catalog = pgCatalog
	a.views = pgCatalog
	if cfg.Catalog.File != "" {
		fileCatalog, err := albums.LoadFile(cfg.Catalog.File)
		if err != nil {
			return err
		}
		a.catalog = albums.FallbackCatalog{fileCatalog, pgCatalog}
		// YAML albums have no row to join against.
		a.views = albums.ComposedViews{Trials: a.trials, Catalog: a.catalog}
		log.Info("album catalog file loaded", "path", cfg.Catalog.File, "albums", len(fileCatalog.All()))
	}
	a.trialService = trials.NewService(a.trials, albums.Titles{Catalog: a.catalog})

	msgLog := whatsapp.NewPostgresLog(db)
	client := whatsapp.NewClient(whatsapp.Config{
		BaseURL:       cfg.WhatsApp.APIBaseURL,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		AccessToken:   cfg.WhatsApp.AccessToken,
		Retry:         whatsapp.RetryPolicy{MaxAttempts: cfg.WhatsApp.RetryAttempts, InitialBackoff: cfg.WhatsApp.RetryBackoff},
		Timeout:       cfg.WhatsApp.Timeout,
	}, msgLog, log)
	if cfg.DryRun() {
		log.Warn("WHATSAPP_ACCESS_TOKEN not set; outbound messages are logged, not sent")
		a.gateway = whatsapp.NewMemoryGateway(log)
	} else {
		a.gateway = client
	}

	var storage media.Storage
	if cfg.Storage.GCSBucket != "" {
		gcs, err := media.NewGCS(ctx, cfg.Storage.GCSBucket, cfg.Storage.PublicBaseURL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, gcs.Close)
		storage = gcs
	} else {
		log.Warn("STORAGE_GCS_BUCKET not set; media is kept in memory")
		storage = media.NewMemoryStorage(cfg.App.PublicBaseURL + "/media")
	}
	a.media = media.NewRunner(client, media.FFmpeg{Path: cfg.Media.FFmpegPath}, storage, a.trials, a.gateway, log)
	a.outbox = outbox.NewDispatcher(a.gateway, a.media, log)

	rules := conversation.DefaultRules()
	rules.DueQuestionRetryDelay = cfg.Scheduler.DueRetryDelay
	rules.ReminderAfter = cfg.Scheduler.ReminderAfter
	rules.AlbumURL = cfg.AlbumURL
	a.conversation = conversation.NewService(
		a.trials,
		a.catalog,
		resolver.New(a.trials, cfg.WhatsApp.BusinessNumber, log),
		conversation.NewMachine(rules),
		a.outbox,
		locker,
		log,
	)

	a.scheduler = scheduler.New(scheduler.Config{
		Interval:      cfg.Scheduler.Interval,
		ReminderAfter: cfg.Scheduler.ReminderAfter,
		MaxReminders:  rules.MaxReminders,
	}, a.trials, a.conversation, log)

	a.processor = &webhook.Processor{
		Audit:   audit.NewService(audit.NewPostgresRepo(db)),
		Keys:    webhook.NewPostgresStore(db),
		Inbound: a.conversation,
		Log:     msgLog,
		Alerts:  newNotifier(cfg.Alerts, log),
		L:       log,
	}
	return nil
}

func newNotifier(cfg config.AlertsConfig, log *slog.Logger) alerts.Notifier {
	switch {
	case cfg.SlackBotToken != "":
		return alerts.NewSlackBot(cfg.SlackBotToken, cfg.SlackChannel, log)
	case cfg.SlackWebhookURL != "":
		return alerts.NewSlackWebhook(cfg.SlackWebhookURL, log)
	default:
		return alerts.Nop{}
	}
}

// Close releases connections in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
