package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"memoir-platform/internal/auth"
	"memoir-platform/internal/database"
	"memoir-platform/internal/httpapi"
	"memoir-platform/internal/webhook"
	"memoir-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var migrateFirst bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, webhook receiver and scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), migrateFirst)
		},
	}
	cmd.Flags().BoolVar(&migrateFirst, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func runServe(parent context.Context, migrateFirst bool) error {
	if parent == nil {
		parent = context.Background()
	}
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if migrateFirst {
		v, err := database.Migrate(cfg.PostgresDSN())
		if err != nil {
			return err
		}
		log.Info("migrations applied", "version", v)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return err
	}

	a, err := newApp(rootCtx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	// Background work outlives requests but not the drain deadline.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(rootCtx))
	defer cancelWork()

	hooks := webhook.NewHandler(workCtx, a.processor, cfg.WhatsApp.VerifyToken, cfg.WhatsApp.AppSecret)
	r := newRouter(log, routeDeps{
		Auth: authManager,
		API: httpapi.Handlers{
			Trials:         a.trialService,
			Repo:           a.trials,
			Notes:          a.trials,
			Views:          a.views,
			Outbox:         a.outbox,
			BusinessNumber: cfg.WhatsApp.BusinessNumber,
		},
		Webhook: hooks,
		Health: httpapi.Health(func(c *gin.Context) error {
			return utils.HealthCheck(c.Request.Context(), a.db, 2*time.Second)
		}, log),
		CORSOrigins: cfg.App.CORSOrigins,
	})

	if cfg.Scheduler.Enabled {
		if err := a.scheduler.Start(workCtx); err != nil {
			return err
		}
		log.Info("scheduler started", "interval", cfg.Scheduler.Interval.String())
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "dry_run", cfg.DryRun())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	select {
	case <-a.scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn("scheduler tick still running at shutdown")
	}
	if err := hooks.Wait(shutdownCtx); err != nil {
		log.Warn("webhook drain incomplete", "err", err)
	}
	if err := a.media.Wait(shutdownCtx); err != nil {
		log.Warn("media drain incomplete", "err", err)
	}
	cancelWork()

	return nil
}
