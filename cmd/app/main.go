package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"media-generation-jobs/internal/config"
	"media-generation-jobs/internal/domain/model"
	"media-generation-jobs/internal/infra/bus"
	pg "media-generation-jobs/internal/infra/db/postgres"
	"media-generation-jobs/internal/infra/logging"
	"media-generation-jobs/internal/infra/metrics"
	"media-generation-jobs/internal/infra/provider"
	red "media-generation-jobs/internal/infra/redis"
	"media-generation-jobs/internal/infra/sched"
	"media-generation-jobs/internal/infra/web"
	"media-generation-jobs/internal/infra/worker"
	"media-generation-jobs/internal/usecase"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	tm := pg.NewTxManager(pool)
	jobRepo := pg.NewJobRepo(pool)
	ledger := pg.NewLedgerRepo(pool)

	// ---- Redis (submission throttling) ----
	var limiter usecase.SubmissionLimiter
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		limiter = red.NewRateLimiter(redisClient, cfg.Jobs.RateLimit, cfg.Jobs.RateWindow)
	}

	// ---- NATS change notifier ----
	notifier, err := bus.Connect(cfg.NATS.URL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("nats")
	}
	defer notifier.Close()

	// ---- Provider ----
	queue, err := provider.NewQueueClient(cfg.Provider.Name, cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Provider.Timeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("provider")
	}
	signer, err := provider.NewCallbackSigner(cfg.Webhook.Secret, cfg.Server.BaseURL, cfg.Webhook.TokenTTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("callback signer")
	}

	// ---- Use cases ----
	tools := model.DefaultToolRegistry()
	submitUC := usecase.NewSubmitUseCase(jobRepo, ledger, tm, tools, queue, signer, notifier, limiter, logger)
	reconcileUC := usecase.NewReconcileUseCase(jobRepo, tm, notifier, logger)
	jobsUC := usecase.NewJobsUseCase(jobRepo, notifier, logger)

	// ---- Background workers ----
	dispatcher := worker.NewPool(cfg.Jobs.Workers, logger)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	reaper := sched.NewReaper(cfg.Jobs.ReapInterval, cfg.Jobs.ReapAfter, reconcileUC, logger)
	if reaper.Enabled() {
		go func() { _ = reaper.Run(ctx) }()
	}

	// ---- HTTP ----
	server := web.NewServer(submitUC, jobsUC, reconcileUC, signer, dispatcher, logger)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info().Int("port", cfg.Server.Port).Str("provider", queue.Name()).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
