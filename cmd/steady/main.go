package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"steady/internal/amqp"
	"steady/internal/cache"
	"steady/internal/cli"
	"steady/internal/digest"
	apphttp "steady/internal/http"
	"steady/internal/log"
	"steady/internal/middleware/ratelimit"
	"steady/internal/notify"
	"steady/internal/query"
	"steady/internal/services"
	gsheet "steady/internal/sheets/google"
	"steady/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	startCtx := context.Background()
	be := cli.OpenBackend(startCtx, logger, cfg)

	svc, err := query.NewService(be.Store, query.FromAppConfig(cfg))
	if err != nil {
		logger.Error("Invalid engine configuration", "error", err)
		os.Exit(1)
	}
	caches := cache.NewManager()
	for name, c := range svc.Caches() {
		caches.Register(name, c)
	}
	caches.StartCleanup(cfg.CacheTTL)

	ledgerOpts := []services.LedgerOption{services.WithLogger(logger.WithComponent(log.ComponentLedger))}
	serverOpts := []apphttp.ServerOption{
		apphttp.WithLogger(logger.WithComponent(log.ComponentHTTP)),
		apphttp.WithRateLimit(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		apphttp.WithTrustedProxies(cfg.TrustedProxies...),
		apphttp.WithReadinessCheck("backend", apphttp.ReadinessCheck(be.Ping)),
	}

	// Redis is optional: without it there are no change notifications or digests.
	var publisher *notify.RedisPublisher
	if cfg.RedisURL != "" {
		publisher, err = notify.NewRedisPublisher(startCtx, cfg.RedisURL, cfg.DigestChannel)
		if err != nil {
			logger.Warn("Failed to connect to Redis, notifications disabled", "error", err)
			publisher = nil
		} else {
			ledgerOpts = append(ledgerOpts, services.WithNotifier(publisher), services.WithCloser(publisher))
			serverOpts = append(serverOpts, apphttp.WithReadinessCheck("redis", publisher.Ping))
		}
	}

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, HTTP ingestion only", "error", err)
			amqpClient = nil
		} else {
			ledgerOpts = append(ledgerOpts, services.WithCloser(amqpClient))
			serverOpts = append(serverOpts, apphttp.WithReadinessCheck("amqp", func(context.Context) error {
				return amqpClient.Ping()
			}))
		}
	}

	ledger := services.NewLedger(be.Store, ledgerOpts...)

	srv, err := apphttp.NewServer(":"+cfg.Port, svc, ledger, serverOpts...)
	if err != nil {
		logger.Error("Failed to configure HTTP server", "error", err)
		os.Exit(1)
	}

	var sheetSync *services.SheetSyncProcessor
	var summaries *gsheet.Client
	if cfg.GoogleSpreadsheetID != "" {
		summaries, err = gsheet.NewFromEnv(startCtx)
		if err != nil {
			logger.Warn("Failed to initialize Google Sheets client", "error", err)
			summaries = nil
		} else if cfg.SheetSyncInterval > 0 {
			syncCfg := services.DefaultSheetSyncConfig()
			syncCfg.PollInterval = cfg.SheetSyncInterval
			sheetSync = services.NewSheetSyncProcessor(ledger, summaries, syncCfg)
		}
	}

	// The scheduler is built before the shutdown hook so the hook never
	// races with its assignment; runCtx ends digest runs on shutdown.
	runCtx, cancelRuns := context.WithCancel(context.Background())
	var (
		scheduler *digest.Scheduler
		digestID  cron.EntryID
	)
	if publisher != nil {
		opts := []digest.Option{digest.WithLogger(logger.WithComponent(log.ComponentDigest))}
		if summaries != nil {
			opts = append(opts, digest.WithSummaryWriter(summaries))
		}
		scheduler = digest.NewScheduler(runCtx, digest.NewJob(svc, publisher, opts...), logger.WithComponent(log.ComponentDigest))
		if digestID, err = scheduler.Schedule(cfg.DigestSchedule); err != nil {
			logger.Warn("Digest disabled", "error", err)
			scheduler = nil
		}
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		cancelRuns()
		if scheduler != nil {
			scheduler.Stop()
		}
		if sheetSync != nil {
			if err := sheetSync.Stop(shutdownCtx); err != nil {
				logger.Warn("Sheet sync stop error", "error", err)
			}
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		caches.Stop()
		if err := ledger.Close(); err != nil {
			logger.Warn("Ledger close error", "error", err)
		}
		if be.Cleanup != nil {
			if err := be.Cleanup(); err != nil {
				logger.Warn("Backend cleanup error", "error", err)
			}
		}
	})

	if amqpClient != nil {
		consumer := worker.NewIngestWorker(ledger)
		go func() {
			if err := amqpClient.ConsumeWithRetry(ctx, consumer.HandleMessage); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption stopped", "error", err)
			}
		}()
		logger.Info("Consuming earnings periods from AMQP", "queue", cfg.AMQPQueue)
	}

	if sheetSync != nil {
		if err := sheetSync.Start(ctx); err != nil {
			logger.Warn("Failed to start sheet sync", "error", err)
		}
	}

	if scheduler != nil {
		scheduler.Start()
		logger.Info("Digest scheduled", "schedule", cfg.DigestSchedule, "next", scheduler.Next(digestID))
	}

	logger.Info("Starting steady server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"periods", be.Store.Len(),
		"store_version", be.Store.Version())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
