package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"steady/internal/backend"
	"steady/internal/cli"
	"steady/internal/config"
	"steady/internal/digest"
	"steady/internal/log"
	"steady/internal/notify"
	"steady/internal/query"
	gsheet "steady/internal/sheets/google"
)

// backendOverviews restores the store from the durable backend on every
// run, so each digest reflects writes made by other processes.
type backendOverviews struct {
	cfg    *config.Config
	logger *log.Logger
}

func (b backendOverviews) GetOverview(ctx context.Context, asOf time.Time, confidence float64) (query.Overview, error) {
	bc, err := backend.FromAppConfig(b.cfg)
	if err != nil {
		return query.Overview{}, err
	}
	be, err := backend.NewFactory(b.logger.Logger).CreateBackend(ctx, bc)
	if err != nil {
		return query.Overview{}, fmt.Errorf("open backend: %w", err)
	}
	if be.Cleanup != nil {
		defer be.Cleanup()
	}
	svc, err := query.NewService(be.Store, query.FromAppConfig(b.cfg))
	if err != nil {
		return query.Overview{}, fmt.Errorf("query service: %w", err)
	}
	return svc.GetOverview(ctx, asOf, confidence)
}

func main() {
	once := flag.Bool("once", false, "publish one digest and exit")
	flag.Parse()

	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentDigest)

	if cfg.RedisURL == "" {
		logger.Error("REDIS_URL is required for steady-digest")
		os.Exit(1)
	}

	startCtx := context.Background()
	publisher, err := notify.NewRedisPublisher(startCtx, cfg.RedisURL, cfg.DigestChannel)
	if err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	opts := []digest.Option{digest.WithLogger(logger)}
	if cfg.GoogleSpreadsheetID != "" {
		summaries, err := gsheet.NewFromEnv(startCtx)
		if err != nil {
			logger.Warn("Failed to initialize Google Sheets client, summaries disabled", "error", err)
		} else {
			opts = append(opts, digest.WithSummaryWriter(summaries))
		}
	}
	job := digest.NewJob(backendOverviews{cfg: cfg, logger: logger}, publisher, opts...)

	if *once {
		d, err := job.Run(startCtx)
		if err != nil {
			logger.Error("Digest failed", "error", err)
			os.Exit(1)
		}
		logger.Info("Digest complete", "store_version", d.StoreVersion)
		return
	}

	var scheduler *digest.Scheduler
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if scheduler != nil {
			scheduler.Stop()
		}
	})

	scheduler = digest.NewScheduler(ctx, job, logger)
	id, err := scheduler.Schedule(cfg.DigestSchedule)
	if err != nil {
		logger.Error("Invalid digest schedule", "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	logger.Info("Digest scheduler running",
		"schedule", cfg.DigestSchedule,
		"channel", publisher.DigestChannel(),
		"next", scheduler.Next(id))

	cli.WaitForShutdown(ctx, done)
}
