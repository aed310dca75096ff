package main

import (
	"context"
	"errors"
	"os"
	"time"

	"steady/internal/amqp"
	"steady/internal/cli"
	"steady/internal/log"
	"steady/internal/notify"
	"steady/internal/services"
	"steady/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)

	logger.Info("Starting steady-worker")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for steady-worker")
		os.Exit(1)
	}

	startCtx := context.Background()
	be := cli.OpenBackend(startCtx, logger, cfg)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}

	ledgerOpts := []services.LedgerOption{
		services.WithLogger(logger.WithComponent(log.ComponentLedger)),
		services.WithCloser(amqpClient),
	}
	if cfg.RedisURL != "" {
		publisher, err := notify.NewRedisPublisher(startCtx, cfg.RedisURL, cfg.DigestChannel)
		if err != nil {
			logger.Warn("Failed to connect to Redis, change notifications disabled", "error", err)
		} else {
			ledgerOpts = append(ledgerOpts, services.WithNotifier(publisher), services.WithCloser(publisher))
		}
	}
	ledger := services.NewLedger(be.Store, ledgerOpts...)
	consumer := worker.NewIngestWorker(ledger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if err := ledger.Close(); err != nil {
			logger.Warn("Ledger close error", "error", err)
		}
		if be.Cleanup != nil {
			if err := be.Cleanup(); err != nil {
				logger.Warn("Backend cleanup error", "error", err)
			}
		}
	})

	logger.Info("Consuming earnings periods",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue,
		"periods", be.Store.Len())
	if err := amqpClient.ConsumeWithRetry(ctx, consumer.HandleMessage); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
