package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"fechamento/internal/amqp"
	"fechamento/internal/config"
	"fechamento/internal/drive"
	"fechamento/internal/history"
	applog "fechamento/internal/log"
	"fechamento/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	logger.Info("Starting fechamento-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	if !cfg.DriveEnabled() {
		logger.Error("Google Drive credentials missing - the worker has nothing to archive to")
		os.Exit(1)
	}

	store, err := history.NewStore(cfg.SQLiteDBPath, cfg.ReportsDir)
	if err != nil {
		logger.Error("Failed to initialize history store",
			applog.FieldError, err,
			"path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	archive, err := drive.NewFromConfig(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize Drive client", applog.FieldError, err)
		os.Exit(1)
	}

	syncWorker := worker.NewSyncWorker(store, archive, cfg.SyncBatchSize, logger)

	// Catch up on anything persisted while the worker was down.
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Startup sync check failed", applog.FieldError, err)
	}

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()
	} else {
		logger.Info("AMQP disabled - relying on the periodic pending sweep only")
	}

	g, ctx := errgroup.WithContext(ctx)

	if amqpClient != nil {
		g.Go(func() error {
			err := amqpClient.ConsumeClosingSync(ctx, func(msg *amqp.ClosingSyncMessage) error {
				return syncWorker.HandleSyncMessage(ctx, msg)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	// Periodic sweep for closings whose sync message was lost.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := syncWorker.ProcessPendingClosings(ctx); err != nil {
					logger.Error("Periodic sync failed", applog.FieldError, err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
