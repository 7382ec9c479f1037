package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fechamento/internal/amqp"
	"fechamento/internal/closing"
	"fechamento/internal/config"
	apphttp "fechamento/internal/http"
	"fechamento/internal/history"
	applog "fechamento/internal/log"
	"fechamento/internal/rules"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
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

	categorizer, err := rules.FromFile(cfg.RulesFile)
	if err != nil {
		logger.Error("Failed to load categorization rules",
			applog.FieldError, err,
			"path", cfg.RulesFile)
		os.Exit(1)
	}

	// The sync event feed is optional; without a broker closings stay
	// local until the worker's pending sweep picks them up.
	var publisher closing.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()
		publisher = client
		logger.Info("AMQP publisher initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	runner := closing.NewRunner(categorizer, store, publisher)

	srv := apphttp.NewServer(":"+cfg.Port, runner, store, logger)
	srv.ReadTimeout = 30 * time.Second
	srv.WriteTimeout = 60 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		cancel()
	}()

	logger.Info("Starting fechamento server", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
