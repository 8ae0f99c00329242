package main

import (
	"context"
	"errors"
	"os"
	"time"

	"ledger/internal/cache"
	"ledger/internal/cli"
	"ledger/internal/log"
	"ledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		log.New(log.DefaultConfig()).ErrorContext(context.Background(), "Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg.LogLevel, log.ComponentWorker)
	logger.InfoContext(context.Background(), "Starting ledger-worker", "backend", cfg.DataBackend)

	if cfg.AMQPURL == "" {
		logger.ErrorContext(context.Background(), "AMQP_URL is required for the worker")
		os.Exit(1)
	}

	session, err := cli.OpenSession(context.Background(), cfg)
	if err != nil {
		logger.ErrorContext(context.Background(), "Failed to open ledger", log.FieldError, err)
		os.Exit(1)
	}
	if session.Backend.AMQP == nil {
		session.Close()
		logger.ErrorContext(context.Background(), "AMQP broker unreachable")
		os.Exit(1)
	}
	if session.Records == nil {
		logger.InfoContext(context.Background(), "Sheet imports disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	caches := cache.NewManager()
	caches.Register("provision", session.Provision.Cache())

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, func() {
		caches.Stop()
		if err := session.Close(); err != nil {
			logger.ErrorContext(context.Background(), "Failed to close ledger", log.FieldError, err)
		}
	})
	caches.StartCleanup(ctx, cfg.ProvisionCacheTTL)

	w := worker.NewImportWorker(session.Previewer, session.Executor, session.Records, logger)
	err = session.Backend.AMQP.ConsumeImportJobs(ctx, w.HandleImportJob)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.ErrorContext(ctx, "Message consumption failed", log.FieldError, err)
		caches.Stop()
		session.Close()
		os.Exit(1)
	}

	<-done
	logger.InfoContext(context.Background(), "ledger-worker stopped")
}
