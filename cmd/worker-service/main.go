package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/genomics-pipeline/internal/api/handler"
	"github.com/cuongbtq/genomics-pipeline/internal/api/router"
	"github.com/cuongbtq/genomics-pipeline/internal/bootstrap"
	"github.com/cuongbtq/genomics-pipeline/internal/bus"
	"github.com/cuongbtq/genomics-pipeline/internal/consumer"
	"github.com/cuongbtq/genomics-pipeline/internal/worker"
)

const defaultShutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := bootstrap.LoadConfig("WORKER_SERVICE_CONFIG_PATH", "configs/worker-service/config.yaml")
	if err != nil {
		return err
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, dbCloser, err := bootstrap.OpenDatabase(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbCloser.Close()

	jobs, _, err := bootstrap.InitStores(ctx, db, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize stores: %w", err)
	}

	rabbitClient, err := bootstrap.InitRabbitMQ(cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	awsClients, err := bootstrap.InitAWS(ctx, cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize AWS: %w", err)
	}

	hot, err := bootstrap.InitHotStore(&cfg.Storage, awsClients, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	annotator, err := worker.NewCommandAnnotator(cfg.Annotator.Command, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize annotator: %w", err)
	}

	publisher := bus.NewPublisher(bus.NewRabbitSender(rabbitClient), appLogger.Logger)

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:    appLogger.Logger,
		Jobs:      jobs,
		Artifacts: hot,
		Annotator: annotator,
		Finalizer: worker.NewFinalizer(jobs, hot, publisher, worker.FinalizerConfig{
			ResultsBucket: cfg.Storage.ResultsBucket,
			KeyPrefix:     cfg.Storage.KeyPrefix,
			ArchiveTopic:  cfg.Topics.ArchiveWait,
		}, appLogger.Logger),
		JobsDir:     cfg.Annotator.JobsDir,
		Concurrency: cfg.Annotator.Concurrency,
		JobTimeout:  cfg.Annotator.JobTimeout,
	})
	workerInstance.Start(ctx)

	loop := consumer.New(
		bootstrap.ConsumerQueue(rabbitClient, cfg, cfg.Queues.JobRequests),
		workerInstance,
		bootstrap.ConsumerConfig(&cfg.Poll, "job-requests"),
		appLogger.Logger,
	)

	errChan := make(chan error, 2)
	go func() {
		if err := loop.Run(ctx); err != nil {
			errChan <- err
		}
	}()

	// Push notifications trigger extra polls when a port is configured
	var srv *http.Server
	if cfg.Server.Port > 0 {
		bootstrap.SetGinMode(cfg.App.Environment)
		srv = bootstrap.NewHTTPServer(&cfg.Server, router.SetupWebhookRouter(&handler.WebhookDependencies{
			Logger:      appLogger.Logger,
			ServiceName: cfg.App.Name,
			Confirmer:   bus.NewConfirmer(nil, appLogger.Logger),
			JobRequests: loop,
		}))
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errChan <- fmt.Errorf("webhook server: %w", err)
			}
		}()
	}

	appLogger.Info("Worker service started successfully")

	select {
	case sig := <-bootstrap.ShutdownSignals():
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		return err
	}

	cancel()

	shutdownTimeout := cfg.Annotator.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Webhook server forced to shutdown", slog.Any("error", err))
		}
	}

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}
