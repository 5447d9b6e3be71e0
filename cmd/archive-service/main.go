package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"

	"github.com/cuongbtq/genomics-pipeline/internal/archiver"
	"github.com/cuongbtq/genomics-pipeline/internal/bootstrap"
	"github.com/cuongbtq/genomics-pipeline/internal/bus"
	"github.com/cuongbtq/genomics-pipeline/internal/consumer"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := bootstrap.LoadConfig("ARCHIVE_SERVICE_CONFIG_PATH", "configs/archive-service/config.yaml")
	if err != nil {
		return err
	}

	if err := cfg.ValidateArchiveConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting archive service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.Duration("free_access_window", cfg.Archive.FreeAccessWindow),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, dbCloser, err := bootstrap.OpenDatabase(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbCloser.Close()

	jobs, accounts, err := bootstrap.InitStores(ctx, db, appLogger.Logger)
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

	publisher := bus.NewPublisher(bus.NewRabbitSender(rabbitClient), appLogger.Logger)
	cold, stopVault, err := bootstrap.InitColdStore(cfg, awsClients, publisher, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize archive: %w", err)
	}
	defer stopVault()

	loop := consumer.New(
		bootstrap.ConsumerQueue(rabbitClient, cfg, cfg.Queues.ArchiveEligible),
		archiver.New(jobs, accounts, hot, cold, appLogger.Logger),
		bootstrap.ConsumerConfig(&cfg.Poll, "archive"),
		appLogger.Logger,
	)

	errChan := make(chan error, 1)
	go func() {
		if err := loop.Run(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Archive service started successfully")

	select {
	case sig := <-bootstrap.ShutdownSignals():
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Archive consumer error", slog.Any("error", err))
		return err
	}

	appLogger.Info("Archive service shutdown complete")
	return nil
}
