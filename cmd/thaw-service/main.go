package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/genomics-pipeline/internal/api/handler"
	"github.com/cuongbtq/genomics-pipeline/internal/api/router"
	"github.com/cuongbtq/genomics-pipeline/internal/bootstrap"
	"github.com/cuongbtq/genomics-pipeline/internal/bus"
	"github.com/cuongbtq/genomics-pipeline/internal/consumer"
	"github.com/cuongbtq/genomics-pipeline/internal/restorer"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := bootstrap.LoadConfig("THAW_SERVICE_CONFIG_PATH", "configs/thaw-service/config.yaml")
	if err != nil {
		return err
	}

	if err := cfg.ValidateThawConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting thaw service",
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

	publisher := bus.NewPublisher(bus.NewRabbitSender(rabbitClient), appLogger.Logger)
	cold, stopVault, err := bootstrap.InitColdStore(cfg, awsClients, publisher, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize archive: %w", err)
	}
	defer stopVault()

	completer := restorer.NewCompleter(jobs, hot, cold, restorer.CompleterConfig{
		ResultsBucket: cfg.Storage.ResultsBucket,
		KeyPrefix:     cfg.Storage.KeyPrefix,
	}, appLogger.Logger)

	upgrades := consumer.New(
		bootstrap.ConsumerQueue(rabbitClient, cfg, cfg.Queues.UserUpgrades),
		restorer.NewInitiator(jobs, cold, appLogger.Logger),
		bootstrap.ConsumerConfig(&cfg.Poll, "thaw"),
		appLogger.Logger,
	)
	restores := consumer.New(
		bootstrap.ConsumerQueue(rabbitClient, cfg, cfg.Queues.ArchiveRetrieved),
		completer,
		bootstrap.ConsumerConfig(&cfg.Poll, "restore"),
		appLogger.Logger,
	)

	errChan := make(chan error, 3)
	for _, loop := range []*consumer.Loop{upgrades, restores} {
		go func() {
			if err := loop.Run(ctx); err != nil {
				errChan <- err
			}
		}()
	}

	// Retrieval completions may also be pushed to /restore
	bootstrap.SetGinMode(cfg.App.Environment)
	srv := bootstrap.NewHTTPServer(&cfg.Server, router.SetupWebhookRouter(&handler.WebhookDependencies{
		Logger:      appLogger.Logger,
		ServiceName: cfg.App.Name,
		Confirmer:   bus.NewConfirmer(nil, appLogger.Logger),
		Restores:    restores,
		Completer:   completer,
	}))
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("webhook server: %w", err)
		}
	}()

	appLogger.Info("Thaw service started successfully",
		slog.String("address", srv.Addr),
	)

	select {
	case sig := <-bootstrap.ShutdownSignals():
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Thaw service error", slog.Any("error", err))
		return err
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", slog.Any("error", err))
		return err
	}

	appLogger.Info("Thaw service shutdown complete")
	return nil
}
