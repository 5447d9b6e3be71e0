package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/cuongbtq/genomics-pipeline/internal/api/handler"
	"github.com/cuongbtq/genomics-pipeline/internal/api/router"
	"github.com/cuongbtq/genomics-pipeline/internal/bootstrap"
	"github.com/cuongbtq/genomics-pipeline/internal/bus"
	"github.com/cuongbtq/genomics-pipeline/internal/submitter"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := bootstrap.LoadConfig("API_SERVICE_CONFIG_PATH", "configs/api-service/config.yaml")
	if err != nil {
		return err
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	ctx := context.Background()

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

	bootstrap.SetGinMode(cfg.App.Environment)
	r := router.SetupRouter(&handler.Dependencies{
		Logger:       appLogger.Logger,
		ServiceName:  cfg.App.Name,
		Jobs:         jobs,
		Submitter:    submitter.New(jobs, publisher, cfg.Topics.JobRequests, appLogger.Logger),
		Accounts:     accounts,
		Artifacts:    hot,
		Publisher:    publisher,
		UpgradeTopic: cfg.Topics.UserUpgrades,
	})

	srv := bootstrap.NewHTTPServer(&cfg.Server, r)

	appLogger.Info("Starting HTTP server",
		slog.String("address", srv.Addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	<-bootstrap.ShutdownSignals()

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}
