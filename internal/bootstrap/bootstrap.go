// Package bootstrap wires configuration into the clients and stores every
// service starts with.
package bootstrap

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/genomics-pipeline/internal/account"
	"github.com/cuongbtq/genomics-pipeline/internal/artifact"
	"github.com/cuongbtq/genomics-pipeline/internal/bus"
	"github.com/cuongbtq/genomics-pipeline/internal/config"
	"github.com/cuongbtq/genomics-pipeline/internal/consumer"
	"github.com/cuongbtq/genomics-pipeline/internal/jobstore"
	"github.com/cuongbtq/genomics-pipeline/shared/awsclient"
	"github.com/cuongbtq/genomics-pipeline/shared/logger"
	"github.com/cuongbtq/genomics-pipeline/shared/postgresql"
	"github.com/cuongbtq/genomics-pipeline/shared/rabbitmq"
	"github.com/cuongbtq/genomics-pipeline/shared/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
)

// LoadConfig loads .env, then the YAML file named by -config, envVar or
// fallback, in that order
func LoadConfig(envVar, fallback string) (*config.Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv(envVar)
	if defaultConfigPath == "" {
		defaultConfigPath = fallback
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// InitLogger initializes and configures the application logger
func InitLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// OpenDatabase connects to the configured job store database
func OpenDatabase(cfg *config.DatabaseConfig, logger *slog.Logger) (*sqlx.DB, io.Closer, error) {
	if cfg.Driver == config.DriverSQLite {
		client, err := sqlite.NewClient(cfg.Path, logger)
		if err != nil {
			return nil, nil, err
		}
		return client.GetDB(), client, nil
	}

	client, err := postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return client.GetDB(), client, nil
}

// InitStores creates the job and account stores and their tables
func InitStores(ctx context.Context, db *sqlx.DB, logger *slog.Logger) (*jobstore.Store, *account.Store, error) {
	jobs := jobstore.NewStore(db, logger)
	if err := jobs.EnsureSchema(ctx); err != nil {
		return nil, nil, err
	}

	accounts := account.NewStore(db, logger)
	if err := accounts.EnsureSchema(ctx); err != nil {
		return nil, nil, err
	}

	return jobs, accounts, nil
}

// Queues lists every queue of the pipeline. Each service declares all of
// them so a publisher never routes to a topic whose queue does not exist yet.
func Queues(cfg *config.Config) []rabbitmq.QueueConfig {
	dlq := func(name string) string { return name + cfg.Queues.DeadLetterSuffix }

	var queues []rabbitmq.QueueConfig
	add := func(q rabbitmq.QueueConfig) {
		if q.Name != "" && len(q.RoutingKeys) > 0 && q.RoutingKeys[0] != "" {
			if q.DeadLetterQueue != "" {
				q.RetryQueue = RetryQueue(cfg, q.Name)
				q.RetryDelay = cfg.Poll.RetryDelay
			}
			queues = append(queues, q)
		}
	}

	add(rabbitmq.QueueConfig{
		Name:            cfg.Queues.JobRequests,
		RoutingKeys:     []string{cfg.Topics.JobRequests},
		Durable:         true,
		DeadLetterQueue: dlq(cfg.Queues.JobRequests),
	})
	// Archival requests wait out the free access window, then move on to
	// the archive-eligible topic
	add(rabbitmq.QueueConfig{
		Name:        cfg.Queues.ArchiveWait,
		RoutingKeys: []string{cfg.Topics.ArchiveWait},
		Durable:     true,
		MessageTTL:  cfg.Archive.FreeAccessWindow,
		ForwardTo:   cfg.Topics.ArchiveEligible,
	})
	add(rabbitmq.QueueConfig{
		Name:            cfg.Queues.ArchiveEligible,
		RoutingKeys:     []string{cfg.Topics.ArchiveEligible},
		Durable:         true,
		DeadLetterQueue: dlq(cfg.Queues.ArchiveEligible),
	})
	add(rabbitmq.QueueConfig{
		Name:            cfg.Queues.UserUpgrades,
		RoutingKeys:     []string{cfg.Topics.UserUpgrades},
		Durable:         true,
		DeadLetterQueue: dlq(cfg.Queues.UserUpgrades),
	})
	add(rabbitmq.QueueConfig{
		Name:            cfg.Queues.ArchiveRetrieved,
		RoutingKeys:     []string{cfg.Topics.ArchiveRetrieved},
		Durable:         true,
		DeadLetterQueue: dlq(cfg.Queues.ArchiveRetrieved),
	})

	return queues
}

// RetryQueue names the queue that holds released messages of queue
func RetryQueue(cfg *config.Config, queue string) string {
	return queue + cfg.Queues.RetrySuffix
}

// ConsumerQueue opens a consumer queue whose released messages wait out
// the configured retry delay
func ConsumerQueue(client *rabbitmq.Client, cfg *config.Config, queue string) *bus.RabbitQueue {
	return bus.NewRabbitQueue(client, queue, RetryQueue(cfg, queue))
}

// InitRabbitMQ connects to RabbitMQ and declares every pipeline queue
func InitRabbitMQ(cfg *config.Config, logger *slog.Logger) (*rabbitmq.Client, error) {
	rc := cfg.RabbitMQ
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               rc.Host,
		Port:               rc.Port,
		User:               rc.User,
		Password:           rc.Password,
		VHost:              rc.VHost,
		ExchangeName:       rc.Exchange.Name,
		ExchangeType:       rc.Exchange.Type,
		ExchangeDurable:    rc.Exchange.Durable,
		ExchangeAutoDelete: rc.Exchange.AutoDelete,
		Queues:             Queues(cfg),
		RetryAttempts:      rc.Connection.RetryAttempts,
		RetryInterval:      rc.Connection.RetryInterval,
		Heartbeat:          rc.Connection.Heartbeat,
		PublishRetries:     rc.Publish.RetryAttempts,
		PublishRetryDelay:  rc.Publish.RetryInterval,
		PublishBackoffMult: rc.Publish.BackoffMultiplier,
	}, logger)
}

// InitAWS creates AWS clients when a storage driver needs them; otherwise
// it returns nil
func InitAWS(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*awsclient.Clients, error) {
	if cfg.Storage.Driver != config.DriverS3 && cfg.Archive.Driver != config.DriverGlacier {
		return nil, nil
	}
	return awsclient.New(ctx, awsclient.Config{
		Region:   cfg.AWS.Region,
		Endpoint: cfg.AWS.Endpoint,
	}, logger)
}

// InitHotStore creates the configured hot tier
func InitHotStore(cfg *config.StorageConfig, clients *awsclient.Clients, logger *slog.Logger) (artifact.HotStore, error) {
	if cfg.Driver == config.DriverFilesystem {
		return artifact.NewFileStore(cfg.BasePath)
	}
	if clients == nil {
		return nil, fmt.Errorf("s3 storage needs AWS clients")
	}
	return artifact.NewS3Store(clients.S3, logger), nil
}

// InitColdStore creates the configured cold tier. The returned func stops
// pending local retrievals.
func InitColdStore(cfg *config.Config, clients *awsclient.Clients, publisher bus.Publisher, logger *slog.Logger) (artifact.ColdStore, func(), error) {
	ac := cfg.Archive
	if ac.Driver == config.DriverFilesystem {
		vault, err := artifact.NewFileVault(ac.BasePath, publisher, artifact.VaultOptions{
			RetrievalTopic:    cfg.Topics.ArchiveRetrieved,
			ExpeditedDelay:    ac.ExpeditedDelay,
			StandardDelay:     ac.StandardDelay,
			ExpeditedCapacity: ac.ExpeditedCapacity,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return vault, vault.Close, nil
	}
	if clients == nil {
		return nil, nil, fmt.Errorf("glacier archive needs AWS clients")
	}
	return artifact.NewGlacierVault(clients.Glacier, ac.Vault, ac.SNSTopicARN, logger), func() {}, nil
}

// ConsumerConfig builds a poll loop configuration
func ConsumerConfig(cfg *config.PollConfig, name string) consumer.Config {
	return consumer.Config{
		Name:         name,
		BatchSize:    cfg.BatchSize,
		WaitTime:     cfg.WaitTime,
		ErrorBackoff: cfg.ErrorBackoff,
	}
}

// SetGinMode sets Gin mode based on environment
func SetGinMode(environment string) {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
}

// NewHTTPServer creates the HTTP server for handler
func NewHTTPServer(cfg *config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

// ShutdownSignals returns a channel receiving SIGINT and SIGTERM
func ShutdownSignals() <-chan os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	return quit
}
