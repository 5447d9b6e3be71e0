package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Driver names
const (
	DriverPostgres   = "postgres"
	DriverSQLite     = "sqlite"
	DriverS3         = "s3"
	DriverGlacier    = "glacier"
	DriverFilesystem = "filesystem"
)

// Config represents the complete application configuration
type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Topics    TopicsConfig    `yaml:"topics"`
	Queues    QueuesConfig    `yaml:"queues"`
	Poll      PollConfig      `yaml:"poll"`
	AWS       AWSConfig       `yaml:"aws"`
	Storage   StorageConfig   `yaml:"storage"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Annotator AnnotatorConfig `yaml:"annotator"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds job store connection configuration. The sqlite
// driver only uses Path.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Path            string        `yaml:"path"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// TopicsConfig names the bus topics (routing keys)
type TopicsConfig struct {
	JobRequests      string `yaml:"job_requests"`
	ArchiveWait      string `yaml:"archive_wait"`
	ArchiveEligible  string `yaml:"archive_eligible"`
	UserUpgrades     string `yaml:"user_upgrades"`
	ArchiveRetrieved string `yaml:"archive_retrieved"`
}

// QueuesConfig names the consumer queues
type QueuesConfig struct {
	JobRequests      string `yaml:"job_requests"`
	ArchiveWait      string `yaml:"archive_wait"`
	ArchiveEligible  string `yaml:"archive_eligible"`
	UserUpgrades     string `yaml:"user_upgrades"`
	ArchiveRetrieved string `yaml:"archive_retrieved"`
	DeadLetterSuffix string `yaml:"dead_letter_suffix"`
	RetrySuffix      string `yaml:"retry_suffix"`
}

// PollConfig holds consumer loop settings
type PollConfig struct {
	BatchSize    int           `yaml:"batch_size"`
	WaitTime     time.Duration `yaml:"wait_time"`
	ErrorBackoff time.Duration `yaml:"error_backoff"`
	// RetryDelay is how long a released message waits before redelivery
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// AWSConfig holds AWS client settings
type AWSConfig struct {
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// StorageConfig holds hot tier settings
type StorageConfig struct {
	Driver        string `yaml:"driver"`
	BasePath      string `yaml:"base_path"`
	InputsBucket  string `yaml:"inputs_bucket"`
	ResultsBucket string `yaml:"results_bucket"`
	KeyPrefix     string `yaml:"key_prefix"`
}

// ArchiveConfig holds cold tier settings
type ArchiveConfig struct {
	Driver   string `yaml:"driver"`
	Vault    string `yaml:"vault"`
	BasePath string `yaml:"base_path"`
	// SNSTopicARN receives Glacier retrieval completions
	SNSTopicARN       string        `yaml:"sns_topic_arn"`
	FreeAccessWindow  time.Duration `yaml:"free_access_window"`
	ExpeditedDelay    time.Duration `yaml:"expedited_delay"`
	StandardDelay     time.Duration `yaml:"standard_delay"`
	ExpeditedCapacity int           `yaml:"expedited_capacity"`
}

// AnnotatorConfig holds worker service settings
type AnnotatorConfig struct {
	JobsDir         string        `yaml:"jobs_dir"`
	Command         string        `yaml:"command"`
	Concurrency     int           `yaml:"concurrency"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// Load reads and parses the configuration file. Secrets set in the
// environment override the file.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnv()
	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"DATABASE_PASSWORD": &c.Database.Password,
		"RABBITMQ_PASSWORD": &c.RabbitMQ.Password,
		"AWS_REGION":        &c.AWS.Region,
		"AWS_ENDPOINT_URL":  &c.AWS.Endpoint,
	}
	for key, field := range overrides {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*field = v
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverS3
	}
	if c.Archive.Driver == "" {
		c.Archive.Driver = DriverGlacier
	}
	if c.RabbitMQ.Exchange.Type == "" {
		c.RabbitMQ.Exchange.Type = "topic"
	}
	if c.Queues.DeadLetterSuffix == "" {
		c.Queues.DeadLetterSuffix = ".dlq"
	}
	if c.Queues.RetrySuffix == "" {
		c.Queues.RetrySuffix = ".retry"
	}
	if c.Poll.BatchSize <= 0 {
		c.Poll.BatchSize = 10
	}
	if c.Poll.RetryDelay <= 0 {
		c.Poll.RetryDelay = 30 * time.Second
	}
}

// ValidateAPIConfig checks the settings the API service needs
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}
	if c.Topics.JobRequests == "" {
		return errors.New("topics.job_requests is required")
	}
	if c.Topics.UserUpgrades == "" {
		return errors.New("topics.user_upgrades is required")
	}
	return errors.Join(c.validateDatabase(), c.validateRabbitMQ(), c.validateStorage())
}

// ValidateWorkerConfig checks the settings the worker service needs
func (c *Config) ValidateWorkerConfig() error {
	if c.Annotator.Concurrency <= 0 {
		return errors.New("annotator concurrency must be greater than 0")
	}
	if c.Annotator.JobTimeout <= 0 {
		return errors.New("annotator job_timeout must be greater than 0")
	}
	if c.Annotator.JobsDir == "" {
		return errors.New("annotator jobs_dir is required")
	}
	if c.Annotator.Command == "" {
		return errors.New("annotator command is required")
	}
	if c.Queues.JobRequests == "" || c.Topics.JobRequests == "" {
		return errors.New("job request topic and queue are required")
	}
	if c.Topics.ArchiveWait == "" {
		return errors.New("topics.archive_wait is required")
	}
	return errors.Join(c.validateDatabase(), c.validateRabbitMQ(), c.validateStorage())
}

// ValidateArchiveConfig checks the settings the archive service needs
func (c *Config) ValidateArchiveConfig() error {
	if c.Queues.ArchiveEligible == "" || c.Topics.ArchiveEligible == "" {
		return errors.New("archive eligible topic and queue are required")
	}
	if c.Queues.ArchiveWait == "" || c.Topics.ArchiveWait == "" {
		return errors.New("archive wait topic and queue are required")
	}
	if c.Archive.FreeAccessWindow <= 0 {
		return errors.New("archive free_access_window must be greater than 0")
	}
	return errors.Join(c.validateDatabase(), c.validateRabbitMQ(), c.validateStorage(), c.validateArchive())
}

// ValidateThawConfig checks the settings the thaw service needs
func (c *Config) ValidateThawConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}
	if c.Queues.UserUpgrades == "" || c.Topics.UserUpgrades == "" {
		return errors.New("user upgrade topic and queue are required")
	}
	if c.Queues.ArchiveRetrieved == "" || c.Topics.ArchiveRetrieved == "" {
		return errors.New("archive retrieved topic and queue are required")
	}
	return errors.Join(c.validateDatabase(), c.validateRabbitMQ(), c.validateStorage(), c.validateArchive())
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("database path is required for sqlite")
		}
	case DriverPostgres:
		if c.Database.Host == "" {
			return errors.New("database host is required")
		}
		if c.Database.Port < MinPort || c.Database.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
		}
		if c.Database.Database == "" {
			return errors.New("database name is required")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return errors.New("rabbitmq host is required")
	}
	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}
	if c.RabbitMQ.Exchange.Name == "" {
		return errors.New("rabbitmq exchange name is required")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Driver {
	case DriverS3:
	case DriverFilesystem:
		if c.Storage.BasePath == "" {
			return errors.New("storage base_path is required for filesystem storage")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.InputsBucket == "" || c.Storage.ResultsBucket == "" {
		return errors.New("storage inputs_bucket and results_bucket are required")
	}
	return nil
}

func (c *Config) validateArchive() error {
	switch c.Archive.Driver {
	case DriverGlacier:
		if c.Archive.Vault == "" {
			return errors.New("archive vault is required for glacier")
		}
	case DriverFilesystem:
		if c.Archive.BasePath == "" {
			return errors.New("archive base_path is required for filesystem archive")
		}
	default:
		return fmt.Errorf("unknown archive driver %q", c.Archive.Driver)
	}
	return nil
}
