package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			assert.Equal(t, "genomics-api-service", cfg.App.Name)
			assert.Equal(t, 8080, cfg.Server.Port)
			assert.Equal(t, DriverPostgres, cfg.Database.Driver)
			assert.Equal(t, "annotations", cfg.Database.Database)
			assert.Equal(t, "gas", cfg.RabbitMQ.Exchange.Name)
			assert.Equal(t, "job.requests", cfg.Topics.JobRequests)
			assert.Equal(t, "gas.job-requests", cfg.Queues.JobRequests)
			assert.Equal(t, ".dlq", cfg.Queues.DeadLetterSuffix)
			assert.Equal(t, ".retry", cfg.Queues.RetrySuffix)
			assert.Equal(t, 45*time.Second, cfg.Poll.RetryDelay)
			assert.Equal(t, 20*time.Second, cfg.Poll.WaitTime)
			assert.Equal(t, 5*time.Minute, cfg.Archive.FreeAccessWindow)
			assert.Equal(t, "gas-results", cfg.Storage.ResultsBucket)
			assert.Equal(t, 2, cfg.Annotator.Concurrency)
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_PASSWORD", "from-env")
	t.Setenv("RABBITMQ_PASSWORD", "")

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Database.Password)
	assert.Equal(t, "guest", cfg.RabbitMQ.Password, "empty env value keeps the file value")
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Driver:   DriverPostgres,
			Host:     "localhost",
			Port:     5432,
			Database: "annotations",
		},
		RabbitMQ: RabbitMQConfig{
			Host:     "localhost",
			Port:     5672,
			Exchange: ExchangeConfig{Name: "gas"},
		},
		Topics: TopicsConfig{
			JobRequests:      "job.requests",
			ArchiveWait:      "job.archive.wait",
			ArchiveEligible:  "job.archive",
			UserUpgrades:     "user.upgrades",
			ArchiveRetrieved: "archive.retrieved",
		},
		Queues: QueuesConfig{
			JobRequests:      "gas.job-requests",
			ArchiveWait:      "gas.archive-wait",
			ArchiveEligible:  "gas.archive",
			UserUpgrades:     "gas.thaw",
			ArchiveRetrieved: "gas.restore",
		},
		Storage: StorageConfig{
			Driver:        DriverS3,
			InputsBucket:  "gas-inputs",
			ResultsBucket: "gas-results",
		},
		Archive: ArchiveConfig{
			Driver:           DriverGlacier,
			Vault:            "gas-vault",
			FreeAccessWindow: 5 * time.Minute,
		},
		Annotator: AnnotatorConfig{
			JobsDir:     "/tmp/jobs",
			Command:     "python run.py",
			Concurrency: 2,
			JobTimeout:  time.Hour,
		},
	}
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{
			name:      "invalid server port",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			errString: "invalid server port",
		},
		{
			name:      "missing request topic",
			mutate:    func(c *Config) { c.Topics.JobRequests = "" },
			errString: "topics.job_requests is required",
		},
		{
			name:      "missing database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			errString: "database host is required",
		},
		{
			name: "sqlite needs only a path",
			mutate: func(c *Config) {
				c.Database = DatabaseConfig{Driver: DriverSQLite, Path: "/tmp/jobs.db"}
			},
		},
		{
			name:      "sqlite without path",
			mutate:    func(c *Config) { c.Database = DatabaseConfig{Driver: DriverSQLite} },
			errString: "database path is required",
		},
		{
			name:      "unknown database driver",
			mutate:    func(c *Config) { c.Database.Driver = "mysql" },
			errString: `unknown database driver "mysql"`,
		},
		{
			name:      "missing rabbitmq exchange",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "filesystem storage without base path",
			mutate:    func(c *Config) { c.Storage.Driver = DriverFilesystem },
			errString: "storage base_path is required",
		},
		{
			name:      "missing results bucket",
			mutate:    func(c *Config) { c.Storage.ResultsBucket = "" },
			errString: "inputs_bucket and results_bucket are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()
			if tt.errString == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{
			name:      "zero concurrency",
			mutate:    func(c *Config) { c.Annotator.Concurrency = 0 },
			errString: "concurrency must be greater than 0",
		},
		{
			name:      "missing command",
			mutate:    func(c *Config) { c.Annotator.Command = "" },
			errString: "annotator command is required",
		},
		{
			name:      "missing request queue",
			mutate:    func(c *Config) { c.Queues.JobRequests = "" },
			errString: "job request topic and queue are required",
		},
		{
			name:      "missing archive wait topic",
			mutate:    func(c *Config) { c.Topics.ArchiveWait = "" },
			errString: "topics.archive_wait is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()
			if tt.errString == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestConfig_ValidateArchiveAndThaw(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		validate  func(c *Config) error
		errString string
	}{
		{
			name:     "archive valid",
			mutate:   func(c *Config) {},
			validate: (*Config).ValidateArchiveConfig,
		},
		{
			name:      "archive without window",
			mutate:    func(c *Config) { c.Archive.FreeAccessWindow = 0 },
			validate:  (*Config).ValidateArchiveConfig,
			errString: "free_access_window must be greater than 0",
		},
		{
			name:      "glacier without vault",
			mutate:    func(c *Config) { c.Archive.Vault = "" },
			validate:  (*Config).ValidateArchiveConfig,
			errString: "archive vault is required",
		},
		{
			name: "filesystem archive",
			mutate: func(c *Config) {
				c.Archive.Driver = DriverFilesystem
				c.Archive.BasePath = "/tmp/vault"
			},
			validate: (*Config).ValidateArchiveConfig,
		},
		{
			name:     "thaw valid",
			mutate:   func(c *Config) {},
			validate: (*Config).ValidateThawConfig,
		},
		{
			name:      "thaw without retrieval queue",
			mutate:    func(c *Config) { c.Queues.ArchiveRetrieved = "" },
			validate:  (*Config).ValidateThawConfig,
			errString: "archive retrieved topic and queue are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := tt.validate(cfg)
			if tt.errString == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}
