package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaeladamstrickland/Convexa-sub009/internal/domain"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "convexa_pipeline",
		},
		RabbitMQ: RabbitMQConfig{
			Host: "localhost",
			Port: 5672,
			Exchange: ExchangeConfig{
				Name: "convexa.jobs",
			},
			Queues: map[string]string{
				domain.JobTypeIngest:    "convexa.ingest",
				domain.JobTypeEnrich:    "convexa.enrich",
				domain.JobTypeMatchmake: "convexa.matchmake",
				domain.JobTypeDeliver:   "convexa.deliver",
			},
		},
		Worker: WorkerConfig{
			Pools: PoolsConfig{
				Ingest:    2,
				Enrich:    5,
				Matchmake: 3,
				Deliver:   4,
			},
			JobTimeout:      2 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		Ingestion: IngestionConfig{
			Sources: map[string]string{
				"zillow_fsbo": "https://www.zillow.com/homes/fsbo",
				"probate":     "https://records.countyclerk.example.com/probate",
			},
		},
	}
}

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
			wantErr:  false,
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
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, "convexa_pipeline", cfg.Database.Database)
				assert.Equal(t, "convexa.jobs", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "convexa.deliver", cfg.RabbitMQ.Queues[domain.JobTypeDeliver])
				assert.Equal(t, 5, cfg.Worker.Pools.Enrich)
				assert.Equal(t, 3, cfg.Ingestion.MaxAttempts)
				assert.Equal(t, 5, cfg.Webhook.MaxAttempts)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	// The missing_database fixture leaves retry sections populated, so use
	// a minimal config written through applyDefaults instead.
	cfg := &Config{}
	cfg.applyDefaults()

	assert.Equal(t, 3, cfg.Ingestion.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Ingestion.BackoffBase)
	assert.Equal(t, 3, cfg.Enrichment.MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.Enrichment.BackoffBase)
	assert.Equal(t, 5, cfg.Webhook.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Webhook.BackoffBase)
	assert.Equal(t, 10*time.Second, cfg.Webhook.RequestTimeout)
	assert.Equal(t, 10, cfg.RabbitMQ.Consumer.PrefetchCount)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "empty database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "empty database name",
			mutate:    func(c *Config) { c.Database.Database = "" },
			wantErr:   true,
			errString: "database name is required",
		},
		{
			name:      "empty rabbitmq host",
			mutate:    func(c *Config) { c.RabbitMQ.Host = "" },
			wantErr:   true,
			errString: "rabbitmq host is required",
		},
		{
			name:      "empty exchange name",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			wantErr:   true,
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "missing queue for job type",
			mutate:    func(c *Config) { delete(c.RabbitMQ.Queues, domain.JobTypeDeliver) },
			wantErr:   true,
			errString: "rabbitmq queue for job type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateAPI(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.ValidateAPI())

	cfg.Server.Port = 70000
	err := cfg.ValidateAPI()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid server port")
}

func TestConfig_ValidateWorker(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		cfg := validConfig()
		require.NoError(t, cfg.ValidateWorker())
	})

	t.Run("zero pool concurrency", func(t *testing.T) {
		cfg := validConfig()
		cfg.Worker.Pools.Deliver = 0

		err := cfg.ValidateWorker()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `worker pool "deliver"`)
	})

	t.Run("zero job timeout", func(t *testing.T) {
		cfg := validConfig()
		cfg.Worker.JobTimeout = 0

		err := cfg.ValidateWorker()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "job_timeout")
	})

	t.Run("no ingestion sources", func(t *testing.T) {
		cfg := validConfig()
		cfg.Ingestion.Sources = nil

		err := cfg.ValidateWorker()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least one ingestion source")
	})

	t.Run("unknown ingestion source", func(t *testing.T) {
		cfg := validConfig()
		cfg.Ingestion.Sources["craigslist"] = "https://example.com"

		err := cfg.ValidateWorker()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown ingestion source")
	})

	t.Run("source without base URL", func(t *testing.T) {
		cfg := validConfig()
		cfg.Ingestion.Sources["probate"] = ""

		err := cfg.ValidateWorker()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "has no base URL")
	})
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NoError(t, cfg.ValidateAPI())
		require.NoError(t, cfg.ValidateWorker())
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)

		err = cfg.ValidateAPI()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with missing database", func(t *testing.T) {
		cfg, err := Load("testdata/missing_database.yaml")
		require.NoError(t, err)

		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database name is required")
	})
}
