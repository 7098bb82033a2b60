package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/michaeladamstrickland/Convexa-sub009/internal/domain"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Logging   LoggingConfig   `yaml:"logging"`
	App       AppConfig       `yaml:"app"`
	Worker     WorkerConfig     `yaml:"worker"`
	Ingestion  IngestionConfig  `yaml:"ingestion"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Webhook    WebhookConfig    `yaml:"webhook"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
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

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string            `yaml:"host"`
	Port       int               `yaml:"port"`
	User       string            `yaml:"user"`
	Password   string            `yaml:"password"`
	VHost      string            `yaml:"vhost"`
	Exchange   ExchangeConfig    `yaml:"exchange"`
	Queues     map[string]string `yaml:"queues"` // job type -> queue name
	Connection ConnectionConfig  `yaml:"connection"`
	Publish    PublishConfig     `yaml:"publish"`
	Consumer   ConsumerConfig    `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Durable bool   `yaml:"durable"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration. Each job type gets its
// own bounded pool.
type WorkerConfig struct {
	Pools           PoolsConfig   `yaml:"pools"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MetricsPort     int           `yaml:"metrics_port"`
}

// PoolsConfig sets per-job-type concurrency
type PoolsConfig struct {
	Ingest    int `yaml:"ingest"`
	Enrich    int `yaml:"enrich"`
	Matchmake int `yaml:"matchmake"`
	Deliver   int `yaml:"deliver"`
}

// IngestionConfig holds scrape job retry settings (linear backoff) and
// the base URL per record source.
type IngestionConfig struct {
	MaxAttempts    int               `yaml:"max_attempts"`
	BackoffBase    time.Duration     `yaml:"backoff_base"`
	AdapterTimeout time.Duration     `yaml:"adapter_timeout"`
	Sources        map[string]string `yaml:"sources"` // source -> base URL
}

// EnrichmentConfig holds enrichment job retry settings (linear backoff)
type EnrichmentConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffBase time.Duration `yaml:"backoff_base"`
}

// WebhookConfig holds delivery retry settings (exponential backoff)
type WebhookConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	BackoffBase    time.Duration `yaml:"backoff_base"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Ingestion.MaxAttempts <= 0 {
		c.Ingestion.MaxAttempts = 3
	}
	if c.Ingestion.BackoffBase <= 0 {
		c.Ingestion.BackoffBase = 5 * time.Second
	}
	if c.Ingestion.AdapterTimeout <= 0 {
		c.Ingestion.AdapterTimeout = 30 * time.Second
	}
	if c.Enrichment.MaxAttempts <= 0 {
		c.Enrichment.MaxAttempts = 3
	}
	if c.Enrichment.BackoffBase <= 0 {
		c.Enrichment.BackoffBase = 3 * time.Second
	}
	if c.Webhook.MaxAttempts <= 0 {
		c.Webhook.MaxAttempts = 5
	}
	if c.Webhook.BackoffBase <= 0 {
		c.Webhook.BackoffBase = 2 * time.Second
	}
	if c.Webhook.RequestTimeout <= 0 {
		c.Webhook.RequestTimeout = 10 * time.Second
	}
	if c.RabbitMQ.Consumer.PrefetchCount <= 0 {
		c.RabbitMQ.Consumer.PrefetchCount = 10
	}
}

// Validate checks the configuration shared by both services
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	for _, jobType := range []string{domain.JobTypeIngest, domain.JobTypeEnrich, domain.JobTypeMatchmake, domain.JobTypeDeliver} {
		if c.RabbitMQ.Queues[jobType] == "" {
			return fmt.Errorf("rabbitmq queue for job type %q is required", jobType)
		}
	}

	return nil
}

// ValidateAPI checks configuration specific to the API service
func (c *Config) ValidateAPI() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	return nil
}

// ValidateWorker checks configuration specific to the worker service
func (c *Config) ValidateWorker() error {
	if err := c.Validate(); err != nil {
		return err
	}

	pools := []struct {
		name  string
		count int
	}{
		{"ingest", c.Worker.Pools.Ingest},
		{"enrich", c.Worker.Pools.Enrich},
		{"matchmake", c.Worker.Pools.Matchmake},
		{"deliver", c.Worker.Pools.Deliver},
	}
	for _, p := range pools {
		if p.count <= 0 {
			return fmt.Errorf("worker pool %q concurrency must be greater than 0", p.name)
		}
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if len(c.Ingestion.Sources) == 0 {
		return fmt.Errorf("at least one ingestion source is required")
	}
	for source, baseURL := range c.Ingestion.Sources {
		if !domain.IsAllowedScrapeSource(source) {
			return fmt.Errorf("unknown ingestion source: %q", source)
		}
		if baseURL == "" {
			return fmt.Errorf("ingestion source %q has no base URL", source)
		}
	}

	return nil
}
