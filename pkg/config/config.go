// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Ingestion, Postgres, Redis, Kafka, Store, Logging, Metrics).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MakeIDPlaceholder is substituted with each make's id in the vehicle-types
// URL template.
const MakeIDPlaceholder = "{makeId}"

// Config is the top-level application configuration.
type Config struct {
	Ingestion IngestionConfig `yaml:"ingestion"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Store     StoreConfig     `yaml:"store"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// IngestionConfig controls the catalog sources, fan-out width and the
// retry policy of the fetch layer. It is passed by value into the
// orchestrator and never read from the environment afterwards.
type IngestionConfig struct {
	MakesURL             string        `yaml:"makesUrl"`
	VehicleTypesURL      string        `yaml:"vehicleTypesUrl"`
	MaxMakes             int           `yaml:"maxMakes"`
	MaxConcurrentFetches int           `yaml:"maxConcurrentFetches"`
	FetchTimeout         time.Duration `yaml:"fetchTimeout"`
	RequestsPerSecond    float64       `yaml:"requestsPerSecond"`
	UserAgent            string        `yaml:"userAgent"`
	Retry                RetryConfig   `yaml:"retry"`
}

// RetryConfig holds the backoff parameters of the retrying fetcher.
type RetryConfig struct {
	Attempts          int           `yaml:"attempts"`
	BaseDelay         time.Duration `yaml:"baseDelay"`
	MaxDelay          time.Duration `yaml:"maxDelay"`
	RetryClientErrors bool          `yaml:"retryClientErrors"`
}

// ScheduleConfig selects how runs are triggered. An empty Cron and an empty
// trigger topic mean a single run at process start.
type ScheduleConfig struct {
	Cron    string        `yaml:"cron"`
	LockTTL time.Duration `yaml:"lockTTL"`
	LockKey string        `yaml:"lockKey"`
}

// StoreConfig selects the persistence backend ("postgres" or "memory").
type StoreConfig struct {
	Driver string `yaml:"driver"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	URL             string        `yaml:"url"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name. A configured URL takes
// precedence over the individual fields.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RedisConfig holds Redis connection parameters. An empty Addr disables the
// distributed run lock.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// KafkaConfig holds Kafka broker and topic settings. Empty topics disable
// the corresponding feature.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	RunReports  string `yaml:"runReports"`
	RunTriggers string `yaml:"runTriggers"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics and health server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the ingestion pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	in := c.Ingestion
	if in.MaxMakes < 0 {
		errs = append(errs, fmt.Errorf("maxMakes must be >= 0, got %d", in.MaxMakes))
	}
	if in.MaxConcurrentFetches <= 0 {
		errs = append(errs, fmt.Errorf("maxConcurrentFetches must be > 0, got %d", in.MaxConcurrentFetches))
	}
	if in.Retry.Attempts <= 0 {
		errs = append(errs, fmt.Errorf("retry attempts must be > 0, got %d", in.Retry.Attempts))
	}
	if in.Retry.BaseDelay < 0 || in.Retry.MaxDelay < 0 {
		errs = append(errs, errors.New("retry delays must not be negative"))
	}
	if in.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("requestsPerSecond must be >= 0, got %v", in.RequestsPerSecond))
	}
	if in.VehicleTypesURL != "" && !strings.Contains(in.VehicleTypesURL, MakeIDPlaceholder) {
		errs = append(errs, fmt.Errorf("vehicleTypesUrl must contain %s", MakeIDPlaceholder))
	}
	switch c.Store.Driver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	return errors.Join(errs...)
}

// defaultConfig returns a Config with the documented defaults. Source URLs
// are intentionally empty so an unconfigured process performs no fetches.
func defaultConfig() *Config {
	return &Config{
		Ingestion: IngestionConfig{
			MaxMakes:             0,
			MaxConcurrentFetches: 12,
			FetchTimeout:         15 * time.Second,
			UserAgent:            "vehicle-catalog-ingest/1.0",
			Retry: RetryConfig{
				Attempts:  5,
				BaseDelay: 8 * time.Second,
				MaxDelay:  800 * time.Second,
			},
		},
		Schedule: ScheduleConfig{
			LockTTL: 2 * time.Hour,
			LockKey: "catalog:ingestion:lock",
		},
		Store: StoreConfig{
			Driver: "postgres",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "catalog",
			User:            "catalog",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize: 4,
		},
		Kafka: KafkaConfig{
			ConsumerGroup: "catalog-ingestion",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads the ingestion keys and the CATALOG_* infrastructure
// keys. Values that fail to parse are ignored and the previous value is kept.
func applyEnvOverrides(cfg *Config) {
	in := &cfg.Ingestion
	// An empty URL is meaningful: it clears the file value and skips the run.
	if v, ok := lookupSet("MAKES_URL"); ok {
		in.MakesURL = v
	}
	if v, ok := lookupSet("VEHICLE_TYPES_URL"); ok {
		in.VehicleTypesURL = v
	}
	envInt("MAX_MAKES_TO_INGEST", &in.MaxMakes)
	envInt("MAX_CONCURRENT_FETCHS", &in.MaxConcurrentFetches)
	envInt("RETRY_ATTEMPTS", &in.Retry.Attempts)
	envMillis("RETRY_BASE_DELAY_MS", &in.Retry.BaseDelay)
	envMillis("RETRY_MAX_DELAY_MS", &in.Retry.MaxDelay)
	envBool("RETRY_CLIENT_ERRORS", &in.Retry.RetryClientErrors)
	envMillis("FETCH_TIMEOUT_MS", &in.FetchTimeout)
	envFloat("REQUEST_RPS", &in.RequestsPerSecond)

	if v, ok := lookup("INGEST_SCHEDULE"); ok {
		cfg.Schedule.Cron = v
	}
	if v, ok := lookup("CATALOG_STORE_DRIVER"); ok {
		cfg.Store.Driver = v
	}

	if v, ok := lookup("DATABASE_URL"); ok {
		cfg.Postgres.URL = v
	}
	if v, ok := lookup("CATALOG_POSTGRES_HOST"); ok {
		cfg.Postgres.Host = v
	}
	envInt("CATALOG_POSTGRES_PORT", &cfg.Postgres.Port)
	if v, ok := lookup("CATALOG_POSTGRES_DATABASE"); ok {
		cfg.Postgres.Database = v
	}
	if v, ok := lookup("CATALOG_POSTGRES_USER"); ok {
		cfg.Postgres.User = v
	}
	if v, ok := lookup("CATALOG_POSTGRES_PASSWORD"); ok {
		cfg.Postgres.Password = v
	}
	if v, ok := lookup("CATALOG_POSTGRES_SSLMODE"); ok {
		cfg.Postgres.SSLMode = v
	}

	if v, ok := lookup("CATALOG_REDIS_ADDR"); ok {
		cfg.Redis.Addr = v
	}
	if v, ok := lookup("CATALOG_REDIS_PASSWORD"); ok {
		cfg.Redis.Password = v
	}

	if v, ok := lookup("CATALOG_KAFKA_BROKERS"); ok {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v, ok := lookup("CATALOG_KAFKA_REPORT_TOPIC"); ok {
		cfg.Kafka.Topics.RunReports = v
	}
	if v, ok := lookup("CATALOG_KAFKA_TRIGGER_TOPIC"); ok {
		cfg.Kafka.Topics.RunTriggers = v
	}

	if v, ok := lookup("CATALOG_LOGGING_LEVEL"); ok {
		cfg.Logging.Level = v
	}
	if v, ok := lookup("CATALOG_LOGGING_FORMAT"); ok {
		cfg.Logging.Format = v
	}
	envBool("CATALOG_METRICS_ENABLED", &cfg.Metrics.Enabled)
	envInt("CATALOG_METRICS_PORT", &cfg.Metrics.Port)
}

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

// lookupSet reports a key as present even when its value is empty.
func lookupSet(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	return strings.TrimSpace(v), ok
}

func envInt(key string, dst *int) {
	if v, ok := lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v, ok := lookup(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(key string, dst *bool) {
	if v, ok := lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envMillis(key string, dst *time.Duration) {
	if v, ok := lookup(key); ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = time.Duration(ms) * time.Millisecond
		}
	}
}
