package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Store     StoreConfig
	Splitwise SplitwiseConfig
	YNAB      YNABConfig
	Sync      SyncConfig
	Retry     RetryConfig
	Trigger   TriggerConfig
	Scheduler SchedulerConfig
	Firebase  FirebaseConfig
	Telemetry TelemetryConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port           string
	Host           string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type StoreConfig struct {
	Driver      string
	AutoMigrate bool
	// ListenForRegistrations starts the NOTIFY listener that queues a first
	// sync for newly registered accounts.
	ListenForRegistrations bool
}

type SplitwiseConfig struct {
	APIKey  string
	BaseURL string
}

type YNABConfig struct {
	APIKey  string
	BaseURL string
}

type SyncConfig struct {
	FailurePolicy      string
	MaxConcurrency     int
	AccountConcurrency int
	TriggerLimit       int
	HTTPClientTimeout  time.Duration
}

type RetryConfig struct {
	InitialDelay time.Duration
	Factor       float64
	Jitter       bool
	MaxRetries   int
}

type TriggerConfig struct {
	Secret     string
	SecretHash string
}

type SchedulerConfig struct {
	Enabled      bool
	Cron         string
	WorkerCount  int
	JobDelay     time.Duration
	QueueSize    int
	JobTimeout   time.Duration
	RunOnStartup bool
}

type FirebaseConfig struct {
	CredentialsFile string
	Topic           string
	DeviceTokens    []string
	MessagesFile    string
}

// Enabled reports whether failure notifications should be sent.
func (c FirebaseConfig) Enabled() bool {
	return c.CredentialsFile != "" && (c.Topic != "" || len(c.DeviceTokens) > 0)
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
	MetricsPort  string
}

type LogConfig struct {
	Level  string
	Pretty bool
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables only.
func FromEnv() (*Config, error) {
	var errs []error
	intEnv := func(key string, def int) int {
		v, err := getIntEnv(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	durationEnv := func(key string, def time.Duration) time.Duration {
		v, err := getDurationEnv(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	retryFactor, err := strconv.ParseFloat(getEnv("RETRY_FACTOR", "2"), 64)
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid RETRY_FACTOR: %w", err))
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Host:           getEnv("HOST", "0.0.0.0"),
			AllowedOrigins: getListEnv("ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     intEnv("DB_PORT", 5432),
			User:     getEnv("DB_USER", "budgetsync"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "budgetsync"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Store: StoreConfig{
			Driver:                 strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
			AutoMigrate:            getBoolEnv("DB_AUTO_MIGRATE", true),
			ListenForRegistrations: getBoolEnv("DB_LISTEN_REGISTRATIONS", false),
		},
		Splitwise: SplitwiseConfig{
			APIKey:  getEnv("SPLITWISE_API_KEY", ""),
			BaseURL: getEnv("SPLITWISE_BASE_URL", "https://secure.splitwise.com/api/v3.0"),
		},
		YNAB: YNABConfig{
			APIKey:  getEnv("YNAB_API_KEY", ""),
			BaseURL: getEnv("YNAB_BASE_URL", "https://api.ynab.com/v1"),
		},
		Sync: SyncConfig{
			FailurePolicy:      strings.ToLower(getEnv("SYNC_FAILURE_POLICY", "partition")),
			MaxConcurrency:     intEnv("SYNC_MAX_CONCURRENCY", 1),
			AccountConcurrency: intEnv("SYNC_ACCOUNT_CONCURRENCY", 2),
			TriggerLimit:       intEnv("SYNC_TRIGGER_LIMIT", 100),
			HTTPClientTimeout:  durationEnv("HTTP_CLIENT_TIMEOUT", 30*time.Second),
		},
		Retry: RetryConfig{
			InitialDelay: durationEnv("RETRY_INITIAL_DELAY", 100*time.Millisecond),
			Factor:       retryFactor,
			Jitter:       getBoolEnv("RETRY_JITTER", true),
			MaxRetries:   intEnv("RETRY_MAX_RETRIES", 3),
		},
		Trigger: TriggerConfig{
			Secret:     getEnv("CRON_SECRET", ""),
			SecretHash: getEnv("CRON_SECRET_HASH", ""),
		},
		Scheduler: SchedulerConfig{
			Enabled:      getBoolEnv("SCHEDULER_ENABLED", false),
			Cron:         getEnv("SCHEDULER_CRON", "0 */30 * * * *"),
			WorkerCount:  intEnv("SCHEDULER_WORKERS", 2),
			JobDelay:     durationEnv("SCHEDULER_JOB_DELAY", time.Second),
			QueueSize:    intEnv("SCHEDULER_QUEUE_SIZE", 100),
			JobTimeout:   durationEnv("SCHEDULER_JOB_TIMEOUT", 5*time.Minute),
			RunOnStartup: getBoolEnv("SCHEDULER_RUN_ON_STARTUP", false),
		},
		Firebase: FirebaseConfig{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
			Topic:           getEnv("FIREBASE_TOPIC", ""),
			DeviceTokens:    getListEnv("FIREBASE_DEVICE_TOKENS"),
			MessagesFile:    getEnv("FIREBASE_MESSAGES_FILE", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "budgetsync"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
			MetricsPort:  getEnv("METRICS_PORT", "9464"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: getBoolEnv("LOG_PRETTY", false),
		},
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields every entry point needs.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, c.Store.Driver)
	}

	if c.Store.Driver != StoreDriverMemory {
		if c.Splitwise.APIKey == "" {
			return fmt.Errorf("SPLITWISE_API_KEY is required")
		}
		if c.YNAB.APIKey == "" {
			return fmt.Errorf("YNAB_API_KEY is required")
		}
	}

	switch c.Sync.FailurePolicy {
	case "partition", "fail-fast", "failfast":
	default:
		return fmt.Errorf("SYNC_FAILURE_POLICY must be partition or fail-fast, got %q", c.Sync.FailurePolicy)
	}
	if c.Sync.MaxConcurrency < 1 {
		return fmt.Errorf("SYNC_MAX_CONCURRENCY must be at least 1")
	}
	if c.Retry.Factor < 1 {
		return fmt.Errorf("RETRY_FACTOR must be at least 1")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("RETRY_MAX_RETRIES must not be negative")
	}
	return nil
}

// RequireTriggerSecret fails when neither CRON_SECRET nor CRON_SECRET_HASH is
// set. Only the API server needs one.
func (c *Config) RequireTriggerSecret() error {
	if c.Trigger.Secret == "" && c.Trigger.SecretHash == "" {
		return fmt.Errorf("CRON_SECRET or CRON_SECRET_HASH is required")
	}
	return nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Accept: true, false, 1, 0, yes, no (case-insensitive)
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// getListEnv splits a comma-separated variable, dropping empty entries.
func getListEnv(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
