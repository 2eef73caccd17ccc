package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server    ServerConfig
	App       AppConfig
	Cache     CacheConfig
	Store     StoreConfig
	Queue     QueueConfig
	Remote    RemoteConfig
	Reconcile ReconcileConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"300s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string   `envconfig:"APP_NAME" default:"stocksync"`
	Environment string   `envconfig:"APP_ENV" default:"development"`
	Debug       bool     `envconfig:"APP_DEBUG" default:"false"`
	Version     string   `envconfig:"APP_VERSION" default:"1.0.0"`
	APIKeys     []string `envconfig:"API_KEYS"` // comma separated; empty disables auth
}

// CacheConfig holds the key-value cache settings (remote session token slot).
type CacheConfig struct {
	Type string `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// StoreConfig holds local relational store settings.
type StoreConfig struct {
	Driver string `envconfig:"STORE_DRIVER" default:"sqlite"` // sqlite, postgres, or mysql
	Path   string `envconfig:"STORE_PATH" default:"./data/stocksync.db"`
	// Server databases
	Host     string `envconfig:"STORE_HOST" default:"localhost"`
	Port     int    `envconfig:"STORE_PORT" default:"5432"`
	Name     string `envconfig:"STORE_NAME" default:"stocksync"`
	User     string `envconfig:"STORE_USER" default:"postgres"`
	Password string `envconfig:"STORE_PASS" default:""`
	SSLMode  string `envconfig:"STORE_SSLMODE" default:"disable"`
}

// QueueConfig holds durable task queue and retry policy settings.
type QueueConfig struct {
	Driver         string        `envconfig:"QUEUE_DRIVER" default:"memory"` // memory or redis
	KeyPrefix      string        `envconfig:"QUEUE_KEY_PREFIX" default:"stocksync:queue"`
	MaxAttempts    int           `envconfig:"QUEUE_MAX_ATTEMPTS" default:"3"`
	BackoffBase    time.Duration `envconfig:"QUEUE_BACKOFF_BASE" default:"30s"`
	BackoffMax     time.Duration `envconfig:"QUEUE_BACKOFF_MAX" default:"30m"`
	StuckThreshold time.Duration `envconfig:"QUEUE_STUCK_THRESHOLD" default:"1h"`
	Lease          time.Duration `envconfig:"QUEUE_RESERVATION_LEASE" default:"2h"` // must exceed the reconcile timeout
	Workers        int           `envconfig:"QUEUE_WORKERS" default:"4"`
	PollInterval   time.Duration `envconfig:"QUEUE_POLL_INTERVAL" default:"1s"`
	SerializeItems bool          `envconfig:"SYNC_SERIALIZE_ITEMS" default:"false"`
}

// RemoteConfig holds remote inventory API settings.
type RemoteConfig struct {
	BaseURL           string        `envconfig:"REMOTE_BASE_URL" default:"https://api.linnworks.net"`
	ApplicationID     string        `envconfig:"REMOTE_APPLICATION_ID" default:""`
	ApplicationSecret string        `envconfig:"REMOTE_APPLICATION_SECRET" default:""`
	InstallToken      string        `envconfig:"REMOTE_INSTALL_TOKEN" default:""`
	Timeout           time.Duration `envconfig:"REMOTE_TIMEOUT" default:"30s"`
	RateLimit         float64       `envconfig:"REMOTE_RATE_LIMIT" default:"5"` // requests per second
	RateBurst         int           `envconfig:"REMOTE_RATE_BURST" default:"10"`
	DefaultLocation   string        `envconfig:"REMOTE_DEFAULT_LOCATION" default:"00000000-0000-0000-0000-000000000000"`
}

// ReconcileConfig holds catalog reconciliation settings.
type ReconcileConfig struct {
	PageSize   int           `envconfig:"RECONCILE_PAGE_SIZE" default:"200"`
	MaxPages   int           `envconfig:"RECONCILE_MAX_PAGES" default:"500"`
	SafeFields []string      `envconfig:"RECONCILE_SAFE_FIELDS" default:"stock_level"`
	Interval   time.Duration `envconfig:"RECONCILE_INTERVAL" default:"0"` // 0 disables the scheduler
}

// DSN returns the data source name for the configured driver.
func (s *StoreConfig) DSN() string {
	switch s.Driver {
	case "postgres", "postgresql":
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			s.User, s.Password, s.Host, s.Port, s.Name, s.SSLMode)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			s.User, s.Password, s.Host, s.Port, s.Name)
	default:
		return fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", s.Path)
	}
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	var missing []string
	if c.Remote.ApplicationID == "" {
		missing = append(missing, "REMOTE_APPLICATION_ID")
	}
	if c.Remote.ApplicationSecret == "" {
		missing = append(missing, "REMOTE_APPLICATION_SECRET")
	}
	if c.Remote.InstallToken == "" {
		missing = append(missing, "REMOTE_INSTALL_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	if c.Reconcile.PageSize <= 0 || c.Reconcile.MaxPages <= 0 {
		return fmt.Errorf("RECONCILE_PAGE_SIZE and RECONCILE_MAX_PAGES must be positive")
	}
	if c.Queue.MaxAttempts <= 0 {
		return fmt.Errorf("QUEUE_MAX_ATTEMPTS must be positive")
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
