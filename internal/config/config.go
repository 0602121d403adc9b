package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Ledger     LedgerConfig     `json:"ledger"`
	Snapshot   SnapshotConfig   `json:"snapshot"`
	Security   SecurityConfig   `json:"security"`
	Logging    LoggingConfig    `json:"logging"`
	Monitoring MonitoringConfig `json:"monitoring"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver         string        `json:"driver"`
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	User           string        `json:"user"`
	Password       string        `json:"password"`
	DBName         string        `json:"db_name"`
	SSLMode        string        `json:"ssl_mode"`
	SQLitePath     string        `json:"sqlite_path"`
	MaxConnections int           `json:"max_connections"`
	MaxIdleConns   int           `json:"max_idle_conns"`
	MaxLifetime    time.Duration `json:"max_lifetime"`
}

// LedgerConfig tunes the financing ledger
type LedgerConfig struct {
	PageSize            int           `json:"page_size"`
	RecentActivityLimit int           `json:"recent_activity_limit"`
	MaxActivityLimit    int           `json:"max_activity_limit"`
	StatsCacheTTL       time.Duration `json:"stats_cache_ttl"`
	SeedDemoData        bool          `json:"seed_demo_data"`
}

// SnapshotConfig controls periodic ledger snapshots
type SnapshotConfig struct {
	Path     string `json:"path"`
	Schedule string `json:"schedule"`
}

// SecurityConfig holds operator credentials
type SecurityConfig struct {
	AdminToken string `json:"admin_token"`
}

// LoggingConfig
type LoggingConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

// MonitoringConfig
type MonitoringConfig struct {
	MetricsEnabled bool `json:"metrics_enabled"`

	// RefreshSchedule recomputes the platform gauges between requests
	RefreshSchedule string `json:"refresh_schedule"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:         DriverMemory,
			Host:           "localhost",
			Port:           5432,
			User:           "postgres",
			DBName:         "invoice_ledger",
			SSLMode:        "disable",
			SQLitePath:     "ledger.db",
			MaxConnections: 25,
			MaxIdleConns:   5,
			MaxLifetime:    30 * time.Minute,
		},
		Ledger: LedgerConfig{
			PageSize:            50,
			RecentActivityLimit: 10,
			MaxActivityLimit:    100,
			StatsCacheTTL:       30 * time.Second,
		},
		Snapshot: SnapshotConfig{
			Schedule: "@every 5m",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Monitoring: MonitoringConfig{
			MetricsEnabled:  true,
			RefreshSchedule: "@every 1m",
		},
	}
}

// LoadConfig loads defaults, then the JSON file at configPath when it
// exists, then a .env file, then environment variables.
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	if err := overrideWithEnv(config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func overrideWithEnv(config *Config) error {
	setString := func(key string, target *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*target = v
		}
	}
	setInt := func(key string, target *int) error {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*target = n
		}
		return nil
	}
	setBool := func(key string, target *bool) error {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*target = b
		}
		return nil
	}
	setDuration := func(key string, target *time.Duration) error {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*target = d
		}
		return nil
	}

	setString("SERVER_HOST", &config.Server.Host)
	setString("DATABASE_DRIVER", &config.Database.Driver)
	setString("DATABASE_HOST", &config.Database.Host)
	setString("DATABASE_USER", &config.Database.User)
	setString("DATABASE_PASSWORD", &config.Database.Password)
	setString("DATABASE_DBNAME", &config.Database.DBName)
	setString("DATABASE_SSLMODE", &config.Database.SSLMode)
	setString("DATABASE_SQLITE_PATH", &config.Database.SQLitePath)
	setString("SNAPSHOT_PATH", &config.Snapshot.Path)
	setString("SNAPSHOT_SCHEDULE", &config.Snapshot.Schedule)
	setString("ADMIN_TOKEN", &config.Security.AdminToken)
	setString("LOG_LEVEL", &config.Logging.Level)
	setString("METRICS_REFRESH_SCHEDULE", &config.Monitoring.RefreshSchedule)

	for _, err := range []error{
		setInt("SERVER_PORT", &config.Server.Port),
		setInt("DATABASE_PORT", &config.Database.Port),
		setInt("LEDGER_PAGE_SIZE", &config.Ledger.PageSize),
		setInt("LEDGER_RECENT_ACTIVITY_LIMIT", &config.Ledger.RecentActivityLimit),
		setInt("LEDGER_MAX_ACTIVITY_LIMIT", &config.Ledger.MaxActivityLimit),
		setDuration("LEDGER_STATS_CACHE_TTL", &config.Ledger.StatsCacheTTL),
		setBool("LEDGER_SEED_DEMO_DATA", &config.Ledger.SeedDemoData),
		setBool("LOG_DEVELOPMENT", &config.Logging.Development),
		setBool("METRICS_ENABLED", &config.Monitoring.MetricsEnabled),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the values the service cannot start without
func (c *Config) Validate() error {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	switch c.Database.Driver {
	case DriverMemory, DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Ledger.PageSize <= 0 {
		return fmt.Errorf("ledger page size must be positive")
	}
	if c.Ledger.MaxActivityLimit > 0 && c.Ledger.RecentActivityLimit > c.Ledger.MaxActivityLimit {
		return fmt.Errorf("recent activity limit %d exceeds max activity limit %d",
			c.Ledger.RecentActivityLimit, c.Ledger.MaxActivityLimit)
	}
	return nil
}

// GetDatabaseURL returns the postgres connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
