package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig
	Cache      CacheConfig
	Loader     LoaderConfig
	Log        LogConfig
	Metrics    MetricsConfig
	SchemaPath string // Model DSL file loaded at startup
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver     string // postgres or sqlite
	Host       string
	Port       int
	User       string
	Password   string
	Database   string
	SSLMode    string
	SQLitePath string // File path or ":memory:"
}

// CacheConfig represents row cache configuration
type CacheConfig struct {
	Enabled        bool
	MaxMemoryBytes int64 // Maximum memory usage in bytes (e.g., 104857600 = 100MB)
	Metrics        bool
	TTLMinutes     int    // Time-to-live for cache entries in minutes
	NotifyChannel  string // Postgres NOTIFY channel that invalidates the cache
}

// TTL returns the entry lifetime as a duration
func (c *CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// LoaderConfig represents eager loader configuration
type LoaderConfig struct {
	Concurrency int // Sibling relations resolved in parallel (1 = sequential)
}

// LogConfig represents logger configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or console
}

// MetricsConfig represents Prometheus exporter configuration
type MetricsConfig struct {
	Port int // 0 disables the /metrics endpoint
}

// findProjectRoot finds the project root directory by looking for go.mod
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	// Walk up the directory tree until we find go.mod
	for {
		goModPath := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(goModPath); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}

// ProjectRoot returns the directory holding go.mod, or the working directory
// when the binary runs outside the source tree
func ProjectRoot() string {
	if root, err := findProjectRoot(); err == nil {
		return root
	}
	wd, _ := os.Getwd()
	return wd
}

// InitConfig initializes viper configuration
// env: environment name (dev, test, prod)
func InitConfig(env string) error {
	if env == "" {
		env = "dev"
	}

	// Set config file name based on environment
	viper.SetConfigName(fmt.Sprintf(".env.%s", env))
	viper.SetConfigType("env")
	viper.AddConfigPath(ProjectRoot())

	// Read config file (optional, ignore error if not found)
	_ = viper.ReadInConfig()

	// Environment variables take precedence over config file
	viper.AutomaticEnv()

	setDefaults()
	return nil
}

func setDefaults() {
	viper.SetDefault("DB_DRIVER", DriverPostgres)
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 15432)
	viper.SetDefault("DB_USER", "polyload")
	viper.SetDefault("DB_NAME", "polyload_dev")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("SQLITE_PATH", "polyload.db")
	viper.SetDefault("SCHEMA_PATH", "models.poly")

	// Cache defaults
	viper.SetDefault("CACHE_ENABLED", false)
	viper.SetDefault("CACHE_MAX_MEMORY_BYTES", 100*1024*1024) // 100MB
	viper.SetDefault("CACHE_METRICS", true)
	viper.SetDefault("CACHE_TTL_MINUTES", 5)
	viper.SetDefault("CACHE_NOTIFY_CHANNEL", "polyload_changes")

	viper.SetDefault("METRICS_PORT", 0)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")
	viper.SetDefault("LOADER_CONCURRENCY", 1)
}

// Load loads configuration from viper
func Load() (*Config, error) {
	driver := viper.GetString("DB_DRIVER")
	if driver == "" {
		driver = DriverPostgres
	}

	dbPassword := viper.GetString("DB_PASSWORD")
	switch driver {
	case DriverPostgres:
		// DB_PASSWORD is required for security
		if dbPassword == "" {
			return nil, fmt.Errorf("DB_PASSWORD is required (set via environment variable or .env file)")
		}
	case DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q (want %s or %s)", driver, DriverPostgres, DriverSQLite)
	}

	concurrency := viper.GetInt("LOADER_CONCURRENCY")
	if concurrency < 1 {
		concurrency = 1
	}

	config := &Config{
		Database: DatabaseConfig{
			Driver:     driver,
			Host:       viper.GetString("DB_HOST"),
			Port:       viper.GetInt("DB_PORT"),
			User:       viper.GetString("DB_USER"),
			Password:   dbPassword,
			Database:   viper.GetString("DB_NAME"),
			SSLMode:    viper.GetString("DB_SSLMODE"),
			SQLitePath: viper.GetString("SQLITE_PATH"),
		},
		Cache: CacheConfig{
			Enabled:        viper.GetBool("CACHE_ENABLED"),
			MaxMemoryBytes: viper.GetInt64("CACHE_MAX_MEMORY_BYTES"),
			Metrics:        viper.GetBool("CACHE_METRICS"),
			TTLMinutes:     viper.GetInt("CACHE_TTL_MINUTES"),
			NotifyChannel:  viper.GetString("CACHE_NOTIFY_CHANNEL"),
		},
		Loader: LoaderConfig{
			Concurrency: concurrency,
		},
		Log: LogConfig{
			Level:  viper.GetString("LOG_LEVEL"),
			Format: viper.GetString("LOG_FORMAT"),
		},
		Metrics: MetricsConfig{
			Port: viper.GetInt("METRICS_PORT"),
		},
		SchemaPath: viper.GetString("SCHEMA_PATH"),
	}

	return config, nil
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
}
