package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/deesatzed/tuhs-abx-steward/internal/domain"
)

// Manager loads and holds application configuration via Viper.
type Manager struct {
	config *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	// Set configuration file name and paths
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/abx-steward/")

	// Set environment variable prefix and enable automatic env binding
	viper.SetEnvPrefix("ABX_STEWARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set default values
	m.setDefaults()

	// Read configuration file (optional - will use defaults and env vars if not found)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	// Unmarshal configuration into struct
	config := &domain.Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")

	// Guidelines defaults
	viper.SetDefault("guidelines.dir", "./guidelines")
	viper.SetDefault("guidelines.fail_on_violations", false)

	// Dosing defaults
	viper.SetDefault("dosing.weight_based_drugs", []string{"vancomycin"})

	// Evidence search defaults
	viper.SetDefault("evidence.enabled", true)
	viper.SetDefault("evidence.max_in_flight", 4)
	viper.SetDefault("evidence.query_timeout", "10s")
	viper.SetDefault("evidence.confidence.base", 0.9)
	viper.SetDefault("evidence.confidence.subcategory_fallback", 0.10)
	viper.SetDefault("evidence.confidence.pregnancy_filtered", 0.15)
	viper.SetDefault("evidence.confidence.severe_allergy", 0.10)
	viper.SetDefault("evidence.confidence.allergy_inferred", 0.05)
	viper.SetDefault("evidence.confidence.renal_edge_tier", 0.10)
	viper.SetDefault("evidence.confidence.weight_missing", 0.05)
	viper.SetDefault("evidence.confidence.extra_warnings", 0.05)
	viper.SetDefault("evidence.confidence.floor", 0.10)

	// Audit defaults
	viper.SetDefault("audit.enabled", true)
	viper.SetDefault("audit.dir", "./audit_logs")

	// Feedback defaults
	viper.SetDefault("feedback.backend", "sqlite")
	viper.SetDefault("feedback.sqlite_path", "./feedback.db")

	// Database defaults (postgres feedback backend)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "abx_steward")
	viper.SetDefault("database.username", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_conns", 25)
	viper.SetDefault("database.min_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "1h")
	viper.SetDefault("database.conn_max_idle_time", "30m")
	viper.SetDefault("database.migrations_path", "file://migrations")

	// Cache defaults
	viper.SetDefault("cache.redis_url", "redis://localhost:6379")
	viper.SetDefault("cache.default_ttl", "24h")
	viper.SetDefault("cache.max_retries", 3)
	viper.SetDefault("cache.pool_size", 10)
	viper.SetDefault("cache.pool_timeout", "4s")
	viper.SetDefault("cache.local_size", 512)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetEvidenceConfig returns evidence search configuration
func (m *Manager) GetEvidenceConfig() *domain.EvidenceConfig {
	return &m.config.Evidence
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	// Validate server configuration
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	// Validate guidelines configuration
	if config.Guidelines.Dir == "" {
		return fmt.Errorf("guidelines directory is required")
	}

	// Validate evidence configuration
	if config.Evidence.Enabled {
		if config.Evidence.MaxInFlight <= 0 {
			return fmt.Errorf("evidence max_in_flight must be positive: %d", config.Evidence.MaxInFlight)
		}
		c := config.Evidence.Confidence
		if c.Base <= 0 || c.Base > 1 {
			return fmt.Errorf("confidence base must be in (0, 1]: %f", c.Base)
		}
		if c.Floor < 0 || c.Floor > c.Base {
			return fmt.Errorf("confidence floor must be in [0, base]: %f", c.Floor)
		}
	}

	// Validate feedback configuration
	switch config.Feedback.Backend {
	case "sqlite":
		if config.Feedback.SQLitePath == "" {
			return fmt.Errorf("feedback sqlite_path is required")
		}
	case "postgres":
		if config.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if config.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if config.Database.Username == "" {
			return fmt.Errorf("database username is required")
		}
	default:
		return fmt.Errorf("invalid feedback backend: %s", config.Feedback.Backend)
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// GetDatabaseConnectionString returns a formatted database connection string
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// GetRedisConnectionString returns the Redis connection string
func (m *Manager) GetRedisConnectionString() string {
	return m.config.Cache.RedisURL
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(viper.GetString("environment")) == "production"
}
