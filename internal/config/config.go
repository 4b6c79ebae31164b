// Package config loads the draftline configuration from draftline.yml plus
// environment overrides.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config represents the draftline configuration
type Config struct {
	// RegistryPath points at the table registry declaration file
	RegistryPath string `mapstructure:"registry_path"`

	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Session   SessionConfig   `mapstructure:"session"`
	Relations RelationsConfig `mapstructure:"relations"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	// Driver is the database/sql driver name: "pgx" or "sqlite3"
	Driver string `mapstructure:"driver"`

	// URL is the connection string / DSN
	URL string `mapstructure:"url"`
}

// ServerConfig represents the HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// SessionConfig represents workspace session configuration
type SessionConfig struct {
	// Store selects the backend: "memory" or "redis"
	Store string `mapstructure:"store"`

	// RedisAddr is the Redis address when the redis store is selected
	RedisAddr string `mapstructure:"redis_addr"`

	// RedisPassword is the Redis password (empty if no auth)
	RedisPassword string `mapstructure:"redis_password"`

	// DefaultWorkspace is the workspace activated by optimal switching
	DefaultWorkspace int64 `mapstructure:"default_workspace"`
}

// RelationsConfig tunes relation resolution
type RelationsConfig struct {
	// FilterJunctionTargets drops many-to-many entries pointing at
	// soft-deleted target rows
	FilterJunctionTargets bool `mapstructure:"filter_junction_targets"`
}

// Addr returns the listen address in host:port form
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load loads the configuration from draftline.yml or draftline.yaml
func Load() (*Config, error) {
	return LoadFrom(".")
}

// LoadFrom loads the configuration from the given directory
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()

	v.SetDefault("registry_path", "registry.json")
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.url", "draftline.db")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("session.store", "memory")
	v.SetDefault("session.redis_addr", "localhost:6379")
	v.SetDefault("session.default_workspace", 0)
	v.SetDefault("relations.filter_junction_targets", false)

	v.SetConfigName("draftline")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix("DRAFTLINE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// DatabaseURL returns the connection string, preferring the environment
func DatabaseURL(cfg *Config) string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	return cfg.Database.URL
}

func validate(cfg *Config) error {
	switch cfg.Database.Driver {
	case "pgx", "postgres", "sqlite3":
	default:
		return fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
	switch cfg.Session.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported session store: %s", cfg.Session.Store)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	return nil
}
