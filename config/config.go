// Package config loads server configuration from an optional YAML file,
// a .env file, and CASHBOOK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment key: server.port is read
// from CASHBOOK_SERVER_PORT.
const EnvPrefix = "CASHBOOK"

type Config struct {
	Server struct {
		Port               int      `mapstructure:"port"`
		CorsAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
	} `mapstructure:"server"`

	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`

	Ledger struct {
		MutationTimeout time.Duration `mapstructure:"mutation_timeout"`
	} `mapstructure:"ledger"`

	Backup struct {
		Enabled  bool          `mapstructure:"enabled"`
		Interval time.Duration `mapstructure:"interval"`
		Path     string        `mapstructure:"path"`
	} `mapstructure:"backup"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("database.path", "./data/cashbook.db")
	v.SetDefault("ledger.mutation_timeout", 30*time.Second)
	v.SetDefault("backup.enabled", false)
	v.SetDefault("backup.interval", 10*time.Minute)
	v.SetDefault("backup.path", "./data/backups/cashbook-backup.db")
}

// Load reads configuration. path may be empty, in which case only defaults
// and the environment apply. A named file that does not exist is an error.
func Load(path string) (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		log.Printf("[Config] Loaded %s", v.ConfigFileUsed())
	} else {
		log.Printf("[Config] No config file given, using defaults and environment")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Ledger.MutationTimeout < 0 {
		errs = append(errs, fmt.Errorf("ledger.mutation_timeout must not be negative: %s", c.Ledger.MutationTimeout))
	}
	if c.Backup.Enabled && strings.TrimSpace(c.Backup.Path) == "" {
		errs = append(errs, errors.New("backup.path is required when backups are enabled"))
	}
	return errors.Join(errs...)
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
