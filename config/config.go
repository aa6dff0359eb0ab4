/*
config.go - Server configuration

PURPOSE:
  Loads configuration from, in increasing precedence:
  1. Built-in defaults
  2. YAML config file (optional)
  3. .env file (optional, via godotenv)
  4. Environment variables

ENVIRONMENT VARIABLES:
  SETTLE_ADDR              Listen address (default :8080)
  SETTLE_DB_PATH           SQLite database path (default settle.db)
  SETTLE_DEFAULT_CURRENCY  Currency for unscoped queries (default USD)
  SETTLE_LOG_LEVEL         debug | info | warn | error (default info)

SEE ALSO:
  - cmd/server/main.go: Where the config is consumed
*/
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds everything the server needs to start.
type Config struct {
	Addr            string `yaml:"addr"`
	DBPath          string `yaml:"db_path"`
	DefaultCurrency string `yaml:"default_currency"`
	LogLevel        string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:            ":8080",
		DBPath:          "settle.db",
		DefaultCurrency: "USD",
		LogLevel:        "info",
	}
}

// Load builds the config from defaults, an optional YAML file, an
// optional .env file, and the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// A missing .env is not an error.
	_ = godotenv.Load()

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SETTLE_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("SETTLE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("SETTLE_DEFAULT_CURRENCY"); v != "" {
		cfg.DefaultCurrency = v
	}
	if v := os.Getenv("SETTLE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
