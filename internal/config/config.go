// Package config loads the engine's YAML configuration, with environment
// variable overrides applied on top — the same load-then-override shape
// jupitor's config package uses.
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the engine process.
type Config struct {
	Storage   Storage   `yaml:"storage"`
	Server    Server    `yaml:"server"`
	Alpaca    Alpaca    `yaml:"alpaca"`
	Binance   Binance   `yaml:"binance"`
	Logging   Logging   `yaml:"logging"`
	Redis     Redis     `yaml:"redis"`
	Trading   Trading   `yaml:"trading"`
}

// Storage holds the durable JSON-file data directory.
type Storage struct {
	DataDir string `yaml:"data_dir"`
}

// Server holds the HTTP listener configuration.
type Server struct {
	Port int `yaml:"port"`
}

// Alpaca holds credentials for the US equities quote vendor.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// Binance holds the base URL for the crypto quote vendor.
type Binance struct {
	BaseURL string `yaml:"base_url"`
}

// Logging holds the logger level and format. cmd/server does not read
// these fields; it always installs a JSON handler at the default level.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Redis holds the broadcaster connection, optional — when URL is empty
// the in-process WebSocket hub is the sole broadcaster.
type Redis struct {
	URL string `yaml:"url"`
}

// Trading holds engine defaults that aren't pure math constants.
// cmd/server does not pass these fields to the engines: the engines use
// futures.DefaultLeverage, futures.TickInterval and options.TickInterval.
type Trading struct {
	DefaultLeverage          int `yaml:"default_leverage"`
	LiquidationIntervalSec   int `yaml:"liquidation_interval_sec"`
	ExpirySettleIntervalSec  int `yaml:"expiry_settle_interval_sec"`
}

// Default returns the configuration used when no file is found: a
// ~/.openclaw/ data directory, port 8080, 20x default leverage, the 10s
// liquidation sweep, and the 1h expiry sweep.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Storage: Storage{DataDir: home + "/.openclaw"},
		Server:  Server{Port: 8080},
		Binance: Binance{BaseURL: "https://api.binance.com"},
		Logging: Logging{Level: "info", Format: "json"},
		Trading: Trading{
			DefaultLeverage:         20,
			LiquidationIntervalSec:  10,
			ExpirySettleIntervalSec: 3600,
		},
	}
}

// Load reads the YAML configuration file at path (if it exists, falling
// back to Default otherwise), then applies environment variable
// overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and
// overrides the corresponding configuration fields when set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}
	if v := os.Getenv("BINANCE_BASE_URL"); v != "" {
		cfg.Binance.BaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
