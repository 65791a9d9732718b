package config

import (
	"os"
	"testing"
)

func TestLoad_FileOverridesDefaults(t *testing.T) {
	yamlContent := []byte(`
storage:
  data_dir: "/tmp/crossengine-test/data"
server:
  port: 9090
trading:
  default_leverage: 10
  liquidation_interval_sec: 5
`)

	tmpFile, err := os.CreateTemp("", "crossengine-config-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(yamlContent); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatalf("failed to close temp file: %v", err)
	}

	os.Unsetenv("DATA_DIR")
	os.Unsetenv("PORT")

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Storage.DataDir != "/tmp/crossengine-test/data" {
		t.Errorf("got dataDir=%q", cfg.Storage.DataDir)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("got port=%d, want 9090", cfg.Server.Port)
	}
	if cfg.Trading.DefaultLeverage != 10 {
		t.Errorf("got defaultLeverage=%d, want 10", cfg.Trading.DefaultLeverage)
	}
	// Untouched by the file, should retain the built-in default.
	if cfg.Trading.ExpirySettleIntervalSec != 3600 {
		t.Errorf("got expirySettleIntervalSec=%d, want 3600", cfg.Trading.ExpirySettleIntervalSec)
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	os.Unsetenv("DATA_DIR")
	os.Unsetenv("PORT")

	cfg, err := Load("/nonexistent/crossengine-config.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("got port=%d, want 8080", cfg.Server.Port)
	}
	if cfg.Trading.DefaultLeverage != 20 {
		t.Errorf("got defaultLeverage=%d, want 20", cfg.Trading.DefaultLeverage)
	}
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	os.Setenv("PORT", "7777")
	defer os.Unsetenv("PORT")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("got port=%d, want 7777", cfg.Server.Port)
	}
}
