package config

import (
	"os"
	"testing"
	"time"
)

// writeTempConfig creates a minimal configuration file required for LoadConfig
// and returns its path.
func writeTempConfig(t *testing.T) string {
	t.Helper()
	content := `fundingflow:
  name: "TestApp"
  version: "1.0"
channels:
  raw_buffer: 1
source:
  binance:
    funding:
      enabled: true
      symbols: ["btcusdt"]
    liquidation:
      enabled: true
      watchlist: ["BTC"]
storage:
  s3:
    enabled: false
`
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	return f.Name()
}

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Fundingflow.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Fundingflow.Name)
	}
	if len(cfg.Source.Binance.Funding.Symbols) != 1 {
		t.Errorf("unexpected symbols: %v", cfg.Source.Binance.Funding.Symbols)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeTempConfig(t)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Source.Binance.WebsocketURL != "wss://fstream.binance.com/ws" {
		t.Errorf("unexpected websocket url: %s", cfg.Source.Binance.WebsocketURL)
	}
	if cfg.Reader.Retry.BaseDelay != time.Second || cfg.Reader.Retry.MaxDelay != 60*time.Second {
		t.Errorf("unexpected retry defaults: %+v", cfg.Reader.Retry)
	}
	if cfg.Source.Binance.Liquidation.MinUSD != 3000 {
		t.Errorf("unexpected min notional: %v", cfg.Source.Binance.Liquidation.MinUSD)
	}
	if cfg.Source.Binance.Liquidation.EmphasisUSD != 10000 {
		t.Errorf("unexpected emphasis notional: %v", cfg.Source.Binance.Liquidation.EmphasisUSD)
	}
	if cfg.Source.Binance.Liquidation.DisplayTimezone != "America/New_York" {
		t.Errorf("unexpected display timezone: %s", cfg.Source.Binance.Liquidation.DisplayTimezone)
	}
}

func TestLoadConfigMissingName(t *testing.T) {
	content := `fundingflow:
  version: "1.0"
channels:
  raw_buffer: 1
`
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()

	if _, err := LoadConfig(f.Name()); err == nil {
		t.Fatal("expected validation error for missing name")
	}
}

func TestLoadConfigWatchlistRequired(t *testing.T) {
	content := `fundingflow:
  name: "TestApp"
  version: "1.0"
channels:
  raw_buffer: 1
source:
  binance:
    liquidation:
      enabled: true
`
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()

	if _, err := LoadConfig(f.Name()); err == nil {
		t.Fatal("expected validation error for empty watchlist")
	}
}

func TestIsValidS3Bucket(t *testing.T) {
	valid := []string{"my-bucket", "bucket123", "a.b.c"}
	for _, name := range valid {
		if !isValidS3Bucket(name) {
			t.Errorf("expected bucket %q to be valid", name)
		}
	}

	invalid := []string{"ab", "UPPER", "trailing.", ".leading", "double..dot"}
	for _, name := range invalid {
		if isValidS3Bucket(name) {
			t.Errorf("expected bucket %q to be invalid", name)
		}
	}
}

func TestResolveEnvSpecificPathExplicitWins(t *testing.T) {
	t.Setenv(appEnvVar, "production")
	got := resolveEnvSpecificPath("custom.yml", defaultConfigPath, envConfigPaths)
	if got != "custom.yml" {
		t.Fatalf("expected explicit path to win, got %q", got)
	}
}

func TestAppEnvironmentAliases(t *testing.T) {
	t.Setenv(appEnvVar, "prod")
	if env := AppEnvironment(); env != EnvironmentProduction {
		t.Fatalf("expected alias to resolve to production, got %q", env)
	}

	t.Setenv(appEnvVar, "")
	if env := AppEnvironment(); env != EnvironmentDevelopment {
		t.Fatalf("expected default development, got %q", env)
	}
}
