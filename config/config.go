package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Fundingflow FundingflowConfig `yaml:"fundingflow"`
	Channels    ChannelsConfig    `yaml:"channels"`
	Reader      ReaderConfig      `yaml:"reader"`
	Source      SourceConfig      `yaml:"source"`
	Output      OutputConfig      `yaml:"output"`
	Storage     StorageConfig     `yaml:"storage"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type FundingflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ChannelsConfig struct {
	RawBuffer int `yaml:"raw_buffer"`
}

type ReaderConfig struct {
	Timeout         time.Duration        `yaml:"timeout"`
	ValidateSymbols bool                 `yaml:"validate_symbols"`
	Retry           RetryConfig          `yaml:"retry"`
	RateLimit       RateLimitConfig      `yaml:"rate_limit"`
	ConnectionPool  ConnectionPoolConfig `yaml:"connection_pool"`
}

type RetryConfig struct {
	BaseDelay time.Duration `yaml:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay"`
	Jitter    bool          `yaml:"jitter"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type SourceConfig struct {
	Binance BinanceSourceConfig `yaml:"binance"`
}

type BinanceSourceConfig struct {
	WebsocketURL string            `yaml:"websocket_url"`
	RestURL      string            `yaml:"rest_url"`
	Funding      FundingConfig     `yaml:"funding"`
	Liquidation  LiquidationConfig `yaml:"liquidation"`
}

type FundingConfig struct {
	Enabled bool     `yaml:"enabled"`
	Symbols []string `yaml:"symbols"`
}

type LiquidationConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Watchlist       []string `yaml:"watchlist"`
	MinUSD          float64  `yaml:"min_usd"`
	EmphasisUSD     float64  `yaml:"emphasis_usd"`
	DisplayTimezone string   `yaml:"display_timezone"`
}

type OutputConfig struct {
	FundingCSV     string `yaml:"funding_csv"`
	LiquidationDir string `yaml:"liquidation_dir"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool          `yaml:"enabled"`
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	PathStyle       bool          `yaml:"path_style"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
	MaxBuffer       int           `yaml:"max_buffer"`
}

type MetricsConfig struct {
	CloudWatch  CloudWatchConfig `yaml:"cloudwatch"`
	ChannelSize bool             `yaml:"channel_size"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type LoggingConfig struct {
	Level             string        `yaml:"level"`
	Format            string        `yaml:"format"`
	Output            string        `yaml:"output"`
	MaxAge            int           `yaml:"max_age"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, defaultConfigPath, envConfigPaths)

	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Metrics: MetricsConfig{
			ChannelSize: true,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Source.Binance.WebsocketURL == "" {
		cfg.Source.Binance.WebsocketURL = "wss://fstream.binance.com/ws"
	}
	if cfg.Source.Binance.RestURL == "" {
		cfg.Source.Binance.RestURL = "https://fapi.binance.com"
	}
	if cfg.Reader.Retry.BaseDelay <= 0 {
		cfg.Reader.Retry.BaseDelay = time.Second
	}
	if cfg.Reader.Retry.MaxDelay <= 0 {
		cfg.Reader.Retry.MaxDelay = 60 * time.Second
	}
	if cfg.Reader.Timeout <= 0 {
		cfg.Reader.Timeout = 10 * time.Second
	}
	if cfg.Reader.RateLimit.RequestsPerSecond <= 0 {
		cfg.Reader.RateLimit.RequestsPerSecond = 5
	}
	if cfg.Reader.RateLimit.BurstSize <= 0 {
		cfg.Reader.RateLimit.BurstSize = 1
	}
	if cfg.Source.Binance.Liquidation.MinUSD <= 0 {
		cfg.Source.Binance.Liquidation.MinUSD = 3000
	}
	if cfg.Source.Binance.Liquidation.EmphasisUSD <= 0 {
		cfg.Source.Binance.Liquidation.EmphasisUSD = 10000
	}
	if cfg.Source.Binance.Liquidation.DisplayTimezone == "" {
		cfg.Source.Binance.Liquidation.DisplayTimezone = "America/New_York"
	}
	if cfg.Output.FundingCSV == "" {
		cfg.Output.FundingCSV = "data/funding_rates.csv"
	}
	if cfg.Output.LiquidationDir == "" {
		cfg.Output.LiquidationDir = "data/binance_liquidation_data"
	}
	if cfg.Storage.S3.FlushInterval <= 0 {
		cfg.Storage.S3.FlushInterval = time.Minute
	}
	if cfg.Storage.S3.MaxBuffer <= 0 {
		cfg.Storage.S3.MaxBuffer = 100
	}
	if cfg.Logging.HeartbeatInterval <= 0 {
		cfg.Logging.HeartbeatInterval = time.Hour
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Fundingflow.Name == "" {
		return fmt.Errorf("fundingflow.name is required")
	}

	if cfg.Fundingflow.Version == "" {
		return fmt.Errorf("fundingflow.version is required")
	}

	if cfg.Channels.RawBuffer <= 0 {
		return fmt.Errorf("channels.raw_buffer must be greater than 0")
	}

	if cfg.Source.Binance.Funding.Enabled && len(cfg.Source.Binance.Funding.Symbols) == 0 {
		return fmt.Errorf("source.binance.funding.symbols is required when the funding stream is enabled")
	}

	if cfg.Source.Binance.Liquidation.Enabled && len(cfg.Source.Binance.Liquidation.Watchlist) == 0 {
		return fmt.Errorf("source.binance.liquidation.watchlist is required when the liquidation stream is enabled")
	}

	if cfg.Reader.Retry.BaseDelay > cfg.Reader.Retry.MaxDelay {
		return fmt.Errorf("reader.retry.base_delay must not exceed reader.retry.max_delay")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
