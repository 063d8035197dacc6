package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	defaultLogLevel       = LogLevelInfo
	defaultListen         = ":8080"
	defaultDataDir        = "./data"
	defaultCatalogName    = "catalog.md"
	defaultBaseDelay      = time.Minute
	defaultMaxDelay       = 30 * time.Minute
	defaultMaxAttempts    = 5
	defaultRequestTimeout = time.Minute
	defaultWorkers        = 1
	defaultHistorySize    = 50
)

// Duration wraps time.Duration so it can be written as "30s" or "5m" in the
// config file.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("cannot parse duration %q: %w", s, err)
	}

	*d = Duration(v)

	return nil
}

func (d Duration) Value() time.Duration {
	return time.Duration(d)
}

type FetcherConfig struct {
	BaseDelay      Duration `yaml:"base_delay"`      // initial backoff
	MaxDelay       Duration `yaml:"max_delay"`       // backoff ceiling
	MaxAttempts    int      `yaml:"max_attempts"`    // retry ceiling
	RequestTimeout Duration `yaml:"request_timeout"` // per-attempt deadline
}

type OrchestratorConfig struct {
	Workers     int    `yaml:"workers"`
	DataDir     string `yaml:"data_dir"`
	CatalogName string `yaml:"catalog_filename"`
}

type ReportConfig struct {
	HistorySize int64 `yaml:"history_size"` // redis run history cap
}

type Config struct {
	Listen        string             `yaml:"listen"`
	LogLevel      string             `yaml:"log_level"`
	RedisURL      string             `yaml:"redis_url"`
	Fetcher       FetcherConfig      `yaml:"fetcher"`
	Orchestrator  OrchestratorConfig `yaml:"orchestrator"`
	Report        ReportConfig       `yaml:"report"`
}

func (c *Config) SetDefaults() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.Fetcher.BaseDelay == 0 {
		c.Fetcher.BaseDelay = Duration(defaultBaseDelay)
	}
	if c.Fetcher.MaxDelay == 0 {
		c.Fetcher.MaxDelay = Duration(defaultMaxDelay)
	}
	if c.Fetcher.MaxAttempts == 0 {
		c.Fetcher.MaxAttempts = defaultMaxAttempts
	}
	if c.Fetcher.RequestTimeout == 0 {
		c.Fetcher.RequestTimeout = Duration(defaultRequestTimeout)
	}
	if c.Orchestrator.Workers == 0 {
		c.Orchestrator.Workers = defaultWorkers
	}
	if c.Orchestrator.DataDir == "" {
		c.Orchestrator.DataDir = defaultDataDir
	}
	if c.Orchestrator.CatalogName == "" {
		c.Orchestrator.CatalogName = defaultCatalogName
	}
	if c.Report.HistorySize == 0 {
		c.Report.HistorySize = defaultHistorySize
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file: %w", err)
	}

	cfg.SetDefaults()

	// Environment wins over the file for deployment-specific values.
	if url := os.Getenv("HARVESTER_REDIS_URL"); url != "" {
		cfg.RedisURL = url
	}
	if listen := os.Getenv("HARVESTER_LISTEN"); listen != "" {
		cfg.Listen = listen
	}

	return &cfg, nil
}

func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}
