package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"torunveil/internal/model"
)

// Fingerprint alignment rules for pattern scoring.
const (
	AlignTruncate = "truncate"
	AlignPadZero  = "pad-zero"
)

// EngineConfig holds the correlation engine tunables.
type EngineConfig struct {
	TemporalWindowSeconds  int           `yaml:"temporal_window_seconds"`
	Weights                model.Weights `yaml:"weights"`
	MinConfidenceThreshold float64       `yaml:"min_confidence_threshold"`
	MaxConcurrency         int           `yaml:"max_concurrency"`
	AlignmentRule          string        `yaml:"fingerprint_alignment_rule"`
	FetchTimeout           string        `yaml:"fetch_timeout"`
	PersistTimeout         string        `yaml:"persist_timeout"`
}

// PostgresConfig holds the node/flow catalog connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// ClickHouseConfig holds the correlation store connection settings.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// StorageConfig groups both stores.
type StorageConfig struct {
	Postgres   PostgresConfig   `yaml:"postgres"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// NATSConfig holds the flow transport settings.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// CrawlerConfig holds the topology feed settings.
type CrawlerConfig struct {
	OnionooURL string `yaml:"onionoo_url"`
	Timeout    string `yaml:"timeout"`
}

// APIConfig holds the REST server settings.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Storage StorageConfig `yaml:"storage"`
	NATS    NATSConfig    `yaml:"nats"`
	Crawler CrawlerConfig `yaml:"crawler"`
	API     APIConfig     `yaml:"api"`
}

// LoadConfig reads the configuration from a YAML file and returns a Config
// struct with defaults applied for any omitted fields.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	return cfg, nil
}

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			TemporalWindowSeconds:  300,
			Weights:                model.Weights{Temporal: 0.4, Bandwidth: 0.3, Pattern: 0.3},
			MinConfidenceThreshold: 0.0,
			MaxConcurrency:         8,
			AlignmentRule:          AlignTruncate,
			FetchTimeout:           "30s",
			PersistTimeout:         "30s",
		},
		Storage: StorageConfig{
			Postgres: PostgresConfig{
				Host: "localhost", Port: 5432,
				User: "postgres", Password: "postgres",
				Database: "torunveil", SSLMode: "disable",
			},
			ClickHouse: ClickHouseConfig{
				Host: "localhost", Port: 9000,
				Database: "default", Username: "default",
			},
		},
		NATS: NATSConfig{
			URL:     "nats://127.0.0.1:4222",
			Subject: "tu.flows.extracted",
		},
		Crawler: CrawlerConfig{
			OnionooURL: "https://onionoo.torproject.org/details?type=relay&running=true",
			Timeout:    "30s",
		},
		API: APIConfig{ListenAddr: ":8080"},
	}
}

// FetchTimeoutDuration parses the catalog fetch timeout.
func (e EngineConfig) FetchTimeoutDuration() (time.Duration, error) {
	return time.ParseDuration(e.FetchTimeout)
}

// PersistTimeoutDuration parses the persistence write timeout.
func (e EngineConfig) PersistTimeoutDuration() (time.Duration, error) {
	return time.ParseDuration(e.PersistTimeout)
}
