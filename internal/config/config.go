// Package config loads client configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable, e.g. CHATSTREAM_URL.
const Prefix = "CHATSTREAM"

// Transport names accepted by TRANSPORT.
const (
	TransportGorilla = "gorilla"
	TransportGobwas  = "gobwas"
)

// Config holds all client configuration.
type Config struct {
	URL              string        `envconfig:"URL" default:"ws://localhost:8080/chat"`
	Transport        string        `envconfig:"TRANSPORT" default:"gorilla"`
	HandshakeTimeout time.Duration `envconfig:"HANDSHAKE_TIMEOUT" default:"0s"`
	MetricsAddr      string        `envconfig:"METRICS_ADDR"`
	Logging          LogConfig     `envconfig:"LOG"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LEVEL" default:"info"`
	Development bool   `envconfig:"DEV" default:"false"`
}

// Load reads env files and then the environment. Without envFiles it reads
// ./.env if present. Named files must exist.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFiles...); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		URL:       "ws://localhost:8080/chat",
		Transport: TransportGorilla,
		Logging: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Transport) {
	case TransportGorilla, TransportGobwas:
	default:
		return fmt.Errorf("unknown transport %q (want %s or %s)", c.Transport, TransportGorilla, TransportGobwas)
	}
	if c.HandshakeTimeout < 0 {
		return fmt.Errorf("handshake timeout must not be negative, got %s", c.HandshakeTimeout)
	}
	return nil
}
