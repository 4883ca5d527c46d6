// Package config loads janusctl TOML configuration with a defaults overlay.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/voxlane/janusctl/internal/session"
)

// ClientConfig holds runtime settings for one gateway client.
// Durations are configured in milliseconds. A keepalive interval of -1
// disables the keepalive loop.
type ClientConfig struct {
	GatewayURL  string
	MetricsAddr string
	LogLevel    string

	PollIntervalMS      int
	PollTimeoutMS       int
	RequestTimeoutMS    int
	KeepaliveIntervalMS int
	EventTimeoutMS      int

	BackoffInitialMS  int
	BackoffMaxMS      int
	BackoffMultiplier float64
	BackoffJitter     bool
}

// fileConfig is the raw TOML key mapping.
type fileConfig struct {
	GatewayURL  string `toml:"gateway_url"`
	MetricsAddr string `toml:"metrics_addr"`
	LogLevel    string `toml:"log_level"`

	PollIntervalMS      int `toml:"poll_interval_ms"`
	PollTimeoutMS       int `toml:"poll_timeout_ms"`
	RequestTimeoutMS    int `toml:"request_timeout_ms"`
	KeepaliveIntervalMS int `toml:"keepalive_interval_ms"`
	EventTimeoutMS      int `toml:"event_timeout_ms"`

	BackoffInitialMS  int     `toml:"backoff_initial_ms"`
	BackoffMaxMS      int     `toml:"backoff_max_ms"`
	BackoffMultiplier float64 `toml:"backoff_multiplier"`
	BackoffJitter     bool    `toml:"backoff_jitter"`
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		GatewayURL:          "http://localhost:8088/janus",
		LogLevel:            "info",
		PollIntervalMS:      500,
		PollTimeoutMS:       90_000,
		RequestTimeoutMS:    15_000,
		KeepaliveIntervalMS: 25_000,
		BackoffInitialMS:    500,
		BackoffMaxMS:        5_000,
		BackoffMultiplier:   2.0,
		BackoffJitter:       true,
	}
}

// LoadClientConfig reads path and overlays defined keys onto the defaults.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ClientConfig{}, fmt.Errorf("load client config: %w", err)
	}

	if meta.IsDefined("gateway_url") {
		cfg.GatewayURL = strings.TrimSpace(raw.GatewayURL)
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("poll_interval_ms") {
		cfg.PollIntervalMS = raw.PollIntervalMS
	}
	if meta.IsDefined("poll_timeout_ms") {
		cfg.PollTimeoutMS = raw.PollTimeoutMS
	}
	if meta.IsDefined("request_timeout_ms") {
		cfg.RequestTimeoutMS = raw.RequestTimeoutMS
	}
	if meta.IsDefined("keepalive_interval_ms") {
		cfg.KeepaliveIntervalMS = raw.KeepaliveIntervalMS
	}
	if meta.IsDefined("event_timeout_ms") {
		cfg.EventTimeoutMS = raw.EventTimeoutMS
	}
	if meta.IsDefined("backoff_initial_ms") {
		cfg.BackoffInitialMS = raw.BackoffInitialMS
	}
	if meta.IsDefined("backoff_max_ms") {
		cfg.BackoffMaxMS = raw.BackoffMaxMS
	}
	if meta.IsDefined("backoff_multiplier") {
		cfg.BackoffMultiplier = raw.BackoffMultiplier
	}
	if meta.IsDefined("backoff_jitter") {
		cfg.BackoffJitter = raw.BackoffJitter
	}

	if err := ValidateClientConfig(cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func ValidateClientConfig(cfg ClientConfig) error {
	if strings.TrimSpace(cfg.GatewayURL) == "" {
		return fmt.Errorf("client config missing gateway_url")
	}
	if cfg.PollIntervalMS <= 0 {
		return fmt.Errorf("client config poll_interval_ms must be positive")
	}
	if cfg.BackoffMultiplier < 1.0 {
		return fmt.Errorf("client config backoff_multiplier must be >= 1.0")
	}
	return nil
}

// SessionConfig converts the file-level settings to engine settings.
func (c ClientConfig) SessionConfig() session.Config {
	return session.Config{
		PollInterval:      time.Duration(c.PollIntervalMS) * time.Millisecond,
		PollTimeout:       time.Duration(c.PollTimeoutMS) * time.Millisecond,
		RequestTimeout:    time.Duration(c.RequestTimeoutMS) * time.Millisecond,
		KeepaliveInterval: time.Duration(c.KeepaliveIntervalMS) * time.Millisecond,
		EventTimeout:      time.Duration(c.EventTimeoutMS) * time.Millisecond,
		Backoff: session.BackoffConfig{
			InitialDelay: time.Duration(c.BackoffInitialMS) * time.Millisecond,
			Multiplier:   c.BackoffMultiplier,
			MaxDelay:     time.Duration(c.BackoffMaxMS) * time.Millisecond,
			Jitter:       c.BackoffJitter,
		},
	}
}
