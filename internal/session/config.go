package session

import (
	"time"

	"github.com/rs/zerolog"
)

// BackoffConfig defines retry pacing for failed poll cycles.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines session pacing and reliability settings.
//
// KeepaliveInterval of zero takes the default; a negative value disables the
// keepalive loop. EventTimeout of zero means plugin-message event waits are
// bounded only by the caller's context.
type Config struct {
	PollInterval      time.Duration
	PollTimeout       time.Duration
	RequestTimeout    time.Duration
	KeepaliveInterval time.Duration
	EventTimeout      time.Duration
	Backoff           BackoffConfig

	Transport Transport
	Logger    *zerolog.Logger
}

func DefaultConfig() Config {
	return Config{
		PollInterval:      500 * time.Millisecond,
		PollTimeout:       90 * time.Second,
		RequestTimeout:    15 * time.Second,
		KeepaliveInterval: 25 * time.Second,
		Backoff: BackoffConfig{
			Multiplier: 2.0,
			MaxDelay:   5 * time.Second,
			Jitter:     true,
		},
	}
}

func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = def.PollTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.KeepaliveInterval == 0 {
		c.KeepaliveInterval = def.KeepaliveInterval
	}
	if c.Backoff.InitialDelay <= 0 {
		// The poll interval hint doubles as the first retry delay.
		c.Backoff.InitialDelay = c.PollInterval
	}
	if c.Backoff.Multiplier < 1.0 {
		c.Backoff.Multiplier = def.Backoff.Multiplier
	}
	if c.Backoff.MaxDelay <= 0 {
		c.Backoff.MaxDelay = def.Backoff.MaxDelay
	}
	if c.Transport == nil {
		c.Transport = NewHTTPTransport(nil)
	}
	return c
}
