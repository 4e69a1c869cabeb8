// Package config defines engine configuration structures and loading hooks.
//
// Conventions follow the rest of the codebase: defaults come from New,
// Load layers an optional YAML file and PW_-prefixed environment variables
// on top, and external errors are wrapped via this package's sentinels.
package config

import "time"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// AccessKey addresses the remote store. Without it the engine runs
	// in a local-only "not connected" state.
	AccessKey string `koanf:"access_key"`

	// StatePath is the local warm-restart snapshot file.
	StatePath string `koanf:"state_path"`

	// RealtimeURL is the websocket endpoint of the real-time channel.
	RealtimeURL string `koanf:"realtime_url"`

	// RestBaseURL is the base endpoint of the HTTP fallback transport.
	RestBaseURL string `koanf:"rest_base_url"`

	// MetricsAddr exposes /metrics when non-empty, e.g. ":9188".
	MetricsAddr string `koanf:"metrics_addr"`

	// DebounceDelayMS is the settle window for the sync tasks.
	DebounceDelayMS int `koanf:"debounce_delay_ms"`

	// FallbackWindowMS is how long a push waits for the real-time
	// acknowledgment before the fallback save runs.
	FallbackWindowMS int `koanf:"fallback_window_ms"`

	// SettleDelayMS is the short pause a refresh waits for trailing
	// asynchronous writes before reloading.
	SettleDelayMS int `koanf:"settle_delay_ms"`

	// ReconnectAttempts and ReconnectDelayMS bound the real-time
	// channel's reconnect loop.
	ReconnectAttempts int `koanf:"reconnect_attempts"`
	ReconnectDelayMS  int `koanf:"reconnect_delay_ms"`

	// RequestTimeoutMS bounds individual fallback HTTP requests.
	RequestTimeoutMS int `koanf:"request_timeout_ms"`

	// RetryAttempts is kept for config compatibility with older
	// deployments. The save path performs a single attempt before
	// falling back transports and never consults this value.
	RetryAttempts int `koanf:"retry_attempts"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		StatePath:         "platoon-widget-state.json",
		MetricsAddr:       "",
		DebounceDelayMS:   1000,
		FallbackWindowMS:  3000,
		SettleDelayMS:     10,
		ReconnectAttempts: 5,
		ReconnectDelayMS:  1000,
		RequestTimeoutMS:  10000,
		RetryAttempts:     3,
	}
}

// DebounceDelay returns the debounce window as a duration.
func (c *Config) DebounceDelay() time.Duration {
	return time.Duration(c.DebounceDelayMS) * time.Millisecond
}

// FallbackWindow returns the push fallback window as a duration.
func (c *Config) FallbackWindow() time.Duration {
	return time.Duration(c.FallbackWindowMS) * time.Millisecond
}

// SettleDelay returns the refresh settle pause as a duration.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMS) * time.Millisecond
}

// ReconnectDelay returns the realtime reconnect pause as a duration.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMS) * time.Millisecond
}

// RequestTimeout returns the fallback request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}
