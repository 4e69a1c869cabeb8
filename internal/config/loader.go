package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if PW_CONFIG is set
//  3. env (prefix PW_)
func Load(ctx context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("PW_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: PW_ACCESS_KEY, PW_DEBOUNCE_DELAY_MS, ...
	// Keys map flat onto the koanf tags, underscores preserved.
	envProvider := env.Provider("PW_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "pw_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if cfg.DebounceDelayMS <= 0 {
		return nil, fmt.Errorf("%w: debounce_delay_ms must be positive", ErrInvalidConfig)
	}
	if cfg.FallbackWindowMS <= 0 {
		return nil, fmt.Errorf("%w: fallback_window_ms must be positive", ErrInvalidConfig)
	}
	return &cfg, nil
}
