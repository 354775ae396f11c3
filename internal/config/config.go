// Package config centralizes runtime configuration for poolgate. All
// options come from POOLGATE_-prefixed environment variables with sensible
// defaults, so development runs need no setup while operators can pin every
// knob in the unit file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"

	"poolgate.io/pgw/internal/types"
)

// Config holds configurable options for the poolgate service.
type Config struct {
	Port   int    `env:"POOLGATE_PORT" envDefault:"8080"`
	DBPath string `env:"POOLGATE_DB_PATH" envDefault:"poolgate.db"`

	// Destinations is a semicolon-separated list of destination=receiver
	// pairs, e.g. "base=0x6f1a...;osmo=osmo1qy3...". The receiver is the
	// pool counterpart identity on the remote domain. The set is fixed for
	// the lifetime of the process.
	Destinations string `env:"POOLGATE_DESTINATIONS" envDefault:"devnet=pool-devnet"`

	// Threshold is expressed in display units of the pooled asset and
	// converted to base units using AssetDecimals.
	Threshold     string `env:"POOLGATE_THRESHOLD" envDefault:"1000"`
	AssetDecimals int32  `env:"POOLGATE_ASSET_DECIMALS" envDefault:"0"`

	Asset    string `env:"POOLGATE_ASSET" envDefault:"upool"`
	FeeAsset string `env:"POOLGATE_FEE_ASSET" envDefault:"ufee"`

	// Account is the gateway's own identity on the asset ledger; custody
	// pulls and fee authorizations are made in its name.
	Account string `env:"POOLGATE_ACCOUNT" envDefault:"poolgate"`

	// Empty endpoints select the in-process loopback implementations,
	// which is what development and the test suite use.
	CarrierURL     string `env:"POOLGATE_CARRIER_URL"`
	AssetLedgerURL string `env:"POOLGATE_ASSET_LEDGER_URL"`

	PollInterval time.Duration `env:"POOLGATE_POLL_INTERVAL" envDefault:"15s"`

	LogLevel    string `env:"POOLGATE_LOG_LEVEL" envDefault:"info"`
	Development bool   `env:"POOLGATE_DEV" envDefault:"false"`

	// OTelEndpoint enables tracing when set; see internal/telemetry.
	OTelEndpoint string `env:"POOLGATE_OTEL_ENDPOINT"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if _, err := cfg.Receivers(); err != nil {
		return nil, err
	}
	if _, err := cfg.ThresholdBase(); err != nil {
		return nil, err
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", cfg.PollInterval)
	}
	return cfg, nil
}

// Receivers parses the Destinations list into a destination -> receiver
// identity map.
func (c *Config) Receivers() (map[types.Destination]string, error) {
	receivers := make(map[types.Destination]string)
	for _, pair := range strings.Split(c.Destinations, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		dest, receiver, ok := strings.Cut(pair, "=")
		dest = strings.TrimSpace(dest)
		receiver = strings.TrimSpace(receiver)
		if !ok || dest == "" || receiver == "" {
			return nil, fmt.Errorf("malformed destination pair %q (want dest=receiver)", pair)
		}
		if _, exists := receivers[types.Destination(dest)]; exists {
			return nil, fmt.Errorf("duplicate destination %q", dest)
		}
		receivers[types.Destination(dest)] = receiver
	}
	if len(receivers) == 0 {
		return nil, fmt.Errorf("no destinations configured")
	}
	return receivers, nil
}

// ThresholdBase converts the display-unit threshold into base units of the
// pooled asset. The result must be a positive integer amount; fractional
// base units are rejected rather than rounded.
func (c *Config) ThresholdBase() (uint64, error) {
	d, err := decimal.NewFromString(c.Threshold)
	if err != nil {
		return 0, fmt.Errorf("parse threshold %q: %w", c.Threshold, err)
	}
	base := d.Shift(c.AssetDecimals)
	if !base.IsInteger() {
		return 0, fmt.Errorf("threshold %s has fractional base units at %d decimals", c.Threshold, c.AssetDecimals)
	}
	if base.Sign() <= 0 {
		return 0, fmt.Errorf("threshold must be positive, got %s", c.Threshold)
	}
	bi := base.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("threshold %s overflows base units", c.Threshold)
	}
	return bi.Uint64(), nil
}
