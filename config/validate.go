package config

import (
	"fmt"
	"strings"

	"fundtreasury/native/treasury"
)

// ValidateConfig checks that cfg can boot a treasury.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: missing")
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return fmt.Errorf("config: listen address must be configured")
	}
	genesis, err := cfg.Genesis()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := treasury.NewAuthorityRegistry(genesis.Owner, genesis.Authorities, genesis.RequiredApprovals); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := cfg.Params(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if len(cfg.Auth.JWTSecret) < 32 {
		return fmt.Errorf("config: jwt secret must be at least 32 bytes")
	}
	if cfg.RateLimit.RatePerSecond < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("config: rate limit must not be negative")
	}
	if cfg.Gateway.MaxConnections < 0 {
		return fmt.Errorf("config: gateway max connections must not be negative")
	}
	if cfg.Telemetry.Traces || cfg.Telemetry.Metrics {
		if strings.TrimSpace(cfg.Telemetry.Endpoint) == "" {
			return fmt.Errorf("config: telemetry endpoint must be configured when exporters are enabled")
		}
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("config: telemetry sample ratio must be within [0,1]")
	}
	return nil
}
