package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support human readable values in both
// TOML and YAML files.
type Duration struct {
	time.Duration
}

// UnmarshalText parses human readable duration strings such as "15s".
func (d *Duration) UnmarshalText(text []byte) error {
	raw := string(text)
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText renders the duration in time.Duration notation.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	return d.UnmarshalText([]byte(value.Value))
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level      string `toml:"Level" yaml:"level"`
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"max_size_mb"`
	MaxBackups int    `toml:"MaxBackups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"max_age_days"`
}

// TreasuryConfig seeds the authority registry on first boot and tunes the
// disbursement lifecycle.
type TreasuryConfig struct {
	Owner             string   `toml:"Owner" yaml:"owner"`
	Authorities       []string `toml:"Authorities" yaml:"authorities"`
	RequiredApprovals uint64   `toml:"RequiredApprovals" yaml:"required_approvals"`
	InitialReleaseBps uint64   `toml:"InitialReleaseBps" yaml:"initial_release_bps"`
	VoteAfterApproval string   `toml:"VoteAfterApproval" yaml:"vote_after_approval"`
	ReleaseCaller     string   `toml:"ReleaseCaller" yaml:"release_caller"`
}

// AuthConfig configures bearer token verification on the gateway.
type AuthConfig struct {
	JWTSecret     string `toml:"JWTSecret" yaml:"jwt_secret"`
	JWTSecretEnv  string `toml:"JWTSecretEnv" yaml:"jwt_secret_env"`
	JWTSecretFile string `toml:"JWTSecretFile" yaml:"jwt_secret_file"`
	Issuer        string `toml:"Issuer" yaml:"issuer"`
	Audience      string `toml:"Audience" yaml:"audience"`
}

// RateLimitConfig bounds mutating requests per client.
type RateLimitConfig struct {
	RatePerSecond float64 `toml:"RatePerSecond" yaml:"rate_per_second"`
	Burst         int     `toml:"Burst" yaml:"burst"`
}

// GatewayConfig tunes the HTTP surface.
type GatewayConfig struct {
	AllowedOrigins []string `toml:"AllowedOrigins" yaml:"allowed_origins"`
	IdempotencyTTL Duration `toml:"IdempotencyTTL" yaml:"idempotency_ttl"`
	LogRequests    bool     `toml:"LogRequests" yaml:"log_requests"`
	// MaxConnections caps concurrently accepted connections. Zero means
	// unlimited.
	MaxConnections int `toml:"MaxConnections" yaml:"max_connections"`
}

// AuditConfig selects the audit trail backend.
type AuditConfig struct {
	DSN         string `toml:"DSN" yaml:"dsn"`
	DSNEnv      string `toml:"DSNEnv" yaml:"dsn_env"`
	ExportDir   string `toml:"ExportDir" yaml:"export_dir"`
	MaxPageSize int    `toml:"MaxPageSize" yaml:"max_page_size"`
}

// TelemetryConfig wires the OTLP exporters.
type TelemetryConfig struct {
	Endpoint string `toml:"Endpoint" yaml:"endpoint"`
	Insecure bool   `toml:"Insecure" yaml:"insecure"`
	Headers  string `toml:"Headers" yaml:"headers"`
	Metrics  bool   `toml:"Metrics" yaml:"metrics"`
	Traces   bool   `toml:"Traces" yaml:"traces"`

	SampleRatio    float64  `toml:"SampleRatio" yaml:"sample_ratio"`
	ExportInterval Duration `toml:"ExportInterval" yaml:"export_interval"`
}
