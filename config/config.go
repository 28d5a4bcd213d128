package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"fundtreasury/crypto"
	"fundtreasury/native/treasury"
)

// Config captures the runtime configuration of treasuryd.
type Config struct {
	ListenAddress   string          `toml:"ListenAddress" yaml:"listen"`
	DataDir         string          `toml:"DataDir" yaml:"data_dir"`
	Environment     string          `toml:"Environment" yaml:"environment"`
	ShutdownTimeout Duration        `toml:"ShutdownTimeout" yaml:"shutdown_timeout"`
	Log             LogConfig       `toml:"log" yaml:"log"`
	Treasury        TreasuryConfig  `toml:"treasury" yaml:"treasury"`
	Auth            AuthConfig      `toml:"auth" yaml:"auth"`
	RateLimit       RateLimitConfig `toml:"rate_limit" yaml:"rate_limit"`
	Gateway         GatewayConfig   `toml:"gateway" yaml:"gateway"`
	Audit           AuditConfig     `toml:"audit" yaml:"audit"`
	Telemetry       TelemetryConfig `toml:"telemetry" yaml:"telemetry"`
}

// Load reads the configuration at path. Files ending in .yaml or .yml are
// decoded as YAML; everything else is TOML. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		dec := yaml.NewDecoder(file)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	default:
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0].String())
		}
	}
	applyDefaults(cfg)
	if err := cfg.Auth.normalise(); err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	if err := cfg.Audit.normalise(); err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every optional knob set to its
// default. The treasury section still needs an owner and authorities.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./treasury-data"
	}
	if cfg.ShutdownTimeout.Duration == 0 {
		cfg.ShutdownTimeout.Duration = 10 * time.Second
	}
	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Treasury.InitialReleaseBps == 0 {
		cfg.Treasury.InitialReleaseBps = treasury.DefaultInitialReleaseBps
	}
	if strings.TrimSpace(cfg.Treasury.VoteAfterApproval) == "" {
		cfg.Treasury.VoteAfterApproval = treasury.VoteAfterApprovalReject.String()
	}
	if strings.TrimSpace(cfg.Treasury.ReleaseCaller) == "" {
		cfg.Treasury.ReleaseCaller = treasury.ReleaseCallerOwner.String()
	}
	if cfg.Treasury.Authorities == nil {
		cfg.Treasury.Authorities = []string{}
	}
	if strings.TrimSpace(cfg.Auth.Issuer) == "" {
		cfg.Auth.Issuer = "fundtreasury"
	}
	if cfg.RateLimit.RatePerSecond == 0 {
		cfg.RateLimit.RatePerSecond = 5
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 10
	}
	if cfg.Gateway.IdempotencyTTL.Duration == 0 {
		cfg.Gateway.IdempotencyTTL.Duration = 24 * time.Hour
	}
	if strings.TrimSpace(cfg.Audit.DSN) == "" && strings.TrimSpace(cfg.Audit.DSNEnv) == "" {
		cfg.Audit.DSN = "sqlite://" + filepath.Join(cfg.DataDir, "audit.db")
	}
	if strings.TrimSpace(cfg.Audit.ExportDir) == "" {
		cfg.Audit.ExportDir = filepath.Join(cfg.DataDir, "exports")
	}
	if cfg.Audit.MaxPageSize <= 0 {
		cfg.Audit.MaxPageSize = 500
	}
}

func (a *AuthConfig) normalise() error {
	a.JWTSecret = strings.TrimSpace(a.JWTSecret)
	a.JWTSecretEnv = strings.TrimSpace(a.JWTSecretEnv)
	a.JWTSecretFile = strings.TrimSpace(a.JWTSecretFile)
	if a.JWTSecret != "" {
		return nil
	}
	switch {
	case a.JWTSecretEnv != "":
		value := strings.TrimSpace(os.Getenv(a.JWTSecretEnv))
		if value == "" {
			return fmt.Errorf("jwt_secret_env %s is empty", a.JWTSecretEnv)
		}
		a.JWTSecret = value
	case a.JWTSecretFile != "":
		contents, err := os.ReadFile(a.JWTSecretFile)
		if err != nil {
			return fmt.Errorf("read jwt_secret_file: %w", err)
		}
		a.JWTSecret = strings.TrimSpace(string(contents))
	default:
		return fmt.Errorf("jwt_secret is required")
	}
	return nil
}

func (a *AuditConfig) normalise() error {
	a.DSN = strings.TrimSpace(a.DSN)
	if env := strings.TrimSpace(a.DSNEnv); env != "" && a.DSN == "" {
		value := strings.TrimSpace(os.Getenv(env))
		if value == "" {
			return fmt.Errorf("dsn_env %s is empty", env)
		}
		a.DSN = value
	}
	return nil
}

// Genesis decodes the configured authority registry seed.
func (c *Config) Genesis() (treasury.Genesis, error) {
	owner, err := crypto.ParseAddress(c.Treasury.Owner)
	if err != nil {
		return treasury.Genesis{}, fmt.Errorf("treasury owner: %w", err)
	}
	authorities := make([]crypto.Address, 0, len(c.Treasury.Authorities))
	for i, raw := range c.Treasury.Authorities {
		addr, err := crypto.ParseAddress(raw)
		if err != nil {
			return treasury.Genesis{}, fmt.Errorf("treasury authorities[%d]: %w", i, err)
		}
		authorities = append(authorities, addr)
	}
	return treasury.Genesis{
		Owner:             owner,
		Authorities:       authorities,
		RequiredApprovals: c.Treasury.RequiredApprovals,
	}, nil
}

// Params decodes the lifecycle parameters.
func (c *Config) Params() (treasury.Params, error) {
	vote, err := treasury.ParseVoteAfterApproval(c.Treasury.VoteAfterApproval)
	if err != nil {
		return treasury.Params{}, err
	}
	release, err := treasury.ParseReleaseCaller(c.Treasury.ReleaseCaller)
	if err != nil {
		return treasury.Params{}, err
	}
	params := treasury.Params{
		InitialReleaseBps: c.Treasury.InitialReleaseBps,
		VoteAfterApproval: vote,
		ReleaseCaller:     release,
	}
	return params, params.Validate()
}

// Save writes cfg to path, choosing the encoding from the extension.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	default:
		return toml.NewEncoder(f).Encode(cfg)
	}
}
