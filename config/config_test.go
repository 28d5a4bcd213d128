package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fundtreasury/native/treasury"
)

const (
	testOwner  = "0x00000000000000000000000000000000000000a0"
	testAuthA  = "0x00000000000000000000000000000000000000a1"
	testAuthB  = "0x00000000000000000000000000000000000000b1"
	testSecret = "0123456789abcdef0123456789abcdef"
)

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "treasuryd.toml", `ListenAddress = "127.0.0.1:9090"
DataDir = "/var/lib/treasury"
ShutdownTimeout = "3s"

[treasury]
Owner = "`+testOwner+`"
Authorities = ["`+testAuthA+`", "`+testAuthB+`"]
RequiredApprovals = 2
InitialReleaseBps = 2500
VoteAfterApproval = "noop"
ReleaseCaller = "any"

[auth]
JWTSecret = "`+testSecret+`"

[rate_limit]
RatePerSecond = 1.5
Burst = 3

[gateway]
AllowedOrigins = ["https://dashboard.example.org"]
LogRequests = true
MaxConnections = 256
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != "127.0.0.1:9090" || cfg.ShutdownTimeout.Duration != 3*time.Second {
		t.Fatalf("unexpected server settings %+v", cfg)
	}
	if cfg.Gateway.MaxConnections != 256 {
		t.Fatalf("expected max connections 256, got %d", cfg.Gateway.MaxConnections)
	}
	if cfg.RateLimit.RatePerSecond != 1.5 || cfg.RateLimit.Burst != 3 {
		t.Fatalf("unexpected rate limit %+v", cfg.RateLimit)
	}
	if cfg.Gateway.IdempotencyTTL.Duration != 24*time.Hour || len(cfg.Gateway.AllowedOrigins) != 1 || !cfg.Gateway.LogRequests {
		t.Fatalf("unexpected gateway settings %+v", cfg.Gateway)
	}
	if cfg.Audit.DSN != "sqlite:///var/lib/treasury/audit.db" {
		t.Fatalf("unexpected default audit dsn %q", cfg.Audit.DSN)
	}

	genesis, err := cfg.Genesis()
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	if len(genesis.Authorities) != 2 || genesis.RequiredApprovals != 2 {
		t.Fatalf("unexpected genesis %+v", genesis)
	}
	params, err := cfg.Params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if params.InitialReleaseBps != 2500 || params.VoteAfterApproval != treasury.VoteAfterApprovalNoop || params.ReleaseCaller != treasury.ReleaseCallerAny {
		t.Fatalf("unexpected params %+v", params)
	}
}

func TestLoadYAMLWithSecretEnv(t *testing.T) {
	t.Setenv("TREASURY_TEST_JWT", testSecret)
	path := writeFile(t, "treasuryd.yaml", `
listen: ":8181"
treasury:
  owner: "`+testOwner+`"
  authorities: ["`+testAuthA+`"]
  required_approvals: 1
auth:
  jwt_secret_env: TREASURY_TEST_JWT
log:
  level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.JWTSecret != testSecret {
		t.Fatalf("secret not resolved from env")
	}
	if cfg.Log.Level != "debug" || cfg.ListenAddress != ":8181" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	params, err := cfg.Params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if params != treasury.DefaultParams() {
		t.Fatalf("expected default params, got %+v", params)
	}
}

func TestLoadSecretFromFile(t *testing.T) {
	secretPath := writeFile(t, "jwt.secret", testSecret+"\n")
	path := writeFile(t, "treasuryd.toml", `[treasury]
Owner = "`+testOwner+`"
Authorities = ["`+testAuthA+`"]
RequiredApprovals = 1

[auth]
JWTSecretFile = "`+secretPath+`"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.JWTSecret != testSecret {
		t.Fatalf("secret not resolved from file")
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"unknown key": `Bogus = 1
[treasury]
Owner = "` + testOwner + `"
Authorities = ["` + testAuthA + `"]
RequiredApprovals = 1
[auth]
JWTSecret = "` + testSecret + `"`,
		"threshold above authorities": `[treasury]
Owner = "` + testOwner + `"
Authorities = ["` + testAuthA + `"]
RequiredApprovals = 2
[auth]
JWTSecret = "` + testSecret + `"`,
		"bad owner": `[treasury]
Owner = "nope"
Authorities = ["` + testAuthA + `"]
RequiredApprovals = 1
[auth]
JWTSecret = "` + testSecret + `"`,
		"short secret": `[treasury]
Owner = "` + testOwner + `"
Authorities = ["` + testAuthA + `"]
RequiredApprovals = 1
[auth]
JWTSecret = "short"`,
		"missing secret": `[treasury]
Owner = "` + testOwner + `"
Authorities = ["` + testAuthA + `"]
RequiredApprovals = 1`,
		"full first tranche": `[treasury]
Owner = "` + testOwner + `"
Authorities = ["` + testAuthA + `"]
RequiredApprovals = 1
InitialReleaseBps = 10000
[auth]
JWTSecret = "` + testSecret + `"`,
		"unknown release caller": `[treasury]
Owner = "` + testOwner + `"
Authorities = ["` + testAuthA + `"]
RequiredApprovals = 1
ReleaseCaller = "anyone"
[auth]
JWTSecret = "` + testSecret + `"`,
		"sample ratio above one": `[treasury]
Owner = "` + testOwner + `"
Authorities = ["` + testAuthA + `"]
RequiredApprovals = 1
[auth]
JWTSecret = "` + testSecret + `"
[telemetry]
Endpoint = "collector:4318"
SampleRatio = 2.0`,
		"negative max connections": `[treasury]
Owner = "` + testOwner + `"
Authorities = ["` + testAuthA + `"]
RequiredApprovals = 1
[auth]
JWTSecret = "` + testSecret + `"
[gateway]
MaxConnections = -1`,
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, "treasuryd.toml", contents)
			if _, err := Load(path); err == nil {
				t.Fatalf("expected %s to be rejected", name)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"out.toml", "out.yaml"} {
		cfg := Default()
		cfg.Treasury.Owner = testOwner
		cfg.Treasury.Authorities = []string{testAuthA, testAuthB}
		cfg.Treasury.RequiredApprovals = 2
		cfg.Auth.JWTSecret = testSecret

		path := filepath.Join(t.TempDir(), name)
		if err := Save(path, cfg); err != nil {
			t.Fatalf("%s: save: %v", name, err)
		}
		loaded, err := Load(path)
		if err != nil {
			t.Fatalf("%s: load: %v", name, err)
		}
		if loaded.ShutdownTimeout != cfg.ShutdownTimeout || !strings.EqualFold(loaded.Treasury.Owner, testOwner) {
			t.Fatalf("%s: round trip mismatch %+v", name, loaded)
		}
	}
}
