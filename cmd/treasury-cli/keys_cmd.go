package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"fundtreasury/cmd/internal/passphrase"
	"fundtreasury/config"
	"fundtreasury/crypto"
	"fundtreasury/gateway/middleware"
	"fundtreasury/native/treasury"
)

const (
	passphraseEnv = "TREASURY_KEYSTORE_PASSPHRASE"
	jwtSecretEnv  = "TREASURY_JWT_SECRET"
	privateKeyEnv = "TREASURY_PRIVATE_KEY"
)

var (
	tokenNow      = time.Now
	keystoreCost  = crypto.StandardKeystoreParams
	newPassphrase = func(confirm bool) *passphrase.Source {
		if confirm {
			return passphrase.NewConfirmingSource(passphraseEnv)
		}
		return passphrase.NewSource(passphraseEnv)
	}
)

func runGenerateKey(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "Error: usage: generate-key <keystore>")
		return 1
	}
	path := args[0]
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(stderr, "Error: %s already exists\n", path)
		return 1
	}
	secret, err := newPassphrase(true).Get()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(stderr, "Error generating key: %v\n", err)
		return 1
	}
	if err := crypto.SaveToKeystoreWithParams(path, key, secret, keystoreCost); err != nil {
		fmt.Fprintf(stderr, "Error writing keystore: %v\n", err)
		return 1
	}
	addr := key.PubKey().Address()
	fmt.Fprintf(stdout, "address: %s\nbech32:  %s\nkeystore: %s\n", addr.Hex(), addr.Bech32(), path)
	return 0
}

// runImportKey encrypts the hex key held in TREASURY_PRIVATE_KEY into a new
// keystore.
func runImportKey(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "Error: usage: import-key <keystore>")
		return 1
	}
	path := args[0]
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(stderr, "Error: %s already exists\n", path)
		return 1
	}
	raw := strings.TrimSpace(os.Getenv(privateKeyEnv))
	if raw == "" {
		fmt.Fprintf(stderr, "Error: %s must be set\n", privateKeyEnv)
		return 1
	}
	key, err := crypto.PrivateKeyFromHex(raw)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	secret, err := newPassphrase(true).Get()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := crypto.SaveToKeystoreWithParams(path, key, secret, keystoreCost); err != nil {
		fmt.Fprintf(stderr, "Error writing keystore: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "address: %s\nkeystore: %s\n", key.PubKey().Address().Hex(), path)
	return 0
}

func loadAddress(path string) (crypto.Address, error) {
	secret, err := newPassphrase(false).Get()
	if err != nil {
		return crypto.Address{}, err
	}
	key, err := crypto.LoadFromKeystore(path, secret)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("open keystore: %w", err)
	}
	return key.PubKey().Address(), nil
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "Error: usage: address <keystore>")
		return 1
	}
	addr, err := loadAddress(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "address: %s\nbech32:  %s\n", addr.Hex(), addr.Bech32())
	return 0
}

// runToken signs a bearer token for an address, or for the key held in a
// keystore when the argument is not an address.
func runToken(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "Error: usage: token <address|keystore> [--ttl 1h]")
		return 1
	}
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	issuer := fs.String("issuer", "fundtreasury", "iss claim")
	audience := fs.String("audience", "", "aud claim")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	secret := strings.TrimSpace(os.Getenv(jwtSecretEnv))
	if secret == "" {
		fmt.Fprintf(stderr, "Error: %s must be set\n", jwtSecretEnv)
		return 1
	}
	subject, err := crypto.ParseAddress(args[0])
	if err != nil {
		subject, err = loadAddress(args[0])
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}
	token, err := middleware.SignToken(secret, *issuer, *audience, subject, *ttl, tokenNow())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}

func runInitConfig(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "Error: usage: init-config <path> --owner A --authorities B,C [--required N]")
		return 1
	}
	path := args[0]
	fs := flag.NewFlagSet("init-config", flag.ContinueOnError)
	fs.SetOutput(stderr)
	owner := fs.String("owner", "", "owner address")
	authorities := fs.String("authorities", "", "comma separated authority addresses")
	required := fs.Uint64("required", 0, "required approvals (defaults to a simple majority)")
	listen := fs.String("listen", ":8080", "listen address")
	dataDir := fs.String("data-dir", "./treasury-data", "data directory")
	bps := fs.Uint64("initial-release-bps", treasury.DefaultInitialReleaseBps, "first tranche in basis points")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	var members []string
	for _, raw := range strings.Split(*authorities, ",") {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			members = append(members, trimmed)
		}
	}
	threshold := *required
	if threshold == 0 {
		threshold = uint64(len(members)/2 + 1)
	}
	cfg := &config.Config{
		ListenAddress: *listen,
		DataDir:       *dataDir,
		Treasury: config.TreasuryConfig{
			Owner:             *owner,
			Authorities:       members,
			RequiredApprovals: threshold,
			InitialReleaseBps: *bps,
			VoteAfterApproval: treasury.VoteAfterApprovalReject.String(),
			ReleaseCaller:     treasury.ReleaseCallerOwner.String(),
		},
		Auth: config.AuthConfig{JWTSecretEnv: jwtSecretEnv},
	}
	genesis, err := cfg.Genesis()
	if err == nil {
		_, err = treasury.NewAuthorityRegistry(genesis.Owner, genesis.Authorities, genesis.RequiredApprovals)
	}
	if err == nil {
		_, err = cfg.Params()
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := config.Save(path, cfg); err != nil {
		fmt.Fprintf(stderr, "Error writing config: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "wrote %s (owner %s, %d authorities, %d required)\n", path, genesis.Owner.Hex(), len(genesis.Authorities), threshold)
	return 0
}
