package crypto

import (
	"errors"
	"testing"
)

func TestParseAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()

	fromHex, err := ParseAddress(addr.Hex())
	if err != nil {
		t.Fatalf("parse hex: %v", err)
	}
	if fromHex != addr {
		t.Fatalf("hex round trip mismatch: %s != %s", fromHex, addr)
	}
	fromBech, err := ParseAddress(addr.Bech32())
	if err != nil {
		t.Fatalf("parse bech32: %v", err)
	}
	if fromBech != addr {
		t.Fatalf("bech32 round trip mismatch: %s != %s", fromBech, addr)
	}
}

func TestParseAddressRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "0x1234", "nope", "cosmos1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqnrql8a"} {
		if _, err := ParseAddress(raw); !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("expected ErrInvalidAddress for %q, got %v", raw, err)
		}
	}
}

func TestAddressTextMarshalling(t *testing.T) {
	addr := MustParseAddress("0x00000000000000000000000000000000000000aa")
	text, err := addr.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Address
	if err := decoded.UnmarshalText(text); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded != addr {
		t.Fatalf("expected %s, got %s", addr, decoded)
	}
	if ZeroAddress.IsZero() != true || addr.IsZero() {
		t.Fatalf("unexpected IsZero results")
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := t.TempDir() + "/key.json"
	if err := SaveToKeystoreWithParams(path, key, "correct horse", LightKeystoreParams); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadFromKeystore(path, "correct horse")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.PubKey().Address() != key.PubKey().Address() {
		t.Fatalf("loaded key controls a different address")
	}
	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatalf("expected wrong passphrase to fail")
	}
}

func TestPrivateKeyFromHex(t *testing.T) {
	key, err := PrivateKeyFromHex("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	want := MustParseAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	if got := key.PubKey().Address(); got != want {
		t.Fatalf("unexpected address %s", got.Hex())
	}
	if _, err := PrivateKeyFromHex("zz"); err == nil {
		t.Fatalf("expected non-hex input to fail")
	}
	if _, err := PrivateKeyFromHex("0x01"); err == nil {
		t.Fatalf("expected short scalar to fail")
	}
}
