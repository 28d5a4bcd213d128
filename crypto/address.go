package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
)

// Bech32Prefix is the human-readable part used when rendering principals in
// bech32 form.
const Bech32Prefix = "fund"

// AddressLength is the byte length of a principal identifier.
const AddressLength = 20

// ErrInvalidAddress is returned when a textual address cannot be decoded.
var ErrInvalidAddress = errors.New("crypto: invalid address")

// Address identifies a principal (owner, authority, depositor or recipient).
// The zero value is the null principal and is never a valid recipient.
type Address [AddressLength]byte

// ZeroAddress is the null principal.
var ZeroAddress Address

// BytesToAddress copies b into an Address. It fails unless b is exactly
// AddressLength bytes long.
func BytesToAddress(b []byte) (Address, error) {
	var addr Address
	if len(b) != AddressLength {
		return addr, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddress, AddressLength, len(b))
	}
	copy(addr[:], b)
	return addr, nil
}

// IsZero reports whether the address is the null principal.
func (a Address) IsZero() bool { return a == ZeroAddress }

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte { return append([]byte(nil), a[:]...) }

// Hex renders the EIP-55 checksummed hex form.
func (a Address) Hex() string { return common.Address(a).Hex() }

// String implements fmt.Stringer using the hex form, which is what wallets
// and the dashboard display.
func (a Address) String() string { return a.Hex() }

// Bech32 renders the address using the fund bech32 prefix.
func (a Address) Bech32() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(Bech32Prefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// MarshalText encodes the address in hex form.
func (a Address) MarshalText() ([]byte, error) { return []byte(a.Hex()), nil }

// UnmarshalText accepts any form understood by ParseAddress.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress decodes a 0x-prefixed hex address or a bech32 address carrying
// the fund prefix.
func ParseAddress(raw string) (Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Address{}, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		if !common.IsHexAddress(trimmed) {
			return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
		}
		return Address(common.HexToAddress(trimmed)), nil
	}
	prefix, decoded, err := bech32.Decode(trimmed)
	if err != nil {
		if len(trimmed) == 2*AddressLength {
			if b, hexErr := hex.DecodeString(trimmed); hexErr == nil {
				return BytesToAddress(b)
			}
		}
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if prefix != Bech32Prefix {
		return Address{}, fmt.Errorf("%w: unexpected prefix %q", ErrInvalidAddress, prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return BytesToAddress(conv)
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(raw string) Address {
	addr, err := ParseAddress(raw)
	if err != nil {
		panic(err)
	}
	return addr
}
