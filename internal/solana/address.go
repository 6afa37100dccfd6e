package solana

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PublicKeyLength is the byte length of a Solana account address.
const PublicKeyLength = 32

// ErrInvalidAddress is returned for strings that are not Solana addresses.
var ErrInvalidAddress = errors.New("invalid solana address")

// DecodeAddress decodes a base58 address into its 32 raw bytes.
func DecodeAddress(addr string) ([]byte, error) {
	raw, err := base58.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, addr, err)
	}
	if len(raw) != PublicKeyLength {
		return nil, fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidAddress, addr, len(raw))
	}
	return raw, nil
}

// IsValidAddress reports whether addr is a base58 encoded 32-byte address.
// Program derived addresses are accepted.
func IsValidAddress(addr string) bool {
	_, err := DecodeAddress(addr)
	return err == nil
}

// ValidateWalletAddress checks that addr is a keypair-owned address,
// i.e. a point on the ed25519 curve. PDAs cannot own wallets.
func ValidateWalletAddress(addr string) error {
	raw, err := DecodeAddress(addr)
	if err != nil {
		return err
	}
	if !isOnCurve(raw) {
		return fmt.Errorf("%w: %q is not on the ed25519 curve", ErrInvalidAddress, addr)
	}
	return nil
}

func isOnCurve(point []byte) bool {
	if len(point) != PublicKeyLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
