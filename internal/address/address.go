// Package address validates withdrawal destination addresses per network.
package address

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// ErrInvalidAddress is returned for destinations that fail validation.
var ErrInvalidAddress = errors.New("invalid destination address")

// Network identifiers.
const (
	NetworkSolana   = "solana"
	NetworkEthereum = "ethereum"
)

// evmNetworks share Ethereum's address format.
var evmNetworks = map[string]bool{
	NetworkEthereum: true,
	"polygon":       true,
	"arbitrum":      true,
	"optimism":      true,
	"base":          true,
}

// NetworkForAsset infers the network for assets that live on one chain.
// Returns "" when the asset does not imply a network.
func NetworkForAsset(asset string) string {
	switch strings.ToUpper(asset) {
	case "SOL":
		return NetworkSolana
	case "ETH":
		return NetworkEthereum
	}
	return ""
}

// Validate checks destination against network rules.
// Unknown networks only require a non-empty value without whitespace.
func Validate(network, destination string) error {
	if destination == "" {
		return fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	if strings.IndexFunc(destination, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: contains whitespace", ErrInvalidAddress)
	}

	network = strings.ToLower(network)
	switch {
	case network == NetworkSolana:
		return validateSolana(destination)
	case evmNetworks[network]:
		return validateEVM(destination)
	}
	return nil
}

// validateSolana requires a base58 32-byte ed25519 public key on the curve.
func validateSolana(destination string) error {
	raw, err := base58.Decode(destination)
	if err != nil {
		return fmt.Errorf("%w: not base58", ErrInvalidAddress)
	}
	if len(raw) != 32 {
		return fmt.Errorf("%w: decoded length %d, want 32", ErrInvalidAddress, len(raw))
	}
	if _, err := new(edwards25519.Point).SetBytes(raw); err != nil {
		return fmt.Errorf("%w: not an ed25519 public key", ErrInvalidAddress)
	}
	return nil
}

// validateEVM requires 0x followed by 40 hex digits.
func validateEVM(destination string) error {
	if len(destination) != 42 || !strings.HasPrefix(destination, "0x") {
		return fmt.Errorf("%w: want 0x followed by 40 hex digits", ErrInvalidAddress)
	}
	for _, c := range destination[2:] {
		if !isHex(c) {
			return fmt.Errorf("%w: non-hex character %q", ErrInvalidAddress, c)
		}
	}
	return nil
}

func isHex(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
