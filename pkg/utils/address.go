package utils

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// GenerateID generates a random record ID
func GenerateID() string {
	return uuid.NewString()
}

// IsValidAddress checks if a string is a syntactically valid Ethereum address
func IsValidAddress(address string) bool {
	_, ok := ParseAddress(address)
	return ok
}

// ParseAddress trims surrounding whitespace and decodes a hex address.
// Callers must use the returned address rather than decoding the input again.
func ParseAddress(address string) (common.Address, bool) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return common.Address{}, false
	}
	return common.HexToAddress(address), true
}

// NormalizeAddress normalizes an address to lowercase with 0x prefix
func NormalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	if !strings.HasPrefix(address, "0x") && !strings.HasPrefix(address, "0X") {
		address = "0x" + address
	}
	return strings.ToLower(address)
}

// SameAddress compares two addresses ignoring checksum casing
func SameAddress(a, b string) bool {
	return NormalizeAddress(a) == NormalizeAddress(b)
}

// ShortAddress abbreviates an address for display, e.g. 0x1234...abcd
func ShortAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return fmt.Sprintf("%s...%s", address[:6], address[len(address)-4:])
}
