package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Prefix marks every digest this service produces. The bare sentinel value
// never carries it, so the two are always distinguishable.
const Prefix = "0x"

// Sum returns the 0x-prefixed hex SHA-256 of input. Empty input is valid
// and hashes consistently.
func Sum(input []byte) string {
	sum := sha256.Sum256(input)
	return Prefix + hex.EncodeToString(sum[:])
}

// Equal compares two digests case-insensitively.
func Equal(a, b string) bool {
	return strings.EqualFold(a, b)
}

// Engine adapts the package functions to the interface the usecases take.
type Engine struct{}

func (Engine) Sum(input []byte) string { return Sum(input) }
func (Engine) Equal(a, b string) bool  { return Equal(a, b) }

// Valid reports whether value looks like a digest this service produced:
// 0x followed by 64 hex characters.
func Valid(value string) bool {
	if len(value) != len(Prefix)+sha256.Size*2 {
		return false
	}
	if !strings.HasPrefix(value, Prefix) {
		return false
	}
	_, err := hex.DecodeString(value[len(Prefix):])
	return err == nil
}
