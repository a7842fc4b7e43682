// Package validation provides input validation for on-chain identifiers.
package validation

import (
	"errors"
	"regexp"
	"strings"
)

var (
	addressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	hashRegex    = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
)

// ValidateAddress checks a 20-byte hex address.
func ValidateAddress(addr string) error {
	if addr == "" {
		return errors.New("address is empty")
	}
	if !addressRegex.MatchString(addr) {
		return errors.New("invalid address: must be 0x-prefixed 20-byte hex")
	}
	return nil
}

// ValidateTxHash checks a 32-byte hex transaction hash.
func ValidateTxHash(hash string) error {
	if hash == "" {
		return errors.New("transaction hash is empty")
	}
	if !hashRegex.MatchString(hash) {
		return errors.New("invalid transaction hash: must be 0x-prefixed 32-byte hex")
	}
	return nil
}

// ValidateBytes32 checks a 0x-prefixed 32-byte hex string (EIP-3009 nonce).
func ValidateBytes32(s string) error {
	if !hashRegex.MatchString(s) {
		return errors.New("invalid value: must be 0x-prefixed 32-byte hex")
	}
	return nil
}

// SameAddress compares two hex addresses case-insensitively.
func SameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}
