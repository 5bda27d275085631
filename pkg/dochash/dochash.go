// Package dochash computes the tamper-evidence fingerprint of an agreement.
// The hash covers the agreement text, structured terms, and party list, and
// is computed exactly once at contract creation; any structural edit implies
// a new contract with a new hash.
package dochash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Sum returns the hex-encoded SHA-256 of the canonical JSON encoding of v.
// encoding/json marshals struct fields in declaration order and map keys
// sorted, which is canonical enough for same-process fingerprinting.
func Sum(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
