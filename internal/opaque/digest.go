package opaque

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const secretBytes = 48

// newSecret returns a fresh high-entropy secret encoded as hex.
func newSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("opaque: read entropy: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// DigestSecret computes the one-way digest under which a secret is stored.
// A given secret maps to exactly one digest; the preimage is never persisted
// or logged.
func DigestSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
