package dispatch

import (
	"context"
	"crypto/rand"
	"fmt"
)

// SystemEntropy salts proposal identities with fresh random bytes.
type SystemEntropy struct{}

func (SystemEntropy) Recent(_ context.Context) ([]byte, error) {
	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("read entropy: %w", err)
	}
	return salt, nil
}

// FixedEntropy returns the same salt every time. Deterministic proposal
// identities for tests.
type FixedEntropy []byte

func (e FixedEntropy) Recent(_ context.Context) ([]byte, error) {
	return []byte(e), nil
}
