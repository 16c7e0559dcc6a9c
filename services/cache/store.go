package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Store is a keyed, time-expiring store of prior successful outputs.
// Implementations must be safe for concurrent use and must never return an
// expired entry.
type Store interface {
	// Get returns the cached value for key, if present and unexpired
	Get(ctx context.Context, key string) (string, bool, error)

	// Put stores a value under key with the store's TTL
	Put(ctx context.Context, key, value string) error
}

// Key derives the deterministic cache key for a request from its kind,
// provider, and input.
func Key(kind, provider, input string) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(provider))
	h.Write([]byte{0})
	h.Write([]byte(input))
	return hex.EncodeToString(h.Sum(nil))
}
