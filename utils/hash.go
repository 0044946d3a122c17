package utils

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// HashID one-way hashes an identifier for display and log correlation.
// The result is never usable as a lookup key back into the queue store;
// internal lookups always use the raw id.
func HashID(id string) string {
	sum := blake2b.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])[:16]
}
