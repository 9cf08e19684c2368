package trace

import (
	"crypto/sha256"
	"encoding/hex"
)

// ComputeHash hashes a canonical trace encoding (sha256, hex encoded).
// The input must already be canonical bytes, e.g. from CanonicalJSON.
func ComputeHash(canonicalEncoding []byte) string {
	if len(canonicalEncoding) == 0 {
		return ""
	}
	sum := sha256.Sum256(canonicalEncoding)
	return hex.EncodeToString(sum[:])
}
