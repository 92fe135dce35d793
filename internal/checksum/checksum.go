// Package checksum provides content digests used for change detection.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Short returns the first 12 hex characters of the digest of s. Vault ids
// are derived this way from the absolute root path, so the same directory
// always maps to the same vault.
func Short(s string) string {
	return Sum([]byte(s))[:12]
}
