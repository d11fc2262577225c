package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest returns the hex SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ShortDigest is the first 12 hex characters of Digest, for log lines.
func ShortDigest(data []byte) string {
	return Digest(data)[:12]
}
