package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashKey derives a stable cache key from arbitrary bytes. Used to key create
// receipts by permission signature: the signature covers every permission
// field, so equal keys mean equal requests.
func HashKey(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
