package util

import (
	"crypto/sha1"
	"encoding/hex"
)

// GetIDFromString derives a stable logical ID from a string, typically the
// source URL joined with the category name.
func GetIDFromString(str *string) string {
	hasher := sha1.New()
	hasher.Write([]byte(*str))

	return hex.EncodeToString(hasher.Sum(nil))
}
