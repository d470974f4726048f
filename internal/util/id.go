package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// IsUUID reports whether value parses as a UUID. Path and header ids are
// rejected before they reach the store.
func IsUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}
