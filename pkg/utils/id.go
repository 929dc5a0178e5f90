package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a new unique identifier. A non-empty prefix is prepended,
// e.g. "bid_6f1c…".
func GenerateID(prefix string) string {
	id := uuid.New().String()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
