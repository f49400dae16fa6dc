package util

import "github.com/google/uuid"

// NewID returns a random UUIDv4 string, the key format the study tables use.
func NewID() string {
	return uuid.NewString()
}
