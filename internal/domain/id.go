package domain

import (
	"github.com/google/uuid"
)

// NewID generates a UUIDv7 string for application-owned entities.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewHandleIdentifier returns a random 16-byte identifier suitable for the
// guid or secret half of a locally issued QueryHandle.
func NewHandleIdentifier() []byte {
	id := uuid.New()
	return id[:]
}
