package uuidutil

import "github.com/google/uuid"

// New returns a time-ordered UUIDv7 so history rows sort by creation.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
