package core

import "github.com/google/uuid"

// NewUUIDv7 generates a new UUIDv7. Item and attempt IDs are time-ordered
// so store range scans follow creation order.
func NewUUIDv7() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to UUID v4 if v7 fails (should not happen)
		return uuid.New().String()
	}
	return id.String()
}

// IsValidUUID checks if a string is a valid UUID (any version).
func IsValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
