// Package uuid generates identifiers for runs and
// temporary stores
package uuid

import (
	google_uuid "github.com/google/uuid"
)

// MustUUID returns a random UUID string
func MustUUID() string {
	return google_uuid.New().String()
}

// Short returns the first block of a random UUID. It is
// meant for names read by humans, such as log fields.
func Short() string {
	return MustUUID()[:8]
}
