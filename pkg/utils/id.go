package utils

import "github.com/google/uuid"

// GenID returns a new opaque identifier. Used for message ids when the
// caller does not supply one.
func GenID() string {
	return uuid.NewString()
}
