package util

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// NewPasteID returns a random UUIDv4. Uniqueness rests on the 122 random
// bits; the store is never consulted.
func NewPasteID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", errors.Wrap(err, "rand fail")
	}
	return id.String(), nil
}

// ValidPasteID rejects ids that could never have been issued, so lookups for
// garbage paths skip the store.
func ValidPasteID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
