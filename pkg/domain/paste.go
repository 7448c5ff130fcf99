package domain

import (
	"time"
)

// Paste is the persisted record. Everything except Views is fixed at creation.
type Paste struct {
	ID        string     `json:"id"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at"`
	MaxViews  *int       `json:"max_views"`
	Views     int        `json:"views"`
}

// CreateParams carries an already-decoded create request. Nil pointers mean
// the field was absent.
type CreateParams struct {
	Content    string
	TTLSeconds *int
	MaxViews   *int
}

// View is what a successful retrieval hands back to the client.
type View struct {
	Content        string  `json:"content"`
	RemainingViews *int    `json:"remaining_views"`
	ExpiresAt      *string `json:"expires_at"`
}

const isoMillis = "2006-01-02T15:04:05.000Z"

// FormatExpiry renders an expiry instant as a UTC ISO-8601 string with
// millisecond precision, or nil when the paste never expires.
func FormatExpiry(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(isoMillis)
	return &s
}
