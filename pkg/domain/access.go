package domain

import "time"

// DenyReason is the internal cause of a refused retrieval. It reaches logs
// and metrics, never the client.
type DenyReason int

const (
	NotDenied       DenyReason = iota // retrieval allowed
	DeniedExpired                     // now is past expires_at
	DeniedViewLimit                   // views reached max_views
)

func (r DenyReason) String() string {
	switch r {
	case DeniedExpired:
		return "expired"
	case DeniedViewLimit:
		return "view_limit"
	default:
		return "none"
	}
}

// Decision is the outcome of gating one retrieval.
type Decision struct {
	Reason DenyReason
}

// Granted reports whether the retrieval may proceed.
func (d Decision) Granted() bool { return d.Reason == NotDenied }

// Err maps a denial to its internal error. Callers at the HTTP boundary
// collapse every denial into ErrPasteNotFound.
func (d Decision) Err() error {
	switch d.Reason {
	case DeniedExpired:
		return ErrPasteExpired
	case DeniedViewLimit:
		return ErrViewLimitExceeded
	default:
		return nil
	}
}

// Decide applies the gating rules. Expiry is checked first so a paste that is
// both expired and exhausted always reports DeniedExpired.
func Decide(p *Paste, now time.Time) Decision {
	if p.ExpiresAt != nil && now.UnixMilli() > p.ExpiresAt.UnixMilli() {
		return Decision{Reason: DeniedExpired}
	}
	if p.Exhausted() {
		return Decision{Reason: DeniedViewLimit}
	}
	return Decision{}
}

// DecideBuried gates a paste already known to be out of views, given only its
// expiry. Expiry still wins over the view limit.
func DecideBuried(expiresAt *time.Time, now time.Time) Decision {
	if expiresAt != nil && now.UnixMilli() > expiresAt.UnixMilli() {
		return Decision{Reason: DeniedExpired}
	}
	return Decision{Reason: DeniedViewLimit}
}

// Exhausted reports whether the view cap has been reached. Views never
// decrease and MaxViews is immutable, so once true it stays true.
func (p *Paste) Exhausted() bool {
	return p.MaxViews != nil && p.Views >= *p.MaxViews
}

// RemainingViews is computed from the view count read before the increment.
func (p *Paste) RemainingViews() *int {
	if p.MaxViews == nil {
		return nil
	}
	n := *p.MaxViews - p.Views - 1
	return &n
}

// ExpiryAfter returns the absolute expiry for a ttl in seconds, or nil when
// ttlSeconds is nil.
func ExpiryAfter(now time.Time, ttlSeconds *int) *time.Time {
	if ttlSeconds == nil {
		return nil
	}
	t := time.UnixMilli(now.UnixMilli() + int64(*ttlSeconds)*1000)
	return &t
}

// ToView builds the client payload for a granted retrieval.
func (p *Paste) ToView() *View {
	return &View{
		Content:        p.Content,
		RemainingViews: p.RemainingViews(),
		ExpiresAt:      FormatExpiry(p.ExpiresAt),
	}
}
