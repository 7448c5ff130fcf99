package util

import (
	"context"
	"time"
)

// Clock supplies the current instant. The paste service reads time only
// through a Clock so tests can pin it.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always reports the same instant.
type FixedClock struct{ T time.Time }

func (c FixedClock) Now() time.Time { return c.T }

const nowOverrideKey contextKey = "now_override"

// WithNow attaches a per-request override of the current time.
func WithNow(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, nowOverrideKey, t)
}

// Now returns the request override when present, otherwise c.Now().
func Now(ctx context.Context, c Clock) time.Time {
	if t, ok := ctx.Value(nowOverrideKey).(time.Time); ok {
		return t
	}
	return c.Now()
}
