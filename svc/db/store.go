package db

import (
	"context"

	"burnbin/pkg/domain"
)

// Store persists paste records. Get applies no gating; IncrViews is a single
// backend-side atomic update and silently does nothing for unknown ids.
type Store interface {
	Create(ctx context.Context, p *domain.Paste) error
	Get(ctx context.Context, id string) (*domain.Paste, error)
	IncrViews(ctx context.Context, id string) error
	// IncrViewsCapped increments only while views < max_views and reports
	// whether a row changed.
	IncrViewsCapped(ctx context.Context, id string) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*SQLite)(nil)
	_ Store = (*RedisStore)(nil)
)
