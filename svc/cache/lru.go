package cache

import (
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Tombstones remembers ids of pastes that can never be served again. Only
// view-exhausted pastes qualify: views never decrease and max_views is fixed,
// whereas expiry depends on a clock that tests may move. The paste's expiry
// is kept so callers can still report expiry ahead of exhaustion.
type Tombstones struct {
	c *lru.Cache[string, *time.Time]
}

func NewTombstones(size int) (*Tombstones, error) {
	if size <= 0 {
		return nil, errors.New("cache size must be positive")
	}
	if size > 1000000 {
		return nil, errors.New("cache size too large")
	}
	c, err := lru.New[string, *time.Time](size)
	if err != nil {
		return nil, err
	}
	return &Tombstones{c: c}, nil
}
func (t *Tombstones) Bury(id string, expiresAt *time.Time) {
	t.c.Add(id, expiresAt)
}
func (t *Tombstones) Buried(id string) (expiresAt *time.Time, ok bool) {
	return t.c.Get(id)
}
func (t *Tombstones) Len() int {
	return t.c.Len()
}
