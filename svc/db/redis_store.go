package db

import (
	"context"
	"strconv"
	"time"

	"burnbin/pkg/domain"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const pasteKeyPrefix = "paste:"

// RedisStore keeps each paste in one hash. Keys carry no TTL: dead pastes are
// filtered by the access rules, not by eviction.
type RedisStore struct {
	r *Redis
}

func NewRedisStore(r *Redis) *RedisStore {
	return &RedisStore{r: r}
}

var incrViewsScript = redis.NewScript(`
	if redis.call("EXISTS", KEYS[1]) == 0 then
		return 0
	end
	redis.call("HINCRBY", KEYS[1], "views", 1)
	return 1
`)

var incrViewsCappedScript = redis.NewScript(`
	if redis.call("EXISTS", KEYS[1]) == 0 then
		return 0
	end
	local max = redis.call("HGET", KEYS[1], "max_views")
	if max then
		local views = tonumber(redis.call("HGET", KEYS[1], "views") or "0")
		if views >= tonumber(max) then
			return 0
		end
	end
	redis.call("HINCRBY", KEYS[1], "views", 1)
	return 1
`)

func (s *RedisStore) Create(ctx context.Context, p *domain.Paste) error {
	ctx, cancel := context.WithTimeout(ctx, s.r.timeout)
	defer cancel()
	fields := map[string]interface{}{
		"content":    p.Content,
		"created_at": p.CreatedAt.UnixMilli(),
		"views":      0,
	}
	if p.ExpiresAt != nil {
		fields["expires_at"] = p.ExpiresAt.UnixMilli()
	}
	if p.MaxViews != nil {
		fields["max_views"] = *p.MaxViews
	}
	_, err := s.r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, pasteKeyPrefix+p.ID, fields)
		return nil
	})
	return errors.Wrap(err, "redis create")
}
func (s *RedisStore) Get(ctx context.Context, id string) (*domain.Paste, error) {
	ctx, cancel := context.WithTimeout(ctx, s.r.timeout)
	defer cancel()
	m, err := s.r.client.HGetAll(ctx, pasteKeyPrefix+id).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis get")
	}
	if len(m) == 0 {
		return nil, domain.ErrPasteNotFound
	}
	return decodePasteHash(id, m)
}
func decodePasteHash(id string, m map[string]string) (*domain.Paste, error) {
	p := &domain.Paste{ID: id, Content: m["content"]}
	createdAt, err := strconv.ParseInt(m["created_at"], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "decode created_at")
	}
	p.CreatedAt = time.UnixMilli(createdAt)
	if v, ok := m["expires_at"]; ok {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "decode expires_at")
		}
		t := time.UnixMilli(ms)
		p.ExpiresAt = &t
	}
	if v, ok := m["max_views"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.Wrap(err, "decode max_views")
		}
		p.MaxViews = &n
	}
	if p.Views, err = strconv.Atoi(m["views"]); err != nil {
		return nil, errors.Wrap(err, "decode views")
	}
	return p, nil
}
func (s *RedisStore) IncrViews(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.r.timeout)
	defer cancel()
	err := incrViewsScript.Run(ctx, s.r.client, []string{pasteKeyPrefix + id}).Err()
	return errors.Wrap(err, "incr views")
}
func (s *RedisStore) IncrViewsCapped(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.r.timeout)
	defer cancel()
	n, err := incrViewsCappedScript.Run(ctx, s.r.client, []string{pasteKeyPrefix + id}).Int()
	if err != nil {
		return false, errors.Wrap(err, "incr views capped")
	}
	return n == 1, nil
}
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.r.Ping(ctx)
}

// Close is a no-op; the shared client is closed by its owner.
func (s *RedisStore) Close() error {
	return nil
}
