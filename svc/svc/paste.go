package svc

import (
	"context"
	"strings"

	"burnbin/cfg"
	"burnbin/metrics"
	"burnbin/pkg/domain"
	"burnbin/svc/cache"
	"burnbin/svc/db"
	"burnbin/svc/util"

	"github.com/pkg/errors"
)

type Paste struct {
	store        db.Store
	tombs        *cache.Tombstones
	clock        util.Clock
	maxPasteSize int64
	strictCap    bool
}

func NewPaste(store db.Store, tombs *cache.Tombstones, c *cfg.Cfg, clock util.Clock) *Paste {
	if store == nil || c == nil {
		panic("paste service: nil dependency (store or cfg)")
	}
	if clock == nil {
		clock = util.SystemClock{}
	}
	return &Paste{
		store:        store,
		tombs:        tombs,
		clock:        clock,
		maxPasteSize: c.MaxPasteSize,
		strictCap:    c.StrictViewCap,
	}
}

// Validate checks a create request in field order; the first failure wins.
func (p *Paste) Validate(params domain.CreateParams) error {
	if strings.TrimSpace(params.Content) == "" {
		return domain.ErrContentRequired
	}
	if p.maxPasteSize > 0 && int64(len(params.Content)) > p.maxPasteSize {
		return domain.ErrPasteTooLarge
	}
	if params.TTLSeconds != nil && *params.TTLSeconds < 1 {
		return domain.ErrInvalidTTL
	}
	if params.MaxViews != nil && *params.MaxViews < 1 {
		return domain.ErrInvalidMaxViews
	}
	return nil
}

func (p *Paste) Create(ctx context.Context, params domain.CreateParams) (*domain.Paste, error) {
	if err := p.Validate(params); err != nil {
		metrics.ValidationFailures.WithLabelValues(domain.ToResp(err).Error.Code).Inc()
		return nil, err
	}
	id, err := util.NewPasteID()
	if err != nil {
		return nil, errors.Wrap(err, "gen id")
	}
	now := util.Now(ctx, p.clock)
	paste := &domain.Paste{
		ID:        id,
		Content:   params.Content,
		CreatedAt: now,
		ExpiresAt: domain.ExpiryAfter(now, params.TTLSeconds),
		Views:     0,
	}
	if params.MaxViews != nil {
		n := *params.MaxViews
		paste.MaxViews = &n
	}
	if err := p.store.Create(ctx, paste); err != nil {
		metrics.StoreErrors.WithLabelValues("create").Inc()
		return nil, errors.Wrap(err, "create paste")
	}
	metrics.PasteCreated.Inc()
	return paste, nil
}

// Get loads a paste, gates it, and on success spends exactly one view. The
// remaining view count comes from the pre-increment read, so two concurrent
// callers that both pass the gate can both succeed unless the strict cap is
// on.
func (p *Paste) Get(ctx context.Context, id string) (*domain.View, error) {
	if !util.ValidPasteID(id) {
		metrics.PasteDenied.WithLabelValues("unknown").Inc()
		return nil, domain.ErrPasteNotFound
	}
	if p.tombs != nil {
		if expiresAt, ok := p.tombs.Buried(id); ok {
			metrics.TombstoneHits.Inc()
			decision := domain.DecideBuried(expiresAt, util.Now(ctx, p.clock))
			metrics.PasteDenied.WithLabelValues(decision.Reason.String()).Inc()
			return nil, decision.Err()
		}
	}
	paste, err := p.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrPasteNotFound) {
			metrics.PasteDenied.WithLabelValues("unknown").Inc()
			return nil, domain.ErrPasteNotFound
		}
		metrics.StoreErrors.WithLabelValues("get").Inc()
		return nil, errors.Wrap(err, "get paste")
	}
	decision := domain.Decide(paste, util.Now(ctx, p.clock))
	if !decision.Granted() {
		if paste.Exhausted() {
			p.bury(paste)
		}
		metrics.PasteDenied.WithLabelValues(decision.Reason.String()).Inc()
		return nil, decision.Err()
	}
	if err := p.spendView(ctx, paste); err != nil {
		return nil, err
	}
	view := paste.ToView()
	if view.RemainingViews != nil && *view.RemainingViews <= 0 {
		p.bury(paste)
	}
	return view, nil
}

func (p *Paste) spendView(ctx context.Context, paste *domain.Paste) error {
	id := paste.ID
	if !p.strictCap {
		if err := p.store.IncrViews(ctx, id); err != nil {
			metrics.StoreErrors.WithLabelValues("incr").Inc()
			return errors.Wrap(err, "incr views")
		}
		return nil
	}
	ok, err := p.store.IncrViewsCapped(ctx, id)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("incr").Inc()
		return errors.Wrap(err, "incr views")
	}
	if !ok {
		p.bury(paste)
		metrics.PasteDenied.WithLabelValues(domain.DeniedViewLimit.String()).Inc()
		return domain.ErrViewLimitExceeded
	}
	return nil
}

func (p *Paste) bury(paste *domain.Paste) {
	if p.tombs != nil {
		p.tombs.Bury(paste.ID, paste.ExpiresAt)
	}
}

// Ping reports whether the backing store answers.
func (p *Paste) Ping(ctx context.Context) error {
	return p.store.Ping(ctx)
}
