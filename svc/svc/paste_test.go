package svc

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"burnbin/cfg"
	"burnbin/pkg/domain"
	"burnbin/svc/cache"
	"burnbin/svc/db"
	"burnbin/svc/util"

	"github.com/pkg/errors"
)

func intPtr(n int) *int { return &n }

func at(ms int64) context.Context {
	return util.WithNow(context.Background(), time.UnixMilli(ms))
}

func testCfg() *cfg.Cfg {
	return &cfg.Cfg{MaxPasteSize: 1024}
}

func newTestStore(t *testing.T) *db.SQLite {
	t.Helper()
	s, err := db.NewSQLiteWithConfig(filepath.Join(t.TempDir(), "svc.db"), 16, 4, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestService(t *testing.T, c *cfg.Cfg) (*Paste, *countingStore) {
	t.Helper()
	store := &countingStore{Store: newTestStore(t)}
	tombs, err := cache.NewTombstones(100)
	if err != nil {
		t.Fatal(err)
	}
	return NewPaste(store, tombs, c, util.FixedClock{T: time.UnixMilli(0)}), store
}

type countingStore struct {
	db.Store
	gets int64
}

func (s *countingStore) Get(ctx context.Context, id string) (*domain.Paste, error) {
	atomic.AddInt64(&s.gets, 1)
	return s.Store.Get(ctx, id)
}

type brokenStore struct {
	db.Store
	err error
}

func (s brokenStore) Create(context.Context, *domain.Paste) error { return s.err }
func (s brokenStore) Get(context.Context, string) (*domain.Paste, error) {
	return nil, s.err
}

func TestCreateStoresFreshRecord(t *testing.T) {
	svc, store := newTestService(t, testCfg())
	ctx := context.Background()
	p, err := svc.Create(ctx, domain.CreateParams{Content: "  keep my spaces  "})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !util.ValidPasteID(p.ID) {
		t.Errorf("id %q is not a uuid", p.ID)
	}
	got, err := store.Store.Get(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Views != 0 {
		t.Errorf("views = %d, want 0", got.Views)
	}
	if got.Content != "  keep my spaces  " {
		t.Errorf("content = %q", got.Content)
	}
	if got.ExpiresAt != nil || got.MaxViews != nil {
		t.Error("limits should be absent")
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t, testCfg())
	big := make([]byte, 2048)
	for i := range big {
		big[i] = 'a'
	}
	tests := []struct {
		name   string
		params domain.CreateParams
		want   error
	}{
		{"empty content", domain.CreateParams{Content: ""}, domain.ErrContentRequired},
		{"blank content", domain.CreateParams{Content: " \n\t "}, domain.ErrContentRequired},
		{"too large", domain.CreateParams{Content: string(big)}, domain.ErrPasteTooLarge},
		{"zero ttl", domain.CreateParams{Content: "x", TTLSeconds: intPtr(0)}, domain.ErrInvalidTTL},
		{"negative ttl", domain.CreateParams{Content: "x", TTLSeconds: intPtr(-5)}, domain.ErrInvalidTTL},
		{"zero max views", domain.CreateParams{Content: "x", MaxViews: intPtr(0)}, domain.ErrInvalidMaxViews},
		{"content checked first", domain.CreateParams{Content: "", TTLSeconds: intPtr(0), MaxViews: intPtr(0)}, domain.ErrContentRequired},
		{"ttl before max views", domain.CreateParams{Content: "x", TTLSeconds: intPtr(0), MaxViews: intPtr(0)}, domain.ErrInvalidTTL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.params)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if !domain.IsValidation(err) {
				t.Errorf("err %v should be a validation error", err)
			}
		})
	}
}

func TestTTLWindow(t *testing.T) {
	svc, _ := newTestService(t, testCfg())
	p, err := svc.Create(at(0), domain.CreateParams{Content: "x", TTLSeconds: intPtr(60)})
	if err != nil {
		t.Fatal(err)
	}
	for _, now := range []int64{0, 59000, 60000} {
		v, err := svc.Get(at(now), p.ID)
		if err != nil {
			t.Fatalf("now=%d: unexpected error %v", now, err)
		}
		if v.Content != "x" {
			t.Errorf("now=%d: content = %q", now, v.Content)
		}
		if v.ExpiresAt == nil || *v.ExpiresAt != "1970-01-01T00:01:00.000Z" {
			t.Errorf("now=%d: expires_at = %v", now, v.ExpiresAt)
		}
		if v.RemainingViews != nil {
			t.Errorf("now=%d: remaining_views should be nil", now)
		}
	}
	_, err = svc.Get(at(60001), p.ID)
	if !errors.Is(err, domain.ErrPasteExpired) || !domain.IsNotFound(err) {
		t.Errorf("after expiry err = %v, want ErrPasteExpired", err)
	}
}

func TestExpiryUsesInjectedCreationTime(t *testing.T) {
	svc, store := newTestService(t, testCfg())
	p, err := svc.Create(at(1000), domain.CreateParams{Content: "x", TTLSeconds: intPtr(1)})
	if err != nil {
		t.Fatal(err)
	}
	got, _ := store.Store.Get(context.Background(), p.ID)
	if got.ExpiresAt == nil || got.ExpiresAt.UnixMilli() != 2000 {
		t.Errorf("expires_at = %v, want 2000ms", got.ExpiresAt)
	}
}

func TestMaxViewsSequence(t *testing.T) {
	svc, store := newTestService(t, testCfg())
	ctx := context.Background()
	p, err := svc.Create(ctx, domain.CreateParams{Content: "hello", MaxViews: intPtr(2)})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []int{1, 0} {
		v, err := svc.Get(ctx, p.ID)
		if err != nil {
			t.Fatalf("retrieval with %d left: %v", want, err)
		}
		if v.RemainingViews == nil || *v.RemainingViews != want {
			t.Errorf("remaining_views = %v, want %d", v.RemainingViews, want)
		}
		if v.Content != "hello" {
			t.Errorf("content = %q", v.Content)
		}
	}
	if _, err := svc.Get(ctx, p.ID); !errors.Is(err, domain.ErrViewLimitExceeded) {
		t.Errorf("third retrieval err = %v, want ErrViewLimitExceeded", err)
	}
	got, _ := store.Store.Get(ctx, p.ID)
	if got.Views != 2 {
		t.Errorf("views = %d, denied retrieval must not increment", got.Views)
	}
}

func TestRemainingViewsCountdown(t *testing.T) {
	svc, _ := newTestService(t, testCfg())
	const n = 5
	p, err := svc.Create(context.Background(), domain.CreateParams{Content: "c", MaxViews: intPtr(n)})
	if err != nil {
		t.Fatal(err)
	}
	for k := 1; k <= n; k++ {
		v, err := svc.Get(context.Background(), p.ID)
		if err != nil {
			t.Fatalf("retrieval %d: %v", k, err)
		}
		if *v.RemainingViews != n-k {
			t.Errorf("retrieval %d: remaining = %d, want %d", k, *v.RemainingViews, n-k)
		}
	}
	if _, err := svc.Get(context.Background(), p.ID); !domain.IsNotFound(err) {
		t.Errorf("retrieval %d should be denied, got %v", n+1, err)
	}
}

func TestExpiredAndExhaustedReportsExpired(t *testing.T) {
	svc, _ := newTestService(t, testCfg())
	p, err := svc.Create(at(0), domain.CreateParams{Content: "x", TTLSeconds: intPtr(10), MaxViews: intPtr(1)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(at(1000), p.ID); err != nil {
		t.Fatal(err)
	}
	// The paste is now both exhausted (tombstoned) and, at 20s, expired.
	_, err = svc.Get(at(20000), p.ID)
	if !errors.Is(err, domain.ErrPasteExpired) {
		t.Errorf("err = %v, want ErrPasteExpired", err)
	}
	_, err = svc.Get(at(5000), p.ID)
	if !errors.Is(err, domain.ErrViewLimitExceeded) {
		t.Errorf("err = %v, want ErrViewLimitExceeded", err)
	}
}

func TestUnknownIDLooksLikeDenial(t *testing.T) {
	svc, _ := newTestService(t, testCfg())
	for _, id := range []string{"does-not-exist", "00000000-0000-4000-8000-000000000000"} {
		_, err := svc.Get(context.Background(), id)
		if !errors.Is(err, domain.ErrPasteNotFound) || !domain.IsNotFound(err) {
			t.Errorf("id %q: err = %v, want ErrPasteNotFound", id, err)
		}
	}
}

func TestTombstoneSkipsStore(t *testing.T) {
	svc, store := newTestService(t, testCfg())
	ctx := context.Background()
	p, err := svc.Create(ctx, domain.CreateParams{Content: "once", MaxViews: intPtr(1)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	before := atomic.LoadInt64(&store.gets)
	for i := 0; i < 3; i++ {
		if _, err := svc.Get(ctx, p.ID); !domain.IsNotFound(err) {
			t.Fatalf("expected denial, got %v", err)
		}
	}
	if after := atomic.LoadInt64(&store.gets); after != before {
		t.Errorf("store consulted %d times for a tombstoned id", after-before)
	}
}

func TestStorageErrorsAreOpaque(t *testing.T) {
	boom := errors.New("disk I/O error")
	svc := NewPaste(brokenStore{err: boom}, nil, testCfg(), nil)
	_, err := svc.Create(context.Background(), domain.CreateParams{Content: "x"})
	if err == nil || domain.IsValidation(err) || domain.IsNotFound(err) {
		t.Errorf("create err = %v, want storage error", err)
	}
	if domain.ToResp(err).Error.Code != "INTERNAL_ERROR" {
		t.Errorf("storage error leaked as %+v", domain.ToResp(err))
	}
	_, err = svc.Get(context.Background(), "00000000-0000-4000-8000-000000000000")
	if err == nil || domain.IsNotFound(err) {
		t.Errorf("get err = %v, want storage error", err)
	}
}

func TestConcurrentRetrievalsCountEveryView(t *testing.T) {
	svc, store := newTestService(t, testCfg())
	ctx := context.Background()
	p, err := svc.Create(ctx, domain.CreateParams{Content: "shared"})
	if err != nil {
		t.Fatal(err)
	}
	const n = 40
	var wg sync.WaitGroup
	var ok int64
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Get(ctx, p.ID); err == nil {
				atomic.AddInt64(&ok, 1)
			}
		}()
	}
	wg.Wait()
	got, _ := store.Store.Get(ctx, p.ID)
	if int64(got.Views) != ok || ok != n {
		t.Errorf("views = %d, successes = %d, want %d", got.Views, ok, n)
	}
}

func TestStrictViewCapUnderContention(t *testing.T) {
	c := testCfg()
	c.StrictViewCap = true
	svc, store := newTestService(t, c)
	ctx := context.Background()
	p, err := svc.Create(ctx, domain.CreateParams{Content: "scarce", MaxViews: intPtr(3)})
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	var ok int64
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Get(ctx, p.ID); err == nil {
				atomic.AddInt64(&ok, 1)
			}
		}()
	}
	wg.Wait()
	if ok != 3 {
		t.Errorf("successes = %d, want exactly 3", ok)
	}
	got, _ := store.Store.Get(ctx, p.ID)
	if got.Views != 3 {
		t.Errorf("views = %d, want 3", got.Views)
	}
}
