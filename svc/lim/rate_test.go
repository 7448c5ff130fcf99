package lim

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeCounter struct {
	usage map[string]int
	err   error
}

func (f *fakeCounter) RateLimit(_ context.Context, key string, limit int, _ time.Duration) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.usage[key]++
	return f.usage[key], nil
}

func TestLocalLimiterBurst(t *testing.T) {
	l := New(100, 3, 3, nil, nil)
	defer l.Stop()
	r := httptest.NewRequest("GET", "/api/pastes/x", nil)
	r.RemoteAddr = "203.0.113.7:4000"
	for i := 0; i < 3; i++ {
		if res := l.Check(r, "read"); !res.Allowed {
			t.Fatalf("request %d denied within burst", i+1)
		}
	}
	if res := l.Check(r, "read"); res.Allowed {
		t.Error("request beyond burst allowed")
	}
	other := httptest.NewRequest("GET", "/api/pastes/x", nil)
	other.RemoteAddr = "203.0.113.8:4000"
	if res := l.Check(other, "read"); !res.Allowed {
		t.Error("separate IP should have its own bucket")
	}
}

func TestDistributedCounter(t *testing.T) {
	fc := &fakeCounter{usage: map[string]int{}}
	l := New(2, 1, 1, fc, nil)
	defer l.Stop()
	r := httptest.NewRequest("POST", "/api/pastes", nil)
	r.RemoteAddr = "198.51.100.1:1"
	want := []bool{true, true, false}
	for i, w := range want {
		if res := l.Check(r, "create"); res.Allowed != w {
			t.Errorf("request %d: allowed = %v, want %v", i+1, res.Allowed, w)
		}
	}
}

func TestCounterFailureFallsBackToLocal(t *testing.T) {
	fc := &fakeCounter{err: errors.New("connection refused")}
	l := New(1000, 1, 1, fc, nil)
	defer l.Stop()
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "198.51.100.2:1"
	if res := l.Check(r, "read"); !res.Allowed {
		t.Error("first request should pass local fallback")
	}
	if res := l.Check(r, "read"); res.Allowed {
		t.Error("local fallback should enforce its conservative bucket")
	}
}

func TestAdaptiveModeHalvesLimit(t *testing.T) {
	fc := &fakeCounter{usage: map[string]int{}}
	l := New(10, 1, 1, fc, nil)
	defer l.Stop()
	l.TriggerAdaptiveMode()
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "198.51.100.3:1"
	if res := l.Check(r, "read"); res.Limit != 5 {
		t.Errorf("limit = %d, want 5 in adaptive mode", res.Limit)
	}
}

func TestEvictIdle(t *testing.T) {
	l := New(10, 5, 5, nil, nil)
	defer l.Stop()
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "198.51.100.4:1"
	l.Check(r, "read")
	if n := l.evictIdle(time.Now()); n != 0 {
		t.Errorf("evicted %d fresh limiters", n)
	}
	if n := l.evictIdle(time.Now().Add(limiterTTL + time.Minute)); n != 1 {
		t.Errorf("evicted %d, want 1", n)
	}
}

func TestGetRealIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		xff     string
		trusted []string
		want    string
	}{
		{"no proxies configured", "203.0.113.1:80", "1.2.3.4", nil, "203.0.113.1"},
		{"untrusted peer ignores header", "203.0.113.1:80", "1.2.3.4", []string{"10.0.0.1"}, "203.0.113.1"},
		{"trusted peer", "10.0.0.1:80", "1.2.3.4", []string{"10.0.0.1"}, "1.2.3.4"},
		{"trusted cidr chain", "10.0.0.1:80", "1.2.3.4, 10.0.0.9", []string{"10.0.0.0/8"}, "1.2.3.4"},
		{"spoofed leftmost", "10.0.0.1:80", "6.6.6.6, 1.2.3.4", []string{"10.0.0.0/8"}, "1.2.3.4"},
		{"garbage hop skipped", "10.0.0.1:80", "1.2.3.4, nonsense", []string{"10.0.0.0/8"}, "1.2.3.4"},
		{"all trusted", "10.0.0.1:80", "10.0.0.2", []string{"10.0.0.0/8"}, "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := GetRealIP(r, tt.trusted); got != tt.want {
				t.Errorf("GetRealIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAnomalyDetector(t *testing.T) {
	fired := 0
	d := NewAnomalyDetector(func() { fired++ })
	for i := 0; i < 20; i++ {
		d.RecordRequest()
	}
	d.RecordError()
	if rate := d.AdvanceWindow(); rate != 5.0 || fired != 0 {
		t.Errorf("rate = %v fired = %d, want 5%% and no trigger", rate, fired)
	}
	for i := 0; i < 3; i++ {
		d.RecordError()
	}
	if rate := d.AdvanceWindow(); rate != 20.0 || fired != 1 {
		t.Errorf("rate = %v fired = %d, want 20%% and one trigger", rate, fired)
	}
	for i := 0; i < anomalyBuckets; i++ {
		d.AdvanceWindow()
	}
	if rate := d.AdvanceWindow(); rate != 0 {
		t.Errorf("rate after window rolled over = %v", rate)
	}
}
