package lim

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"burnbin/metrics"
	"burnbin/svc/util"

	"golang.org/x/time/rate"
)

const (
	maxLimiters     = 10000
	cleanupInterval = 5 * time.Minute
	limiterTTL      = 30 * time.Minute
	window          = time.Minute
)

// WindowCounter is the distributed side of the limiter; *db.Redis satisfies it.
type WindowCounter interface {
	RateLimit(ctx context.Context, key string, limit int, window time.Duration) (int, error)
}

type Limiter struct {
	counter           WindowCounter
	trustedProxies    []string
	detector          *AnomalyDetector
	adaptiveModeUntil int64
	localLimiters     map[string]*limiterEntry
	mu                sync.Mutex
	conservativeLimit int
	burst             int
	globalRPM         int
	quit              chan struct{}
	stopOnce          sync.Once
}
type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// New builds a limiter. counter may be nil, in which case every decision is
// made by per-IP token buckets in this process.
func New(globalRPM, burst, conservativeLimit int, counter WindowCounter, trustedProxies []string) *Limiter {
	l := &Limiter{
		counter:           counter,
		trustedProxies:    trustedProxies,
		localLimiters:     make(map[string]*limiterEntry),
		conservativeLimit: conservativeLimit,
		burst:             burst,
		globalRPM:         globalRPM,
		quit:              make(chan struct{}),
	}
	l.detector = NewAnomalyDetector(l.TriggerAdaptiveMode)
	l.detector.Start()
	go l.cleanupLoop()
	return l
}
func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictIdle(time.Now())
		case <-l.quit:
			return
		}
	}
}
func (l *Limiter) evictIdle(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	evicted := 0
	for key, entry := range l.localLimiters {
		if now.Sub(entry.lastAccess) > limiterTTL {
			delete(l.localLimiters, key)
			evicted++
		}
	}
	if evicted > 0 {
		util.Debug().Int("evicted", evicted).Int("remaining", len(l.localLimiters)).Msg("rate limiter cleanup")
	}
	return evicted
}
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.quit)
		l.detector.Stop()
	})
}

// TriggerAdaptiveMode halves every limit for the next minute.
func (l *Limiter) TriggerAdaptiveMode() {
	atomic.StoreInt64(&l.adaptiveModeUntil, time.Now().Add(60*time.Second).Unix())
}
func (l *Limiter) isAdaptiveMode() bool {
	return time.Now().Unix() < atomic.LoadInt64(&l.adaptiveModeUntil)
}
func (l *Limiter) RecordRequest() { l.detector.RecordRequest() }
func (l *Limiter) RecordError()   { l.detector.RecordError() }

func halve(n int) int {
	if n/2 < 1 {
		return 1
	}
	return n / 2
}

// Check spends one request for the caller of r against endpoint.
func (l *Limiter) Check(r *http.Request, endpoint string) *Result {
	ip := GetRealIP(r, l.trustedProxies)
	res := l.check(r.Context(), ip, endpoint)
	if !res.Allowed {
		metrics.RateLimitHits.WithLabelValues(endpoint).Inc()
	}
	return res
}
func (l *Limiter) check(ctx context.Context, ip, endpoint string) *Result {
	now := time.Now()
	if l.counter == nil {
		return l.local(ip, endpoint, now)
	}
	limit := l.globalRPM
	if l.isAdaptiveMode() {
		limit = halve(limit)
	}
	ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	usage, err := l.counter.RateLimit(ctx, endpoint+":"+ip, limit, window)
	if err != nil {
		util.Warn().Err(err).Msg("redis rate limit unavailable, using local fallback")
		return l.local(ip, endpoint, now)
	}
	remaining := limit - usage
	if remaining < 0 {
		remaining = 0
	}
	return &Result{
		Allowed:   usage <= limit,
		Limit:     limit,
		Remaining: remaining,
		Reset:     now.Add(window),
	}
}
func (l *Limiter) local(ip, endpoint string, now time.Time) *Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	limit := l.conservativeLimit
	if l.isAdaptiveMode() {
		limit = halve(limit)
	}
	key := ip + ":" + endpoint
	entry, exists := l.localLimiters[key]
	if !exists {
		if len(l.localLimiters) >= maxLimiters {
			util.Warn().
				Int("limiters", len(l.localLimiters)).
				Str("ip", util.RedactIP(ip)).
				Msg("rate limiter at capacity, rejecting request")
			return &Result{Allowed: false, Limit: limit, Reset: now.Add(window)}
		}
		burst := l.burst
		if burst < 1 {
			burst = limit
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(float64(limit)/window.Seconds()), burst)}
		l.localLimiters[key] = entry
	}
	entry.lastAccess = now
	if !entry.limiter.AllowN(now, 1) {
		return &Result{Allowed: false, Limit: limit, Reset: now.Add(window)}
	}
	remaining := int(entry.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return &Result{Allowed: true, Limit: limit, Remaining: remaining, Reset: now.Add(window)}
}

// GetRealIP returns the client address, honouring X-Forwarded-For only when
// the direct peer is a trusted proxy. The header is walked right to left and
// the first untrusted hop wins.
func GetRealIP(r *http.Request, trustedProxies []string) string {
	remoteIP := stripPort(r.RemoteAddr)
	if len(trustedProxies) == 0 || !isTrustedProxy(remoteIP, trustedProxies) {
		return remoteIP
	}
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return remoteIP
	}
	const maxIPsToParse = 100
	hops := strings.Split(xff, ",")
	parsed := 0
	for i := len(hops) - 1; i >= 0 && parsed < maxIPsToParse; i-- {
		ipStr := strings.TrimSpace(hops[i])
		if ipStr == "" {
			continue
		}
		parsed++
		if net.ParseIP(ipStr) == nil {
			util.Warn().Str("ip", util.RedactIP(ipStr)).Msg("invalid IP in X-Forwarded-For, skipping")
			continue
		}
		if !isTrustedProxy(ipStr, trustedProxies) {
			return ipStr
		}
	}
	return remoteIP
}
func isTrustedProxy(ip string, trustedProxies []string) bool {
	parsedIP := net.ParseIP(ip)
	for _, proxy := range trustedProxies {
		if ip == proxy {
			return true
		}
		if strings.Contains(proxy, "/") && parsedIP != nil {
			if _, subnet, err := net.ParseCIDR(proxy); err == nil && subnet.Contains(parsedIP) {
				return true
			}
		}
	}
	return false
}
func stripPort(ip string) string {
	if host, _, err := net.SplitHostPort(ip); err == nil {
		return host
	}
	return ip
}
