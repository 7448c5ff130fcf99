package cfg

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type Secret struct {
	value []byte
}

func NewSecret(s string) Secret {
	return Secret{value: []byte(s)}
}
func (s Secret) Value() string {
	return string(s.value)
}
func (s Secret) Wipe() {
	for i := range s.value {
		s.value[i] = 0
	}
}
func (s Secret) String() string {
	return "***REDACTED***"
}

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type Cfg struct {
	Port               string
	Environment        string
	LogLevel           string
	PublicURL          string
	StoreBackend       string
	DatabasePath       string
	DBMaxOpenConns     int
	DBMaxIdleConns     int
	DBQueryTimeout     time.Duration
	RedisURL           string
	RedisTLS           bool
	RedisUsername      string
	RedisPassword      Secret
	RedisTimeout       time.Duration
	TombstoneCacheSize int
	MaxPasteSize       int64
	RateLimit          RateLimitCfg
	TrustedProxies     []string
	AllowedOrigins     []string
	MetricsUser        string
	MetricsPass        Secret
	ContextTimeout     time.Duration
	// TestMode lets the x-test-now-ms header override the clock per request.
	TestMode      bool
	StrictViewCap bool
}

type RateLimitCfg struct {
	RPM               int
	Burst             int
	ConservativeLimit int
}

// LoadDotEnv reads the first existing file from paths into the environment.
// Variables already set win over file values.
func LoadDotEnv(paths ...string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err == nil {
			return p
		}
	}
	return ""
}

func Load() (*Cfg, error) {
	c := &Cfg{}
	var err error
	c.Port = getEnv("PORT", "3001")
	c.Environment = getEnv("ENVIRONMENT", "development")
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.PublicURL = strings.TrimRight(getEnv("PUBLIC_URL", ""), "/")
	c.StoreBackend = strings.ToLower(getEnv("STORE_BACKEND", BackendSQLite))
	c.DatabasePath = getEnv("DATABASE_PATH", "burnbin.db")
	c.DBMaxOpenConns, err = getInt("DB_MAX_OPEN_CONNS", 25)
	if err != nil {
		return nil, err
	}
	c.DBMaxIdleConns, err = getInt("DB_MAX_IDLE_CONNS", 10)
	if err != nil {
		return nil, err
	}
	c.DBQueryTimeout, err = getDuration("DB_QUERY_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	c.RedisURL = getEnv("REDIS_URL", "")
	c.RedisTLS = getBool("REDIS_TLS")
	c.RedisUsername = getEnv("REDIS_USERNAME", "")
	c.RedisPassword = NewSecret(getEnv("REDIS_PASSWORD", ""))
	c.RedisTimeout, err = getDuration("REDIS_TIMEOUT", 2*time.Second)
	if err != nil {
		return nil, err
	}
	c.TombstoneCacheSize, err = getInt("TOMBSTONE_CACHE_SIZE", 10000)
	if err != nil {
		return nil, err
	}
	c.MaxPasteSize, err = getInt64("MAX_PASTE_SIZE", 512*1024)
	if err != nil {
		return nil, err
	}
	c.RateLimit.RPM, err = getInt("RATE_LIMIT_RPM", 600)
	if err != nil {
		return nil, err
	}
	c.RateLimit.Burst, err = getInt("RATE_LIMIT_BURST", 20)
	if err != nil {
		return nil, err
	}
	c.RateLimit.ConservativeLimit, err = getInt("RATE_LIMIT_CONSERVATIVE", 120)
	if err != nil {
		return nil, err
	}
	c.TrustedProxies = getSlice("TRUSTED_PROXIES", []string{})
	c.AllowedOrigins = getSlice("ALLOWED_ORIGINS", []string{"*"})
	c.MetricsUser = getEnv("METRICS_USER", "")
	c.MetricsPass = NewSecret(getEnv("METRICS_PASS", ""))
	c.ContextTimeout, err = getDuration("CONTEXT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	c.TestMode = getBool("TEST_MODE")
	c.StrictViewCap = getBool("STRICT_VIEW_CAP")
	return c, nil
}

func Validate(c *Cfg) error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return errors.New("PORT must be a number")
	}
	if c.PublicURL != "" {
		u, err := url.Parse(c.PublicURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.New("PUBLIC_URL must be an absolute http(s) URL")
		}
	}
	switch c.StoreBackend {
	case BackendSQLite:
		if c.DatabasePath == "" {
			return errors.New("DATABASE_PATH is required")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required when STORE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q", BackendSQLite, BackendRedis)
	}
	if c.RedisURL != "" {
		if !strings.HasPrefix(c.RedisURL, "redis://") && !strings.HasPrefix(c.RedisURL, "rediss://") {
			return errors.New("REDIS_URL must start with redis:// or rediss://")
		}
		if strings.HasPrefix(c.RedisURL, "rediss://") && !c.RedisTLS {
			return errors.New("REDIS_URL uses rediss:// but REDIS_TLS=false")
		}
	}
	if c.DBMaxOpenConns <= 0 {
		return errors.New("DB_MAX_OPEN_CONNS must be positive")
	}
	if c.TombstoneCacheSize <= 0 {
		return errors.New("TOMBSTONE_CACHE_SIZE must be positive")
	}
	if c.MaxPasteSize <= 0 {
		return errors.New("MAX_PASTE_SIZE must be positive")
	}
	if c.MaxPasteSize > 10*1024*1024 {
		return errors.New("MAX_PASTE_SIZE cannot exceed 10MB")
	}
	if c.RateLimit.RPM <= 0 {
		return errors.New("RATE_LIMIT_RPM must be positive")
	}
	if c.RateLimit.ConservativeLimit <= 0 {
		return errors.New("RATE_LIMIT_CONSERVATIVE must be positive")
	}
	for _, proxy := range c.TrustedProxies {
		if strings.Contains(proxy, "/") {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return fmt.Errorf("invalid CIDR in TRUSTED_PROXIES: %s", proxy)
			}
		} else if net.ParseIP(proxy) == nil {
			return fmt.Errorf("invalid IP in TRUSTED_PROXIES: %s", proxy)
		}
	}
	if c.Environment == "production" {
		if c.MetricsUser == "" || c.MetricsPass.Value() == "" {
			return errors.New("METRICS_USER and METRICS_PASS are required in production")
		}
		if c.TestMode {
			return errors.New("TEST_MODE must not be enabled in production")
		}
	}
	return nil
}

func (c *Cfg) Wipe() {
	c.RedisPassword.Wipe()
	c.MetricsPass.Wipe()
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
func getBool(key string) bool {
	switch strings.ToLower(getEnv(key, "")) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
func getInt(key string, fallback int) (int, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}
func getInt64(key string, fallback int64) (int64, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return v, nil
}
func getSlice(key string, fallback []string) []string {
	s := getEnv(key, "")
	if s == "" {
		return fallback
	}
	var result []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
