package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "STORE_BACKEND", "TEST_MODE", "STRICT_VIEW_CAP", "DB_QUERY_TIMEOUT"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	c, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Port != "3001" {
		t.Errorf("Port = %q, want 3001", c.Port)
	}
	if c.StoreBackend != BackendSQLite {
		t.Errorf("StoreBackend = %q", c.StoreBackend)
	}
	if c.TestMode || c.StrictViewCap {
		t.Error("test mode and strict cap must default off")
	}
	if c.DBQueryTimeout != 5*time.Second {
		t.Errorf("DBQueryTimeout = %v", c.DBQueryTimeout)
	}
	if err := Validate(c); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TEST_MODE", "1")
	t.Setenv("STRICT_VIEW_CAP", "true")
	t.Setenv("PUBLIC_URL", "https://paste.example.com/")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 127.0.0.1")
	c, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !c.TestMode || !c.StrictViewCap {
		t.Error("expected TEST_MODE and STRICT_VIEW_CAP on")
	}
	if c.PublicURL != "https://paste.example.com" {
		t.Errorf("PublicURL = %q", c.PublicURL)
	}
	if len(c.TrustedProxies) != 2 {
		t.Errorf("TrustedProxies = %v", c.TrustedProxies)
	}
}

func TestLoadBadInteger(t *testing.T) {
	t.Setenv("MAX_PASTE_SIZE", "lots")
	if _, err := Load(); err == nil {
		t.Error("expected error for non-numeric MAX_PASTE_SIZE")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Cfg {
		return &Cfg{
			Port:               "3001",
			StoreBackend:       BackendSQLite,
			DatabasePath:       "x.db",
			DBMaxOpenConns:     1,
			TombstoneCacheSize: 10,
			MaxPasteSize:       1024,
			RateLimit:          RateLimitCfg{RPM: 1, ConservativeLimit: 1},
		}
	}
	tests := []struct {
		name   string
		mutate func(*Cfg)
	}{
		{"bad port", func(c *Cfg) { c.Port = "http" }},
		{"unknown backend", func(c *Cfg) { c.StoreBackend = "mongo" }},
		{"redis backend without url", func(c *Cfg) { c.StoreBackend = BackendRedis }},
		{"bad redis scheme", func(c *Cfg) { c.RedisURL = "tcp://x" }},
		{"rediss without tls", func(c *Cfg) { c.RedisURL = "rediss://x:6379" }},
		{"relative public url", func(c *Cfg) { c.PublicURL = "/p" }},
		{"huge paste size", func(c *Cfg) { c.MaxPasteSize = 11 * 1024 * 1024 }},
		{"bad proxy", func(c *Cfg) { c.TrustedProxies = []string{"not-an-ip"} }},
		{"test mode in prod", func(c *Cfg) {
			c.Environment = "production"
			c.MetricsUser = "m"
			c.MetricsPass = NewSecret("p")
			c.TestMode = true
		}},
	}
	if err := Validate(base()); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			if err := Validate(c); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, ".env.test")
	if err := os.WriteFile(p, []byte("BURNBIN_DOTENV_PROBE=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("BURNBIN_DOTENV_PROBE") })
	got := LoadDotEnv(filepath.Join(dir, "missing"), p)
	if got != p {
		t.Errorf("LoadDotEnv picked %q, want %q", got, p)
	}
	if v := os.Getenv("BURNBIN_DOTENV_PROBE"); v != "from-file" {
		t.Errorf("probe = %q", v)
	}
	if c := (Secret{value: []byte("pw")}); c.String() == "pw" {
		t.Error("secret printed in clear")
	}
}
