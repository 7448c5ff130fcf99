package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"burnbin/cfg"
	"burnbin/svc/api"
	"burnbin/svc/cache"
	"burnbin/svc/db"
	"burnbin/svc/lim"
	"burnbin/svc/svc"
	"burnbin/svc/util"
)

func main() {
	envFile := cfg.LoadDotEnv(".env")
	if len(os.Args) > 1 && os.Args[1] == "-health" {
		os.Exit(healthCheck())
	}

	c, err := cfg.Load()
	if err != nil {
		util.Fatal().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}
	if err := cfg.Validate(c); err != nil {
		util.Fatal().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}
	defer c.Wipe()
	util.InitLog(c.LogLevel, c.Environment == "development")
	util.Info().
		Str("env_file", envFile).
		Str("backend", c.StoreBackend).
		Bool("test_mode", c.TestMode).
		Bool("strict_view_cap", c.StrictViewCap).
		Msg("starting burnbin")

	var rdb *db.Redis
	if c.RedisURL != "" {
		rdb, err = db.NewRedis(c.RedisURL, c)
		if err != nil {
			if c.StoreBackend == cfg.BackendRedis || c.Environment == "production" {
				util.Fatal().Err(err).Str("url", util.RedactURL(c.RedisURL)).Msg("redis unavailable")
				os.Exit(1)
			}
			util.Warn().Err(err).Msg("redis unavailable, rate limiting stays local")
			rdb = nil
		} else {
			util.Info().Str("url", util.RedactURL(c.RedisURL)).Msg("redis connected")
			defer rdb.Close()
		}
	}

	var store db.Store
	quitWAL := make(chan struct{})
	walDone := make(chan struct{})
	switch c.StoreBackend {
	case cfg.BackendRedis:
		store = db.NewRedisStore(rdb)
		close(walDone)
		util.Info().Msg("paste store: redis")
	default:
		sqlDB, err := db.NewSQLiteWithConfig(c.DatabasePath, c.DBMaxOpenConns, c.DBMaxIdleConns, c.DBQueryTimeout)
		if err != nil {
			util.Fatal().Err(err).Msg("failed to initialize database")
			os.Exit(1)
		}
		defer sqlDB.Close()
		go func() {
			db.StartWALMaintenance(sqlDB.DB(), quitWAL)
			close(walDone)
		}()
		store = sqlDB
		util.Info().Str("path", c.DatabasePath).Msg("paste store: sqlite")
	}

	tombs, err := cache.NewTombstones(c.TombstoneCacheSize)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to create tombstone cache")
		os.Exit(1)
	}
	pasteSvc := svc.NewPaste(store, tombs, c, util.SystemClock{})

	var counter lim.WindowCounter
	var redisPinger api.Pinger
	if rdb != nil {
		counter = rdb
		redisPinger = rdb
	}
	limiter := lim.New(c.RateLimit.RPM, c.RateLimit.Burst, c.RateLimit.ConservativeLimit, counter, c.TrustedProxies)
	defer limiter.Stop()
	util.Info().
		Int("rpm", c.RateLimit.RPM).
		Int("burst", c.RateLimit.Burst).
		Strs("trusted_proxies", c.TrustedProxies).
		Msg("rate limiter initialized")

	server := api.NewServer(c, pasteSvc, limiter, redisPinger)
	go func() {
		if err := server.Start(); err != nil {
			util.Fatal().Err(err).Msg("server failed")
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	util.Info().Msg("shutting down gracefully")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		util.Error().Err(err).Msg("server shutdown error")
	}
	close(quitWAL)
	select {
	case <-walDone:
	case <-time.After(5 * time.Second):
		util.Warn().Msg("WAL maintenance did not stop in time")
	}
	util.Info().Msg("shutdown complete")
}

// healthCheck pings the configured store once, for container probes.
func healthCheck() int {
	c, err := cfg.Load()
	if err != nil {
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var store db.Store
	if c.StoreBackend == cfg.BackendRedis {
		rdb, err := db.NewRedis(c.RedisURL, c)
		if err != nil {
			return 1
		}
		store = db.NewRedisStore(rdb)
		defer rdb.Close()
	} else {
		sqlDB, err := db.NewSQLite(c.DatabasePath)
		if err != nil {
			return 1
		}
		store = sqlDB
	}
	defer store.Close()
	if err := store.Ping(ctx); err != nil {
		return 1
	}
	return 0
}
