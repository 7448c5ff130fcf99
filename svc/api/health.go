package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"burnbin/svc/util"

	"golang.org/x/sync/errgroup"
)

type HealthResponse struct {
	OK    bool   `json:"ok"`
	Store string `json:"store"`
	Redis string `json:"redis"`
}

// Health probes the paste store and, when configured, the rate limit Redis.
// Only the store decides the status code; a down Redis degrades limiting to
// the local buckets.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	resp := HealthResponse{OK: true, Store: "up", Redis: "unavailable"}

	var g errgroup.Group
	g.Go(func() error {
		pctx, pcancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer pcancel()
		if err := s.paste.Ping(pctx); err != nil {
			util.Error().Err(err).Msg("store health check failed")
			resp.Store = "down"
			resp.OK = false
		}
		return nil
	})
	if s.rdb != nil {
		resp.Redis = "up"
		g.Go(func() error {
			rctx, rcancel := context.WithTimeout(ctx, 500*time.Millisecond)
			defer rcancel()
			if err := s.rdb.Ping(rctx); err != nil {
				util.Warn().Err(err).Msg("redis health check failed")
				resp.Redis = "down"
			}
			return nil
		})
	}
	g.Wait()

	w.Header().Set("Content-Type", "application/json")
	if !resp.OK {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(resp)
}
