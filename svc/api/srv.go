package api

import (
	"context"
	"net/http"
	"time"

	"burnbin/cfg"
	"burnbin/svc/lim"
	"burnbin/svc/svc"
	"burnbin/svc/util"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/hlog"
)

// Pinger is anything the health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	router     *chi.Mux
	paste      *svc.Paste
	cfg        *cfg.Cfg
	rdb        Pinger
	httpServer *http.Server
}

// NewServer wires routes and middleware. rdb is optional and only reported
// by the health check.
func NewServer(c *cfg.Cfg, p *svc.Paste, l *lim.Limiter, rdb Pinger) *Server {
	r := chi.NewRouter()
	mw := NewMw(l, c)
	s := &Server{
		router: r,
		paste:  p,
		cfg:    c,
		rdb:    rdb,
	}
	r.Use(mw.Recoverer)
	r.Group(func(r chi.Router) {
		r.Use(mw.CORS)
		r.Get("/api/healthz", s.Health)
	})
	r.Handle("/metrics", mw.BasicAuthMetrics(promhttp.Handler()))
	if c.Environment != "production" {
		r.Mount("/debug", middleware.Profiler())
	}

	hdl := &Hdl{paste: p, cfg: c}
	r.Group(func(r chi.Router) {
		r.Use(mw.RequestID)
		r.Use(hlog.NewHandler(util.GetLogger()))
		r.Use(hlog.AccessHandler(func(req *http.Request, status, size int, dur time.Duration) {
			hlog.FromRequest(req).Info().
				Str("method", req.Method).
				Str("url", req.URL.Path).
				Int("status", status).
				Int("size", size).
				Dur("duration", dur).
				Str("request_id", util.GetRequestID(req.Context())).
				Msg("http request")
		}))
		if len(c.TrustedProxies) > 0 {
			r.Use(middleware.RealIP)
		}
		r.Use(mw.ContextTimeout)
		r.Use(mw.SecurityHeaders)
		r.Use(mw.Instrument)
		r.Use(mw.TestClock)

		r.Group(func(r chi.Router) {
			r.Use(mw.CORS)
			r.Use(mw.JSONContentType)
			r.Options("/api/*", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
			r.With(mw.RateLimit("create")).Post("/api/pastes", hdl.CreatePaste)
			r.With(mw.RateLimit("read")).Get("/api/pastes/{id}", hdl.GetPaste)
		})
		r.With(mw.RateLimit("read")).Get("/p/{id}", hdl.ViewPaste)
	})

	s.httpServer = &http.Server{
		Addr:              ":" + c.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    64 * 1024,
	}
	return s
}
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
func (s *Server) Start() error {
	util.Info().Str("port", s.cfg.Port).Msg("starting server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		util.Error().Err(err).Str("port", s.cfg.Port).Msg("server failed to start")
		return err
	}
	return nil
}
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
