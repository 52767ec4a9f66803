// Package server is the thin transport over the dashboard service: JSON
// endpoints for the operator API, a WebSocket event feed, and separate
// health and metrics listeners.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pueblokc/fail2ban/internal/banlog"
	"github.com/pueblokc/fail2ban/internal/dashboard"
	"github.com/pueblokc/fail2ban/internal/source"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

//go:embed static
var staticFiles embed.FS

// Config carries the listener addresses.
type Config struct {
	ListenAddr     string
	HealthAddr     string
	MetricsEnabled bool
	MetricsAddr    string
}

// Server hosts the dashboard API.
type Server struct {
	svc    *dashboard.Service
	hub    *Hub
	cfg    Config
	static fs.FS
	log    zerolog.Logger
}

// New creates a Server. hub may be nil when the event feed is disabled.
func New(svc *dashboard.Service, hub *Hub, cfg Config, log zerolog.Logger) (*Server, error) {
	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("embedded static assets: %w", err)
	}
	return &Server{svc: svc, hub: hub, cfg: cfg, static: static, log: log}, nil
}

// Run starts all listeners and blocks until ctx is cancelled or one fails.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.serveAPI(gctx) })
	g.Go(func() error { return s.serveHealth(gctx) })
	if s.cfg.MetricsEnabled {
		g.Go(func() error { return s.serveMetrics(gctx) })
	}

	err := g.Wait()
	if s.hub != nil {
		s.hub.CloseAll()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/jail/{name}", s.handleJail)
	mux.HandleFunc("GET /api/jail/{name}/history", s.handleHistory)
	mux.HandleFunc("POST /api/jail/{name}/ban/{ip}", s.handleAction("ban"))
	mux.HandleFunc("POST /api/jail/{name}/unban/{ip}", s.handleAction("unban"))
	mux.HandleFunc("GET /api/log", s.handleLog)
	mux.HandleFunc("GET /api/mode", s.handleMode)

	if s.hub != nil {
		mux.Handle("GET /ws/events", s.hub)
	}

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(s.static))))
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, s.static, "index.html")
	})

	return mux
}

func (s *Server) serveAPI(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()
	s.log.Info().Str("addr", s.cfg.ListenAddr).Msg("dashboard API started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) serveHealth(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		// Demo mode is always ready; live mode is ready once constructed.
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	srv := &http.Server{Addr: s.cfg.HealthAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	s.log.Info().Str("addr", s.cfg.HealthAddr).Msg("health server started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: s.cfg.MetricsAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	s.log.Info().Str("addr", s.cfg.MetricsAddr).Msg("Prometheus metrics server started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ---- Handlers --------------------------------------------------------------

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	overall, err := s.svc.Overall(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, overall)
}

func (s *Server) handleJail(w http.ResponseWriter, r *http.Request) {
	jail, err := s.svc.Jail(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, jail)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 24*30 {
			s.writeJSON(w, http.StatusBadRequest, errorBody("hours must be an integer in [1, 720]"))
			return
		}
		hours = n
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	snaps, err := s.svc.History(r.Context(), r.PathValue("name"), since)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if snaps == nil {
		snaps = []banlog.Snapshot{}
	}
	s.writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) handleAction(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jail := r.PathValue("name")
		ip := r.PathValue("ip")

		var err error
		switch kind {
		case "ban":
			err = s.svc.Ban(r.Context(), jail, ip)
		case "unban":
			err = s.svc.Unban(r.Context(), jail, ip)
		}
		if err != nil {
			s.writeError(w, err)
			return
		}

		msg := kind + "ned " + ip
		if s.svc.Demo() {
			msg = "[DEMO] would " + kind + " " + ip
		}
		s.writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"message": msg + " (" + jail + ")",
		})
	}
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorBody("limit must be an integer"))
			return
		}
		limit = n
	}
	entries, err := s.svc.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]bool{"demo": s.svc.Demo()})
}

// ---- Helpers ---------------------------------------------------------------

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug().Err(err).Msg("write response failed")
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// writeError maps service errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var backendErr *source.BackendError
	var persistErr *banlog.PersistenceError
	var limitErr banlog.RecentLimitError

	switch {
	case errors.Is(err, source.ErrJailNotFound):
		s.writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
	case errors.Is(err, dashboard.ErrRateLimited):
		s.writeJSON(w, http.StatusTooManyRequests, errorBody(err.Error()))
	case errors.As(err, &limitErr):
		s.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.As(err, &backendErr):
		s.writeJSON(w, http.StatusInternalServerError, errorBody(backendErr.Error()))
	case errors.As(err, &persistErr):
		s.writeJSON(w, http.StatusInternalServerError, errorBody(persistErr.Error()))
	default:
		s.writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
	}
}
