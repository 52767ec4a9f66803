// Package dashboard orchestrates the status source, the action log, and
// enrichment into the operations the transport layer exposes.
package dashboard

import (
	"context"
	"errors"
	"time"

	"github.com/pueblokc/fail2ban/internal/banlog"
	"github.com/pueblokc/fail2ban/internal/enrich"
	"github.com/pueblokc/fail2ban/internal/gate"
	"github.com/pueblokc/fail2ban/internal/metrics"
	"github.com/pueblokc/fail2ban/internal/source"
	"github.com/pueblokc/fail2ban/internal/status"
	"github.com/rs/zerolog"
)

// ErrRateLimited reports a manual action rejected by the rate gate.
var ErrRateLimited = errors.New("too many manual actions, retry later")

// Broadcaster receives every appended action log entry. The WebSocket hub
// implements it; a no-op is used when the hub is absent.
type Broadcaster interface {
	Broadcast(e banlog.Entry)
}

// NopBroadcaster discards events.
type NopBroadcaster struct{}

func (NopBroadcaster) Broadcast(banlog.Entry) {}

// Config carries the service knobs.
type Config struct {
	RateLimitWindow   time.Duration
	RateLimitMaxCalls int
}

// Service answers the dashboard operations.
type Service struct {
	src      source.Source
	store    *banlog.Store
	enricher *enrich.Enricher
	gate     *gate.Gate
	cfg      Config
	events   Broadcaster
	log      zerolog.Logger
}

// New wires a Service. events may be nil.
func New(src source.Source, store *banlog.Store, enricher *enrich.Enricher,
	g *gate.Gate, cfg Config, events Broadcaster, log zerolog.Logger) *Service {

	if events == nil {
		events = NopBroadcaster{}
	}
	return &Service{
		src:      src,
		store:    store,
		enricher: enricher,
		gate:     g,
		cfg:      cfg,
		events:   events,
		log:      log,
	}
}

// Demo reports whether the service serves generated data.
func (s *Service) Demo() bool { return s.src.Demo() }

// Overall returns the full current state across all jails.
func (s *Service) Overall(ctx context.Context) (*source.Overall, error) {
	mode := "live"
	if s.src.Demo() {
		mode = "demo"
	}
	metrics.StatusRequests.WithLabelValues(mode).Inc()
	return s.src.Overall(ctx)
}

// Jail returns the status of one jail.
func (s *Service) Jail(ctx context.Context, name string) (*status.Jail, error) {
	return s.src.Jail(ctx, name)
}

// Recent returns the newest manual actions, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]banlog.Entry, error) {
	return s.store.Recent(ctx, limit)
}

// History returns the recorded counter snapshots for one jail since the
// given time.
func (s *Service) History(ctx context.Context, jail string, since time.Time) ([]banlog.Snapshot, error) {
	return s.store.Snapshots(ctx, jail, since)
}

// Ban requests a manual ban. In demo mode this succeeds without touching
// the backend or the log.
func (s *Service) Ban(ctx context.Context, jail, ip string) error {
	return s.action(ctx, "ban", jail, ip)
}

// Unban requests a manual unban.
func (s *Service) Unban(ctx context.Context, jail, ip string) error {
	return s.action(ctx, "unban", jail, ip)
}

func (s *Service) action(ctx context.Context, kind, jail, ip string) error {
	if s.gate != nil && s.cfg.RateLimitMaxCalls > 0 {
		allowed, err := s.gate.Allow("manual-action", s.cfg.RateLimitWindow, s.cfg.RateLimitMaxCalls)
		if err != nil {
			s.log.Warn().Err(err).Msg("rate gate check failed, letting request through")
		} else if !allowed {
			metrics.RateLimited.Inc()
			metrics.ActionsTotal.WithLabelValues(kind, "rate_limited").Inc()
			return ErrRateLimited
		}
	}

	var err error
	switch kind {
	case "ban":
		err = s.src.Ban(ctx, jail, ip)
	case "unban":
		err = s.src.Unban(ctx, jail, ip)
	}
	if err != nil {
		metrics.ActionsTotal.WithLabelValues(kind, "backend_error").Inc()
		return err
	}

	if s.src.Demo() {
		metrics.ActionsTotal.WithLabelValues(kind, "demo").Inc()
		return nil
	}

	entry := banlog.Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Jail:      jail,
		IP:        ip,
		Action:    kind,
	}
	if s.enricher != nil {
		r := s.enricher.Lookup(ctx, ip)
		entry.Country = r.Country
		entry.Hostname = r.Hostname
	}

	// The daemon already applied the action at this point. A failed append
	// still surfaces to the caller: daemon state and log have diverged and
	// the operator needs to know.
	if err := s.store.Append(ctx, entry); err != nil {
		metrics.ActionsTotal.WithLabelValues(kind, "log_error").Inc()
		s.log.Error().Err(err).Str("jail", jail).Str("ip", ip).
			Msg("action applied but logging it failed")
		return err
	}

	if n, err := s.store.Count(ctx); err == nil {
		metrics.LogEntries.Set(float64(n))
	}
	metrics.ActionsTotal.WithLabelValues(kind, "ok").Inc()
	s.events.Broadcast(entry)
	s.log.Info().Str("action", kind).Str("jail", jail).Str("ip", ip).Msg("manual action applied")
	return nil
}
