package dashboard

import (
	"context"
	"time"

	"github.com/pueblokc/fail2ban/internal/banlog"
	"github.com/pueblokc/fail2ban/internal/metrics"
	"github.com/pueblokc/fail2ban/internal/source"
	"github.com/rs/zerolog"
)

// Snapshotter periodically rolls up per-jail counters into the snapshots
// table for trend charts. It only makes sense against a live backend; the
// caller does not start it in demo mode.
type Snapshotter struct {
	src      source.Source
	store    *banlog.Store
	interval time.Duration
	log      zerolog.Logger
}

// NewSnapshotter creates a Snapshotter.
func NewSnapshotter(src source.Source, store *banlog.Store, interval time.Duration, log zerolog.Logger) *Snapshotter {
	return &Snapshotter{src: src, store: store, interval: interval, log: log}
}

// Run executes the recorder loop until ctx is cancelled.
func (s *Snapshotter) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Record immediately on start
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Snapshotter) tick(ctx context.Context) {
	overall, err := s.src.Overall(ctx)
	if err != nil {
		metrics.SnapshotRuns.WithLabelValues("error").Inc()
		s.log.Warn().Err(err).Msg("snapshotter: status query failed")
		return
	}

	ts := time.Now().UTC().Format(time.RFC3339)
	recorded := 0
	for name, jail := range overall.Jails {
		if jail.Error != "" {
			continue
		}
		snap := banlog.Snapshot{
			Timestamp:   ts,
			Jail:        name,
			BannedCount: jail.CurrentlyBanned,
			TotalFailed: jail.TotalFailed,
			TotalBanned: jail.TotalBanned,
		}
		if err := s.store.RecordSnapshot(ctx, snap); err != nil {
			metrics.SnapshotRuns.WithLabelValues("error").Inc()
			s.log.Warn().Err(err).Str("jail", name).Msg("snapshotter: record failed")
			return
		}
		recorded++
	}

	metrics.SnapshotRuns.WithLabelValues("ok").Inc()
	s.log.Debug().Int("jails", recorded).Msg("snapshotter: tick complete")
}
