package source

import (
	"context"

	"github.com/pueblokc/fail2ban/internal/command"
	"github.com/pueblokc/fail2ban/internal/status"
	"github.com/rs/zerolog"
)

// liveSource answers from a real fail2ban backend through a command Runner.
// It holds no state between calls; every query re-invokes the backend, so
// staleness is bounded by request latency alone.
type liveSource struct {
	runner command.Runner
	log    zerolog.Logger
}

// NewLive returns a Source backed by runner.
func NewLive(runner command.Runner, log zerolog.Logger) Source {
	return &liveSource{runner: runner, log: log}
}

func (s *liveSource) Demo() bool { return false }

// jailList queries the daemon for all jail names. A failed query yields an
// empty list: "no jails known", which callers must not read as "zero jails
// exist".
func (s *liveSource) jailList(ctx context.Context) []string {
	out, code := s.runner.Run(ctx, "status")
	if code != 0 {
		s.log.Warn().Int("code", code).Msg("jail list query failed")
		return nil
	}
	return status.ParseJailList(out)
}

func (s *liveSource) Overall(ctx context.Context) (*Overall, error) {
	jails := s.jailList(ctx)

	result := &Overall{
		Jails:      make(map[string]status.Jail, len(jails)),
		TotalJails: len(jails),
	}
	for _, name := range jails {
		j, err := s.Jail(ctx, name)
		if err != nil {
			// One unparseable jail degrades to an error record; it
			// never aborts the whole response.
			s.log.Warn().Str("jail", name).Err(err).Msg("jail status failed")
			result.Jails[name] = status.Jail{Name: name, Error: "failed to get status for " + name}
			continue
		}
		result.Jails[name] = *j
		result.TotalBannedNow += j.CurrentlyBanned
	}
	return result, nil
}

func (s *liveSource) Jail(ctx context.Context, name string) (*status.Jail, error) {
	out, code := s.runner.Run(ctx, "status", name)
	if code != 0 {
		return nil, &BackendError{Op: "status", Jail: name, Code: code, Output: out}
	}
	j := status.ParseStatusText(name, out)
	return &j, nil
}

func (s *liveSource) Ban(ctx context.Context, jail, ip string) error {
	return s.action(ctx, jail, "banip", ip)
}

func (s *liveSource) Unban(ctx context.Context, jail, ip string) error {
	return s.action(ctx, jail, "unbanip", ip)
}

func (s *liveSource) action(ctx context.Context, jail, verb, ip string) error {
	out, code := s.runner.Run(ctx, "set", jail, verb, ip)
	if code != 0 {
		return &BackendError{Op: verb, Jail: jail, Code: code, Output: out}
	}
	return nil
}
