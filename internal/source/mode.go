package source

import (
	"context"

	"github.com/pueblokc/fail2ban/internal/command"
	"github.com/pueblokc/fail2ban/internal/demo"
	"github.com/pueblokc/fail2ban/internal/metrics"
	"github.com/rs/zerolog"
)

// Select resolves the operating mode once, at startup, and returns the
// matching Source. mode is "true" (force demo), "false" (force live), or
// "auto", which probes the backend with a status query and goes live only
// on a clean exit.
//
// The decision is final for the process lifetime: a backend that becomes
// reachable later is not picked up until restart.
func Select(ctx context.Context, mode string, runner command.Runner, log zerolog.Logger) Source {
	demoMode := false
	switch mode {
	case "true":
		demoMode = true
	case "false":
		demoMode = false
	default: // auto
		_, code := runner.Run(ctx, "status")
		demoMode = code != 0
		if demoMode {
			log.Warn().Int("probe_code", code).Msg("backend probe failed, falling back to demo data")
		}
	}

	if demoMode {
		metrics.DemoMode.Set(1)
		log.Info().Msg("running in demo mode (fail2ban-client not available)")
		return NewDemo(demo.NewGenerator())
	}
	metrics.DemoMode.Set(0)
	log.Info().Msg("connected to fail2ban")
	return NewLive(runner, log)
}
