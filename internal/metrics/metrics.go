package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "f2bweb"

var (
	// CommandsTotal counts fail2ban-client invocations by transport and outcome.
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_total",
		Help:      "fail2ban-client invocations by transport and outcome.",
	}, []string{"transport", "status"})

	// CommandDuration records fail2ban-client invocation latency.
	CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "command_duration_seconds",
		Help:      "fail2ban-client invocation latency in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
	}, []string{"transport"})

	// ActionsTotal counts manual ban/unban requests by kind and outcome.
	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "actions_total",
		Help:      "Manual ban/unban requests by kind and outcome.",
	}, []string{"action", "status"})

	// DemoMode is 1 when the process serves generated data.
	DemoMode = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "demo_mode",
		Help:      "1 when serving generated data, 0 when live.",
	})

	// LogEntries tracks the action log row count.
	LogEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "log_entries",
		Help:      "Rows in the action log.",
	})

	// StatusRequests counts overall status queries by mode.
	StatusRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_requests_total",
		Help:      "Overall status queries by mode.",
	}, []string{"mode"})

	// SnapshotRuns counts snapshot recorder passes by outcome.
	SnapshotRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshot_runs_total",
		Help:      "Snapshot recorder passes by outcome.",
	}, []string{"status"})

	// WSClients tracks connected event-feed clients.
	WSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_clients",
		Help:      "Connected WebSocket event-feed clients.",
	})

	// RateLimited counts manual actions rejected by the rate gate.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Manual actions rejected by the rate gate.",
	})
)
