// Package source abstracts where status data comes from. Exactly one Source
// is constructed at startup — live when a fail2ban backend answers, demo
// otherwise — and callers never branch on the mode again; they just hold
// whichever implementation the selector produced.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/pueblokc/fail2ban/internal/demo"
	"github.com/pueblokc/fail2ban/internal/status"
)

// ErrJailNotFound reports an unknown jail name.
var ErrJailNotFound = errors.New("jail not found")

// BackendError reports a fail2ban-client invocation that did not succeed.
// Output carries the raw command output for the operator.
type BackendError struct {
	Op     string
	Jail   string
	Code   int
	Output string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s %s: backend returned %d: %s", e.Op, e.Jail, e.Code, e.Output)
}

// Overall is the full current state across all jails. Timeline and TopIPs
// are only populated by the demo source.
type Overall struct {
	Jails          map[string]status.Jail `json:"jails"`
	Timeline       []demo.TimelineBucket  `json:"timeline,omitempty"`
	TopIPs         []demo.TopIP           `json:"top_ips,omitempty"`
	TotalBannedNow int                    `json:"total_banned_now"`
	TotalJails     int                    `json:"total_jails"`
	Demo           bool                   `json:"demo"`
}

// Source answers status queries and carries out ban/unban requests.
type Source interface {
	Overall(ctx context.Context) (*Overall, error)
	Jail(ctx context.Context, name string) (*status.Jail, error)
	Ban(ctx context.Context, jail, ip string) error
	Unban(ctx context.Context, jail, ip string) error
	Demo() bool
}
