// Package command executes fail2ban-client invocations against the local
// host or a remote one over ssh. Failures are reported as status codes, not
// errors, so callers can distinguish "the daemon said no" from "we never
// reached the daemon".
package command

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/pueblokc/fail2ban/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	// CodeNotFound means the client binary (or ssh) was not found on PATH.
	CodeNotFound = -1
	// CodeTimeout means the invocation exceeded the channel timeout.
	CodeTimeout = -2

	// TimeoutOutput is returned as the output of a timed-out invocation so
	// callers can tell "ran and printed nothing" from "never completed".
	TimeoutOutput = "timeout"

	// DefaultTimeout bounds every invocation.
	DefaultTimeout = 10 * time.Second
)

// Runner executes one fail2ban-client command and returns its trimmed stdout
// plus a status code: 0 on success, the process exit code on failure,
// CodeNotFound or CodeTimeout when the command never ran to completion.
type Runner interface {
	Run(ctx context.Context, args ...string) (string, int)
}

// Channel runs fail2ban-client through one of two transports: directly on
// the local host (optionally under sudo) or wrapped in an ssh invocation
// when a remote host is configured. Remote invocations are never prefixed
// with sudo; privilege on the remote side is the remote user's concern.
type Channel struct {
	Client  string // fail2ban-client binary name or path
	UseSudo bool
	SSHHost string
	SSHUser string
	SSHKey  string // identity file, optional
	Timeout time.Duration

	log zerolog.Logger
}

// New returns a Channel with the default timeout applied if none is set.
func New(client string, useSudo bool, sshHost, sshUser, sshKey string, timeout time.Duration, log zerolog.Logger) *Channel {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Channel{
		Client:  client,
		UseSudo: useSudo,
		SSHHost: sshHost,
		SSHUser: sshUser,
		SSHKey:  sshKey,
		Timeout: timeout,
		log:     log,
	}
}

// argv builds the full invocation for args.
func (c *Channel) argv(args []string) []string {
	var cmd []string
	if c.SSHHost != "" {
		cmd = append(cmd, "ssh")
		if c.SSHKey != "" {
			cmd = append(cmd, "-i", c.SSHKey)
		}
		cmd = append(cmd, c.SSHUser+"@"+c.SSHHost)
	} else if c.UseSudo {
		cmd = append(cmd, "sudo")
	}
	cmd = append(cmd, c.Client)
	return append(cmd, args...)
}

// Run executes one command. A single invocation, no retries; retry policy
// belongs to the caller. The channel timeout is the only kill trigger: a
// caller that abandons its request does not terminate the subprocess, the
// invocation completes or times out on its own schedule and the result is
// simply discarded. The subprocess is released on every exit path:
// exec.CommandContext kills it once the deadline fires.
func (c *Channel) Run(_ context.Context, args ...string) (string, int) {
	argv := c.argv(args)

	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.Output()
	metrics.CommandDuration.WithLabelValues(c.transport()).Observe(time.Since(start).Seconds())

	output := strings.TrimSpace(string(out))

	switch {
	case err == nil:
		metrics.CommandsTotal.WithLabelValues(c.transport(), "ok").Inc()
		return output, 0
	case ctx.Err() == context.DeadlineExceeded:
		metrics.CommandsTotal.WithLabelValues(c.transport(), "timeout").Inc()
		c.log.Warn().Strs("argv", argv).Dur("timeout", c.Timeout).Msg("command timed out")
		return TimeoutOutput, CodeTimeout
	case errors.Is(err, exec.ErrNotFound):
		metrics.CommandsTotal.WithLabelValues(c.transport(), "not_found").Inc()
		c.log.Warn().Str("client", argv[0]).Msg("command binary not found")
		return "", CodeNotFound
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			metrics.CommandsTotal.WithLabelValues(c.transport(), "exit_error").Inc()
			c.log.Debug().Strs("argv", argv).Int("code", exitErr.ExitCode()).Msg("command exited non-zero")
			return output, exitErr.ExitCode()
		}
		// Spawn failures other than ErrNotFound (permission, bad path)
		metrics.CommandsTotal.WithLabelValues(c.transport(), "not_found").Inc()
		c.log.Warn().Strs("argv", argv).Err(err).Msg("command failed to start")
		return "", CodeNotFound
	}
}

func (c *Channel) transport() string {
	if c.SSHHost != "" {
		return "ssh"
	}
	return "local"
}
