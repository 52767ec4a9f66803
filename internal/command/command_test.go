package command

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testChannel(t *testing.T, client string, timeout time.Duration) *Channel {
	t.Helper()
	return New(client, false, "", "", "", timeout, zerolog.Nop())
}

func TestArgvLocal(t *testing.T) {
	c := New("fail2ban-client", false, "", "", "", 0, zerolog.Nop())
	got := c.argv([]string{"status", "sshd"})
	want := []string{"fail2ban-client", "status", "sshd"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("argv = %v, want %v", got, want)
	}
}

func TestArgvSudo(t *testing.T) {
	c := New("fail2ban-client", true, "", "", "", 0, zerolog.Nop())
	got := c.argv([]string{"status"})
	want := []string{"sudo", "fail2ban-client", "status"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("argv = %v, want %v", got, want)
	}
}

// A remote invocation wraps in ssh and never adds sudo, even when sudo is
// configured; privilege on the remote side belongs to the remote user.
func TestArgvSSHWinsOverSudo(t *testing.T) {
	c := New("fail2ban-client", true, "bastion", "ops", "", 0, zerolog.Nop())
	got := c.argv([]string{"status"})
	want := []string{"ssh", "ops@bastion", "fail2ban-client", "status"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("argv = %v, want %v", got, want)
	}
}

func TestArgvSSHIdentityFile(t *testing.T) {
	c := New("fail2ban-client", false, "bastion", "ops", "/keys/id_ed25519", 0, zerolog.Nop())
	got := c.argv([]string{"status"})
	want := []string{"ssh", "-i", "/keys/id_ed25519", "ops@bastion", "fail2ban-client", "status"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("argv = %v, want %v", got, want)
	}
}

func TestRunSuccess(t *testing.T) {
	c := testChannel(t, "echo", 0)
	out, code := c.Run(context.Background(), "hello", "world")
	if code != 0 {
		t.Fatalf("code = %d, want 0", code)
	}
	if out != "hello world" {
		t.Errorf("out = %q, want %q", out, "hello world")
	}
}

func TestRunTrimsOutput(t *testing.T) {
	c := testChannel(t, "printf", 0)
	out, code := c.Run(context.Background(), "  padded  \n\n")
	if code != 0 {
		t.Fatalf("code = %d, want 0", code)
	}
	if out != "padded" {
		t.Errorf("out = %q, want %q", out, "padded")
	}
}

func TestRunExitCode(t *testing.T) {
	c := testChannel(t, "sh", 0)
	_, code := c.Run(context.Background(), "-c", "exit 3")
	if code != 3 {
		t.Errorf("code = %d, want 3", code)
	}
}

func TestRunBinaryNotFound(t *testing.T) {
	c := testChannel(t, "definitely-not-a-real-binary-4721", 0)
	out, code := c.Run(context.Background(), "status")
	if code != CodeNotFound {
		t.Errorf("code = %d, want %d", code, CodeNotFound)
	}
	if out != "" {
		t.Errorf("out = %q, want empty", out)
	}
}

// A command exceeding the timeout reports CodeTimeout and the sentinel
// output; it never surfaces as a panic or error to the caller.
func TestRunTimeout(t *testing.T) {
	c := testChannel(t, "sleep", 100*time.Millisecond)
	start := time.Now()
	out, code := c.Run(context.Background(), "30")
	if code != CodeTimeout {
		t.Errorf("code = %d, want %d", code, CodeTimeout)
	}
	if out != TimeoutOutput {
		t.Errorf("out = %q, want %q", out, TimeoutOutput)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timed-out command not killed promptly (took %s)", elapsed)
	}
}

// A caller that goes away does not kill the invocation: the channel
// timeout is the only kill trigger, and the command's real result comes
// back rather than a spurious not-found code.
func TestRunSurvivesCallerCancellation(t *testing.T) {
	c := testChannel(t, "sh", 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, code := c.Run(ctx, "-c", "sleep 0.2; echo done")
	if code != 0 {
		t.Fatalf("code = %d, want 0 (cancelled caller must not kill the command)", code)
	}
	if out != "done" {
		t.Errorf("out = %q, want %q", out, "done")
	}
}

func TestDefaultTimeoutApplied(t *testing.T) {
	c := New("echo", false, "", "", "", 0, zerolog.Nop())
	if c.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %s, want %s", c.Timeout, DefaultTimeout)
	}
}
