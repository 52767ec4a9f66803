package dashboard

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pueblokc/fail2ban/internal/banlog"
	"github.com/pueblokc/fail2ban/internal/gate"
	"github.com/pueblokc/fail2ban/internal/source"
	"github.com/pueblokc/fail2ban/internal/status"
	"github.com/rs/zerolog"
)

// fakeSource implements source.Source for service tests.
type fakeSource struct {
	demo    bool
	banErr  error
	actions []string
}

func (f *fakeSource) Overall(ctx context.Context) (*source.Overall, error) {
	return &source.Overall{
		Jails: map[string]status.Jail{
			"sshd": {Name: "sshd", CurrentlyBanned: 1, TotalFailed: 10, TotalBanned: 4},
			"bad":  {Name: "bad", Error: "failed to get status for bad"},
		},
		TotalBannedNow: 1,
		TotalJails:     2,
		Demo:           f.demo,
	}, nil
}

func (f *fakeSource) Jail(ctx context.Context, name string) (*status.Jail, error) {
	return &status.Jail{Name: name}, nil
}

func (f *fakeSource) Ban(ctx context.Context, jail, ip string) error {
	f.actions = append(f.actions, "ban "+jail+" "+ip)
	return f.banErr
}

func (f *fakeSource) Unban(ctx context.Context, jail, ip string) error {
	f.actions = append(f.actions, "unban "+jail+" "+ip)
	return f.banErr
}

func (f *fakeSource) Demo() bool { return f.demo }

// recorder collects broadcast entries.
type recorder struct {
	entries []banlog.Entry
}

func (r *recorder) Broadcast(e banlog.Entry) { r.entries = append(r.entries, e) }

func newTestService(t *testing.T, src source.Source, cfg Config) (*Service, *banlog.Store, *recorder) {
	t.Helper()
	store, err := banlog.Open(filepath.Join(t.TempDir(), "log.db"))
	if err != nil {
		t.Fatalf("banlog.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	var g *gate.Gate
	if cfg.RateLimitMaxCalls > 0 {
		g, err = gate.Open(t.TempDir())
		if err != nil {
			t.Fatalf("gate.Open: %v", err)
		}
		t.Cleanup(func() { g.Close() })
	}

	rec := &recorder{}
	return New(src, store, nil, g, cfg, rec, zerolog.Nop()), store, rec
}

func TestBanThenRecent(t *testing.T) {
	src := &fakeSource{}
	svc, _, rec := newTestService(t, src, Config{})
	ctx := context.Background()

	if err := svc.Ban(ctx, "sshd", "1.2.3.4"); err != nil {
		t.Fatalf("Ban: %v", err)
	}

	entries, err := svc.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].Action != "ban" || entries[0].IP != "1.2.3.4" || entries[0].Jail != "sshd" {
		t.Errorf("unexpected entry: %+v", entries[0])
	}
	if len(rec.entries) != 1 {
		t.Errorf("broadcast %d entries, want 1", len(rec.entries))
	}
	if len(src.actions) != 1 || src.actions[0] != "ban sshd 1.2.3.4" {
		t.Errorf("backend actions = %v", src.actions)
	}
}

func TestUnbanLogged(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeSource{}, Config{})
	ctx := context.Background()

	if err := svc.Unban(ctx, "postfix", "9.9.9.9"); err != nil {
		t.Fatalf("Unban: %v", err)
	}
	entries, _ := svc.Recent(ctx, 1)
	if entries[0].Action != "unban" {
		t.Errorf("Action = %q, want unban", entries[0].Action)
	}
}

// In demo mode actions succeed but nothing reaches the log.
func TestDemoBanNotLogged(t *testing.T) {
	svc, _, rec := newTestService(t, &fakeSource{demo: true}, Config{})
	ctx := context.Background()

	if err := svc.Ban(ctx, "sshd", "1.2.3.4"); err != nil {
		t.Fatalf("Ban: %v", err)
	}
	entries, err := svc.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("demo ban was logged: %+v", entries)
	}
	if len(rec.entries) != 0 {
		t.Error("demo ban was broadcast")
	}
}

// A failed backend action must not be logged.
func TestFailedBanNotLogged(t *testing.T) {
	src := &fakeSource{banErr: &source.BackendError{Op: "banip", Jail: "sshd", Code: 255, Output: "boom"}}
	svc, _, _ := newTestService(t, src, Config{})
	ctx := context.Background()

	err := svc.Ban(ctx, "sshd", "1.2.3.4")
	var backendErr *source.BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("err = %v, want BackendError", err)
	}
	entries, _ := svc.Recent(ctx, 10)
	if len(entries) != 0 {
		t.Errorf("failed ban was logged: %+v", entries)
	}
}

func TestActionRateLimited(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeSource{}, Config{
		RateLimitWindow:   time.Minute,
		RateLimitMaxCalls: 2,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := svc.Ban(ctx, "sshd", "1.2.3.4"); err != nil {
			t.Fatalf("Ban %d: %v", i, err)
		}
	}
	err := svc.Ban(ctx, "sshd", "1.2.3.4")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
}

func TestOverallPassesThrough(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeSource{}, Config{})
	overall, err := svc.Overall(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if overall.TotalJails != 2 || overall.TotalBannedNow != 1 {
		t.Errorf("unexpected overall: %+v", overall)
	}
}
