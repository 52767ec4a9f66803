package banlog

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "f2b_dashboard.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestAppendThenRecent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, Entry{Jail: "sshd", IP: "1.2.3.4", Action: "ban"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	entries, err := s.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Action != "ban" || e.Jail != "sshd" || e.IP != "1.2.3.4" {
		t.Errorf("unexpected entry: %+v", e)
	}
	if e.ID == 0 {
		t.Error("entry did not get an id")
	}
	if _, err := time.Parse(time.RFC3339, e.Timestamp); err != nil {
		t.Errorf("timestamp %q not RFC 3339: %v", e.Timestamp, err)
	}
}

func TestRecentNewestFirst(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		if err := s.Append(ctx, Entry{Jail: "sshd", IP: ip, Action: "ban"}); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].IP != "10.0.0.3" || entries[1].IP != "10.0.0.2" {
		t.Errorf("not newest-first: %v, %v", entries[0].IP, entries[1].IP)
	}
	if entries[0].ID <= entries[1].ID {
		t.Errorf("ids not descending: %d, %d", entries[0].ID, entries[1].ID)
	}
}

func TestRecentLimitBounds(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, limit := range []int{0, -5, 1001} {
		_, err := s.Recent(ctx, limit)
		var limitErr RecentLimitError
		if !errors.As(err, &limitErr) {
			t.Errorf("Recent(%d): err = %v, want RecentLimitError", limit, err)
		}
	}
	if _, err := s.Recent(ctx, 1); err != nil {
		t.Errorf("Recent(1): %v", err)
	}
	if _, err := s.Recent(ctx, 1000); err != nil {
		t.Errorf("Recent(1000): %v", err)
	}
}

// Reopening the store applies the schema again; it must neither fail nor
// disturb existing rows.
func TestSchemaIdempotent(t *testing.T) {
	s, path := newTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, Entry{Jail: "sshd", IP: "1.1.1.1", Action: "unban"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	entries, err := s2.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].IP != "1.1.1.1" {
		t.Errorf("entries after reopen = %+v, want the original row", entries)
	}
}

func TestCountryHostnameRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, Entry{Jail: "postfix", IP: "2.2.2.2", Action: "ban", Country: "DE", Hostname: "mail.example.org."}); err != nil {
		t.Fatal(err)
	}
	entries, err := s.Recent(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if entries[0].Country != "DE" || entries[0].Hostname != "mail.example.org." {
		t.Errorf("enrichment columns lost: %+v", entries[0])
	}
}

func TestSnapshots(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour).UTC().Format(time.RFC3339)
	if err := s.RecordSnapshot(ctx, Snapshot{Timestamp: old, Jail: "sshd", BannedCount: 1, TotalFailed: 10, TotalBanned: 5}); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordSnapshot(ctx, Snapshot{Jail: "sshd", BannedCount: 2, TotalFailed: 20, TotalBanned: 6}); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordSnapshot(ctx, Snapshot{Jail: "postfix", BannedCount: 9}); err != nil {
		t.Fatal(err)
	}

	snaps, err := s.Snapshots(ctx, "sshd", time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 1 {
		t.Fatalf("len(snaps) = %d, want 1 (old row and other jail excluded)", len(snaps))
	}
	if snaps[0].BannedCount != 2 || snaps[0].TotalBanned != 6 {
		t.Errorf("unexpected snapshot: %+v", snaps[0])
	}
}

func TestCount(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	n, err := s.Count(ctx)
	if err != nil || n != 0 {
		t.Fatalf("Count on empty store: n=%d err=%v", n, err)
	}
	_ = s.Append(ctx, Entry{Jail: "sshd", IP: "3.3.3.3", Action: "ban"})
	n, err = s.Count(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Count after append: n=%d err=%v", n, err)
	}
}

// Concurrent appends must all land; SQLite serializes the writers.
func TestConcurrentAppends(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	const n = 10
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Append(ctx, Entry{Jail: "sshd", IP: "192.0.2.1", Action: "ban"})
		}(i)
	}
	wg.Wait()

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != n {
		t.Errorf("count = %d, want %d", count, n)
	}
}
