// Package banlog owns the durable store: an append-only log of manual
// ban/unban actions plus periodic per-jail counter snapshots. All access to
// the database file goes through Store. SQLite with WAL journaling
// serializes concurrent writers; readers proceed concurrently under the
// usual WAL rules.
//
// The log only records actions issued through this system. Bans the daemon
// performs or expires on its own never appear here.
package banlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one immutable manual action record.
type Entry struct {
	ID        int64  `json:"id"`
	Timestamp string `json:"timestamp"` // UTC, RFC 3339
	Jail      string `json:"jail"`
	IP        string `json:"ip"`
	Action    string `json:"action"` // "ban" or "unban"
	Country   string `json:"country,omitempty"`
	Hostname  string `json:"hostname,omitempty"`
}

// Snapshot is a point-in-time rollup of one jail's counters.
type Snapshot struct {
	Timestamp   string `json:"timestamp"`
	Jail        string `json:"jail"`
	BannedCount int    `json:"banned_count"`
	TotalFailed int    `json:"total_failed"`
	TotalBanned int    `json:"total_banned"`
}

// PersistenceError wraps a failed durable-store operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return "banlog: " + e.Op + ": " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }

// RecentLimitError reports an out-of-range Recent limit.
type RecentLimitError int

func (e RecentLimitError) Error() string {
	return fmt.Sprintf("banlog: limit %d outside [1, %d]", int(e), MaxRecentLimit)
}

// MaxRecentLimit caps one Recent query.
const MaxRecentLimit = 1000

const schema = `
CREATE TABLE IF NOT EXISTS ban_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	jail TEXT NOT NULL,
	ip TEXT NOT NULL,
	action TEXT NOT NULL DEFAULT 'ban',
	country TEXT,
	hostname TEXT
);
CREATE TABLE IF NOT EXISTS snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	jail TEXT NOT NULL,
	banned_count INTEGER NOT NULL,
	total_failed INTEGER,
	total_banned INTEGER
);
CREATE INDEX IF NOT EXISTS idx_ban_log_ts ON ban_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_ban_log_jail ON ban_log(jail);
CREATE INDEX IF NOT EXISTS idx_ban_log_ip ON ban_log(ip);
CREATE INDEX IF NOT EXISTS idx_snapshots_ts ON snapshots(timestamp);
CREATE INDEX IF NOT EXISTS idx_snapshots_jail ON snapshots(jail);
`

// Store mediates all access to the database file.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Schema creation is idempotent: safe to run on every startup.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &PersistenceError{Op: "open", Err: err}
	}

	// One writer at a time; WAL lets readers run alongside it.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, &PersistenceError{Op: "enable WAL", Err: err}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, &PersistenceError{Op: "apply schema", Err: err}
	}
	return &Store{db: db}, nil
}

// Append durably records one action. The row is visible to subsequent
// reads before Append returns; there is no write buffering.
func (s *Store) Append(ctx context.Context, e Entry) error {
	ts := e.Timestamp
	if ts == "" {
		ts = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ban_log (timestamp, jail, ip, action, country, hostname) VALUES (?, ?, ?, ?, ?, ?)`,
		ts, e.Jail, e.IP, e.Action, e.Country, e.Hostname)
	if err != nil {
		return &PersistenceError{Op: "append", Err: err}
	}
	return nil
}

// Recent returns up to limit entries, newest first by id.
// limit must be in [1, MaxRecentLimit].
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit < 1 || limit > MaxRecentLimit {
		return nil, RecentLimitError(limit)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, jail, ip, action, IFNULL(country, ''), IFNULL(hostname, '')
		 FROM ban_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, &PersistenceError{Op: "recent", Err: err}
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Jail, &e.IP, &e.Action, &e.Country, &e.Hostname); err != nil {
			return nil, &PersistenceError{Op: "scan entry", Err: err}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "recent", Err: err}
	}
	return entries, nil
}

// RecordSnapshot stores one per-jail counter rollup.
func (s *Store) RecordSnapshot(ctx context.Context, snap Snapshot) error {
	ts := snap.Timestamp
	if ts == "" {
		ts = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (timestamp, jail, banned_count, total_failed, total_banned) VALUES (?, ?, ?, ?, ?)`,
		ts, snap.Jail, snap.BannedCount, snap.TotalFailed, snap.TotalBanned)
	if err != nil {
		return &PersistenceError{Op: "record snapshot", Err: err}
	}
	return nil
}

// Snapshots returns the rollups for one jail since the given time, oldest
// first, for trend charts.
func (s *Store) Snapshots(ctx context.Context, jail string, since time.Time) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, jail, banned_count, IFNULL(total_failed, 0), IFNULL(total_banned, 0)
		 FROM snapshots WHERE jail = ? AND timestamp >= ? ORDER BY id ASC`,
		jail, since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, &PersistenceError{Op: "snapshots", Err: err}
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.Timestamp, &snap.Jail, &snap.BannedCount, &snap.TotalFailed, &snap.TotalBanned); err != nil {
			return nil, &PersistenceError{Op: "scan snapshot", Err: err}
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "snapshots", Err: err}
	}
	return snaps, nil
}

// Count returns the number of log rows. Used for the rows gauge.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ban_log`).Scan(&n); err != nil {
		return 0, &PersistenceError{Op: "count", Err: err}
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
