// Package gate caps the rate of manual ban/unban requests. The sliding
// windows live in a small bbolt file so restarts don't reset the budget.
package gate

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"
)

const bucketWindows = "windows"

// Gate is a persistent sliding-window rate limiter. The windows bucket
// stores a []int64 of Unix nanosecond timestamps per key.
type Gate struct {
	db *bolt.DB
	mu sync.Mutex // guards read-modify-write of a window
}

// Open opens (or creates) the gate database at dataDir/gate.db.
func Open(dataDir string) (*Gate, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dataDir, "gate.db")
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt at %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketWindows))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Gate{db: db}, nil
}

// Allow reports whether one more call under key fits the budget of max
// calls per window, and appends the current timestamp if it does.
// max <= 0 means unlimited.
func (g *Gate) Allow(key string, window time.Duration, max int) (bool, error) {
	if max <= 0 {
		return true, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var allowed bool
	err := g.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketWindows))
		cutoff := time.Now().Add(-window).UnixNano()
		now := time.Now().UnixNano()

		var timestamps []int64
		if raw := b.Get([]byte(key)); raw != nil {
			if err := msgpack.Unmarshal(raw, &timestamps); err != nil {
				return fmt.Errorf("unmarshal window timestamps: %w", err)
			}
		}

		pruned := timestamps[:0]
		for _, ts := range timestamps {
			if ts >= cutoff {
				pruned = append(pruned, ts)
			}
		}

		allowed = len(pruned) < max
		if allowed {
			pruned = append(pruned, now)
		}
		data, err := msgpack.Marshal(pruned)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
	return allowed, err
}

// Prune drops window entries older than window across all keys and deletes
// emptied keys. Returns the number of dropped entries.
func (g *Gate) Prune(window time.Duration) (int, error) {
	cutoff := time.Now().Add(-window).UnixNano()
	var pruned int
	err := g.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketWindows))

		// Mutating a bucket during ForEach is not allowed; collect first.
		updates := make(map[string][]int64)
		var deletions []string
		if err := b.ForEach(func(k, v []byte) error {
			var timestamps []int64
			if err := msgpack.Unmarshal(v, &timestamps); err != nil {
				return nil // skip corrupt entries
			}
			var filtered []int64
			for _, ts := range timestamps {
				if ts >= cutoff {
					filtered = append(filtered, ts)
				}
			}
			if len(filtered) == len(timestamps) {
				return nil
			}
			pruned += len(timestamps) - len(filtered)
			if len(filtered) == 0 {
				deletions = append(deletions, string(k))
				return nil
			}
			updates[string(k)] = filtered
			return nil
		}); err != nil {
			return err
		}

		for _, k := range deletions {
			if err := b.Delete([]byte(k)); err != nil {
				return err
			}
		}
		for k, filtered := range updates {
			data, err := msgpack.Marshal(filtered)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(k), data); err != nil {
				return err
			}
		}
		return nil
	})
	return pruned, err
}

// Close closes the database.
func (g *Gate) Close() error {
	return g.db.Close()
}
