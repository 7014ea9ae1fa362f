// Package cache implements the Cache Store (C6): a SQLite-backed,
// schema-aware, query-capable persistence layer for workspace entities
// and table records (spec §4.6). Any storage error surfaces to the
// caller as cacheerr.ErrCacheUnavailable so upstream callers can fall
// back to a direct fetch.
package cache

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Grupo-AFAL/smartsuite-bridge/internal/cacheerr"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/storage"
)

// Store is the Cache Store. One Store serves one workspace bridge
// process; writes to a given table's record set are serialised via a
// per-table mutex while reads and writes to other tables proceed
// concurrently (spec §4.6 concurrency policy).
type Store struct {
	db *sql.DB

	tableLocksMu sync.Mutex
	tableLocks   map[string]*sync.Mutex
}

// Open opens (creating if absent) the SQLite database at path and runs
// all registered migrations. path may be ":memory:" for tests.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := storage.SQLiteConnString(path, false) + "&_pragma=journal_mode(WAL)"
	if path == ":memory:" {
		dsn = "file::memory:?cache=shared&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, cacheerr.Wrap("open cache database", err)
	}
	db.SetMaxOpenConns(1) // a single writer connection avoids SQLITE_BUSY storms under WAL

	s := &Store{db: db, tableLocks: make(map[string]*sync.Mutex)}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, cacheerr.Wrap("run cache migrations", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// lockFor returns the per-table mutex for tableID, creating it on first
// use. Held for the duration of any operation that mutates a table's
// record set (put_records, invalidate with cascade over records).
func (s *Store) lockFor(tableID string) *sync.Mutex {
	s.tableLocksMu.Lock()
	defer s.tableLocksMu.Unlock()
	m, ok := s.tableLocks[tableID]
	if !ok {
		m = &sync.Mutex{}
		s.tableLocks[tableID] = m
	}
	return m
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
