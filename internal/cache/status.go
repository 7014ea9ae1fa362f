package cache

import (
	"context"
	"database/sql"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Grupo-AFAL/smartsuite-bridge/internal/cacheerr"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/fieldtypes"
)

// EntityClassStatus is one row of Status's report: how many entities of
// a class are cached, when the soonest of them expires, and the TTL
// category seconds this class refreshes on (spec §6 "{count, next_expiry,
// ttl_seconds}").
type EntityClassStatus struct {
	Class        string     `json:"class"`
	Count        int        `json:"count"`
	NextToExpire *time.Time `json:"next_to_expire,omitempty"`
	TTLSeconds   int        `json:"ttl_seconds"`
}

// classTTLCategory maps a status row's class to the field-type
// registry's TTL category it refreshes on (spec §4.6): directory and
// structural entities are long-lived, records follow the registry's
// per-field categories on average, so "short" best represents the
// bucket as a whole.
func classTTLCategory(class string) fieldtypes.TTLCategory {
	if class == "record" {
		return fieldtypes.TTLShort
	}
	return fieldtypes.TTLLong
}

// Status reports, per cached entity class, count, next-to-expire
// timestamp, and TTL seconds (spec §4.6 op 8). defaultTTLSeconds is the
// configured default_ttl_seconds used as the TTLSeconds anchor. The
// three underlying queries touch disjoint tables, so they run
// concurrently rather than back-to-back.
func (s *Store) Status(ctx context.Context, defaultTTLSeconds int) ([]EntityClassStatus, error) {
	var entityRows []EntityClassStatus
	var tableStatus, recordStatus EntityClassStatus

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.entityClassStatus(gctx)
		entityRows = rows
		return err
	})
	g.Go(func() error {
		st, err := s.classStatus(gctx, "table_schemas", "table_schema")
		tableStatus = st
		return err
	})
	g.Go(func() error {
		st, err := s.recordStatus(gctx)
		recordStatus = st
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]EntityClassStatus, 0, len(entityRows)+2)
	out = append(out, entityRows...)
	out = append(out, tableStatus, recordStatus)
	for i := range out {
		out[i].TTLSeconds = fieldtypes.TTLSeconds(classTTLCategory(out[i].Class), defaultTTLSeconds)
	}
	return out, nil
}

func (s *Store) entityClassStatus(ctx context.Context) ([]EntityClassStatus, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*), MIN(expires_at) FROM entities GROUP BY kind
	`)
	if err != nil {
		return nil, cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "status entities: %v", err)
	}
	defer func() { _ = rows.Close() }()

	var out []EntityClassStatus
	for rows.Next() {
		var kind string
		var count int
		var nextRaw string
		if err := rows.Scan(&kind, &count, &nextRaw); err != nil {
			return nil, cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "scan entity status: %v", err)
		}
		st := EntityClassStatus{Class: kind, Count: count}
		if t, err := time.Parse(time.RFC3339Nano, nextRaw); err == nil {
			st.NextToExpire = &t
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "iterate entity status: %v", err)
	}
	return out, nil
}

func (s *Store) classStatus(ctx context.Context, table, class string) (EntityClassStatus, error) {
	var count int
	var nextRaw sql.NullString
	query := "SELECT COUNT(*), MIN(expires_at) FROM " + table
	if err := s.db.QueryRowContext(ctx, query).Scan(&count, &nextRaw); err != nil {
		return EntityClassStatus{}, cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "status %s: %v", table, err)
	}
	st := EntityClassStatus{Class: class, Count: count}
	if nextRaw.Valid {
		if t, err := time.Parse(time.RFC3339Nano, nextRaw.String); err == nil {
			st.NextToExpire = &t
		}
	}
	return st, nil
}

func (s *Store) recordStatus(ctx context.Context) (EntityClassStatus, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&count); err != nil {
		return EntityClassStatus{}, cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "status records: %v", err)
	}
	var nextRaw sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MIN(expires_at) FROM record_cache_state WHERE state = 'valid'`).Scan(&nextRaw); err != nil {
		return EntityClassStatus{}, cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "status record cache state: %v", err)
	}
	st := EntityClassStatus{Class: "record", Count: count}
	if nextRaw.Valid {
		if t, err := time.Parse(time.RFC3339Nano, nextRaw.String); err == nil {
			st.NextToExpire = &t
		}
	}
	return st, nil
}
