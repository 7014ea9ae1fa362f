package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/Grupo-AFAL/smartsuite-bridge/internal/cacheerr"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/types"
)

// PutEntity upserts a typed entity envelope (spec §4.6 op 1): solutions,
// members, teams, views, and deleted-record tombstones all flow through
// this generic path; records use the dedicated PutRecords/PutRecord ops.
func (s *Store) PutEntity(ctx context.Context, kind types.EntityKind, id string, payload json.RawMessage, ttl time.Duration) error {
	now := nowUTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (kind, id, payload, cached_at, expires_at, source_hash)
		VALUES (?, ?, ?, ?, ?, '')
		ON CONFLICT (kind, id) DO UPDATE SET
			payload = excluded.payload,
			cached_at = excluded.cached_at,
			expires_at = excluded.expires_at
	`, string(kind), id, string(payload), now.Format(time.RFC3339Nano), now.Add(ttl).Format(time.RFC3339Nano))
	if err != nil {
		return cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "put entity %s/%s: %v", kind, id, err)
	}
	return nil
}

// GetEntity returns an entity's payload, cacheerr.ErrNotFound for a
// missing or expired row, or cacheerr.ErrCacheUnavailable on a storage
// failure. An expired row is treated as not found (spec §4.6 op 2); the
// caller is responsible for refetching.
func (s *Store) GetEntity(ctx context.Context, kind types.EntityKind, id string) (json.RawMessage, error) {
	var payload, expiresAtRaw string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload, expires_at FROM entities WHERE kind = ? AND id = ?
	`, string(kind), id).Scan(&payload, &expiresAtRaw)

	if err == sql.ErrNoRows {
		return nil, cacheerr.Wrapf(cacheerr.ErrNotFound, "entity %s/%s", kind, id)
	}
	if err != nil {
		return nil, cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "get entity %s/%s: %v", kind, id, err)
	}

	expiresAt, err := time.Parse(time.RFC3339Nano, expiresAtRaw)
	if err != nil {
		return nil, cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "parse expiry for entity %s/%s: %v", kind, id, err)
	}
	if !nowUTC().Before(expiresAt) {
		return nil, cacheerr.Wrapf(cacheerr.ErrNotFound, "entity %s/%s expired", kind, id)
	}
	return json.RawMessage(payload), nil
}

// ListEntities returns every non-expired payload of kind, for entity
// classes listed wholesale rather than fetched by id (spec §4.1 name
// lookup, §6 "fetch_list(kind, filters?)"). Expired rows are excluded
// the same way GetEntity treats them as not found.
func (s *Store) ListEntities(ctx context.Context, kind types.EntityKind) ([]json.RawMessage, error) {
	now := nowUTC().Format(time.RFC3339Nano)
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM entities WHERE kind = ? AND expires_at > ?
	`, string(kind), now)
	if err != nil {
		return nil, cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "list entities of kind %s: %v", kind, err)
	}
	defer func() { _ = rows.Close() }()

	var out []json.RawMessage
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "scan entity of kind %s: %v", kind, err)
		}
		out = append(out, json.RawMessage(payload))
	}
	if err := rows.Err(); err != nil {
		return nil, cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "iterate entities of kind %s: %v", kind, err)
	}
	return out, nil
}

// DeleteEntity removes one entity row, used by cascading invalidation.
func (s *Store) DeleteEntity(ctx context.Context, kind types.EntityKind, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE kind = ? AND id = ?`, string(kind), id)
	if err != nil {
		return cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "delete entity %s/%s: %v", kind, id, err)
	}
	return nil
}

// deleteEntitiesByKind removes every entity of kind, used when a broad
// invalidation (e.g. all solutions) cascades.
func (s *Store) deleteEntitiesByKind(ctx context.Context, kind types.EntityKind) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE kind = ?`, string(kind))
	if err != nil {
		return cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "delete entities of kind %s: %v", kind, err)
	}
	return nil
}
