package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/Grupo-AFAL/smartsuite-bridge/internal/cacheerr"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/types"
)

// PutTableSchema upserts a table's field list (spec §4.6 op 3). It does
// not itself decide whether the record cache needs clearing; PutRecords
// performs that diff against whatever schema is already stored.
func (s *Store) PutTableSchema(ctx context.Context, tableID, solutionID string, fields []types.Field, ttl time.Duration) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return cacheerr.Wrapf(cacheerr.ErrValidation, "marshal table schema: %v", err)
	}

	now := nowUTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO table_schemas (table_id, solution_id, fields, cached_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (table_id) DO UPDATE SET
			solution_id = excluded.solution_id,
			fields = excluded.fields,
			cached_at = excluded.cached_at,
			expires_at = excluded.expires_at
	`, tableID, solutionID, string(payload), now.Format(time.RFC3339Nano), now.Add(ttl).Format(time.RFC3339Nano))
	if err != nil {
		return cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "put table schema %s: %v", tableID, err)
	}
	return nil
}

// GetTableSchema returns a table's cached field list.
func (s *Store) GetTableSchema(ctx context.Context, tableID string) ([]types.Field, error) {
	_, fields, err := s.GetTableSchemaWithSolution(ctx, tableID)
	return fields, err
}

// GetTableSchemaWithSolution returns a table's owning solution id
// alongside its cached field list, for callers (such as a table
// resolver) that need to reconstruct a full types.Table from the cache
// alone.
func (s *Store) GetTableSchemaWithSolution(ctx context.Context, tableID string) (string, []types.Field, error) {
	var solutionID, fieldsRaw, expiresAtRaw string
	err := s.db.QueryRowContext(ctx, `
		SELECT solution_id, fields, expires_at FROM table_schemas WHERE table_id = ?
	`, tableID).Scan(&solutionID, &fieldsRaw, &expiresAtRaw)

	if err == sql.ErrNoRows {
		return "", nil, cacheerr.Wrapf(cacheerr.ErrNotFound, "table schema %s", tableID)
	}
	if err != nil {
		return "", nil, cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "get table schema %s: %v", tableID, err)
	}

	expiresAt, err := time.Parse(time.RFC3339Nano, expiresAtRaw)
	if err == nil && !nowUTC().Before(expiresAt) {
		return "", nil, cacheerr.Wrapf(cacheerr.ErrNotFound, "table schema %s expired", tableID)
	}

	var fields []types.Field
	if err := json.Unmarshal([]byte(fieldsRaw), &fields); err != nil {
		return "", nil, cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "unmarshal table schema %s: %v", tableID, err)
	}
	return solutionID, fields, nil
}

// schemaChanged reports whether next differs from prev in a way that
// counts as structure-changed: a field slug added, removed, or
// re-typed (spec §4.6 schema evolution). Label-only edits do not count.
func schemaChanged(prev, next []types.Field) bool {
	if prev == nil {
		return false // first write into an absent schema is not a "change"
	}

	prevBySlug := make(map[string]string, len(prev))
	for _, f := range prev {
		prevBySlug[f.Slug] = f.FieldType
	}
	nextBySlug := make(map[string]string, len(next))
	for _, f := range next {
		nextBySlug[f.Slug] = f.FieldType
	}

	if len(prevBySlug) != len(nextBySlug) {
		return true
	}
	for slug, fieldType := range prevBySlug {
		nt, ok := nextBySlug[slug]
		if !ok || nt != fieldType {
			return true
		}
	}
	return false
}
