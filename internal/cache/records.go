package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Grupo-AFAL/smartsuite-bridge/internal/cacheerr"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/filter"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/types"
)

// PutRecords bulk-upserts a table's full record set (spec §4.6 op 4). If
// the incoming schema differs structurally from what is stored, the
// table's existing records are atomically cleared before the new rows
// are inserted (the schema-change cascade). The whole operation runs in
// one transaction so a racing read observes either the pre- or
// post-state, never a partial one.
func (s *Store) PutRecords(ctx context.Context, tableID, solutionID string, schema []types.Field, records []types.Record, ttl time.Duration) error {
	lock := s.lockFor(tableID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "begin put_records tx: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	prevSchema, err := s.txGetTableSchema(ctx, tx, tableID)
	if err != nil && !cacheerr.IsNotFound(err) {
		return err
	}

	if schemaChanged(prevSchema, schema) {
		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE table_id = ?`, tableID); err != nil {
			return cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "clear records for structure change on %s: %v", tableID, err)
		}
	}

	now := nowUTC()
	schemaPayload, err := json.Marshal(schema)
	if err != nil {
		return cacheerr.Wrapf(cacheerr.ErrValidation, "marshal schema for %s: %v", tableID, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO table_schemas (table_id, solution_id, fields, cached_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (table_id) DO UPDATE SET
			solution_id = excluded.solution_id,
			fields = excluded.fields,
			cached_at = excluded.cached_at,
			expires_at = excluded.expires_at
	`, tableID, solutionID, string(schemaPayload), now.Format(time.RFC3339Nano), now.Add(ttl).Format(time.RFC3339Nano)); err != nil {
		return cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "upsert schema for %s: %v", tableID, err)
	}

	for _, rec := range records {
		dataPayload, err := json.Marshal(rec.Data)
		if err != nil {
			return cacheerr.Wrapf(cacheerr.ErrValidation, "marshal record %s: %v", rec.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO records (table_id, record_id, data, cached_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (table_id, record_id) DO UPDATE SET
				data = excluded.data,
				cached_at = excluded.cached_at
		`, tableID, rec.ID, string(dataPayload), now.Format(time.RFC3339Nano)); err != nil {
			return cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "upsert record %s/%s: %v", tableID, rec.ID, err)
		}
	}

	if err := setRecordStateTx(ctx, tx, tableID, types.RecordStateValid, now.Add(ttl)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "commit put_records for %s: %v", tableID, err)
	}
	return nil
}

// PutRecord single-upserts one record without comparing schemas (spec
// §4.6 op 5), used to reflect a mutation response as write-through.
func (s *Store) PutRecord(ctx context.Context, tableID string, rec types.Record) error {
	lock := s.lockFor(tableID)
	lock.Lock()
	defer lock.Unlock()

	dataPayload, err := json.Marshal(rec.Data)
	if err != nil {
		return cacheerr.Wrapf(cacheerr.ErrValidation, "marshal record %s: %v", rec.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (table_id, record_id, data, cached_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (table_id, record_id) DO UPDATE SET
			data = excluded.data,
			cached_at = excluded.cached_at
	`, tableID, rec.ID, string(dataPayload), nowUTC().Format(time.RFC3339Nano))
	if err != nil {
		return cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "put_record %s/%s: %v", tableID, rec.ID, err)
	}
	return nil
}

// RecordState returns the current lifecycle state of tableID's record
// cache, lazily observing TTL expiry (spec §4.6 state machine).
func (s *Store) RecordState(ctx context.Context, tableID string) (types.RecordState, error) {
	var state, expiresAtRaw string
	err := s.db.QueryRowContext(ctx, `
		SELECT state, expires_at FROM record_cache_state WHERE table_id = ?
	`, tableID).Scan(&state, &expiresAtRaw)

	if err == sql.ErrNoRows {
		return types.RecordStateAbsent, nil
	}
	if err != nil {
		return "", cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "read record cache state for %s: %v", tableID, err)
	}

	if types.RecordState(state) != types.RecordStateValid {
		return types.RecordState(state), nil
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, expiresAtRaw)
	if err != nil {
		return "", cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "parse record cache expiry for %s: %v", tableID, err)
	}
	if !nowUTC().Before(expiresAt) {
		return types.RecordStateExpired, nil
	}
	return types.RecordStateValid, nil
}

func setRecordStateTx(ctx context.Context, tx *sql.Tx, tableID string, state types.RecordState, expiresAt time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO record_cache_state (table_id, state, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT (table_id) DO UPDATE SET
			state = excluded.state,
			expires_at = excluded.expires_at
	`, tableID, string(state), expiresAt.Format(time.RFC3339Nano))
	if err != nil {
		return cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "set record cache state for %s: %v", tableID, err)
	}
	return nil
}

func (s *Store) txGetTableSchema(ctx context.Context, tx *sql.Tx, tableID string) ([]types.Field, error) {
	var fieldsRaw string
	err := tx.QueryRowContext(ctx, `SELECT fields FROM table_schemas WHERE table_id = ?`, tableID).Scan(&fieldsRaw)
	if err == sql.ErrNoRows {
		return nil, cacheerr.Wrapf(cacheerr.ErrNotFound, "table schema %s", tableID)
	}
	if err != nil {
		return nil, cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "read table schema %s: %v", tableID, err)
	}
	var fields []types.Field
	if err := json.Unmarshal([]byte(fieldsRaw), &fields); err != nil {
		return nil, cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "unmarshal table schema %s: %v", tableID, err)
	}
	return fields, nil
}

// GetRecords executes a compiled filter against tableID's cached
// records, applying sort then limit/offset (spec §4.6 op 6, §4.7
// sort). totalCount is the table's unfiltered row count known to the
// cache; filteredCount is the size after predicate evaluation but
// before paging (spec §4.7, scenario S1). It does not consult the
// record cache state and queries whatever rows are stored, so callers
// check RecordState first.
func (s *Store) GetRecords(ctx context.Context, tableID string, compiled *filter.Compiled, sort []types.SortField, limit, offset int) (rows []types.Record, totalCount, filteredCount int, err error) {
	totalCount, err = s.countRecords(ctx, tableID)
	if err != nil {
		return nil, 0, 0, err
	}

	where := "1"
	var args []interface{}
	if compiled != nil {
		where = compiled.SQL
		args = compiled.Args
	}

	query := fmt.Sprintf(`SELECT record_id, data FROM records WHERE table_id = ? AND (%s)`, where)
	queryArgs := append([]interface{}{tableID}, args...)

	orderClause := buildOrderClause(sort)
	if orderClause != "" {
		query += " " + orderClause
	}

	allRows, err := s.queryRecords(ctx, tableID, query, queryArgs)
	if err != nil {
		return nil, 0, 0, err
	}

	filteredCount = len(allRows)
	rows = paginate(allRows, limit, offset)
	return rows, totalCount, filteredCount, nil
}

// countRecords reports the table's total cached row count, unaffected
// by any filter predicate.
func (s *Store) countRecords(ctx context.Context, tableID string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE table_id = ?`, tableID).Scan(&count); err != nil {
		return 0, cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "count records for %s: %v", tableID, err)
	}
	return count, nil
}

func (s *Store) queryRecords(ctx context.Context, tableID, query string, args []interface{}) ([]types.Record, error) {
	dbRows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "query records for %s: %v", tableID, err)
	}
	defer func() { _ = dbRows.Close() }()

	var out []types.Record
	for dbRows.Next() {
		var recordID, dataRaw string
		if err := dbRows.Scan(&recordID, &dataRaw); err != nil {
			return nil, cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "scan record row for %s: %v", tableID, err)
		}
		var data map[string]json.RawMessage
		if err := json.Unmarshal([]byte(dataRaw), &data); err != nil {
			return nil, cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "unmarshal record data for %s/%s: %v", tableID, recordID, err)
		}
		out = append(out, types.Record{ID: recordID, TableID: tableID, Data: data})
	}
	if err := dbRows.Err(); err != nil {
		return nil, cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "iterate records for %s: %v", tableID, err)
	}
	return out, nil
}

// buildOrderClause translates a sort-field list into a SQL ORDER BY,
// routing through the same json_extract accessor the compiler uses.
// Null sort keys order last regardless of direction (spec §4.7).
func buildOrderClause(sort []types.SortField) string {
	if len(sort) == 0 {
		return ""
	}
	parts := make([]string, 0, len(sort))
	for _, sf := range sort {
		path := fmt.Sprintf("json_extract(data, '$.%s')", filter.SanitizeField(sf.Field))
		dir := "ASC"
		if !sf.Ascending() {
			dir = "DESC"
		}
		parts = append(parts, fmt.Sprintf("(%s IS NULL) ASC, %s %s", path, path, dir))
	}
	return "ORDER BY " + joinComma(parts)
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

func paginate(rows []types.Record, limit, offset int) []types.Record {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(rows) {
		return nil
	}
	end := len(rows)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return rows[offset:end]
}
