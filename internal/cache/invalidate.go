package cache

import (
	"context"
	"database/sql"
	"time"

	"github.com/Grupo-AFAL/smartsuite-bridge/internal/cacheerr"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/types"
)

// InvalidateScope narrows a cascading invalidation to one solution or
// one table, when known (spec §4.6 cascading invalidation rules).
type InvalidateScope struct {
	SolutionID string
	TableID    string
}

// Invalidate applies the cascading invalidation rules for kind (spec
// §4.6 op 7). structureChanged selects between a hard clear (delete
// all rows, state -> absent) and a soft expire (rows survive, state ->
// expired, so the next read lazily refetches but other metadata is
// untouched).
func (s *Store) Invalidate(ctx context.Context, kind types.EntityKind, id string, structureChanged bool, scope InvalidateScope) error {
	switch kind {
	case types.KindSolution:
		return s.invalidateSolution(ctx, id, structureChanged)
	case types.KindTable:
		return s.invalidateTables(ctx, scope.SolutionID, structureChanged)
	case types.KindTableSchema:
		return s.invalidateTableRecords(ctx, scope.TableID, structureChanged)
	case types.KindMember, types.KindTeam:
		// Members and teams never cascade into record data (spec §4.6).
		return s.DeleteEntity(ctx, kind, id)
	default:
		return s.DeleteEntity(ctx, kind, id)
	}
}

// invalidateSolution clears all tables and all records belonging to the
// workspace (spec: "Invalidating solutions clears all tables and all
// records").
func (s *Store) invalidateSolution(ctx context.Context, solutionID string, structureChanged bool) error {
	if err := s.DeleteEntity(ctx, types.KindSolution, solutionID); err != nil {
		return err
	}
	return s.clearAllTablesAndRecords(ctx, structureChanged)
}

// invalidateTables clears tables and records. With a solution id, the
// clear is scoped to that solution; without one, every table and
// record is cleared (spec §4.6).
func (s *Store) invalidateTables(ctx context.Context, solutionID string, structureChanged bool) error {
	if solutionID == "" {
		return s.clearAllTablesAndRecords(ctx, structureChanged)
	}
	return s.clearSolutionTablesAndRecords(ctx, solutionID, structureChanged)
}

// invalidateTableRecords clears only one table's records (spec:
// "Invalidating records with a table id clears only that table's
// records").
func (s *Store) invalidateTableRecords(ctx context.Context, tableID string, structureChanged bool) error {
	if tableID == "" {
		return nil
	}
	lock := s.lockFor(tableID)
	lock.Lock()
	defer lock.Unlock()

	if structureChanged {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE table_id = ?`, tableID); err != nil {
			return cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "clear records for %s: %v", tableID, err)
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM record_cache_state WHERE table_id = ?`, tableID); err != nil {
			return cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "clear record cache state for %s: %v", tableID, err)
		}
		return nil
	}
	return s.expireRecordState(ctx, tableID)
}

func (s *Store) clearAllTablesAndRecords(ctx context.Context, structureChanged bool) error {
	if err := s.deleteEntitiesByKind(ctx, types.KindTable); err != nil {
		return err
	}
	tableIDs, err := s.allTableIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range tableIDs {
		if err := s.invalidateTableRecords(ctx, id, structureChanged); err != nil {
			return err
		}
	}
	if structureChanged {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM table_schemas`); err != nil {
			return cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "clear table schemas: %v", err)
		}
	}
	return nil
}

func (s *Store) clearSolutionTablesAndRecords(ctx context.Context, solutionID string, structureChanged bool) error {
	tableIDs, err := s.tableIDsForSolution(ctx, solutionID)
	if err != nil {
		return err
	}
	for _, id := range tableIDs {
		if err := s.invalidateTableRecords(ctx, id, structureChanged); err != nil {
			return err
		}
	}
	if structureChanged {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM table_schemas WHERE solution_id = ?`, solutionID); err != nil {
			return cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "clear table schemas for solution %s: %v", solutionID, err)
		}
	}
	return nil
}

func (s *Store) expireRecordState(ctx context.Context, tableID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO record_cache_state (table_id, state, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT (table_id) DO UPDATE SET state = excluded.state, expires_at = excluded.expires_at
	`, tableID, string(types.RecordStateExpired), nowUTC().Format(time.RFC3339Nano))
	if err != nil {
		return cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "expire record cache state for %s: %v", tableID, err)
	}
	return nil
}

func (s *Store) allTableIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT table_id FROM table_schemas`)
	if err != nil {
		return nil, cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "list table ids: %v", err)
	}
	return scanIDs(rows)
}

func (s *Store) tableIDsForSolution(ctx context.Context, solutionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT table_id FROM table_schemas WHERE solution_id = ?`, solutionID)
	if err != nil {
		return nil, cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "list table ids for solution %s: %v", solutionID, err)
	}
	return scanIDs(rows)
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "scan table id: %v", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, cacheerr.Wrapf(cacheerr.ErrCacheUnavailable, "iterate table ids: %v", err)
	}
	return out, nil
}
