package rpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Grupo-AFAL/smartsuite-bridge/internal/cache"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/cacheerr"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/remote"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/types"
)

// CacheTableResolver is the production TableResolver: it serves a
// table's schema from the cache and falls through to the upstream
// entity fetch on a miss or expiry, populating the cache for next time
// (spec §4.6 op 3, "no schema migration is required... table schemas
// live in their own table").
type CacheTableResolver struct {
	Cache     *cache.Store
	Fetcher   remote.Fetcher
	SchemaTTL time.Duration
}

// ResolveTable implements TableResolver.
func (r *CacheTableResolver) ResolveTable(ctx context.Context, tableID string) (types.Table, error) {
	solutionID, fields, err := r.Cache.GetTableSchemaWithSolution(ctx, tableID)
	if err == nil {
		return types.Table{ID: tableID, SolutionID: solutionID, Structure: fields}, nil
	}
	if !cacheerr.IsNotFound(err) {
		return types.Table{}, err
	}

	payload, err := r.Fetcher.FetchEntity(ctx, types.KindTable, tableID)
	if err != nil {
		return types.Table{}, err
	}

	var table types.Table
	if err := json.Unmarshal(payload, &table); err != nil {
		return types.Table{}, cacheerr.Wrapf(cacheerr.ErrValidation, "decode table %s: %v", tableID, err)
	}
	table.ID = tableID

	if err := r.Cache.PutTableSchema(ctx, table.ID, table.SolutionID, table.Structure, r.SchemaTTL); err != nil {
		// Write-through failure never blocks the read; the next lookup
		// will simply refetch (spec §7 write-through policy).
		_ = err
	}
	return table, nil
}
