// Package remote declares the external collaborators this bridge talks
// to: the upstream record-management HTTP API and the write
// operations that mutate it. remote.go names the shapes C7 depends on;
// httpclient.go holds HTTPClient, the REST implementation with its own
// retry policy, and FetchAllRecords below drains paginated fetches.
package remote

import (
	"context"

	"github.com/Grupo-AFAL/smartsuite-bridge/internal/types"
)

// RecordsPage is one page of an upstream table-records fetch.
type RecordsPage struct {
	Records    []types.Record
	NextCursor string
	HasMore    bool
}

// Fetcher is the read-side collaborator C7 falls through to on a cache
// miss or bypass_cache request (spec §4.7 algorithm step 1).
type Fetcher interface {
	// FetchTableRecords retrieves one page of records for tableID,
	// paginated by the upstream's own cursor convention.
	FetchTableRecords(ctx context.Context, tableID, cursor string) (RecordsPage, error)

	// FetchEntity retrieves a single typed entity (solution, table,
	// member, team, view) by id.
	FetchEntity(ctx context.Context, kind types.EntityKind, id string) (payload []byte, err error)

	// FetchList retrieves an entity collection that has no per-record
	// cache of its own (members, teams, solutions).
	FetchList(ctx context.Context, kind types.EntityKind, parentID string) (payloads [][]byte, err error)
}

// Mutator is the write-side collaborator. A successful mutation
// returns the fresh record payload so C7 can write it through to the
// cache without a refetch (spec §4.7 "Mutation write-through").
type Mutator interface {
	UpdateRecord(ctx context.Context, tableID, recordID string, fields map[string]interface{}) (types.Record, error)
	CreateRecord(ctx context.Context, tableID string, fields map[string]interface{}) (types.Record, error)
	DeleteRecord(ctx context.Context, tableID, recordID string) error
}

// FetchAllRecords drains FetchTableRecords across every page. It is the
// loop C7 runs on a cache-miss list() call.
func FetchAllRecords(ctx context.Context, f Fetcher, tableID string) ([]types.Record, error) {
	var all []types.Record
	cursor := ""
	for {
		page, err := f.FetchTableRecords(ctx, tableID, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Records...)
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}
	return all, nil
}
