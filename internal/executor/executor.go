// Package executor implements the Cache-Aware Query Executor (C7): the
// single entry point that decides, per request, whether to serve from
// the cache store or fall through to the upstream collaborator, and
// keeps the two in sync afterward (spec §4.7).
package executor

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/Grupo-AFAL/smartsuite-bridge/internal/cache"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/cacheerr"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/coerce"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/filter"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/fuzzy"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/remote"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/types"
)

// Source identifies where a list() result was served from, surfaced in
// the response envelope for diagnostics.
type Source string

const (
	SourceCache    Source = "cache"
	SourceUpstream Source = "upstream"
)

// ListResult is the contract of list() (spec §4.7).
type ListResult struct {
	Rows          []types.Record
	TotalCount    int
	FilteredCount int
	Warnings      []filter.Warning
	Source        Source
}

// Executor wires the cache store, the filter compiler, and the
// upstream fetcher together.
type Executor struct {
	Cache   *cache.Store
	Fetcher remote.Fetcher

	// DefaultTTL is used for freshly populated record caches when the
	// caller does not specify a per-table override.
	DefaultTTL time.Duration

	// StrictFilterValidation toggles C4's strict mode for this executor.
	StrictFilterValidation bool

	// MaxFuzzyEditsShort and MaxFuzzyEditsLong bound C1's edit-distance
	// budget for short and long name tokens respectively, used by
	// ListEntities' name filter.
	MaxFuzzyEditsShort int
	MaxFuzzyEditsLong  int

	// Now supplies the reference time for date resolution and TTL
	// stamping; tests override it, production leaves it nil (time.Now).
	Now func() time.Time
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// List implements C7's list() contract.
func (e *Executor) List(ctx context.Context, table types.Table, root *filter.Node, sortFields []types.SortField, limit, offset int, bypassCache bool) (ListResult, error) {
	state, err := e.Cache.RecordState(ctx, table.ID)
	if err != nil {
		state = types.RecordStateAbsent // degrade to a fresh fetch, spec §4.6 failure model
	}

	if bypassCache || state != types.RecordStateValid {
		return e.listFromUpstream(ctx, table, sortFields, limit, offset)
	}
	return e.listFromCache(ctx, table, root, sortFields, limit, offset)
}

func (e *Executor) listFromUpstream(ctx context.Context, table types.Table, sortFields []types.SortField, limit, offset int) (ListResult, error) {
	records, err := remote.FetchAllRecords(ctx, e.Fetcher, table.ID)
	if err != nil {
		return ListResult{}, err
	}

	coerced := make([]types.Record, len(records))
	for i, rec := range records {
		coerced[i] = coerceRecord(rec, table)
	}

	if err := e.Cache.PutRecords(ctx, table.ID, table.SolutionID, table.Structure, coerced, e.DefaultTTL); err != nil {
		// Write-through failures never fail the read; the cache will
		// self-heal on the next populate.
		_ = err
	}

	sorted := sortRecords(coerced, sortFields)
	total := len(sorted)
	paged := page(sorted, limit, offset)

	return ListResult{
		Rows:          paged,
		TotalCount:    total,
		FilteredCount: total,
		Source:        SourceUpstream,
	}, nil
}

func (e *Executor) listFromCache(ctx context.Context, table types.Table, root *filter.Node, sortFields []types.SortField, limit, offset int) (ListResult, error) {
	var compiled *filter.Compiled
	var warnings []filter.Warning

	if root != nil {
		lookup := func(slug string) (string, bool) {
			f, ok := table.FieldBySlug(slug)
			if !ok {
				return "", false
			}
			return f.FieldType, true
		}
		c, err := filter.Compile(*root, lookup, e.StrictFilterValidation, e.now())
		if err != nil {
			return ListResult{}, err
		}
		compiled = &c
		warnings = c.Warnings
	}

	rows, totalCount, filteredCount, err := e.Cache.GetRecords(ctx, table.ID, compiled, sortFields, limit, offset)
	if err != nil {
		if cacheerr.IsCacheUnavailable(err) {
			// Degraded mode: annotate and fall through to upstream (spec §7
			// propagation policy).
			result, fetchErr := e.listFromUpstream(ctx, table, sortFields, limit, offset)
			if fetchErr != nil {
				return ListResult{}, fetchErr
			}
			result.Warnings = append(result.Warnings, filter.Warning{Message: "cache unavailable, served from upstream"})
			return result, nil
		}
		return ListResult{}, err
	}

	return ListResult{
		Rows:          rows,
		TotalCount:    totalCount,
		FilteredCount: filteredCount,
		Warnings:      warnings,
		Source:        SourceCache,
	}, nil
}

// Get fetches a single record, cache-first, falling through to an
// upstream table fetch when absent (spec §4.7 "Single-record fetch
// follows the same pattern with no filter").
func (e *Executor) Get(ctx context.Context, table types.Table, recordID string) (types.Record, Source, error) {
	state, err := e.Cache.RecordState(ctx, table.ID)
	if err == nil && state == types.RecordStateValid {
		rows, _, _, gerr := e.Cache.GetRecords(ctx, table.ID, nil, nil, 0, 0)
		if gerr == nil {
			for _, rec := range rows {
				if rec.ID == recordID {
					return rec, SourceCache, nil
				}
			}
		}
	}

	result, err := e.listFromUpstream(ctx, table, nil, 0, 0)
	if err != nil {
		return types.Record{}, "", err
	}
	for _, rec := range result.Rows {
		if rec.ID == recordID {
			return rec, SourceUpstream, nil
		}
	}
	return types.Record{}, "", cacheerr.Wrapf(cacheerr.ErrNotFound, "record %s/%s", table.ID, recordID)
}

// PutRecord write-throughs a mutation response so subsequent reads
// reflect the change without refetching the table (spec §4.7).
func (e *Executor) PutRecord(ctx context.Context, table types.Table, rec types.Record) error {
	coerced := coerceRecord(rec, table)
	return e.Cache.PutRecord(ctx, table.ID, coerced)
}

// EntityListResult is the contract of ListEntities, C7's fetch_list(kind,
// filters?) analogue for entity classes that have no per-record cache of
// their own (spec §6).
type EntityListResult struct {
	Items  []json.RawMessage
	Source Source
}

// ListEntities serves a name-filterable listing of one entity class
// (solutions, members, teams, views), cache-first with an upstream
// FetchList fallback that populates the cache for next time (spec §4.1,
// §6 "fetch_list(kind, filters?)"). nameQuery, if non-empty, is applied
// through the fuzzy matcher (C1) rather than exact equality.
func (e *Executor) ListEntities(ctx context.Context, kind types.EntityKind, nameQuery string) (EntityListResult, error) {
	payloads, err := e.Cache.ListEntities(ctx, kind)
	source := SourceCache
	if err != nil || len(payloads) == 0 {
		fetched, ferr := e.Fetcher.FetchList(ctx, kind, "")
		if ferr != nil {
			return EntityListResult{}, ferr
		}
		payloads = make([]json.RawMessage, 0, len(fetched))
		for _, p := range fetched {
			payloads = append(payloads, p)
			if id, _, ok := entityIdentity(kind, p); ok {
				if perr := e.Cache.PutEntity(ctx, kind, id, p, e.DefaultTTL); perr != nil {
					// Write-through failure never blocks the read (spec §7).
					_ = perr
				}
			}
		}
		source = SourceUpstream
	}

	if strings.TrimSpace(nameQuery) == "" {
		return EntityListResult{Items: payloads, Source: source}, nil
	}

	filtered := make([]json.RawMessage, 0, len(payloads))
	for _, p := range payloads {
		_, name, ok := entityIdentity(kind, p)
		if !ok || !fuzzy.Matches(name, nameQuery, e.MaxFuzzyEditsShort, e.MaxFuzzyEditsLong) {
			continue
		}
		filtered = append(filtered, p)
	}
	return EntityListResult{Items: filtered, Source: source}, nil
}

// entityIdentity extracts the id and display name the fuzzy matcher
// filters on, for the entity classes ListEntities serves.
func entityIdentity(kind types.EntityKind, payload json.RawMessage) (id, name string, ok bool) {
	switch kind {
	case types.KindSolution:
		var s types.Solution
		if err := json.Unmarshal(payload, &s); err != nil {
			return "", "", false
		}
		return s.ID, s.Name, true
	case types.KindMember:
		var m types.Member
		if err := json.Unmarshal(payload, &m); err != nil {
			return "", "", false
		}
		return m.ID, m.FullName(), true
	case types.KindTeam:
		var tm types.Team
		if err := json.Unmarshal(payload, &tm); err != nil {
			return "", "", false
		}
		return tm.ID, tm.Name, true
	case types.KindView:
		var v types.View
		if err := json.Unmarshal(payload, &v); err != nil {
			return "", "", false
		}
		return v.ID, v.Name, true
	default:
		return "", "", false
	}
}

func coerceRecord(rec types.Record, table types.Table) types.Record {
	out := types.Record{ID: rec.ID, TableID: table.ID, Data: make(map[string]json.RawMessage, len(rec.Data))}
	for slug, raw := range rec.Data {
		field, ok := table.FieldBySlug(slug)
		if !ok {
			out.Data[slug] = raw
			continue
		}
		out.Data[slug] = coerce.ForStorage(field.FieldType, raw)
	}
	return out
}

// sortRecords orders an in-memory record slice the same way the cache
// store's ORDER BY does: per sort field in turn, nulls last regardless
// of direction (spec §4.7).
func sortRecords(records []types.Record, sortFields []types.SortField) []types.Record {
	if len(sortFields) == 0 {
		return records
	}
	out := make([]types.Record, len(records))
	copy(out, records)

	sort.SliceStable(out, func(i, j int) bool {
		for _, sf := range sortFields {
			vi, oki := sortKey(out[i], sf.Field)
			vj, okj := sortKey(out[j], sf.Field)
			if !oki && !okj {
				continue
			}
			if !oki {
				return false
			}
			if !okj {
				return true
			}
			if vi == vj {
				continue
			}
			if sf.Ascending() {
				return vi < vj
			}
			return vi > vj
		}
		return false
	})
	return out
}

func sortKey(rec types.Record, slug string) (string, bool) {
	raw := rec.Get(slug)
	if coerce.IsEmptyValue(raw) {
		return "", false
	}
	return coerce.AsText(raw), true
}

func page(records []types.Record, limit, offset int) []types.Record {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(records) {
		return nil
	}
	end := len(records)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return records[offset:end]
}
