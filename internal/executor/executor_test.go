package executor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Grupo-AFAL/smartsuite-bridge/internal/cache"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/filter"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/remote"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/types"
)

type fakeFetcher struct {
	records        []types.Record
	entityPayloads [][]byte
}

func (f *fakeFetcher) FetchTableRecords(ctx context.Context, tableID, cursor string) (remote.RecordsPage, error) {
	return remote.RecordsPage{Records: f.records, HasMore: false}, nil
}

func (f *fakeFetcher) FetchEntity(ctx context.Context, kind types.EntityKind, id string) ([]byte, error) {
	return nil, nil
}

func (f *fakeFetcher) FetchList(ctx context.Context, kind types.EntityKind, parentID string) ([][]byte, error) {
	return f.entityPayloads, nil
}

func newTestExecutor(t *testing.T, records []types.Record) (*Executor, types.Table) {
	t.Helper()
	ctx := context.Background()
	store, err := cache.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	table := types.Table{
		ID:         "tbl1",
		SolutionID: "sol1",
		Structure: []types.Field{
			{Slug: "title", Label: "Title", FieldType: "text"},
			{Slug: "status", Label: "Status", FieldType: "status"},
		},
	}

	return &Executor{
		Cache:              store,
		Fetcher:            &fakeFetcher{records: records},
		DefaultTTL:         5 * time.Minute,
		MaxFuzzyEditsShort: 1,
		MaxFuzzyEditsLong:  2,
		Now:                func() time.Time { return time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC) },
	}, table
}

func sampleRecords() []types.Record {
	return []types.Record{
		{ID: "r1", TableID: "tbl1", Data: map[string]json.RawMessage{
			"title":  json.RawMessage(`"Write report"`),
			"status": json.RawMessage(`{"value":"open"}`),
		}},
		{ID: "r2", TableID: "tbl1", Data: map[string]json.RawMessage{
			"title":  json.RawMessage(`"Ship feature"`),
			"status": json.RawMessage(`{"value":"closed"}`),
		}},
	}
}

func TestListColdCacheFetchesFromUpstream(t *testing.T) {
	exec, table := newTestExecutor(t, sampleRecords())
	ctx := context.Background()

	result, err := exec.List(ctx, table, nil, nil, 0, 0, false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if result.Source != SourceUpstream {
		t.Errorf("expected upstream source on cold cache, got %s", result.Source)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
}

func TestListWarmCacheServesFromCacheAndFilters(t *testing.T) {
	exec, table := newTestExecutor(t, sampleRecords())
	ctx := context.Background()

	if _, err := exec.List(ctx, table, nil, nil, 0, 0, false); err != nil {
		t.Fatalf("warm-up list: %v", err)
	}

	root := &filter.Node{Field: "status", Comparison: "is", Value: json.RawMessage(`"open"`)}
	result, err := exec.List(ctx, table, root, nil, 0, 0, false)
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if result.Source != SourceCache {
		t.Errorf("expected cache source on warm list, got %s", result.Source)
	}
	if len(result.Rows) != 1 || result.Rows[0].ID != "r1" {
		t.Fatalf("expected exactly r1 to match status=open, got %+v", result.Rows)
	}
	if result.FilteredCount != 1 {
		t.Errorf("expected filtered_count=1, got %d", result.FilteredCount)
	}
	if result.TotalCount != 2 {
		t.Errorf("expected total_count to reflect the unfiltered table size (2), got %d", result.TotalCount)
	}
}

// TestListWarmCacheTotalCountIgnoresFilter is scenario S1: a filter that
// excludes one of three cached rows must still report the table's true
// unfiltered size as total_count (spec §4.7, §8 boundary property).
func TestListWarmCacheTotalCountIgnoresFilter(t *testing.T) {
	records := append(sampleRecords(), types.Record{ID: "r3", TableID: "tbl1", Data: map[string]json.RawMessage{
		"title":  json.RawMessage(`"Archive docs"`),
		"status": json.RawMessage(`{"value":"open"}`),
	}})
	exec, table := newTestExecutor(t, records)
	ctx := context.Background()

	if _, err := exec.List(ctx, table, nil, nil, 0, 0, false); err != nil {
		t.Fatalf("warm-up list: %v", err)
	}

	root := &filter.Node{Field: "status", Comparison: "is", Value: json.RawMessage(`"closed"`)}
	result, err := exec.List(ctx, table, root, nil, 0, 0, false)
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if result.FilteredCount != 1 {
		t.Fatalf("expected filtered_count=1, got %d", result.FilteredCount)
	}
	if result.TotalCount != 3 {
		t.Fatalf("expected total_count=3, got %d", result.TotalCount)
	}
}

func TestListEntitiesFuzzyFiltersByName(t *testing.T) {
	exec, _ := newTestExecutor(t, nil)
	ctx := context.Background()

	acme, _ := json.Marshal(types.Solution{ID: "sol1", Name: "Acme Corp"})
	widgets, _ := json.Marshal(types.Solution{ID: "sol2", Name: "Widgets Inc"})
	exec.Fetcher.(*fakeFetcher).entityPayloads = [][]byte{acme, widgets}

	result, err := exec.ListEntities(ctx, types.KindSolution, "acme")
	if err != nil {
		t.Fatalf("ListEntities: %v", err)
	}
	if result.Source != SourceUpstream {
		t.Errorf("expected cold cache to fall through to upstream, got %s", result.Source)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected exactly one match for %q, got %d", "acme", len(result.Items))
	}
	var got types.Solution
	if err := json.Unmarshal(result.Items[0], &got); err != nil {
		t.Fatalf("unmarshal matched solution: %v", err)
	}
	if got.ID != "sol1" {
		t.Errorf("expected sol1 to match, got %+v", got)
	}

	warm, err := exec.ListEntities(ctx, types.KindSolution, "")
	if err != nil {
		t.Fatalf("ListEntities warm: %v", err)
	}
	if warm.Source != SourceCache {
		t.Errorf("expected warm listing to be served from cache, got %s", warm.Source)
	}
	if len(warm.Items) != 2 {
		t.Fatalf("expected both solutions cached, got %d", len(warm.Items))
	}
}

func TestListBypassCacheAlwaysFetchesUpstream(t *testing.T) {
	exec, table := newTestExecutor(t, sampleRecords())
	ctx := context.Background()

	if _, err := exec.List(ctx, table, nil, nil, 0, 0, false); err != nil {
		t.Fatalf("warm-up list: %v", err)
	}

	result, err := exec.List(ctx, table, nil, nil, 0, 0, true)
	if err != nil {
		t.Fatalf("bypass list: %v", err)
	}
	if result.Source != SourceUpstream {
		t.Errorf("expected bypass_cache to force upstream fetch, got %s", result.Source)
	}
}

func TestGetFindsRecordAfterWarmup(t *testing.T) {
	exec, table := newTestExecutor(t, sampleRecords())
	ctx := context.Background()

	if _, err := exec.List(ctx, table, nil, nil, 0, 0, false); err != nil {
		t.Fatalf("warm-up list: %v", err)
	}

	rec, source, err := exec.Get(ctx, table, "r2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if source != SourceCache {
		t.Errorf("expected cache source for a warm get, got %s", source)
	}
	if string(rec.Get("title")) != `"Ship feature"` {
		t.Errorf("unexpected record data: %+v", rec)
	}
}

func TestGetUnknownRecordFails(t *testing.T) {
	exec, table := newTestExecutor(t, sampleRecords())
	ctx := context.Background()

	if _, _, err := exec.Get(ctx, table, "ghost"); err == nil {
		t.Fatal("expected error for unknown record id")
	}
}

func TestPutRecordIsImmediatelyVisibleToGet(t *testing.T) {
	exec, table := newTestExecutor(t, sampleRecords())
	ctx := context.Background()

	if _, err := exec.List(ctx, table, nil, nil, 0, 0, false); err != nil {
		t.Fatalf("warm-up list: %v", err)
	}

	updated := types.Record{ID: "r1", TableID: "tbl1", Data: map[string]json.RawMessage{
		"title":  json.RawMessage(`"Updated title"`),
		"status": json.RawMessage(`{"value":"closed"}`),
	}}
	if err := exec.PutRecord(ctx, table, updated); err != nil {
		t.Fatalf("PutRecord: %v", err)
	}

	rec, _, err := exec.Get(ctx, table, "r1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(rec.Get("title")) != `"Updated title"` {
		t.Errorf("expected write-through update to be visible, got %+v", rec)
	}
}

func TestListPaginatesResults(t *testing.T) {
	exec, table := newTestExecutor(t, sampleRecords())
	ctx := context.Background()

	result, err := exec.List(ctx, table, nil, nil, 1, 1, false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("expected 1 row with limit=1 offset=1, got %d", len(result.Rows))
	}
}
