package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Grupo-AFAL/smartsuite-bridge/internal/cacheerr"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPutGetEntityRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	payload := json.RawMessage(`{"name":"Acme"}`)
	if err := store.PutEntity(ctx, types.KindSolution, "sol1", payload, time.Hour); err != nil {
		t.Fatalf("PutEntity: %v", err)
	}

	got, err := store.GetEntity(ctx, types.KindSolution, "sol1")
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("GetEntity = %s, want %s", got, payload)
	}
}

func TestGetEntityNotFound(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.GetEntity(context.Background(), types.KindSolution, "ghost"); !cacheerr.IsNotFound(err) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetEntityExpired(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.PutEntity(ctx, types.KindSolution, "sol1", json.RawMessage(`{}`), -time.Second); err != nil {
		t.Fatalf("PutEntity: %v", err)
	}
	if _, err := store.GetEntity(ctx, types.KindSolution, "sol1"); !cacheerr.IsNotFound(err) {
		t.Errorf("expected expired entity to report ErrNotFound, got %v", err)
	}
}

func TestDeleteEntity(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.PutEntity(ctx, types.KindMember, "m1", json.RawMessage(`{}`), time.Hour); err != nil {
		t.Fatalf("PutEntity: %v", err)
	}
	if err := store.DeleteEntity(ctx, types.KindMember, "m1"); err != nil {
		t.Fatalf("DeleteEntity: %v", err)
	}
	if _, err := store.GetEntity(ctx, types.KindMember, "m1"); !cacheerr.IsNotFound(err) {
		t.Errorf("expected deleted entity to report ErrNotFound, got %v", err)
	}
}

func sampleSchema() []types.Field {
	return []types.Field{
		{Slug: "title", Label: "Title", FieldType: "text"},
		{Slug: "status", Label: "Status", FieldType: "status"},
	}
}

func sampleCacheRecords() []types.Record {
	return []types.Record{
		{ID: "r1", Data: map[string]json.RawMessage{
			"title":  json.RawMessage(`"Write report"`),
			"status": json.RawMessage(`{"value":"open"}`),
		}},
		{ID: "r2", Data: map[string]json.RawMessage{
			"title":  json.RawMessage(`"Ship feature"`),
			"status": json.RawMessage(`{"value":"closed"}`),
		}},
	}
}

func TestPutRecordsThenGetRecordsReturnsAll(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.PutRecords(ctx, "tbl1", "sol1", sampleSchema(), sampleCacheRecords(), time.Hour); err != nil {
		t.Fatalf("PutRecords: %v", err)
	}

	rows, total, filtered, err := store.GetRecords(ctx, "tbl1", nil, nil, 0, 0)
	if err != nil {
		t.Fatalf("GetRecords: %v", err)
	}
	if total != 2 || filtered != 2 || len(rows) != 2 {
		t.Fatalf("expected 2 records, got total=%d filtered=%d rows=%d", total, filtered, len(rows))
	}
}

func TestRecordStateTransitions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	state, err := store.RecordState(ctx, "tbl1")
	if err != nil {
		t.Fatalf("RecordState: %v", err)
	}
	if state != types.RecordStateAbsent {
		t.Errorf("expected absent before any put, got %s", state)
	}

	if err := store.PutRecords(ctx, "tbl1", "sol1", sampleSchema(), sampleCacheRecords(), time.Hour); err != nil {
		t.Fatalf("PutRecords: %v", err)
	}
	state, err = store.RecordState(ctx, "tbl1")
	if err != nil {
		t.Fatalf("RecordState: %v", err)
	}
	if state != types.RecordStateValid {
		t.Errorf("expected valid after put, got %s", state)
	}
}

func TestPutRecordsSchemaChangeClearsExistingRows(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.PutRecords(ctx, "tbl1", "sol1", sampleSchema(), sampleCacheRecords(), time.Hour); err != nil {
		t.Fatalf("PutRecords initial: %v", err)
	}

	changedSchema := []types.Field{{Slug: "title", Label: "Title", FieldType: "text"}}
	newRecords := []types.Record{{ID: "r3", Data: map[string]json.RawMessage{"title": json.RawMessage(`"New"`)}}}
	if err := store.PutRecords(ctx, "tbl1", "sol1", changedSchema, newRecords, time.Hour); err != nil {
		t.Fatalf("PutRecords changed schema: %v", err)
	}

	rows, total, filtered, err := store.GetRecords(ctx, "tbl1", nil, nil, 0, 0)
	if err != nil {
		t.Fatalf("GetRecords: %v", err)
	}
	if total != 1 || filtered != 1 || len(rows) != 1 || rows[0].ID != "r3" {
		t.Fatalf("expected schema change to clear old rows, got %+v", rows)
	}
}

func TestPutRecordWriteThrough(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.PutRecords(ctx, "tbl1", "sol1", sampleSchema(), sampleCacheRecords(), time.Hour); err != nil {
		t.Fatalf("PutRecords: %v", err)
	}

	updated := types.Record{ID: "r1", Data: map[string]json.RawMessage{"title": json.RawMessage(`"Updated"`)}}
	if err := store.PutRecord(ctx, "tbl1", updated); err != nil {
		t.Fatalf("PutRecord: %v", err)
	}

	rows, _, _, err := store.GetRecords(ctx, "tbl1", nil, nil, 0, 0)
	if err != nil {
		t.Fatalf("GetRecords: %v", err)
	}
	for _, r := range rows {
		if r.ID == "r1" && string(r.Get("title")) != `"Updated"` {
			t.Errorf("expected write-through update visible, got %+v", r)
		}
	}
}

func TestInvalidateTableRecordsStructureChanged(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.PutRecords(ctx, "tbl1", "sol1", sampleSchema(), sampleCacheRecords(), time.Hour); err != nil {
		t.Fatalf("PutRecords: %v", err)
	}

	if err := store.Invalidate(ctx, types.KindTableSchema, "tbl1", true, InvalidateScope{TableID: "tbl1"}); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	state, err := store.RecordState(ctx, "tbl1")
	if err != nil {
		t.Fatalf("RecordState: %v", err)
	}
	if state != types.RecordStateAbsent {
		t.Errorf("expected absent after structure-changed invalidation, got %s", state)
	}

	_, total, filtered, err := store.GetRecords(ctx, "tbl1", nil, nil, 0, 0)
	if err != nil {
		t.Fatalf("GetRecords: %v", err)
	}
	if total != 0 || filtered != 0 {
		t.Errorf("expected records cleared, got total=%d filtered=%d", total, filtered)
	}
}

func TestInvalidateTableRecordsSoftExpire(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.PutRecords(ctx, "tbl1", "sol1", sampleSchema(), sampleCacheRecords(), time.Hour); err != nil {
		t.Fatalf("PutRecords: %v", err)
	}

	if err := store.Invalidate(ctx, types.KindTableSchema, "tbl1", false, InvalidateScope{TableID: "tbl1"}); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	state, err := store.RecordState(ctx, "tbl1")
	if err != nil {
		t.Fatalf("RecordState: %v", err)
	}
	if state != types.RecordStateExpired {
		t.Errorf("expected expired after soft invalidation, got %s", state)
	}

	_, total, filtered, err := store.GetRecords(ctx, "tbl1", nil, nil, 0, 0)
	if err != nil {
		t.Fatalf("GetRecords: %v", err)
	}
	if total != 2 || filtered != 2 {
		t.Errorf("expected rows to survive soft expiry, got total=%d filtered=%d", total, filtered)
	}
}

func TestGetTableSchemaWithSolutionRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.PutRecords(ctx, "tbl1", "sol1", sampleSchema(), nil, time.Hour); err != nil {
		t.Fatalf("PutRecords: %v", err)
	}

	solutionID, fields, err := store.GetTableSchemaWithSolution(ctx, "tbl1")
	if err != nil {
		t.Fatalf("GetTableSchemaWithSolution: %v", err)
	}
	if solutionID != "sol1" || len(fields) != 2 {
		t.Errorf("unexpected schema: solution=%q fields=%+v", solutionID, fields)
	}
}

func TestGetTableSchemaNotFound(t *testing.T) {
	store := openTestStore(t)
	if _, _, err := store.GetTableSchemaWithSolution(context.Background(), "ghost"); !cacheerr.IsNotFound(err) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStatusReportsEntityAndRecordCounts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.PutEntity(ctx, types.KindSolution, "sol1", json.RawMessage(`{}`), time.Hour); err != nil {
		t.Fatalf("PutEntity: %v", err)
	}
	if err := store.PutRecords(ctx, "tbl1", "sol1", sampleSchema(), sampleCacheRecords(), time.Hour); err != nil {
		t.Fatalf("PutRecords: %v", err)
	}

	statuses, err := store.Status(ctx, 300)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}

	foundRecord := false
	for _, st := range statuses {
		if st.Class == "record" {
			foundRecord = true
			if st.Count != 2 {
				t.Errorf("expected record count 2, got %d", st.Count)
			}
			if st.TTLSeconds <= 0 {
				t.Errorf("expected a positive ttl_seconds, got %d", st.TTLSeconds)
			}
		}
	}
	if !foundRecord {
		t.Errorf("expected a record status row, got %+v", statuses)
	}
}
