package shaper

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Grupo-AFAL/smartsuite-bridge/internal/filter"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/types"
)

func rawJSON(t *testing.T, v string) json.RawMessage {
	t.Helper()
	return json.RawMessage(v)
}

func sampleTable() types.Table {
	return types.Table{
		ID:   "tbl1",
		Name: "Tasks",
		Structure: []types.Field{
			{Slug: "title", Label: "Title", FieldType: "text"},
			{Slug: "status", Label: "Status", FieldType: "single_select"},
			{Slug: "due_date", Label: "Due Date", FieldType: "due_date"},
			{Slug: "notes", Label: "Notes", FieldType: "rich_document"},
			{Slug: "created_at", Label: "Created At", FieldType: "system"},
		},
	}
}

func sampleRecord(t *testing.T) types.Record {
	return types.Record{
		ID:      "rec1",
		TableID: "tbl1",
		Data: map[string]json.RawMessage{
			"title":      rawJSON(t, `"Finish report"`),
			"status":     rawJSON(t, `{"value":"In Progress"}`),
			"created_at": rawJSON(t, `"2024-01-02T15:04:05Z"`),
			"notes": rawJSON(t, `{"data":"raw","html":"<p>Detailed plan</p>","preview":"Detailed plan summary"}`),
		},
	}
}

func TestProjectedSlugsAlwaysLeadsWithIDAndTitle(t *testing.T) {
	table := sampleTable()
	slugs := projectedSlugs([]string{"status", "title", "id"}, table)
	assert.Equal(t, []string{"id", "title", "status"}, slugs)
}

func TestProjectedSlugsDedupesAndPreservesOrder(t *testing.T) {
	table := sampleTable()
	slugs := projectedSlugs([]string{"status", "status", "due_date"}, table)
	assert.Equal(t, []string{"id", "title", "status", "due_date"}, slugs)
}

func TestLargeContentWarningsFlagsRichDocumentButNotText(t *testing.T) {
	table := sampleTable()
	warnings := largeContentWarnings([]string{"notes", "title"}, table)
	require.Len(t, warnings, 1)
	assert.Equal(t, "notes", warnings[0].Field)
	assert.Contains(t, warnings[0].Message, "large-content")
}

func TestLargeContentWarningsIgnoresUnknownFields(t *testing.T) {
	table := sampleTable()
	warnings := largeContentWarnings([]string{"ghost_field"}, table)
	assert.Empty(t, warnings)
}

func TestShapeJSONProjectsRequestedFieldsOnly(t *testing.T) {
	ctx := context.Background()
	table := sampleTable()
	rec := sampleRecord(t)

	out, err := Shape(ctx, []types.Record{rec}, table, Request{
		Fields:        []string{"status"},
		Format:        FormatJSON,
		TotalCount:    5,
		FilteredCount: 2,
	})
	require.NoError(t, err)

	require.Len(t, out.Items, 1)
	row := out.Items[0]
	assert.Contains(t, row, "id")
	assert.Contains(t, row, "title")
	assert.Contains(t, row, "status")
	assert.NotContains(t, row, "notes")
	assert.NotContains(t, row, "created_at")
	assert.Equal(t, 1, out.Shown)
	assert.Equal(t, 2, out.Filtered)
	assert.Equal(t, 5, out.Total)
}

func TestShapeRichDocumentPrefersHTML(t *testing.T) {
	ctx := context.Background()
	table := sampleTable()
	rec := sampleRecord(t)

	out, err := Shape(ctx, []types.Record{rec}, table, Request{
		Fields: []string{"notes"},
		Format: FormatJSON,
	})
	require.NoError(t, err)

	var html string
	require.NoError(t, json.Unmarshal(out.Items[0]["notes"], &html))
	assert.Equal(t, "<p>Detailed plan</p>", html)
}

type stubSummarizer struct {
	called bool
	result string
	err    error
}

func (s *stubSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	s.called = true
	if s.err != nil {
		return "", s.err
	}
	return s.result, nil
}

func TestShapeRichDocumentUsesSummarizerWhenRequested(t *testing.T) {
	ctx := context.Background()
	table := sampleTable()
	rec := types.Record{
		ID: "rec2",
		Data: map[string]json.RawMessage{
			"notes": rawJSON(t, `{"preview":"a very long document body"}`),
		},
	}
	summarizer := &stubSummarizer{result: "short synopsis"}

	out, err := Shape(ctx, []types.Record{rec}, table, Request{
		Fields:             []string{"notes"},
		Format:             FormatJSON,
		Summarizer:         summarizer,
		SummarizeDocuments: true,
	})
	require.NoError(t, err)
	assert.True(t, summarizer.called)

	var got string
	require.NoError(t, json.Unmarshal(out.Items[0]["notes"], &got))
	assert.Equal(t, "short synopsis", got)
}

func TestShapeRichDocumentFallsBackOnSummarizerError(t *testing.T) {
	ctx := context.Background()
	table := sampleTable()
	rec := types.Record{
		ID: "rec3",
		Data: map[string]json.RawMessage{
			"notes": rawJSON(t, `{"preview":"fallback text"}`),
		},
	}
	summarizer := &stubSummarizer{err: assert.AnError}

	out, err := Shape(ctx, []types.Record{rec}, table, Request{
		Fields:             []string{"notes"},
		Format:             FormatJSON,
		Summarizer:         summarizer,
		SummarizeDocuments: true,
	})
	require.NoError(t, err)

	var got string
	require.NoError(t, json.Unmarshal(out.Items[0]["notes"], &got))
	assert.Equal(t, "fallback text", got)
}

func TestShapeNormalizesTimestampToRequestedTimezone(t *testing.T) {
	ctx := context.Background()
	table := sampleTable()
	rec := sampleRecord(t)
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	out, err := Shape(ctx, []types.Record{rec}, table, Request{
		Fields:   []string{"created_at"},
		Format:   FormatJSON,
		Timezone: loc,
	})
	require.NoError(t, err)

	var got string
	require.NoError(t, json.Unmarshal(out.Items[0]["created_at"], &got))
	parsed, err := time.Parse(time.RFC3339, got)
	require.NoError(t, err)
	assert.Equal(t, loc.String(), parsed.Location().String())
	assert.True(t, parsed.Equal(time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)))
}

func TestShapeTabularFormat(t *testing.T) {
	ctx := context.Background()
	table := sampleTable()
	rec := sampleRecord(t)

	out, err := Shape(ctx, []types.Record{rec}, table, Request{
		Fields:        []string{"status"},
		Format:        FormatTabular,
		TotalCount:    1,
		FilteredCount: 1,
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out.Text, "\n"), "\n")
	require.True(t, len(lines) >= 3)
	assert.Equal(t, "=== Showing 1 of 1 filtered records (1 total) ===", lines[0])
	assert.Equal(t, "id\ttitle\tstatus", lines[1])
	assert.Contains(t, lines[2], "rec1")
	assert.Contains(t, lines[2], "Finish report")
}

func TestShapeTabularIncludesWarningsBlock(t *testing.T) {
	ctx := context.Background()
	table := sampleTable()
	rec := sampleRecord(t)

	out, err := Shape(ctx, []types.Record{rec}, table, Request{
		Fields: []string{"status"},
		Format: FormatTabular,
		Warnings: []filter.Warning{
			{Field: "status", Comparison: "is_any_of", Message: "operator not valid for this field type", Suggestion: "is_any_of"},
		},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.Text, "⚠️ FILTER WARNINGS:\n"))
	assert.Contains(t, out.Text, "field=status")
}

func TestParseTabularRoundTrip(t *testing.T) {
	ctx := context.Background()
	table := sampleTable()
	rows := []types.Record{
		{ID: "r1", Data: map[string]json.RawMessage{"title": rawJSON(t, `"Alpha"`)}},
		{ID: "r2", Data: map[string]json.RawMessage{"title": rawJSON(t, `"Beta"`)}},
	}

	out, err := Shape(ctx, rows, table, Request{
		Fields:        []string{"title"},
		Format:        FormatTabular,
		TotalCount:    2,
		FilteredCount: 2,
	})
	require.NoError(t, err)

	slugs, parsed := ParseTabular(out.Text)
	assert.Equal(t, []string{"id", "title"}, slugs)
	require.Len(t, parsed, 2)
	assert.Equal(t, "r1", parsed[0]["id"])
	assert.Equal(t, "Alpha", parsed[0]["title"])
	assert.Equal(t, "r2", parsed[1]["id"])
	assert.Equal(t, "Beta", parsed[1]["title"])
}

func TestCellTextEscapesDelimiter(t *testing.T) {
	got := cellText(rawJSON(t, `"has\ttab"`))
	assert.NotContains(t, got, "\t")
}

func TestSortBySlugIsStableAndDoesNotMutateInput(t *testing.T) {
	in := []string{"b", "a", "c"}
	out := SortBySlug(in)
	assert.Equal(t, []string{"a", "b", "c"}, out)
	assert.Equal(t, []string{"b", "a", "c"}, in)
}
