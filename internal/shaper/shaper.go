// Package shaper implements the Response Shaper (C8): it projects
// cached or freshly fetched rows to the fields a caller requested,
// normalises timestamps, compacts large-content field types, and emits
// either compact tabular text or JSON for downstream LLM consumption
// (spec §4.8). The shaper never inspects or rewrites field semantics —
// it only trims and formats what the cache and filter layers already
// produced.
package shaper

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Grupo-AFAL/smartsuite-bridge/internal/coerce"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/fieldtypes"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/filter"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/types"
)

// Format selects the shaper's output encoding.
type Format string

const (
	FormatTabular Format = "tabular"
	FormatJSON    Format = "json"
)

// TabularDelimiter separates fields within a compact tabular row.
const TabularDelimiter = "\t"

// Summarizer optionally compacts a long plain-text document preview
// into a shorter synopsis (spec SPEC_FULL D.2). It must never block or
// fail a response: shapeRichDocument treats any error as "leave the
// preview unchanged".
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Request carries everything the shaper needs beyond the rows
// themselves: which fields were asked for, the desired output format,
// the timezone to render timestamps in, and the warnings accumulated
// during compilation (spec §4.8 item 4).
type Request struct {
	Fields     []string
	Format     Format
	Timezone   *time.Location
	Warnings   []filter.Warning
	TotalCount int
	// FilteredCount is the count after predicate evaluation but before
	// paging (spec §4.7); Shown is simply len(rows) after paging.
	FilteredCount int

	// Summarizer and SummarizeDocuments gate D.2's optional AI-assisted
	// preview compaction. When SummarizeDocuments is false or Summarizer
	// is nil, the plain-text preview is used unchanged.
	Summarizer         Summarizer
	SummarizeDocuments bool
}

// Output is the shaped result, serializable directly as the RPC
// response's Data payload regardless of which Format was requested.
type Output struct {
	Format     Format                       `json:"format"`
	Text       string                       `json:"text,omitempty"`
	Items      []map[string]json.RawMessage `json:"items,omitempty"`
	Shown      int                          `json:"shown"`
	Filtered   int                          `json:"filtered"`
	Total      int                          `json:"total"`
	Warnings   []filter.Warning             `json:"warnings,omitempty"`
}

// Shape projects rows to the requested fields and renders them in the
// requested format (spec §4.8).
func Shape(ctx context.Context, rows []types.Record, table types.Table, req Request) (Output, error) {
	slugs := projectedSlugs(req.Fields, table)
	warnings := append([]filter.Warning{}, req.Warnings...)
	warnings = append(warnings, largeContentWarnings(req.Fields, table)...)

	projected := make([]map[string]json.RawMessage, 0, len(rows))
	for _, rec := range rows {
		row, err := shapeRow(ctx, rec, table, slugs, req)
		if err != nil {
			return Output{}, err
		}
		projected = append(projected, row)
	}

	out := Output{
		Format:   req.Format,
		Shown:    len(rows),
		Filtered: req.FilteredCount,
		Total:    req.TotalCount,
		Warnings: warnings,
	}

	switch req.Format {
	case FormatJSON:
		out.Items = projected
	default:
		out.Format = FormatTabular
		out.Text = renderTabular(slugs, projected, out.Shown, out.Filtered, out.Total, warnings)
	}
	return out, nil
}

// projectedSlugs always includes id and title implicitly ahead of the
// caller's requested fields, deduplicated and order-preserving (spec
// §4.8 item 1).
func projectedSlugs(requested []string, table types.Table) []string {
	seen := make(map[string]bool, len(requested)+2)
	out := make([]string, 0, len(requested)+2)
	add := func(slug string) {
		if slug == "" || seen[slug] {
			return
		}
		seen[slug] = true
		out = append(out, slug)
	}
	add("id")
	add("title")
	for _, f := range requested {
		add(f)
	}
	return out
}

// largeContentWarnings flags explicitly-requested fields the registry
// marks as large content (long text, rich documents, file arrays) so
// the caller knows why a response may be bulky (spec §4.8: "the shaper
// can warn the caller when such a field is requested").
func largeContentWarnings(requested []string, table types.Table) []filter.Warning {
	var out []filter.Warning
	for _, slug := range requested {
		field, ok := table.FieldBySlug(slug)
		if !ok {
			continue
		}
		desc, ok := fieldtypes.Lookup(field.FieldType)
		if !ok || !desc.LargeContent {
			continue
		}
		out = append(out, filter.Warning{
			Field:   slug,
			Message: fmt.Sprintf("field %q is large-content (%s); response size may be significant", slug, field.FieldType),
		})
	}
	return out
}

func shapeRow(ctx context.Context, rec types.Record, table types.Table, slugs []string, req Request) (map[string]json.RawMessage, error) {
	row := make(map[string]json.RawMessage, len(slugs))
	for _, slug := range slugs {
		if slug == "id" {
			idJSON, _ := json.Marshal(rec.ID)
			row["id"] = idJSON
			continue
		}

		raw := rec.Get(slug)
		if len(raw) == 0 {
			continue
		}

		field, ok := table.FieldBySlug(slug)
		if !ok {
			row[slug] = raw
			continue
		}

		shaped, err := shapeValue(ctx, raw, field, req)
		if err != nil {
			return nil, err
		}
		row[slug] = shaped
	}
	return row, nil
}

// shapeValue applies per-field-type rendering: timestamp normalisation
// (spec §4.8 item 2) and rich-document compaction to HTML/preview. The
// cache retains the full document verbatim; only the shaped copy is
// trimmed.
func shapeValue(ctx context.Context, raw json.RawMessage, field types.Field, req Request) (json.RawMessage, error) {
	desc, known := fieldtypes.Lookup(field.FieldType)
	if !known {
		return raw, nil
	}

	switch desc.Storage {
	case fieldtypes.NestedDocument:
		return shapeRichDocument(ctx, raw, req)
	case fieldtypes.NestedDate, fieldtypes.NestedDateRange, fieldtypes.NestedDueDate, fieldtypes.SystemReadonly:
		return normalizeTimestamp(raw, req.Timezone), nil
	default:
		return raw, nil
	}
}

// shapeRichDocument replaces a rich-document value with its rendered
// HTML, or a plain-text preview if HTML is absent, optionally further
// compacted by an AI summarizer (spec §4.8 item 2, SPEC_FULL D.2). The
// summarizer is best-effort: any error falls back to the plain preview.
func shapeRichDocument(ctx context.Context, raw json.RawMessage, req Request) (json.RawMessage, error) {
	doc, ok := coerce.AsRichDocument(raw)
	if !ok {
		return raw, nil
	}

	preview := doc.Preview
	if preview == "" {
		preview = doc.HTML
	}

	if req.SummarizeDocuments && req.Summarizer != nil && preview != "" {
		if summary, err := req.Summarizer.Summarize(ctx, preview); err == nil && summary != "" {
			preview = summary
		}
	}

	out := doc.HTML
	if out == "" {
		out = preview
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		return raw, nil
	}
	return encoded, nil
}

// normalizeTimestamp rewrites an RFC3339 timestamp into tz. Values that
// are not full timestamps (bare calendar dates, nested date-range
// objects) pass through unchanged — only wall-clock instants carry a
// timezone to normalise.
func normalizeTimestamp(raw json.RawMessage, tz *time.Location) json.RawMessage {
	if tz == nil {
		return raw
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return raw
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return raw
	}
	encoded, err := json.Marshal(t.In(tz).Format(time.RFC3339))
	if err != nil {
		return raw
	}
	return encoded
}

// renderTabular emits the compact tabular form (spec §6): a warnings
// block (if any), a header line with shown/filtered/total counts, a
// header row of field slugs, and one delimiter-separated line per row.
func renderTabular(slugs []string, rows []map[string]json.RawMessage, shown, filtered, total int, warnings []filter.Warning) string {
	var b strings.Builder

	if len(warnings) > 0 {
		b.WriteString("⚠️ FILTER WARNINGS:\n")
		for _, w := range warnings {
			b.WriteString("- ")
			b.WriteString(formatWarning(w))
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "=== Showing %d of %d filtered records (%d total) ===\n", shown, filtered, total)
	b.WriteString(strings.Join(slugs, TabularDelimiter))
	b.WriteString("\n")

	for _, row := range rows {
		cells := make([]string, len(slugs))
		for i, slug := range slugs {
			cells[i] = cellText(row[slug])
		}
		b.WriteString(strings.Join(cells, TabularDelimiter))
		b.WriteString("\n")
	}

	return b.String()
}

func formatWarning(w filter.Warning) string {
	if w.Field == "" {
		return w.Message
	}
	if w.Suggestion != "" {
		return fmt.Sprintf("%s (field=%s, comparison=%s, suggestion=%s)", w.Message, w.Field, w.Comparison, w.Suggestion)
	}
	return fmt.Sprintf("%s (field=%s, comparison=%s)", w.Message, w.Field, w.Comparison)
}

func cellText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	text := coerce.AsText(raw)
	if text != "" {
		return strings.ReplaceAll(text, TabularDelimiter, " ")
	}
	// Non-scalar values (arrays, objects) render as compact JSON rather
	// than the empty string AsText falls back to.
	return strings.ReplaceAll(string(raw), TabularDelimiter, " ")
}

// ParseTabular recovers the projected rows from tabular text produced
// by renderTabular, for tables containing only primitive field values
// (spec §8 round-trip law). The warnings block and count header, if
// present, are skipped.
func ParseTabular(text string) (slugs []string, rows []map[string]string) {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	i := 0
	for i < len(lines) && (strings.HasPrefix(lines[i], "⚠️") || strings.HasPrefix(lines[i], "- ") || strings.HasPrefix(lines[i], "===")) {
		i++
	}
	if i >= len(lines) {
		return nil, nil
	}
	slugs = strings.Split(lines[i], TabularDelimiter)
	i++

	for ; i < len(lines); i++ {
		if lines[i] == "" {
			continue
		}
		cells := strings.Split(lines[i], TabularDelimiter)
		row := make(map[string]string, len(slugs))
		for j, slug := range slugs {
			if j < len(cells) {
				row[slug] = cells[j]
			}
		}
		rows = append(rows, row)
	}
	return slugs, rows
}

// SortBySlug is a small helper for tests and callers that want a
// deterministic field order when building a Request.Fields slice.
func SortBySlug(slugs []string) []string {
	out := append([]string{}, slugs...)
	sort.Strings(out)
	return out
}
