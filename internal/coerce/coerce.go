// Package coerce implements the Field-Value Coercer (spec §4.9). It is
// applied on ingress, when a record is inserted into the cache, and
// again on filter binding, when a predicate extracts a comparable value
// from a field's raw JSON.
package coerce

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/Grupo-AFAL/smartsuite-bridge/internal/fieldtypes"
)

// ForStorage normalises raw per fieldType before it is written into the
// cache's opaque JSON data column. Most types pass through unchanged
// (the remote's own shape is retained verbatim, per spec §3's nested-
// object invariant); a few need defensive reshaping because the remote
// is known to collapse single-element arrays to bare scalars.
func ForStorage(fieldType string, raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}

	desc, ok := fieldtypes.Lookup(fieldType)
	if !ok {
		return raw
	}

	switch desc.Storage {
	case fieldtypes.ArrayOfScalars, fieldtypes.ArrayOfObjects:
		return ensureArray(raw)
	case fieldtypes.ScalarBoolean:
		return ensureBoolJSON(raw)
	default:
		return raw
	}
}

// ensureArray wraps a bare JSON scalar/object into a single-element
// array, since the upstream sometimes collapses array-valued user,
// linked-record, and multi-select fields to a single value (spec §4.9).
func ensureArray(raw json.RawMessage) json.RawMessage {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return raw
	}
	if strings.HasPrefix(trimmed, "[") {
		return raw
	}
	wrapped := "[" + trimmed + "]"
	return json.RawMessage(wrapped)
}

// ensureBoolJSON normalises common truthy/falsy JSON shapes (bool,
// "true"/"false" string, 0/1 number) to a canonical JSON bool.
func ensureBoolJSON(raw json.RawMessage) json.RawMessage {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return raw
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "1", "yes":
			return json.RawMessage("true")
		case "false", "0", "no", "":
			return json.RawMessage("false")
		}
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n != 0 {
			return json.RawMessage("true")
		}
		return json.RawMessage("false")
	}
	return raw
}

// AsBoolString renders raw as the literal "true"/"false" used by the
// yes/no comparator (spec §4.5).
func AsBoolString(raw json.RawMessage) string {
	canon := ensureBoolJSON(raw)
	return strings.TrimSpace(string(canon))
}

// IsEmptyValue reports whether raw should be treated as empty for
// is_empty/is_not_empty purposes: absent, JSON null, empty string,
// empty array, or empty object (spec §4.5's degenerate-{} case).
func IsEmptyValue(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return true
	}
	trimmed := strings.TrimSpace(string(raw))
	switch trimmed {
	case "", "null", `""`, "[]", "{}":
		return true
	}
	return false
}

// AsText extracts the best-effort plain-text representation of raw for
// text-family comparisons: JSON string contents verbatim, or the raw
// token for numbers/bools, empty for null/absent.
func AsText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "null" {
		return ""
	}
	return trimmed
}

// AsNumber extracts a float64 from raw, used by the numeric family's
// decimal-cast comparisons (spec §4.5: "never passes through the plain
// equality branch to avoid lexical compare"). ok is false if raw does
// not parse as a number in any of its common shapes.
func AsNumber(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		s = strings.TrimPrefix(s, "$")
		s = strings.TrimSuffix(s, "%")
		s = strings.ReplaceAll(s, ",", "")
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// nestedDate is the shape of a date/due-date field's nested value.
type nestedDate struct {
	ToDate *struct {
		Date string `json:"date"`
	} `json:"to_date"`
	Completed *bool `json:"completed_on,omitempty"`
}

// AsISODatePrefix extracts a YYYY-MM-DD prefix from raw by trying, in
// order: nested path field->to_date->date, then the field itself (only
// if it already matches the ISO calendar shape) (spec §4.5).
func AsISODatePrefix(raw json.RawMessage, isISODate func(string) bool) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}

	var nd nestedDate
	if err := json.Unmarshal(raw, &nd); err == nil && nd.ToDate != nil && nd.ToDate.Date != "" {
		if len(nd.ToDate.Date) >= 10 {
			return nd.ToDate.Date[:10], true
		}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if len(s) >= 10 && isISODate(s[:10]) {
			return s[:10], true
		}
	}
	return "", false
}

// IsOverdueComplete reports whether the nested date value carries a
// truthy "completed" companion flag, which excludes it from is_overdue
// (spec §4.5).
func IsOverdueComplete(raw json.RawMessage) bool {
	var nd nestedDate
	if err := json.Unmarshal(raw, &nd); err != nil {
		return false
	}
	return nd.Completed != nil && *nd.Completed
}

// AsStringArray extracts a string array from raw for containment-family
// comparisons (multi-select, tags, linked-record array values, users by
// id). Non-array, non-string elements are skipped.
func AsStringArray(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, el := range arr {
		if s := stringFromElement(el); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func stringFromElement(el json.RawMessage) string {
	var s string
	if err := json.Unmarshal(el, &s); err == nil {
		return s
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(el, &obj); err == nil {
		for _, key := range []string{"id", "value"} {
			if v, ok := obj[key]; ok {
				var vs string
				if json.Unmarshal(v, &vs) == nil {
					return vs
				}
			}
		}
	}
	return ""
}

// StatusValue extracts a single-select/status comparison value,
// coalescing between a nested {value: ...} object and a bare scalar
// string (spec §4.5: "single-select sometimes stores as plain string,
// status always as object").
func StatusValue(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var obj struct {
		Value *string `json:"value"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Value != nil {
		return *obj.Value, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	return "", false
}

// FileElements extracts the array of file-object elements for the file
// family's existential name/type comparisons.
type FileElement struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func FileElements(raw json.RawMessage) []FileElement {
	if len(raw) == 0 {
		return nil
	}
	var els []FileElement
	if err := json.Unmarshal(raw, &els); err != nil {
		return nil
	}
	return els
}

// RichDocument is a rich-document field's full cached shape: the
// editor-native data, its rendered HTML, and a short plain-text preview
// (spec §4.9: "retains data, html, preview sub-fields; the shaper later
// chooses one").
type RichDocument struct {
	Data    json.RawMessage `json:"data,omitempty"`
	HTML    string          `json:"html,omitempty"`
	Preview string          `json:"preview,omitempty"`
}

// AsRichDocument extracts the rich-document sub-fields from raw. ok is
// false if raw does not carry any of the three recognised shapes.
func AsRichDocument(raw json.RawMessage) (RichDocument, bool) {
	if len(raw) == 0 {
		return RichDocument{}, false
	}
	var doc RichDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return RichDocument{}, false
	}
	if len(doc.Data) == 0 && doc.HTML == "" && doc.Preview == "" {
		return RichDocument{}, false
	}
	return doc, true
}
