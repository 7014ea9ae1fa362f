package filter

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Grupo-AFAL/smartsuite-bridge/internal/cacheerr"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/dateresolve"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/fieldtypes"
)

// Compiled is a parameterised SQL fragment plus its bound parameters,
// both targeting the cache store's JSON-valued data column (spec §4.5).
type Compiled struct {
	SQL      string
	Args     []interface{}
	Warnings []Warning
}

var fieldNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// sanitizeField strips anything but alphanumerics and underscores from a
// field slug before it is spliced directly into the SQL text (only
// values are parameterised, field paths never are — spec §4.5).
func sanitizeField(slug string) string {
	return fieldNameSanitizer.ReplaceAllString(slug, "")
}

// SanitizeField is the exported form of sanitizeField, used by the
// cache package to build matching json_extract accessors for ORDER BY
// clauses outside of filter compilation.
func SanitizeField(slug string) string {
	return sanitizeField(slug)
}

// Compile walks root and emits a WHERE-clause fragment against column
// "data" (a JSON-valued TEXT/BLOB column in the cache store's records
// table). lookup resolves a predicate's field slug to its declared
// field-type; strict toggles validation strictness (spec §4.4).
func Compile(root Node, lookup FieldTypeLookup, strict bool, now time.Time) (Compiled, error) {
	c := newCollector()
	sql, args, err := compileNode(root, lookup, strict, now, c)
	if err != nil {
		return Compiled{}, err
	}
	return Compiled{SQL: sql, Args: args, Warnings: c.drain()}, nil
}

func compileNode(n Node, lookup FieldTypeLookup, strict bool, now time.Time, c *collector) (string, []interface{}, error) {
	if n.IsGroup() {
		return compileGroup(n, lookup, strict, now, c)
	}
	return compilePredicate(n, lookup, strict, now, c)
}

func compileGroup(n Node, lookup FieldTypeLookup, strict bool, now time.Time, c *collector) (string, []interface{}, error) {
	if len(n.Fields) == 0 {
		// An empty group is vacuously true for AND, vacuously false for OR.
		if n.Operator == "or" {
			return "0", nil, nil
		}
		return "1", nil, nil
	}

	joiner := " AND "
	if n.Operator == "or" {
		joiner = " OR "
	}

	parts := make([]string, 0, len(n.Fields))
	var args []interface{}
	for _, child := range n.Fields {
		sql, childArgs, err := compileNode(child, lookup, strict, now, c)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		args = append(args, childArgs...)
	}
	return "(" + strings.Join(parts, joiner) + ")", args, nil
}

func compilePredicate(n Node, lookup FieldTypeLookup, strict bool, now time.Time, c *collector) (string, []interface{}, error) {
	fieldType, known := lookup(n.Field)
	if !known {
		return "", nil, cacheerr.Wrapf(cacheerr.ErrValidation, "unknown field %q", n.Field)
	}

	if err := validate(n, fieldType, strict, c); err != nil {
		return "", nil, err
	}

	desc, _ := fieldtypes.Lookup(fieldType)
	path := jsonPath(n.Field)

	if !strict && !desc.FormulaReturn && !desc.Operators[n.Comparison] {
		// Lenient mode: validate has already attached a warning for this
		// operator. Run it as a text comparison on the raw JSON when the
		// text compiler knows it; otherwise use the suggested operator.
		if sql, args, err := compileText(n, path); err == nil {
			return sql, args, nil
		}
		if s := suggestions[string(desc.Family)][n.Comparison]; s != "" {
			n.Comparison = s
		}
	}

	switch desc.Family {
	case fieldtypes.FamilyText:
		return compileText(n, path)
	case fieldtypes.FamilyNumeric:
		return compileNumeric(n, path)
	case fieldtypes.FamilyDate, fieldtypes.FamilyDueDate:
		return compileDate(n, sanitizeField(n.Field), path, now)
	case fieldtypes.FamilySingleSelect:
		return compileSingleSelect(n, path)
	case fieldtypes.FamilyMultiSelect, fieldtypes.FamilyLinkedRecord, fieldtypes.FamilyUser:
		return compileContainment(n, path)
	case fieldtypes.FamilyFile:
		return compileFile(n, path)
	case fieldtypes.FamilyYesNo:
		return compileYesNo(n, path)
	default:
		// Best-effort fallback for unrecognised/formula-return families:
		// treat generically as text so the query still runs.
		return compileText(n, path)
	}
}

func jsonPath(slug string) string {
	return fmt.Sprintf("json_extract(data, '$.%s')", sanitizeField(slug))
}

func valueAsString(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return strings.Trim(strings.TrimSpace(string(raw)), `"`)
}

// isEmptyExpr is the shared "absent, empty string, empty array, empty
// object, or JSON null" test used by is_empty/is_not_empty across
// families (spec §4.5).
func isEmptyExpr(path string) string {
	return fmt.Sprintf("(%s IS NULL OR %s = '' OR %s = '[]' OR %s = '{}' OR %s = 'null')", path, path, path, path, path)
}

func compileText(n Node, path string) (string, []interface{}, error) {
	switch n.Comparison {
	case "is":
		return fmt.Sprintf("LOWER(%s) = LOWER(?)", path), []interface{}{valueAsString(n.Value)}, nil
	case "is_not":
		return fmt.Sprintf("(%s IS NULL OR LOWER(%s) != LOWER(?))", path, path), []interface{}{valueAsString(n.Value)}, nil
	case "contains":
		return fmt.Sprintf("LOWER(%s) LIKE '%%' || LOWER(?) || '%%'", path), []interface{}{valueAsString(n.Value)}, nil
	case "not_contains":
		return fmt.Sprintf("(%s IS NULL OR LOWER(%s) NOT LIKE '%%' || LOWER(?) || '%%')", path, path), []interface{}{valueAsString(n.Value)}, nil
	case "is_empty":
		return isEmptyExpr(path), nil, nil
	case "is_not_empty":
		return "NOT " + isEmptyExpr(path), nil, nil
	default:
		return "", nil, cacheerr.Wrapf(cacheerr.ErrValidation, "unsupported text operator %q", n.Comparison)
	}
}

// compileNumeric casts the extracted text to a decimal; equality never
// falls through to the lexical text branch (spec §4.5 edge case).
func compileNumeric(n Node, path string) (string, []interface{}, error) {
	cast := fmt.Sprintf("CAST(%s AS REAL)", path)
	switch n.Comparison {
	case "is", "is_equal_to":
		return fmt.Sprintf("%s = ?", cast), []interface{}{valueAsFloat(n.Value)}, nil
	case "is_not", "is_not_equal_to":
		return fmt.Sprintf("(%s IS NULL OR %s != ?)", path, cast), []interface{}{valueAsFloat(n.Value)}, nil
	case "is_greater_than":
		return fmt.Sprintf("%s > ?", cast), []interface{}{valueAsFloat(n.Value)}, nil
	case "is_less_than":
		return fmt.Sprintf("%s < ?", cast), []interface{}{valueAsFloat(n.Value)}, nil
	case "is_equal_or_greater_than":
		return fmt.Sprintf("%s >= ?", cast), []interface{}{valueAsFloat(n.Value)}, nil
	case "is_equal_or_less_than":
		return fmt.Sprintf("%s <= ?", cast), []interface{}{valueAsFloat(n.Value)}, nil
	case "is_empty":
		return isEmptyExpr(path), nil, nil
	case "is_not_empty":
		return "NOT " + isEmptyExpr(path), nil, nil
	default:
		return "", nil, cacheerr.Wrapf(cacheerr.ErrValidation, "unsupported numeric operator %q", n.Comparison)
	}
}

func valueAsFloat(raw json.RawMessage) float64 {
	var f float64
	if json.Unmarshal(raw, &f) == nil {
		return f
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		var parsed float64
		fmt.Sscanf(s, "%g", &parsed)
		return parsed
	}
	return 0
}

// dateExpr builds the COALESCE accessor for a date/due-date field: try
// the nested to_date.date path first, then fall back to the bare field
// value (only meaningful when it already holds an ISO string) (spec
// §4.5).
func dateExpr(slug string) string {
	nested := fmt.Sprintf("json_extract(data, '$.%s.to_date.date')", slug)
	bare := fmt.Sprintf("json_extract(data, '$.%s')", slug)
	return fmt.Sprintf("substr(COALESCE(%s, %s), 1, 10)", nested, bare)
}

func compileDate(n Node, slug, path string, now time.Time) (string, []interface{}, error) {
	expr := dateExpr(slug)

	switch n.Comparison {
	case "is_empty":
		return isEmptyExpr(path), nil, nil
	case "is_not_empty":
		return "NOT " + isEmptyExpr(path), nil, nil
	case "is_overdue":
		today := now.Format(dateresolve.ISODateLayout)
		return fmt.Sprintf("(%s IS NOT NULL AND %s < ? AND json_extract(%s, '$.completed_on') IS NOT 1)", expr, expr, path), []interface{}{today}, nil
	case "is_not_overdue":
		today := now.Format(dateresolve.ISODateLayout)
		return fmt.Sprintf("NOT (%s IS NOT NULL AND %s < ? AND json_extract(%s, '$.completed_on') IS NOT 1)", expr, expr, path), []interface{}{today}, nil
	}

	resolved, ok := dateresolve.Resolve(n.Value, now)
	if !ok {
		return "", nil, cacheerr.Wrapf(cacheerr.ErrValidation, "invalid date value for field comparison")
	}

	switch n.Comparison {
	case "is":
		return fmt.Sprintf("%s = ?", expr), []interface{}{resolved}, nil
	case "is_not":
		return fmt.Sprintf("(%s IS NULL OR %s != ?)", expr, expr), []interface{}{resolved}, nil
	case "is_before":
		return fmt.Sprintf("(%s IS NOT NULL AND %s < ?)", expr, expr), []interface{}{resolved}, nil
	case "is_after":
		return fmt.Sprintf("(%s IS NOT NULL AND %s > ?)", expr, expr), []interface{}{resolved}, nil
	case "is_on_or_before":
		return fmt.Sprintf("(%s IS NOT NULL AND %s <= ?)", expr, expr), []interface{}{resolved}, nil
	case "is_on_or_after":
		return fmt.Sprintf("(%s IS NOT NULL AND %s >= ?)", expr, expr), []interface{}{resolved}, nil
	default:
		return "", nil, cacheerr.Wrapf(cacheerr.ErrValidation, "unsupported date operator %q", n.Comparison)
	}
}

// statusExpr coalesces the nested {value: ...} shape with a bare scalar
// (spec §4.5).
func statusExpr(path string) string {
	return fmt.Sprintf("COALESCE(json_extract(%s, '$.value'), %s)", path, path)
}

func compileSingleSelect(n Node, path string) (string, []interface{}, error) {
	expr := statusExpr(path)

	switch n.Comparison {
	case "is":
		return fmt.Sprintf("LOWER(%s) = LOWER(?)", expr), []interface{}{valueAsString(n.Value)}, nil
	case "is_not":
		return fmt.Sprintf("(%s IS NULL OR LOWER(%s) != LOWER(?))", expr, expr), []interface{}{valueAsString(n.Value)}, nil
	case "is_empty":
		return isEmptyExpr(path), nil, nil
	case "is_not_empty":
		return "NOT " + isEmptyExpr(path), nil, nil
	case "is_any_of", "is_none_of":
		values := stringList(n.Value)
		if len(values) == 0 {
			// Deliberate: empty list never falls back to empty-string match.
			if n.Comparison == "is_any_of" {
				return "0", nil, nil
			}
			return "1", nil, nil
		}
		placeholders := make([]string, len(values))
		args := make([]interface{}, len(values))
		for i, v := range values {
			placeholders[i] = "LOWER(?)"
			args[i] = v
		}
		in := fmt.Sprintf("LOWER(%s) IN (%s)", expr, strings.Join(placeholders, ", "))
		if n.Comparison == "is_none_of" {
			return fmt.Sprintf("(%s IS NULL OR NOT %s)", expr, in), args, nil
		}
		return in, args, nil
	default:
		return "", nil, cacheerr.Wrapf(cacheerr.ErrValidation, "unsupported single-select operator %q", n.Comparison)
	}
}

func stringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, el := range arr {
		out = append(out, valueAsString(el))
	}
	return out
}

// containsExpr builds an EXISTS-over-json_each membership test for one
// value against an array-valued JSON path.
func containsExpr(path, placeholder string) string {
	return fmt.Sprintf(
		"EXISTS (SELECT 1 FROM json_each(%s) WHERE LOWER(COALESCE(json_extract(json_each.value, '$.id'), json_each.value)) = LOWER(%s))",
		path, placeholder,
	)
}

func compileContainment(n Node, path string) (string, []interface{}, error) {
	switch n.Comparison {
	case "is_empty":
		return isEmptyExpr(path), nil, nil
	case "is_not_empty":
		return "NOT " + isEmptyExpr(path), nil, nil
	case "contains":
		return containsExpr(path, "?"), []interface{}{valueAsString(n.Value)}, nil
	case "not_contains":
		return "NOT " + containsExpr(path, "?"), []interface{}{valueAsString(n.Value)}, nil
	case "has_any_of":
		values := stringList(n.Value)
		if len(values) == 0 {
			return "0", nil, nil
		}
		parts := make([]string, len(values))
		args := make([]interface{}, len(values))
		for i, v := range values {
			parts[i] = containsExpr(path, "?")
			args[i] = v
		}
		return "(" + strings.Join(parts, " OR ") + ")", args, nil
	case "has_all_of":
		values := stringList(n.Value)
		if len(values) == 0 {
			return "1", nil, nil
		}
		parts := make([]string, len(values))
		args := make([]interface{}, len(values))
		for i, v := range values {
			parts[i] = containsExpr(path, "?")
			args[i] = v
		}
		return "(" + strings.Join(parts, " AND ") + ")", args, nil
	case "has_none_of":
		values := stringList(n.Value)
		if len(values) == 0 {
			return "1", nil, nil
		}
		parts := make([]string, len(values))
		args := make([]interface{}, len(values))
		for i, v := range values {
			parts[i] = "NOT " + containsExpr(path, "?")
			args[i] = v
		}
		return "(" + strings.Join(parts, " AND ") + ")", args, nil
	case "is_exactly":
		values := stringList(n.Value)
		// Exact set match: same cardinality, has_all_of, and no extras.
		allParts := make([]string, 0, len(values))
		args := make([]interface{}, 0, len(values))
		for _, v := range values {
			allParts = append(allParts, containsExpr(path, "?"))
			args = append(args, v)
		}
		countExpr := fmt.Sprintf("(SELECT COUNT(*) FROM json_each(%s))", path)
		clause := fmt.Sprintf("%s = ?", countExpr)
		args = append([]interface{}{len(values)}, args...)
		if len(allParts) > 0 {
			clause = "(" + clause + " AND " + strings.Join(allParts, " AND ") + ")"
		}
		return clause, args, nil
	default:
		return "", nil, cacheerr.Wrapf(cacheerr.ErrValidation, "unsupported containment operator %q", n.Comparison)
	}
}

func compileFile(n Node, path string) (string, []interface{}, error) {
	switch n.Comparison {
	case "is_empty":
		return isEmptyExpr(path), nil, nil
	case "is_not_empty":
		return "NOT " + isEmptyExpr(path), nil, nil
	case "file_name_contains":
		expr := fmt.Sprintf(
			"EXISTS (SELECT 1 FROM json_each(%s) WHERE LOWER(json_extract(json_each.value, '$.name')) LIKE '%%' || LOWER(?) || '%%')",
			path,
		)
		return expr, []interface{}{valueAsString(n.Value)}, nil
	case "file_type_is":
		expr := fmt.Sprintf(
			"EXISTS (SELECT 1 FROM json_each(%s) WHERE json_extract(json_each.value, '$.type') = ?)",
			path,
		)
		return expr, []interface{}{valueAsString(n.Value)}, nil
	default:
		return "", nil, cacheerr.Wrapf(cacheerr.ErrValidation, "unsupported file operator %q", n.Comparison)
	}
}

func compileYesNo(n Node, path string) (string, []interface{}, error) {
	if n.Comparison != "is" {
		return "", nil, cacheerr.Wrapf(cacheerr.ErrValidation, "unsupported yes/no operator %q", n.Comparison)
	}
	want := "false"
	var b bool
	if json.Unmarshal(n.Value, &b) == nil && b {
		want = "true"
	}
	return fmt.Sprintf("(CASE WHEN %s IN (1, 'true') THEN 'true' ELSE 'false' END) = ?", path), []interface{}{want}, nil
}
