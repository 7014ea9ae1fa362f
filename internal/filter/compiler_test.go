package filter

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

var fixedNow = time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)

func lookupFor(types map[string]string) FieldTypeLookup {
	return func(slug string) (string, bool) {
		ft, ok := types[slug]
		return ft, ok
	}
}

func TestCompileUnknownFieldFails(t *testing.T) {
	root := Node{Field: "ghost", Comparison: "is", Value: json.RawMessage(`"x"`)}
	_, err := Compile(root, lookupFor(nil), true, fixedNow)
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestCompileTextIs(t *testing.T) {
	root := Node{Field: "title", Comparison: "is", Value: json.RawMessage(`"Report"`)}
	c, err := Compile(root, lookupFor(map[string]string{"title": "text"}), true, fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(c.SQL, "LOWER(") || len(c.Args) != 1 || c.Args[0] != "Report" {
		t.Errorf("unexpected compiled filter: %+v", c)
	}
}

func TestCompileNumericNeverFallsBackToLexical(t *testing.T) {
	root := Node{Field: "amount", Comparison: "is_equal_to", Value: json.RawMessage(`10`)}
	c, err := Compile(root, lookupFor(map[string]string{"amount": "number"}), true, fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(c.SQL, "CAST(") {
		t.Errorf("expected numeric comparison to cast, got %q", c.SQL)
	}
}

func TestCompileGroupAndOr(t *testing.T) {
	root := Node{
		Operator: "and",
		Fields: []Node{
			{Field: "title", Comparison: "is", Value: json.RawMessage(`"A"`)},
			{
				Operator: "or",
				Fields: []Node{
					{Field: "status", Comparison: "is", Value: json.RawMessage(`"open"`)},
					{Field: "status", Comparison: "is", Value: json.RawMessage(`"closed"`)},
				},
			},
		},
	}
	lookup := lookupFor(map[string]string{"title": "text", "status": "status"})
	c, err := Compile(root, lookup, true, fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(c.SQL, " AND ") || !strings.Contains(c.SQL, " OR ") {
		t.Errorf("expected nested and/or group, got %q", c.SQL)
	}
	if len(c.Args) != 3 {
		t.Errorf("expected 3 bound args, got %d", len(c.Args))
	}
}

func TestCompileEmptyGroupIsVacuous(t *testing.T) {
	andGroup := Node{Operator: "and", Fields: nil}
	c, err := Compile(andGroup, lookupFor(nil), true, fixedNow)
	if err != nil || c.SQL != "1" {
		t.Errorf("expected empty AND group to compile to always-true, got %q, err %v", c.SQL, err)
	}

	orGroup := Node{Operator: "or", Fields: nil}
	c, err = Compile(orGroup, lookupFor(nil), true, fixedNow)
	if err != nil || c.SQL != "0" {
		t.Errorf("expected empty OR group to compile to always-false, got %q, err %v", c.SQL, err)
	}
}

func TestCompileStrictModeRejectsWrongOperator(t *testing.T) {
	root := Node{Field: "tags", Comparison: "is", Value: json.RawMessage(`"x"`)}
	lookup := lookupFor(map[string]string{"tags": "tags"})
	if _, err := Compile(root, lookup, true, fixedNow); err == nil {
		t.Fatal("expected strict mode to reject multi-select field using is")
	}
}

func TestCompileLenientModeWarnsInsteadOfFailing(t *testing.T) {
	root := Node{Field: "tags", Comparison: "is", Value: json.RawMessage(`"x"`)}
	lookup := lookupFor(map[string]string{"tags": "tags"})
	c, err := Compile(root, lookup, false, fixedNow)
	if err != nil {
		t.Fatalf("expected lenient mode to compile best-effort, got error: %v", err)
	}
	if len(c.Warnings) != 1 {
		t.Fatalf("expected exactly one warning, got %d", len(c.Warnings))
	}
	if c.Warnings[0].Suggestion != "has_any_of" {
		t.Errorf("expected has_any_of suggestion, got %q", c.Warnings[0].Suggestion)
	}
}

func TestCompileDateIsOverdue(t *testing.T) {
	root := Node{Field: "due", Comparison: "is_overdue"}
	lookup := lookupFor(map[string]string{"due": "due_date"})
	c, err := Compile(root, lookup, true, fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(c.SQL, "completed_on") || len(c.Args) != 1 {
		t.Errorf("unexpected overdue SQL: %+v", c)
	}
}

func TestCompileContainmentHasAnyOf(t *testing.T) {
	root := Node{Field: "owners", Comparison: "has_any_of", Value: json.RawMessage(`["u1","u2"]`)}
	lookup := lookupFor(map[string]string{"owners": "user"})
	c, err := Compile(root, lookup, true, fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.Args) != 2 || !strings.Contains(c.SQL, "json_each") {
		t.Errorf("unexpected containment SQL: %+v", c)
	}
}

func TestCompileYesNoDefaultsFalse(t *testing.T) {
	root := Node{Field: "active", Comparison: "is", Value: json.RawMessage(`false`)}
	lookup := lookupFor(map[string]string{"active": "yes_no"})
	c, err := Compile(root, lookup, true, fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Args[0] != "false" {
		t.Errorf("expected bound value false, got %v", c.Args[0])
	}
}

func TestSanitizeFieldStripsUnsafeCharacters(t *testing.T) {
	if got := SanitizeField("evil'; DROP TABLE records; --"); strings.ContainsAny(got, "';-") {
		t.Errorf("expected sanitized field to strip special characters, got %q", got)
	}
}
