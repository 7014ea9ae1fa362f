package coerce

import (
	"encoding/json"
	"testing"
)

func TestForStorageWrapsBareArrayValuedField(t *testing.T) {
	got := ForStorage("multi_select", json.RawMessage(`"solo"`))
	if string(got) != `["solo"]` {
		t.Errorf("expected bare scalar wrapped into array, got %s", got)
	}
}

func TestForStorageLeavesExistingArrayAlone(t *testing.T) {
	got := ForStorage("multi_select", json.RawMessage(`["a","b"]`))
	if string(got) != `["a","b"]` {
		t.Errorf("expected array to pass through unchanged, got %s", got)
	}
}

func TestForStorageNormalizesBoolean(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`"true"`, "true"},
		{`"No"`, "false"},
		{`1`, "true"},
		{`0`, "false"},
		{`true`, "true"},
	}
	for _, tt := range tests {
		got := ForStorage("yes_no", json.RawMessage(tt.raw))
		if string(got) != tt.want {
			t.Errorf("ForStorage(yes_no, %s) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestForStorageUnknownFieldTypePassesThrough(t *testing.T) {
	raw := json.RawMessage(`{"foo":"bar"}`)
	got := ForStorage("not_a_real_type", raw)
	if string(got) != string(raw) {
		t.Errorf("expected unknown field type to pass through unchanged, got %s", got)
	}
}

func TestIsEmptyValue(t *testing.T) {
	tests := []struct {
		name string
		raw  json.RawMessage
		want bool
	}{
		{"absent", nil, true},
		{"null", json.RawMessage("null"), true},
		{"empty string", json.RawMessage(`""`), true},
		{"empty array", json.RawMessage("[]"), true},
		{"empty object", json.RawMessage("{}"), true},
		{"nonempty string", json.RawMessage(`"x"`), false},
		{"nonzero number", json.RawMessage("1"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsEmptyValue(tt.raw); got != tt.want {
				t.Errorf("IsEmptyValue(%s) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestAsText(t *testing.T) {
	if got := AsText(json.RawMessage(`"hello"`)); got != "hello" {
		t.Errorf("AsText string = %q", got)
	}
	if got := AsText(json.RawMessage("42")); got != "42" {
		t.Errorf("AsText number = %q", got)
	}
	if got := AsText(json.RawMessage("null")); got != "" {
		t.Errorf("AsText null = %q, want empty", got)
	}
	if got := AsText(nil); got != "" {
		t.Errorf("AsText absent = %q, want empty", got)
	}
}

func TestAsNumber(t *testing.T) {
	tests := []struct {
		raw     string
		want    float64
		wantOk  bool
	}{
		{"42", 42, true},
		{`"$1,200.50"`, 1200.50, true},
		{`"75%"`, 75, true},
		{`""`, 0, false},
		{`"not a number"`, 0, false},
	}
	for _, tt := range tests {
		got, ok := AsNumber(json.RawMessage(tt.raw))
		if ok != tt.wantOk || (ok && got != tt.want) {
			t.Errorf("AsNumber(%s) = (%v, %v), want (%v, %v)", tt.raw, got, ok, tt.want, tt.wantOk)
		}
	}
}

func TestAsISODatePrefixPrefersNestedToDate(t *testing.T) {
	raw := json.RawMessage(`{"to_date":{"date":"2026-07-29T00:00:00Z"}}`)
	got, ok := AsISODatePrefix(raw, func(s string) bool { return len(s) == 10 })
	if !ok || got != "2026-07-29" {
		t.Fatalf("AsISODatePrefix nested = (%q, %v)", got, ok)
	}
}

func TestAsISODatePrefixFallsBackToBareString(t *testing.T) {
	raw := json.RawMessage(`"2026-01-15"`)
	isISODate := func(s string) bool { return s == "2026-01-15" }
	got, ok := AsISODatePrefix(raw, isISODate)
	if !ok || got != "2026-01-15" {
		t.Fatalf("AsISODatePrefix bare = (%q, %v)", got, ok)
	}
}

func TestIsOverdueCompleteChecksCompanionFlag(t *testing.T) {
	if !IsOverdueComplete(json.RawMessage(`{"completed_on":true}`)) {
		t.Errorf("expected completed_on:true to report complete")
	}
	if IsOverdueComplete(json.RawMessage(`{"completed_on":false}`)) {
		t.Errorf("expected completed_on:false to report incomplete")
	}
	if IsOverdueComplete(json.RawMessage(`{}`)) {
		t.Errorf("expected absent completed_on to report incomplete")
	}
}

func TestAsStringArray(t *testing.T) {
	raw := json.RawMessage(`["a", {"id":"u1"}, {"value":"v1"}, 5]`)
	got := AsStringArray(raw)
	want := []string{"a", "u1", "v1"}
	if len(got) != len(want) {
		t.Fatalf("AsStringArray = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("AsStringArray[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestStatusValuePrefersNestedValue(t *testing.T) {
	got, ok := StatusValue(json.RawMessage(`{"value":"open"}`))
	if !ok || got != "open" {
		t.Fatalf("StatusValue nested = (%q, %v)", got, ok)
	}
}

func TestStatusValueFallsBackToBareString(t *testing.T) {
	got, ok := StatusValue(json.RawMessage(`"closed"`))
	if !ok || got != "closed" {
		t.Fatalf("StatusValue bare = (%q, %v)", got, ok)
	}
}

func TestAsRichDocument(t *testing.T) {
	raw := json.RawMessage(`{"html":"<p>hi</p>","preview":"hi"}`)
	doc, ok := AsRichDocument(raw)
	if !ok || doc.HTML != "<p>hi</p>" || doc.Preview != "hi" {
		t.Fatalf("AsRichDocument = %+v, %v", doc, ok)
	}

	if _, ok := AsRichDocument(json.RawMessage(`{}`)); ok {
		t.Errorf("expected empty rich document shape to report not ok")
	}
}

func TestFileElements(t *testing.T) {
	raw := json.RawMessage(`[{"name":"a.pdf","type":"pdf"}]`)
	els := FileElements(raw)
	if len(els) != 1 || els[0].Name != "a.pdf" {
		t.Fatalf("FileElements = %+v", els)
	}
}
