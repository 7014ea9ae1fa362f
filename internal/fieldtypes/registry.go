// Package fieldtypes is the static Field-Type Registry (spec §4.3): for
// each field-type name it records the storage shape, the valid
// comparison operators, the TTL category, and the indexing preference.
// It is an immutable process-wide constant (spec §5).
package fieldtypes

// StorageCategory classifies how a field's value is physically shaped
// in the opaque JSON data column.
type StorageCategory string

const (
	ScalarText      StorageCategory = "scalar_text"
	ScalarNumeric   StorageCategory = "scalar_numeric"
	ScalarBoolean   StorageCategory = "scalar_boolean"
	NestedStatus    StorageCategory = "nested_status"
	NestedDate      StorageCategory = "nested_date"
	NestedDateRange StorageCategory = "nested_date_range"
	NestedDueDate   StorageCategory = "nested_due_date"
	ArrayOfScalars  StorageCategory = "array_of_scalars"
	ArrayOfObjects  StorageCategory = "array_of_objects"
	NestedDocument  StorageCategory = "nested_document"
	SystemReadonly  StorageCategory = "system_readonly"
)

// TTLCategory groups field types by how quickly their cached values go
// stale.
type TTLCategory string

const (
	TTLLong      TTLCategory = "long"       // system-readonly, static text
	TTLMedium    TTLCategory = "medium"     // metadata: status, assigned-to
	TTLShort     TTLCategory = "short"      // activity: counts, timestamps
	TTLVeryShort TTLCategory = "very_short" // time-tracking
)

// IndexPreference hints whether a field is worth materializing into a
// dedicated column for faster querying.
type IndexPreference string

const (
	IndexAlways      IndexPreference = "always"
	IndexConditional IndexPreference = "conditional"
	IndexNever       IndexPreference = "never"
)

// Family groups field types into the operator families of spec §4.4.
type Family string

const (
	FamilyText         Family = "text"
	FamilyNumeric      Family = "numeric"
	FamilyDate         Family = "date"
	FamilyDueDate      Family = "due_date"
	FamilySingleSelect Family = "single_select"
	FamilyMultiSelect  Family = "multi_select"
	FamilyLinkedRecord Family = "linked_record"
	FamilyUser         Family = "user"
	FamilyFile         Family = "file"
	FamilyYesNo        Family = "yes_no"
	// FamilyNone is used by field types with no defined comparison
	// operators (rich documents, opaque system fields).
	FamilyNone Family = ""
)

// Descriptor is everything the registry knows about one field type.
type Descriptor struct {
	Name    string
	Family  Family
	Storage StorageCategory
	TTL     TTLCategory
	Index   IndexPreference

	// Operators is the closed set of comparison operators valid for
	// this field type.
	Operators map[string]bool

	// LargeContent flags field types the shaper should warn about when
	// a caller requests them directly (spec §4.8).
	LargeContent bool

	// FormulaReturn marks field types whose concrete shape cannot be
	// inferred statically (formula results). Validation is skipped for
	// these (spec §4.4).
	FormulaReturn bool
}

func operatorSet(ops ...string) map[string]bool {
	m := make(map[string]bool, len(ops))
	for _, o := range ops {
		m[o] = true
	}
	return m
}

var (
	textOps         = operatorSet("is", "is_not", "contains", "not_contains", "is_empty", "is_not_empty")
	numericOps      = operatorSet("is", "is_not", "is_equal_to", "is_not_equal_to", "is_greater_than", "is_less_than", "is_equal_or_greater_than", "is_equal_or_less_than", "is_empty", "is_not_empty")
	dateOps         = operatorSet("is", "is_not", "is_before", "is_after", "is_on_or_before", "is_on_or_after", "is_empty", "is_not_empty")
	dueDateOps      = operatorSet("is", "is_not", "is_before", "is_after", "is_on_or_before", "is_on_or_after", "is_empty", "is_not_empty", "is_overdue", "is_not_overdue")
	singleSelectOps = operatorSet("is", "is_not", "is_any_of", "is_none_of", "is_empty", "is_not_empty")
	multiSelectOps  = operatorSet("has_any_of", "has_all_of", "is_exactly", "has_none_of", "is_empty", "is_not_empty")
	linkedRecordOps = operatorSet("contains", "not_contains", "has_any_of", "has_all_of", "is_exactly", "has_none_of", "is_empty", "is_not_empty")
	userOps         = operatorSet("has_any_of", "has_all_of", "is_exactly", "has_none_of", "is_empty", "is_not_empty")
	fileOps         = operatorSet("file_name_contains", "file_type_is", "is_empty", "is_not_empty")
	yesNoOps        = operatorSet("is")
)

// registry is keyed by field-type name. Names mirror the remote's own
// vocabulary (text, numeric families, select families, ...).
var registry = map[string]Descriptor{
	"text": {
		Name: "text", Family: FamilyText, Storage: ScalarText,
		TTL: TTLLong, Index: IndexAlways, Operators: textOps,
	},
	"long_text": {
		Name: "long_text", Family: FamilyText, Storage: ScalarText,
		TTL: TTLLong, Index: IndexConditional, Operators: textOps, LargeContent: true,
	},
	"number": {
		Name: "number", Family: FamilyNumeric, Storage: ScalarNumeric,
		TTL: TTLMedium, Index: IndexAlways, Operators: numericOps,
	},
	"currency": {
		Name: "currency", Family: FamilyNumeric, Storage: ScalarNumeric,
		TTL: TTLMedium, Index: IndexAlways, Operators: numericOps,
	},
	"percent": {
		Name: "percent", Family: FamilyNumeric, Storage: ScalarNumeric,
		TTL: TTLMedium, Index: IndexAlways, Operators: numericOps,
	},
	"rating": {
		Name: "rating", Family: FamilyNumeric, Storage: ScalarNumeric,
		TTL: TTLMedium, Index: IndexConditional, Operators: numericOps,
	},
	"duration": {
		Name: "duration", Family: FamilyNumeric, Storage: ScalarNumeric,
		TTL: TTLVeryShort, Index: IndexConditional, Operators: numericOps,
	},
	"date": {
		Name: "date", Family: FamilyDate, Storage: NestedDate,
		TTL: TTLMedium, Index: IndexConditional, Operators: dateOps,
	},
	"date_range": {
		Name: "date_range", Family: FamilyDate, Storage: NestedDateRange,
		TTL: TTLMedium, Index: IndexConditional, Operators: dateOps,
	},
	"due_date": {
		Name: "due_date", Family: FamilyDueDate, Storage: NestedDueDate,
		TTL: TTLShort, Index: IndexConditional, Operators: dueDateOps,
	},
	"status": {
		Name: "status", Family: FamilySingleSelect, Storage: NestedStatus,
		TTL: TTLMedium, Index: IndexConditional, Operators: singleSelectOps,
	},
	"single_select": {
		Name: "single_select", Family: FamilySingleSelect, Storage: ScalarText,
		TTL: TTLMedium, Index: IndexConditional, Operators: singleSelectOps,
	},
	"multi_select": {
		Name: "multi_select", Family: FamilyMultiSelect, Storage: ArrayOfScalars,
		TTL: TTLMedium, Index: IndexConditional, Operators: multiSelectOps,
	},
	"tags": {
		Name: "tags", Family: FamilyMultiSelect, Storage: ArrayOfScalars,
		TTL: TTLMedium, Index: IndexConditional, Operators: multiSelectOps,
	},
	"linked_record": {
		Name: "linked_record", Family: FamilyLinkedRecord, Storage: ArrayOfScalars,
		TTL: TTLMedium, Index: IndexConditional, Operators: linkedRecordOps,
	},
	"user": {
		Name: "user", Family: FamilyUser, Storage: ArrayOfObjects,
		TTL: TTLMedium, Index: IndexConditional, Operators: userOps,
	},
	"assigned_to": {
		Name: "assigned_to", Family: FamilyUser, Storage: ArrayOfObjects,
		TTL: TTLMedium, Index: IndexConditional, Operators: userOps,
	},
	"file": {
		Name: "file", Family: FamilyFile, Storage: ArrayOfObjects,
		TTL: TTLShort, Index: IndexNever, Operators: fileOps, LargeContent: true,
	},
	"yes_no": {
		Name: "yes_no", Family: FamilyYesNo, Storage: ScalarBoolean,
		TTL: TTLMedium, Index: IndexAlways, Operators: yesNoOps,
	},
	"rich_document": {
		Name: "rich_document", Family: FamilyNone, Storage: NestedDocument,
		TTL: TTLLong, Index: IndexNever, Operators: nil, LargeContent: true,
	},
	"system": {
		Name: "system", Family: FamilyNone, Storage: SystemReadonly,
		TTL: TTLLong, Index: IndexNever, Operators: nil,
	},
	"formula": {
		Name: "formula", Family: FamilyNone, Storage: ScalarText,
		TTL: TTLShort, Index: IndexNever, Operators: nil, FormulaReturn: true,
	},
}

// Lookup returns the descriptor for fieldType and whether it is known.
func Lookup(fieldType string) (Descriptor, bool) {
	d, ok := registry[fieldType]
	return d, ok
}

// ValidOperators returns the operator set for fieldType, or nil if the
// type is unknown or has no defined operators.
func ValidOperators(fieldType string) map[string]bool {
	d, ok := registry[fieldType]
	if !ok {
		return nil
	}
	return d.Operators
}

// TTLSeconds converts a TTL category to a concrete duration in seconds,
// given the medium-category default configured at startup (spec §6).
func TTLSeconds(category TTLCategory, defaultMediumSeconds int) int {
	switch category {
	case TTLLong:
		return defaultMediumSeconds * 12
	case TTLMedium:
		return defaultMediumSeconds
	case TTLShort:
		return defaultMediumSeconds / 6
	case TTLVeryShort:
		return defaultMediumSeconds / 30
	default:
		return defaultMediumSeconds
	}
}
