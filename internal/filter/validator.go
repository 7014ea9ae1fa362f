package filter

import (
	"fmt"

	"github.com/Grupo-AFAL/smartsuite-bridge/internal/cacheerr"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/fieldtypes"
)

// suggestions maps a (family, comparison) pair observed on the wrong
// family to the operator the caller probably meant (spec §4.4).
var suggestions = map[string]map[string]string{
	string(fieldtypes.FamilyMultiSelect): {
		"is":        "has_any_of",
		"is_any_of": "has_any_of",
	},
	string(fieldtypes.FamilySingleSelect): {
		"has_any_of": "is_any_of",
	},
	string(fieldtypes.FamilyNumeric): {
		"contains": "is_equal_to",
	},
	string(fieldtypes.FamilyText): {
		"is_equal_to":     "is",
		"is_greater_than": "is",
		"is_less_than":    "is",
		"is_not_equal_to": "is_not",
	},
}

// validate checks one predicate's (field_slug, operator, field_type)
// triple against the registry. strict controls whether an unknown
// operator fails outright or merely warns.
func validate(n Node, fieldType string, strict bool, c *collector) error {
	desc, known := fieldtypes.Lookup(fieldType)
	if !known || desc.FormulaReturn {
		// Unknown or formula-return types cannot be validated statically;
		// validation is skipped and the predicate compiles best-effort.
		return nil
	}

	if desc.Operators[n.Comparison] {
		return nil
	}

	suggestion := suggestions[string(desc.Family)][n.Comparison]
	msg := fmt.Sprintf("operator %q is not valid for field %q (type %q)", n.Comparison, n.Field, fieldType)

	if strict {
		if suggestion != "" {
			msg += fmt.Sprintf("; did you mean %q?", suggestion)
		}
		return cacheerr.Wrapf(cacheerr.ErrValidation, "%s", msg)
	}

	c.add(Warning{
		Field:      n.Field,
		Comparison: n.Comparison,
		Message:    msg,
		Suggestion: suggestion,
	})
	return nil
}
