// Package cacheerr defines the sentinel error kinds shared by the cache,
// filter, and executor layers (spec §7).
package cacheerr

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Callers distinguish these with errors.Is, never by
// inspecting message text.
var (
	// ErrValidation indicates a filter operator/type mismatch in strict
	// mode, a malformed filter tree, or an unknown comparison operator.
	ErrValidation = errors.New("validation error")

	// ErrCacheUnavailable indicates storage I/O failed; the caller should
	// treat the cache as absent and fall back to the upstream fetch.
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrSchemaMismatch indicates put_records received a schema that is
	// structurally incompatible and the atomic clear could not complete.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrNotFound indicates get_entity found no matching key. This is a
	// normal outcome, not a logged error.
	ErrNotFound = errors.New("not found")
)

// Wrap attaches operation context to an error while preserving errors.Is
// matching against the sentinels above.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Wrapf is Wrap with a formatted operation description.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsCacheUnavailable reports whether err is or wraps ErrCacheUnavailable.
func IsCacheUnavailable(err error) bool { return errors.Is(err, ErrCacheUnavailable) }

// IsValidation reports whether err is or wraps ErrValidation.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsSchemaMismatch reports whether err is or wraps ErrSchemaMismatch.
func IsSchemaMismatch(err error) bool { return errors.Is(err, ErrSchemaMismatch) }
