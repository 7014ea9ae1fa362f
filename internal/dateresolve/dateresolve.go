// Package dateresolve implements the Date-Mode Resolver (spec §4.2): it
// resolves symbolic date tokens ("today", "start_of_week", ...) to
// absolute ISO calendar dates.
package dateresolve

import (
	"encoding/json"
	"time"
)

// ISODateLayout is the fixed output (and recognized input) shape for
// resolved dates.
const ISODateLayout = "2006-01-02"

// modeValue is the shape accepted when a filter value arrives as a
// date-mode map rather than a plain string.
type modeValue struct {
	DateModeValue *string `json:"date_mode_value"`
	Date          *string `json:"date"`
	DateMode      *string `json:"date_mode"`
}

// Resolve resolves raw (a json.RawMessage holding either a plain JSON
// string or a date-mode object) to an ISO calendar date string, relative
// to now. Priority: date_mode_value > date > resolved date_mode. Unknown
// date_mode tokens pass through unchanged. Resolution is idempotent:
// resolving an already-resolved plain ISO date returns it unchanged.
func Resolve(raw json.RawMessage, now time.Time) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}

	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return ResolveToken(plain, now), true
	}

	var mv modeValue
	if err := json.Unmarshal(raw, &mv); err != nil {
		return "", false
	}

	if mv.DateModeValue != nil {
		return *mv.DateModeValue, true
	}
	if mv.Date != nil {
		return *mv.Date, true
	}
	if mv.DateMode != nil {
		return ResolveToken(*mv.DateMode, now), true
	}
	return "", false
}

// ResolveToken resolves a single date_mode token string to an ISO date,
// relative to now. Tokens not in the recognized set pass through
// unchanged (this also makes resolution idempotent: feeding an already
// resolved "YYYY-MM-DD" string back in returns it unchanged, since it
// matches no recognized token).
func ResolveToken(token string, now time.Time) string {
	today := truncateToDate(now)

	switch token {
	case "today":
		return format(today)
	case "yesterday":
		return format(today.AddDate(0, 0, -1))
	case "tomorrow":
		return format(today.AddDate(0, 0, 1))
	case "one_week_ago":
		return format(today.AddDate(0, 0, -7))
	case "one_week_from_now":
		return format(today.AddDate(0, 0, 7))
	case "one_month_ago":
		return format(today.AddDate(0, -1, 0))
	case "one_month_from_now":
		return format(today.AddDate(0, 1, 0))
	case "start_of_week":
		return format(startOfWeek(today))
	case "end_of_week":
		return format(startOfWeek(today).AddDate(0, 0, 6))
	case "start_of_month":
		return format(time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location()))
	case "end_of_month":
		firstOfNext := time.Date(today.Year(), today.Month()+1, 1, 0, 0, 0, 0, today.Location())
		return format(firstOfNext.AddDate(0, 0, -1))
	case "exact_date":
		// exact_date requires date_mode_value, which takes priority in
		// Resolve and never reaches here as the sole signal; passing it
		// through bare leaves it unresolved deliberately.
		return token
	default:
		return token
	}
}

func truncateToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// startOfWeek returns the Sunday on or before t (Sunday-based week).
func startOfWeek(t time.Time) time.Time {
	offset := int(t.Weekday()) // Sunday == 0
	return t.AddDate(0, 0, -offset)
}

func format(t time.Time) string {
	return t.Format(ISODateLayout)
}

// IsISODate reports whether s matches the YYYY-MM-DD calendar shape.
func IsISODate(s string) bool {
	if len(s) != len(ISODateLayout) {
		return false
	}
	_, err := time.Parse(ISODateLayout, s)
	return err == nil
}
