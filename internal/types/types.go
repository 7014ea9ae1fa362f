// Package types defines the domain entities cached and queried by this
// bridge: solutions, tables, table schemas, records, members, teams,
// views, and deleted-record tombstones (spec §3).
package types

import (
	"encoding/json"
	"time"
)

// EntityKind identifies one of the cacheable entity classes in the Cache
// Store (spec §4.6). Records are keyed by (table_id, record_id) rather
// than a bare id and are handled through dedicated record operations
// instead of the generic entity ones.
type EntityKind string

const (
	KindSolution      EntityKind = "solution"
	KindTable         EntityKind = "table"
	KindTableSchema   EntityKind = "table_schema"
	KindMember        EntityKind = "member"
	KindTeam          EntityKind = "team"
	KindView          EntityKind = "view"
	KindDeletedRecord EntityKind = "deleted_record"
)

// Permissions carries the subset of a Solution's ACL this bridge cares
// about: the owning members, used by name-based fuzzy lookups that must
// respect solution ownership.
type Permissions struct {
	Owners []string `json:"owners,omitempty"`
}

// Solution is a top-level workspace container that owns zero or more
// tables.
type Solution struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	LogoURL     string          `json:"logo_url,omitempty"`
	LogoColor   string          `json:"logo_color,omitempty"`
	Activity    json.RawMessage `json:"activity,omitempty"`
	Permissions *Permissions    `json:"permissions,omitempty"`
}

// Field is a single column descriptor in a Table's structure. Slug is
// the stable machine identifier; Label is the display name shown to
// users. FieldType is drawn from the closed registry in
// internal/fieldtypes. Params holds type-specific shape (select choices,
// numeric bounds, linked-table target) and is passed through opaquely.
type Field struct {
	Slug      string          `json:"slug"`
	Label     string          `json:"label"`
	FieldType string          `json:"field_type"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// Table belongs to exactly one Solution and carries an ordered field
// list (its "structure").
type Table struct {
	ID         string  `json:"id"`
	SolutionID string  `json:"solution_id"`
	Name       string  `json:"name"`
	Structure  []Field `json:"structure,omitempty"`
}

// FieldBySlug returns the field descriptor for slug, or false if absent.
func (t Table) FieldBySlug(slug string) (Field, bool) {
	for _, f := range t.Structure {
		if f.Slug == slug {
			return f, true
		}
	}
	return Field{}, false
}

// Record is a semi-structured row in a Table. Data is keyed by field
// slug; each value's concrete JSON shape is determined by its field's
// type (spec §3: nested-object field types are always stored as the
// fully nested structure the remote supplies, never flattened).
type Record struct {
	ID      string                     `json:"id"`
	TableID string                     `json:"table_id"`
	Data    map[string]json.RawMessage `json:"data"`
}

// Get returns the raw JSON for a field slug, or nil if absent.
func (r Record) Get(slug string) json.RawMessage {
	if r.Data == nil {
		return nil
	}
	return r.Data[slug]
}

// Member is a directory entity: a person who can own solutions, be
// assigned to records, or belong to a team.
type Member struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	FirstName string   `json:"first_name,omitempty"`
	LastName  string   `json:"last_name,omitempty"`
	Timezone  string   `json:"timezone,omitempty"`
	TeamIDs   []string `json:"team_ids,omitempty"`
}

// FullName joins first and last name with a single space, trimming
// either half if absent.
func (m Member) FullName() string {
	switch {
	case m.FirstName != "" && m.LastName != "":
		return m.FirstName + " " + m.LastName
	case m.FirstName != "":
		return m.FirstName
	default:
		return m.LastName
	}
}

// Team is a directory entity grouping members.
type Team struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	MemberIDs []string `json:"member_ids,omitempty"`
}

// SortField is one element of a list-sort plan: a field path and
// direction. Null sort keys order last regardless of Direction (spec
// §4.7).
type SortField struct {
	Field     string `json:"field"`
	Direction string `json:"direction"` // "asc" | "desc"
}

// Ascending reports whether this sort field orders ascending (the
// default when Direction is empty or unrecognized).
func (s SortField) Ascending() bool { return s.Direction != "desc" }

// View is a named, persisted filter+sort+paging plan attached to a
// Table. Filter is kept as raw JSON since its shape is the filter tree
// defined in internal/filter, and View lives in internal/types to avoid
// filter depending back on types for entity definitions.
type View struct {
	ID      string          `json:"id"`
	TableID string          `json:"table_id"`
	Name    string          `json:"name"`
	Filter  json.RawMessage `json:"filter,omitempty"`
	Sort    []SortField     `json:"sort,omitempty"`
	Limit   int             `json:"limit,omitempty"`
	Offset  int             `json:"offset,omitempty"`
}

// DeletedRecord is a tombstone: a Record snapshot plus deletion
// metadata, enumerable per Solution.
type DeletedRecord struct {
	Record     Record    `json:"record"`
	SolutionID string    `json:"solution_id"`
	DeletedAt  time.Time `json:"deleted_at"`
	DeletedBy  string    `json:"deleted_by,omitempty"`
}

// CacheEnvelope wraps every cached entity with freshness bookkeeping.
// Invariant: ExpiresAt must be strictly after CachedAt.
type CacheEnvelope struct {
	CachedAt   time.Time `json:"cached_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	SourceHash string    `json:"source_hash,omitempty"`
}

// Valid reports whether the envelope has not yet expired at now.
func (e CacheEnvelope) Valid(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// NewEnvelope builds a CacheEnvelope with expiry ttl after cachedAt.
func NewEnvelope(cachedAt time.Time, ttl time.Duration, sourceHash string) CacheEnvelope {
	return CacheEnvelope{
		CachedAt:   cachedAt,
		ExpiresAt:  cachedAt.Add(ttl),
		SourceHash: sourceHash,
	}
}

// RecordState is the lifecycle state of a Table's record cache (spec
// §4.6's state machine): absent, populating, valid, or expired.
type RecordState string

const (
	RecordStateAbsent     RecordState = "absent"
	RecordStatePopulating RecordState = "populating"
	RecordStateValid      RecordState = "valid"
	RecordStateExpired    RecordState = "expired"
)
