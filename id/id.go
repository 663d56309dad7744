// Package id defines the prefixed identity types for Hangfire entities.
//
// Every entity uses a single ID struct with a prefix that identifies the
// entity type. IDs are K-sortable (UUIDv7-based), globally unique, and
// URL-safe in the format "prefix_suffix", where the suffix is the
// 32-character lowercase hex form of the UUID.
package id

import (
	"database/sql/driver"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Prefix identifies the entity type encoded in an ID.
type Prefix string

// Prefix constants for all Hangfire entity types.
const (
	PrefixJob    Prefix = "job"
	PrefixServer Prefix = "srv"
)

const maxPrefixLen = 63

// ID is the primary identifier type for all Hangfire entities.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	prefix Prefix
	inner  uuid.UUID
	valid  bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is invalid or the random source fails (programming
// or environment error).
func New(prefix Prefix) ID {
	if err := validatePrefix(string(prefix)); err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	u, err := uuid.NewV7()
	if err != nil {
		panic(fmt.Sprintf("id: generate: %v", err))
	}

	return ID{prefix: prefix, inner: u, valid: true}
}

// Parse parses an ID string (e.g., "job_01928c3a5b7e7c2e9d4f1a2b3c4d5e6f")
// into an ID. Returns an error if the string is not valid.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	sep := strings.LastIndexByte(s, '_')
	if sep < 0 {
		return Nil, fmt.Errorf("id: parse %q: missing prefix separator", s)
	}

	prefix, suffix := s[:sep], s[sep+1:]
	if err := validatePrefix(prefix); err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	if len(suffix) != 32 {
		return Nil, fmt.Errorf("id: parse %q: suffix must be 32 hex characters", s)
	}

	u, err := uuid.Parse(suffix)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{prefix: Prefix(prefix), inner: u, valid: true}, nil
}

// ParseWithPrefix parses an ID string and validates that its prefix
// matches the expected value.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}

	return parsed, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded ID values.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

func validatePrefix(p string) error {
	if p == "" || len(p) > maxPrefixLen {
		return fmt.Errorf("prefix length must be 1..%d", maxPrefixLen)
	}
	for _, r := range p {
		if r < 'a' || r > 'z' {
			return fmt.Errorf("prefix must be lowercase ascii letters")
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Type aliases
// ──────────────────────────────────────────────────

// JobID is a type-safe identifier for jobs (prefix: "job").
type JobID = ID

// ServerID is a type-safe identifier for processing servers (prefix: "srv").
type ServerID = ID

// ──────────────────────────────────────────────────
// Convenience constructors and parsers
// ──────────────────────────────────────────────────

// NewJobID generates a new unique job ID.
func NewJobID() ID { return New(PrefixJob) }

// NewServerID generates a new unique server ID.
func NewServerID() ID { return New(PrefixServer) }

// ParseJobID parses a string and validates the "job" prefix.
func ParseJobID(s string) (ID, error) { return ParseWithPrefix(s, PrefixJob) }

// ParseServerID parses a string and validates the "srv" prefix.
func ParseServerID(s string) (ID, error) { return ParseWithPrefix(s, PrefixServer) }

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns the full string representation (prefix_suffix).
// Returns an empty string for the Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return string(i.prefix) + "_" + hex.EncodeToString(i.inner[:])
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return i.prefix
}

// UUID returns the underlying UUID.
func (i ID) UUID() uuid.UUID { return i.inner }

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}

// Value implements driver.Valuer for database storage.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}

	return i.String(), nil
}

// Scan implements sql.Scanner for database retrieval.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil

		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
