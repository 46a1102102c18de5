package feed

import (
	"fmt"
	"regexp"
	"strings"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Valid reports whether d is asc or desc.
func (d Direction) Valid() bool { return d == Asc || d == Desc }

// SortField is one (field, direction) pair of a SortConfig.
type SortField struct {
	Field     string
	Direction Direction
}

func (f SortField) String() string { return f.Field + ":" + string(f.Direction) }

// SortConfig is a validated, ordered, non-empty list of sort fields.
// The zero value is not usable; build one with NewSortConfig or ParseSortConfig.
type SortConfig struct {
	fields []SortField
}

var sortFieldRE = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// NewSortConfig validates fields and returns a SortConfig.
func NewSortConfig(fields ...SortField) (SortConfig, error) {
	if len(fields) == 0 {
		return SortConfig{}, OpError{Op: "feed.NewSortConfig", Kind: ErrInvalidSort, Msg: "no fields"}
	}

	seen := make(map[string]struct{}, len(fields))
	out := make([]SortField, 0, len(fields))
	for _, f := range fields {
		f.Field = strings.TrimSpace(f.Field)
		if !sortFieldRE.MatchString(f.Field) {
			return SortConfig{}, OpError{Op: "feed.NewSortConfig", Kind: ErrInvalidSort, Msg: fmt.Sprintf("bad field %q", f.Field)}
		}
		if !f.Direction.Valid() {
			return SortConfig{}, OpError{Op: "feed.NewSortConfig", Kind: ErrInvalidSort, Msg: fmt.Sprintf("bad direction %q for %s", f.Direction, f.Field)}
		}
		if _, dup := seen[f.Field]; dup {
			return SortConfig{}, OpError{Op: "feed.NewSortConfig", Kind: ErrInvalidSort, Msg: fmt.Sprintf("duplicate field %s", f.Field)}
		}
		seen[f.Field] = struct{}{}
		out = append(out, f)
	}
	return SortConfig{fields: out}, nil
}

// MustSortConfig is NewSortConfig for package-level defaults. It panics on invalid input.
func MustSortConfig(fields ...SortField) SortConfig {
	c, err := NewSortConfig(fields...)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseSortConfig parses "field[:dir],field[:dir]". A missing direction means asc.
func ParseSortConfig(s string) (SortConfig, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return SortConfig{}, OpError{Op: "feed.ParseSortConfig", Kind: ErrInvalidSort, Msg: "empty"}
	}

	parts := strings.Split(s, ",")
	fields := make([]SortField, 0, len(parts))
	for _, p := range parts {
		name, dir, found := strings.Cut(strings.TrimSpace(p), ":")
		d := Asc
		if found {
			d = Direction(strings.ToLower(strings.TrimSpace(dir)))
		}
		fields = append(fields, SortField{Field: strings.ToLower(strings.TrimSpace(name)), Direction: d})
	}
	return NewSortConfig(fields...)
}

// Fields returns a copy of the configured fields.
func (c SortConfig) Fields() []SortField {
	return append([]SortField(nil), c.fields...)
}

// Len returns the number of fields.
func (c SortConfig) Len() int { return len(c.fields) }

// IsZero reports whether c was never built.
func (c SortConfig) IsZero() bool { return len(c.fields) == 0 }

// Has reports whether field is part of the configuration.
func (c SortConfig) Has(field string) bool {
	for _, f := range c.fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// Last returns the final (least significant) field.
func (c SortConfig) Last() SortField {
	if len(c.fields) == 0 {
		return SortField{}
	}
	return c.fields[len(c.fields)-1]
}

// With returns a new config with f appended.
func (c SortConfig) With(f SortField) (SortConfig, error) {
	return NewSortConfig(append(c.Fields(), f)...)
}

// Fingerprint identifies the configuration. Cursors carry it so that replaying
// a cursor under another configuration can be detected.
func (c SortConfig) Fingerprint() string {
	parts := make([]string, len(c.fields))
	for i, f := range c.fields {
		parts[i] = f.String()
	}
	return strings.Join(parts, ",")
}

func (c SortConfig) String() string { return c.Fingerprint() }
