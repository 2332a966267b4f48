// Package schema owns the canonical column vocabulary. It renames raw
// source columns into the namespaced scheme ([GEO]_*, [CENSUS]_*,
// [ELECTION]_*), drops everything the rename maps do not recognize, and
// attaches the column metadata record (tag, role, subset, geographic
// rank) that every later stage consults instead of parsing names.
package schema

import (
	"fmt"
	"strings"

	"geoetl/internal/table"
)

// Canonical name prefixes.
const (
	PrefixGeo      = "[GEO]_"
	PrefixCensus   = "[CENSUS]_"
	PrefixElection = "[ELECTION]_"
)

// SchemaMismatchError reports required canonical columns missing after
// renaming. File is filled by the caller that knows which file was being
// normalized.
type SchemaMismatchError struct {
	File    string
	Missing []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch in %s: missing %s", e.File, strings.Join(e.Missing, ", "))
}

// Entry maps one raw header to its canonical column.
type Entry struct {
	From     string
	To       string
	Meta     table.Meta
	Required bool
}

// Map is an ordered rename map; Apply emits columns in entry order, so
// the map doubles as the canonical column order.
type Map struct {
	Entries []Entry
}

// Apply renames and filters t into canonical form. Columns already
// carrying their canonical name are accepted as-is, which makes Apply
// idempotent. Unmapped columns (including reader-generated placeholder
// names) are dropped. Missing required columns produce a
// *SchemaMismatchError with an empty File.
func (m Map) Apply(t *table.Table) (*table.Table, error) {
	out := table.New()
	var missing []string
	for _, e := range m.Entries {
		src := t.Col(e.From)
		if src == nil {
			src = t.Col(e.To)
		}
		if src == nil {
			if e.Required {
				missing = append(missing, e.To)
			}
			continue
		}
		c := *src
		c.Name = e.To
		c.Meta = e.Meta
		if err := out.Add(c); err != nil {
			return nil, err
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaMismatchError{Missing: missing}
	}
	return out, nil
}

// Require verifies the named canonical columns exist in t, returning a
// *SchemaMismatchError listing the absent ones.
func Require(t *table.Table, names ...string) error {
	var missing []string
	for _, n := range names {
		if !t.Has(n) {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return &SchemaMismatchError{Missing: missing}
	}
	return nil
}
