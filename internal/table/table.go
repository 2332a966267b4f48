// Package table defines the column-oriented dataset that the pipeline
// stages hand to each other. A Table is an ordered set of equally long
// Columns; a Column owns its values plus a metadata record describing
// provenance (tag), role and geographic granularity. Stages consult the
// metadata instead of re-deriving meaning from column names.
package table

import (
	"fmt"
	"math"
	"strings"
)

// Tag is the provenance namespace of a canonical column.
type Tag uint8

const (
	TagNone Tag = iota
	TagGeo
	TagCensus
	TagElection
)

// Role describes how later stages may treat a column. Identifiers are
// never summed; candidate/blank/null columns and the electorate/turnout
// counters drive the vote-share derivation.
type Role uint8

const (
	RoleNone Role = iota
	RoleID
	RoleLabel
	RoleMeasure
	RoleTotal
	RoleCandidate
	RoleBlankVotes
	RoleNullVotes
	RoleElectorate
	RoleTurnout
	RoleAbstentions
)

// Meta is attached to every canonical column by the schema normalizer.
//
// Subset carries the census source-table tag (BASICO, DOMICILIO01, ...)
// used for group classification. Rank orders geographic granularity for
// TagGeo columns: lower is finer, zero means unranked.
type Meta struct {
	Tag    Tag
	Role   Role
	Subset string
	Rank   int
}

// Kind selects a Column's storage.
type Kind uint8

const (
	String Kind = iota
	Float
)

func (k Kind) String() string {
	if k == Float {
		return "float"
	}
	return "string"
}

// Column is a single named column. Exactly one of Str/Num is populated,
// matching Kind. Missing values are "" for String and NaN for Float.
type Column struct {
	Name string
	Meta Meta
	Kind Kind
	Str  []string
	Num  []float64
}

// NewStr returns a String column over vals.
func NewStr(name string, vals []string) Column {
	return Column{Name: name, Kind: String, Str: vals}
}

// NewNum returns a Float column over vals.
func NewNum(name string, vals []float64) Column {
	return Column{Name: name, Kind: Float, Num: vals}
}

func (c *Column) Len() int {
	if c.Kind == Float {
		return len(c.Num)
	}
	return len(c.Str)
}

// Missing reports whether row i holds no value.
func (c *Column) Missing(i int) bool {
	if c.Kind == Float {
		return math.IsNaN(c.Num[i])
	}
	return c.Str[i] == ""
}

// Cell renders row i for CSV output and for key building. Missing values
// render as the empty string; floats use the shortest exact decimal form.
func (c *Column) Cell(i int) string {
	if c.Kind == String {
		return c.Str[i]
	}
	return FormatNumber(c.Num[i])
}

// Table is an ordered collection of columns of identical length.
// Column names are unique; Add rejects duplicates rather than
// overwriting, since a silent overwrite would hide a broken rename map.
type Table struct {
	cols  []Column
	index map[string]int
}

func New() *Table {
	return &Table{index: make(map[string]int)}
}

// NumRows returns the row count (zero for a table with no columns).
func (t *Table) NumRows() int {
	if len(t.cols) == 0 {
		return 0
	}
	return t.cols[0].Len()
}

func (t *Table) NumCols() int { return len(t.cols) }

// Names returns column names in table order.
func (t *Table) Names() []string {
	out := make([]string, len(t.cols))
	for i := range t.cols {
		out[i] = t.cols[i].Name
	}
	return out
}

func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Col returns the named column, or nil when absent. The pointer stays
// valid until the next structural change (Add/Drop/Select).
func (t *Table) Col(name string) *Column {
	i, ok := t.index[name]
	if !ok {
		return nil
	}
	return &t.cols[i]
}

// ColAt returns the column at position i in table order.
func (t *Table) ColAt(i int) *Column { return &t.cols[i] }

// Add appends a column. The column must match the table's row count
// (any length is accepted for the first column) and its name must be new.
func (t *Table) Add(c Column) error {
	if _, dup := t.index[c.Name]; dup {
		return fmt.Errorf("table: duplicate column %q", c.Name)
	}
	if len(t.cols) > 0 && c.Len() != t.NumRows() {
		return fmt.Errorf("table: column %q has %d rows, want %d", c.Name, c.Len(), t.NumRows())
	}
	t.index[c.Name] = len(t.cols)
	t.cols = append(t.cols, c)
	return nil
}

// Drop removes the named columns; unknown names are ignored.
func (t *Table) Drop(names ...string) {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	kept := t.cols[:0]
	for i := range t.cols {
		if !drop[t.cols[i].Name] {
			kept = append(kept, t.cols[i])
		}
	}
	t.cols = kept
	t.reindex()
}

// Rename changes a column's name in place. Renaming onto an existing
// name is rejected.
func (t *Table) Rename(from, to string) error {
	i, ok := t.index[from]
	if !ok {
		return fmt.Errorf("table: no column %q", from)
	}
	if from == to {
		return nil
	}
	if _, dup := t.index[to]; dup {
		return fmt.Errorf("table: rename %q: column %q already exists", from, to)
	}
	delete(t.index, from)
	t.cols[i].Name = to
	t.index[to] = i
	return nil
}

// Select returns a new table holding exactly the named columns, in the
// given order. Column storage is shared, not copied.
func (t *Table) Select(names []string) (*Table, error) {
	out := New()
	for _, n := range names {
		c := t.Col(n)
		if c == nil {
			return nil, fmt.Errorf("table: no column %q", n)
		}
		if err := out.Add(*c); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := New()
	for i := range t.cols {
		c := t.cols[i]
		if c.Kind == Float {
			c.Num = append([]float64(nil), c.Num...)
		} else {
			c.Str = append([]string(nil), c.Str...)
		}
		out.cols = append(out.cols, c)
		out.index[c.Name] = i
	}
	return out
}

// keySep separates cells inside a composite key. The unit separator
// cannot appear in source data.
const keySep = "\x1f"

// KeyFunc returns a function rendering the key tuple of a row, for
// grouping and joining. It fails if any key column is absent.
func (t *Table) KeyFunc(keys []string) (func(row int) string, error) {
	cols := make([]*Column, len(keys))
	for i, k := range keys {
		c := t.Col(k)
		if c == nil {
			return nil, fmt.Errorf("table: key column %q not found", k)
		}
		cols[i] = c
	}
	return func(row int) string {
		parts := make([]string, len(cols))
		for i, c := range cols {
			parts[i] = c.Cell(row)
		}
		return strings.Join(parts, keySep)
	}, nil
}

// Filter returns a new table with only the rows where keep is true,
// preserving order. Storage is copied.
func (t *Table) Filter(keep []bool) *Table {
	out := New()
	for i := range t.cols {
		src := &t.cols[i]
		c := Column{Name: src.Name, Meta: src.Meta, Kind: src.Kind}
		if src.Kind == Float {
			c.Num = make([]float64, 0, len(keep))
			for r, k := range keep {
				if k {
					c.Num = append(c.Num, src.Num[r])
				}
			}
		} else {
			c.Str = make([]string, 0, len(keep))
			for r, k := range keep {
				if k {
					c.Str = append(c.Str, src.Str[r])
				}
			}
		}
		out.index[c.Name] = len(out.cols)
		out.cols = append(out.cols, c)
	}
	return out
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.cols))
	for i := range t.cols {
		t.index[t.cols[i].Name] = i
	}
}
