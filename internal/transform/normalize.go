package transform

import (
	"fmt"
	"math"

	"github.com/zeebo/xxh3"

	"geoetl/internal/table"
)

// divide is the ratio rule shared by every normalization step: division
// by zero or by a missing value propagates as missing, never as an
// error or an infinity. A unit with zero electorate has an undefined
// turnout rate, not an invalid one.
func divide(v, d float64) float64 {
	if math.IsNaN(v) || math.IsNaN(d) || d == 0 {
		return math.NaN()
	}
	return v / d
}

// DivideBy divides every named column row-wise by the total column. The
// total vector is snapshotted first, so a total that is itself a member
// of the group ends up at 1 while the rest of the group still sees the
// original denominator.
type DivideBy struct {
	Cols  []string
	Total string
}

func (d DivideBy) Apply(t *table.Table) (*table.Table, error) {
	if len(d.Cols) == 0 {
		return t, nil
	}
	tc := t.Col(d.Total)
	if tc == nil {
		return nil, fmt.Errorf("divide: total column %q not found", d.Total)
	}
	if tc.Kind != table.Float {
		return nil, fmt.Errorf("divide: total column %q is not numeric", d.Total)
	}
	total := append([]float64(nil), tc.Num...)

	out := t.Clone()
	for _, name := range d.Cols {
		c := out.Col(name)
		if c == nil {
			return nil, fmt.Errorf("divide: column %q not found", name)
		}
		if c.Kind != table.Float {
			return nil, fmt.Errorf("divide: column %q is not numeric", name)
		}
		for r := range c.Num {
			c.Num[r] = divide(c.Num[r], total[r])
		}
	}
	return out, nil
}

// MinMax rescales the named columns into [0, 1] against their own
// observed minimum and maximum. A constant column rescales to missing
// (zero range), and missing cells stay missing. Columns not present are
// skipped; upstream pruning may have removed them.
type MinMax struct {
	Cols []string
}

func (m MinMax) Apply(t *table.Table) (*table.Table, error) {
	out := t.Clone()
	for _, name := range m.Cols {
		c := out.Col(name)
		if c == nil {
			continue
		}
		if c.Kind != table.Float {
			return nil, fmt.Errorf("minmax: column %q is not numeric", name)
		}
		lo, hi := math.NaN(), math.NaN()
		for _, v := range c.Num {
			if math.IsNaN(v) {
				continue
			}
			if math.IsNaN(lo) || v < lo {
				lo = v
			}
			if math.IsNaN(hi) || v > hi {
				hi = v
			}
		}
		span := hi - lo
		for r, v := range c.Num {
			c.Num[r] = divide(v-lo, span)
		}
	}
	return out, nil
}

// DropSparse drops rows and then columns whose share of present values
// falls below the configured percentage. Both cutoffs are computed from
// the table's shape before any dropping, matching the source system.
type DropSparse struct {
	Percent float64
}

func (d DropSparse) Apply(t *table.Table) (*table.Table, error) {
	rows, cols := t.NumRows(), t.NumCols()
	if rows == 0 || cols == 0 {
		return t, nil
	}
	needPerRow := int(d.Percent * float64(cols) / 100)
	needPerCol := int(d.Percent * float64(rows) / 100)

	keep := make([]bool, rows)
	for r := 0; r < rows; r++ {
		present := 0
		for i := 0; i < cols; i++ {
			if !t.ColAt(i).Missing(r) {
				present++
			}
		}
		keep[r] = present >= needPerRow
	}
	out := t.Filter(keep)

	var drop []string
	for i := 0; i < out.NumCols(); i++ {
		c := out.ColAt(i)
		present := 0
		for r := 0; r < out.NumRows(); r++ {
			if !c.Missing(r) {
				present++
			}
		}
		if present < needPerCol {
			drop = append(drop, c.Name)
		}
	}
	out.Drop(drop...)
	return out, nil
}

// PruneSaturated drops census measure columns whose every value exceeds
// the threshold. Such a column is high everywhere in the dataset and
// discriminates nothing. A missing cell keeps the column: it does not
// count as exceeding.
type PruneSaturated struct {
	Threshold float64
}

func (p PruneSaturated) Apply(t *table.Table) (*table.Table, error) {
	if t.NumRows() == 0 {
		return t, nil
	}
	var drop []string
	for i := 0; i < t.NumCols(); i++ {
		c := t.ColAt(i)
		if c.Meta.Tag != table.TagCensus || c.Kind != table.Float {
			continue
		}
		all := true
		for _, v := range c.Num {
			if math.IsNaN(v) || v <= p.Threshold {
				all = false
				break
			}
		}
		if all {
			drop = append(drop, c.Name)
		}
	}
	out := t.Clone()
	out.Drop(drop...)
	return out, nil
}

// PruneDuplicateCols removes columns whose values are identical to an
// earlier column across every row (missing equals missing). Candidate
// pairs are found by hashing each column's rendered cells, then
// confirmed cell-by-cell before dropping.
type PruneDuplicateCols struct{}

func (PruneDuplicateCols) Apply(t *table.Table) (*table.Table, error) {
	type keeper struct {
		idx  int
		hash uint64
	}
	var keepers []keeper
	var drop []string
	for i := 0; i < t.NumCols(); i++ {
		c := t.ColAt(i)
		h := colHash(c)
		dup := false
		for _, k := range keepers {
			if k.hash == h && sameValues(t.ColAt(k.idx), c) {
				dup = true
				break
			}
		}
		if dup {
			drop = append(drop, c.Name)
			continue
		}
		keepers = append(keepers, keeper{idx: i, hash: h})
	}
	out := t.Clone()
	out.Drop(drop...)
	return out, nil
}

func colHash(c *table.Column) uint64 {
	h := xxh3.New()
	// Kind participates so "1" in a text column never matches 1.0.
	h.Write([]byte{byte(c.Kind)})
	for r := 0; r < c.Len(); r++ {
		h.WriteString(c.Cell(r))
		h.Write([]byte{0x1f})
	}
	return h.Sum64()
}

func sameValues(a, b *table.Column) bool {
	if a.Kind != b.Kind || a.Len() != b.Len() {
		return false
	}
	for r := 0; r < a.Len(); r++ {
		if a.Kind == table.Float {
			av, bv := a.Num[r], b.Num[r]
			if math.IsNaN(av) != math.IsNaN(bv) {
				return false
			}
			if !math.IsNaN(av) && av != bv {
				return false
			}
		} else if a.Str[r] != b.Str[r] {
			return false
		}
	}
	return true
}

// DropFinerGeo removes geographic columns ranked finer than the active
// aggregation level. After collapsing to a level, finer identifiers hold
// arbitrary survivors of the aggregation and must not be exposed.
type DropFinerGeo struct {
	Rank int
}

func (d DropFinerGeo) Apply(t *table.Table) (*table.Table, error) {
	var drop []string
	for i := 0; i < t.NumCols(); i++ {
		c := t.ColAt(i)
		if c.Meta.Tag == table.TagGeo && c.Meta.Rank > 0 && c.Meta.Rank < d.Rank {
			drop = append(drop, c.Name)
		}
	}
	out := t.Clone()
	out.Drop(drop...)
	return out, nil
}
