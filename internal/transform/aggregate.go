package transform

import (
	"fmt"
	"math"

	"geoetl/internal/table"
)

// Aggregate collapses the table to one row per distinct key tuple at the
// requested aggregation level.
//
// The per-column policy is derived from the table itself: Float columns
// whose role is not an identifier are summed (missing values are
// skipped; an all-missing group sums to zero, matching the source
// system); everything else keeps the first non-missing value observed.
// Collapsing below a column's native granularity therefore keeps an
// arbitrary-but-deterministic identifier value, which downstream
// consumers must treat as unreliable.
type Aggregate struct {
	Keys []string
}

func (a Aggregate) Apply(t *table.Table) (*table.Table, error) {
	if len(a.Keys) == 0 {
		return nil, fmt.Errorf("aggregate: no key columns")
	}
	key, err := t.KeyFunc(a.Keys)
	if err != nil {
		return nil, err
	}

	n := t.NumRows()
	groupOf := make([]int, n)
	firstRow := make([]int, 0)
	idx := make(map[string]int, n)
	for r := 0; r < n; r++ {
		k := key(r)
		g, ok := idx[k]
		if !ok {
			g = len(firstRow)
			idx[k] = g
			firstRow = append(firstRow, r)
		}
		groupOf[r] = g
	}
	groups := len(firstRow)

	isKey := make(map[string]bool, len(a.Keys))
	for _, k := range a.Keys {
		isKey[k] = true
	}

	out := table.New()
	add := func(c table.Column) error { return out.Add(c) }

	// Keys first, in the requested order.
	for _, k := range a.Keys {
		src := t.Col(k)
		if err := add(takeRows(src, firstRow)); err != nil {
			return nil, err
		}
	}
	for i := 0; i < t.NumCols(); i++ {
		src := t.ColAt(i)
		if isKey[src.Name] {
			continue
		}
		var c table.Column
		if src.Kind == table.Float && src.Meta.Role != table.RoleID {
			c = sumGroups(src, groupOf, groups)
		} else {
			c = firstNonMissing(src, groupOf, groups)
		}
		if err := add(c); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// takeRows copies the listed rows of src, preserving metadata.
func takeRows(src *table.Column, rows []int) table.Column {
	c := table.Column{Name: src.Name, Meta: src.Meta, Kind: src.Kind}
	if src.Kind == table.Float {
		c.Num = make([]float64, len(rows))
		for i, r := range rows {
			c.Num[i] = src.Num[r]
		}
		return c
	}
	c.Str = make([]string, len(rows))
	for i, r := range rows {
		c.Str[i] = src.Str[r]
	}
	return c
}

func sumGroups(src *table.Column, groupOf []int, groups int) table.Column {
	sums := make([]float64, groups)
	for r, g := range groupOf {
		if v := src.Num[r]; !math.IsNaN(v) {
			sums[g] += v
		}
	}
	return table.Column{Name: src.Name, Meta: src.Meta, Kind: table.Float, Num: sums}
}

func firstNonMissing(src *table.Column, groupOf []int, groups int) table.Column {
	c := table.Column{Name: src.Name, Meta: src.Meta, Kind: src.Kind}
	if src.Kind == table.Float {
		c.Num = make([]float64, groups)
		for g := range c.Num {
			c.Num[g] = math.NaN()
		}
		filled := make([]bool, groups)
		for r, g := range groupOf {
			if !filled[g] && !math.IsNaN(src.Num[r]) {
				c.Num[g] = src.Num[r]
				filled[g] = true
			}
		}
		return c
	}
	c.Str = make([]string, groups)
	filled := make([]bool, groups)
	for r, g := range groupOf {
		if !filled[g] && src.Str[r] != "" {
			c.Str[g] = src.Str[r]
			filled[g] = true
		}
	}
	return c
}
