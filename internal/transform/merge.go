package transform

import (
	"fmt"
	"math"

	"geoetl/internal/table"
)

// Merge outer-joins per-file tables on the geographic key tuple. Every
// key present in any input produces exactly one output row. When two
// inputs both define a non-key column, the first table's copy wins and
// the later copy is discarded entirely, including its values for rows
// the first table does not cover. The rename maps are built so that
// cross-file duplicates carry redundant data; two files disagreeing on a
// value therefore silently resolve to the first file's copy. Callers
// must pass tables in a stable order (lexicographic by filename) to keep
// the tie-break reproducible.
func Merge(tables []*table.Table, keys []string) (*table.Table, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("merge: no input tables")
	}
	keyFns := make([]func(int) string, len(tables))
	for i, t := range tables {
		kf, err := t.KeyFunc(keys)
		if err != nil {
			return nil, fmt.Errorf("merge: table %d: %w", i, err)
		}
		keyFns[i] = kf
	}

	// First pass: assign one output row per distinct key tuple, in order
	// of first appearance, remembering where each tuple first appeared.
	type src struct{ ti, row int }
	rowIdx := make(map[string]int)
	var firstSrc []src
	for ti, t := range tables {
		kf := keyFns[ti]
		for r := 0; r < t.NumRows(); r++ {
			k := kf(r)
			if _, ok := rowIdx[k]; !ok {
				rowIdx[k] = len(firstSrc)
				firstSrc = append(firstSrc, src{ti, r})
			}
		}
	}
	total := len(firstSrc)

	out := table.New()
	for _, name := range keys {
		base := tables[0].Col(name)
		c := table.Column{Name: name, Meta: base.Meta, Kind: base.Kind}
		if c.Kind == table.Float {
			c.Num = make([]float64, total)
			for g, s := range firstSrc {
				c.Num[g] = keyCellFloat(tables[s.ti].Col(name), s.row)
			}
		} else {
			c.Str = make([]string, total)
			for g, s := range firstSrc {
				c.Str[g] = tables[s.ti].Col(name).Cell(s.row)
			}
		}
		if err := out.Add(c); err != nil {
			return nil, err
		}
	}

	claimed := make(map[string]bool, total)
	for _, name := range keys {
		claimed[name] = true
	}
	for ti, t := range tables {
		kf := keyFns[ti]
		for i := 0; i < t.NumCols(); i++ {
			src := t.ColAt(i)
			if claimed[src.Name] {
				continue
			}
			claimed[src.Name] = true
			c := table.Column{Name: src.Name, Meta: src.Meta, Kind: src.Kind}
			filled := make([]bool, total)
			if src.Kind == table.Float {
				c.Num = make([]float64, total)
				for g := range c.Num {
					c.Num[g] = math.NaN()
				}
				for r := 0; r < t.NumRows(); r++ {
					g := rowIdx[kf(r)]
					if !filled[g] {
						c.Num[g] = src.Num[r]
						filled[g] = true
					}
				}
			} else {
				c.Str = make([]string, total)
				for r := 0; r < t.NumRows(); r++ {
					g := rowIdx[kf(r)]
					if !filled[g] {
						c.Str[g] = src.Str[r]
						filled[g] = true
					}
				}
			}
			if err := out.Add(c); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// keyCellFloat reads a key cell as a float even when the contributing
// table kept the column as text.
func keyCellFloat(c *table.Column, row int) float64 {
	if c.Kind == table.Float {
		return c.Num[row]
	}
	v, ok := table.ParseNumber(c.Str[row])
	if !ok {
		return math.NaN()
	}
	return v
}

// Concat stacks shards of one logical dataset: the union of columns over
// the union of rows, with missing cells where a shard lacks a column.
// Unlike Merge it never joins or discards anything; the election interim
// stage uses it to combine per-region result files before aggregation.
func Concat(tables []*table.Table) (*table.Table, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("concat: no input tables")
	}
	total := 0
	for _, t := range tables {
		total += t.NumRows()
	}

	// Column layout: order of first appearance; a column is Float only
	// if every shard that has it agrees.
	type colInfo struct {
		meta  table.Meta
		kind  table.Kind
		order int
	}
	info := make(map[string]*colInfo)
	var names []string
	for _, t := range tables {
		for i := 0; i < t.NumCols(); i++ {
			c := t.ColAt(i)
			ci, ok := info[c.Name]
			if !ok {
				info[c.Name] = &colInfo{meta: c.Meta, kind: c.Kind, order: len(names)}
				names = append(names, c.Name)
				continue
			}
			if c.Kind != ci.kind {
				ci.kind = table.String
			}
		}
	}

	out := table.New()
	for _, name := range names {
		ci := info[name]
		c := table.Column{Name: name, Meta: ci.meta, Kind: ci.kind}
		if ci.kind == table.Float {
			c.Num = make([]float64, 0, total)
			for _, t := range tables {
				src := t.Col(name)
				for r := 0; r < t.NumRows(); r++ {
					if src == nil {
						c.Num = append(c.Num, math.NaN())
						continue
					}
					c.Num = append(c.Num, src.Num[r])
				}
			}
		} else {
			c.Str = make([]string, 0, total)
			for _, t := range tables {
				src := t.Col(name)
				for r := 0; r < t.NumRows(); r++ {
					if src == nil {
						c.Str = append(c.Str, "")
						continue
					}
					c.Str = append(c.Str, src.Cell(r))
				}
			}
		}
		if err := out.Add(c); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// JoinLookup left-joins the lookup's columns that base does not already
// have, aligned on the key tuple. Base rows without a lookup match get
// missing cells; lookup rows without a base match contribute nothing.
// The geocoding lookup join works this way: the core dataset decides the
// row set, the lookup only decorates it.
func JoinLookup(base, lookup *table.Table, keys []string) (*table.Table, error) {
	baseKey, err := base.KeyFunc(keys)
	if err != nil {
		return nil, fmt.Errorf("join: base: %w", err)
	}
	lookKey, err := lookup.KeyFunc(keys)
	if err != nil {
		return nil, fmt.Errorf("join: lookup: %w", err)
	}
	lookRow := make(map[string]int, lookup.NumRows())
	for r := 0; r < lookup.NumRows(); r++ {
		k := lookKey(r)
		if _, ok := lookRow[k]; !ok {
			lookRow[k] = r
		}
	}

	out := base.Clone()
	n := base.NumRows()
	for i := 0; i < lookup.NumCols(); i++ {
		src := lookup.ColAt(i)
		if out.Has(src.Name) {
			continue
		}
		c := table.Column{Name: src.Name, Meta: src.Meta, Kind: src.Kind}
		if src.Kind == table.Float {
			c.Num = make([]float64, n)
			for r := 0; r < n; r++ {
				if lr, ok := lookRow[baseKey(r)]; ok {
					c.Num[r] = src.Num[lr]
				} else {
					c.Num[r] = math.NaN()
				}
			}
		} else {
			c.Str = make([]string, n)
			for r := 0; r < n; r++ {
				if lr, ok := lookRow[baseKey(r)]; ok {
					c.Str[r] = src.Str[lr]
				}
			}
		}
		if err := out.Add(c); err != nil {
			return nil, err
		}
	}
	return out, nil
}
