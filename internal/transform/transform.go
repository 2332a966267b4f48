// Package transform implements the table operations the pipeline stages
// compose: key-based deduplication and aggregation, the outer-join
// merger, row concatenation, and the normalization engine (ratio, share,
// min-max, pruning). Every operation is a pure function of its input
// table; callers chain them explicitly.
package transform

import "geoetl/internal/table"

// Op is a single table transformation step.
type Op interface {
	Apply(t *table.Table) (*table.Table, error)
}

// Chain applies ops left to right, stopping at the first error.
type Chain []Op

func (c Chain) Apply(t *table.Table) (*table.Table, error) {
	var err error
	for _, op := range c {
		t, err = op.Apply(t)
		if err != nil {
			return nil, err
		}
	}
	return t, nil
}
