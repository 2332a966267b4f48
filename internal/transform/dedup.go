package transform

import "geoetl/internal/table"

// Dedup removes rows whose key tuple was already seen, keeping the first
// occurrence. Source exports occasionally repeat a polling-section row;
// dropping the repeat before aggregation avoids double counting.
type Dedup struct {
	Keys []string
}

func (d Dedup) Apply(t *table.Table) (*table.Table, error) {
	key, err := t.KeyFunc(d.Keys)
	if err != nil {
		return nil, err
	}
	n := t.NumRows()
	keep := make([]bool, n)
	seen := make(map[string]bool, n)
	dropped := 0
	for r := 0; r < n; r++ {
		k := key(r)
		if seen[k] {
			dropped++
			continue
		}
		seen[k] = true
		keep[r] = true
	}
	if dropped == 0 {
		return t, nil
	}
	return t.Filter(keep), nil
}
