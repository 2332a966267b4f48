package schema

import (
	"math"
	"strings"

	"geoetl/internal/table"
)

// Group is one division bucket of the census normalization: the member
// columns and the total column that serves as their denominator.
type Group struct {
	Name  string
	Cols  []string
	Total string
}

// ClassifyCensus buckets every census measure column of a merged table
// into a division group. Basic columns are left out (they are rescaled
// or dropped wholesale, never divided), domicile columns come from the
// domicile-counting tables, and income columns are detected by value:
// a column that somewhere exceeds both the population count and the
// domicile count holds currency amounts, not counts. Everything else
// counts persons.
//
// Groups come back in division order. The income groups must divide
// first, while their count denominators are still raw; the count groups
// then divide their own totals down to 1.
func ClassifyCensus(t *table.Table) []Group {
	pop := numCol(t, ColPopulationCount)
	dom := numCol(t, ColDomicileCount)

	var incomePerson, incomeDomicile, domicile, person []string
	for i := 0; i < t.NumCols(); i++ {
		c := t.ColAt(i)
		if c.Meta.Tag != table.TagCensus || c.Kind != table.Float {
			continue
		}
		sub := c.Meta.Subset
		if sub == SubsetBasic {
			continue
		}
		switch {
		case isIncome(c, pop, dom):
			if strings.Contains(sub, "PESSOA") || strings.Contains(sub, "RESPONSAVEL") {
				incomePerson = append(incomePerson, c.Name)
			} else if strings.Contains(sub, "DOMICILIO") {
				incomeDomicile = append(incomeDomicile, c.Name)
			}
			// An income column from any other table has no meaningful
			// count denominator and stays unnormalized.
		case DomicileSubsets[sub]:
			domicile = append(domicile, c.Name)
		default:
			person = append(person, c.Name)
		}
	}

	return []Group{
		{Name: "income_person", Cols: incomePerson, Total: ColIncomePersonTotal},
		{Name: "income_domicile", Cols: incomeDomicile, Total: ColIncomeDomicileTotal},
		{Name: "domicile", Cols: domicile, Total: ColDomicileTotal},
		{Name: "person", Cols: person, Total: ColPersonTotal},
	}
}

// GlobalCols lists the dataset-wide reference columns: the basic table's
// measures plus the division totals. The with-global variant min-max
// rescales them; the no-global variant drops them.
func GlobalCols(t *table.Table) []string {
	var cols []string
	seen := map[string]bool{}
	for i := 0; i < t.NumCols(); i++ {
		c := t.ColAt(i)
		if c.Meta.Tag == table.TagCensus && c.Meta.Subset == SubsetBasic && c.Kind == table.Float {
			cols = append(cols, c.Name)
			seen[c.Name] = true
		}
	}
	for _, tc := range TotalCols() {
		if t.Has(tc) && !seen[tc] {
			cols = append(cols, tc)
		}
	}
	return cols
}

func numCol(t *table.Table, name string) *table.Column {
	c := t.Col(name)
	if c == nil || c.Kind != table.Float {
		return nil
	}
	return c
}

func isIncome(c, pop, dom *table.Column) bool {
	return exceedsSomewhere(c, pop) && exceedsSomewhere(c, dom)
}

func exceedsSomewhere(c, ref *table.Column) bool {
	if ref == nil {
		return false
	}
	for r := 0; r < c.Len(); r++ {
		v, w := c.Num[r], ref.Num[r]
		if !math.IsNaN(v) && !math.IsNaN(w) && v > w {
			return true
		}
	}
	return false
}
