package table

import (
	"math"
	"strconv"
	"strings"
)

// ParseNumber parses a source cell as a float. It tolerates surrounding
// whitespace and the comma decimal separator used by the census extracts
// ("12,5"). The second return is false for empty or non-numeric cells.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), false
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN(), false
	}
	return v, true
}

// FormatNumber renders a float the way processed CSVs expect: NaN as the
// empty cell, everything else in the shortest exact decimal form.
func FormatNumber(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// InferKinds promotes String columns to Float when every non-empty cell
// parses as a number. Columns with no values at all stay String. Called
// after reading raw or interim CSV data, before any numeric stage.
func InferKinds(t *Table) {
	for i := 0; i < t.NumCols(); i++ {
		c := t.ColAt(i)
		if c.Kind != String {
			continue
		}
		nums := make([]float64, len(c.Str))
		any := false
		ok := true
		for r, s := range c.Str {
			if strings.TrimSpace(s) == "" {
				nums[r] = math.NaN()
				continue
			}
			v, isNum := ParseNumber(s)
			if !isNum {
				ok = false
				break
			}
			nums[r] = v
			any = true
		}
		if ok && any {
			c.Kind = Float
			c.Num = nums
			c.Str = nil
		}
	}
}
