// Package storage copies processed artifacts into a SQL sink so
// downstream analysis can query them without re-parsing CSVs. Backends
// implement Repository; the pipeline hands over whole tables and each
// backend uses its most efficient bulk path.
package storage

import (
	"context"
	"regexp"
	"strings"

	"geoetl/internal/table"
)

// Repository is a SQL sink for processed artifacts.
type Repository interface {
	// EnsureTable creates the target table for t's schema when absent
	// and empties it when the sink is configured to truncate.
	EnsureTable(ctx context.Context, name string, t *table.Table) error

	// InsertTable bulk-inserts every row of t and returns the count.
	InsertTable(ctx context.Context, name string, t *table.Table) (int64, error)

	// Close releases the underlying connections.
	Close()
}

var nonIdent = regexp.MustCompile(`[^a-z0-9]+`)

// TableName derives the sink table name for one artifact. Parts are
// lowercased, runs of non-alphanumeric characters collapse to one
// underscore, and empty parts vanish:
//
//	TableName("census", "census tract", "no_global")
//	-> "census_census_tract_no_global"
func TableName(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		p = nonIdent.ReplaceAllString(strings.ToLower(p), "_")
		p = strings.Trim(p, "_")
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return strings.Join(cleaned, "_")
}

// QuoteIdent quotes a table or column identifier. Artifact columns
// carry brackets and percent signs ("[CENSUS]_..._(%)"), so quoting is
// mandatory in every backend.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ColumnDDL renders the column clause of a CREATE TABLE for t.
// floatType is the backend's float column type ("REAL" for SQLite,
// "DOUBLE PRECISION" for Postgres); String columns become TEXT.
func ColumnDDL(t *table.Table, floatType string) string {
	parts := make([]string, t.NumCols())
	for i := 0; i < t.NumCols(); i++ {
		col := t.ColAt(i)
		typ := "TEXT"
		if col.Kind == table.Float {
			typ = floatType
		}
		parts[i] = QuoteIdent(col.Name) + " " + typ
	}
	return strings.Join(parts, ", ")
}

// Rows flattens t into driver-ready rows aligned with t.Names().
// Missing cells stay nil so they arrive as SQL NULL rather than NaN or
// empty strings.
func Rows(t *table.Table) [][]any {
	rows := make([][]any, t.NumRows())
	for i := range rows {
		row := make([]any, t.NumCols())
		for j := 0; j < t.NumCols(); j++ {
			col := t.ColAt(j)
			if col.Missing(i) {
				continue
			}
			if col.Kind == table.Float {
				row[j] = col.Num[i]
			} else {
				row[j] = col.Str[i]
			}
		}
		rows[i] = row
	}
	return rows
}
