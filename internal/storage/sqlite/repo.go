// Package sqlite implements a storage.Repository over a local SQLite
// file using database/sql. SQLite has no dedicated bulk-load API, so
// inserts run as a prepared statement inside one transaction per
// artifact, which keeps performance acceptable for these volumes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"geoetl/internal/storage"
	"geoetl/internal/table"
)

// Config configures the SQLite sink.
type Config struct {
	// Path is the database file, created when absent.
	Path string

	// Truncate empties each target table before inserting, so a rerun
	// replaces the artifact instead of appending a second copy.
	Truncate bool
}

// Repository is a SQLite-backed storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// New opens the database file and verifies the connection.
func New(ctx context.Context, cfg Config) (*Repository, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("sqlite: path must not be empty")
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping %s: %w", cfg.Path, err)
	}
	return &Repository{db: db, cfg: cfg}, nil
}

// Close closes the database file.
func (r *Repository) Close() { r.db.Close() }

// EnsureTable creates the artifact table when absent and, when the
// sink truncates, empties it.
func (r *Repository) EnsureTable(ctx context.Context, name string, t *table.Table) error {
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		storage.QuoteIdent(name), storage.ColumnDDL(t, "REAL"))
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("sqlite: create %s: %w", name, err)
	}
	if r.cfg.Truncate {
		if _, err := r.db.ExecContext(ctx, "DELETE FROM "+storage.QuoteIdent(name)); err != nil {
			return fmt.Errorf("sqlite: truncate %s: %w", name, err)
		}
	}
	return nil
}

// InsertTable inserts every row of t inside a single transaction.
func (r *Repository) InsertTable(ctx context.Context, name string, t *table.Table) (int64, error) {
	names := t.Names()
	if len(names) == 0 {
		return 0, fmt.Errorf("sqlite: insert %s: table has no columns", name)
	}
	quoted := make([]string, len(names))
	placeholders := make([]string, len(names))
	for i, n := range names {
		quoted[i] = storage.QuoteIdent(n)
		placeholders[i] = "?"
	}
	stmtSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		storage.QuoteIdent(name),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, row := range storage.Rows(t) {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = tx.Rollback()
			return inserted, fmt.Errorf("sqlite: insert %s: %w", name, err)
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return inserted, fmt.Errorf("sqlite: commit %s: %w", name, err)
	}
	return inserted, nil
}
