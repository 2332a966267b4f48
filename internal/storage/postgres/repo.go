// Package postgres implements a storage.Repository over pgx v5. Rows
// travel through the COPY protocol, the fastest bulk path Postgres
// offers.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"geoetl/internal/storage"
	"geoetl/internal/table"
)

// Config configures the Postgres sink.
type Config struct {
	// DSN is the pgxpool connection string.
	DSN string

	// Truncate empties each target table before inserting, so a rerun
	// replaces the artifact instead of appending a second copy.
	Truncate bool
}

// Repository is a Postgres-backed storage.Repository.
type Repository struct {
	pool *pgxpool.Pool
	cfg  Config
}

// New connects a pool for the given DSN.
func New(ctx context.Context, cfg Config) (*Repository, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres: dsn must not be empty")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	return &Repository{pool: pool, cfg: cfg}, nil
}

// Close releases the pool.
func (r *Repository) Close() { r.pool.Close() }

// EnsureTable creates the artifact table when absent and, when the
// sink truncates, empties it.
func (r *Repository) EnsureTable(ctx context.Context, name string, t *table.Table) error {
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		storage.QuoteIdent(name), storage.ColumnDDL(t, "DOUBLE PRECISION"))
	if _, err := r.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("postgres: create %s: %w", name, err)
	}
	if r.cfg.Truncate {
		if _, err := r.pool.Exec(ctx, "TRUNCATE "+storage.QuoteIdent(name)); err != nil {
			return fmt.Errorf("postgres: truncate %s: %w", name, err)
		}
	}
	return nil
}

// InsertTable copies every row of t into the artifact table. pgx
// quotes the column identifiers itself.
func (r *Repository) InsertTable(ctx context.Context, name string, t *table.Table) (int64, error) {
	n, err := r.pool.CopyFrom(ctx, pgx.Identifier{name}, t.Names(), pgx.CopyFromRows(storage.Rows(t)))
	if err != nil {
		return n, fmt.Errorf("postgres: copy into %s: %w", name, err)
	}
	return n, nil
}
