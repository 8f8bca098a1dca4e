// Package postgres provides a PostgreSQL-backed Lookup reading a directory
// objects table. It suits deployments that mirror directory data locally
// instead of calling a remote lookup endpoint.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rbaliyan/resolve"
)

// Compile-time check
var _ resolve.Lookup = (*Lookup)(nil)

// Lookup implements resolve.Lookup using PostgreSQL.
type Lookup struct {
	db        *sqlx.DB
	opts      *options
	connected int32
	logger    *slog.Logger
}

// New creates a new PostgreSQL lookup with the provided database connection.
// Call Connect() to initialize the schema.
func New(db *sqlx.DB, opts ...Option) *Lookup {
	o := newOptions(opts...)
	return &Lookup{
		db:     db,
		opts:   o,
		logger: o.logger,
	}
}

// NewFromDB creates a new PostgreSQL lookup from a standard sql.DB
// connection, wrapping it with sqlx.
func NewFromDB(db *sql.DB, opts ...Option) *Lookup {
	return New(sqlx.NewDb(db, "postgres"), opts...)
}

// Connect verifies the connection and initializes the schema.
func (l *Lookup) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&l.connected, 0, 1) {
		return fmt.Errorf("postgres: already connected")
	}

	if l.db == nil {
		atomic.StoreInt32(&l.connected, 0)
		return fmt.Errorf("postgres: db is required")
	}

	ctx, cancel := context.WithTimeout(ctx, l.opts.timeout)
	defer cancel()

	if err := l.db.PingContext(ctx); err != nil {
		atomic.StoreInt32(&l.connected, 0)
		return fmt.Errorf("postgres ping: %w", err)
	}

	if err := l.ensureSchema(ctx); err != nil {
		atomic.StoreInt32(&l.connected, 0)
		return fmt.Errorf("ensure schema: %w", err)
	}

	l.logger.Info("connected to PostgreSQL", "table", l.opts.table)
	return nil
}

// Close marks the lookup as disconnected.
// The caller is responsible for closing the database connection.
func (l *Lookup) Close(ctx context.Context) error {
	atomic.StoreInt32(&l.connected, 0)
	return nil
}

// ensureSchema creates the directory objects table if it does not exist.
func (l *Lookup) ensureSchema(ctx context.Context) error {
	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			tenant_id TEXT NOT NULL,
			object_id UUID NOT NULL,
			display_name TEXT NOT NULL,
			upn TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (tenant_id, object_id)
		)`, l.opts.table)
	if _, err := l.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// Lookup returns the directory objects among ids known for the tenant.
// Unknown IDs are omitted from the result. IDs that are not valid GUIDs are
// skipped rather than failing the batch.
func (l *Lookup) Lookup(ctx context.Context, tenant string, ids []string) ([]resolve.Resolution, error) {
	if atomic.LoadInt32(&l.connected) == 0 {
		return nil, fmt.Errorf("postgres: not connected")
	}

	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT object_id, display_name, upn
		FROM %s
		WHERE tenant_id = $1 AND object_id = ANY($2)
	`, l.opts.table)

	rows, err := l.db.QueryContext(ctx, query, tenant, pq.Array(valid))
	if err != nil {
		return nil, fmt.Errorf("lookup objects: %w", err)
	}
	defer rows.Close()

	var results []resolve.Resolution
	for rows.Next() {
		var r resolve.Resolution
		if err := rows.Scan(&r.ID, &r.DisplayName, &r.UPN); err != nil {
			return nil, fmt.Errorf("scan object: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate objects: %w", err)
	}

	return results, nil
}
