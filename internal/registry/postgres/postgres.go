// Package postgres implements the registry on Postgres using pgx v5.
package postgres

import (
	"context"
	"time"

	"daybook/internal/apperr"
	"daybook/internal/registry"
	"daybook/internal/registry/sqlstore"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// Repository is a pgxpool-backed registry.Registry.
type Repository struct {
	pool *pgxpool.Pool
	stmt sqlstore.Statements
	now  func() time.Time
}

var _ registry.Registry = (*Repository)(nil)

// newRepository is a test hook that points to NewRepository by default.
var newRepository = NewRepository

func init() {
	registry.Register("postgres", func(ctx context.Context, cfg registry.Config) (registry.Registry, error) {
		return newRepository(ctx, cfg.DSN, cfg.TableOrDefault())
	})
}

// NewRepository connects to dsn and ensures the registry table exists.
func NewRepository(ctx context.Context, dsn, table string) (*Repository, error) {
	stmt, err := sqlstore.Postgres.Build(table)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "pgxpool")
	}
	if _, err := pool.Exec(ctx, stmt.Create); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "postgres: create registry table")
	}
	return &Repository{pool: pool, stmt: stmt, now: time.Now}, nil
}

// Get implements registry.Registry.
func (r *Repository) Get(ctx context.Context, workspaceID, dataSourceID string) (*registry.DataSource, error) {
	var row sqlstore.Row
	err := r.pool.QueryRow(ctx, r.stmt.Select, workspaceID, dataSourceID).Scan(row.Dest()...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(apperr.ErrDataSourceNotFound, "%s/%s", workspaceID, dataSourceID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "postgres: get data source")
	}
	ds, err := row.DataSource()
	if err != nil {
		return nil, err
	}
	return &ds, nil
}

// Put implements registry.Registry.
func (r *Repository) Put(ctx context.Context, ds *registry.DataSource) error {
	now := r.now().UTC()
	if ds.CreatedAt.IsZero() {
		ds.CreatedAt = now
	}
	ds.LastUpdate = now
	args, err := sqlstore.UpsertArgs(ds)
	if err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, r.stmt.Upsert, args...); err != nil {
		return errors.Wrap(err, "postgres: put data source")
	}
	return nil
}

// UpdateStatus implements registry.Registry.
func (r *Repository) UpdateStatus(ctx context.Context, workspaceID, dataSourceID string, u registry.StatusUpdate) error {
	tag, err := r.pool.Exec(ctx, r.stmt.UpdateStatus, sqlstore.StatusArgs(workspaceID, dataSourceID, u, r.now())...)
	if err != nil {
		return errors.Wrap(err, "postgres: update status")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(apperr.ErrDataSourceNotFound, "%s/%s", workspaceID, dataSourceID)
	}
	return nil
}

// List implements registry.Registry.
func (r *Repository) List(ctx context.Context, workspaceID string) ([]registry.DataSource, error) {
	return r.query(ctx, r.stmt.SelectWorkspace, workspaceID)
}

// ListAll implements registry.Registry.
func (r *Repository) ListAll(ctx context.Context) ([]registry.DataSource, error) {
	return r.query(ctx, r.stmt.SelectAll)
}

func (r *Repository) query(ctx context.Context, q string, args ...any) ([]registry.DataSource, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: list data sources")
	}
	defer rows.Close()

	var out []registry.DataSource
	for rows.Next() {
		var row sqlstore.Row
		if err := rows.Scan(row.Dest()...); err != nil {
			return nil, errors.Wrap(err, "postgres: scan data source")
		}
		ds, err := row.DataSource()
		if err != nil {
			return nil, err
		}
		out = append(out, ds)
	}
	return out, rows.Err()
}

// Close implements registry.Registry.
func (r *Repository) Close() { r.pool.Close() }
