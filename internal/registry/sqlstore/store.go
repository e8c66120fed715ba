package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"daybook/internal/apperr"
	"daybook/internal/registry"

	"github.com/pkg/errors"
)

// Store is a registry.Registry backed by a database/sql handle.
type Store struct {
	db   *sql.DB
	d    Dialect
	stmt Statements
	now  func() time.Time
}

var _ registry.Registry = (*Store)(nil)

// Open connects with driver and dsn, then creates the registry table when
// it does not exist.
func Open(ctx context.Context, driver, dsn string, d Dialect, table string) (*Store, error) {
	stmt, err := d.Build(table)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: open", d.Name)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "%s: ping", d.Name)
	}
	if _, err := db.ExecContext(ctx, stmt.Create); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "%s: create registry table", d.Name)
	}
	return &Store{db: db, d: d, stmt: stmt, now: time.Now}, nil
}

// Get implements registry.Registry.
func (s *Store) Get(ctx context.Context, workspaceID, dataSourceID string) (*registry.DataSource, error) {
	var r Row
	err := s.db.QueryRowContext(ctx, s.stmt.Select, workspaceID, dataSourceID).Scan(r.Dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(apperr.ErrDataSourceNotFound, "%s/%s", workspaceID, dataSourceID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "%s: get data source", s.d.Name)
	}
	ds, err := r.DataSource()
	if err != nil {
		return nil, err
	}
	return &ds, nil
}

// Put implements registry.Registry.
func (s *Store) Put(ctx context.Context, ds *registry.DataSource) error {
	now := s.now().UTC()
	if ds.CreatedAt.IsZero() {
		ds.CreatedAt = now
	}
	ds.LastUpdate = now
	args, err := UpsertArgs(ds)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.stmt.Upsert, args...); err != nil {
		return errors.Wrapf(err, "%s: put data source", s.d.Name)
	}
	return nil
}

// UpdateStatus implements registry.Registry.
func (s *Store) UpdateStatus(ctx context.Context, workspaceID, dataSourceID string, u registry.StatusUpdate) error {
	res, err := s.db.ExecContext(ctx, s.stmt.UpdateStatus, StatusArgs(workspaceID, dataSourceID, u, s.now())...)
	if err != nil {
		return errors.Wrapf(err, "%s: update status", s.d.Name)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(apperr.ErrDataSourceNotFound, "%s/%s", workspaceID, dataSourceID)
	}
	return nil
}

// List implements registry.Registry.
func (s *Store) List(ctx context.Context, workspaceID string) ([]registry.DataSource, error) {
	return s.query(ctx, s.stmt.SelectWorkspace, workspaceID)
}

// ListAll implements registry.Registry.
func (s *Store) ListAll(ctx context.Context) ([]registry.DataSource, error) {
	return s.query(ctx, s.stmt.SelectAll)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]registry.DataSource, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: list data sources", s.d.Name)
	}
	defer rows.Close()

	var out []registry.DataSource
	for rows.Next() {
		var r Row
		if err := rows.Scan(r.Dest()...); err != nil {
			return nil, errors.Wrapf(err, "%s: scan data source", s.d.Name)
		}
		ds, err := r.DataSource()
		if err != nil {
			return nil, err
		}
		out = append(out, ds)
	}
	return out, rows.Err()
}

// Close implements registry.Registry.
func (s *Store) Close() { _ = s.db.Close() }
