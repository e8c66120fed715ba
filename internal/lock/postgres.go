package lock

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/zeebo/xxh3"
)

// Postgres hands out session-level advisory locks, so runs on different
// hosts sharing one database are serialized too. Each held lock pins one
// pooled connection until unlocked.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Locker = (*Postgres)(nil)

// NewPostgres connects to dsn.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "pgxpool")
	}
	return &Postgres{pool: pool}, nil
}

// AdvisoryKey maps a lock key onto the int64 advisory lock space.
func AdvisoryKey(key string) int64 {
	return int64(xxh3.HashString(key))
}

// Lock blocks in pg_advisory_lock until the key is free or ctx is done.
func (p *Postgres) Lock(ctx context.Context, key string) (func(), error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "lock: acquire connection")
	}
	id := AdvisoryKey(key)
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", id); err != nil {
		conn.Release()
		return nil, errors.Wrapf(err, "lock: advisory lock %s", key)
	}
	return func() {
		if _, err := conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", id); err != nil {
			// Closing the session drops every advisory lock it holds.
			log.Printf("lock: advisory unlock %s failed: %v", key, err)
			_ = conn.Conn().Close(context.Background())
		}
		conn.Release()
	}, nil
}

// Close closes the pool.
func (p *Postgres) Close() { p.pool.Close() }
