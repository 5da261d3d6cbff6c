package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Transactor implements domain.Transactor on a pgx pool
type Transactor struct {
	pool *pgxpool.Pool
}

// NewTransactor creates a new Transactor
func NewTransactor(pool *pgxpool.Pool) *Transactor {
	return &Transactor{pool: pool}
}

// WithinTx begins a transaction, hands it to fn and commits when fn succeeds.
// The deferred rollback is a no-op after a successful commit.
func (t *Transactor) WithinTx(ctx context.Context, fn func(tx any) error) error {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
