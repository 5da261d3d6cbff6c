package domain

import "context"

// Transactor runs a unit of work inside a single database transaction.
// The tx value handed to fn is passed through to the repositories' *Tx methods;
// fn returning an error rolls everything back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(tx any) error) error
}
