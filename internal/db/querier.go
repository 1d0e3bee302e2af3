package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the minimal query surface used by services. It is satisfied by
// *pgxpool.Pool, pgx.Tx and pgxmock pools, so repository code runs unchanged
// inside or outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool adds transaction support on top of Querier. Track mutations need it:
// every lifecycle/ingestion operation is a single read-modify-write
// transaction locked on one track row.
type Pool interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}
