// Package store issues the catalog schema, seed and read statements against
// PostgreSQL. All functions take a Querier so the same code runs inside the
// bootstrap transaction and against a plain connection.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx.Conn and pgx.Tx used by this package.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Tx is a database transaction. pgx.Tx satisfies it.
type Tx interface {
	Querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Conn is a single database connection.
type Conn interface {
	Querier
	Begin(ctx context.Context) (Tx, error)
	Close(ctx context.Context) error
}

// pgxConn adapts *pgx.Conn to Conn; pgx.Conn.Begin returns pgx.Tx rather
// than Tx, so Begin is redeclared.
type pgxConn struct {
	*pgx.Conn
}

// NewConn wraps an open pgx connection.
func NewConn(c *pgx.Conn) Conn {
	return &pgxConn{Conn: c}
}

func (c *pgxConn) Begin(ctx context.Context) (Tx, error) {
	return c.Conn.Begin(ctx)
}
