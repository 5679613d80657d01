package clients

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sony/gobreaker"

	"catalog-platform/seeder/internal/bootstrap"
	"catalog-platform/seeder/internal/catalog"
	"catalog-platform/seeder/internal/config"
	"catalog-platform/seeder/internal/store"
)

const (
	postgresProbeName = "postgres"

	// undefinedTableCode is the SQLSTATE for a missing relation.
	undefinedTableCode = "42P01"
)

// schemaMissing carries an error reporting that the catalog tables do not
// exist yet. It is returned as the breaker result rather than its error, so
// an unbootstrapped database that is reachable never trips the breaker.
type schemaMissing struct {
	err error
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == undefinedTableCode
}

// PostgresClient opens single pgx connections to the catalog database behind
// a circuit breaker.
type PostgresClient struct {
	cfg     config.DatabaseConfig
	cb      *gobreaker.CircuitBreaker
	connect func(ctx context.Context, cfg config.DatabaseConfig) (store.Conn, error)
}

// NewPostgresClient creates a PostgresClient. No connection is made at
// construction time.
func NewPostgresClient(cfg config.DatabaseConfig, cb *gobreaker.CircuitBreaker) *PostgresClient {
	return &PostgresClient{
		cfg:     cfg,
		cb:      cb,
		connect: realConnect,
	}
}

// Connect opens a new connection. The caller owns it and must Close it.
func (c *PostgresClient) Connect(ctx context.Context) (store.Conn, error) {
	v, err := c.cb.Execute(func() (any, error) {
		conn, err := c.connect(ctx, c.cfg)
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
	if err != nil {
		return nil, breakerError(err)
	}
	return v.(store.Conn), nil
}

// Probe connects and verifies that both catalog tables exist.
func (c *PostgresClient) Probe(ctx context.Context) bootstrap.ProbeResult {
	start := time.Now()

	v, err := c.cb.Execute(func() (any, error) {
		conn, err := c.connect(ctx, c.cfg)
		if err != nil {
			return nil, err
		}
		defer conn.Close(ctx) //nolint:errcheck

		for _, t := range []store.Table{store.CategoriesTable, store.ProductsTable} {
			exists, err := store.TableExists(ctx, conn, t.Name)
			if err != nil {
				return nil, err
			}
			if !exists {
				return schemaMissing{err: fmt.Errorf("table %s not found", t.Name)}, nil
			}
		}
		return nil, nil
	})
	if m, ok := v.(schemaMissing); ok && err == nil {
		err = m.err
	}

	return probeResult(postgresProbeName, start, err)
}

// ListCategories reads all categories over a short-lived connection.
func (c *PostgresClient) ListCategories(ctx context.Context) ([]catalog.Category, error) {
	v, err := c.withConn(ctx, func(conn store.Conn) (any, error) {
		return store.ListCategories(ctx, conn)
	})
	if err != nil {
		return nil, err
	}
	return v.([]catalog.Category), nil
}

// ListProducts reads all products over a short-lived connection.
func (c *PostgresClient) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	v, err := c.withConn(ctx, func(conn store.Conn) (any, error) {
		return store.ListProducts(ctx, conn)
	})
	if err != nil {
		return nil, err
	}
	return v.([]catalog.Product), nil
}

func (c *PostgresClient) withConn(ctx context.Context, fn func(store.Conn) (any, error)) (any, error) {
	v, err := c.cb.Execute(func() (any, error) {
		conn, err := c.connect(ctx, c.cfg)
		if err != nil {
			return nil, err
		}
		defer conn.Close(ctx) //nolint:errcheck

		v, err := fn(conn)
		if isUndefinedTable(err) {
			return schemaMissing{err: err}, nil
		}
		return v, err
	})
	if err != nil {
		return nil, breakerError(err)
	}
	if m, ok := v.(schemaMissing); ok {
		return nil, m.err
	}
	return v, nil
}

// realConnect opens a single pgx connection using the DSN built from cfg.
func realConnect(ctx context.Context, cfg config.DatabaseConfig) (store.Conn, error) {
	connCfg, err := pgx.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing postgres DSN: %w", err)
	}
	if cfg.ConnectTimeout > 0 {
		connCfg.ConnectTimeout = cfg.ConnectTimeout
	}

	conn, err := pgx.ConnectConfig(ctx, connCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Name, err)
	}
	return store.NewConn(conn), nil
}

// breakerError marks errors produced by an open breaker so callers see
// "circuit open" instead of gobreaker's wording.
func breakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("circuit open: %w", err)
	}
	return err
}

func probeResult(name string, start time.Time, err error) bootstrap.ProbeResult {
	latency := time.Since(start).Milliseconds()

	if err != nil {
		errMsg := err.Error()
		if errors.Is(err, gobreaker.ErrOpenState) {
			errMsg = "circuit open"
		}
		return bootstrap.ProbeResult{
			Name:      name,
			OK:        false,
			LatencyMs: latency,
			Error:     errMsg,
		}
	}

	return bootstrap.ProbeResult{
		Name:      name,
		OK:        true,
		LatencyMs: latency,
	}
}
