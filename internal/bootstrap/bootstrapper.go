// Package bootstrap runs the catalog schema and seed procedure: one
// connection, two conditional table creates, two zero-count seed gates, one
// commit. Optional post-commit phases invalidate cached catalog data and
// announce completion.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/sync/errgroup"

	"catalog-platform/seeder/internal/catalog"
	"catalog-platform/seeder/internal/store"
)

const (
	instrumentationName = "catalog-platform/seeder/bootstrap"

	// releaseTimeout bounds rollback and close so that a cancelled run
	// context still returns the connection.
	releaseTimeout = 5 * time.Second
)

var (
	// ErrBootstrapInProgress is returned when RunBootstrap is called while a
	// bootstrap is already running.
	ErrBootstrapInProgress = errors.New("bootstrap already in progress")

	// ErrConnection wraps every failure to open the database connection.
	ErrConnection = errors.New("connection error")
)

// Database is satisfied by *clients.PostgresClient.
type Database interface {
	Connect(ctx context.Context) (store.Conn, error)
	Probe(ctx context.Context) ProbeResult
}

// CacheInvalidator is satisfied by *clients.RedisClient.
type CacheInvalidator interface {
	InvalidateCatalog(ctx context.Context) (int64, error)
	Probe(ctx context.Context) ProbeResult
}

// EventPublisher is satisfied by *clients.NATSClient.
type EventPublisher interface {
	PublishBootstrapCompleted(ctx context.Context, s Summary) error
	Probe(ctx context.Context) ProbeResult
}

// Bootstrapper runs bootstrap sequences and dependency health probes.
type Bootstrapper struct {
	db     Database
	cache  CacheInvalidator
	events EventPublisher
	seed   bool

	categories []catalog.SeedCategory
	products   []catalog.SeedProduct

	runs metric.Int64Counter
	rows metric.Int64Counter

	inProgress atomic.Bool
	lastResult *Result
	resultMu   sync.RWMutex
}

// New constructs a Bootstrapper. cache and events may be nil, in which case
// their phases are recorded as skipped. When seed is false only the schema is
// ensured.
func New(db Database, cache CacheInvalidator, events EventPublisher, seed bool) *Bootstrapper {
	meter := otel.Meter(instrumentationName)

	runs, err := meter.Int64Counter("catalog.bootstrap.runs",
		metric.WithDescription("Bootstrap runs by final status."))
	if err != nil {
		slog.Warn("creating bootstrap run counter", "error", err)
		runs = noop.Int64Counter{}
	}
	rows, err := meter.Int64Counter("catalog.seed.rows",
		metric.WithDescription("Seed rows inserted by table."))
	if err != nil {
		slog.Warn("creating seed row counter", "error", err)
		rows = noop.Int64Counter{}
	}

	return &Bootstrapper{
		db:         db,
		cache:      cache,
		events:     events,
		seed:       seed,
		categories: catalog.SeedCategories(),
		products:   catalog.SeedProducts(),
		runs:       runs,
		rows:       rows,
	}
}

// RunBootstrap runs the database sequence and, when it committed, the cache
// and events phases. The returned error is non-nil only when the database
// sequence failed or another run is active; a failed post-commit phase is
// reported through Result.Status.
func (b *Bootstrapper) RunBootstrap(ctx context.Context) (*Result, error) {
	if !b.inProgress.CompareAndSwap(false, true) {
		return nil, ErrBootstrapInProgress
	}
	defer b.inProgress.Store(false)

	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "catalog.bootstrap")
	defer span.End()

	slog.InfoContext(ctx, "bootstrap started", "seed", b.seed)
	rec := newRecorder()

	summary, err := b.runDatabase(ctx, rec)
	if err == nil {
		b.runCache(ctx, rec)
		b.runEvents(ctx, rec, summary)
	}

	result := rec.finish()

	b.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", result.Status)))
	span.SetAttributes(attribute.String("bootstrap.status", result.Status))
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.ErrorContext(ctx, "bootstrap failed", "error", err)
	case result.Status == StatusError:
		span.SetStatus(codes.Error, "one or more bootstrap phases failed")
		slog.WarnContext(ctx, "bootstrap completed with errors", "status", result.Status)
	default:
		span.SetStatus(codes.Ok, "")
		slog.InfoContext(ctx, "bootstrap completed", "status", result.Status)
	}

	b.resultMu.Lock()
	b.lastResult = result
	b.resultMu.Unlock()

	return result, err
}

func (b *Bootstrapper) runDatabase(ctx context.Context, rec *recorder) (Summary, error) {
	var summary Summary

	slog.InfoContext(ctx, "connecting to database")
	conn, err := b.db.Connect(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrConnection, err)
		rec.fail(ctx, PhaseConnect, err)
		return summary, err
	}
	defer release(ctx, conn)

	tx, err := conn.Begin(ctx)
	if err != nil {
		err = fmt.Errorf("beginning transaction: %w", err)
		rec.fail(ctx, PhaseConnect, err)
		return summary, err
	}
	rec.ok(ctx, PhaseConnect, "")

	committed := false
	defer func() {
		if committed {
			return
		}
		rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if rbErr := tx.Rollback(rbCtx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			slog.WarnContext(ctx, "rolling back bootstrap transaction", "error", rbErr)
		}
	}()

	slog.InfoContext(ctx, "creating tables")
	tables := []struct {
		phase   string
		table   store.Table
		created *bool
	}{
		{PhaseEnsureCategories, store.CategoriesTable, &summary.CategoriesCreated},
		{PhaseEnsureProducts, store.ProductsTable, &summary.ProductsCreated},
	}
	for _, t := range tables {
		created, err := store.EnsureTable(ctx, tx, t.table)
		if err != nil {
			rec.fail(ctx, t.phase, err)
			return summary, err
		}
		*t.created = created
		rec.ok(ctx, t.phase, tableDetail(created))
	}

	if b.seed {
		slog.InfoContext(ctx, "inserting sample data")

		n, err := store.SeedCategories(ctx, tx, b.categories)
		if err != nil {
			rec.fail(ctx, PhaseSeedCategories, err)
			return summary, err
		}
		summary.CategoriesInserted = n
		rec.ok(ctx, PhaseSeedCategories, seedDetail(n))

		n, err = store.SeedProducts(ctx, tx, b.products)
		if err != nil {
			rec.fail(ctx, PhaseSeedProducts, err)
			return summary, err
		}
		summary.ProductsInserted = n
		rec.ok(ctx, PhaseSeedProducts, seedDetail(n))
	} else {
		rec.skip(ctx, PhaseSeedCategories, "seeding disabled")
		rec.skip(ctx, PhaseSeedProducts, "seeding disabled")
	}

	if err := tx.Commit(ctx); err != nil {
		err = fmt.Errorf("committing bootstrap transaction: %w", err)
		rec.fail(ctx, PhaseCommit, err)
		return summary, err
	}
	committed = true
	rec.ok(ctx, PhaseCommit, "")

	summary.CompletedAt = time.Now().UTC()
	b.rows.Add(ctx, int64(summary.CategoriesInserted),
		metric.WithAttributes(attribute.String("table", store.CategoriesTable.Name)))
	b.rows.Add(ctx, int64(summary.ProductsInserted),
		metric.WithAttributes(attribute.String("table", store.ProductsTable.Name)))

	slog.InfoContext(ctx, "database initialization completed",
		"categories_inserted", summary.CategoriesInserted,
		"products_inserted", summary.ProductsInserted,
	)
	return summary, nil
}

func (b *Bootstrapper) runCache(ctx context.Context, rec *recorder) {
	if b.cache == nil {
		rec.skip(ctx, PhaseCache, "not configured")
		return
	}
	n, err := b.cache.InvalidateCatalog(ctx)
	if err != nil {
		rec.fail(ctx, PhaseCache, err)
		return
	}
	rec.ok(ctx, PhaseCache, fmt.Sprintf("removed %d keys", n))
}

func (b *Bootstrapper) runEvents(ctx context.Context, rec *recorder, s Summary) {
	if b.events == nil {
		rec.skip(ctx, PhaseEvents, "not configured")
		return
	}
	if err := b.events.PublishBootstrapCompleted(ctx, s); err != nil {
		rec.fail(ctx, PhaseEvents, err)
		return
	}
	rec.ok(ctx, PhaseEvents, "published")
}

// RunDeepHealth probes the database and every configured optional dependency
// concurrently and returns a map of dependency name to ProbeResult.
func (b *Bootstrapper) RunDeepHealth(ctx context.Context) map[string]ProbeResult {
	results := make(map[string]ProbeResult, 3)
	var mu sync.Mutex
	var g errgroup.Group

	probe := func(name string, fn func(context.Context) ProbeResult) {
		g.Go(func() error {
			p := fn(ctx)
			mu.Lock()
			results[name] = p
			mu.Unlock()
			return nil
		})
	}

	probe("postgres", b.db.Probe)
	if b.cache != nil {
		probe("redis", b.cache.Probe)
	}
	if b.events != nil {
		probe("nats", b.events.Probe)
	}

	_ = g.Wait()
	return results
}

// IsBootstrapInProgress returns true while a bootstrap run is active.
func (b *Bootstrapper) IsBootstrapInProgress() bool {
	return b.inProgress.Load()
}

// IsReady returns true if the last bootstrap completed with StatusOK.
func (b *Bootstrapper) IsReady() bool {
	b.resultMu.RLock()
	defer b.resultMu.RUnlock()
	return b.lastResult != nil && b.lastResult.Status == StatusOK
}

// LastResult returns the result of the most recent run, or nil.
func (b *Bootstrapper) LastResult() *Result {
	b.resultMu.RLock()
	defer b.resultMu.RUnlock()
	return b.lastResult
}

func release(ctx context.Context, conn store.Conn) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := conn.Close(closeCtx); err != nil {
		slog.WarnContext(ctx, "closing database connection", "error", err)
	}
}

func tableDetail(created bool) string {
	if created {
		return "created"
	}
	return "already exists"
}

func seedDetail(n int) string {
	if n == 0 {
		return "table not empty"
	}
	return fmt.Sprintf("inserted %d rows", n)
}
