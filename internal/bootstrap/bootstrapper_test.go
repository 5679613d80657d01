package bootstrap

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-platform/seeder/internal/catalog"
	"catalog-platform/seeder/internal/store"
	"catalog-platform/seeder/internal/store/storetest"
)

// --- mock implementations ---

type fakeDB struct {
	conn       *storetest.DB
	connectErr error
	probe      ProbeResult
}

func (f *fakeDB) Connect(_ context.Context) (store.Conn, error) {
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	return f.conn, nil
}

func (f *fakeDB) Probe(_ context.Context) ProbeResult { return f.probe }

// blockingDB blocks in Connect until released.
type blockingDB struct {
	ready chan struct{} // closed when Connect is entered
	done  chan struct{} // close to unblock Connect
}

func (b *blockingDB) Connect(_ context.Context) (store.Conn, error) {
	close(b.ready)
	<-b.done
	return storetest.New(), nil
}

func (b *blockingDB) Probe(_ context.Context) ProbeResult { return ProbeResult{OK: true} }

type fakeCache struct {
	removed int64
	err     error
	calls   int
	probe   ProbeResult
}

func (f *fakeCache) InvalidateCatalog(_ context.Context) (int64, error) {
	f.calls++
	return f.removed, f.err
}

func (f *fakeCache) Probe(_ context.Context) ProbeResult { return f.probe }

type fakeEvents struct {
	err       error
	published []Summary
	probe     ProbeResult
}

func (f *fakeEvents) PublishBootstrapCompleted(_ context.Context, s Summary) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, s)
	return nil
}

func (f *fakeEvents) Probe(_ context.Context) ProbeResult { return f.probe }

// --- helpers ---

func newDB(conn *storetest.DB) *fakeDB {
	return &fakeDB{conn: conn, probe: ProbeResult{Name: "postgres", OK: true}}
}

func phaseStatus(t *testing.T, r *Result, name string) PhaseResult {
	t.Helper()
	p, ok := r.Phase(name)
	require.True(t, ok, "expected phase %q to exist", name)
	return p
}

// --- tests ---

func TestRunBootstrap_EmptyDatabase(t *testing.T) {
	t.Parallel()

	conn := storetest.New()
	b := New(newDB(conn), nil, nil, true)

	result, err := b.RunBootstrap(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, StatusOK, result.Status)
	require.Len(t, result.Phases, len(Phases))
	for i, name := range Phases {
		assert.Equal(t, name, result.Phases[i].Name)
	}

	assert.Equal(t, "created", phaseStatus(t, result, PhaseEnsureCategories).Detail)
	assert.Equal(t, "created", phaseStatus(t, result, PhaseEnsureProducts).Detail)
	assert.Equal(t, "inserted 3 rows", phaseStatus(t, result, PhaseSeedCategories).Detail)
	assert.Equal(t, "inserted 3 rows", phaseStatus(t, result, PhaseSeedProducts).Detail)
	assert.Equal(t, StatusSkipped, phaseStatus(t, result, PhaseCache).Status)
	assert.Equal(t, StatusSkipped, phaseStatus(t, result, PhaseEvents).Status)

	assert.Len(t, conn.Categories, 3)
	assert.Len(t, conn.Products, 3)
	assert.Equal(t, []int64{1, 1, 2}, conn.CategoryIDs())
	assert.Equal(t, 1, conn.Commits)
	assert.Equal(t, 0, conn.Rollbacks)
	assert.Equal(t, 1, conn.Closes)
	assert.False(t, result.FinishedAt.Before(result.StartedAt))
}

func TestRunBootstrap_RerunIsIdempotent(t *testing.T) {
	t.Parallel()

	conn := storetest.New()
	b := New(newDB(conn), nil, nil, true)

	_, err := b.RunBootstrap(context.Background())
	require.NoError(t, err)

	result, err := b.RunBootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusOK, result.Status)

	assert.Equal(t, "already exists", phaseStatus(t, result, PhaseEnsureCategories).Detail)
	assert.Equal(t, "already exists", phaseStatus(t, result, PhaseEnsureProducts).Detail)
	assert.Equal(t, "table not empty", phaseStatus(t, result, PhaseSeedCategories).Detail)
	assert.Equal(t, "table not empty", phaseStatus(t, result, PhaseSeedProducts).Detail)

	assert.Len(t, conn.Categories, 3)
	assert.Len(t, conn.Products, 3)
	assert.Equal(t, 2, conn.Commits)
	assert.Equal(t, 2, conn.Closes)
}

func TestRunBootstrap_PartiallyPopulated(t *testing.T) {
	t.Parallel()

	// Categories hold rows from elsewhere; only Products gets seeded, with
	// foreign keys resolved against the existing names.
	conn := storetest.Seeded([]catalog.Category{
		{ID: 4, Name: "Books"},
		{ID: 5, Name: "Clothing"},
		{ID: 6, Name: "Electronics"},
	}, nil)
	b := New(newDB(conn), nil, nil, true)

	result, err := b.RunBootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusOK, result.Status)
	assert.Equal(t, "table not empty", phaseStatus(t, result, PhaseSeedCategories).Detail)
	assert.Equal(t, "inserted 3 rows", phaseStatus(t, result, PhaseSeedProducts).Detail)
	assert.Len(t, conn.Categories, 3)
	assert.Equal(t, []int64{6, 6, 5}, conn.CategoryIDs())
}

func TestRunBootstrap_ConnectFailure(t *testing.T) {
	t.Parallel()

	cache := &fakeCache{}
	events := &fakeEvents{}
	db := &fakeDB{connectErr: errors.New("dial tcp 10.0.0.1:5432: connect: connection refused")}
	b := New(db, cache, events, true)

	result, err := b.RunBootstrap(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)
	assert.Contains(t, err.Error(), "connection refused")

	require.NotNil(t, result)
	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, StatusError, phaseStatus(t, result, PhaseConnect).Status)
	for _, name := range Phases[1:] {
		p := phaseStatus(t, result, name)
		assert.Equal(t, StatusSkipped, p.Status, "phase %q should be skipped", name)
		assert.Equal(t, "not reached", p.Detail)
	}
	assert.Zero(t, cache.calls)
	assert.Empty(t, events.published)
}

func TestRunBootstrap_StepFailureRollsBack(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		setup      func(*storetest.DB)
		failPhase  string
		wantRollbk int
	}{
		{
			name: "create categories fails",
			setup: func(db *storetest.DB) {
				db.FailOn = map[string]error{`CREATE TABLE "Categories"`: errors.New("permission denied")}
			},
			failPhase:  PhaseEnsureCategories,
			wantRollbk: 1,
		},
		{
			name: "create products fails",
			setup: func(db *storetest.DB) {
				db.FailOn = map[string]error{`CREATE TABLE "Products"`: errors.New("permission denied")}
			},
			failPhase:  PhaseEnsureProducts,
			wantRollbk: 1,
		},
		{
			name: "insert category fails",
			setup: func(db *storetest.DB) {
				db.FailOn = map[string]error{`INSERT INTO "Categories"`: errors.New("disk full")}
			},
			failPhase:  PhaseSeedCategories,
			wantRollbk: 1,
		},
		{
			name: "insert product fails",
			setup: func(db *storetest.DB) {
				db.FailOn = map[string]error{`INSERT INTO "Products"`: errors.New("disk full")}
			},
			failPhase:  PhaseSeedProducts,
			wantRollbk: 1,
		},
		{
			name:       "commit fails",
			setup:      func(db *storetest.DB) { db.CommitErr = errors.New("connection reset by peer") },
			failPhase:  PhaseCommit,
			wantRollbk: 0,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			conn := storetest.New()
			tc.setup(conn)
			cache := &fakeCache{}
			b := New(newDB(conn), cache, nil, true)

			result, err := b.RunBootstrap(context.Background())
			require.Error(t, err)
			assert.NotErrorIs(t, err, ErrConnection)
			assert.Equal(t, StatusError, result.Status)
			assert.Equal(t, StatusError, phaseStatus(t, result, tc.failPhase).Status)

			// Nothing from the failed run survives.
			assert.Empty(t, conn.Tables)
			assert.Empty(t, conn.Categories)
			assert.Empty(t, conn.Products)
			assert.Equal(t, 0, conn.Commits)
			assert.Equal(t, tc.wantRollbk, conn.Rollbacks)
			assert.Equal(t, 1, conn.Closes)
			assert.Zero(t, cache.calls, "cache must not be touched after a failed sequence")
		})
	}
}

func TestRunBootstrap_MissingCategoryAborts(t *testing.T) {
	t.Parallel()

	conn := storetest.Seeded([]catalog.Category{{ID: 1, Name: "Garden"}}, nil)
	b := New(newDB(conn), nil, nil, true)

	result, err := b.RunBootstrap(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrCategoryNotFound)
	assert.Equal(t, StatusError, phaseStatus(t, result, PhaseSeedProducts).Status)
	assert.Equal(t, StatusSkipped, phaseStatus(t, result, PhaseCommit).Status)
	assert.Empty(t, conn.Products)
	assert.Equal(t, 1, conn.Rollbacks)
}

func TestRunBootstrap_BeginFailure(t *testing.T) {
	t.Parallel()

	conn := storetest.New()
	conn.BeginErr = errors.New("conn busy")
	b := New(newDB(conn), nil, nil, true)

	result, err := b.RunBootstrap(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "beginning transaction")
	assert.Equal(t, StatusError, phaseStatus(t, result, PhaseConnect).Status)
	assert.Equal(t, 1, conn.Closes)
}

func TestRunBootstrap_SchemaOnly(t *testing.T) {
	t.Parallel()

	conn := storetest.New()
	b := New(newDB(conn), nil, nil, false)

	result, err := b.RunBootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusOK, result.Status)

	for _, name := range []string{PhaseSeedCategories, PhaseSeedProducts} {
		p := phaseStatus(t, result, name)
		assert.Equal(t, StatusSkipped, p.Status)
		assert.Equal(t, "seeding disabled", p.Detail)
	}
	assert.True(t, conn.Tables[store.CategoriesTable.Name])
	assert.True(t, conn.Tables[store.ProductsTable.Name])
	assert.Empty(t, conn.Categories)
	assert.Empty(t, conn.Products)
	assert.Equal(t, 1, conn.Commits)
}

func TestRunBootstrap_PostCommitPhases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		cache       *fakeCache
		events      *fakeEvents
		wantStatus  string
		wantCache   string
		wantEvents  string
		wantPublish int
	}{
		{
			name:        "both succeed",
			cache:       &fakeCache{removed: 12},
			events:      &fakeEvents{},
			wantStatus:  StatusOK,
			wantCache:   StatusOK,
			wantEvents:  StatusOK,
			wantPublish: 1,
		},
		{
			name:        "cache fails",
			cache:       &fakeCache{err: errors.New("circuit open")},
			events:      &fakeEvents{},
			wantStatus:  StatusError,
			wantCache:   StatusError,
			wantEvents:  StatusOK,
			wantPublish: 1,
		},
		{
			name:        "events fail",
			cache:       &fakeCache{},
			events:      &fakeEvents{err: errors.New("nats: no responders available for request")},
			wantStatus:  StatusError,
			wantCache:   StatusOK,
			wantEvents:  StatusError,
			wantPublish: 0,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			conn := storetest.New()
			b := New(newDB(conn), tc.cache, tc.events, true)

			result, err := b.RunBootstrap(context.Background())
			require.NoError(t, err, "post-commit failures are reported through the result")
			assert.Equal(t, tc.wantStatus, result.Status)
			assert.Equal(t, tc.wantCache, phaseStatus(t, result, PhaseCache).Status)
			assert.Equal(t, tc.wantEvents, phaseStatus(t, result, PhaseEvents).Status)
			assert.Equal(t, 1, tc.cache.calls)
			assert.Equal(t, 1, conn.Commits, "database work stays committed")

			require.Len(t, tc.events.published, tc.wantPublish)
			if tc.wantPublish > 0 {
				s := tc.events.published[0]
				assert.True(t, s.CategoriesCreated)
				assert.True(t, s.ProductsCreated)
				assert.Equal(t, 3, s.CategoriesInserted)
				assert.Equal(t, 3, s.ProductsInserted)
				assert.False(t, s.CompletedAt.IsZero())
			}
		})
	}
}

func TestRunBootstrap_CacheDetail(t *testing.T) {
	t.Parallel()

	b := New(newDB(storetest.New()), &fakeCache{removed: 7}, nil, true)
	result, err := b.RunBootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "removed 7 keys", phaseStatus(t, result, PhaseCache).Detail)
}

func TestRunBootstrap_IsReady(t *testing.T) {
	t.Parallel()

	t.Run("not ready before bootstrap", func(t *testing.T) {
		t.Parallel()
		b := New(newDB(storetest.New()), nil, nil, true)
		assert.False(t, b.IsReady())
		assert.Nil(t, b.LastResult())
	})

	t.Run("ready after successful bootstrap", func(t *testing.T) {
		t.Parallel()
		b := New(newDB(storetest.New()), nil, nil, true)
		_, err := b.RunBootstrap(context.Background())
		require.NoError(t, err)
		assert.True(t, b.IsReady())
		require.NotNil(t, b.LastResult())
		assert.Equal(t, StatusOK, b.LastResult().Status)
	})

	t.Run("not ready after failed bootstrap", func(t *testing.T) {
		t.Parallel()
		b := New(&fakeDB{connectErr: errors.New("down")}, nil, nil, true)
		_, err := b.RunBootstrap(context.Background())
		require.Error(t, err)
		assert.False(t, b.IsReady())
		require.NotNil(t, b.LastResult())
		assert.Equal(t, StatusError, b.LastResult().Status)
	})
}

func TestRunBootstrap_InProgressGuard(t *testing.T) {
	t.Parallel()

	blocker := &blockingDB{
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
	b := New(blocker, nil, nil, true)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = b.RunBootstrap(context.Background())
	}()

	<-blocker.ready
	assert.True(t, b.IsBootstrapInProgress())

	_, err := b.RunBootstrap(context.Background())
	assert.ErrorIs(t, err, ErrBootstrapInProgress)

	close(blocker.done)
	wg.Wait()

	assert.False(t, b.IsBootstrapInProgress())
	assert.True(t, b.IsReady())
}

func TestRunDeepHealth(t *testing.T) {
	t.Parallel()

	t.Run("only database configured", func(t *testing.T) {
		t.Parallel()
		b := New(newDB(storetest.New()), nil, nil, true)

		results := b.RunDeepHealth(context.Background())
		assert.Len(t, results, 1)
		assert.True(t, results["postgres"].OK)
	})

	t.Run("all configured", func(t *testing.T) {
		t.Parallel()
		db := &fakeDB{probe: ProbeResult{Name: "postgres", OK: false, Error: "timeout"}}
		cache := &fakeCache{probe: ProbeResult{Name: "redis", OK: true}}
		events := &fakeEvents{probe: ProbeResult{Name: "nats", OK: true}}
		b := New(db, cache, events, true)

		results := b.RunDeepHealth(context.Background())
		assert.Len(t, results, 3)
		assert.False(t, results["postgres"].OK)
		assert.Equal(t, "timeout", results["postgres"].Error)
		assert.True(t, results["redis"].OK)
		assert.True(t, results["nats"].OK)
	})
}

func TestRecorder_FinishOrdersAndFillsPhases(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newRecorder()
	r.ok(ctx, PhaseCommit, "")
	r.ok(ctx, PhaseConnect, "")

	result := r.finish()
	require.Len(t, result.Phases, len(Phases))
	assert.Equal(t, PhaseConnect, result.Phases[0].Name)
	assert.Equal(t, StatusOK, result.Phases[0].Status)
	assert.Equal(t, StatusSkipped, result.Phases[1].Status)
	assert.Equal(t, StatusOK, result.Status, "skipped phases do not fail a run")

	_, ok := result.Phase("unknown")
	assert.False(t, ok)
}
