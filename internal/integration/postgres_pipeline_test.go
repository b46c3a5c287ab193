//go:build integration

package integration_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	postgresadapter "github.com/cryodata/glacier-attrs-etl/internal/adapter/postgres"
	"github.com/cryodata/glacier-attrs-etl/internal/domain"
	"github.com/cryodata/glacier-attrs-etl/internal/observability"
	"github.com/cryodata/glacier-attrs-etl/internal/refresh"
)

var testSpecs = []domain.JoinSpec{
	{Family: "range", Table: "mountain_ranges", LabelColumn: "name"},
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startPostgres spins up a throwaway Postgres container and returns a pool
// connected to it.
func startPostgres(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("glacier"),
		tcpostgres.WithUsername("glacier"),
		tcpostgres.WithPassword("glacier"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func square(x, y, side float64) orb.MultiPolygon {
	return orb.MultiPolygon{{{
		{x, y}, {x + side, y}, {x + side, y + side}, {x, y + side}, {x, y},
	}}}
}

// seedSourceTables creates the inventory tables and loads two glaciers and
// one mountain range. G1 sits inside the Kenai Mountains; G2 is far outside.
func seedSourceTables(ctx context.Context, t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	_, err := pool.Exec(ctx, `
		CREATE TABLE glaciers (
			id TEXT PRIMARY KEY,
			glims_id TEXT,
			name TEXT,
			area_km2 DOUBLE PRECISION NOT NULL,
			zmax DOUBLE PRECISION,
			zmin DOUBLE PRECISION,
			classification TEXT,
			geom BYTEA NOT NULL
		)`)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `
		CREATE TABLE mountain_ranges (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			geom BYTEA NOT NULL
		)`)
	require.NoError(t, err)

	glaciers := []struct {
		id, glimsID, name, class string
		area, zmax, zmin         float64
		geom                     orb.MultiPolygon
	}{
		{"G1", "G213717E61251N", "Bear Glacier", "5103", 4.5, 1920, 310, square(2, 2, 2)},
		{"G2", "G214900E60450N", "Skilak Glacier", "5231", 9.1, 1460, 95, square(50, 50, 2)},
	}
	for _, g := range glaciers {
		geomWKB, err := wkb.Marshal(g.geom)
		require.NoError(t, err)
		_, err = pool.Exec(ctx,
			`INSERT INTO glaciers (id, glims_id, name, area_km2, zmax, zmin, classification, geom)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			g.id, g.glimsID, g.name, g.area, g.zmax, g.zmin, g.class, geomWKB)
		require.NoError(t, err)
	}

	rangeWKB, err := wkb.Marshal(square(0, 0, 10))
	require.NoError(t, err)
	_, err = pool.Exec(ctx,
		`INSERT INTO mountain_ranges (id, name, geom) VALUES ($1, $2, $3)`,
		"R7", "Kenai Mountains", rangeWKB)
	require.NoError(t, err)
}

type publishedRow struct {
	ID           string
	Name         string
	TerminusType *int
	Surging      bool
	RangeName    *string
}

func readPublished(ctx context.Context, t *testing.T, pool *pgxpool.Pool) []publishedRow {
	t.Helper()

	rows, err := pool.Query(ctx,
		`SELECT id, name, terminus_type, surging, "range" FROM glacier_attributes ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	var out []publishedRow
	for rows.Next() {
		var r publishedRow
		require.NoError(t, rows.Scan(&r.ID, &r.Name, &r.TerminusType, &r.Surging, &r.RangeName))
		out = append(out, r)
	}
	require.NoError(t, rows.Err())
	return out
}

// TestPostgresPipelineEndToEnd wires the real source, controller, and
// publisher against a live Postgres and verifies the published table.
func TestPostgresPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool := startPostgres(ctx, t)
	seedSourceTables(ctx, t, pool)

	source := postgresadapter.NewSource(pool, "glaciers")
	publisher := postgresadapter.NewPublisher(pool, discardLogger())
	controller := refresh.New(source, publisher, nil, testSpecs,
		discardLogger(), observability.NewMetricsForTesting(), clockwork.NewRealClock())

	res, err := controller.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)

	published := readPublished(ctx, t, pool)
	require.Len(t, published, 2)

	g1 := published[0]
	assert.Equal(t, "G1", g1.ID)
	assert.Equal(t, "Bear Glacier", g1.Name)
	require.NotNil(t, g1.TerminusType)
	assert.Equal(t, 1, *g1.TerminusType)
	assert.False(t, g1.Surging)
	require.NotNil(t, g1.RangeName)
	assert.Equal(t, "Kenai Mountains", *g1.RangeName)

	g2 := published[1]
	assert.Equal(t, "G2", g2.ID)
	require.NotNil(t, g2.TerminusType)
	assert.Equal(t, 2, *g2.TerminusType)
	assert.True(t, g2.Surging)
	assert.Nil(t, g2.RangeName, "outside every range")
}

// TestPostgresPipelineIdempotentRepublish runs a second refresh over
// unchanged inputs and verifies the table contents are identical.
func TestPostgresPipelineIdempotentRepublish(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool := startPostgres(ctx, t)
	seedSourceTables(ctx, t, pool)

	source := postgresadapter.NewSource(pool, "glaciers")
	publisher := postgresadapter.NewPublisher(pool, discardLogger())
	controller := refresh.New(source, publisher, nil, testSpecs,
		discardLogger(), observability.NewMetricsForTesting(), clockwork.NewRealClock())

	_, err := controller.Refresh(ctx)
	require.NoError(t, err)
	first := readPublished(ctx, t, pool)

	res, err := controller.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)
	second := readPublished(ctx, t, pool)

	assert.Equal(t, first, second)
}

// TestPostgresPublishLockConflict holds the publish advisory lock on a
// separate connection and verifies a refresh reports the conflict instead of
// waiting or clobbering the table.
func TestPostgresPublishLockConflict(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool := startPostgres(ctx, t)
	seedSourceTables(ctx, t, pool)

	// A rival publisher in another process, simulated by grabbing the lock
	// on a dedicated connection.
	rival, err := pool.Acquire(ctx)
	require.NoError(t, err)
	defer rival.Release()
	var locked bool
	require.NoError(t, rival.QueryRow(ctx,
		`SELECT pg_try_advisory_lock($1)`, postgresadapter.PublishLockKey).Scan(&locked))
	require.True(t, locked)

	source := postgresadapter.NewSource(pool, "glaciers")
	publisher := postgresadapter.NewPublisher(pool, discardLogger())
	controller := refresh.New(source, publisher, nil, testSpecs,
		discardLogger(), observability.NewMetricsForTesting(), clockwork.NewRealClock())

	_, err = controller.Refresh(ctx)
	require.ErrorIs(t, err, refresh.ErrRefreshInFlight)

	// Release the lock; the next refresh publishes normally.
	_, err = rival.Exec(ctx, `SELECT pg_advisory_unlock($1)`, postgresadapter.PublishLockKey)
	require.NoError(t, err)

	res, err := controller.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)
}
