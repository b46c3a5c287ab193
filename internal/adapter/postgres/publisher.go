package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/cryodata/glacier-attrs-etl/internal/domain"
	"github.com/cryodata/glacier-attrs-etl/internal/refresh"
)

const (
	canonicalTable = "glacier_attributes"
	stagingTable   = "glacier_attributes_staging"

	// PublishLockKey is the advisory lock serializing publishers across
	// processes. Arbitrary but fixed; every deployment of this service must
	// agree on it.
	PublishLockKey = int64(702_551_834)
)

// Publisher implements refresh.Publisher by rebuilding the canonical table in
// a staging table and swapping it in within a single transaction. Readers of
// the table see either the old or the new row set; DDL is transactional in
// Postgres, so a failed publish rolls back to the previous table untouched.
type Publisher struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPublisher(pool *pgxpool.Pool, logger *slog.Logger) *Publisher {
	return &Publisher{pool: pool, logger: logger}
}

// Publish replaces the canonical table with the snapshot's rows. It returns
// refresh.ErrRefreshInFlight when another process holds the publish lock.
func (p *Publisher) Publish(ctx context.Context, snap *refresh.Snapshot, specs []domain.JoinSpec) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, PublishLockKey).Scan(&locked); err != nil {
		return fmt.Errorf("acquire publish lock: %w", err)
	}
	if !locked {
		return refresh.ErrRefreshInFlight
	}
	defer func() {
		// Unlock must run even when ctx is already cancelled.
		if _, err := conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, PublishLockKey); err != nil {
			p.logger.Warn("release publish lock failed", "error", err)
		}
	}()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin publish transaction: %w", err)
	}
	defer tx.Rollback(context.WithoutCancel(ctx)) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, pgx.Identifier{stagingTable}.Sanitize())); err != nil {
		return fmt.Errorf("drop stale staging table: %w", err)
	}
	if _, err := tx.Exec(ctx, createStagingSQL(specs)); err != nil {
		return fmt.Errorf("create staging table: %w", err)
	}

	columns := []string{"id", "glims_id", "name", "area_km2", "zmax", "zmin", "geom", "terminus_type", "surging"}
	for _, spec := range specs {
		columns = append(columns, spec.Family)
	}

	rows := snap.Rows
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{stagingTable}, columns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			row := rows[i]
			geomWKB, err := wkb.Marshal(row.Geom)
			if err != nil {
				return nil, fmt.Errorf("encode geometry for %s: %w", row.ID, err)
			}
			values := []any{row.ID, row.GLIMSID, row.Name, row.AreaKm2, row.ZMax, row.ZMin, geomWKB, row.TerminusType, row.Surging}
			for _, spec := range specs {
				if label, ok := row.Regions[spec.Family]; ok {
					values = append(values, label)
				} else {
					values = append(values, nil)
				}
			}
			return values, nil
		}),
	); err != nil {
		return fmt.Errorf("copy rows into staging table: %w", err)
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, pgx.Identifier{canonicalTable}.Sanitize())); err != nil {
		return fmt.Errorf("drop previous canonical table: %w", err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(`ALTER TABLE %s RENAME TO %s`,
		pgx.Identifier{stagingTable}.Sanitize(), pgx.Identifier{canonicalTable}.Sanitize())); err != nil {
		return fmt.Errorf("swap staging into place: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit publish transaction: %w", err)
	}

	p.logger.Info("canonical table published", "run_id", snap.RunID, "rows", snap.Len())
	return nil
}

func createStagingSQL(specs []domain.JoinSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, `CREATE TABLE %s (`, pgx.Identifier{stagingTable}.Sanitize())
	b.WriteString(`id TEXT PRIMARY KEY, glims_id TEXT, name TEXT, ` +
		`area_km2 DOUBLE PRECISION NOT NULL, zmax DOUBLE PRECISION, zmin DOUBLE PRECISION, ` +
		`geom BYTEA NOT NULL, terminus_type INTEGER, surging BOOLEAN NOT NULL`)
	for _, spec := range specs {
		fmt.Fprintf(&b, `, %s TEXT`, pgx.Identifier{spec.Family}.Sanitize())
	}
	b.WriteString(`)`)
	return b.String()
}
