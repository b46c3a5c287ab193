// Package postgres reads source table snapshots and publishes the canonical
// attribute table. Geometries travel as WKB bytea; the ingestion process that
// loads raw outlines writes them that way.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/cryodata/glacier-attrs-etl/internal/domain"
)

// Source implements refresh.Source against the inventory database.
type Source struct {
	pool         *pgxpool.Pool
	glacierTable string
}

// NewSource creates a Source reading glaciers from glacierTable and regions
// from the table named by each join spec.
func NewSource(pool *pgxpool.Pool, glacierTable string) *Source {
	return &Source{pool: pool, glacierTable: glacierTable}
}

// Glaciers loads the base glacier table snapshot.
func (s *Source) Glaciers(ctx context.Context) ([]domain.Glacier, error) {
	query := fmt.Sprintf(
		`SELECT id, COALESCE(glims_id, ''), COALESCE(name, ''), area_km2, zmax, zmin, COALESCE(classification, ''), geom FROM %s`,
		pgx.Identifier{s.glacierTable}.Sanitize(),
	)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.glacierTable, err)
	}
	defer rows.Close()

	var glaciers []domain.Glacier
	for rows.Next() {
		var g domain.Glacier
		var geomWKB []byte
		if err := rows.Scan(&g.ID, &g.GLIMSID, &g.Name, &g.AreaKm2, &g.ZMax, &g.ZMin, &g.Class, &geomWKB); err != nil {
			return nil, fmt.Errorf("scan glacier row: %w", err)
		}
		g.Geom, err = decodeMultiPolygon(geomWKB)
		if err != nil {
			return nil, fmt.Errorf("glacier %s: %w", g.ID, err)
		}
		glaciers = append(glaciers, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", s.glacierTable, err)
	}
	return glaciers, nil
}

// Regions loads one region family's boundary table snapshot.
func (s *Source) Regions(ctx context.Context, spec domain.JoinSpec) ([]domain.Region, error) {
	query := fmt.Sprintf(
		`SELECT id, COALESCE(%s, ''), geom FROM %s`,
		pgx.Identifier{spec.LabelColumn}.Sanitize(),
		pgx.Identifier{spec.Table}.Sanitize(),
	)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", spec.Table, err)
	}
	defer rows.Close()

	var regions []domain.Region
	for rows.Next() {
		var r domain.Region
		var geomWKB []byte
		if err := rows.Scan(&r.ID, &r.Label, &geomWKB); err != nil {
			return nil, fmt.Errorf("scan region row: %w", err)
		}
		r.Geom, err = decodeMultiPolygon(geomWKB)
		if err != nil {
			return nil, fmt.Errorf("region %s: %w", r.ID, err)
		}
		regions = append(regions, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", spec.Table, err)
	}
	return regions, nil
}

// decodeMultiPolygon accepts Polygon or MultiPolygon WKB and normalizes to a
// MultiPolygon, matching how inventories mix the two for single-outline rows.
func decodeMultiPolygon(data []byte) (orb.MultiPolygon, error) {
	geom, err := wkb.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("decode wkb geometry: %w", err)
	}
	switch g := geom.(type) {
	case orb.Polygon:
		return orb.MultiPolygon{g}, nil
	case orb.MultiPolygon:
		return g, nil
	default:
		return nil, fmt.Errorf("unsupported geometry type %T", geom)
	}
}
