// Package geojson reads glacier and region snapshots from GeoJSON files.
// It exists for fixture-driven local runs and tests; production deployments
// read the same shapes from Postgres.
package geojson

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	orbgeojson "github.com/paulmach/orb/geojson"

	"github.com/cryodata/glacier-attrs-etl/internal/domain"
)

// Source implements refresh.Source over a directory of GeoJSON files: one
// <glacierTable>.geojson plus one <spec.Table>.geojson per region family.
type Source struct {
	dir          string
	glacierTable string
}

func NewSource(dir, glacierTable string) *Source {
	return &Source{dir: dir, glacierTable: glacierTable}
}

// Glaciers loads the glacier feature collection. Feature properties follow
// the source table columns: id, glims_id, name, area_km2, zmax, zmin,
// classification.
func (s *Source) Glaciers(_ context.Context) ([]domain.Glacier, error) {
	fc, err := s.load(s.glacierTable)
	if err != nil {
		return nil, err
	}

	glaciers := make([]domain.Glacier, 0, len(fc.Features))
	for _, f := range fc.Features {
		geom, err := toMultiPolygon(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("glacier %s: %w", f.Properties.MustString("id", "?"), err)
		}
		glaciers = append(glaciers, domain.Glacier{
			ID:      f.Properties.MustString("id", ""),
			GLIMSID: f.Properties.MustString("glims_id", ""),
			Name:    f.Properties.MustString("name", ""),
			AreaKm2: f.Properties.MustFloat64("area_km2", 0),
			ZMax:    f.Properties.MustFloat64("zmax", 0),
			ZMin:    f.Properties.MustFloat64("zmin", 0),
			Class:   f.Properties.MustString("classification", ""),
			Geom:    geom,
		})
	}
	return glaciers, nil
}

// Regions loads one family's boundary feature collection.
func (s *Source) Regions(_ context.Context, spec domain.JoinSpec) ([]domain.Region, error) {
	fc, err := s.load(spec.Table)
	if err != nil {
		return nil, err
	}

	regions := make([]domain.Region, 0, len(fc.Features))
	for _, f := range fc.Features {
		geom, err := toMultiPolygon(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("region %s: %w", f.Properties.MustString("id", "?"), err)
		}
		regions = append(regions, domain.Region{
			ID:    f.Properties.MustString("id", ""),
			Label: f.Properties.MustString(spec.LabelColumn, ""),
			Geom:  geom,
		})
	}
	return regions, nil
}

func (s *Source) load(table string) (*orbgeojson.FeatureCollection, error) {
	path := filepath.Join(s.dir, table+".geojson")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	fc, err := orbgeojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

func toMultiPolygon(geom orb.Geometry) (orb.MultiPolygon, error) {
	switch g := geom.(type) {
	case orb.Polygon:
		return orb.MultiPolygon{g}, nil
	case orb.MultiPolygon:
		return g, nil
	default:
		return nil, fmt.Errorf("unsupported geometry type %T", geom)
	}
}
