package domain

import (
	"github.com/paulmach/orb"
)

// Glacier is one polygon record from the inventory's base table. Records are
// produced by the external ingestion process; this service never mutates them.
type Glacier struct {
	ID      string           // stable inventory identifier, unique key
	GLIMSID string           // secondary identifier from the GLIMS registry
	Name    string           // display name, often empty for unnamed glaciers
	AreaKm2 float64          // planimetric area in km²
	ZMax    float64          // maximum elevation, metres
	ZMin    float64          // minimum elevation, metres
	Class   string           // packed 4-digit classification code, see doc.go
	Geom    orb.MultiPolygon // outline in the inventory's projected CRS
}

// Region is one boundary polygon used purely for spatial attribution.
type Region struct {
	ID    string
	Label string
	Geom  orb.MultiPolygon
}

// JoinSpec configures one region family: which table supplies the boundaries
// and which output column receives the resolved label. Families are a
// configurable list, not a hardcoded pair.
type JoinSpec struct {
	Family      string // output column name on the canonical row
	Table       string // source table (or fixture file basename)
	LabelColumn string // column holding the region label attribute
}

// CanonicalRow is the denormalized output row, exactly one per glacier ID.
// Rows are a pure function of the inputs: recomputing against unchanged
// sources reproduces an identical row set.
type CanonicalRow struct {
	ID      string           `json:"id"`
	GLIMSID string           `json:"glims_id,omitempty"`
	Name    string           `json:"name,omitempty"`
	AreaKm2 float64          `json:"area_km2"`
	ZMax    float64          `json:"zmax"`
	ZMin    float64          `json:"zmin"`
	Geom    orb.MultiPolygon `json:"geometry,omitempty"`

	// TerminusType holds the decoded integer code (0 land, 1 tidewater,
	// 2 lake); nil when the classification digit is unrecognized.
	TerminusType *int `json:"terminus_type,omitempty"`
	Surging      bool `json:"surging"`

	// Regions maps family name to the resolved region label. A family whose
	// containment test matched nothing is simply absent from the map.
	Regions map[string]string `json:"regions,omitempty"`
}
