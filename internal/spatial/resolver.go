// Package spatial assigns glaciers to containing region polygons.
//
// A glacier's representative point is the geometric centroid of its outline,
// not a boundary point: a glacier whose centroid falls outside every region
// is unassigned even when its polygon overlaps one. Containment is evaluated
// against a per-family grid index; a full-scan variant exists to cross-check
// the index and must always agree with it.
package spatial

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/cryodata/glacier-attrs-etl/internal/domain"
)

// Candidate is one region whose polygon contains the query point.
type Candidate struct {
	RegionID string
	Label    string
}

// Resolver answers centroid-containment queries for a set of region families.
// It is immutable after Build and safe for concurrent readers.
type Resolver struct {
	families map[string]*index
}

// Build constructs a resolver from region snapshots keyed by family name.
func Build(regionsByFamily map[string][]domain.Region) *Resolver {
	families := make(map[string]*index, len(regionsByFamily))
	for family, regions := range regionsByFamily {
		families[family] = newIndex(regions)
	}
	return &Resolver{families: families}
}

// Centroid computes a glacier outline's representative point.
func Centroid(geom orb.MultiPolygon) orb.Point {
	center, _ := planar.CentroidArea(geom)
	return center
}

// Candidates returns every region in the family containing pt, ordered by
// region ID. Zero matches is an expected steady-state result for glaciers
// outside all known regions and yields an empty slice, not an error.
func (r *Resolver) Candidates(family string, pt orb.Point) []Candidate {
	ix, ok := r.families[family]
	if !ok {
		return nil
	}
	return ix.candidates(pt)
}

// Resolve applies the tie-break to the raw candidate set.
//
// Tie-break policy: when overlapping regions both claim a glacier, the region
// with the lexicographically smallest ID wins. The policy is a deliberate
// total order over region IDs; source row order is never consulted, so
// results are stable across reloads and reindexing.
//
// The returned slice normally holds zero or one candidate. It holds more only
// when the winning ID itself is duplicated in the source table, which the
// tie-break cannot order; the materializer turns that into an integrity
// failure rather than picking arbitrarily.
func (r *Resolver) Resolve(family string, pt orb.Point) []Candidate {
	matches := r.Candidates(family, pt)
	if len(matches) <= 1 {
		return matches
	}

	// Candidates arrive ID-sorted, so the winner and any ID duplicates of it
	// form a prefix.
	end := 1
	for end < len(matches) && matches[end].RegionID == matches[0].RegionID {
		end++
	}
	return matches[:end]
}
