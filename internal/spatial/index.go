package spatial

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/cryodata/glacier-attrs-etl/internal/domain"
)

// regionEntry pairs a region with its precomputed bounding box so the exact
// containment test only runs on bbox hits.
type regionEntry struct {
	region domain.Region
	bound  orb.Bound
}

// index is a uniform grid over one family's regions. Each cell lists the
// regions whose bounding box overlaps it; a point query inspects a single
// cell. Region boundaries are a few thousand rows at most, so a uniform grid
// beats the full scan without the bookkeeping of an R-tree.
type index struct {
	entries []regionEntry // sorted by region ID
	bound   orb.Bound
	cols    int
	rows    int
	cellW   float64
	cellH   float64
	cells   [][]int // entry indices per cell, preserving ID order
}

func newIndex(regions []domain.Region) *index {
	entries := make([]regionEntry, 0, len(regions))
	for _, r := range regions {
		if len(r.Geom) == 0 {
			continue
		}
		entries = append(entries, regionEntry{region: r, bound: r.Geom.Bound()})
	}
	// ID order here is what makes candidate ordering, and therefore the
	// tie-break, independent of source row order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].region.ID < entries[j].region.ID
	})

	ix := &index{entries: entries}
	if len(entries) == 0 {
		return ix
	}

	ix.bound = entries[0].bound
	for _, e := range entries[1:] {
		ix.bound = ix.bound.Union(e.bound)
	}

	side := int(math.Ceil(math.Sqrt(float64(len(entries)))))
	if side < 1 {
		side = 1
	}
	ix.cols, ix.rows = side, side
	ix.cellW = (ix.bound.Max[0] - ix.bound.Min[0]) / float64(ix.cols)
	ix.cellH = (ix.bound.Max[1] - ix.bound.Min[1]) / float64(ix.rows)
	ix.cells = make([][]int, ix.cols*ix.rows)

	for i, e := range entries {
		c0, r0 := ix.cellAt(e.bound.Min)
		c1, r1 := ix.cellAt(e.bound.Max)
		for row := r0; row <= r1; row++ {
			for col := c0; col <= c1; col++ {
				cell := row*ix.cols + col
				ix.cells[cell] = append(ix.cells[cell], i)
			}
		}
	}

	return ix
}

// cellAt clamps a point into grid coordinates. Degenerate extents (a single
// region, or all regions sharing an edge) collapse to cell zero.
func (ix *index) cellAt(pt orb.Point) (col, row int) {
	if ix.cellW > 0 {
		col = int((pt[0] - ix.bound.Min[0]) / ix.cellW)
	}
	if ix.cellH > 0 {
		row = int((pt[1] - ix.bound.Min[1]) / ix.cellH)
	}
	if col < 0 {
		col = 0
	}
	if col >= ix.cols {
		col = ix.cols - 1
	}
	if row < 0 {
		row = 0
	}
	if row >= ix.rows {
		row = ix.rows - 1
	}
	return col, row
}

// candidates returns the ID-ordered regions containing pt using the grid.
func (ix *index) candidates(pt orb.Point) []Candidate {
	if len(ix.entries) == 0 || !ix.bound.Contains(pt) {
		return nil
	}

	col, row := ix.cellAt(pt)
	var out []Candidate
	for _, i := range ix.cells[row*ix.cols+col] {
		e := ix.entries[i]
		if e.bound.Contains(pt) && planar.MultiPolygonContains(e.region.Geom, pt) {
			out = append(out, Candidate{RegionID: e.region.ID, Label: e.region.Label})
		}
	}
	return out
}

// candidatesScan is the reference O(regions) implementation. The grid must
// produce identical results; tests cross-check the two.
func (ix *index) candidatesScan(pt orb.Point) []Candidate {
	var out []Candidate
	for _, e := range ix.entries {
		if e.bound.Contains(pt) && planar.MultiPolygonContains(e.region.Geom, pt) {
			out = append(out, Candidate{RegionID: e.region.ID, Label: e.region.Label})
		}
	}
	return out
}
