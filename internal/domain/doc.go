// Package domain models glacier inventory records and the decoding of their
// packed classification codes.
//
// # Data Source
//
// The base glacier table follows the conventions of regional glacier
// inventories derived from GLIMS outlines: each record carries a stable
// inventory ID, the GLIMS registry ID, a polygon outline in a projected
// coordinate system, planimetric area, elevation bounds, and a packed
// classification string. An external ingestion process acquires and loads
// the raw outlines; this service treats the tables as read-only snapshots.
//
// # Classification Code
//
// The classification is a fixed 4-character digit string in the style of the
// WGMS/GLIMS primary classification. Only two positions matter here:
//
//	digit 2 (1-indexed): terminus type
//	  '0' → land-terminating
//	  '1' → tidewater
//	  '2' → lake-terminating
//	  anything else → unknown (published as NULL)
//
//	digit 3: surge behavior
//	  '1' (observed) or '3' (probable) → surging
//	  anything else → not surging
//
// Inventories carry placeholder and legacy codes ("XX9X", truncated strings,
// empty values), so decoding is deliberately total: unrecognized input
// degrades to unknown/false and is counted in metrics, never surfaced as a
// refresh failure. See [DecodeClassification].
//
// # Region Attribution
//
// Regions are boundary polygons (mountain-range groupings, drainage basins)
// used purely to attribute glaciers spatially. A glacier belongs to the
// region containing its polygon centroid; each configured region family
// yields one independent, nullable column on the canonical row. The
// containment and tie-break rules live in the spatial package.
package domain
