// Package materialize joins decoded classification attributes with region
// assignments into the canonical row set, one row per glacier.
package materialize

import (
	"sort"

	"github.com/cryodata/glacier-attrs-etl/internal/domain"
	"github.com/cryodata/glacier-attrs-etl/internal/spatial"
)

// Rows derives the canonical row set for a glacier snapshot. For each glacier
// it decodes the packed classification and, for every family independently,
// resolves the region containing the glacier's centroid.
//
// Uniqueness on glacier ID is enforced here regardless of how many raw region
// matches existed before the tie-break. Two invariants fail the whole run
// rather than degrade: a duplicated glacier ID in the input, and more than
// one region candidate surviving the resolver's tie-break. Both are
// data-integrity defects that must surface with identifiers attached, not be
// papered over by picking an arbitrary row.
//
// The result is sorted by glacier ID so identical inputs produce identical
// output; callers must not attach meaning to the order.
func Rows(glaciers []domain.Glacier, resolver *spatial.Resolver, families []string) ([]domain.CanonicalRow, error) {
	seen := make(map[string]struct{}, len(glaciers))
	rows := make([]domain.CanonicalRow, 0, len(glaciers))

	for _, g := range glaciers {
		if _, dup := seen[g.ID]; dup {
			return nil, &domain.DuplicateGlacierError{GlacierID: g.ID}
		}
		seen[g.ID] = struct{}{}

		terminus, surging := domain.DecodeClassification(g.Class)
		row := domain.CanonicalRow{
			ID:      g.ID,
			GLIMSID: g.GLIMSID,
			Name:    g.Name,
			AreaKm2: g.AreaKm2,
			ZMax:    g.ZMax,
			ZMin:    g.ZMin,
			Geom:    g.Geom,
			Surging: surging,
		}
		if code, ok := terminus.Code(); ok {
			row.TerminusType = &code
		}

		centroid := spatial.Centroid(g.Geom)
		for _, family := range families {
			survivors := resolver.Resolve(family, centroid)
			switch {
			case len(survivors) == 0:
				// Expected for glaciers outside all known regions.
			case len(survivors) == 1:
				if row.Regions == nil {
					row.Regions = make(map[string]string, len(families))
				}
				row.Regions[family] = survivors[0].Label
			default:
				ids := make([]string, len(survivors))
				for i, s := range survivors {
					ids[i] = s.RegionID
				}
				return nil, &domain.JoinAmbiguityError{
					GlacierID: g.ID,
					Family:    family,
					RegionIDs: ids,
				}
			}
		}

		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, nil
}
