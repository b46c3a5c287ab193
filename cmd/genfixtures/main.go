// Command genfixtures generates deterministic GeoJSON fixtures for the
// attribute pipeline: a glaciers file plus one boundary file per region
// family. It runs the actual resolver and materializer over the generated
// data so the printed stats match real pipeline behavior.
//
// Usage:
//
//	go run ./cmd/genfixtures -out data/fixtures -glaciers 25 -seed 42
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	orbgeojson "github.com/paulmach/orb/geojson"

	"github.com/cryodata/glacier-attrs-etl/internal/domain"
	"github.com/cryodata/glacier-attrs-etl/internal/materialize"
	"github.com/cryodata/glacier-attrs-etl/internal/spatial"
)

// Fixtures live on a synthetic [0,100]x[0,100] plane. Mountain ranges tile
// most of it; drainage basins overlap the ranges on a different grid so
// glaciers pick up independent assignments per family.
var rangeNames = []string{
	"Kenai Mountains", "Chugach Mountains", "Alaska Range",
	"Wrangell Mountains", "Saint Elias Mountains", "Talkeetna Mountains",
}

var basinNames = []string{
	"Copper River", "Susitna River", "Kenai River", "Matanuska River",
}

var glacierNames = []string{
	"Bear", "Exit", "Aialik", "Holgate", "Skilak", "Portage",
	"Matanuska", "Knik", "Columbia", "Harvard", "Yale", "Tustumena",
}

// Codes cover every decode branch: land, tidewater, lake, surging variants,
// out-of-range digits, short and empty strings.
var classificationCodes = []string{
	"5003", "5103", "5110", "5201", "5231", "4030", "6130", "9999", "51", "",
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out", "", "output directory for GeoJSON fixture files")
	nGlaciers := flag.Int("glaciers", 25, "number of glaciers to generate")
	seed := flag.Int64("seed", 42, "random seed for reproducible fixtures")
	flag.Parse()

	if *outDir == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	rng := rand.New(rand.NewSource(*seed))

	ranges := makeRegions(rangeNames, 3, 33, 30)
	basins := makeRegions(basinNames, 2, 50, 48)
	glaciers := makeGlaciers(rng, *nGlaciers)

	files := []struct {
		name string
		fc   *orbgeojson.FeatureCollection
	}{
		{"glaciers.geojson", glacierCollection(glaciers)},
		{"mountain_ranges.geojson", regionCollection(ranges)},
		{"drainage_basins.geojson", regionCollection(basins)},
	}
	for _, f := range files {
		path := filepath.Join(*outDir, f.name)
		if err := writeGeoJSON(path, f.fc); err != nil {
			return fmt.Errorf("writing %s: %w", f.name, err)
		}
		log.Printf("wrote %s: %d features", path, len(f.fc.Features))
	}

	printStats(glaciers, ranges, basins)
	return nil
}

func makeRegions(names []string, cols int, step, side float64) []domain.Region {
	regions := make([]domain.Region, 0, len(names))
	for i, name := range names {
		x := float64(i%cols) * step
		y := float64(i/cols) * step
		regions = append(regions, domain.Region{
			ID:    fmt.Sprintf("R%s%02d", name[:1], i+1),
			Label: name,
			Geom:  square(x, y, side),
		})
	}
	return regions
}

func makeGlaciers(rng *rand.Rand, n int) []domain.Glacier {
	glaciers := make([]domain.Glacier, 0, n)
	for i := 0; i < n; i++ {
		x := rng.Float64() * 100
		y := rng.Float64() * 100
		side := 0.5 + rng.Float64()*1.5
		glaciers = append(glaciers, domain.Glacier{
			ID:      fmt.Sprintf("G%03d", i+1),
			GLIMSID: fmt.Sprintf("G%06dE%05dN", int(x*10000), int(y*1000)),
			Name:    glacierNames[i%len(glacierNames)] + " Glacier",
			AreaKm2: side * side,
			ZMax:    800 + rng.Float64()*2200,
			ZMin:    rng.Float64() * 600,
			Class:   classificationCodes[rng.Intn(len(classificationCodes))],
			Geom:    square(x, y, side),
		})
	}
	return glaciers
}

func square(x, y, side float64) orb.MultiPolygon {
	return orb.MultiPolygon{{{
		{x, y}, {x + side, y}, {x + side, y + side}, {x, y + side}, {x, y},
	}}}
}

func glacierCollection(glaciers []domain.Glacier) *orbgeojson.FeatureCollection {
	fc := orbgeojson.NewFeatureCollection()
	for _, g := range glaciers {
		f := orbgeojson.NewFeature(g.Geom)
		f.Properties = orbgeojson.Properties{
			"id": g.ID, "glims_id": g.GLIMSID, "name": g.Name,
			"area_km2": g.AreaKm2, "zmax": g.ZMax, "zmin": g.ZMin,
			"classification": g.Class,
		}
		fc.Append(f)
	}
	return fc
}

func regionCollection(regions []domain.Region) *orbgeojson.FeatureCollection {
	fc := orbgeojson.NewFeatureCollection()
	for _, r := range regions {
		f := orbgeojson.NewFeature(r.Geom)
		f.Properties = orbgeojson.Properties{"id": r.ID, "name": r.Label}
		fc.Append(f)
	}
	return fc
}

func writeGeoJSON(path string, fc *orbgeojson.FeatureCollection) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

func printStats(glaciers []domain.Glacier, ranges, basins []domain.Region) {
	resolver := spatial.Build(map[string][]domain.Region{
		"range": ranges,
		"basin": basins,
	})
	rows, err := materialize.Rows(glaciers, resolver, []string{"range", "basin"})
	if err != nil {
		log.Printf("materialize failed on generated fixtures: %v", err)
		return
	}

	terminusCounts := map[string]int{}
	var surging, unknownClass, inRange, inBasin int
	for _, row := range rows {
		if row.TerminusType == nil {
			unknownClass++
		} else {
			terminusCounts[domain.TerminusType(*row.TerminusType).String()]++
		}
		if row.Surging {
			surging++
		}
		if _, ok := row.Regions["range"]; ok {
			inRange++
		}
		if _, ok := row.Regions["basin"]; ok {
			inBasin++
		}
	}

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Total: %d\n", len(rows))
	fmt.Printf("By terminus: land=%d, tidewater=%d, lake=%d, unknown=%d\n",
		terminusCounts["land"], terminusCounts["tidewater"], terminusCounts["lake"], unknownClass)
	fmt.Printf("Surging: %d\n", surging)
	fmt.Printf("Assigned to a range: %d, to a basin: %d\n", inRange, inBasin)

	for _, row := range rows[:min(3, len(rows))] {
		fmt.Printf("\n%s (%s):\n", row.ID, row.Name)
		if row.TerminusType != nil {
			fmt.Printf("  Terminus: %s\n", domain.TerminusType(*row.TerminusType))
		} else {
			fmt.Printf("  Terminus: unknown\n")
		}
		fmt.Printf("  Surging: %v\n", row.Surging)
		for family, label := range row.Regions {
			fmt.Printf("  %s: %s\n", family, label)
		}
	}
}
