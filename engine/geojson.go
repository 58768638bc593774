package engine

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// CoordPrecision is the decimal precision geometries are truncated to
// before leaving the engine (persistence and export).
var CoordPrecision = 7

// PatchesFromFeatureCollection adapts a GeoJSON feature collection into
// engine patches. Polygon features are normalised to MultiPolygon;
// non-polygonal features are skipped with a count, not an error. When no
// id property exists the id falls back to the feature's own GeoJSON id,
// and to its index when that is absent too.
func PatchesFromFeatureCollection(fc *geojson.FeatureCollection) ([]Patch, int) {
	var patches []Patch
	skipped := 0
	for i, f := range fc.Features {
		geom := NormalizeMultiPolygon(f.Geometry)
		if geom == nil {
			skipped++
			continue
		}
		id := propString(f, "id")
		if id == "" {
			if f.ID != nil {
				id = fmt.Sprintf("%v", f.ID)
			} else {
				id = fmt.Sprintf("feature-%d", i)
			}
		}
		patches = append(patches, Patch{
			ID:       id,
			Code:     propString(f, "code"),
			Name:     propString(f, "name"),
			Geometry: geom,
		})
	}
	return patches, skipped
}

// FeatureCollectionFromPatches is the export direction: one MultiPolygon
// feature per patch, code/name/colour carried as properties, ids sorted
// for a stable output.
func FeatureCollectionFromPatches(patches PatchSet) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, id := range sortedIDs(patches) {
		p := patches[id]
		f := geojson.NewFeature(p.Geometry)
		f.Properties["id"] = p.ID
		f.Properties["code"] = p.Code
		if p.Name != "" {
			f.Properties["name"] = p.Name
		}
		f.Properties["color"] = ColorForCode(p.Code)
		fc.Append(f)
	}
	return fc
}

// MultiPolygonOrNil unwraps an optional GeoJSON geometry field.
func MultiPolygonOrNil(g *geojson.Geometry) orb.MultiPolygon {
	if g == nil {
		return nil
	}
	return NormalizeMultiPolygon(g.Geometry())
}

func propString(f *geojson.Feature, key string) string {
	if v, ok := f.Properties[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func sortedIDs(patches PatchSet) []string {
	ids := make([]string, 0, len(patches))
	for id := range patches {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TruncateMultiPolygon rounds every coordinate to CoordPrecision
// decimals. Applied at the persistence boundary so stored geometries
// compare consistently across round trips.
func TruncateMultiPolygon(mp orb.MultiPolygon) orb.MultiPolygon {
	ratio := math.Pow(10, float64(CoordPrecision))
	out := CloneMultiPolygon(mp)
	for _, poly := range out {
		for _, ring := range poly {
			for i, p := range ring {
				ring[i] = orb.Point{
					math.Round(p[0]*ratio) / ratio,
					math.Round(p[1]*ratio) / ratio,
				}
			}
		}
	}
	return out
}
