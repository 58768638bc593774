package engine

import (
	"log"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/twpayne/go-geos"
)

// Bridge between the engine's orb types and GEOS, which does the boolean
// work (intersection, difference, union). Every operation is guarded:
// GEOS failures on one patch must not abort a whole analysis, so the
// Safe* wrappers recover, log and report failure instead.

// toGeos builds a GEOS MultiPolygon from an orb one. Rings are closed on
// the way in; rings below 3 open vertices are dropped. Returns nil when
// nothing valid remains.
func toGeos(mp orb.MultiPolygon) *geos.Geom {
	var polys []*geos.Geom
	for _, poly := range mp {
		var rings [][][]float64
		for _, ring := range poly {
			if OpenVertexCount(ring) < 3 {
				continue
			}
			closed := EnsureClosed(ring)
			coords := make([][]float64, len(closed))
			for i, p := range closed {
				coords[i] = []float64{p[0], p[1]}
			}
			rings = append(rings, coords)
		}
		if len(rings) == 0 {
			continue
		}
		g := geos.NewPolygon(rings)
		if g == nil {
			continue
		}
		polys = append(polys, g)
	}
	if len(polys) == 0 {
		return nil
	}
	if len(polys) == 1 {
		return polys[0]
	}
	return geos.NewCollection(geos.TypeIDMultiPolygon, polys)
}

// fromGeos converts any polygonal GEOS geometry back to an orb
// MultiPolygon, walking coordinate sequences ring by ring. Non-polygonal
// members of collections are skipped.
func fromGeos(g *geos.Geom) orb.MultiPolygon {
	if g == nil || g.IsEmpty() {
		return nil
	}
	var out orb.MultiPolygon
	collectPolygons(g, &out)
	if len(out) == 0 {
		return nil
	}
	return out
}

func collectPolygons(g *geos.Geom, out *orb.MultiPolygon) {
	switch g.TypeID() {
	case geos.TypeIDPolygon:
		if poly := polygonFromGeos(g); poly != nil {
			*out = append(*out, poly)
		}
	case geos.TypeIDMultiPolygon, geos.TypeIDGeometryCollection:
		for i := 0; i < g.NumGeometries(); i++ {
			collectPolygons(g.Geometry(i), out)
		}
	}
}

func polygonFromGeos(g *geos.Geom) orb.Polygon {
	ext := g.ExteriorRing()
	if ext == nil {
		return nil
	}
	outer := ringFromCoordSeq(ext)
	if OpenVertexCount(outer) < 3 {
		return nil
	}
	poly := orb.Polygon{outer}
	for i := 0; i < g.NumInteriorRings(); i++ {
		hole := ringFromCoordSeq(g.InteriorRing(i))
		if OpenVertexCount(hole) >= 3 {
			poly = append(poly, hole)
		}
	}
	return poly
}

func ringFromCoordSeq(g *geos.Geom) orb.Ring {
	seq := g.CoordSeq()
	if seq == nil {
		return nil
	}
	n := seq.Size()
	ring := make(orb.Ring, n)
	for i := 0; i < n; i++ {
		ring[i] = orb.Point{seq.X(i), seq.Y(i)}
	}
	return ring
}

// guard runs a GEOS operation and swallows panics from the underlying
// library, reporting failure instead.
func guard(what string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("geometry op %s failed: %v", what, r)
			ok = false
		}
	}()
	fn()
	return true
}

// SafeIntersection computes a ∩ b, returning nil on any failure.
func SafeIntersection(a, b orb.MultiPolygon) orb.MultiPolygon {
	ga := toGeos(a)
	gb := toGeos(b)
	if ga == nil || gb == nil {
		destroyAll(ga, gb)
		return nil
	}
	defer destroyAll(ga, gb)

	var result *geos.Geom
	if !guard("intersection", func() { result = ga.Intersection(gb) }) {
		return nil
	}
	if result == nil {
		return nil
	}
	defer result.Destroy()
	return fromGeos(result)
}

// SafeDifference computes a \ b, returning a unchanged on failure so a
// broken subtrahend degrades to a larger, still consistent result.
func SafeDifference(a, b orb.MultiPolygon) orb.MultiPolygon {
	ga := toGeos(a)
	gb := toGeos(b)
	if ga == nil {
		destroyAll(gb)
		return nil
	}
	if gb == nil {
		destroyAll(ga)
		return a
	}
	defer destroyAll(ga, gb)

	var result *geos.Geom
	if !guard("difference", func() { result = ga.Difference(gb) }) {
		return a
	}
	if result == nil {
		return a
	}
	defer result.Destroy()
	return fromGeos(result)
}

// SafeIntersectionAreaSqm is the intersection area of two geometries in
// square metres, 0 on failure or no overlap.
func SafeIntersectionAreaSqm(a, b orb.MultiPolygon) float64 {
	inter := SafeIntersection(a, b)
	if inter == nil {
		return 0
	}
	return AreaSqm(inter)
}

// AreaSqm is the geodesic area of a geometry in square metres.
func AreaSqm(mp orb.MultiPolygon) float64 {
	if mp == nil {
		return 0
	}
	return math.Abs(geo.Area(mp))
}

// CascadedUnion unions geometries pairwise by halving, which keeps the
// intermediate results small. Used to build the occupied mask during gap
// detection.
func CascadedUnion(geoms []orb.MultiPolygon) orb.MultiPolygon {
	switch len(geoms) {
	case 0:
		return nil
	case 1:
		return geoms[0]
	}
	mid := len(geoms) / 2
	left := CascadedUnion(geoms[:mid])
	right := CascadedUnion(geoms[mid:])
	if left == nil {
		return right
	}
	if right == nil {
		return left
	}

	gl := toGeos(left)
	gr := toGeos(right)
	if gl == nil || gr == nil {
		destroyAll(gl, gr)
		if gl == nil {
			return right
		}
		return left
	}
	defer destroyAll(gl, gr)

	var result *geos.Geom
	if !guard("union", func() { result = gl.Union(gr) }) {
		return left
	}
	if result == nil {
		return left
	}
	defer result.Destroy()
	return fromGeos(result)
}

// RepairGeometry runs GEOS MakeValid over an invalid geometry and hands
// back the repaired polygonal parts. Valid input passes through.
func RepairGeometry(mp orb.MultiPolygon) orb.MultiPolygon {
	g := toGeos(mp)
	if g == nil {
		return mp
	}
	defer g.Destroy()

	valid := false
	if !guard("isvalid", func() { valid = g.IsValid() }) {
		return mp
	}
	if valid {
		return mp
	}

	var repaired *geos.Geom
	if !guard("makevalid", func() {
		repaired = g.MakeValidWithParams(geos.MakeValidLinework, geos.MakeValidDiscardCollapsed)
	}) {
		return mp
	}
	if repaired == nil {
		return mp
	}
	defer repaired.Destroy()
	if fixed := fromGeos(repaired); fixed != nil {
		return fixed
	}
	return mp
}

// ValidityReason reports GEOS's verdict on a geometry, empty when valid.
func ValidityReason(mp orb.MultiPolygon) string {
	g := toGeos(mp)
	if g == nil {
		return "no valid rings"
	}
	defer g.Destroy()

	reason := ""
	guard("isvalidreason", func() {
		if !g.IsValid() {
			reason = g.IsValidReason()
		}
	})
	return reason
}

func destroyAll(geoms ...*geos.Geom) {
	for _, g := range geoms {
		if g != nil {
			g.Destroy()
		}
	}
}
