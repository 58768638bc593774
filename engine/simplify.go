package engine

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

// Simplify runs Ramer-Douglas-Peucker over every ring of a MultiPolygon
// with the given tolerance in degrees. When highQuality is false a
// radial-distance pre-pass thins clustered vertices first; that is the
// cheap mode used for slider previews. A ring that would fall below 3
// open vertices is returned unchanged.
func Simplify(geom orb.MultiPolygon, toleranceDeg float64, highQuality bool) orb.MultiPolygon {
	if geom == nil {
		return nil
	}
	out := make(orb.MultiPolygon, len(geom))
	for i, poly := range geom {
		p := make(orb.Polygon, len(poly))
		for j, ring := range poly {
			p[j] = simplifyRing(ring, toleranceDeg, highQuality)
		}
		out[i] = p
	}
	return out
}

func simplifyRing(ring orb.Ring, toleranceDeg float64, highQuality bool) orb.Ring {
	open := openRing(ring)
	if len(open) < 3 || toleranceDeg <= 0 {
		return ring
	}

	// Run over the closed form so the seam vertex before the closing one
	// is an interior point RDP can drop; the closing copy is removed again
	// afterwards.
	pts := make(orb.LineString, len(open), len(open)+1)
	copy(pts, open)
	pts = append(pts, open[0])

	if !highQuality {
		pts = radialPrePass(pts, toleranceDeg)
	}
	pts = douglasPeucker(pts, toleranceDeg)
	pts = pts[:len(pts)-1]

	if len(pts) < 3 {
		return ring
	}
	return EnsureClosed(orb.Ring(pts))
}

// radialPrePass drops consecutive vertices closer than the tolerance,
// always keeping the first and last.
func radialPrePass(ls orb.LineString, tolerance float64) orb.LineString {
	if len(ls) <= 2 {
		return ls
	}
	tolSq := tolerance * tolerance
	count := 1
	current := 0
	for i := 1; i < len(ls); i++ {
		if planar.DistanceSquared(ls[current], ls[i]) > tolSq {
			current = i
			ls[count] = ls[i]
			count++
		}
	}
	if current != len(ls)-1 {
		ls[count] = ls[len(ls)-1]
		count++
	}
	return ls[:count]
}

// douglasPeucker keeps every vertex whose perpendicular deviation from
// the kept chain exceeds the tolerance. Iterative stack instead of
// recursion.
func douglasPeucker(ls orb.LineString, tolerance float64) orb.LineString {
	if len(ls) <= 2 {
		return ls
	}
	tolSq := tolerance * tolerance

	mask := make([]byte, len(ls))
	mask[0] = 1
	mask[len(mask)-1] = 1

	stack := []int{0, len(ls) - 1}
	for len(stack) > 0 {
		start := stack[len(stack)-2]
		end := stack[len(stack)-1]

		maxDist := 0.0
		maxIndex := 0
		for i := start + 1; i < end; i++ {
			dist := planar.DistanceFromSegmentSquared(ls[start], ls[end], ls[i])
			if dist > maxDist {
				maxDist = dist
				maxIndex = i
			}
		}

		if maxDist > tolSq {
			mask[maxIndex] = 1
			stack[len(stack)-1] = maxIndex
			stack = append(stack, maxIndex, end)
		} else {
			stack = stack[:len(stack)-2]
		}
	}

	count := 0
	for i, keep := range mask {
		if keep == 1 {
			ls[count] = ls[i]
			count++
		}
	}
	return ls[:count]
}

// SimplifyStats summarises what a simplification did to a geometry.
type SimplifyStats struct {
	OriginalVertexCount   int     `json:"originalVertexCount"`
	SimplifiedVertexCount int     `json:"simplifiedVertexCount"`
	ReductionPercent      float64 `json:"reductionPercent"`
	MaxDeviationMeters    float64 `json:"maxDeviationMeters"`
	AreaChangePercent     float64 `json:"areaChangePercent"`
}

// ComputeStats compares an original geometry against its simplified
// form. Deviation sampling is capped at DeviationSampleMax original
// vertices; distances are in metres via a locally flat conversion.
func ComputeStats(original, simplified orb.MultiPolygon, includeDeviation bool) SimplifyStats {
	stats := SimplifyStats{
		OriginalVertexCount:   totalVertexCount(original),
		SimplifiedVertexCount: totalVertexCount(simplified),
	}
	if stats.OriginalVertexCount > 0 {
		stats.ReductionPercent = 100 * float64(stats.OriginalVertexCount-stats.SimplifiedVertexCount) /
			float64(stats.OriginalVertexCount)
	}

	origArea := math.Abs(geo.Area(original))
	simpArea := math.Abs(geo.Area(simplified))
	if origArea > 0 {
		stats.AreaChangePercent = 100 * (simpArea - origArea) / origArea
	}

	if includeDeviation {
		stats.MaxDeviationMeters = maxDeviationMeters(original, simplified)
	}
	return stats
}

func totalVertexCount(mp orb.MultiPolygon) int {
	n := 0
	for _, poly := range mp {
		for _, ring := range poly {
			n += OpenVertexCount(ring)
		}
	}
	return n
}

// maxDeviationMeters samples original vertices and measures each one's
// distance to the nearest simplified edge of the corresponding ring.
func maxDeviationMeters(original, simplified orb.MultiPolygon) float64 {
	total := totalVertexCount(original)
	if total == 0 {
		return 0
	}
	step := 1
	if total > DeviationSampleMax {
		step = (total + DeviationSampleMax - 1) / DeviationSampleMax
	}

	maxDev := 0.0
	counter := 0
	for pi, poly := range original {
		for ri, ring := range poly {
			if pi >= len(simplified) || ri >= len(simplified[pi]) {
				continue
			}
			simpRing := simplified[pi][ri]
			simpOpen := OpenVertexCount(simpRing)
			if simpOpen < 3 {
				continue
			}
			open := OpenVertexCount(ring)
			for i := 0; i < open; i++ {
				counter++
				if counter%step != 0 {
					continue
				}
				foot, _, edge := NearestPointOnRing(ring[i], simpRing, simpOpen)
				if edge < 0 {
					continue
				}
				d := localMeters(ring[i], foot)
				if d > maxDev {
					maxDev = d
				}
			}
		}
	}
	return maxDev
}

// localMeters is the locally flat distance in metres between two nearby
// lon/lat points.
func localMeters(a, b orb.Point) float64 {
	latRad := (a[1] + b[1]) / 2 * math.Pi / 180
	dx := (b[0] - a[0]) * MetersPerDegree * math.Cos(latRad)
	dy := (b[1] - a[1]) * MetersPerDegree
	return math.Sqrt(dx*dx + dy*dy)
}

// FindToleranceForTarget searches for the tolerance that brings the
// geometry to roughly targetVertices open vertices. Geometric-midpoint
// bisection on [TargetTolLo, TargetTolHi]; exits early when the result
// lands within the slack of the target.
func FindToleranceForTarget(geom orb.MultiPolygon, targetVertices int, highQuality bool) float64 {
	if targetVertices <= 0 {
		return TargetTolLo
	}
	lo := TargetTolLo
	hi := TargetTolHi
	tol := math.Sqrt(lo * hi)

	for iter := 0; iter < TargetTolIters; iter++ {
		tol = math.Sqrt(lo * hi)
		count := totalVertexCount(Simplify(geom, tol, highQuality))

		diff := math.Abs(float64(count-targetVertices)) / float64(targetVertices)
		if diff <= TargetTolSlack {
			return tol
		}
		if count > targetVertices {
			lo = tol
		} else {
			hi = tol
		}
	}
	return tol
}
