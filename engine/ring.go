package engine

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Ring helpers. Algorithms in this package work on open-form rings (no
// repeated closing vertex) and re-close on output. All coordinate math is
// planar in degrees and comparisons use squared distances.

// OpenVertexCount returns the ring length with a trailing closing vertex
// stripped, if one is present.
func OpenVertexCount(ring orb.Ring) int {
	n := len(ring)
	if n > 1 && ring[0] == ring[n-1] {
		return n - 1
	}
	return n
}

// EnsureClosed appends a copy of the first vertex unless the ring already
// ends on it.
func EnsureClosed(ring orb.Ring) orb.Ring {
	n := len(ring)
	if n == 0 {
		return ring
	}
	if ring[0] == ring[n-1] {
		return ring
	}
	out := make(orb.Ring, n+1)
	copy(out, ring)
	out[n] = ring[0]
	return out
}

// ModIndex wraps i into [0, n).
func ModIndex(i, n int) int {
	if n <= 0 {
		return 0
	}
	m := i % n
	if m < 0 {
		m += n
	}
	return m
}

// RingBound computes the axis-aligned bounding box of a ring in degrees.
func RingBound(ring orb.Ring) orb.Bound {
	return ring.Bound()
}

// BoundsOverlap is a Minkowski-padded bbox overlap test.
func BoundsOverlap(a, b orb.Bound, padDeg float64) bool {
	return a.Min[0]-padDeg <= b.Max[0] && b.Min[0]-padDeg <= a.Max[0] &&
		a.Min[1]-padDeg <= b.Max[1] && b.Min[1]-padDeg <= a.Max[1]
}

// ProjectToSegment clamps the perpendicular foot of p onto segment ab.
func ProjectToSegment(p, a, b orb.Point) orb.Point {
	dx := b[0] - a[0]
	dy := b[1] - a[1]
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return a
	}
	t := ((p[0]-a[0])*dx + (p[1]-a[1])*dy) / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return orb.Point{a[0] + t*dx, a[1] + t*dy}
}

// PointToRingDistSq returns the squared distance from p to the nearest
// edge of the ring and the index of that edge. Edge i runs from vertex i
// to vertex ModIndex(i+1, openCount). Returns (inf, -1) for degenerate
// rings.
func PointToRingDistSq(p orb.Point, ring orb.Ring, openCount int) (float64, int) {
	if openCount < 3 {
		return math.Inf(1), -1
	}
	best := math.Inf(1)
	bestEdge := -1
	for i := 0; i < openCount; i++ {
		a := ring[i]
		b := ring[ModIndex(i+1, openCount)]
		d := planar.DistanceFromSegmentSquared(a, b, p)
		if d < best {
			best = d
			bestEdge = i
		}
	}
	return best, bestEdge
}

// NearestPointOnRing is PointToRingDistSq plus the foot of the
// perpendicular on the winning edge.
func NearestPointOnRing(p orb.Point, ring orb.Ring, openCount int) (orb.Point, float64, int) {
	distSq, edge := PointToRingDistSq(p, ring, openCount)
	if edge < 0 {
		return orb.Point{}, distSq, -1
	}
	foot := ProjectToSegment(p, ring[edge], ring[ModIndex(edge+1, openCount)])
	return foot, distSq, edge
}

// NearestVertexIndex returns the index of the ring vertex closest to p.
func NearestVertexIndex(p orb.Point, ring orb.Ring, openCount int) int {
	best := math.Inf(1)
	idx := -1
	for i := 0; i < openCount; i++ {
		d := planar.DistanceSquared(p, ring[i])
		if d < best {
			best = d
			idx = i
		}
	}
	return idx
}

// ExtractSegment returns ring[s..e] inclusive when e >= s, otherwise the
// wrapped run ring[s..end] followed by ring[0..e]. Both the post-edit
// analyser and the synchroniser read ranges through this one function.
func ExtractSegment(ring orb.Ring, s, e int) orb.LineString {
	n := OpenVertexCount(ring)
	if n == 0 {
		return nil
	}
	s = ModIndex(s, n)
	e = ModIndex(e, n)
	var out orb.LineString
	if e >= s {
		out = make(orb.LineString, 0, e-s+1)
		for i := s; i <= e; i++ {
			out = append(out, ring[i])
		}
		return out
	}
	out = make(orb.LineString, 0, (n-s)+e+1)
	for i := s; i < n; i++ {
		out = append(out, ring[i])
	}
	for i := 0; i <= e; i++ {
		out = append(out, ring[i])
	}
	return out
}

// SegmentLength is the number of vertices ExtractSegment(ring, s, e)
// would return, without building the slice.
func SegmentLength(n, s, e int) int {
	s = ModIndex(s, n)
	e = ModIndex(e, n)
	if e >= s {
		return e - s + 1
	}
	return (n - s) + e + 1
}

// openRing returns the open-form view of a ring (no copy when already
// open).
func openRing(ring orb.Ring) orb.Ring {
	return ring[:OpenVertexCount(ring)]
}

// reverseLine returns a reversed copy of a polyline.
func reverseLine(ls orb.LineString) orb.LineString {
	out := make(orb.LineString, len(ls))
	for i, p := range ls {
		out[len(ls)-1-i] = p
	}
	return out
}
