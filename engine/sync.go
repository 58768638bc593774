package engine

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Boundary synchronisation produces a neighbour ring that matches an
// edited boundary. Displacement is preferred whenever the old edited
// geometry was captured before mutation: it is insensitive to vertex
// counts, leaves off-boundary vertices untouched and avoids straight-line
// artefacts. Projection is the fallback when only the edited polyline is
// known. Splice is the legacy exact-copy path and destroys neighbour
// vertex density, so it is never the default.

// SyncBoundaryByDisplacement moves every neighbour vertex lying on the
// old edited boundary by the vector between its projection on the old
// ring and the nearest point of the new ring. Returns the updated
// geometry and how many vertices moved; zero means the rings never
// matched and the caller should fall back to projection.
func SyncBoundaryByDisplacement(neighbour orb.MultiPolygon, polyIdx, ringIdx int, oldEdited, newEdited orb.Ring) (orb.MultiPolygon, int) {
	out := CloneMultiPolygon(neighbour)
	ring := ringAt(out, polyIdx, ringIdx)
	if ring == nil {
		return out, 0
	}
	nOpen := OpenVertexCount(ring)
	oldOpen := OpenVertexCount(oldEdited)
	newOpen := OpenVertexCount(newEdited)
	if nOpen < 3 || oldOpen < 3 || newOpen < 3 {
		return out, 0
	}

	oldBound := oldEdited.Bound()
	displaced := 0
	for i := 0; i < nOpen; i++ {
		v := ring[i]
		if !pointInBound(v, oldBound, BBoxPadDeg) {
			continue
		}
		pOld, distSq, edge := NearestPointOnRing(v, oldEdited, oldOpen)
		if edge < 0 || distSq > SharedEdgeTolDegSq {
			continue
		}
		pNew, _, newEdge := NearestPointOnRing(pOld, newEdited, newOpen)
		if newEdge < 0 {
			continue
		}
		dx := pNew[0] - pOld[0]
		dy := pNew[1] - pOld[1]
		magSq := dx*dx + dy*dy
		if magSq > MaxDisplacementDegSq || magSq < MinDisplacementDegSq {
			continue
		}
		ring[i] = orb.Point{v[0] + dx, v[1] + dy}
		displaced++
	}
	recloseRing(ring)
	return out, displaced
}

// SyncBoundaryByProjection projects each neighbour vertex in the shared
// range onto the nearest edge of the edited polyline. The replacement is
// reversed first when the windings disagree, so projected points land in
// the neighbour's own winding order. Neighbour vertex count is preserved
// exactly.
func SyncBoundaryByProjection(neighbour orb.MultiPolygon, polyIdx, ringIdx, startIdx, endIdx int, replacement orb.LineString, isReversed bool) orb.MultiPolygon {
	out := CloneMultiPolygon(neighbour)
	ring := ringAt(out, polyIdx, ringIdx)
	if ring == nil || len(replacement) < 2 {
		return out
	}
	nOpen := OpenVertexCount(ring)
	if nOpen < 3 {
		return out
	}
	line := replacement
	if isReversed {
		line = reverseLine(replacement)
	}

	count := SegmentLength(nOpen, startIdx, endIdx)
	for k := 0; k < count; k++ {
		idx := ModIndex(startIdx+k, nOpen)
		ring[idx] = projectToPolyline(ring[idx], line)
	}
	recloseRing(ring)
	return out
}

// SyncBoundaryBySplice replaces the neighbour's shared vertices with the
// supplied polyline verbatim, handling wrap, then re-closes. Kept for
// callers that want an exact copy of the edited boundary; a result that
// cannot form a ring returns the input unchanged.
func SyncBoundaryBySplice(neighbour orb.MultiPolygon, polyIdx, ringIdx, startIdx, endIdx int, replacement orb.LineString, isReversed bool) orb.MultiPolygon {
	ring := ringAt(neighbour, polyIdx, ringIdx)
	if ring == nil || len(replacement) == 0 {
		return neighbour
	}
	nOpen := OpenVertexCount(ring)
	if nOpen < 3 {
		return neighbour
	}
	line := replacement
	if isReversed {
		line = reverseLine(replacement)
	}
	s := ModIndex(startIdx, nOpen)
	e := ModIndex(endIdx, nOpen)

	var spliced orb.Ring
	spliced = append(spliced, line...)
	if e >= s {
		for i := e + 1; i < nOpen; i++ {
			spliced = append(spliced, ring[i])
		}
		for i := 0; i < s; i++ {
			spliced = append(spliced, ring[i])
		}
	} else {
		for i := e + 1; i < s; i++ {
			spliced = append(spliced, ring[i])
		}
	}
	if OpenVertexCount(spliced) < 3 {
		return neighbour
	}

	out := CloneMultiPolygon(neighbour)
	out[polyIdx][ringIdx] = EnsureClosed(spliced)
	return out
}

// projectToPolyline clamps p onto the nearest edge of an open polyline.
func projectToPolyline(p orb.Point, line orb.LineString) orb.Point {
	best := math.Inf(1)
	bestPt := p
	for i := 0; i+1 < len(line); i++ {
		d := planar.DistanceFromSegmentSquared(line[i], line[i+1], p)
		if d < best {
			best = d
			bestPt = ProjectToSegment(p, line[i], line[i+1])
		}
	}
	return bestPt
}

func pointInBound(p orb.Point, b orb.Bound, padDeg float64) bool {
	return p[0] >= b.Min[0]-padDeg && p[0] <= b.Max[0]+padDeg &&
		p[1] >= b.Min[1]-padDeg && p[1] <= b.Max[1]+padDeg
}

// recloseRing copies vertex 0 into the closing slot when the ring
// carries one.
func recloseRing(ring orb.Ring) {
	n := len(ring)
	if n > 1 && OpenVertexCount(ring) == n-1 {
		ring[n-1] = ring[0]
	}
}

// AssessConnectionQuality evaluates how cleanly the changed run [s..e]
// of a ring joins the unedited portion: the interior angle at each
// endpoint and the distance to its unedited neighbour vertex. A sharp
// kink or a long jump reads as a bad join.
func AssessConnectionQuality(ring orb.Ring, s, e int) (SnapQuality, ConnectionPoints) {
	nOpen := OpenVertexCount(ring)
	points := ConnectionPoints{}
	if nOpen < 4 {
		return SnapGood, points
	}
	s = ModIndex(s, nOpen)
	e = ModIndex(e, nOpen)
	points.Start = ring[s]
	points.End = ring[e]

	quality := SnapGood
	check := func(outside, vertex, inside orb.Point) {
		if localMeters(outside, vertex) > PoorDistanceM {
			quality = SnapPoor
		}
		if interiorAngleDeg(outside, vertex, inside) < PoorAngleDeg {
			quality = SnapPoor
		}
	}
	check(ring[ModIndex(s-1, nOpen)], ring[s], ring[ModIndex(s+1, nOpen)])
	check(ring[ModIndex(e+1, nOpen)], ring[e], ring[ModIndex(e-1, nOpen)])
	return quality, points
}

// interiorAngleDeg is the angle at v between u and w, measured in a
// locally metric frame so longitude squash does not distort it.
func interiorAngleDeg(u, v, w orb.Point) float64 {
	latRad := v[1] * math.Pi / 180
	ax := (u[0] - v[0]) * math.Cos(latRad)
	ay := u[1] - v[1]
	bx := (w[0] - v[0]) * math.Cos(latRad)
	by := w[1] - v[1]

	la := math.Sqrt(ax*ax + ay*ay)
	lb := math.Sqrt(bx*bx + by*by)
	if la == 0 || lb == 0 {
		return 180
	}
	cos := (ax*bx + ay*by) / (la * lb)
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos) * 180 / math.Pi
}

// GenerateBoundaryProposals builds a synchronised ring for every
// non-duplicate neighbour in the analysis. Displacement runs first when
// the old edited geometry is available; when it moves nothing (or no old
// geometry exists) the shared range is projected onto the replacement
// polyline extracted from the edited ring.
func GenerateBoundaryProposals(analysis PostEditAnalysis, editedGeom orb.MultiPolygon, patches PatchSet, oldEditedGeom orb.MultiPolygon) []BoundaryProposal {
	var proposals []BoundaryProposal
	for _, info := range analysis.Neighbours {
		if info.IsDuplicate {
			continue
		}
		rec := info.Adjacency
		patch, found := patches[rec.NeighbourID]
		if !found {
			continue
		}
		nRing := ringAt(patch.Geometry, rec.PolyIndex, rec.RingIndex)
		newRing := ringAt(editedGeom, rec.EditedPolyIndex, rec.EditedRingIndex)
		if nRing == nil || newRing == nil {
			continue
		}
		if OpenVertexCount(nRing) < 3 || OpenVertexCount(newRing) < 3 {
			continue
		}

		originalSegment := ExtractSegment(nRing, rec.StartIndex, rec.EndIndex)
		replacement := ExtractSegment(newRing, rec.EditedStartIndex, rec.EditedEndIndex)

		var proposed orb.MultiPolygon
		if oldEditedGeom != nil {
			oldRing := ringAt(oldEditedGeom, rec.EditedPolyIndex, rec.EditedRingIndex)
			if oldRing != nil && OpenVertexCount(oldRing) >= 3 {
				var displaced int
				proposed, displaced = SyncBoundaryByDisplacement(patch.Geometry, rec.PolyIndex, rec.RingIndex, oldRing, newRing)
				if displaced == 0 {
					proposed = nil
				}
			}
		}
		if proposed == nil {
			proposed = SyncBoundaryByProjection(patch.Geometry, rec.PolyIndex, rec.RingIndex, rec.StartIndex, rec.EndIndex, replacement, rec.IsReversed)
		}

		propRing := ringAt(proposed, rec.PolyIndex, rec.RingIndex)
		if propRing == nil {
			continue
		}

		chS, chE, changed := changedRun(nRing, propRing)
		if !changed {
			chS, chE = rec.StartIndex, rec.EndIndex
		}
		quality, connection := AssessConnectionQuality(propRing, chS, chE)

		proposals = append(proposals, BoundaryProposal{
			PatchID:          patch.ID,
			PatchCode:        patch.Code,
			Relationship:     info.Relationship,
			Adjacency:        rec,
			OriginalGeometry: patch.Geometry,
			ProposedGeometry: proposed,
			OriginalSegment:  originalSegment,
			ProposedSegment:  ExtractSegment(propRing, rec.StartIndex, rec.EndIndex),
			ChangedSegment:   ExtractSegment(propRing, chS, chE),
			Connection:       connection,
			SnapQuality:      quality,
		})
	}
	return proposals
}

// changedRun finds the contiguous run of vertices that differ between
// the original and the synchronised ring. Only meaningful when counts
// match (displacement and projection both preserve counts).
func changedRun(original, proposed orb.Ring) (int, int, bool) {
	nA := OpenVertexCount(original)
	nB := OpenVertexCount(proposed)
	if nA != nB || nA == 0 {
		return 0, 0, false
	}
	lo, hi := -1, -1
	for i := 0; i < nA; i++ {
		if original[i] != proposed[i] {
			if lo == -1 {
				lo = i
			}
			hi = i
		}
	}
	if lo == -1 {
		return 0, 0, false
	}
	return lo, hi, true
}
