package engine

import (
	"sort"

	"github.com/paulmach/orb"
)

// Adjacency detection recovers shared boundaries from coordinates alone.
// Simplification moves vertices by metres and changes counts, so
// per-vertex equality fails on the same boundary; edge-based proximity
// within SharedEdgeTolDegSq is stable against that.

// rawSegment is a run of consecutive neighbour vertices that project
// within tolerance of the edited ring. edgeIdx records, per vertex, the
// edited edge it projected onto.
type rawSegment struct {
	indices []int
	edgeIdx []int
}

// SharedSegments finds every shared boundary between an edited ring A
// and a neighbour ring B, both taken in open form. Neighbour identity
// and polygon/ring indices are stamped onto the records by the caller.
func SharedSegments(edited, neighbour orb.Ring) []AdjacencyRecord {
	a := openRing(edited)
	b := openRing(neighbour)
	nA := len(a)
	nB := len(b)
	if nA < 3 || nB < 3 {
		return nil
	}

	// Mark every B vertex within tolerance of A's boundary.
	onEdge := make([]bool, nB)
	projEdge := make([]int, nB)
	for i := 0; i < nB; i++ {
		distSq, edge := PointToRingDistSq(b[i], a, nA)
		if edge >= 0 && distSq <= SharedEdgeTolDegSq {
			onEdge[i] = true
			projEdge[i] = edge
		}
	}

	segments := groupConsecutive(onEdge, projEdge, nB)

	var records []AdjacencyRecord
	for _, seg := range segments {
		if len(seg.indices) < MinSharedVertices {
			continue
		}

		startB := seg.indices[0]
		endB := seg.indices[len(seg.indices)-1]

		startA := NearestVertexIndex(b[startB], a, nA)
		endA := NearestVertexIndex(b[endB], a, nA)
		if startA == endA {
			// Degenerate: the whole segment snapped onto one vertex.
			continue
		}

		reversed := windingOpposes(seg.edgeIdx, nA)
		if reversed {
			// Keep the edited pair oriented so the forward walk from
			// start to end traverses the shared arc; consumers align
			// direction through IsReversed.
			startA, endA = endA, startA
		}

		records = append(records, AdjacencyRecord{
			StartIndex:         startB,
			EndIndex:           endB,
			EditedStartIndex:   startA,
			EditedEndIndex:     endA,
			IsReversed:         reversed,
			MatchedVertexCount: len(seg.indices),
		})
	}
	return records
}

// groupConsecutive collects runs of marked indices, merging the first
// and last runs when they touch through the ring's wrap-around. A merged
// run has startB > endB.
func groupConsecutive(onEdge []bool, projEdge []int, n int) []rawSegment {
	var segments []rawSegment
	var current *rawSegment

	for i := 0; i < n; i++ {
		if !onEdge[i] {
			current = nil
			continue
		}
		if current == nil {
			segments = append(segments, rawSegment{})
			current = &segments[len(segments)-1]
		}
		current.indices = append(current.indices, i)
		current.edgeIdx = append(current.edgeIdx, projEdge[i])
	}

	if len(segments) >= 2 {
		first := segments[0]
		last := &segments[len(segments)-1]
		if first.indices[0] == 0 && last.indices[len(last.indices)-1] == n-1 {
			last.indices = append(last.indices, first.indices...)
			last.edgeIdx = append(last.edgeIdx, first.edgeIdx...)
			segments = segments[1:]
		}
	}
	return segments
}

// windingOpposes samples projected edge indices along the neighbour walk
// and reports whether they tend to decrease modulo the edited ring's
// length, which means the two rings run in opposite directions along the
// shared edge.
func windingOpposes(edgeIdx []int, nA int) bool {
	if len(edgeIdx) < 2 {
		return false
	}
	step := 1
	if len(edgeIdx) > WindingSampleMax {
		step = len(edgeIdx) / WindingSampleMax
	}

	forward, backward := 0, 0
	prev := edgeIdx[0]
	for i := step; i < len(edgeIdx); i += step {
		cur := edgeIdx[i]
		if cur == prev {
			continue
		}
		diff := ModIndex(cur-prev, nA)
		if diff <= nA/2 {
			forward++
		} else {
			backward++
		}
		prev = cur
	}
	return backward > forward
}

// FindAdjacentPatches runs shared-segment detection for one edited ring
// against every ring of every other patch. editedPolyIdx/editedRingIdx
// are stamped through so callers can trace the record back into the
// edited geometry. Candidates whose padded bounding boxes do not overlap
// the edited ring are rejected without walking their vertices.
func FindAdjacentPatches(editedID string, editedRing orb.Ring, patches PatchSet, editedPolyIdx, editedRingIdx int) []AdjacencyRecord {
	open := openRing(editedRing)
	if len(open) < 3 {
		return nil
	}
	editedBound := editedRing.Bound()

	ids := make([]string, 0, len(patches))
	for id := range patches {
		if id != editedID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var records []AdjacencyRecord
	for _, id := range ids {
		patch := patches[id]
		for pi, poly := range patch.Geometry {
			for ri, ring := range poly {
				if OpenVertexCount(ring) < 3 {
					continue
				}
				if !BoundsOverlap(editedBound, ring.Bound(), BBoxPadDeg) {
					continue
				}
				for _, rec := range SharedSegments(editedRing, ring) {
					rec.NeighbourID = patch.ID
					rec.NeighbourCode = patch.Code
					rec.PolyIndex = pi
					rec.RingIndex = ri
					rec.EditedPolyIndex = editedPolyIdx
					rec.EditedRingIndex = editedRingIdx
					records = append(records, rec)
				}
			}
		}
	}
	return records
}
