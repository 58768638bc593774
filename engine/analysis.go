package engine

import (
	"log"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// AnalysePostEdit classifies how every patch touching the edited patch is
// affected by a geometry change, and detects the gap an inward edit
// leaves behind.
//
// Detection runs against the OLD geometry: the old ring still aligns
// with unedited neighbours even when the new ring has moved further than
// the shared-edge tolerance, so detecting against the new geometry would
// miss retracted boundaries. preEditSimplified, when present, is the
// simplified geometry the user hand-refined afterwards; it narrows the
// transferred range to the vertices the user actually touched.
func AnalysePostEdit(editedID string, oldGeom, newGeom orb.MultiPolygon, patches PatchSet, preEditSimplified orb.MultiPolygon) PostEditAnalysis {
	analysis := PostEditAnalysis{}

	duplicateIDs := detectDuplicates(editedID, oldGeom, patches)

	candidates := collectCandidates(editedID, oldGeom, newGeom, patches, preEditSimplified)
	candidates = strongestPerNeighbour(candidates)

	for _, rec := range candidates {
		if duplicateIDs[rec.NeighbourID] {
			continue
		}
		info := NeighbourInfo{
			Adjacency:    rec,
			Relationship: classifyNeighbour(rec, newGeom, patches),
		}
		analysis.Neighbours = append(analysis.Neighbours, info)
	}

	dupIDs := make([]string, 0, len(duplicateIDs))
	for id := range duplicateIDs {
		dupIDs = append(dupIDs, id)
	}
	sort.Strings(dupIDs)
	for _, id := range dupIDs {
		patch := patches[id]
		analysis.Duplicates = append(analysis.Duplicates, NeighbourInfo{
			Adjacency:    AdjacencyRecord{NeighbourID: patch.ID, NeighbourCode: patch.Code},
			Relationship: RelationshipAligned,
			IsDuplicate:  true,
		})
	}

	analysis.GapGeometry, analysis.GapAreaSqm = detectGap(editedID, oldGeom, newGeom, patches)
	return analysis
}

// collectCandidates finds adjacencies on the old geometry, remaps their
// edited indices onto the new rings and, when the pre-edit simplified
// geometry is known, narrows each range to the user-edited span.
func collectCandidates(editedID string, oldGeom, newGeom orb.MultiPolygon, patches PatchSet, preEditSimplified orb.MultiPolygon) []AdjacencyRecord {
	var out []AdjacencyRecord
	for pi, poly := range oldGeom {
		for ri, oldRing := range poly {
			if OpenVertexCount(oldRing) < 3 {
				continue
			}
			newRing := ringAt(newGeom, pi, ri)
			if newRing == nil || OpenVertexCount(newRing) < 3 {
				continue
			}
			if ringsEqual(oldRing, newRing) {
				// Boundary unchanged, nothing to synchronise here.
				continue
			}

			records := FindAdjacentPatches(editedID, oldRing, patches, pi, ri)
			for _, rec := range records {
				rec = remapToNewRing(rec, oldRing, newRing)
				if rec.EditedStartIndex == rec.EditedEndIndex {
					continue
				}
				if preEditSimplified != nil {
					preRing := ringAt(preEditSimplified, pi, ri)
					rec = narrowToEditedRange(rec, newRing, preRing, patches)
				}
				out = append(out, rec)
			}
		}
	}
	return out
}

func ringAt(mp orb.MultiPolygon, pi, ri int) orb.Ring {
	if pi >= len(mp) || ri >= len(mp[pi]) {
		return nil
	}
	return mp[pi][ri]
}

func ringsEqual(a, b orb.Ring) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// remapToNewRing moves the record's edited indices from the old ring to
// the nearest vertices of the new ring. Neighbour indices stay as
// detected.
func remapToNewRing(rec AdjacencyRecord, oldRing, newRing orb.Ring) AdjacencyRecord {
	nOld := OpenVertexCount(oldRing)
	nNew := OpenVertexCount(newRing)
	s := ModIndex(rec.EditedStartIndex, nOld)
	e := ModIndex(rec.EditedEndIndex, nOld)
	rec.EditedStartIndex = NearestVertexIndex(oldRing[s], newRing, nNew)
	rec.EditedEndIndex = NearestVertexIndex(oldRing[e], newRing, nNew)
	return rec
}

// narrowToEditedRange intersects the record's edited range with the span
// of vertices that actually moved between the pre-edit simplified ring
// and the refined ring, padded by a few anchors. Transferring the whole
// simplified edge would overwrite fine neighbour vertices with coarse
// ones far from the user's edit. Every failure falls back to the full
// range.
func narrowToEditedRange(rec AdjacencyRecord, newRing, preRing orb.Ring, patches PatchSet) AdjacencyRecord {
	if preRing == nil {
		return rec
	}
	nNew := OpenVertexCount(newRing)
	changedLo, changedHi, ok := changedRange(newRing, preRing)
	if !ok {
		return rec
	}

	changedLo = changedLo - NarrowAnchorPad
	changedHi = changedHi + NarrowAnchorPad
	if changedHi-changedLo+1 >= nNew {
		return rec
	}

	inChanged := make(map[int]bool)
	for i := changedLo; i <= changedHi; i++ {
		inChanged[ModIndex(i, nNew)] = true
	}

	// Walk the candidate's range and keep the vertices inside the
	// changed span.
	var kept []int
	walkLen := SegmentLength(nNew, rec.EditedStartIndex, rec.EditedEndIndex)
	for k := 0; k < walkLen; k++ {
		idx := ModIndex(rec.EditedStartIndex+k, nNew)
		if inChanged[idx] {
			kept = append(kept, idx)
		}
	}
	if len(kept) < 2 {
		return rec
	}

	rec.EditedStartIndex = kept[0]
	rec.EditedEndIndex = kept[len(kept)-1]

	// Re-derive the neighbour range by projecting the narrowed
	// endpoints onto the neighbour ring.
	neighbour, found := patches[rec.NeighbourID]
	if !found {
		return rec
	}
	nRing := ringAt(neighbour.Geometry, rec.PolyIndex, rec.RingIndex)
	if nRing == nil {
		return rec
	}
	nOpen := OpenVertexCount(nRing)
	if nOpen < 3 {
		return rec
	}
	b1 := NearestVertexIndex(newRing[rec.EditedStartIndex], nRing, nOpen)
	b2 := NearestVertexIndex(newRing[rec.EditedEndIndex], nRing, nOpen)
	if b1 == b2 {
		return rec
	}
	// The shared zone is the shorter of the two arcs between the
	// projected endpoints.
	if SegmentLength(nOpen, b1, b2) <= SegmentLength(nOpen, b2, b1) {
		rec.StartIndex, rec.EndIndex = b1, b2
	} else {
		rec.StartIndex, rec.EndIndex = b2, b1
	}
	rec.MatchedVertexCount = SegmentLength(nOpen, rec.StartIndex, rec.EndIndex)
	return rec
}

// changedRange finds the contiguous index span of newRing that differs
// from preRing. Counts matching compares index by index; otherwise each
// vertex is tested geometrically against the pre-edit boundary.
func changedRange(newRing, preRing orb.Ring) (int, int, bool) {
	nNew := OpenVertexCount(newRing)
	nPre := OpenVertexCount(preRing)
	if nNew < 3 || nPre < 3 {
		return 0, 0, false
	}

	lo, hi := -1, -1
	mark := func(i int) {
		if lo == -1 {
			lo = i
		}
		hi = i
	}

	if nNew == nPre {
		for i := 0; i < nNew; i++ {
			if planar.DistanceSquared(newRing[i], preRing[i]) > ChangeDetectTolDegSq {
				mark(i)
			}
		}
	} else {
		for i := 0; i < nNew; i++ {
			distSq, edge := PointToRingDistSq(newRing[i], preRing, nPre)
			if edge < 0 || distSq > ChangeDetectTolDegSq {
				mark(i)
			}
		}
	}
	if lo == -1 {
		return 0, 0, false
	}
	return lo, hi, true
}

// strongestPerNeighbour keeps one record per neighbour patch, the one
// with the largest matched vertex count.
func strongestPerNeighbour(records []AdjacencyRecord) []AdjacencyRecord {
	best := make(map[string]AdjacencyRecord)
	for _, rec := range records {
		cur, seen := best[rec.NeighbourID]
		if !seen || rec.MatchedVertexCount > cur.MatchedVertexCount {
			best[rec.NeighbourID] = rec
		}
	}
	ids := make([]string, 0, len(best))
	for id := range best {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]AdjacencyRecord, 0, len(best))
	for _, id := range ids {
		out = append(out, best[id])
	}
	return out
}

// detectDuplicates marks every patch whose intersection with the edited
// patch's old geometry covers at least DuplicateOverlapRatio of the
// smaller geometry's area. Zero-area geometries are never duplicates.
func detectDuplicates(editedID string, oldGeom orb.MultiPolygon, patches PatchSet) map[string]bool {
	dup := make(map[string]bool)
	oldArea := AreaSqm(oldGeom)
	if oldArea == 0 {
		return dup
	}
	oldBound := multiPolygonBound(oldGeom)

	for id, patch := range patches {
		if id == editedID {
			continue
		}
		area := AreaSqm(patch.Geometry)
		if area == 0 {
			continue
		}
		if !BoundsOverlap(oldBound, multiPolygonBound(patch.Geometry), BBoxPadDeg) {
			continue
		}
		smaller := oldArea
		if area < smaller {
			smaller = area
		}
		interArea := SafeIntersectionAreaSqm(patch.Geometry, oldGeom)
		if interArea >= DuplicateOverlapRatio*smaller {
			dup[id] = true
		}
	}
	return dup
}

// classifyNeighbour decides the relationship against the NEW geometry.
// A material intersection is an overlap. Otherwise the two patches were
// already identified as neighbours, so either their boundaries are still
// within tolerance (aligned) or the edit retracted away from them (gap).
func classifyNeighbour(rec AdjacencyRecord, newGeom orb.MultiPolygon, patches PatchSet) Relationship {
	patch, found := patches[rec.NeighbourID]
	if !found {
		return RelationshipAligned
	}

	interArea := SafeIntersectionAreaSqm(patch.Geometry, newGeom)
	if interArea > MinOverlapAreaSqm {
		return RelationshipOverlap
	}

	newRing := ringAt(newGeom, rec.EditedPolyIndex, rec.EditedRingIndex)
	if newRing == nil {
		return RelationshipAligned
	}
	nOpen := OpenVertexCount(newRing)
	if nOpen < 3 {
		return RelationshipAligned
	}

	nRing := ringAt(patch.Geometry, rec.PolyIndex, rec.RingIndex)
	if nRing == nil {
		return RelationshipAligned
	}
	shared := ExtractSegment(nRing, rec.StartIndex, rec.EndIndex)
	for _, p := range shared {
		distSq, edge := PointToRingDistSq(p, newRing, nOpen)
		if edge >= 0 && distSq <= SharedEdgeTolDegSq {
			return RelationshipAligned
		}
	}
	return RelationshipGap
}

// detectGap builds the polygon left unassigned by an inward edit:
// difference of old and new geometry, minus every occupied patch, then a
// component cleanup that drops slivers and anything still overlapping an
// occupied patch (imperfect neighbour detection leaves those behind).
func detectGap(editedID string, oldGeom, newGeom orb.MultiPolygon, patches PatchSet) (orb.MultiPolygon, float64) {
	gap := SafeDifference(oldGeom, newGeom)
	if gap == nil {
		return nil, 0
	}

	var occupied []orb.MultiPolygon
	ids := make([]string, 0, len(patches))
	for id := range patches {
		if id != editedID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	gapBound := multiPolygonBound(gap)
	for _, id := range ids {
		geom := patches[id].Geometry
		if !BoundsOverlap(gapBound, multiPolygonBound(geom), BBoxPadDeg) {
			continue
		}
		occupied = append(occupied, geom)
		gap = SafeDifference(gap, geom)
		if gap == nil {
			return nil, 0
		}
	}

	occupiedMask := CascadedUnion(occupied)

	var components orb.MultiPolygon
	total := 0.0
	for _, poly := range gap {
		comp := orb.MultiPolygon{poly}
		area := AreaSqm(comp)
		if area < MinGapAreaSqm {
			continue
		}
		if occupiedMask != nil && SafeIntersectionAreaSqm(comp, occupiedMask) >= MinOverlapAreaSqm {
			log.Printf("dropping gap component still overlapping an occupied patch")
			continue
		}
		components = append(components, poly)
		total += area
	}
	if len(components) == 0 || total < MinGapAreaSqm {
		return nil, 0
	}
	return components, total
}

func multiPolygonBound(mp orb.MultiPolygon) orb.Bound {
	return mp.Bound()
}
