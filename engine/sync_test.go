package engine

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// syncFixture builds the S3/S4 layout: an edited patch whose eastern
// boundary sits at x=2.002 with five vertices, and a neighbour carrying
// five matching vertices along the shared edge.
func syncFixture() (oldEdited, newEdited orb.Ring, neighbour orb.MultiPolygon) {
	oldEdited = EnsureClosed(orb.Ring{
		{0, 0}, {2.002, 0}, {2.002, 0.5}, {2.002, 1}, {2.002, 1.5}, {2.002, 2}, {0, 2},
	})
	newEdited = EnsureClosed(orb.Ring{
		{0, 0}, {2.001, 0}, {2.001, 1}, {2.001, 2}, {0, 2},
	})
	neighbour = orb.MultiPolygon{{EnsureClosed(orb.Ring{
		{2.002, 0}, {4, 0}, {4, 2}, {2.002, 2}, {2.002, 1.5}, {2.002, 1}, {2.002, 0.5},
	})}}
	return
}

func TestDisplacementPreservesDensity(t *testing.T) {
	oldEdited, newEdited, neighbour := syncFixture()
	before := OpenVertexCount(neighbour[0][0])

	synced, displaced := SyncBoundaryByDisplacement(neighbour, 0, 0, oldEdited, newEdited)
	if displaced == 0 {
		t.Fatal("displacement moved nothing")
	}
	ring := synced[0][0]
	if OpenVertexCount(ring) != before {
		t.Fatalf("vertex count changed: %d -> %d", before, OpenVertexCount(ring))
	}

	// The formerly shared vertices must now cluster at the new
	// boundary.
	moved := 0
	for _, p := range openRing(ring) {
		if p[0] < 2.0015 {
			if math.Abs(p[0]-2.001) > 1e-4 {
				t.Errorf("moved vertex at x=%f, want ~2.001", p[0])
			}
			moved++
		}
	}
	if moved < 5 {
		t.Errorf("only %d vertices reached the new boundary, want 5", moved)
	}
}

func TestDisplacementLeavesFarVerticesAlone(t *testing.T) {
	oldEdited, newEdited, neighbour := syncFixture()
	synced, _ := SyncBoundaryByDisplacement(neighbour, 0, 0, oldEdited, newEdited)

	orig := openRing(neighbour[0][0])
	got := openRing(synced[0][0])
	for i, p := range orig {
		distSq, _ := PointToRingDistSq(p, oldEdited, OpenVertexCount(oldEdited))
		if distSq > SharedEdgeTolDegSq && got[i] != p {
			t.Errorf("off-boundary vertex %d moved: %v -> %v", i, p, got[i])
		}
	}
}

func TestDisplacementInputUntouched(t *testing.T) {
	oldEdited, newEdited, neighbour := syncFixture()
	want := CloneMultiPolygon(neighbour)

	SyncBoundaryByDisplacement(neighbour, 0, 0, oldEdited, newEdited)
	for i, p := range neighbour[0][0] {
		if p != want[0][0][i] {
			t.Fatal("displacement mutated its input geometry")
		}
	}
}

func TestProjectionPreservesVertexCount(t *testing.T) {
	_, newEdited, neighbour := syncFixture()
	before := OpenVertexCount(neighbour[0][0])

	replacement := ExtractSegment(newEdited, 1, 3)
	synced := SyncBoundaryByProjection(neighbour, 0, 0, 3, 6, replacement, true)

	ring := synced[0][0]
	if OpenVertexCount(ring) != before {
		t.Fatalf("vertex count changed: %d -> %d", before, OpenVertexCount(ring))
	}
	if ring[0] != ring[len(ring)-1] {
		t.Error("projected ring lost closure")
	}

	// Shared-range vertices land on the replacement polyline.
	for k := 3; k <= 6; k++ {
		p := ring[k]
		if math.Abs(p[0]-2.001) > 1e-9 {
			t.Errorf("vertex %d projected to x=%f, want 2.001", k, p[0])
		}
	}
}

func TestProjectionReversedMatchesForward(t *testing.T) {
	// Projection onto a polyline is direction-independent; the
	// reversal flag must not change where vertices land.
	_, newEdited, neighbour := syncFixture()
	replacement := ExtractSegment(newEdited, 1, 3)

	fwd := SyncBoundaryByProjection(neighbour, 0, 0, 3, 6, replacement, false)
	rev := SyncBoundaryByProjection(neighbour, 0, 0, 3, 6, replacement, true)
	for i := range fwd[0][0] {
		if planar.DistanceSquared(fwd[0][0][i], rev[0][0][i]) > 1e-18 {
			t.Fatalf("vertex %d differs between forward and reversed projection", i)
		}
	}
}

func TestSpliceReplacesRange(t *testing.T) {
	neighbour := orb.MultiPolygon{{EnsureClosed(orb.Ring{
		{2, 0}, {4, 0}, {4, 2}, {2, 2}, {2, 1}, {2, 0.5},
	})}}
	replacement := orb.LineString{{2.1, 2}, {2.1, 1}, {2.1, 0}}

	spliced := SyncBoundaryBySplice(neighbour, 0, 0, 3, 5, replacement, false)
	ring := openRing(spliced[0][0])
	if len(ring) != 6 {
		t.Fatalf("spliced ring has %d open vertices, want 6", len(ring))
	}
	if ring[0] != (orb.Point{2.1, 2}) {
		t.Errorf("splice did not insert replacement at range start: %v", ring[0])
	}
}

func TestSpliceRefusesDegenerateResult(t *testing.T) {
	neighbour := orb.MultiPolygon{{EnsureClosed(orb.Ring{{2, 0}, {4, 0}, {4, 2}})}}
	replacement := orb.LineString{{9, 9}}

	// Replacing the whole triangle with one vertex cannot form a ring;
	// the input must come back unchanged.
	spliced := SyncBoundaryBySplice(neighbour, 0, 0, 0, 2, replacement, false)
	if OpenVertexCount(spliced[0][0]) != 3 {
		t.Error("splice produced a degenerate ring instead of refusing")
	}
}

func TestAssessConnectionQuality(t *testing.T) {
	// Vertices a metre or so apart, as a real boundary has them.
	scale := func(r orb.Ring) orb.Ring {
		out := make(orb.Ring, len(r))
		for i, p := range r {
			out[i] = orb.Point{p[0] * 1e-5, p[1] * 1e-5}
		}
		return out
	}

	// Smooth join: the changed vertex continues the straight edge.
	smooth := EnsureClosed(scale(orb.Ring{
		{0, 0}, {1, 0}, {2, 0}, {2, 1}, {2, 2}, {1, 2}, {0, 2},
	}))
	if q, _ := AssessConnectionQuality(smooth, 3, 3); q != SnapGood {
		t.Errorf("smooth join judged %v", q)
	}

	// A spike at the joint folds the boundary back on itself: the
	// angle between the unedited side and the onward edge collapses.
	spiked := EnsureClosed(scale(orb.Ring{
		{0, 0}, {1, 0}, {2, 0}, {1.0, 0.1}, {2, 0.3}, {2, 2}, {0, 2},
	}))
	if q, _ := AssessConnectionQuality(spiked, 3, 3); q != SnapPoor {
		t.Errorf("spiked join judged %v", q)
	}

	// A joint whose unedited neighbour sits about a hundred metres away is a
	// bad join even without a kink.
	farNeighbour := EnsureClosed(orb.Ring{
		{0, 0}, {0.001, 0}, {0.002, 0}, {0.002, 0.002}, {0, 0.002},
	})
	if q, _ := AssessConnectionQuality(farNeighbour, 2, 2); q != SnapPoor {
		t.Errorf("distant joint judged %v", q)
	}
}

func TestGenerateBoundaryProposalsDisplacementPath(t *testing.T) {
	oldEdited, newEdited, neighbourGeom := syncFixture()
	oldGeom := orb.MultiPolygon{{oldEdited}}
	newGeom := orb.MultiPolygon{{newEdited}}

	patches := PatchSet{
		"edited": {ID: "edited", Code: "E", Geometry: oldGeom},
		"east":   {ID: "east", Code: "N", Geometry: neighbourGeom},
	}

	analysis := AnalysePostEdit("edited", oldGeom, newGeom, patches, nil)
	if len(analysis.Neighbours) != 1 {
		t.Fatalf("analysis found %d neighbours, want 1", len(analysis.Neighbours))
	}

	proposals := GenerateBoundaryProposals(analysis, newGeom, patches, oldGeom)
	if len(proposals) != 1 {
		t.Fatalf("got %d proposals, want 1", len(proposals))
	}
	prop := proposals[0]
	if prop.PatchID != "east" {
		t.Errorf("proposal for %q, want east", prop.PatchID)
	}
	if OpenVertexCount(prop.ProposedGeometry[0][0]) != OpenVertexCount(neighbourGeom[0][0]) {
		t.Error("proposal changed neighbour vertex count")
	}
	if len(prop.OriginalSegment) == 0 || len(prop.ProposedSegment) == 0 {
		t.Error("proposal missing segments")
	}
}

func TestGenerateBoundaryProposalsProjectionFallback(t *testing.T) {
	oldEdited, newEdited, neighbourGeom := syncFixture()
	oldGeom := orb.MultiPolygon{{oldEdited}}
	newGeom := orb.MultiPolygon{{newEdited}}

	patches := PatchSet{
		"edited": {ID: "edited", Code: "E", Geometry: oldGeom},
		"east":   {ID: "east", Code: "N", Geometry: neighbourGeom},
	}

	analysis := AnalysePostEdit("edited", oldGeom, newGeom, patches, nil)

	// No old edited geometry: the projection path must still produce a
	// count-preserving proposal.
	proposals := GenerateBoundaryProposals(analysis, newGeom, patches, nil)
	if len(proposals) != 1 {
		t.Fatalf("got %d proposals, want 1", len(proposals))
	}
	if OpenVertexCount(proposals[0].ProposedGeometry[0][0]) != OpenVertexCount(neighbourGeom[0][0]) {
		t.Error("projection fallback changed neighbour vertex count")
	}
}
