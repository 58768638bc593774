package engine

import (
	"testing"

	"github.com/paulmach/orb"
)

func sessionPatches() []Patch {
	edited, _ := analysisFixture(2)
	_, neighbour := analysisFixture(2)
	return []Patch{
		{ID: "p1", Code: "A", Geometry: edited},
		{ID: "p2", Code: "B", Geometry: neighbour},
	}
}

func TestWorkingPatchesOverlay(t *testing.T) {
	s := NewEditSession(sessionPatches())

	if got := len(s.WorkingPatches()); got != 2 {
		t.Fatalf("working set has %d patches, want 2", got)
	}

	replacement := orb.MultiPolygon{{square(10, 10, 11, 11)}}
	if err := s.UpdateGeometry("p1", replacement); err != nil {
		t.Fatal(err)
	}
	s.MarkDeleted("p2")
	if err := s.AddNewPatch(Patch{ID: "p3", Code: "C", Geometry: replacement}); err != nil {
		t.Fatal(err)
	}

	working := s.WorkingPatches()
	if len(working) != 2 {
		t.Fatalf("working set has %d patches, want 2 (p1 modified, p3 new)", len(working))
	}
	if _, ok := working["p2"]; ok {
		t.Error("deleted patch still in working set")
	}
	if working["p1"].Geometry[0][0][0] != (orb.Point{10, 10}) {
		t.Error("modification not applied in working set")
	}

	wantDirty := []string{"p1", "p2", "p3"}
	gotDirty := s.DirtyIDs()
	if len(gotDirty) != len(wantDirty) {
		t.Fatalf("dirty ids = %v, want %v", gotDirty, wantDirty)
	}
	for i := range wantDirty {
		if gotDirty[i] != wantDirty[i] {
			t.Fatalf("dirty ids = %v, want %v", gotDirty, wantDirty)
		}
	}

	s.ClearDirty("p1")
	if len(s.DirtyIDs()) != 2 {
		t.Errorf("partial clear left %d dirty ids, want 2", len(s.DirtyIDs()))
	}
	s.ClearDirty()
	if len(s.DirtyIDs()) != 0 {
		t.Errorf("full clear left %d dirty ids", len(s.DirtyIDs()))
	}
}

func TestSessionSnapshotIsolation(t *testing.T) {
	patches := sessionPatches()
	s := NewEditSession(patches)

	// Mutating the host's slice must not leak into the session.
	patches[0].Geometry[0][0][0] = orb.Point{99, 99}
	if s.WorkingPatches()["p1"].Geometry[0][0][0] == (orb.Point{99, 99}) {
		t.Error("session snapshot shares backing arrays with caller")
	}
}

func TestSessionModes(t *testing.T) {
	s := NewEditSession(sessionPatches())

	if s.Mode() != ModeView {
		t.Errorf("initial mode = %v, want view", s.Mode())
	}
	if err := s.EnterEditBoundaryMode(); err == nil {
		t.Error("entering boundary mode without selection did not fail")
	}
	if err := s.SelectPatch("p1"); err != nil {
		t.Fatal(err)
	}
	if err := s.EnterEditBoundaryMode(); err != nil {
		t.Fatal(err)
	}
	if s.Mode() != ModeSimplifyPreview {
		t.Errorf("mode = %v, want simplify-preview", s.Mode())
	}

	preview := orb.MultiPolygon{{square(0, 0, 2, 2)}}
	s.EnterRefineMode(preview)
	if s.Mode() != ModeSimplifyRefine || s.SimplifiedPreview() == nil {
		t.Error("refine mode did not stash the preview")
	}
	s.ExitEditMode()
	if s.Mode() != ModeView || s.SimplifiedPreview() != nil {
		t.Error("exit did not reset mode and preview")
	}
}

func TestApplyEditAutoAligns(t *testing.T) {
	s := NewEditSession(sessionPatches())
	newGeom, _ := analysisFixture(2.0001)

	result, err := s.ApplyEdit("p1", newGeom, []string{"p2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Analysis.Neighbours) != 1 {
		t.Fatalf("analysis found %d neighbours, want 1", len(result.Analysis.Neighbours))
	}

	applied := len(result.AutoAligned)
	pending := len(result.PendingProposals)
	if applied+pending != 1 {
		t.Fatalf("auto-aligned %d + pending %d, want exactly 1 proposal routed", applied, pending)
	}
	if applied == 1 {
		// Auto-applied proposals must both update the working set and
		// flip the analysis entry to aligned.
		if result.Analysis.Neighbours[0].Relationship != RelationshipAligned {
			t.Error("auto-aligned neighbour not marked aligned in analysis")
		}
		ring := s.WorkingPatches()["p2"].Geometry[0][0]
		moved := false
		for _, p := range openRing(ring) {
			if p[0] > 2 && p[0] < 2.001 {
				moved = true
			}
		}
		if !moved {
			t.Error("auto-applied proposal did not move the neighbour boundary")
		}
	}

	if got := s.WorkingPatches()["p1"].Geometry[0][0][1][0]; got != 2.0001 {
		t.Errorf("edited geometry not applied: east x = %f", got)
	}
	if len(s.DirtyIDs()) == 0 {
		t.Error("apply-edit left nothing dirty")
	}
}

func TestApplyEditUnknownPatch(t *testing.T) {
	s := NewEditSession(sessionPatches())
	if _, err := s.ApplyEdit("nope", orb.MultiPolygon{{square(0, 0, 1, 1)}}, nil); err == nil {
		t.Error("apply-edit on unknown patch did not fail")
	}
}

func TestColorForCodeStable(t *testing.T) {
	if ColorForCode("AB12") != ColorForCode("AB12") {
		t.Error("colour not stable for same code")
	}
}
