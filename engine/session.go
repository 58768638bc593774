package engine

import (
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/paulmach/orb"
)

// EditSession owns the working patch set for one editing run. Patches
// load once at session start; edits accumulate as an overlay (modified
// geometries, new patches, deleted ids) over the original snapshot and
// are only folded together on demand. Proposals are ephemeral and never
// stored on the session.
type EditSession struct {
	original   PatchSet
	modified   map[string]orb.MultiPolygon
	newPatches []Patch
	deleted    map[string]bool
	dirty      map[string]bool

	mode              EditMode
	selectedID        string
	simplifiedPreview orb.MultiPolygon
}

// NewEditSession snapshots the loaded patches. Geometries are deep
// copied so later host mutations cannot leak into the snapshot.
func NewEditSession(patches []Patch) *EditSession {
	original := make(PatchSet, len(patches))
	for _, p := range patches {
		p.Geometry = CloneMultiPolygon(p.Geometry)
		original[p.ID] = p
	}
	return &EditSession{
		original: original,
		modified: make(map[string]orb.MultiPolygon),
		deleted:  make(map[string]bool),
		dirty:    make(map[string]bool),
	}
}

// WorkingPatches derives the current view: original minus deleted, with
// modifications applied, plus new patches.
func (s *EditSession) WorkingPatches() PatchSet {
	out := make(PatchSet, len(s.original)+len(s.newPatches))
	for id, p := range s.original {
		if s.deleted[id] {
			continue
		}
		if geom, ok := s.modified[id]; ok {
			p.Geometry = geom
		}
		out[id] = p
	}
	for _, p := range s.newPatches {
		if !s.deleted[p.ID] {
			out[p.ID] = p
		}
	}
	return out
}

// SelectPatch sets (or clears, with "") the selected patch.
func (s *EditSession) SelectPatch(id string) error {
	if id == "" {
		s.selectedID = ""
		return nil
	}
	if _, ok := s.WorkingPatches()[id]; !ok {
		return fmt.Errorf("unknown patch %q", id)
	}
	s.selectedID = id
	return nil
}

// SelectedPatch returns the selected patch, if any.
func (s *EditSession) SelectedPatch() (Patch, bool) {
	p, ok := s.WorkingPatches()[s.selectedID]
	return p, ok
}

func (s *EditSession) Mode() EditMode { return s.mode }

func (s *EditSession) EnterDrawMode() { s.mode = ModeDraw }

// EnterEditBoundaryMode starts a simplification preview on the selected
// patch.
func (s *EditSession) EnterEditBoundaryMode() error {
	if s.selectedID == "" {
		return fmt.Errorf("no patch selected")
	}
	s.mode = ModeSimplifyPreview
	return nil
}

// EnterRefineMode stores the approved simplified geometry and hands the
// boundary to manual vertex editing.
func (s *EditSession) EnterRefineMode(simplified orb.MultiPolygon) {
	s.simplifiedPreview = CloneMultiPolygon(simplified)
	s.mode = ModeSimplifyRefine
}

// SimplifiedPreview returns the stashed pre-refinement geometry, nil
// outside refine mode.
func (s *EditSession) SimplifiedPreview() orb.MultiPolygon {
	return s.simplifiedPreview
}

func (s *EditSession) ExitEditMode() {
	s.mode = ModeView
	s.simplifiedPreview = nil
}

// UpdateGeometry stages a new geometry for a patch and marks it dirty.
func (s *EditSession) UpdateGeometry(id string, geom orb.MultiPolygon) error {
	if _, ok := s.WorkingPatches()[id]; !ok {
		return fmt.Errorf("unknown patch %q", id)
	}
	s.modified[id] = CloneMultiPolygon(geom)
	s.dirty[id] = true
	return nil
}

// AddNewPatch stages a patch created to fill a gap.
func (s *EditSession) AddNewPatch(p Patch) error {
	if _, ok := s.WorkingPatches()[p.ID]; ok {
		return fmt.Errorf("patch %q already exists", p.ID)
	}
	p.Geometry = CloneMultiPolygon(p.Geometry)
	s.newPatches = append(s.newPatches, p)
	s.dirty[p.ID] = true
	return nil
}

// MarkDeleted removes a patch from the working view.
func (s *EditSession) MarkDeleted(id string) {
	s.deleted[id] = true
	s.dirty[id] = true
}

// IsDeleted reports whether a patch id is staged for deletion.
func (s *EditSession) IsDeleted(id string) bool {
	return s.deleted[id]
}

// DirtyIDs lists every patch touched since the last commit, sorted.
func (s *EditSession) DirtyIDs() []string {
	ids := make([]string, 0, len(s.dirty))
	for id := range s.dirty {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ClearDirty clears the given ids, or everything when none are given.
// Called on commit.
func (s *EditSession) ClearDirty(ids ...string) {
	if len(ids) == 0 {
		s.dirty = make(map[string]bool)
		return
	}
	for _, id := range ids {
		delete(s.dirty, id)
	}
}

// ApplyEditResult is what an approved edit hands back to the UI: the
// full analysis, auto-applied neighbour ids, and the proposals that
// still need manual review.
type ApplyEditResult struct {
	Analysis         PostEditAnalysis
	AutoAligned      []string
	PendingProposals []BoundaryProposal
}

// ApplyEdit commits an approved geometry for one patch and runs the
// post-edit pipeline: analysis against the pre-edit feature set, then
// boundary proposals for the linked neighbours, auto-applying the ones
// that join cleanly and stashing the rest for review.
func (s *EditSession) ApplyEdit(patchID string, newGeom orb.MultiPolygon, linkedNeighbourIDs []string) (ApplyEditResult, error) {
	preEditFeatures := s.WorkingPatches()
	edited, ok := preEditFeatures[patchID]
	if !ok {
		return ApplyEditResult{}, fmt.Errorf("unknown patch %q", patchID)
	}
	oldGeometry := edited.Geometry
	preEditSimplified := s.simplifiedPreview

	if err := s.UpdateGeometry(patchID, newGeom); err != nil {
		return ApplyEditResult{}, err
	}
	s.ExitEditMode()

	result := ApplyEditResult{
		Analysis: AnalysePostEdit(patchID, oldGeometry, newGeom, preEditFeatures, preEditSimplified),
	}

	if len(linkedNeighbourIDs) > 0 {
		linked := make(map[string]bool, len(linkedNeighbourIDs))
		for _, id := range linkedNeighbourIDs {
			linked[id] = true
		}
		proposals := GenerateBoundaryProposals(result.Analysis, newGeom, preEditFeatures, oldGeometry)
		for _, proposal := range proposals {
			if !linked[proposal.PatchID] {
				continue
			}
			if proposal.SnapQuality == SnapGood {
				if err := s.UpdateGeometry(proposal.PatchID, proposal.ProposedGeometry); err != nil {
					continue
				}
				result.AutoAligned = append(result.AutoAligned, proposal.PatchID)
			} else {
				result.PendingProposals = append(result.PendingProposals, proposal)
			}
		}
	}

	aligned := make(map[string]bool, len(result.AutoAligned))
	for _, id := range result.AutoAligned {
		aligned[id] = true
	}
	for i := range result.Analysis.Neighbours {
		if aligned[result.Analysis.Neighbours[i].Adjacency.NeighbourID] {
			result.Analysis.Neighbours[i].Relationship = RelationshipAligned
		}
	}
	return result, nil
}

// patchPalette is the fixed render palette; colour choice is a pure
// function of the patch code.
var patchPalette = []string{
	"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd",
	"#8c564b", "#e377c2", "#7f7f7f", "#bcbd22", "#17becf",
}

// ColorForCode hashes a patch code onto the palette.
func ColorForCode(code string) string {
	h := fnv.New32a()
	h.Write([]byte(code))
	return patchPalette[h.Sum32()%uint32(len(patchPalette))]
}
