package engine

import (
	"encoding/json"

	"github.com/paulmach/orb"
)

// Patch is a polygonal region with identity. Geometries are always
// normalised to MultiPolygon at ingress.
type Patch struct {
	ID       string           `json:"id"`
	Code     string           `json:"code"`
	Name     string           `json:"name,omitempty"`
	Geometry orb.MultiPolygon `json:"geometry"`
}

// PatchSet maps patch id to patch. Iteration order is irrelevant to
// results but stable within a run (callers sort ids where it matters).
type PatchSet map[string]Patch

// Relationship classifies how a neighbour sits against the edited
// geometry after an edit.
type Relationship int

const (
	RelationshipAligned Relationship = iota
	RelationshipOverlap
	RelationshipGap
)

func (r Relationship) String() string {
	switch r {
	case RelationshipOverlap:
		return "overlap"
	case RelationshipGap:
		return "gap"
	default:
		return "aligned"
	}
}

func (r Relationship) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// SnapQuality is the verdict on how cleanly a proposed segment joins the
// unedited portion of a neighbour ring.
type SnapQuality int

const (
	SnapGood SnapQuality = iota
	SnapPoor
)

func (q SnapQuality) String() string {
	if q == SnapPoor {
		return "poor"
	}
	return "good"
}

func (q SnapQuality) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.String())
}

// EditMode is the session's interaction state.
type EditMode int

const (
	ModeView EditMode = iota
	ModeDraw
	ModeSimplifyPreview
	ModeSimplifyRefine
)

func (m EditMode) String() string {
	switch m {
	case ModeDraw:
		return "draw"
	case ModeSimplifyPreview:
		return "simplify-preview"
	case ModeSimplifyRefine:
		return "simplify-refine"
	default:
		return "view"
	}
}

// AdjacencyRecord describes one shared segment between an edited ring and
// a neighbour ring. Neighbour indices are StartIndex/EndIndex; the edited
// ring's own indices are the Edited* fields. All indices live in open-form
// vertex space and a range with end < start wraps past the ring end.
type AdjacencyRecord struct {
	NeighbourID   string `json:"neighbourId"`
	NeighbourCode string `json:"neighbourCode"`

	PolyIndex  int `json:"polyIndex"`
	RingIndex  int `json:"ringIndex"`
	StartIndex int `json:"startIndex"`
	EndIndex   int `json:"endIndex"`

	EditedPolyIndex  int `json:"editedPolyIndex"`
	EditedRingIndex  int `json:"editedRingIndex"`
	EditedStartIndex int `json:"editedStartIndex"`
	EditedEndIndex   int `json:"editedEndIndex"`

	// IsReversed is true when the neighbour's winding along the shared
	// edge opposes the edited ring's.
	IsReversed bool `json:"isReversed"`

	// MatchedVertexCount is the number of neighbour vertices inside the
	// shared zone.
	MatchedVertexCount int `json:"matchedVertexCount"`
}

// NeighbourInfo is an adjacency plus its post-edit classification.
type NeighbourInfo struct {
	Adjacency    AdjacencyRecord `json:"adjacency"`
	Relationship Relationship    `json:"relationship"`
	IsDuplicate  bool            `json:"isDuplicate"`
}

// PostEditAnalysis is the full result of analysing one geometry edit
// against the rest of the patch set.
type PostEditAnalysis struct {
	Duplicates  []NeighbourInfo  `json:"duplicates"`
	Neighbours  []NeighbourInfo  `json:"neighbours"`
	GapGeometry orb.MultiPolygon `json:"gapGeometry,omitempty"` // nil when no reportable gap
	GapAreaSqm  float64          `json:"gapAreaSqm"`
}

// ConnectionPoints are the two splice endpoints of a proposal.
type ConnectionPoints struct {
	Start orb.Point `json:"start"`
	End   orb.Point `json:"end"`
}

// BoundaryProposal is a synchronised neighbour ring offered to the user.
type BoundaryProposal struct {
	PatchID      string          `json:"patchId"`
	PatchCode    string          `json:"patchCode"`
	Relationship Relationship    `json:"relationship"`
	Adjacency    AdjacencyRecord `json:"adjacency"`

	OriginalGeometry orb.MultiPolygon `json:"originalGeometry"`
	ProposedGeometry orb.MultiPolygon `json:"proposedGeometry"`

	OriginalSegment orb.LineString `json:"originalSegment"`
	ProposedSegment orb.LineString `json:"proposedSegment"`
	ChangedSegment  orb.LineString `json:"changedSegment"`

	Connection  ConnectionPoints `json:"connectionPoints"`
	SnapQuality SnapQuality      `json:"snapQuality"`
}

// NormalizeMultiPolygon wraps a bare polygon as a one-element
// MultiPolygon so every patch geometry has the same shape.
func NormalizeMultiPolygon(g orb.Geometry) orb.MultiPolygon {
	switch t := g.(type) {
	case orb.Polygon:
		return orb.MultiPolygon{t}
	case orb.MultiPolygon:
		return t
	default:
		return nil
	}
}

// CloneMultiPolygon deep-copies a geometry so session snapshots cannot be
// mutated through shared backing arrays.
func CloneMultiPolygon(mp orb.MultiPolygon) orb.MultiPolygon {
	if mp == nil {
		return nil
	}
	out := make(orb.MultiPolygon, len(mp))
	for i, poly := range mp {
		p := make(orb.Polygon, len(poly))
		for j, ring := range poly {
			r := make(orb.Ring, len(ring))
			copy(r, ring)
			p[j] = r
		}
		out[i] = p
	}
	return out
}
