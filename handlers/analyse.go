package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/paulmach/orb/geojson"

	"github.com/bsaid97/go-patch-editor/engine"
	"github.com/bsaid97/go-patch-editor/utils"
)

type AnalyseRequest struct {
	EditedID          string            `json:"editedId"`
	OldGeometry       *geojson.Geometry `json:"oldGeometry"`
	NewGeometry       *geojson.Geometry `json:"newGeometry"`
	PreEditSimplified *geojson.Geometry `json:"preEditSimplified,omitempty"`
	FeatureCollection json.RawMessage   `json:"featureCollection"`
	WithProposals     bool              `json:"withProposals"`
}

type AnalyseResponse struct {
	Analysis  engine.PostEditAnalysis   `json:"analysis"`
	Proposals []engine.BoundaryProposal `json:"proposals,omitempty"`
}

// AnalyseHandler runs the post-edit analysis for one geometry change
// and, when asked, the boundary proposals for every affected neighbour.
// The feature collection must be the pre-edit state of the patch set.
func AnalyseHandler(w http.ResponseWriter, r *http.Request) {
	defer recoverHandler(w, "AnalyseHandler")

	var req AnalyseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.OldGeometry == nil || req.NewGeometry == nil {
		http.Error(w, "oldGeometry and newGeometry required", http.StatusBadRequest)
		return
	}
	oldGeom := engine.NormalizeMultiPolygon(req.OldGeometry.Geometry())
	newGeom := engine.NormalizeMultiPolygon(req.NewGeometry.Geometry())
	if oldGeom == nil || newGeom == nil {
		http.Error(w, "geometries must be Polygon or MultiPolygon", http.StatusBadRequest)
		return
	}
	patches, _, err := parsePatchSet(req.FeatureCollection, req.EditedID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Restrict the analysis to patches near the edit; the gap sits
	// inside the old geometry so nothing outside the joint bound can
	// contribute.
	index := utils.NewSpatialIndexForPatches(patches)
	bound := oldGeom.Bound().Union(newGeom.Bound())
	preEdit := index.FindCandidates(bound, engine.BBoxPadDeg)
	preEdit[req.EditedID] = patches[req.EditedID]

	preSimplified := engine.MultiPolygonOrNil(req.PreEditSimplified)

	analysis := engine.AnalysePostEdit(req.EditedID, oldGeom, newGeom, preEdit, preSimplified)
	log.Printf("analyse: patch %s -> %d neighbours, %d duplicates, gap %.1f sqm",
		req.EditedID, len(analysis.Neighbours), len(analysis.Duplicates), analysis.GapAreaSqm)

	resp := AnalyseResponse{Analysis: analysis}
	if req.WithProposals {
		resp.Proposals = engine.GenerateBoundaryProposals(analysis, newGeom, preEdit, oldGeom)
	}
	sendJSON(w, resp)
}
