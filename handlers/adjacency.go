package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/paulmach/orb/geojson"

	"github.com/bsaid97/go-patch-editor/engine"
	"github.com/bsaid97/go-patch-editor/utils"
)

type AdjacencyRequest struct {
	EditedID          string          `json:"editedId"`
	FeatureCollection json.RawMessage `json:"featureCollection"`
}

type AdjacencyResponse struct {
	Records []engine.AdjacencyRecord `json:"records"`
}

// AdjacencyHandler finds every patch sharing a boundary with the edited
// patch. The spatial index narrows the candidate set before the
// per-ring detection runs.
func AdjacencyHandler(w http.ResponseWriter, r *http.Request) {
	defer recoverHandler(w, "AdjacencyHandler")

	var req AdjacencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	patches, edited, err := parsePatchSet(req.FeatureCollection, req.EditedID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	index := utils.NewSpatialIndexForPatches(patches)
	candidates := index.FindCandidates(edited.Geometry.Bound(), engine.BBoxPadDeg)

	var records []engine.AdjacencyRecord
	for pi, poly := range edited.Geometry {
		for ri, ring := range poly {
			records = append(records,
				engine.FindAdjacentPatches(edited.ID, ring, candidates, pi, ri)...)
		}
	}
	log.Printf("adjacency: %d records for patch %s against %d candidates",
		len(records), edited.ID, len(candidates))
	sendJSON(w, AdjacencyResponse{Records: records})
}

// parsePatchSet decodes a feature collection into a PatchSet and pulls
// out the edited patch.
func parsePatchSet(raw json.RawMessage, editedID string) (engine.PatchSet, engine.Patch, error) {
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, engine.Patch{}, err
	}
	list, skipped := engine.PatchesFromFeatureCollection(fc)
	if skipped > 0 {
		log.Printf("skipped %d non-polygon features during parsing", skipped)
	}
	patches := make(engine.PatchSet, len(list))
	for _, p := range list {
		patches[p.ID] = p
	}
	edited, ok := patches[editedID]
	if !ok {
		return nil, engine.Patch{}, errUnknownPatch(editedID)
	}
	return patches, edited, nil
}

type unknownPatchError string

func (e unknownPatchError) Error() string { return "unknown patch id: " + string(e) }

func errUnknownPatch(id string) error { return unknownPatchError(id) }
