package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/paulmach/orb/geojson"

	"github.com/bsaid97/go-patch-editor/engine"
	"github.com/bsaid97/go-patch-editor/utils"
)

type SimplifyRequest struct {
	Geometry         *geojson.Geometry `json:"geometry"`
	ToleranceDeg     float64           `json:"toleranceDeg"`
	ToleranceMeters  float64           `json:"toleranceMeters"`
	TargetVertices   int               `json:"targetVertices"`
	HighQuality      bool              `json:"highQuality"`
	IncludeDeviation bool              `json:"includeDeviation"`
}

type SimplifyResponse struct {
	Geometry     *geojson.Geometry    `json:"geometry"`
	Stats        engine.SimplifyStats `json:"stats"`
	ToleranceDeg float64              `json:"toleranceDeg"`
}

// SimplifyHandler reduces a geometry to a tolerance, or to a target
// vertex count when the request asks for one instead.
func SimplifyHandler(w http.ResponseWriter, r *http.Request) {
	defer recoverHandler(w, "SimplifyHandler")

	var req SimplifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Geometry == nil {
		http.Error(w, "missing geometry", http.StatusBadRequest)
		return
	}
	geom := engine.NormalizeMultiPolygon(req.Geometry.Geometry())
	if geom == nil {
		http.Error(w, "geometry must be Polygon or MultiPolygon", http.StatusBadRequest)
		return
	}

	tolerance := req.ToleranceDeg
	if tolerance <= 0 && req.ToleranceMeters > 0 {
		tolerance = utils.MetersToDegrees(req.ToleranceMeters)
	}
	if tolerance <= 0 && req.TargetVertices > 0 {
		tolerance = engine.FindToleranceForTarget(geom, req.TargetVertices, req.HighQuality)
		log.Printf("simplify: tolerance %e for target %d vertices", tolerance, req.TargetVertices)
	}
	if tolerance <= 0 {
		http.Error(w, "toleranceDeg or targetVertices required", http.StatusBadRequest)
		return
	}

	simplified := engine.Simplify(geom, tolerance, req.HighQuality)
	stats := engine.ComputeStats(geom, simplified, req.IncludeDeviation)

	sendJSON(w, SimplifyResponse{
		Geometry:     geojson.NewGeometry(simplified),
		Stats:        stats,
		ToleranceDeg: tolerance,
	})
}

func sendJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func recoverHandler(w http.ResponseWriter, name string) {
	if r := recover(); r != nil {
		log.Printf("PANIC recovered in %s: %v", name, r)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
