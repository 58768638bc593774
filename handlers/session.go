package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/paulmach/orb/geojson"

	"github.com/bsaid97/go-patch-editor/engine"
	"github.com/bsaid97/go-patch-editor/store"
	"github.com/bsaid97/go-patch-editor/utils"
)

// SessionHandler holds the single edit session this server instance
// serves. The engine is single-threaded by design, so every session
// endpoint runs under one mutex; concurrency lives in read-only
// fan-outs only.
type SessionHandler struct {
	mu      sync.Mutex
	session *engine.EditSession
	store   *store.PatchStore
}

func NewSessionHandler(st *store.PatchStore) *SessionHandler {
	return &SessionHandler{store: st}
}

// Register wires the session endpoints onto a mux.
func (h *SessionHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/session/load", h.Load)
	mux.HandleFunc("/session/apply-edit", h.ApplyEdit)
	mux.HandleFunc("/session/fill-gap", h.FillGap)
	mux.HandleFunc("/session/delete-patch", h.DeletePatch)
	mux.HandleFunc("/session/commit", h.Commit)
	mux.HandleFunc("/session/export", h.Export)
	mux.HandleFunc("/session/check-geometry", h.CheckGeometry)
}

// Load starts a session from an uploaded feature collection, or from
// the patch store when the body is empty and a store is configured.
func (h *SessionHandler) Load(w http.ResponseWriter, r *http.Request) {
	defer recoverHandler(w, "Session.Load")

	var patches []engine.Patch
	payload := readPayload(r)
	switch {
	case payload != "":
		fc, err := geojson.UnmarshalFeatureCollection([]byte(payload))
		if err != nil {
			http.Error(w, "invalid feature collection: "+err.Error(), http.StatusBadRequest)
			return
		}
		var skipped int
		patches, skipped = engine.PatchesFromFeatureCollection(fc)
		if skipped > 0 {
			log.Printf("session load: skipped %d non-polygon features", skipped)
		}
	case h.store != nil:
		loaded, skipped, err := h.store.LoadPatches(r.Context())
		if err != nil {
			http.Error(w, "failed to load patches: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if skipped > 0 {
			log.Printf("session load: skipped %d unparseable rows", skipped)
		}
		patches = loaded
	default:
		http.Error(w, "no feature collection and no store configured", http.StatusBadRequest)
		return
	}

	repaired := 0
	for i := range patches {
		if reason := engine.ValidityReason(patches[i].Geometry); reason != "" {
			log.Printf("session load: repairing patch %s: %s", patches[i].ID, reason)
			patches[i].Geometry = engine.RepairGeometry(patches[i].Geometry)
			repaired++
		}
	}
	if repaired > 0 {
		log.Printf("session load: repaired %d invalid geometries", repaired)
	}

	h.mu.Lock()
	h.session = engine.NewEditSession(patches)
	h.mu.Unlock()

	log.Printf("session loaded with %d patches", len(patches))
	sendJSON(w, map[string]interface{}{"loaded": len(patches)})
}

type ApplyEditRequest struct {
	PatchID           string            `json:"patchId"`
	Geometry          *geojson.Geometry `json:"geometry"`
	PreEditSimplified *geojson.Geometry `json:"preEditSimplified,omitempty"`
	LinkedIDs         []string          `json:"linkedIds,omitempty"`
}

// ApplyEdit commits an approved geometry and runs the full post-edit
// pipeline through the session.
func (h *SessionHandler) ApplyEdit(w http.ResponseWriter, r *http.Request) {
	defer recoverHandler(w, "Session.ApplyEdit")

	var req ApplyEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	geom := engine.MultiPolygonOrNil(req.Geometry)
	if geom == nil {
		http.Error(w, "geometry must be Polygon or MultiPolygon", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session == nil {
		http.Error(w, "no session loaded", http.StatusConflict)
		return
	}
	if pre := engine.MultiPolygonOrNil(req.PreEditSimplified); pre != nil {
		h.session.EnterRefineMode(pre)
	}
	result, err := h.session.ApplyEdit(req.PatchID, geom, req.LinkedIDs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	log.Printf("apply-edit: patch %s, %d auto-aligned, %d pending, gap %.1f sqm",
		req.PatchID, len(result.AutoAligned), len(result.PendingProposals), result.Analysis.GapAreaSqm)
	sendJSON(w, result)
}

type FillGapRequest struct {
	ID       string            `json:"id"`
	Code     string            `json:"code"`
	Name     string            `json:"name,omitempty"`
	Geometry *geojson.Geometry `json:"geometry"`
}

// FillGap creates a new patch over a reported gap polygon.
func (h *SessionHandler) FillGap(w http.ResponseWriter, r *http.Request) {
	defer recoverHandler(w, "Session.FillGap")

	var req FillGapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	geom := engine.MultiPolygonOrNil(req.Geometry)
	if geom == nil || req.ID == "" {
		http.Error(w, "id and polygonal geometry required", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session == nil {
		http.Error(w, "no session loaded", http.StatusConflict)
		return
	}
	err := h.session.AddNewPatch(engine.Patch{ID: req.ID, Code: req.Code, Name: req.Name, Geometry: geom})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sendJSON(w, map[string]interface{}{"added": req.ID})
}

// DeletePatch stages a deletion.
func (h *SessionHandler) DeletePatch(w http.ResponseWriter, r *http.Request) {
	defer recoverHandler(w, "Session.DeletePatch")

	var req struct {
		PatchID string `json:"patchId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PatchID == "" {
		http.Error(w, "patchId required", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session == nil {
		http.Error(w, "no session loaded", http.StatusConflict)
		return
	}
	h.session.MarkDeleted(req.PatchID)
	sendJSON(w, map[string]interface{}{"deleted": req.PatchID})
}

// Commit persists every dirty patch to the store and clears the dirty
// set. Without a store it only clears, which is what file-based hosts
// want after exporting.
func (h *SessionHandler) Commit(w http.ResponseWriter, r *http.Request) {
	defer recoverHandler(w, "Session.Commit")

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session == nil {
		http.Error(w, "no session loaded", http.StatusConflict)
		return
	}

	dirty := h.session.DirtyIDs()
	saved, deleted, failed := 0, 0, 0
	if h.store != nil {
		working := h.session.WorkingPatches()
		for _, id := range dirty {
			if h.session.IsDeleted(id) {
				if err := h.store.DeletePatch(r.Context(), id); err != nil {
					log.Printf("commit: %v", err)
					failed++
					continue
				}
				deleted++
				continue
			}
			patch, ok := working[id]
			if !ok {
				continue
			}
			if err := h.store.SavePatch(r.Context(), patch); err != nil {
				log.Printf("commit: %v", err)
				failed++
				continue
			}
			saved++
		}
	}
	if failed == 0 {
		h.session.ClearDirty()
	}
	log.Printf("commit: %d saved, %d deleted, %d failed of %d dirty", saved, deleted, failed, len(dirty))
	sendJSON(w, map[string]interface{}{
		"dirty": len(dirty), "saved": saved, "deleted": deleted, "failed": failed,
	})
}

// Export streams the working patch set as a zip with both GeoJSON and
// shapefile inside.
func (h *SessionHandler) Export(w http.ResponseWriter, r *http.Request) {
	defer recoverHandler(w, "Session.Export")

	h.mu.Lock()
	if h.session == nil {
		h.mu.Unlock()
		http.Error(w, "no session loaded", http.StatusConflict)
		return
	}
	working := h.session.WorkingPatches()
	h.mu.Unlock()

	fc := engine.FeatureCollectionFromPatches(working)
	jsonData, err := json.Marshal(fc)
	if err != nil {
		http.Error(w, "failed to marshal feature collection: "+err.Error(), http.StatusInternalServerError)
		return
	}
	zipData, err := utils.GenerateShapefileZip(jsonData, fc, "patches")
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to generate export: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="patches.zip"`)
	w.WriteHeader(http.StatusOK)
	w.Write(zipData)
}

// readPayload accepts either a raw JSON body or a multipart form with a
// file field, the way the original import surface did.
func readPayload(r *http.Request) string {
	contentType := r.Header.Get("Content-Type")
	if strings.Contains(contentType, "multipart/form-data") {
		multi := utils.ReadMultiPartForm(r, "file")
		if multi.File != "" {
			return multi.File
		}
		return multi.Properties.FeatureCollection
	}
	body := new(strings.Builder)
	if _, err := io.Copy(body, r.Body); err != nil {
		return ""
	}
	return strings.TrimSpace(body.String())
}
