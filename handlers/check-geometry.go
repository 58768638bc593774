package handlers

import (
	"net/http"
	"runtime"
	"sort"

	"github.com/bsaid97/go-patch-editor/engine"
	"github.com/bsaid97/go-patch-editor/utils"
)

type GeometryError struct {
	PatchID      string `json:"patchId"`
	ErrorMessage string `json:"errorMessage"`
}

// CheckGeometry scans the working patch set for invalid geometries.
// Patches are independent, so the scan fans out over the worker pool.
func (h *SessionHandler) CheckGeometry(w http.ResponseWriter, r *http.Request) {
	defer recoverHandler(w, "Session.CheckGeometry")

	h.mu.Lock()
	if h.session == nil {
		h.mu.Unlock()
		http.Error(w, "no session loaded", http.StatusConflict)
		return
	}
	working := h.session.WorkingPatches()
	h.mu.Unlock()

	jobs := make([]interface{}, 0, len(working))
	for _, p := range working {
		jobs = append(jobs, p)
	}

	processor := utils.NewParallelProcessor(runtime.NumCPU())
	results := processor.ProcessBatch(jobs, func(job interface{}) interface{} {
		patch := job.(engine.Patch)
		if reason := engine.ValidityReason(patch.Geometry); reason != "" {
			return GeometryError{PatchID: patch.ID, ErrorMessage: reason}
		}
		return nil
	}, "Checking geometries")

	errors := make([]GeometryError, 0, len(results))
	for _, res := range results {
		errors = append(errors, res.(GeometryError))
	}
	sort.Slice(errors, func(i, j int) bool { return errors[i].PatchID < errors[j].PatchID })
	sendJSON(w, errors)
}
