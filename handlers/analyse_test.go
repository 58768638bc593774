package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/bsaid97/go-patch-editor/engine"
)

func editFixtureFC(t *testing.T) ([]byte, orb.MultiPolygon, orb.MultiPolygon) {
	t.Helper()
	oldGeom := orb.MultiPolygon{{engine.EnsureClosed(orb.Ring{
		{0, 0}, {2, 0}, {2, 0.5}, {2, 1}, {2, 1.5}, {2, 2}, {0, 2},
	})}}
	newGeom := orb.MultiPolygon{{engine.EnsureClosed(orb.Ring{
		{0, 0}, {1.5, 0}, {1.5, 1}, {1.5, 2}, {0, 2},
	})}}
	neighbour := orb.MultiPolygon{{engine.EnsureClosed(orb.Ring{
		{2, 0}, {4, 0}, {4, 2}, {2, 2}, {2, 1.5}, {2, 1}, {2, 0.5},
	})}}

	fc := geojson.NewFeatureCollection()
	edited := geojson.NewFeature(oldGeom)
	edited.Properties["id"] = "edited"
	edited.Properties["code"] = "E"
	fc.Append(edited)
	east := geojson.NewFeature(neighbour)
	east.Properties["id"] = "east"
	east.Properties["code"] = "N"
	fc.Append(east)

	data, err := json.Marshal(fc)
	if err != nil {
		t.Fatal(err)
	}
	return data, oldGeom, newGeom
}

func TestAdjacencyHandler(t *testing.T) {
	fcData, _, _ := editFixtureFC(t)
	body, _ := json.Marshal(AdjacencyRequest{
		EditedID:          "edited",
		FeatureCollection: fcData,
	})

	req := httptest.NewRequest(http.MethodPost, "/adjacency", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	AdjacencyHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp AdjacencyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(resp.Records))
	}
	if resp.Records[0].NeighbourID != "east" || resp.Records[0].MatchedVertexCount < 3 {
		t.Errorf("record = %+v", resp.Records[0])
	}
}

func TestAnalyseHandler(t *testing.T) {
	fcData, oldGeom, newGeom := editFixtureFC(t)
	body, _ := json.Marshal(AnalyseRequest{
		EditedID:          "edited",
		OldGeometry:       geojson.NewGeometry(oldGeom),
		NewGeometry:       geojson.NewGeometry(newGeom),
		FeatureCollection: fcData,
		WithProposals:     true,
	})

	req := httptest.NewRequest(http.MethodPost, "/analyse-edit", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	AnalyseHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Analysis struct {
			Neighbours []struct {
				Relationship string `json:"relationship"`
				Adjacency    struct {
					NeighbourID string `json:"neighbourId"`
				} `json:"adjacency"`
			} `json:"neighbours"`
			GapAreaSqm float64 `json:"gapAreaSqm"`
		} `json:"analysis"`
		Proposals []json.RawMessage `json:"proposals"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Analysis.Neighbours) != 1 {
		t.Fatalf("got %d neighbours, want 1", len(resp.Analysis.Neighbours))
	}
	if resp.Analysis.Neighbours[0].Relationship != "gap" {
		t.Errorf("relationship = %q, want gap", resp.Analysis.Neighbours[0].Relationship)
	}
	if resp.Analysis.GapAreaSqm <= 0 {
		t.Error("retracted edit reported no gap area")
	}
	if len(resp.Proposals) != 1 {
		t.Errorf("got %d proposals, want 1", len(resp.Proposals))
	}
}

func TestAnalyseHandlerRejectsMissingGeometry(t *testing.T) {
	fcData, _, _ := editFixtureFC(t)
	body, _ := json.Marshal(AnalyseRequest{
		EditedID:          "edited",
		FeatureCollection: fcData,
	})
	req := httptest.NewRequest(http.MethodPost, "/analyse-edit", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	AnalyseHandler(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
