package ui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"sourceboot/adapters/memory"
	"sourceboot/domain/core"
	"sourceboot/domain/sourcespace"
	"sourceboot/domain/threshold"
	"sourceboot/internal/testkit"
)

func testServer(t *testing.T) (*Server, *testkit.InMemoryStore) {
	t.Helper()
	store := testkit.NewInMemoryStore()
	return NewServer(memory.NewLedger(), store), store
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := testServer(t)
	rec := get(t, s, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("health = %d, want 200", rec.Code)
	}
}

func TestStagesEmptyEventIsNotAnError(t *testing.T) {
	s, _ := testServer(t)
	rec := get(t, s, "/api/stages/stim")
	if rec.Code != http.StatusOK {
		t.Fatalf("stages = %d, want 200", rec.Code)
	}
	var records []json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatalf("stages body not a JSON array: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}

func TestMissingArtifactIs404(t *testing.T) {
	s, _ := testServer(t)
	for _, path := range []string{
		"/api/threshold/stim/state/all",
		"/api/pci/stim/state/all",
		"/api/correlation/stim/state/all",
	} {
		if rec := get(t, s, path); rec.Code != http.StatusNotFound {
			t.Errorf("%s = %d, want 404", path, rec.Code)
		}
	}
}

func TestThresholdSummary(t *testing.T) {
	s, store := testServer(t)
	key, err := core.NewAnalysisKey("stim", "state", "all")
	if err != nil {
		t.Fatal(err)
	}
	a := &threshold.Artifact{
		Key:            key,
		Policy:         threshold.BootstrapPolicy(0.05),
		NBoot:          10,
		SourceWaveform: sourcespace.MatrixPayload{Rows: 2, Cols: 2, Data: []float64{1, 2, 3, 4}},
		BaselineMean:   []float64{0, 0},
		BaselineStd:    []float64{1, 1},
		Multiplier:     3.1,
		PerSource:      []float64{3.1, 3.1},
		CreatedAt:      core.Now(),
	}
	if err := store.SaveThreshold(context.Background(), a); err != nil {
		t.Fatal(err)
	}

	rec := get(t, s, "/api/threshold/stim/state/all")
	if rec.Code != http.StatusOK {
		t.Fatalf("threshold = %d, want 200", rec.Code)
	}
	var body struct {
		Multiplier float64 `json:"multiplier"`
		NSources   int     `json:"n_sources"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Multiplier != 3.1 || body.NSources != 2 {
		t.Errorf("summary = %+v", body)
	}
}
