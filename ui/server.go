// Package ui serves a read-only HTTP view of pipeline state: stage records
// from the ledger and summaries of persisted artifacts. It never mutates
// anything; runs are driven from the CLI.
package ui

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"sourceboot/domain/core"
	"sourceboot/domain/stage"
	"sourceboot/ports"
)

// Server exposes pipeline status over HTTP
type Server struct {
	router    chi.Router
	ledger    ports.StageLedger
	artifacts ports.ArtifactStore
}

// NewServer builds the status server
func NewServer(ledger ports.StageLedger, artifacts ports.ArtifactStore) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		ledger:    ledger,
		artifacts: artifacts,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/stages/{event}", s.handleStages)
		r.Get("/threshold/{event}/{condition}/{value}", s.handleThreshold)
		r.Get("/pci/{event}/{condition}/{value}", s.handlePCI)
		r.Get("/correlation/{event}/{condition}/{value}", s.handleCorrelation)
	})
}

// ServeHTTP makes the server mountable
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Listen blocks serving on addr
func (s *Server) Listen(addr string) error {
	log.Printf("[Server] listening on %s", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStages(w http.ResponseWriter, r *http.Request) {
	event := core.EventKey(chi.URLParam(r, "event"))
	records, err := s.ledger.ListStages(r.Context(), event)
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []stage.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func cellKey(r *http.Request) (core.AnalysisKey, error) {
	return core.NewAnalysisKey(
		core.EventKey(chi.URLParam(r, "event")),
		core.ConditionKey(chi.URLParam(r, "condition")),
		core.ValueKey(chi.URLParam(r, "value")),
	)
}

func (s *Server) handleThreshold(w http.ResponseWriter, r *http.Request) {
	key, err := cellKey(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	a, err := s.artifacts.LoadThreshold(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":        a.Key,
		"policy":     a.Policy,
		"nboot":      a.NBoot,
		"multiplier": a.Multiplier,
		"n_sources":  len(a.PerSource),
		"n_trials":   len(a.TrialIDs),
		"created_at": a.CreatedAt,
	})
}

func (s *Server) handlePCI(w http.ResponseWriter, r *http.Request) {
	key, err := cellKey(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	a, err := s.artifacts.LoadPCI(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	nS, nT := a.RankedMatrix.Dims()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":        a.Key,
		"pci":        a.PCI(),
		"trajectory": a.Trajectory,
		"order":      a.Order,
		"n_sources":  nS,
		"n_samples":  nT,
		"tmin":       a.Tmin,
		"tmax":       a.Tmax,
		"created_at": a.CreatedAt,
	})
}

func (s *Server) handleCorrelation(w http.ResponseWriter, r *http.Request) {
	key, err := cellKey(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	a, err := s.artifacts.LoadCorrelation(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	bands := make([]string, 0, len(a.Bands.Power))
	for name := range a.Bands.Power {
		bands = append(bands, name)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":            a.Key,
		"covariate":      a.Covariate,
		"n_permutations": a.NPermutations,
		"n_sources":      a.Map.Rows,
		"n_samples":      a.Map.Cols,
		"bands":          bands,
		"created_at":     a.CreatedAt,
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if core.IsNotFoundError(err) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Server] response encoding failed: %v", err)
	}
}
