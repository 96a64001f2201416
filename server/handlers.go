package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/akibrhast/synosync/types"
)

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if err := s.inventory.Scan(r.Context()); err != nil {
		// The previous snapshot is retained; the caller decides whether to
		// retry.
		writeError(w, http.StatusBadGateway, err)
		return
	}
	snapshotID, scannedAt := s.inventory.LastScan()
	writeJSON(w, http.StatusOK, map[string]any{
		"snapshot_id": snapshotID,
		"scanned_at":  scannedAt,
		"statistics":  s.inventory.Statistics(),
	})
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.inventory.Services())
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.inventory.Statistics())
}

func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.inventory.PortConflicts())
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.inventory.Suggestions(s.domainSuffix))
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	refresh := r.URL.Query().Get("refresh") == "true"
	rules, err := s.rules.ListRules(r.Context(), refresh)
	if err != nil {
		// Stale rules are still returned; surface the staleness alongside.
		writeJSON(w, http.StatusOK, map[string]any{
			"rules": rules,
			"stale": true,
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	// HSTS defaults on; absent fields leave the preset untouched.
	spec := types.RuleSpec{HSTS: true}
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	if err := s.rules.CreateRule(r.Context(), spec); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "rule created"})
}

func (s *Server) handleDeleteRules(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	message, err := s.rules.DeleteRules(r.Context(), body.IDs)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": message})
}

func (s *Server) handleNextPort(w http.ResponseWriter, r *http.Request) {
	port := s.rules.SuggestNextPort(r.Context())
	if port == 0 {
		writeError(w, http.StatusConflict, fmt.Errorf("no free backend port available"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"port": port})
}

func (s *Server) handleRuleConflicts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.rules.ConflictingBackendPorts(r.Context()))
}

func (s *Server) handleSyncReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.reconciler.Report(r.Context())
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"report": report,
			"stale":  true,
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": report})
}

func (s *Server) handleSyncApply(w http.ResponseWriter, r *http.Request) {
	report, err := s.reconciler.Report(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}

	result := s.reconciler.ApplyMissing(r.Context(), report)
	status := http.StatusOK
	if result.Failed > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, result)
}
