// Package server exposes the core operations to callers over a small JSON
// API: inventory scans, rule queries, mutations, and sync reports.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/akibrhast/synosync/inventory"
	"github.com/akibrhast/synosync/proxy"
	"github.com/akibrhast/synosync/reconciler"
)

// Server holds the core components the handlers operate on.
type Server struct {
	inventory    *inventory.Inventory
	rules        *proxy.Manager
	reconciler   *reconciler.Reconciler
	domainSuffix string
}

// New creates a server over the core components.
func New(inv *inventory.Inventory, rules *proxy.Manager, rec *reconciler.Reconciler, domainSuffix string) *Server {
	return &Server{
		inventory:    inv,
		rules:        rules,
		reconciler:   rec,
		domainSuffix: domainSuffix,
	}
}

// Router creates the HTTP router with all routes configured.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/inventory/scan", s.handleScan)
		r.Get("/services", s.handleServices)
		r.Get("/services/stats", s.handleStatistics)
		r.Get("/services/conflicts", s.handleConflicts)
		r.Get("/services/suggestions", s.handleSuggestions)

		r.Get("/rules", s.handleListRules)
		r.Post("/rules", s.handleCreateRule)
		r.Delete("/rules", s.handleDeleteRules)
		r.Get("/rules/next-port", s.handleNextPort)
		r.Get("/rules/conflicts", s.handleRuleConflicts)

		r.Get("/sync", s.handleSyncReport)
		r.Post("/sync/apply", s.handleSyncApply)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
