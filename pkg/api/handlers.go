package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/brandonmcclure/classy/pkg/autotest"
	"github.com/brandonmcclure/classy/pkg/storage"
)

// TargetsHandler lists recorded commit targets, newest first.
type TargetsHandler struct {
	Store  storage.Store
	Logger *log.Logger
}

func (h *TargetsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Store == nil {
		http.Error(w, "storage not configured", http.StatusServiceUnavailable)
		return
	}

	query := r.URL.Query()
	filter := storage.TargetFilter{
		RepoID: strings.TrimSpace(query.Get("repo")),
		Kind:   autotest.Kind(strings.TrimSpace(query.Get("kind"))),
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		http.Error(w, "unknown kind", http.StatusBadRequest)
		return
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	records, err := h.Store.ListTargets(r.Context(), filter)
	if err != nil {
		http.Error(w, "list targets failed", http.StatusInternalServerError)
		if h.Logger != nil {
			h.Logger.Printf("list targets failed: %v", err)
		}
		return
	}
	if records == nil {
		records = []autotest.CommitTarget{}
	}
	writeJSON(w, records)
}

// ReadinessChecker reports whether the engine can accept work.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// HealthHandler answers liveness probes with the engine readiness.
type HealthHandler struct {
	Checker ReadinessChecker
	Logger  *log.Logger
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Checker != nil {
		if err := h.Checker.Ready(r.Context()); err != nil {
			if h.Logger != nil {
				h.Logger.Printf("readiness check failed: %v", err)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
