package handlers

import (
	"log"
	"net/http"
	"strings"

	"address-route-optimizer/internal/models"
)

// ResultListResponse is returned by GET /api/results
type ResultListResponse struct {
	Results []models.StoredResult `json:"results"`
	Total   int                   `json:"total"`
}

// HandleListResults handles GET /api/results
func (h *Handler) HandleListResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.Results.List(r.Context())
	if err != nil {
		h.handleInternalError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ResultListResponse{Results: results, Total: len(results)})
}

// HandleGetResult handles GET /api/results/{run_id}
func (h *Handler) HandleGetResult(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimPrefix(r.URL.Path, "/api/results/")
	if runID == "" {
		h.handleNotFound(w, "Result not found")
		return
	}

	result, err := h.Results.Get(r.Context(), runID)
	if err != nil {
		if h.checkNotFound(err) {
			h.handleNotFound(w, "Result not found")
			return
		}
		h.handleInternalError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleClearResults handles DELETE /api/results
func (h *Handler) HandleClearResults(w http.ResponseWriter, r *http.Request) {
	if err := h.Results.Clear(r.Context()); err != nil {
		h.handleInternalError(w, err)
		return
	}
	log.Printf("[HTTP] DELETE /api/results: history cleared")
	w.WriteHeader(http.StatusNoContent)
}
