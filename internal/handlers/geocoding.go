package handlers

import (
	"log"
	"net/http"

	"address-route-optimizer/internal/geocoding"
)

// HandleAddressLookup handles GET /api/geocode?address=
func (h *Handler) HandleAddressLookup(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("address")
	log.Printf("[HTTP] GET /api/geocode: query=%s", query)

	if len(query) < 4 {
		h.handleValidationError(w, "address must be at least 4 characters")
		return
	}

	result, err := h.Geocoder.Geocode(r.Context(), query)
	if err != nil {
		if geocoding.IsNotFound(err) {
			h.handleNotFound(w, err.Error())
			return
		}
		h.writeError(w, http.StatusUnprocessableEntity, "GEOCODING_FAILED", err.Error(), nil)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}
