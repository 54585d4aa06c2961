package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"address-route-optimizer/internal/database"
	"address-route-optimizer/internal/distance"
	"address-route-optimizer/internal/geocoding"
	"address-route-optimizer/internal/models"
	"address-route-optimizer/internal/pipeline"
)

// Runner routes a set of rows
type Runner interface {
	Run(ctx context.Context, rows []models.AddressRow) (*pipeline.Result, error)
}

// RunnerFactory returns a runner for a request. Empty start and mode keep the
// configured values.
type RunnerFactory func(start, mode string) (Runner, error)

// Handler provides common handler utilities and dependencies
type Handler struct {
	Runners  RunnerFactory
	Results  database.ResultRepository
	Geocoder geocoding.Geocoder
	Health   func(ctx context.Context) error
	// MaxUploadBytes caps multipart uploads; 0 means 10 MiB
	MaxUploadBytes int64
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string, details any) {
	h.writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// handleNotFound handles 404 errors
func (h *Handler) handleNotFound(w http.ResponseWriter, message string) {
	h.writeError(w, http.StatusNotFound, "NOT_FOUND", message, nil)
}

// handleValidationError handles 400 errors
func (h *Handler) handleValidationError(w http.ResponseWriter, message string) {
	h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", message, nil)
}

// handleRoutingError maps pipeline failures onto status codes
func (h *Handler) handleRoutingError(w http.ResponseWriter, err error) {
	var transportErr *distance.ErrProviderTransport
	switch {
	case errors.Is(err, pipeline.ErrNoAddresses):
		h.handleValidationError(w, err.Error())
	case errors.As(err, &transportErr):
		log.Printf("[ERROR] Provider failure: provider=%s reason=%s", transportErr.Provider, transportErr.Reason)
		h.writeError(w, http.StatusBadGateway, "PROVIDER_FAILED", transportErr.Reason, map[string]any{
			"provider": transportErr.Provider,
		})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		h.writeError(w, http.StatusGatewayTimeout, "TIMEOUT", err.Error(), nil)
	default:
		h.writeError(w, http.StatusUnprocessableEntity, "ROUTING_FAILED", err.Error(), nil)
	}
}

// handleInternalError handles 500 errors
func (h *Handler) handleInternalError(w http.ResponseWriter, err error) {
	log.Printf("[ERROR] Internal error: %v", err)
	h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An error occurred. Please try again.", nil)
}

// checkNotFound checks if an error is a not found error
func (h *Handler) checkNotFound(err error) bool {
	return errors.Is(err, database.ErrNotFound)
}

// HandleHealthCheck handles GET /healthz
func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health(r.Context()); err != nil {
			h.writeError(w, http.StatusServiceUnavailable, "UNHEALTHY", err.Error(), nil)
			return
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
