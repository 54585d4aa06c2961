package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"address-route-optimizer/internal/models"
	"address-route-optimizer/internal/pipeline"
	"address-route-optimizer/internal/sheet"
)

const defaultMaxUploadBytes = 10 << 20

// ResolveRequest is the JSON body of POST /api/resolve
type ResolveRequest struct {
	Rows  []models.AddressRow `json:"rows"`
	Start string              `json:"start"`
	Mode  string              `json:"mode"`
}

// ResolveResponse is returned for a routed file or row set
type ResolveResponse struct {
	RunID     string   `json:"run_id"`
	Backend   string   `json:"backend"`
	URL       string   `json:"url"`
	Stops     []string `json:"stops"`
	Cost      float64  `json:"cost"`
	Degraded  bool     `json:"degraded"`
	Errors    []string `json:"errors"`
	Warnings  []string `json:"warnings"`
	Filename  string   `json:"filename,omitempty"`
	Addresses int      `json:"addresses"`
}

// HandleResolve handles POST /api/resolve with either a multipart "file"
// (.xlsx or .csv) or a JSON ResolveRequest
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	var (
		req      ResolveRequest
		filename string
	)

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		limit := h.MaxUploadBytes
		if limit <= 0 {
			limit = defaultMaxUploadBytes
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		if err := r.ParseMultipartForm(limit); err != nil {
			h.handleValidationError(w, "Invalid multipart upload")
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			h.handleValidationError(w, "No file part")
			return
		}
		defer file.Close()

		filename = filepath.Base(header.Filename)
		if filename == "" || filename == "." {
			h.handleValidationError(w, "No selected file")
			return
		}
		log.Printf("[HTTP] POST /api/resolve: file=%s size=%d", filename, header.Size)

		rows, err := sheet.Read(filename, file)
		if err != nil {
			var missing *sheet.ErrMissingColumn
			switch {
			case errors.Is(err, sheet.ErrUnsupportedFormat), errors.Is(err, sheet.ErrLegacyExcel):
				h.handleValidationError(w, err.Error())
			case errors.As(err, &missing):
				h.handleValidationError(w, err.Error())
			default:
				h.handleValidationError(w, fmt.Sprintf("Could not read %s: %v", filename, err))
			}
			return
		}
		req.Rows = rows
		req.Start = r.FormValue("start")
		req.Mode = r.FormValue("mode")
	} else {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.handleValidationError(w, "Invalid request body")
			return
		}
		log.Printf("[HTTP] POST /api/resolve: rows=%d", len(req.Rows))
	}

	if len(req.Rows) == 0 {
		h.handleValidationError(w, "At least one row is required")
		return
	}

	runner, err := h.Runners(strings.TrimSpace(req.Start), strings.TrimSpace(req.Mode))
	if err != nil {
		h.handleValidationError(w, err.Error())
		return
	}

	result, err := runner.Run(r.Context(), req.Rows)
	if err != nil {
		log.Printf("[ERROR] Resolve failed: rows=%d err=%v", len(req.Rows), err)
		h.handleRoutingError(w, err)
		return
	}

	resp := toResponse(result, filename)
	if h.Results != nil {
		stored := &models.StoredResult{
			RunID:    result.RunID,
			Filename: filename,
			URL:      result.URL,
			Backend:  result.Backend,
			Errors:   resp.Errors,
		}
		if stored.Filename == "" {
			stored.Filename = "(rows)"
		}
		if err := h.Results.Add(r.Context(), stored); err != nil {
			log.Printf("[WARN] Failed to store result: run_id=%s err=%v", result.RunID, err)
		}
	}

	log.Printf("[HTTP] POST /api/resolve: run_id=%s backend=%s stops=%d errors=%d",
		resp.RunID, resp.Backend, len(resp.Stops), len(resp.Errors))
	h.writeJSON(w, http.StatusOK, resp)
}

func toResponse(result *pipeline.Result, filename string) ResolveResponse {
	warnings := result.Report.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return ResolveResponse{
		RunID:     result.RunID,
		Backend:   result.Backend,
		URL:       result.URL,
		Stops:     result.Stops,
		Cost:      result.Cost,
		Degraded:  result.Degraded,
		Errors:    result.Report.Errors(),
		Warnings:  warnings,
		Filename:  filename,
		Addresses: len(result.Addresses),
	}
}
