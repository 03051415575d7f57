package main

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/porticodev/portico/pkg/capture"
	"github.com/porticodev/portico/pkg/fixture"
)

// CapturesAPI holds the dependencies for the capture API handlers. It also
// carries the rule store so captures can be promoted into mock rules.
type CapturesAPI struct {
	captures *capture.Store
	rules    *fixture.Store
	logger   *slog.Logger
}

func NewCapturesAPI(captures *capture.Store, rules *fixture.Store, logger *slog.Logger) *CapturesAPI {
	return &CapturesAPI{
		captures: captures,
		rules:    rules,
		logger:   logger,
	}
}

// RegisterRoutes sets up the routing for all /api/captures endpoints on a standard http.ServeMux.
func (a *CapturesAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/captures", a.handleCaptures)
	mux.HandleFunc("/api/captures/", a.handleCaptureByID)
}

func (a *CapturesAPI) handleCaptures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	pathPrefix := query.Get("path")

	transactions, err := a.captures.List(r.Context(), pathPrefix, limit, offset)
	if err != nil {
		a.logger.Error("Failed to list captures", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Database query failed")
		return
	}
	total, err := a.captures.Count(r.Context(), pathPrefix)
	if err != nil {
		a.logger.Error("Failed to count captures", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Database query failed")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"total":    total,
		"captures": transactions,
	})
}

func (a *CapturesAPI) handleCaptureByID(w http.ResponseWriter, r *http.Request) {
	trimmedPath := strings.TrimPrefix(r.URL.Path, "/api/captures/")
	rest := strings.TrimSuffix(trimmedPath, "/") // Handle optional trailing slash

	if id, ok := strings.CutSuffix(rest, "/promote"); ok {
		a.promoteCapture(w, r, id)
		return
	}

	if rest == "" || strings.Contains(rest, "/") {
		respondWithError(w, http.StatusBadRequest, "Invalid capture ID in URL")
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getCapture(w, r, rest)
	case http.MethodDelete:
		a.deleteCapture(w, r, rest)
	default:
		w.Header().Set("Allow", "GET, DELETE")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (a *CapturesAPI) getCapture(w http.ResponseWriter, r *http.Request, id string) {
	tx, err := a.captures.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, capture.ErrCaptureNotFound) {
			respondWithError(w, http.StatusNotFound, "Capture not found")
			return
		}
		a.logger.Error("Failed to load capture", "capture_id", id, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Database query failed")
		return
	}
	respondWithJSON(w, http.StatusOK, tx)
}

func (a *CapturesAPI) deleteCapture(w http.ResponseWriter, r *http.Request, id string) {
	if err := a.captures.Delete(r.Context(), id); err != nil {
		if errors.Is(err, capture.ErrCaptureNotFound) {
			respondWithError(w, http.StatusNotFound, "Capture not found")
			return
		}
		a.logger.Error("Failed to delete capture", "capture_id", id, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to delete capture")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// promoteCapture turns one recorded transaction into an enabled mock rule.
// The capture itself is kept; deleting it is a separate call.
func (a *CapturesAPI) promoteCapture(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	tx, err := a.captures.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, capture.ErrCaptureNotFound) {
			respondWithError(w, http.StatusNotFound, "Capture not found")
			return
		}
		a.logger.Error("Failed to load capture", "capture_id", id, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Database query failed")
		return
	}

	rule := capture.ToRule(tx)
	if err := a.rules.Add(rule); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	a.logger.Info("Capture promoted to mock rule",
		"capture_id", id,
		"rule_id", rule.ID,
		"method", rule.Method,
		"path", rule.PathPattern)
	respondWithJSON(w, http.StatusCreated, rule)
}
