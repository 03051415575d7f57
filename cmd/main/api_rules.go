package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/porticodev/portico/pkg/fixture"
)

// RulesAPI holds the dependencies for the mock rule API handlers.
type RulesAPI struct {
	store  *fixture.Store
	logger *slog.Logger
}

func NewRulesAPI(store *fixture.Store, logger *slog.Logger) *RulesAPI {
	return &RulesAPI{
		store:  store,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for all /api/rules endpoints on a standard http.ServeMux.
func (a *RulesAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/rules", a.handleRules)
	mux.HandleFunc("/api/rules/", a.handleRuleByID)
}

func (a *RulesAPI) handleRules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		respondWithJSON(w, http.StatusOK, a.store.List())
	case http.MethodPost:
		a.createRule(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (a *RulesAPI) handleRuleByID(w http.ResponseWriter, r *http.Request) {
	trimmedPath := strings.TrimPrefix(r.URL.Path, "/api/rules/")
	rest := strings.TrimSuffix(trimmedPath, "/") // Handle optional trailing slash

	if id, ok := strings.CutSuffix(rest, "/toggle"); ok {
		a.toggleRule(w, r, id)
		return
	}

	if rest == "" || strings.Contains(rest, "/") {
		respondWithError(w, http.StatusBadRequest, "Invalid rule ID in URL")
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getRule(w, r, rest)
	case http.MethodPut:
		a.updateRule(w, r, rest)
	case http.MethodDelete:
		a.deleteRule(w, r, rest)
	default:
		w.Header().Set("Allow", "GET, PUT, DELETE")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (a *RulesAPI) createRule(w http.ResponseWriter, r *http.Request) {
	var rule fixture.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}

	if err := a.store.Add(&rule); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	a.logger.Info("Mock rule created", "rule_id", rule.ID, "method", rule.Method, "path", rule.PathPattern)
	respondWithJSON(w, http.StatusCreated, rule)
}

func (a *RulesAPI) getRule(w http.ResponseWriter, _ *http.Request, id string) {
	rule, err := a.store.Get(id)
	if err != nil {
		if errors.Is(err, fixture.ErrRuleNotFound) {
			respondWithError(w, http.StatusNotFound, "Rule not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, rule)
}

func (a *RulesAPI) updateRule(w http.ResponseWriter, r *http.Request, id string) {
	var rule fixture.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	// The URL names the rule being updated; a differing body ID is a
	// client mistake.
	if rule.ID != "" && rule.ID != id {
		respondWithError(w, http.StatusBadRequest, "Rule ID in body does not match URL")
		return
	}
	rule.ID = id

	if err := a.store.Update(&rule); err != nil {
		if errors.Is(err, fixture.ErrRuleNotFound) {
			respondWithError(w, http.StatusNotFound, "Rule not found")
			return
		}
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	a.logger.Info("Mock rule updated", "rule_id", id)
	respondWithJSON(w, http.StatusOK, rule)
}

func (a *RulesAPI) deleteRule(w http.ResponseWriter, _ *http.Request, id string) {
	if err := a.store.Delete(id); err != nil {
		if errors.Is(err, fixture.ErrRuleNotFound) {
			respondWithError(w, http.StatusNotFound, "Rule not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	a.logger.Info("Mock rule deleted", "rule_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (a *RulesAPI) toggleRule(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	current, err := a.store.Get(id)
	if err != nil {
		if errors.Is(err, fixture.ErrRuleNotFound) {
			respondWithError(w, http.StatusNotFound, "Rule not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	rule, err := a.store.SetEnabled(id, !current.Enabled)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	a.logger.Info("Mock rule toggled", "rule_id", id, "enabled", rule.Enabled)
	respondWithJSON(w, http.StatusOK, rule)
}
