package main

import (
	"log/slog"
	"net/http"
	"sort"

	"github.com/porticodev/portico/pkg/capture"
	"github.com/porticodev/portico/pkg/content"
	"github.com/porticodev/portico/pkg/fixture"
	"github.com/porticodev/portico/pkg/templating"
)

// StatsSummary provides a high-level overview of the running instance.
type StatsSummary struct {
	Rules           int   `json:"rules"`
	EnabledRules    int   `json:"enabled_rules"`
	TotalMockHits   int64 `json:"total_mock_hits"`
	Captures        int   `json:"captures"`
	CachedContent   int   `json:"cached_content"`
	CachedTemplates int   `json:"cached_templates"`
}

// StatsAPI holds the dependencies for the statistics handlers.
type StatsAPI struct {
	rules    *fixture.Store
	captures *capture.Store
	resolver *content.Resolver
	renderer *templating.Renderer
	logger   *slog.Logger
}

func NewStatsAPI(rules *fixture.Store, captures *capture.Store, resolver *content.Resolver, renderer *templating.Renderer, logger *slog.Logger) *StatsAPI {
	return &StatsAPI{
		rules:    rules,
		captures: captures,
		resolver: resolver,
		renderer: renderer,
		logger:   logger,
	}
}

func (s *StatsAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/stats/summary", s.handleSummary)
	mux.HandleFunc("/api/stats/top_rules", s.handleTopRules)
	mux.HandleFunc("/api/stats/top_paths", s.handleTopPaths)
}

func (s *StatsAPI) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var summary StatsSummary
	for _, rule := range s.rules.List() {
		summary.Rules++
		if rule.Enabled {
			summary.EnabledRules++
		}
		summary.TotalMockHits += rule.HitCount
	}

	count, err := s.captures.Count(r.Context(), "")
	if err != nil {
		s.logger.Error("Failed to count captures for summary", "error", err)
	} else {
		summary.Captures = count
	}

	summary.CachedContent = s.resolver.CacheLen()
	summary.CachedTemplates = s.renderer.CacheLen()

	respondWithJSON(w, http.StatusOK, summary)
}

func (s *StatsAPI) handleTopRules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	rules := s.rules.List()
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].HitCount > rules[j].HitCount
	})
	if len(rules) > 100 {
		rules = rules[:100]
	}

	var results []map[string]any
	for _, rule := range rules {
		results = append(results, map[string]any{
			"id":           rule.ID,
			"method":       rule.Method,
			"path_pattern": rule.PathPattern,
			"hit_count":    rule.HitCount,
			"last_used_at": rule.LastUsedAt,
		})
	}
	respondWithJSON(w, http.StatusOK, results)
}

func (s *StatsAPI) handleTopPaths(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	paths, err := s.captures.TopPaths(r.Context(), 100)
	if err != nil {
		s.logger.Error("Failed to aggregate capture paths", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Database query failed")
		return
	}
	respondWithJSON(w, http.StatusOK, paths)
}
