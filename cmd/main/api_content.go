package main

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/porticodev/portico/pkg/content"
	"github.com/porticodev/portico/pkg/templating"
)

// ContentAPI exposes the resolver and renderer on the admin surface.
type ContentAPI struct {
	resolver *content.Resolver
	renderer *templating.Renderer
	cm       *ConfigManager
	identity *identityClient
	logger   *slog.Logger
}

func NewContentAPI(resolver *content.Resolver, renderer *templating.Renderer, cm *ConfigManager, identity *identityClient, logger *slog.Logger) *ContentAPI {
	return &ContentAPI{
		resolver: resolver,
		renderer: renderer,
		cm:       cm,
		identity: identity,
		logger:   logger,
	}
}

// RegisterRoutes sets up the routing for all /api/content endpoints on a standard http.ServeMux.
func (a *ContentAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/content/pages", a.handleList(content.KindPage))
	mux.HandleFunc("/api/content/templates", a.handleList(content.KindTemplate))
	mux.HandleFunc("/api/content/snippets", a.handleList(content.KindSnippet))
	mux.HandleFunc("/api/content/refresh", a.handleRefresh)
	mux.HandleFunc("/api/content/preview", a.handlePreview)
}

// handleList returns a handler listing the slugs of one storage, so the
// three listing routes share a single implementation.
func (a *ContentAPI) handleList(kind content.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		slugs, err := a.resolver.List(kind)
		if err != nil {
			a.logger.Error("Failed to list content", "kind", kind.String(), "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to list content")
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]any{kind.String() + "s": slugs})
	}
}

func (a *ContentAPI) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	a.resolver.ClearCache()
	a.renderer.ClearCache()
	a.logger.Info("Content and template caches refreshed")
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

// handlePreview renders one piece of content outside the portal flow. The
// resolution bypasses the cache so edits show up without a refresh, and the
// render always uses the fallback user so output does not depend on backend
// availability. A failed render still returns the preprocessed text, with
// the diagnostic in a response header.
func (a *ContentAPI) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	query := r.URL.Query()
	kindStr := query.Get("kind")
	if kindStr == "" {
		kindStr = "page"
	}
	kind, err := content.ParseKind(kindStr)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := query.Get("name")
	if name == "" {
		respondWithError(w, http.StatusBadRequest, "Missing 'name' query parameter")
		return
	}
	lang := query.Get("lang")

	item, err := a.resolver.Resolve(kind, name, lang, content.WithoutCache())
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "Content not found")
			return
		}
		a.logger.Error("Failed to resolve content for preview", "kind", kindStr, "name", name, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to resolve content")
		return
	}

	cfg := a.cm.Get()
	ctx := &templating.Context{
		User: a.identity.FallbackUser(),
		Site: &templating.SiteInfo{
			Name:            cfg.Site.Name,
			BaseURL:         cfg.Site.BaseURL,
			DefaultLanguage: cfg.Site.DefaultLanguage,
			Languages:       cfg.Site.Languages,
		},
		Page: &templating.PageInfo{
			Title:    item.DisplayName,
			Route:    "/" + item.Name,
			Language: item.Language,
		},
		Settings: cfg.Site.Settings,
	}

	rendered, err := a.renderer.Render(kindStr+"/"+item.Name, item.Source, ctx)
	if err != nil {
		a.logger.Warn("Preview render failed, returning partial output", "name", item.Name, "error", err)
		w.Header().Set("Portico-Render-Error", strings.ReplaceAll(err.Error(), "\n", " "))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, rendered)
}
