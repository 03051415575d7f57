package main

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/porticodev/portico/pkg/content"
	"github.com/porticodev/portico/pkg/templating"
)

// handlePortal maps a portal route onto a page slug and serves the rendered
// page. The root route serves the configured home page.
func (s *Server) handlePortal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	cfg := s.cm.Get()

	slug := strings.Trim(r.URL.Path, "/")
	if slug == "" {
		slug = cfg.Site.HomePage
	}

	lang := r.URL.Query().Get("lang")
	if lang == "" {
		lang = cfg.Site.DefaultLanguage
	}

	item, err := s.resolver.Resolve(content.KindPage, slug, lang)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			s.servePageNotFound(w, slug)
			return
		}
		s.logger.Error("Failed to resolve page", "page", slug, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	user := s.identity.CurrentUser(r.Context())

	ctx := &templating.Context{
		User: user,
		Site: &templating.SiteInfo{
			Name:            cfg.Site.Name,
			BaseURL:         cfg.Site.BaseURL,
			DefaultLanguage: cfg.Site.DefaultLanguage,
			Languages:       cfg.Site.Languages,
		},
		Page: &templating.PageInfo{
			Title:    item.DisplayName,
			Route:    r.URL.Path,
			Language: item.Language,
		},
		Settings: cfg.Site.Settings,
	}

	rendered, err := s.renderer.Render("page/"+item.Name, item.Source, ctx)
	if err != nil {
		// A broken template still yields the preprocessed text, which is
		// more useful during development than an error page.
		s.logger.Error("Render failed, serving partial output", "page", item.Name, "error", err)
	}

	s.logger.Info("Serving page",
		"page", item.Name,
		"language", item.Language,
		"remote_addr", getClientIP(r))

	s.setPortalHeaders(w)

	var buf bytes.Buffer
	buf.WriteString(rendered)
	if item.Style != "" {
		buf.WriteString("\n<style>\n")
		buf.WriteString(item.Style)
		buf.WriteString("\n</style>")
	}
	if item.Script != "" {
		buf.WriteString("\n<script>\n")
		buf.WriteString(item.Script)
		buf.WriteString("\n</script>")
	}
	_, _ = buf.WriteTo(w)
}

func (s *Server) servePageNotFound(w http.ResponseWriter, slug string) {
	s.setPortalHeaders(w)
	w.WriteHeader(http.StatusNotFound)
	_, _ = fmt.Fprintf(w,
		"<!DOCTYPE html>\n<html>\n<body>\n<h1>Page not found</h1>\n<!-- Page not found: %s -->\n</body>\n</html>\n",
		html.EscapeString(slug))
}

func (s *Server) setPortalHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
}
