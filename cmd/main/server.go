package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/porticodev/portico/pkg/capture"
	"github.com/porticodev/portico/pkg/classify"
	"github.com/porticodev/portico/pkg/content"
	"github.com/porticodev/portico/pkg/fixture"
	"github.com/porticodev/portico/pkg/templating"
)

type Server struct {
	cm          *ConfigManager
	db          *sql.DB
	logger      *slog.Logger
	resolver    *content.Resolver
	renderer    *templating.Renderer
	rules       *fixture.Store
	matcher     *fixture.Matcher
	captures    *capture.Store
	forwarder   *Forwarder
	identity    *identityClient
	watcher     *contentWatcher
	rulesAPI    *RulesAPI
	capturesAPI *CapturesAPI
	contentAPI  *ContentAPI
	serverAPI   *ServerAPI
	statsAPI    *StatsAPI
	portalMux   *http.ServeMux
	apiMux      *http.ServeMux
}

func NewServer(cm *ConfigManager, logger *slog.Logger, db *sql.DB, actionChan chan string) (*Server, error) {
	cfg := cm.Get()

	// content pipeline initialization
	resolver := content.NewResolver(logger, cfg.Site.ContentConfig())
	classifier := classify.New(cfg.Classify, logger)
	renderer := templating.NewRenderer(logger, cfg.Render, resolver, classifier)
	cm.SetRenderer(renderer)

	rules, err := fixture.NewStore(logger, cfg.Server.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open rule store: %w", err)
	}
	matcher := fixture.NewMatcher(logger, rules, cfg.Proxy.MatchConfig())
	cm.SetMatcher(matcher)

	captures, err := capture.NewStore(db)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare capture store: %w", err)
	}
	captures.SetLogger(logger)
	captures.SetRetention(cfg.Proxy.MaxCaptures)

	forwarder := NewForwarder(logger, cfg.Proxy, nil)
	identity := newIdentityClient(logger, cfg.Proxy, nil)

	// api initialization
	rulesAPI := NewRulesAPI(rules, logger)
	capturesAPI := NewCapturesAPI(captures, rules, logger)
	contentAPI := NewContentAPI(resolver, renderer, cm, identity, logger)
	serverAPI := NewServerAPI(cm, actionChan, logger)
	statsAPI := NewStatsAPI(rules, captures, resolver, renderer, logger)

	// create object, register routes to the mux, and return it
	server := &Server{
		cm:          cm,
		db:          db,
		logger:      logger,
		resolver:    resolver,
		renderer:    renderer,
		rules:       rules,
		matcher:     matcher,
		captures:    captures,
		forwarder:   forwarder,
		identity:    identity,
		rulesAPI:    rulesAPI,
		capturesAPI: capturesAPI,
		contentAPI:  contentAPI,
		serverAPI:   serverAPI,
		statsAPI:    statsAPI,
		portalMux:   http.NewServeMux(),
		apiMux:      http.NewServeMux(),
	}

	apiMux := http.NewServeMux()

	server.rulesAPI.RegisterRoutes(apiMux)
	server.capturesAPI.RegisterRoutes(apiMux)
	server.contentAPI.RegisterRoutes(apiMux)
	server.serverAPI.RegisterRoutes(apiMux)
	server.statsAPI.RegisterRoutes(apiMux)

	// Make sure api functions must pass through authentication first
	authedAPI := requireToken(cfg.Server.AdminToken, apiMux)
	// ... except for the health check, which is unauthed so something like docker can use it
	server.apiMux.HandleFunc("/api/health", server.serverAPI.handleHealthCheck)

	server.apiMux.Handle("/api/", authedAPI)

	staticFs := http.FileServer(http.Dir(cfg.Site.ContentConfig().FilesDir()))
	server.portalMux.Handle("/web-files/", http.StripPrefix("/web-files/", staticFs))
	server.portalMux.HandleFunc("/favicon.ico", server.handleFavicon)

	// API prefixes bypass page rendering and go through mock dispatch.
	for _, prefix := range cfg.Proxy.ApiPrefixes {
		if prefix == "" {
			continue
		}
		if !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		server.portalMux.HandleFunc(prefix, server.handleDispatch)
	}

	server.portalMux.HandleFunc("/", server.handlePortal)

	if cfg.Server.WatchContent {
		debounce := time.Duration(cfg.Server.WatchDebounceMs) * time.Millisecond
		watcher, err := newContentWatcher(logger, cfg.Site.Root, debounce, func() {
			resolver.ClearCache()
			renderer.ClearCache()
		})
		if err != nil {
			// The server is still usable without hot reload, e.g. when the
			// site root does not exist yet.
			logger.Warn("Content watching disabled", "root", cfg.Site.Root, "error", err)
		} else {
			server.watcher = watcher
		}
	}

	return server, nil
}

// Close releases everything the server owns except the database handle,
// which the run loop opened and closes itself.
func (s *Server) Close() {
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
	if s.captures != nil {
		s.captures.Close()
	}
}

// handleFavicon serves the site's favicon when the export ships one and
// responds with no content otherwise, so browser chrome requests never fall
// through to page resolution.
func (s *Server) handleFavicon(w http.ResponseWriter, r *http.Request) {
	cfg := s.cm.Get()
	path := filepath.Join(cfg.Site.ContentConfig().FilesDir(), "favicon.ico")
	if _, err := os.Stat(path); err != nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.ServeFile(w, r, path)
}

func getClientIP(r *http.Request) string {

	// The X-Real-Ip header contains the forwarded IP in some cases (like from nginx)
	realIP := r.Header.Get("X-Real-Ip")
	if realIP != "" {
		return realIP
	}

	// The X-Forwarded-For header can contain a comma-separated list of IPs.
	// The first IP in the list is the original client IP.
	forwardedFor := r.Header.Get("X-Forwarded-For")
	if forwardedFor != "" {
		ips := strings.Split(forwardedFor, ",")
		return strings.TrimSpace(ips[0])
	}

	// If the header is not present, fall back to the remote address.
	// This handles direct connections not coming through a proxy.
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// If splitting fails (e.g., no port), return the address as is.
		return r.RemoteAddr
	}
	return ip
}
