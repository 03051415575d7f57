package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/porticodev/portico/pkg/capture"
	"github.com/porticodev/portico/pkg/fixture"
)

// backendUnavailableHeader distinguishes gateway failures produced here
// from error statuses the backend itself returned.
const backendUnavailableHeader = "Portico-Backend-Unavailable"

// handleDispatch serves portal API requests: the first enabled matching
// rule answers, everything else forwards to the live backend.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	if rule := s.matcher.Match(r); rule != nil {
		s.serveFixture(w, r, rule)
		return
	}
	s.forwardRequest(w, r)
}

func (s *Server) serveFixture(w http.ResponseWriter, r *http.Request, rule *fixture.Rule) {
	if rule.DelayMs > 0 {
		select {
		case <-time.After(time.Duration(rule.DelayMs) * time.Millisecond):
		case <-r.Context().Done():
			return
		}
	}

	// Hit statistics are bookkeeping; don't hold the response for them.
	go s.rules.RecordHit(rule.ID)

	for k, v := range rule.Headers {
		w.Header().Set(k, v)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	}
	w.WriteHeader(rule.Status)
	_, _ = io.WriteString(w, rule.Body)

	s.logger.Info("Served mock response",
		"rule_id", rule.ID,
		"method", r.Method,
		"path", r.URL.Path,
		"status", rule.Status)
}

func (s *Server) forwardRequest(w http.ResponseWriter, r *http.Request) {
	cfg := s.cm.Get()

	reqBody, err := io.ReadAll(r.Body)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	result, err := s.forwarder.Forward(r.Context(), r.Method, r.URL, r.Header, reqBody)
	if err != nil {
		if errors.Is(err, ErrBackendUnavailable) {
			s.logger.Warn("Backend unavailable",
				"method", r.Method,
				"path", r.URL.Path,
				"error", err)
			w.Header().Set(backendUnavailableHeader, "true")
			respondWithError(w, http.StatusBadGateway, "Backend unavailable")
			return
		}
		s.logger.Error("Failed to forward request",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
		respondWithError(w, http.StatusBadGateway, "Bad gateway")
		return
	}

	for k, vv := range result.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(result.Status)
	_, _ = w.Write(result.Body)

	if cfg.Proxy.CaptureEnabled {
		tx := &capture.Transaction{
			Method:          r.Method,
			Path:            r.URL.Path,
			Query:           r.URL.RawQuery,
			RequestHeaders:  captureSafeHeaders(r.Header),
			RequestBody:     string(reqBody),
			Status:          result.Status,
			ResponseHeaders: result.Header.Clone(),
			ResponseBody:    string(result.Body),
			DurationMs:      result.Duration.Milliseconds(),
		}
		// Recording happens off the request path; a capture failure never
		// affects the relayed response.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.captures.Record(ctx, tx); err != nil {
				s.logger.Warn("Failed to record capture",
					"method", tx.Method,
					"path", tx.Path,
					"error", err)
			}
		}()
	}
}

// captureSafeHeaders clones h without credentials. Captured transactions
// end up in rule files developers share.
func captureSafeHeaders(h http.Header) http.Header {
	c := h.Clone()
	c.Del("Authorization")
	c.Del("Cookie")
	return c
}
