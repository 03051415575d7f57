package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrBackendUnavailable marks transport-level forwarding failures: no
// backend configured, connection refused, DNS failure, timeout. Responses
// the backend itself produced, including 4xx and 5xx, are never wrapped in
// this error; they relay to the client as-is.
var ErrBackendUnavailable = errors.New("backend unavailable")

// HTTPDoer is the slice of http.Client the forwarder needs, injectable for
// tests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// hopByHopHeaders are connection-scoped and must not travel through a
// proxy (RFC 9110 section 7.6.1). Names are in canonical form.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ForwardResult is a fully buffered backend response.
type ForwardResult struct {
	Status   int
	Header   http.Header
	Body     []byte
	Duration time.Duration
}

// Forwarder relays portal API requests to the configured live backend.
type Forwarder struct {
	logger  *slog.Logger
	doer    HTTPDoer
	baseURL string
	timeout time.Duration
	bearer  string
}

// NewForwarder builds a forwarder from the proxy configuration. A nil doer
// uses a plain http.Client; per-request deadlines come from the configured
// timeout.
func NewForwarder(logger *slog.Logger, config *ProxyConfig, doer HTTPDoer) *Forwarder {
	if doer == nil {
		doer = &http.Client{}
	}
	timeout := time.Duration(config.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Forwarder{
		logger:  logger,
		doer:    doer,
		baseURL: strings.TrimRight(config.BackendBaseURL, "/"),
		timeout: timeout,
		bearer:  config.BearerToken,
	}
}

// Forward sends one buffered request to the backend and buffers the
// response. Transport failures come back wrapped in ErrBackendUnavailable.
func (f *Forwarder) Forward(ctx context.Context, method string, u *url.URL, header http.Header, body []byte) (*ForwardResult, error) {
	if f.baseURL == "" {
		return nil, fmt.Errorf("%w: no backend configured", ErrBackendUnavailable)
	}

	target := f.baseURL + u.EscapedPath()
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building backend request: %w", err)
	}
	copyProxyHeaders(req.Header, header)
	if f.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+f.bearer)
	}

	started := time.Now()
	resp, err := f.doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading backend response: %v", ErrBackendUnavailable, err)
	}

	result := &ForwardResult{
		Status:   resp.StatusCode,
		Header:   make(http.Header, len(resp.Header)),
		Body:     respBody,
		Duration: time.Since(started),
	}
	copyProxyHeaders(result.Header, resp.Header)

	f.logger.Debug("Request forwarded",
		"method", method,
		"path", u.Path,
		"status", result.Status,
		"duration_ms", result.Duration.Milliseconds())
	return result, nil
}

// copyProxyHeaders copies src into dst, dropping hop-by-hop headers and
// anything the Connection header nominates.
func copyProxyHeaders(dst, src http.Header) {
	drop := make(map[string]bool, len(hopByHopHeaders))
	for _, h := range hopByHopHeaders {
		drop[h] = true
	}
	for _, v := range src.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			name = http.CanonicalHeaderKey(strings.TrimSpace(name))
			if name != "" {
				drop[name] = true
			}
		}
	}
	for k, vv := range src {
		if drop[http.CanonicalHeaderKey(k)] {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
