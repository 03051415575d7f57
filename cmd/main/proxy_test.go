package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/porticodev/portico/pkg/fixture"
)

// doerFunc adapts a function to the HTTPDoer interface.
type doerFunc func(req *http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

func backendResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestHandleDispatch_ServesMatchingRule(t *testing.T) {
	s := setupTestServer(t, t.TempDir())

	rule := &fixture.Rule{
		Method:      http.MethodGet,
		PathPattern: "/_api/contacts",
		Status:      http.StatusOK,
		Headers:     map[string]string{"X-Mock": "yes"},
		Body:        `{"value":[]}`,
		Enabled:     true,
	}
	if err := s.rules.Add(rule); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	rr := httptest.NewRecorder()
	s.handleDispatch(rr, httptest.NewRequest(http.MethodGet, "/_api/contacts", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Body.String() != `{"value":[]}` {
		t.Errorf("unexpected body %q", rr.Body.String())
	}
	if rr.Header().Get("X-Mock") != "yes" {
		t.Error("rule headers must reach the response")
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("expected the JSON default content type, got %q", ct)
	}
}

func TestHandleDispatch_PriorityWins(t *testing.T) {
	s := setupTestServer(t, t.TempDir())

	low := &fixture.Rule{Method: "GET", PathPattern: "/_api/items", Body: "low", Priority: 1, Enabled: true}
	high := &fixture.Rule{Method: "GET", PathPattern: "/_api/items", Body: "high", Priority: 5, Enabled: true}
	if err := s.rules.Add(low); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := s.rules.Add(high); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	rr := httptest.NewRecorder()
	s.handleDispatch(rr, httptest.NewRequest(http.MethodGet, "/_api/items", nil))
	if rr.Body.String() != "high" {
		t.Errorf("the higher priority rule must answer, got %q", rr.Body.String())
	}
}

func TestHandleDispatch_NoBackendConfigured(t *testing.T) {
	s := setupTestServer(t, t.TempDir())

	rr := httptest.NewRecorder()
	s.handleDispatch(rr, httptest.NewRequest(http.MethodGet, "/_api/unmatched", nil))

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
	if rr.Header().Get(backendUnavailableHeader) != "true" {
		t.Error("gateway failures must carry the unavailability marker")
	}
	if !strings.Contains(rr.Body.String(), "Backend unavailable") {
		t.Errorf("unexpected body %q", rr.Body.String())
	}
}

func TestHandleDispatch_RelaysBackendResponse(t *testing.T) {
	s := setupTestServer(t, t.TempDir())
	s.forwarder = NewForwarder(testLogger(), &ProxyConfig{
		BackendBaseURL: "http://backend.local",
		TimeoutMs:      2000,
	}, doerFunc(func(req *http.Request) (*http.Response, error) {
		resp := backendResponse(http.StatusCreated, `{"id":"1"}`)
		resp.Header.Set("X-Backend", "live")
		return resp, nil
	}))

	rr := httptest.NewRecorder()
	s.handleDispatch(rr, httptest.NewRequest(http.MethodPost, "/_api/contacts", strings.NewReader(`{"name":"x"}`)))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	if rr.Body.String() != `{"id":"1"}` {
		t.Errorf("unexpected body %q", rr.Body.String())
	}
	if rr.Header().Get("X-Backend") != "live" {
		t.Error("backend headers must relay")
	}
	if rr.Header().Get(backendUnavailableHeader) != "" {
		t.Error("a relayed response must not carry the unavailability marker")
	}
}

func TestHandleDispatch_BackendErrorStatusRelayed(t *testing.T) {
	s := setupTestServer(t, t.TempDir())
	s.forwarder = NewForwarder(testLogger(), &ProxyConfig{
		BackendBaseURL: "http://backend.local",
		TimeoutMs:      2000,
	}, doerFunc(func(req *http.Request) (*http.Response, error) {
		return backendResponse(http.StatusInternalServerError, "backend says no"), nil
	}))

	rr := httptest.NewRecorder()
	s.handleDispatch(rr, httptest.NewRequest(http.MethodGet, "/_api/contacts", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("backend statuses relay untouched, got %d", rr.Code)
	}
	if rr.Header().Get(backendUnavailableHeader) != "" {
		t.Error("an answer from the backend is not a gateway failure")
	}
	if rr.Body.String() != "backend says no" {
		t.Errorf("unexpected body %q", rr.Body.String())
	}
}

func TestForward_BuildsBackendRequest(t *testing.T) {
	var got *http.Request
	f := NewForwarder(testLogger(), &ProxyConfig{
		BackendBaseURL: "http://backend.local/base/",
		TimeoutMs:      2000,
		BearerToken:    "dev-token",
	}, doerFunc(func(req *http.Request) (*http.Response, error) {
		got = req
		return backendResponse(http.StatusOK, "ok"), nil
	}))

	u, err := url.Parse("/_api/contacts?$select=fullname")
	if err != nil {
		t.Fatalf("url.Parse failed: %v", err)
	}
	header := http.Header{}
	header.Set("X-Keep", "yes")
	header.Set("Authorization", "Bearer old")
	header.Set("Connection", "X-Dropped")
	header.Set("X-Dropped", "gone")

	result, err := f.Forward(context.Background(), http.MethodGet, u, header, nil)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if result.Status != http.StatusOK || string(result.Body) != "ok" {
		t.Fatalf("unexpected result %+v", result)
	}

	if got.URL.String() != "http://backend.local/base/_api/contacts?$select=fullname" {
		t.Errorf("unexpected target %q", got.URL.String())
	}
	if got.Header.Get("X-Keep") != "yes" {
		t.Error("ordinary headers must forward")
	}
	if auth := got.Header.Get("Authorization"); auth != "Bearer dev-token" {
		t.Errorf("the configured bearer must replace the original, got %q", auth)
	}
	if got.Header.Get("X-Dropped") != "" || got.Header.Get("Connection") != "" {
		t.Error("hop-by-hop headers must not forward")
	}
}

func TestForward_TransportFailure(t *testing.T) {
	f := NewForwarder(testLogger(), &ProxyConfig{BackendBaseURL: "http://backend.local", TimeoutMs: 2000},
		doerFunc(func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		}))

	u, _ := url.Parse("/_api/contacts")
	_, err := f.Forward(context.Background(), http.MethodGet, u, nil, nil)
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestForward_NoBackendConfigured(t *testing.T) {
	f := NewForwarder(testLogger(), &ProxyConfig{TimeoutMs: 2000}, nil)

	u, _ := url.Parse("/_api/contacts")
	_, err := f.Forward(context.Background(), http.MethodGet, u, nil, nil)
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestCaptureSafeHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer secret")
	h.Set("Cookie", "session=abc")
	h.Set("Content-Type", "application/json")

	safe := captureSafeHeaders(h)
	if safe.Get("Authorization") != "" || safe.Get("Cookie") != "" {
		t.Error("credential headers must not be captured")
	}
	if safe.Get("Content-Type") != "application/json" {
		t.Error("ordinary headers must survive")
	}
	if h.Get("Authorization") == "" {
		t.Error("the original header must be untouched")
	}
}

func TestCurrentUser_FallbackWithoutEndpoint(t *testing.T) {
	c := newIdentityClient(testLogger(), DefaultProxyConfig(), nil)

	user := c.CurrentUser(context.Background())
	if user.FullName != "Local Developer" {
		t.Errorf("unexpected fallback user %+v", user)
	}
	if user.ID != "local-dev" {
		t.Errorf("fallback must carry the configured user id, got %q", user.ID)
	}
}

func TestCurrentUser_EndpointResponse(t *testing.T) {
	cfg := DefaultProxyConfig()
	cfg.IdentityEndpoint = "http://backend.local/identity"
	c := newIdentityClient(testLogger(), cfg, doerFunc(func(req *http.Request) (*http.Response, error) {
		if got := req.URL.Query().Get("id"); got != "local-dev" {
			t.Errorf("expected the configured user id in the query, got %q", got)
		}
		return backendResponse(http.StatusOK, `{"id":"u-1","fullname":"Remote User","roles":["Sales"]}`), nil
	}))

	user := c.CurrentUser(context.Background())
	if user.FullName != "Remote User" || user.ID != "u-1" {
		t.Errorf("unexpected user %+v", user)
	}
}

func TestCurrentUser_EndpointFailureFallsBack(t *testing.T) {
	cfg := DefaultProxyConfig()
	cfg.IdentityEndpoint = "http://backend.local/identity"
	c := newIdentityClient(testLogger(), cfg, doerFunc(func(req *http.Request) (*http.Response, error) {
		return backendResponse(http.StatusServiceUnavailable, ""), nil
	}))

	if user := c.CurrentUser(context.Background()); user.FullName != "Local Developer" {
		t.Errorf("expected the fallback user, got %+v", user)
	}
}
