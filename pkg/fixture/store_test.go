package fixture

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestStore(tb testing.TB) *Store {
	tb.Helper()
	store, err := NewStore(testLogger(), filepath.Join(tb.TempDir(), "rules.json"))
	if err != nil {
		tb.Fatalf("NewStore() failed: %v", err)
	}
	return store
}

func testRule(method, pattern string, priority int) *Rule {
	return &Rule{
		Method:      method,
		PathPattern: pattern,
		Status:      200,
		Body:        `{"value":[]}`,
		Priority:    priority,
		Enabled:     true,
	}
}

func mustAdd(tb testing.TB, store *Store, rule *Rule) *Rule {
	tb.Helper()
	if err := store.Add(rule); err != nil {
		tb.Fatalf("Add(%s %s) failed: %v", rule.Method, rule.PathPattern, err)
	}
	return rule
}

func TestStoreAdd(t *testing.T) {
	store := setupTestStore(t)

	rule := &Rule{Method: "get", PathPattern: "/_api/contacts", Body: "{}", Enabled: true}
	if err := store.Add(rule); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	if rule.ID == "" {
		t.Error("expected Add to assign an id")
	}
	if rule.Method != "GET" {
		t.Errorf("expected method to be normalized to GET, got %q", rule.Method)
	}
	if rule.Status != 200 {
		t.Errorf("expected zero status to default to 200, got %d", rule.Status)
	}
	if rule.CreatedAt.IsZero() {
		t.Error("expected Add to stamp a creation time")
	}

	data, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("reading rules file failed: %v", err)
	}
	if !strings.Contains(string(data), rule.ID) {
		t.Error("expected the rules file to contain the new rule")
	}
}

func TestStoreAdd_Validation(t *testing.T) {
	store := setupTestStore(t)

	cases := []struct {
		name string
		rule *Rule
	}{
		{"missing method", &Rule{PathPattern: "/x"}},
		{"relative path", &Rule{Method: "GET", PathPattern: "x/y"}},
		{"status too low", &Rule{Method: "GET", PathPattern: "/x", Status: 99}},
		{"status too high", &Rule{Method: "GET", PathPattern: "/x", Status: 600}},
		{"negative delay", &Rule{Method: "GET", PathPattern: "/x", DelayMs: -5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := store.Add(tc.rule); err == nil {
				t.Error("expected Add to reject the rule")
			}
		})
	}
	if store.Len() != 0 {
		t.Errorf("expected no rules to be stored, got %d", store.Len())
	}
}

func TestStoreAdd_DuplicateID(t *testing.T) {
	store := setupTestStore(t)
	rule := mustAdd(t, store, testRule("GET", "/a", 0))

	dup := testRule("GET", "/b", 0)
	dup.ID = rule.ID
	if err := store.Add(dup); err == nil {
		t.Error("expected Add to reject a duplicate id")
	}
}

func TestStore_InitialFileCreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	if _, err := NewStore(testLogger(), path); err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected an initial rules file: %v", err)
	}
	if !strings.Contains(string(data), `"rules": []`) {
		t.Errorf("expected an empty rule list, got %s", data)
	}
}

func TestStore_LoadExisting(t *testing.T) {
	store := setupTestStore(t)
	rule := testRule("POST", "/_api/contacts", 3)
	rule.Query = map[string]string{"$select": "fullname"}
	rule.Headers = map[string]string{"Content-Type": "application/json"}
	mustAdd(t, store, rule)
	mustAdd(t, store, testRule("GET", "/_api/accounts", 1))

	reopened, err := NewStore(testLogger(), store.Path())
	if err != nil {
		t.Fatalf("reopening store failed: %v", err)
	}
	if reopened.Len() != 2 {
		t.Fatalf("expected 2 rules after reload, got %d", reopened.Len())
	}

	got, err := reopened.Get(rule.ID)
	if err != nil {
		t.Fatalf("Get() after reload failed: %v", err)
	}
	if got.Query["$select"] != "fullname" {
		t.Errorf("expected query constraints to survive reload, got %v", got.Query)
	}
	if got.Headers["Content-Type"] != "application/json" {
		t.Errorf("expected headers to survive reload, got %v", got.Headers)
	}
}

func TestStore_ParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("writing test file failed: %v", err)
	}
	if _, err := NewStore(testLogger(), path); err == nil {
		t.Error("expected NewStore to fail on a corrupt document")
	}
}

func TestStore_MatchOrder(t *testing.T) {
	store := setupTestStore(t)

	older := testRule("GET", "/older", 5)
	older.CreatedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := testRule("GET", "/newer", 5)
	newer.CreatedAt = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	high := testRule("GET", "/high", 10)
	high.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mustAdd(t, store, older)
	mustAdd(t, store, newer)
	mustAdd(t, store, high)

	var paths []string
	for _, rule := range store.List() {
		paths = append(paths, rule.PathPattern)
	}
	want := []string{"/high", "/newer", "/older"}
	if len(paths) != len(want) {
		t.Fatalf("expected %d rules, got %v", len(want), paths)
	}
	for i, path := range want {
		if paths[i] != path {
			t.Fatalf("expected match order %v, got %v", want, paths)
		}
	}
}

func TestStoreUpdate(t *testing.T) {
	store := setupTestStore(t)
	rule := mustAdd(t, store, testRule("GET", "/a", 1))
	store.RecordHit(rule.ID)

	edited := rule.clone()
	edited.Body = `{"changed":true}`
	edited.Priority = 9
	edited.HitCount = 0
	edited.CreatedAt = time.Time{}
	if err := store.Update(edited); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	got, err := store.Get(rule.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Body != `{"changed":true}` || got.Priority != 9 {
		t.Errorf("expected edits to apply, got body=%q priority=%d", got.Body, got.Priority)
	}
	if got.HitCount != 1 {
		t.Errorf("expected hit statistics to survive edits, got %d", got.HitCount)
	}
	if !got.CreatedAt.Equal(rule.CreatedAt) {
		t.Errorf("expected creation time to survive edits, got %v", got.CreatedAt)
	}
}

func TestStoreUpdate_NotFound(t *testing.T) {
	store := setupTestStore(t)
	missing := testRule("GET", "/a", 0)
	missing.ID = "no-such-rule"
	if err := store.Update(missing); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("expected ErrRuleNotFound, got %v", err)
	}
}

func TestStoreDelete(t *testing.T) {
	store := setupTestStore(t)
	rule := mustAdd(t, store, testRule("GET", "/a", 0))

	if err := store.Delete(rule.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := store.Get(rule.ID); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("expected ErrRuleNotFound after delete, got %v", err)
	}
	if err := store.Delete(rule.ID); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("expected ErrRuleNotFound for a second delete, got %v", err)
	}
}

func TestStoreSetEnabled(t *testing.T) {
	store := setupTestStore(t)
	rule := mustAdd(t, store, testRule("GET", "/a", 0))

	toggled, err := store.SetEnabled(rule.ID, false)
	if err != nil {
		t.Fatalf("SetEnabled() failed: %v", err)
	}
	if toggled.Enabled {
		t.Error("expected the returned rule to be disabled")
	}

	got, err := store.Get(rule.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Enabled {
		t.Error("expected the stored rule to be disabled")
	}

	if _, err = store.SetEnabled("no-such-rule", true); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("expected ErrRuleNotFound, got %v", err)
	}
}

func TestStoreRecordHit(t *testing.T) {
	store := setupTestStore(t)
	rule := mustAdd(t, store, testRule("GET", "/a", 0))

	store.RecordHit(rule.ID)
	store.RecordHit(rule.ID)
	store.RecordHit("no-such-rule") // must be a no-op

	got, err := store.Get(rule.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.HitCount != 2 {
		t.Errorf("expected 2 hits, got %d", got.HitCount)
	}
	if got.LastUsedAt.IsZero() {
		t.Error("expected LastUsedAt to be stamped")
	}

	reopened, err := NewStore(testLogger(), store.Path())
	if err != nil {
		t.Fatalf("reopening store failed: %v", err)
	}
	persisted, err := reopened.Get(rule.ID)
	if err != nil {
		t.Fatalf("Get() after reload failed: %v", err)
	}
	if persisted.HitCount != 2 {
		t.Errorf("expected hit statistics to persist, got %d", persisted.HitCount)
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	store := setupTestStore(t)
	rule := testRule("GET", "/a", 0)
	rule.Headers = map[string]string{"Content-Type": "application/json"}
	mustAdd(t, store, rule)

	got, err := store.Get(rule.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	got.Headers["X-Tampered"] = "yes"
	got.Body = "tampered"

	fresh, err := store.Get(rule.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if _, ok := fresh.Headers["X-Tampered"]; ok {
		t.Error("expected stored headers to be isolated from returned copies")
	}
	if fresh.Body == "tampered" {
		t.Error("expected stored body to be isolated from returned copies")
	}
}
