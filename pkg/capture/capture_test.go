package capture

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestStore creates a SQLite-backed capture store in a temp directory.
// It uses tb.Cleanup to ensure resources are released.
func setupTestStore(tb testing.TB) *Store {
	tb.Helper()
	dbFile := filepath.Join(tb.TempDir(), "captures.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		tb.Fatalf("failed to open database: %v", err)
	}
	tb.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		tb.Fatalf("failed to set up schema: %v", err)
	}

	store, err := NewStore(db)
	if err != nil {
		tb.Fatalf("NewStore() error = %v", err)
	}
	tb.Cleanup(store.Close)

	return store
}

func testTransaction(method, path, query string) *Transaction {
	return &Transaction{
		Method:          method,
		Path:            path,
		Query:           query,
		RequestHeaders:  http.Header{"Accept": {"application/json"}},
		Status:          200,
		ResponseHeaders: http.Header{"Content-Type": {"application/json; charset=utf-8"}},
		ResponseBody:    `{"value":[{"fullname":"Jo Doe"}]}`,
		DurationMs:      12,
	}
}

func TestRecordAndGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tx := testTransaction("GET", "/_api/contacts", "$select=fullname")
	if err := store.Record(ctx, tx); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if tx.ID == "" {
		t.Fatal("expected Record to assign an id")
	}
	if tx.CapturedAt.IsZero() {
		t.Error("expected Record to stamp a capture time")
	}

	got, err := store.Get(ctx, tx.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Method != "GET" || got.Path != "/_api/contacts" || got.Query != "$select=fullname" {
		t.Errorf("unexpected request shape: %s %s?%s", got.Method, got.Path, got.Query)
	}
	if got.Status != 200 || got.ResponseBody != tx.ResponseBody {
		t.Errorf("unexpected response: %d %q", got.Status, got.ResponseBody)
	}
	if got.ResponseHeaders.Get("Content-Type") != "application/json; charset=utf-8" {
		t.Errorf("expected response headers to survive the round trip, got %v", got.ResponseHeaders)
	}
	if got.RequestHeaders.Get("Accept") != "application/json" {
		t.Errorf("expected request headers to survive the round trip, got %v", got.RequestHeaders)
	}
}

func TestGet_NotFound(t *testing.T) {
	store := setupTestStore(t)
	if _, err := store.Get(context.Background(), "no-such-capture"); !errors.Is(err, ErrCaptureNotFound) {
		t.Errorf("expected ErrCaptureNotFound, got %v", err)
	}
}

func TestList_OrderAndPaging(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	for i, path := range []string{"/first", "/second", "/third"} {
		tx := testTransaction("GET", path, "")
		tx.CapturedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.Record(ctx, tx); err != nil {
			t.Fatalf("Record(%s) failed: %v", path, err)
		}
	}

	all, err := store.List(ctx, "", 0, 0)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(all))
	}
	if all[0].Path != "/third" || all[2].Path != "/first" {
		t.Errorf("expected newest first, got %s ... %s", all[0].Path, all[2].Path)
	}

	page, err := store.List(ctx, "", 2, 0)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(page) != 2 || page[0].Path != "/third" {
		t.Errorf("unexpected first page: %+v", page)
	}

	rest, err := store.List(ctx, "", 2, 2)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(rest) != 1 || rest[0].Path != "/first" {
		t.Errorf("unexpected last page: %+v", rest)
	}
}

func TestList_PathPrefix(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, path := range []string{"/_api/contacts", "/_api/accounts", "/portal/home"} {
		if err := store.Record(ctx, testTransaction("GET", path, "")); err != nil {
			t.Fatalf("Record(%s) failed: %v", path, err)
		}
	}

	api, err := store.List(ctx, "/_api/", 0, 0)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(api) != 2 {
		t.Errorf("expected 2 api transactions, got %d", len(api))
	}

	count, err := store.Count(ctx, "/_api/")
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected filtered count 2, got %d", count)
	}

	total, err := store.Count(ctx, "")
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if total != 3 {
		t.Errorf("expected total count 3, got %d", total)
	}
}

func TestDelete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tx := testTransaction("GET", "/gone", "")
	if err := store.Record(ctx, tx); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if err := store.Delete(ctx, tx.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := store.Get(ctx, tx.ID); !errors.Is(err, ErrCaptureNotFound) {
		t.Errorf("expected ErrCaptureNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, tx.ID); !errors.Is(err, ErrCaptureNotFound) {
		t.Errorf("expected ErrCaptureNotFound for a second delete, got %v", err)
	}
}

func TestPrune(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		tx := testTransaction("GET", "/entry", "")
		tx.CapturedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.Record(ctx, tx); err != nil {
			t.Fatalf("Record() failed: %v", err)
		}
	}

	removed, err := store.Prune(ctx, 2)
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if removed != 3 {
		t.Errorf("expected 3 rows removed, got %d", removed)
	}

	remaining, err := store.List(ctx, "", 0, 0)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("expected 2 rows to survive, got %d", len(remaining))
	}
	for _, tx := range remaining {
		if tx.CapturedAt.Before(base.Add(3 * time.Minute)) {
			t.Errorf("expected only the newest rows to survive, found %v", tx.CapturedAt)
		}
	}
}

func TestRetention(t *testing.T) {
	store := setupTestStore(t)
	store.SetRetention(2)
	ctx := context.Background()

	base := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		tx := testTransaction("GET", "/entry", "")
		tx.CapturedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.Record(ctx, tx); err != nil {
			t.Fatalf("Record() failed: %v", err)
		}
	}

	count, err := store.Count(ctx, "")
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected retention to cap the table at 2, got %d", count)
	}
}

func BenchmarkRecord(b *testing.B) {
	store := setupTestStore(b)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tx := testTransaction("GET", "/_api/contacts", "$select=fullname")
		if err := store.Record(ctx, tx); err != nil {
			b.Fatalf("Record() failed: %v", err)
		}
	}
}
