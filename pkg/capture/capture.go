package capture

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// ErrCaptureNotFound is returned when a capture id does not exist.
var ErrCaptureNotFound = errors.New("capture not found")

// Transaction is one recorded HTTP exchange between a client and the live
// backend.
type Transaction struct {
	ID              string      `json:"id"`
	Method          string      `json:"method"`
	Path            string      `json:"path"`
	Query           string      `json:"query"`
	RequestHeaders  http.Header `json:"request_headers"`
	RequestBody     string      `json:"request_body"`
	Status          int         `json:"status"`
	ResponseHeaders http.Header `json:"response_headers"`
	ResponseBody    string      `json:"response_body"`
	DurationMs      int64       `json:"duration_ms"`
	CapturedAt      time.Time   `json:"captured_at"`
}

// SetupSchema initializes the capture tables in the provided database. It is
// idempotent and safe to call on an already-initialized database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaTransactions = `
CREATE TABLE IF NOT EXISTS capture_transactions (
    capture_id TEXT PRIMARY KEY,
    method TEXT NOT NULL,
    path TEXT NOT NULL,
    query TEXT NOT NULL DEFAULT '',
    request_headers TEXT NOT NULL DEFAULT '{}',
    request_body TEXT NOT NULL DEFAULT '',
    status INTEGER NOT NULL,
    response_headers TEXT NOT NULL DEFAULT '{}',
    response_body TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER NOT NULL DEFAULT 0,
    captured_at TIMESTAMP NOT NULL
);
`
		schemaByTime = `
CREATE INDEX IF NOT EXISTS idx_capture_transactions_captured_at
    ON capture_transactions (captured_at DESC);
`
		schemaByPath = `
CREATE INDEX IF NOT EXISTS idx_capture_transactions_path
    ON capture_transactions (path);
`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	// If the transaction succeeds, tx.Commit() will be called first, and the rollback will do nothing. If it fails, this will clean up.
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaTransactions); err != nil {
		return fmt.Errorf("could not create capture schema: %w", err)
	}

	if _, err = tx.Exec(schemaByTime); err != nil {
		return fmt.Errorf("could not create capture time index: %w", err)
	}

	if _, err = tx.Exec(schemaByPath); err != nil {
		return fmt.Errorf("could not create capture path index: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

const transactionColumns = `capture_id, method, path, query, request_headers, request_body, status, response_headers, response_body, duration_ms, captured_at`

// Store persists recorded transactions. It holds the database connection and
// prepared SQL statements for the capture lifecycle.
type Store struct {
	db         *sql.DB
	logger     *slog.Logger
	maxEntries int

	stmtInsert   *sql.Stmt
	stmtGet      *sql.Stmt
	stmtList     *sql.Stmt
	stmtCount    *sql.Stmt
	stmtDelete   *sql.Stmt
	stmtPrune    *sql.Stmt
	stmtTopPaths *sql.Stmt
}

// NewStore creates a Store over an initialized database. It pre-compiles all
// necessary SQL statements, returning an error if any preparation fails.
func NewStore(db *sql.DB) (*Store, error) {
	stmtInsert, err := db.Prepare(`INSERT INTO capture_transactions (` + transactionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`)
	if err != nil {
		return nil, err
	}

	stmtGet, err := db.Prepare(`SELECT ` + transactionColumns + ` FROM capture_transactions WHERE capture_id = ?;`)
	if err != nil {
		return nil, err
	}

	stmtList, err := db.Prepare(`SELECT ` + transactionColumns + ` FROM capture_transactions WHERE (? = '' OR path LIKE ? || '%') ORDER BY captured_at DESC, capture_id DESC LIMIT ? OFFSET ?;`)
	if err != nil {
		return nil, err
	}

	stmtCount, err := db.Prepare(`SELECT COUNT(*) FROM capture_transactions WHERE (? = '' OR path LIKE ? || '%');`)
	if err != nil {
		return nil, err
	}

	stmtDelete, err := db.Prepare(`DELETE FROM capture_transactions WHERE capture_id = ?;`)
	if err != nil {
		return nil, err
	}

	stmtPrune, err := db.Prepare(`DELETE FROM capture_transactions WHERE capture_id NOT IN (SELECT capture_id FROM capture_transactions ORDER BY captured_at DESC, capture_id DESC LIMIT ?);`)
	if err != nil {
		return nil, err
	}

	stmtTopPaths, err := db.Prepare(`SELECT path, COUNT(*) AS hits FROM capture_transactions GROUP BY path ORDER BY hits DESC, path ASC LIMIT ?;`)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:           db,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		stmtInsert:   stmtInsert,
		stmtGet:      stmtGet,
		stmtList:     stmtList,
		stmtCount:    stmtCount,
		stmtDelete:   stmtDelete,
		stmtPrune:    stmtPrune,
		stmtTopPaths: stmtTopPaths,
	}, nil
}

// SetLogger sets the logger. That's about it.
func (s *Store) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// SetRetention caps the table at maxEntries rows, pruning the oldest after
// each insert. Zero disables pruning. Call before the store starts serving.
func (s *Store) SetRetention(maxEntries int) {
	s.maxEntries = maxEntries
}

// Close releases all prepared SQL statements held by the Store.
func (s *Store) Close() {
	_ = s.stmtInsert.Close()
	_ = s.stmtGet.Close()
	_ = s.stmtList.Close()
	_ = s.stmtCount.Close()
	_ = s.stmtDelete.Close()
	_ = s.stmtPrune.Close()
	_ = s.stmtTopPaths.Close()
}

// Record inserts a transaction, assigning an id and capture time when the
// caller left them empty. A failed retention sweep is logged, not returned,
// so bookkeeping can never fail the exchange being recorded.
func (s *Store) Record(ctx context.Context, t *Transaction) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CapturedAt.IsZero() {
		t.CapturedAt = time.Now().UTC()
	}

	reqHeaders, err := encodeHeader(t.RequestHeaders)
	if err != nil {
		return fmt.Errorf("could not encode request headers: %w", err)
	}
	respHeaders, err := encodeHeader(t.ResponseHeaders)
	if err != nil {
		return fmt.Errorf("could not encode response headers: %w", err)
	}

	if _, err = s.stmtInsert.ExecContext(ctx,
		t.ID, t.Method, t.Path, t.Query,
		reqHeaders, t.RequestBody,
		t.Status, respHeaders, t.ResponseBody,
		t.DurationMs, t.CapturedAt,
	); err != nil {
		return fmt.Errorf("could not record transaction: %w", err)
	}
	s.logger.DebugContext(ctx, "Transaction recorded",
		"capture_id", t.ID, "method", t.Method, "path", t.Path, "status", t.Status)

	if s.maxEntries > 0 {
		if _, err = s.Prune(ctx, s.maxEntries); err != nil {
			s.logger.WarnContext(ctx, "Failed to prune captures", "error", err)
		}
	}
	return nil
}

// Get returns the transaction with the given id.
func (s *Store) Get(ctx context.Context, id string) (*Transaction, error) {
	t, err := scanTransaction(s.stmtGet.QueryRowContext(ctx, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCaptureNotFound
		}
		return nil, fmt.Errorf("could not load transaction: %w", err)
	}
	return t, nil
}

// List returns transactions newest first, optionally filtered to paths with
// the given prefix. A non-positive limit defaults to 100.
func (s *Store) List(ctx context.Context, pathPrefix string, limit, offset int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.stmtList.QueryContext(ctx, pathPrefix, pathPrefix, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("could not list transactions: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []*Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Count reports how many transactions are stored, optionally filtered to
// paths with the given prefix.
func (s *Store) Count(ctx context.Context, pathPrefix string) (int, error) {
	var count int
	if err := s.stmtCount.QueryRowContext(ctx, pathPrefix, pathPrefix).Scan(&count); err != nil {
		return 0, fmt.Errorf("could not count transactions: %w", err)
	}
	return count, nil
}

// Delete removes the transaction with the given id.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.stmtDelete.ExecContext(ctx, id)
	if err != nil {
		return fmt.Errorf("could not delete transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not confirm delete: %w", err)
	}
	if affected == 0 {
		return ErrCaptureNotFound
	}
	return nil
}

// Prune deletes everything but the newest keep transactions and reports how
// many rows were removed.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := s.stmtPrune.ExecContext(ctx, keep)
	if err != nil {
		return 0, fmt.Errorf("could not prune transactions: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("could not confirm prune: %w", err)
	}
	if removed > 0 {
		s.logger.InfoContext(ctx, "Old captures pruned", "removed", removed, "kept", keep)
	}
	return removed, nil
}

// PathCount aggregates stored transactions per request path.
type PathCount struct {
	Path  string `json:"path"`
	Count int64  `json:"count"`
}

// TopPaths returns the most captured paths, busiest first. A non-positive
// limit defaults to 20.
func (s *Store) TopPaths(ctx context.Context, limit int) ([]PathCount, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.stmtTopPaths.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("could not aggregate paths: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []PathCount
	for rows.Next() {
		var pc PathCount
		if err = rows.Scan(&pc.Path, &pc.Count); err != nil {
			return nil, fmt.Errorf("could not scan path count: %w", err)
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

// rowScanner lets scanTransaction serve both QueryRow and Query results.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*Transaction, error) {
	var (
		t           Transaction
		reqHeaders  string
		respHeaders string
	)
	err := row.Scan(
		&t.ID, &t.Method, &t.Path, &t.Query,
		&reqHeaders, &t.RequestBody,
		&t.Status, &respHeaders, &t.ResponseBody,
		&t.DurationMs, &t.CapturedAt,
	)
	if err != nil {
		return nil, err
	}
	if t.RequestHeaders, err = decodeHeader(reqHeaders); err != nil {
		return nil, fmt.Errorf("corrupt request headers for %s: %w", t.ID, err)
	}
	if t.ResponseHeaders, err = decodeHeader(respHeaders); err != nil {
		return nil, fmt.Errorf("corrupt response headers for %s: %w", t.ID, err)
	}
	return &t, nil
}

func encodeHeader(h http.Header) (string, error) {
	if len(h) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(h)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeHeader(raw string) (http.Header, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var h http.Header
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return nil, err
	}
	return h, nil
}
