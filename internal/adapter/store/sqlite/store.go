// Package sqlite persists review outcomes, pull-request reviews, quota
// windows, and review history in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/bkyoung/review-engine/internal/domain"
	"github.com/bkyoung/review-engine/internal/usecase/review"
)

// Store implements the review package's OutcomeCache, PRCache,
// QuotaStore, and Recorder ports over a single SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) a SQLite store at the given path.
// Use ":memory:" for an in-memory database (useful for testing).
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Serialized access keeps IncrementIfBelow atomic across goroutines
	// sharing one connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

// createSchema creates all tables and indexes if they don't exist.
func (s *Store) createSchema() error {
	schema := `
	-- File-review outcomes keyed by content fingerprint
	CREATE TABLE IF NOT EXISTS outcomes (
		fingerprint TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	-- Aggregated pull-request reviews keyed by repo#number@headCommit
	CREATE TABLE IF NOT EXISTS pr_reviews (
		cache_key TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	-- Rolling 24h quota windows, one row per user
	CREATE TABLE IF NOT EXISTS quota_windows (
		user_id TEXT PRIMARY KEY,
		window_start INTEGER NOT NULL,
		call_count INTEGER NOT NULL
	);

	-- Review history
	CREATE TABLE IF NOT EXISTS review_records (
		record_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		key TEXT NOT NULL,
		model TEXT NOT NULL,
		provider TEXT NOT NULL,
		score REAL NOT NULL,
		issue_count INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_user ON review_records(user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_records_key ON review_records(key);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetOutcome retrieves a cached file-review outcome.
func (s *Store) GetOutcome(ctx context.Context, fingerprint string) (*domain.ReviewOutcome, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM outcomes WHERE fingerprint = ?`, fingerprint).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get outcome: %w", err)
	}

	var outcome domain.ReviewOutcome
	if err := json.Unmarshal([]byte(payload), &outcome); err != nil {
		return nil, false, fmt.Errorf("failed to decode outcome: %w", err)
	}
	return &outcome, true, nil
}

// PutOutcome stores a file-review outcome, replacing any prior entry for
// the fingerprint.
func (s *Store) PutOutcome(ctx context.Context, fingerprint string, outcome *domain.ReviewOutcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to encode outcome: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO outcomes (fingerprint, payload, created_at) VALUES (?, ?, ?)`,
		fingerprint, string(payload), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to put outcome: %w", err)
	}
	return nil
}

// GetPRReview retrieves a cached pull-request review.
func (s *Store) GetPRReview(ctx context.Context, key string) (*domain.PRReviewResult, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM pr_reviews WHERE cache_key = ?`, key).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get pr review: %w", err)
	}

	var result domain.PRReviewResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, false, fmt.Errorf("failed to decode pr review: %w", err)
	}
	return &result, true, nil
}

// PutPRReview stores a pull-request review under its cache key. Keys for
// superseded head commits are left in place.
func (s *Store) PutPRReview(ctx context.Context, key string, result *domain.PRReviewResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode pr review: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO pr_reviews (cache_key, payload, created_at) VALUES (?, ?, ?)`,
		key, string(payload), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to put pr review: %w", err)
	}
	return nil
}

// IncrementIfBelow admits and counts one call for the user if the rolling
// window is below limit. The read-check-write runs in a transaction so
// concurrent callers cannot both take the last slot.
func (s *Store) IncrementIfBelow(ctx context.Context, userID string, limit int, now time.Time) (domain.QuotaWindow, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.QuotaWindow{}, false, fmt.Errorf("failed to begin quota tx: %w", err)
	}
	defer tx.Rollback()

	window, err := readWindow(ctx, tx, userID, now)
	if err != nil {
		return domain.QuotaWindow{}, false, err
	}

	if window.CallCount >= limit {
		return window, false, nil
	}

	window.CallCount++
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO quota_windows (user_id, window_start, call_count) VALUES (?, ?, ?)`,
		userID, window.WindowStart.Unix(), window.CallCount)
	if err != nil {
		return domain.QuotaWindow{}, false, fmt.Errorf("failed to update quota window: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.QuotaWindow{}, false, fmt.Errorf("failed to commit quota tx: %w", err)
	}
	return window, true, nil
}

// Window returns the user's current quota window without counting a call.
func (s *Store) Window(ctx context.Context, userID string, now time.Time) (domain.QuotaWindow, error) {
	return readWindow(ctx, s.db, userID, now)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// readWindow loads the user's window, replacing an expired or missing one
// with a fresh window starting at now.
func readWindow(ctx context.Context, q querier, userID string, now time.Time) (domain.QuotaWindow, error) {
	var start int64
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT window_start, call_count FROM quota_windows WHERE user_id = ?`, userID).
		Scan(&start, &count)
	if err == sql.ErrNoRows {
		return domain.QuotaWindow{UserID: userID, WindowStart: now}, nil
	}
	if err != nil {
		return domain.QuotaWindow{}, fmt.Errorf("failed to read quota window: %w", err)
	}

	window := domain.QuotaWindow{
		UserID:      userID,
		WindowStart: time.Unix(start, 0),
		CallCount:   count,
	}
	if window.Expired(now) {
		return domain.QuotaWindow{UserID: userID, WindowStart: now}, nil
	}
	return window, nil
}

// SaveRecord persists one review-history row. An empty ID gets a fresh
// UUID.
func (s *Store) SaveRecord(ctx context.Context, record review.ReviewRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO review_records (record_id, user_id, kind, key, model, provider, score, issue_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.UserID,
		record.Kind,
		record.Key,
		record.ModelID,
		record.ProviderName,
		record.Score,
		record.IssueCount,
		record.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save review record: %w", err)
	}
	return nil
}

// ListRecords returns the user's most recent review-history rows.
func (s *Store) ListRecords(ctx context.Context, userID string, limit int) ([]review.ReviewRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record_id, user_id, kind, key, model, provider, score, issue_count, created_at
		 FROM review_records WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list review records: %w", err)
	}
	defer rows.Close()

	var records []review.ReviewRecord
	for rows.Next() {
		var record review.ReviewRecord
		var createdAt int64
		if err := rows.Scan(
			&record.ID,
			&record.UserID,
			&record.Kind,
			&record.Key,
			&record.ModelID,
			&record.ProviderName,
			&record.Score,
			&record.IssueCount,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan review record: %w", err)
		}
		record.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, record)
	}
	return records, rows.Err()
}
