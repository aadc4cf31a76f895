// Package store provides the SQLite-backed local history cache for mindscan.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fentz26/mindscan/internal/models"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a history entry or pending result does not exist.
var ErrNotFound = errors.New("not found")

// Store provides access to the mindscan SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS history (
		user_key TEXT NOT NULL,
		assessment_id TEXT NOT NULL,
		risk_level TEXT NOT NULL,
		probability REAL NOT NULL,
		result TEXT NOT NULL,
		stored_at DATETIME NOT NULL,
		PRIMARY KEY (user_key, assessment_id)
	);

	CREATE TABLE IF NOT EXISTS pending_results (
		assessment_id TEXT PRIMARY KEY,
		user_key TEXT NOT NULL,
		access_token TEXT NOT NULL,
		expires_at DATETIME,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_user_key ON history(user_key, stored_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- History Operations ---

// AppendHistory stores a result under the user's key. An entry already
// cached for the same assessment is left unchanged. It reports whether a
// new entry was written.
func (s *Store) AppendHistory(ctx context.Context, userKey string, result models.AssessmentResult) (bool, error) {
	if userKey == "" || result.AssessmentID == "" {
		return false, fmt.Errorf("append history: user key and assessment id are required")
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return false, fmt.Errorf("encode result: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO history (user_key, assessment_id, risk_level, probability, result, stored_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		userKey, result.AssessmentID, string(result.RiskLevel), result.Probability, string(payload), s.now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("insert history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListHistory returns a user's cached results, oldest first. An empty
// userKey lists every user.
func (s *Store) ListHistory(ctx context.Context, userKey string) ([]models.HistoryEntry, error) {
	query := `SELECT user_key, assessment_id, result, stored_at FROM history`
	var args []any
	if userKey != "" {
		query += ` WHERE user_key = ?`
		args = append(args, userKey)
	}
	query += ` ORDER BY stored_at ASC, assessment_id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		e, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetHistory returns one cached result.
func (s *Store) GetHistory(ctx context.Context, userKey, assessmentID string) (models.HistoryEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_key, assessment_id, result, stored_at FROM history WHERE user_key = ? AND assessment_id = ?`,
		userKey, assessmentID,
	)
	e, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.HistoryEntry{}, ErrNotFound
	}
	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHistory(row scanner) (models.HistoryEntry, error) {
	var e models.HistoryEntry
	var payload string
	if err := row.Scan(&e.UserKey, &e.AssessmentID, &payload, &e.StoredAt); err != nil {
		return models.HistoryEntry{}, err
	}
	if err := json.Unmarshal([]byte(payload), &e.Result); err != nil {
		return models.HistoryEntry{}, fmt.Errorf("decode result %s: %w", e.AssessmentID, err)
	}
	return e, nil
}

// --- Pending Result Operations ---

// PendingResult is an assessment whose result polling timed out.
type PendingResult struct {
	AssessmentID string
	UserKey      string
	AccessToken  string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// SavePending records an assessment to check again later.
func (s *Store) SavePending(ctx context.Context, p PendingResult) error {
	var expires any
	if !p.ExpiresAt.IsZero() {
		expires = p.ExpiresAt.UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_results (assessment_id, user_key, access_token, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(assessment_id) DO UPDATE SET access_token = excluded.access_token, expires_at = excluded.expires_at`,
		p.AssessmentID, p.UserKey, p.AccessToken, expires, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save pending: %w", err)
	}
	return nil
}

// GetPending returns a pending assessment.
func (s *Store) GetPending(ctx context.Context, assessmentID string) (PendingResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT assessment_id, user_key, access_token, expires_at, created_at FROM pending_results WHERE assessment_id = ?`,
		assessmentID,
	)
	p, err := scanPending(row)
	if errors.Is(err, sql.ErrNoRows) {
		return PendingResult{}, ErrNotFound
	}
	return p, err
}

// ListPending returns every pending assessment, oldest first.
func (s *Store) ListPending(ctx context.Context) ([]PendingResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT assessment_id, user_key, access_token, expires_at, created_at FROM pending_results ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingResult
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeletePending removes a pending assessment.
func (s *Store) DeletePending(ctx context.Context, assessmentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_results WHERE assessment_id = ?`, assessmentID)
	return err
}

func scanPending(row scanner) (PendingResult, error) {
	var p PendingResult
	var expires sql.NullTime
	if err := row.Scan(&p.AssessmentID, &p.UserKey, &p.AccessToken, &expires, &p.CreatedAt); err != nil {
		return PendingResult{}, err
	}
	if expires.Valid {
		p.ExpiresAt = expires.Time
	}
	return p, nil
}
