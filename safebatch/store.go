package safebatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"
)

var (
	// ErrAuthorizationNotFound is returned for unknown authorization ids.
	ErrAuthorizationNotFound = errors.New("safebatch: authorization not found")
	// ErrStorePathRequired is returned when the backing store path is missing.
	ErrStorePathRequired = errors.New("safebatch: store path required")
)

const defaultFilePragmas = "mode=rwc&_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"

// FileDSN converts a filesystem path into an on-disk SQLite DSN with
// sensible defaults.
func FileDSN(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", ErrStorePathRequired
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("safebatch: resolve store path: %w", err)
	}
	return fmt.Sprintf("file:%s?%s", abs, defaultFilePragmas), nil
}

// Store is the local audit trail of submitted authorizations. It survives
// restarts so status polling can resume for in-flight batches.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and migrates) the audit store at dsn.
func OpenStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("safebatch: open store: %w", err)
	}
	store := &Store{db: db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS authorizations (
    authorization_id TEXT PRIMARY KEY,
    request_id       TEXT NOT NULL,
    ops_count        INTEGER NOT NULL,
    ops_digest       TEXT NOT NULL,
    status           TEXT NOT NULL,
    settlement_tx    TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMP NOT NULL,
    updated_at       TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_authorizations_status ON authorizations(status);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("safebatch: migrate store: %w", err)
	}
	return nil
}

// AuditRecord is one persisted authorization row.
type AuditRecord struct {
	AuthorizationID string
	RequestID       string
	OpsCount        int
	OpsDigest       string
	Status          Status
	SettlementTx    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// InsertAuthorization records a freshly submitted batch.
func (s *Store) InsertAuthorization(ctx context.Context, record AuditRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("safebatch: store not configured")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO authorizations (authorization_id, request_id, ops_count, ops_digest, status, settlement_tx, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, '', ?, ?)`,
		record.AuthorizationID, record.RequestID, record.OpsCount, record.OpsDigest,
		record.Status.String(), record.CreatedAt.UTC(), record.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("safebatch: insert authorization: %w", err)
	}
	return nil
}

// UpdateStatus records a status transition. Re-recording the same status is
// a no-op so repeated polls stay idempotent; a terminal status is never
// overwritten.
func (s *Store) UpdateStatus(ctx context.Context, authorizationID string, status Status, settlementTx string, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("safebatch: store not configured")
	}
	_, err := s.db.ExecContext(ctx, `
UPDATE authorizations
SET status = ?, settlement_tx = ?, updated_at = ?
WHERE authorization_id = ? AND status = ?`,
		status.String(), settlementTx, at.UTC(), authorizationID, StatusPending.String())
	if err != nil {
		return fmt.Errorf("safebatch: update authorization: %w", err)
	}
	return nil
}

// GetAuthorization loads one audit row.
func (s *Store) GetAuthorization(ctx context.Context, authorizationID string) (AuditRecord, error) {
	if s == nil || s.db == nil {
		return AuditRecord{}, fmt.Errorf("safebatch: store not configured")
	}
	row := s.db.QueryRowContext(ctx, `
SELECT authorization_id, request_id, ops_count, ops_digest, status, settlement_tx, created_at, updated_at
FROM authorizations WHERE authorization_id = ?`, authorizationID)
	return scanRecord(row)
}

// ListPending returns the authorizations still awaiting a terminal status.
func (s *Store) ListPending(ctx context.Context) ([]AuditRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("safebatch: store not configured")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT authorization_id, request_id, ops_count, ops_digest, status, settlement_tx, created_at, updated_at
FROM authorizations WHERE status = ? ORDER BY created_at ASC`, StatusPending.String())
	if err != nil {
		return nil, fmt.Errorf("safebatch: list pending: %w", err)
	}
	defer rows.Close()
	records := make([]AuditRecord, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (AuditRecord, error) {
	var (
		record AuditRecord
		status string
	)
	err := row.Scan(&record.AuthorizationID, &record.RequestID, &record.OpsCount, &record.OpsDigest,
		&status, &record.SettlementTx, &record.CreatedAt, &record.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return AuditRecord{}, ErrAuthorizationNotFound
	}
	if err != nil {
		return AuditRecord{}, fmt.Errorf("safebatch: scan authorization: %w", err)
	}
	parsed, err := ParseStatus(status)
	if err != nil {
		return AuditRecord{}, err
	}
	record.Status = parsed
	return record, nil
}
