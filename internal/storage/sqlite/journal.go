package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/eks-observability/access-relay/internal/core/domain"
	"github.com/eks-observability/access-relay/internal/core/ports"
)

// Journal is a SQLite implementation of ports.FailureJournal.
type Journal struct {
	db *sql.DB
}

var _ ports.FailureJournal = (*Journal)(nil)

// New opens (or creates) the journal database at dbPath.
func New(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps :memory: databases coherent across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	j := &Journal{db: db}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return j, nil
}

func (j *Journal) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS delivery_failures (
			id TEXT PRIMARY KEY,
			occurred_at TIMESTAMP NOT NULL,
			endpoint TEXT NOT NULL,
			kind TEXT NOT NULL,
			request_id TEXT,
			error TEXT NOT NULL,
			bytes INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_delivery_failures_occurred ON delivery_failures(occurred_at)`,
	}

	for _, stmt := range statements {
		if _, err := j.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

// Append stores a failure, assigning an ID and timestamp when missing.
func (j *Journal) Append(ctx context.Context, f *domain.DeliveryFailure) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.OccurredAt.IsZero() {
		f.OccurredAt = time.Now()
	}

	query := `INSERT INTO delivery_failures (id, occurred_at, endpoint, kind, request_id, error, bytes)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := j.db.ExecContext(ctx, query,
		f.ID, f.OccurredAt.UTC(), f.Endpoint, string(f.Kind), f.RequestID, f.Error, f.Bytes)
	if err != nil {
		return fmt.Errorf("failed to append delivery failure: %w", err)
	}

	return nil
}

// Recent returns up to limit failures, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]domain.DeliveryFailure, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, occurred_at, endpoint, kind, request_id, error, bytes
	          FROM delivery_failures
	          ORDER BY occurred_at DESC
	          LIMIT ?`

	rows, err := j.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query delivery failures: %w", err)
	}
	defer rows.Close()

	var out []domain.DeliveryFailure
	for rows.Next() {
		var (
			f         domain.DeliveryFailure
			kind      string
			requestID sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.OccurredAt, &f.Endpoint, &kind, &requestID, &f.Error, &f.Bytes); err != nil {
			return nil, fmt.Errorf("failed to scan delivery failure: %w", err)
		}
		f.Kind = domain.RecordKind(kind)
		f.RequestID = requestID.String
		out = append(out, f)
	}

	return out, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
