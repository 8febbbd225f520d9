// Package audit persists approval decision outcomes in SQLite so operators
// can answer "who allowed what, when" after the fact. It uses
// modernc.org/sqlite (pure Go, no CGO) with WAL mode.
package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/joeblack2k/openclaw-studio-sub002/internal/approval"
)

const schemaVersion = 1

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS decisions (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		approval_id TEXT    NOT NULL,
		agent_id    TEXT    NOT NULL DEFAULT '',
		command     TEXT    NOT NULL DEFAULT '',
		decision    TEXT    NOT NULL,
		outcome     TEXT    NOT NULL,
		error       TEXT    NOT NULL DEFAULT '',
		decided_at  INTEGER NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_decisions_decided_at ON decisions(decided_at)`,

	`CREATE INDEX IF NOT EXISTS idx_decisions_approval ON decisions(approval_id)`,
}

// migrate creates or updates the database schema to the latest version.
func migrate(db *sql.DB) error {
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("audit: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("audit: read schema version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("audit: migrate: %w\nstatement: %s", err, stmt)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("audit: record schema version: %w", err)
	}
	return nil
}

// Store is a SQLite-backed decision log. It implements
// approval.DecisionRecorder.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database handle. The schema must already be
// migrated.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record implements approval.DecisionRecorder.
func (s *Store) Record(ctx context.Context, rec approval.DecisionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions (approval_id, agent_id, command, decision, outcome, error, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ApprovalID, rec.AgentID, rec.Command, string(rec.Decision), rec.Outcome, rec.Err, rec.DecidedAtMS,
	)
	if err != nil {
		return fmt.Errorf("audit: record decision: %w", err)
	}
	return nil
}

// List returns the n most recent decisions, newest first.
func (s *Store) List(ctx context.Context, n int) ([]approval.DecisionRecord, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT approval_id, agent_id, command, decision, outcome, error, decided_at
		FROM decisions
		ORDER BY decided_at DESC, id DESC
		LIMIT ?`,
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: list decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []approval.DecisionRecord
	for rows.Next() {
		var rec approval.DecisionRecord
		var decision string
		if err := rows.Scan(&rec.ApprovalID, &rec.AgentID, &rec.Command, &decision, &rec.Outcome, &rec.Err, &rec.DecidedAtMS); err != nil {
			return nil, fmt.Errorf("audit: scan decision: %w", err)
		}
		rec.Decision = approval.Decision(decision)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: list rows: %w", err)
	}
	return records, nil
}

// DeleteOlderThan removes decisions decided before cutoffMS. Returns the
// number of rows removed.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoffMS int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM decisions WHERE decided_at < ?", cutoffMS)
	if err != nil {
		return 0, fmt.Errorf("audit: delete old decisions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("audit: rows affected: %w", err)
	}
	return n, nil
}
