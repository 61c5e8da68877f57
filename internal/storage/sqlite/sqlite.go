// internal/storage/sqlite/sqlite.go
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/Saylon11/crypto-bot/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS executions (
	id              TEXT PRIMARY KEY,
	timestamp       DATETIME NOT NULL,
	action          TEXT NOT NULL,
	token_mint      TEXT NOT NULL,
	wallet          TEXT NOT NULL,
	amount          REAL NOT NULL,
	amount_received INTEGER NOT NULL,
	signature       TEXT NOT NULL,
	success         INTEGER NOT NULL,
	err_kind        TEXT NOT NULL,
	err_message     TEXT NOT NULL,
	price_impact    REAL NOT NULL,
	attempts        INTEGER NOT NULL,
	reason          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_executions_timestamp ON executions(timestamp);
CREATE INDEX IF NOT EXISTS idx_executions_token ON executions(token_mint);
`

// Journal is a SQLite-backed execution journal.
type Journal struct {
	db     *sql.DB
	logger *zap.Logger
}

// New opens (creating if needed) the journal database at path.
func New(path string, logger *zap.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal db: %w", err)
	}
	// SQLite writes are serialized anyway; one connection avoids lock churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply journal schema: %w", err)
	}

	return &Journal{db: db, logger: logger.Named("journal")}, nil
}

// RecordExecution persists one execution outcome.
func (j *Journal) RecordExecution(ctx context.Context, rec *storage.ExecutionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO executions (
			id, timestamp, action, token_mint, wallet, amount, amount_received,
			signature, success, err_kind, err_message, price_impact, attempts, reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Timestamp.UTC(), rec.Action, rec.TokenMint, rec.Wallet,
		rec.Amount, rec.AmountReceived, rec.Signature, rec.Success,
		rec.ErrKind, rec.ErrMessage, rec.PriceImpact, rec.Attempts, rec.Reason)
	if err != nil {
		return fmt.Errorf("failed to journal execution: %w", err)
	}

	j.logger.Debug("Execution journaled",
		zap.String("id", rec.ID),
		zap.String("action", rec.Action),
		zap.String("token", rec.TokenMint),
		zap.Bool("success", rec.Success))
	return nil
}

// RecentExecutions returns up to limit records, newest first.
func (j *Journal) RecentExecutions(ctx context.Context, limit int) ([]storage.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, timestamp, action, token_mint, wallet, amount, amount_received,
		       signature, success, err_kind, err_message, price_impact, attempts, reason
		FROM executions ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var records []storage.ExecutionRecord
	for rows.Next() {
		var rec storage.ExecutionRecord
		if err := rows.Scan(
			&rec.ID, &rec.Timestamp, &rec.Action, &rec.TokenMint, &rec.Wallet,
			&rec.Amount, &rec.AmountReceived, &rec.Signature, &rec.Success,
			&rec.ErrKind, &rec.ErrMessage, &rec.PriceImpact, &rec.Attempts, &rec.Reason,
		); err != nil {
			return nil, fmt.Errorf("failed to scan execution row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
