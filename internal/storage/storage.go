// internal/storage/storage.go
package storage

import (
	"context"
	"time"
)

// ExecutionRecord is one journaled execution outcome, success or failure.
type ExecutionRecord struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Action         string    `json:"action"`
	TokenMint      string    `json:"token_mint"`
	Wallet         string    `json:"wallet"`
	Amount         float64   `json:"amount"`
	AmountReceived uint64    `json:"amount_received"`
	Signature      string    `json:"signature"`
	Success        bool      `json:"success"`
	ErrKind        string    `json:"err_kind"`
	ErrMessage     string    `json:"err_message"`
	PriceImpact    float64   `json:"price_impact"`
	Attempts       uint      `json:"attempts"`
	Reason         string    `json:"reason"`
}

// Journal persists execution records for post-session analysis.
type Journal interface {
	RecordExecution(ctx context.Context, rec *ExecutionRecord) error
	RecentExecutions(ctx context.Context, limit int) ([]ExecutionRecord, error)
	Close() error
}
