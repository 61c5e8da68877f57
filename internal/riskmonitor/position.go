// internal/riskmonitor/position.go
package riskmonitor

import "time"

// State is the lifecycle state of a monitored position.
type State string

const (
	StateOpen       State = "OPEN"
	StateMonitoring State = "MONITORING"
	StateExiting    State = "EXITING"
	StateClosed     State = "CLOSED"
)

// Position is a monitored holding. Each position is owned exclusively by its
// monitoring goroutine; no other task mutates it directly.
type Position struct {
	TokenMint      string
	Symbol         string
	EntryAmountSol float64 // remaining cost basis in SOL
	EntryTime      time.Time
	LastScore      float64
	State          State
	HoldingsRaw    uint64 // raw token units still held
}

// Snapshot is a read-only copy of a position for status reporting.
type Snapshot struct {
	TokenMint      string    `json:"token_mint"`
	Symbol         string    `json:"symbol"`
	State          State     `json:"state"`
	EntryAmountSol float64   `json:"entry_amount_sol"`
	EntryTime      time.Time `json:"entry_time"`
	LastScore      float64   `json:"last_score"`
	HoldingsRaw    uint64    `json:"holdings_raw"`
}

func (p *Position) snapshot() Snapshot {
	return Snapshot{
		TokenMint:      p.TokenMint,
		Symbol:         p.Symbol,
		State:          p.State,
		EntryAmountSol: p.EntryAmountSol,
		EntryTime:      p.EntryTime,
		LastScore:      p.LastScore,
		HoldingsRaw:    p.HoldingsRaw,
	}
}
