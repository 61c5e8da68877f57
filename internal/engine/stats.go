// internal/engine/stats.go
package engine

import (
	"sync"
	"time"
)

// SessionStats aggregates execution outcomes for the current session. It is
// owned by the engine instance; nothing here is global state.
type SessionStats struct {
	mu            sync.Mutex
	startedAt     time.Time
	buys          int
	sells         int
	failures      int
	rejected      int
	solSpent      float64
	totalAttempts uint
}

// StatsSnapshot is a read-only copy of the session counters.
type StatsSnapshot struct {
	StartedAt     time.Time `json:"started_at"`
	Uptime        string    `json:"uptime"`
	Buys          int       `json:"buys"`
	Sells         int       `json:"sells"`
	Failures      int       `json:"failures"`
	Rejected      int       `json:"rejected"`
	SolSpent      float64   `json:"sol_spent"`
	TotalAttempts uint      `json:"total_attempts"`
}

func newSessionStats() *SessionStats {
	return &SessionStats{startedAt: time.Now()}
}

func (s *SessionStats) recordBuy(amountSol float64, attempts uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buys++
	s.solSpent += amountSol
	s.totalAttempts += attempts
}

func (s *SessionStats) recordSell(attempts uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sells++
	s.totalAttempts += attempts
}

func (s *SessionStats) recordFailure(attempts uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	s.totalAttempts += attempts
}

func (s *SessionStats) recordRejected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected++
}

// Snapshot returns the current counters.
func (s *SessionStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		StartedAt:     s.startedAt,
		Uptime:        time.Since(s.startedAt).Round(time.Second).String(),
		Buys:          s.buys,
		Sells:         s.sells,
		Failures:      s.failures,
		Rejected:      s.rejected,
		SolSpent:      s.solSpent,
		TotalAttempts: s.totalAttempts,
	}
}
