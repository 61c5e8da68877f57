// internal/scoring/scoring.go
package scoring

import (
	"context"
	"sync"
)

// Suggestion actions the scoring engine may emit alongside its scores.
const (
	SuggestHold = "HOLD"
	SuggestBuy  = "BUY"
	SuggestSell = "SELL"
	SuggestExit = "EXIT"
)

// TradeSuggestion is the engine's recommended action for a token.
type TradeSuggestion struct {
	Action     string  `json:"action"`
	Percentage float64 `json:"percentage"`
	Reason     string  `json:"reason"`
}

// ScoreResult is one scoring snapshot for a token. Both scores are 0-100.
// This is an untrusted external signal: anything derived from it passes
// through the directive validator before execution.
type ScoreResult struct {
	SurvivabilityScore float64         `json:"survivability_score"`
	PanicScore         float64         `json:"panic_score"`
	Suggestion         TradeSuggestion `json:"trade_suggestion"`
}

// Engine is the external scoring capability consumed by the risk monitor.
// The production implementation lives outside this engine.
type Engine interface {
	Score(ctx context.Context, tokenMint string) (*ScoreResult, error)
}

// Neutral returns a score that triggers nothing.
func Neutral() *ScoreResult {
	return &ScoreResult{
		SurvivabilityScore: 70,
		PanicScore:         10,
		Suggestion:         TradeSuggestion{Action: SuggestHold},
	}
}

// StaticEngine is a deterministic fixture engine: queued results are returned
// per mint in FIFO order, then the fallback repeats. Used in tests and as a
// stand-in when no real scoring engine is wired.
type StaticEngine struct {
	mu       sync.Mutex
	queues   map[string][]*ScoreResult
	fallback *ScoreResult
}

// NewStatic creates a fixture engine with the given fallback result.
func NewStatic(fallback *ScoreResult) *StaticEngine {
	if fallback == nil {
		fallback = Neutral()
	}
	return &StaticEngine{
		queues:   make(map[string][]*ScoreResult),
		fallback: fallback,
	}
}

// Enqueue schedules results to be returned for tokenMint, in order.
func (s *StaticEngine) Enqueue(tokenMint string, results ...*ScoreResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[tokenMint] = append(s.queues[tokenMint], results...)
}

// Score implements Engine.
func (s *StaticEngine) Score(_ context.Context, tokenMint string) (*ScoreResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue := s.queues[tokenMint]
	if len(queue) == 0 {
		return s.fallback, nil
	}
	result := queue[0]
	if len(queue) > 1 {
		s.queues[tokenMint] = queue[1:]
	} else {
		// Keep replaying the final queued result.
		s.queues[tokenMint] = queue[:1]
	}
	return result, nil
}
