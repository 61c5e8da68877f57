// internal/directive/directive.go
package directive

import "time"

// SchemaVersion is the directive contract version this engine accepts.
const SchemaVersion = 1

// Action is the desired trade action.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionWait Action = "WAIT"
)

// Urgency controls how aggressively an action should be executed.
type Urgency string

const (
	UrgencyImmediate Urgency = "IMMEDIATE"
	UrgencyNormal    Urgency = "NORMAL"
	UrgencyPatient   Urgency = "PATIENT"
)

// Stealth controls how visible the execution may be on-chain.
type Stealth string

const (
	StealthLoud   Stealth = "LOUD"
	StealthNormal Stealth = "NORMAL"
	StealthSilent Stealth = "SILENT"
)

// Priority ranks directives; CRITICAL unlocks the wallet-cooldown bypass.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Personality is the trading persona the amount/timing was generated for.
type Personality string

const (
	PersonalityConservative Personality = "CONSERVATIVE"
	PersonalityBalanced     Personality = "BALANCED"
	PersonalityAggressive   Personality = "AGGRESSIVE"
	PersonalityDegen        Personality = "DEGEN"
)

// ExecutionProfile shapes how a directive is executed.
type ExecutionProfile struct {
	Personality Personality `json:"personality"`
	Urgency     Urgency     `json:"urgency"`
	Stealth     Stealth     `json:"stealth"`
}

// TradeDirective is one desired action produced by the scoring engine. It is
// an immutable value, consumed exactly once: first by the validator, then by
// the executor.
//
// Amount is denominated in SOL for BUY and in raw token units for SELL; a
// WAIT directive carries no amount.
type TradeDirective struct {
	SchemaVersion int              `json:"schema_version"`
	Action        Action           `json:"action"`
	TokenAddress  string           `json:"token_address"`
	Amount        float64          `json:"amount,omitempty"`
	Profile       ExecutionProfile `json:"execution_profile"`
	Confidence    float64          `json:"confidence"`
	Priority      Priority         `json:"priority"`
	Reason        string           `json:"reason"`
	Timestamp     time.Time        `json:"timestamp"`
}

func newDirective(action Action, token string, amount float64, reason string) TradeDirective {
	return TradeDirective{
		SchemaVersion: SchemaVersion,
		Action:        action,
		TokenAddress:  token,
		Amount:        amount,
		Profile: ExecutionProfile{
			Personality: PersonalityBalanced,
			Urgency:     UrgencyNormal,
			Stealth:     StealthNormal,
		},
		Confidence: 50,
		Priority:   PriorityMedium,
		Reason:     reason,
		Timestamp:  time.Now(),
	}
}

// NewBuy builds a valid-by-construction BUY directive; amountSol is spent SOL.
func NewBuy(token string, amountSol float64, reason string) TradeDirective {
	return newDirective(ActionBuy, token, amountSol, reason)
}

// NewSell builds a valid-by-construction SELL directive; amountRaw is the raw
// token amount to sell.
func NewSell(token string, amountRaw float64, reason string) TradeDirective {
	return newDirective(ActionSell, token, amountRaw, reason)
}

// NewWait builds a WAIT directive.
func NewWait(token string, reason string) TradeDirective {
	return newDirective(ActionWait, token, 0, reason)
}
