// internal/directive/validator_test.go
package directive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testMint = "So11111111111111111111111111111111111111112"

func TestConstructorsProduceValidDirectives(t *testing.T) {
	v := NewValidator(zap.NewNop())

	assert.True(t, v.Validate(NewBuy(testMint, 0.5, "entry signal")))
	assert.True(t, v.Validate(NewSell(testMint, 1_000_000, "profit target")))
	assert.True(t, v.Validate(NewWait(testMint, "nothing to do")))
}

func TestValidateRejectsEveryBrokenField(t *testing.T) {
	v := NewValidator(zap.NewNop())

	cases := []struct {
		name   string
		mutate func(*TradeDirective)
	}{
		{"wrong schema version", func(d *TradeDirective) { d.SchemaVersion = 99 }},
		{"unknown action", func(d *TradeDirective) { d.Action = "YOLO" }},
		{"empty token address", func(d *TradeDirective) { d.TokenAddress = "" }},
		{"short token address", func(d *TradeDirective) { d.TokenAddress = "abc" }},
		{"zero amount on buy", func(d *TradeDirective) { d.Amount = 0 }},
		{"negative amount", func(d *TradeDirective) { d.Amount = -1 }},
		{"confidence below range", func(d *TradeDirective) { d.Confidence = -0.1 }},
		{"confidence above range", func(d *TradeDirective) { d.Confidence = 100.1 }},
		{"unknown priority", func(d *TradeDirective) { d.Priority = "URGENT" }},
		{"unknown personality", func(d *TradeDirective) { d.Profile.Personality = "ROBOT" }},
		{"unknown urgency", func(d *TradeDirective) { d.Profile.Urgency = "WHENEVER" }},
		{"unknown stealth", func(d *TradeDirective) { d.Profile.Stealth = "INVISIBLE" }},
		{"zero timestamp", func(d *TradeDirective) { d.Timestamp = time.Time{} }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := NewBuy(testMint, 0.5, "test")
			tc.mutate(&d)
			assert.False(t, v.Validate(d))
		})
	}
}

// Validate must return a verdict for arbitrary garbage, never panic.
func TestValidateIsTotal(t *testing.T) {
	v := NewValidator(zap.NewNop())

	garbage := []TradeDirective{
		{},
		{Action: ActionBuy},
		{SchemaVersion: SchemaVersion, Action: "", TokenAddress: testMint},
		{SchemaVersion: SchemaVersion, Action: ActionSell, TokenAddress: testMint, Amount: -500},
		{SchemaVersion: -1, Action: ActionWait, TokenAddress: testMint, Confidence: 1e9},
	}
	for _, d := range garbage {
		require.NotPanics(t, func() {
			assert.False(t, v.Validate(d))
		})
	}
}

func TestWaitNeedsNoAmount(t *testing.T) {
	v := NewValidator(zap.NewNop())

	d := NewWait(testMint, "holding pattern")
	require.Zero(t, d.Amount)
	assert.True(t, v.Validate(d))
}
