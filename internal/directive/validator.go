// internal/directive/validator.go
package directive

import (
	"go.uber.org/zap"
)

// minTokenAddressLen is a sanity floor; base58 Solana addresses are 32-44
// characters.
const minTokenAddressLen = 32

// Validator is the hard gate in front of the executor: a directive that fails
// here is dropped and must never reach execution. Validate is pure aside from
// logging the violated field.
type Validator struct {
	logger *zap.Logger
}

// NewValidator creates a directive validator.
func NewValidator(logger *zap.Logger) *Validator {
	return &Validator{logger: logger.Named("validator")}
}

// Validate reports whether d satisfies the directive contract.
func (v *Validator) Validate(d TradeDirective) bool {
	if d.SchemaVersion != SchemaVersion {
		return v.reject(d, "schema_version")
	}

	switch d.Action {
	case ActionBuy, ActionSell, ActionWait:
	default:
		return v.reject(d, "action")
	}

	if len(d.TokenAddress) < minTokenAddressLen {
		return v.reject(d, "token_address")
	}

	if d.Action == ActionBuy || d.Action == ActionSell {
		if d.Amount <= 0 {
			return v.reject(d, "amount")
		}
	}

	if d.Confidence < 0 || d.Confidence > 100 {
		return v.reject(d, "confidence")
	}

	switch d.Priority {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
	default:
		return v.reject(d, "priority")
	}

	switch d.Profile.Personality {
	case PersonalityConservative, PersonalityBalanced, PersonalityAggressive, PersonalityDegen:
	default:
		return v.reject(d, "execution_profile.personality")
	}

	switch d.Profile.Urgency {
	case UrgencyImmediate, UrgencyNormal, UrgencyPatient:
	default:
		return v.reject(d, "execution_profile.urgency")
	}

	switch d.Profile.Stealth {
	case StealthLoud, StealthNormal, StealthSilent:
	default:
		return v.reject(d, "execution_profile.stealth")
	}

	if d.Timestamp.IsZero() {
		return v.reject(d, "timestamp")
	}

	return true
}

func (v *Validator) reject(d TradeDirective, field string) bool {
	v.logger.Warn("Directive rejected",
		zap.String("field", field),
		zap.String("action", string(d.Action)),
		zap.String("token", d.TokenAddress))
	return false
}
