package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// CreditRule is the policy a category applies to new dette requests.
type CreditRule int

const (
	// RuleUnrestricted allows any request.
	RuleUnrestricted CreditRule = iota
	// RuleNoUnpaidDebt rejects a request while any dette has amount_due > 0.
	RuleNoUnpaidDebt
	// RuleCapped rejects a request once summed amount_due reaches the client's cap.
	RuleCapped
)

func (r CreditRule) String() string {
	switch r {
	case RuleNoUnpaidDebt:
		return "no-unpaid-debt"
	case RuleCapped:
		return "capped"
	default:
		return "unrestricted"
	}
}

// CapMode selects how RuleCapped compares outstanding debt to the cap.
type CapMode string

const (
	// CapModeLenient compares only existing debt: sum >= cap.
	// A single request may therefore push the client past the cap.
	CapModeLenient CapMode = "lenient"
	// CapModeStrict includes the new request: sum + amount >= cap.
	CapModeStrict CapMode = "strict"
)

// ParseCapMode parses a configuration value. Empty input yields the lenient default.
func ParseCapMode(s string) (CapMode, error) {
	switch CapMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", CapModeLenient:
		return CapModeLenient, nil
	case CapModeStrict:
		return CapModeStrict, nil
	default:
		return "", fmt.Errorf("unknown credit cap mode %q (want lenient or strict)", s)
	}
}

// CreditSnapshot is the state the policy needs about a client at request time.
type CreditSnapshot struct {
	ClientID       int
	CategoryLabel  string
	MaxOutstanding *decimal.Decimal
	AmountsDue     []decimal.Decimal // amount_due of every existing dette
}

// TotalDue sums AmountsDue.
func (c CreditSnapshot) TotalDue() decimal.Decimal {
	total := decimal.Zero
	for _, d := range c.AmountsDue {
		total = total.Add(d)
	}
	return total
}

// HasUnpaid reports whether any existing dette still has money owed.
func (c CreditSnapshot) HasUnpaid() bool {
	for _, d := range c.AmountsDue {
		if d.IsPositive() {
			return true
		}
	}
	return false
}

// CreditPolicy maps category labels to credit rules.
// Labels not in the table are unrestricted.
type CreditPolicy struct {
	rules map[string]CreditRule
	mode  CapMode
}

// NewCreditPolicy returns the standard Bronze/Silver/Gold table.
func NewCreditPolicy(mode CapMode) *CreditPolicy {
	if mode == "" {
		mode = CapModeLenient
	}
	return &CreditPolicy{
		rules: map[string]CreditRule{
			CategoryBronze: RuleNoUnpaidDebt,
			CategorySilver: RuleCapped,
			CategoryGold:   RuleUnrestricted,
		},
		mode: mode,
	}
}

// WithRule registers (or replaces) the rule for a category label.
func (p *CreditPolicy) WithRule(label string, rule CreditRule) *CreditPolicy {
	p.rules[label] = rule
	return p
}

// Mode returns the configured cap comparison mode.
func (p *CreditPolicy) Mode() CapMode { return p.mode }

// RuleFor returns the rule that applies to a category label.
func (p *CreditPolicy) RuleFor(label string) CreditRule {
	if r, ok := p.rules[label]; ok {
		return r
	}
	return RuleUnrestricted
}

// Check decides whether a client may open a new dette of the given amount.
// It returns a PolicyViolation *Error or nil.
func (p *CreditPolicy) Check(snap CreditSnapshot, amount decimal.Decimal) error {
	switch p.RuleFor(snap.CategoryLabel) {
	case RuleNoUnpaidDebt:
		if snap.HasUnpaid() {
			return Errorf(KindPolicyViolation,
				"%s clients cannot request a new dette while a previous one is unpaid", snap.CategoryLabel)
		}
	case RuleCapped:
		if snap.MaxOutstanding == nil {
			return nil
		}
		exposure := snap.TotalDue()
		if p.mode == CapModeStrict {
			exposure = exposure.Add(amount)
		}
		if exposure.GreaterThanOrEqual(*snap.MaxOutstanding) {
			return Errorf(KindPolicyViolation,
				"maximum outstanding debt reached for %s clients. Limit: %s",
				snap.CategoryLabel, snap.MaxOutstanding.StringFixed(2))
		}
	}
	return nil
}
