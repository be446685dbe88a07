package models

import "sort"

// Validation rule identifiers produced by the response validator in
// addition to policy rule ids.
const (
	RuleInconclusive    = "INCONCLUSIVE"
	RuleUngroundedClaim = "UNGROUNDED_CLAIM"
)

// ValidationResult is the validator's verdict on a draft response.
type ValidationResult struct {
	Passed           bool     `json:"passed"`
	ViolatedRules    []string `json:"violatedRules,omitempty"`
	UngroundedClaims []string `json:"ungroundedClaims,omitempty"`
}

// Inconclusive is returned whenever the validator cannot complete its check.
func Inconclusive() ValidationResult {
	return ValidationResult{Passed: false, ViolatedRules: []string{RuleInconclusive}}
}

// NewValidationResult builds a result from a set of violated rule ids.
func NewValidationResult(violated map[string]bool, ungrounded []string) ValidationResult {
	rules := make([]string, 0, len(violated))
	for r := range violated {
		rules = append(rules, r)
	}
	sort.Strings(rules)
	return ValidationResult{
		Passed:           len(rules) == 0,
		ViolatedRules:    rules,
		UngroundedClaims: ungrounded,
	}
}

// Violates reports whether rule is among the violated rules.
func (v ValidationResult) Violates(rule string) bool {
	for _, r := range v.ViolatedRules {
		if r == rule {
			return true
		}
	}
	return false
}
