package models

// Outcome of the escalation policy.
type Outcome string

const (
	OutcomeAutoResolve Outcome = "AUTO_RESOLVE"
	OutcomeEscalate    Outcome = "ESCALATE"
)

// Reason is a tag recording why a ticket escalated.
type Reason string

const (
	ReasonExplicitRequest   Reason = "EXPLICIT_REQUEST"
	ReasonLowConfidence     Reason = "LOW_CONFIDENCE"
	ReasonLongConversation  Reason = "LONG_CONVERSATION"
	ReasonNegativeSentiment Reason = "NEGATIVE_SENTIMENT"
	ReasonRegulatedKeyword  Reason = "REGULATED_KEYWORD"
	ReasonValidationFailed  Reason = "VALIDATION_FAILED"
	ReasonRateLimited       Reason = "RATE_LIMITED"
	ReasonCapacityExhausted Reason = "CAPACITY_EXHAUSTED"
	ReasonProcessingError   Reason = "PROCESSING_ERROR"
)

// Signals are the numeric inputs that produced a decision.
type Signals struct {
	Confidence       float64  `json:"confidence"`
	TurnCount        int      `json:"turnCount"`
	SentimentTrend   float64  `json:"sentimentTrend"`
	ValidationPassed bool     `json:"validationPassed"`
	ExplicitRequest  bool     `json:"explicitRequest"`
	MatchedKeywords  []string `json:"matchedKeywords,omitempty"`
	ViolatedRules    []string `json:"violatedRules,omitempty"`
}

// EscalationDecision is the immutable audit record of the escalation policy.
type EscalationDecision struct {
	Outcome Outcome  `json:"outcome"`
	Reasons []Reason `json:"reasons"`
	Signals Signals  `json:"signals"`
}

// HasReason reports whether r was triggered.
func (d EscalationDecision) HasReason(r Reason) bool {
	for _, got := range d.Reasons {
		if got == r {
			return true
		}
	}
	return false
}

// ReasonStrings returns the reasons as plain strings.
func (d EscalationDecision) ReasonStrings() []string {
	out := make([]string, len(d.Reasons))
	for i, r := range d.Reasons {
		out[i] = string(r)
	}
	return out
}
