// Package escalation holds the policy that decides between auto-resolving
// a ticket and handing it to a human.
package escalation

import (
	"sort"
	"strings"

	"support-agent/internal/common/text"
	"support-agent/internal/models"
)

type Config struct {
	ConfidenceFloor     float64
	TurnLimit           int
	SentimentFloor      float64
	RegulatedKeywords   []string
	RegulatedCategories []string
}

func DefaultConfig() Config {
	return Config{
		ConfidenceFloor:     0.75,
		TurnLimit:           8,
		SentimentFloor:      -0.3,
		RegulatedCategories: []string{string(models.CategoryLegal)},
	}
}

// Input is everything one decision depends on.
type Input struct {
	Classification  models.Classification
	State           models.ConversationState
	Validation      models.ValidationResult
	ExplicitRequest bool
	// Body is the ticket text scanned for regulated keywords.
	Body string
}

// Engine is immutable after construction and safe for concurrent use.
type Engine struct {
	config     Config
	keywords   []string
	categories map[models.Category]bool
}

// New merges the configured regulated keywords with any supplied by the
// policy rule set.
func New(config Config, policyKeywords ...string) *Engine {
	seen := make(map[string]bool)
	var keywords []string
	for _, k := range append(append([]string{}, config.RegulatedKeywords...), policyKeywords...) {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keywords = append(keywords, k)
	}
	sort.Strings(keywords)

	categories := make(map[models.Category]bool, len(config.RegulatedCategories))
	for _, c := range config.RegulatedCategories {
		categories[models.Category(strings.TrimSpace(c))] = true
	}
	return &Engine{config: config, keywords: keywords, categories: categories}
}

// Decide evaluates every rule in order without short-circuiting so the
// decision records all triggers. It is a total function of in.
func (e *Engine) Decide(in Input) models.EscalationDecision {
	explicit := in.ExplicitRequest || in.State.ExplicitAgentRequest
	matched := e.regulatedMatches(in.Classification.Category, in.Body)

	reasons := make([]models.Reason, 0, 6)
	if explicit {
		reasons = append(reasons, models.ReasonExplicitRequest)
	}
	if in.Classification.Confidence < e.config.ConfidenceFloor {
		reasons = append(reasons, models.ReasonLowConfidence)
	}
	if in.State.TurnCount > e.config.TurnLimit {
		reasons = append(reasons, models.ReasonLongConversation)
	}
	if in.State.SentimentTrend < e.config.SentimentFloor {
		reasons = append(reasons, models.ReasonNegativeSentiment)
	}
	if len(matched) > 0 {
		reasons = append(reasons, models.ReasonRegulatedKeyword)
	}
	if !in.Validation.Passed {
		reasons = append(reasons, models.ReasonValidationFailed)
	}

	outcome := models.OutcomeAutoResolve
	if len(reasons) > 0 {
		outcome = models.OutcomeEscalate
	}
	return models.EscalationDecision{
		Outcome: outcome,
		Reasons: reasons,
		Signals: models.Signals{
			Confidence:       in.Classification.Confidence,
			TurnCount:        in.State.TurnCount,
			SentimentTrend:   in.State.SentimentTrend,
			ValidationPassed: in.Validation.Passed,
			ExplicitRequest:  explicit,
			MatchedKeywords:  matched,
			ViolatedRules:    in.Validation.ViolatedRules,
		},
	}
}

// regulatedMatches returns the regulated keywords found in body, prefixed
// by "category:<name>" when the category itself is regulated.
func (e *Engine) regulatedMatches(category models.Category, body string) []string {
	var matched []string
	if e.categories[category] {
		matched = append(matched, "category:"+string(category))
	}
	if body == "" {
		return matched
	}
	for _, k := range e.keywords {
		if text.ContainsPhrase(body, k) {
			matched = append(matched, k)
		}
	}
	return matched
}

// Forced builds the decision for orchestrator-level escalations such as
// RATE_LIMITED that bypass the rule evaluation.
func Forced(reason models.Reason) models.EscalationDecision {
	return models.EscalationDecision{
		Outcome: models.OutcomeEscalate,
		Reasons: []models.Reason{reason},
	}
}
