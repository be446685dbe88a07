// Package conversation derives the conversation state of a ticket from its
// full turn history.
package conversation

import (
	"strings"

	"support-agent/internal/common/text"
	"support-agent/internal/models"
)

var defaultPhrases = []string{
	"speak to a human", "talk to a human", "speak to a person", "talk to a person",
	"real person", "human agent", "live agent", "speak to an agent", "talk to an agent",
	"speak to someone", "talk to someone",
	"speak to a manager", "talk to a manager", "speak with a manager",
	"speak to a supervisor", "talk to a supervisor", "speak with a supervisor",
	"speak to a representative", "talk to a representative", "speak with a representative",
}

type Config struct {
	SentimentAlpha  float64
	ExplicitPhrases []string
}

// Analyzer is stateless and safe for concurrent use.
type Analyzer struct {
	alpha   float64
	phrases []string
}

func NewAnalyzer(config Config, extraPhrases ...string) *Analyzer {
	alpha := config.SentimentAlpha
	if alpha <= 0 || alpha > 1 {
		alpha = 0.5
	}
	phrases := config.ExplicitPhrases
	if len(phrases) == 0 {
		phrases = defaultPhrases
	}
	seen := make(map[string]bool)
	var merged []string
	for _, p := range append(append([]string{}, phrases...), extraPhrases...) {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		merged = append(merged, p)
	}
	return &Analyzer{alpha: alpha, phrases: merged}
}

// Analyze recomputes the state from scratch. TurnCount counts every prior
// turn plus the incoming message.
func (a *Analyzer) Analyze(ticket *models.Ticket) models.ConversationState {
	turns := len(ticket.History)
	if strings.TrimSpace(ticket.Body) != "" {
		turns++
	}

	customer := ticket.CustomerTurns()
	scores := make([]float64, len(customer))
	for i, msg := range customer {
		scores[i] = Score(msg)
	}

	return models.ConversationState{
		TurnCount:            turns,
		SentimentTrend:       Trend(scores, a.alpha),
		ExplicitAgentRequest: a.pendingAgentRequest(ticket),
	}
}

// pendingAgentRequest reports whether a customer asked for a human after
// the last human agent reply.
func (a *Analyzer) pendingAgentRequest(ticket *models.Ticket) bool {
	if a.RequestsAgent(ticket.Body) {
		return true
	}
	for i := len(ticket.History) - 1; i >= 0; i-- {
		turn := ticket.History[i]
		if turn.Role == models.RoleAgent {
			return false
		}
		if turn.Role == models.RoleCustomer && a.RequestsAgent(turn.Text) {
			return true
		}
	}
	return false
}

// RequestsAgent reports whether message contains one of the explicit
// request phrases.
func (a *Analyzer) RequestsAgent(message string) bool {
	for _, p := range a.phrases {
		if text.ContainsPhrase(message, p) {
			return true
		}
	}
	return false
}
