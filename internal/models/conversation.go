package models

// ConversationState is derived from a ticket's full turn history on every
// processing attempt.
type ConversationState struct {
	TurnCount            int     `json:"turnCount"`
	SentimentTrend       float64 `json:"sentimentTrend"`
	ExplicitAgentRequest bool    `json:"explicitAgentRequest"`
}
