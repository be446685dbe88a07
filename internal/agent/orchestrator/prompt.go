package orchestrator

import (
	"fmt"
	"strings"

	"support-agent/internal/common/llm"
	"support-agent/internal/models"
)

const systemPrompt = "You are a customer support assistant. Answer the customer's question based ONLY on the provided knowledge base excerpts."

// maxHistoryTurns bounds how much prior conversation goes into the prompt.
const maxHistoryTurns = 6

func buildPrompt(ticket *models.Ticket, classification models.Classification, customer models.CustomerContext) llm.Prompt {
	var parts []string

	parts = append(parts, fmt.Sprintf("Customer tier: %s", customer.Tier))
	if !classification.IsSentinel() {
		parts = append(parts, fmt.Sprintf("Category: %s", classification.Category))
	}

	history := ticket.History
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	if len(history) > 0 {
		parts = append(parts, "\nConversation so far:")
		for _, turn := range history {
			parts = append(parts, fmt.Sprintf("%s: %s", turn.Role, strings.TrimSpace(turn.Text)))
		}
	}

	parts = append(parts, "\nCustomer message:")
	parts = append(parts, ticket.Text())

	parts = append(parts, "\nInstructions:")
	parts = append(parts, "- Only state facts found in the excerpts")
	parts = append(parts, "- If the excerpts do not answer the question, say so clearly")
	parts = append(parts, "- Do not promise refunds, credits or legal outcomes")
	parts = append(parts, "- Keep the reply concise and professional")

	return llm.Prompt{System: systemPrompt, User: strings.Join(parts, "\n")}
}
