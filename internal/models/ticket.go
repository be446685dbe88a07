package models

import (
	"strings"
	"time"
)

// Role identifies who authored a conversation turn.
type Role string

const (
	RoleCustomer  Role = "customer"
	RoleAgent     Role = "agent"
	RoleAssistant Role = "assistant"
)

// Priority is the priority declared by the ingestion layer.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Turn is one prior message in the ticket's conversation.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Ticket is a normalized customer inquiry. It is created by ingestion and
// never mutated by the decision core.
type Ticket struct {
	ID         string    `json:"ticketId" db:"ticket_id"`
	CustomerID string    `json:"customerId" db:"customer_id"`
	Subject    string    `json:"subject" db:"subject"`
	Body       string    `json:"body" db:"description"`
	Channel    string    `json:"channel" db:"channel"`
	Priority   Priority  `json:"priority" db:"priority"`
	ArrivedAt  time.Time `json:"arrivedAt" db:"created_at"`
	History    []Turn    `json:"history,omitempty"`
}

// Text returns subject and body joined, the text every stage reasons over.
func (t *Ticket) Text() string {
	subject := strings.TrimSpace(t.Subject)
	body := strings.TrimSpace(t.Body)
	switch {
	case subject == "":
		return body
	case body == "":
		return subject
	default:
		return subject + "\n" + body
	}
}

// CustomerTurns returns the customer-authored turns in order, followed by
// the ticket body as the latest customer message.
func (t *Ticket) CustomerTurns() []string {
	out := make([]string, 0, len(t.History)+1)
	for _, turn := range t.History {
		if turn.Role == RoleCustomer {
			out = append(out, turn.Text)
		}
	}
	if strings.TrimSpace(t.Body) != "" {
		out = append(out, t.Body)
	}
	return out
}

// CustomerContext carries what the core knows about the customer that
// raised the ticket.
type CustomerContext struct {
	CustomerID string `json:"customerId"`
	Tier       string `json:"tier"`
}
