package models

import "time"

// TicketState is a state of the per-attempt processing state machine.
type TicketState string

const (
	StateReceived         TicketState = "RECEIVED"
	StateRateChecked      TicketState = "RATE_CHECKED"
	StateClassified       TicketState = "CLASSIFIED"
	StateContextRetrieved TicketState = "CONTEXT_RETRIEVED"
	StateDrafted          TicketState = "DRAFTED"
	StateValidated        TicketState = "VALIDATED"
	StateDecided          TicketState = "DECIDED"
	StateResolved         TicketState = "RESOLVED"
	StateEscalated        TicketState = "ESCALATED"
)

// IsTerminal reports whether s ends an attempt.
func (s TicketState) IsTerminal() bool {
	return s == StateResolved || s == StateEscalated
}

// AuditEvent is emitted once per state transition.
type AuditEvent struct {
	EventID    string                 `json:"eventId"`
	TicketID   string                 `json:"ticketId"`
	CustomerID string                 `json:"customerId"`
	Stage      string                 `json:"stage"`
	From       TicketState            `json:"from"`
	To         TicketState            `json:"to"`
	ElapsedMs  int64                  `json:"elapsedMs"`
	Reasons    []string               `json:"reasons,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	At         time.Time              `json:"at"`
}
