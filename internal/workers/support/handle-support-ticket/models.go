package handlesupportticket

// Output is written back to the process instance.
type Output struct {
	TicketID         string   `json:"ticketId"`
	Outcome          string   `json:"outcome"`
	Escalated        bool     `json:"escalated"`
	Draft            string   `json:"draft,omitempty"`
	Reasons          []string `json:"reasons"`
	Category         string   `json:"category"`
	Confidence       float64  `json:"confidence"`
	Urgency          float64  `json:"urgency"`
	ValidationPassed bool     `json:"validationPassed"`
	ViolatedRules    []string `json:"violatedRules,omitempty"`
	AuditEvents      int      `json:"auditEvents"`
}
