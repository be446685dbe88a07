package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	apperrors "support-agent/internal/common/errors"
	"support-agent/internal/models"
)

// TicketSchema describes the normalized ticket accepted by the HTTP and
// job-worker ingestion adapters.
const TicketSchema = `{
  "type": "object",
  "required": ["ticketId", "customerId", "body"],
  "properties": {
    "ticketId":   {"type": "string", "minLength": 1, "maxLength": 128},
    "customerId": {"type": "string", "minLength": 1, "maxLength": 128},
    "subject":    {"type": "string", "maxLength": 512},
    "body":       {"type": "string", "minLength": 1, "maxLength": 20000},
    "channel":    {"type": "string", "enum": ["email", "chat", "web", "phone", "api"]},
    "priority":   {"type": "string", "enum": ["low", "medium", "high", "urgent"]},
    "arrivedAt":  {"type": "string", "format": "date-time"},
    "history": {
      "type": "array",
      "maxItems": 200,
      "items": {
        "type": "object",
        "required": ["role", "text"],
        "properties": {
          "role": {"type": "string", "enum": ["customer", "agent", "assistant"]},
          "text": {"type": "string"},
          "at":   {"type": "string", "format": "date-time"}
        }
      }
    }
  }
}`

var ticketSchema = MustCompile(TicketSchema)

// ValidateTicket checks a raw ticket payload.
func ValidateTicket(raw []byte) (*ValidationResult, error) {
	return ticketSchema.ValidateJSON(raw)
}

// DecodeTicket validates raw against TicketSchema and decodes it. Every
// failure is an INVALID_TICKET error.
func DecodeTicket(raw []byte) (*models.Ticket, error) {
	result, err := ValidateTicket(raw)
	if err != nil {
		return nil, apperrors.NewInvalidTicketError(err.Error())
	}
	if !result.Valid {
		return nil, apperrors.NewInvalidTicketError(strings.Join(result.GetErrorMessages(), "; "))
	}

	var ticket models.Ticket
	if err := json.Unmarshal(raw, &ticket); err != nil {
		return nil, apperrors.NewInvalidTicketError(fmt.Sprintf("decode ticket: %v", err))
	}
	if ticket.Priority == "" {
		ticket.Priority = models.PriorityMedium
	}
	return &ticket, nil
}
