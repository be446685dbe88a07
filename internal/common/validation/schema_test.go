package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "support-agent/internal/common/errors"
	"support-agent/internal/models"
)

func TestValidateTicket(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		valid      bool
		errorField string
	}{
		{
			name:    "minimal ticket",
			payload: `{"ticketId":"T-1","customerId":"C-1","body":"My invoice is wrong"}`,
			valid:   true,
		},
		{
			name:    "with history",
			payload: `{"ticketId":"T-2","customerId":"C-1","body":"still broken","history":[{"role":"customer","text":"hi"}]}`,
			valid:   true,
		},
		{
			name:       "missing body",
			payload:    `{"ticketId":"T-3","customerId":"C-1"}`,
			valid:      false,
			errorField: "(root)",
		},
		{
			name:       "bad channel",
			payload:    `{"ticketId":"T-4","customerId":"C-1","body":"x","channel":"fax"}`,
			valid:      false,
			errorField: "channel",
		},
		{
			name:       "bad history role",
			payload:    `{"ticketId":"T-5","customerId":"C-1","body":"x","history":[{"role":"bot","text":"hi"}]}`,
			valid:      false,
			errorField: "history.0.role",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ValidateTicket([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.valid, res.Valid, res.GetErrorMessages())
			if tt.errorField != "" {
				assert.True(t, res.HasErrors(tt.errorField), res.GetErrorMessages())
			}
		})
	}
}

func TestCompile_Invalid(t *testing.T) {
	_, err := Compile(`{"type": 12}`)
	assert.Error(t, err)
}

func TestValidate_GoValue(t *testing.T) {
	s := MustCompile(`{"type":"object","required":["id"],"properties":{"id":{"type":"string"}}}`)
	res, err := s.Validate(map[string]interface{}{"id": 5})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.True(t, res.HasErrors("id"))
}

func TestDecodeTicket(t *testing.T) {
	raw := []byte(`{"ticketId":"T-1","customerId":"C-1","subject":"Refund","body":"Where is my refund?",` +
		`"arrivedAt":"2026-03-01T10:00:00Z","history":[{"role":"customer","text":"hello","at":"2026-03-01T09:00:00Z"}]}`)

	ticket, err := DecodeTicket(raw)
	require.NoError(t, err)
	assert.Equal(t, "T-1", ticket.ID)
	assert.Equal(t, models.PriorityMedium, ticket.Priority)
	assert.Equal(t, 2026, ticket.ArrivedAt.Year())
	require.Len(t, ticket.History, 1)
	assert.Equal(t, models.RoleCustomer, ticket.History[0].Role)
}

func TestDecodeTicket_Invalid(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"ticketId":"T-1","customerId":"C-1"}`,
		`{"ticketId":"T-1","customerId":"C-1","body":"x","arrivedAt":"yesterday"}`,
	} {
		_, err := DecodeTicket([]byte(raw))
		require.Error(t, err, raw)
		assert.Equal(t, apperrors.ErrCodeInvalidTicket, apperrors.CodeOf(err))
	}
}
