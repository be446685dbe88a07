package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support-agent/internal/agent/orchestrator"
	"support-agent/internal/common/database"
	"support-agent/internal/common/logger"
	"support-agent/internal/models"
)

type stubCore struct {
	calls int
}

func (s *stubCore) Handle(_ context.Context, t *models.Ticket) orchestrator.Result {
	s.calls++
	return orchestrator.Result{
		TicketID: t.ID,
		Outcome:  models.StateEscalated,
		Decision: models.EscalationDecision{
			Outcome: models.OutcomeEscalate,
			Reasons: []models.Reason{models.ReasonExplicitRequest},
		},
	}
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func serve(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := NewServer(&stubCore{}, nil, logger.NewTestLogger(t))
	w := serve(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}

func TestReady(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	s := NewServer(&stubCore{}, map[string]database.Pinger{"redis": ok}, logger.NewTestLogger(t))
	assert.Equal(t, http.StatusOK, serve(s, http.MethodGet, "/ready", "").Code)

	s = NewServer(&stubCore{}, map[string]database.Pinger{"redis": ok, "elasticsearch": down}, logger.NewTestLogger(t))
	w := serve(s, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "elasticsearch: connection refused")
}

func TestMetrics(t *testing.T) {
	s := NewServer(&stubCore{}, nil, logger.NewTestLogger(t))
	w := serve(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPostTicket(t *testing.T) {
	core := &stubCore{}
	s := NewServer(core, nil, logger.NewTestLogger(t))

	w := serve(s, http.MethodPost, "/api/v1/tickets", `{"ticketId":"T-1","customerId":"C-1","body":"speak to a human"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var res orchestrator.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "T-1", res.TicketID)
	assert.Equal(t, models.StateEscalated, res.Outcome)
	assert.Equal(t, []models.Reason{models.ReasonExplicitRequest}, res.Decision.Reasons)
	assert.Equal(t, 1, core.calls)
}

func TestPostTicket_Invalid(t *testing.T) {
	core := &stubCore{}
	s := NewServer(core, nil, logger.NewTestLogger(t))

	w := serve(s, http.MethodPost, "/api/v1/tickets", `{"ticketId":"T-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "INVALID_TICKET", body["errorCode"])
	assert.Equal(t, 0, core.calls)
}

func TestPostTicket_TooLarge(t *testing.T) {
	s := NewServer(&stubCore{}, nil, logger.NewTestLogger(t))
	w := serve(s, http.MethodPost, "/api/v1/tickets", strings.Repeat("x", maxTicketBytes+10))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestUnknownRoute(t *testing.T) {
	s := NewServer(&stubCore{}, nil, logger.NewTestLogger(t))
	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodGet, "/nope", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(s, http.MethodGet, "/api/v1/tickets", "").Code)
}
