// Package api exposes the decision core over HTTP next to the health,
// readiness and metrics endpoints.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"support-agent/internal/agent/orchestrator"
	"support-agent/internal/common/database"
	apperrors "support-agent/internal/common/errors"
	"support-agent/internal/common/logger"
	"support-agent/internal/common/validation"
	"support-agent/internal/models"
)

const maxTicketBytes = 1 << 20

// TicketHandler is the decision surface behind POST /api/v1/tickets.
type TicketHandler interface {
	Handle(ctx context.Context, ticket *models.Ticket) orchestrator.Result
}

type Server struct {
	router  *chi.Mux
	core    TicketHandler
	pingers map[string]database.Pinger
	logger  logger.Logger
}

func NewServer(core TicketHandler, pingers map[string]database.Pinger, log logger.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:  router,
		core:    core,
		pingers: pingers,
		logger:  log.With(map[string]interface{}{"component": "api"}),
	}

	router.Get("/health", s.health)
	router.Get("/ready", s.ready)
	router.Handle("/metrics", promhttp.Handler())
	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/tickets", s.handleTicket)
	})
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// HTTPServer wraps the router with the configured timeouts. The write
// timeout must cover a full decision attempt.
func (s *Server) HTTPServer(port int, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if failed := database.CheckAll(ctx, s.pingers); len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  database.Summary(failed),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleTicket(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxTicketBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, apperrors.NewInvalidTicketError(err.Error()))
		return
	}
	if len(raw) > maxTicketBytes {
		writeError(w, http.StatusRequestEntityTooLarge, apperrors.NewInvalidTicketError("payload too large"))
		return
	}

	ticket, err := validation.DecodeTicket(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result := s.core.Handle(r.Context(), ticket)
	s.logger.Debug("ticket handled over http", map[string]interface{}{
		"ticketId":  ticket.ID,
		"outcome":   string(result.Outcome),
		"requestId": middleware.GetReqID(r.Context()),
	})
	writeJSON(w, http.StatusOK, result)
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := map[string]interface{}{"errorCode": string(apperrors.CodeOf(err)), "errorMessage": err.Error()}
	if se, ok := apperrors.AsStandard(err); ok {
		body["errorMessage"] = se.Message
		body["errorDetails"] = se.Details
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
