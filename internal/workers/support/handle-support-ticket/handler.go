package handlesupportticket

import (
	"context"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"support-agent/internal/agent/orchestrator"
	"support-agent/internal/common/errors"
	"support-agent/internal/common/logger"
	"support-agent/internal/common/metrics"
	"support-agent/internal/common/validation"
	"support-agent/internal/models"
)

const TaskType = "handle-support-ticket"

// TicketHandler is the decision surface the worker drives.
type TicketHandler interface {
	Handle(ctx context.Context, ticket *models.Ticket) orchestrator.Result
}

type Handler struct {
	config       *Config
	core         TicketHandler
	logger       logger.Logger
	errorHandler *errors.ErrorHandler
}

func NewHandler(config *Config, core TicketHandler, log logger.Logger) *Handler {
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		core:         core,
		logger:       l,
		errorHandler: errors.NewErrorHandler(l),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.Execute(ctx, []byte(job.Variables))
	if err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.CodeOf(err))).Inc()
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
}

// Execute decodes the ticket from the job variables and runs one decision
// attempt. Only a malformed ticket is an error; every decision, including
// an escalation, completes the job.
func (h *Handler) Execute(ctx context.Context, variables []byte) (*Output, error) {
	ticket, err := validation.DecodeTicket(variables)
	if err != nil {
		return nil, err
	}

	res := h.core.Handle(ctx, ticket)
	return &Output{
		TicketID:         res.TicketID,
		Outcome:          string(res.Outcome),
		Escalated:        res.Outcome == models.StateEscalated,
		Draft:            res.Draft,
		Reasons:          res.Decision.ReasonStrings(),
		Category:         string(res.Classification.Category),
		Confidence:       res.Classification.Confidence,
		Urgency:          res.Classification.Urgency,
		ValidationPassed: res.Validation.Passed,
		ViolatedRules:    res.Validation.ViolatedRules,
		AuditEvents:      len(res.AuditTrail),
	}, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	h.logger.Info("job completed", map[string]interface{}{
		"jobKey":  job.Key,
		"outcome": output.Outcome,
	})
}
