// Package orchestrator runs one ticket-processing attempt through the
// decision pipeline and turns it into RESOLVED or ESCALATED.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"support-agent/internal/agent/escalation"
	"support-agent/internal/audit"
	apperrors "support-agent/internal/common/errors"
	"support-agent/internal/common/llm"
	"support-agent/internal/common/logger"
	"support-agent/internal/common/metrics"
	"support-agent/internal/common/observability"
	"support-agent/internal/models"
	"support-agent/pkg/registry"
)

// Stage names used in audit events, metrics and spans.
const (
	StageAdmit    = "admit"
	StageRate     = "rate_check"
	StageClassify = "classify"
	StageRetrieve = "retrieve"
	StageDraft    = "draft"
	StageValidate = "validate"
	StageDecide   = "decide"
	StageFinalize = "finalize"
)

type RateLimiter interface {
	Allow(customerID string) bool
}

type Classifier interface {
	Classify(ctx context.Context, ticket *models.Ticket) models.Classification
}

type Retriever interface {
	Retrieve(ctx context.Context, query string, customer models.CustomerContext, k int) models.RetrievedContext
}

type CustomerDirectory interface {
	Lookup(ctx context.Context, customerID string) models.CustomerContext
}

type Validator interface {
	Validate(ctx context.Context, draft string, retrieved models.RetrievedContext, rules []registry.CompiledRule, humanPath bool) models.ValidationResult
}

type ConversationAnalyzer interface {
	Analyze(ticket *models.Ticket) models.ConversationState
}

type Config struct {
	MaxInFlight     int
	QueueTimeout    time.Duration
	ClassifyTimeout time.Duration
	RetrieveTimeout time.Duration
	DraftTimeout    time.Duration
	ValidateTimeout time.Duration
	// K is the number of chunks requested from the retriever. Zero uses
	// the retriever's default.
	K int
}

// Deps are the injected collaborators. Customers, Audit and Observability
// are optional.
type Deps struct {
	Limiter       RateLimiter
	Classifier    Classifier
	Retriever     Retriever
	Customers     CustomerDirectory
	Drafter       llm.Drafter
	Validator     Validator
	Conversation  ConversationAnalyzer
	Escalation    *escalation.Engine
	Policy        *registry.Policy
	Audit         audit.Recorder
	Observability *observability.Observability
}

// Result is the outcome of one attempt. Outcome is RESOLVED or ESCALATED.
type Result struct {
	TicketID       string                    `json:"ticketId"`
	Outcome        models.TicketState        `json:"outcome"`
	Draft          string                    `json:"draft,omitempty"`
	Classification models.Classification     `json:"classification"`
	Validation     models.ValidationResult   `json:"validation"`
	Decision       models.EscalationDecision `json:"decision"`
	AuditTrail     []models.AuditEvent       `json:"auditTrail"`
}

type Orchestrator struct {
	config Config
	deps   Deps
	sem    *semaphore.Weighted
	logger logger.Logger
	now    func() time.Time
}

func New(config Config, deps Deps, log logger.Logger) *Orchestrator {
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = 32
	}
	if deps.Observability == nil {
		deps.Observability = observability.NewNoop()
	}
	if deps.Escalation == nil {
		deps.Escalation = escalation.New(escalation.DefaultConfig())
	}
	return &Orchestrator{
		config: config,
		deps:   deps,
		sem:    semaphore.NewWeighted(int64(config.MaxInFlight)),
		logger: log.With(map[string]interface{}{"component": "orchestrator"}),
		now:    time.Now,
	}
}

// Handle processes one attempt. It never returns an error and never lets a
// panic escape: every path ends in RESOLVED or ESCALATED.
func (o *Orchestrator) Handle(ctx context.Context, ticket *models.Ticket) (result Result) {
	if ticket == nil {
		o.logger.Error("rejecting nil ticket", nil)
		a := &attempt{o: o, ticket: &models.Ticket{}, state: models.StateReceived}
		a.result.Decision = escalation.Forced(models.ReasonProcessingError)
		a.finish(ctx, StageAdmit, models.StateEscalated, o.now())
		return a.result
	}

	a := &attempt{o: o, ticket: ticket, state: models.StateReceived}
	a.result.TicketID = ticket.ID

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("ticket processing panicked", map[string]interface{}{
				"ticketId": a.ticket.ID,
				"state":    a.state,
				"panic":    fmt.Sprint(r),
			})
			a.result.Decision = escalation.Forced(models.ReasonProcessingError)
			a.finish(ctx, StageFinalize, models.StateEscalated, o.now())
			result = a.result
		}
	}()

	if !o.admit(ctx) {
		a.result.Decision = escalation.Forced(models.ReasonCapacityExhausted)
		a.finish(ctx, StageAdmit, models.StateEscalated, o.now())
		return a.result
	}
	defer o.release()

	a.run(ctx)
	return a.result
}

// admit waits for a processing slot for at most QueueTimeout.
func (o *Orchestrator) admit(ctx context.Context) bool {
	qctx := ctx
	if o.config.QueueTimeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, o.config.QueueTimeout)
		defer cancel()
	}
	if err := o.sem.Acquire(qctx, 1); err != nil {
		o.logger.Warn("no processing slot available", map[string]interface{}{
			"error": err,
		})
		return false
	}
	metrics.InFlight.Inc()
	return true
}

func (o *Orchestrator) release() {
	metrics.InFlight.Dec()
	o.sem.Release(1)
}

// stageContext applies a per-stage timeout when one is configured.
func stageContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// attempt is the per-attempt processing context. Nothing in it outlives
// Handle.
type attempt struct {
	o      *Orchestrator
	ticket *models.Ticket
	state  models.TicketState
	result Result
}

func (a *attempt) run(ctx context.Context) {
	o := a.o
	d := o.deps
	t := a.ticket

	start := o.now()
	if d.Limiter != nil && !d.Limiter.Allow(t.CustomerID) {
		a.result.Decision = escalation.Forced(models.ReasonRateLimited)
		a.finish(ctx, StageRate, models.StateEscalated, start)
		return
	}
	a.transition(ctx, StageRate, models.StateRateChecked, start, nil, nil)

	conversation := d.Conversation.Analyze(t)

	start = o.now()
	sctx, span := d.Observability.StartSpan(ctx, StageClassify, t.ID)
	cctx, cancel := stageContext(sctx, o.config.ClassifyTimeout)
	classification := d.Classifier.Classify(cctx, t)
	cancel()
	span.End()
	a.result.Classification = classification
	a.transition(ctx, StageClassify, models.StateClassified, start, nil, map[string]interface{}{
		"category":   string(classification.Category),
		"confidence": classification.Confidence,
		"urgency":    classification.Urgency,
	})

	start = o.now()
	sctx, span = d.Observability.StartSpan(ctx, StageRetrieve, t.ID)
	rctx, cancel := stageContext(sctx, o.config.RetrieveTimeout)
	customer := models.CustomerContext{CustomerID: t.CustomerID, Tier: "standard"}
	if d.Customers != nil {
		customer = d.Customers.Lookup(rctx, t.CustomerID)
	}
	retrieved := d.Retriever.Retrieve(rctx, t.Text(), customer, o.config.K)
	cancel()
	span.End()
	a.transition(ctx, StageRetrieve, models.StateContextRetrieved, start, nil, map[string]interface{}{
		"chunks":    retrieved.Len(),
		"tier":      customer.Tier,
		"documents": retrieved.SourceDocuments(),
	})

	start = o.now()
	sctx, span = d.Observability.StartSpan(ctx, StageDraft, t.ID)
	dctx, cancel := stageContext(sctx, o.config.DraftTimeout)
	completion, err := d.Drafter.Draft(dctx, buildPrompt(t, classification, customer), retrieved)
	cancel()
	span.End()
	draftAttrs := map[string]interface{}{}
	if err != nil {
		// a cancelled model call may still be billed; it is logged, not retried
		o.logger.Warn("draft unavailable", map[string]interface{}{
			"ticketId": t.ID,
			"error":    err,
			"code":     apperrors.CodeOf(err),
		})
		draftAttrs["error"] = string(apperrors.CodeOf(err))
		completion = llm.Completion{}
	} else {
		draftAttrs["provider"] = completion.Provider
		draftAttrs["model"] = completion.Model
		draftAttrs["outputTokens"] = completion.Usage.OutputTokens
	}
	a.result.Draft = completion.Text
	a.transition(ctx, StageDraft, models.StateDrafted, start, nil, draftAttrs)

	start = o.now()
	sctx, span = d.Observability.StartSpan(ctx, StageValidate, t.ID)
	vctx, cancel := stageContext(sctx, o.config.ValidateTimeout)
	humanPath := conversation.ExplicitAgentRequest
	validation := d.Validator.Validate(vctx, completion.Text, retrieved, d.Policy.RulesFor(string(classification.Category)), humanPath)
	cancel()
	span.End()
	a.result.Validation = validation
	a.transition(ctx, StageValidate, models.StateValidated, start, validation.ViolatedRules, map[string]interface{}{
		"passed": validation.Passed,
	})

	start = o.now()
	decision := d.Escalation.Decide(escalation.Input{
		Classification:  classification,
		State:           conversation,
		Validation:      validation,
		ExplicitRequest: conversation.ExplicitAgentRequest,
		Body:            t.Text(),
	})
	a.result.Decision = decision
	a.transition(ctx, StageDecide, models.StateDecided, start, decision.ReasonStrings(), map[string]interface{}{
		"outcome": string(decision.Outcome),
	})

	final := models.StateEscalated
	if decision.Outcome == models.OutcomeAutoResolve && validation.Passed {
		final = models.StateResolved
	}
	a.finish(ctx, StageFinalize, final, o.now())
}

// transition records one state change as an audit event.
func (a *attempt) transition(ctx context.Context, stage string, to models.TicketState, start time.Time, reasons []string, attrs map[string]interface{}) {
	o := a.o
	elapsed := o.now().Sub(start)
	event := models.AuditEvent{
		EventID:    uuid.NewString(),
		TicketID:   a.ticket.ID,
		CustomerID: a.ticket.CustomerID,
		Stage:      stage,
		From:       a.state,
		To:         to,
		ElapsedMs:  elapsed.Milliseconds(),
		Reasons:    reasons,
		Attributes: attrs,
		At:         o.now().UTC(),
	}
	a.state = to
	a.result.AuditTrail = append(a.result.AuditTrail, event)

	metrics.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	o.deps.Observability.RecordStage(ctx, stage, elapsed)
	if o.deps.Audit != nil {
		o.deps.Audit.Record(event)
	}
}

// finish moves the attempt to its terminal state and records outcome
// metrics.
func (a *attempt) finish(ctx context.Context, stage string, to models.TicketState, start time.Time) {
	if a.state.IsTerminal() {
		return
	}
	a.result.Outcome = to
	a.transition(ctx, stage, to, start, a.result.Decision.ReasonStrings(), nil)

	category := string(a.result.Classification.Category)
	if category == "" {
		category = string(models.CategoryUnknown)
	}
	metrics.TicketsProcessed.WithLabelValues(string(to), category).Inc()
	a.o.deps.Observability.RecordTicket(ctx, string(to), category)
	if to == models.StateResolved {
		metrics.TicketsAutoResolved.WithLabelValues(metrics.ConfidenceTier(a.result.Classification.Confidence)).Inc()
	} else {
		for _, r := range a.result.Decision.Reasons {
			metrics.TicketsEscalated.WithLabelValues(string(r)).Inc()
		}
	}

	a.o.logger.Info("ticket decided", map[string]interface{}{
		"ticketId": a.ticket.ID,
		"outcome":  string(to),
		"reasons":  a.result.Decision.ReasonStrings(),
	})
}
