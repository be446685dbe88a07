// Package audit delivers per-transition audit events to external sinks.
// Recording never blocks ticket processing: events are buffered and a full
// buffer drops the event.
package audit

import (
	"context"
	"sync"
	"time"

	apperrors "support-agent/internal/common/errors"
	"support-agent/internal/common/logger"
	"support-agent/internal/common/metrics"
	"support-agent/internal/models"
)

// Sink publishes one event. Implementations must be safe for use by a
// single delivery goroutine.
type Sink interface {
	Name() string
	Publish(ctx context.Context, event models.AuditEvent) error
}

// Recorder is what the orchestrator depends on.
type Recorder interface {
	Record(event models.AuditEvent)
}

type DispatcherConfig struct {
	BufferSize     int
	PublishTimeout time.Duration
	BaseDelay      time.Duration
}

type Dispatcher struct {
	config DispatcherConfig
	sinks  []Sink
	logger logger.Logger

	mu     sync.RWMutex
	closed bool
	events chan models.AuditEvent
	done   chan struct{}
}

func NewDispatcher(config DispatcherConfig, log logger.Logger, sinks ...Sink) *Dispatcher {
	if config.BufferSize <= 0 {
		config.BufferSize = 1024
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 5 * time.Second
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = 100 * time.Millisecond
	}
	return &Dispatcher{
		config: config,
		sinks:  sinks,
		logger: log.With(map[string]interface{}{"component": "audit"}),
		events: make(chan models.AuditEvent, config.BufferSize),
		done:   make(chan struct{}),
	}
}

// Start launches the delivery goroutine.
func (d *Dispatcher) Start() {
	go d.run()
}

// Record enqueues event without blocking.
func (d *Dispatcher) Record(event models.AuditEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		metrics.AuditDropped.WithLabelValues("closed").Inc()
		return
	}
	select {
	case d.events <- event:
	default:
		metrics.AuditDropped.WithLabelValues("buffer").Inc()
		d.logger.Warn("audit buffer full, dropping event", map[string]interface{}{
			"ticketId": event.TicketID,
			"stage":    event.Stage,
		})
	}
}

// Close stops accepting events and waits until the buffer is drained or
// ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for event := range d.events {
		for _, sink := range d.sinks {
			d.deliver(sink, event)
		}
	}
}

func (d *Dispatcher) deliver(sink Sink, event models.AuditEvent) {
	retries := apperrors.GetRetryCount(apperrors.ErrCodeAuditPublishFailed)
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			time.Sleep(d.config.BaseDelay * time.Duration(1<<(attempt-1)))
		}
		ctx, cancel := context.WithTimeout(context.Background(), d.config.PublishTimeout)
		err = sink.Publish(ctx, event)
		cancel()
		if err == nil {
			return
		}
	}

	metrics.AuditDropped.WithLabelValues(sink.Name()).Inc()
	d.logger.Error("audit sink publish failed", map[string]interface{}{
		"error":    apperrors.NewAuditPublishFailedError(sink.Name(), err),
		"ticketId": event.TicketID,
		"stage":    event.Stage,
	})
}
