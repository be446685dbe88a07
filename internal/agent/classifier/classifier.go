// Package classifier assigns a category, urgency and confidence to a
// ticket. Results are cached per ticket text and model snapshot.
package classifier

import (
	"context"
	"time"

	"support-agent/internal/agent/cache"
	apperrors "support-agent/internal/common/errors"
	"support-agent/internal/common/logger"
	"support-agent/internal/models"
)

const cacheNamespace = "classification"

// Model is a classification strategy. Snapshot identifies the model
// version and takes part in the cache key.
type Model interface {
	ClassifyText(ctx context.Context, text string) (models.Classification, error)
	Snapshot() string
}

type Config struct {
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	CacheTTL   time.Duration
}

// priorityUrgency is the urgency floor implied by the ingestion priority.
var priorityUrgency = map[models.Priority]float64{
	models.PriorityLow:    0.1,
	models.PriorityMedium: 0.3,
	models.PriorityHigh:   0.6,
	models.PriorityUrgent: 0.85,
}

type Classifier struct {
	model  Model
	cache  *cache.Manager
	config Config
	logger logger.Logger
}

func New(model Model, c *cache.Manager, config Config, log logger.Logger) *Classifier {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = 100 * time.Millisecond
	}
	return &Classifier{
		model:  model,
		cache:  c,
		config: config,
		logger: log.With(map[string]interface{}{"component": "classifier", "snapshot": model.Snapshot()}),
	}
}

// Classify never fails. When the model cannot produce a verdict it returns
// the UNKNOWN sentinel, which is never cached.
func (c *Classifier) Classify(ctx context.Context, ticket *models.Ticket) models.Classification {
	body := ticket.Text()
	if body == "" {
		return models.UnknownClassification()
	}

	key := cache.Key(cacheNamespace, cache.Fingerprint(body, c.model.Snapshot()))
	var result models.Classification
	if c.cache != nil && c.cache.GetValue(ctx, key, &result) {
		return withPriority(result, ticket.Priority)
	}

	result, err := c.classifyWithRetry(ctx, body)
	if err != nil {
		c.logger.Warn("classification unavailable, using sentinel", map[string]interface{}{
			"ticketId": ticket.ID,
			"error":    err,
			"code":     apperrors.CodeOf(err),
		})
		return models.UnknownClassification()
	}

	result = normalize(result, c.model.Snapshot())
	if result.IsSentinel() {
		return models.UnknownClassification()
	}
	if c.cache != nil {
		if err := c.cache.PutValue(ctx, key, result, c.config.CacheTTL); err != nil {
			c.logger.Warn("failed to cache classification", map[string]interface{}{"error": err})
		}
	}
	return withPriority(result, ticket.Priority)
}

func (c *Classifier) classifyWithRetry(ctx context.Context, body string) (models.Classification, error) {
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.config.BaseDelay * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return models.Classification{}, ctx.Err()
			}
		}

		result, err := c.attempt(ctx, body)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			// the caller gave up; a retry would be sunk cost
			return models.Classification{}, ctx.Err()
		}
		c.logger.Debug("classification attempt failed", map[string]interface{}{
			"attempt": attempt + 1,
			"error":   err,
		})
	}
	return models.Classification{}, apperrors.NewClassificationFailedError(lastErr)
}

func (c *Classifier) attempt(ctx context.Context, body string) (models.Classification, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}
	return c.model.ClassifyText(ctx, body)
}

func normalize(r models.Classification, snapshot string) models.Classification {
	r.Category = models.ParseCategory(string(r.Category))
	r.Urgency = clamp01(r.Urgency)
	r.Confidence = clamp01(r.Confidence)
	if r.Category == models.CategoryUnknown {
		r.Confidence = 0
	}
	if r.ModelSnapshot == "" {
		r.ModelSnapshot = snapshot
	}
	return r
}

func withPriority(r models.Classification, p models.Priority) models.Classification {
	if floor := priorityUrgency[p]; r.Urgency < floor {
		r.Urgency = floor
	}
	return r
}
