package llm

import (
	"context"

	"support-agent/internal/common/logger"
	"support-agent/internal/models"
)

// Fallback drafts with Primary and, when it fails, with Secondary. Output
// from either provider is returned the same way.
type Fallback struct {
	Primary   Drafter
	Secondary Drafter
	logger    logger.Logger
}

func NewFallback(primary, secondary Drafter, log logger.Logger) *Fallback {
	return &Fallback{Primary: primary, Secondary: secondary, logger: log}
}

func (f *Fallback) Draft(ctx context.Context, prompt Prompt, retrieved models.RetrievedContext) (Completion, error) {
	out, err := f.Primary.Draft(ctx, prompt, retrieved)
	if err == nil || f.Secondary == nil {
		return out, err
	}
	if ctx.Err() != nil {
		f.logger.Warn("draft cancelled, not falling back", map[string]interface{}{
			"provider": providerName(f.Primary),
			"error":    err,
		})
		return out, err
	}

	f.logger.Warn("primary provider failed, using fallback", map[string]interface{}{
		"provider": providerName(f.Primary),
		"fallback": providerName(f.Secondary),
		"error":    err,
	})
	return f.Secondary.Draft(ctx, prompt, retrieved)
}

func providerName(d Drafter) string {
	if n, ok := d.(Named); ok {
		return n.Name()
	}
	return "unknown"
}
