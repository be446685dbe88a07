// Package validator checks a draft response for grounding in the
// retrieved context and for policy compliance.
package validator

import (
	"context"
	"time"

	"support-agent/internal/common/logger"
	"support-agent/internal/common/text"
	"support-agent/internal/models"
	"support-agent/pkg/registry"
)

type Config struct {
	// MinClaimTerms is the number of content terms a sentence needs before
	// it counts as a factual claim.
	MinClaimTerms int
	// GroundingThreshold is the share of a claim's terms that must appear
	// in a single chunk.
	GroundingThreshold float64
	Timeout            time.Duration
}

type Validator struct {
	config Config
	logger logger.Logger
}

func New(config Config, log logger.Logger) *Validator {
	if config.MinClaimTerms <= 0 {
		config.MinClaimTerms = 3
	}
	if config.GroundingThreshold <= 0 || config.GroundingThreshold > 1 {
		config.GroundingThreshold = 0.5
	}
	return &Validator{
		config: config,
		logger: log.With(map[string]interface{}{"component": "validator"}),
	}
}

// Validate returns INCONCLUSIVE when there is nothing to check against or
// the check cannot finish. Policy rules are skipped when the ticket is
// already on the human path.
func (v *Validator) Validate(ctx context.Context, draft string, retrieved models.RetrievedContext, rules []registry.CompiledRule, humanPath bool) models.ValidationResult {
	if v.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.config.Timeout)
		defer cancel()
	}
	if ctx.Err() != nil || retrieved.IsEmpty() || len(text.ContentTerms(draft)) == 0 {
		return models.Inconclusive()
	}

	violated := make(map[string]bool)
	ungrounded, ok := v.groundClaims(ctx, draft, retrieved)
	if !ok {
		return models.Inconclusive()
	}
	if len(ungrounded) > 0 {
		violated[models.RuleUngroundedClaim] = true
	}

	if !humanPath {
		for _, rule := range rules {
			if rule.Regexp != nil && rule.Regexp.MatchString(draft) {
				violated[rule.ID] = true
			}
		}
	}

	result := models.NewValidationResult(violated, ungrounded)
	if !result.Passed {
		v.logger.Debug("draft failed validation", map[string]interface{}{
			"violatedRules": result.ViolatedRules,
			"ungrounded":    len(ungrounded),
		})
	}
	return result
}

// groundClaims returns the claims no chunk supports. ok is false when ctx
// ended before every claim was checked.
func (v *Validator) groundClaims(ctx context.Context, draft string, retrieved models.RetrievedContext) (ungrounded []string, ok bool) {
	chunkTerms := make([]map[string]bool, retrieved.Len())
	for i := range chunkTerms {
		chunkTerms[i] = text.TermSet(retrieved.At(i).Text)
	}

	for _, sentence := range text.Sentences(draft) {
		if ctx.Err() != nil {
			return nil, false
		}
		claim := text.TermSet(sentence)
		if len(claim) < v.config.MinClaimTerms {
			continue
		}
		if !v.supported(claim, chunkTerms) {
			ungrounded = append(ungrounded, sentence)
		}
	}
	return ungrounded, true
}

func (v *Validator) supported(claim map[string]bool, chunks []map[string]bool) bool {
	for _, terms := range chunks {
		if Overlap(claim, terms) >= v.config.GroundingThreshold {
			return true
		}
	}
	return false
}

// Overlap is the share of claim terms present in chunk.
func Overlap(claim, chunk map[string]bool) float64 {
	if len(claim) == 0 {
		return 0
	}
	hits := 0
	for t := range claim {
		if chunk[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(claim))
}
