package classifier

import (
	"context"
	"math"

	"support-agent/internal/common/text"
	"support-agent/internal/models"
)

// KeywordSnapshot identifies the built-in lexicon. Bump it whenever the
// lexicon changes so cached classifications are not reused.
const KeywordSnapshot = "keyword-v1"

type cue struct {
	term   string
	weight float64
}

var lexicon = map[models.Category][]cue{
	models.CategoryTechnicalSupport: {
		{"error", 1}, {"crash", 1}, {"crashes", 1}, {"bug", 1}, {"login", 0.8},
		{"password", 0.8}, {"install", 0.8}, {"app", 0.5}, {"broken", 0.8},
		{"not working", 1}, {"cant", 0.4}, {"reset", 0.6}, {"timeout", 0.8},
		{"sync", 0.6}, {"update", 0.4}, {"connect", 0.6},
	},
	models.CategoryBillingInquiry: {
		{"invoice", 1}, {"charge", 1}, {"charged", 1}, {"refund", 1}, {"billing", 1},
		{"payment", 0.9}, {"subscription", 0.7}, {"price", 0.6}, {"receipt", 0.8},
		{"credit card", 0.9}, {"duplicate charge", 1},
	},
	models.CategoryAccountManagement: {
		{"account", 0.8}, {"username", 0.8}, {"email address", 0.7}, {"profile", 0.7},
		{"delete my account", 1}, {"close my account", 1}, {"upgrade", 0.6},
		{"downgrade", 0.6}, {"plan", 0.4}, {"settings", 0.5}, {"two factor", 0.8},
	},
	models.CategoryGeneralInquiry: {
		{"how", 0.3}, {"question", 0.5}, {"information", 0.5}, {"hours", 0.6},
		{"where", 0.3}, {"shipping", 0.6}, {"delivery", 0.6}, {"available", 0.4},
	},
	models.CategoryComplaint: {
		{"unacceptable", 1}, {"terrible", 1}, {"disappointed", 0.9}, {"complaint", 1},
		{"worst", 1}, {"angry", 0.9}, {"frustrated", 0.8}, {"awful", 0.9},
		{"never again", 1}, {"ridiculous", 0.8},
	},
	models.CategoryLegal: {
		{"lawyer", 1}, {"attorney", 1}, {"lawsuit", 1}, {"sue", 1}, {"legal", 1},
		{"gdpr", 1}, {"subpoena", 1}, {"court", 0.8}, {"compliance", 0.7},
		{"data protection", 0.9},
	},
}

var urgencyCues = []cue{
	{"urgent", 0.4}, {"asap", 0.4}, {"immediately", 0.35}, {"emergency", 0.5},
	{"down", 0.25}, {"outage", 0.4}, {"critical", 0.4}, {"now", 0.15}, {"today", 0.1},
}

// KeywordModel is a deterministic lexical classifier. It needs no network
// and always produces the same verdict for the same text.
type KeywordModel struct{}

func NewKeywordModel() *KeywordModel { return &KeywordModel{} }

func (m *KeywordModel) Snapshot() string { return KeywordSnapshot }

func (m *KeywordModel) ClassifyText(ctx context.Context, s string) (models.Classification, error) {
	if err := ctx.Err(); err != nil {
		return models.Classification{}, err
	}
	normalized := text.Normalize(s)

	scores := make(map[models.Category]float64, len(lexicon))
	var total float64
	for _, category := range models.Categories {
		for _, c := range lexicon[category] {
			if text.ContainsPhrase(normalized, c.term) {
				scores[category] += c.weight
			}
		}
		total += scores[category]
	}

	result := models.Classification{
		Category:      models.CategoryGeneralInquiry,
		Urgency:       urgencyOf(normalized),
		Confidence:    0.35,
		ModelSnapshot: KeywordSnapshot,
	}
	if total == 0 {
		return result, nil
	}

	best, bestScore := rank(scores)
	share := bestScore / total
	strength := 1 - math.Exp(-bestScore)
	result.Category = best
	result.Confidence = clamp01(0.35 + 0.6*share*strength)
	return result, nil
}

// rank returns the highest scoring category. Ties go to the category
// listed first in models.Categories.
func rank(scores map[models.Category]float64) (models.Category, float64) {
	best := models.CategoryGeneralInquiry
	bestScore := 0.0
	for _, c := range models.Categories {
		if s := scores[c]; s > bestScore {
			best, bestScore = c, s
		}
	}
	return best, bestScore
}

func urgencyOf(normalized string) float64 {
	var u float64
	for _, c := range urgencyCues {
		if text.ContainsPhrase(normalized, c.term) {
			u += c.weight
		}
	}
	return clamp01(u)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
