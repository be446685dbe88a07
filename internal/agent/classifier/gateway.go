package classifier

import (
	"context"

	"support-agent/internal/common/llm"
	"support-agent/internal/models"
)

// LabelService is the remote classification capability of the GenAI
// gateway.
type LabelService interface {
	Classify(ctx context.Context, text string, categories []string) (llm.ClassifyResult, error)
}

// GatewayModel classifies through the GenAI gateway's /api/ai/classify
// endpoint. The snapshot is fixed at construction so it can key the cache.
type GatewayModel struct {
	service  LabelService
	snapshot string
}

func NewGatewayModel(service LabelService, snapshot string) *GatewayModel {
	if snapshot == "" {
		snapshot = "gateway"
	}
	return &GatewayModel{service: service, snapshot: snapshot}
}

func (m *GatewayModel) Snapshot() string { return m.snapshot }

func (m *GatewayModel) ClassifyText(ctx context.Context, text string) (models.Classification, error) {
	labels := make([]string, len(models.Categories))
	for i, c := range models.Categories {
		labels[i] = string(c)
	}
	res, err := m.service.Classify(ctx, text, labels)
	if err != nil {
		return models.Classification{}, err
	}
	return models.Classification{
		Category:      models.ParseCategory(res.Category),
		Urgency:       res.Urgency,
		Confidence:    res.Confidence,
		ModelSnapshot: m.snapshot,
	}, nil
}
