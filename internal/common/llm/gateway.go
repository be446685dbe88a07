package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "support-agent/internal/common/errors"
	apphttp "support-agent/internal/common/http"
	"support-agent/internal/common/metrics"
	"support-agent/internal/models"
)

// GatewayConfig points at the internal GenAI gateway.
type GatewayConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	MaxRetries int
}

// Gateway talks to the GenAI gateway's generate, embed and classify
// endpoints.
type Gateway struct {
	config GatewayConfig
	client *apphttp.Client
}

func NewGateway(config GatewayConfig) *Gateway {
	if config.MaxTokens == 0 {
		config.MaxTokens = 1024
	}
	return &Gateway{
		config: config,
		client: apphttp.NewClient(config.Timeout, config.MaxRetries),
	}
}

func (g *Gateway) Name() string { return "genai" }

func (g *Gateway) headers() map[string]string {
	if g.config.APIKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + g.config.APIKey}
}

type gatewayChunk struct {
	ChunkID string `json:"chunkId"`
	Text    string `json:"text"`
}

type generateResponse struct {
	Text  string `json:"text"`
	Model string `json:"model"`
	Usage Usage  `json:"usage"`
}

func (g *Gateway) Draft(ctx context.Context, prompt Prompt, retrieved models.RetrievedContext) (Completion, error) {
	chunks := make([]gatewayChunk, 0, retrieved.Len())
	for _, c := range retrieved.Chunks() {
		chunks = append(chunks, gatewayChunk{ChunkID: c.ChunkID, Text: c.Text})
	}
	body := map[string]interface{}{
		"system":     prompt.System,
		"prompt":     prompt.User,
		"context":    chunks,
		"model":      g.config.Model,
		"max_tokens": g.config.MaxTokens,
	}

	var resp generateResponse
	if err := g.client.PostJSON(ctx, g.config.BaseURL+"/api/ai/generate", g.headers(), body, &resp); err != nil {
		metrics.RecordLLMCall(g.Name(), g.config.Model, "error", 0, 0)
		return Completion{}, classifyDraftError(g.Name(), err)
	}
	model := resp.Model
	if model == "" {
		model = g.config.Model
	}
	metrics.RecordLLMCall(g.Name(), model, "success", resp.Usage.InputTokens, resp.Usage.OutputTokens)

	if strings.TrimSpace(resp.Text) == "" {
		return Completion{}, apperrors.NewLLMDraftFailedError(g.Name(), fmt.Errorf("empty completion"))
	}
	return Completion{Text: resp.Text, Provider: g.Name(), Model: model, Usage: resp.Usage}, nil
}

func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp struct {
		Embedding []float32 `json:"embedding"`
	}
	body := map[string]interface{}{"text": text}
	if err := g.client.PostJSON(ctx, g.config.BaseURL+"/api/ai/embed", g.headers(), body, &resp); err != nil {
		return nil, apperrors.NewEmbeddingFailedError(err)
	}
	if len(resp.Embedding) == 0 {
		return nil, apperrors.NewEmbeddingFailedError(fmt.Errorf("empty embedding"))
	}
	return resp.Embedding, nil
}

// ClassifyResult is the raw gateway classification.
type ClassifyResult struct {
	Category   string  `json:"category"`
	Urgency    float64 `json:"urgency"`
	Confidence float64 `json:"confidence"`
	Model      string  `json:"model"`
}

// Classify asks the gateway to label text with one of categories.
func (g *Gateway) Classify(ctx context.Context, text string, categories []string) (ClassifyResult, error) {
	var resp ClassifyResult
	body := map[string]interface{}{"text": text, "categories": categories}
	if err := g.client.PostJSON(ctx, g.config.BaseURL+"/api/ai/classify", g.headers(), body, &resp); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return ClassifyResult{}, apperrors.NewLLMTimeoutError(g.Name(), err)
		}
		return ClassifyResult{}, apperrors.NewClassificationFailedError(err)
	}
	return resp, nil
}
