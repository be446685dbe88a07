package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "support-agent/internal/common/errors"
	apphttp "support-agent/internal/common/http"
	"support-agent/internal/common/metrics"
	"support-agent/internal/models"
)

const anthropicVersion = "2023-06-01"

type AnthropicConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	MaxRetries int
}

// Anthropic drafts replies through the Messages API.
type Anthropic struct {
	config AnthropicConfig
	client *apphttp.Client
}

func NewAnthropic(config AnthropicConfig) *Anthropic {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.anthropic.com"
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 1024
	}
	return &Anthropic{
		config: config,
		client: apphttp.NewClient(config.Timeout, config.MaxRetries),
	}
}

func (a *Anthropic) Name() string { return "anthropic" }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      Usage  `json:"usage"`
}

func (a *Anthropic) Draft(ctx context.Context, prompt Prompt, retrieved models.RetrievedContext) (Completion, error) {
	req := anthropicRequest{
		Model:     a.config.Model,
		MaxTokens: a.config.MaxTokens,
		System:    systemWithContext(prompt.System, retrieved),
		Messages:  []anthropicMessage{{Role: "user", Content: prompt.User}},
	}
	headers := map[string]string{
		"x-api-key":         a.config.APIKey,
		"anthropic-version": anthropicVersion,
	}

	var resp anthropicResponse
	if err := a.client.PostJSON(ctx, a.config.BaseURL+"/v1/messages", headers, req, &resp); err != nil {
		metrics.RecordLLMCall(a.Name(), a.config.Model, "error", 0, 0)
		var se *apphttp.StatusError
		if errors.As(err, &se) {
			err = fmt.Errorf("api error %d: %s", se.StatusCode, se.Body)
		}
		return Completion{}, classifyDraftError(a.Name(), err)
	}

	model := resp.Model
	if model == "" {
		model = a.config.Model
	}
	metrics.RecordLLMCall(a.Name(), model, "success", resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return Completion{}, apperrors.NewLLMDraftFailedError(a.Name(), fmt.Errorf("empty response content"))
	}
	return Completion{Text: text, Provider: a.Name(), Model: model, Usage: resp.Usage}, nil
}

// systemWithContext appends the retrieved passages to the system prompt,
// each tagged with its chunk id.
func systemWithContext(system string, retrieved models.RetrievedContext) string {
	if retrieved.IsEmpty() {
		return system
	}
	var b strings.Builder
	b.WriteString(system)
	b.WriteString("\n\nKnowledge base passages:\n")
	for _, c := range retrieved.Chunks() {
		fmt.Fprintf(&b, "[%s] %s\n", c.ChunkID, c.Text)
	}
	return b.String()
}
