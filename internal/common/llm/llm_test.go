package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "support-agent/internal/common/errors"
	"support-agent/internal/common/logger"
	"support-agent/internal/models"
)

func sampleContext() models.RetrievedContext {
	return models.NewRetrievedContext([]models.Chunk{
		{ChunkID: "kb-1#0", Text: "Refunds are issued within 5 business days.", Score: 0.9, SourceDocumentID: "kb-1"},
	})
}

func TestGateway_Draft(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ai/generate", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "When will I get my refund?", body["prompt"])
		assert.Len(t, body["context"], 1)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"text":  "Refunds are issued within 5 business days.",
			"model": "gpt-3.5-turbo",
			"usage": map[string]int{"input_tokens": 120, "output_tokens": 12},
		})
	}))
	defer srv.Close()

	g := NewGateway(GatewayConfig{BaseURL: srv.URL, APIKey: "key", Model: "gpt-3.5-turbo", Timeout: time.Second})
	out, err := g.Draft(context.Background(), Prompt{User: "When will I get my refund?"}, sampleContext())
	require.NoError(t, err)
	assert.Equal(t, "genai", out.Provider)
	assert.Equal(t, 12, out.Usage.OutputTokens)
	assert.Contains(t, out.Text, "5 business days")
}

func TestGateway_EmbedFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	g := NewGateway(GatewayConfig{BaseURL: srv.URL, Timeout: time.Second})
	_, err := g.Embed(context.Background(), "hello")
	assert.Equal(t, apperrors.ErrCodeEmbeddingFailed, apperrors.CodeOf(err))
}

func TestGateway_Classify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ai/classify", r.URL.Path)
		_, _ = w.Write([]byte(`{"category":"billing_inquiry","urgency":0.4,"confidence":0.91,"model":"clf-2"}`))
	}))
	defer srv.Close()

	g := NewGateway(GatewayConfig{BaseURL: srv.URL, Timeout: time.Second})
	res, err := g.Classify(context.Background(), "invoice wrong", []string{"billing_inquiry"})
	require.NoError(t, err)
	assert.Equal(t, "billing_inquiry", res.Category)
	assert.Equal(t, 0.91, res.Confidence)
}

func TestAnthropic_Draft(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-sonnet-4", req.Model)
		assert.Contains(t, req.System, "[kb-1#0] Refunds are issued")
		require.Len(t, req.Messages, 1)

		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Your refund will arrive within 5 business days."}],"usage":{"input_tokens":200,"output_tokens":15}}`))
	}))
	defer srv.Close()

	a := NewAnthropic(AnthropicConfig{BaseURL: srv.URL, APIKey: "secret", Model: "claude-sonnet-4", Timeout: time.Second})
	out, err := a.Draft(context.Background(), Prompt{System: "You are a support agent.", User: "refund?"}, sampleContext())
	require.NoError(t, err)
	assert.Equal(t, "anthropic", out.Provider)
	assert.Equal(t, "claude-sonnet-4", out.Model)
	assert.Equal(t, 200, out.Usage.InputTokens)
}

func TestAnthropic_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	a := NewAnthropic(AnthropicConfig{BaseURL: srv.URL, Model: "claude-haiku", Timeout: time.Second})
	_, err := a.Draft(ctx, Prompt{User: "x"}, models.EmptyContext())
	assert.Equal(t, apperrors.ErrCodeLLMTimeout, apperrors.CodeOf(err))
}

type stubDrafter struct {
	name  string
	text  string
	err   error
	calls int
}

func (s *stubDrafter) Name() string { return s.name }

func (s *stubDrafter) Draft(context.Context, Prompt, models.RetrievedContext) (Completion, error) {
	s.calls++
	if s.err != nil {
		return Completion{}, s.err
	}
	return Completion{Text: s.text, Provider: s.name}, nil
}

func TestFallback(t *testing.T) {
	primary := &stubDrafter{name: "anthropic", err: errors.New("overloaded")}
	secondary := &stubDrafter{name: "genai", text: "fallback answer"}
	f := NewFallback(primary, secondary, logger.NewTestLogger(t))

	out, err := f.Draft(context.Background(), Prompt{User: "x"}, models.EmptyContext())
	require.NoError(t, err)
	assert.Equal(t, "fallback answer", out.Text)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
}

func TestFallback_PrimarySucceeds(t *testing.T) {
	primary := &stubDrafter{name: "anthropic", text: "primary answer"}
	secondary := &stubDrafter{name: "genai", text: "fallback answer"}
	f := NewFallback(primary, secondary, logger.NewNoOpLogger())

	out, err := f.Draft(context.Background(), Prompt{}, models.EmptyContext())
	require.NoError(t, err)
	assert.Equal(t, "primary answer", out.Text)
	assert.Zero(t, secondary.calls)
}

func TestFallback_CancelledSkipsSecondary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	primary := &stubDrafter{name: "anthropic", err: context.Canceled}
	secondary := &stubDrafter{name: "genai", text: "fallback answer"}

	_, err := NewFallback(primary, secondary, logger.NewNoOpLogger()).Draft(ctx, Prompt{}, models.EmptyContext())
	assert.Error(t, err)
	assert.Zero(t, secondary.calls)
}

func TestHashEmbedder(t *testing.T) {
	e := NewHashEmbedder(64)
	a, _ := e.Embed(context.Background(), "reset my password")
	b, _ := e.Embed(context.Background(), "Reset my PASSWORD!")
	c, _ := e.Embed(context.Background(), "invoice refund charge")

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.Greater(t, dot(a, b), dot(a, c))

	empty, _ := e.Embed(context.Background(), "the and of")
	assert.Zero(t, dot(empty, empty))
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
