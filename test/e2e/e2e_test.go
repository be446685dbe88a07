package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support-agent/internal/agent/cache"
	"support-agent/internal/agent/classifier"
	"support-agent/internal/agent/conversation"
	"support-agent/internal/agent/customer"
	"support-agent/internal/agent/escalation"
	"support-agent/internal/agent/orchestrator"
	"support-agent/internal/agent/ratelimit"
	"support-agent/internal/agent/retriever"
	"support-agent/internal/agent/validator"
	"support-agent/internal/api"
	"support-agent/internal/audit"
	"support-agent/internal/common/config"
	"support-agent/internal/common/database"
	"support-agent/internal/common/llm"
	"support-agent/internal/common/logger"
	"support-agent/internal/models"
	"support-agent/pkg/registry"
)

const policyYAML = `
version: "1.0.0"
rules:
  - id: NO_REFUND_PROMISE
    pattern: "we (will|guarantee).{0,20}refund"
    severity: high
    categories: [billing_inquiry]
regulatedKeywords: [lawsuit, attorney]
explicitPhrases: [escalate this]
`

// echoDrafter replies with the top retrieved chunk, which is always
// grounded.
type echoDrafter struct{}

func (echoDrafter) Draft(_ context.Context, _ llm.Prompt, retrieved models.RetrievedContext) (llm.Completion, error) {
	chunks := retrieved.Chunks()
	if len(chunks) == 0 {
		return llm.Completion{Text: "A member of our team will follow up shortly.", Provider: "echo"}, nil
	}
	return llm.Completion{Text: chunks[0].Text, Provider: "echo"}, nil
}

type collectingSink struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (s *collectingSink) Name() string { return "collect" }

func (s *collectingSink) Publish(_ context.Context, e models.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *collectingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type stack struct {
	server     *httptest.Server
	redis      *miniredis.Miniredis
	dispatcher *audit.Dispatcher
	sink       *collectingSink
}

func newStack(t *testing.T) *stack {
	t.Helper()
	ctx := context.Background()
	log := logger.NewTestLogger(t)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	policy, err := registry.Parse([]byte(policyYAML))
	require.NoError(t, err)

	cm := cache.NewManager(cache.NewRedisStore(rdb, "e2e:"), cache.Config{L1MaxTTL: time.Minute}, log)

	embedder := llm.NewHashEmbedder(128)
	index := retriever.NewMemoryIndex(embedder)
	require.NoError(t, index.Add(ctx,
		models.Chunk{ChunkID: "kb-1", SourceDocumentID: "billing-faq", Text: "Duplicate charges on an invoice are reversed by the billing team within five business days."},
		models.Chunk{ChunkID: "kb-2", SourceDocumentID: "account-faq", Text: "Password reset links are sent to the account email address and expire after one hour."},
	))

	sink := &collectingSink{}
	dispatcher := audit.NewDispatcher(audit.DispatcherConfig{BufferSize: 256}, log, sink)
	dispatcher.Start()

	core := orchestrator.New(orchestrator.Config{
		MaxInFlight:     8,
		QueueTimeout:    time.Second,
		ClassifyTimeout: time.Second,
		RetrieveTimeout: time.Second,
		DraftTimeout:    time.Second,
		ValidateTimeout: time.Second,
	}, orchestrator.Deps{
		Limiter:      ratelimit.New(ratelimit.Config{Capacity: 5, RefillPerSecond: 0.01}, log),
		Classifier:   classifier.New(classifier.NewKeywordModel(), cm, classifier.Config{CacheTTL: time.Hour}, log),
		Retriever:    retriever.New(index, embedder, cm, retriever.Config{MaxChunks: 5, DefaultK: 3, Weights: retriever.Weights{Semantic: 0.7, Keyword: 0.3}, CacheTTL: time.Hour}, log),
		Customers:    customer.NewDirectory(nil, cm, time.Minute, log),
		Drafter:      echoDrafter{},
		Validator:    validator.New(validator.Config{}, log),
		Conversation: conversation.NewAnalyzer(conversation.Config{}, policy.ExplicitPhrases...),
		Escalation:   escalation.New(escalation.DefaultConfig(), policy.RegulatedKeywords...),
		Policy:       policy,
		Audit:        dispatcher,
	}, log)

	srv := httptest.NewServer(api.NewServer(core, map[string]database.Pinger{
		"redis": database.NewRedisFromClient(rdb),
	}, log).Handler())
	t.Cleanup(srv.Close)

	return &stack{server: srv, redis: mr, dispatcher: dispatcher, sink: sink}
}

func (s *stack) post(t *testing.T, ticket map[string]interface{}) orchestrator.Result {
	t.Helper()
	body, err := json.Marshal(ticket)
	require.NoError(t, err)

	res, err := http.Post(s.server.URL+"/api/v1/tickets", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var out orchestrator.Result
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return out
}

func TestPipeline_ResolvesGroundedBillingTicket(t *testing.T) {
	s := newStack(t)

	res := s.post(t, map[string]interface{}{
		"ticketId":   "T-100",
		"customerId": "C-1",
		"subject":    "Duplicate charge",
		"body":       "My invoice shows a duplicate charge and I was charged twice, please refund the billing error.",
	})

	assert.Equal(t, models.CategoryBillingInquiry, res.Classification.Category)
	assert.Equal(t, models.StateResolved, res.Outcome, "reasons: %v", res.Decision.Reasons)
	assert.True(t, res.Validation.Passed)
	assert.Contains(t, res.Draft, "billing team")
	require.NotEmpty(t, res.AuditTrail)
	assert.Equal(t, models.StateReceived, res.AuditTrail[0].From)
	assert.Equal(t, models.StateResolved, res.AuditTrail[len(res.AuditTrail)-1].To)

	assert.NotEmpty(t, s.redis.Keys(), "classification and retrieval are cached in redis")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.dispatcher.Close(ctx))
	assert.Equal(t, len(res.AuditTrail), s.sink.count())
}

func TestPipeline_EscalationPaths(t *testing.T) {
	s := newStack(t)

	explicit := s.post(t, map[string]interface{}{
		"ticketId":   "T-200",
		"customerId": "C-2",
		"body":       "Please escalate this, my invoice is wrong.",
	})
	assert.Equal(t, models.StateEscalated, explicit.Outcome)
	assert.True(t, explicit.Decision.HasReason(models.ReasonExplicitRequest))

	regulated := s.post(t, map[string]interface{}{
		"ticketId":   "T-201",
		"customerId": "C-3",
		"body":       "My attorney will file a lawsuit over this billing charge.",
	})
	assert.Equal(t, models.StateEscalated, regulated.Outcome)
	assert.True(t, regulated.Decision.HasReason(models.ReasonRegulatedKeyword))
}

func TestPipeline_RateLimitPerCustomer(t *testing.T) {
	s := newStack(t)

	ticket := func(id string) map[string]interface{} {
		return map[string]interface{}{"ticketId": id, "customerId": "C-busy", "body": "How do I reset my password?"}
	}
	for i := 0; i < 5; i++ {
		res := s.post(t, ticket("T-rl-"+string(rune('a'+i))))
		assert.False(t, res.Decision.HasReason(models.ReasonRateLimited))
	}

	limited := s.post(t, ticket("T-rl-z"))
	assert.Equal(t, models.StateEscalated, limited.Outcome)
	assert.Equal(t, []models.Reason{models.ReasonRateLimited}, limited.Decision.Reasons)

	other := s.post(t, map[string]interface{}{"ticketId": "T-rl-other", "customerId": "C-calm", "body": "How do I reset my password?"})
	assert.False(t, other.Decision.HasReason(models.ReasonRateLimited))
}

func TestPipeline_RejectsMalformedTicket(t *testing.T) {
	s := newStack(t)

	res, err := http.Post(s.server.URL+"/api/v1/tickets", "application/json", bytes.NewReader([]byte(`{"ticketId":"T-bad"}`)))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

// TestLiveServices checks the configured backing services. It only runs
// with E2E_LIVE=1 against a running docker-compose stack.
func TestLiveServices(t *testing.T) {
	if os.Getenv("E2E_LIVE") != "1" {
		t.Skip("set E2E_LIVE=1 to run against live services")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.Load()
	require.NoError(t, err)

	rdb := database.NewRedis(cfg.Database.Redis)
	defer rdb.Close()
	assert.NoError(t, rdb.Ping(ctx), "redis")

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	require.NoError(t, err)
	defer pg.Close()
	assert.NoError(t, pg.Ping(ctx), "postgres")

	es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	require.NoError(t, err)
	assert.NoError(t, es.Ping(ctx), "elasticsearch")
}
