package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "support-agent/internal/common/errors"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func minimalConfig(policyPath string) string {
	return `
app:
  name: support-agent
database:
  redis:
    address: localhost:6379
validation:
  policy_file: ` + policyPath + `
`
}

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	policy := writeFile(t, dir, "policy.yaml", "version: 1\nrules: []\n")
	path := writeFile(t, dir, "config.yaml", minimalConfig(policy))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 0.75, cfg.Escalation.ConfidenceFloor)
	assert.Equal(t, 8, cfg.Escalation.TurnLimit)
	assert.Equal(t, -0.3, cfg.Escalation.SentimentFloor)
	assert.Equal(t, 0.7, cfg.Retrieval.SemanticWeight)
	assert.Equal(t, 0.3, cfg.Retrieval.KeywordWeight)
	assert.Equal(t, "keyword", cfg.Classifier.Model)
	assert.Equal(t, "anthropic", cfg.LLM.Primary)
	assert.Equal(t, 3600000, cfg.Cache.RetrievalTTL)
	assert.Equal(t, "knowledge_chunks", cfg.Database.Elasticsearch.Index)
	assert.Equal(t, []string{"legal"}, cfg.Escalation.RegulatedCategories)
}

func TestLoadFromFile_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("TEST_REDIS_ADDR", "redis.internal:6380")
	dir := t.TempDir()
	policy := writeFile(t, dir, "policy.yaml", "version: 1\nrules: []\n")
	path := writeFile(t, dir, "config.yaml", `
database:
  redis:
    address: ${TEST_REDIS_ADDR}
validation:
  policy_file: `+policy+`
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6380", cfg.Database.Redis.Address)
}

func TestLoadFromFile_UnsetPlaceholderIsEmpty(t *testing.T) {
	dir := t.TempDir()
	policy := writeFile(t, dir, "policy.yaml", "version: 1\nrules: []\n")
	path := writeFile(t, dir, "config.yaml", `
database:
  redis:
    address: localhost:6379
  postgres:
    host: ${TEST_UNSET_DB_HOST_FOR_LOADER}
validation:
  policy_file: `+policy+`
`)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Database.Postgres.Host)
}

func TestLoadFromFile_RejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	policy := writeFile(t, dir, "policy.yaml", "version: 1\nrules: []\n")

	tests := []struct {
		name  string
		extra string
	}{
		{"confidence floor above one", "escalation:\n  confidence_floor: 1.5\n"},
		{"negative weight", "retrieval:\n  semantic_weight: -0.2\n  keyword_weight: 0.5\n"},
		{"unknown classifier", "classifier:\n  model: oracle\n"},
		{"kafka without brokers", "audit:\n  kafka:\n    enabled: true\n"},
		{"default k above max", "retrieval:\n  max_chunks: 3\n  default_k: 4\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, "config.yaml", minimalConfig(policy)+tt.extra)
			_, err := LoadFromFile(path)
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrCodeConfigInvalid, apperrors.CodeOf(err))
		})
	}
}

func TestLoadFromFile_MissingPolicyFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", minimalConfig(filepath.Join(dir, "absent.yaml")))

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeConfigInvalid, apperrors.CodeOf(err))
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, GetDuration(1500))
}

func TestGetWorkerConfig_Fallback(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{
		"handle-support-ticket": {Enabled: false, MaxJobsActive: 2},
	}}
	assert.False(t, IsWorkerEnabled(cfg, "handle-support-ticket"))
	assert.True(t, IsWorkerEnabled(cfg, "other"))
	assert.Equal(t, 5, GetWorkerConfig(cfg, "other").MaxJobsActive)
}
