package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "support-agent/internal/common/errors"
)

// Load reads configs/config.yaml, merges configs/config.<APP_ENVIRONMENT>.yaml,
// applies environment overrides and defaults, then validates the result.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env", "../../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			// An unset variable expands to "", which leaves optional
			// services disabled rather than pointing at a literal placeholder.
			if expanded := os.ExpandEnv(strVal); expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

func overrideEmptyConfig(cfg *Config) {
	if cfg.LLM.GenAI.APIKey == "" {
		cfg.LLM.GenAI.APIKey = os.Getenv("GENAI_API_KEY")
	}
	if cfg.LLM.Anthropic.APIKey == "" {
		cfg.LLM.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.Database.Postgres.User == "" {
		cfg.Database.Postgres.User = os.Getenv("DB_USER")
	}
	if cfg.Database.Postgres.Password == "" {
		cfg.Database.Postgres.Password = os.Getenv("DB_PASSWORD")
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "support-agent"
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}
	if cfg.Database.Elasticsearch.Index == "" {
		cfg.Database.Elasticsearch.Index = "knowledge_chunks"
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}

	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = "support:"
	}
	if cfg.Cache.L1MaxTTL == 0 {
		cfg.Cache.L1MaxTTL = 60000
	}
	if cfg.Cache.L1SweepInterval == 0 {
		cfg.Cache.L1SweepInterval = 30000
	}
	if cfg.Cache.RetrievalTTL == 0 {
		cfg.Cache.RetrievalTTL = 3600000
	}
	if cfg.Cache.ClassificationTTL == 0 {
		cfg.Cache.ClassificationTTL = 3600000
	}
	if cfg.Cache.CustomerTTL == 0 {
		cfg.Cache.CustomerTTL = 900000
	}
	if cfg.Cache.CompressThreshold == 0 {
		cfg.Cache.CompressThreshold = 1024
	}

	if cfg.Retrieval.MaxChunks == 0 {
		cfg.Retrieval.MaxChunks = 10
	}
	if cfg.Retrieval.DefaultK == 0 {
		cfg.Retrieval.DefaultK = 5
	}
	if cfg.Retrieval.SemanticWeight == 0 && cfg.Retrieval.KeywordWeight == 0 {
		cfg.Retrieval.SemanticWeight = 0.7
		cfg.Retrieval.KeywordWeight = 0.3
	}
	if cfg.Retrieval.SearchTimeout == 0 {
		cfg.Retrieval.SearchTimeout = 3000
	}

	if cfg.Classifier.Model == "" {
		cfg.Classifier.Model = "keyword"
	}
	if cfg.Classifier.Snapshot == "" {
		cfg.Classifier.Snapshot = "keyword-v1"
	}
	if cfg.Classifier.Timeout == 0 {
		cfg.Classifier.Timeout = 10000
	}
	if cfg.Classifier.MaxRetries == 0 {
		cfg.Classifier.MaxRetries = 1
	}

	if cfg.Conversation.SentimentAlpha == 0 {
		cfg.Conversation.SentimentAlpha = 0.5
	}

	if cfg.Escalation.ConfidenceFloor == 0 {
		cfg.Escalation.ConfidenceFloor = 0.75
	}
	if cfg.Escalation.TurnLimit == 0 {
		cfg.Escalation.TurnLimit = 8
	}
	if cfg.Escalation.SentimentFloor == 0 {
		cfg.Escalation.SentimentFloor = -0.3
	}
	if len(cfg.Escalation.RegulatedCategories) == 0 {
		cfg.Escalation.RegulatedCategories = []string{"legal"}
	}

	if cfg.Validation.MinClaimTerms == 0 {
		cfg.Validation.MinClaimTerms = 3
	}
	if cfg.Validation.GroundingThreshold == 0 {
		cfg.Validation.GroundingThreshold = 0.5
	}
	if cfg.Validation.PolicyFile == "" {
		cfg.Validation.PolicyFile = "configs/policy_rules.yaml"
	}

	if cfg.RateLimit.Capacity == 0 {
		cfg.RateLimit.Capacity = 10
	}
	if cfg.RateLimit.RefillPerSecond == 0 {
		cfg.RateLimit.RefillPerSecond = 0.2
	}
	if cfg.RateLimit.IdleTTL == 0 {
		cfg.RateLimit.IdleTTL = 600000
	}

	if cfg.Orchestrator.MaxInFlight == 0 {
		cfg.Orchestrator.MaxInFlight = 32
	}
	if cfg.Orchestrator.QueueTimeout == 0 {
		cfg.Orchestrator.QueueTimeout = 5000
	}
	if cfg.Orchestrator.ClassifyTimeout == 0 {
		cfg.Orchestrator.ClassifyTimeout = 10000
	}
	if cfg.Orchestrator.RetrieveTimeout == 0 {
		cfg.Orchestrator.RetrieveTimeout = 5000
	}
	if cfg.Orchestrator.DraftTimeout == 0 {
		cfg.Orchestrator.DraftTimeout = 30000
	}
	if cfg.Orchestrator.ValidateTimeout == 0 {
		cfg.Orchestrator.ValidateTimeout = 2000
	}

	if cfg.LLM.Primary == "" {
		cfg.LLM.Primary = "anthropic"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 30000
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 1
	}
	if cfg.LLM.Anthropic.BaseURL == "" {
		cfg.LLM.Anthropic.BaseURL = "https://api.anthropic.com"
	}
	if cfg.LLM.Anthropic.Model == "" {
		cfg.LLM.Anthropic.Model = "claude-sonnet-4"
	}
	if cfg.LLM.Anthropic.MaxTokens == 0 {
		cfg.LLM.Anthropic.MaxTokens = 1024
	}
	if cfg.LLM.GenAI.Model == "" {
		cfg.LLM.GenAI.Model = "gpt-3.5-turbo"
	}

	if cfg.Audit.BufferSize == 0 {
		cfg.Audit.BufferSize = 1024
	}
	if cfg.Audit.Kafka.Topic == "" {
		cfg.Audit.Kafka.Topic = "support.audit"
	}
	if cfg.Audit.NATS.Subject == "" {
		cfg.Audit.NATS.Subject = "support.audit"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60000
	}
}

// Validate rejects configurations the decision core cannot run with.
// A failure here is fatal at startup.
func Validate(cfg *Config) error {
	check := func(ok bool, format string, args ...interface{}) error {
		if ok {
			return nil
		}
		return apperrors.NewConfigInvalidError(fmt.Sprintf(format, args...))
	}

	checks := []error{
		check(cfg.Database.Redis.Address != "", "database.redis.address is required"),
		check(!cfg.Camunda.Enabled || cfg.Camunda.BrokerAddress != "", "camunda.broker_address is required when camunda is enabled"),
		check(inUnit(cfg.Escalation.ConfidenceFloor), "escalation.confidence_floor must be in [0,1], got %v", cfg.Escalation.ConfidenceFloor),
		check(cfg.Escalation.TurnLimit > 0, "escalation.turn_limit must be positive, got %d", cfg.Escalation.TurnLimit),
		check(cfg.Escalation.SentimentFloor >= -1 && cfg.Escalation.SentimentFloor <= 1, "escalation.sentiment_floor must be in [-1,1], got %v", cfg.Escalation.SentimentFloor),
		check(cfg.Retrieval.SemanticWeight >= 0 && cfg.Retrieval.KeywordWeight >= 0, "retrieval weights must be non-negative"),
		check(cfg.Retrieval.SemanticWeight+cfg.Retrieval.KeywordWeight > 0, "retrieval weights must have a positive sum"),
		check(cfg.Retrieval.MaxChunks > 0, "retrieval.max_chunks must be positive"),
		check(cfg.Retrieval.DefaultK > 0 && cfg.Retrieval.DefaultK <= cfg.Retrieval.MaxChunks, "retrieval.default_k must be in [1,max_chunks], got %d", cfg.Retrieval.DefaultK),
		check(cfg.Conversation.SentimentAlpha > 0 && cfg.Conversation.SentimentAlpha <= 1, "conversation.sentiment_alpha must be in (0,1], got %v", cfg.Conversation.SentimentAlpha),
		check(inUnit(cfg.Validation.GroundingThreshold), "validation.grounding_threshold must be in [0,1], got %v", cfg.Validation.GroundingThreshold),
		check(cfg.Validation.MinClaimTerms > 0, "validation.min_claim_terms must be positive"),
		check(cfg.RateLimit.Capacity > 0, "rate_limit.capacity must be positive"),
		check(cfg.RateLimit.RefillPerSecond > 0, "rate_limit.refill_per_second must be positive"),
		check(cfg.Orchestrator.MaxInFlight > 0, "orchestrator.max_in_flight must be positive"),
		check(cfg.Classifier.Model == "keyword" || cfg.Classifier.Model == "gateway", "classifier.model must be keyword or gateway, got %q", cfg.Classifier.Model),
		check(cfg.Classifier.Model != "gateway" || cfg.LLM.GenAI.BaseURL != "", "llm.genai.base_url is required for the gateway classifier"),
		check(isProvider(cfg.LLM.Primary), "llm.primary must be anthropic or genai, got %q", cfg.LLM.Primary),
		check(cfg.LLM.Fallback == "" || isProvider(cfg.LLM.Fallback), "llm.fallback must be anthropic or genai, got %q", cfg.LLM.Fallback),
		check((cfg.LLM.Primary != "genai" && cfg.LLM.Fallback != "genai") || cfg.LLM.GenAI.BaseURL != "", "llm.genai.base_url is required when genai drafts replies"),
		check(!cfg.Audit.Kafka.Enabled || len(cfg.Audit.Kafka.Brokers) > 0, "audit.kafka.brokers is required when kafka is enabled"),
		check(!cfg.Audit.NATS.Enabled || cfg.Audit.NATS.URL != "", "audit.nats.url is required when nats is enabled"),
		check(!cfg.Audit.AWS.SNS.Enabled || cfg.Audit.AWS.SNS.TopicARN != "", "audit.aws.sns.topic_arn is required when sns is enabled"),
		check(!cfg.Audit.AWS.SES.Enabled || (cfg.Audit.AWS.SES.FromEmail != "" && len(cfg.Audit.AWS.SES.Recipients) > 0), "audit.aws.ses needs from_email and recipients when enabled"),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}

	if _, err := os.Stat(cfg.Validation.PolicyFile); err != nil {
		return apperrors.NewConfigInvalidError(fmt.Sprintf("validation.policy_file %q: %v", cfg.Validation.PolicyFile, err))
	}
	return nil
}

func inUnit(f float64) bool { return f >= 0 && f <= 1 }

func isProvider(name string) bool { return name == "anthropic" || name == "genai" }

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}
	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
