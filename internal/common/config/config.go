package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App          AppConfig               `mapstructure:"app"`
	Camunda      CamundaConfig           `mapstructure:"camunda"`
	Database     DatabaseConfig          `mapstructure:"database"`
	Workers      map[string]WorkerConfig `mapstructure:"workers"`
	Cache        CacheConfig             `mapstructure:"cache"`
	Retrieval    RetrievalConfig         `mapstructure:"retrieval"`
	Classifier   ClassifierConfig        `mapstructure:"classifier"`
	Conversation ConversationConfig      `mapstructure:"conversation"`
	Escalation   EscalationConfig        `mapstructure:"escalation"`
	Validation   ValidationConfig        `mapstructure:"validation"`
	RateLimit    RateLimitConfig         `mapstructure:"rate_limit"`
	Orchestrator OrchestratorConfig      `mapstructure:"orchestrator"`
	LLM          LLMConfig               `mapstructure:"llm"`
	Audit        AuditConfig             `mapstructure:"audit"`
	Logging      LoggingConfig           `mapstructure:"logging"`
	Server       ServerConfig            `mapstructure:"server"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"`
	Index     string   `mapstructure:"index"`
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every job worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

// --- Decision core ---

// CacheConfig drives the two-tier cache manager.
type CacheConfig struct {
	KeyPrefix         string `mapstructure:"key_prefix"`
	L1MaxTTL          int    `mapstructure:"l1_max_ttl"`         // milliseconds
	L1SweepInterval   int    `mapstructure:"l1_sweep_interval"`  // milliseconds
	RetrievalTTL      int    `mapstructure:"retrieval_ttl"`      // milliseconds
	ClassificationTTL int    `mapstructure:"classification_ttl"` // milliseconds
	CustomerTTL       int    `mapstructure:"customer_ttl"`       // milliseconds
	CompressThreshold int    `mapstructure:"compress_threshold"` // bytes
	L2FetchTimeout    int    `mapstructure:"l2_fetch_timeout"`   // milliseconds
}

type RetrievalConfig struct {
	MaxChunks      int     `mapstructure:"max_chunks"`
	DefaultK       int     `mapstructure:"default_k"`
	SemanticWeight float64 `mapstructure:"semantic_weight"`
	KeywordWeight  float64 `mapstructure:"keyword_weight"`
	SearchTimeout  int     `mapstructure:"search_timeout"` // milliseconds
}

type ClassifierConfig struct {
	// Model selects the classification strategy: "keyword" or "gateway".
	Model      string `mapstructure:"model"`
	Snapshot   string `mapstructure:"snapshot"`
	Timeout    int    `mapstructure:"timeout"` // milliseconds
	MaxRetries int    `mapstructure:"max_retries"`
}

type ConversationConfig struct {
	SentimentAlpha  float64  `mapstructure:"sentiment_alpha"`
	ExplicitPhrases []string `mapstructure:"explicit_phrases"`
}

type EscalationConfig struct {
	ConfidenceFloor     float64  `mapstructure:"confidence_floor"`
	TurnLimit           int      `mapstructure:"turn_limit"`
	SentimentFloor      float64  `mapstructure:"sentiment_floor"`
	RegulatedKeywords   []string `mapstructure:"regulated_keywords"`
	RegulatedCategories []string `mapstructure:"regulated_categories"`
}

type ValidationConfig struct {
	MinClaimTerms      int     `mapstructure:"min_claim_terms"`
	GroundingThreshold float64 `mapstructure:"grounding_threshold"`
	PolicyFile         string  `mapstructure:"policy_file"`
}

type RateLimitConfig struct {
	Capacity        int     `mapstructure:"capacity"`
	RefillPerSecond float64 `mapstructure:"refill_per_second"`
	IdleTTL         int     `mapstructure:"idle_ttl"` // milliseconds
}

type OrchestratorConfig struct {
	MaxInFlight     int `mapstructure:"max_in_flight"`
	QueueTimeout    int `mapstructure:"queue_timeout"`    // milliseconds
	ClassifyTimeout int `mapstructure:"classify_timeout"` // milliseconds
	RetrieveTimeout int `mapstructure:"retrieve_timeout"` // milliseconds
	DraftTimeout    int `mapstructure:"draft_timeout"`    // milliseconds
	ValidateTimeout int `mapstructure:"validate_timeout"` // milliseconds
}

// LLMConfig holds the model provider chain.
type LLMConfig struct {
	Primary    string `mapstructure:"primary"`
	Fallback   string `mapstructure:"fallback"`
	Timeout    int    `mapstructure:"timeout"` // milliseconds
	MaxRetries int    `mapstructure:"max_retries"`

	GenAI struct {
		BaseURL string `mapstructure:"base_url"`
		APIKey  string `mapstructure:"api_key"`
		Model   string `mapstructure:"model"`
	} `mapstructure:"genai"`

	Anthropic struct {
		BaseURL   string `mapstructure:"base_url"`
		APIKey    string `mapstructure:"api_key"`
		Model     string `mapstructure:"model"`
		MaxTokens int    `mapstructure:"max_tokens"`
	} `mapstructure:"anthropic"`
}

// AuditConfig holds the audit dispatcher and its sinks.
type AuditConfig struct {
	BufferSize int `mapstructure:"buffer_size"`

	Kafka struct {
		Enabled bool     `mapstructure:"enabled"`
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`

	NATS struct {
		Enabled bool   `mapstructure:"enabled"`
		URL     string `mapstructure:"url"`
		Subject string `mapstructure:"subject"`
	} `mapstructure:"nats"`

	AWS struct {
		Region string `mapstructure:"region"`
		SNS    struct {
			Enabled  bool   `mapstructure:"enabled"`
			TopicARN string `mapstructure:"topic_arn"`
		} `mapstructure:"sns"`
		SES struct {
			Enabled    bool     `mapstructure:"enabled"`
			FromEmail  string   `mapstructure:"from_email"`
			Recipients []string `mapstructure:"recipients"`
		} `mapstructure:"ses"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout int `mapstructure:"write_timeout"` // milliseconds
}
