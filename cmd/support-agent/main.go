package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

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
	"support-agent/internal/common/aws"
	"support-agent/internal/common/camunda"
	"support-agent/internal/common/config"
	"support-agent/internal/common/database"
	"support-agent/internal/common/llm"
	"support-agent/internal/common/logger"
	"support-agent/internal/common/observability"
	"support-agent/pkg/registry"

	hst "support-agent/internal/workers/support/handle-support-ticket"
)

const hashEmbeddingDims = 256

// retryWithBackoff runs operation up to maxRetries times, doubling the
// delay after each failure.
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}
		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err,
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			time.Sleep(delay)
			delay *= 2
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	configPath := pflag.String("config", "", "Path to a config file (default: configs/config.yaml plus environment overlay)")
	policyPath := pflag.String("policy", "", "Path to the policy rule file (overrides validation.policy_file)")
	port := pflag.Int("port", 0, "HTTP port (overrides server.port)")
	pflag.Parse()

	cfg, err := loadConfig(*configPath, *policyPath, *port)
	if err != nil {
		boot := logger.New("info", "console")
		boot.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	log.Info("starting support agent", map[string]interface{}{
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	})

	obs := observability.New(cfg.App.Name, cfg.App.Version)
	defer obs.Shutdown()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	policy, err := registry.LoadRegistry(cfg.Validation.PolicyFile)
	if err != nil {
		zapLog.Fatal("policy load failed", zap.Error(err))
	}
	log.Info("policy loaded", map[string]interface{}{
		"version": policy.Version,
		"rules":   len(policy.Rules),
	})

	pingers := make(map[string]database.Pinger)

	// --- Redis (L2 cache) ---
	rdb := database.NewRedis(cfg.Database.Redis)
	if err := retryWithBackoff(func() error { return rdb.Ping(ctx) }, 10, 2*time.Second, log, "Redis connection"); err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	pingers["redis"] = rdb

	cacheManager := cache.NewManager(
		cache.NewRedisStore(rdb.Client, cfg.Cache.KeyPrefix),
		cache.Config{
			L1MaxTTL:          config.GetDuration(cfg.Cache.L1MaxTTL),
			SweepInterval:     config.GetDuration(cfg.Cache.L1SweepInterval),
			CompressThreshold: cfg.Cache.CompressThreshold,
			L2FetchTimeout:    config.GetDuration(cfg.Cache.L2FetchTimeout),
		},
		log,
	)

	// --- PostgreSQL (customer directory), optional ---
	var customerDB *database.PostgresClient
	var customers *sql.DB
	if cfg.Database.Postgres.Host != "" {
		err = retryWithBackoff(func() error {
			var err error
			customerDB, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return customerDB.Ping(ctx)
		}, 15, 2*time.Second, log, "PostgreSQL connection")
		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer customerDB.Close()
		pingers["postgres"] = customerDB
		customers = customerDB.DB
	} else {
		log.Warn("postgres not configured, every customer resolves to the standard tier", nil)
	}
	directory := customer.NewDirectory(customers, cacheManager, config.GetDuration(cfg.Cache.CustomerTTL), log)

	// --- Model providers ---
	var gateway *llm.Gateway
	if cfg.LLM.GenAI.BaseURL != "" {
		gateway = llm.NewGateway(llm.GatewayConfig{
			BaseURL:    cfg.LLM.GenAI.BaseURL,
			APIKey:     cfg.LLM.GenAI.APIKey,
			Model:      cfg.LLM.GenAI.Model,
			Timeout:    config.GetDuration(cfg.LLM.Timeout),
			MaxRetries: cfg.LLM.MaxRetries,
		})
	}
	drafter := buildDrafter(cfg, gateway, log)

	var embedder llm.Embedder = llm.NewHashEmbedder(hashEmbeddingDims)
	if gateway != nil {
		embedder = gateway
	}

	// --- Knowledge index ---
	var index retriever.Index
	if cfg.Database.Elasticsearch.GetURL() != "" {
		var es *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return es.Ping(ctx)
		}, 15, 2*time.Second, log, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		pingers["elasticsearch"] = es
		index = retriever.NewElasticIndex(es.Client, es.Index)
	} else {
		log.Warn("elasticsearch not configured, using an empty in-memory index", nil)
		index = retriever.NewMemoryIndex(embedder)
	}

	knowledge := retriever.New(index, embedder, cacheManager, retriever.Config{
		MaxChunks: cfg.Retrieval.MaxChunks,
		DefaultK:  cfg.Retrieval.DefaultK,
		Weights: retriever.Weights{
			Semantic: cfg.Retrieval.SemanticWeight,
			Keyword:  cfg.Retrieval.KeywordWeight,
		},
		SearchTimeout: config.GetDuration(cfg.Retrieval.SearchTimeout),
		CacheTTL:      config.GetDuration(cfg.Cache.RetrievalTTL),
	}, log)

	// --- Decision components ---
	var model classifier.Model = classifier.NewKeywordModel()
	if cfg.Classifier.Model == "gateway" {
		model = classifier.NewGatewayModel(gateway, cfg.Classifier.Snapshot)
	}
	ticketClassifier := classifier.New(model, cacheManager, classifier.Config{
		Timeout:    config.GetDuration(cfg.Classifier.Timeout),
		MaxRetries: cfg.Classifier.MaxRetries,
		BaseDelay:  100 * time.Millisecond,
		CacheTTL:   config.GetDuration(cfg.Cache.ClassificationTTL),
	}, log)

	limiter := ratelimit.New(ratelimit.Config{
		Capacity:        cfg.RateLimit.Capacity,
		RefillPerSecond: cfg.RateLimit.RefillPerSecond,
		IdleTTL:         config.GetDuration(cfg.RateLimit.IdleTTL),
	}, log)

	analyzer := conversation.NewAnalyzer(conversation.Config{
		SentimentAlpha:  cfg.Conversation.SentimentAlpha,
		ExplicitPhrases: cfg.Conversation.ExplicitPhrases,
	}, policy.ExplicitPhrases...)

	engine := escalation.New(escalation.Config{
		ConfidenceFloor:     cfg.Escalation.ConfidenceFloor,
		TurnLimit:           cfg.Escalation.TurnLimit,
		SentimentFloor:      cfg.Escalation.SentimentFloor,
		RegulatedKeywords:   cfg.Escalation.RegulatedKeywords,
		RegulatedCategories: cfg.Escalation.RegulatedCategories,
	}, policy.RegulatedKeywords...)

	responseValidator := validator.New(validator.Config{
		MinClaimTerms:      cfg.Validation.MinClaimTerms,
		GroundingThreshold: cfg.Validation.GroundingThreshold,
		Timeout:            config.GetDuration(cfg.Orchestrator.ValidateTimeout),
	}, log)

	// --- Audit ---
	sinks, closers := buildSinks(ctx, cfg, log)
	dispatcher := audit.NewDispatcher(audit.DispatcherConfig{BufferSize: cfg.Audit.BufferSize}, log, sinks...)
	dispatcher.Start()

	core := orchestrator.New(orchestrator.Config{
		MaxInFlight:     cfg.Orchestrator.MaxInFlight,
		QueueTimeout:    config.GetDuration(cfg.Orchestrator.QueueTimeout),
		ClassifyTimeout: config.GetDuration(cfg.Orchestrator.ClassifyTimeout),
		RetrieveTimeout: config.GetDuration(cfg.Orchestrator.RetrieveTimeout),
		DraftTimeout:    config.GetDuration(cfg.Orchestrator.DraftTimeout),
		ValidateTimeout: config.GetDuration(cfg.Orchestrator.ValidateTimeout),
		K:               cfg.Retrieval.DefaultK,
	}, orchestrator.Deps{
		Limiter:       limiter,
		Classifier:    ticketClassifier,
		Retriever:     knowledge,
		Customers:     directory,
		Drafter:       drafter,
		Validator:     responseValidator,
		Conversation:  analyzer,
		Escalation:    engine,
		Policy:        policy,
		Audit:         dispatcher,
		Observability: obs,
	}, log)

	background, bgCtx := errgroup.WithContext(ctx)
	background.Go(func() error { cacheManager.Run(bgCtx); return nil })
	background.Go(func() error { limiter.Run(bgCtx, time.Minute); return nil })

	// --- Zeebe job worker, optional ---
	var zeebe *camunda.Client
	var jobWorker *camunda.Worker
	if cfg.Camunda.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
				GatewayAddress:         cfg.Camunda.BrokerAddress,
				UsePlaintextConnection: true,
				ConnectionTimeout:      10 * time.Second,
				RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
			})
			return err
		}, 10, 2*time.Second, log, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		pingers["zeebe"] = zeebe

		if wcfg := config.GetWorkerConfig(cfg, hst.TaskType); wcfg.Enabled {
			handler := hst.NewHandler(&hst.Config{Timeout: config.GetDuration(wcfg.Timeout)}, core, log)
			jobWorker = camunda.StartWorker(zeebe.Zeebe(), camunda.WorkerConfig{
				TaskType:      hst.TaskType,
				MaxJobsActive: wcfg.MaxJobsActive,
				Timeout:       config.GetDuration(wcfg.Timeout),
			}, handler.Handle, log)
		}
	}

	// --- HTTP ---
	server := api.NewServer(core, pingers, log).HTTPServer(
		cfg.Server.Port,
		config.GetDuration(cfg.Server.ReadTimeout),
		config.GetDuration(cfg.Server.WriteTimeout),
	)
	go func() {
		log.Info("http server listening", map[string]interface{}{"addr": server.Addr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info("shutdown signal received", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", map[string]interface{}{"error": err})
	}
	if jobWorker != nil {
		jobWorker.Stop()
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			log.Error("error closing zeebe client", map[string]interface{}{"error": err})
		}
	}

	stop()
	_ = background.Wait()

	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Error("audit dispatcher did not drain", map[string]interface{}{"error": err})
	}
	for _, c := range closers {
		c()
	}
	log.Info("support agent stopped", nil)
}

func loadConfig(path, policyPath string, port int) (*config.Config, error) {
	if policyPath != "" {
		os.Setenv("VALIDATION_POLICY_FILE", policyPath)
	}
	if port > 0 {
		os.Setenv("SERVER_PORT", fmt.Sprint(port))
	}
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func buildDrafter(cfg *config.Config, gateway *llm.Gateway, log logger.Logger) llm.Drafter {
	provider := func(name string) llm.Drafter {
		switch name {
		case "anthropic":
			return llm.NewAnthropic(llm.AnthropicConfig{
				BaseURL:    cfg.LLM.Anthropic.BaseURL,
				APIKey:     cfg.LLM.Anthropic.APIKey,
				Model:      cfg.LLM.Anthropic.Model,
				MaxTokens:  cfg.LLM.Anthropic.MaxTokens,
				Timeout:    config.GetDuration(cfg.LLM.Timeout),
				MaxRetries: cfg.LLM.MaxRetries,
			})
		case "genai":
			if gateway != nil {
				return gateway
			}
		}
		return nil
	}

	primary := provider(cfg.LLM.Primary)
	if cfg.LLM.Fallback == "" || cfg.LLM.Fallback == cfg.LLM.Primary {
		return primary
	}
	secondary := provider(cfg.LLM.Fallback)
	switch {
	case primary == nil:
		return secondary
	case secondary == nil:
		return primary
	}
	return llm.NewFallback(primary, secondary, log)
}

// buildSinks assembles the configured audit sinks. The returned closers
// release sink connections after the dispatcher has drained.
func buildSinks(ctx context.Context, cfg *config.Config, log logger.Logger) ([]audit.Sink, []func()) {
	sinks := []audit.Sink{audit.NewLogSink(log)}
	var closers []func()

	if cfg.Audit.Kafka.Enabled {
		k := audit.NewKafkaSink(cfg.Audit.Kafka.Brokers, cfg.Audit.Kafka.Topic)
		sinks = append(sinks, k)
		closers = append(closers, func() { _ = k.Close() })
	}

	if cfg.Audit.NATS.Enabled {
		conn, err := audit.ConnectNATS(cfg.Audit.NATS.URL, log)
		if err != nil {
			log.Error("nats audit sink disabled", map[string]interface{}{"error": err})
		} else {
			sinks = append(sinks, audit.NewNATSSink(conn, cfg.Audit.NATS.Subject))
			closers = append(closers, func() { _ = conn.Drain() })
		}
	}

	if cfg.Audit.AWS.SNS.Enabled || cfg.Audit.AWS.SES.Enabled {
		clients, err := aws.New(ctx, cfg.Audit.AWS.Region)
		if err != nil {
			log.Error("aws audit sinks disabled", map[string]interface{}{"error": err})
			return sinks, closers
		}
		if cfg.Audit.AWS.SNS.Enabled {
			sinks = append(sinks, audit.NewSNSSink(clients.SNS, cfg.Audit.AWS.SNS.TopicARN))
		}
		if cfg.Audit.AWS.SES.Enabled {
			sinks = append(sinks, audit.NewEmailNotifier(clients.SES, cfg.Audit.AWS.SES.FromEmail, cfg.Audit.AWS.SES.Recipients))
		}
	}
	return sinks, closers
}
