// Command worker boots the Temporal worker process that runs
// ResearchWorkflow: it wires every storage/provider/transport dependency
// from environment variables and runs the compiled agent graph end to
// end. Grounded on the teacher's root main.go worker-bootstrap section —
// the TCP pre-check loop, capped-backoff Temporal dial retry, and
// Prometheus metrics goroutine are unchanged in shape; the priority-queue
// mode and the gRPC/HTTP admin surface are dropped since nothing in this
// service needs them.
package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
	temporallog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/thornxyz/revera/internal/agents/critic"
	"github.com/thornxyz/revera/internal/agents/imagegen"
	"github.com/thornxyz/revera/internal/agents/planner"
	"github.com/thornxyz/revera/internal/agents/synthesis"
	"github.com/thornxyz/revera/internal/circuitbreaker"
	"github.com/thornxyz/revera/internal/config"
	"github.com/thornxyz/revera/internal/eventstream"
	"github.com/thornxyz/revera/internal/llmgateway"
	"github.com/thornxyz/revera/internal/logging"
	"github.com/thornxyz/revera/internal/memory"
	"github.com/thornxyz/revera/internal/orchestrator"
	"github.com/thornxyz/revera/internal/policy"
	"github.com/thornxyz/revera/internal/relational"
	"github.com/thornxyz/revera/internal/retrieval"
	"github.com/thornxyz/revera/internal/storage"
	"github.com/thornxyz/revera/internal/vectordb"
	"github.com/thornxyz/revera/internal/websearch"
)

func main() {
	ctx := context.Background()

	features, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.Setup(features.Observability)
	defer logger.Sync()

	redisClient := redis.NewClient(&redis.Options{Addr: getEnvOrDefault("REDIS_ADDR", "localhost:6379")})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping failed at startup, continuing, dependents will degrade", zap.Error(err))
	}
	redisWrapper := circuitbreaker.NewRedisWrapper(redisClient, logger)

	vectordb.Initialize(vectordb.Config{
		Enabled:            true,
		Host:               getEnvOrDefault("QDRANT_HOST", "localhost"),
		Port:               getEnvOrDefaultInt("QDRANT_PORT", 6333),
		Chunks:             getEnvOrDefault("QDRANT_CHUNKS_COLLECTION", "document_chunks"),
		Memory:             getEnvOrDefault("QDRANT_MEMORY_COLLECTION", "agent_memory"),
		TopK:               features.Retrieval.TopK,
		PrefetchMultiplier: features.Retrieval.PrefetchMultiplier,
		Timeout:            15 * time.Second,
		ExpectedDenseDim:   3072,
	}, logger)

	websearch.Initialize(websearch.Config{
		Enabled:    getEnvOrDefault("TAVILY_API_KEY", "") != "",
		APIKey:     getEnvOrDefault("TAVILY_API_KEY", ""),
		BaseURL:    getEnvOrDefault("TAVILY_BASE_URL", ""),
		MaxResults: features.WebSearch.MaxResults,
		Timeout:    15 * time.Second,
	}, logger)

	gateway, err := llmgateway.New(llmgateway.Config{
		OpenAI: llmgateway.OpenAIConfig{
			APIKey:         getEnvOrDefault("OPENAI_API_KEY", ""),
			ChatModel:      getEnvOrDefault("OPENAI_CHAT_MODEL", "gpt-4o"),
			EmbeddingModel: getEnvOrDefault("OPENAI_EMBEDDING_MODEL", "text-embedding-3-large"),
			ImageModel:     getEnvOrDefault("OPENAI_IMAGE_MODEL", "gpt-image-1"),
		},
		Anthropic: llmgateway.AnthropicConfig{
			APIKey:               getEnvOrDefault("ANTHROPIC_API_KEY", ""),
			ChatModel:            getEnvOrDefault("ANTHROPIC_CHAT_MODEL", "claude-sonnet-4-20250514"),
			ThinkingBudgetTokens: int64(getEnvOrDefaultInt("ANTHROPIC_THINKING_BUDGET_TOKENS", 2048)),
		},
		EmbeddingCacheTTL:  24 * time.Hour,
		GenerationCacheTTL: 10 * time.Minute,
		LocalLRUCapacity:   getEnvOrDefaultInt("LLM_LOCAL_LRU_CAPACITY", 1024),
		RequestsPerSecond:  20,
		RequestBurst:       10,
	}, redisWrapper, logger)
	if err != nil {
		log.Fatalf("construct llm gateway: %v", err)
	}

	objectStore, err := storage.New(ctx, storage.Config{
		Bucket:          getEnvOrDefault("S3_BUCKET", "images"),
		Region:          getEnvOrDefault("S3_REGION", "us-east-1"),
		Endpoint:        getEnvOrDefault("S3_ENDPOINT", ""),
		AccessKeyID:     getEnvOrDefault("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnvOrDefault("S3_SECRET_ACCESS_KEY", ""),
		PublicBaseURL:   getEnvOrDefault("S3_PUBLIC_BASE_URL", ""),
		UsePathStyle:    config.ParseBool(getEnvOrDefault("S3_USE_PATH_STYLE", "true")),
	}, logger)
	if err != nil {
		log.Fatalf("construct object store: %v", err)
	}

	policyEngine, err := policy.New(policy.Config{
		Enabled:    config.ParseBool(getEnvOrDefault("POLICY_ENABLED", "true")),
		Path:       getEnvOrDefault("POLICY_PATH", "config/policies"),
		Mode:       policy.Mode(getEnvOrDefault("POLICY_MODE", string(policy.ModeEnforce))),
		FailClosed: config.ParseBool(getEnvOrDefault("POLICY_FAIL_CLOSED", "true")),
	}, logger)
	if err != nil {
		log.Fatalf("construct policy engine: %v", err)
	}

	relationalClient, err := relational.New(relational.Config{
		Host:            getEnvOrDefault("POSTGRES_HOST", "localhost"),
		Port:            getEnvOrDefaultInt("POSTGRES_PORT", 5432),
		User:            getEnvOrDefault("POSTGRES_USER", "revera"),
		Password:        getEnvOrDefault("POSTGRES_PASSWORD", ""),
		Database:        getEnvOrDefault("POSTGRES_DB", "revera"),
		SSLMode:         getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		MaxConnections:  getEnvOrDefaultInt("POSTGRES_MAX_CONNECTIONS", 20),
		IdleConnections: getEnvOrDefaultInt("POSTGRES_IDLE_CONNECTIONS", 5),
		MaxLifetime:     30 * time.Minute,
	}, logger)
	if err != nil {
		log.Fatalf("construct relational client: %v", err)
	}
	defer relationalClient.Close()

	eventsManager := eventstream.New(redisClient, getEnvOrDefaultInt("EVENTSTREAM_CAPACITY", 64), logger)
	embed := orchestrator.NewEmbedder(gateway)
	memoryStore := memory.New(vectordb.Get(), embed, logger)
	retrievalService := retrieval.New(vectordb.Get(), embed, orchestrator.NewQueryRewriter(gateway), logger)
	webSearchService := websearch.New(websearch.Get(), orchestrator.NewQueryExpander(gateway), logger)

	orchestratorActivities := &orchestrator.Activities{
		Relational: relationalClient,
		Policy:     policyEngine,
		Memory:     memoryStore,
		Events:     eventsManager,
		Retrieval:  retrievalService,
		WebSearch:  webSearchService,
		Config: orchestrator.Config{
			TopK:             features.Retrieval.TopK,
			WebMaxResults:    features.WebSearch.MaxResults,
			MaxIterations:    config.MaxIterations(features),
			CriticTimeout:    time.Duration(features.Synthesis.CriticTimeoutSeconds) * time.Second,
			ChunksCollection: getEnvOrDefault("QDRANT_CHUNKS_COLLECTION", "document_chunks"),
			MemoryCollection: getEnvOrDefault("QDRANT_MEMORY_COLLECTION", "agent_memory"),
		},
	}

	deps := orchestrator.Deps{
		Orchestrator: orchestratorActivities,
		Planner:      &planner.Activities{LLM: gateway},
		Synthesis:    &synthesis.Activities{LLM: gateway, Events: eventsManager, Model: getEnvOrDefault("ANTHROPIC_CHAT_MODEL", "claude-sonnet-4-20250514")},
		Critic:       &critic.Activities{LLM: gateway, Timeout: time.Duration(features.Synthesis.CriticTimeoutSeconds) * time.Second},
		ImageGen:     &imagegen.Activities{LLM: gateway, Storage: objectStore},
	}

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		port := config.MetricsPort(2112)
		addr := ":" + strconv.Itoa(port)
		logger.Info("metrics server listening", zap.String("address", addr))
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Error("metrics server exited", zap.Error(err))
		}
	}()

	host := getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	for i := 1; i <= 60; i++ {
		c, err := net.DialTimeout("tcp", host, 2*time.Second)
		if err == nil {
			_ = c.Close()
			break
		}
		logger.Warn("waiting for temporal tcp endpoint", zap.String("host", host), zap.Int("attempt", i))
		time.Sleep(time.Second)
	}

	var temporalClient client.Client
	for attempt := 1; ; attempt++ {
		temporalClient, err = client.Dial(client.Options{
			HostPort: host,
			Logger:   zapTemporalLogger{log: logger},
		})
		if err == nil {
			break
		}
		delay := time.Duration(attempt) * time.Second
		if delay > 15*time.Second {
			delay = 15 * time.Second
		}
		logger.Warn("temporal not ready, retrying", zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(delay)
	}
	defer temporalClient.Close()

	taskQueue := getEnvOrDefault("TEMPORAL_TASK_QUEUE", "revera-research")
	wk := worker.New(temporalClient, taskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     getEnvOrDefaultInt("WORKER_ACT", 10),
		MaxConcurrentWorkflowTaskExecutionSize: getEnvOrDefaultInt("WORKER_WF", 10),
	})
	orchestrator.Register(wk, deps)

	logger.Info("temporal worker started", zap.String("task_queue", taskQueue))
	if err := wk.Run(worker.InterruptCh()); err != nil {
		logger.Fatal("temporal worker exited with error", zap.Error(err))
	}
}

// zapTemporalLogger adapts *zap.Logger to go.temporal.io/sdk/log.Logger,
// the same bridge the teacher's internal/temporal.NewZapAdapter provides.
type zapTemporalLogger struct{ log *zap.Logger }

func (l zapTemporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.log.Sugar().Debugw(msg, keyvals...)
}
func (l zapTemporalLogger) Info(msg string, keyvals ...interface{}) {
	l.log.Sugar().Infow(msg, keyvals...)
}
func (l zapTemporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.log.Sugar().Warnw(msg, keyvals...)
}
func (l zapTemporalLogger) Error(msg string, keyvals ...interface{}) {
	l.log.Sugar().Errorw(msg, keyvals...)
}

var _ temporallog.Logger = zapTemporalLogger{}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}
