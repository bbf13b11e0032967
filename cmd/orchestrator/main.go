// cmd/orchestrator/main.go
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"campaign-orchestrator/internal/agents/audience"
	"campaign-orchestrator/internal/agents/campaign"
	"campaign-orchestrator/internal/agents/classify"
	"campaign-orchestrator/internal/agents/journey"
	"campaign-orchestrator/internal/agents/research"
	"campaign-orchestrator/internal/common/config"
	"campaign-orchestrator/internal/common/database"
	apperrors "campaign-orchestrator/internal/common/errors"
	"campaign-orchestrator/internal/common/logger"
	"campaign-orchestrator/internal/common/observability"
	"campaign-orchestrator/internal/format"
	"campaign-orchestrator/internal/llm"
	"campaign-orchestrator/internal/orchestrator"
	"campaign-orchestrator/internal/store"
	"campaign-orchestrator/internal/tools"
	"campaign-orchestrator/internal/validate"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting orchestrator...",
		zap.String("app", cfg.App.Name),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *sql.DB
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		return err
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var redisClient *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redisClient, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redisClient.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redisClient.Close()
	zapLog.Info("Redis connected successfully")

	// --- Stores ---
	records := store.NewPostgresRecordStore(pg, log)
	knowledge := store.NewElasticKnowledgeStore(esClient.Client, cfg.Database.Elasticsearch.KnowledgeIndex, log)
	sessions := store.NewRedisSessionStore(redisClient.Client,
		time.Duration(cfg.Session.TTLHours)*time.Hour, log)

	// --- Model gateway ---
	gateway := llm.NewClient(&llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Timeout:     time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		MaxAttempts: cfg.LLM.MaxAttempts,
		BackoffBase: time.Duration(cfg.LLM.BackoffBaseMS) * time.Millisecond,
	}, log)

	// --- Tool registry ---
	registry := tools.NewRegistry(records, knowledge, log)

	// --- Specialist agents ---
	classifyCfg := cfg.AgentConfigFor("classification")
	classifier := classify.NewHandler(&classify.Config{
		Temperature:            classifyCfg.Temperature,
		MaxTokens:              classifyCfg.MaxTokens,
		Timeout:                time.Duration(classifyCfg.TimeoutSeconds) * time.Second,
		ContextTurns:           cfg.Classification.ContextTurns,
		LowConfidenceThreshold: cfg.Classification.LowConfidenceThreshold,
	}, gateway, log)

	researchCfg := cfg.AgentConfigFor("research")
	researchAgent := research.NewHandler(&research.Config{
		Temperature:   researchCfg.Temperature,
		MaxTokens:     researchCfg.MaxTokens,
		Timeout:       time.Duration(researchCfg.TimeoutSeconds) * time.Second,
		MaxToolRounds: researchCfg.MaxToolRounds,
	}, gateway, registry, log)

	audienceCfg := cfg.AgentConfigFor("audience")
	audienceAgent := audience.NewHandler(&audience.Config{
		Temperature:   audienceCfg.Temperature,
		MaxTokens:     audienceCfg.MaxTokens,
		Timeout:       time.Duration(audienceCfg.TimeoutSeconds) * time.Second,
		MaxToolRounds: audienceCfg.MaxToolRounds,
	}, gateway, registry, log)

	journeyCfg := cfg.AgentConfigFor("journey")
	journeyAgent := journey.NewHandler(&journey.Config{
		Temperature:         journeyCfg.Temperature,
		MaxTokens:           journeyCfg.MaxTokens,
		Timeout:             time.Duration(journeyCfg.TimeoutSeconds) * time.Second,
		ControlGroupPercent: cfg.Journey.ControlGroupPercent,
	}, gateway, log)

	campaignCfg := cfg.AgentConfigFor("campaign")
	campaignAgent := campaign.NewHandler(&campaign.Config{
		Temperature:         campaignCfg.Temperature,
		MaxTokens:           campaignCfg.MaxTokens,
		Timeout:             time.Duration(campaignCfg.TimeoutSeconds) * time.Second,
		MaxToolRounds:       campaignCfg.MaxToolRounds,
		DefaultDurationDays: cfg.Journey.DefaultDurationDays,
	}, gateway, registry, audienceAgent, journeyAgent, log)

	// --- Pipeline ---
	pipeline := orchestrator.New(orchestrator.DefaultConfig(), orchestrator.Deps{
		Classifier: classifier,
		Research:   researchAgent,
		Audience:   audienceAgent,
		Campaign:   campaignAgent,
		Records:    records,
		Knowledge:  knowledge,
		Sessions:   sessions,
		Validator:  validate.NewValidator(records, cfg.Validation.PassThreshold, log),
		Formatter:  format.NewFormatter(log),
	}, log)

	zapLog.Info("Pipeline assembled")

	// Health check and metrics endpoint
	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		metricsMux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
		})
		metricsMux.Handle("/metrics", promhttp.Handler())

		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		zapLog.Info("Metrics server listening", zap.Int("port", cfg.Server.MetricsPort))
		if err := http.ListenAndServe(addr, metricsMux); err != nil {
			zapLog.Error("Metrics server failed", zap.Error(err))
		}
	}()

	// --- HTTP surface ---
	mux := http.NewServeMux()
	mux.HandleFunc("/api/dialog", dialogHandler(pipeline, zapLog))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: mux,
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}

	zapLog.Info("Orchestrator stopped gracefully")
}

func dialogHandler(pipeline *orchestrator.Orchestrator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req orchestrator.TurnRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperrors.New(apperrors.ErrCodeValidationError, "invalid request body", err.Error(), false))
			return
		}

		resp, err := pipeline.ProcessTurn(r.Context(), &req)
		if err != nil {
			log.Warn("rejected request", zap.Error(err))
			writeError(w, apperrors.New(apperrors.ErrCodeValidationError, err.Error(), "", false))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func writeError(w http.ResponseWriter, se *apperrors.StandardError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(se)
}
