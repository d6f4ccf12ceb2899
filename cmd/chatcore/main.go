package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xavigate/chatcore/pkg/ai"
	"github.com/xavigate/chatcore/pkg/config"
	"github.com/xavigate/chatcore/pkg/db"
	"github.com/xavigate/chatcore/pkg/events"
	"github.com/xavigate/chatcore/pkg/lifecycle"
	"github.com/xavigate/chatcore/pkg/orchestrator"
	"github.com/xavigate/chatcore/pkg/retrieval"
	"github.com/xavigate/chatcore/pkg/runtimeconfig"
	"github.com/xavigate/chatcore/pkg/server"
	"github.com/xavigate/chatcore/pkg/sessionmemory"
	"github.com/xavigate/chatcore/pkg/sessionmemory/redisstore"
	"github.com/xavigate/chatcore/pkg/summary"
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		Level:           log.DebugLevel,
		TimeFormat:      time.Kitchen,
	})

	envs, err := config.LoadConfig(true)
	if err != nil {
		logger.Error("Unable to load config", "error", err)
		panic(errors.Wrap(err, "Unable to load config"))
	}

	store, err := db.NewStore(envs.DBPath)
	if err != nil {
		logger.Error("Unable to open database", "error", err)
		panic(errors.Wrap(err, "Unable to open database"))
	}
	defer store.Close()

	configStore, err := runtimeconfig.NewStore(store.DB())
	if err != nil {
		logger.Error("Unable to load runtime config", "error", err)
		panic(errors.Wrap(err, "Unable to load runtime config"))
	}

	aiService := ai.NewOpenAIService(logger, envs.CompletionsAPIKey, envs.CompletionsAPIURL)
	embeddingsService := ai.NewOpenAIService(logger, envs.EmbeddingsAPIKey, envs.EmbeddingsAPIURL)

	sessions := buildSessionStore(logger, envs, store)
	summaries := summary.NewStore(store.DB())

	condenser := lifecycle.NewLLMCondenser(aiService, envs.CondenserModel)
	manager := lifecycle.NewManager(logger, sessions, summaries, condenser, 60*time.Second)
	sessions.SetCompactor(manager)

	var nc *nats.Conn
	if envs.NatsURL != "" {
		nc, err = nats.Connect(envs.NatsURL)
		if err != nil {
			logger.Warn("NATS unavailable, events disabled", "url", envs.NatsURL, "error", err)
			nc = nil
		} else {
			defer nc.Close()
		}
	}
	publisher := events.NewPublisher(nc, logger)
	manager.SetPublisher(publisher)

	retriever := buildRetriever(logger, envs, embeddingsService)

	orch := orchestrator.New(logger, configStore, sessions, summaries, manager,
		retriever, aiService, publisher, orchestrator.Options{})

	srv := server.New(logger, orch, configStore, summaries, manager)

	httpServer := &http.Server{
		Addr:    ":" + envs.HTTPPort,
		Handler: srv.Router(),
	}

	go func() {
		logger.Info("Starting chatcore server", "address", "http://localhost:"+envs.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			panic(errors.Wrap(err, "Unable to start server"))
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	<-signalChan
	logger.Info("chatcore shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
}

// sessionStore is what main needs beyond the read/write interface: the
// compaction hook is wired after the lifecycle manager exists.
type sessionStore interface {
	sessionmemory.Store
	SetCompactor(sessionmemory.Compactor)
}

func buildSessionStore(logger *log.Logger, envs *config.Config, store *db.Store) sessionStore {
	if envs.SessionBackend == "redis" {
		logger.Info("Using Redis session memory", "addr", envs.RedisAddr)
		client := redis.NewClient(&redis.Options{Addr: envs.RedisAddr})
		return redisstore.New(client)
	}
	return sessionmemory.NewSQLiteStore(store.DB())
}

func buildRetriever(logger *log.Logger, envs *config.Config, embeddings *ai.Service) retrieval.Client {
	if envs.RetrievalBackend != "chromem" {
		logger.Info("Knowledge retrieval disabled", "backend", envs.RetrievalBackend)
		return retrieval.Noop{}
	}

	embed := func(ctx context.Context, text string) ([]float32, error) {
		vector, err := embeddings.Embedding(ctx, text, envs.EmbeddingsModel)
		if err != nil {
			return nil, err
		}
		out := make([]float32, len(vector))
		for i, v := range vector {
			out[i] = float32(v)
		}
		return out, nil
	}

	client, err := retrieval.NewChromemClient(logger, embed)
	if err != nil {
		logger.Error("Unable to create knowledge base, retrieval disabled", "error", err)
		return retrieval.Noop{}
	}

	if envs.KnowledgePath != "" {
		docs, err := retrieval.LoadDocumentsFile(envs.KnowledgePath)
		if err != nil {
			logger.Error("Unable to load knowledge file", "path", envs.KnowledgePath, "error", err)
		} else if err := client.Ingest(context.Background(), docs); err != nil {
			logger.Error("Unable to ingest knowledge documents", "error", err)
		}
	}

	return client
}
