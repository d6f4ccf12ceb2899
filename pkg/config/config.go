package config

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
)

type Config struct {
	CompletionsAPIURL string
	CompletionsAPIKey string
	CompletionsModel  string
	CondenserModel    string
	EmbeddingsAPIURL  string
	EmbeddingsAPIKey  string
	EmbeddingsModel   string
	HTTPPort          string
	DBPath            string
	SessionBackend    string
	RedisAddr         string
	RetrievalBackend  string
	KnowledgePath     string
	NatsURL           string
}

func getEnv(key, defaultValue string, printEnv bool) string {
	logger := log.Default()
	value := os.Getenv(key)
	if printEnv {
		logger.Info("Env", "key", key, "value", value)
	}
	if value == "" {
		return defaultValue
	}
	return value
}

func LoadConfig(printEnv bool) (*Config, error) {
	_ = godotenv.Load()

	conf := &Config{
		CompletionsAPIURL: getEnv("COMPLETIONS_API_URL", "https://api.openai.com/v1", printEnv),
		CompletionsAPIKey: getEnv("COMPLETIONS_API_KEY", "", printEnv),
		CompletionsModel:  getEnv("COMPLETIONS_MODEL", "gpt-4o", printEnv),
		CondenserModel:    getEnv("CONDENSER_MODEL", "gpt-4o-mini", printEnv),
		EmbeddingsAPIURL:  getEnv("EMBEDDINGS_API_URL", "https://api.openai.com/v1", printEnv),
		EmbeddingsAPIKey:  getEnv("EMBEDDINGS_API_KEY", "", printEnv),
		EmbeddingsModel:   getEnv("EMBEDDINGS_MODEL", "text-embedding-3-small", printEnv),
		HTTPPort:          getEnv("HTTP_PORT", "8015", printEnv),
		DBPath:            getEnv("DB_PATH", "./output/sqlite/chatcore.db", printEnv),
		SessionBackend:    getEnv("SESSION_BACKEND", "sqlite", printEnv),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379", printEnv),
		RetrievalBackend:  getEnv("RETRIEVAL_BACKEND", "chromem", printEnv),
		KnowledgePath:     getEnv("KNOWLEDGE_PATH", "", printEnv),
		NatsURL:           getEnv("NATS_URL", "", printEnv),
	}

	if conf.EmbeddingsAPIKey == "" {
		conf.EmbeddingsAPIKey = conf.CompletionsAPIKey
	}

	return conf, nil
}
