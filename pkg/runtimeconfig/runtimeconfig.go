// Package runtimeconfig holds the single admin-editable record of
// generation settings. Reads are served from an in-process snapshot;
// writes replace the whole record and bump its version (last write wins).
package runtimeconfig

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// Styles accepted for Config.PromptStyle. Anything else resolves to default.
const (
	StyleDefault      = "default"
	StyleEmpathetic   = "empathetic"
	StyleAnalytical   = "analytical"
	StyleMotivational = "motivational"
	StyleSocratic     = "socratic"
	StyleCustom       = "custom"
)

// Config is one consistent snapshot of the runtime settings. Orchestrator
// turns take a snapshot once and never refetch mid-turn.
type Config struct {
	Version                   int     `json:"version"`
	SystemPromptTemplate      string  `json:"systemPromptTemplate"`
	PromptStyle               string  `json:"promptStyle"`
	CustomStyleModifier       string  `json:"customStyleModifier"`
	ConversationHistoryLimit  int     `json:"conversationHistoryLimit"`
	TopKRagHits               int     `json:"topKRagHits"`
	SessionMemoryCharLimit    int     `json:"sessionMemoryCharLimit"`
	SessionMemoryMessageLimit int     `json:"sessionMemoryMessageLimit"`
	MaxPromptChars            int     `json:"maxPromptChars"`
	Model                     string  `json:"model"`
	CondenserModel            string  `json:"condenserModel"`
	Temperature               float64 `json:"temperature"`
	MaxTokens                 int     `json:"maxTokens"`
	PresencePenalty           float64 `json:"presencePenalty"`
	FrequencyPenalty          float64 `json:"frequencyPenalty"`
}

// DefaultConfig returns the settings used until an admin replaces them.
func DefaultConfig() Config {
	return Config{
		PromptStyle:               StyleDefault,
		ConversationHistoryLimit:  10,
		TopKRagHits:               3,
		SessionMemoryCharLimit:    10000,
		SessionMemoryMessageLimit: 40,
		MaxPromptChars:            20000,
		Model:                     "gpt-4o",
		CondenserModel:            "gpt-4o-mini",
		Temperature:               0.7,
		MaxTokens:                 1000,
	}
}

func validStyle(style string) bool {
	switch style {
	case StyleDefault, StyleEmpathetic, StyleAnalytical, StyleMotivational, StyleSocratic, StyleCustom:
		return true
	}
	return false
}

// normalize clamps out-of-range values rather than rejecting the record.
func normalize(c Config) Config {
	def := DefaultConfig()
	if !validStyle(c.PromptStyle) {
		c.PromptStyle = StyleDefault
	}
	if c.ConversationHistoryLimit < 0 {
		c.ConversationHistoryLimit = 0
	}
	if c.TopKRagHits < 0 {
		c.TopKRagHits = 0
	}
	if c.SessionMemoryCharLimit <= 0 {
		c.SessionMemoryCharLimit = def.SessionMemoryCharLimit
	}
	if c.SessionMemoryMessageLimit <= 0 {
		c.SessionMemoryMessageLimit = def.SessionMemoryMessageLimit
	}
	if c.MaxPromptChars <= 0 {
		c.MaxPromptChars = def.MaxPromptChars
	}
	if c.Model == "" {
		c.Model = def.Model
	}
	if c.CondenserModel == "" {
		c.CondenserModel = def.CondenserModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = def.MaxTokens
	}
	return c
}

// Store persists the record in SQLite and caches the latest snapshot.
type Store struct {
	db      *sqlx.DB
	current atomic.Pointer[Config]
}

func NewStore(db *sqlx.DB) (*Store, error) {
	s := &Store{db: db}

	cfg, err := s.load(context.Background())
	if err != nil {
		return nil, err
	}
	s.current.Store(&cfg)
	return s, nil
}

func (s *Store) load(ctx context.Context) (Config, error) {
	var row struct {
		Version int    `db:"version"`
		Payload string `db:"payload"`
	}
	err := s.db.GetContext(ctx, &row, `SELECT version, payload FROM runtime_config WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to load runtime config")
	}

	var cfg Config
	if err := json.Unmarshal([]byte(row.Payload), &cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode runtime config payload")
	}
	cfg.Version = row.Version
	return normalize(cfg), nil
}

// Snapshot returns the current settings as a value. The caller holds it for
// the whole turn; later replaces never mutate an issued snapshot.
func (s *Store) Snapshot() Config {
	return *s.current.Load()
}

// Replace overwrites the whole record. Partial patches are not supported.
func (s *Store) Replace(ctx context.Context, cfg Config) (Config, error) {
	cfg = normalize(cfg)

	payload, err := json.Marshal(cfg)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to encode runtime config")
	}

	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runtime_config (id, version, payload, updated_at)
		VALUES (1, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version = runtime_config.version + 1,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		string(payload), now)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to replace runtime config")
	}
	if _, err := res.RowsAffected(); err != nil {
		return Config{}, err
	}

	stored, err := s.load(ctx)
	if err != nil {
		return Config{}, err
	}
	s.current.Store(&stored)
	return stored, nil
}
