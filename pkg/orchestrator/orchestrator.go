// Package orchestrator sequences one chat turn: config snapshot, memory
// reads, threshold-triggered compaction, retrieval, prompt assembly, the
// model call, and the atomic write-back of the exchange pair.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go"
	"github.com/pkg/errors"

	"github.com/xavigate/chatcore/pkg/ai"
	"github.com/xavigate/chatcore/pkg/events"
	"github.com/xavigate/chatcore/pkg/lifecycle"
	"github.com/xavigate/chatcore/pkg/promptbuilder"
	"github.com/xavigate/chatcore/pkg/retrieval"
	"github.com/xavigate/chatcore/pkg/runtimeconfig"
	"github.com/xavigate/chatcore/pkg/sessionmemory"
	"github.com/xavigate/chatcore/pkg/summary"
	"github.com/xavigate/chatcore/pkg/traits"
)

// TurnRequest is the caller contract for one chat turn. UserID and
// SessionID are distinct required keys: user identity addresses long-term
// memory, session identity addresses the transcript.
type TurnRequest struct {
	UserID      string             `json:"userId"`
	Username    string             `json:"username"`
	FullName    string             `json:"fullName"`
	SessionID   string             `json:"sessionId"`
	TraitScores map[string]float64 `json:"traitScores"`
	Message     string             `json:"message"`
}

// TurnResult is returned on a fully completed turn. Sources is the
// post-truncation chunk list actually present in the prompt.
type TurnResult struct {
	Answer   string            `json:"answer"`
	Sources  []retrieval.Chunk `json:"sources"`
	Plan     map[string]any    `json:"plan"`
	Critique string            `json:"critique"`
	Followup string            `json:"followup"`
}

// ModelCallError reports a failed primary model call. The turn is aborted
// with nothing persisted; the session is unchanged and safe to retry.
type ModelCallError struct {
	Err error
}

func (e *ModelCallError) Error() string {
	return fmt.Sprintf("model call failed: %v", e.Err)
}

func (e *ModelCallError) Unwrap() error { return e.Err }

// ValidationError reports a request missing one of its required keys.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

type Orchestrator struct {
	logger      *log.Logger
	config      *runtimeconfig.Store
	sessions    sessionmemory.Store
	summaries   *summary.Store
	lifecycle   *lifecycle.Manager
	retriever   retrieval.Client
	completions ai.Completion
	publisher   *events.Publisher

	retrievalTimeout time.Duration
	modelTimeout     time.Duration
}

type Options struct {
	RetrievalTimeout time.Duration
	ModelTimeout     time.Duration
}

func New(
	logger *log.Logger,
	config *runtimeconfig.Store,
	sessions sessionmemory.Store,
	summaries *summary.Store,
	lifecycleManager *lifecycle.Manager,
	retriever retrieval.Client,
	completions ai.Completion,
	publisher *events.Publisher,
	opts Options,
) *Orchestrator {
	if opts.RetrievalTimeout <= 0 {
		opts.RetrievalTimeout = 5 * time.Second
	}
	if opts.ModelTimeout <= 0 {
		opts.ModelTimeout = 60 * time.Second
	}
	return &Orchestrator{
		logger:           logger,
		config:           config,
		sessions:         sessions,
		summaries:        summaries,
		lifecycle:        lifecycleManager,
		retriever:        retriever,
		completions:      completions,
		publisher:        publisher,
		retrievalTimeout: opts.RetrievalTimeout,
		modelTimeout:     opts.ModelTimeout,
	}
}

// Turn runs one chat turn. Every turn ends in either a complete answer or
// a typed failure; a half-persisted session is never observable.
func (o *Orchestrator) Turn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	if err := validate(req); err != nil {
		return TurnResult{}, err
	}

	// One consistent snapshot for the whole turn; never refetched.
	cfg := o.config.Snapshot()

	o.maybeCompact(ctx, cfg, req.SessionID)

	history, err := o.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return TurnResult{}, errors.Wrap(err, "failed to read session memory")
	}
	priorSummary, err := o.summaries.Get(ctx, req.UserID)
	if err != nil {
		return TurnResult{}, errors.Wrap(err, "failed to read persistent summary")
	}

	chunks := o.retrieve(ctx, cfg, req.Message)

	built, err := promptbuilder.Build(promptbuilder.Input{
		BasePromptTemplate:  cfg.SystemPromptTemplate,
		Style:               cfg.PromptStyle,
		CustomStyleModifier: cfg.CustomStyleModifier,
		Username:            req.Username,
		FullName:            req.FullName,
		Traits:              traits.Profile(req.TraitScores),
		Summary:             priorSummary.SummaryText,
		History:             history,
		Chunks:              chunks,
		HistoryLimit:        cfg.ConversationHistoryLimit,
		TopK:                cfg.TopKRagHits,
		MaxChars:            cfg.MaxPromptChars,
	})
	if err != nil {
		var configErr *promptbuilder.ConfigurationError
		if !errors.As(err, &configErr) {
			return TurnResult{}, errors.Wrap(err, "failed to build prompt")
		}
		// Bad style configuration fails closed to the default style.
		o.logger.Warn("Prompt configuration error, using default style",
			"session", req.SessionID, "error", err)
	}

	answer, err := o.callModel(ctx, cfg, built.Prompt, req.Message)
	if err != nil {
		// No persistence on model failure: the session is unchanged and
		// the caller may retry.
		return TurnResult{}, &ModelCallError{Err: err}
	}

	now := time.Now().UTC()
	err = o.sessions.Append(ctx, req.SessionID, req.UserID,
		sessionmemory.Exchange{Role: sessionmemory.RoleUser, Content: req.Message, CreatedAt: now},
		sessionmemory.Exchange{Role: sessionmemory.RoleAssistant, Content: answer, CreatedAt: now},
	)
	if err != nil {
		return TurnResult{}, errors.Wrap(err, "failed to persist exchange pair")
	}

	o.publisher.PublishTurn(events.TurnEvent{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Answer:    answer,
		CreatedAt: now,
	})

	return TurnResult{
		Answer:   answer,
		Sources:  built.Sources,
		Plan:     map[string]any{},
		Critique: "",
		Followup: "",
	}, nil
}

func validate(req TurnRequest) error {
	switch {
	case req.UserID == "":
		return &ValidationError{Field: "userId"}
	case req.SessionID == "":
		return &ValidationError{Field: "sessionId"}
	case req.Message == "":
		return &ValidationError{Field: "message"}
	}
	return nil
}

// maybeCompact triggers compaction when the session exceeds the size
// threshold. Failure degrades: the turn proceeds with unreduced history.
func (o *Orchestrator) maybeCompact(ctx context.Context, cfg runtimeconfig.Config, sessionID string) {
	size, err := o.sessions.SizeOf(ctx, sessionID)
	if err != nil {
		o.logger.Warn("Failed to measure session memory", "session", sessionID, "error", err)
		return
	}

	// Exceeding is strict: a session exactly at the threshold stays put.
	if size.Messages <= cfg.SessionMemoryMessageLimit && size.Chars <= cfg.SessionMemoryCharLimit {
		return
	}

	ran, err := o.lifecycle.TryCompact(ctx, sessionID, lifecycle.TriggerSizeThreshold)
	if err != nil {
		o.logger.Warn("Compaction failed, proceeding with unreduced history",
			"session", sessionID, "error", err)
		return
	}
	if !ran {
		o.logger.Debug("Compaction already in flight", "session", sessionID)
	}
}

// retrieve degrades every failure, including timeout, to an empty chunk
// set. Retrieval is never fatal to a turn.
func (o *Orchestrator) retrieve(ctx context.Context, cfg runtimeconfig.Config, query string) []retrieval.Chunk {
	if cfg.TopKRagHits <= 0 {
		return nil
	}

	searchCtx, cancel := context.WithTimeout(ctx, o.retrievalTimeout)
	defer cancel()

	chunks, err := o.retriever.Search(searchCtx, query, cfg.TopKRagHits)
	if err != nil {
		o.logger.Warn("Retrieval failed, degrading to empty sources", "error", err)
		return nil
	}
	return chunks
}

func (o *Orchestrator) callModel(ctx context.Context, cfg runtimeconfig.Config, prompt, message string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.modelTimeout)
	defer cancel()

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(prompt),
		openai.UserMessage(message),
	}

	return o.completions.Completions(callCtx, messages, ai.CompletionParams{
		Model:            cfg.Model,
		Temperature:      cfg.Temperature,
		MaxTokens:        cfg.MaxTokens,
		PresencePenalty:  cfg.PresencePenalty,
		FrequencyPenalty: cfg.FrequencyPenalty,
	})
}
