// Package lifecycle compacts session memory into the persistent per-user
// summary. It owns the trigger guards and the atomicity and idempotence
// contract; the actual text condensation is a pluggable capability.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/xavigate/chatcore/pkg/events"
	"github.com/xavigate/chatcore/pkg/helpers"
	"github.com/xavigate/chatcore/pkg/sessionmemory"
	"github.com/xavigate/chatcore/pkg/summary"
)

// State of a session with respect to compaction.
type State string

const (
	StateActive      State = "ACTIVE"
	StateSummarizing State = "SUMMARIZING"
	StateSummarized  State = "SUMMARIZED"
	StateTerminated  State = "TERMINATED"
)

// Trigger reasons recorded on summarization events.
const (
	TriggerSizeThreshold  = "size_threshold"
	TriggerSessionExpired = "session_expired"
)

// Condenser turns a transcript plus the prior summary into a new summary
// text. Correctness of the lifecycle (atomicity, idempotence) must not
// depend on which implementation is plugged in.
type Condenser interface {
	Condense(ctx context.Context, exchanges []sessionmemory.Exchange, priorSummary string) (string, error)
}

// SummarizationError reports a failed compaction. Session memory is left
// untouched and the session stays ACTIVE for a later retry.
type SummarizationError struct {
	SessionID string
	Err       error
}

func (e *SummarizationError) Error() string {
	return fmt.Sprintf("summarization failed for session %s: %v", e.SessionID, e.Err)
}

func (e *SummarizationError) Unwrap() error { return e.Err }

// Manager drives the per-session compaction state machine:
// ACTIVE -> SUMMARIZING -> SUMMARIZED -> ACTIVE (new) | TERMINATED.
type Manager struct {
	logger    *log.Logger
	sessions  sessionmemory.Store
	summaries *summary.Store
	condenser Condenser
	publisher *events.Publisher
	locks     *helpers.KeyMutex
	timeout   time.Duration

	mu     sync.Mutex
	states map[string]State
}

var _ sessionmemory.Compactor = (*Manager)(nil)

func NewManager(logger *log.Logger, sessions sessionmemory.Store, summaries *summary.Store, condenser Condenser, condenseTimeout time.Duration) *Manager {
	if condenseTimeout <= 0 {
		condenseTimeout = 60 * time.Second
	}
	return &Manager{
		logger:    logger,
		sessions:  sessions,
		summaries: summaries,
		condenser: condenser,
		locks:     helpers.NewKeyMutex(),
		timeout:   condenseTimeout,
		states:    make(map[string]State),
	}
}

// SetPublisher enables best-effort compaction notifications. A nil
// publisher disables them.
func (m *Manager) SetPublisher(p *events.Publisher) {
	m.publisher = p
}

// State reports the session's current lifecycle state.
func (m *Manager) State(sessionID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[sessionID]; ok {
		return s
	}
	return StateActive
}

func (m *Manager) setState(sessionID string, s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s == StateActive {
		delete(m.states, sessionID)
		return
	}
	m.states[sessionID] = s
}

// Compact condenses the session into the persistent summary and clears the
// transcript. Blocks until any in-flight compaction of the same session
// finishes. Compacting an already-compacted (empty) session is a no-op.
func (m *Manager) Compact(ctx context.Context, sessionID, reason string) error {
	m.locks.Lock(sessionID)
	defer m.locks.Unlock(sessionID)

	return m.compactLocked(ctx, sessionID, reason)
}

// Expire ends a session: its transcript is folded into the persistent
// summary and the session moves to TERMINATED. Expiring an already-empty
// session is a no-op, so repeated expiry is safe.
func (m *Manager) Expire(ctx context.Context, sessionID string) error {
	return m.Compact(ctx, sessionID, TriggerSessionExpired)
}

// TryCompact is the turn-triggered path: if a compaction for this session
// is already in flight it returns false immediately instead of blocking
// the turn.
func (m *Manager) TryCompact(ctx context.Context, sessionID, reason string) (bool, error) {
	if !m.locks.TryLock(sessionID) {
		return false, nil
	}
	defer m.locks.Unlock(sessionID)

	return true, m.compactLocked(ctx, sessionID, reason)
}

func (m *Manager) compactLocked(ctx context.Context, sessionID, reason string) error {
	exchanges, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return &SummarizationError{SessionID: sessionID, Err: err}
	}
	if len(exchanges) == 0 {
		// Already compacted (or never used): exactly zero additional
		// summaries and events.
		m.logger.Debug("Skipping compaction of empty session", "session", sessionID)
		return nil
	}

	userID, err := m.sessions.Owner(ctx, sessionID)
	if err != nil || userID == "" {
		return &SummarizationError{SessionID: sessionID, Err: fmt.Errorf("unknown session owner: %v", err)}
	}

	prior, err := m.summaries.Get(ctx, userID)
	if err != nil {
		return &SummarizationError{SessionID: sessionID, Err: err}
	}

	m.setState(sessionID, StateSummarizing)
	m.logger.Info("Compacting session memory",
		"session", sessionID, "user", userID, "reason", reason, "exchanges", len(exchanges))

	condenseCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	summaryText, err := m.condenser.Condense(condenseCtx, exchanges, prior.SummaryText)
	if err != nil || strings.TrimSpace(summaryText) == "" {
		// Failed condensation never discards the original memory.
		m.setState(sessionID, StateActive)
		if err == nil {
			err = fmt.Errorf("condenser returned empty summary")
		}
		return &SummarizationError{SessionID: sessionID, Err: err}
	}

	snapshot := Transcript(exchanges)
	if err := m.summaries.Replace(ctx, userID, summaryText, snapshot, sessionID, reason); err != nil {
		m.setState(sessionID, StateActive)
		return &SummarizationError{SessionID: sessionID, Err: err}
	}

	m.setState(sessionID, StateSummarized)

	// Only the snapshotted exchanges are cleared. The lifecycle lock does
	// not exclude appends, so anything written during condensation keeps
	// its place for the next compaction.
	if err := m.sessions.ClearThrough(ctx, sessionID, len(exchanges)); err != nil {
		// The summary is durable; a lingering transcript only means the
		// next trigger re-compacts with fuller context.
		m.logger.Error("Failed to clear session memory after compaction",
			"session", sessionID, "error", err)
	}

	if reason == TriggerSessionExpired {
		m.setState(sessionID, StateTerminated)
	} else {
		m.setState(sessionID, StateActive)
	}

	m.publisher.PublishSummarized(events.SummarizedEvent{
		SessionID:     sessionID,
		UserID:        userID,
		TriggerReason: reason,
		CreatedAt:     time.Now().UTC(),
	})

	m.logger.Info("Session memory compacted", "session", sessionID, "user", userID, "reason", reason)
	return nil
}

// Transcript renders exchanges as role-prefixed lines, used both for the
// condensation input and the stored snapshot.
func Transcript(exchanges []sessionmemory.Exchange) string {
	var b strings.Builder
	for _, exchange := range exchanges {
		fmt.Fprintf(&b, "%s: %s\n", exchange.Role, exchange.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
