package lifecycle

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xavigate/chatcore/pkg/db"
	"github.com/xavigate/chatcore/pkg/sessionmemory"
	"github.com/xavigate/chatcore/pkg/summary"
	chatcoretesting "github.com/xavigate/chatcore/pkg/testing"
)

type stubCondenser struct {
	calls   int
	fail    bool
	summary string
	prior   string
	count   int
}

func (c *stubCondenser) Condense(ctx context.Context, exchanges []sessionmemory.Exchange, priorSummary string) (string, error) {
	c.calls++
	c.prior = priorSummary
	c.count = len(exchanges)
	if c.fail {
		return "", fmt.Errorf("condenser unavailable")
	}
	if c.summary != "" {
		return c.summary, nil
	}
	return fmt.Sprintf("summary of %d exchanges", len(exchanges)), nil
}

func newTestManager(t *testing.T, condenser Condenser) (*Manager, *sessionmemory.SQLiteStore, *summary.Store) {
	t.Helper()
	store, err := db.NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	sessions := sessionmemory.NewSQLiteStore(store.DB())
	summaries := summary.NewStore(store.DB())
	manager := NewManager(chatcoretesting.GetTestLogger(), sessions, summaries, condenser, time.Second)
	sessions.SetCompactor(manager)
	return manager, sessions, summaries
}

func seedSession(t *testing.T, sessions *sessionmemory.SQLiteStore, sessionID, userID string, turns int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < turns; i++ {
		require.NoError(t, sessions.Append(ctx, sessionID, userID,
			sessionmemory.Exchange{Role: sessionmemory.RoleUser, Content: fmt.Sprintf("q%d", i)},
			sessionmemory.Exchange{Role: sessionmemory.RoleAssistant, Content: fmt.Sprintf("a%d", i)},
		))
	}
}

func TestCompactReplacesSummaryAndClearsMemory(t *testing.T) {
	condenser := &stubCondenser{}
	manager, sessions, summaries := newTestManager(t, condenser)
	ctx := context.Background()

	seedSession(t, sessions, "s1", "u1", 3)

	require.NoError(t, manager.Compact(ctx, "s1", TriggerSizeThreshold))

	got, err := summaries.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "summary of 6 exchanges", got.SummaryText)
	require.Contains(t, got.TranscriptSnapshot, "user: q0")
	require.Contains(t, got.TranscriptSnapshot, "assistant: a2")

	remaining, err := sessions.Get(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, remaining)

	events, err := summaries.Events(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, TriggerSizeThreshold, events[0].TriggerReason)
}

func TestCompactPassesPriorSummaryForContinuity(t *testing.T) {
	condenser := &stubCondenser{}
	manager, sessions, summaries := newTestManager(t, condenser)
	ctx := context.Background()

	require.NoError(t, summaries.Replace(ctx, "u1", "old background", "snap", "s0", TriggerSizeThreshold))
	seedSession(t, sessions, "s1", "u1", 1)

	require.NoError(t, manager.Compact(ctx, "s1", TriggerSizeThreshold))
	require.Equal(t, "old background", condenser.prior)
}

func TestExpireTwiceIsIdempotent(t *testing.T) {
	condenser := &stubCondenser{summary: "the summary"}
	manager, sessions, summaries := newTestManager(t, condenser)
	_ = manager
	ctx := context.Background()

	seedSession(t, sessions, "s1", "u1", 2)

	require.NoError(t, sessions.Expire(ctx, "s1"))
	require.NoError(t, sessions.Expire(ctx, "s1"))

	require.Equal(t, 1, condenser.calls)

	events, err := summaries.Events(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, events, 1)

	got, err := summaries.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "the summary", got.SummaryText)
}

func TestFailedCondensationKeepsMemoryIntact(t *testing.T) {
	condenser := &stubCondenser{fail: true}
	manager, sessions, summaries := newTestManager(t, condenser)
	ctx := context.Background()

	seedSession(t, sessions, "s1", "u1", 2)

	err := manager.Compact(ctx, "s1", TriggerSizeThreshold)
	var summErr *SummarizationError
	require.ErrorAs(t, err, &summErr)

	// Original memory untouched, no summary, no event, session ACTIVE.
	remaining, err := sessions.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, remaining, 4)

	got, err := summaries.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, got.IsEmpty())

	events, err := summaries.Events(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, events)

	require.Equal(t, StateActive, manager.State("s1"))
}

func TestRetryAfterFailureSucceeds(t *testing.T) {
	condenser := &stubCondenser{fail: true}
	manager, sessions, summaries := newTestManager(t, condenser)
	ctx := context.Background()

	seedSession(t, sessions, "s1", "u1", 2)

	require.Error(t, manager.Compact(ctx, "s1", TriggerSizeThreshold))

	condenser.fail = false
	require.NoError(t, manager.Compact(ctx, "s1", TriggerSizeThreshold))

	got, err := summaries.Get(ctx, "u1")
	require.NoError(t, err)
	require.False(t, got.IsEmpty())
}

func TestExpiredSessionIsTerminated(t *testing.T) {
	condenser := &stubCondenser{}
	manager, sessions, _ := newTestManager(t, condenser)
	ctx := context.Background()

	seedSession(t, sessions, "s1", "u1", 1)
	require.NoError(t, sessions.Expire(ctx, "s1"))

	require.Equal(t, StateTerminated, manager.State("s1"))
}

func TestTryCompactSkipsWhenInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	manager, sessions, _ := newTestManager(t, &blockingCondenser{started: started, release: release})
	ctx := context.Background()

	seedSession(t, sessions, "s1", "u1", 1)

	done := make(chan error, 1)
	go func() { done <- manager.Compact(ctx, "s1", TriggerSizeThreshold) }()
	<-started

	ran, err := manager.TryCompact(ctx, "s1", TriggerSizeThreshold)
	require.NoError(t, err)
	require.False(t, ran)

	close(release)
	require.NoError(t, <-done)
}

func TestCompactKeepsExchangesAppendedDuringCondensation(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	manager, sessions, summaries := newTestManager(t, &blockingCondenser{started: started, release: release})
	ctx := context.Background()

	seedSession(t, sessions, "s1", "u1", 2)

	done := make(chan error, 1)
	go func() { done <- manager.Compact(ctx, "s1", TriggerSizeThreshold) }()
	<-started

	// A turn lands while condensation is still running.
	require.NoError(t, sessions.Append(ctx, "s1", "u1",
		sessionmemory.Exchange{Role: sessionmemory.RoleUser, Content: "late question"},
		sessionmemory.Exchange{Role: sessionmemory.RoleAssistant, Content: "late answer"},
	))

	close(release)
	require.NoError(t, <-done)

	got, err := summaries.Get(ctx, "u1")
	require.NoError(t, err)
	require.False(t, got.IsEmpty())
	require.NotContains(t, got.TranscriptSnapshot, "late question")

	// The mid-flight pair survives for the next compaction.
	remaining, err := sessions.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	require.Equal(t, "late question", remaining[0].Content)
	require.Equal(t, "late answer", remaining[1].Content)
}

type blockingCondenser struct {
	started chan struct{}
	release chan struct{}
}

func (c *blockingCondenser) Condense(ctx context.Context, exchanges []sessionmemory.Exchange, priorSummary string) (string, error) {
	close(c.started)
	<-c.release
	return "blocked summary", nil
}
