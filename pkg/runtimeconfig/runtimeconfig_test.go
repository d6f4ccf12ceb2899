package runtimeconfig

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xavigate/chatcore/pkg/db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := db.NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	s, err := NewStore(store.DB())
	require.NoError(t, err)
	return s
}

func TestSnapshotDefaultsWhenEmpty(t *testing.T) {
	s := newTestStore(t)

	cfg := s.Snapshot()
	require.Equal(t, StyleDefault, cfg.PromptStyle)
	require.Equal(t, 3, cfg.TopKRagHits)
	require.Equal(t, 0, cfg.Version)
}

func TestReplaceBumpsVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cfg := s.Snapshot()
	cfg.PromptStyle = StyleSocratic
	cfg.TopKRagHits = 5

	stored, err := s.Replace(ctx, cfg)
	require.NoError(t, err)
	require.Equal(t, 1, stored.Version)
	require.Equal(t, StyleSocratic, stored.PromptStyle)

	stored.Temperature = 0.2
	stored2, err := s.Replace(ctx, stored)
	require.NoError(t, err)
	require.Equal(t, 2, stored2.Version)

	snap := s.Snapshot()
	require.Equal(t, 0.2, snap.Temperature)
	require.Equal(t, 2, snap.Version)
}

func TestSnapshotIsImmutable(t *testing.T) {
	s := newTestStore(t)

	before := s.Snapshot()
	cfg := before
	cfg.Model = "other-model"
	_, err := s.Replace(context.Background(), cfg)
	require.NoError(t, err)

	// The snapshot taken before the replace keeps its values.
	require.NotEqual(t, "other-model", before.Model)
}

func TestReplaceNormalizesBadValues(t *testing.T) {
	s := newTestStore(t)

	cfg := s.Snapshot()
	cfg.PromptStyle = "grandiose"
	cfg.TopKRagHits = -4
	cfg.ConversationHistoryLimit = -1

	stored, err := s.Replace(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, StyleDefault, stored.PromptStyle)
	require.Equal(t, 0, stored.TopKRagHits)
	require.Equal(t, 0, stored.ConversationHistoryLimit)
}
