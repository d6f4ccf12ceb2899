// Package summary holds long-term per-user condensed memory. Each
// compaction replaces, never merges, the prior value; every replace is
// transactionally linked to exactly one summarization audit event.
package summary

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/xavigate/chatcore/pkg/helpers"
)

// PersistentSummary is the current condensed memory for one user. The zero
// value is the empty sentinel for users without a summary.
type PersistentSummary struct {
	UserID             string    `json:"userId"`
	SummaryText        string    `json:"summaryText"`
	TranscriptSnapshot string    `json:"transcriptSnapshot"`
	CreatedAt          time.Time `json:"createdAt"`
}

func (s PersistentSummary) IsEmpty() bool {
	return s.SummaryText == ""
}

// SummarizationEvent is one append-only audit record of a compaction. IDs
// are assigned by the database in insertion order.
type SummarizationEvent struct {
	ID            int64     `json:"id"`
	UserID        string    `json:"userId"`
	SessionID     string    `json:"sessionId"`
	TriggerReason string    `json:"triggerReason"`
	CreatedAt     time.Time `json:"createdAt"`
}

type summaryRow struct {
	UserID             string `db:"user_id"`
	SummaryText        string `db:"summary_text"`
	TranscriptSnapshot string `db:"transcript_snapshot"`
	CreatedAtStr       string `db:"created_at"`
}

func (r *summaryRow) ToModel() PersistentSummary {
	createdAt, _ := time.Parse(time.RFC3339, r.CreatedAtStr)
	return PersistentSummary{
		UserID:             r.UserID,
		SummaryText:        r.SummaryText,
		TranscriptSnapshot: r.TranscriptSnapshot,
		CreatedAt:          createdAt,
	}
}

type eventRow struct {
	ID            int64  `db:"id"`
	UserID        string `db:"user_id"`
	SessionID     string `db:"session_id"`
	TriggerReason string `db:"trigger_reason"`
	CreatedAtStr  string `db:"created_at"`
}

func (r *eventRow) ToModel() SummarizationEvent {
	createdAt, _ := time.Parse(time.RFC3339, r.CreatedAtStr)
	return SummarizationEvent{
		ID:            r.ID,
		UserID:        r.UserID,
		SessionID:     r.SessionID,
		TriggerReason: r.TriggerReason,
		CreatedAt:     createdAt,
	}
}

// Store persists summaries and their audit trail. Writes for the same user
// serialize; no interleaving.
type Store struct {
	db    *sqlx.DB
	locks *helpers.KeyMutex
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{
		db:    db,
		locks: helpers.NewKeyMutex(),
	}
}

// Get returns the latest summary, or the empty sentinel when none exists.
func (s *Store) Get(ctx context.Context, userID string) (PersistentSummary, error) {
	var row summaryRow
	err := s.db.GetContext(ctx, &row, `
		SELECT user_id, summary_text, transcript_snapshot, created_at
		FROM persistent_summaries WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return PersistentSummary{UserID: userID}, nil
	}
	if err != nil {
		return PersistentSummary{}, errors.Wrap(err, "failed to load persistent summary")
	}
	return row.ToModel(), nil
}

// Replace overwrites the prior summary and records its summarization event
// in one transaction. Both succeed together or neither is applied.
func (s *Store) Replace(ctx context.Context, userID, summaryText, transcriptSnapshot, sessionID, triggerReason string) error {
	s.locks.Lock(userID)
	defer s.locks.Unlock(userID)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin summary transaction")
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO persistent_summaries (user_id, summary_text, transcript_snapshot, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			summary_text = excluded.summary_text,
			transcript_snapshot = excluded.transcript_snapshot,
			created_at = excluded.created_at`,
		userID, summaryText, transcriptSnapshot, now)
	if err != nil {
		return errors.Wrap(err, "failed to replace persistent summary")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO summarization_events (user_id, session_id, trigger_reason, created_at)
		VALUES (?, ?, ?, ?)`,
		userID, sessionID, triggerReason, now)
	if err != nil {
		return errors.Wrap(err, "failed to record summarization event")
	}

	return tx.Commit()
}

// Events returns the append-only audit log for a user, oldest first.
func (s *Store) Events(ctx context.Context, userID string) ([]SummarizationEvent, error) {
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, session_id, trigger_reason, created_at
		FROM summarization_events WHERE user_id = ? ORDER BY id ASC`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load summarization events")
	}

	return lo.Map(rows, func(r eventRow, _ int) SummarizationEvent {
		return r.ToModel()
	}), nil
}
