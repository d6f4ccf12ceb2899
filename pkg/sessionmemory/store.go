package sessionmemory

import (
	"context"
	"database/sql"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/xavigate/chatcore/pkg/helpers"
)

// SQLiteStore persists session transcripts in SQLite. A per-session key
// mutex gives single-writer discipline per session while distinct sessions
// proceed concurrently.
type SQLiteStore struct {
	db        *sqlx.DB
	locks     *helpers.KeyMutex
	compactor Compactor
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(db *sqlx.DB) *SQLiteStore {
	return &SQLiteStore{
		db:    db,
		locks: helpers.NewKeyMutex(),
	}
}

// SetCompactor wires the lifecycle manager in after construction. Expire
// without a compactor only clears memory.
func (s *SQLiteStore) SetCompactor(c Compactor) {
	s.compactor = c
}

// Append writes the exchanges in order inside one transaction. The session
// row is upserted implicitly. A user+assistant pair from one turn is never
// partially visible.
func (s *SQLiteStore) Append(ctx context.Context, sessionID, userID string, exchanges ...Exchange) error {
	if len(exchanges) == 0 {
		return nil
	}

	s.locks.Lock(sessionID)
	defer s.locks.Unlock(sessionID)

	operation := func() (struct{}, error) {
		err := s.appendTx(ctx, sessionID, userID, exchanges)
		if err != nil && !isBusy(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3))
	if err != nil {
		if isBusy(err) {
			return &ConflictError{SessionID: sessionID, Err: err}
		}
		return err
	}
	return nil
}

func (s *SQLiteStore) appendTx(ctx context.Context, sessionID, userID string, exchanges []Exchange) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin append transaction")
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (session_id, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET updated_at = excluded.updated_at`,
		sessionID, userID, now, now)
	if err != nil {
		return errors.Wrap(err, "failed to upsert session")
	}

	var seq int64
	err = tx.GetContext(ctx, &seq,
		`SELECT COALESCE(MAX(seq), 0) FROM session_memory WHERE session_id = ?`, sessionID)
	if err != nil {
		return errors.Wrap(err, "failed to read sequence")
	}

	for _, exchange := range exchanges {
		seq++
		id := exchange.ID
		if id == "" {
			id = uuid.New().String()
		}
		createdAt := exchange.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO session_memory (id, session_id, seq, role, content, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, sessionID, seq, string(exchange.Role), exchange.Content,
			createdAt.Format(time.RFC3339))
		if err != nil {
			return errors.Wrap(err, "failed to insert exchange")
		}
	}

	return tx.Commit()
}

// Get returns the ordered transcript; empty for unknown sessions.
func (s *SQLiteStore) Get(ctx context.Context, sessionID string) ([]Exchange, error) {
	var rows []exchangeRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, session_id, seq, role, content, created_at
		FROM session_memory WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load session memory")
	}

	return lo.Map(rows, func(r exchangeRow, _ int) Exchange {
		return r.ToModel()
	}), nil
}

func (s *SQLiteStore) SizeOf(ctx context.Context, sessionID string) (Size, error) {
	var size Size
	err := s.db.GetContext(ctx, &size, `
		SELECT COUNT(*) AS messages, COALESCE(SUM(LENGTH(content)), 0) AS chars
		FROM session_memory WHERE session_id = ?`, sessionID)
	if err != nil {
		return Size{}, errors.Wrap(err, "failed to measure session memory")
	}
	return size, nil
}

// Owner returns the user that owns the session, or empty when unknown.
func (s *SQLiteStore) Owner(ctx context.Context, sessionID string) (string, error) {
	var userID string
	err := s.db.GetContext(ctx, &userID,
		`SELECT user_id FROM sessions WHERE session_id = ?`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve session owner")
	}
	return userID, nil
}

// Clear removes the transcript but keeps the session row.
func (s *SQLiteStore) Clear(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM session_memory WHERE session_id = ?`, sessionID)
	return errors.Wrap(err, "failed to clear session memory")
}

// ClearThrough removes only the oldest count exchanges. Exchanges appended
// after a caller took its snapshot have higher seq values and survive.
func (s *SQLiteStore) ClearThrough(ctx context.Context, sessionID string, count int) error {
	if count <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM session_memory WHERE id IN (
			SELECT id FROM session_memory
			WHERE session_id = ? ORDER BY seq ASC LIMIT ?)`,
		sessionID, count)
	return errors.Wrap(err, "failed to clear session memory")
}

// Expire compacts the session synchronously and clears its memory. It
// returns only once the summary is durably recorded; on compaction failure
// memory is left intact. Expiring an already-compacted session is a no-op.
func (s *SQLiteStore) Expire(ctx context.Context, sessionID string) error {
	if s.compactor != nil {
		return s.compactor.Compact(ctx, sessionID, "session_expired")
	}
	return s.Clear(ctx, sessionID)
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
