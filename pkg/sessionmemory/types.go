package sessionmemory

import (
	"context"
	"fmt"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Exchange is one stored turn entry. Immutable once written; ordered
// within its session by arrival.
type Exchange struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Size reports how large a session transcript is, for threshold checks.
type Size struct {
	Messages int `json:"messages"`
	Chars    int `json:"chars"`
}

// Store is the short-term per-conversation transcript store.
//
// Appends to the same session serialize; appends to different sessions are
// fully independent. Get never errors on unknown sessions.
type Store interface {
	Append(ctx context.Context, sessionID, userID string, exchanges ...Exchange) error
	Get(ctx context.Context, sessionID string) ([]Exchange, error)
	SizeOf(ctx context.Context, sessionID string) (Size, error)
	Owner(ctx context.Context, sessionID string) (string, error)
	Clear(ctx context.Context, sessionID string) error
	ClearThrough(ctx context.Context, sessionID string, count int) error
	Expire(ctx context.Context, sessionID string) error
}

// Compactor condenses a session into the persistent summary before the
// transcript is cleared. Implemented by the memory lifecycle manager.
type Compactor interface {
	Compact(ctx context.Context, sessionID, reason string) error
}

// exchangeRow is the database representation with proper db field mapping.
type exchangeRow struct {
	ID           string `db:"id"`
	SessionID    string `db:"session_id"`
	Seq          int64  `db:"seq"`
	Role         string `db:"role"`
	Content      string `db:"content"`
	CreatedAtStr string `db:"created_at"` // stored as RFC3339 string
}

func (r *exchangeRow) ToModel() Exchange {
	createdAt, _ := time.Parse(time.RFC3339, r.CreatedAtStr)
	return Exchange{
		ID:        r.ID,
		Role:      Role(r.Role),
		Content:   r.Content,
		CreatedAt: createdAt,
	}
}

// ConflictError reports a racing append that exhausted its retries. No
// exchange is silently dropped; the caller may retry the whole append.
type ConflictError struct {
	SessionID string
	Err       error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("append conflict on session %s: %v", e.SessionID, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }
