// Package redisstore implements the session memory store on Redis, for
// deployments where transcripts should not share the SQLite file. Keys are
// namespaced as "chatcore:session:{id}:log" (exchange list) and
// "chatcore:session:{id}:owner".
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xavigate/chatcore/pkg/helpers"
	"github.com/xavigate/chatcore/pkg/sessionmemory"
)

type Store struct {
	client    *redis.Client
	prefix    string
	locks     *helpers.KeyMutex
	compactor sessionmemory.Compactor
}

var _ sessionmemory.Store = (*Store)(nil)

func New(client *redis.Client) *Store {
	return &Store{
		client: client,
		prefix: "chatcore:session",
		locks:  helpers.NewKeyMutex(),
	}
}

func (s *Store) SetCompactor(c sessionmemory.Compactor) {
	s.compactor = c
}

func (s *Store) logKey(sessionID string) string {
	return fmt.Sprintf("%s:%s:log", s.prefix, sessionID)
}

func (s *Store) ownerKey(sessionID string) string {
	return fmt.Sprintf("%s:%s:owner", s.prefix, sessionID)
}

func (s *Store) Append(ctx context.Context, sessionID, userID string, exchanges ...sessionmemory.Exchange) error {
	if len(exchanges) == 0 {
		return nil
	}

	s.locks.Lock(sessionID)
	defer s.locks.Unlock(sessionID)

	values := make([]interface{}, 0, len(exchanges))
	for _, exchange := range exchanges {
		if exchange.ID == "" {
			exchange.ID = uuid.New().String()
		}
		if exchange.CreatedAt.IsZero() {
			exchange.CreatedAt = time.Now().UTC()
		}
		encoded, err := json.Marshal(exchange)
		if err != nil {
			return errors.Wrap(err, "failed to encode exchange")
		}
		values = append(values, string(encoded))
	}

	// MULTI/EXEC keeps the user+assistant pair atomic.
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.ownerKey(sessionID), userID, 0)
	pipe.RPush(ctx, s.logKey(sessionID), values...)
	if _, err := pipe.Exec(ctx); err != nil {
		return &sessionmemory.ConflictError{SessionID: sessionID, Err: err}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, sessionID string) ([]sessionmemory.Exchange, error) {
	raw, err := s.client.LRange(ctx, s.logKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load session memory")
	}

	exchanges := make([]sessionmemory.Exchange, 0, len(raw))
	for _, item := range raw {
		var exchange sessionmemory.Exchange
		if err := json.Unmarshal([]byte(item), &exchange); err != nil {
			return nil, errors.Wrap(err, "failed to decode exchange")
		}
		exchanges = append(exchanges, exchange)
	}
	return exchanges, nil
}

func (s *Store) SizeOf(ctx context.Context, sessionID string) (sessionmemory.Size, error) {
	exchanges, err := s.Get(ctx, sessionID)
	if err != nil {
		return sessionmemory.Size{}, err
	}

	size := sessionmemory.Size{Messages: len(exchanges)}
	for _, exchange := range exchanges {
		size.Chars += len(exchange.Content)
	}
	return size, nil
}

func (s *Store) Owner(ctx context.Context, sessionID string) (string, error) {
	owner, err := s.client.Get(ctx, s.ownerKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve session owner")
	}
	return owner, nil
}

func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.logKey(sessionID)).Err(); err != nil {
		return errors.Wrap(err, "failed to clear session memory")
	}
	return nil
}

// ClearThrough trims only the oldest count entries so exchanges appended
// after the caller's snapshot survive.
func (s *Store) ClearThrough(ctx context.Context, sessionID string, count int) error {
	if count <= 0 {
		return nil
	}
	if err := s.client.LTrim(ctx, s.logKey(sessionID), int64(count), -1).Err(); err != nil {
		return errors.Wrap(err, "failed to trim session memory")
	}
	return nil
}

func (s *Store) Expire(ctx context.Context, sessionID string) error {
	if s.compactor != nil {
		return s.compactor.Compact(ctx, sessionID, "session_expired")
	}
	return s.Clear(ctx, sessionID)
}
