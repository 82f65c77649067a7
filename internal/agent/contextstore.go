package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// ContextStore maps conversation IDs to the last model turn in that
// conversation. It is created once per process and shared by all questions.
//
// With a zero TTL entries live for the life of the process. A positive TTL
// expires conversations that have been idle that long; every recorded turn
// resets the clock.
//
// Concurrent EnsureContext calls for the same conversation send a single
// context turn. Concurrent RecordTurn calls for the same conversation are
// not ordered: the last writer wins.
type ContextStore struct {
	turns *cache.Cache
	group singleflight.Group
}

// NewContextStore creates a store with the given idle TTL.
func NewContextStore(ttl time.Duration) *ContextStore {
	expiration := cache.NoExpiration
	var cleanup time.Duration
	if ttl > 0 {
		expiration = ttl
		cleanup = ttl
	}
	return &ContextStore{
		turns: cache.New(expiration, cleanup),
	}
}

// EnsureContext sends the context prompt as a fresh turn the first time a
// conversation is seen. It is a no-op once the conversation has a turn.
func (s *ContextStore) EnsureContext(ctx context.Context, id string, build func() string, send SendFunc) error {
	if _, ok := s.LastTurn(id); ok {
		return nil
	}

	_, err, _ := s.group.Do(id, func() (any, error) {
		if _, ok := s.LastTurn(id); ok {
			return nil, nil
		}
		turn, err := send(ctx, build(), "")
		if err != nil {
			return nil, fmt.Errorf("failed to send context prompt: %w", err)
		}
		s.RecordTurn(id, turn.ID)
		return nil, nil
	})
	return err
}

// RecordTurn stores turnID as the conversation's latest turn.
func (s *ContextStore) RecordTurn(id, turnID string) {
	s.turns.SetDefault(id, turnID)
}

// Forget drops the conversation so the next question re-sends its context.
func (s *ContextStore) Forget(id string) {
	s.turns.Delete(id)
}

// LastTurn returns the conversation's latest turn.
func (s *ContextStore) LastTurn(id string) (string, bool) {
	v, ok := s.turns.Get(id)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Len returns the number of tracked conversations.
func (s *ContextStore) Len() int {
	return s.turns.ItemCount()
}
