// Package history persists answered questions per conversation.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/capitalize-ai/data-question-platform/internal/model"
)

// ErrNotFound is returned when a conversation has no history.
var ErrNotFound = errors.New("conversation history not found")

const keyPrefix = "answer:"

// Store keeps history entries in badger under
// answer:<conversation>:<unix nanos>, so a prefix scan yields a
// conversation's entries in time order.
type Store struct {
	db *badger.DB

	mu       sync.Mutex
	lastNano int64
}

// Open opens the store at path. An empty path opens an in-memory store.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func conversationPrefix(conversationKey string) []byte {
	return []byte(keyPrefix + url.QueryEscape(conversationKey) + ":")
}

// Append stores entry under conversationKey. A zero CreatedAt is set to now.
func (s *Store) Append(ctx context.Context, conversationKey string, entry model.HistoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.ConversationKey = conversationKey

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode history entry: %w", err)
	}

	key := fmt.Sprintf("%s%020d", conversationPrefix(conversationKey), s.nextNano(entry.CreatedAt))
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store history entry: %w", err)
	}
	return nil
}

// nextNano keeps keys unique when entries share a timestamp.
func (s *Store) nextNano(t time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := t.UnixNano()
	if n <= s.lastNano {
		n = s.lastNano + 1
	}
	s.lastNano = n
	return n
}

// List returns up to limit of the most recent entries, oldest first, and
// whether older entries exist. A non-positive limit returns everything.
func (s *Store) List(ctx context.Context, conversationKey string, limit int) ([]model.HistoryEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	prefix := conversationPrefix(conversationKey)

	var entries []model.HistoryEntry
	hasMore := false

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(append(append([]byte{}, prefix...), 0xff)); it.Valid(); it.Next() {
			if limit > 0 && len(entries) == limit {
				hasMore = true
				break
			}
			var entry model.HistoryEntry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to read history: %w", err)
	}
	if len(entries) == 0 {
		return nil, false, ErrNotFound
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, hasMore, nil
}
