// Package logstore keeps the history of generation attempts for one UI
// session and mirrors it into durable storage.
package logstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"github.com/pario-ai/imagine/pkg/logging"
	"github.com/pario-ai/imagine/pkg/models"
	"github.com/pario-ai/imagine/pkg/storage"
)

// StorageKey is the durable storage key holding the JSON-encoded history.
const StorageKey = "logs"

// ErrNoProvider is returned by From when no Store is bound to the context.
var ErrNoProvider = errors.New("must be used within a LogProvider")

// Store is an ordered, most-recent-first history of generation attempts.
type Store struct {
	mu      sync.Mutex
	entries []models.LogEntry
	storage storage.Storage
	closed  bool
}

// New creates a Store and loads any history persisted in s. A missing or
// malformed value yields an empty history.
func New(ctx context.Context, s storage.Storage) *Store {
	st := &Store{storage: s}

	raw, ok, err := s.Get(ctx, StorageKey)
	switch {
	case err != nil:
		logging.From(ctx).Debug("log history unreadable, starting empty", "error", err)
	case !ok:
	default:
		var entries []models.LogEntry
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			logging.From(ctx).Debug("log history malformed, starting empty", "error", err)
		} else {
			st.entries = entries
		}
	}
	return st
}

// AddLog prepends entry and rewrites the whole history to storage.
func (s *Store) AddLog(ctx context.Context, entry models.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append([]models.LogEntry{entry}, s.entries...)

	data, err := json.Marshal(s.entries)
	if err != nil {
		return goerr.Wrap(err, "encode log history")
	}
	if err := s.storage.Set(ctx, StorageKey, string(data)); err != nil {
		return goerr.Wrap(err, "persist log history", goerr.V("entries", len(s.entries)))
	}
	return nil
}

// ClearLogs empties the history and clears the whole storage namespace.
func (s *Store) ClearLogs(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	if err := s.storage.Clear(ctx); err != nil {
		return goerr.Wrap(err, "clear log storage")
	}
	return nil
}

// Logs returns a copy of the history, most recent first.
func (s *Store) Logs() []models.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.LogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close is the teardown hook run when the owning session goes away. It
// removes the persisted history so it does not outlive the session. The
// in-memory history stays readable. Calling Close twice is a no-op.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.storage.Remove(ctx, StorageKey); err != nil {
		return goerr.Wrap(err, "remove log storage")
	}
	return nil
}

type ctxKey struct{}

// With binds s to ctx so handlers further down can reach it with From.
func With(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// From returns the Store bound to ctx.
func From(ctx context.Context) (*Store, error) {
	if s, ok := ctx.Value(ctxKey{}).(*Store); ok && s != nil {
		return s, nil
	}
	return nil, ErrNoProvider
}
