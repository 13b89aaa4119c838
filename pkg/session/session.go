// Package session implements one UI session: the generation cache, the log
// store and the submission flow that ties them to the generation proxy.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/pario-ai/imagine/pkg/cache"
	"github.com/pario-ai/imagine/pkg/logging"
	"github.com/pario-ai/imagine/pkg/logstore"
	"github.com/pario-ai/imagine/pkg/models"
	"github.com/pario-ai/imagine/pkg/provider"
	"github.com/pario-ai/imagine/pkg/storage"
)

// EmptyPromptMessage is shown inline when a blank prompt is submitted.
const EmptyPromptMessage = "Text prompt cannot be empty"

var (
	// ErrSubmissionInFlight rejects a submission while another is outstanding.
	ErrSubmissionInFlight = errors.New("a generation is already in progress")
	// ErrSessionClosed is returned once the session has been torn down.
	ErrSessionClosed = errors.New("session closed")
)

// Backend is what a session needs from the proxies.
type Backend interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Usage(ctx context.Context) (models.UsageInfo, error)
}

// State is the terminal state of one submission.
type State string

const (
	StateRejected State = "rejected" // local validation failure
	StateCached   State = "cached"
	StateSuccess  State = "success"
	StateFailed   State = "failed" // provider or transport failure
)

// Outcome describes how a submission settled.
type Outcome struct {
	State    State
	ImageURL string
	Error    string
	// Input is what the prompt field should hold afterwards.
	Input string
	// Entry is the appended log entry, nil for rejected submissions.
	Entry *models.LogEntry
}

// Usage states shown by the usage badge.
const (
	UsageLoading     = "loading"
	UsageAvailable   = "available"
	UsageUnavailable = "unavailable"
)

// View is a snapshot of a session for rendering.
type View struct {
	ID         string
	Input      string
	ImageURL   string
	Error      string
	Busy       bool
	UsageState string
	Usage      models.UsageInfo
	Logs       []models.LogEntry
	Cache      models.CacheStats
}

// Session holds the per-tab state of the UI.
type Session struct {
	id      string
	backend Backend
	cache   *cache.Cache
	logs    *logstore.Store
	now     func() time.Time

	// ctx is cancelled by Close; outstanding work derives from it.
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	busy       bool
	closed     bool
	input      string
	imageURL   string
	errMsg     string
	usageState string
	usage      models.UsageInfo
	lastActive time.Time
}

// New creates a session whose history lives in s.
func New(ctx context.Context, id string, backend Backend, s storage.Storage) *Session {
	sctx, cancel := context.WithCancel(logging.With(context.Background(), logging.From(ctx).With("session", id)))
	return &Session{
		id:         id,
		backend:    backend,
		cache:      cache.New(),
		logs:       logstore.New(ctx, s),
		now:        time.Now,
		ctx:        sctx,
		cancel:     cancel,
		usageState: UsageLoading,
		lastActive: time.Now(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Logs returns the session's log store.
func (s *Session) Logs() *logstore.Store { return s.logs }

// Context binds the session's log store to ctx.
func (s *Session) Context(ctx context.Context) context.Context {
	return logstore.With(ctx, s.logs)
}

// Submit runs one submission through validation, the cache and, on a miss,
// the generation proxy. Provider failures settle as StateFailed with a nil
// error; the returned error is reserved for submissions that did not run.
func (s *Session) Submit(ctx context.Context, prompt string) (*Outcome, error) {
	start := s.now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.busy {
		s.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	s.lastActive = start

	if strings.TrimSpace(prompt) == "" {
		s.input = prompt
		s.errMsg = EmptyPromptMessage
		s.mu.Unlock()
		return &Outcome{State: StateRejected, Error: EmptyPromptMessage, Input: prompt}, nil
	}

	if url, ok := s.cache.Get(prompt); ok {
		defer s.mu.Unlock()
		entry := models.NewCached(prompt, url, elapsed(start, s.now()))
		s.appendLog(ctx, entry)
		s.input = ""
		s.imageURL = url
		s.errMsg = ""
		return &Outcome{State: StateCached, ImageURL: url, Input: "", Entry: &entry}, nil
	}

	s.busy = true
	s.input = prompt
	s.errMsg = ""
	callCtx := s.ctx
	s.mu.Unlock()

	url, err := s.backend.Generate(callCtx, prompt)

	s.mu.Lock()
	defer s.mu.Unlock()
	end := s.now()
	s.busy = false
	s.lastActive = end

	if s.closed {
		logging.From(ctx).Debug("discarding result of closed session", "session", s.id)
		return nil, ErrSessionClosed
	}

	if err != nil {
		msg := provider.MessageOf(err)
		entry := models.NewFailed(prompt, msg, elapsed(start, end))
		s.appendLog(ctx, entry)
		s.errMsg = msg
		return &Outcome{State: StateFailed, Error: msg, Input: prompt, Entry: &entry}, nil
	}

	s.cache.Put(prompt, url)
	entry := models.NewSuccess(prompt, url, elapsed(start, end))
	s.appendLog(ctx, entry)
	s.input = ""
	s.imageURL = url
	return &Outcome{State: StateSuccess, ImageURL: url, Input: "", Entry: &entry}, nil
}

// FetchUsage loads the quota badge. Failures leave it "unavailable" and
// are only logged. A result arriving after Close is dropped.
func (s *Session) FetchUsage() {
	u, err := s.backend.Usage(s.ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if err != nil {
		logging.From(s.ctx).Warn("usage unavailable", "error", err)
		s.usageState = UsageUnavailable
		return
	}
	s.usage = u
	s.usageState = UsageAvailable
}

// ClearLogs empties the history.
func (s *Session) ClearLogs(ctx context.Context) error {
	s.touch()
	return s.logs.ClearLogs(ctx)
}

// View returns a snapshot for rendering.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		ID:         s.id,
		Input:      s.input,
		ImageURL:   s.imageURL,
		Error:      s.errMsg,
		Busy:       s.busy,
		UsageState: s.usageState,
		Usage:      s.usage,
		Logs:       s.logs.Logs(),
		Cache:      s.cache.Stats(),
	}
}

// Close tears the session down: outstanding work is cancelled and its
// result discarded, the cache is dropped and the persisted history removed.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cancel()
	s.mu.Unlock()

	return s.teardown(ctx)
}

// closeIfIdle closes the session only when no submission is outstanding and
// it saw no activity since cutoff. Both are checked under the same lock that
// Submit takes, so a submission cannot slip in between check and close.
func (s *Session) closeIfIdle(ctx context.Context, cutoff time.Time) (bool, error) {
	s.mu.Lock()
	if s.closed || s.busy || !s.lastActive.Before(cutoff) {
		s.mu.Unlock()
		return false, nil
	}
	s.closed = true
	s.cancel()
	s.mu.Unlock()

	return true, s.teardown(ctx)
}

func (s *Session) teardown(ctx context.Context) error {
	s.cache.Clear()
	return s.logs.Close(ctx)
}

// Closed reports whether Close has run.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = s.now()
	s.mu.Unlock()
}

func elapsed(start, end time.Time) int64 {
	ms := end.Sub(start).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}

// appendLog records entry. A storage failure keeps the in-memory entry and
// is only logged, as durable persistence is best-effort.
func (s *Session) appendLog(ctx context.Context, entry models.LogEntry) {
	if err := s.logs.AddLog(ctx, entry); err != nil {
		logging.From(ctx).Warn("failed to persist log entry", "error", err, "session", s.id)
	}
}
