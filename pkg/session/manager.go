package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/pario-ai/imagine/pkg/logging"
	"github.com/pario-ai/imagine/pkg/storage"
)

const idPrefix = "sess_"

// Namespaces hands out one storage namespace per session.
type Namespaces interface {
	Namespace(name string) storage.Storage
}

// Manager owns every live session.
type Manager struct {
	backend     Backend
	namespaces  Namespaces
	idleTimeout time.Duration
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	// closing holds ids whose teardown is running; the channel closes when
	// it finishes.
	closing map[string]chan struct{}

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewManager creates a Manager. With a positive idleTimeout a reaper closes
// sessions that saw no activity for that long.
func NewManager(backend Backend, namespaces Namespaces, idleTimeout time.Duration) *Manager {
	m := &Manager{
		backend:     backend,
		namespaces:  namespaces,
		idleTimeout: idleTimeout,
		now:         time.Now,
		sessions:    make(map[string]*Session),
		closing:     make(map[string]chan struct{}),
		done:        make(chan struct{}),
	}

	if idleTimeout > 0 {
		m.wg.Add(1)
		go m.reapLoop()
	}
	return m
}

// NewID returns a fresh session identifier.
func NewID() string {
	return idPrefix + uuid.NewString()
}

// ValidID reports whether id looks like one produced by NewID.
func ValidID(id string) bool {
	rest, ok := strings.CutPrefix(id, idPrefix)
	if !ok {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}

// Create starts a new session and kicks off its usage fetch.
func (m *Manager) Create(ctx context.Context) *Session {
	// a fresh id is never closing, so open cannot wait
	s, _ := m.open(ctx, NewID())
	return s
}

// Get returns the live session for id. A well-formed id with no live
// session is resumed from durable storage, as happens when a tab outlives
// a server restart. An id that is being torn down is reopened only once the
// teardown has finished, so the new session never sees the old history.
func (m *Manager) Get(ctx context.Context, id string) (*Session, bool) {
	if !ValidID(id) {
		return nil, false
	}
	s, err := m.open(ctx, id)
	if err != nil {
		return nil, false
	}
	return s, true
}

func (m *Manager) open(ctx context.Context, id string) (*Session, error) {
	for {
		m.mu.Lock()
		if s, ok := m.sessions[id]; ok {
			m.mu.Unlock()
			return s, nil
		}
		wait, closing := m.closing[id]
		if !closing {
			break
		}
		m.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, goerr.Wrap(ctx.Err(), "wait for session teardown", goerr.V("session", id))
		}
	}
	defer m.mu.Unlock()

	s := New(ctx, id, m.backend, m.namespaces.Namespace(id))
	s.now = m.now
	s.lastActive = m.now()
	m.sessions[id] = s

	logging.From(ctx).Info("session opened", "session", id, "logs", s.logs.Len())
	go s.FetchUsage()
	return s, nil
}

// detach takes s out of the live set and marks its id as closing. The
// returned func re-admits s when keep is true and always ends the closing
// mark. ok is false when s is no longer the live session for its id.
func (m *Manager) detach(s *Session) (finish func(keep bool), ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[s.id] != s {
		return nil, false
	}
	delete(m.sessions, s.id)
	done := make(chan struct{})
	m.closing[s.id] = done

	return func(keep bool) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if keep {
			m.sessions[s.id] = s
		}
		delete(m.closing, s.id)
		close(done)
	}, true
}

// Close tears down the session id. Unknown ids are ignored. When the reaper
// is checking the same session, Close waits for it and then proceeds.
func (m *Manager) Close(ctx context.Context, id string) error {
	var finish func(keep bool)
	var s *Session
	for finish == nil {
		m.mu.Lock()
		live, ok := m.sessions[id]
		wait, closing := m.closing[id]
		m.mu.Unlock()

		switch {
		case ok:
			s = live
			finish, _ = m.detach(live)
		case closing:
			select {
			case <-wait:
			case <-ctx.Done():
				return goerr.Wrap(ctx.Err(), "wait for session teardown", goerr.V("session", id))
			}
		default:
			return nil
		}
	}
	defer finish(false)

	if err := s.Close(ctx); err != nil {
		return goerr.Wrap(err, "close session", goerr.V("session", id))
	}
	logging.From(ctx).Info("session closed", "session", id)
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Reap closes sessions idle for longer than the idle timeout and returns how
// many were closed. Sessions with a submission in flight are kept.
func (m *Manager) Reap(ctx context.Context) int {
	if m.idleTimeout <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.idleTimeout)

	m.mu.Lock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	var n int
	for _, s := range live {
		closed, err := m.reap(ctx, s, cutoff)
		if err != nil {
			logging.From(ctx).Warn("failed to reap session", "session", s.id, "error", err)
		}
		if closed {
			n++
		}
	}
	return n
}

func (m *Manager) reap(ctx context.Context, s *Session, cutoff time.Time) (bool, error) {
	finish, ok := m.detach(s)
	if !ok {
		return false, nil
	}
	closed, err := s.closeIfIdle(ctx, cutoff)
	finish(!closed)
	if closed {
		logging.From(ctx).Info("session reaped", "session", s.id)
	}
	return closed, err
}

// Shutdown stops the reaper and closes every session.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.once.Do(func() { close(m.done) })
	m.wg.Wait()

	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := m.Close(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return goerr.New("failed to close sessions", goerr.V("count", len(errs)), goerr.V("first", errs[0].Error()))
	}
	return nil
}

func (m *Manager) reapLoop() {
	defer m.wg.Done()

	interval := m.idleTimeout / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.Reap(context.Background())
		}
	}
}
