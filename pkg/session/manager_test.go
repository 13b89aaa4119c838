package session

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/pario-ai/imagine/pkg/logstore"
	"github.com/pario-ai/imagine/pkg/models"
	"github.com/pario-ai/imagine/pkg/storage"
	"github.com/pario-ai/imagine/pkg/storage/memory"
)

// gatedStore holds every Remove until gate is closed.
type gatedStore struct {
	*memory.Store
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedStore) Namespace(name string) storage.Storage {
	return &gatedNamespace{Storage: g.Store.Namespace(name), g: g}
}

type gatedNamespace struct {
	storage.Storage
	g *gatedStore
}

func (n *gatedNamespace) Remove(ctx context.Context, key string) error {
	select {
	case n.g.entered <- struct{}{}:
	default:
	}
	<-n.g.gate
	return n.Storage.Remove(ctx, key)
}

func TestValidID(t *testing.T) {
	gt.Bool(t, ValidID(NewID())).True()
	gt.Bool(t, ValidID("sess_not-a-uuid")).False()
	gt.Bool(t, ValidID("6f1c1a8e-35c3-4a4b-9f0e-3c1f4f1d2b7a")).False()
	gt.Bool(t, ValidID("")).False()
}

func TestManagerCreateAndGet(t *testing.T) {
	ctx := context.Background()
	m := NewManager(&fakeBackend{}, memory.New(), 0)
	t.Cleanup(func() { _ = m.Shutdown(ctx) })

	s := m.Create(ctx)
	gt.Bool(t, ValidID(s.ID())).True()
	gt.Value(t, m.Len()).Equal(1)

	got, ok := m.Get(ctx, s.ID())
	gt.Bool(t, ok).True()
	gt.Value(t, got).Equal(s)

	_, ok = m.Get(ctx, "bogus")
	gt.Bool(t, ok).False()
	gt.Value(t, m.Len()).Equal(1)
}

func TestManagerResumesFromStorage(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	id := NewID()

	prior := logstore.New(ctx, mem.Namespace(id))
	gt.NoError(t, prior.AddLog(ctx, models.NewSuccess("a red fox", "https://x/1.png", 900))).Required()

	m := NewManager(&fakeBackend{}, mem, 0)
	t.Cleanup(func() { _ = m.Shutdown(ctx) })

	s, ok := m.Get(ctx, id)
	gt.Bool(t, ok).True()
	logs := s.Logs().Logs()
	gt.Array(t, logs).Length(1).Required()
	gt.Value(t, logs[0].Prompt).Equal("a red fox")

	// the cache is per session and starts empty
	gt.Value(t, s.View().Cache.Entries).Equal(int64(0))
}

func TestManagerClose(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	m := NewManager(&fakeBackend{generate: returning("https://x/1.png", nil)}, mem, 0)

	s := m.Create(ctx)
	_, err := s.Submit(ctx, "a red fox")
	gt.NoError(t, err).Required()
	gt.Value(t, mem.Keys(s.ID())).Equal(1)

	gt.NoError(t, m.Close(ctx, s.ID())).Required()
	gt.Value(t, m.Len()).Equal(0)
	gt.Bool(t, s.Closed()).True()
	gt.Value(t, mem.Keys(s.ID())).Equal(0)

	// unknown and repeated closes are no-ops
	gt.NoError(t, m.Close(ctx, s.ID()))
	gt.NoError(t, m.Close(ctx, "sess_missing"))
}

func TestManagerReap(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := base

	m := NewManager(&fakeBackend{generate: returning("u", nil)}, memory.New(), 10*time.Minute)
	m.now = func() time.Time { return now }
	t.Cleanup(func() { _ = m.Shutdown(ctx) })

	stale := m.Create(ctx)
	now = base.Add(8 * time.Minute)
	fresh := m.Create(ctx)

	now = base.Add(11 * time.Minute)
	gt.Value(t, m.Reap(ctx)).Equal(1)
	gt.Bool(t, stale.Closed()).True()
	gt.Bool(t, fresh.Closed()).False()
	gt.Value(t, m.Len()).Equal(1)

	// activity pushes the deadline out
	_, err := fresh.Submit(ctx, "a red fox")
	gt.NoError(t, err).Required()
	now = base.Add(20 * time.Minute)
	gt.Value(t, m.Reap(ctx)).Equal(0)

	now = base.Add(22 * time.Minute)
	gt.Value(t, m.Reap(ctx)).Equal(1)
	gt.Value(t, m.Len()).Equal(0)
}

func TestManagerReapKeepsBusySessions(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := base

	started := make(chan struct{})
	release := make(chan struct{})
	b := &fakeBackend{generate: func(context.Context, string) (string, error) {
		close(started)
		<-release
		return "u", nil
	}}
	m := NewManager(b, memory.New(), time.Minute)
	m.now = func() time.Time { return now }
	t.Cleanup(func() { _ = m.Shutdown(ctx) })

	s := m.Create(ctx)
	done := make(chan struct{})
	go func() {
		_, _ = s.Submit(ctx, "slow")
		close(done)
	}()
	<-started

	gt.Value(t, m.Reap(ctx)).Equal(0)
	gt.Bool(t, s.Closed()).False()

	close(release)
	<-done
}

func TestManagerShutdown(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	m := NewManager(&fakeBackend{generate: returning("u", nil)}, mem, time.Hour)

	var ids []string
	for _, p := range []string{"one", "two", "three"} {
		s := m.Create(ctx)
		_, err := s.Submit(ctx, p)
		gt.NoError(t, err).Required()
		ids = append(ids, s.ID())
	}

	gt.NoError(t, m.Shutdown(ctx)).Required()
	gt.Value(t, m.Len()).Equal(0)
	for _, id := range ids {
		gt.Value(t, mem.Keys(id)).Equal(0)
	}

	// a second shutdown is harmless
	gt.NoError(t, m.Shutdown(ctx))
}

func TestManagerGetWaitsForTeardown(t *testing.T) {
	ctx := context.Background()
	store := &gatedStore{Store: memory.New(), entered: make(chan struct{}, 1), gate: make(chan struct{})}
	m := NewManager(&fakeBackend{generate: returning("https://x/1.png", nil)}, store, 0)
	t.Cleanup(func() { _ = m.Shutdown(ctx) })

	s := m.Create(ctx)
	_, err := s.Submit(ctx, "a red fox")
	gt.NoError(t, err).Required()

	closed := make(chan error, 1)
	go func() { closed <- m.Close(ctx, s.ID()) }()
	<-store.entered

	reopened := make(chan *Session, 1)
	go func() {
		r, _ := m.Get(ctx, s.ID())
		reopened <- r
	}()

	select {
	case <-reopened:
		t.Fatal("session reopened while its history was still being removed")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.gate)
	gt.NoError(t, <-closed).Required()

	r := <-reopened
	gt.Bool(t, r != s).True()
	gt.Bool(t, r.Closed()).False()
	gt.Value(t, r.Logs().Len()).Equal(0)
}

func TestManagerGetGivesUpWhenContextEnds(t *testing.T) {
	ctx := context.Background()
	store := &gatedStore{Store: memory.New(), entered: make(chan struct{}, 1), gate: make(chan struct{})}
	m := NewManager(&fakeBackend{}, store, 0)

	s := m.Create(ctx)
	closed := make(chan error, 1)
	go func() { closed <- m.Close(ctx, s.ID()) }()
	<-store.entered

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, ok := m.Get(cctx, s.ID())
	gt.Bool(t, ok).False()

	close(store.gate)
	gt.NoError(t, <-closed)
	gt.NoError(t, m.Shutdown(ctx))
}

func TestCloseIfIdleRechecksActivity(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := base

	m := NewManager(&fakeBackend{generate: returning("u", nil)}, memory.New(), 10*time.Minute)
	m.now = func() time.Time { return now }
	t.Cleanup(func() { _ = m.Shutdown(ctx) })

	s := m.Create(ctx)
	cutoff := base.Add(time.Minute)

	// activity after the reaper picked its cutoff keeps the session alive
	now = base.Add(2 * time.Minute)
	_, err := s.Submit(ctx, "a red fox")
	gt.NoError(t, err).Required()

	closed, err := m.reap(ctx, s, cutoff)
	gt.NoError(t, err)
	gt.Bool(t, closed).False()
	gt.Bool(t, s.Closed()).False()
	gt.Value(t, m.Len()).Equal(1)

	got, ok := m.Get(ctx, s.ID())
	gt.Bool(t, ok).True()
	gt.Bool(t, got == s).True()
}

func TestCloseIfIdleSkipsBusySession(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})
	s, _ := newTestSession(t, &fakeBackend{generate: func(context.Context, string) (string, error) {
		close(started)
		<-release
		return "u", nil
	}})

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(ctx, "slow")
		done <- err
	}()
	<-started

	closed, err := s.closeIfIdle(ctx, time.Now().Add(time.Hour))
	gt.NoError(t, err)
	gt.Bool(t, closed).False()

	close(release)
	gt.NoError(t, <-done)
	gt.Bool(t, s.Closed()).False()
}
