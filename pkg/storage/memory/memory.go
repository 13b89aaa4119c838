// Package memory is an in-process Storage used by tests and by servers run
// without a database path.
package memory

import (
	"context"
	"sync"

	"github.com/pario-ai/imagine/pkg/storage"
)

// Store holds namespaces in memory.
type Store struct {
	mu   sync.Mutex
	data map[string]map[string]string
}

var _ storage.Storage = (*Namespace)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{data: make(map[string]map[string]string)}
}

// Namespace returns the Storage for name.
func (s *Store) Namespace(name string) storage.Storage {
	return &Namespace{store: s, name: name}
}

// Keys returns the number of keys held in namespace name.
func (s *Store) Keys(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data[name])
}

// Namespace is one namespace of a Store.
type Namespace struct {
	store *Store
	name  string
}

// Get implements storage.Storage.
func (n *Namespace) Get(_ context.Context, key string) (string, bool, error) {
	n.store.mu.Lock()
	defer n.store.mu.Unlock()
	v, ok := n.store.data[n.name][key]
	return v, ok, nil
}

// Set implements storage.Storage.
func (n *Namespace) Set(_ context.Context, key, value string) error {
	n.store.mu.Lock()
	defer n.store.mu.Unlock()
	ns, ok := n.store.data[n.name]
	if !ok {
		ns = make(map[string]string)
		n.store.data[n.name] = ns
	}
	ns[key] = value
	return nil
}

// Remove implements storage.Storage.
func (n *Namespace) Remove(_ context.Context, key string) error {
	n.store.mu.Lock()
	defer n.store.mu.Unlock()
	delete(n.store.data[n.name], key)
	if len(n.store.data[n.name]) == 0 {
		delete(n.store.data, n.name)
	}
	return nil
}

// Clear implements storage.Storage.
func (n *Namespace) Clear(_ context.Context) error {
	n.store.mu.Lock()
	defer n.store.mu.Unlock()
	delete(n.store.data, n.name)
	return nil
}
