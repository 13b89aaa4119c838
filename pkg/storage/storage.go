// Package storage defines durable key/value storage with the semantics of a
// browser's per-origin local storage, scoped to one namespace.
package storage

import "context"

// Storage is one namespace of durable string values.
type Storage interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set stores value under key, overwriting any prior value.
	Set(ctx context.Context, key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	// Clear deletes every key in the namespace.
	Clear(ctx context.Context) error
}
