package models

import "time"

// NamespaceInfo summarizes one durable storage namespace.
type NamespaceInfo struct {
	Name      string    `json:"name"`
	Keys      int       `json:"keys"`
	UpdatedAt time.Time `json:"updated_at"`
}
