// Package sqlite implements namespaced durable storage on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite"

	"github.com/pario-ai/imagine/pkg/models"
	"github.com/pario-ai/imagine/pkg/storage"
)

// DB is a SQLite database holding every storage namespace.
type DB struct {
	db *sql.DB
}

const createEntriesTable = `
CREATE TABLE IF NOT EXISTS kv_entries (
	namespace TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (namespace, key)
);
CREATE INDEX IF NOT EXISTS idx_kv_updated ON kv_entries(updated_at);
`

// Open opens (or creates) the database at dbPath and runs migrations.
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, goerr.Wrap(err, "open storage db", goerr.V("path", dbPath))
	}
	// one writer keeps SQLite from returning SQLITE_BUSY under concurrent handlers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createEntriesTable); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "migrate storage db", goerr.V("path", dbPath))
	}

	return &DB{db: db}, nil
}

// Namespace returns the Storage scoped to name.
func (d *DB) Namespace(name string) storage.Storage {
	return &Namespace{db: d.db, name: name}
}

// List returns every namespace that holds at least one key, most recently
// updated first.
func (d *DB) List(ctx context.Context) ([]models.NamespaceInfo, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT namespace, COUNT(*), MAX(updated_at) FROM kv_entries
		 GROUP BY namespace ORDER BY MAX(updated_at) DESC`)
	if err != nil {
		return nil, goerr.Wrap(err, "list namespaces")
	}
	defer rows.Close()

	var out []models.NamespaceInfo
	for rows.Next() {
		var info models.NamespaceInfo
		var updated int64
		if err := rows.Scan(&info.Name, &info.Keys, &updated); err != nil {
			return nil, goerr.Wrap(err, "scan namespace")
		}
		info.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, info)
	}
	return out, rows.Err()
}

// Purge deletes namespaces whose newest key is older than cutoff. Such
// namespaces belong to sessions that ended without running their teardown.
func (d *DB) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM kv_entries WHERE namespace IN (
			SELECT namespace FROM kv_entries GROUP BY namespace HAVING MAX(updated_at) < ?
		)`, cutoff.UnixMilli())
	if err != nil {
		return 0, goerr.Wrap(err, "purge namespaces", goerr.V("cutoff", cutoff))
	}
	return res.RowsAffected()
}

// Close releases the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Namespace is one namespace of a DB.
type Namespace struct {
	db   *sql.DB
	name string
}

var _ storage.Storage = (*Namespace)(nil)

// Get implements storage.Storage.
func (n *Namespace) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := n.db.QueryRowContext(ctx,
		`SELECT value FROM kv_entries WHERE namespace = ? AND key = ?`,
		n.name, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, goerr.Wrap(err, "storage get", goerr.V("namespace", n.name), goerr.V("key", key))
	}
	return value, true, nil
}

// Set implements storage.Storage.
func (n *Namespace) Set(ctx context.Context, key, value string) error {
	_, err := n.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO kv_entries (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)`,
		n.name, key, value, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return goerr.Wrap(err, "storage set", goerr.V("namespace", n.name), goerr.V("key", key))
	}
	return nil
}

// Remove implements storage.Storage.
func (n *Namespace) Remove(ctx context.Context, key string) error {
	_, err := n.db.ExecContext(ctx,
		`DELETE FROM kv_entries WHERE namespace = ? AND key = ?`, n.name, key)
	if err != nil {
		return goerr.Wrap(err, "storage remove", goerr.V("namespace", n.name), goerr.V("key", key))
	}
	return nil
}

// Clear implements storage.Storage.
func (n *Namespace) Clear(ctx context.Context) error {
	_, err := n.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE namespace = ?`, n.name)
	if err != nil {
		return goerr.Wrap(err, "storage clear", goerr.V("namespace", n.name))
	}
	return nil
}
