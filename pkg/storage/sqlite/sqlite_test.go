package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "storage_test.db"))
	gt.NoError(t, err).Required()
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSetAndGet(t *testing.T) {
	ctx := context.Background()
	ns := newTestDB(t).Namespace("sess_a")

	_, ok, err := ns.Get(ctx, "logs")
	gt.NoError(t, err)
	gt.Bool(t, ok).False()

	gt.NoError(t, ns.Set(ctx, "logs", `[]`)).Required()
	gt.NoError(t, ns.Set(ctx, "logs", `[{"prompt":"x"}]`)).Required()

	v, ok, err := ns.Get(ctx, "logs")
	gt.NoError(t, err)
	gt.Bool(t, ok).True()
	gt.Value(t, v).Equal(`[{"prompt":"x"}]`)
}

func TestNamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	a := db.Namespace("sess_a")
	b := db.Namespace("sess_b")

	gt.NoError(t, a.Set(ctx, "logs", "a")).Required()
	gt.NoError(t, b.Set(ctx, "logs", "b")).Required()
	gt.NoError(t, b.Set(ctx, "theme", "dark")).Required()

	gt.NoError(t, a.Clear(ctx)).Required()

	_, ok, _ := a.Get(ctx, "logs")
	gt.Bool(t, ok).False()

	v, ok, _ := b.Get(ctx, "logs")
	gt.Bool(t, ok).True()
	gt.Value(t, v).Equal("b")

	gt.NoError(t, b.Remove(ctx, "logs")).Required()
	_, ok, _ = b.Get(ctx, "logs")
	gt.Bool(t, ok).False()
	_, ok, _ = b.Get(ctx, "theme")
	gt.Bool(t, ok).True()

	// removing an absent key is fine
	gt.NoError(t, b.Remove(ctx, "logs"))
}

func TestListAndPurge(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	gt.NoError(t, db.Namespace("sess_a").Set(ctx, "logs", "[]")).Required()
	gt.NoError(t, db.Namespace("sess_b").Set(ctx, "logs", "[]")).Required()
	gt.NoError(t, db.Namespace("sess_b").Set(ctx, "other", "1")).Required()

	infos, err := db.List(ctx)
	gt.NoError(t, err).Required()
	gt.Array(t, infos).Length(2).Required()

	keys := map[string]int{}
	for _, info := range infos {
		keys[info.Name] = info.Keys
	}
	gt.Value(t, keys["sess_a"]).Equal(1)
	gt.Value(t, keys["sess_b"]).Equal(2)

	// nothing is older than an hour ago
	n, err := db.Purge(ctx, time.Now().Add(-time.Hour))
	gt.NoError(t, err)
	gt.Value(t, n).Equal(int64(0))

	n, err = db.Purge(ctx, time.Now().Add(time.Minute))
	gt.NoError(t, err)
	gt.Value(t, n).Equal(int64(3))

	infos, err = db.List(ctx)
	gt.NoError(t, err)
	gt.Array(t, infos).Length(0)
}
