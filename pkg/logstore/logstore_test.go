package logstore

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/pario-ai/imagine/pkg/models"
	"github.com/pario-ai/imagine/pkg/storage/memory"
	"github.com/pario-ai/imagine/pkg/storage/sqlite"
)

func TestAddLogPrependsAndPersists(t *testing.T) {
	ctx := context.Background()
	ns := memory.New().Namespace("sess_1")
	s := New(ctx, ns)

	gt.NoError(t, s.AddLog(ctx, models.NewSuccess("first", "https://x/1.png", 1200))).Required()
	gt.NoError(t, s.AddLog(ctx, models.NewFailed("second", "quota exceeded", 300))).Required()

	logs := s.Logs()
	gt.Array(t, logs).Length(2).Required()
	gt.Value(t, logs[0].Prompt).Equal("second")
	gt.Value(t, logs[1].Prompt).Equal("first")

	raw, ok, err := ns.Get(ctx, StorageKey)
	gt.NoError(t, err)
	gt.Bool(t, ok).True()

	var persisted []models.LogEntry
	gt.NoError(t, json.Unmarshal([]byte(raw), &persisted)).Required()
	gt.Value(t, persisted).Equal(logs)
}

func TestNoDeduplication(t *testing.T) {
	ctx := context.Background()
	s := New(ctx, memory.New().Namespace("sess_1"))

	e := models.NewCached("a red fox", "https://x/img1.png", 0)
	gt.NoError(t, s.AddLog(ctx, e))
	gt.NoError(t, s.AddLog(ctx, e))
	gt.Value(t, s.Len()).Equal(2)
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "logs.db"))
	gt.NoError(t, err).Required()
	t.Cleanup(func() { _ = db.Close() })

	first := New(ctx, db.Namespace("sess_1"))
	gt.NoError(t, first.AddLog(ctx, models.NewSuccess("a red fox", "https://x/img1.png", 812))).Required()
	gt.NoError(t, first.AddLog(ctx, models.NewCached("a red fox", "https://x/img1.png", 0))).Required()
	gt.NoError(t, first.AddLog(ctx, models.NewFailed("a blue fox", "quota exceeded", 95))).Required()

	second := New(ctx, db.Namespace("sess_1"))
	gt.Value(t, second.Logs()).Equal(first.Logs())
}

func TestMalformedStorageYieldsEmpty(t *testing.T) {
	ctx := context.Background()
	ns := memory.New().Namespace("sess_1")
	gt.NoError(t, ns.Set(ctx, StorageKey, "{not json")).Required()

	s := New(ctx, ns)
	gt.Value(t, s.Len()).Equal(0)

	// the store stays usable and overwrites the corrupt value
	gt.NoError(t, s.AddLog(ctx, models.NewSuccess("p", "u", 1)))
	raw, _, _ := ns.Get(ctx, StorageKey)
	gt.String(t, raw).Contains(`"prompt":"p"`)
}

func TestClearLogs(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	ns := mem.Namespace("sess_1")
	other := mem.Namespace("sess_2")
	gt.NoError(t, other.Set(ctx, StorageKey, "[]")).Required()

	s := New(ctx, ns)
	gt.NoError(t, ns.Set(ctx, "draft", "a red")).Required()
	gt.NoError(t, s.AddLog(ctx, models.NewSuccess("p", "u", 1))).Required()

	gt.NoError(t, s.ClearLogs(ctx)).Required()
	gt.Array(t, s.Logs()).Length(0)

	_, ok, _ := ns.Get(ctx, StorageKey)
	gt.Bool(t, ok).False()
	_, ok, _ = ns.Get(ctx, "draft")
	gt.Bool(t, ok).False()

	// other sessions are untouched
	_, ok, _ = other.Get(ctx, StorageKey)
	gt.Bool(t, ok).True()
}

func TestCloseRemovesOnlyLogsKey(t *testing.T) {
	ctx := context.Background()
	ns := memory.New().Namespace("sess_1")
	gt.NoError(t, ns.Set(ctx, "draft", "keep")).Required()

	s := New(ctx, ns)
	gt.NoError(t, s.AddLog(ctx, models.NewSuccess("p", "u", 1))).Required()

	gt.NoError(t, s.Close(ctx)).Required()
	gt.NoError(t, s.Close(ctx))

	_, ok, _ := ns.Get(ctx, StorageKey)
	gt.Bool(t, ok).False()
	_, ok, _ = ns.Get(ctx, "draft")
	gt.Bool(t, ok).True()
}

func TestFromWithoutProvider(t *testing.T) {
	_, err := From(context.Background())
	gt.Value(t, errors.Is(err, ErrNoProvider)).Equal(true)
	gt.Value(t, err.Error()).Equal("must be used within a LogProvider")

	s := New(context.Background(), memory.New().Namespace("x"))
	got, err := From(With(context.Background(), s))
	gt.NoError(t, err)
	gt.Value(t, got).Equal(s)
}
