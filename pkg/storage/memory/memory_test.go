package memory

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"
)

func TestNamespace(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := s.Namespace("a")
	b := s.Namespace("b")

	gt.NoError(t, a.Set(ctx, "logs", "1"))
	gt.NoError(t, b.Set(ctx, "logs", "2"))
	gt.Value(t, s.Keys("a")).Equal(1)

	v, ok, err := a.Get(ctx, "logs")
	gt.NoError(t, err)
	gt.Bool(t, ok).True()
	gt.Value(t, v).Equal("1")

	gt.NoError(t, a.Clear(ctx))
	gt.Value(t, s.Keys("a")).Equal(0)
	gt.Value(t, s.Keys("b")).Equal(1)

	gt.NoError(t, b.Remove(ctx, "logs"))
	_, ok, _ = b.Get(ctx, "logs")
	gt.Bool(t, ok).False()
}
