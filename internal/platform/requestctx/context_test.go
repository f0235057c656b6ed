package requestctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestScopeIsSharedWithOuterContext(t *testing.T) {
	outer, scope := WithScope(context.Background())

	inner := WithFormID(outer, "form-1")
	inner = WithSubmissionID(inner, "01HX")

	require.Equal(t, "form-1", FormID(inner))
	require.Equal(t, "form-1", scope.FormID(), "outer holder sees ids set further in")
	require.Equal(t, "01HX", scope.SubmissionID())
	require.Equal(t, []zap.Field{zap.String("form_id", "form-1"), zap.String("submission_id", "01HX")}, scope.Fields())

	again, same := WithScope(inner)
	require.Same(t, scope, same)
	require.Equal(t, inner, again)
}

func TestWithFormIDTagsLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := WithLogger(context.Background(), zap.New(core))

	ctx = WithFormID(ctx, "form-2")
	Logger(ctx).Info("hello")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "form-2", entries[0].ContextMap()["form_id"])
}

func TestEmptyContextFallbacks(t *testing.T) {
	ctx := context.Background()
	require.Empty(t, FormID(ctx))
	require.Empty(t, SubmissionID(ctx))
	require.Nil(t, ScopeFrom(ctx))
	require.Empty(t, ScopeFrom(ctx).Fields())
	require.Same(t, NoopLogger(), Logger(ctx))
	require.Empty(t, TraceID(ctx))
}
