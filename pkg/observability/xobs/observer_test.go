package xobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopObserver(t *testing.T) {
	obs := NoopObserver{}

	ctx, span := obs.Start(context.Background(), SpanOptions{Component: "c", Operation: "o"})
	require.NotNil(t, ctx)
	require.NotNil(t, span)

	// End 不产生任何副作用
	span.End(Result{Err: errors.New("boom")})
}

func TestNoopObserverNilContext(t *testing.T) {
	obs := NoopObserver{}
	ctx, _ := obs.Start(nil, SpanOptions{}) //nolint:staticcheck // 显式验证 nil ctx 兜底
	assert.NotNil(t, ctx)
}

func TestStartHelper(t *testing.T) {
	t.Run("nil observer yields noop span", func(t *testing.T) {
		ctx, span := Start(context.Background(), nil, SpanOptions{})
		require.NotNil(t, ctx)
		assert.IsType(t, NoopSpan{}, span)
	})

	t.Run("nil ctx normalized", func(t *testing.T) {
		ctx, _ := Start(nil, nil, SpanOptions{}) //nolint:staticcheck // 显式验证 nil ctx 兜底
		assert.NotNil(t, ctx)
	})

	t.Run("nil span from custom observer is replaced", func(t *testing.T) {
		_, span := Start(context.Background(), nilSpanObserver{}, SpanOptions{})
		assert.IsType(t, NoopSpan{}, span)
	})

	t.Run("nil ctx from custom observer is replaced", func(t *testing.T) {
		ctx, _ := Start(context.Background(), nilCtxObserver{}, SpanOptions{})
		assert.NotNil(t, ctx)
	})
}

func TestKindString(t *testing.T) {
	assert.Equal(t, KindInternal, Kind(0))
	assert.NotEqual(t, KindInternal, KindClient)
}

// nilSpanObserver 返回 nil Span 的异常实现。
type nilSpanObserver struct{}

func (nilSpanObserver) Start(ctx context.Context, _ SpanOptions) (context.Context, Span) {
	return ctx, nil
}

// nilCtxObserver 返回 nil context 的异常实现。
type nilCtxObserver struct{}

func (nilCtxObserver) Start(_ context.Context, _ SpanOptions) (context.Context, Span) {
	return nil, NoopSpan{}
}
