package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func TestFromContext(t *testing.T) {
	base, _ := newObservedLogger()

	assert.Same(t, base, FromContext(WithContext(context.Background(), base)))
	assert.NotPanics(t, func() {
		FromContext(context.Background()).Info("dropped")
	})
}

func TestCtx_Fallback(t *testing.T) {
	fallback, logs := newObservedLogger()

	Ctx(context.Background(), fallback).Info("Using fallback")

	require.Equal(t, 1, logs.Len())
	assert.Empty(t, logs.All()[0].Context)
}

func TestWithRun(t *testing.T) {
	base, logs := newObservedLogger()

	ctx, runLog := WithRun(context.Background(), base, "run-42", "naver-store", "orders")
	runLog.Info("Sync run started")
	Ctx(ctx, zap.NewNop()).Warn("Order quarantined", zap.String("external_order_id", "1004"))

	require.Equal(t, 2, logs.Len())
	for _, entry := range logs.All() {
		fields := entry.ContextMap()
		assert.Equal(t, "run-42", fields["run_id"])
		assert.Equal(t, "naver-store", fields["marketplace"])
		assert.Equal(t, "orders", fields["kind"])
	}
	assert.Equal(t, "1004", logs.All()[1].ContextMap()["external_order_id"])
}

func TestWithUserID(t *testing.T) {
	base, logs := newObservedLogger()

	ctx, _ := WithUserID(context.Background(), base, "ops@example.com")
	FromContext(ctx).Info("Quarantine resolved")

	assert.Equal(t, "ops@example.com", GetUserID(ctx))
	assert.Empty(t, GetUserID(context.Background()))
	assert.Equal(t, "ops@example.com", logs.All()[0].ContextMap()["user_id"])
}

func TestCtx_TraceID(t *testing.T) {
	base, logs := newObservedLogger()

	traceID := trace.TraceID{0x0a, 0x0b}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     trace.SpanID{0x01},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(WithContext(context.Background(), base), sc)

	Ctx(ctx, zap.NewNop()).Info("Traced")

	assert.Equal(t, traceID.String(), logs.All()[0].ContextMap()["trace_id"])
}
