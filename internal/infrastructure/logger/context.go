package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type loggerKey struct{}

type userIDKey struct{}

// WithContext attaches l to ctx.
func WithContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the logger attached to ctx, or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	return Ctx(ctx, zap.NewNop())
}

// Ctx returns the logger attached to ctx, falling back to fallback, with the
// active trace ID appended when ctx carries a sampled span.
func Ctx(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	l, ok := ctx.Value(loggerKey{}).(*zap.Logger)
	if !ok || l == nil {
		l = fallback
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		l = l.With(zap.String("trace_id", sc.TraceID().String()))
	}
	return l
}

// WithRun scopes base to one sync run and attaches it to ctx. Everything an
// executor logs through Ctx then carries the run's identity.
func WithRun(ctx context.Context, base *zap.Logger, runID, marketplace, kind string) (context.Context, *zap.Logger) {
	l := base.With(
		zap.String("run_id", runID),
		zap.String("marketplace", marketplace),
		zap.String("kind", kind),
	)
	return WithContext(ctx, l), l
}

// WithUserID records the operator subject on ctx and on its logger.
func WithUserID(ctx context.Context, base *zap.Logger, userID string) (context.Context, *zap.Logger) {
	l := base.With(zap.String("user_id", userID))
	ctx = context.WithValue(ctx, userIDKey{}, userID)
	return WithContext(ctx, l), l
}

// GetUserID returns the operator subject recorded by WithUserID.
func GetUserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}
