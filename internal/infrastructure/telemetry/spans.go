package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/marketsync/backend/internal/domain/integration"
)

// TracerName names the tracer used for engine spans.
const TracerName = "github.com/marketsync/backend"

// Span attribute keys for sync runs.
const (
	SpanAttrMarketplace     = "marketplace"
	SpanAttrRunID           = "run_id"
	SpanAttrRunKind         = "run_kind"
	SpanAttrRunTrigger      = "run_trigger"
	SpanAttrExternalOrderID = "external_order_id"
	SpanAttrSKU             = "sku"
	SpanAttrPage            = "page"
)

// StartSpan starts an internal span on the global tracer provider.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// StartRunSpan starts the span covering one executor pass over a sync run.
// The span is named "<component>.<kind>", e.g. "order_sync.orders".
func StartRunSpan(ctx context.Context, component string, run *integration.SyncRun) (context.Context, trace.Span) {
	return StartSpan(ctx, component+"."+string(run.Kind),
		attribute.String(SpanAttrMarketplace, run.Marketplace.String()),
		attribute.String(SpanAttrRunID, run.ID.String()),
		attribute.String(SpanAttrRunKind, string(run.Kind)),
		attribute.String(SpanAttrRunTrigger, string(run.Trigger)),
	)
}

// EndRunSpan records the report counters and the outcome, then ends the span.
func EndRunSpan(span trace.Span, report *integration.RunReport, err error) {
	defer span.End()
	if report != nil {
		span.SetAttributes(
			attribute.Int("processed", report.Processed),
			attribute.Int("quarantined", report.Quarantined),
			attribute.Int("failed", report.Failed),
		)
	}
	if err != nil {
		span.SetAttributes(attribute.String("error_class", string(integration.Classify(err))))
		RecordError(span, err)
		return
	}
	SetOK(span)
}

// SetAttributes sets alternating key/value pairs on span. Pairs with a
// non-string key are dropped.
func SetAttributes(span trace.Span, kv ...any) {
	if span == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			attrs = append(attrs, toAttribute(key, kv[i+1]))
		}
	}
	span.SetAttributes(attrs...)
}

// RecordError records err and marks the span failed.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetOK marks the span successful.
func SetOK(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// TraceID returns the active trace ID, or "" outside a sampled span.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

func toAttribute(key string, v any) attribute.KeyValue {
	switch v := v.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}
