package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/infrastructure/telemetry"
)

type httpMetrics struct {
	requests *telemetry.Counter
	duration *telemetry.Histogram
	size     *telemetry.Histogram
	inFlight metric.Int64UpDownCounter
}

func newHTTPMetrics(meter metric.Meter) (*httpMetrics, error) {
	requests, err := telemetry.NewCounter(meter, "http_server_request_total", "HTTP requests by route and status", "{request}")
	if err != nil {
		return nil, err
	}
	duration, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_request_duration_seconds",
		Description: "HTTP request latency",
		Unit:        "s",
		Boundaries:  telemetry.HTTPDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	size, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_response_size_bytes",
		Description: "HTTP response body size",
		Unit:        "By",
		Boundaries:  []float64{100, 1000, 10000, 100000, 1000000},
	})
	if err != nil {
		return nil, err
	}
	inFlight, err := meter.Int64UpDownCounter("http_server_active_requests",
		metric.WithDescription("HTTP requests currently being served"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}
	return &httpMetrics{requests: requests, duration: duration, size: size, inFlight: inFlight}, nil
}

// HTTPMetrics records request count, latency, response size and in-flight
// requests, labelled by the route pattern rather than the raw path. It passes
// requests through when mp is nil or disabled, or the instruments cannot be
// registered.
func HTTPMetrics(mp *telemetry.MeterProvider, log *zap.Logger) gin.HandlerFunc {
	passthrough := func(c *gin.Context) { c.Next() }
	if mp == nil || !mp.IsEnabled() {
		return passthrough
	}
	m, err := newHTTPMetrics(mp.Meter("marketsync.http"))
	if err != nil {
		log.Warn("HTTP metrics disabled", zap.Error(err))
		return passthrough
	}

	return func(c *gin.Context) {
		start := time.Now()
		ctx := c.Request.Context()
		method := telemetry.AttrHTTPMethod.String(c.Request.Method)
		m.inFlight.Add(ctx, 1, metric.WithAttributes(method))

		c.Next()

		m.inFlight.Add(ctx, -1, metric.WithAttributes(method))
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		attrs := []attribute.KeyValue{method, telemetry.AttrHTTPRoute.String(route)}
		m.requests.Inc(ctx, append(attrs, telemetry.AttrHTTPStatusCode.String(strconv.Itoa(c.Writer.Status())))...)
		m.duration.RecordDuration(ctx, time.Since(start), attrs...)
		if n := c.Writer.Size(); n > 0 {
			m.size.Record(ctx, float64(n), attrs...)
		}
	}
}
