package httpmiddleware

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instrument returns a middleware that records request count and latency
// metrics with the given meter. Metrics are labeled by method and status
// code; the raw path is deliberately not a label to keep cardinality bounded.
func Instrument(name string, meter metric.Meter) Middleware {
	requests, err := meter.Int64Counter(name + ".http.requests")
	if err != nil {
		requests = nil
	}
	duration, err := meter.Float64Histogram(name+".http.duration",
		metric.WithUnit("ms"))
	if err != nil {
		duration = nil
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r)

			status := sw.status
			if status == 0 {
				status = http.StatusOK
			}
			attrs := metric.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.Int("http.status_code", status),
			)
			if requests != nil {
				requests.Add(r.Context(), 1, attrs)
			}
			if duration != nil {
				duration.Record(r.Context(), float64(time.Since(start).Milliseconds()), attrs)
			}
		})
	}
}
