package observability

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter

	statusCode int
	written    bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.written {
		sw.statusCode = code
		sw.written = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(buf []byte) (int, error) {
	if !sw.written {
		sw.statusCode = http.StatusOK
		sw.written = true
	}
	return sw.ResponseWriter.Write(buf)
}

func (sw *statusWriter) status() int {
	if !sw.written {
		return http.StatusOK
	}
	return sw.statusCode
}

// OtherRoute labels requests that matched no registered pattern.
const OtherRoute = "other"

// RouteOf returns the path part of the ServeMux pattern that served r, or
// OtherRoute when none did. Only valid after the mux has dispatched r.
func RouteOf(r *http.Request) string {
	p := r.Pattern
	if p == "" {
		return OtherRoute
	}
	if i := strings.IndexByte(p, ' '); i >= 0 {
		p = p[i+1:]
	}
	return p
}

// methodLabel folds unknown methods into one label value.
func methodLabel(m string) string {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
		return m
	}
	return "OTHER"
}

// HTTPMiddleware wraps next with a server span per request, a latency
// observation and a debug access log line. Spans and metrics are named by
// route (see RouteOf) so arbitrary client paths cannot grow the label set.
// next is expected to be a ServeMux. metrics and logger may be nil.
func HTTPMiddleware(tracer trace.Tracer, metrics *Metrics, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, hr *http.Request) {
		start := time.Now()
		method := methodLabel(hr.Method)

		parentCtx := otel.GetTextMapPropagator().Extract(hr.Context(), propagation.HeaderCarrier(hr.Header))
		ctx, span := tracer.Start(parentCtx, method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", hr.Method),
				attribute.String("http.target", hr.URL.Path),
			),
		)
		defer span.End()

		sw := &statusWriter{ResponseWriter: rw}
		req := hr.WithContext(ctx)
		next.ServeHTTP(sw, req)

		// The mux records the matched pattern on req.
		route := RouteOf(req)
		span.SetName(method + " " + route)

		code := sw.status()
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", code),
		)
		if code >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(code))
		}

		elapsed := time.Since(start)
		if metrics != nil {
			metrics.ObserveRequest(method, route, code, elapsed)
		}
		if logger != nil {
			logger.DebugContext(ctx, "http request",
				"method", hr.Method, "path", hr.URL.Path, "route", route, "status", code,
				"remote", hr.RemoteAddr, "duration", elapsed)
		}
	})
}
