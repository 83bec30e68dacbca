package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// RequestIDHeader is read from the caller and echoed on every response.
const RequestIDHeader = "X-Request-ID"

type requestMeta struct {
	id      string
	started time.Time
}

type metaKey struct{}

func metaFrom(ctx context.Context) (requestMeta, bool) {
	m, ok := ctx.Value(metaKey{}).(requestMeta)
	return m, ok
}

// RequestIDFromContext returns the identifier assigned by RequestContextMiddleware.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	m, ok := metaFrom(ctx)
	return m.id, ok
}

// StartTimeFromContext returns when the request reached RequestContextMiddleware.
func StartTimeFromContext(ctx context.Context) (time.Time, bool) {
	m, ok := metaFrom(ctx)
	return m.started, ok
}

// RequestContextMiddleware assigns a request ID (keeping one sent by the
// caller), records the arrival time and opens a server span that continues
// any incoming trace context.
func RequestContextMiddleware(next http.Handler) http.Handler {
	tracer := Tracer("github.com/MGabrielaGuerrero/devops/shared/go/observability")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta := requestMeta{id: r.Header.Get(RequestIDHeader), started: time.Now()}
		if meta.id == "" {
			meta.id = uuid.NewString()
		}

		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, r.Method+" request",
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
				attribute.String("request_id", meta.id),
			))
		defer span.End()

		r.Header.Set(RequestIDHeader, meta.id)
		w.Header().Set(RequestIDHeader, meta.id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, metaKey{}, meta)))
	})
}
