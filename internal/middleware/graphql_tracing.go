package middleware

import (
	"log/slog"
	"net/http"

	"entity-graphql/internal/logging"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

// TracerName is the instrumentation scope for request spans.
const TracerName = "entity-graphql/graphql"

// GraphQLTracingMiddleware wraps GraphQL execution in a graphql.execute span
// labelled with the parsed operation, and attaches trace ids to the request
// logger. Requests without a document pass through untraced.
func GraphQLTracingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op, ok := OperationFromContext(r.Context())
			if !ok || op.Type == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx, span := otel.Tracer(TracerName).Start(r.Context(), "graphql.execute")
			defer span.End()
			if span.IsRecording() {
				span.SetAttributes(op.SpanAttributes()...)
			}

			reqLogger := logging.FromContext(ctx).WithFields(op.LogFields(ctx)...)
			if sc := span.SpanContext(); sc.IsValid() {
				reqLogger = reqLogger.WithFields(slog.String("span_id", sc.SpanID().String()))
			}
			ctx = logging.WithLogger(ctx, reqLogger)

			wrapped := &captureWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			if wrapped.statusCode >= 400 || responseHasGraphQLErrors(wrapped.body.Bytes()) {
				span.SetStatus(codes.Error, "graphql errors")
			}
		})
	}
}
