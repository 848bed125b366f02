package observability

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Operation describes a parsed GraphQL request. The middleware fills it from
// the request document; an unparseable document leaves it zero.
type Operation struct {
	Type         string
	Name         string
	RootFields   []string
	DocumentSize int
	Fingerprint  string
}

// SpanAttributes builds span attributes for op.
func (op Operation) SpanAttributes() []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 5)
	if op.Type != "" {
		attrs = append(attrs, attribute.String("graphql.operation.type", op.Type))
	}
	if op.Name != "" {
		attrs = append(attrs, attribute.String("graphql.operation.name", op.Name))
	}
	if len(op.RootFields) > 0 {
		attrs = append(attrs, attribute.StringSlice("graphql.operation.root_fields", op.RootFields))
	}
	if op.DocumentSize > 0 {
		attrs = append(attrs, attribute.Int("graphql.document.size_bytes", op.DocumentSize))
	}
	if op.Fingerprint != "" {
		attrs = append(attrs, attribute.String("schema.fingerprint", op.Fingerprint))
	}
	return attrs
}

// LogFields builds structured log fields for op, adding the trace id when ctx
// carries a valid span.
func (op Operation) LogFields(ctx context.Context) []any {
	fields := make([]any, 0, 5)
	if op.Type != "" {
		fields = append(fields, slog.String("operation_type", op.Type))
	}
	if op.Name != "" {
		fields = append(fields, slog.String("operation_name", op.Name))
	}
	if len(op.RootFields) > 0 {
		fields = append(fields, slog.String("root_fields", strings.Join(op.RootFields, ",")))
	}
	if op.Fingerprint != "" {
		fields = append(fields, slog.String("schema_fingerprint", op.Fingerprint))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields, slog.String("trace_id", sc.TraceID().String()))
	}
	return fields
}
