package resolver

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"entity-graphql/internal/entity"
)

const tracerName = "entity-graphql/resolver"

func startResolverSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func finishResolverSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("graphql.resolver.outcome", outcome))
	span.End()
}

func entityAttrs(d *entity.Descriptor, op entity.Operation) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("graphql.entity", d.Name),
		attribute.String("graphql.operation", string(op)),
		attribute.String("db.table", d.TableName()),
	}
}

func spanName(kind string, op entity.Operation) string {
	return "graphql." + kind + "." + strings.ToLower(string(op))
}
