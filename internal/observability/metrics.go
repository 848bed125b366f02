package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope used for engine metrics.
const MeterName = "entity-graphql"

// EngineMetrics holds the instruments for the generated API. It satisfies
// resolver.Metrics and pubsub.Observer. A nil *EngineMetrics records nothing.
type EngineMetrics struct {
	queryCounter        metric.Int64Counter
	mutationCounter     metric.Int64Counter
	mutationDuration    metric.Float64Histogram
	eventsPublished     metric.Int64Counter
	eventsDelivered     metric.Int64Counter
	eventsDropped       metric.Int64Counter
	activeSubscriptions metric.Int64UpDownCounter
	schemaBuilds        metric.Int64Counter
	schemaBuildDuration metric.Float64Histogram
	requestCounter      metric.Int64Counter
	requestDuration     metric.Float64Histogram
	activeRequests      metric.Int64UpDownCounter

	lastBuildUnix atomic.Int64
}

// NewEngineMetrics creates the instruments on meter, or on the global meter
// provider when meter is nil.
func NewEngineMetrics(meter metric.Meter) (*EngineMetrics, error) {
	if meter == nil {
		meter = otel.Meter(MeterName)
	}
	m := &EngineMetrics{}
	var errs []error
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to create %s: %w", name, err))
		}
		return c
	}
	histogram := func(name, desc string) metric.Float64Histogram {
		h, err := meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("ms"))
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to create %s: %w", name, err))
		}
		return h
	}
	upDown := func(name, desc string) metric.Int64UpDownCounter {
		c, err := meter.Int64UpDownCounter(name, metric.WithDescription(desc))
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to create %s: %w", name, err))
		}
		return c
	}

	m.queryCounter = counter("graphql.queries.total", "Total number of root query resolutions")
	m.mutationCounter = counter("graphql.mutations.total", "Total number of mutations")
	m.mutationDuration = histogram("graphql.mutation.duration", "Duration of mutations in milliseconds")
	m.eventsPublished = counter("graphql.events.published", "Total number of change events published")
	m.eventsDelivered = counter("graphql.events.delivered", "Total number of change events delivered to subscribers")
	m.eventsDropped = counter("graphql.events.dropped", "Total number of change events dropped for slow subscribers")
	m.activeSubscriptions = upDown("graphql.subscriptions.active", "Number of active subscriptions")
	m.schemaBuilds = counter("schema.build.total", "Total number of schema builds")
	m.schemaBuildDuration = histogram("schema.build.duration", "Duration of schema builds in milliseconds")
	m.requestCounter = counter("graphql.requests.total", "Total number of GraphQL HTTP requests")
	m.requestDuration = histogram("graphql.request.duration", "Duration of GraphQL HTTP requests in milliseconds")
	m.activeRequests = upDown("graphql.requests.active", "Number of in-flight GraphQL HTTP requests")

	lastBuild, err := meter.Int64ObservableGauge(
		"schema.build.last_success_unix",
		metric.WithDescription("Unix timestamp of the last successful schema build"),
		metric.WithUnit("s"),
	)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to create schema build gauge: %w", err))
	} else {
		_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
			if v := m.lastBuildUnix.Load(); v > 0 {
				o.ObserveInt64(lastBuild, v)
			}
			return nil
		}, lastBuild)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to register schema build gauge callback: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

// InitMetrics creates engine metrics on the global meter provider.
func InitMetrics(logger *slog.Logger) (*EngineMetrics, error) {
	m, err := NewEngineMetrics(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize engine metrics: %w", err)
	}
	logger.Info("engine metrics initialized")
	return m, nil
}

func outcome(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String("outcome", "error")
	}
	return attribute.String("outcome", "success")
}

// RecordQuery counts one root query resolution.
func (m *EngineMetrics) RecordQuery(ctx context.Context, entityName, op string, err error) {
	if m == nil {
		return
	}
	m.queryCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entityName),
		attribute.String("operation", op),
		outcome(err),
	))
}

// RecordMutation counts a mutation and records how long it took.
func (m *EngineMetrics) RecordMutation(ctx context.Context, entityName, op string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("entity", entityName),
		attribute.String("operation", op),
		outcome(err),
	)
	m.mutationCounter.Add(ctx, 1, attrs)
	m.mutationDuration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}

func (m *EngineMetrics) SubscriptionStarted(ctx context.Context, entityName string) {
	if m == nil {
		return
	}
	m.activeSubscriptions.Add(ctx, 1, metric.WithAttributes(attribute.String("entity", entityName)))
}

func (m *EngineMetrics) SubscriptionEnded(ctx context.Context, entityName string) {
	if m == nil {
		return
	}
	m.activeSubscriptions.Add(ctx, -1, metric.WithAttributes(attribute.String("entity", entityName)))
}

// EventPublished records one publish and the number of subscribers that received it.
func (m *EngineMetrics) EventPublished(ctx context.Context, name string, delivered int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("event", name))
	m.eventsPublished.Add(ctx, 1, attrs)
	if delivered > 0 {
		m.eventsDelivered.Add(ctx, int64(delivered), attrs)
	}
}

func (m *EngineMetrics) EventDropped(ctx context.Context, name string) {
	if m == nil {
		return
	}
	m.eventsDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("event", name)))
}

// RecordSchemaBuild records a schema build attempt. trigger is "startup", "refresh" or "manual".
func (m *EngineMetrics) RecordSchemaBuild(ctx context.Context, duration time.Duration, err error, trigger string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("trigger", trigger), outcome(err))
	m.schemaBuilds.Add(ctx, 1, attrs)
	m.schemaBuildDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	if err == nil {
		m.lastBuildUnix.Store(time.Now().Unix())
	}
}

// RecordRequest records a finished GraphQL HTTP request.
func (m *EngineMetrics) RecordRequest(ctx context.Context, duration time.Duration, hasErrors bool, operationType string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation_type", operationType),
		attribute.Bool("has_errors", hasErrors),
	)
	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.requestCounter.Add(ctx, 1, attrs)
}

func (m *EngineMetrics) IncrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, 1)
}

func (m *EngineMetrics) DecrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, -1)
}
