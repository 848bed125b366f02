package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"entity-graphql/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestGraphQLMetricsMiddleware(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		response      string
		parseFirst    bool
		wantOperation string
		wantErrors    bool
	}{
		{
			name:          "mutation",
			body:          `{"query":"mutation AddPost { postAdd(post: {title: \"x\"}) { id } }","operationName":"AddPost"}`,
			response:      `{"data":{"postAdd":{"id":1}}}`,
			wantOperation: "mutation",
		},
		{
			name:          "subscription parsed upstream",
			body:          `{"query":"subscription { postSubs { mutation } }"}`,
			response:      `{"data":null}`,
			parseFirst:    true,
			wantOperation: "subscription",
		},
		{
			name:          "graphql errors on 200",
			body:          `{"query":"{ postGet { id } }"}`,
			response:      `{"errors":[{"message":"boom"}]}`,
			wantOperation: "query",
			wantErrors:    true,
		},
		{
			name:          "unparseable body",
			body:          `{"query":`,
			response:      `{"data":{}}`,
			wantOperation: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := sdkmetric.NewManualReader()
			provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
			t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
			metrics, err := observability.NewEngineMetrics(provider.Meter("test"))
			require.NoError(t, err)

			var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.response))
			})
			handler = GraphQLMetricsMiddleware(metrics)(handler)
			if tt.parseFirst {
				handler = GraphQLOperationMiddleware(nil)(handler)
			}

			req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			handler.ServeHTTP(httptest.NewRecorder(), req)

			var rm metricdata.ResourceMetrics
			require.NoError(t, reader.Collect(context.Background(), &rm))
			assert.Equal(t, int64(1), requestCount(rm, tt.wantOperation, tt.wantErrors))
			assert.Equal(t, int64(0), activeRequests(rm))
		})
	}
}

func TestGraphQLMetricsMiddlewareSkipsGet(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := observability.NewEngineMetrics(provider.Meter("test"))
	require.NoError(t, err)

	handler := GraphQLMetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/graphql", nil))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	assert.Equal(t, int64(0), requestCount(rm, "unknown", false))
}

func requestCount(rm metricdata.ResourceMetrics, operationType string, hasErrors bool) int64 {
	var total int64
	for _, p := range int64Points(rm, "graphql.requests.total") {
		op, _ := p.Attributes.Value(attribute.Key("operation_type"))
		errs, _ := p.Attributes.Value(attribute.Key("has_errors"))
		if op.AsString() == operationType && errs.AsBool() == hasErrors {
			total += p.Value
		}
	}
	return total
}

func activeRequests(rm metricdata.ResourceMetrics) int64 {
	var total int64
	for _, p := range int64Points(rm, "graphql.requests.active") {
		total += p.Value
	}
	return total
}

func int64Points(rm metricdata.ResourceMetrics, name string) []metricdata.DataPoint[int64] {
	var points []metricdata.DataPoint[int64]
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok && m.Name == name {
				points = append(points, sum.DataPoints...)
			}
		}
	}
	return points
}
