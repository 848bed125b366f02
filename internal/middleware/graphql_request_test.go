package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"entity-graphql/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOperation(t *testing.T) {
	tests := []struct {
		name          string
		query         string
		operationName string
		want          observability.Operation
		wantErr       bool
	}{
		{
			name:  "anonymous query",
			query: `{ postGet { id } postCount }`,
			want:  observability.Operation{Type: "query", RootFields: []string{"postGet", "postCount"}},
		},
		{
			name:          "named operation among several",
			query:         `query A { authorGet { id } } mutation B { postAdd(post: {}) { id } }`,
			operationName: "B",
			want:          observability.Operation{Type: "mutation", Name: "B", RootFields: []string{"postAdd"}},
		},
		{
			name:          "unknown operation name",
			query:         `query A { authorGet { id } }`,
			operationName: "Missing",
			want:          observability.Operation{},
		},
		{
			name: "fragments at the root",
			query: `subscription S { ...F ... on Subscription { authorSubs { mutation } } ...F }
				fragment F on Subscription { postSubs { mutation } }`,
			want: observability.Operation{Type: "subscription", Name: "S", RootFields: []string{"postSubs", "authorSubs"}},
		},
		{
			name:    "syntax error",
			query:   `query {`,
			wantErr: true,
		},
		{
			name: "empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseOperation(tt.query, tt.operationName)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGraphQLOperationMiddlewareRewindsBody(t *testing.T) {
	body := `{"query":"mutation { postAdd(post: {}) { id } }"}`
	var seenBody string
	var seen observability.Operation
	handler := GraphQLOperationMiddleware(func() string { return "fp-1" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(strings.Builder)
		_, _ = io.Copy(buf, r.Body)
		seenBody = buf.String()
		seen, _ = OperationFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, body, seenBody)
	assert.Equal(t, "mutation", seen.Type)
	assert.Equal(t, []string{"postAdd"}, seen.RootFields)
	assert.Equal(t, "fp-1", seen.Fingerprint)
	assert.Equal(t, len("mutation { postAdd(post: {}) { id } }"), seen.DocumentSize)
}

func TestReadGraphQLRequest(t *testing.T) {
	get := httptest.NewRequest(http.MethodGet, "/graphql?query="+url.QueryEscape("{ postGet { id } }")+"&operationName=Q", nil)
	query, name := readGraphQLRequest(get)
	assert.Equal(t, "{ postGet { id } }", query)
	assert.Equal(t, "Q", name)

	raw := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader("{ postCount }"))
	raw.Header.Set("Content-Type", "application/graphql")
	query, name = readGraphQLRequest(raw)
	assert.Equal(t, "{ postCount }", query)
	assert.Empty(t, name)

	put := httptest.NewRequest(http.MethodPut, "/graphql", strings.NewReader("{}"))
	query, _ = readGraphQLRequest(put)
	assert.Empty(t, query)
}
