package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"entity-graphql/internal/observability"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
)

type graphQLRequest struct {
	Query         string `json:"query"`
	OperationName string `json:"operationName"`
}

type operationKey struct{}

// WithOperation stores the parsed operation on ctx.
func WithOperation(ctx context.Context, op observability.Operation) context.Context {
	return context.WithValue(ctx, operationKey{}, op)
}

// OperationFromContext returns the operation stored by GraphQLOperationMiddleware.
func OperationFromContext(ctx context.Context) (observability.Operation, bool) {
	op, ok := ctx.Value(operationKey{}).(observability.Operation)
	return op, ok
}

// GraphQLOperationMiddleware parses the request document once so later
// middleware can label spans, logs and metrics with the operation. The body is
// rewound for the GraphQL handler. fingerprint may be nil.
func GraphQLOperationMiddleware(fingerprint func() string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query, operationName := readGraphQLRequest(r)
			op, _ := parseOperation(query, operationName)
			op.DocumentSize = len(query)
			if fingerprint != nil {
				op.Fingerprint = fingerprint()
			}
			next.ServeHTTP(w, r.WithContext(WithOperation(r.Context(), op)))
		})
	}
}

// readGraphQLRequest extracts the document and operation name from GET query
// parameters, an application/graphql body or a JSON body.
func readGraphQLRequest(r *http.Request) (string, string) {
	switch r.Method {
	case http.MethodGet:
		return r.URL.Query().Get("query"), r.URL.Query().Get("operationName")
	case http.MethodPost:
	default:
		return "", ""
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return "", ""
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	if strings.Contains(r.Header.Get("Content-Type"), "application/graphql") {
		return string(body), ""
	}
	var payload graphQLRequest
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", ""
	}
	return payload.Query, payload.OperationName
}

// parseOperation selects the executed operation and lists its root fields.
// Without an operation name the first operation is used.
func parseOperation(query, operationName string) (observability.Operation, error) {
	if strings.TrimSpace(query) == "" {
		return observability.Operation{}, nil
	}
	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{Body: []byte(query), Name: "graphql"}),
	})
	if err != nil {
		return observability.Operation{}, err
	}

	fragments := make(map[string]*ast.FragmentDefinition)
	var target, first *ast.OperationDefinition
	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.FragmentDefinition:
			fragments[d.Name.Value] = d
		case *ast.OperationDefinition:
			if first == nil {
				first = d
			}
			if target == nil && operationName != "" && d.Name != nil && d.Name.Value == operationName {
				target = d
			}
		}
	}
	if target == nil && operationName == "" {
		target = first
	}
	if target == nil {
		return observability.Operation{}, nil
	}

	op := observability.Operation{Type: string(target.Operation)}
	if target.Name != nil {
		op.Name = target.Name.Value
	}
	op.RootFields = rootFields(target.SelectionSet, fragments, map[string]bool{})
	return op, nil
}

// rootFields collects top-level field names through inline fragments and
// fragment spreads. Each fragment is expanded at most once.
func rootFields(set *ast.SelectionSet, fragments map[string]*ast.FragmentDefinition, seen map[string]bool) []string {
	if set == nil {
		return nil
	}
	var names []string
	for _, sel := range set.Selections {
		switch s := sel.(type) {
		case *ast.Field:
			names = append(names, s.Name.Value)
		case *ast.InlineFragment:
			names = append(names, rootFields(s.SelectionSet, fragments, seen)...)
		case *ast.FragmentSpread:
			name := s.Name.Value
			if seen[name] {
				continue
			}
			seen[name] = true
			if frag, ok := fragments[name]; ok {
				names = append(names, rootFields(frag.SelectionSet, fragments, seen)...)
			}
		}
	}
	return names
}
