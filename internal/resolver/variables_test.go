package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entity-graphql/internal/store"
)

func TestSubstituteVariables(t *testing.T) {
	vars := map[string]interface{}{"name": "ann", "ids": []interface{}{1, 2}}
	in := map[string]interface{}{
		"name":  map[string]interface{}{"$var": "name"},
		"id":    map[string]interface{}{"in": map[string]interface{}{"$var": "ids"}},
		"views": VarFunc(func(v map[string]interface{}) interface{} { return len(v) }),
		"or": []interface{}{
			map[string]interface{}{"title": "fixed"},
			map[string]interface{}{"title": map[string]interface{}{"$var": "missing"}},
		},
	}

	out := substituteVariables(in, vars)
	assert.Equal(t, map[string]interface{}{
		"name":  "ann",
		"id":    map[string]interface{}{"in": []interface{}{1, 2}},
		"views": 2,
		"or": []interface{}{
			map[string]interface{}{"title": "fixed"},
			map[string]interface{}{"title": nil},
		},
	}, out)
}

func TestFilterArgIgnoresMissingAndNonObjects(t *testing.T) {
	assert.Nil(t, filterArg(map[string]interface{}{}, "where", nil))
	assert.Nil(t, filterArg(map[string]interface{}{"where": "nope"}, "where", nil))
}

func TestWhereFromArgsMergesPrimaryKeys(t *testing.T) {
	post, ok := blogCatalog(t).Entity("Post")
	require.True(t, ok)
	vars := map[string]interface{}{"min": 3}

	where := WhereFromArgs(post, map[string]interface{}{
		"id":    7,
		"where": map[string]interface{}{"views": map[string]interface{}{"gte": map[string]interface{}{"$var": "min"}}},
	}, vars)
	assert.Equal(t, store.Filter{"id": 7, "views": map[string]interface{}{"gte": 3}}, where)

	assert.Nil(t, WhereFromArgs(post, map[string]interface{}{"title": "x"}, nil))
}

func TestParseOrder(t *testing.T) {
	tests := []struct {
		raw  string
		edge bool
		want []store.Order
	}{
		{raw: "title", want: []store.Order{{Field: "title"}}},
		{raw: "reverse:views, title", want: []store.Order{{Field: "views", Desc: true}, {Field: "title"}}},
		{raw: "views.DESC,title.asc", want: []store.Order{{Field: "views", Desc: true}, {Field: "title"}}},
		{raw: "role", edge: true, want: []store.Order{{Field: "role", Edge: true}}},
		{raw: " , reverse:", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, parseOrder(tt.raw, tt.edge))
		})
	}
}
