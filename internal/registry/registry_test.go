package registry

import (
	"sync"
	"testing"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_CyclicReferencesShareOneObject(t *testing.T) {
	r := New()
	var author, post graphql.Type

	var buildPost func() graphql.Type
	buildAuthor := func() graphql.Type {
		return graphql.NewObject(graphql.ObjectConfig{
			Name: "Author",
			Fields: (graphql.FieldsThunk)(func() graphql.Fields {
				return graphql.Fields{
					"id":    &graphql.Field{Type: graphql.Int},
					"posts": &graphql.Field{Type: graphql.NewList(r.Resolve(Identity{"Post", Output}, buildPost))},
				}
			}),
		})
	}
	buildPost = func() graphql.Type {
		return graphql.NewObject(graphql.ObjectConfig{
			Name: "Post",
			Fields: (graphql.FieldsThunk)(func() graphql.Fields {
				return graphql.Fields{
					"id":     &graphql.Field{Type: graphql.Int},
					"author": &graphql.Field{Type: r.Resolve(Identity{"Author", Output}, buildAuthor)},
				}
			}),
		})
	}

	author = r.Resolve(Identity{"Author", Output}, buildAuthor)
	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: graphql.Fields{"author": &graphql.Field{Type: author}},
		}),
	})
	require.NoError(t, err)

	post, ok := r.Lookup(Identity{"Post", Output})
	require.True(t, ok)
	postObj := post.(*graphql.Object)
	assert.Same(t, author, postObj.Fields()["author"].Type)
	assert.Same(t, post, schema.Type("Post"))
}

func TestResolve_BuildsOnce(t *testing.T) {
	r := New()
	calls := 0
	build := func() graphql.Type {
		calls++
		return graphql.NewObject(graphql.ObjectConfig{Name: "Tag", Fields: graphql.Fields{"id": &graphql.Field{Type: graphql.Int}}})
	}

	first := r.Resolve(Identity{"Tag", Output}, build)
	second := r.Resolve(Identity{"Tag", Output}, build)
	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestResolve_NameCollisionReturnsExisting(t *testing.T) {
	r := New()
	shape := r.Resolve(Identity{"PostStats", Shape}, func() graphql.Type {
		return graphql.NewObject(graphql.ObjectConfig{Name: "PostStats", Fields: graphql.Fields{"n": &graphql.Field{Type: graphql.Int}}})
	})

	called := false
	got := r.Resolve(Identity{"PostStats", Output}, func() graphql.Type {
		called = true
		return nil
	})
	assert.False(t, called)
	assert.Same(t, shape, got)

	byName, ok := r.ByName("PostStats")
	require.True(t, ok)
	assert.Same(t, shape, byName)
}

func TestResolve_Concurrent(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	results := make([]graphql.Type, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Resolve(Identity{"Enum", Enum}, func() graphql.Type {
				return graphql.NewEnum(graphql.EnumConfig{Name: "Status", Values: graphql.EnumValueConfigMap{"A": {Value: "a"}}})
			})
		}(i)
	}
	wg.Wait()
	for _, got := range results {
		assert.Same(t, results[0], got)
	}
}

func TestInputArgsAndStats(t *testing.T) {
	r := New()
	args := graphql.FieldConfigArgument{"where": &graphql.ArgumentConfig{Type: graphql.String}}
	r.SetInputArgs("PostAddInput", "tags", args)

	got, ok := r.InputArgs("PostAddInput", "tags")
	require.True(t, ok)
	assert.Equal(t, args, got)
	_, ok = r.InputArgs("PostAddInput", "author")
	assert.False(t, ok)

	r.Resolve(Identity{"A", Output}, func() graphql.Type {
		return graphql.NewObject(graphql.ObjectConfig{Name: "A", Fields: graphql.Fields{"id": &graphql.Field{Type: graphql.Int}}})
	})
	r.Resolve(Identity{"AAddInput", Create}, func() graphql.Type {
		return graphql.NewInputObject(graphql.InputObjectConfig{Name: "AAddInput", Fields: graphql.InputObjectConfigFieldMap{"id": &graphql.InputObjectFieldConfig{Type: graphql.Int}}})
	})
	assert.Equal(t, map[Variant]int{Output: 1, Create: 1}, r.Stats())
	assert.Equal(t, []string{"A", "AAddInput"}, r.Names())
	assert.Len(t, r.Types(), 2)
}
