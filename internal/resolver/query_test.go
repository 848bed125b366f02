package resolver

import (
	"context"
	"testing"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entity-graphql/internal/cursor"
	"entity-graphql/internal/entity"
	"entity-graphql/internal/gqlerr"
	"entity-graphql/internal/store"
	"entity-graphql/internal/store/memstore"
)

func titles(t *testing.T, v interface{}) []string {
	t.Helper()
	rows, ok := v.([]entity.Record)
	require.True(t, ok, "got %T", v)
	out := make([]string, len(rows))
	for i, row := range rows {
		out[i], _ = row["title"].(string)
	}
	return out
}

func seedPosts(t *testing.T, h *harness) {
	t.Helper()
	for i, title := range []string{"alpha", "beta", "gamma", "delta"} {
		h.seed(t, "Post", entity.Record{"title": title, "views": i * 10})
	}
	_, err := h.store.Destroy(context.Background(), h.entity(t, "Post"), store.Filter{"title": "delta"})
	require.NoError(t, err)
}

func TestFetchOrdersPagesAndHidesDeleted(t *testing.T) {
	h := newHarness(t)
	seedPosts(t, h)
	post := h.entity(t, "Post")
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]interface{}
		want []string
	}{
		{name: "default", args: map[string]interface{}{}, want: []string{"alpha", "beta", "gamma"}},
		{name: "reverse", args: map[string]interface{}{"order": "reverse:views", "limit": 2}, want: []string{"gamma", "beta"}},
		{name: "suffix", args: map[string]interface{}{"order": "title.desc", "offset": 1}, want: []string{"beta", "alpha"}},
		{name: "paranoid off", args: map[string]interface{}{"paranoid": false, "order": "views"}, want: []string{"alpha", "beta", "gamma", "delta"}},
		{name: "deleted only", args: map[string]interface{}{"where": map[string]interface{}{"deletedAt": map[string]interface{}{"ne": nil}}}, want: []string{"delta"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := h.engine.Fetch(ctx, FetchRequest{Entity: post, Args: tt.args})
			require.NoError(t, err)
			assert.Equal(t, tt.want, titles(t, res))
		})
	}
}

func TestFetchSubstitutesVariables(t *testing.T) {
	h := newHarness(t)
	seedPosts(t, h)
	post := h.entity(t, "Post")

	info := graphql.ResolveInfo{VariableValues: map[string]interface{}{"wanted": "beta", "floor": 15}}
	res, err := h.engine.Fetch(context.Background(), FetchRequest{Entity: post, Info: info, Args: map[string]interface{}{
		"where": map[string]interface{}{"or": []interface{}{
			map[string]interface{}{"title": map[string]interface{}{"$var": "wanted"}},
			map[string]interface{}{"views": map[string]interface{}{"gt": VarFunc(func(vars map[string]interface{}) interface{} {
				return vars["floor"]
			})}},
		}},
		"order": "title",
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"beta", "gamma"}, titles(t, res))
}

func TestFetchRejectsInvalidArguments(t *testing.T) {
	h := newHarness(t)
	post := h.entity(t, "Post")

	_, err := h.engine.Fetch(context.Background(), FetchRequest{Entity: post, Args: map[string]interface{}{"orderEdges": "role"}})
	assert.True(t, gqlerr.IsValidationError(err))

	_, err = h.engine.Fetch(context.Background(), FetchRequest{Entity: post, Args: map[string]interface{}{"limit": -1}})
	assert.True(t, gqlerr.IsValidationError(err))

	_, err = h.engine.Fetch(context.Background(), FetchRequest{Entity: post, Args: map[string]interface{}{"order": "nope"}})
	assert.True(t, gqlerr.IsStorageError(err))
}

func TestFetchHooks(t *testing.T) {
	h := newHarness(t)
	seedPosts(t, h)
	post := h.entity(t, "Post")

	post.Graph.Before = entity.Hooks{entity.OpFetch: func(ctx context.Context, in *entity.HookInput) (interface{}, error) {
		opts := in.Options.(*store.FindOptions)
		opts.Limit = 1
		opts.Order = []store.Order{{Field: "views", Desc: true}}
		return nil, nil
	}}
	post.Graph.Extend = entity.Hooks{entity.OpFetch: func(ctx context.Context, in *entity.HookInput) (interface{}, error) {
		rows := in.Result.([]entity.Record)
		return append(rows, entity.Record{"title": "appended"}), nil
	}}
	res, err := h.engine.Fetch(context.Background(), FetchRequest{Entity: post, Args: map[string]interface{}{}})
	require.NoError(t, err)
	assert.Equal(t, []string{"gamma", "appended"}, titles(t, res))

	post.Graph.Overwrite = entity.Hooks{entity.OpFetch: func(ctx context.Context, in *entity.HookInput) (interface{}, error) {
		return "replaced", nil
	}}
	res, err = h.engine.Fetch(context.Background(), FetchRequest{Entity: post, Args: map[string]interface{}{}})
	require.NoError(t, err)
	assert.Equal(t, "replaced", res)
}

func TestFetchAppliesScopeArgument(t *testing.T) {
	scopes := store.Scopes{}
	scopes.Register("Tag", "labelled", func(args ...interface{}) store.Filter {
		return store.Filter{"label": args[0]}
	})
	catalog := blogCatalog(t)
	s := memstore.New(memstore.WithScopes(scopes))
	e, err := New(Options{Store: s, Catalog: catalog})
	require.NoError(t, err)

	tag, _ := catalog.Entity("Tag")
	tag.Graph.Scope = &entity.Scope{Name: "labelled", ArgPath: "filter.label", Default: "go"}
	for _, label := range []string{"go", "sql", "go"} {
		_, err := s.Create(context.Background(), tag, entity.Record{"label": label})
		require.NoError(t, err)
	}

	res, err := e.Fetch(context.Background(), FetchRequest{Entity: tag, Args: map[string]interface{}{}})
	require.NoError(t, err)
	assert.Len(t, res, 2)

	res, err = e.Fetch(context.Background(), FetchRequest{Entity: tag, Args: map[string]interface{}{
		"filter": map[string]interface{}{"label": "sql"},
	}})
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestNestedReadsSkipAuthorization(t *testing.T) {
	calls := 0
	h := newHarness(t, func(o *Options) {
		o.Authorizer = AuthorizerFunc(func(ctx context.Context, req AuthRequest) error {
			calls++
			return nil
		})
	})
	author := h.seed(t, "Author", entity.Record{"name": "ann"})
	post := h.seed(t, "Post", entity.Record{"title": "p", "authorId": author["id"]})
	acc := h.accessor(t, "Post", "author")

	res, err := h.engine.FetchOne(context.Background(), FetchRequest{Entity: acc.Target, Accessor: &acc, Parent: post})
	require.NoError(t, err)
	assert.Equal(t, "ann", res.(entity.Record)["name"])
	assert.Zero(t, calls)

	_, err = h.engine.Fetch(context.Background(), FetchRequest{Entity: h.entity(t, "Post"), Args: map[string]interface{}{}})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestConnectionPagesWithCursors(t *testing.T) {
	h := newHarness(t)
	author := h.seed(t, "Author", entity.Record{"name": "ann"})
	for _, title := range []string{"c", "a", "b"} {
		h.seed(t, "Post", entity.Record{"title": title, "authorId": author["id"]})
	}
	acc := h.accessor(t, "Author", "posts")
	ctx := context.Background()

	first, err := h.engine.Connection(ctx, FetchRequest{Entity: acc.Target, Accessor: &acc, Parent: author, Args: map[string]interface{}{"first": 2, "order": "title"}})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Total())
	assert.Equal(t, []string{"a", "b"}, titles(t, first.Nodes))
	info := first.PageInfo()
	assert.Equal(t, true, info["hasNextPage"])
	assert.Equal(t, false, info["hasPreviousPage"])

	count, err := h.engine.CountRelated(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	end := info["endCursor"].(string)
	typeName, key, offset, err := cursor.DecodeCursor(end)
	require.NoError(t, err)
	assert.Equal(t, "Post", typeName)
	assert.Equal(t, "title", key)
	assert.Equal(t, 1, offset)

	second, err := h.engine.Connection(ctx, FetchRequest{Entity: acc.Target, Accessor: &acc, Parent: author, Args: map[string]interface{}{"first": 2, "order": "title", "after": end}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, titles(t, second.Nodes))
	assert.Equal(t, false, second.PageInfo()["hasNextPage"])
	assert.Equal(t, true, second.PageInfo()["hasPreviousPage"])

	_, err = h.engine.Connection(ctx, FetchRequest{Entity: acc.Target, Accessor: &acc, Parent: author, Args: map[string]interface{}{"order": "views", "after": end}})
	assert.True(t, gqlerr.IsValidationError(err))
}

func TestThroughConnectionEdgesCarryLinkRow(t *testing.T) {
	h := newHarness(t)
	post := h.seed(t, "Post", entity.Record{"title": "p"})
	for i, label := range []string{"go", "sql"} {
		tag := h.seed(t, "Tag", entity.Record{"label": label})
		h.seed(t, "PostTag", entity.Record{"postId": post["id"], "tagId": tag["id"], "role": []string{"main", "aside"}[i]})
	}
	acc := h.accessor(t, "Post", "tags")

	conn, err := h.engine.Connection(context.Background(), FetchRequest{Entity: acc.Target, Accessor: &acc, Parent: post, Args: map[string]interface{}{
		"orderEdges": "reverse:role",
		"whereEdges": map[string]interface{}{"role": map[string]interface{}{"like": "%a%"}},
	}})
	require.NoError(t, err)

	edges := conn.Edges()
	require.Len(t, edges, 2)
	assert.Equal(t, "go", edges[0]["node"].(entity.Record)["label"])
	assert.Equal(t, "main", edges[0]["PostTag"].(entity.Record)["role"])
	assert.NotEmpty(t, edges[0]["cursor"])
}

func TestCountByPkAndDefaults(t *testing.T) {
	h := newHarness(t)
	seedPosts(t, h)
	post := h.entity(t, "Post")
	ctx := context.Background()

	n, err := h.engine.Count(ctx, FetchRequest{Entity: post, Args: map[string]interface{}{
		"where": map[string]interface{}{"views": map[string]interface{}{"gte": 10}},
		"limit": 1,
	}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rec, err := h.engine.ByPk(ctx, FetchRequest{Entity: post, Args: map[string]interface{}{"id": 2}})
	require.NoError(t, err)
	assert.Equal(t, "beta", rec.(entity.Record)["title"])

	rec, err = h.engine.ByPk(ctx, FetchRequest{Entity: post, Args: map[string]interface{}{"id": 4}})
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = h.engine.ByPk(ctx, FetchRequest{Entity: post, Args: map[string]interface{}{}})
	assert.True(t, gqlerr.IsValidationError(err))

	assert.Equal(t, map[string]interface{}{"views": 0}, h.engine.Defaults(post))
}

func TestQuerySpans(t *testing.T) {
	recorder := installSpanRecorder(t)
	h := newHarness(t)

	_, err := h.engine.Fetch(context.Background(), FetchRequest{Entity: h.entity(t, "Post"), Args: map[string]interface{}{"order": "missing"}})
	require.Error(t, err)

	spans := spansNamed(recorder.Ended(), "graphql.query.fetch")
	require.Len(t, spans, 1)
	assert.Equal(t, "error", spanString(spans[0].Attributes(), "graphql.resolver.outcome"))
	assert.Equal(t, "Post", spanString(spans[0].Attributes(), "db.table"))
}
