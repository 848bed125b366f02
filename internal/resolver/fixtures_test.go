package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"entity-graphql/internal/entity"
	"entity-graphql/internal/pubsub"
	"entity-graphql/internal/store"
	"entity-graphql/internal/store/memstore"
)

func fixedNow() time.Time {
	return time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
}

// blogCatalog declares Author 1-n Post n-m Tag through PostTag, with Post
// owning its author key and Author owning one Profile.
func blogCatalog(t *testing.T) *entity.Catalog {
	t.Helper()
	author := &entity.Descriptor{
		Name: "Author",
		Fields: []entity.Field{
			{Name: "id", Type: "int", PrimaryKey: true, AutoIncrement: true},
			{Name: "name", Type: "string", Required: true},
		},
		Associations: []entity.Association{
			{Name: "posts", Kind: entity.ToMany, Target: "Post", ForeignKey: "authorId"},
			{Name: "profile", Kind: entity.ToOne, Target: "Profile", ForeignKey: "authorId"},
		},
	}
	profile := &entity.Descriptor{
		Name: "Profile",
		Fields: []entity.Field{
			{Name: "id", Type: "int", PrimaryKey: true, AutoIncrement: true},
			{Name: "bio", Type: "string"},
			{Name: "authorId", Type: "int"},
		},
	}
	post := &entity.Descriptor{
		Name:     "Post",
		Paranoid: true,
		Fields: []entity.Field{
			{Name: "id", Type: "int", PrimaryKey: true, AutoIncrement: true},
			{Name: "title", Type: "string"},
			{Name: "views", Type: "int", Default: 0},
			{Name: "batch", Type: "string"},
			{Name: "authorId", Type: "int", References: "Author"},
			{Name: "createdAt", Type: "date"},
			{Name: "updatedAt", Type: "date"},
			{Name: "deletedAt", Type: "date"},
		},
		Associations: []entity.Association{
			{Name: "author", Kind: entity.ToOneOwning, Target: "Author", ForeignKey: "authorId"},
			{Name: "tags", Kind: entity.ToManyThrough, Target: "Tag", Through: "PostTag", ForeignKey: "postId", OtherKey: "tagId"},
		},
		Graph: entity.GraphOptions{
			Bulk: entity.Bulk{
				Create: entity.BulkFlag{Enabled: true, Tag: "batch"},
				Update: entity.BulkFlag{Enabled: true},
			},
		},
	}
	tag := &entity.Descriptor{
		Name: "Tag",
		Fields: []entity.Field{
			{Name: "id", Type: "int", PrimaryKey: true, AutoIncrement: true},
			{Name: "label", Type: "string"},
		},
	}
	postTag := &entity.Descriptor{
		Name: "PostTag",
		Fields: []entity.Field{
			{Name: "id", Type: "int", PrimaryKey: true, AutoIncrement: true},
			{Name: "postId", Type: "int"},
			{Name: "tagId", Type: "int"},
			{Name: "role", Type: "string"},
		},
	}
	c := entity.NewCatalog(author, profile, post, tag, postTag)
	require.NoError(t, c.Normalize(nil))
	return c
}

type harness struct {
	engine  *Engine
	store   *memstore.Store
	catalog *entity.Catalog
	bus     *pubsub.Bus
}

func newHarness(t *testing.T, opts ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		store:   memstore.New(memstore.WithClock(fixedNow)),
		catalog: blogCatalog(t),
		bus:     pubsub.New(),
	}
	o := Options{Store: h.store, Bus: h.bus, Catalog: h.catalog, TransactionsEnabled: true, Now: fixedNow}
	for _, fn := range opts {
		fn(&o)
	}
	e, err := New(o)
	require.NoError(t, err)
	h.engine = e
	return h
}

func (h *harness) entity(t *testing.T, name string) *entity.Descriptor {
	t.Helper()
	d, ok := h.catalog.Entity(name)
	require.True(t, ok, "entity %s", name)
	return d
}

func (h *harness) accessor(t *testing.T, source, assoc string) store.Accessor {
	t.Helper()
	d := h.entity(t, source)
	a, ok := d.Association(assoc)
	require.True(t, ok, "association %s.%s", source, assoc)
	acc, err := h.engine.Accessor(d, a)
	require.NoError(t, err)
	return acc
}

func (h *harness) seed(t *testing.T, name string, values entity.Record) entity.Record {
	t.Helper()
	rec, err := h.store.Create(context.Background(), h.entity(t, name), values)
	require.NoError(t, err)
	return rec
}

func (h *harness) live(name string) []entity.Record {
	var out []entity.Record
	for _, row := range h.store.Rows(name) {
		if row[entity.DeletedAtField] == nil {
			out = append(out, row)
		}
	}
	return out
}

func installSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	tp.RegisterSpanProcessor(recorder)

	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(previous)
	})
	return recorder
}

func spansNamed(spans []sdktrace.ReadOnlySpan, name string) []sdktrace.ReadOnlySpan {
	var out []sdktrace.ReadOnlySpan
	for _, span := range spans {
		if span.Name() == name {
			out = append(out, span)
		}
	}
	return out
}

func spanString(attrs []attribute.KeyValue, key string) string {
	for _, attr := range attrs {
		if string(attr.Key) == key {
			return attr.Value.AsString()
		}
	}
	return ""
}
