package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entity-graphql/internal/entity"
	"entity-graphql/internal/pubsub"
)

type subscriptionCounter struct {
	noopMetrics
	started, ended chan string
}

func (c *subscriptionCounter) SubscriptionStarted(_ context.Context, name string) { c.started <- name }
func (c *subscriptionCounter) SubscriptionEnded(_ context.Context, name string)   { c.ended <- name }

func next(t *testing.T, ch chan interface{}) map[string]interface{} {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		payload, _ := v.(map[string]interface{})
		return payload
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a payload")
		return nil
	}
}

func TestSubscribeDeliversMatchingEvents(t *testing.T) {
	h := newHarness(t)
	tag := h.entity(t, "Tag")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := h.engine.Subscribe(ctx, SubscribeRequest{
		Entity: tag,
		Names:  []string{"tagAdd", "tagDelete"},
		Kinds:  []pubsub.Kind{pubsub.Deleted},
	})
	require.NoError(t, err)

	_, err = h.engine.Execute(ctx, Request{Entity: tag, Op: entity.OpCreate, Payload: entity.Record{"label": "go"}, MutationName: "tagAdd"})
	require.NoError(t, err)
	_, err = h.engine.Execute(ctx, Request{Entity: tag, Op: entity.OpDestroy, Where: map[string]interface{}{"label": "go"}, MutationName: "tagDelete"})
	require.NoError(t, err)

	payload := next(t, ch)
	assert.Equal(t, "DELETED", payload["mutation"])
	assert.Equal(t, "go", payload["node"].(map[string]interface{})["label"])
	assert.Equal(t, "go", payload["previousValues"].(map[string]interface{})["label"])
}

func TestSubscribeAppliesDefaultFilterAndExtend(t *testing.T) {
	h := newHarness(t)
	tag := h.entity(t, "Tag")
	tag.Graph.SubsFilter = map[string]entity.EventFilter{
		"default": func(ctx context.Context, ev pubsub.ChangeEvent, args map[string]interface{}) bool {
			return ev.Node["label"] == args["label"]
		},
	}
	tag.Graph.Extend = entity.Hooks{entity.OpSubscription: func(ctx context.Context, in *entity.HookInput) (interface{}, error) {
		payload := in.Result.(map[string]interface{})
		payload["extended"] = true
		return payload, nil
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := h.engine.Subscribe(ctx, SubscribeRequest{Entity: tag, Names: []string{"tagAdd"}, Args: map[string]interface{}{"label": "sql"}})
	require.NoError(t, err)

	for _, label := range []string{"go", "sql"} {
		_, err := h.engine.Execute(ctx, Request{Entity: tag, Op: entity.OpCreate, Payload: entity.Record{"label": label}, MutationName: "tagAdd"})
		require.NoError(t, err)
	}

	payload := next(t, ch)
	assert.Equal(t, "sql", payload["node"].(map[string]interface{})["label"])
	assert.Equal(t, true, payload["extended"])
	assert.Equal(t, "CREATED", payload["mutation"])
}

func TestSubscribeClosesWhenContextEnds(t *testing.T) {
	counter := &subscriptionCounter{started: make(chan string, 1), ended: make(chan string, 1)}
	h := newHarness(t, func(o *Options) { o.Metrics = counter })
	tag := h.entity(t, "Tag")
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := h.engine.Subscribe(ctx, SubscribeRequest{Entity: tag, Names: []string{"tagAdd"}})
	require.NoError(t, err)
	assert.Equal(t, "Tag", <-counter.started)
	assert.Equal(t, 1, h.bus.SubscriberCount("tagAdd"))

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}
	assert.Equal(t, "Tag", <-counter.ended)
	assert.Zero(t, h.bus.SubscriberCount("tagAdd"))
}

func TestSubscribeIsAuthorized(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Authorizer = AuthorizerFunc(func(ctx context.Context, req AuthRequest) error {
			assert.Equal(t, entity.OpSubscription, req.Operation)
			return assert.AnError
		})
	})

	_, err := h.engine.Subscribe(context.Background(), SubscribeRequest{Entity: h.entity(t, "Tag"), Names: []string{"tagAdd"}})
	require.Error(t, err)
	assert.Zero(t, h.bus.SubscriberCount("tagAdd"))
}
