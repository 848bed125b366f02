package resolver

import (
	"context"
	"log/slog"

	"github.com/graphql-go/graphql"

	"entity-graphql/internal/entity"
	"entity-graphql/internal/pubsub"
)

// SubscribeRequest describes one subscription. Names are the mutation names
// to listen on. A non-empty Kinds list narrows delivery to those kinds.
type SubscribeRequest struct {
	Entity *entity.Descriptor
	Names  []string
	Kinds  []pubsub.Kind
	Filter entity.EventFilter
	// Extend, when set, replaces the entity's extend.subscription hook.
	Extend entity.Hook
	Source interface{}
	Args   map[string]interface{}
	Info   graphql.ResolveInfo
}

// Subscribe registers on the bus and returns the channel graphql-go reads
// payloads from. The channel is closed once ctx is done or the bus closes.
func (e *Engine) Subscribe(ctx context.Context, req SubscribeRequest) (chan interface{}, error) {
	d := req.Entity
	if err := e.authorize(ctx, AuthRequest{Entity: d.Name, Operation: entity.OpSubscription, Source: req.Source, Args: req.Args, Info: req.Info}); err != nil {
		return nil, err
	}

	filter := req.Filter
	if filter == nil {
		filter = d.Graph.SubsFilter["default"]
	}
	kinds := make(map[pubsub.Kind]bool, len(req.Kinds))
	for _, k := range req.Kinds {
		kinds[k] = true
	}
	sub := e.bus.Subscribe(req.Names, func(ev pubsub.ChangeEvent) bool {
		if len(kinds) > 0 && !kinds[ev.Kind] {
			return false
		}
		return filter == nil || filter(ctx, ev, req.Args)
	})

	extend := req.Extend
	if extend == nil {
		extend, _ = d.Graph.Extend.Lookup(entity.OpSubscription)
	}

	out := make(chan interface{})
	e.metrics.SubscriptionStarted(ctx, d.Name)
	e.loggerFor(ctx).Debug("subscription started", slog.String("entity", d.Name), slog.Any("events", req.Names))
	go func() {
		defer close(out)
		defer e.metrics.SubscriptionEnded(context.WithoutCancel(ctx), d.Name)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.C():
				if !ok {
					return
				}
				payload, err := e.subscriptionPayload(ctx, req, extend, ev)
				if err != nil {
					e.loggerFor(ctx).Warn("subscription payload failed",
						slog.String("entity", d.Name),
						slog.String("event", ev.Name),
						slog.String("error", err.Error()))
					continue
				}
				select {
				case out <- payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// EventPayload is the default subscription payload for ev.
func EventPayload(ev pubsub.ChangeEvent) map[string]interface{} {
	return map[string]interface{}{
		"mutation":       string(ev.Kind),
		"node":           ev.Node,
		"nodes":          ev.Nodes,
		"updatedFields":  ev.UpdatedFields,
		"previousValues": ev.PreviousValues,
		"correlationId":  ev.CorrelationID,
	}
}

func (e *Engine) subscriptionPayload(ctx context.Context, req SubscribeRequest, extend entity.Hook, ev pubsub.ChangeEvent) (interface{}, error) {
	payload := EventPayload(ev)
	if extend == nil {
		return payload, nil
	}
	return extend(ctx, &entity.HookInput{
		Entity:    req.Entity,
		Operation: entity.OpSubscription,
		Source:    req.Source,
		Args:      req.Args,
		Info:      req.Info,
		Payload:   ev.Node,
		Previous:  ev.PreviousValues,
		Result:    payload,
	})
}
