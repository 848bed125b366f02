package resolver

import (
	"context"
	"fmt"

	"github.com/graphql-go/graphql"

	"entity-graphql/internal/entity"
)

// CustomRequest invokes a caller-declared query or mutation resolver.
type CustomRequest struct {
	Entity    *entity.Descriptor
	Name      string
	Operation entity.CustomOperation
	Source    interface{}
	Args      map[string]interface{}
	Info      graphql.ResolveInfo
}

// Custom authorizes and runs a custom operation. The authorizer sees the
// operation's field name as the operation.
func (e *Engine) Custom(ctx context.Context, req CustomRequest) (result interface{}, err error) {
	d := req.Entity
	op := entity.Operation(req.Name)
	ctx, span := startResolverSpan(ctx, "graphql.custom."+req.Name, entityAttrs(d, op)...)
	defer func() {
		err = e.classify(err)
		finishResolverSpan(span, err)
	}()

	if req.Operation.Resolve == nil {
		return nil, fmt.Errorf("custom operation %s has no resolver", req.Name)
	}
	if err := e.authorize(ctx, AuthRequest{Entity: d.Name, Operation: op, Source: req.Source, Args: req.Args, Info: req.Info}); err != nil {
		return nil, err
	}
	return req.Operation.Resolve(ctx, &entity.HookInput{
		Entity:    d,
		Operation: op,
		Source:    req.Source,
		Args:      req.Args,
		Info:      req.Info,
	})
}

// SubscribeCustom resolves a custom subscription's event names and
// subscribes with its filter.
func (e *Engine) SubscribeCustom(ctx context.Context, req CustomRequest) (chan interface{}, error) {
	if req.Operation.Subscribe == nil {
		return nil, fmt.Errorf("custom subscription %s has no event source", req.Name)
	}
	names, err := req.Operation.Subscribe(ctx, req.Args)
	if err != nil {
		return nil, e.classify(err)
	}
	return e.Subscribe(ctx, SubscribeRequest{
		Entity: req.Entity,
		Names:  names,
		Filter: req.Operation.Filter,
		Extend: req.Operation.Resolve,
		Source: req.Source,
		Args:   req.Args,
		Info:   req.Info,
	})
}
