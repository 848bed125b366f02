package schemagen

import (
	"github.com/graphql-go/graphql"

	"entity-graphql/internal/entity"
	"entity-graphql/internal/resolver"
)

// associationField builds the output field of association a. Values a
// nested write already attached to the parent are served without a read
// when the field is selected without arguments.
func (b *builder) associationField(d *entity.Descriptor, a entity.Association) *graphql.Field {
	target, ok := b.catalog.Entity(a.Target)
	if !ok {
		return nil
	}
	if !a.Kind.IsList() {
		return &graphql.Field{
			Type:        b.outputType(target),
			Description: a.Description,
			Args:        b.associationArgs(a),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				parent, ok := p.Source.(map[string]interface{})
				if !ok {
					return nil, nil
				}
				if v, present := parent[a.Name]; present && len(p.Args) == 0 {
					return v, nil
				}
				acc, err := b.engine.Accessor(d, a)
				if err != nil {
					return nil, err
				}
				return b.engine.FetchOne(p.Context, resolver.FetchRequest{
					Entity:   target,
					Accessor: &acc,
					Parent:   parent,
					Source:   p.Source,
					Args:     p.Args,
					Info:     p.Info,
				})
			},
		}
	}

	return &graphql.Field{
		Type:        graphql.NewNonNull(b.connectionType(d, a)),
		Description: a.Description,
		Args:        b.associationArgs(a),
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			parent, ok := p.Source.(map[string]interface{})
			if !ok {
				return nil, nil
			}
			acc, err := b.engine.Accessor(d, a)
			if err != nil {
				return nil, err
			}
			if rows, ok := parent[a.Name].([]entity.Record); ok && len(p.Args) == 0 {
				return b.engine.ConnectionFromRecords(rows, acc, parent), nil
			}
			conn, err := b.engine.Connection(p.Context, resolver.FetchRequest{
				Entity:   target,
				Accessor: &acc,
				Parent:   parent,
				Source:   p.Source,
				Args:     p.Args,
				Info:     p.Info,
			})
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
	}
}

// associationInput returns the input type of a nested payload for a: the
// target's connection input, or the through entity's for through lists.
func (b *builder) associationInput(a entity.Association) graphql.Input {
	target, ok := b.catalog.Entity(a.Target)
	if !ok {
		return nil
	}
	switch a.Kind {
	case entity.ToMany:
		return graphql.NewList(b.inputType(target, modeCreate, true))
	case entity.ToManyThrough:
		through, ok := b.catalog.Entity(a.Through)
		if !ok {
			return nil
		}
		return graphql.NewList(b.inputType(through, modeCreate, true))
	default:
		return b.inputType(target, modeCreate, true)
	}
}
