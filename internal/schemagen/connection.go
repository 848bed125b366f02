package schemagen

import (
	"github.com/graphql-go/graphql"

	"entity-graphql/internal/entity"
	"entity-graphql/internal/naming"
	"entity-graphql/internal/registry"
	"entity-graphql/internal/resolver"
)

// connectionType returns {Owner}{Field}Connection for a list association.
func (b *builder) connectionType(d *entity.Descriptor, a entity.Association) graphql.Type {
	name := naming.ConnectionTypeName(b.typeName(d), a.Name)
	return b.reg.Resolve(registry.Identity{Name: name, Variant: registry.Connection}, func() graphql.Type {
		return graphql.NewObject(graphql.ObjectConfig{
			Name: name,
			Fields: graphql.FieldsThunk(func() graphql.Fields {
				return graphql.Fields{
					"edges": &graphql.Field{
						Type: graphql.NewList(b.edgeType(d, a)),
						Resolve: withConnection(func(p graphql.ResolveParams, c *resolver.Connection) (interface{}, error) {
							return c.Edges(), nil
						}),
					},
					"total": &graphql.Field{
						Type:        graphql.Int,
						Description: "Number of edges on this page.",
						Resolve: withConnection(func(p graphql.ResolveParams, c *resolver.Connection) (interface{}, error) {
							return c.Total(), nil
						}),
					},
					"count": &graphql.Field{
						Type:        graphql.Int,
						Description: "Number of matching rows, ignoring pagination.",
						Resolve: withConnection(func(p graphql.ResolveParams, c *resolver.Connection) (interface{}, error) {
							return b.engine.CountRelated(p.Context, c)
						}),
					},
					"pageInfo": &graphql.Field{
						Type: graphql.NewNonNull(b.pageInfoType()),
						Resolve: withConnection(func(p graphql.ResolveParams, c *resolver.Connection) (interface{}, error) {
							return c.PageInfo(), nil
						}),
					},
					naming.MetaFieldName: &graphql.Field{Type: graphql.String},
				}
			}),
		})
	})
}

// edgeType carries node and cursor. Through edges also expose the through
// row under the through entity's name.
func (b *builder) edgeType(d *entity.Descriptor, a entity.Association) graphql.Type {
	name := naming.EdgeTypeName(b.typeName(d), a.Name)
	return b.reg.Resolve(registry.Identity{Name: name, Variant: registry.Edge}, func() graphql.Type {
		return graphql.NewObject(graphql.ObjectConfig{
			Name: name,
			Fields: graphql.FieldsThunk(func() graphql.Fields {
				fields := graphql.Fields{
					"cursor":             &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
					naming.MetaFieldName: &graphql.Field{Type: graphql.String},
				}
				if target, ok := b.catalog.Entity(a.Target); ok {
					fields["node"] = &graphql.Field{Type: b.outputType(target)}
				}
				if a.Kind == entity.ToManyThrough {
					if through, ok := b.catalog.Entity(a.Through); ok {
						fields[through.Name] = &graphql.Field{Type: b.outputType(through)}
					}
				}
				return fields
			}),
		})
	})
}

func (b *builder) pageInfoType() graphql.Type {
	return b.reg.Resolve(registry.Identity{Name: "PageInfo", Variant: registry.PageInfo}, func() graphql.Type {
		return graphql.NewObject(graphql.ObjectConfig{
			Name: "PageInfo",
			Fields: graphql.Fields{
				"hasNextPage":     &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
				"hasPreviousPage": &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
				"startCursor":     &graphql.Field{Type: graphql.String},
				"endCursor":       &graphql.Field{Type: graphql.String},
			},
		})
	})
}

func withConnection(fn func(graphql.ResolveParams, *resolver.Connection) (interface{}, error)) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		c, ok := p.Source.(*resolver.Connection)
		if !ok || c == nil {
			return nil, nil
		}
		return fn(p, c)
	}
}
