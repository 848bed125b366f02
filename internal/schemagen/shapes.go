package schemagen

import (
	"fmt"
	"log/slog"

	"github.com/graphql-go/graphql"

	"entity-graphql/internal/entity"
	"entity-graphql/internal/fieldtype"
	"entity-graphql/internal/registry"
)

// compileShapes registers every declared enum and object shape. Object
// fields are thunked, so shapes may reference each other and entities.
func (b *builder) compileShapes() {
	for _, t := range b.catalog.Types {
		b.shape(t)
	}
}

func (b *builder) shape(t entity.CustomType) graphql.Type {
	switch t.Kind {
	case entity.ShapeEnum:
		return b.reg.Resolve(registry.Identity{Name: t.Name, Variant: registry.Enum}, func() graphql.Type {
			values := graphql.EnumValueConfigMap{}
			for _, v := range t.Values {
				values[v.Key] = &graphql.EnumValueConfig{Value: v.Value}
			}
			return graphql.NewEnum(graphql.EnumConfig{
				Name:        t.Name,
				Description: t.Description,
				Values:      values,
			})
		})
	default:
		if t.IsInput() {
			return b.reg.Resolve(registry.Identity{Name: t.Name, Variant: registry.Shape}, func() graphql.Type {
				return graphql.NewInputObject(graphql.InputObjectConfig{
					Name:        t.Name,
					Description: t.Description,
					Fields: graphql.InputObjectConfigFieldMapThunk(func() graphql.InputObjectConfigFieldMap {
						fields := graphql.InputObjectConfigFieldMap{}
						for _, f := range t.Fields {
							fields[f.Name] = &graphql.InputObjectFieldConfig{
								Type:        b.tokenType(f.Type, true, t.Name+"."+f.Name),
								Description: f.Description,
							}
						}
						return fields
					}),
				})
			})
		}
		return b.reg.Resolve(registry.Identity{Name: t.Name, Variant: registry.Shape}, func() graphql.Type {
			return graphql.NewObject(graphql.ObjectConfig{
				Name:        t.Name,
				Description: t.Description,
				Fields: graphql.FieldsThunk(func() graphql.Fields {
					fields := graphql.Fields{}
					for _, f := range t.Fields {
						fields[f.Name] = &graphql.Field{
							Type:        b.tokenType(f.Type, false, t.Name+"."+f.Name),
							Description: f.Description,
						}
					}
					return fields
				}),
			})
		})
	}
}

// tokenType maps a type token to a GraphQL type. Named tokens resolve to
// custom scalars, shapes or entity types; input selects the entity's Add
// input over its output type. site names the declaration for diagnostics.
func (b *builder) tokenType(token string, input bool, site string) graphql.Type {
	ref := fieldtype.Parse(token, b.catalog.Knows)
	b.checkFallback(ref, site)
	return ref.Wrap(b.refBase(ref, input))
}

func (b *builder) checkFallback(ref fieldtype.Ref, site string) {
	switch ref.Fallback {
	case fieldtype.FallbackUnresolvedCustom:
		if b.cfg.StrictTypes {
			b.fail(fmt.Errorf("%s: unknown type %q", site, ref.Name))
			return
		}
		b.warnOnce("type:"+ref.Name, "unknown custom type, using String",
			slog.String("type", ref.Name), slog.String("site", site))
	case fieldtype.FallbackUnknownScalar:
		b.warnOnce("scalar:"+ref.Name, "unknown scalar type, using String",
			slog.String("type", ref.Name), slog.String("site", site))
	}
}

func (b *builder) namedType(name string, input bool) graphql.Type {
	if s, ok := b.catalog.Scalars[name]; ok {
		return b.reg.Resolve(registry.Identity{Name: s.Name(), Variant: registry.Shape}, func() graphql.Type {
			return s
		})
	}
	if t, ok := b.catalog.Type(name); ok {
		return b.shape(t)
	}
	if d, ok := b.catalog.Entity(name); ok {
		if input {
			return b.inputType(d, modeCreate, false)
		}
		return b.outputType(d)
	}
	return graphql.String
}
