package schemagen

import (
	"sort"

	"github.com/graphql-go/graphql"

	"entity-graphql/internal/entity"
	"entity-graphql/internal/fieldtype"
	"entity-graphql/internal/naming"
	"entity-graphql/internal/registry"
	"entity-graphql/internal/schemafilter"
)

type inputMode int

const (
	modeCreate inputMode = iota
	modeUpdate
)

func (m inputMode) operation() entity.Operation {
	if m == modeUpdate {
		return entity.OpUpdate
	}
	return entity.OpCreate
}

// outputType returns the object type of d. Fields are assembled in a thunk:
// scalars, associations, virtual include fields, then the meta marker.
func (b *builder) outputType(d *entity.Descriptor) graphql.Type {
	name := b.typeName(d)
	return b.reg.Resolve(registry.Identity{Name: name, Variant: registry.Output}, func() graphql.Type {
		return graphql.NewObject(graphql.ObjectConfig{
			Name:        name,
			Description: d.Description,
			Fields: graphql.FieldsThunk(func() graphql.Fields {
				return b.outputFields(d)
			}),
		})
	})
}

func (b *builder) outputFields(d *entity.Descriptor) graphql.Fields {
	fields := graphql.Fields{}
	for _, f := range d.Fields {
		if !d.Graph.Attributes.Allowed(entity.OpFetch, f.Name) {
			continue
		}
		ref := b.scalarRef(d, f)
		if f.PrimaryKey {
			ref = ref.Required()
		}
		field := &graphql.Field{
			Type:        ref.Wrap(b.refBase(ref, false)),
			Description: f.Description,
		}
		name := b.namer.FieldName(f.Name)
		if name != f.Name {
			field.Resolve = sourceKey(f.Name)
		}
		fields[name] = field
	}
	for _, a := range d.Associations {
		if field := b.associationField(d, a); field != nil {
			fields[a.Name] = field
		}
	}
	for _, name := range sortedKeys(d.Graph.Attributes.Include) {
		if _, taken := fields[name]; taken {
			continue
		}
		fields[name] = &graphql.Field{
			Type: b.tokenType(d.Graph.Attributes.Include[name], false, d.Name+"."+name),
		}
	}
	fields[naming.MetaFieldName] = &graphql.Field{Type: graphql.String}
	return fields
}

// inputType returns the Add or Edit input of d. Connection inputs carry
// nested association payloads and never require a field.
func (b *builder) inputType(d *entity.Descriptor, mode inputMode, connection bool) graphql.Type {
	name := naming.InputTypeName(b.typeName(d), mode == modeUpdate, connection)
	variant := registry.Create
	switch {
	case connection:
		variant = registry.CreateConnection
	case mode == modeUpdate:
		variant = registry.Update
	}
	return b.reg.Resolve(registry.Identity{Name: name, Variant: variant}, func() graphql.Type {
		return graphql.NewInputObject(graphql.InputObjectConfig{
			Name:        name,
			Description: d.Description,
			Fields: graphql.InputObjectConfigFieldMapThunk(func() graphql.InputObjectConfigFieldMap {
				return b.inputFields(d, name, mode, connection)
			}),
		})
	})
}

func (b *builder) inputFields(d *entity.Descriptor, typeName string, mode inputMode, connection bool) graphql.InputObjectConfigFieldMap {
	fields := graphql.InputObjectConfigFieldMap{}
	op := mode.operation()
	for _, f := range d.Fields {
		if d.IsTimestamp(f.Name) {
			continue
		}
		if !f.PrimaryKey {
			if !d.Graph.Attributes.Allowed(op, f.Name) || !schemafilter.MutationFieldAllowed(d.Name, f.Name, b.cfg.Filters) {
				continue
			}
		}
		ref := b.scalarRef(d, f)
		required := (f.Required || ref.IsRequired) && mode == modeCreate && !connection && !f.HasDefault() && !f.AutoIncrement
		if f.References != "" || f.AutoIncrement {
			ref = fieldtype.Ref{Kind: fieldtype.KindInt}
		}
		ref.IsRequired = required
		fields[f.Name] = &graphql.InputObjectFieldConfig{
			Type:        ref.Wrap(b.refBase(ref, true)),
			Description: f.Description,
		}
	}

	for _, a := range d.Associations {
		if _, taken := fields[a.Name]; taken {
			continue
		}
		t := b.associationInput(a)
		if t == nil {
			continue
		}
		fields[a.Name] = &graphql.InputObjectFieldConfig{Type: t, Description: a.Description}
		b.reg.SetInputArgs(typeName, a.Name, b.associationArgs(a))
	}

	// A through payload nests its target instance under the target field.
	if connection {
		for _, target := range b.throughTargets[d.Name] {
			key := b.catalog.ThroughTargetField(d, target)
			if _, taken := fields[key]; taken {
				continue
			}
			fields[key] = &graphql.InputObjectFieldConfig{Type: b.inputType(target, modeCreate, true)}
		}
	}
	fields[naming.MetaFieldName] = &graphql.InputObjectFieldConfig{Type: graphql.String}
	return fields
}

// scalarRef parses the declared token of f. Diagnostics for unresolved
// names are reported once per name.
func (b *builder) scalarRef(d *entity.Descriptor, f entity.Field) fieldtype.Ref {
	ref := fieldtype.Parse(f.Type, b.catalog.Knows)
	b.checkFallback(ref, d.Name+"."+f.Name)
	if f.Required && !ref.IsList {
		ref.IsRequired = true
	}
	return ref
}

func (b *builder) refBase(ref fieldtype.Ref, input bool) graphql.Type {
	if ref.Kind == fieldtype.KindNamed {
		return b.namedType(ref.Name, input)
	}
	return ref.Kind.Scalar()
}

// sourceKey resolves a field renamed away from its record key.
func sourceKey(key string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		if m, ok := p.Source.(map[string]interface{}); ok {
			return m[key], nil
		}
		return nil, nil
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
