package schemagen

import (
	"github.com/graphql-go/graphql"

	"entity-graphql/internal/entity"
	"entity-graphql/internal/fieldtype"
	"entity-graphql/internal/naming"
	"entity-graphql/internal/pubsub"
	"entity-graphql/internal/registry"
	"entity-graphql/internal/resolver"
	"entity-graphql/internal/scalars"
	"entity-graphql/internal/schemafilter"
)

// rootName returns the final root field name for op on d, or false when
// the deny list removes it.
func (b *builder) rootName(root string, d *entity.Descriptor, op entity.Operation, suffix string) (string, bool) {
	name := naming.RootFieldName(b.typeName(d), suffix, d.Graph.Alias[op])
	return b.registerRoot(root, d, name)
}

func (b *builder) registerRoot(root string, d *entity.Descriptor, name string) (string, bool) {
	if !schemafilter.RootFieldAllowed(name, b.cfg.Filters) {
		return "", false
	}
	name = b.namer.RegisterRootField(root, name, d.Name)
	b.counts[root]++
	return name, true
}

func (b *builder) queryFields() graphql.Fields {
	fields := graphql.Fields{}
	for _, d := range b.catalog.Entities {
		excluded := d.Graph.ExcludeQueries
		out := b.outputType(d)

		if !entity.Excluded(excluded, entity.OpFetch) {
			if name, ok := b.rootName(naming.RootQuery, d, entity.OpFetch, "Get"); ok {
				fields[name] = &graphql.Field{
					Type:        graphql.NewList(out),
					Description: "List " + d.Name + " records.",
					Args:        b.rootQueryArgs(d, listArgs()),
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						return b.engine.Fetch(p.Context, resolver.FetchRequest{Entity: d, Source: p.Source, Args: p.Args, Info: p.Info})
					},
				}
			}
		}
		if !entity.Excluded(excluded, entity.OpCount) {
			if name, ok := b.rootName(naming.RootQuery, d, entity.OpCount, "Count"); ok {
				fields[name] = &graphql.Field{
					Type:        graphql.Int,
					Description: "Count " + d.Name + " records, ignoring pagination.",
					Args:        b.rootQueryArgs(d, graphql.FieldConfigArgument{"where": whereArg()}),
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						return b.engine.Count(p.Context, resolver.FetchRequest{Entity: d, Source: p.Source, Args: p.Args, Info: p.Info})
					},
				}
			}
		}
		if !entity.Excluded(excluded, entity.OpByPk) && len(d.PrimaryKeys()) > 0 {
			if name, ok := b.rootName(naming.RootQuery, d, entity.OpByPk, "ByPk"); ok {
				fields[name] = &graphql.Field{
					Type:        out,
					Description: "Fetch one " + d.Name + " by primary key.",
					Args:        b.rootQueryArgs(d, b.pkArgs(d, true)),
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						return b.engine.ByPk(p.Context, resolver.FetchRequest{Entity: d, Source: p.Source, Args: p.Args, Info: p.Info})
					},
				}
			}
		}
		if !entity.Excluded(excluded, entity.OpDefault) {
			if name, ok := b.rootName(naming.RootQuery, d, entity.OpDefault, "Default"); ok {
				fields[name] = &graphql.Field{
					Type:        scalars.JSON(),
					Description: "Declared field defaults of " + d.Name + ".",
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						return b.engine.Defaults(d), nil
					},
				}
			}
		}
		for _, opName := range sortedKeys(d.Graph.Queries) {
			if name, field, ok := b.customField(naming.RootQuery, d, opName, d.Graph.Queries[opName]); ok {
				field.Args = b.rootQueryArgs(d, mergeArgs(field.Args, listArgs()))
				fields[name] = field
			}
		}
	}
	return fields
}

func (b *builder) mutationFields() graphql.Fields {
	fields := graphql.Fields{}
	for _, d := range b.catalog.Entities {
		if !schemafilter.MutationEntityAllowed(d.Name, b.cfg.Filters) {
			continue
		}
		excluded := d.Graph.ExcludeMutations
		out := b.outputType(d)
		payloadArg := naming.LowerFirst(b.typeName(d))
		create := b.inputType(d, modeCreate, false)
		update := b.inputType(d, modeUpdate, false)

		add := func(op entity.Operation, suffix string, field *graphql.Field, build func(p graphql.ResolveParams) resolver.Request) {
			if entity.Excluded(excluded, op) {
				return
			}
			name, ok := b.rootName(naming.RootMutation, d, op, suffix)
			if !ok {
				return
			}
			b.recordMutation(d, op, name)
			field.Args = b.includeArgs(mutationArgs(field.Args))
			field.Resolve = func(p graphql.ResolveParams) (interface{}, error) {
				req := build(p)
				req.Entity = d
				req.Op = op
				req.MutationName = name
				req.Transaction, _ = p.Args["transaction"].(bool)
				req.Replace, _ = p.Args["set"].(bool)
				req.Source = p.Source
				req.Args = p.Args
				req.Info = p.Info
				return b.engine.Execute(p.Context, req)
			}
			fields[name] = field
		}

		add(entity.OpCreate, "Add", &graphql.Field{
			Type:        out,
			Description: "Create a " + d.Name + ".",
			Args:        graphql.FieldConfigArgument{payloadArg: {Type: create}},
		}, func(p graphql.ResolveParams) resolver.Request {
			return resolver.Request{Payload: record(p.Args[payloadArg])}
		})

		editArgs := b.pkArgs(d, false)
		editArgs["where"] = whereArg()
		editArgs[payloadArg] = &graphql.ArgumentConfig{Type: update}
		add(entity.OpUpdate, "Edit", &graphql.Field{
			Type:        out,
			Description: "Update a " + d.Name + ".",
			Args:        editArgs,
		}, func(p graphql.ResolveParams) resolver.Request {
			return resolver.Request{
				Payload: record(p.Args[payloadArg]),
				Where:   resolver.WhereFromArgs(d, p.Args, p.Info.VariableValues),
			}
		})

		deleteArgs := b.pkArgs(d, false)
		deleteArgs["where"] = whereArg()
		add(entity.OpDestroy, "Delete", &graphql.Field{
			Type:        graphql.Int,
			Description: "Delete " + d.Name + " records and return the affected count.",
			Args:        deleteArgs,
		}, func(p graphql.ResolveParams) resolver.Request {
			return resolver.Request{Where: resolver.WhereFromArgs(d, p.Args, p.Info.VariableValues)}
		})

		add(entity.OpUpsert, "Upsert", &graphql.Field{
			Type:        out,
			Description: "Update the " + d.Name + " named by its primary key, or create it.",
			Args:        graphql.FieldConfigArgument{payloadArg: {Type: create}},
		}, func(p graphql.ResolveParams) resolver.Request {
			return resolver.Request{Payload: record(p.Args[payloadArg])}
		})

		if bulk := d.Graph.Bulk.Create; bulk.Enabled {
			var t graphql.Output = graphql.Int
			if bulk.Tag != "" {
				t = graphql.NewList(out)
			}
			add(entity.OpBulkCreate, "AddBulk", &graphql.Field{
				Type:        t,
				Description: "Create " + d.Name + " records in one batch.",
				Args:        graphql.FieldConfigArgument{payloadArg: {Type: graphql.NewList(create)}},
			}, func(p graphql.ResolveParams) resolver.Request {
				return resolver.Request{Items: records(p.Args[payloadArg])}
			})
		}
		if d.Graph.Bulk.Update.Enabled {
			add(entity.OpBulkUpdate, "EditBulk", &graphql.Field{
				Type:        graphql.NewList(out),
				Description: "Update " + d.Name + " records by primary key.",
				Args:        graphql.FieldConfigArgument{payloadArg: {Type: graphql.NewList(update)}},
			}, func(p graphql.ResolveParams) resolver.Request {
				return resolver.Request{Items: records(p.Args[payloadArg])}
			})
		}

		for _, opName := range sortedKeys(d.Graph.Mutations) {
			if name, field, ok := b.customField(naming.RootMutation, d, opName, d.Graph.Mutations[opName]); ok {
				field.Args = b.includeArgs(mutationArgs(field.Args))
				fields[name] = field
			}
		}
	}
	return fields
}

func (b *builder) recordMutation(d *entity.Descriptor, op entity.Operation, name string) {
	if b.mutationNames[d.Name] == nil {
		b.mutationNames[d.Name] = make(map[entity.Operation]string)
	}
	b.mutationNames[d.Name][op] = name
}

// subscribedOperations are the writes whose events an entity subscription
// listens on.
var subscribedOperations = []entity.Operation{
	entity.OpCreate,
	entity.OpUpdate,
	entity.OpDestroy,
	entity.OpUpsert,
	entity.OpBulkCreate,
	entity.OpBulkUpdate,
}

// eventNames lists the generated mutation names of d that are not
// excluded from subscriptions.
func (b *builder) eventNames(d *entity.Descriptor) []string {
	var names []string
	for _, op := range subscribedOperations {
		if entity.Excluded(d.Graph.ExcludeSubscriptions, op) {
			continue
		}
		if name, ok := b.mutationNames[d.Name][op]; ok {
			names = append(names, name)
		}
	}
	return names
}

func (b *builder) subscriptionFields() graphql.Fields {
	fields := graphql.Fields{}
	for _, d := range b.catalog.Entities {
		names := b.eventNames(d)
		if len(names) > 0 && !entity.Excluded(d.Graph.ExcludeSubscriptions, entity.OpSubscription) {
			if name, ok := b.rootName(naming.RootSubscription, d, entity.OpSubscription, "Subs"); ok {
				fields[name] = &graphql.Field{
					Type:        b.subscriptionOutput(d),
					Description: "On creation, update or deletion of " + d.Name + ".",
					Args: graphql.FieldConfigArgument{
						"mutation": {Type: graphql.NewList(graphql.NewNonNull(b.mutationTypes()))},
						"filter":   {Type: scalars.JSON()},
					},
					Subscribe: func(p graphql.ResolveParams) (interface{}, error) {
						ch, err := b.engine.Subscribe(p.Context, resolver.SubscribeRequest{
							Entity: d,
							Names:  names,
							Kinds:  kindsArg(p.Args["mutation"]),
							Source: p.Source,
							Args:   p.Args,
							Info:   p.Info,
						})
						if err != nil {
							return nil, err
						}
						return ch, nil
					},
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						return p.Source, nil
					},
				}
			}
		}
		for _, opName := range sortedKeys(d.Graph.Subscriptions) {
			op := d.Graph.Subscriptions[opName]
			name, field, ok := b.customField(naming.RootSubscription, d, opName, op)
			if !ok {
				continue
			}
			field.Args = b.includeArgs(field.Args)
			field.Subscribe = func(p graphql.ResolveParams) (interface{}, error) {
				ch, err := b.engine.SubscribeCustom(p.Context, resolver.CustomRequest{
					Entity:    d,
					Name:      name,
					Operation: op,
					Source:    p.Source,
					Args:      p.Args,
					Info:      p.Info,
				})
				if err != nil {
					return nil, err
				}
				return ch, nil
			}
			field.Resolve = func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source, nil
			}
			fields[name] = field
		}
	}
	return fields
}

// customField builds a caller-declared operation. The input token, when
// present, becomes one argument named after its type.
func (b *builder) customField(root string, d *entity.Descriptor, opName string, op entity.CustomOperation) (string, *graphql.Field, bool) {
	name, ok := b.registerRoot(root, d, naming.RootFieldName(d.Name, "", opName))
	if !ok {
		return "", nil, false
	}
	site := d.Name + "." + opName
	var out graphql.Output = graphql.Int
	if op.Output != "" {
		out = b.tokenType(op.Output, false, site)
	}
	args := graphql.FieldConfigArgument{}
	if op.Input != "" {
		ref := fieldtype.Parse(op.Input, b.catalog.Knows)
		args[naming.LowerFirst(ref.Name)] = &graphql.ArgumentConfig{Type: b.tokenType(op.Input, true, site)}
	}
	return name, &graphql.Field{
		Type:        out,
		Description: op.Description,
		Args:        args,
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			return b.engine.Custom(p.Context, resolver.CustomRequest{
				Entity:    d,
				Name:      name,
				Operation: op,
				Source:    p.Source,
				Args:      p.Args,
				Info:      p.Info,
			})
		},
	}, true
}

func (b *builder) subscriptionOutput(d *entity.Descriptor) graphql.Type {
	name := naming.SubscriptionOutputName(b.typeName(d))
	return b.reg.Resolve(registry.Identity{Name: name, Variant: registry.Subscription}, func() graphql.Type {
		return graphql.NewObject(graphql.ObjectConfig{
			Name: name,
			Fields: graphql.FieldsThunk(func() graphql.Fields {
				out := b.outputType(d)
				return graphql.Fields{
					"mutation":       {Type: b.mutationTypes()},
					"node":           {Type: out},
					"nodes":          {Type: graphql.NewList(out)},
					"updatedFields":  {Type: graphql.NewList(graphql.String)},
					"previousValues": {Type: out},
					"correlationId":  {Type: graphql.String},
				}
			}),
		})
	})
}

// mutationTypes is the shared enum of change event kinds.
func (b *builder) mutationTypes() graphql.Type {
	return b.reg.Resolve(registry.Identity{Name: "mutationTypes", Variant: registry.Enum}, func() graphql.Type {
		values := graphql.EnumValueConfigMap{}
		for _, k := range pubsub.Kinds {
			values[string(k)] = &graphql.EnumValueConfig{Value: string(k)}
		}
		return graphql.NewEnum(graphql.EnumConfig{Name: "mutationTypes", Values: values})
	})
}

func (b *builder) includeArgs(args graphql.FieldConfigArgument) graphql.FieldConfigArgument {
	for _, name := range b.catalog.IncludeArgumentNames() {
		if _, taken := args[name]; !taken {
			args[name] = &graphql.ArgumentConfig{
				Type: b.tokenType(b.catalog.IncludeArguments[name], true, "includeArguments."+name),
			}
		}
	}
	return args
}

func mergeArgs(dst, src graphql.FieldConfigArgument) graphql.FieldConfigArgument {
	for k, v := range src {
		if _, taken := dst[k]; !taken {
			dst[k] = v
		}
	}
	return dst
}

func kindsArg(v interface{}) []pubsub.Kind {
	list, _ := v.([]interface{})
	kinds := make([]pubsub.Kind, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			kinds = append(kinds, pubsub.Kind(s))
		}
	}
	return kinds
}

func record(v interface{}) entity.Record {
	m, _ := v.(map[string]interface{})
	return m
}

func records(v interface{}) []entity.Record {
	list, _ := v.([]interface{})
	out := make([]entity.Record, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}
