package schemagen

import (
	"strings"

	"github.com/graphql-go/graphql"

	"entity-graphql/internal/entity"
	"entity-graphql/internal/scalars"
)

func whereArg() *graphql.ArgumentConfig {
	return &graphql.ArgumentConfig{
		Type:        scalars.JSON(),
		Description: `Filter object: field: value, field: {op: value}, or "and"/"or" lists.`,
	}
}

// listArgs are the filter and pagination args of list reads.
func listArgs() graphql.FieldConfigArgument {
	return graphql.FieldConfigArgument{
		"where":  whereArg(),
		"limit":  &graphql.ArgumentConfig{Type: graphql.Int},
		"offset": &graphql.ArgumentConfig{Type: graphql.Int},
		"order": &graphql.ArgumentConfig{
			Type:        graphql.String,
			Description: `Comma separated fields; prefix "reverse:" or suffix ".desc" for descending.`,
		},
	}
}

// associationArgs are the args of an association field. Lists add cursor
// paging; through lists add the edge filters.
func (b *builder) associationArgs(a entity.Association) graphql.FieldConfigArgument {
	if !a.Kind.IsList() {
		return graphql.FieldConfigArgument{"where": whereArg()}
	}
	args := listArgs()
	args["first"] = &graphql.ArgumentConfig{Type: graphql.Int}
	args["after"] = &graphql.ArgumentConfig{Type: graphql.String}
	if target, ok := b.catalog.Entity(a.Target); ok && target.Paranoid {
		args["paranoid"] = &graphql.ArgumentConfig{Type: graphql.Boolean}
	}
	if a.Kind == entity.ToManyThrough {
		args["whereEdges"] = whereArg()
		args["orderEdges"] = &graphql.ArgumentConfig{Type: graphql.String}
	}
	return args
}

// rootQueryArgs merges the include arguments and, for paranoid entities,
// the paranoid switch into args.
func (b *builder) rootQueryArgs(d *entity.Descriptor, args graphql.FieldConfigArgument) graphql.FieldConfigArgument {
	if args == nil {
		args = graphql.FieldConfigArgument{}
	}
	for _, name := range b.catalog.IncludeArgumentNames() {
		if _, taken := args[name]; taken {
			continue
		}
		args[name] = &graphql.ArgumentConfig{
			Type: b.tokenType(b.catalog.IncludeArguments[name], true, "includeArguments."+name),
		}
	}
	if d.Paranoid {
		if _, taken := args["paranoid"]; !taken {
			args["paranoid"] = &graphql.ArgumentConfig{Type: graphql.Boolean}
		}
	}
	if scope := d.Graph.Scope; scope != nil && scope.ArgPath != "" {
		root := scopeRoot(scope.ArgPath)
		if _, taken := args[root]; !taken {
			args[root] = &graphql.ArgumentConfig{Type: scalars.JSON()}
		}
	}
	return args
}

func scopeRoot(path string) string {
	root, _, _ := strings.Cut(path, ".")
	return root
}

func mutationArgs(args graphql.FieldConfigArgument) graphql.FieldConfigArgument {
	args["set"] = &graphql.ArgumentConfig{
		Type:        graphql.Boolean,
		Description: "If true, list associations replace the existing links instead of adding to them.",
	}
	args["transaction"] = &graphql.ArgumentConfig{
		Type:        graphql.Boolean,
		Description: "Run this operation and all of its nested writes in one transaction.",
	}
	return args
}

// pkArgs returns one argument per primary key.
func (b *builder) pkArgs(d *entity.Descriptor, required bool) graphql.FieldConfigArgument {
	args := graphql.FieldConfigArgument{}
	for _, pk := range d.PrimaryKeys() {
		f, ok := d.Field(pk)
		if !ok {
			continue
		}
		ref := b.scalarRef(d, f)
		ref.IsList = false
		ref.IsRequired = required
		args[pk] = &graphql.ArgumentConfig{Type: ref.Wrap(b.refBase(ref, true))}
	}
	return args
}
