// Package schemagen synthesizes a GraphQL schema from an entity catalog.
// Every build works on a clone of the catalog and a fresh type registry.
package schemagen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/graphql-go/graphql"

	"entity-graphql/internal/entity"
	"entity-graphql/internal/gqlerr"
	"entity-graphql/internal/logging"
	"entity-graphql/internal/naming"
	"entity-graphql/internal/pubsub"
	"entity-graphql/internal/registry"
	"entity-graphql/internal/resolver"
	"entity-graphql/internal/schemafilter"
	"entity-graphql/internal/store"
)

// Config is the input of one schema build.
type Config struct {
	Catalog *entity.Catalog
	Store   store.Store
	// Bus is shared across builds so subscriptions survive a rebuild.
	Bus *pubsub.Bus

	Authorizer   resolver.Authorizer
	ResultLogger resolver.ResultLogger
	Classifier   *gqlerr.Classifier
	Metrics      resolver.Metrics
	Logger       *logging.Logger

	Naming  naming.Config
	Filters schemafilter.Config

	TransactionsEnabled bool
	// StrictTypes rejects type tokens that look like undeclared custom types.
	StrictTypes bool
}

// Result is a built schema with the state it was built from.
type Result struct {
	Schema   graphql.Schema
	Registry *registry.Registry
	Engine   *resolver.Engine
	Catalog  *entity.Catalog
	Stats    Stats
}

// Stats summarizes a build.
type Stats struct {
	Entities      int
	Types         map[registry.Variant]int
	Queries       int
	Mutations     int
	Subscriptions int
	Duration      time.Duration
}

// Build generates the schema for cfg.Catalog.
func Build(ctx context.Context, cfg Config) (*Result, error) {
	started := time.Now()
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("schemagen: catalog is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.FromContext(ctx)
	}

	catalog := cfg.Catalog.Clone()
	namer := naming.New(cfg.Naming, logger.Logger)
	synthesizeImplicit(catalog)
	if err := catalog.Normalize(namer); err != nil {
		return nil, fmt.Errorf("invalid descriptors: %w", err)
	}
	schemafilter.Apply(logging.WithLogger(ctx, logger), catalog, cfg.Filters)

	engine, err := resolver.New(resolver.Options{
		Store:               cfg.Store,
		Bus:                 cfg.Bus,
		Catalog:             catalog,
		Authorizer:          cfg.Authorizer,
		ResultLogger:        cfg.ResultLogger,
		Classifier:          cfg.Classifier,
		Metrics:             cfg.Metrics,
		Logger:              logger,
		TransactionsEnabled: cfg.TransactionsEnabled,
	})
	if err != nil {
		return nil, err
	}

	b := newBuilder(cfg, catalog, namer, engine, logger)
	schema, err := b.schema()
	if err != nil {
		return nil, err
	}

	res := &Result{
		Schema:   schema,
		Registry: b.reg,
		Engine:   engine,
		Catalog:  catalog,
		Stats: Stats{
			Entities:      len(catalog.Entities),
			Types:         b.reg.Stats(),
			Queries:       b.counts[naming.RootQuery],
			Mutations:     b.counts[naming.RootMutation],
			Subscriptions: b.counts[naming.RootSubscription],
			Duration:      time.Since(started),
		},
	}
	logger.Info("schema built",
		slog.Int("entities", res.Stats.Entities),
		slog.Int("types", len(b.reg.Names())),
		slog.Int("queries", res.Stats.Queries),
		slog.Int("mutations", res.Stats.Mutations),
		slog.Int("subscriptions", res.Stats.Subscriptions),
		slog.Duration("duration", res.Stats.Duration))
	return res, nil
}

// builder holds the per-build state shared by the generators.
type builder struct {
	cfg     Config
	catalog *entity.Catalog
	namer   *naming.Namer
	engine  *resolver.Engine
	logger  *logging.Logger
	reg     *registry.Registry

	typeNames map[string]string
	// throughTargets lists, per through entity, the targets its
	// connection payloads may nest.
	throughTargets map[string][]*entity.Descriptor
	// mutationNames records the final root field name per entity and
	// operation; subscriptions listen on them.
	mutationNames map[string]map[entity.Operation]string
	counts        map[string]int

	mu       sync.Mutex
	errs     []error
	warnings map[string]bool
}

func newBuilder(cfg Config, catalog *entity.Catalog, namer *naming.Namer, engine *resolver.Engine, logger *logging.Logger) *builder {
	b := &builder{
		cfg:            cfg,
		catalog:        catalog,
		namer:          namer,
		engine:         engine,
		logger:         logger,
		reg:            registry.New(),
		typeNames:      make(map[string]string, len(catalog.Entities)),
		throughTargets: make(map[string][]*entity.Descriptor),
		mutationNames:  make(map[string]map[entity.Operation]string),
		counts:         make(map[string]int),
		warnings:       make(map[string]bool),
	}
	for _, d := range catalog.Entities {
		b.typeNames[d.Name] = namer.RegisterType(d.Name)
	}
	for _, d := range catalog.Entities {
		for _, a := range d.Associations {
			if a.Kind != entity.ToManyThrough {
				continue
			}
			target, _ := catalog.Entity(a.Target)
			if target != nil && !containsEntity(b.throughTargets[a.Through], target) {
				b.throughTargets[a.Through] = append(b.throughTargets[a.Through], target)
			}
		}
	}
	return b
}

func containsEntity(list []*entity.Descriptor, d *entity.Descriptor) bool {
	for _, item := range list {
		if item.Name == d.Name {
			return true
		}
	}
	return false
}

func (b *builder) typeName(d *entity.Descriptor) string {
	if name, ok := b.typeNames[d.Name]; ok {
		return name
	}
	return d.Name
}

func (b *builder) fail(err error) {
	b.mu.Lock()
	b.errs = append(b.errs, err)
	b.mu.Unlock()
}

func (b *builder) warnOnce(key, msg string, attrs ...any) {
	b.mu.Lock()
	seen := b.warnings[key]
	b.warnings[key] = true
	b.mu.Unlock()
	if !seen {
		b.logger.Warn(msg, attrs...)
	}
}

// schema assembles the roots and constructs the schema. Thunks run inside
// graphql.NewSchema, so generator errors are checked afterwards.
func (b *builder) schema() (graphql.Schema, error) {
	b.compileShapes()

	query := b.queryFields()
	if len(query) == 0 {
		query["_schema"] = &graphql.Field{
			Type:        graphql.String,
			Description: "Placeholder field when no entity exposes a query.",
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return "no entities", nil
			},
		}
	}
	cfg := graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{Name: "Query", Fields: query}),
		Types: b.reg.Types(),
	}
	if mutation := b.mutationFields(); len(mutation) > 0 {
		cfg.Mutation = graphql.NewObject(graphql.ObjectConfig{Name: "Mutation", Fields: mutation})
	}
	if subscription := b.subscriptionFields(); len(subscription) > 0 {
		cfg.Subscription = graphql.NewObject(graphql.ObjectConfig{Name: "Subscription", Fields: subscription})
	}

	schema, err := graphql.NewSchema(cfg)
	if err != nil {
		return graphql.Schema{}, fmt.Errorf("failed to build schema: %w", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.errs) > 0 {
		return graphql.Schema{}, errors.Join(b.errs...)
	}
	return schema, nil
}
