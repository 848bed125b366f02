// Package resolver executes reads, nested transactional writes and
// subscriptions for generated entity schemas. It talks to storage only
// through store.Store and publishes change events on a pubsub.Bus.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/graphql-go/graphql"

	"entity-graphql/internal/entity"
	"entity-graphql/internal/gqlerr"
	"entity-graphql/internal/logging"
	"entity-graphql/internal/pubsub"
	"entity-graphql/internal/store"
)

// AuthRequest describes the operation being authorized.
type AuthRequest struct {
	Entity    string
	Operation entity.Operation
	Source    interface{}
	Args      map[string]interface{}
	Info      graphql.ResolveInfo
}

// Authorizer approves top-level operations. A returned error aborts the
// operation before any side effect.
type Authorizer interface {
	Authorize(ctx context.Context, req AuthRequest) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, req AuthRequest) error

func (f AuthorizerFunc) Authorize(ctx context.Context, req AuthRequest) error {
	return f(ctx, req)
}

// LogEntry is handed to the ResultLogger after a successful mutation.
type LogEntry struct {
	Entity    string
	Operation entity.Operation
	Result    interface{}
	Source    interface{}
	Args      map[string]interface{}
	Info      graphql.ResolveInfo
}

// ResultLogger records successful mutations. Errors are logged and never
// affect the result.
type ResultLogger interface {
	LogResult(ctx context.Context, entry LogEntry) error
}

// Metrics receives resolver measurements. observability.EngineMetrics
// implements it.
type Metrics interface {
	RecordQuery(ctx context.Context, entityName, op string, err error)
	RecordMutation(ctx context.Context, entityName, op string, elapsed time.Duration, err error)
	SubscriptionStarted(ctx context.Context, entityName string)
	SubscriptionEnded(ctx context.Context, entityName string)
}

type noopMetrics struct{}

func (noopMetrics) RecordQuery(context.Context, string, string, error)                   {}
func (noopMetrics) RecordMutation(context.Context, string, string, time.Duration, error) {}
func (noopMetrics) SubscriptionStarted(context.Context, string)                          {}
func (noopMetrics) SubscriptionEnded(context.Context, string)                            {}

// Options configures an Engine.
type Options struct {
	Store   store.Store
	Bus     *pubsub.Bus
	Catalog *entity.Catalog

	Authorizer   Authorizer
	ResultLogger ResultLogger
	Classifier   *gqlerr.Classifier
	Metrics      Metrics
	Logger       *logging.Logger

	// TransactionsEnabled allows mutations to request a transaction.
	TransactionsEnabled bool
	// Now overrides the event timestamp source.
	Now func() time.Time
}

// Engine is shared by every resolver of one schema build.
type Engine struct {
	store        store.Store
	bus          *pubsub.Bus
	catalog      *entity.Catalog
	authorizer   Authorizer
	resultLogger ResultLogger
	classifier   *gqlerr.Classifier
	metrics      Metrics
	logger       *logging.Logger
	transactions bool
	now          func() time.Time

	txWarning sync.Once
}

// New creates an engine. Store and Catalog are required.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("resolver: store is required")
	}
	if opts.Catalog == nil {
		return nil, fmt.Errorf("resolver: catalog is required")
	}
	e := &Engine{
		store:        opts.Store,
		bus:          opts.Bus,
		catalog:      opts.Catalog,
		authorizer:   opts.Authorizer,
		resultLogger: opts.ResultLogger,
		classifier:   opts.Classifier,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		transactions: opts.TransactionsEnabled,
		now:          opts.Now,
	}
	if e.bus == nil {
		e.bus = pubsub.New()
	}
	if e.metrics == nil {
		e.metrics = noopMetrics{}
	}
	if e.logger == nil {
		e.logger = logging.Discard()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Bus returns the event bus the engine publishes on.
func (e *Engine) Bus() *pubsub.Bus {
	return e.bus
}

// Catalog returns the normalized catalog the engine serves.
func (e *Engine) Catalog() *entity.Catalog {
	return e.catalog
}

func (e *Engine) loggerFor(ctx context.Context) *logging.Logger {
	if id := logging.GetRequestID(ctx); id != "" {
		return e.logger.WithRequestID(id)
	}
	return e.logger
}

func (e *Engine) authorize(ctx context.Context, req AuthRequest) error {
	if e.authorizer == nil {
		return nil
	}
	if err := e.authorizer.Authorize(ctx, req); err != nil {
		if gqlerr.IsAuthorizationError(err) {
			return err
		}
		return gqlerr.Unauthorized(err)
	}
	return nil
}

// classify applies the classifier rules to err. Authorization errors are
// returned unchanged.
func (e *Engine) classify(err error) error {
	if err == nil || gqlerr.IsAuthorizationError(err) {
		return err
	}
	return e.classifier.Classify(err)
}

// warnTransactionsDisabled logs the policy warning once per engine.
func (e *Engine) warnTransactionsDisabled(ctx context.Context) {
	e.txWarning.Do(func() {
		w := gqlerr.PolicyWarning{Message: "transaction requested but transactions are disabled; running without one"}
		e.loggerFor(ctx).Warn(w.Error())
	})
}

// Accessor builds the store accessor for association a of d.
func (e *Engine) Accessor(d *entity.Descriptor, a entity.Association) (store.Accessor, error) {
	target, ok := e.catalog.Entity(a.Target)
	if !ok {
		return store.Accessor{}, fmt.Errorf("association %s.%s: unknown target %s", d.Name, a.Name, a.Target)
	}
	acc := store.Accessor{
		Association: a,
		Suffix:      e.catalog.Suffix(a),
		Source:      d,
		Target:      target,
	}
	if a.Kind == entity.ToManyThrough {
		through, ok := e.catalog.Entity(a.Through)
		if !ok {
			return store.Accessor{}, fmt.Errorf("association %s.%s: unknown through entity %s", d.Name, a.Name, a.Through)
		}
		acc.Through = through
	}
	return acc, nil
}

func (e *Engine) logResult(ctx context.Context, entry LogEntry) {
	if e.resultLogger == nil {
		return
	}
	if err := e.resultLogger.LogResult(ctx, entry); err != nil {
		e.loggerFor(ctx).Warn("result logger failed",
			slog.String("entity", entry.Entity),
			slog.String("operation", string(entry.Operation)),
			slog.String("error", err.Error()))
	}
}
