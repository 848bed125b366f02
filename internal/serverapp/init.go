package serverapp

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"entity-graphql/internal/pubsub"
	"entity-graphql/internal/schemarefresh"
)

// Init initializes all runtime resources and binds the listener. It is
// idempotent. On failure everything acquired so far is released.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	a.stateMu.Unlock()
	ctx = ensureContext(ctx)

	cleanup := cleanupStack{}
	success := false
	logger := a.logger
	defer func() {
		if !success {
			cleanup.run(context.Background(), logger)
		}
	}()

	providers, metrics, err := initObservability(ctx, a.cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	cleanup.push("telemetry providers", func(shutdownCtx context.Context) error {
		return providers.Shutdown(shutdownCtx, logger.Logger)
	})
	if providers.Logger != nil {
		logger = InitLogger(a.cfg, providers.Logger.Provider())
		logger.Info("OpenTelemetry log export enabled")
	}

	recordStore, db, dbStatsReg, err := openStore(ctx, a.cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	if db != nil {
		cleanup.push("database", func(_ context.Context) error {
			if dbStatsReg != nil {
				if err := dbStatsReg.Unregister(); err != nil {
					logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
				}
			}
			return db.Close()
		})
	}

	bus := pubsub.New(pubsub.WithBuffer(a.cfg.Events.Buffer), pubsub.WithObserver(metrics))
	cleanup.push("event bus", func(_ context.Context) error {
		bus.Close()
		return nil
	})

	manager, err := schemarefresh.NewManager(schemarefresh.Config{
		SchemaFile:          a.cfg.Schema.File,
		Store:               recordStore,
		Bus:                 bus,
		Classifier:          buildClassifier(a.cfg),
		Metrics:             metrics,
		Logger:              logger,
		Naming:              a.cfg.Naming,
		Filters:             a.cfg.SchemaFilters,
		TransactionsEnabled: a.cfg.Schema.TransactionsEnabled,
		StrictTypes:         a.cfg.Schema.StrictTypes,
		IncludeArguments:    a.cfg.Schema.IncludeArguments,
		GraphiQL:            a.cfg.Server.GraphiQLEnabled,
		Playground:          a.cfg.Server.PlaygroundEnabled,
		Interval:            a.cfg.Schema.RefreshInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to build schema: %w", err)
	}

	mux := buildRouter(a.cfg, logger, db, manager, buildGraphQLHandler(metrics, manager))
	handler := wrapHTTPHandler(a.cfg, logger, mux)
	srv := buildServer(a.cfg, handler)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", a.cfg.Server.Port, err)
	}
	cleanup.push("HTTP server", func(shutdownCtx context.Context) error {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		// Shutdown does not close a listener that was never served.
		_ = listener.Close()
		return nil
	})

	a.stateMu.Lock()
	a.logger = logger
	a.providers = providers
	a.metrics = metrics
	a.db = db
	a.dbStatsReg = dbStatsReg
	a.store = recordStore
	a.bus = bus
	a.manager = manager
	a.handler = handler
	a.listener = listener
	a.srv = srv
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}
