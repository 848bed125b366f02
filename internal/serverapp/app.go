package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"sync"

	"entity-graphql/internal/config"
	"entity-graphql/internal/logging"
	"entity-graphql/internal/observability"
	"entity-graphql/internal/pubsub"
	"entity-graphql/internal/schemarefresh"
	"entity-graphql/internal/store"
)

// App owns runtime resources for the entity-graphql server lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	providers *observability.Providers
	metrics   *observability.EngineMetrics

	db         *sql.DB
	dbStatsReg interface{ Unregister() error }
	store      store.Store
	bus        *pubsub.Bus

	manager *schemarefresh.Manager
	handler http.Handler

	listener net.Listener
	srv      *http.Server

	cleanup cleanupStack

	stateMu     sync.Mutex
	initialized bool

	shutdownOnce sync.Once
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &App{cfg: cfg, logger: logger}, nil
}

// Logger returns the process logger. After Init it exports over OTLP when
// log export is enabled.
func (a *App) Logger() *logging.Logger {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.logger
}

// Addr returns the bound listen address, or "" before Init.
func (a *App) Addr() string {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Handler returns the fully wrapped HTTP handler, or nil before Init.
func (a *App) Handler() http.Handler {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.handler
}

// Manager returns the schema manager, or nil before Init.
func (a *App) Manager() *schemarefresh.Manager {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.manager
}

// ensureContext guards entry points that accept a caller context.
func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
