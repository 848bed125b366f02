// Package schemarefresh builds schema snapshots from the descriptor file and
// swaps them in when the file changes.
package schemarefresh

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"entity-graphql/internal/entity"
	"entity-graphql/internal/gqlerr"
	"entity-graphql/internal/logging"
	"entity-graphql/internal/naming"
	"entity-graphql/internal/observability"
	"entity-graphql/internal/pubsub"
	"entity-graphql/internal/resolver"
	"entity-graphql/internal/schemafilter"
	"entity-graphql/internal/schemagen"
	"entity-graphql/internal/store"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"
)

// Snapshot contains an immutable view of the current schema state.
type Snapshot struct {
	Schema      *graphql.Schema
	Handler     http.Handler
	Build       *schemagen.Result
	BuiltAt     time.Time
	Fingerprint string
}

// Config controls schema builds and refresh behavior.
type Config struct {
	// SchemaFile is the YAML descriptor file. It is re-read on every refresh.
	SchemaFile string
	Store      store.Store
	// Bus is reused by every build so open subscriptions keep receiving
	// events published by resolvers of a newer schema.
	Bus *pubsub.Bus

	Authorizer   resolver.Authorizer
	ResultLogger resolver.ResultLogger
	Classifier   *gqlerr.Classifier
	Metrics      *observability.EngineMetrics
	Logger       *logging.Logger

	Naming              naming.Config
	Filters             schemafilter.Config
	TransactionsEnabled bool
	StrictTypes         bool
	// IncludeArguments are merged over the descriptor file's includeArguments.
	IncludeArguments map[string]string
	// Scalars are custom scalars descriptors may reference by name.
	Scalars map[string]*graphql.Scalar

	GraphiQL   bool
	Playground bool
	// Interval is the descriptor file poll interval. Zero disables polling.
	Interval time.Duration
}

// Manager owns the active schema snapshot.
type Manager struct {
	cfg    Config
	logger *logging.Logger

	active atomic.Pointer[Snapshot]
	// mu serializes rebuilds so a manual refresh never races the poll loop.
	mu sync.Mutex
	wg sync.WaitGroup
}

// NewManager builds the initial snapshot. A descriptor file that cannot be
// loaded or built is fatal at startup.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.SchemaFile == "" {
		return nil, fmt.Errorf("schema file is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Bus == nil {
		cfg.Bus = pubsub.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	m := &Manager{
		cfg:    cfg,
		logger: cfg.Logger.WithFields(slog.String("component", "schema_refresh")),
	}

	start := time.Now()
	snapshot, err := m.build(context.Background())
	cfg.Metrics.RecordSchemaBuild(context.Background(), time.Since(start), err, "startup")
	if err != nil {
		return nil, err
	}
	m.active.Store(snapshot)
	return m, nil
}

// Start begins the background refresh loop.
func (m *Manager) Start(ctx context.Context) {
	if m.cfg.Interval <= 0 {
		m.logger.Info("schema refresh disabled")
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.refreshLoop(ctx)
	}()
}

// Handler serves each request with the snapshot active when it arrives.
func (m *Manager) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snapshot := m.CurrentSnapshot()
		if snapshot == nil || snapshot.Handler == nil {
			http.Error(w, "schema not ready", http.StatusServiceUnavailable)
			return
		}
		snapshot.Handler.ServeHTTP(w, r)
	})
}

// CurrentSnapshot returns the active schema snapshot.
func (m *Manager) CurrentSnapshot() *Snapshot {
	return m.active.Load()
}

// Fingerprint returns the hash of the descriptor file behind the active
// snapshot, or "" before the first build.
func (m *Manager) Fingerprint() string {
	if snapshot := m.CurrentSnapshot(); snapshot != nil {
		return snapshot.Fingerprint
	}
	return ""
}

// RefreshNow rebuilds the schema regardless of the file fingerprint. On
// failure the previous snapshot stays active.
func (m *Manager) RefreshNow(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	snapshot, err := m.build(ctx)
	m.cfg.Metrics.RecordSchemaBuild(ctx, time.Since(start), err, "manual")
	if err != nil {
		return err
	}
	m.active.Store(snapshot)
	return nil
}

// Wait blocks until the refresh loop exits or the context is canceled.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("schema refresh stopped")
			return
		case <-ticker.C:
			m.refreshOnce(ctx)
		}
	}
}

// refreshOnce rebuilds when the descriptor file's fingerprint changed.
func (m *Manager) refreshOnce(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fingerprint, err := fileFingerprint(m.cfg.SchemaFile)
	if err != nil {
		m.logger.Warn("schema fingerprint check failed", slog.String("error", err.Error()))
		return
	}
	if fingerprint == m.Fingerprint() {
		return
	}

	m.logger.Info("descriptor file changed, rebuilding", slog.String("fingerprint", fingerprint))
	start := time.Now()
	snapshot, err := m.build(ctx)
	m.cfg.Metrics.RecordSchemaBuild(ctx, time.Since(start), err, "refresh")
	if err != nil {
		m.logger.Error("failed to rebuild schema, keeping previous snapshot", slog.String("error", err.Error()))
		return
	}
	m.active.Store(snapshot)
	m.logger.Info("schema refresh complete", slog.String("fingerprint", snapshot.Fingerprint))
}

func (m *Manager) build(ctx context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(m.cfg.SchemaFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor file %s: %w", m.cfg.SchemaFile, err)
	}
	catalog, err := entity.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("descriptor file %s: %w", m.cfg.SchemaFile, err)
	}
	if len(m.cfg.IncludeArguments) > 0 {
		if catalog.IncludeArguments == nil {
			catalog.IncludeArguments = make(map[string]string, len(m.cfg.IncludeArguments))
		}
		maps.Copy(catalog.IncludeArguments, m.cfg.IncludeArguments)
	}
	if len(m.cfg.Scalars) > 0 {
		if catalog.Scalars == nil {
			catalog.Scalars = make(map[string]*graphql.Scalar, len(m.cfg.Scalars))
		}
		maps.Copy(catalog.Scalars, m.cfg.Scalars)
	}

	m.logger.Info("building schema", slog.String("file", m.cfg.SchemaFile))
	result, err := schemagen.Build(logging.WithLogger(ctx, m.cfg.Logger), schemagen.Config{
		Catalog:             catalog,
		Store:               m.cfg.Store,
		Bus:                 m.cfg.Bus,
		Authorizer:          m.cfg.Authorizer,
		ResultLogger:        m.cfg.ResultLogger,
		Classifier:          m.cfg.Classifier,
		Metrics:             m.resolverMetrics(),
		Logger:              m.cfg.Logger,
		Naming:              m.cfg.Naming,
		Filters:             m.cfg.Filters,
		TransactionsEnabled: m.cfg.TransactionsEnabled,
		StrictTypes:         m.cfg.StrictTypes,
	})
	if err != nil {
		return nil, err
	}

	graphqlHandler := handler.New(&handler.Config{
		Schema:     &result.Schema,
		Pretty:     true,
		GraphiQL:   m.cfg.GraphiQL,
		Playground: m.cfg.Playground,
	})

	return &Snapshot{
		Schema:      &result.Schema,
		Handler:     graphqlHandler,
		Build:       result,
		BuiltAt:     time.Now(),
		Fingerprint: fingerprintBytes(data),
	}, nil
}

// resolverMetrics keeps a nil *EngineMetrics from becoming a non-nil interface.
func (m *Manager) resolverMetrics() resolver.Metrics {
	if m.cfg.Metrics == nil {
		return nil
	}
	return m.cfg.Metrics
}

func fileFingerprint(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return fingerprintBytes(data), nil
}

func fingerprintBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
