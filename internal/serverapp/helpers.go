package serverapp

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"entity-graphql/internal/config"
	"entity-graphql/internal/dbexec"
	"entity-graphql/internal/gqlerr"
	"entity-graphql/internal/logging"
	"entity-graphql/internal/middleware"
	"entity-graphql/internal/observability"
	"entity-graphql/internal/schemarefresh"
	"entity-graphql/internal/store"
	"entity-graphql/internal/store/memstore"
	"entity-graphql/internal/store/sqlstore"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	databaseWaitTimeout = 30 * time.Second
	healthCheckTimeout  = 2 * time.Second
	reloadTimeout       = 15 * time.Second
)

// InitLogger builds the process logger and installs it as the slog default.
// provider may be nil; when set, records are also exported over OTLP.
func InitLogger(cfg *config.Config, provider *sdklog.LoggerProvider) *logging.Logger {
	logger := logging.NewLogger(logging.Config{
		Level:          cfg.Observability.Logging.Level,
		Format:         cfg.Observability.Logging.Format,
		LoggerProvider: provider,
	})
	slog.SetDefault(logger.Logger)
	return logger
}

func observabilityConfig(cfg *config.Config) observability.Config {
	o := cfg.Observability
	return observability.Config{
		ServiceName:      o.ServiceName,
		ServiceVersion:   o.ServiceVersion,
		Environment:      o.Environment,
		TracingEnabled:   o.TracingEnabled,
		LogExportEnabled: o.Logging.ExportsEnabled,
		TraceSampleRatio: o.TraceSampleRatio,
		OTLP: observability.OTLPExporterConfig{
			Endpoint:          o.OTLP.Endpoint,
			Protocol:          o.OTLP.Protocol,
			Insecure:          o.OTLP.Insecure,
			TLSCertFile:       o.OTLP.TLSCertFile,
			TLSClientCertFile: o.OTLP.TLSClientCertFile,
			TLSClientKeyFile:  o.OTLP.TLSClientKeyFile,
			Headers:           o.OTLP.Headers,
			Timeout:           o.OTLP.Timeout,
			Compression:       o.OTLP.Compression,
			RetryEnabled:      o.OTLP.RetryEnabled,
		},
	}
}

func initObservability(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*observability.Providers, *observability.EngineMetrics, error) {
	logger.Info("initializing OpenTelemetry",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
		slog.Bool("tracing", cfg.Observability.TracingEnabled),
		slog.Bool("log_export", cfg.Observability.Logging.ExportsEnabled),
	)
	providers, err := observability.Setup(ctx, observabilityConfig(cfg), logger.Logger)
	if err != nil {
		return nil, nil, err
	}
	metrics, err := observability.InitMetrics(logger.Logger)
	if err != nil {
		_ = providers.Shutdown(context.Background(), logger.Logger)
		return nil, nil, err
	}
	return providers, metrics, nil
}

// openStore returns the configured record store. db is nil for the memory
// driver.
func openStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) (store.Store, *sql.DB, interface{ Unregister() error }, error) {
	if cfg.Storage.Driver != config.DriverMySQL {
		logger.Info("using in-memory record store")
		return memstore.New(), nil, nil, nil
	}

	dsn, err := cfg.Storage.FormatDSN()
	if err != nil {
		return nil, nil, nil, err
	}

	opts := []otelsql.Option{otelsql.WithAttributes(semconv.DBSystemMySQL)}
	if cfg.Observability.TracingEnabled {
		opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}))
	}
	db, err := otelsql.Open("mysql", dsn, opts...)
	if err != nil {
		return nil, nil, nil, err
	}
	db.SetMaxOpenConns(cfg.Storage.Pool.MaxOpen)
	db.SetMaxIdleConns(cfg.Storage.Pool.MaxIdle)
	db.SetConnMaxLifetime(cfg.Storage.Pool.MaxLifetime)

	var statsReg interface{ Unregister() error }
	if cfg.Observability.MetricsEnabled {
		statsReg, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(semconv.DBSystemMySQL))
		if err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
		}
	}

	logger.Info("connecting to MySQL",
		slog.String("host", cfg.Storage.Host),
		slog.String("database", cfg.Storage.Database),
		slog.Bool("dsn_present", cfg.Storage.DSN != ""),
	)
	if err := waitForDatabase(ctx, logger, db, databaseWaitTimeout); err != nil {
		if statsReg != nil {
			_ = statsReg.Unregister()
		}
		_ = db.Close()
		return nil, nil, nil, err
	}
	return sqlstore.New(dbexec.NewStandardExecutor(db)), db, statsReg, nil
}

func waitForDatabase(ctx context.Context, logger *logging.Logger, db *sql.DB, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	interval := 500 * time.Millisecond

	for attempt := 1; ; attempt++ {
		err := db.PingContext(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("database connection established", slog.Int("attempts", attempt))
			}
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("database not available after %v: %w", timeout, err)
		}

		logger.Warn("database not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", interval),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
		interval = min(interval*2, 5*time.Second)
	}
}

// buildClassifier puts configured rules ahead of the defaults.
func buildClassifier(cfg *config.Config) *gqlerr.Classifier {
	rules := append([]gqlerr.Rule(nil), cfg.Errors.Rules...)
	return gqlerr.NewClassifier(append(rules, gqlerr.DefaultRules()...)...)
}

func buildGraphQLHandler(metrics *observability.EngineMetrics, manager *schemarefresh.Manager) http.Handler {
	handler := middleware.GraphQLMetricsMiddleware(metrics)(manager.Handler())
	handler = middleware.GraphQLTracingMiddleware()(handler)
	return middleware.GraphQLOperationMiddleware(manager.Fingerprint)(handler)
}

func buildRouter(cfg *config.Config, logger *logging.Logger, db *sql.DB, manager *schemarefresh.Manager, graphqlHandler http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/graphql", graphqlHandler)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/graphql", http.StatusFound)
			return
		}
		http.NotFound(w, r)
	})
	mux.HandleFunc("/health", healthHandler(db, manager))

	if cfg.Server.AdminReloadEnabled {
		mux.HandleFunc("/admin/reload-schema", schemaReloadHandler(manager))
		logger.Warn("unauthenticated schema reload endpoint enabled", slog.String("path", "/admin/reload-schema"))
	}
	if cfg.Observability.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", "/metrics"))
	}
	return mux
}

// wrapHTTPHandler applies the server-wide middleware. otelhttp is outermost so
// request logs carry the trace id.
func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, handler http.Handler) http.Handler {
	handler = middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Enabled: cfg.Server.RateLimit.Enabled,
		RPS:     cfg.Server.RateLimit.RPS,
		Burst:   cfg.Server.RateLimit.Burst,
	})(handler)

	if cfg.Server.CORS.Enabled {
		handler = middleware.CORSMiddleware(middleware.CORSConfig{
			Enabled:          true,
			AllowedOrigins:   cfg.Server.CORS.AllowedOrigins,
			AllowedMethods:   cfg.Server.CORS.AllowedMethods,
			AllowedHeaders:   cfg.Server.CORS.AllowedHeaders,
			ExposeHeaders:    cfg.Server.CORS.ExposeHeaders,
			AllowCredentials: cfg.Server.CORS.AllowCredentials,
			MaxAge:           cfg.Server.CORS.MaxAge,
		})(handler)
	}

	handler = middleware.LoggingMiddleware(logger)(handler)

	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpRootSpanName(r)
			}),
		)
	}
	return handler
}

func httpRootSpanName(r *http.Request) string {
	if r == nil {
		return "HTTP /*"
	}
	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}
	return method + " " + normalizeHTTPSpanRoute(r.URL.Path)
}

// normalizeHTTPSpanRoute keeps span names low-cardinality.
func normalizeHTTPSpanRoute(rawPath string) string {
	switch rawPath {
	case "/", "/graphql", "/health", "/metrics", "/admin/reload-schema":
		return rawPath
	default:
		return "/*"
	}
}

func buildServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

type healthStatus struct {
	Status      string `json:"status"`
	Storage     string `json:"storage"`
	Schema      string `json:"schema"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// healthHandler reports storage connectivity and whether a schema is loaded.
// db is nil for the memory store.
func healthHandler(db *sql.DB, manager *schemarefresh.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		status := healthStatus{Status: "healthy", Storage: "memory", Schema: "ok"}
		code := http.StatusOK

		if db != nil {
			status.Storage = "ok"
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				reqLogger.Error("health check failed", slog.String("error", err.Error()), slog.String("check", "database"))
				status.Status, status.Storage, code = "unhealthy", "failed", http.StatusServiceUnavailable
			}
		}
		if status.Fingerprint = manager.Fingerprint(); status.Fingerprint == "" {
			status.Status, status.Schema, code = "unhealthy", "missing", http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	}
}

func schemaReloadHandler(manager *schemarefresh.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")

		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			_, _ = fmt.Fprint(w, `{"error":"method not allowed"}`)
			return
		}

		reqLogger.Info("schema reload requested", slog.String("remote_addr", r.RemoteAddr))
		ctx, cancel := context.WithTimeout(r.Context(), reloadTimeout)
		defer cancel()

		if err := manager.RefreshNow(ctx); err != nil {
			reqLogger.Error("schema reload failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = fmt.Fprint(w, `{"status":"error","message":"schema reload failed"}`)
			return
		}

		reqLogger.Info("schema reloaded", slog.String("fingerprint", manager.Fingerprint()))
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","fingerprint":%q}`, manager.Fingerprint())
	}
}
