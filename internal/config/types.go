// Package config loads configuration from files, env vars and flags, and
// validates it.
package config

import (
	"time"

	"entity-graphql/internal/gqlerr"
	"entity-graphql/internal/naming"
	"entity-graphql/internal/schemafilter"
)

// Config holds the application configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Schema        SchemaConfig        `mapstructure:"schema"`
	SchemaFilters schemafilter.Config `mapstructure:"schema_filters"`
	Naming        naming.Config       `mapstructure:"naming"`
	Events        EventsConfig        `mapstructure:"events"`
	Errors        ErrorsConfig        `mapstructure:"errors"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port               int             `mapstructure:"port"`
	GraphiQLEnabled    bool            `mapstructure:"graphiql_enabled"`
	PlaygroundEnabled  bool            `mapstructure:"playground_enabled"`
	ReadTimeout        time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration   `mapstructure:"write_timeout"`
	IdleTimeout        time.Duration   `mapstructure:"idle_timeout"`
	ShutdownTimeout    time.Duration   `mapstructure:"shutdown_timeout"`
	// AdminReloadEnabled serves POST /admin/reload-schema. It is unauthenticated.
	AdminReloadEnabled bool            `mapstructure:"admin_reload_enabled"`
	RateLimit          RateLimitConfig `mapstructure:"rate_limit"`
	CORS               CORSConfig      `mapstructure:"cors"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposeHeaders    []string `mapstructure:"expose_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverMySQL  = "mysql"
)

// StorageConfig selects and connects the record store. DSN wins over the
// discrete host/port/user fields.
type StorageConfig struct {
	Driver         string     `mapstructure:"driver"`
	DSN            string     `mapstructure:"dsn"`
	Host           string     `mapstructure:"host"`
	Port           int        `mapstructure:"port"`
	User           string     `mapstructure:"user"`
	Password       string     `mapstructure:"password"`
	PasswordFile   string     `mapstructure:"password_file"`
	PasswordPrompt bool       `mapstructure:"password_prompt"`
	Database       string     `mapstructure:"database"`
	TLSMode        string     `mapstructure:"tls_mode"`
	Pool           PoolConfig `mapstructure:"pool"`
}

// PoolConfig holds connection pool parameters.
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// SchemaConfig points at the entity descriptor file and controls generation.
type SchemaConfig struct {
	File string `mapstructure:"file"`
	// RefreshInterval is how often the descriptor file is checked for changes.
	// Zero disables hot reload.
	RefreshInterval     time.Duration `mapstructure:"refresh_interval"`
	TransactionsEnabled bool          `mapstructure:"transactions_enabled"`
	StrictTypes         bool          `mapstructure:"strict_types"`
	// IncludeArguments adds extra root query arguments on top of the ones the
	// descriptor file declares. Values are type tokens.
	IncludeArguments map[string]string `mapstructure:"include_arguments"`
}

type EventsConfig struct {
	Buffer int `mapstructure:"buffer"`
}

// ErrorsConfig holds extra classifier rules evaluated before the defaults.
type ErrorsConfig struct {
	Rules []gqlerr.Rule `mapstructure:"rules"`
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`
	Format         string `mapstructure:"format"`
	ExportsEnabled bool   `mapstructure:"exports_enabled"`
}

// ObservabilityConfig holds observability parameters.
type ObservabilityConfig struct {
	ServiceName      string        `mapstructure:"service_name"`
	ServiceVersion   string        `mapstructure:"service_version"`
	Environment      string        `mapstructure:"environment"`
	MetricsEnabled   bool          `mapstructure:"metrics_enabled"`
	TracingEnabled   bool          `mapstructure:"tracing_enabled"`
	TraceSampleRatio float64       `mapstructure:"trace_sample_ratio"`
	Logging          LoggingConfig `mapstructure:"logging"`
	OTLP             OTLPConfig    `mapstructure:"otlp"`
}

// OTLPConfig holds OTLP exporter settings shared by traces and logs.
type OTLPConfig struct {
	Endpoint          string            `mapstructure:"endpoint"`
	Protocol          string            `mapstructure:"protocol"` // "grpc", "http/protobuf"
	Insecure          bool              `mapstructure:"insecure"`
	TLSCertFile       string            `mapstructure:"tls_cert_file"`
	TLSClientCertFile string            `mapstructure:"tls_client_cert_file"`
	TLSClientKeyFile  string            `mapstructure:"tls_client_key_file"`
	Headers           map[string]string `mapstructure:"headers"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	Compression       string            `mapstructure:"compression"` // "none", "gzip"
	RetryEnabled      bool              `mapstructure:"retry_enabled"`
}
