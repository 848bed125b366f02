package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, args ...string) *Config {
	t.Helper()
	// Keep the working directory free of a stray entity-graphql.yaml.
	t.Chdir(t.TempDir())
	cfg, err := Load(NewFlagSet("test"), args)
	require.NoError(t, err)
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := load(t)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, 25, cfg.Storage.Pool.MaxOpen)
	assert.True(t, cfg.Schema.TransactionsEnabled)
	assert.Equal(t, 64, cfg.Events.Buffer)
	assert.Equal(t, []string{"*"}, cfg.SchemaFilters.AllowEntities)
	assert.Equal(t, "entity-graphql", cfg.Observability.ServiceName)
	assert.Equal(t, 10*time.Second, cfg.Observability.OTLP.Timeout)
	assert.Empty(t, cfg.Errors.Rules)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
server:
  port: 9000
  cors:
    enabled: true
    allowed_origins: ["http://localhost:3000"]
storage:
  driver: mysql
  host: db.internal
  database: blog
schema:
  file: blog.yaml
  refresh_interval: 30s
  include_arguments:
    tenant: string
schema_filters:
  deny_root_fields: ["*Upsert"]
errors:
  rules:
    - match: "Deadlock"
      fields:
        status: 409
`), 0o600))

	t.Setenv("EGQL_SERVER_PORT", "9100")
	t.Setenv("EGQL_STORAGE_USER", "app")
	t.Setenv("EGQL_SERVER_CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test")

	cfg := load(t, "--config", file, "--server.port", "9200", "--schema.strict_types")

	assert.Equal(t, 9200, cfg.Server.Port, "flag beats env and file")
	assert.Equal(t, "app", cfg.Storage.User, "env beats default")
	assert.Equal(t, "db.internal", cfg.Storage.Host)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORS.AllowedOrigins)
	assert.True(t, cfg.Server.CORS.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Schema.RefreshInterval)
	assert.True(t, cfg.Schema.StrictTypes)
	assert.Equal(t, map[string]string{"tenant": "string"}, cfg.Schema.IncludeArguments)
	assert.Equal(t, []string{"*Upsert"}, cfg.SchemaFilters.DenyRootFields)
	require.Len(t, cfg.Errors.Rules, 1)
	assert.Equal(t, "Deadlock", cfg.Errors.Rules[0].Match)
	assert.EqualValues(t, 409, cfg.Errors.Rules[0].Fields["status"])
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte("server:\n  oidc_enabled: true\n"), 0o600))

	t.Chdir(t.TempDir())
	_, err := Load(NewFlagSet("test"), []string{"--config", file})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oidc_enabled")
}

func TestLoadPasswordSources(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "pw")
		require.NoError(t, os.WriteFile(file, []byte("s3cret\n"), 0o600))
		cfg := load(t, "--storage.password_file", file)
		assert.Equal(t, "s3cret", cfg.Storage.Password)
	})

	t.Run("prompt", func(t *testing.T) {
		prev := promptPasswordFunc
		promptPasswordFunc = func() (string, error) { return "typed", nil }
		t.Cleanup(func() { promptPasswordFunc = prev })

		cfg := load(t, "--storage.password_prompt")
		assert.Equal(t, "typed", cfg.Storage.Password)
	})

	t.Run("explicit password wins", func(t *testing.T) {
		t.Setenv("EGQL_STORAGE_PASSWORD", "from-env")
		cfg := load(t, "--storage.password_file", "/nonexistent")
		assert.Equal(t, "from-env", cfg.Storage.Password)
	})
}

func TestStorageMySQLConfig(t *testing.T) {
	t.Run("discrete fields", func(t *testing.T) {
		s := StorageConfig{Host: "db", Port: 3307, User: "app", Password: "pw", Database: "blog", TLSMode: "skip-verify"}
		cfg, err := s.MySQLConfig()
		require.NoError(t, err)
		assert.Equal(t, "db:3307", cfg.Addr)
		assert.Equal(t, "blog", cfg.DBName)
		assert.Equal(t, "skip-verify", cfg.TLSConfig)
		assert.True(t, cfg.ClientFoundRows)
		assert.True(t, cfg.ParseTime)
	})

	t.Run("dsn forces found rows", func(t *testing.T) {
		s := StorageConfig{DSN: "app:pw@tcp(db:3306)/blog"}
		dsn, err := s.FormatDSN()
		require.NoError(t, err)
		assert.Contains(t, dsn, "clientFoundRows=true")
		assert.Contains(t, dsn, "parseTime=true")
	})

	t.Run("invalid dsn", func(t *testing.T) {
		s := StorageConfig{DSN: "not a dsn"}
		_, err := s.MySQLConfig()
		require.Error(t, err)
	})
}

func validConfig() Config {
	return Config{
		Server:  ServerConfig{Port: 8080},
		Storage: StorageConfig{Driver: DriverMemory},
		Schema:  SchemaConfig{File: "blog.yaml"},
		Events:  EventsConfig{Buffer: 16},
		Observability: ObservabilityConfig{
			TraceSampleRatio: 1,
			Logging:          LoggingConfig{Level: "info", Format: "json"},
		},
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		wantErrors  []string
		wantWarning string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:       "bad port",
			mutate:     func(c *Config) { c.Server.Port = 70000 },
			wantErrors: []string{"server.port"},
		},
		{
			name:       "graphiql and playground",
			mutate:     func(c *Config) { c.Server.GraphiQLEnabled, c.Server.PlaygroundEnabled = true, true },
			wantErrors: []string{"server.playground_enabled"},
		},
		{
			name:       "rate limit without values",
			mutate:     func(c *Config) { c.Server.RateLimit.Enabled = true },
			wantErrors: []string{"server.rate_limit.rps", "server.rate_limit.burst"},
		},
		{
			name:        "rate limit values while disabled",
			mutate:      func(c *Config) { c.Server.RateLimit.RPS = 5 },
			wantWarning: "server.rate_limit.enabled",
		},
		{
			name:       "unknown driver",
			mutate:     func(c *Config) { c.Storage.Driver = "postgres" },
			wantErrors: []string{"storage.driver"},
		},
		{
			name: "mysql without target",
			mutate: func(c *Config) {
				c.Storage = StorageConfig{Driver: DriverMySQL, Port: 3306, TLSMode: "sometimes"}
			},
			wantErrors: []string{"storage.host", "storage.database", "storage.tls_mode"},
		},
		{
			name:       "missing schema file",
			mutate:     func(c *Config) { c.Schema.File = "" },
			wantErrors: []string{"schema.file"},
		},
		{
			name:        "unknown include argument scalar",
			mutate:      func(c *Config) { c.Schema.IncludeArguments = map[string]string{"tenant": "uuid"} },
			wantWarning: "schema.include_arguments",
		},
		{
			name:       "bad glob",
			mutate:     func(c *Config) { c.SchemaFilters.DenyEntities = []string{"[a"} },
			wantErrors: []string{"schema_filters.deny_entities"},
		},
		{
			name:       "zero buffer",
			mutate:     func(c *Config) { c.Events.Buffer = 0 },
			wantErrors: []string{"events.buffer"},
		},
		{
			name: "tracing with http protocol and bad endpoint",
			mutate: func(c *Config) {
				c.Observability.TracingEnabled = true
				c.Observability.OTLP = OTLPConfig{Protocol: "http/protobuf", Endpoint: "collector"}
			},
			wantErrors: []string{"observability.otlp.endpoint"},
		},
		{
			name:       "bad log level",
			mutate:     func(c *Config) { c.Observability.Logging.Level = "verbose" },
			wantErrors: []string{"observability.logging.level"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			result := cfg.Validate()

			var fields []string
			for _, e := range result.Errors {
				fields = append(fields, e.Field)
			}
			if len(tt.wantErrors) == 0 {
				assert.False(t, result.HasErrors(), result.Error())
			} else {
				assert.ElementsMatch(t, tt.wantErrors, fields)
			}
			if tt.wantWarning != "" {
				require.NotEmpty(t, result.Warnings)
				assert.Equal(t, tt.wantWarning, result.Warnings[0].Field)
			}
		})
	}
}

func TestValidationErrorIncludesHint(t *testing.T) {
	err := ValidationError{Field: "storage.driver", Message: "invalid", Hint: "use memory"}
	assert.Equal(t, "storage.driver: invalid (hint: use memory)", err.Error())
	assert.Equal(t, "server.port: bad", ValidationError{Field: "server.port", Message: "bad"}.Error())
}
