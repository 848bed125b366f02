package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"syscall"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// EnvPrefix prefixes every environment variable, e.g. EGQL_STORAGE_DSN.
const EnvPrefix = "EGQL"

// promptPasswordFunc is replaced in tests.
var promptPasswordFunc = promptPassword

// NewFlagSet defines every command line flag using canonical snake_case keys.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)

	fs.StringP("config", "c", "", "Config file path")
	fs.Bool("version", false, "Print version and exit")

	fs.Int("server.port", 0, "HTTP port")
	fs.Bool("server.graphiql_enabled", false, "Serve GraphiQL on GET /graphql")
	fs.Bool("server.playground_enabled", false, "Serve GraphQL Playground on GET /graphql")
	fs.Duration("server.read_timeout", 0, "HTTP read timeout")
	fs.Duration("server.write_timeout", 0, "HTTP write timeout")
	fs.Duration("server.idle_timeout", 0, "HTTP idle timeout")
	fs.Duration("server.shutdown_timeout", 0, "Graceful shutdown timeout")
	fs.Bool("server.admin_reload_enabled", false, "Serve POST /admin/reload-schema")
	fs.Bool("server.rate_limit.enabled", false, "Enable the global rate limiter")
	fs.Float64("server.rate_limit.rps", 0, "Rate limit in requests per second")
	fs.Int("server.rate_limit.burst", 0, "Rate limit burst")
	fs.Bool("server.cors.enabled", false, "Enable CORS")
	fs.StringSlice("server.cors.allowed_origins", nil, "Allowed CORS origins")

	fs.String("storage.driver", "", "Record store: memory or mysql")
	fs.String("storage.dsn", "", "MySQL DSN (user:pass@tcp(host:port)/db)")
	fs.String("storage.host", "", "Database host")
	fs.Int("storage.port", 0, "Database port")
	fs.String("storage.user", "", "Database user")
	fs.String("storage.password_file", "", "Path to file containing the database password (use @- for stdin)")
	fs.Bool("storage.password_prompt", false, "Prompt for the database password")
	fs.String("storage.database", "", "Database name")
	fs.String("storage.tls_mode", "", "TLS mode: off, true, skip-verify, preferred")

	fs.String("schema.file", "", "Entity descriptor file (YAML)")
	fs.Duration("schema.refresh_interval", 0, "Descriptor file poll interval (0 disables reload)")
	fs.Bool("schema.transactions_enabled", false, "Run mutations in storage transactions")
	fs.Bool("schema.strict_types", false, "Fail the build on unknown type tokens")

	fs.Int("events.buffer", 0, "Per-subscription event buffer")

	fs.String("observability.service_name", "", "Service name for observability")
	fs.String("observability.service_version", "", "Service version for observability")
	fs.Bool("observability.tracing_enabled", false, "Export traces over OTLP")
	fs.Bool("observability.metrics_enabled", false, "Serve Prometheus metrics on /metrics")
	fs.String("observability.logging.level", "", "Log level: debug, info, warn, error")
	fs.String("observability.logging.format", "", "Log format: json, text")
	fs.String("observability.otlp.endpoint", "", "OTLP endpoint")
	fs.String("observability.otlp.protocol", "", "OTLP protocol (grpc, http/protobuf)")
	fs.Bool("observability.otlp.insecure", false, "Use an insecure OTLP connection")

	return fs
}

// Load resolves configuration with the following precedence:
//  1. Command line flags
//  2. Environment variables (EGQL_ prefix)
//  3. Config file
//  4. Default values
//
// fs must come from NewFlagSet. args are parsed unless fs is already parsed.
func Load(fs *pflag.FlagSet, args []string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if !fs.Parsed() {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
	}

	cfgPath, _ := fs.GetString("config")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("entity-graphql")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/entity-graphql/")
		v.AddConfigPath("$HOME/.entity-graphql")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Canonical keys are dot + snake_case: EGQL_STORAGE_POOL_MAX_OPEN.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	bindChangedFlags(fs, v)

	if v.GetString("storage.password") == "" && v.GetString("storage.password_file") != "" {
		pwd, err := readSecretFile(v.GetString("storage.password_file"))
		if err != nil {
			return nil, fmt.Errorf("failed to read storage password file: %w", err)
		}
		v.Set("storage.password", pwd)
	}
	if v.GetString("storage.password") == "" && v.GetBool("storage.password_prompt") {
		pwd, err := promptPasswordFunc()
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		v.Set("storage.password", pwd)
	}

	var cfg Config
	if err := v.UnmarshalExact(
		&cfg,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				stringToStringSliceHookFunc(","),
			),
		),
	); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// bindChangedFlags copies only explicitly-set flags into Viper so unset flags
// never shadow env or file values.
func bindChangedFlags(fs *pflag.FlagSet, v *viper.Viper) {
	fs.Visit(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "version" {
			return
		}
		switch f.Value.Type() {
		case "int":
			val, _ := fs.GetInt(f.Name)
			v.Set(f.Name, val)
		case "bool":
			val, _ := fs.GetBool(f.Name)
			v.Set(f.Name, val)
		case "float64":
			val, _ := fs.GetFloat64(f.Name)
			v.Set(f.Name, val)
		case "duration":
			val, _ := fs.GetDuration(f.Name)
			v.Set(f.Name, val)
		case "stringSlice":
			val, _ := fs.GetStringSlice(f.Name)
			v.Set(f.Name, val)
		default:
			v.Set(f.Name, f.Value.String())
		}
	})
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.graphiql_enabled", false)
	v.SetDefault("server.playground_enabled", false)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.admin_reload_enabled", false)
	v.SetDefault("server.rate_limit.enabled", false)
	v.SetDefault("server.rate_limit.rps", 0.0)
	v.SetDefault("server.rate_limit.burst", 0)
	v.SetDefault("server.cors.enabled", false)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("server.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("server.cors.allowed_headers", []string{"Content-Type", "Authorization", "X-Request-ID"})
	v.SetDefault("server.cors.expose_headers", []string{"X-Request-ID"})
	v.SetDefault("server.cors.allow_credentials", false)
	v.SetDefault("server.cors.max_age", 86400)

	v.SetDefault("storage.driver", DriverMemory)
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.host", "localhost")
	v.SetDefault("storage.port", 3306)
	v.SetDefault("storage.user", "root")
	v.SetDefault("storage.password", "")
	v.SetDefault("storage.password_file", "")
	v.SetDefault("storage.password_prompt", false)
	v.SetDefault("storage.database", "")
	v.SetDefault("storage.tls_mode", "")
	v.SetDefault("storage.pool.max_open", 25)
	v.SetDefault("storage.pool.max_idle", 5)
	v.SetDefault("storage.pool.max_lifetime", 5*time.Minute)

	v.SetDefault("schema.file", "")
	v.SetDefault("schema.refresh_interval", 0)
	v.SetDefault("schema.transactions_enabled", true)
	v.SetDefault("schema.strict_types", false)
	v.SetDefault("schema.include_arguments", map[string]string{})

	v.SetDefault("schema_filters.allow_entities", []string{"*"})
	v.SetDefault("schema_filters.deny_entities", []string{})
	v.SetDefault("schema_filters.allow_fields", map[string][]string{})
	v.SetDefault("schema_filters.deny_fields", map[string][]string{})
	v.SetDefault("schema_filters.deny_mutation_entities", []string{})
	v.SetDefault("schema_filters.deny_mutation_fields", map[string][]string{})
	v.SetDefault("schema_filters.deny_root_fields", []string{})

	v.SetDefault("naming.plural_overrides", map[string]string{})
	v.SetDefault("naming.singular_overrides", map[string]string{})

	v.SetDefault("events.buffer", 64)
	v.SetDefault("errors.rules", []map[string]interface{}{})

	v.SetDefault("observability.service_name", "entity-graphql")
	v.SetDefault("observability.service_version", "")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.trace_sample_ratio", 1.0)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.logging.exports_enabled", false)
	v.SetDefault("observability.otlp.endpoint", "localhost:4317")
	v.SetDefault("observability.otlp.protocol", "grpc")
	v.SetDefault("observability.otlp.insecure", false)
	v.SetDefault("observability.otlp.tls_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_key_file", "")
	v.SetDefault("observability.otlp.headers", map[string]string{})
	v.SetDefault("observability.otlp.timeout", 10*time.Second)
	v.SetDefault("observability.otlp.compression", "gzip")
	v.SetDefault("observability.otlp.retry_enabled", true)
}

// promptPassword reads the password without echoing it.
func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Enter database password: ")
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// readSecretFile reads a trimmed secret from path, or from stdin for "@-".
func readSecretFile(path string) (string, error) {
	var data []byte
	var err error
	if path == "@-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func stringToStringSliceHookFunc(sep string) mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
			return data, nil
		}
		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []string{}, nil
		}
		parts := strings.Split(raw, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}
