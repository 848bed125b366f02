package config

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"

	"entity-graphql/internal/fieldtype"
	"entity-graphql/internal/schemafilter"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error joins all validation errors, or returns "" when there are none.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) errorf(field, hint, format string, args ...any) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Hint: hint})
}

func (r *ValidationResult) warnf(field, hint, format string, args ...any) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: fmt.Sprintf(format, args...), Hint: hint})
}

// Validate checks the configuration. Errors are fatal; warnings are logged.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}
	c.Server.validate(result)
	c.Storage.validate(result)
	c.Schema.validate(result)
	validateSchemaFilters(result, c.SchemaFilters)
	if c.Events.Buffer < 1 {
		result.errorf("events.buffer", "", "buffer must be at least 1")
	}
	for i, rule := range c.Errors.Rules {
		if strings.TrimSpace(rule.Match) == "" {
			result.errorf(fmt.Sprintf("errors.rules[%d].match", i), "", "match cannot be empty")
		}
	}
	c.Observability.validate(result)
	return result
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.errorf("server.port", "", "port %d is out of valid range (1-65535)", s.Port)
	}
	if s.GraphiQLEnabled && s.PlaygroundEnabled {
		result.errorf("server.playground_enabled", "enable only one of graphiql_enabled and playground_enabled",
			"GraphiQL and Playground cannot both be served")
	}
	if s.RateLimit.Enabled {
		if s.RateLimit.RPS <= 0 {
			result.errorf("server.rate_limit.rps", "", "rps must be greater than 0 when rate limiting is enabled")
		}
		if s.RateLimit.Burst <= 0 {
			result.errorf("server.rate_limit.burst", "", "burst must be greater than 0 when rate limiting is enabled")
		}
	} else if s.RateLimit.RPS > 0 || s.RateLimit.Burst > 0 {
		result.warnf("server.rate_limit.enabled", "set server.rate_limit.enabled to apply them",
			"rate limit values are set but rate limiting is disabled")
	}
	for _, d := range []struct {
		field string
		value int64
	}{
		{"server.read_timeout", int64(s.ReadTimeout)},
		{"server.write_timeout", int64(s.WriteTimeout)},
		{"server.idle_timeout", int64(s.IdleTimeout)},
		{"server.shutdown_timeout", int64(s.ShutdownTimeout)},
	} {
		if d.value < 0 {
			result.errorf(d.field, "", "timeout cannot be negative")
		}
	}
	if s.WriteTimeout > 0 {
		result.warnf("server.write_timeout", "leave it at 0 when clients use subscriptions",
			"a write timeout closes long-lived subscription streams")
	}
	if s.CORS.Enabled {
		if len(s.CORS.AllowedOrigins) == 0 {
			result.warnf("server.cors.allowed_origins", "", "CORS is enabled but no origins are allowed")
		}
		for _, origin := range s.CORS.AllowedOrigins {
			if origin == "*" && s.CORS.AllowCredentials {
				result.warnf("server.cors.allow_credentials", "list explicit origins",
					"credentials are not sent with a wildcard origin")
			}
		}
	}
}

var validTLSModes = map[string]bool{"": true, "off": true, "true": true, "false": true, "skip-verify": true, "preferred": true}

func (s *StorageConfig) validate(result *ValidationResult) {
	switch s.Driver {
	case DriverMemory:
		if s.DSN != "" {
			result.warnf("storage.dsn", "set storage.driver to mysql", "dsn is ignored by the memory driver")
		}
		return
	case DriverMySQL:
	default:
		result.errorf("storage.driver", "valid values are: memory, mysql", "invalid storage driver %q", s.Driver)
		return
	}

	if s.DSN != "" {
		if _, err := s.MySQLConfig(); err != nil {
			result.errorf("storage.dsn", "", "%v", err)
		}
	} else {
		if strings.TrimSpace(s.Host) == "" {
			result.errorf("storage.host", "or set storage.dsn", "host is required for the mysql driver")
		}
		if s.Port < 1 || s.Port > 65535 {
			result.errorf("storage.port", "", "port %d is out of valid range (1-65535)", s.Port)
		}
		if strings.TrimSpace(s.Database) == "" {
			result.errorf("storage.database", "or set storage.dsn", "database is required for the mysql driver")
		}
	}
	if !validTLSModes[s.TLSMode] {
		result.errorf("storage.tls_mode", "valid values are: off, true, skip-verify, preferred", "invalid tls mode %q", s.TLSMode)
	}
	if s.Pool.MaxOpen < 0 || s.Pool.MaxIdle < 0 {
		result.errorf("storage.pool", "", "pool sizes cannot be negative")
	}
	if s.Pool.MaxOpen > 0 && s.Pool.MaxIdle > s.Pool.MaxOpen {
		result.warnf("storage.pool.max_idle", "", "max_idle %d exceeds max_open %d", s.Pool.MaxIdle, s.Pool.MaxOpen)
	}
}

func (s *SchemaConfig) validate(result *ValidationResult) {
	if strings.TrimSpace(s.File) == "" {
		result.errorf("schema.file", "point it at a YAML entity descriptor file", "schema file is required")
	}
	if s.RefreshInterval < 0 {
		result.errorf("schema.refresh_interval", "", "refresh interval cannot be negative")
	}
	for name, token := range s.IncludeArguments {
		if strings.TrimSpace(name) == "" {
			result.errorf("schema.include_arguments", "", "argument name cannot be empty")
			continue
		}
		// Capitalised names may be custom types declared in the descriptor file.
		if ref := fieldtype.Parse(token, nil); ref.Fallback == fieldtype.FallbackUnknownScalar {
			result.warnf("schema.include_arguments", "arguments with unknown scalars are typed String",
				"argument %q has unknown type %q", name, token)
		}
	}
}

func validateSchemaFilters(result *ValidationResult, filters schemafilter.Config) {
	validateGlobList(result, "schema_filters.allow_entities", filters.AllowEntities)
	validateGlobList(result, "schema_filters.deny_entities", filters.DenyEntities)
	validateGlobList(result, "schema_filters.deny_mutation_entities", filters.DenyMutationEntities)
	validateGlobList(result, "schema_filters.deny_root_fields", filters.DenyRootFields)
	validatePatternMap(result, "schema_filters.allow_fields", filters.AllowFields)
	validatePatternMap(result, "schema_filters.deny_fields", filters.DenyFields)
	validatePatternMap(result, "schema_filters.deny_mutation_fields", filters.DenyMutationFields)
}

func validateGlobList(result *ValidationResult, field string, patterns []string) {
	for _, pattern := range patterns {
		if strings.TrimSpace(pattern) == "" {
			result.errorf(field, "", "pattern cannot be empty")
			continue
		}
		if _, err := path.Match(pattern, "probe"); err != nil {
			result.errorf(field, "", "invalid glob pattern %q: %v", pattern, err)
		}
	}
}

func validatePatternMap(result *ValidationResult, field string, patternMap map[string][]string) {
	for entityPattern, fieldPatterns := range patternMap {
		validateGlobList(result, field, []string{entityPattern})
		for _, p := range fieldPatterns {
			if strings.TrimSpace(p) == "" {
				result.errorf(field, "", "field pattern for entity pattern %q cannot be empty", entityPattern)
				continue
			}
			if _, err := path.Match(p, "probe"); err != nil {
				result.errorf(field, "", "invalid field glob pattern %q for entity pattern %q: %v", p, entityPattern, err)
			}
		}
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[o.Logging.Level] {
		result.errorf("observability.logging.level", "valid values are: debug, info, warn, error", "invalid log level %q", o.Logging.Level)
	}
	if o.Logging.Format != "json" && o.Logging.Format != "text" {
		result.errorf("observability.logging.format", "valid values are: json, text", "invalid log format %q", o.Logging.Format)
	}
	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.errorf("observability.trace_sample_ratio", "", "ratio %v must be between 0 and 1", o.TraceSampleRatio)
	}
	if o.TracingEnabled || o.Logging.ExportsEnabled {
		o.OTLP.validate("observability.otlp", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	switch o.Protocol {
	case "", "grpc":
	case "http/protobuf":
		if !validOTLPEndpoint(o.Endpoint) {
			result.errorf(prefix+".endpoint", "use host:port or a full URL", "invalid OTLP endpoint %q for http/protobuf", o.Endpoint)
		}
	default:
		result.errorf(prefix+".protocol", "valid values are: grpc, http/protobuf", "invalid OTLP protocol %q", o.Protocol)
	}
	if o.Compression != "" && o.Compression != "none" && o.Compression != "gzip" {
		result.errorf(prefix+".compression", "valid values are: none, gzip", "invalid OTLP compression %q", o.Compression)
	}
	if o.Endpoint == "" {
		result.errorf(prefix+".endpoint", "", "endpoint is required when exporting")
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		return err == nil && parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
