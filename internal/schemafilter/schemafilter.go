// Package schemafilter applies allow/deny filters to entity catalogs.
package schemafilter

import (
	"context"
	"log/slog"
	"path"
	"slices"
	"strings"

	"entity-graphql/internal/entity"
	"entity-graphql/internal/logging"
)

// Config controls allow/deny filters for entities, fields and root fields.
type Config struct {
	AllowEntities []string            `mapstructure:"allow_entities"`
	DenyEntities  []string            `mapstructure:"deny_entities"`
	AllowFields   map[string][]string `mapstructure:"allow_fields"`
	DenyFields    map[string][]string `mapstructure:"deny_fields"`
	// DenyMutationEntities and DenyMutationFields apply additional restrictions to writes.
	// They do not affect query visibility and are evaluated during mutation schema generation.
	DenyMutationEntities []string            `mapstructure:"deny_mutation_entities"`
	DenyMutationFields   map[string][]string `mapstructure:"deny_mutation_fields"`
	// DenyRootFields removes generated root fields by final name, e.g. "*Delete".
	DenyRootFields []string `mapstructure:"deny_root_fields"`
}

// Apply filters entities, fields and associations of c in place.
// Missing allow lists default to allow-all; deny rules always win.
// Primary keys are never removed.
func Apply(ctx context.Context, c *entity.Catalog, cfg Config) {
	if c == nil {
		return
	}

	kept := make([]*entity.Descriptor, 0, len(c.Entities))
	allowed := make(map[string]bool, len(c.Entities))
	for _, d := range c.Entities {
		if !entityAllowed(d.Name, cfg.AllowEntities, cfg.DenyEntities) {
			logging.FromContext(ctx).Debug("entity filtered from schema", slog.String("entity", d.Name))
			continue
		}
		kept = append(kept, d)
		allowed[d.Name] = true
	}

	for _, d := range kept {
		pks := d.PrimaryKeys()
		fields := make([]entity.Field, 0, len(d.Fields))
		for _, f := range d.Fields {
			if slices.Contains(pks, f.Name) || fieldAllowed(d.Name, f.Name, cfg.AllowFields, cfg.DenyFields) {
				fields = append(fields, f)
			}
		}
		d.Fields = fields

		assocs := make([]entity.Association, 0, len(d.Associations))
		for _, a := range d.Associations {
			if !allowed[a.Target] {
				continue
			}
			if a.Through != "" && !allowed[a.Through] {
				continue
			}
			if !fieldAllowed(d.Name, a.Name, cfg.AllowFields, cfg.DenyFields) && a.Name != "" {
				continue
			}
			assocs = append(assocs, a)
		}
		d.Associations = assocs
	}

	c.Entities = kept
}

func entityAllowed(name string, allow, deny []string) bool {
	if matchesAny(name, deny) {
		return false
	}
	if len(allow) == 0 {
		return true
	}
	return matchesAny(name, allow)
}

func fieldAllowed(entityName, field string, allow, deny map[string][]string) bool {
	if matchesAny(field, mergePatterns(deny, entityName)) {
		return false
	}
	allowPatterns := mergePatterns(allow, entityName)
	if len(allowPatterns) == 0 {
		return true
	}
	return matchesAny(field, allowPatterns)
}

func mergePatterns(patterns map[string][]string, entityName string) []string {
	if patterns == nil {
		return nil
	}
	combined := append([]string{}, patterns["*"]...)
	combined = append(combined, patterns[entityName]...)
	return slices.Compact(combined)
}

func matchesAny(value string, patterns []string) bool {
	value = strings.ToLower(value)
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		// matching should be case-insensitive
		ok, err := path.Match(strings.ToLower(pattern), value)
		if err != nil {
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

// MutationEntityAllowed reports whether an entity is eligible for mutations.
func MutationEntityAllowed(name string, cfg Config) bool {
	return !matchesAny(name, cfg.DenyMutationEntities)
}

// MutationFieldAllowed reports whether a field is eligible for mutation inputs.
func MutationFieldAllowed(entityName, field string, cfg Config) bool {
	return !matchesAny(field, mergePatterns(cfg.DenyMutationFields, entityName))
}

// RootFieldAllowed reports whether a generated root field survives the
// deny list.
func RootFieldAllowed(name string, cfg Config) bool {
	return !matchesAny(name, cfg.DenyRootFields)
}
