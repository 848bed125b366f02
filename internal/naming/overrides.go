// Package naming derives GraphQL type, field and root operation names from
// entity descriptors and tracks collisions within one schema build.
package naming

import "github.com/jinzhu/inflection"

// Config carries inflection overrides. Keys match whole words exactly.
type Config struct {
	PluralOverrides   map[string]string `mapstructure:"plural_overrides"`   // e.g. Staff: Staff
	SingularOverrides map[string]string `mapstructure:"singular_overrides"` // e.g. Data: Datum
}

func DefaultConfig() Config {
	return Config{PluralOverrides: map[string]string{}, SingularOverrides: map[string]string{}}
}

// Pluralize returns the override for word when present, else the English plural.
func (n *Namer) Pluralize(word string) string {
	return inflect(n.config.PluralOverrides, word, inflection.Plural)
}

// Singularize is the inverse of Pluralize.
func (n *Namer) Singularize(word string) string {
	return inflect(n.config.SingularOverrides, word, inflection.Singular)
}

func inflect(overrides map[string]string, word string, fallback func(string) string) string {
	if v, ok := overrides[word]; ok {
		return v
	}
	return fallback(word)
}
