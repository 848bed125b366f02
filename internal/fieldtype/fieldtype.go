// Package fieldtype maps descriptor type tokens such as "string", "[id]!" or
// "[int!]!" to GraphQL type references. This keeps type mapping consistent
// across schema generation, custom operations and virtual fields.
package fieldtype

import (
	"strings"
	"unicode"

	"github.com/graphql-go/graphql"

	"entity-graphql/internal/scalars"
)

// Kind is the category of base type a token resolves to.
type Kind int

const (
	// KindString is also the fallback for unknown names.
	KindString Kind = iota
	KindInt
	KindFloat
	KindBoolean
	KindID
	KindJSON
	KindDate
	// KindNamed is a caller-declared custom type, resolved by name.
	KindNamed
)

// Fallback records why a token fell back to String.
type Fallback int

const (
	FallbackNone Fallback = iota
	// FallbackUnknownScalar is a lower-case name that is not a built-in scalar.
	FallbackUnknownScalar
	// FallbackUnresolvedCustom is a capitalised name that looks like a custom
	// type but was never declared.
	FallbackUnresolvedCustom
)

// Lookup reports whether a custom named type exists.
type Lookup func(name string) bool

// Ref is a parsed type token.
type Ref struct {
	Kind              Kind
	Name              string
	IsList            bool
	IsRequired        bool
	IsElementRequired bool
	Fallback          Fallback
}

// Parse parses a type token. It never fails: unknown names map to String and
// the Fallback field says why.
func Parse(token string, known Lookup) Ref {
	ref := Ref{}
	base := strings.TrimSpace(token)

	if strings.HasSuffix(base, "!") {
		ref.IsRequired = true
		base = strings.TrimSpace(base[:len(base)-1])
	}
	if strings.HasPrefix(base, "[") && strings.HasSuffix(base, "]") {
		ref.IsList = true
		base = strings.TrimSpace(base[1 : len(base)-1])
		if strings.HasSuffix(base, "!") {
			ref.IsElementRequired = true
			base = strings.TrimSpace(base[:len(base)-1])
		}
	}
	ref.Name = base

	switch strings.ToLower(base) {
	case "int", "integer":
		ref.Kind = KindInt
	case "float", "double", "decimal":
		ref.Kind = KindFloat
	case "boolean", "bool":
		ref.Kind = KindBoolean
	case "string", "text":
		ref.Kind = KindString
	case "id":
		ref.Kind = KindID
	case "json":
		ref.Kind = KindJSON
	case "date", "datetime":
		ref.Kind = KindDate
	default:
		if known != nil && known(base) {
			ref.Kind = KindNamed
			return ref
		}
		ref.Kind = KindString
		if startsUpper(base) {
			ref.Fallback = FallbackUnresolvedCustom
		} else {
			ref.Fallback = FallbackUnknownScalar
		}
	}
	return ref
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}

// String returns the GraphQL scalar name for built-in kinds and the declared
// name for named types.
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindBoolean:
		return "Boolean"
	case KindID:
		return "ID"
	case KindJSON:
		return "JSON"
	case KindDate:
		return "Date"
	case KindNamed:
		return "Named"
	default:
		return "String"
	}
}

// Scalar returns the GraphQL scalar for a built-in kind. It returns nil for
// KindNamed, which the caller resolves.
func (k Kind) Scalar() graphql.Type {
	switch k {
	case KindInt:
		return graphql.Int
	case KindFloat:
		return graphql.Float
	case KindBoolean:
		return graphql.Boolean
	case KindID:
		return graphql.ID
	case KindJSON:
		return scalars.JSON()
	case KindDate:
		return scalars.Date()
	case KindNamed:
		return nil
	default:
		return graphql.String
	}
}

// Wrap applies the list and non-null modifiers of r around base.
func (r Ref) Wrap(base graphql.Type) graphql.Type {
	t := base
	if r.IsList {
		if r.IsElementRequired {
			t = graphql.NewNonNull(t)
		}
		t = graphql.NewList(t)
	}
	if r.IsRequired {
		t = graphql.NewNonNull(t)
	}
	return t
}

// Optional returns a copy of r without the outer required modifier.
func (r Ref) Optional() Ref {
	r.IsRequired = false
	return r
}

// Required returns a copy of r with the outer required modifier set.
func (r Ref) Required() Ref {
	r.IsRequired = true
	return r
}
