package entity

import (
	"fmt"
	"sort"
	"strings"

	"github.com/graphql-go/graphql"

	"entity-graphql/internal/naming"
)

// ShapeKind distinguishes enum and object custom types.
type ShapeKind string

const (
	ShapeEnum   ShapeKind = "enum"
	ShapeObject ShapeKind = "object"
)

// EnumValue is one ordered enum member.
type EnumValue struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// ShapeField is one field of an object shape.
type ShapeField struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
}

// CustomType declares a named enum or object shape that type tokens can
// reference.
type CustomType struct {
	Name        string       `yaml:"name"`
	Kind        ShapeKind    `yaml:"kind"`
	Input       bool         `yaml:"input"`
	Description string       `yaml:"description"`
	Values      []EnumValue  `yaml:"values"`
	Fields      []ShapeField `yaml:"fields"`
}

// IsInput reports whether an object shape compiles to an input object.
func (t CustomType) IsInput() bool {
	return t.Input || strings.HasSuffix(t.Name, "Input") || strings.HasSuffix(t.Name, "INPUT")
}

// Catalog is the full set of declarations for one schema build. The caller
// owns it; a build works on a Clone.
type Catalog struct {
	Entities []*Descriptor `yaml:"entities"`
	Types    []CustomType  `yaml:"types"`
	// IncludeArguments adds extra arguments (name -> type token) to every
	// generated root query.
	IncludeArguments map[string]string `yaml:"includeArguments"`
	// Scalars are caller-declared custom scalars referenced by name.
	Scalars map[string]*graphql.Scalar `yaml:"-"`

	index map[string]*Descriptor
}

// NewCatalog builds a catalog from descriptors.
func NewCatalog(entities ...*Descriptor) *Catalog {
	c := &Catalog{Entities: entities}
	c.reindex()
	return c
}

func (c *Catalog) reindex() {
	c.index = make(map[string]*Descriptor, len(c.Entities))
	for _, d := range c.Entities {
		c.index[d.Name] = d
	}
}

// Entity returns the descriptor named name.
func (c *Catalog) Entity(name string) (*Descriptor, bool) {
	if c.index == nil || len(c.index) != len(c.Entities) {
		c.reindex()
	}
	d, ok := c.index[name]
	return d, ok
}

// Type returns the custom type named name.
func (c *Catalog) Type(name string) (CustomType, bool) {
	for _, t := range c.Types {
		if t.Name == name {
			return t, true
		}
	}
	return CustomType{}, false
}

// Knows reports whether name is an entity, custom type or custom scalar.
func (c *Catalog) Knows(name string) bool {
	if _, ok := c.Entity(name); ok {
		return true
	}
	if _, ok := c.Type(name); ok {
		return true
	}
	_, ok := c.Scalars[name]
	return ok
}

// Clone deep-copies the descriptor lists so a build can synthesize
// associations without touching the caller's catalog.
func (c *Catalog) Clone() *Catalog {
	out := &Catalog{
		Types:            append([]CustomType(nil), c.Types...),
		IncludeArguments: c.IncludeArguments,
		Scalars:          c.Scalars,
	}
	for _, d := range c.Entities {
		out.Entities = append(out.Entities, d.Clone())
	}
	out.reindex()
	return out
}

// Names returns the entity names in declaration order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Entities))
	for _, d := range c.Entities {
		names = append(names, d.Name)
	}
	return names
}

// Normalize fills derived names and key defaults and validates references
// between descriptors. It is idempotent.
func (c *Catalog) Normalize(namer *naming.Namer) error {
	if namer == nil {
		namer = naming.Default()
	}
	seen := make(map[string]bool, len(c.Entities))
	for _, d := range c.Entities {
		if d.Name == "" {
			return fmt.Errorf("entity without a name")
		}
		if seen[d.Name] {
			return fmt.Errorf("duplicate entity %q", d.Name)
		}
		seen[d.Name] = true
		if d.Singular == "" {
			d.Singular = d.Name
		}
		if d.Plural == "" {
			d.Plural = namer.Pluralize(d.Singular)
		}
		for i := range d.Fields {
			if d.Fields[i].Name == "" {
				return fmt.Errorf("entity %s: field %d has no name", d.Name, i)
			}
			if d.Fields[i].Type == "" {
				d.Fields[i].Type = "string"
			}
		}
	}
	c.reindex()

	for _, d := range c.Entities {
		names := make(map[string]bool, len(d.Associations))
		for i := range d.Associations {
			a := &d.Associations[i]
			if err := c.normalizeAssociation(d, a); err != nil {
				return fmt.Errorf("entity %s: %w", d.Name, err)
			}
			if names[a.Name] {
				return fmt.Errorf("entity %s: duplicate association %q", d.Name, a.Name)
			}
			if d.HasField(a.Name) {
				return fmt.Errorf("entity %s: association %q collides with a field", d.Name, a.Name)
			}
			names[a.Name] = true
		}
	}

	for _, t := range c.Types {
		if t.Kind != ShapeEnum && t.Kind != ShapeObject {
			return fmt.Errorf("custom type %s: unknown kind %q", t.Name, t.Kind)
		}
		if _, clash := c.Entity(t.Name); clash {
			return fmt.Errorf("custom type %s collides with an entity", t.Name)
		}
	}
	return nil
}

func (c *Catalog) normalizeAssociation(d *Descriptor, a *Association) error {
	if a.Kind == "" {
		a.Kind = ToOneOwning
	}
	if !a.Kind.Valid() {
		return fmt.Errorf("association %s: unknown kind %q", a.Name, a.Kind)
	}
	target, ok := c.Entity(a.Target)
	if !ok {
		return fmt.Errorf("association %s: unknown target %q", a.Name, a.Target)
	}
	if a.Name == "" {
		a.derivedName = true
		if a.Kind.IsList() {
			a.Name = naming.LowerFirst(target.Plural)
		} else {
			a.Name = naming.LowerFirst(target.Singular)
		}
	}
	switch a.Kind {
	case ToOneOwning:
		if a.ForeignKey == "" {
			a.ForeignKey = a.Name + "Id"
		}
	case ToOne, ToMany:
		if a.ForeignKey == "" {
			a.ForeignKey = naming.LowerFirst(d.Singular) + "Id"
		}
	case ToManyThrough:
		if a.Through == "" {
			return fmt.Errorf("association %s: through entity required", a.Name)
		}
		if _, ok := c.Entity(a.Through); !ok {
			return fmt.Errorf("association %s: unknown through entity %q", a.Name, a.Through)
		}
		if a.ForeignKey == "" {
			a.ForeignKey = naming.LowerFirst(d.Singular) + "Id"
		}
		if a.OtherKey == "" {
			a.OtherKey = naming.LowerFirst(target.Singular) + "Id"
		}
	}
	return nil
}

// Suffix returns the accessor suffix for a (getComments, countComments, ...).
func (c *Catalog) Suffix(a Association) string {
	target, ok := c.Entity(a.Target)
	if !ok {
		return naming.UpperFirst(a.Name)
	}
	alias := a.Name
	if a.Implicit || a.derivedName {
		alias = ""
	}
	return naming.AssociationSuffix(alias, target.Singular, target.Plural, a.Kind.IsList(), target.FrozenName)
}

// ThroughTargetField returns the key under which a through payload nests
// the target instance: the name of the through entity's to-one association
// pointing at target, or the lower-cased target name.
func (c *Catalog) ThroughTargetField(through, target *Descriptor) string {
	for _, a := range through.Associations {
		if a.Target == target.Name && !a.Kind.IsList() {
			return a.Name
		}
	}
	return naming.LowerFirst(target.Singular)
}

// IncludeArgumentNames returns the include argument names sorted.
func (c *Catalog) IncludeArgumentNames() []string {
	names := make([]string, 0, len(c.IncludeArguments))
	for name := range c.IncludeArguments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
