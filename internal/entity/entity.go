// Package entity defines the declarative descriptors that drive schema
// generation and resolver behavior.
package entity

import (
	"strings"
)

// Record is a single entity row keyed by field name.
type Record = map[string]interface{}

// Timestamp fields maintained by the stores and never accepted as input.
const (
	CreatedAtField = "createdAt"
	UpdatedAtField = "updatedAt"
	DeletedAtField = "deletedAt"
)

// RelationKind is the cardinality and key ownership of an association.
type RelationKind string

const (
	// ToOne: the target holds a foreign key to the source.
	ToOne RelationKind = "toOne"
	// ToOneOwning: the source holds a foreign key to the target.
	ToOneOwning RelationKind = "toOneOwning"
	// ToMany: many targets hold a foreign key to the source.
	ToMany RelationKind = "toMany"
	// ToManyThrough: a through entity links source and target.
	ToManyThrough RelationKind = "toManyThrough"
)

// IsList reports whether the association yields many targets.
func (k RelationKind) IsList() bool {
	return k == ToMany || k == ToManyThrough
}

// Valid reports whether k is a known kind.
func (k RelationKind) Valid() bool {
	switch k {
	case ToOne, ToOneOwning, ToMany, ToManyThrough:
		return true
	}
	return false
}

// Field describes one scalar attribute.
type Field struct {
	Name          string      `yaml:"name"`
	Column        string      `yaml:"column"`
	Type          string      `yaml:"type"`
	Required      bool        `yaml:"required"`
	PrimaryKey    bool        `yaml:"primaryKey"`
	AutoIncrement bool        `yaml:"autoIncrement"`
	Default       interface{} `yaml:"default"`
	References    string      `yaml:"references"`
	Description   string      `yaml:"description"`
}

// HasDefault reports whether the field declares a default value.
func (f Field) HasDefault() bool {
	return f.Default != nil
}

// ColumnName returns the storage column, defaulting to the field name.
func (f Field) ColumnName() string {
	if f.Column != "" {
		return f.Column
	}
	return f.Name
}

// Association links a source entity to a target entity.
type Association struct {
	// Name is the GraphQL field name. Empty names are derived from the target.
	Name       string       `yaml:"name"`
	Kind       RelationKind `yaml:"kind"`
	Target     string       `yaml:"target"`
	Through    string       `yaml:"through"`
	ForeignKey string       `yaml:"foreignKey"`
	// OtherKey is the through-entity column pointing at the target.
	OtherKey    string `yaml:"otherKey"`
	Description string `yaml:"description"`

	// Implicit marks associations synthesized from reference fields.
	Implicit bool `yaml:"-"`

	derivedName bool
}

// Descriptor declares one entity.
type Descriptor struct {
	Name         string        `yaml:"name"`
	Table        string        `yaml:"table"`
	Singular     string        `yaml:"singular"`
	Plural       string        `yaml:"plural"`
	FrozenName   bool          `yaml:"frozenTableName"`
	Paranoid     bool          `yaml:"paranoid"`
	Description  string        `yaml:"description"`
	Fields       []Field       `yaml:"fields"`
	Associations []Association `yaml:"associations"`
	Graph        GraphOptions  `yaml:"graphql"`
}

// TableName returns the storage table, defaulting to the entity name.
func (d *Descriptor) TableName() string {
	if d.Table != "" {
		return d.Table
	}
	return d.Name
}

// Field looks up a scalar field by name.
func (d *Descriptor) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// HasField reports whether name is a declared scalar field.
func (d *Descriptor) HasField(name string) bool {
	_, ok := d.Field(name)
	return ok
}

// Association looks up an association by field name.
func (d *Descriptor) Association(name string) (Association, bool) {
	for _, a := range d.Associations {
		if a.Name == name {
			return a, true
		}
	}
	return Association{}, false
}

// PrimaryKeys returns the declared primary key fields, defaulting to "id".
func (d *Descriptor) PrimaryKeys() []string {
	var keys []string
	for _, f := range d.Fields {
		if f.PrimaryKey {
			keys = append(keys, f.Name)
		}
	}
	if len(keys) == 0 {
		keys = []string{"id"}
	}
	return keys
}

// PrimaryKey returns the first primary key field. Associations link through it.
func (d *Descriptor) PrimaryKey() string {
	return d.PrimaryKeys()[0]
}

// IsTimestamp reports whether name is a store-maintained timestamp field.
func (d *Descriptor) IsTimestamp(name string) bool {
	switch name {
	case CreatedAtField, UpdatedAtField:
		return true
	case DeletedAtField:
		return d.Paranoid
	}
	return false
}

// ScalarValues returns the subset of rec naming declared scalar fields.
func (d *Descriptor) ScalarValues(rec Record) Record {
	out := make(Record, len(rec))
	for _, f := range d.Fields {
		if v, ok := rec[f.Name]; ok {
			out[f.Name] = v
		}
	}
	return out
}

// PrimaryKeyValues extracts the primary key values of rec. The second return
// is false when any key is missing or empty.
func (d *Descriptor) PrimaryKeyValues(rec Record) (Record, bool) {
	out := make(Record)
	complete := true
	for _, pk := range d.PrimaryKeys() {
		v, ok := rec[pk]
		if !ok || IsEmpty(v) {
			complete = false
			continue
		}
		out[pk] = v
	}
	return out, complete
}

// IsEmpty reports whether v counts as absent for key checks: nil, the empty
// string, numeric zero or false.
func IsEmpty(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case bool:
		return !x
	case int:
		return x == 0
	case int32:
		return x == 0
	case int64:
		return x == 0
	case uint64:
		return x == 0
	case float64:
		return x == 0
	}
	return false
}

// Clone returns a copy of d whose slices can be modified independently.
// Hook tables and custom operations are shared.
func (d *Descriptor) Clone() *Descriptor {
	c := *d
	c.Fields = append([]Field(nil), d.Fields...)
	c.Associations = append([]Association(nil), d.Associations...)
	return &c
}
