package schemagen

import (
	"entity-graphql/internal/entity"
	"entity-graphql/internal/naming"
)

// synthesizeImplicit adds a ToOneOwning association for every reference
// field that no declared association already covers. It runs over all
// descriptors before any type is generated.
func synthesizeImplicit(c *entity.Catalog) {
	for _, d := range c.Entities {
		for _, f := range d.Fields {
			if f.References == "" || coversField(d, f) {
				continue
			}
			if _, ok := c.Entity(f.References); !ok {
				continue
			}
			name := naming.ImplicitAssociationName(f.Name)
			if name == "" || name == f.Name || d.HasField(name) {
				continue
			}
			if _, taken := d.Association(name); taken {
				continue
			}
			d.Associations = append(d.Associations, entity.Association{
				Name:       name,
				Kind:       entity.ToOneOwning,
				Target:     f.References,
				ForeignKey: f.Name,
				Implicit:   true,
			})
		}
	}
}

func coversField(d *entity.Descriptor, f entity.Field) bool {
	for _, a := range d.Associations {
		if a.Kind != entity.ToOneOwning || a.Target != f.References {
			continue
		}
		// An association without an explicit key defaults to <name>Id.
		if a.ForeignKey == f.Name || (a.ForeignKey == "" && a.Name+"Id" == f.Name) {
			return true
		}
		if a.ForeignKey == "" && a.Name == "" {
			return true
		}
	}
	return false
}
