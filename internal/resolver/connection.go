package resolver

import (
	"entity-graphql/internal/cursor"
	"entity-graphql/internal/entity"
	"entity-graphql/internal/store"
)

// Connection is the resolved value of a to-many association field.
type Connection struct {
	Nodes    []entity.Record
	Accessor store.Accessor
	Parent   entity.Record
	// Options are the filters the page was read with; count reuses them.
	Options  store.FindOptions
	OrderKey string
	HasNext  bool
}

func newConnection(rows []entity.Record, acc store.Accessor, parent entity.Record, opts store.FindOptions, orderKey string, hasNext bool) *Connection {
	if rows == nil {
		rows = []entity.Record{}
	}
	return &Connection{
		Nodes:    rows,
		Accessor: acc,
		Parent:   parent,
		Options:  opts,
		OrderKey: orderKey,
		HasNext:  hasNext,
	}
}

// Total is the number of edges on this page.
func (c *Connection) Total() int {
	return len(c.Nodes)
}

// Edges returns one edge per node. Edges of a through association carry the
// through row under the through entity's name.
func (c *Connection) Edges() []map[string]interface{} {
	edges := make([]map[string]interface{}, 0, len(c.Nodes))
	throughKey := c.Accessor.ThroughKey()
	for i, node := range c.Nodes {
		edge := map[string]interface{}{
			"node":   node,
			"cursor": c.cursorAt(i),
		}
		if throughKey != "" {
			edge[throughKey] = node[throughKey]
		}
		edges = append(edges, edge)
	}
	return edges
}

// PageInfo returns the pageInfo object.
func (c *Connection) PageInfo() map[string]interface{} {
	info := map[string]interface{}{
		"hasNextPage":     c.HasNext,
		"hasPreviousPage": c.Options.Offset > 0,
		"startCursor":     nil,
		"endCursor":       nil,
	}
	if len(c.Nodes) > 0 {
		info["startCursor"] = c.cursorAt(0)
		info["endCursor"] = c.cursorAt(len(c.Nodes) - 1)
	}
	return info
}

func (c *Connection) cursorAt(i int) string {
	return cursor.EncodeCursor(c.Accessor.Target.Name, c.OrderKey, c.Options.Offset+i)
}
