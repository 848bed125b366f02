package entity

import (
	"context"
	"fmt"

	"github.com/graphql-go/graphql"
	"gopkg.in/yaml.v3"

	"entity-graphql/internal/pubsub"
)

// Operation names an entity operation. It keys hook tables, aliases,
// attribute rules and exclusion lists.
type Operation string

const (
	OpFetch        Operation = "fetch"
	OpCount        Operation = "count"
	OpByPk         Operation = "byPk"
	OpDefault      Operation = "default"
	OpCreate       Operation = "create"
	OpUpdate       Operation = "update"
	OpDestroy      Operation = "destroy"
	OpUpsert       Operation = "upsert"
	OpBulkCreate   Operation = "bulkCreate"
	OpBulkUpdate   Operation = "bulkUpdate"
	OpSubscription Operation = "subscription"
)

// GraphOptions customises how an entity is exposed.
type GraphOptions struct {
	Attributes AttributeRules       `yaml:"attributes"`
	Scope      *Scope               `yaml:"scope"`
	Alias      map[Operation]string `yaml:"alias"`
	Bulk       Bulk                 `yaml:"bulk"`

	ExcludeQueries       []Operation `yaml:"excludeQueries"`
	ExcludeMutations     []Operation `yaml:"excludeMutations"`
	ExcludeSubscriptions []Operation `yaml:"excludeSubscriptions"`

	Queries       map[string]CustomOperation `yaml:"-"`
	Mutations     map[string]CustomOperation `yaml:"-"`
	Subscriptions map[string]CustomOperation `yaml:"-"`

	Before    Hooks `yaml:"-"`
	Extend    Hooks `yaml:"-"`
	Overwrite Hooks `yaml:"-"`

	// SubsFilter holds subscription predicates keyed by filter name.
	// "default" applies to the generated entity subscription.
	SubsFilter map[string]EventFilter `yaml:"-"`
}

// Excluded reports whether op appears in list.
func Excluded(list []Operation, op Operation) bool {
	for _, o := range list {
		if o == op {
			return true
		}
	}
	return false
}

// AttributeRules filters scalar fields per operation and declares virtual
// fields. Exclude and Only are keyed by fetch, create or update.
type AttributeRules struct {
	Exclude map[Operation][]string `yaml:"exclude"`
	Only    map[Operation][]string `yaml:"only"`
	// Include maps virtual field names to type tokens.
	Include map[string]string `yaml:"include"`
}

// Allowed reports whether field is exposed for op.
func (a AttributeRules) Allowed(op Operation, field string) bool {
	if only, ok := a.Only[op]; ok && len(only) > 0 {
		if !contains(only, field) {
			return false
		}
	}
	return !contains(a.Exclude[op], field)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Scope names a store scope applied to every fetch. A scope with an ArgPath
// passes the argument at that dotted path (or Default) to the scope.
type Scope struct {
	Name    string      `yaml:"name"`
	ArgPath string      `yaml:"arg"`
	Default interface{} `yaml:"default"`
}

// UnmarshalYAML accepts either a bare scope name or a mapping.
func (s *Scope) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		s.Name = node.Value
		return nil
	}
	type plain Scope
	return node.Decode((*plain)(s))
}

// BulkFlag enables a bulk operation. A non-empty Tag names the field that
// receives a shared correlation id and makes the operation return records.
type BulkFlag struct {
	Enabled bool
	Tag     string
}

// UnmarshalYAML accepts true/false or a tag field name.
func (b *BulkFlag) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("bulk option must be a boolean or a field name (line %d)", node.Line)
	}
	if node.Tag == "!!bool" {
		var enabled bool
		if err := node.Decode(&enabled); err != nil {
			return err
		}
		b.Enabled = enabled
		return nil
	}
	b.Enabled = node.Value != ""
	b.Tag = node.Value
	return nil
}

// Bulk holds the bulk operation switches.
type Bulk struct {
	Create BulkFlag `yaml:"create"`
	Update BulkFlag `yaml:"update"`
}

// HookInput is passed to hooks and custom operation resolvers.
type HookInput struct {
	Entity    *Descriptor
	Operation Operation
	Source    interface{}
	Args      map[string]interface{}
	Info      graphql.ResolveInfo

	// Payload is the mutation payload; before hooks may modify it in place.
	Payload Record
	// Items holds the payloads of a bulk operation.
	Items []Record
	// Where is the resolved mutation filter.
	Where map[string]interface{}
	// Previous is the pre-write snapshot for update and destroy.
	Previous Record
	// Result is the value produced so far; extend hooks replace it.
	Result interface{}
	// Options points at the fetch options (*store.FindOptions) for fetch hooks.
	Options interface{}
}

// Hook customises one phase of an operation.
type Hook func(ctx context.Context, in *HookInput) (interface{}, error)

// Hooks maps operations to hooks.
type Hooks map[Operation]Hook

// Lookup returns the hook for op, if any.
func (h Hooks) Lookup(op Operation) (Hook, bool) {
	if h == nil {
		return nil, false
	}
	hook, ok := h[op]
	return hook, ok && hook != nil
}

// EventFilter decides whether a subscriber receives an event.
type EventFilter func(ctx context.Context, ev pubsub.ChangeEvent, args map[string]interface{}) bool

// CustomOperation declares a caller-supplied query, mutation or subscription.
// Input and Output are type tokens; Input may be empty.
type CustomOperation struct {
	Input       string
	Output      string
	Description string
	Resolve     Hook
	// Subscribe returns the event names to listen on; subscriptions only.
	Subscribe func(ctx context.Context, args map[string]interface{}) ([]string, error)
	Filter    EventFilter
}
