package naming

import (
	"log/slog"
	"strings"
)

// MetaFieldName is the reserved marker field appended to every generated type.
const MetaFieldName = "_SeqGQLMeta"

// Root operation groups used for collision tracking.
const (
	RootQuery        = "Query"
	RootMutation     = "Mutation"
	RootSubscription = "Subscription"
)

// Namer provides all name transformation functions for converting entity
// descriptor names to GraphQL names. It handles pluralization, reserved
// words, and collisions.
type Namer struct {
	config   Config
	logger   *slog.Logger
	resolver *CollisionResolver
}

// New creates a Namer with the given configuration
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Namer{
		config:   cfg,
		logger:   logger,
		resolver: NewCollisionResolver(logger),
	}
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// Reset clears the collision resolver state, allowing the namer to be reused
// for a new schema build.
func (n *Namer) Reset() {
	n.resolver = NewCollisionResolver(n.logger)
}

// ToGraphQLTypeName converts an entity name to a GraphQL type name (PascalCase).
// Example: "blog_post" -> "BlogPost"
func (n *Namer) ToGraphQLTypeName(entityName string) string {
	return n.validateTypeAndSuffix(toPascalCase(entityName))
}

// ToGraphQLFieldName converts a snake_case name to a GraphQL field (camelCase).
// Example: "user_name" -> "userName"
func (n *Namer) ToGraphQLFieldName(name string) string {
	return toCamelCase(name)
}

// FieldName validates a descriptor field name against reserved names.
func (n *Namer) FieldName(name string) string {
	return n.validateFieldAndSuffix(name)
}

// AssociationSuffix returns the accessor suffix used for association
// operations (get{Suffix}, count{Suffix}, add{Suffix}, set{Suffix}).
// An explicit alias wins; list associations use the plural form unless
// the target freezes its name.
// Example: ("", "Comment", "Comments", true, false) -> "Comments"
func AssociationSuffix(alias, singular, plural string, list, frozen bool) string {
	if alias != "" {
		return UpperFirst(alias)
	}
	if list && !frozen && plural != "" {
		return UpperFirst(plural)
	}
	return UpperFirst(singular)
}

// ImplicitAssociationName derives the association name for a reference
// field that has no declared association.
// Example: "authorId" -> "author", "author_id" -> "author"
func ImplicitAssociationName(field string) string {
	name := field
	for _, suffix := range []string{"_id", "Id", "ID"} {
		if len(name) > len(suffix) && strings.HasSuffix(name, suffix) {
			name = name[:len(name)-len(suffix)]
			break
		}
	}
	return LowerFirst(toCamelCase(name))
}

// InputTypeName builds the input type name for an entity type.
// Example: ("Post", false, false) -> "PostAddInput"
// Example: ("PostTag", false, true) -> "PostTagAddInputConnection"
func InputTypeName(typeName string, update, connection bool) string {
	name := typeName
	if update {
		name += "Edit"
	} else {
		name += "Add"
	}
	name += "Input"
	if connection {
		name += "Connection"
	}
	return name
}

// ConnectionTypeName names the connection wrapper for a list association.
// Example: ("Post", "comments") -> "PostCommentsConnection"
func ConnectionTypeName(ownerType, field string) string {
	return ownerType + UpperFirst(field) + "Connection"
}

// EdgeTypeName names the edge type of a list association connection.
func EdgeTypeName(ownerType, field string) string {
	return ownerType + UpperFirst(field) + "Edge"
}

// SubscriptionOutputName names the payload type of an entity subscription.
func SubscriptionOutputName(typeName string) string {
	return typeName + "SubscriptionOutput"
}

// RootFieldName builds a root operation field name. An alias replaces the
// generated name entirely.
// Example: ("Post", "Get", "") -> "postGet"
// Example: ("Post", "Get", "all_posts") -> "allPosts"
func RootFieldName(entityName, suffix, alias string) string {
	if alias != "" {
		return LowerFirst(toCamelCase(alias))
	}
	return LowerFirst(toPascalCase(entityName)) + suffix
}

// RegisterType registers an entity name and returns the resolved GraphQL type name.
// If a collision occurs, returns a suffixed name and logs a warning.
func (n *Namer) RegisterType(entityName string) string {
	return n.resolver.RegisterType(n.ToGraphQLTypeName(entityName), entityName)
}

// RegisterField registers a field on a type and returns the resolved name.
func (n *Namer) RegisterField(typeName, fieldName, source string) string {
	return n.resolver.RegisterField(typeName, n.validateFieldAndSuffix(fieldName), source)
}

// RegisterRootField registers a root operation field and returns the resolved name.
func (n *Namer) RegisterRootField(root, fieldName, entityName string) string {
	return n.resolver.RegisterRoot(root, n.validateFieldAndSuffix(fieldName), entityName)
}

func (n *Namer) validateTypeAndSuffix(name string) string {
	if isReservedTypeName(name) {
		safeName := name + "_"
		n.logger.Warn("GraphQL name conflicts with reserved word, auto-suffixed",
			slog.String("original", name),
			slog.String("renamed", safeName),
		)
		return safeName
	}
	return name
}

func (n *Namer) validateFieldAndSuffix(name string) string {
	if isReservedFieldName(name) {
		safeName := name + "_"
		n.logger.Warn("GraphQL name conflicts with reserved word, auto-suffixed",
			slog.String("original", name),
			slog.String("renamed", safeName),
		)
		return safeName
	}
	return name
}

// UpperFirst upper-cases the first byte of s.
func UpperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// LowerFirst lower-cases the first byte of s.
func LowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// toPascalCase converts snake_case to PascalCase
func toPascalCase(s string) string {
	parts := strings.Split(s, "_")
	for i, part := range parts {
		parts[i] = UpperFirst(part)
	}
	return strings.Join(parts, "")
}

// toCamelCase converts snake_case to camelCase
func toCamelCase(s string) string {
	parts := strings.Split(s, "_")
	for i := 1; i < len(parts); i++ {
		parts[i] = UpperFirst(parts[i])
	}
	return strings.Join(parts, "")
}
