package naming

import "strings"

// graphqlReservedTypeWords contains GraphQL keywords and built-in types
// that should not be used as type names.
var graphqlReservedTypeWords = map[string]bool{
	"query":        true,
	"mutation":     true,
	"subscription": true,
	"type":         true,
	"schema":       true,
	"scalar":       true,
	"enum":         true,
	"input":        true,
	"interface":    true,
	"union":        true,
	"fragment":     true,
	"directive":    true,
	"extend":       true,
	"implements":   true,
	"on":           true,

	"int":      true,
	"float":    true,
	"string":   true,
	"boolean":  true,
	"id":       true,
	"json":     true,
	"datetime": true,

	"true":  true,
	"false": true,
	"null":  true,
}

func isReservedTypeName(name string) bool {
	lowerName := strings.ToLower(name)
	if strings.HasPrefix(lowerName, "__") {
		return true
	}
	if graphqlReservedTypeWords[lowerName] {
		return true
	}
	return isReservedPattern(name)
}

func isReservedFieldName(name string) bool {
	if strings.HasPrefix(name, "__") {
		return true
	}
	return isReservedPattern(name)
}

// isReservedPattern reports names that clash with the generated metadata marker.
func isReservedPattern(name string) bool {
	return name == MetaFieldName
}
