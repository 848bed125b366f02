// Package sqlutil provides SQL utility functions.
package sqlutil

import "strings"

// QuoteIdentifier quotes a SQL identifier (table name, column name, etc.)
// with backticks and escapes any backticks within the identifier.
func QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, "`", "``")
	return "`" + escaped + "`"
}

// QualifiedIdentifier quotes alias.name. An empty alias yields the plain
// quoted name.
func QualifiedIdentifier(alias, name string) string {
	if alias == "" {
		return QuoteIdentifier(name)
	}
	return QuoteIdentifier(alias) + "." + QuoteIdentifier(name)
}
