package db

import (
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
)

var schemaPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidSchema rejects schema names that are not plain identifiers. Schema
// names end up in SET search_path, which cannot take bind parameters.
func ValidSchema(schema string) error {
	if len(schema) > 63 || !schemaPattern.MatchString(schema) {
		return fmt.Errorf("invalid schema name %q", schema)
	}
	return nil
}

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}
