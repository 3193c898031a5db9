package store

import (
	_ "embed"
)

// schemaSQL creates the masters and requests tables. Every statement is
// idempotent so it may be applied on each start.
//
//go:embed schema.sql
var schemaSQL string

// SchemaSQL returns the DDL applied by EnsureSchema
func SchemaSQL() string {
	return schemaSQL
}
