package migration

import "embed"

// Dir is the directory inside Files that holds the migration scripts.
const Dir = "sql"

// Files holds the roster schema migrations.
//
//go:embed sql/*.sql
var Files embed.FS
