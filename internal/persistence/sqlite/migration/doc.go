// Package migration applies the roster's versioned SQLite schema.
//
// Migration files are embedded into the binary under sql/ and follow the
// naming convention {version}_{description}.sql (e.g. "001_initial_schema.sql").
// Applied versions are tracked in schema_migrations together with the checksum
// of the file that produced them, so an edited migration is reported instead
// of silently skipped.
//
// Example usage:
//
//	manager := NewMigrationManager(NewScanner(Files), NewSQLiteExecutor(db), Dir, logger)
//	if err := manager.RunMigrations(ctx); err != nil {
//		return fmt.Errorf("migrate: %w", err)
//	}
package migration
