package sqlite

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/shift-roster/internal/persistence/sqlite/migration"
)

// Storage bundles the connection pool with every SQLite repository.
type Storage struct {
	pool *ConnectionPool

	People   *PersonRepository
	History  *HistoryRepository
	Profiles *ProfileRepository
	Sessions *SessionRepository
}

// Open opens the database at path with the default configuration.
func Open(path string) (*Storage, error) {
	return OpenWithConfig(migration.DefaultSQLiteConfig(path))
}

// OpenWithConfig opens the database described by cfg.
func OpenWithConfig(cfg migration.SQLiteConfig) (*Storage, error) {
	pool, err := NewConnectionPool(cfg)
	if err != nil {
		return nil, err
	}
	return &Storage{
		pool:     pool,
		People:   NewPersonRepository(pool),
		History:  NewHistoryRepository(pool),
		Profiles: NewProfileRepository(pool),
		Sessions: NewSessionRepository(pool),
	}, nil
}

// Migrate applies the embedded schema migrations.
func (s *Storage) Migrate(ctx context.Context, logger *slog.Logger) error {
	manager := migration.NewMigrationManager(
		migration.NewScanner(migration.Files),
		migration.NewSQLiteExecutor(s.pool.DB()),
		migration.Dir,
		logger,
	)
	if err := manager.RunMigrations(ctx); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// MigrationStatus reports applied and pending migrations.
func (s *Storage) MigrationStatus(ctx context.Context, logger *slog.Logger) (*migration.MigrationStatus, error) {
	manager := migration.NewMigrationManager(
		migration.NewScanner(migration.Files),
		migration.NewSQLiteExecutor(s.pool.DB()),
		migration.Dir,
		logger,
	)
	return manager.GetMigrationStatus(ctx)
}

// Ping checks that the database answers.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	return s.pool.Close()
}
