package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/shift-roster/internal/persistence"
)

// ProfileRepository implements persistence.ProfileRepository using SQLite
type ProfileRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewProfileRepository creates a new SQLite profile repository
func NewProfileRepository(pool *ConnectionPool) *ProfileRepository {
	return &ProfileRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// GetProfile retrieves a login profile by name.
func (r *ProfileRepository) GetProfile(ctx context.Context, name string) (persistence.Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return persistence.Profile{}, persistence.ErrNotFound
	}

	var (
		profile              persistence.Profile
		createdAt, updatedAt string
	)
	err := r.helper.QueryRow(ctx, `
		SELECT name, password_hash, created_at, updated_at
		FROM profiles
		WHERE name = ?
	`, name).Scan(&profile.Name, &profile.PasswordHash, &createdAt, &updatedAt)
	if err != nil {
		return persistence.Profile{}, r.mapper.MapError(err)
	}

	if profile.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return persistence.Profile{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if profile.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return persistence.Profile{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return profile, nil
}

// CreateProfile inserts a profile. An existing name yields persistence.ErrDuplicate.
func (r *ProfileRepository) CreateProfile(ctx context.Context, profile persistence.Profile) error {
	profile.Name = strings.TrimSpace(profile.Name)
	if profile.Name == "" || profile.PasswordHash == "" {
		return persistence.ErrConstraintViolation
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now()
	}
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = profile.CreatedAt
	}

	_, err := r.helper.Exec(ctx, `
		INSERT INTO profiles (name, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`,
		profile.Name,
		profile.PasswordHash,
		formatTime(profile.CreatedAt.UTC()),
		formatTime(profile.UpdatedAt.UTC()),
	)
	return r.mapper.MapError(err)
}

// UpdatePasswordHash replaces the stored hash of an existing profile.
func (r *ProfileRepository) UpdatePasswordHash(ctx context.Context, name, hash string, updatedAt time.Time) error {
	if hash == "" {
		return persistence.ErrConstraintViolation
	}
	err := r.helper.ExecAffecting(ctx, r.pool.DB(), `
		UPDATE profiles SET password_hash = ?, updated_at = ? WHERE name = ?
	`, hash, formatTime(updatedAt.UTC()), strings.TrimSpace(name))
	return r.mapper.MapError(err)
}
