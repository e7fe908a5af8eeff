package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/shift-roster/internal/persistence"
)

// SessionRepository implements persistence.SessionRepository using SQLite
type SessionRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewSessionRepository creates a new SQLite session repository
func NewSessionRepository(pool *ConnectionPool) *SessionRepository {
	return &SessionRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateSession stores a new session token for a profile
func (r *SessionRepository) CreateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	session.Token = strings.TrimSpace(session.Token)
	if session.ID == "" || session.Profile == "" || session.Token == "" {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}

	session = normalizeSession(session)
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	_, err := r.helper.Exec(ctx, `
		INSERT INTO sessions (id, profile, token, expires_at, revoked_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		session.ID,
		session.Profile,
		session.Token,
		formatTime(session.ExpiresAt),
		nullTime(session.RevokedAt),
		formatTime(session.CreatedAt),
	)
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}
	return session, nil
}

// GetSession retrieves a session by its token value
func (r *SessionRepository) GetSession(ctx context.Context, token string) (persistence.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return r.getSession(ctx, r.pool.DB(), token)
}

// RevokeSession marks a session as revoked based on its token value. A
// session that is already revoked keeps its first revocation time.
func (r *SessionRepository) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (persistence.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}

	var revoked persistence.Session
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := r.helper.ExecAffecting(ctx, tx, `
			UPDATE sessions SET revoked_at = COALESCE(revoked_at, ?) WHERE token = ?
		`, formatTime(revokedAt.UTC()), token); err != nil {
			return err
		}

		var err error
		revoked, err = r.getSession(ctx, tx, token)
		return err
	})
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}
	return revoked, nil
}

// DeleteExpiredSessions removes sessions that expired on or before the provided timestamp
func (r *SessionRepository) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	_, err := r.helper.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, formatTime(reference.UTC()))
	return r.mapper.MapError(err)
}

func (r *SessionRepository) getSession(ctx context.Context, q queryer, token string) (persistence.Session, error) {
	var (
		session              persistence.Session
		expiresAt, createdAt string
		revokedAt            sql.NullString
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, profile, token, expires_at, revoked_at, created_at
		FROM sessions
		WHERE token = ?
	`, token).Scan(
		&session.ID,
		&session.Profile,
		&session.Token,
		&expiresAt,
		&revokedAt,
		&createdAt,
	)
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}

	if session.RevokedAt, err = parseTimePtr(revokedAt); err != nil {
		return persistence.Session{}, fmt.Errorf("failed to parse revoked_at: %w", err)
	}
	if session.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt); err != nil {
		return persistence.Session{}, fmt.Errorf("failed to parse expires_at: %w", err)
	}
	if session.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return persistence.Session{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return session, nil
}

// normalizeSession stores every instant in UTC so expiry comparisons on the
// text column sort correctly.
func normalizeSession(session persistence.Session) persistence.Session {
	session.ExpiresAt = session.ExpiresAt.UTC()
	session.CreatedAt = session.CreatedAt.UTC()
	if session.RevokedAt != nil {
		revoked := session.RevokedAt.UTC()
		session.RevokedAt = &revoked
	}
	return session
}
