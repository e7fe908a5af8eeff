package application

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/shift-roster/internal/persistence"
)

// DefaultSessionTTL matches the one-year cookie lifetime of the previous service.
const DefaultSessionTTL = 365 * 24 * time.Hour

// seededRoles are created at startup when missing.
var seededRoles = []Role{RoleInspetoria, RoleCCP}

// ProfileRepository captures the persistence operations for login profiles.
type ProfileRepository interface {
	GetProfile(ctx context.Context, name string) (Profile, error)
	CreateProfile(ctx context.Context, profile Profile) error
	UpdatePasswordHash(ctx context.Context, name, hash string, updatedAt time.Time) error
}

// SessionRepository captures the persistence interactions for issued sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, token string) (Session, error)
	RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error)
	DeleteExpiredSessions(ctx context.Context, reference time.Time) error
}

// AuthService coordinates profile login, session validation and password changes.
type AuthService struct {
	profiles       ProfileRepository
	sessions       SessionRepository
	verifyPassword PasswordVerifier
	hashPassword   PasswordHasher
	tokenGenerator func() string
	now            func() time.Time
	sessionTTL     time.Duration
	resetToken     string
	logger         *slog.Logger
}

// NewAuthService constructs an AuthService with the provided dependencies.
func NewAuthService(profiles ProfileRepository, sessions SessionRepository, verify PasswordVerifier, tokenGenerator func() string, now func() time.Time, sessionTTL time.Duration) *AuthService {
	return NewAuthServiceWithLogger(profiles, sessions, verify, tokenGenerator, now, sessionTTL, nil)
}

// NewAuthServiceWithLogger constructs an AuthService with a specified logger.
func NewAuthServiceWithLogger(profiles ProfileRepository, sessions SessionRepository, verify PasswordVerifier, tokenGenerator func() string, now func() time.Time, sessionTTL time.Duration, logger *slog.Logger) *AuthService {
	if verify == nil {
		verify = VerifyPassword
	}
	if tokenGenerator == nil {
		tokenGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &AuthService{
		profiles:       profiles,
		sessions:       sessions,
		verifyPassword: verify,
		hashPassword:   HashPassword,
		tokenGenerator: tokenGenerator,
		now:            now,
		sessionTTL:     sessionTTL,
		logger:         defaultLogger(logger),
	}
}

// WithPasswordHasher overrides how new passwords are hashed.
func (s *AuthService) WithPasswordHasher(hasher PasswordHasher) *AuthService {
	if hasher != nil {
		s.hashPassword = hasher
	}
	return s
}

// WithResetToken enables ResetPassword with the given shared token.
func (s *AuthService) WithResetToken(token string) *AuthService {
	s.resetToken = strings.TrimSpace(token)
	return s
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

// Authenticate validates a profile/password pair and issues a new session.
func (s *AuthService) Authenticate(ctx context.Context, params AuthenticateParams) (result AuthenticateResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.profiles == nil {
		err = fmt.Errorf("profile repository not configured")
		return
	}

	name := strings.ToLower(strings.TrimSpace(params.Profile))
	logger := s.loggerWith(ctx, "Authenticate", "profile", name)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "authentication failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("session_id", result.Session.ID).InfoContext(ctx, "authentication succeeded")
	}()

	role, ok := ParseRole(name)
	if !ok || params.Password == "" {
		err = ErrInvalidCredentials
		return
	}

	var profile Profile
	profile, err = s.profiles.GetProfile(ctx, name)
	if err != nil {
		if isNotFound(err) {
			err = ErrInvalidCredentials
		}
		return
	}

	if err = s.verifyPassword(profile.PasswordHash, params.Password); err != nil {
		err = ErrInvalidCredentials
		return
	}

	if NeedsRehash(profile.PasswordHash) {
		s.upgradeHash(ctx, logger, name, params.Password)
	}

	now := s.now()
	id := s.tokenGenerator()
	token := s.tokenGenerator()
	if token == "" {
		token = id
	}

	session := Session{
		ID:        id,
		Profile:   name,
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}

	if s.sessions != nil {
		if err = s.sessions.DeleteExpiredSessions(ctx, now); err != nil {
			return
		}
		session, err = s.sessions.CreateSession(ctx, session)
		if err != nil {
			return
		}
	}

	result = AuthenticateResult{Principal: Principal{Profile: name, Role: role}, Session: session}
	return
}

// upgradeHash replaces a legacy bcrypt hash after a successful login.
func (s *AuthService) upgradeHash(ctx context.Context, logger *slog.Logger, name, password string) {
	hash, err := s.hashPassword(password)
	if err == nil {
		err = s.profiles.UpdatePasswordHash(ctx, name, hash, s.now())
	}
	if err != nil {
		logger.WarnContext(ctx, "failed to upgrade password hash", "error", err)
		return
	}
	logger.InfoContext(ctx, "password hash upgraded")
}

// ValidateSession verifies that the provided token corresponds to an active session and returns its principal.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (principal Principal, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.sessions == nil {
		err = fmt.Errorf("session repository not configured")
		return
	}

	trimmed := strings.TrimSpace(token)
	logger := s.loggerWith(ctx, "ValidateSession", "token_provided", trimmed != "")
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "session validation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("profile", principal.Profile).DebugContext(ctx, "session validated")
	}()

	if trimmed == "" {
		err = ErrUnauthorized
		return
	}

	var session Session
	session, err = s.sessions.GetSession(ctx, trimmed)
	if err != nil {
		if isNotFound(err) {
			err = ErrUnauthorized
		}
		return
	}

	now := s.now()
	if session.RevokedAt != nil && !session.RevokedAt.IsZero() {
		err = ErrSessionRevoked
		return
	}
	if !session.ExpiresAt.IsZero() && !session.ExpiresAt.After(now) {
		err = ErrSessionExpired
		return
	}

	role, ok := ParseRole(session.Profile)
	if !ok {
		err = ErrUnauthorized
		return
	}
	principal = Principal{Profile: session.Profile, Role: role}
	return
}

// RevokeSession invalidates an existing session token.
func (s *AuthService) RevokeSession(ctx context.Context, token string) error {
	if s == nil {
		return fmt.Errorf("AuthService is nil")
	}
	if s.sessions == nil {
		return fmt.Errorf("session repository not configured")
	}

	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return ErrInvalidCredentials
	}

	logger := s.loggerWith(ctx, "RevokeSession")
	now := s.now()

	if _, err := s.sessions.RevokeSession(ctx, trimmed, now); err != nil {
		if isNotFound(err) {
			logger.WarnContext(ctx, "failed to revoke session", "error", ErrInvalidCredentials, "error_kind", ErrorKind(ErrInvalidCredentials))
			return ErrInvalidCredentials
		}
		logger.ErrorContext(ctx, "failed to revoke session", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	if err := s.sessions.DeleteExpiredSessions(ctx, now); err != nil {
		logger.ErrorContext(ctx, "failed to prune expired sessions", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	logger.InfoContext(ctx, "session revoked")
	return nil
}

// ResetPassword replaces a profile's password when token matches the
// configured reset token.
func (s *AuthService) ResetPassword(ctx context.Context, params ResetPasswordParams) (err error) {
	if s == nil {
		return fmt.Errorf("AuthService is nil")
	}
	if s.profiles == nil {
		return fmt.Errorf("profile repository not configured")
	}

	name := strings.ToLower(strings.TrimSpace(params.Profile))
	logger := s.loggerWith(ctx, "ResetPassword", "profile", name)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "password reset failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "password reset")
	}()

	if s.resetToken == "" {
		return ErrPasswordResetDisabled
	}

	vErr := &ValidationError{}
	if name == "" {
		vErr.add("profile", "profile is required")
	}
	if params.Token == "" {
		vErr.add("token", "token is required")
	}
	if params.NewPassword == "" {
		vErr.add("new_password", "new password is required")
	}
	if vErr.HasErrors() {
		return vErr
	}

	if subtle.ConstantTimeCompare([]byte(params.Token), []byte(s.resetToken)) != 1 {
		return ErrInvalidCredentials
	}

	if _, err = s.profiles.GetProfile(ctx, name); err != nil {
		if isNotFound(err) {
			err = ErrNotFound
		}
		return err
	}
	return s.storePassword(ctx, name, params.NewPassword, false)
}

// SetPassword sets a profile's password, creating the profile when missing.
func (s *AuthService) SetPassword(ctx context.Context, profile, password string) error {
	if s == nil {
		return fmt.Errorf("AuthService is nil")
	}
	if s.profiles == nil {
		return fmt.Errorf("profile repository not configured")
	}

	role, ok := ParseRole(profile)
	if !ok {
		return newValidationError("profile", "unknown profile")
	}
	if password == "" {
		return newValidationError("password", "password is required")
	}

	_, err := s.profiles.GetProfile(ctx, string(role))
	switch {
	case err == nil:
		err = s.storePassword(ctx, string(role), password, false)
	case isNotFound(err):
		err = s.storePassword(ctx, string(role), password, true)
	}
	if err != nil {
		s.loggerWith(ctx, "SetPassword", "profile", role).
			ErrorContext(ctx, "failed to set password", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	s.loggerWith(ctx, "SetPassword", "profile", role).InfoContext(ctx, "password set")
	return nil
}

// SeedProfiles creates the operator profiles that do not exist yet, all with
// initialPassword, and returns the names it created.
func (s *AuthService) SeedProfiles(ctx context.Context, initialPassword string) (created []string, err error) {
	if s == nil {
		return nil, fmt.Errorf("AuthService is nil")
	}
	if s.profiles == nil {
		return nil, fmt.Errorf("profile repository not configured")
	}
	if initialPassword == "" {
		return nil, newValidationError("password", "initial password is required")
	}

	logger := s.loggerWith(ctx, "SeedProfiles")
	for _, role := range seededRoles {
		_, err = s.profiles.GetProfile(ctx, string(role))
		if err == nil {
			continue
		}
		if !isNotFound(err) {
			logger.ErrorContext(ctx, "failed to look up profile", "profile", role, "error", err)
			return created, err
		}
		if err = s.storePassword(ctx, string(role), initialPassword, true); err != nil {
			if errors.Is(err, ErrAlreadyExists) {
				continue
			}
			logger.ErrorContext(ctx, "failed to seed profile", "profile", role, "error", err)
			return created, err
		}
		logger.InfoContext(ctx, "profile seeded", "profile", role)
		created = append(created, string(role))
	}
	return created, nil
}

func (s *AuthService) storePassword(ctx context.Context, name, password string, create bool) error {
	hash, err := s.hashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	now := s.now()
	if create {
		err = s.profiles.CreateProfile(ctx, Profile{Name: name, PasswordHash: hash, CreatedAt: now, UpdatedAt: now})
	} else {
		err = s.profiles.UpdatePasswordHash(ctx, name, hash, now)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case isNotFound(err):
		return ErrNotFound
	}
	return err
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound)
}
