package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/shift-roster/internal/persistence"
)

type profileStoreStub struct {
	mu       sync.Mutex
	profiles map[string]Profile
	updates  []string
	err      error
}

func newProfileStoreStub(profiles ...Profile) *profileStoreStub {
	store := &profileStoreStub{profiles: make(map[string]Profile)}
	for _, p := range profiles {
		store.profiles[p.Name] = p
	}
	return store
}

func (s *profileStoreStub) GetProfile(_ context.Context, name string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Profile{}, s.err
	}
	p, ok := s.profiles[name]
	if !ok {
		return Profile{}, persistence.ErrNotFound
	}
	return p, nil
}

func (s *profileStoreStub) CreateProfile(_ context.Context, profile Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[profile.Name]; ok {
		return persistence.ErrDuplicate
	}
	s.profiles[profile.Name] = profile
	return nil
}

func (s *profileStoreStub) UpdatePasswordHash(_ context.Context, name, hash string, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[name]
	if !ok {
		return persistence.ErrNotFound
	}
	p.PasswordHash = hash
	p.UpdatedAt = updatedAt
	s.profiles[name] = p
	s.updates = append(s.updates, name)
	return nil
}

type sessionRepositoryStub struct {
	mu          sync.Mutex
	sessions    map[string]Session
	deleteCalls []time.Time
	createErr   error
	deleteErr   error
}

func newSessionRepositoryStub() *sessionRepositoryStub {
	return &sessionRepositoryStub{sessions: make(map[string]Session)}
}

func (r *sessionRepositoryStub) CreateSession(_ context.Context, session Session) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return Session{}, r.createErr
	}
	r.sessions[session.Token] = session
	return session, nil
}

func (r *sessionRepositoryStub) GetSession(_ context.Context, token string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[token]
	if !ok {
		return Session{}, persistence.ErrNotFound
	}
	return session, nil
}

func (r *sessionRepositoryStub) RevokeSession(_ context.Context, token string, revokedAt time.Time) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[token]
	if !ok {
		return Session{}, persistence.ErrNotFound
	}
	if session.RevokedAt == nil {
		session.RevokedAt = &revokedAt
	}
	r.sessions[token] = session
	return session, nil
}

func (r *sessionRepositoryStub) DeleteExpiredSessions(_ context.Context, reference time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteCalls = append(r.deleteCalls, reference)
	return r.deleteErr
}

// plainVerifier treats the stored hash as the password.
func plainVerifier(hash, password string) error {
	if hash != password {
		return ErrInvalidCredentials
	}
	return nil
}

func plainHasher(password string) (string, error) {
	return "$argon2id$" + password, nil
}

func tokenSequence(tokens ...string) func() string {
	var mu sync.Mutex
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		if len(tokens) == 0 {
			return "fallback"
		}
		token := tokens[0]
		tokens = tokens[1:]
		return token
	}
}

func TestAuthService_Authenticate(t *testing.T) {
	t.Parallel()

	t.Run("issues sessions for valid credentials", func(t *testing.T) {
		t.Parallel()

		now := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
		profiles := newProfileStoreStub(Profile{Name: "ccp", PasswordHash: "$argon2id$secret"})
		repo := newSessionRepositoryStub()
		svc := NewAuthService(profiles, repo, func(hash, password string) error {
			return plainVerifier(hash, "$argon2id$"+password)
		}, tokenSequence("session-id", "session-token"), func() time.Time { return now }, time.Hour)

		result, err := svc.Authenticate(context.Background(), AuthenticateParams{Profile: " CCP ", Password: "secret"})
		require.NoError(t, err)

		assert.Equal(t, Principal{Profile: "ccp", Role: RoleCCP}, result.Principal)
		assert.Equal(t, "session-id", result.Session.ID)
		assert.Equal(t, "session-token", result.Session.Token)
		assert.True(t, result.Session.ExpiresAt.Equal(now.Add(time.Hour)))
		require.Len(t, repo.deleteCalls, 1)
		assert.True(t, repo.deleteCalls[0].Equal(now))
		assert.Empty(t, profiles.updates, "argon2id hashes are not rehashed")
	})

	t.Run("rehashes legacy hashes after login", func(t *testing.T) {
		t.Parallel()

		profiles := newProfileStoreStub(Profile{Name: "inspetoria", PasswordHash: "legacy"})
		svc := NewAuthService(profiles, newSessionRepositoryStub(), plainVerifier, tokenSequence("a", "b"), time.Now, time.Hour).
			WithPasswordHasher(plainHasher)

		_, err := svc.Authenticate(context.Background(), AuthenticateParams{Profile: "inspetoria", Password: "legacy"})
		require.NoError(t, err)
		assert.Equal(t, []string{"inspetoria"}, profiles.updates)
		assert.Equal(t, "$argon2id$legacy", profiles.profiles["inspetoria"].PasswordHash)
	})

	t.Run("rejects invalid credentials with sentinel error", func(t *testing.T) {
		t.Parallel()

		profiles := newProfileStoreStub(Profile{Name: "ccp", PasswordHash: "expected"})
		svc := NewAuthService(profiles, nil, plainVerifier, nil, time.Now, time.Hour)

		for _, params := range []AuthenticateParams{
			{Profile: "ccp", Password: "wrong"},
			{Profile: "ccp", Password: ""},
			{Profile: "inspetoria", Password: "expected"},
			{Profile: "admin", Password: "expected"},
		} {
			_, err := svc.Authenticate(context.Background(), params)
			assert.ErrorIs(t, err, ErrInvalidCredentials, params.Profile)
		}
	})

	t.Run("propagates repository failures", func(t *testing.T) {
		t.Parallel()

		expected := errors.New("boom")
		profiles := newProfileStoreStub(Profile{Name: "ccp", PasswordHash: "$argon2id$x"})
		repo := newSessionRepositoryStub()
		repo.createErr = expected
		svc := NewAuthService(profiles, repo, func(string, string) error { return nil }, tokenSequence("token"), time.Now, time.Hour)

		_, err := svc.Authenticate(context.Background(), AuthenticateParams{Profile: "ccp", Password: "x"})
		assert.ErrorIs(t, err, expected)
	})

	t.Run("propagates cleanup failures", func(t *testing.T) {
		t.Parallel()

		expected := errors.New("cleanup-failed")
		profiles := newProfileStoreStub(Profile{Name: "ccp", PasswordHash: "$argon2id$x"})
		repo := newSessionRepositoryStub()
		repo.deleteErr = expected
		svc := NewAuthService(profiles, repo, func(string, string) error { return nil }, tokenSequence("token"), time.Now, time.Hour)

		_, err := svc.Authenticate(context.Background(), AuthenticateParams{Profile: "ccp", Password: "x"})
		assert.ErrorIs(t, err, expected)
	})
}

func TestAuthService_ValidateSession(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	revokedAt := now.Add(-time.Minute)
	repo := newSessionRepositoryStub()
	repo.sessions["live"] = Session{Token: "live", Profile: "turma", ExpiresAt: now.Add(time.Hour)}
	repo.sessions["expired"] = Session{Token: "expired", Profile: "ccp", ExpiresAt: now}
	repo.sessions["revoked"] = Session{Token: "revoked", Profile: "ccp", ExpiresAt: now.Add(time.Hour), RevokedAt: &revokedAt}
	repo.sessions["stale-profile"] = Session{Token: "stale-profile", Profile: "admin", ExpiresAt: now.Add(time.Hour)}

	svc := NewAuthService(nil, repo, nil, nil, func() time.Time { return now }, time.Hour)

	principal, err := svc.ValidateSession(context.Background(), " live ")
	require.NoError(t, err)
	assert.Equal(t, Principal{Profile: "turma", Role: RoleTurma}, principal)

	cases := map[string]error{
		"":              ErrUnauthorized,
		"missing":       ErrUnauthorized,
		"expired":       ErrSessionExpired,
		"revoked":       ErrSessionRevoked,
		"stale-profile": ErrUnauthorized,
	}
	for token, expected := range cases {
		_, err := svc.ValidateSession(context.Background(), token)
		assert.ErrorIs(t, err, expected, token)
	}
}

func TestAuthService_RevokeSession(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	repo := newSessionRepositoryStub()
	repo.sessions["tok"] = Session{Token: "tok", Profile: "ccp", ExpiresAt: now.Add(time.Hour)}
	svc := NewAuthService(nil, repo, nil, nil, func() time.Time { return now }, time.Hour)

	require.NoError(t, svc.RevokeSession(context.Background(), "tok"))
	_, err := svc.ValidateSession(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrSessionRevoked)
	assert.Len(t, repo.deleteCalls, 1)

	assert.ErrorIs(t, svc.RevokeSession(context.Background(), "unknown"), ErrInvalidCredentials)
	assert.ErrorIs(t, svc.RevokeSession(context.Background(), " "), ErrInvalidCredentials)
}

func TestAuthService_ResetPassword(t *testing.T) {
	t.Parallel()

	newService := func(profiles *profileStoreStub, token string) *AuthService {
		return NewAuthService(profiles, nil, plainVerifier, nil, time.Now, time.Hour).
			WithPasswordHasher(plainHasher).
			WithResetToken(token)
	}

	t.Run("disabled without a token", func(t *testing.T) {
		t.Parallel()

		svc := newService(newProfileStoreStub(), "")
		err := svc.ResetPassword(context.Background(), ResetPasswordParams{Profile: "ccp", Token: "x", NewPassword: "y"})
		assert.ErrorIs(t, err, ErrPasswordResetDisabled)
	})

	t.Run("validates input", func(t *testing.T) {
		t.Parallel()

		svc := newService(newProfileStoreStub(), "s3cret")
		err := svc.ResetPassword(context.Background(), ResetPasswordParams{})
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Len(t, vErr.FieldErrors, 3)
	})

	t.Run("rejects a wrong token", func(t *testing.T) {
		t.Parallel()

		profiles := newProfileStoreStub(Profile{Name: "ccp", PasswordHash: "old"})
		svc := newService(profiles, "s3cret")
		err := svc.ResetPassword(context.Background(), ResetPasswordParams{Profile: "ccp", Token: "guess", NewPassword: "new"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		assert.Equal(t, "old", profiles.profiles["ccp"].PasswordHash)
	})

	t.Run("unknown profile", func(t *testing.T) {
		t.Parallel()

		svc := newService(newProfileStoreStub(), "s3cret")
		err := svc.ResetPassword(context.Background(), ResetPasswordParams{Profile: "ccp", Token: "s3cret", NewPassword: "new"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("replaces the hash", func(t *testing.T) {
		t.Parallel()

		profiles := newProfileStoreStub(Profile{Name: "ccp", PasswordHash: "old"})
		svc := newService(profiles, "s3cret")
		require.NoError(t, svc.ResetPassword(context.Background(), ResetPasswordParams{Profile: "CCP", Token: "s3cret", NewPassword: "new"}))
		assert.Equal(t, "$argon2id$new", profiles.profiles["ccp"].PasswordHash)
	})
}

func TestAuthService_SetPasswordAndSeed(t *testing.T) {
	t.Parallel()

	profiles := newProfileStoreStub(Profile{Name: "ccp", PasswordHash: "kept"})
	svc := NewAuthService(profiles, nil, plainVerifier, nil, time.Now, time.Hour).WithPasswordHasher(plainHasher)
	ctx := context.Background()

	created, err := svc.SeedProfiles(ctx, "0000")
	require.NoError(t, err)
	assert.Equal(t, []string{"inspetoria"}, created)
	assert.Equal(t, "$argon2id$0000", profiles.profiles["inspetoria"].PasswordHash)
	assert.Equal(t, "kept", profiles.profiles["ccp"].PasswordHash)

	created, err = svc.SeedProfiles(ctx, "0000")
	require.NoError(t, err)
	assert.Empty(t, created)

	require.NoError(t, svc.SetPassword(ctx, "turma", "crew"))
	assert.Equal(t, "$argon2id$crew", profiles.profiles["turma"].PasswordHash)
	require.NoError(t, svc.SetPassword(ctx, "ccp", "changed"))
	assert.Equal(t, "$argon2id$changed", profiles.profiles["ccp"].PasswordHash)

	var vErr *ValidationError
	assert.ErrorAs(t, svc.SetPassword(ctx, "root", "x"), &vErr)
	assert.ErrorAs(t, svc.SetPassword(ctx, "ccp", ""), &vErr)
	_, err = svc.SeedProfiles(ctx, "")
	assert.ErrorAs(t, err, &vErr)
}

func TestPasswordHashing(t *testing.T) {
	t.Parallel()

	params := Argon2idParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}
	hash, err := CreatePasswordHash("0000", params)
	require.NoError(t, err)
	assert.False(t, NeedsRehash(hash))
	assert.NoError(t, VerifyPassword(hash, "0000"))
	assert.ErrorIs(t, VerifyPassword(hash, "1111"), ErrInvalidCredentials)
	assert.ErrorIs(t, VerifyPassword("plain", "plain"), ErrInvalidPasswordHash)

	legacy, err := bcrypt.GenerateFromPassword([]byte("0000"), bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, NeedsRehash(string(legacy)))
	assert.NoError(t, VerifyPassword(string(legacy), "0000"))
	assert.ErrorIs(t, VerifyPassword(string(legacy), "1111"), ErrInvalidCredentials)
}
