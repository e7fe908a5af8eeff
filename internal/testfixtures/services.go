package testfixtures

import (
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/example/shift-roster/internal/application"
)

// ServiceFactory builds application services wired to a shared test clock
// and identifier sequence.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// SnapshotRecorderDeps captures dependencies for a snapshot recorder.
type SnapshotRecorderDeps struct {
	History  application.HistoryRepository
	Notifier application.SnapshotNotifier
	Observer application.SnapshotObserver
	Now      func() time.Time
	Logger   *slog.Logger
}

// NewSnapshotRecorder builds a recorder on the factory clock unless deps
// supply their own.
func (f *ServiceFactory) NewSnapshotRecorder(deps SnapshotRecorderDeps) *application.SnapshotRecorder {
	return application.NewSnapshotRecorder(deps.History, f.now(deps.Now), deps.Logger).
		WithNotifier(deps.Notifier).
		WithObserver(deps.Observer)
}

// RosterServiceDeps captures dependencies for a roster service.
type RosterServiceDeps struct {
	People    application.PersonRepository
	Snapshots application.SnapshotTrigger
	Observer  application.TransitionObserver
	Now       func() time.Time
	Logger    *slog.Logger
}

// NewRosterService builds a roster service. A nil Snapshots trigger is left
// nil; use NewSnapshotRecorder for one backed by a history repository.
func (f *ServiceFactory) NewRosterService(deps RosterServiceDeps) *application.RosterService {
	svc := application.NewRosterServiceWithLogger(deps.People, deps.Snapshots, f.now(deps.Now), deps.Logger)
	if deps.Observer != nil {
		svc = svc.WithTransitionObserver(deps.Observer)
	}
	return svc
}

// HistoryServiceDeps captures dependencies for a history service.
type HistoryServiceDeps struct {
	History application.HistoryRepository
	People  application.PersonRepository
	Writer  application.ReportWriter
	Cache   *cache.Cache
	Now     func() time.Time
	Logger  *slog.Logger
}

// NewHistoryService builds a history service. Without an explicit cache it
// gets one with no janitor goroutine, so goleak stays quiet.
func (f *ServiceFactory) NewHistoryService(deps HistoryServiceDeps) *application.HistoryService {
	c := deps.Cache
	if c == nil {
		c = cache.New(time.Hour, 0)
	}
	return application.NewHistoryService(deps.History, deps.People, deps.Writer, c, f.now(deps.Now), deps.Logger)
}

// AuthServiceDeps captures dependencies for an auth service.
type AuthServiceDeps struct {
	Profiles       application.ProfileRepository
	Sessions       application.SessionRepository
	PasswordVerify application.PasswordVerifier
	PasswordHash   application.PasswordHasher
	TokenGenerator func() string
	Now            func() time.Time
	SessionTTL     time.Duration
	ResetToken     string
	Logger         *slog.Logger
}

// NewAuthService builds an auth service using the supplied dependencies.
func (f *ServiceFactory) NewAuthService(deps AuthServiceDeps) *application.AuthService {
	token := deps.TokenGenerator
	if token == nil {
		token = f.IDGenerator.NextFunc()
	}
	svc := application.NewAuthServiceWithLogger(
		deps.Profiles,
		deps.Sessions,
		deps.PasswordVerify,
		token,
		f.now(deps.Now),
		deps.SessionTTL,
		deps.Logger,
	)
	if deps.PasswordHash != nil {
		svc = svc.WithPasswordHasher(deps.PasswordHash)
	}
	if deps.ResetToken != "" {
		svc = svc.WithResetToken(deps.ResetToken)
	}
	return svc
}

func (f *ServiceFactory) now(override func() time.Time) func() time.Time {
	if override != nil {
		return override
	}
	return f.Clock.NowFunc()
}
