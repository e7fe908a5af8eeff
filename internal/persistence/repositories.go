package persistence

import (
	"context"
	"time"
)

// PersonRepository stores the live roster.
type PersonRepository interface {
	CreatePerson(ctx context.Context, person Person) (Person, error)
	GetPerson(ctx context.Context, id int64) (Person, error)
	ListPeople(ctx context.Context) ([]Person, error)
	ListStartedOn(ctx context.Context, day string) ([]Person, error)
	CountPeople(ctx context.Context) (int, error)
	SetSchedule(ctx context.Context, id int64, schedule PersonSchedule, status string) error
	SetEnd(ctx context.Context, id int64, endTime string, endAt *time.Time) error
	UpdateStatuses(ctx context.Context, changes []StatusChange) (stale []int64, err error)
	UpdateField(ctx context.Context, id int64, field PersonField, value string) error
	ResetPerson(ctx context.Context, id int64, status string) error
	ResetAll(ctx context.Context, status string) (int64, error)
	DeletePerson(ctx context.Context, id int64) error
}

// HistoryRepository stores daily roster snapshots.
type HistoryRepository interface {
	RecordSnapshot(ctx context.Context, req SnapshotRequest) (SnapshotOutcome, error)
	ListByDay(ctx context.Context, day string) ([]HistoryRecord, error)
	ListSince(ctx context.Context, fromDay string) ([]HistoryRecord, error)
}

// ProfileRepository stores login profiles and their password hashes.
type ProfileRepository interface {
	GetProfile(ctx context.Context, name string) (Profile, error)
	CreateProfile(ctx context.Context, profile Profile) error
	UpdatePasswordHash(ctx context.Context, name, hash string, updatedAt time.Time) error
}

// SessionRepository stores authentication session state.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, token string) (Session, error)
	RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error)
	DeleteExpiredSessions(ctx context.Context, reference time.Time) error
}
