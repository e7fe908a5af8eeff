package main

import (
	"context"
	"fmt"
	"time"

	"github.com/example/shift-roster/internal/application"
	"github.com/example/shift-roster/internal/persistence"
	"github.com/example/shift-roster/internal/shift"
)

type personRepositoryAdapter struct {
	repo persistence.PersonRepository
}

func newPersonRepositoryAdapter(repo persistence.PersonRepository) *personRepositoryAdapter {
	return &personRepositoryAdapter{repo: repo}
}

func (a *personRepositoryAdapter) CreatePerson(ctx context.Context, person application.Person) (application.Person, error) {
	stored, err := a.repo.CreatePerson(ctx, toPersistencePerson(person))
	if err != nil {
		return application.Person{}, err
	}
	return toApplicationPerson(stored), nil
}

func (a *personRepositoryAdapter) GetPerson(ctx context.Context, id int64) (application.Person, error) {
	stored, err := a.repo.GetPerson(ctx, id)
	if err != nil {
		return application.Person{}, err
	}
	return toApplicationPerson(stored), nil
}

func (a *personRepositoryAdapter) ListPeople(ctx context.Context) ([]application.Person, error) {
	stored, err := a.repo.ListPeople(ctx)
	if err != nil {
		return nil, err
	}
	return toApplicationPeople(stored), nil
}

func (a *personRepositoryAdapter) ListStartedOn(ctx context.Context, day string) ([]application.Person, error) {
	stored, err := a.repo.ListStartedOn(ctx, day)
	if err != nil {
		return nil, err
	}
	return toApplicationPeople(stored), nil
}

func (a *personRepositoryAdapter) CountPeople(ctx context.Context) (int, error) {
	return a.repo.CountPeople(ctx)
}

func (a *personRepositoryAdapter) SetSchedule(ctx context.Context, id int64, schedule shift.Schedule, status shift.Status) error {
	return a.repo.SetSchedule(ctx, id, persistence.PersonSchedule{
		StartTime: schedule.StartTime,
		EndTime:   schedule.EndTime,
		StartAt:   cloneTime(schedule.StartAt),
		EndAt:     cloneTime(schedule.EndAt),
	}, string(status))
}

func (a *personRepositoryAdapter) SetEnd(ctx context.Context, id int64, endTime string, endAt *time.Time) error {
	return a.repo.SetEnd(ctx, id, endTime, cloneTime(endAt))
}

func (a *personRepositoryAdapter) UpdateStatuses(ctx context.Context, updates []application.StatusUpdate) ([]int64, error) {
	changes := make([]persistence.StatusChange, 0, len(updates))
	for _, u := range updates {
		changes = append(changes, persistence.StatusChange{
			ID:     u.ID,
			Status: string(u.Status),
			Schedule: persistence.PersonSchedule{
				StartTime: u.Schedule.StartTime,
				EndTime:   u.Schedule.EndTime,
				StartAt:   cloneTime(u.Schedule.StartAt),
				EndAt:     cloneTime(u.Schedule.EndAt),
			},
		})
	}
	return a.repo.UpdateStatuses(ctx, changes)
}

func (a *personRepositoryAdapter) UpdateField(ctx context.Context, id int64, field application.PersonField, value string) error {
	column, ok := personFields[field]
	if !ok {
		return fmt.Errorf("%w: field %q has no column", persistence.ErrConstraintViolation, field)
	}
	return a.repo.UpdateField(ctx, id, column, value)
}

func (a *personRepositoryAdapter) ResetPerson(ctx context.Context, id int64, status shift.Status) error {
	return a.repo.ResetPerson(ctx, id, string(status))
}

func (a *personRepositoryAdapter) ResetAll(ctx context.Context, status shift.Status) (int64, error) {
	return a.repo.ResetAll(ctx, string(status))
}

func (a *personRepositoryAdapter) DeletePerson(ctx context.Context, id int64) error {
	return a.repo.DeletePerson(ctx, id)
}

// personFields maps editable fields to their stored columns. Schedule fields
// are written through SetSchedule and SetEnd instead.
var personFields = map[application.PersonField]persistence.PersonField{
	application.FieldName:          persistence.FieldName,
	application.FieldLocation:      persistence.FieldLocation,
	application.FieldReleased:      persistence.FieldReleased,
	application.FieldReturn:        persistence.FieldReturn,
	application.FieldMessage:       persistence.FieldMessage,
	application.FieldJustification: persistence.FieldJustification,
}

type historyRepositoryAdapter struct {
	repo persistence.HistoryRepository
}

func newHistoryRepositoryAdapter(repo persistence.HistoryRepository) *historyRepositoryAdapter {
	return &historyRepositoryAdapter{repo: repo}
}

func (a *historyRepositoryAdapter) RecordSnapshot(ctx context.Context, attempt application.SnapshotAttempt) (application.SnapshotOutcome, error) {
	outcome, err := a.repo.RecordSnapshot(ctx, persistence.SnapshotRequest{
		Day:           attempt.Day,
		PendingStatus: string(shift.StatusPending),
		RecordedAt:    attempt.RecordedAt,
	})
	if err != nil {
		return application.SnapshotOutcome{}, err
	}
	return application.SnapshotOutcome{
		Pending:  outcome.Pending,
		Existing: outcome.Existing,
		Count:    outcome.Count,
		Saved:    outcome.Saved,
	}, nil
}

func (a *historyRepositoryAdapter) ListByDay(ctx context.Context, day string) ([]application.HistoryRecord, error) {
	stored, err := a.repo.ListByDay(ctx, day)
	if err != nil {
		return nil, err
	}
	return toApplicationHistory(stored), nil
}

func (a *historyRepositoryAdapter) ListSince(ctx context.Context, fromDay string) ([]application.HistoryRecord, error) {
	stored, err := a.repo.ListSince(ctx, fromDay)
	if err != nil {
		return nil, err
	}
	return toApplicationHistory(stored), nil
}

type profileRepositoryAdapter struct {
	repo persistence.ProfileRepository
}

func newProfileRepositoryAdapter(repo persistence.ProfileRepository) *profileRepositoryAdapter {
	return &profileRepositoryAdapter{repo: repo}
}

func (a *profileRepositoryAdapter) GetProfile(ctx context.Context, name string) (application.Profile, error) {
	stored, err := a.repo.GetProfile(ctx, name)
	if err != nil {
		return application.Profile{}, err
	}
	return application.Profile{
		Name:         stored.Name,
		PasswordHash: stored.PasswordHash,
		CreatedAt:    stored.CreatedAt,
		UpdatedAt:    stored.UpdatedAt,
	}, nil
}

func (a *profileRepositoryAdapter) CreateProfile(ctx context.Context, profile application.Profile) error {
	return a.repo.CreateProfile(ctx, persistence.Profile{
		Name:         profile.Name,
		PasswordHash: profile.PasswordHash,
		CreatedAt:    profile.CreatedAt,
		UpdatedAt:    profile.UpdatedAt,
	})
}

func (a *profileRepositoryAdapter) UpdatePasswordHash(ctx context.Context, name, hash string, updatedAt time.Time) error {
	return a.repo.UpdatePasswordHash(ctx, name, hash, updatedAt)
}

type sessionRepositoryAdapter struct {
	repo persistence.SessionRepository
}

func newSessionRepositoryAdapter(repo persistence.SessionRepository) *sessionRepositoryAdapter {
	return &sessionRepositoryAdapter{repo: repo}
}

func (a *sessionRepositoryAdapter) CreateSession(ctx context.Context, session application.Session) (application.Session, error) {
	stored, err := a.repo.CreateSession(ctx, toPersistenceSession(session))
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) GetSession(ctx context.Context, token string) (application.Session, error) {
	stored, err := a.repo.GetSession(ctx, token)
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (application.Session, error) {
	stored, err := a.repo.RevokeSession(ctx, token, revokedAt)
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	return a.repo.DeleteExpiredSessions(ctx, reference)
}

// toApplicationPerson converts a stored row. A status that does not parse is
// read as pending; the next reconcile overwrites it.
func toApplicationPerson(model persistence.Person) application.Person {
	status, err := shift.ParseStatus(model.Status)
	if err != nil {
		status = shift.StatusPending
	}
	return application.Person{
		ID:            model.ID,
		Name:          model.Name,
		Location:      model.Location,
		Status:        status,
		Released:      model.Released,
		Return:        model.Return,
		StartTime:     model.StartTime,
		EndTime:       model.EndTime,
		StartAt:       cloneTime(model.StartAt),
		EndAt:         cloneTime(model.EndAt),
		Message:       model.Message,
		Justification: model.Justification,
		CreatedAt:     model.CreatedAt,
	}
}

func toApplicationPeople(models []persistence.Person) []application.Person {
	out := make([]application.Person, 0, len(models))
	for _, m := range models {
		out = append(out, toApplicationPerson(m))
	}
	return out
}

func toPersistencePerson(person application.Person) persistence.Person {
	return persistence.Person{
		ID:            person.ID,
		Name:          person.Name,
		Location:      person.Location,
		Status:        string(person.Status),
		Released:      person.Released,
		Return:        person.Return,
		StartTime:     person.StartTime,
		EndTime:       person.EndTime,
		StartAt:       cloneTime(person.StartAt),
		EndAt:         cloneTime(person.EndAt),
		Message:       person.Message,
		Justification: person.Justification,
		CreatedAt:     person.CreatedAt,
	}
}

func toApplicationHistory(models []persistence.HistoryRecord) []application.HistoryRecord {
	out := make([]application.HistoryRecord, 0, len(models))
	for _, m := range models {
		status, err := shift.ParseStatus(m.Status)
		if err != nil {
			status = shift.Status(m.Status)
		}
		out = append(out, application.HistoryRecord{
			ID:            m.ID,
			PersonID:      m.PersonID,
			Day:           m.Day,
			Name:          m.Name,
			Location:      m.Location,
			Status:        status,
			StartTime:     m.StartTime,
			EndTime:       m.EndTime,
			Message:       m.Message,
			Justification: m.Justification,
			RecordedAt:    m.RecordedAt,
		})
	}
	return out
}

func toApplicationSession(model persistence.Session) application.Session {
	return application.Session{
		ID:        model.ID,
		Profile:   model.Profile,
		Token:     model.Token,
		ExpiresAt: model.ExpiresAt,
		CreatedAt: model.CreatedAt,
		RevokedAt: cloneTime(model.RevokedAt),
	}
}

func toPersistenceSession(session application.Session) persistence.Session {
	return persistence.Session{
		ID:        session.ID,
		Profile:   session.Profile,
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
		RevokedAt: cloneTime(session.RevokedAt),
	}
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
