package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/shift-roster/internal/persistence"
	"github.com/example/shift-roster/internal/persistence/sqlite/migration"
)

var brt = time.FixedZone("BRT", -3*60*60)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "roster.db")
	storage, err := OpenWithConfig(migration.TempFileTestSQLiteConfig(dsn))
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	t.Cleanup(func() {
		_ = storage.Close()
	})

	if err := storage.Migrate(context.Background(), nil); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return storage
}

func createPerson(t *testing.T, storage *Storage, name string) persistence.Person {
	t.Helper()
	person, err := storage.People.CreatePerson(context.Background(), persistence.Person{Name: name, Location: "Pátio " + name})
	require.NoError(t, err)
	return person
}

func startPerson(t *testing.T, storage *Storage, id int64, start time.Time) {
	t.Helper()
	end := start.Add(75 * time.Minute)
	err := storage.People.SetSchedule(context.Background(), id, persistence.PersonSchedule{
		StartTime: start.Format("15:04"),
		EndTime:   end.Format("15:04"),
		StartAt:   &start,
		EndAt:     &end,
	}, "active")
	require.NoError(t, err)
}

func TestPersonRepository(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	ana := createPerson(t, storage, "Ana")
	bruno := createPerson(t, storage, "Bruno")
	assert.Greater(t, bruno.ID, ana.ID)

	got, err := storage.People.GetPerson(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.Name)
	assert.Equal(t, "pending", got.Status)
	assert.Nil(t, got.StartAt)

	start := time.Date(2024, 5, 20, 14, 0, 0, 0, brt)
	startPerson(t, storage, ana.ID, start)

	got, err = storage.People.GetPerson(ctx, ana.ID)
	require.NoError(t, err)
	require.NotNil(t, got.StartAt)
	assert.True(t, got.StartAt.Equal(start))
	assert.Equal(t, "14:00", got.StartTime)
	assert.Equal(t, "15:15", got.EndTime)
	assert.Equal(t, "active", got.Status)

	started, err := storage.People.ListStartedOn(ctx, "2024-05-20")
	require.NoError(t, err)
	require.Len(t, started, 1)
	assert.Equal(t, ana.ID, started[0].ID)

	total, err := storage.People.CountPeople(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	stale, err := storage.People.UpdateStatuses(ctx, []persistence.StatusChange{{ID: ana.ID, Status: "done", Schedule: scheduleOf(got)}})
	require.NoError(t, err)
	assert.Empty(t, stale)
	got, err = storage.People.GetPerson(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, "done", got.Status)
}

func scheduleOf(p persistence.Person) persistence.PersonSchedule {
	return persistence.PersonSchedule{StartTime: p.StartTime, EndTime: p.EndTime, StartAt: p.StartAt, EndAt: p.EndAt}
}

func TestUpdateStatusesSkipsRowsChangedSinceRead(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	reset := createPerson(t, storage, "Fábio")
	kept := createPerson(t, storage, "Gabi")
	unscheduled := createPerson(t, storage, "Hugo")

	start := time.Date(2024, 5, 20, 8, 0, 0, 0, brt)
	startPerson(t, storage, reset.ID, start)
	startPerson(t, storage, kept.ID, start)

	people, err := storage.People.ListPeople(ctx)
	require.NoError(t, err)
	require.Len(t, people, 3)

	// A reset lands between the read and the status write.
	require.NoError(t, storage.People.ResetPerson(ctx, reset.ID, "pending"))

	changes := make([]persistence.StatusChange, 0, len(people))
	for _, p := range people {
		status := "done"
		if p.ID == unscheduled.ID {
			status = "pending"
		}
		changes = append(changes, persistence.StatusChange{ID: p.ID, Status: status, Schedule: scheduleOf(p)})
	}
	stale, err := storage.People.UpdateStatuses(ctx, changes)
	require.NoError(t, err)
	assert.Equal(t, []int64{reset.ID}, stale)

	got, err := storage.People.GetPerson(ctx, reset.ID)
	require.NoError(t, err)
	assert.Equal(t, "pending", got.Status)
	assert.Nil(t, got.StartAt)

	got, err = storage.People.GetPerson(ctx, kept.ID)
	require.NoError(t, err)
	assert.Equal(t, "done", got.Status)

	got, err = storage.People.GetPerson(ctx, unscheduled.ID)
	require.NoError(t, err)
	assert.Equal(t, "pending", got.Status)
}

func TestPersonRepositoryFields(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	person := createPerson(t, storage, "Carla")

	require.NoError(t, storage.People.UpdateField(ctx, person.ID, persistence.FieldMessage, "na guarita"))
	require.NoError(t, storage.People.UpdateField(ctx, person.ID, persistence.FieldReturn, "16:00"))

	got, err := storage.People.GetPerson(ctx, person.ID)
	require.NoError(t, err)
	assert.Equal(t, "na guarita", got.Message)
	assert.Equal(t, "16:00", got.Return)

	err = storage.People.UpdateField(ctx, person.ID, persistence.PersonField("status"), "done")
	require.ErrorIs(t, err, persistence.ErrConstraintViolation)

	err = storage.People.UpdateField(ctx, person.ID, persistence.FieldName, "  ")
	require.ErrorIs(t, err, persistence.ErrConstraintViolation)

	err = storage.People.UpdateField(ctx, 999, persistence.FieldMessage, "x")
	require.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestPersonRepositoryResets(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	first := createPerson(t, storage, "Davi")
	second := createPerson(t, storage, "Eva")

	for _, p := range []persistence.Person{first, second} {
		startPerson(t, storage, p.ID, time.Date(2024, 5, 20, 8, 0, 0, 0, brt))
		require.NoError(t, storage.People.UpdateField(ctx, p.ID, persistence.FieldMessage, "msg"))
		require.NoError(t, storage.People.UpdateField(ctx, p.ID, persistence.FieldJustification, "just"))
	}

	require.NoError(t, storage.People.ResetPerson(ctx, first.ID, "pending"))
	got, err := storage.People.GetPerson(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "pending", got.Status)
	assert.Empty(t, got.StartTime)
	assert.Nil(t, got.StartAt)
	assert.Empty(t, got.Message)
	assert.Equal(t, "just", got.Justification, "single reset keeps the justification")

	affected, err := storage.People.ResetAll(ctx, "pending")
	require.NoError(t, err)
	assert.EqualValues(t, 2, affected)
	got, err = storage.People.GetPerson(ctx, second.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Justification)
	assert.Nil(t, got.EndAt)

	require.ErrorIs(t, storage.People.ResetPerson(ctx, 999, "pending"), persistence.ErrNotFound)
	require.NoError(t, storage.People.DeletePerson(ctx, first.ID))
	require.ErrorIs(t, storage.People.DeletePerson(ctx, first.ID), persistence.ErrNotFound)
	_, err = storage.People.GetPerson(ctx, first.ID)
	require.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestRecordSnapshot(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	recordedAt := time.Date(2024, 5, 20, 15, 0, 0, 0, brt)
	req := persistence.SnapshotRequest{Day: "2024-05-20", PendingStatus: "pending", RecordedAt: recordedAt}

	t.Run("empty roster records nothing", func(t *testing.T) {
		outcome, err := storage.History.RecordSnapshot(ctx, req)
		require.NoError(t, err)
		assert.False(t, outcome.Saved)
		assert.Zero(t, outcome.Count)
	})

	ana := createPerson(t, storage, "Ana")
	bia := createPerson(t, storage, "Bia")

	t.Run("abstains while someone is pending", func(t *testing.T) {
		startPerson(t, storage, ana.ID, time.Date(2024, 5, 20, 13, 0, 0, 0, brt))
		outcome, err := storage.History.RecordSnapshot(ctx, req)
		require.NoError(t, err)
		assert.False(t, outcome.Saved)
		assert.Equal(t, 1, outcome.Pending)
	})

	t.Run("saves once everyone started", func(t *testing.T) {
		startPerson(t, storage, bia.ID, time.Date(2024, 5, 20, 14, 0, 0, 0, brt))
		outcome, err := storage.History.RecordSnapshot(ctx, req)
		require.NoError(t, err)
		assert.True(t, outcome.Saved)
		assert.Equal(t, 2, outcome.Count)

		records, err := storage.History.ListByDay(ctx, "2024-05-20")
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "Ana", records[0].Name)
		assert.Equal(t, ana.ID, records[0].PersonID)
		assert.Equal(t, "active", records[1].Status)
		assert.True(t, records[0].RecordedAt.Equal(recordedAt))
	})

	t.Run("second attempt sees the existing day", func(t *testing.T) {
		outcome, err := storage.History.RecordSnapshot(ctx, req)
		require.NoError(t, err)
		assert.False(t, outcome.Saved)
		assert.Equal(t, 2, outcome.Existing)
	})

	t.Run("later day records independently", func(t *testing.T) {
		next := req
		next.Day = "2024-05-21"
		outcome, err := storage.History.RecordSnapshot(ctx, next)
		require.NoError(t, err)
		assert.True(t, outcome.Saved)

		records, err := storage.History.ListSince(ctx, "2024-05-20")
		require.NoError(t, err)
		require.Len(t, records, 4)
		assert.Equal(t, "2024-05-21", records[0].Day)
		assert.Equal(t, "2024-05-20", records[3].Day)
	})
}

func TestRecordSnapshotConcurrentAttempts(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	const people = 5
	for i := 0; i < people; i++ {
		p := createPerson(t, storage, string(rune('A'+i)))
		startPerson(t, storage, p.ID, time.Date(2024, 5, 20, 9, i, 0, 0, brt))
	}

	req := persistence.SnapshotRequest{Day: "2024-05-20", PendingStatus: "pending", RecordedAt: time.Date(2024, 5, 20, 12, 0, 0, 0, brt)}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		saved int
		errs  []error
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := storage.History.RecordSnapshot(ctx, req)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if outcome.Saved {
				saved++
			}
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Equal(t, 1, saved)

	records, err := storage.History.ListByDay(ctx, "2024-05-20")
	require.NoError(t, err)
	assert.Len(t, records, people)
}

func TestProfileAndSessionRepositories(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	now := time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)

	require.NoError(t, storage.Profiles.CreateProfile(ctx, persistence.Profile{Name: "ccp", PasswordHash: "hash-1", CreatedAt: now}))
	err := storage.Profiles.CreateProfile(ctx, persistence.Profile{Name: "ccp", PasswordHash: "hash-2"})
	require.ErrorIs(t, err, persistence.ErrDuplicate)

	require.NoError(t, storage.Profiles.UpdatePasswordHash(ctx, "ccp", "hash-3", now.Add(time.Hour)))
	profile, err := storage.Profiles.GetProfile(ctx, "ccp")
	require.NoError(t, err)
	assert.Equal(t, "hash-3", profile.PasswordHash)
	require.ErrorIs(t, storage.Profiles.UpdatePasswordHash(ctx, "turma", "x", now), persistence.ErrNotFound)
	_, err = storage.Profiles.GetProfile(ctx, "turma")
	require.ErrorIs(t, err, persistence.ErrNotFound)

	session, err := storage.Sessions.CreateSession(ctx, persistence.Session{
		ID:        "s-1",
		Profile:   "ccp",
		Token:     "tok-1",
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, "ccp", session.Profile)

	_, err = storage.Sessions.CreateSession(ctx, persistence.Session{ID: "s-2", Profile: "nobody", Token: "tok-2", ExpiresAt: now})
	require.ErrorIs(t, err, persistence.ErrConstraintViolation)

	revoked, err := storage.Sessions.RevokeSession(ctx, "tok-1", now.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, revoked.RevokedAt)
	assert.True(t, revoked.RevokedAt.Equal(now.Add(time.Minute)))

	again, err := storage.Sessions.RevokeSession(ctx, "tok-1", now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, again.RevokedAt.Equal(now.Add(time.Minute)))

	_, err = storage.Sessions.RevokeSession(ctx, "missing", now)
	require.ErrorIs(t, err, persistence.ErrNotFound)

	require.NoError(t, storage.Sessions.DeleteExpiredSessions(ctx, now.Add(2*time.Hour)))
	_, err = storage.Sessions.GetSession(ctx, "tok-1")
	require.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestErrorMapper(t *testing.T) {
	mapper := NewErrorMapper()
	assert.Nil(t, mapper.MapError(nil))
	assert.ErrorIs(t, mapper.MapError(persistence.ErrNotFound), persistence.ErrNotFound)
	assert.ErrorIs(t, mapper.MapError(errors.New("UNIQUE constraint failed: profiles.name")), persistence.ErrDuplicate)
	assert.ErrorIs(t, mapper.MapError(errors.New("FOREIGN KEY constraint failed")), persistence.ErrConstraintViolation)

	assert.False(t, isRetryableError(assert.AnError))
	assert.True(t, isRetryableError(errors.New("database is locked (5) (SQLITE_BUSY)")))
}

func TestRetryHelperStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := NewRetryHelper(RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2}).
		WithRetry(context.Background(), func() error {
			calls++
			if calls == 1 {
				return errors.New("database is locked")
			}
			return errors.New("UNIQUE constraint failed: x")
		})
	require.ErrorIs(t, err, persistence.ErrDuplicate)
	assert.Equal(t, 2, calls)
}
