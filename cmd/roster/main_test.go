package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/shift-roster/internal/application"
	"github.com/example/shift-roster/internal/clock"
	"github.com/example/shift-roster/internal/shift"
	"github.com/example/shift-roster/internal/testfixtures"
)

func testEnviron(t *testing.T) map[string]string {
	t.Helper()
	return map[string]string{
		"ROSTER_SQLITE_PATH": filepath.Join(t.TempDir(), "roster.db"),
		"ROSTER_LOG_LEVEL":   "error",
	}
}

func execute(t *testing.T, environ map[string]string, args ...string) (string, error) {
	t.Helper()
	var out, logs bytes.Buffer
	cmd := newRootCommand(environ)
	cmd.SetOut(&out)
	cmd.SetErr(&logs)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrateCommand(t *testing.T) {
	environ := testEnviron(t)

	out, err := execute(t, environ, "migrate", "--status")
	require.NoError(t, err)
	assert.Equal(t, "schema version none, 0 applied, 3 pending\n", out)

	out, err = execute(t, environ, "migrate")
	require.NoError(t, err)
	assert.Equal(t, "schema version 003, 3 applied, 0 pending\n", out)

	out, err = execute(t, environ, "migrate")
	require.NoError(t, err)
	assert.Equal(t, "schema version 003, 3 applied, 0 pending\n", out)
}

func TestSetPasswordCommand(t *testing.T) {
	environ := testEnviron(t)

	out, err := execute(t, environ, "set-password", "--profile", "turma", "--password", "segredo")
	require.NoError(t, err)
	assert.Equal(t, "password updated for turma\n", out)

	_, err = execute(t, environ, "set-password", "--profile", "visitante", "--password", "x")
	var vErr *application.ValidationError
	assert.ErrorAs(t, err, &vErr)

	_, err = execute(t, environ, "set-password", "--profile", "turma")
	assert.Error(t, err)
}

func TestSnapshotCommandOnEmptyRoster(t *testing.T) {
	out, err := execute(t, testEnviron(t), "snapshot")
	require.NoError(t, err)

	var result snapshotOutput
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.False(t, result.Saved)
	assert.Equal(t, application.ReasonEmptyRoster, result.Reason)
	assert.NotEmpty(t, result.Day)
}

func TestLogServeSettings(t *testing.T) {
	zone, err := clock.Load("America/Sao_Paulo")
	require.NoError(t, err)

	var logs bytes.Buffer
	a := &app{logger: slog.New(slog.NewTextHandler(&logs, nil))}
	a.logServeSettings(zone)
	assert.Contains(t, logs.String(), "zone=America/Sao_Paulo")
	assert.Contains(t, logs.String(), "password reset disabled")

	logs.Reset()
	a.cfg.ResetToken = "segredo"
	a.logServeSettings(zone)
	assert.NotContains(t, logs.String(), "password reset disabled")
}

func TestInvalidConfigurationFails(t *testing.T) {
	environ := testEnviron(t)
	environ["ROSTER_HTTP_PORT"] = "0"

	_, err := execute(t, environ, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ROSTER_HTTP_PORT")
}

// TestAdaptersOverSQLite drives the roster through the same adapters serve
// uses, against a migrated database.
func TestAdaptersOverSQLite(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)
	clk := testfixtures.NewClock(testfixtures.ReferenceTime())
	factory := testfixtures.NewServiceFactory(testfixtures.WithClock(clk))
	ctx := context.Background()

	people := newPersonRepositoryAdapter(h.People)
	history := newHistoryRepositoryAdapter(h.History)
	recorder := factory.NewSnapshotRecorder(testfixtures.SnapshotRecorderDeps{History: history})
	roster := factory.NewRosterService(testfixtures.RosterServiceDeps{People: people, Snapshots: recorder})
	operator := testfixtures.NewProfileFixture(application.RoleCCP, "").Principal()

	person, err := roster.CreatePerson(ctx, application.CreatePersonParams{Principal: operator, Name: "Ana", Location: "Portaria"})
	require.NoError(t, err)

	snapshot, err := roster.StartPerson(ctx, operator, person.ID)
	require.NoError(t, err)
	assert.True(t, snapshot.Saved)
	assert.Equal(t, 1, snapshot.Count)

	records, err := history.ListByDay(ctx, clk.Day())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, shift.StatusActive, records[0].Status)
	assert.Equal(t, "09:00", records[0].StartTime)
	assert.Equal(t, "10:15", records[0].EndTime)

	_, err = roster.UpdateField(ctx, application.UpdateFieldParams{
		Principal: operator,
		PersonID:  person.ID,
		Field:     application.FieldReturn,
		Value:     "retorna 14h",
	})
	require.NoError(t, err)

	clk.Advance(76 * time.Minute)
	listed, err := roster.GetRoster(ctx, operator)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, shift.StatusDone, listed[0].Status)
	assert.Equal(t, "retorna 14h", listed[0].Return)

	stored, err := h.People.GetPerson(ctx, person.ID)
	require.NoError(t, err)
	assert.Equal(t, "done", stored.Status)
}

// resetBeforeStatusWrite resets one person right before the roster's status
// write reaches storage, as a concurrent request would.
type resetBeforeStatusWrite struct {
	*personRepositoryAdapter
	once sync.Once
	id   int64
}

func (r *resetBeforeStatusWrite) UpdateStatuses(ctx context.Context, updates []application.StatusUpdate) ([]int64, error) {
	var err error
	r.once.Do(func() {
		err = r.personRepositoryAdapter.ResetPerson(ctx, r.id, shift.StatusPending)
	})
	if err != nil {
		return nil, err
	}
	return r.personRepositoryAdapter.UpdateStatuses(ctx, updates)
}

func TestRosterReadKeepsConcurrentResetOverSQLite(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)
	clk := testfixtures.NewClock(testfixtures.ReferenceTime())
	factory := testfixtures.NewServiceFactory(testfixtures.WithClock(clk))
	ctx := context.Background()

	people := newPersonRepositoryAdapter(h.People)
	history := newHistoryRepositoryAdapter(h.History)
	recorder := factory.NewSnapshotRecorder(testfixtures.SnapshotRecorderDeps{History: history})
	roster := factory.NewRosterService(testfixtures.RosterServiceDeps{People: people, Snapshots: recorder})
	operator := testfixtures.NewProfileFixture(application.RoleInspetoria, "").Principal()

	ana, err := roster.CreatePerson(ctx, application.CreatePersonParams{Principal: operator, Name: "Ana"})
	require.NoError(t, err)
	bruno, err := roster.CreatePerson(ctx, application.CreatePersonParams{Principal: operator, Name: "Bruno"})
	require.NoError(t, err)

	_, err = roster.StartPerson(ctx, operator, ana.ID)
	require.NoError(t, err)
	clk.Advance(80 * time.Minute)

	racing := factory.NewRosterService(testfixtures.RosterServiceDeps{
		People:    &resetBeforeStatusWrite{personRepositoryAdapter: people, id: ana.ID},
		Snapshots: recorder,
	})
	listed, err := racing.GetRoster(ctx, operator)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, shift.StatusPending, listed[0].Status)
	assert.Nil(t, listed[0].StartAt)

	stored, err := h.People.GetPerson(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, "pending", stored.Status)
	assert.Nil(t, stored.StartAt)

	snapshot, err := roster.StartPerson(ctx, operator, bruno.ID)
	require.NoError(t, err)
	assert.False(t, snapshot.Saved)
	assert.Equal(t, application.ReasonPending, snapshot.Reason)

	records, err := history.ListByDay(ctx, clk.Day())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSessionAdapterRoundTrip(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)
	ctx := context.Background()
	profiles := newProfileRepositoryAdapter(h.Profiles)
	sessions := newSessionRepositoryAdapter(h.Sessions)

	hash, err := application.HashPassword("0000")
	require.NoError(t, err)
	require.NoError(t, profiles.CreateProfile(ctx, testfixtures.NewProfileFixture(application.RoleTurma, hash).Application()))

	fixture := testfixtures.NewSessionFixture("turma")
	created, err := sessions.CreateSession(ctx, fixture.Application())
	require.NoError(t, err)
	assert.Equal(t, fixture.Token, created.Token)

	revokedAt := testfixtures.ReferenceTime().Add(time.Minute)
	revoked, err := sessions.RevokeSession(ctx, fixture.Token, revokedAt)
	require.NoError(t, err)
	require.NotNil(t, revoked.RevokedAt)
	assert.True(t, revoked.RevokedAt.Equal(revokedAt))
}
