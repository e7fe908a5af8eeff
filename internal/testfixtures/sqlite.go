package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/shift-roster/internal/persistence"
	"github.com/example/shift-roster/internal/persistence/sqlite"
)

// SQLiteHarness gives tests repository access to a migrated database in a
// temporary directory.
type SQLiteHarness struct {
	Storage  *sqlite.Storage
	People   persistence.PersonRepository
	History  persistence.HistoryRepository
	Profiles persistence.ProfileRepository
	Sessions persistence.SessionRepository

	cleanup func()
}

// Close releases the database. It is safe to call more than once.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness opens and migrates a fresh database. Close is registered
// with tb.Cleanup.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "roster.db")

	storage, err := sqlite.Open(path)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	if err := storage.Migrate(context.Background(), nil); err != nil {
		_ = storage.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Storage:  storage,
		People:   storage.People,
		History:  storage.History,
		Profiles: storage.Profiles,
		Sessions: storage.Sessions,
		cleanup: func() {
			_ = storage.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}

// SeedPeople inserts the fixtures in order and returns them with the IDs the
// database assigned. Schedule columns are written after the insert.
func (h *SQLiteHarness) SeedPeople(tb testing.TB, fixtures ...PersonFixture) []PersonFixture {
	tb.Helper()
	ctx := context.Background()

	out := make([]PersonFixture, 0, len(fixtures))
	for _, f := range fixtures {
		stored, err := h.People.CreatePerson(ctx, f.Persistence())
		if err != nil {
			tb.Fatalf("failed to seed person %q: %v", f.Name, err)
		}
		f.ID = stored.ID
		if f.StartTime != "" || f.EndTime != "" {
			schedule := persistence.PersonSchedule{
				StartTime: f.StartTime,
				EndTime:   f.EndTime,
				StartAt:   f.StartAt,
				EndAt:     f.EndAt,
			}
			if err := h.People.SetSchedule(ctx, f.ID, schedule, string(f.Status)); err != nil {
				tb.Fatalf("failed to seed schedule for %q: %v", f.Name, err)
			}
		}
		out = append(out, f)
	}
	return out
}
