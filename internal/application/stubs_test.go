package application

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/example/shift-roster/internal/clock"
	"github.com/example/shift-roster/internal/persistence"
	"github.com/example/shift-roster/internal/shift"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var brt = time.FixedZone("BRT", -3*60*60)

func at(hour, minute int) time.Time {
	return time.Date(2024, time.March, 10, hour, minute, 0, 0, brt)
}

// testClock is a settable clock shared between a service and its test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(now time.Time) *testClock { return &testClock{now: now} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var (
	operator = Principal{Profile: "inspetoria", Role: RoleInspetoria}
	crew     = Principal{Profile: "turma", Role: RoleTurma}
)

// personRepoStub is an in-memory roster.
type personRepoStub struct {
	mu          sync.Mutex
	people      map[int64]Person
	nextID      int64
	updateCalls [][]StatusUpdate
	err         error
	// beforeUpdate runs ahead of UpdateStatuses, outside the lock.
	beforeUpdate func()
}

func newPersonRepoStub(people ...Person) *personRepoStub {
	repo := &personRepoStub{people: make(map[int64]Person)}
	for _, p := range people {
		if p.ID > repo.nextID {
			repo.nextID = p.ID
		}
		repo.people[p.ID] = p
	}
	return repo
}

func (r *personRepoStub) CreatePerson(_ context.Context, person Person) (Person, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return Person{}, r.err
	}
	r.nextID++
	person.ID = r.nextID
	r.people[person.ID] = person
	return person, nil
}

func (r *personRepoStub) GetPerson(_ context.Context, id int64) (Person, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return Person{}, r.err
	}
	p, ok := r.people[id]
	if !ok {
		return Person{}, persistence.ErrNotFound
	}
	return p, nil
}

func (r *personRepoStub) ListPeople(context.Context) ([]Person, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return r.sorted(func(Person) bool { return true }), nil
}

func (r *personRepoStub) ListStartedOn(_ context.Context, day string) ([]Person, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return r.sorted(func(p Person) bool {
		return p.StartAt != nil && strings.HasPrefix(p.StartAt.Format(time.RFC3339), day)
	}), nil
}

func (r *personRepoStub) CountPeople(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.people), r.err
}

func (r *personRepoStub) SetSchedule(_ context.Context, id int64, schedule shift.Schedule, status shift.Status) error {
	return r.mutate(id, func(p *Person) {
		p.StartTime, p.EndTime = schedule.StartTime, schedule.EndTime
		p.StartAt, p.EndAt = schedule.StartAt, schedule.EndAt
		if status != "" {
			p.Status = status
		}
	})
}

func (r *personRepoStub) SetEnd(_ context.Context, id int64, endTime string, endAt *time.Time) error {
	return r.mutate(id, func(p *Person) {
		p.EndTime, p.EndAt = endTime, endAt
	})
}

func (r *personRepoStub) UpdateStatuses(_ context.Context, updates []StatusUpdate) ([]int64, error) {
	if r.beforeUpdate != nil {
		r.beforeUpdate()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.updateCalls = append(r.updateCalls, updates)
	var stale []int64
	for _, u := range updates {
		p, ok := r.people[u.ID]
		if !ok || !sameSchedule(p.Schedule(), u.Schedule) {
			stale = append(stale, u.ID)
			continue
		}
		p.Status = u.Status
		r.people[u.ID] = p
	}
	return stale, nil
}

func sameSchedule(a, b shift.Schedule) bool {
	return a.StartTime == b.StartTime && a.EndTime == b.EndTime &&
		sameInstant(a.StartAt, b.StartAt) && sameInstant(a.EndAt, b.EndAt)
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func (r *personRepoStub) UpdateField(_ context.Context, id int64, field PersonField, value string) error {
	return r.mutate(id, func(p *Person) {
		switch field {
		case FieldName:
			p.Name = value
		case FieldLocation:
			p.Location = value
		case FieldReleased:
			p.Released = value
		case FieldReturn:
			p.Return = value
		case FieldMessage:
			p.Message = value
		case FieldJustification:
			p.Justification = value
		}
	})
}

func (r *personRepoStub) ResetPerson(_ context.Context, id int64, status shift.Status) error {
	return r.mutate(id, func(p *Person) {
		p.Status = status
		p.StartTime, p.EndTime, p.StartAt, p.EndAt, p.Message = "", "", nil, nil, ""
	})
}

func (r *personRepoStub) ResetAll(_ context.Context, status shift.Status) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	for id, p := range r.people {
		r.people[id] = Person{ID: p.ID, Name: p.Name, Location: p.Location, Status: status, CreatedAt: p.CreatedAt}
	}
	return int64(len(r.people)), nil
}

func (r *personRepoStub) DeletePerson(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if _, ok := r.people[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(r.people, id)
	return nil
}

func (r *personRepoStub) get(id int64) Person {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.people[id]
}

func (r *personRepoStub) mutate(id int64, fn func(*Person)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	p, ok := r.people[id]
	if !ok {
		return persistence.ErrNotFound
	}
	fn(&p)
	r.people[id] = p
	return nil
}

func (r *personRepoStub) sorted(keep func(Person) bool) []Person {
	out := make([]Person, 0, len(r.people))
	for _, p := range r.people {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// historyRepoStub snapshots a personRepoStub the way the SQL store does.
type historyRepoStub struct {
	mu       sync.Mutex
	people   *personRepoStub
	records  []HistoryRecord
	days     map[string]bool
	attempts int
	listCall int
	err      error
}

func newHistoryRepoStub(people *personRepoStub) *historyRepoStub {
	return &historyRepoStub{people: people, days: make(map[string]bool)}
}

func (h *historyRepoStub) RecordSnapshot(ctx context.Context, attempt SnapshotAttempt) (SnapshotOutcome, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempts++
	if h.err != nil {
		return SnapshotOutcome{}, h.err
	}

	var outcome SnapshotOutcome
	roster, _ := h.people.ListPeople(ctx)
	for _, p := range roster {
		if p.Status == shift.StatusPending {
			outcome.Pending++
		}
	}
	for _, rec := range h.records {
		if rec.Day == attempt.Day {
			outcome.Existing++
		}
	}
	if outcome.Pending > 0 || outcome.Existing > 0 || h.days[attempt.Day] || len(roster) == 0 {
		return outcome, nil
	}

	for _, p := range roster {
		h.records = append(h.records, HistoryRecord{
			ID:         int64(len(h.records) + 1),
			PersonID:   p.ID,
			Day:        attempt.Day,
			Name:       p.Name,
			Location:   p.Location,
			Status:     p.Status,
			StartTime:  p.StartTime,
			EndTime:    p.EndTime,
			RecordedAt: attempt.RecordedAt,
		})
	}
	h.days[attempt.Day] = true
	outcome.Saved = true
	outcome.Count = len(roster)
	return outcome, nil
}

func (h *historyRepoStub) ListByDay(_ context.Context, day string) ([]HistoryRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listCall++
	if h.err != nil {
		return nil, h.err
	}
	var out []HistoryRecord
	for _, rec := range h.records {
		if rec.Day == day {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (h *historyRepoStub) ListSince(_ context.Context, fromDay string) ([]HistoryRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	var out []HistoryRecord
	for _, rec := range h.records {
		if rec.Day >= fromDay {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day > out[j].Day
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (h *historyRepoStub) count(day string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, rec := range h.records {
		if rec.Day == day {
			n++
		}
	}
	return n
}

func (h *historyRepoStub) add(day, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, HistoryRecord{ID: int64(len(h.records) + 1), Day: day, Name: name, Status: shift.StatusDone})
	h.days[day] = true
}

// recordingObserver collects transitions and snapshot outcomes.
type recordingObserver struct {
	mu          sync.Mutex
	transitions []string
	outcomes    []string
}

func (o *recordingObserver) ObserveTransition(from, to shift.Status) {
	o.mu.Lock()
	o.transitions = append(o.transitions, string(from)+"->"+string(to))
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveSnapshot(outcome string) {
	o.mu.Lock()
	o.outcomes = append(o.outcomes, outcome)
	o.mu.Unlock()
}

type notifierStub struct {
	mu      sync.Mutex
	results []SnapshotResult
	err     error
}

func (n *notifierStub) NotifySnapshot(_ context.Context, result SnapshotResult) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, result)
	return n.err
}

// newRoster wires a roster service, recorder and stores around one clock.
func newRoster(now *testClock, people ...Person) (*RosterService, *personRepoStub, *historyRepoStub) {
	repo := newPersonRepoStub(people...)
	history := newHistoryRepoStub(repo)
	recorder := NewSnapshotRecorder(history, now.Now, nil)
	return NewRosterService(repo, recorder, now.Now), repo, history
}

func today(now *testClock) string { return clock.Day(now.Now()) }
