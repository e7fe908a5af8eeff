package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/shift-roster/internal/persistence"
	"github.com/example/shift-roster/internal/shift"
)

// PersonRepository captures the persistence operations needed by the roster.
type PersonRepository interface {
	CreatePerson(ctx context.Context, person Person) (Person, error)
	GetPerson(ctx context.Context, id int64) (Person, error)
	ListPeople(ctx context.Context) ([]Person, error)
	ListStartedOn(ctx context.Context, day string) ([]Person, error)
	CountPeople(ctx context.Context) (int, error)
	// SetSchedule writes the schedule columns; an empty status keeps the stored one.
	SetSchedule(ctx context.Context, id int64, schedule shift.Schedule, status shift.Status) error
	SetEnd(ctx context.Context, id int64, endTime string, endAt *time.Time) error
	// UpdateStatuses applies each update only while the row still holds the
	// schedule it was computed from, and returns the ids it skipped.
	UpdateStatuses(ctx context.Context, updates []StatusUpdate) (stale []int64, err error)
	UpdateField(ctx context.Context, id int64, field PersonField, value string) error
	ResetPerson(ctx context.Context, id int64, status shift.Status) error
	ResetAll(ctx context.Context, status shift.Status) (int64, error)
	DeletePerson(ctx context.Context, id int64) error
}

// SnapshotTrigger attempts the daily snapshot after a schedule write.
type SnapshotTrigger interface {
	Record(ctx context.Context) SnapshotResult
}

// TransitionObserver is told about every persisted status change.
type TransitionObserver interface {
	ObserveTransition(from, to shift.Status)
}

// RosterService orchestrates authorization, time rules and persistence for
// the live roster.
type RosterService struct {
	people    PersonRepository
	snapshots SnapshotTrigger
	observer  TransitionObserver
	now       func() time.Time
	duration  time.Duration
	logger    *slog.Logger
}

// NewRosterService constructs a roster service with the provided dependencies.
func NewRosterService(people PersonRepository, snapshots SnapshotTrigger, now func() time.Time) *RosterService {
	return NewRosterServiceWithLogger(people, snapshots, now, nil)
}

// NewRosterServiceWithLogger constructs a roster service with a specified logger.
// now must return instants in the roster's civil zone.
func NewRosterServiceWithLogger(people PersonRepository, snapshots SnapshotTrigger, now func() time.Time, logger *slog.Logger) *RosterService {
	if now == nil {
		now = time.Now
	}
	return &RosterService{
		people:    people,
		snapshots: snapshots,
		now:       now,
		duration:  shift.DefaultDuration,
		logger:    defaultLogger(logger),
	}
}

// WithShiftDuration overrides the length of started shifts.
func (s *RosterService) WithShiftDuration(d time.Duration) *RosterService {
	if d > 0 {
		s.duration = d
	}
	return s
}

// WithTransitionObserver registers an observer for status changes.
func (s *RosterService) WithTransitionObserver(observer TransitionObserver) *RosterService {
	s.observer = observer
	return s
}

func (s *RosterService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "RosterService", operation, attrs...)
}

// GetRoster recomputes every entry's status from the clock, persists the
// entries whose status changed, and returns the roster ordered by ID.
func (s *RosterService) GetRoster(ctx context.Context, principal Principal) (people []Person, err error) {
	if err = s.check(principal, false); err != nil {
		return nil, err
	}

	logger := s.loggerWith(ctx, "GetRoster", "profile", principal.Profile)
	var updates []StatusUpdate
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to reconcile roster", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "roster reconciled", "count", len(people), "changed", len(updates))
	}()

	people, err = s.people.ListPeople(ctx)
	if err != nil {
		err = mapRosterRepoError(err)
		return nil, err
	}

	now := s.now()
	from := make(map[int64]shift.Status)
	for i := range people {
		schedule := people[i].Schedule()
		status := shift.Classify(now, shift.Resolve(schedule, now))
		if status == people[i].Status {
			continue
		}
		updates = append(updates, StatusUpdate{ID: people[i].ID, Status: status, Schedule: schedule})
		from[people[i].ID] = people[i].Status
		people[i].Status = status
	}

	if len(updates) == 0 {
		return people, nil
	}
	stale, err := s.people.UpdateStatuses(ctx, updates)
	if err != nil {
		err = mapRosterRepoError(err)
		return nil, err
	}
	if len(stale) > 0 {
		logger.DebugContext(ctx, "rows changed while reconciling; keeping stored state", "stale", stale)
		if people, err = s.refresh(ctx, people, stale); err != nil {
			err = mapRosterRepoError(err)
			return nil, err
		}
		for _, id := range stale {
			delete(from, id)
		}
	}
	if s.observer != nil {
		for _, u := range updates {
			if prev, ok := from[u.ID]; ok {
				s.observer.ObserveTransition(prev, u.Status)
			}
		}
	}
	return people, nil
}

// refresh replaces the stale entries of people with their stored rows,
// dropping entries deleted in the meantime.
func (s *RosterService) refresh(ctx context.Context, people []Person, stale []int64) ([]Person, error) {
	skip := make(map[int64]bool, len(stale))
	for _, id := range stale {
		skip[id] = true
	}
	out := people[:0]
	for _, p := range people {
		if !skip[p.ID] {
			out = append(out, p)
			continue
		}
		current, err := s.people.GetPerson(ctx, p.ID)
		if errors.Is(err, persistence.ErrNotFound) || errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, current)
	}
	return out, nil
}

// ListRosterRaw returns the roster as stored, without recomputing statuses.
func (s *RosterService) ListRosterRaw(ctx context.Context, principal Principal) ([]Person, error) {
	if err := s.check(principal, false); err != nil {
		return nil, err
	}
	people, err := s.people.ListPeople(ctx)
	if err != nil {
		err = mapRosterRepoError(err)
		s.loggerWith(ctx, "ListRosterRaw", "profile", principal.Profile).
			ErrorContext(ctx, "failed to list roster", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}
	return people, nil
}

// CountPeople returns the roster size.
func (s *RosterService) CountPeople(ctx context.Context, principal Principal) (int, error) {
	if err := s.check(principal, false); err != nil {
		return 0, err
	}
	total, err := s.people.CountPeople(ctx)
	if err != nil {
		err = mapRosterRepoError(err)
		s.loggerWith(ctx, "CountPeople", "profile", principal.Profile).
			ErrorContext(ctx, "failed to count roster", "error", err, "error_kind", ErrorKind(err))
		return 0, err
	}
	return total, nil
}

// CreatePerson validates input and adds a pending roster entry.
func (s *RosterService) CreatePerson(ctx context.Context, params CreatePersonParams) (person Person, err error) {
	if err = s.check(params.Principal, true); err != nil {
		return Person{}, err
	}

	logger := s.loggerWith(ctx, "CreatePerson", "profile", params.Principal.Profile)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create person", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("person_id", person.ID).InfoContext(ctx, "person created")
	}()

	name := strings.TrimSpace(params.Name)
	if name == "" {
		err = newValidationError("name", "name is required")
		return Person{}, err
	}

	person, err = s.people.CreatePerson(ctx, Person{
		Name:      name,
		Location:  strings.TrimSpace(params.Location),
		Status:    shift.StatusPending,
		CreatedAt: s.now(),
	})
	if err != nil {
		err = mapRosterRepoError(err)
		return Person{}, err
	}
	return person, nil
}

// DeletePerson removes a roster entry. A missing entry is not an error.
func (s *RosterService) DeletePerson(ctx context.Context, principal Principal, id int64) error {
	if err := s.check(principal, true); err != nil {
		return err
	}
	logger := s.loggerWith(ctx, "DeletePerson", "profile", principal.Profile, "person_id", id)

	if err := s.absorbNotFound(ctx, logger, s.people.DeletePerson(ctx, id)); err != nil {
		logger.ErrorContext(ctx, "failed to delete person", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	logger.InfoContext(ctx, "person deleted")
	return nil
}

// StartPerson starts a shift now: start is the current instant, end is one
// shift duration later, status becomes active. The daily snapshot is
// attempted afterwards even when the entry does not exist.
func (s *RosterService) StartPerson(ctx context.Context, principal Principal, id int64) (snapshot SnapshotResult, err error) {
	if err = s.check(principal, true); err != nil {
		return SnapshotResult{}, err
	}

	logger := s.loggerWith(ctx, "StartPerson", "profile", principal.Profile, "person_id", id)
	start := s.now()
	end := start.Add(s.duration)

	err = s.people.SetSchedule(ctx, id, shift.Schedule{
		StartTime: shift.FromTime(start).String(),
		EndTime:   shift.FromTime(end).String(),
		StartAt:   &start,
		EndAt:     &end,
	}, shift.StatusActive)
	if err = s.absorbNotFound(ctx, logger, err); err != nil {
		logger.ErrorContext(ctx, "failed to start person", "error", err, "error_kind", ErrorKind(err))
		return SnapshotResult{}, err
	}

	logger.InfoContext(ctx, "person started", "start_at", start, "end_at", end)
	return s.recordSnapshot(ctx), nil
}

// EditSchedule places a new start time-of-day on today's date and sets the
// end one shift duration later.
func (s *RosterService) EditSchedule(ctx context.Context, params EditScheduleParams) (SnapshotResult, error) {
	if err := s.check(params.Principal, true); err != nil {
		return SnapshotResult{}, err
	}
	tod, err := shift.ParseTimeOfDay(params.StartTime)
	if err != nil {
		return SnapshotResult{}, newValidationError(string(FieldStartTime), "time must be HH:MM")
	}
	return s.reschedule(ctx, "EditSchedule", params.Principal, params.PersonID, tod.On(s.now()))
}

// SetEndTime sets the end of a shift. The end is placed on the date of the
// stored start instant (or today when there is none) and moves to the next
// day when it does not come after a stored start.
func (s *RosterService) SetEndTime(ctx context.Context, params SetEndTimeParams) (snapshot SnapshotResult, err error) {
	if err = s.check(params.Principal, false); err != nil {
		return SnapshotResult{}, err
	}
	tod, parseErr := shift.ParseTimeOfDay(params.EndTime)
	if parseErr != nil {
		return SnapshotResult{}, newValidationError(string(FieldEndTime), "time must be HH:MM")
	}

	logger := s.loggerWith(ctx, "SetEndTime", "profile", params.Principal.Profile, "person_id", params.PersonID)

	person, err := s.people.GetPerson(ctx, params.PersonID)
	if err = s.absorbNotFound(ctx, logger, err); err != nil {
		logger.ErrorContext(ctx, "failed to load person", "error", err, "error_kind", ErrorKind(err))
		return SnapshotResult{}, err
	}

	base := s.now()
	if person.StartAt != nil {
		base = person.StartAt.In(base.Location())
	}
	end := tod.On(base)
	if person.StartAt != nil {
		end = shift.RollOver(base, end)
	}

	err = s.people.SetEnd(ctx, params.PersonID, tod.String(), &end)
	if err = s.absorbNotFound(ctx, logger, err); err != nil {
		logger.ErrorContext(ctx, "failed to set end time", "error", err, "error_kind", ErrorKind(err))
		return SnapshotResult{}, err
	}

	logger.InfoContext(ctx, "end time set", "end_at", end)
	return s.recordSnapshot(ctx), nil
}

// UpdateField edits one column from the allow-list. Time fields go through
// the schedule rules and attempt the daily snapshot; snapshot is the zero
// value for the other fields.
func (s *RosterService) UpdateField(ctx context.Context, params UpdateFieldParams) (snapshot SnapshotResult, err error) {
	if err = s.check(params.Principal, false); err != nil {
		return SnapshotResult{}, err
	}
	if !editableFields[params.Field] {
		return SnapshotResult{}, newValidationError("field", "field cannot be edited")
	}

	switch params.Field {
	case FieldEndTime:
		return s.SetEndTime(ctx, SetEndTimeParams{Principal: params.Principal, PersonID: params.PersonID, EndTime: params.Value})
	case FieldStartTime:
		return s.updateStartTime(ctx, params)
	}

	logger := s.loggerWith(ctx, "UpdateField",
		"profile", params.Principal.Profile,
		"person_id", params.PersonID,
		"field", params.Field,
	)

	value := params.Value
	if params.Field == FieldName {
		value = strings.TrimSpace(value)
		if value == "" {
			return SnapshotResult{}, newValidationError(string(FieldName), "name is required")
		}
	}

	if err = s.absorbNotFound(ctx, logger, s.people.UpdateField(ctx, params.PersonID, params.Field, value)); err != nil {
		logger.ErrorContext(ctx, "failed to update field", "error", err, "error_kind", ErrorKind(err))
		return SnapshotResult{}, err
	}
	logger.InfoContext(ctx, "field updated")
	return SnapshotResult{}, nil
}

// updateStartTime keeps the date of the stored start instant (today when
// there is none) and otherwise behaves like EditSchedule.
func (s *RosterService) updateStartTime(ctx context.Context, params UpdateFieldParams) (SnapshotResult, error) {
	tod, err := shift.ParseTimeOfDay(params.Value)
	if err != nil {
		return SnapshotResult{}, newValidationError(string(FieldStartTime), "time must be HH:MM")
	}

	logger := s.loggerWith(ctx, "UpdateField", "profile", params.Principal.Profile, "person_id", params.PersonID, "field", params.Field)
	person, err := s.people.GetPerson(ctx, params.PersonID)
	if err = s.absorbNotFound(ctx, logger, err); err != nil {
		logger.ErrorContext(ctx, "failed to load person", "error", err, "error_kind", ErrorKind(err))
		return SnapshotResult{}, err
	}

	day := s.now()
	if person.StartAt != nil {
		day = person.StartAt.In(day.Location())
	}
	return s.reschedule(ctx, "UpdateField", params.Principal, params.PersonID, tod.On(day))
}

func (s *RosterService) reschedule(ctx context.Context, operation string, principal Principal, id int64, start time.Time) (SnapshotResult, error) {
	logger := s.loggerWith(ctx, operation, "profile", principal.Profile, "person_id", id)
	end := start.Add(s.duration)

	err := s.people.SetSchedule(ctx, id, shift.Schedule{
		StartTime: shift.FromTime(start).String(),
		EndTime:   shift.FromTime(end).String(),
		StartAt:   &start,
		EndAt:     &end,
	}, "")
	if err = s.absorbNotFound(ctx, logger, err); err != nil {
		logger.ErrorContext(ctx, "failed to reschedule person", "error", err, "error_kind", ErrorKind(err))
		return SnapshotResult{}, err
	}

	logger.InfoContext(ctx, "person rescheduled", "start_at", start, "end_at", end)
	return s.recordSnapshot(ctx), nil
}

// ResetPerson returns an entry to pending and clears its schedule and message.
func (s *RosterService) ResetPerson(ctx context.Context, principal Principal, id int64) error {
	if err := s.check(principal, true); err != nil {
		return err
	}
	logger := s.loggerWith(ctx, "ResetPerson", "profile", principal.Profile, "person_id", id)

	if err := s.absorbNotFound(ctx, logger, s.people.ResetPerson(ctx, id, shift.StatusPending)); err != nil {
		logger.ErrorContext(ctx, "failed to reset person", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	logger.InfoContext(ctx, "person reset")
	return nil
}

// ResetAll returns every entry to pending and clears schedules and notes.
func (s *RosterService) ResetAll(ctx context.Context, principal Principal) (int64, error) {
	if err := s.check(principal, true); err != nil {
		return 0, err
	}
	logger := s.loggerWith(ctx, "ResetAll", "profile", principal.Profile)

	affected, err := s.people.ResetAll(ctx, shift.StatusPending)
	if err != nil {
		err = mapRosterRepoError(err)
		logger.ErrorContext(ctx, "failed to reset roster", "error", err, "error_kind", ErrorKind(err))
		return 0, err
	}
	logger.InfoContext(ctx, "roster reset", "count", affected)
	return affected, nil
}

func (s *RosterService) recordSnapshot(ctx context.Context) SnapshotResult {
	if s.snapshots == nil {
		return SnapshotResult{}
	}
	return s.snapshots.Record(ctx)
}

func (s *RosterService) check(principal Principal, operator bool) error {
	if s == nil {
		return fmt.Errorf("RosterService is nil")
	}
	if s.people == nil {
		return fmt.Errorf("person repository not configured")
	}
	if !principal.Role.valid() {
		return ErrUnauthorized
	}
	if operator && !principal.Role.IsOperator() {
		return ErrUnauthorized
	}
	return nil
}

// absorbNotFound turns a missing roster entry into a logged no-op.
func (s *RosterService) absorbNotFound(ctx context.Context, logger *slog.Logger, err error) error {
	err = mapRosterRepoError(err)
	if errors.Is(err, ErrNotFound) {
		logger.WarnContext(ctx, "person not found; treated as no-op")
		return nil
	}
	return err
}

func mapRosterRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		return newValidationError("person", "invalid roster entry")
	}
	return err
}
