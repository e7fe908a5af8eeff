package application

import (
	"strings"
	"time"

	"github.com/example/shift-roster/internal/shift"
)

// Role is the closed set of login profiles. The profile name is the role.
type Role string

const (
	RoleInspetoria Role = "inspetoria"
	RoleCCP        Role = "ccp"
	RoleTurma      Role = "turma"
)

// ParseRole maps a profile name to its role.
func ParseRole(profile string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(profile)))
	switch role {
	case RoleInspetoria, RoleCCP, RoleTurma:
		return role, true
	}
	return "", false
}

// IsOperator reports whether the role may create, start, reschedule and reset people.
func (r Role) IsOperator() bool {
	return r == RoleInspetoria || r == RoleCCP
}

func (r Role) valid() bool {
	_, ok := ParseRole(string(r))
	return ok
}

// Principal represents the authenticated profile invoking a service method.
type Principal struct {
	Profile string
	Role    Role
}

// Person is a roster entry as seen by the services.
type Person struct {
	ID            int64
	Name          string
	Location      string
	Status        shift.Status
	Released      string
	Return        string
	StartTime     string
	EndTime       string
	StartAt       *time.Time
	EndAt         *time.Time
	Message       string
	Justification string
	CreatedAt     time.Time
}

// Schedule returns the schedule columns of p.
func (p Person) Schedule() shift.Schedule {
	return shift.Schedule{
		StartTime: p.StartTime,
		EndTime:   p.EndTime,
		StartAt:   p.StartAt,
		EndAt:     p.EndAt,
	}
}

// StatusUpdate is a recomputed status for one roster entry, together with
// the schedule it was computed from.
type StatusUpdate struct {
	ID       int64
	Status   shift.Status
	Schedule shift.Schedule
}

// PersonField names an editable roster column.
type PersonField string

const (
	FieldName          PersonField = "name"
	FieldLocation      PersonField = "location"
	FieldReleased      PersonField = "released"
	FieldReturn        PersonField = "return"
	FieldMessage       PersonField = "message"
	FieldJustification PersonField = "justification"
	FieldStartTime     PersonField = "start_time"
	FieldEndTime       PersonField = "end_time"
)

// status is derived from the schedule and never edited directly.
var editableFields = map[PersonField]bool{
	FieldName:          true,
	FieldLocation:      true,
	FieldReleased:      true,
	FieldReturn:        true,
	FieldMessage:       true,
	FieldJustification: true,
	FieldStartTime:     true,
	FieldEndTime:       true,
}

// CreatePersonParams wraps the data required to add a roster entry.
type CreatePersonParams struct {
	Principal Principal
	Name      string
	Location  string
}

// EditScheduleParams wraps a new start time-of-day for a roster entry.
type EditScheduleParams struct {
	Principal Principal
	PersonID  int64
	StartTime string
}

// SetEndTimeParams wraps a new end time-of-day for a roster entry.
type SetEndTimeParams struct {
	Principal Principal
	PersonID  int64
	EndTime   string
}

// UpdateFieldParams wraps a single field edit.
type UpdateFieldParams struct {
	Principal Principal
	PersonID  int64
	Field     PersonField
	Value     string
}

// HistoryRecord is one roster row as captured by a daily snapshot.
type HistoryRecord struct {
	ID            int64
	PersonID      int64
	Day           string
	Name          string
	Location      string
	Status        shift.Status
	StartTime     string
	EndTime       string
	Message       string
	Justification string
	RecordedAt    time.Time
}

// SnapshotAttempt asks the history store to record day.
type SnapshotAttempt struct {
	Day        string
	RecordedAt time.Time
}

// SnapshotOutcome is what the history store found and wrote for an attempt.
type SnapshotOutcome struct {
	Pending  int
	Existing int
	Count    int
	Saved    bool
}

// Reasons reported when a snapshot is not written.
const (
	ReasonPending         = "pending entries remain"
	ReasonAlreadyRecorded = "already recorded"
	ReasonEmptyRoster     = "roster is empty"
	ReasonFailed          = "snapshot failed"
)

// SnapshotResult reports one snapshot attempt. It never fails the operation
// that triggered it; Err carries the storage failure, if any.
type SnapshotResult struct {
	Saved    bool
	Reason   string
	Day      string
	Pending  int
	Existing int
	Count    int

	// RecordedAt is the instant stamped on the history rows; zero unless Saved.
	RecordedAt time.Time
	Err        error
}

// Outcome is a stable label for metrics and logs.
func (r SnapshotResult) Outcome() string {
	switch {
	case r.Err != nil:
		return "error"
	case r.Saved:
		return "saved"
	case r.Reason == ReasonPending:
		return "pending"
	case r.Reason == ReasonAlreadyRecorded:
		return "already_recorded"
	case r.Reason == ReasonEmptyRoster:
		return "empty"
	}
	return "skipped"
}

// ReportSource tells where a daily report came from.
type ReportSource string

const (
	ReportSourceHistory ReportSource = "history"
	ReportSourceRoster  ReportSource = "roster"
)

// ReportRow is one line of a daily report.
type ReportRow struct {
	PersonID      int64
	Name          string
	Location      string
	Status        shift.Status
	StartTime     string
	EndTime       string
	Message       string
	Justification string
}

// Report is the daily report: the snapshot of day when one exists, otherwise
// the roster entries that started on day.
type Report struct {
	Day    string
	Source ReportSource
	Rows   []ReportRow
}

// RecentHistory is the history of the last Days civil days.
type RecentHistory struct {
	Days    int
	FromDay string
	Records []HistoryRecord
}

// Profile is a login profile with its password hash.
type Profile struct {
	Name         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session is an issued login session.
type Session struct {
	ID        string
	Profile   string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt *time.Time
}

// AuthenticateParams carries login credentials.
type AuthenticateParams struct {
	Profile  string
	Password string
}

// AuthenticateResult is a successful login.
type AuthenticateResult struct {
	Principal Principal
	Session   Session
}

// ResetPasswordParams carries a password reset request.
type ResetPasswordParams struct {
	Profile     string
	Token       string
	NewPassword string
}
