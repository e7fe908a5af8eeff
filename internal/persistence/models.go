package persistence

import "time"

// Person is a roster row. Status holds the last derived state as stored.
type Person struct {
	ID            int64
	Name          string
	Location      string
	Status        string
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

// PersonSchedule is the set of schedule columns written together.
type PersonSchedule struct {
	StartTime string
	EndTime   string
	StartAt   *time.Time
	EndAt     *time.Time
}

// PersonField names a free-text roster column that can be edited directly.
type PersonField string

const (
	FieldName          PersonField = "name"
	FieldLocation      PersonField = "location"
	FieldReleased      PersonField = "released"
	FieldReturn        PersonField = "return_note"
	FieldMessage       PersonField = "message"
	FieldJustification PersonField = "justification"
)

// StatusChange records a recomputed status for one row. Schedule holds the
// columns the status was derived from; the change applies only while the row
// still carries them.
type StatusChange struct {
	ID       int64
	Status   string
	Schedule PersonSchedule
}

// HistoryRecord is an immutable copy of a roster row captured for a civil day.
type HistoryRecord struct {
	ID            int64
	PersonID      int64
	Day           string
	Name          string
	Location      string
	Status        string
	StartTime     string
	EndTime       string
	Message       string
	Justification string
	RecordedAt    time.Time
}

// SnapshotRequest describes one attempt to copy the roster into history.
type SnapshotRequest struct {
	Day           string
	PendingStatus string
	RecordedAt    time.Time
}

// SnapshotOutcome reports what a snapshot attempt found and wrote. Exactly one
// of Pending, Existing or Count is meaningful: the first check that stopped
// the attempt, or the number of rows written.
type SnapshotOutcome struct {
	Day      string
	Pending  int
	Existing int
	Count    int
	Saved    bool
}

// Profile is a login profile. The profile name doubles as its role.
type Profile struct {
	Name         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session represents an authentication session persisted for a profile.
type Session struct {
	ID        string
	Profile   string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt *time.Time
}
