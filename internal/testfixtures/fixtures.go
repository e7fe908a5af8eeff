package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/shift-roster/internal/application"
	"github.com/example/shift-roster/internal/persistence"
	"github.com/example/shift-roster/internal/shift"
)

var (
	personCounter  atomic.Int64
	historyCounter atomic.Int64
	sessionCounter atomic.Uint64
)

// brt is UTC-3 without daylight saving, as observed in São Paulo since 2019.
var brt = time.FixedZone("BRT", -3*60*60)

var referenceTime = time.Date(2024, time.March, 10, 9, 0, 0, 0, brt)

// ReferenceTime returns the baseline instant used by fixtures: 09:00 on
// 2024-03-10 in São Paulo.
func ReferenceTime() time.Time {
	return referenceTime
}

// Location returns the civil zone fixtures are expressed in.
func Location() *time.Location {
	return brt
}

// ----------------------------- Person fixtures ----------------------------

// PersonFixture is a deterministic roster entry.
type PersonFixture struct {
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

type PersonOption func(*PersonFixture)

// NewPersonFixture returns a pending entry with no schedule.
func NewPersonFixture(opts ...PersonOption) PersonFixture {
	idx := personCounter.Add(1)
	fixture := PersonFixture{
		ID:        idx,
		Name:      fmt.Sprintf("Pessoa %03d", idx),
		Location:  "Portaria",
		Status:    shift.StatusPending,
		CreatedAt: referenceTime.Add(time.Duration(idx) * time.Second),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

func WithPersonID(id int64) PersonOption {
	return func(f *PersonFixture) { f.ID = id }
}

func WithPersonName(name string) PersonOption {
	return func(f *PersonFixture) { f.Name = name }
}

func WithPersonLocation(location string) PersonOption {
	return func(f *PersonFixture) { f.Location = location }
}

func WithPersonStatus(status shift.Status) PersonOption {
	return func(f *PersonFixture) { f.Status = status }
}

// WithShiftStartingAt stores a full shift window beginning at start, the way
// the start and schedule operations write it.
func WithShiftStartingAt(start time.Time) PersonOption {
	return func(f *PersonFixture) {
		iv := shift.Window(start)
		startAt, endAt := iv.Start, iv.End
		f.StartTime = shift.FromTime(startAt).String()
		f.EndTime = shift.FromTime(endAt).String()
		f.StartAt = &startAt
		f.EndAt = &endAt
	}
}

// WithTimeOfDay stores only the HH:MM strings, as rows written before full
// instants were recorded.
func WithTimeOfDay(startTime, endTime string) PersonOption {
	return func(f *PersonFixture) {
		f.StartTime = startTime
		f.EndTime = endTime
		f.StartAt = nil
		f.EndAt = nil
	}
}

func WithPersonMessage(message string) PersonOption {
	return func(f *PersonFixture) { f.Message = message }
}

func WithPersonJustification(justification string) PersonOption {
	return func(f *PersonFixture) { f.Justification = justification }
}

func WithPersonNotes(released, returnNote string) PersonOption {
	return func(f *PersonFixture) {
		f.Released = released
		f.Return = returnNote
	}
}

// Application returns the fixture as an application.Person.
func (f PersonFixture) Application() application.Person {
	return application.Person{
		ID:            f.ID,
		Name:          f.Name,
		Location:      f.Location,
		Status:        f.Status,
		Released:      f.Released,
		Return:        f.Return,
		StartTime:     f.StartTime,
		EndTime:       f.EndTime,
		StartAt:       copyTimePtr(f.StartAt),
		EndAt:         copyTimePtr(f.EndAt),
		Message:       f.Message,
		Justification: f.Justification,
		CreatedAt:     f.CreatedAt,
	}
}

// Persistence returns the fixture as a persistence.Person. The ID is kept so
// callers can compare, but repositories assign their own on insert.
func (f PersonFixture) Persistence() persistence.Person {
	return persistence.Person{
		ID:            f.ID,
		Name:          f.Name,
		Location:      f.Location,
		Status:        string(f.Status),
		Released:      f.Released,
		Return:        f.Return,
		StartTime:     f.StartTime,
		EndTime:       f.EndTime,
		StartAt:       copyTimePtr(f.StartAt),
		EndAt:         copyTimePtr(f.EndAt),
		Message:       f.Message,
		Justification: f.Justification,
		CreatedAt:     f.CreatedAt,
	}
}

// Schedule returns the stored schedule columns of the fixture.
func (f PersonFixture) Schedule() shift.Schedule {
	return shift.Schedule{
		StartTime: f.StartTime,
		EndTime:   f.EndTime,
		StartAt:   copyTimePtr(f.StartAt),
		EndAt:     copyTimePtr(f.EndAt),
	}
}

// ----------------------------- History fixtures ---------------------------

// HistoryFixture is one row of a daily snapshot.
type HistoryFixture struct {
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

type HistoryOption func(*HistoryFixture)

// NewHistoryFixture returns a done row recorded on day.
func NewHistoryFixture(day string, opts ...HistoryOption) HistoryFixture {
	idx := historyCounter.Add(1)
	fixture := HistoryFixture{
		ID:         idx,
		PersonID:   idx,
		Day:        day,
		Name:       fmt.Sprintf("Pessoa %03d", idx),
		Location:   "Portaria",
		Status:     shift.StatusDone,
		StartTime:  "08:00",
		EndTime:    "09:15",
		RecordedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// FromPerson copies the snapshot columns of p.
func FromPerson(p PersonFixture) HistoryOption {
	return func(f *HistoryFixture) {
		f.PersonID = p.ID
		f.Name = p.Name
		f.Location = p.Location
		f.Status = p.Status
		f.StartTime = p.StartTime
		f.EndTime = p.EndTime
		f.Message = p.Message
		f.Justification = p.Justification
	}
}

func WithHistoryRecordedAt(t time.Time) HistoryOption {
	return func(f *HistoryFixture) { f.RecordedAt = t }
}

// Application returns the fixture as an application.HistoryRecord.
func (f HistoryFixture) Application() application.HistoryRecord {
	return application.HistoryRecord{
		ID:            f.ID,
		PersonID:      f.PersonID,
		Day:           f.Day,
		Name:          f.Name,
		Location:      f.Location,
		Status:        f.Status,
		StartTime:     f.StartTime,
		EndTime:       f.EndTime,
		Message:       f.Message,
		Justification: f.Justification,
		RecordedAt:    f.RecordedAt,
	}
}

// Persistence returns the fixture as a persistence.HistoryRecord.
func (f HistoryFixture) Persistence() persistence.HistoryRecord {
	return persistence.HistoryRecord{
		ID:            f.ID,
		PersonID:      f.PersonID,
		Day:           f.Day,
		Name:          f.Name,
		Location:      f.Location,
		Status:        string(f.Status),
		StartTime:     f.StartTime,
		EndTime:       f.EndTime,
		Message:       f.Message,
		Justification: f.Justification,
		RecordedAt:    f.RecordedAt,
	}
}

// ----------------------------- Profile fixtures ---------------------------

// ProfileFixture is a login profile with a precomputed hash.
type ProfileFixture struct {
	Name         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewProfileFixture returns a profile for role storing hash.
func NewProfileFixture(role application.Role, hash string) ProfileFixture {
	return ProfileFixture{
		Name:         string(role),
		PasswordHash: hash,
		CreatedAt:    referenceTime,
		UpdatedAt:    referenceTime,
	}
}

func (f ProfileFixture) Application() application.Profile {
	return application.Profile{
		Name:         f.Name,
		PasswordHash: f.PasswordHash,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
}

func (f ProfileFixture) Persistence() persistence.Profile {
	return persistence.Profile{
		Name:         f.Name,
		PasswordHash: f.PasswordHash,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
}

// Principal returns the principal a session for this profile resolves to.
func (f ProfileFixture) Principal() application.Principal {
	role, _ := application.ParseRole(f.Name)
	return application.Principal{Profile: f.Name, Role: role}
}

// ----------------------------- Session fixtures ---------------------------

// SessionFixture is a deterministic session for a profile.
type SessionFixture struct {
	ID        string
	Profile   string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt *time.Time
}

type SessionOption func(*SessionFixture)

// NewSessionFixture returns a session valid for one day from ReferenceTime.
func NewSessionFixture(profile string, opts ...SessionOption) SessionFixture {
	idx := sessionCounter.Add(1)
	fixture := SessionFixture{
		ID:        fmt.Sprintf("session-%03d", idx),
		Profile:   profile,
		Token:     fmt.Sprintf("token-%03d", idx),
		CreatedAt: referenceTime,
		ExpiresAt: referenceTime.Add(24 * time.Hour),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

func WithSessionToken(token string) SessionOption {
	return func(f *SessionFixture) { f.Token = token }
}

func WithSessionExpiresAt(t time.Time) SessionOption {
	return func(f *SessionFixture) { f.ExpiresAt = t }
}

func WithSessionRevokedAt(t time.Time) SessionOption {
	return func(f *SessionFixture) { f.RevokedAt = &t }
}

func (f SessionFixture) Application() application.Session {
	return application.Session{
		ID:        f.ID,
		Profile:   f.Profile,
		Token:     f.Token,
		ExpiresAt: f.ExpiresAt,
		CreatedAt: f.CreatedAt,
		RevokedAt: copyTimePtr(f.RevokedAt),
	}
}

func (f SessionFixture) Persistence() persistence.Session {
	return persistence.Session{
		ID:        f.ID,
		Profile:   f.Profile,
		Token:     f.Token,
		ExpiresAt: f.ExpiresAt,
		CreatedAt: f.CreatedAt,
		RevokedAt: copyTimePtr(f.RevokedAt),
	}
}

func copyTimePtr(src *time.Time) *time.Time {
	if src == nil {
		return nil
	}
	v := *src
	return &v
}
