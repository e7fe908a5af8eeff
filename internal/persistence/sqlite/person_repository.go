package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/shift-roster/internal/persistence"
)

const personColumns = `id, name, location, status, released, start_time, end_time, return_note,
	message, justification, start_at, end_at, created_at`

// PersonRepository implements persistence.PersonRepository using SQLite
type PersonRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	now    func() time.Time
}

// NewPersonRepository creates a new SQLite person repository
func NewPersonRepository(pool *ConnectionPool) *PersonRepository {
	return &PersonRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		now:    time.Now,
	}
}

// CreatePerson inserts a new roster row and returns it with its assigned ID.
func (r *PersonRepository) CreatePerson(ctx context.Context, person persistence.Person) (persistence.Person, error) {
	if strings.TrimSpace(person.Name) == "" {
		return persistence.Person{}, persistence.ErrConstraintViolation
	}
	if person.Status == "" {
		person.Status = "pending"
	}
	if person.CreatedAt.IsZero() {
		person.CreatedAt = r.now().UTC()
	}

	result, err := r.helper.Exec(ctx, `
		INSERT INTO people (name, location, status, created_at)
		VALUES (?, ?, ?, ?)
	`, person.Name, person.Location, person.Status, formatTime(person.CreatedAt))
	if err != nil {
		return persistence.Person{}, r.mapper.MapError(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return persistence.Person{}, fmt.Errorf("failed to read inserted id: %w", err)
	}
	person.ID = id
	return person, nil
}

// GetPerson retrieves one roster row by ID.
func (r *PersonRepository) GetPerson(ctx context.Context, id int64) (persistence.Person, error) {
	row := r.helper.QueryRow(ctx, `SELECT `+personColumns+` FROM people WHERE id = ?`, id)
	person, err := scanPerson(row)
	if err != nil {
		return persistence.Person{}, r.mapper.MapError(err)
	}
	return person, nil
}

// ListPeople returns the whole roster ordered by ID.
func (r *PersonRepository) ListPeople(ctx context.Context) ([]persistence.Person, error) {
	return r.list(ctx, `SELECT `+personColumns+` FROM people ORDER BY id ASC`)
}

// ListStartedOn returns the rows whose start instant falls on day
// (YYYY-MM-DD in the zone it was stored with), ordered by start.
func (r *PersonRepository) ListStartedOn(ctx context.Context, day string) ([]persistence.Person, error) {
	return r.list(ctx, `
		SELECT `+personColumns+`
		FROM people
		WHERE start_at LIKE ? || '%'
		ORDER BY start_at ASC, id ASC
	`, day)
}

// CountPeople returns the number of roster rows.
func (r *PersonRepository) CountPeople(ctx context.Context) (int, error) {
	var total int
	if err := r.helper.QueryRow(ctx, `SELECT COUNT(*) FROM people`).Scan(&total); err != nil {
		return 0, r.mapper.MapError(err)
	}
	return total, nil
}

// SetSchedule writes the start and end columns. An empty status keeps the
// stored one.
func (r *PersonRepository) SetSchedule(ctx context.Context, id int64, schedule persistence.PersonSchedule, status string) error {
	err := r.helper.ExecAffecting(ctx, r.pool.DB(), `
		UPDATE people
		SET start_time = ?, end_time = ?, start_at = ?, end_at = ?, status = COALESCE(NULLIF(?, ''), status)
		WHERE id = ?
	`,
		nullString(schedule.StartTime),
		nullString(schedule.EndTime),
		nullTime(schedule.StartAt),
		nullTime(schedule.EndAt),
		status,
		id,
	)
	return r.mapper.MapError(err)
}

// SetEnd writes only the end columns.
func (r *PersonRepository) SetEnd(ctx context.Context, id int64, endTime string, endAt *time.Time) error {
	err := r.helper.ExecAffecting(ctx, r.pool.DB(), `
		UPDATE people SET end_time = ?, end_at = ? WHERE id = ?
	`, nullString(endTime), nullTime(endAt), id)
	return r.mapper.MapError(err)
}

// UpdateStatuses persists recomputed statuses in one transaction. A row whose
// schedule no longer matches the one the status was derived from is left
// untouched and its id returned as stale.
func (r *PersonRepository) UpdateStatuses(ctx context.Context, changes []persistence.StatusChange) ([]int64, error) {
	if len(changes) == 0 {
		return nil, nil
	}
	var stale []int64
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			UPDATE people SET status = ?
			WHERE id = ?
				AND COALESCE(start_time, '') = ? AND COALESCE(end_time, '') = ?
				AND datetime(start_at) IS datetime(?) AND datetime(end_at) IS datetime(?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		stale = stale[:0]
		for _, change := range changes {
			result, err := stmt.ExecContext(ctx,
				change.Status,
				change.ID,
				change.Schedule.StartTime,
				change.Schedule.EndTime,
				nullTime(change.Schedule.StartAt),
				nullTime(change.Schedule.EndAt),
			)
			if err != nil {
				return fmt.Errorf("update status of %d: %w", change.ID, err)
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			if affected == 0 {
				stale = append(stale, change.ID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	return stale, nil
}

// UpdateField writes one free-text column.
func (r *PersonRepository) UpdateField(ctx context.Context, id int64, field persistence.PersonField, value string) error {
	column, ok := fieldColumns[field]
	if !ok {
		return fmt.Errorf("%w: unknown field %q", persistence.ErrConstraintViolation, field)
	}
	if column == "name" && strings.TrimSpace(value) == "" {
		return persistence.ErrConstraintViolation
	}

	// column comes from the fixed allow-list above
	query := fmt.Sprintf(`UPDATE people SET %s = ? WHERE id = ?`, column)
	var arg any = value
	if column != "name" && column != "location" {
		arg = nullString(value)
	}
	return r.mapper.MapError(r.helper.ExecAffecting(ctx, r.pool.DB(), query, arg, id))
}

// ResetPerson clears a row's schedule and message and stores status.
func (r *PersonRepository) ResetPerson(ctx context.Context, id int64, status string) error {
	err := r.helper.ExecAffecting(ctx, r.pool.DB(), `
		UPDATE people
		SET status = ?, start_time = NULL, end_time = NULL, start_at = NULL, end_at = NULL, message = NULL
		WHERE id = ?
	`, status, id)
	return r.mapper.MapError(err)
}

// ResetAll clears every row's schedule and notes and returns how many rows
// changed.
func (r *PersonRepository) ResetAll(ctx context.Context, status string) (int64, error) {
	result, err := r.helper.Exec(ctx, `
		UPDATE people
		SET status = ?, released = NULL, start_time = NULL, end_time = NULL,
			start_at = NULL, end_at = NULL, return_note = NULL, message = NULL, justification = NULL
	`, status)
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected, nil
}

// DeletePerson removes a roster row. History rows keep their copy.
func (r *PersonRepository) DeletePerson(ctx context.Context, id int64) error {
	err := r.helper.ExecAffecting(ctx, r.pool.DB(), `DELETE FROM people WHERE id = ?`, id)
	return r.mapper.MapError(err)
}

func (r *PersonRepository) list(ctx context.Context, query string, args ...any) ([]persistence.Person, error) {
	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var people []persistence.Person
	for rows.Next() {
		person, err := scanPerson(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		people = append(people, person)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return people, nil
}

var fieldColumns = map[persistence.PersonField]string{
	persistence.FieldName:          "name",
	persistence.FieldLocation:      "location",
	persistence.FieldReleased:      "released",
	persistence.FieldReturn:        "return_note",
	persistence.FieldMessage:       "message",
	persistence.FieldJustification: "justification",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPerson(row rowScanner) (persistence.Person, error) {
	var (
		person                                 persistence.Person
		released, startTime, endTime, ret      sql.NullString
		message, justification, startAt, endAt sql.NullString
		createdAt                              string
	)
	err := row.Scan(
		&person.ID,
		&person.Name,
		&person.Location,
		&person.Status,
		&released,
		&startTime,
		&endTime,
		&ret,
		&message,
		&justification,
		&startAt,
		&endAt,
		&createdAt,
	)
	if err != nil {
		return persistence.Person{}, err
	}

	person.Released = released.String
	person.StartTime = startTime.String
	person.EndTime = endTime.String
	person.Return = ret.String
	person.Message = message.String
	person.Justification = justification.String

	// unparsable instants read as unset so the row classifies as pending
	person.StartAt, _ = parseTimePtr(startAt)
	person.EndAt, _ = parseTimePtr(endAt)
	if person.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return persistence.Person{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return person, nil
}
