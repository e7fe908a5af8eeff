package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/shift-roster/internal/persistence"
)

const historyColumns = `id, person_id, day, name, location, status, start_time, end_time,
	message, justification, recorded_at`

// HistoryRepository implements persistence.HistoryRepository using SQLite
type HistoryRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewHistoryRepository creates a new SQLite history repository
func NewHistoryRepository(pool *ConnectionPool) *HistoryRepository {
	return &HistoryRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

// RecordSnapshot copies every roster row into history for req.Day, unless a
// row still carries req.PendingStatus or the day was already recorded. The
// checks and the inserts share one immediate transaction, so concurrent
// attempts for the same day write at most one set of rows.
func (r *HistoryRepository) RecordSnapshot(ctx context.Context, req persistence.SnapshotRequest) (persistence.SnapshotOutcome, error) {
	if req.Day == "" {
		return persistence.SnapshotOutcome{}, persistence.ErrConstraintViolation
	}

	var outcome persistence.SnapshotOutcome
	err := r.retry.WithRetry(ctx, func() error {
		outcome = persistence.SnapshotOutcome{Day: req.Day}
		return r.pool.WithImmediateTransaction(ctx, func(conn *sql.Conn) error {
			return r.recordLocked(ctx, conn, req, &outcome)
		})
	})
	if err != nil {
		return persistence.SnapshotOutcome{Day: req.Day}, r.mapper.MapError(err)
	}
	return outcome, nil
}

func (r *HistoryRepository) recordLocked(ctx context.Context, q queryer, req persistence.SnapshotRequest, outcome *persistence.SnapshotOutcome) error {
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM people WHERE status = ?`, req.PendingStatus,
	).Scan(&outcome.Pending); err != nil {
		return fmt.Errorf("count pending: %w", err)
	}
	if outcome.Pending > 0 {
		return nil
	}

	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM history_records WHERE day = ?`, req.Day,
	).Scan(&outcome.Existing); err != nil {
		return fmt.Errorf("count existing history: %w", err)
	}
	if outcome.Existing > 0 {
		return nil
	}

	recordedAt := formatTime(req.RecordedAt)
	result, err := q.ExecContext(ctx, `
		INSERT INTO history_records
			(person_id, day, name, location, status, start_time, end_time, message, justification, recorded_at)
		SELECT id, ?, name, location, status, start_time, end_time, message, justification, ?
		FROM people
		ORDER BY id ASC
	`, req.Day, recordedAt)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if inserted == 0 {
		return nil
	}

	// the primary key on day rejects a second set even if the count above
	// were bypassed
	if _, err := q.ExecContext(ctx,
		`INSERT INTO snapshot_days (day, row_count, recorded_at) VALUES (?, ?, ?)`,
		req.Day, inserted, recordedAt,
	); err != nil {
		return fmt.Errorf("insert snapshot day: %w", err)
	}

	outcome.Count = int(inserted)
	outcome.Saved = true
	return nil
}

// ListByDay returns the history of one day ordered by name.
func (r *HistoryRepository) ListByDay(ctx context.Context, day string) ([]persistence.HistoryRecord, error) {
	return r.list(ctx, `
		SELECT `+historyColumns+`
		FROM history_records
		WHERE day = ?
		ORDER BY name ASC, id ASC
	`, day)
}

// ListSince returns history from fromDay onwards, newest day first.
func (r *HistoryRepository) ListSince(ctx context.Context, fromDay string) ([]persistence.HistoryRecord, error) {
	return r.list(ctx, `
		SELECT `+historyColumns+`
		FROM history_records
		WHERE day >= ?
		ORDER BY day DESC, name ASC, id ASC
	`, fromDay)
}

func (r *HistoryRepository) list(ctx context.Context, query string, args ...any) ([]persistence.HistoryRecord, error) {
	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var records []persistence.HistoryRecord
	for rows.Next() {
		var (
			record                                     persistence.HistoryRecord
			startTime, endTime, message, justification sql.NullString
			recordedAt                                 string
		)
		if err := rows.Scan(
			&record.ID,
			&record.PersonID,
			&record.Day,
			&record.Name,
			&record.Location,
			&record.Status,
			&startTime,
			&endTime,
			&message,
			&justification,
			&recordedAt,
		); err != nil {
			return nil, r.mapper.MapError(err)
		}
		record.StartTime = startTime.String
		record.EndTime = endTime.String
		record.Message = message.String
		record.Justification = justification.String
		if record.RecordedAt, err = time.Parse(time.RFC3339, recordedAt); err != nil {
			return nil, fmt.Errorf("failed to parse recorded_at: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return records, nil
}
