package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/shift-roster/internal/clock"
)

// HistoryRepository captures the persistence operations for daily snapshots.
type HistoryRepository interface {
	// RecordSnapshot must run its checks and inserts in one write transaction.
	RecordSnapshot(ctx context.Context, attempt SnapshotAttempt) (SnapshotOutcome, error)
	ListByDay(ctx context.Context, day string) ([]HistoryRecord, error)
	ListSince(ctx context.Context, fromDay string) ([]HistoryRecord, error)
}

// SnapshotNotifier is told about every saved snapshot.
type SnapshotNotifier interface {
	NotifySnapshot(ctx context.Context, result SnapshotResult) error
}

// SnapshotObserver counts snapshot attempts by outcome.
type SnapshotObserver interface {
	ObserveSnapshot(outcome string)
}

// SnapshotRecorder copies the roster into history at most once per civil day,
// as soon as no entry is pending.
type SnapshotRecorder struct {
	mu       sync.Mutex
	history  HistoryRepository
	notifier SnapshotNotifier
	observer SnapshotObserver
	now      func() time.Time
	logger   *slog.Logger
}

// NewSnapshotRecorder constructs a recorder. now must return instants in the
// roster's civil zone; its date is the snapshot day.
func NewSnapshotRecorder(history HistoryRepository, now func() time.Time, logger *slog.Logger) *SnapshotRecorder {
	if now == nil {
		now = time.Now
	}
	return &SnapshotRecorder{history: history, now: now, logger: defaultLogger(logger)}
}

// WithNotifier registers a notifier for saved snapshots.
func (r *SnapshotRecorder) WithNotifier(notifier SnapshotNotifier) *SnapshotRecorder {
	r.notifier = notifier
	return r
}

// WithObserver registers an observer for every attempt.
func (r *SnapshotRecorder) WithObserver(observer SnapshotObserver) *SnapshotRecorder {
	r.observer = observer
	return r
}

// Record attempts today's snapshot. Failures are reported in the result and
// logged; they are never returned as errors.
func (r *SnapshotRecorder) Record(ctx context.Context) (result SnapshotResult) {
	if r == nil || r.history == nil {
		return SnapshotResult{Reason: ReasonFailed, Err: fmt.Errorf("snapshot recorder not configured")}
	}

	now := r.now()
	day := clock.Day(now)
	logger := serviceLogger(ctx, r.logger, "SnapshotRecorder", "Record", "day", day)
	defer func() {
		if r.observer != nil {
			r.observer.ObserveSnapshot(result.Outcome())
		}
	}()

	outcome, err := r.record(ctx, SnapshotAttempt{Day: day, RecordedAt: now})
	result = SnapshotResult{
		Saved:    outcome.Saved,
		Day:      day,
		Pending:  outcome.Pending,
		Existing: outcome.Existing,
		Count:    outcome.Count,
	}

	switch {
	case err != nil:
		result.Reason = ReasonFailed
		result.Err = err
		logger.ErrorContext(ctx, "snapshot failed", "error", err, "error_kind", ErrorKind(err))
		return result
	case outcome.Saved:
		result.RecordedAt = now
		logger.InfoContext(ctx, "snapshot saved", "count", outcome.Count)
	case outcome.Pending > 0:
		result.Reason = ReasonPending
		logger.DebugContext(ctx, "snapshot skipped", "reason", result.Reason, "pending", outcome.Pending)
		return result
	case outcome.Existing > 0:
		result.Reason = ReasonAlreadyRecorded
		logger.DebugContext(ctx, "snapshot skipped", "reason", result.Reason, "existing", outcome.Existing)
		return result
	default:
		result.Reason = ReasonEmptyRoster
		logger.DebugContext(ctx, "snapshot skipped", "reason", result.Reason)
		return result
	}

	if r.notifier != nil {
		if notifyErr := r.notifier.NotifySnapshot(ctx, result); notifyErr != nil {
			logger.WarnContext(ctx, "snapshot notification failed", "error", notifyErr)
		}
	}
	return result
}

func (r *SnapshotRecorder) record(ctx context.Context, attempt SnapshotAttempt) (SnapshotOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history.RecordSnapshot(ctx, attempt)
}
