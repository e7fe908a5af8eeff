package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/example/shift-roster/internal/clock"
)

// DefaultRecentDays is the window used when a non-positive day count is requested.
const DefaultRecentDays = 7

// ReportWriter renders a daily report, for instance as a spreadsheet.
type ReportWriter interface {
	WriteReport(w io.Writer, report Report) error
}

// HistoryService answers history and report queries. Days before today are
// immutable once recorded, so their history is cached.
type HistoryService struct {
	history HistoryRepository
	people  PersonRepository
	writer  ReportWriter
	cache   *cache.Cache
	now     func() time.Time
	logger  *slog.Logger
}

// NewHistoryService constructs a history service. A nil cache disables caching.
func NewHistoryService(history HistoryRepository, people PersonRepository, writer ReportWriter, c *cache.Cache, now func() time.Time, logger *slog.Logger) *HistoryService {
	if now == nil {
		now = time.Now
	}
	return &HistoryService{
		history: history,
		people:  people,
		writer:  writer,
		cache:   c,
		now:     now,
		logger:  defaultLogger(logger),
	}
}

func (s *HistoryService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "HistoryService", operation, attrs...)
}

// ForDate returns the snapshot of day ordered by name.
func (s *HistoryService) ForDate(ctx context.Context, principal Principal, day string) (records []HistoryRecord, err error) {
	if err = s.check(principal); err != nil {
		return nil, err
	}
	if err = validateDay(day); err != nil {
		return nil, err
	}

	logger := s.loggerWith(ctx, "ForDate", "profile", principal.Profile, "day", day)
	records, err = s.byDay(ctx, day)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load history", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}
	return records, nil
}

// Since returns the history of the last days civil days including today,
// newest day first. days <= 0 means DefaultRecentDays.
func (s *HistoryService) Since(ctx context.Context, principal Principal, days int) (recent RecentHistory, err error) {
	if err = s.check(principal); err != nil {
		return RecentHistory{}, err
	}
	if days <= 0 {
		days = DefaultRecentDays
	}

	from := clock.Day(s.now().AddDate(0, 0, -(days - 1)))
	logger := s.loggerWith(ctx, "Since", "profile", principal.Profile, "days", days, "from", from)

	records, err := s.history.ListSince(ctx, from)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load recent history", "error", err, "error_kind", ErrorKind(err))
		return RecentHistory{}, err
	}
	return RecentHistory{Days: days, FromDay: from, Records: records}, nil
}

// Report returns the snapshot of day, or when there is none the roster
// entries whose start instant falls on day ordered by start.
func (s *HistoryService) Report(ctx context.Context, principal Principal, day string) (report Report, err error) {
	if err = s.check(principal); err != nil {
		return Report{}, err
	}
	if err = validateDay(day); err != nil {
		return Report{}, err
	}

	logger := s.loggerWith(ctx, "Report", "profile", principal.Profile, "day", day)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to build report", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "report built", "source", report.Source, "rows", len(report.Rows))
	}()

	records, err := s.byDay(ctx, day)
	if err != nil {
		return Report{}, err
	}
	if len(records) > 0 {
		report = Report{Day: day, Source: ReportSourceHistory, Rows: make([]ReportRow, 0, len(records))}
		for _, rec := range records {
			report.Rows = append(report.Rows, ReportRow{
				PersonID:      rec.PersonID,
				Name:          rec.Name,
				Location:      rec.Location,
				Status:        rec.Status,
				StartTime:     rec.StartTime,
				EndTime:       rec.EndTime,
				Message:       rec.Message,
				Justification: rec.Justification,
			})
		}
		return report, nil
	}

	report = Report{Day: day, Source: ReportSourceRoster}
	if s.people == nil {
		return report, nil
	}
	started, err := s.people.ListStartedOn(ctx, day)
	if err != nil {
		return Report{}, mapRosterRepoError(err)
	}
	sort.SliceStable(started, func(i, j int) bool {
		a, b := started[i].StartAt, started[j].StartAt
		if a == nil || b == nil {
			return a != nil
		}
		return a.Before(*b)
	})
	report.Rows = make([]ReportRow, 0, len(started))
	for _, p := range started {
		report.Rows = append(report.Rows, ReportRow{
			PersonID:      p.ID,
			Name:          p.Name,
			Location:      p.Location,
			Status:        p.Status,
			StartTime:     p.StartTime,
			EndTime:       p.EndTime,
			Message:       p.Message,
			Justification: p.Justification,
		})
	}
	return report, nil
}

// ExportDay writes the report of day to w using the configured ReportWriter.
func (s *HistoryService) ExportDay(ctx context.Context, principal Principal, day string, w io.Writer) error {
	if s != nil && s.writer == nil {
		return fmt.Errorf("report writer not configured")
	}
	report, err := s.Report(ctx, principal, day)
	if err != nil {
		return err
	}
	if err := s.writer.WriteReport(w, report); err != nil {
		s.loggerWith(ctx, "ExportDay", "profile", principal.Profile, "day", day).
			ErrorContext(ctx, "failed to write report", "error", err)
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// byDay serves closed days from the cache. Today is always read from storage
// because its snapshot may still be written.
func (s *HistoryService) byDay(ctx context.Context, day string) ([]HistoryRecord, error) {
	closed := day < clock.Day(s.now())
	key := "history:" + day
	if closed && s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			return cached.([]HistoryRecord), nil
		}
	}

	records, err := s.history.ListByDay(ctx, day)
	if err != nil {
		return nil, err
	}
	if closed && s.cache != nil && len(records) > 0 {
		s.cache.SetDefault(key, records)
	}
	return records, nil
}

func (s *HistoryService) check(principal Principal) error {
	if s == nil {
		return fmt.Errorf("HistoryService is nil")
	}
	if s.history == nil {
		return fmt.Errorf("history repository not configured")
	}
	if !principal.Role.valid() {
		return ErrUnauthorized
	}
	return nil
}

// validateDay accepts a real calendar date written as YYYY-MM-DD.
func validateDay(day string) error {
	if len(day) != len(clock.DateLayout) {
		return newValidationError("date", "use YYYY-MM-DD")
	}
	if _, err := time.Parse(clock.DateLayout, day); err != nil {
		return newValidationError("date", "use YYYY-MM-DD")
	}
	return nil
}
