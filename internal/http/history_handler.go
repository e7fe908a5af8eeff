package http

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/shift-roster/internal/application"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type historyService interface {
	ForDate(ctx context.Context, principal application.Principal, day string) ([]application.HistoryRecord, error)
	Since(ctx context.Context, principal application.Principal, days int) (application.RecentHistory, error)
	Report(ctx context.Context, principal application.Principal, day string) (application.Report, error)
	ExportDay(ctx context.Context, principal application.Principal, day string, w io.Writer) error
}

type HistoryHandler struct {
	service   historyService
	responder responder
	logger    *slog.Logger
}

func NewHistoryHandler(service historyService, logger *slog.Logger) *HistoryHandler {
	base := defaultLogger(logger)
	return &HistoryHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *HistoryHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "HistoryHandler", operation, attrs...)
}

// ForDate serves GET /history?date=YYYY-MM-DD.
func (h *HistoryHandler) ForDate(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	day := strings.TrimSpace(r.URL.Query().Get("date"))
	if day == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingDate)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	records, err := h.service.ForDate(r.Context(), principal, day)
	if err != nil {
		h.log(r.Context(), "ForDate", "day", day).ErrorContext(r.Context(), "history lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, historyResponse{Date: day, Records: toHistoryDTOs(records)})
}

// Recent serves GET /history/recent/{days}.
func (h *HistoryHandler) Recent(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	days, err := strconv.Atoi(strings.TrimSpace(r.PathValue("days")))
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDays)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	recent, err := h.service.Since(r.Context(), principal, days)
	if err != nil {
		h.log(r.Context(), "Recent", "days", days).ErrorContext(r.Context(), "recent history lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, recentResponse{
		Days:    recent.Days,
		From:    recent.FromDay,
		Records: toHistoryDTOs(recent.Records),
	})
}

// Report serves GET /reports/{date}.
func (h *HistoryHandler) Report(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	day := r.PathValue("date")
	principal, _ := PrincipalFromContext(r.Context())
	report, err := h.service.Report(r.Context(), principal, day)
	if err != nil {
		h.log(r.Context(), "Report", "day", day).ErrorContext(r.Context(), "report failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	rows := make([]reportRowDTO, 0, len(report.Rows))
	for _, row := range report.Rows {
		rows = append(rows, reportRowDTO{
			PersonID:      row.PersonID,
			Name:          row.Name,
			Location:      row.Location,
			Status:        string(row.Status),
			StartTime:     row.StartTime,
			EndTime:       row.EndTime,
			Message:       row.Message,
			Justification: row.Justification,
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, reportResponse{Date: report.Day, Source: string(report.Source), Rows: rows})
}

// Export serves GET /reports/{date}/xlsx as a workbook download.
func (h *HistoryHandler) Export(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	day := r.PathValue("date")
	principal, _ := PrincipalFromContext(r.Context())

	// buffered so a failed export still gets a JSON error response
	var buf bytes.Buffer
	if err := h.service.ExportDay(r.Context(), principal, day, &buf); err != nil {
		h.log(r.Context(), "Export", "day", day).ErrorContext(r.Context(), "export failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="roster-`+day+`.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.log(r.Context(), "Export", "day", day).ErrorContext(r.Context(), "failed to stream workbook", "error", err)
	}
}

type historyRecordDTO struct {
	ID            int64  `json:"id"`
	PersonID      int64  `json:"person_id"`
	Day           string `json:"day"`
	Name          string `json:"name"`
	Location      string `json:"location"`
	Status        string `json:"status"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Message       string `json:"message"`
	Justification string `json:"justification"`
	RecordedAt    string `json:"recorded_at"`
}

type reportRowDTO struct {
	PersonID      int64  `json:"person_id"`
	Name          string `json:"name"`
	Location      string `json:"location"`
	Status        string `json:"status"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Message       string `json:"message"`
	Justification string `json:"justification"`
}

type historyResponse struct {
	Date    string             `json:"date"`
	Records []historyRecordDTO `json:"records"`
}

type recentResponse struct {
	Days    int                `json:"days"`
	From    string             `json:"from"`
	Records []historyRecordDTO `json:"records"`
}

type reportResponse struct {
	Date   string         `json:"date"`
	Source string         `json:"source"`
	Rows   []reportRowDTO `json:"rows"`
}

func toHistoryDTOs(records []application.HistoryRecord) []historyRecordDTO {
	out := make([]historyRecordDTO, 0, len(records))
	for _, rec := range records {
		dto := historyRecordDTO{
			ID:            rec.ID,
			PersonID:      rec.PersonID,
			Day:           rec.Day,
			Name:          rec.Name,
			Location:      rec.Location,
			Status:        string(rec.Status),
			StartTime:     rec.StartTime,
			EndTime:       rec.EndTime,
			Message:       rec.Message,
			Justification: rec.Justification,
		}
		if !rec.RecordedAt.IsZero() {
			dto.RecordedAt = rec.RecordedAt.Format(time.RFC3339)
		}
		out = append(out, dto)
	}
	return out
}
