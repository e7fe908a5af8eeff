package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/shift-roster/internal/application"
)

type rosterService interface {
	GetRoster(ctx context.Context, principal application.Principal) ([]application.Person, error)
	ListRosterRaw(ctx context.Context, principal application.Principal) ([]application.Person, error)
	CountPeople(ctx context.Context, principal application.Principal) (int, error)
	CreatePerson(ctx context.Context, params application.CreatePersonParams) (application.Person, error)
	DeletePerson(ctx context.Context, principal application.Principal, id int64) error
	StartPerson(ctx context.Context, principal application.Principal, id int64) (application.SnapshotResult, error)
	EditSchedule(ctx context.Context, params application.EditScheduleParams) (application.SnapshotResult, error)
	SetEndTime(ctx context.Context, params application.SetEndTimeParams) (application.SnapshotResult, error)
	UpdateField(ctx context.Context, params application.UpdateFieldParams) (application.SnapshotResult, error)
	ResetPerson(ctx context.Context, principal application.Principal, id int64) error
	ResetAll(ctx context.Context, principal application.Principal) (int64, error)
}

type RosterHandler struct {
	service   rosterService
	responder responder
	logger    *slog.Logger
}

func NewRosterHandler(service rosterService, logger *slog.Logger) *RosterHandler {
	base := defaultLogger(logger)
	return &RosterHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *RosterHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "RosterHandler", operation, attrs...)
}

func (h *RosterHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

// List serves the reconciled roster.
func (h *RosterHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	people, err := h.service.GetRoster(r.Context(), principal)
	if err != nil {
		h.log(r.Context(), "List").ErrorContext(r.Context(), "roster listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, rosterResponse{Profile: principal.Profile, People: toPersonDTOs(people)})
}

// ListRaw serves the roster as stored.
func (h *RosterHandler) ListRaw(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	people, err := h.service.ListRosterRaw(r.Context(), principal)
	if err != nil {
		h.log(r.Context(), "ListRaw").ErrorContext(r.Context(), "raw roster listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, rosterResponse{Profile: principal.Profile, People: toPersonDTOs(people)})
}

func (h *RosterHandler) Count(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	total, err := h.service.CountPeople(r.Context(), principal)
	if err != nil {
		h.log(r.Context(), "Count").ErrorContext(r.Context(), "roster count failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, countResponse{Total: total})
}

func (h *RosterHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	var req createPersonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode person request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create")
	person, err := h.service.CreatePerson(r.Context(), application.CreatePersonParams{
		Principal: principal,
		Name:      req.Name,
		Location:  req.Location,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "person creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("person_id", person.ID).InfoContext(r.Context(), "person created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, personResponse{Success: true, Person: toPersonDTO(person)})
}

func (h *RosterHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.withPerson(w, r, "Delete", func(principal application.Principal, id int64) (*application.SnapshotResult, error) {
		return nil, h.service.DeletePerson(r.Context(), principal, id)
	})
}

func (h *RosterHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.withPerson(w, r, "Start", func(principal application.Principal, id int64) (*application.SnapshotResult, error) {
		snapshot, err := h.service.StartPerson(r.Context(), principal, id)
		return &snapshot, err
	})
}

func (h *RosterHandler) EditSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if !h.decode(w, r, "EditSchedule", &req) {
		return
	}
	h.withPerson(w, r, "EditSchedule", func(principal application.Principal, id int64) (*application.SnapshotResult, error) {
		snapshot, err := h.service.EditSchedule(r.Context(), application.EditScheduleParams{
			Principal: principal,
			PersonID:  id,
			StartTime: req.StartTime,
		})
		return &snapshot, err
	})
}

func (h *RosterHandler) SetEndTime(w http.ResponseWriter, r *http.Request) {
	var req endTimeRequest
	if !h.decode(w, r, "SetEndTime", &req) {
		return
	}
	h.withPerson(w, r, "SetEndTime", func(principal application.Principal, id int64) (*application.SnapshotResult, error) {
		snapshot, err := h.service.SetEndTime(r.Context(), application.SetEndTimeParams{
			Principal: principal,
			PersonID:  id,
			EndTime:   req.EndTime,
		})
		return &snapshot, err
	})
}

func (h *RosterHandler) UpdateField(w http.ResponseWriter, r *http.Request) {
	var req updateFieldRequest
	if !h.decode(w, r, "UpdateField", &req) {
		return
	}
	h.withPerson(w, r, "UpdateField", func(principal application.Principal, id int64) (*application.SnapshotResult, error) {
		field := application.PersonField(req.Field)
		snapshot, err := h.service.UpdateField(r.Context(), application.UpdateFieldParams{
			Principal: principal,
			PersonID:  id,
			Field:     field,
			Value:     req.Value,
		})
		if field != application.FieldStartTime && field != application.FieldEndTime {
			return nil, err
		}
		return &snapshot, err
	})
}

func (h *RosterHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.withPerson(w, r, "Reset", func(principal application.Principal, id int64) (*application.SnapshotResult, error) {
		return nil, h.service.ResetPerson(r.Context(), principal, id)
	})
}

func (h *RosterHandler) ResetAll(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "ResetAll")

	affected, err := h.service.ResetAll(r.Context(), principal)
	if err != nil {
		logger.ErrorContext(r.Context(), "system reset failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	logger.InfoContext(r.Context(), "system reset", "count", affected)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resetAllResponse{Success: true, Reset: affected})
}

func (h *RosterHandler) decode(w http.ResponseWriter, r *http.Request, operation string, dst any) bool {
	if !h.ready(w) {
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.log(r.Context(), operation, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return false
	}
	return true
}

// withPerson resolves the path id and principal, runs fn and writes the
// common {"success":true} response with the snapshot when fn returns one.
func (h *RosterHandler) withPerson(w http.ResponseWriter, r *http.Request, operation string, fn func(application.Principal, int64) (*application.SnapshotResult, error)) {
	if !h.ready(w) {
		return
	}
	id, err := personIDFromRequest(r)
	if err != nil {
		h.log(r.Context(), operation, "error_kind", "bad_request").ErrorContext(r.Context(), "invalid person id", "raw_id", r.PathValue("id"))
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), operation, "person_id", id)

	snapshot, err := fn(principal, id)
	if err != nil {
		logger.ErrorContext(r.Context(), "roster update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	resp := mutationResponse{Success: true}
	if snapshot != nil {
		dto := toSnapshotDTO(*snapshot)
		resp.Snapshot = &dto
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

type createPersonRequest struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

type scheduleRequest struct {
	StartTime string `json:"start_time"`
}

type endTimeRequest struct {
	EndTime string `json:"end_time"`
}

type updateFieldRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type personDTO struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Location      string  `json:"location"`
	Status        string  `json:"status"`
	Released      string  `json:"released"`
	Return        string  `json:"return"`
	StartTime     string  `json:"start_time"`
	EndTime       string  `json:"end_time"`
	StartAt       *string `json:"start_at"`
	EndAt         *string `json:"end_at"`
	Message       string  `json:"message"`
	Justification string  `json:"justification"`
}

type snapshotDTO struct {
	Saved    bool   `json:"saved"`
	Reason   string `json:"reason,omitempty"`
	Day      string `json:"day,omitempty"`
	Pending  int    `json:"pending,omitempty"`
	Existing int    `json:"existing,omitempty"`
	Count    int    `json:"count,omitempty"`
	Error    string `json:"error,omitempty"`
}

type rosterResponse struct {
	Profile string      `json:"profile"`
	People  []personDTO `json:"people"`
}

type countResponse struct {
	Total int `json:"total"`
}

type personResponse struct {
	Success bool      `json:"success"`
	Person  personDTO `json:"person"`
}

type mutationResponse struct {
	Success  bool         `json:"success"`
	Snapshot *snapshotDTO `json:"snapshot,omitempty"`
}

type resetAllResponse struct {
	Success bool  `json:"success"`
	Reset   int64 `json:"reset"`
}

func toPersonDTOs(people []application.Person) []personDTO {
	out := make([]personDTO, 0, len(people))
	for _, p := range people {
		out = append(out, toPersonDTO(p))
	}
	return out
}

func toPersonDTO(p application.Person) personDTO {
	return personDTO{
		ID:            p.ID,
		Name:          p.Name,
		Location:      p.Location,
		Status:        string(p.Status),
		Released:      p.Released,
		Return:        p.Return,
		StartTime:     p.StartTime,
		EndTime:       p.EndTime,
		StartAt:       formatInstant(p.StartAt),
		EndAt:         formatInstant(p.EndAt),
		Message:       p.Message,
		Justification: p.Justification,
	}
}

func toSnapshotDTO(s application.SnapshotResult) snapshotDTO {
	dto := snapshotDTO{
		Saved:    s.Saved,
		Reason:   s.Reason,
		Day:      s.Day,
		Pending:  s.Pending,
		Existing: s.Existing,
		Count:    s.Count,
	}
	if s.Err != nil {
		dto.Error = s.Err.Error()
	}
	return dto
}

func formatInstant(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
