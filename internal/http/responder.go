package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/shift-roster/internal/application"
)

var (
	errBadRequestBody      = errors.New("Requisição inválida.")
	errInvalidPersonID     = errors.New("id obrigatório")
	errMissingSessionToken = errors.New("Não autorizado")
	errMissingDate         = errors.New("Use ?date=YYYY-MM-DD")
	errInvalidDays         = errors.New("Número de dias inválido.")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := localizedStatusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	switch {
	case errors.Is(err, application.ErrUnauthorized):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{
			ErrorCode: "AUTH_FORBIDDEN",
			Message:   localizedStatusMessage(http.StatusForbidden),
		})
	case errors.Is(err, application.ErrInvalidCredentials):
		r.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{
			ErrorCode: "AUTH_INVALID_CREDENTIALS",
			Message:   "Perfil ou senha incorretos.",
		})
	case errors.Is(err, application.ErrSessionExpired), errors.Is(err, application.ErrSessionRevoked):
		r.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{
			ErrorCode: "AUTH_SESSION_EXPIRED",
			Message:   "Sessão expirada. Faça login novamente.",
		})
	case errors.Is(err, application.ErrPasswordResetDisabled):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{
			ErrorCode: "RESET_DISABLED",
			Message:   "Redefinição de senha desativada.",
		})
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Message: localizedStatusMessage(http.StatusNotFound)})
	case errors.Is(err, application.ErrAlreadyExists):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{Message: localizedStatusMessage(http.StatusConflict)})
	default:
		var vErr *application.ValidationError
		if errors.As(err, &vErr) {
			status := http.StatusUnprocessableEntity
			// malformed dates are a request error, as in the query string API
			if _, ok := vErr.FieldErrors["date"]; ok {
				status = http.StatusBadRequest
			}
			r.writeJSON(ctx, w, status, errorResponse{
				Message: localizedStatusMessage(http.StatusUnprocessableEntity),
				Errors:  localizeValidationErrors(vErr),
			})
			return
		}

		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: localizedStatusMessage(http.StatusInternalServerError)})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func localizedStatusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "Requisição inválida."
	case http.StatusUnauthorized:
		return "Não autorizado"
	case http.StatusForbidden:
		return "Sem permissão para esta operação."
	case http.StatusNotFound:
		return "Registro não encontrado."
	case http.StatusConflict:
		return "Registro já existe."
	case http.StatusUnprocessableEntity:
		return "Dados inválidos."
	case http.StatusTooManyRequests:
		return "Muitas tentativas. Aguarde e tente novamente."
	default:
		return "Erro interno"
	}
}

func localizeValidationErrors(vErr *application.ValidationError) map[string]string {
	if vErr == nil || len(vErr.FieldErrors) == 0 {
		return nil
	}

	translated := make(map[string]string, len(vErr.FieldErrors))
	for field, msg := range vErr.FieldErrors {
		translated[field] = translateValidationMessage(msg)
	}
	return translated
}

func translateValidationMessage(message string) string {
	switch message {
	case "name is required":
		return "Nome obrigatório"
	case "time must be HH:MM":
		return "Formato hora inválido"
	case "field cannot be edited":
		return "Campo inválido"
	case "use YYYY-MM-DD":
		return "Data inválida. Use YYYY-MM-DD"
	case "profile is required", "token is required", "new password is required":
		return "Preencha todos os campos"
	case "unknown profile":
		return "Perfil não encontrado"
	case "password is required", "initial password is required":
		return "Senha obrigatória"
	case "invalid roster entry":
		return "Registro inválido"
	default:
		return message
	}
}

type errorResponse struct {
	Success   bool              `json:"success"`
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"error"`
	Errors    map[string]string `json:"errors,omitempty"`
}

func personIDFromRequest(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(r.PathValue("id")), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidPersonID
	}
	return id, nil
}
