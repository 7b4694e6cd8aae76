package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xela07ax/sitevitals-console/internal/domain"
)

// errorResponse — единый формат ошибок для фронта.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError маппит таксономию доменных ошибок в HTTP-статусы.
// Сообщение RemoteError прокидывается как есть — его писал удаленный
// сервис для человека.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, httpStatus(err), errorResponse{Error: err.Error()})
}

func httpStatus(err error) int {
	var rErr *domain.RemoteError
	var tErr *domain.TransportError

	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotConfigured):
		return http.StatusPreconditionFailed
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrInvalidResponse):
		return http.StatusBadGateway
	case errors.As(err, &rErr):
		return http.StatusBadGateway
	case errors.As(err, &tErr):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
