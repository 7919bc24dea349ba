package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"vridge/internal/directory"
	"vridge/internal/service"
)

// ErrorResponse - стандартный ответ с ошибкой
type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// WriteError - универсальная функция для отправки ошибок
func WriteError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// WriteSuccess - функция для успешных ответов
func WriteSuccess(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// statusFor maps service errors to HTTP statuses. Anything unknown is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidPost), errors.Is(err, service.ErrTypeNotSet):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, directory.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrFetchFailed),
		service.IsIncomplete(err),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("Ошибка обработки запроса",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		WriteError(w, "Внутренняя ошибка сервера", status)
		return
	}

	if status == http.StatusServiceUnavailable {
		h.log.Warn("Данные временно недоступны", zap.String("path", r.URL.Path), zap.Error(err))
	}

	WriteError(w, err.Error(), status)
}
