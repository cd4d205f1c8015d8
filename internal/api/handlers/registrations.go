// registrations.go — отправка формы регистрации.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/student-registry/internal/api/errors"
	"github.com/bigkaa/student-registry/internal/service"
)

// maxRegistrationBody — ограничение JSON-тела формы регистрации.
const maxRegistrationBody = 64 << 10

// Registrar регистрирует студента из черновика.
type Registrar interface {
	Register(ctx context.Context, req service.RegistrationRequest) (*service.RegistrationResult, error)
}

// RegistrationsHandler — обработчик /api/v1/registrations.
type RegistrationsHandler struct {
	registrar Registrar
	logger    *slog.Logger
}

// NewRegistrationsHandler создаёт обработчик регистрации.
func NewRegistrationsHandler(registrar Registrar, logger *slog.Logger) *RegistrationsHandler {
	return &RegistrationsHandler{
		registrar: registrar,
		logger:    logger.With(slog.String("component", "registrations_handler")),
	}
}

type registrationResponse struct {
	*service.RegistrationResult
	Message string `json:"message"`
}

// Register — POST /api/v1/registrations.
// 201 — студент зарегистрирован, 400 — ошибки формы, 404 — черновика нет.
func (h *RegistrationsHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegistrationRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRegistrationBody))
	if err := dec.Decode(&req); err != nil {
		apierrors.InvalidRequest(w, "Некорректный JSON формы регистрации")
		return
	}

	result, err := h.registrar.Register(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.DraftNotFound(w)
			return
		}
		h.logger.Error("Ошибка регистрации",
			slog.String("draft_id", req.DraftID),
			slog.String("error", err.Error()),
		)
		apierrors.Internal(w, "Регистрация не выполнена, попробуйте ещё раз")
		return
	}

	status := http.StatusCreated
	if !result.Success {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, registrationResponse{RegistrationResult: result, Message: result.Message()})
}
