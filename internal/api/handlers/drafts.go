// drafts.go — черновики регистрации: создание, просмотр, пополевое
// сохранение, загрузка медиафайлов и отказ.
package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/student-registry/internal/api/errors"
	"github.com/bigkaa/student-registry/internal/domain/media"
	"github.com/bigkaa/student-registry/internal/domain/model"
	"github.com/bigkaa/student-registry/internal/service"
)

// DraftService — операции с черновиками.
type DraftService interface {
	Create(ctx context.Context) (string, error)
	Get(ctx context.Context, draftID string) (*model.Draft, error)
	UpdateField(ctx context.Context, draftID, fieldName, raw string) (bool, error)
	Delete(ctx context.Context, draftID string) error
}

// DraftFileSaver сохраняет загруженный файл в каталог черновика.
type DraftFileSaver interface {
	SaveDraftFile(class media.Class, r io.Reader, size int64, name, draftID string) (string, error)
}

// SweepTrigger запускает внеочередную очистку просроченных черновиков.
type SweepTrigger interface {
	Trigger()
}

// DraftsHandler — обработчики /api/v1/drafts.
type DraftsHandler struct {
	drafts         DraftService
	files          DraftFileSaver
	sweeper        SweepTrigger
	uploadMaxBytes int64
	logger         *slog.Logger
}

// NewDraftsHandler создаёт обработчик черновиков. sweeper может быть nil.
func NewDraftsHandler(
	drafts DraftService,
	files DraftFileSaver,
	sweeper SweepTrigger,
	uploadMaxBytes int64,
	logger *slog.Logger,
) *DraftsHandler {
	return &DraftsHandler{
		drafts:         drafts,
		files:          files,
		sweeper:        sweeper,
		uploadMaxBytes: uploadMaxBytes,
		logger:         logger.With(slog.String("component", "drafts_handler")),
	}
}

type createDraftResponse struct {
	DraftID string `json:"draftId"`
}

type updateFieldResponse struct {
	Success bool `json:"success"`
}

type uploadResponse struct {
	Success bool   `json:"success"`
	Path    string `json:"path,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CreateDraft — POST /api/v1/drafts.
func (h *DraftsHandler) CreateDraft(w http.ResponseWriter, r *http.Request) {
	if h.sweeper != nil {
		h.sweeper.Trigger()
	}

	id, err := h.drafts.Create(r.Context())
	if err != nil {
		h.logger.Error("Ошибка создания черновика", slog.String("error", err.Error()))
		apierrors.Internal(w, "Не удалось создать черновик")
		return
	}
	writeJSON(w, http.StatusCreated, createDraftResponse{DraftID: id})
}

// GetDraft — GET /api/v1/drafts/{draftId}.
func (h *DraftsHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := h.drafts.Get(r.Context(), chi.URLParam(r, "draftId"))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.DraftNotFound(w)
			return
		}
		h.logger.Error("Ошибка получения черновика", slog.String("error", err.Error()))
		apierrors.Internal(w, "Не удалось получить черновик")
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

// DeleteDraft — DELETE /api/v1/drafts/{draftId}: отказ от регистрации.
func (h *DraftsHandler) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	if err := h.drafts.Delete(r.Context(), chi.URLParam(r, "draftId")); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.DraftNotFound(w)
			return
		}
		h.logger.Error("Ошибка удаления черновика", slog.String("error", err.Error()))
		apierrors.Internal(w, "Не удалось удалить черновик")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateField — POST /api/v1/drafts/field, форма draftId, field, value.
// Отклонённое значение — 200 с success=false. Пути медиафайлов
// записывает только Upload.
func (h *DraftsHandler) UpdateField(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		apierrors.InvalidRequest(w, "Некорректная форма")
		return
	}

	fieldName := r.PostForm.Get("field")
	if field, known := model.ParseDraftField(fieldName); known && field.IsMediaPath() {
		writeJSON(w, http.StatusOK, updateFieldResponse{Success: false})
		return
	}

	ok, err := h.drafts.UpdateField(r.Context(),
		r.PostForm.Get("draftId"), fieldName, r.PostForm.Get("value"))
	if err != nil {
		h.logger.Error("Ошибка сохранения поля черновика", slog.String("error", err.Error()))
		apierrors.Internal(w, "Не удалось сохранить поле")
		return
	}
	writeJSON(w, http.StatusOK, updateFieldResponse{Success: ok})
}

// Upload — POST /api/v1/drafts/upload, multipart: type, file, draftId.
// Сохранённый путь записывается в поле черновика ProfileImagePath/ProfileVideoPath.
func (h *DraftsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	file, header, err := parseUpload(w, r, h.uploadMaxBytes)
	defer closeUpload(r, file)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			apierrors.UploadTooLarge(w, h.uploadMaxBytes)
			return
		}
		writeJSON(w, http.StatusBadRequest, uploadResponse{Error: err.Error()})
		return
	}

	class, ok := media.ParseClass(r.FormValue("type"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, uploadResponse{Error: "Неизвестный тип файла, ожидается image или video"})
		return
	}

	draftID := r.FormValue("draftId")
	if _, err := h.drafts.Get(r.Context(), draftID); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.DraftNotFound(w)
			return
		}
		h.logger.Error("Ошибка получения черновика", slog.String("error", err.Error()))
		apierrors.Internal(w, "Не удалось сохранить файл")
		return
	}

	relPath, err := h.files.SaveDraftFile(class, file, header.Size, header.Filename, draftID)
	if err != nil {
		if errors.Is(err, media.ErrRejected) {
			writeJSON(w, http.StatusBadRequest, uploadResponse{Error: err.Error()})
			return
		}
		h.logger.Error("Ошибка сохранения файла черновика",
			slog.String("draft_id", draftID),
			slog.String("error", err.Error()),
		)
		apierrors.Internal(w, "Не удалось сохранить файл")
		return
	}

	field := string(model.FieldProfileImagePath)
	if class == media.ClassVideo {
		field = string(model.FieldProfileVideoPath)
	}
	saved, err := h.drafts.UpdateField(r.Context(), draftID, field, relPath)
	if err != nil {
		h.logger.Error("Ошибка записи пути файла в черновик", slog.String("error", err.Error()))
		apierrors.Internal(w, "Не удалось сохранить файл")
		return
	}
	if !saved {
		// Черновик удалён во время загрузки; файл уберёт очистка
		apierrors.DraftNotFound(w)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{Success: true, Path: relPath})
}
