// students.go — список студентов и замена медиафайлов профиля.
package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/student-registry/internal/api/errors"
	"github.com/bigkaa/student-registry/internal/domain/media"
	"github.com/bigkaa/student-registry/internal/service"
)

// StudentService — операции над зарегистрированными студентами.
type StudentService interface {
	List(ctx context.Context, q service.StudentListQuery) (*service.StudentListPage, error)
	ReplaceMedia(ctx context.Context, studentID string, class media.Class, r io.Reader, size int64, name string) (string, error)
}

// StudentsHandler — обработчики /api/v1/students.
type StudentsHandler struct {
	students       StudentService
	uploadMaxBytes int64
	logger         *slog.Logger
}

// NewStudentsHandler создаёт обработчик студентов.
func NewStudentsHandler(students StudentService, uploadMaxBytes int64, logger *slog.Logger) *StudentsHandler {
	return &StudentsHandler{
		students:       students,
		uploadMaxBytes: uploadMaxBytes,
		logger:         logger.With(slog.String("component", "students_handler")),
	}
}

// ListStudents — GET /api/v1/students?page=&pageSize=&name=&email=.
func (h *StudentsHandler) ListStudents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := service.StudentListQuery{
		Page:     atoiDefault(q.Get("page"), 1),
		PageSize: atoiDefault(q.Get("pageSize"), 0),
		Name:     q.Get("name"),
		Email:    q.Get("email"),
	}

	page, err := h.students.List(r.Context(), query)
	if err != nil {
		h.logger.Error("Ошибка получения списка студентов", slog.String("error", err.Error()))
		apierrors.Internal(w, "Не удалось получить список студентов")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// UploadMedia — POST /api/v1/students/{studentId}/media, multipart: type, file.
func (h *StudentsHandler) UploadMedia(w http.ResponseWriter, r *http.Request) {
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

	studentID := chi.URLParam(r, "studentId")
	relPath, err := h.students.ReplaceMedia(r.Context(), studentID, class, file, header.Size, header.Filename)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			apierrors.StudentNotFound(w, studentID)
		case errors.Is(err, service.ErrValidation):
			writeJSON(w, http.StatusBadRequest, uploadResponse{Error: err.Error()})
		default:
			h.logger.Error("Ошибка замены медиафайла",
				slog.String("student_id", studentID),
				slog.String("error", err.Error()),
			)
			apierrors.Internal(w, "Не удалось сохранить файл")
		}
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{Success: true, Path: relPath})
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
