// students.go — список студентов и замена медиафайлов профиля.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/bigkaa/student-registry/internal/domain/media"
	"github.com/bigkaa/student-registry/internal/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// StudentFileStore сохраняет медиафайлы в каталог студента.
type StudentFileStore interface {
	SaveStudentFile(class media.Class, r io.Reader, size int64, name, studentID string) (string, error)
	DeleteFile(relPath string) error
}

// StudentService — список студентов и их медиафайлы.
type StudentService struct {
	repo   repository.StudentRepository
	files  StudentFileStore
	cache  *StudentListCache
	logger *slog.Logger
}

// NewStudentService создаёт сервис студентов.
func NewStudentService(
	repo repository.StudentRepository,
	files StudentFileStore,
	cache *StudentListCache,
	logger *slog.Logger,
) *StudentService {
	return &StudentService{
		repo:   repo,
		files:  files,
		cache:  cache,
		logger: logger.With(slog.String("component", "students")),
	}
}

// NormalizeListQuery приводит номер и размер страницы к допустимым значениям.
func NormalizeListQuery(q StudentListQuery) StudentListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
	q.Name = strings.TrimSpace(q.Name)
	q.Email = strings.TrimSpace(q.Email)
	return q
}

// List возвращает страницу студентов через кэш.
func (s *StudentService) List(ctx context.Context, q StudentListQuery) (*StudentListPage, error) {
	q = NormalizeListQuery(q)
	return s.cache.GetOrLoad(ctx, q, s.load)
}

func (s *StudentService) load(ctx context.Context, q StudentListQuery) (*StudentListPage, error) {
	filters := repository.StudentListFilters{Name: q.Name, Email: q.Email}
	items, total, err := s.repo.List(ctx, filters, q.PageSize, (q.Page-1)*q.PageSize)
	if err != nil {
		return nil, fmt.Errorf("список студентов: %w", err)
	}
	return &StudentListPage{Items: items, Total: total, Page: q.Page, PageSize: q.PageSize}, nil
}

// ReplaceMedia сохраняет новый медиафайл студента, записывает путь
// в учётную запись и удаляет предыдущий файл этого класса.
// Новый файл ставится в очередь сжатия хранилищем.
func (s *StudentService) ReplaceMedia(
	ctx context.Context,
	studentID string,
	class media.Class,
	r io.Reader,
	size int64,
	name string,
) (string, error) {
	student, err := s.repo.GetByStudentID(ctx, studentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("%w: студент %s", ErrNotFound, studentID)
		}
		return "", fmt.Errorf("получение студента: %w", err)
	}

	relPath, err := s.files.SaveStudentFile(class, r, size, name, studentID)
	if err != nil {
		if errors.Is(err, media.ErrRejected) {
			return "", fmt.Errorf("%w: %s", ErrValidation, err.Error())
		}
		return "", fmt.Errorf("сохранение файла: %w", err)
	}

	previous := student.ProfileImagePath
	imagePath, videoPath := &relPath, (*string)(nil)
	if class == media.ClassVideo {
		previous = student.ProfileVideoPath
		imagePath, videoPath = nil, &relPath
	}

	if err := s.repo.UpdateMedia(ctx, student.ID, imagePath, videoPath); err != nil {
		// Запись не обновлена — новый файл не нужен
		if delErr := s.files.DeleteFile(relPath); delErr != nil {
			s.logger.Warn("Ошибка удаления несохранённого файла",
				slog.String("path", relPath),
				slog.String("error", delErr.Error()),
			)
		}
		return "", fmt.Errorf("обновление медиафайлов: %w", err)
	}

	if previous != nil && *previous != "" && *previous != relPath {
		if err := s.files.DeleteFile(*previous); err != nil {
			s.logger.Warn("Ошибка удаления предыдущего файла",
				slog.String("student_id", studentID),
				slog.String("path", *previous),
				slog.String("error", err.Error()),
			)
		}
	}

	s.cache.Invalidate()

	s.logger.Info("Медиафайл студента заменён",
		slog.String("student_id", studentID),
		slog.String("media_class", string(class)),
		slog.String("path", relPath),
	)
	return relPath, nil
}
