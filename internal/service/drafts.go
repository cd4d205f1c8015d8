// drafts.go — черновики регистрации: создание, пополевое обновление,
// отказ и удаление просроченных.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/bigkaa/student-registry/internal/domain/media"
	"github.com/bigkaa/student-registry/internal/domain/model"
	"github.com/bigkaa/student-registry/internal/repository"
	"github.com/bigkaa/student-registry/internal/storage/mediastore"
)

// DraftFiles — файлы черновиков на диске.
type DraftFiles interface {
	DeleteDraftFiles(draftID string)
}

// DraftService управляет черновиками регистрации.
type DraftService struct {
	repo   repository.DraftRepository
	files  DraftFiles
	logger *slog.Logger
	now    func() time.Time
}

// NewDraftService создаёт сервис черновиков.
func NewDraftService(repo repository.DraftRepository, files DraftFiles, logger *slog.Logger) *DraftService {
	return &DraftService{
		repo:   repo,
		files:  files,
		logger: logger.With(slog.String("component", "drafts")),
		now:    time.Now,
	}
}

// Create создаёт пустой черновик и возвращает его ID.
func (s *DraftService) Create(ctx context.Context) (string, error) {
	now := s.now().UTC()
	d := &model.Draft{
		ID:            uuid.NewString(),
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return "", fmt.Errorf("создание черновика: %w", err)
	}

	s.logger.Debug("Черновик создан", slog.String("draft_id", d.ID))
	return d.ID, nil
}

// UpdateField проверяет и записывает одно поле черновика.
// false — черновика нет, поле неизвестно или значение не прошло проверку;
// в этом случае черновик не изменяется. Ошибка — только сбой хранилища.
func (s *DraftService) UpdateField(ctx context.Context, draftID, fieldName, raw string) (bool, error) {
	if _, err := uuid.Parse(draftID); err != nil {
		return false, nil
	}
	field, ok := model.ParseDraftField(fieldName)
	if !ok {
		return false, nil
	}
	value, ok := s.parseFieldValue(field, draftID, raw)
	if !ok {
		s.logger.Debug("Значение поля отклонено",
			slog.String("draft_id", draftID),
			slog.String("field", string(field)),
		)
		return false, nil
	}

	err := s.repo.SetField(ctx, draftID, field, value, s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("обновление черновика: %w", err)
	}
	return true, nil
}

// parseFieldValue возвращает значение для записи (nil — очистка поля).
func (s *DraftService) parseFieldValue(field model.DraftField, draftID, raw string) (any, bool) {
	trimmed := strings.TrimSpace(raw)

	switch field {
	case model.FieldFullName:
		return optionalString(trimmed, model.MaxFullNameLen)

	case model.FieldDateOfBirth:
		dob, ok := parseDate(trimmed)
		if !ok {
			return nil, false
		}
		today := truncateToDate(s.now().UTC())
		if dob.After(today) {
			return nil, false
		}
		return dob, true

	case model.FieldHeightCm:
		h, err := strconv.ParseFloat(trimmed, 64)
		if err != nil || math.IsNaN(h) || h < 0 || h > model.MaxHeightCm {
			return nil, false
		}
		return h, true

	case model.FieldGender:
		g, ok := model.ParseGender(trimmed)
		if !ok || g == model.GenderUnknown {
			return nil, false
		}
		return string(g), true

	case model.FieldMobileNumber:
		return optionalString(trimmed, model.MaxMobileNumberLen)

	case model.FieldEmail:
		if trimmed != "" && !IsValidEmail(trimmed) {
			return nil, false
		}
		return optionalString(trimmed, model.MaxEmailLen)

	case model.FieldProfileImagePath:
		if trimmed != "" && !isDraftMediaPath(media.ClassImage, draftID, trimmed) {
			return nil, false
		}
		return optionalString(trimmed, model.MaxMediaPathLen)

	case model.FieldProfileVideoPath:
		if trimmed != "" && !isDraftMediaPath(media.ClassVideo, draftID, trimmed) {
			return nil, false
		}
		return optionalString(trimmed, model.MaxMediaPathLen)
	}

	return nil, false
}

// optionalString: пустая строка — nil, превышение длины — отказ.
func optionalString(v string, maxLen int) (any, bool) {
	if v == "" {
		return nil, true
	}
	if utf8.RuneCountInString(v) > maxLen {
		return nil, false
	}
	return v, true
}

// IsValidEmail — ровно один '@' с непустыми частями по обе стороны.
func IsValidEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	return at > 0 && at < len(email)-1 && strings.Count(email, "@") == 1
}

// isDraftMediaPath: путь вида uploads/<класс>/<draftID>/<файл> с допустимым расширением.
func isDraftMediaPath(class media.Class, draftID, p string) bool {
	if path.Clean(p) != p {
		return false
	}
	dir, name := path.Split(p)
	if dir != path.Join(mediastore.UploadsDir, class.SubDir(), draftID)+"/" {
		return false
	}
	return class.Allows(name)
}

// parseDate принимает YYYY-MM-DD или RFC 3339 (берётся дата).
func parseDate(v string) (time.Time, bool) {
	if d, err := time.Parse(time.DateOnly, v); err == nil {
		return d, true
	}
	if ts, err := time.Parse(time.RFC3339, v); err == nil {
		return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Get возвращает черновик или ErrNotFound.
func (s *DraftService) Get(ctx context.Context, draftID string) (*model.Draft, error) {
	if _, err := uuid.Parse(draftID); err != nil {
		return nil, fmt.Errorf("%w: черновик %s", ErrNotFound, draftID)
	}
	d, err := s.repo.GetByID(ctx, draftID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: черновик %s", ErrNotFound, draftID)
		}
		return nil, fmt.Errorf("получение черновика: %w", err)
	}
	return d, nil
}

// Delete — отказ от черновика: сначала файлы, затем строка.
// Отсутствующий черновик не ошибка.
func (s *DraftService) Delete(ctx context.Context, draftID string) error {
	if _, err := uuid.Parse(draftID); err != nil {
		return fmt.Errorf("%w: черновик %s", ErrNotFound, draftID)
	}

	s.files.DeleteDraftFiles(draftID)
	if err := s.repo.Delete(ctx, draftID); err != nil {
		return fmt.Errorf("удаление черновика: %w", err)
	}

	s.logger.Info("Черновик удалён", slog.String("draft_id", draftID))
	return nil
}

// DeleteExpired удаляет черновики, не обновлявшиеся дольше expiryMinutes.
// Для каждого сначала удаляются файлы, затем строки удаляются одним пакетом.
// При отмене ctx обход прекращается между черновиками; строки удаляются
// только у черновиков, файлы которых уже обработаны.
func (s *DraftService) DeleteExpired(ctx context.Context, expiryMinutes int) (int, error) {
	cutoff := s.now().UTC().Add(-time.Duration(expiryMinutes) * time.Minute)

	ids, err := s.repo.ListExpired(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("выборка просроченных черновиков: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	processed := make([]string, 0, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		s.files.DeleteDraftFiles(id)
		processed = append(processed, id)
	}

	// Файлы уже удалены — строки удаляем и при отменённом ctx
	deleted, err := s.repo.DeleteExpired(context.WithoutCancel(ctx), processed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("удаление просроченных черновиков: %w", err)
	}

	if deleted > 0 {
		s.logger.Info("Просроченные черновики удалены",
			slog.Int("count", deleted),
			slog.Int("expiry_minutes", expiryMinutes),
		)
	}
	return deleted, ctx.Err()
}
