// Пакет mediastore — файлы профиля студентов и черновиков регистрации на диске.
//
// Раскладка: <root>/uploads/{images|videos}/{draftId|studentId}/{uuid}.{ext}.
// Каталог черновика лежит сразу в подкаталоге класса, поэтому при отправке
// регистрации он переименовывается в каталог студента одной операцией rename.
// Store — единственный, кто изменяет это поддерево.
package mediastore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/bigkaa/student-registry/internal/domain/media"
	"github.com/bigkaa/student-registry/internal/domain/model"
)

// UploadsDir — имя корневого каталога медиафайлов внутри root.
const UploadsDir = "uploads"

// sweepLockFile — межпроцессная блокировка очистки (несколько экземпляров
// сервиса на общем томе).
const sweepLockFile = ".sweep.lock"

// ErrInvalidOwner — некорректный идентификатор владельца каталога.
var ErrInvalidOwner = errors.New("некорректный идентификатор каталога")

// Enqueuer принимает сохранённые файлы на фоновое сжатие.
// Enqueue не блокирует и возвращает false, если задание отброшено.
type Enqueuer interface {
	Enqueue(fullPath string, class media.Class) bool
}

// Store — файловое хранилище медиафайлов.
type Store struct {
	// root — корень хранилища (SR_CONTENT_ROOT)
	root      string
	enqueuer  Enqueuer
	sweepLock *flock.Flock
	logger    *slog.Logger

	// rename — os.Rename; подменяется в тестах
	rename func(oldpath, newpath string) error
}

// PromoteResult — новые относительные пути после переноса медиафайлов черновика.
// Поле nil, если у черновика не было файла этого класса.
type PromoteResult struct {
	ImagePath *string
	VideoPath *string
}

// New создаёт Store и подкаталоги uploads/images и uploads/videos.
func New(root string, enqueuer Enqueuer, logger *slog.Logger) (*Store, error) {
	for _, class := range media.Classes() {
		dir := filepath.Join(root, UploadsDir, class.SubDir())
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("не удалось создать каталог %s: %w", dir, err)
		}
	}

	return &Store{
		root:      root,
		enqueuer:  enqueuer,
		sweepLock: flock.New(filepath.Join(root, sweepLockFile)),
		logger:    logger.With(slog.String("component", "mediastore")),
		rename:    os.Rename,
	}, nil
}

// Root возвращает корень хранилища.
func (s *Store) Root() string {
	return s.root
}

// UploadsRoot возвращает абсолютный путь каталога uploads.
func (s *Store) UploadsRoot() string {
	return filepath.Join(s.root, UploadsDir)
}

// FullPath возвращает путь на диске для относительного пути вида uploads/....
func (s *Store) FullPath(relPath string) string {
	return filepath.Join(s.root, filepath.FromSlash(relPath))
}

// SaveDraftFile проверяет файл и сохраняет его в каталог черновика.
// Имя файла всегда новое (uuid без дефисов + исходное расширение),
// поэтому существующие файлы не перезаписываются.
// Возвращает относительный путь: uploads/<класс>/<draftID>/<имя>.
func (s *Store) SaveDraftFile(class media.Class, r io.Reader, size int64, name, draftID string) (string, error) {
	if _, err := uuid.Parse(draftID); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidOwner, draftID)
	}
	return s.save(class, r, size, name, draftID)
}

// SaveStudentFile сохраняет файл сразу в каталог студента и ставит его
// в очередь сжатия. Используется при замене медиафайла профиля.
func (s *Store) SaveStudentFile(class media.Class, r io.Reader, size int64, name, studentID string) (string, error) {
	if !isSafeDirName(studentID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidOwner, studentID)
	}
	relPath, err := s.save(class, r, size, name, studentID)
	if err != nil {
		return "", err
	}
	s.enqueue(s.FullPath(relPath), class)
	return relPath, nil
}

// save — общая запись: проверка → каталог владельца → temp → fsync → rename.
func (s *Store) save(class media.Class, r io.Reader, size int64, name, owner string) (string, error) {
	// Проверка до создания каталогов: отклонённый файл не оставляет следов
	if err := media.Validate(name, size, class); err != nil {
		return "", err
	}
	policy, _ := media.PolicyFor(class)

	dir := filepath.Join(s.root, UploadsDir, class.SubDir(), owner)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("ошибка создания каталога %s: %w", dir, err)
	}

	fileName := strings.ReplaceAll(uuid.NewString(), "-", "") + filepath.Ext(name)
	fullPath := filepath.Join(dir, fileName)
	tmpPath := fullPath + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	// Заявленный размер может не совпадать с фактическим телом
	written, err := io.Copy(f, io.LimitReader(r, policy.MaxBytes+1))
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("ошибка записи данных: %w", err)
	}
	if written > policy.MaxBytes {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: %s должно быть не больше %d МБ",
			media.ErrRejected, policy.Label, policy.MaxBytes/(1024*1024))
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("ошибка fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	relPath := path.Join(UploadsDir, class.SubDir(), owner, fileName)

	s.logger.Debug("Файл сохранён",
		slog.String("path", relPath),
		slog.String("media_class", string(class)),
		slog.Int64("size", written),
	)
	return relPath, nil
}

// Promote переносит каталоги черновика в каталоги студента.
//
// Для каждого класса, у которого в черновике есть путь и существует каталог
// черновика: удаляется устаревший каталог студента (если есть), каталог
// черновика переименовывается. Отсутствие каталога черновика не ошибка —
// путь класса в результате nil.
//
// Перенос всё или ничего: если каталог одного класса перенести не удалось,
// уже перенесённые каталоги возвращаются на место черновика. В очередь
// сжатия файлы ставятся только после переноса всех классов.
func (s *Store) Promote(ctx context.Context, draft *model.Draft, studentID string) (*PromoteResult, error) {
	if !isSafeDirName(studentID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOwner, studentID)
	}
	if _, err := uuid.Parse(draft.ID); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOwner, draft.ID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &PromoteResult{}
	var moved []promotedDir
	for _, class := range media.Classes() {
		stored := draft.ProfileImagePath
		if class == media.ClassVideo {
			stored = draft.ProfileVideoPath
		}
		if stored == nil || strings.TrimSpace(*stored) == "" {
			continue
		}

		dir, ok, err := s.promoteClass(class, draft.ID, studentID, *stored)
		if err != nil {
			s.undoPromote(moved)
			return nil, err
		}
		if !ok {
			continue
		}
		moved = append(moved, dir)

		if class == media.ClassImage {
			result.ImagePath = &dir.newPath
		} else {
			result.VideoPath = &dir.newPath
		}
	}

	for _, dir := range moved {
		s.enqueue(s.FullPath(dir.newPath), dir.class)
		s.logger.Info("Медиафайл черновика перенесён",
			slog.String("draft_id", draft.ID),
			slog.String("student_id", studentID),
			slog.String("media_class", string(dir.class)),
			slog.String("path", dir.newPath),
		)
	}
	return result, nil
}

// promotedDir — перенесённый каталог одного класса.
type promotedDir struct {
	class      media.Class
	draftDir   string
	studentDir string
	newPath    string
}

// promoteClass переносит каталог одного класса. ok == false — каталога черновика нет.
func (s *Store) promoteClass(class media.Class, draftID, studentID, storedPath string) (promotedDir, bool, error) {
	classDir := filepath.Join(s.root, UploadsDir, class.SubDir())
	dir := promotedDir{
		class:      class,
		draftDir:   filepath.Join(classDir, draftID),
		studentDir: filepath.Join(classDir, studentID),
		newPath:    path.Join(UploadsDir, class.SubDir(), studentID, path.Base(filepath.ToSlash(storedPath))),
	}

	info, err := os.Stat(dir.draftDir)
	if err != nil {
		if os.IsNotExist(err) {
			return dir, false, nil
		}
		return dir, false, fmt.Errorf("ошибка проверки каталога черновика: %w", err)
	}
	if !info.IsDir() {
		return dir, false, nil
	}

	// Имя каталога принадлежит либо черновику, либо студенту, но не обоим
	if err := os.RemoveAll(dir.studentDir); err != nil {
		return dir, false, fmt.Errorf("ошибка удаления устаревшего каталога %s: %w", dir.studentDir, err)
	}

	if err := s.rename(dir.draftDir, dir.studentDir); err != nil {
		return dir, false, fmt.Errorf("ошибка переноса каталога черновика: %w", err)
	}
	return dir, true, nil
}

// undoPromote возвращает перенесённые каталоги черновику.
func (s *Store) undoPromote(moved []promotedDir) {
	for i := len(moved) - 1; i >= 0; i-- {
		dir := moved[i]
		if err := s.rename(dir.studentDir, dir.draftDir); err != nil {
			s.logger.Error("Не удалось вернуть каталог черновика",
				slog.String("from", dir.studentDir),
				slog.String("to", dir.draftDir),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.logger.Warn("Перенос отменён, каталог возвращён черновику",
			slog.String("media_class", string(dir.class)),
			slog.String("path", dir.draftDir),
		)
	}
}

// DeleteDraftFiles удаляет каталоги черновика во всех классах.
// Ошибки только логируются: каталога может уже не быть.
func (s *Store) DeleteDraftFiles(draftID string) {
	if _, err := uuid.Parse(draftID); err != nil {
		s.logger.Warn("Удаление файлов черновика: некорректный ID",
			slog.String("draft_id", draftID),
		)
		return
	}

	for _, class := range media.Classes() {
		dir := filepath.Join(s.root, UploadsDir, class.SubDir(), draftID)
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("Ошибка удаления каталога черновика",
				slog.String("draft_id", draftID),
				slog.String("media_class", string(class)),
				slog.String("error", err.Error()),
			)
		}
	}
}

// DeleteFile удаляет один файл по относительному пути.
// Возвращает nil, если файла уже нет.
func (s *Store) DeleteFile(relPath string) error {
	clean := path.Clean(filepath.ToSlash(relPath))
	if !strings.HasPrefix(clean, UploadsDir+"/") {
		return fmt.Errorf("путь вне каталога %s: %s", UploadsDir, relPath)
	}

	err := os.Remove(s.FullPath(clean))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", relPath, err)
	}
	return nil
}

// SweepExpired удаляет каталоги черновиков старше expiryMinutes.
// Рассматриваются только каталоги, имя которых — UUID черновика;
// каталоги студентов не затрагиваются. Возраст каталога — время его
// последнего изменения. Возвращает количество удалённых каталогов.
// Если очистку уже выполняет другой процесс, возвращает 0 без ошибки.
func (s *Store) SweepExpired(ctx context.Context, expiryMinutes int) (int, error) {
	locked, err := s.sweepLock.TryLock()
	if err != nil {
		return 0, fmt.Errorf("блокировка очистки: %w", err)
	}
	if !locked {
		s.logger.Debug("Очистка каталогов выполняется другим процессом")
		return 0, nil
	}
	defer func() {
		if err := s.sweepLock.Unlock(); err != nil {
			s.logger.Warn("Ошибка снятия блокировки очистки", slog.String("error", err.Error()))
		}
	}()

	cutoff := time.Now().Add(-time.Duration(expiryMinutes) * time.Minute)
	removed := 0

	for _, class := range media.Classes() {
		classDir := filepath.Join(s.root, UploadsDir, class.SubDir())
		entries, err := os.ReadDir(classDir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, fmt.Errorf("ошибка чтения каталога %s: %w", classDir, err)
		}

		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				return removed, err
			}
			if !entry.IsDir() {
				continue
			}
			if _, err := uuid.Parse(entry.Name()); err != nil {
				continue
			}

			info, err := entry.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}

			dir := filepath.Join(classDir, entry.Name())
			if err := os.RemoveAll(dir); err != nil {
				s.logger.Warn("Ошибка удаления просроченного каталога",
					slog.String("dir", dir),
					slog.String("error", err.Error()),
				)
				continue
			}
			removed++
			s.logger.Debug("Просроченный каталог черновика удалён",
				slog.String("draft_id", entry.Name()),
				slog.String("media_class", string(class)),
			)
		}
	}

	return removed, nil
}

func (s *Store) enqueue(fullPath string, class media.Class) {
	if s.enqueuer == nil {
		return
	}
	if !s.enqueuer.Enqueue(fullPath, class) {
		s.logger.Warn("Файл не поставлен в очередь сжатия",
			slog.String("path", fullPath),
			slog.String("media_class", string(class)),
		)
	}
}

// isSafeDirName проверяет, что id годится как имя одного каталога.
func isSafeDirName(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && !strings.ContainsRune(id, 0)
}
