package mediastore

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/bigkaa/student-registry/internal/domain/media"
	"github.com/bigkaa/student-registry/internal/domain/model"
)

// recordingEnqueuer запоминает поставленные в очередь задания.
type recordingEnqueuer struct {
	mu   sync.Mutex
	jobs []string
}

func (e *recordingEnqueuer) Enqueue(fullPath string, class media.Class) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobs = append(e.jobs, string(class)+":"+fullPath)
	return true
}

func (e *recordingEnqueuer) Jobs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.jobs...)
}

func newTestStore(t *testing.T) (*Store, *recordingEnqueuer) {
	t.Helper()
	enq := &recordingEnqueuer{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	s, err := New(t.TempDir(), enq, logger)
	if err != nil {
		t.Fatalf("ошибка создания Store: %v", err)
	}
	return s, enq
}

func TestNew_CreatesClassDirectories(t *testing.T) {
	s, _ := newTestStore(t)
	for _, sub := range []string{"images", "videos"} {
		info, err := os.Stat(filepath.Join(s.Root(), "uploads", sub))
		if err != nil || !info.IsDir() {
			t.Errorf("каталог uploads/%s не создан: %v", sub, err)
		}
	}
}

func TestSaveDraftFile(t *testing.T) {
	s, enq := newTestStore(t)
	draftID := uuid.NewString()
	content := []byte("fake png bytes")

	rel, err := s.SaveDraftFile(media.ClassImage, bytes.NewReader(content), int64(len(content)), "avatar.PNG", draftID)
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	parts := strings.Split(rel, "/")
	if len(parts) != 4 || parts[0] != "uploads" || parts[1] != "images" || parts[2] != draftID {
		t.Fatalf("путь: хотели uploads/images/%s/<имя>, получили %s", draftID, rel)
	}
	name := parts[3]
	if !strings.HasSuffix(name, ".PNG") {
		t.Errorf("расширение должно сохраниться: %s", name)
	}
	if strings.Contains(name, "-") || len(name) != 32+len(".PNG") {
		t.Errorf("имя должно быть uuid без дефисов: %s", name)
	}

	data, err := os.ReadFile(s.FullPath(rel))
	if err != nil {
		t.Fatalf("файл не найден: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Error("содержимое файла не совпадает")
	}
	if _, err := os.Stat(s.FullPath(rel) + ".tmp"); !os.IsNotExist(err) {
		t.Error("временный файл не должен оставаться")
	}
	// Файлы черновика сжимаются только после переноса
	if len(enq.Jobs()) != 0 {
		t.Errorf("очередь сжатия: хотели 0 заданий, получили %d", len(enq.Jobs()))
	}
}

func TestSaveDraftFile_FreshNames(t *testing.T) {
	s, _ := newTestStore(t)
	draftID := uuid.NewString()

	first, err := s.SaveDraftFile(media.ClassImage, strings.NewReader("a"), 1, "a.jpg", draftID)
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}
	second, err := s.SaveDraftFile(media.ClassImage, strings.NewReader("b"), 1, "a.jpg", draftID)
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}
	if first == second {
		t.Fatal("повторная загрузка должна получить новое имя")
	}
	if _, err := os.Stat(s.FullPath(first)); err != nil {
		t.Error("первый файл не должен быть перезаписан или удалён")
	}
}

func TestSaveDraftFile_TooLargeLeavesNoTrace(t *testing.T) {
	s, _ := newTestStore(t)
	draftID := uuid.NewString()
	size := int64(10 * 1024 * 1024)

	_, err := s.SaveDraftFile(media.ClassImage, bytes.NewReader(make([]byte, 16)), size, "big.png", draftID)
	if !errors.Is(err, media.ErrRejected) {
		t.Fatalf("ожидалась ErrRejected, получили %v", err)
	}
	if !strings.Contains(err.Error(), "5 МБ") {
		t.Errorf("причина должна упоминать лимит: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "uploads", "images", draftID)); !os.IsNotExist(err) {
		t.Error("каталог черновика не должен создаваться")
	}
}

func TestSaveDraftFile_BodyLargerThanDeclared(t *testing.T) {
	s, _ := newTestStore(t)
	draftID := uuid.NewString()
	body := bytes.NewReader(make([]byte, media.ImageMaxBytes+10))

	_, err := s.SaveDraftFile(media.ClassImage, body, 1024, "liar.png", draftID)
	if !errors.Is(err, media.ErrRejected) {
		t.Fatalf("ожидалась ErrRejected, получили %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(s.Root(), "uploads", "images", draftID))
	if len(entries) != 0 {
		t.Errorf("в каталоге черновика не должно быть файлов, найдено %d", len(entries))
	}
}

func TestSaveDraftFile_InvalidDraftID(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.SaveDraftFile(media.ClassImage, strings.NewReader("x"), 1, "a.png", "../../etc")
	if !errors.Is(err, ErrInvalidOwner) {
		t.Fatalf("ожидалась ErrInvalidOwner, получили %v", err)
	}
}

func TestPromote(t *testing.T) {
	s, enq := newTestStore(t)
	draftID := uuid.NewString()

	imgRel, err := s.SaveDraftFile(media.ClassImage, strings.NewReader("img"), 3, "me.jpg", draftID)
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}
	draft := &model.Draft{ID: draftID, ProfileImagePath: &imgRel}

	res, err := s.Promote(context.Background(), draft, "STU123")
	if err != nil {
		t.Fatalf("ошибка переноса: %v", err)
	}

	if _, err := os.Stat(filepath.Join(s.Root(), "uploads", "images", draftID)); !os.IsNotExist(err) {
		t.Error("каталог черновика должен исчезнуть")
	}
	if res.ImagePath == nil {
		t.Fatal("ImagePath: хотели путь, получили nil")
	}
	wantPath := "uploads/images/STU123/" + filepath.Base(imgRel)
	if *res.ImagePath != wantPath {
		t.Errorf("ImagePath: хотели %s, получили %s", wantPath, *res.ImagePath)
	}
	if _, err := os.Stat(s.FullPath(wantPath)); err != nil {
		t.Errorf("файл в каталоге студента не найден: %v", err)
	}
	if res.VideoPath != nil {
		t.Errorf("VideoPath: хотели nil, получили %s", *res.VideoPath)
	}

	jobs := enq.Jobs()
	if len(jobs) != 1 || jobs[0] != "image:"+s.FullPath(wantPath) {
		t.Errorf("очередь сжатия: получили %v", jobs)
	}
}

func TestPromote_SecondClassFailureRestoresDraft(t *testing.T) {
	s, enq := newTestStore(t)
	draftID := uuid.NewString()

	imgRel, err := s.SaveDraftFile(media.ClassImage, strings.NewReader("img"), 3, "me.jpg", draftID)
	if err != nil {
		t.Fatalf("ошибка сохранения изображения: %v", err)
	}
	vidRel, err := s.SaveDraftFile(media.ClassVideo, strings.NewReader("vid"), 3, "me.mp4", draftID)
	if err != nil {
		t.Fatalf("ошибка сохранения видео: %v", err)
	}

	videosDir := filepath.Join(s.Root(), "uploads", "videos")
	s.rename = func(oldpath, newpath string) error {
		if filepath.Dir(newpath) == videosDir {
			return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: os.ErrPermission}
		}
		return os.Rename(oldpath, newpath)
	}

	draft := &model.Draft{ID: draftID, ProfileImagePath: &imgRel, ProfileVideoPath: &vidRel}
	res, err := s.Promote(context.Background(), draft, "STU1")
	if err == nil {
		t.Fatal("хотели ошибку переноса, получили nil")
	}
	if res != nil {
		t.Errorf("хотели nil результат, получили %+v", res)
	}

	for _, rel := range []string{imgRel, vidRel} {
		if _, err := os.Stat(s.FullPath(rel)); err != nil {
			t.Errorf("файл черновика %s должен остаться на месте: %v", rel, err)
		}
	}
	for _, sub := range []string{"images", "videos"} {
		if _, err := os.Stat(filepath.Join(s.Root(), "uploads", sub, "STU1")); !os.IsNotExist(err) {
			t.Errorf("каталог студента в %s не должен существовать", sub)
		}
	}
	if jobs := enq.Jobs(); len(jobs) != 0 {
		t.Errorf("очередь сжатия: хотели пусто, получили %v", jobs)
	}

	// Повторная отправка переносит оба файла
	s.rename = os.Rename
	res, err = s.Promote(context.Background(), draft, "STU1")
	if err != nil {
		t.Fatalf("повторный перенос: %v", err)
	}
	if res.ImagePath == nil || res.VideoPath == nil {
		t.Fatalf("хотели оба пути, получили %+v", res)
	}
	if jobs := enq.Jobs(); len(jobs) != 2 {
		t.Errorf("очередь сжатия: хотели 2 задания, получили %v", jobs)
	}
}

func TestPromote_ReplacesStaleStudentDirectory(t *testing.T) {
	s, _ := newTestStore(t)
	draftID := uuid.NewString()

	stale := filepath.Join(s.Root(), "uploads", "videos", "STU999")
	if err := os.MkdirAll(stale, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(stale, "old.mp4"), []byte("old"), 0o640); err != nil {
		t.Fatal(err)
	}

	vidRel, err := s.SaveDraftFile(media.ClassVideo, strings.NewReader("vid"), 3, "clip.mp4", draftID)
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}
	draft := &model.Draft{ID: draftID, ProfileVideoPath: &vidRel}

	res, err := s.Promote(context.Background(), draft, "STU999")
	if err != nil {
		t.Fatalf("ошибка переноса: %v", err)
	}
	if res.VideoPath == nil {
		t.Fatal("VideoPath: хотели путь, получили nil")
	}
	if _, err := os.Stat(filepath.Join(stale, "old.mp4")); !os.IsNotExist(err) {
		t.Error("устаревший файл студента должен быть удалён")
	}
}

func TestPromote_NoDraftDirectory(t *testing.T) {
	s, enq := newTestStore(t)
	missing := "uploads/images/" + uuid.NewString() + "/x.jpg"
	draft := &model.Draft{ID: uuid.NewString(), ProfileImagePath: &missing}

	res, err := s.Promote(context.Background(), draft, "STU1")
	if err != nil {
		t.Fatalf("отсутствие каталога не ошибка: %v", err)
	}
	if res.ImagePath != nil || res.VideoPath != nil {
		t.Error("пути должны отсутствовать")
	}
	if len(enq.Jobs()) != 0 {
		t.Error("в очередь ничего не должно попасть")
	}
}

func TestPromote_InvalidStudentID(t *testing.T) {
	s, _ := newTestStore(t)
	draft := &model.Draft{ID: uuid.NewString()}
	for _, id := range []string{"", "..", "a/b"} {
		if _, err := s.Promote(context.Background(), draft, id); !errors.Is(err, ErrInvalidOwner) {
			t.Errorf("Promote(%q): ожидалась ErrInvalidOwner, получили %v", id, err)
		}
	}
}

func TestDeleteDraftFiles_Idempotent(t *testing.T) {
	s, _ := newTestStore(t)
	draftID := uuid.NewString()

	if _, err := s.SaveDraftFile(media.ClassImage, strings.NewReader("i"), 1, "a.png", draftID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveDraftFile(media.ClassVideo, strings.NewReader("v"), 1, "a.mov", draftID); err != nil {
		t.Fatal(err)
	}

	s.DeleteDraftFiles(draftID)
	s.DeleteDraftFiles(draftID)

	for _, sub := range []string{"images", "videos"} {
		if _, err := os.Stat(filepath.Join(s.Root(), "uploads", sub, draftID)); !os.IsNotExist(err) {
			t.Errorf("каталог uploads/%s/%s должен быть удалён", sub, draftID)
		}
	}
}

func TestSweepExpired(t *testing.T) {
	s, _ := newTestStore(t)
	old := uuid.NewString()
	fresh := uuid.NewString()

	mkdir := func(sub, name string, age time.Duration) string {
		dir := filepath.Join(s.Root(), "uploads", sub, name)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatal(err)
		}
		ts := time.Now().Add(-age)
		if err := os.Chtimes(dir, ts, ts); err != nil {
			t.Fatal(err)
		}
		return dir
	}

	oldImg := mkdir("images", old, 31*time.Minute)
	oldVid := mkdir("videos", old, 31*time.Minute)
	freshImg := mkdir("images", fresh, 29*time.Minute)
	student := mkdir("images", "STU2026010112000042", 48*time.Hour)

	removed, err := s.SweepExpired(context.Background(), 30)
	if err != nil {
		t.Fatalf("ошибка очистки: %v", err)
	}
	if removed != 2 {
		t.Errorf("удалено: хотели 2, получили %d", removed)
	}
	for _, dir := range []string{oldImg, oldVid} {
		if _, err := os.Stat(dir); !os.IsNotExist(err) {
			t.Errorf("просроченный каталог должен быть удалён: %s", dir)
		}
	}
	for _, dir := range []string{freshImg, student} {
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("каталог не должен быть удалён: %s", dir)
		}
	}
}

// Пока блокировку держит другой процесс, каталоги не удаляются.
func TestSweepExpired_LockedByOtherProcess(t *testing.T) {
	s, _ := newTestStore(t)

	dir := filepath.Join(s.Root(), "uploads", "images", uuid.NewString())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}
	ts := time.Now().Add(-time.Hour)
	if err := os.Chtimes(dir, ts, ts); err != nil {
		t.Fatal(err)
	}

	other := flock.New(filepath.Join(s.Root(), sweepLockFile))
	locked, err := other.TryLock()
	if err != nil || !locked {
		t.Fatalf("не удалось взять блокировку: %v", err)
	}

	removed, err := s.SweepExpired(context.Background(), 30)
	if err != nil || removed != 0 {
		t.Fatalf("при чужой блокировке: хотели 0 без ошибки, получили %d, %v", removed, err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatal("каталог не должен удаляться при чужой блокировке")
	}

	_ = other.Unlock()
	removed, err = s.SweepExpired(context.Background(), 30)
	if err != nil || removed != 1 {
		t.Errorf("после снятия блокировки: хотели 1, получили %d, %v", removed, err)
	}
}

func TestSaveStudentFile_EnqueuesCompression(t *testing.T) {
	s, enq := newTestStore(t)

	rel, err := s.SaveStudentFile(media.ClassVideo, strings.NewReader("v"), 1, "new.mkv", "STU42")
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}
	if !strings.HasPrefix(rel, "uploads/videos/STU42/") {
		t.Errorf("путь: получили %s", rel)
	}
	jobs := enq.Jobs()
	if len(jobs) != 1 || jobs[0] != "video:"+s.FullPath(rel) {
		t.Errorf("очередь сжатия: получили %v", jobs)
	}
}

func TestDeleteFile(t *testing.T) {
	s, _ := newTestStore(t)
	rel, err := s.SaveStudentFile(media.ClassImage, strings.NewReader("i"), 1, "a.jpg", "STU1")
	if err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteFile(rel); err != nil {
		t.Fatalf("ошибка удаления: %v", err)
	}
	if err := s.DeleteFile(rel); err != nil {
		t.Errorf("повторное удаление должно быть no-op: %v", err)
	}
	if err := s.DeleteFile("../secret.txt"); err == nil {
		t.Error("путь вне uploads должен быть отклонён")
	}
}
