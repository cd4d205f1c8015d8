package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// stubSweep — ExpiredDraftDeleter и ExpiredDirSweeper одновременно.
type stubSweep struct {
	calls   atomic.Int32
	n       int
	err     error
	block   chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (s *stubSweep) do(ctx context.Context) (int, error) {
	s.calls.Add(1)
	if s.block != nil {
		s.once.Do(func() { close(s.entered) })
		select {
		case <-s.block:
		case <-ctx.Done():
		}
	}
	return s.n, s.err
}

func (s *stubSweep) DeleteExpired(ctx context.Context, _ int) (int, error) { return s.do(ctx) }
func (s *stubSweep) SweepExpired(ctx context.Context, _ int) (int, error) { return s.do(ctx) }

func TestDraftSweeper_RunOnce(t *testing.T) {
	drafts := &stubSweep{n: 3}
	dirs := &stubSweep{n: 2}
	sw := NewDraftSweeper(drafts, dirs, 30, time.Hour, testLogger())

	res := sw.RunOnce(context.Background())
	if res.Skipped {
		t.Fatal("проход не должен быть пропущен")
	}
	if res.DraftsDeleted != 3 || res.DirsDeleted != 2 || res.Errors != 0 {
		t.Errorf("результат: получили %+v", res)
	}
}

func TestDraftSweeper_ErrorsDoNotStopOtherSweep(t *testing.T) {
	drafts := &stubSweep{err: errors.New("БД недоступна")}
	dirs := &stubSweep{n: 1}
	sw := NewDraftSweeper(drafts, dirs, 30, time.Hour, testLogger())

	res := sw.RunOnce(context.Background())
	if res.Errors != 1 {
		t.Errorf("ошибок: хотели 1, получили %d", res.Errors)
	}
	if dirs.calls.Load() != 1 || res.DirsDeleted != 1 {
		t.Error("очистка каталогов должна выполниться после ошибки очистки строк")
	}
}

func TestDraftSweeper_ConcurrentRunSkipped(t *testing.T) {
	drafts := &stubSweep{block: make(chan struct{}), entered: make(chan struct{})}
	dirs := &stubSweep{}
	sw := NewDraftSweeper(drafts, dirs, 30, time.Hour, testLogger())

	done := make(chan *SweepResult)
	go func() { done <- sw.RunOnce(context.Background()) }()
	<-drafts.entered

	if res := sw.RunOnce(context.Background()); !res.Skipped {
		t.Error("второй параллельный проход должен быть пропущен")
	}

	close(drafts.block)
	if res := <-done; res.Skipped {
		t.Error("первый проход не должен быть пропущен")
	}
}

func TestDraftSweeper_StartRunsImmediately(t *testing.T) {
	drafts := &stubSweep{}
	dirs := &stubSweep{}
	sw := NewDraftSweeper(drafts, dirs, 30, time.Hour, testLogger())

	sw.Start(context.Background())
	waitFor(t, func() bool { return dirs.calls.Load() >= 1 })

	sw.Trigger()
	waitFor(t, func() bool { return dirs.calls.Load() >= 2 })

	sw.Stop()

	calls := dirs.calls.Load()
	sw.Trigger()
	time.Sleep(20 * time.Millisecond)
	if dirs.calls.Load() != calls {
		t.Error("Trigger после Stop не должен запускать проход")
	}
}

func TestDraftSweeper_TriggerBeforeStart(t *testing.T) {
	dirs := &stubSweep{}
	sw := NewDraftSweeper(&stubSweep{}, dirs, 30, time.Hour, testLogger())
	sw.Trigger()
	time.Sleep(20 * time.Millisecond)
	if dirs.calls.Load() != 0 {
		t.Error("Trigger до Start не должен запускать проход")
	}
	sw.Stop()
}
