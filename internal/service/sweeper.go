// sweeper.go — фоновая очистка просроченных черновиков.
//
// Один проход выполняет две независимые очистки:
//  1. Строки черновиков с истёкшим сроком (файлы каждого удаляются до строки)
//  2. Каталоги черновиков на диске старше срока, в том числе осиротевшие
//
// Проход запускается при старте, при создании каждого черновика
// и периодически по тикеру (SR_SWEEP_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus метрики очистки
var (
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sr_sweep_runs_total",
		Help: "Общее количество проходов очистки черновиков",
	})

	sweepDraftsDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sr_sweep_drafts_deleted_total",
		Help: "Количество удалённых просроченных черновиков",
	})

	sweepDirsDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sr_sweep_dirs_deleted_total",
		Help: "Количество удалённых просроченных каталогов черновиков",
	})

	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sr_sweep_duration_seconds",
		Help:    "Длительность прохода очистки в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// ExpiredDraftDeleter удаляет просроченные строки черновиков.
type ExpiredDraftDeleter interface {
	DeleteExpired(ctx context.Context, expiryMinutes int) (int, error)
}

// ExpiredDirSweeper удаляет просроченные каталоги черновиков.
type ExpiredDirSweeper interface {
	SweepExpired(ctx context.Context, expiryMinutes int) (int, error)
}

// SweepResult — результат одного прохода.
type SweepResult struct {
	// Skipped — проход уже выполнялся другим вызовом
	Skipped bool
	// DraftsDeleted — удалено строк черновиков
	DraftsDeleted int
	// DirsDeleted — удалено каталогов на диске
	DirsDeleted int
	// Errors — количество неудавшихся очисток
	Errors   int
	Duration time.Duration
}

// DraftSweeper — сервис очистки просроченных черновиков.
type DraftSweeper struct {
	drafts        ExpiredDraftDeleter
	dirs          ExpiredDirSweeper
	expiryMinutes int
	interval      time.Duration
	logger        *slog.Logger

	mu sync.Mutex // один проход за раз

	stateMu sync.Mutex
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDraftSweeper создаёт сервис очистки.
func NewDraftSweeper(
	drafts ExpiredDraftDeleter,
	dirs ExpiredDirSweeper,
	expiryMinutes int,
	interval time.Duration,
	logger *slog.Logger,
) *DraftSweeper {
	return &DraftSweeper{
		drafts:        drafts,
		dirs:          dirs,
		expiryMinutes: expiryMinutes,
		interval:      interval,
		logger:        logger.With(slog.String("component", "sweeper")),
	}
}

// Start запускает фоновую горутину: первый проход сразу, далее по тикеру.
func (sw *DraftSweeper) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)

	sw.stateMu.Lock()
	sw.runCtx = runCtx
	sw.cancel = cancel
	sw.wg.Add(1)
	sw.stateMu.Unlock()

	go sw.run(runCtx)

	sw.logger.Info("Очистка черновиков запущена",
		slog.String("interval", sw.interval.String()),
		slog.Int("expiry_minutes", sw.expiryMinutes),
	)
}

// Stop останавливает фоновую горутину и ждёт её завершения.
func (sw *DraftSweeper) Stop() {
	sw.stateMu.Lock()
	if sw.cancel != nil {
		sw.cancel()
	}
	sw.runCtx = nil
	sw.stateMu.Unlock()

	sw.wg.Wait()
	sw.logger.Info("Очистка черновиков остановлена")
}

// Trigger запускает внеочередной проход в фоне и сразу возвращает управление.
// До Start и после Stop ничего не делает.
func (sw *DraftSweeper) Trigger() {
	sw.stateMu.Lock()
	defer sw.stateMu.Unlock()
	if sw.runCtx == nil {
		return
	}

	ctx := sw.runCtx
	sw.wg.Add(1)
	go func() {
		defer sw.wg.Done()
		sw.RunOnce(ctx)
	}()
}

func (sw *DraftSweeper) run(ctx context.Context) {
	defer sw.wg.Done()

	sw.RunOnce(ctx)

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sw.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один проход. Если проход уже идёт, сразу
// возвращает результат со Skipped = true.
func (sw *DraftSweeper) RunOnce(ctx context.Context) *SweepResult {
	if !sw.mu.TryLock() {
		return &SweepResult{Skipped: true}
	}
	defer sw.mu.Unlock()

	start := time.Now()
	result := &SweepResult{}

	drafts, err := sw.drafts.DeleteExpired(ctx, sw.expiryMinutes)
	result.DraftsDeleted = drafts
	if err != nil {
		result.Errors++
		sw.logger.Error("Ошибка удаления просроченных черновиков",
			slog.String("error", err.Error()),
		)
	}

	dirs, err := sw.dirs.SweepExpired(ctx, sw.expiryMinutes)
	result.DirsDeleted = dirs
	if err != nil {
		result.Errors++
		sw.logger.Error("Ошибка очистки каталогов черновиков",
			slog.String("error", err.Error()),
		)
	}

	result.Duration = time.Since(start)

	sweepRunsTotal.Inc()
	sweepDraftsDeletedTotal.Add(float64(result.DraftsDeleted))
	sweepDirsDeletedTotal.Add(float64(result.DirsDeleted))
	sweepDurationSeconds.Observe(result.Duration.Seconds())

	sw.logger.Debug("Очистка черновиков завершена",
		slog.Int("drafts", result.DraftsDeleted),
		slog.Int("dirs", result.DirsDeleted),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)

	return result
}
