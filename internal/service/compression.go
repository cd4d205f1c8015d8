// compression.go — очередь фонового сжатия медиафайлов.
//
// Неограниченная FIFO-очередь в памяти и ровно один потребитель,
// обрабатывающий задания строго по одному. Enqueue никогда не блокирует
// вызывающего: после остановки задания отбрасываются с записью в лог.
// Задания не переживают перезапуск процесса: файлы остаются несжатыми.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/student-registry/internal/compress"
	"github.com/bigkaa/student-registry/internal/domain/media"
)

// Prometheus метрики очереди сжатия
var (
	compressionJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sr_compression_jobs_total",
		Help: "Обработанные задания сжатия по классу и результату (ok, failed, skipped)",
	}, []string{"media_class", "result"})

	compressionQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sr_compression_queue_length",
		Help: "Количество заданий, ожидающих сжатия",
	})

	compressionDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sr_compression_jobs_dropped_total",
		Help: "Задания, отброшенные остановленной очередью",
	})

	compressionDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sr_compression_duration_seconds",
		Help:    "Длительность сжатия одного файла в секундах",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	}, []string{"media_class"})
)

// Compressor сжимает файл на месте.
type Compressor interface {
	Compress(ctx context.Context, fullPath string) error
}

// CompressionJob — задание: полный путь к файлу и класс.
type CompressionJob struct {
	Path  string
	Class media.Class
}

// CompressionQueue — очередь сжатия с единственным потребителем.
type CompressionQueue struct {
	image  Compressor
	video  Compressor
	logger *slog.Logger

	mu      sync.Mutex
	jobs    []CompressionJob
	closed  bool
	started bool

	// signal будит потребителя; буфер 1, отправка неблокирующая
	signal chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCompressionQueue создаёт очередь. Потребитель запускается через Start.
func NewCompressionQueue(image, video Compressor, logger *slog.Logger) *CompressionQueue {
	return &CompressionQueue{
		image:  image,
		video:  video,
		logger: logger.With(slog.String("component", "compression")),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue добавляет задание. Не блокирует; false — очередь остановлена.
func (q *CompressionQueue) Enqueue(fullPath string, class media.Class) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		compressionDroppedTotal.Inc()
		q.logger.Warn("Очередь сжатия остановлена, задание отброшено",
			slog.String("path", fullPath),
			slog.String("media_class", string(class)),
		)
		return false
	}
	q.jobs = append(q.jobs, CompressionJob{Path: fullPath, Class: class})
	compressionQueueLength.Set(float64(len(q.jobs)))
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// Len возвращает количество ожидающих заданий.
func (q *CompressionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Start запускает потребителя. Повторный вызов ничего не делает.
func (q *CompressionQueue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true

	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	q.wg.Add(1)
	go q.run(runCtx)

	q.logger.Info("Обработчик сжатия запущен")
}

// Stop закрывает очередь, прерывает текущее задание и ждёт завершения
// потребителя. Необработанные задания отбрасываются.
func (q *CompressionQueue) Stop() {
	q.mu.Lock()
	q.closed = true
	pending := len(q.jobs)
	q.jobs = nil
	compressionQueueLength.Set(0)
	cancel := q.cancel
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	q.wg.Wait()

	q.logger.Info("Обработчик сжатия остановлен",
		slog.Int("dropped", pending),
	)
}

func (q *CompressionQueue) run(ctx context.Context) {
	defer q.wg.Done()

	for {
		job, ok := q.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.signal:
				continue
			}
		}
		if ctx.Err() != nil {
			return
		}
		q.process(ctx, job)
	}
}

func (q *CompressionQueue) pop() (CompressionJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return CompressionJob{}, false
	}
	job := q.jobs[0]
	q.jobs[0] = CompressionJob{}
	q.jobs = q.jobs[1:]
	compressionQueueLength.Set(float64(len(q.jobs)))
	return job, true
}

// process обрабатывает одно задание. Ошибка (и паника) компрессора
// логируется и не останавливает потребителя.
func (q *CompressionQueue) process(ctx context.Context, job CompressionJob) {
	log := q.logger.With(
		slog.String("path", job.Path),
		slog.String("media_class", string(job.Class)),
	)

	compressor := q.compressorFor(job)
	if compressor == nil {
		compressionJobsTotal.WithLabelValues(string(job.Class), "skipped").Inc()
		log.Warn("Задание сжатия пропущено: класс и расширение не совпадают")
		return
	}

	start := time.Now()
	err := safeCompress(ctx, compressor, job.Path)
	compressionDurationSeconds.WithLabelValues(string(job.Class)).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		compressionJobsTotal.WithLabelValues(string(job.Class), "ok").Inc()
		log.Info("Файл сжат", slog.Duration("duration", time.Since(start)))
	case errors.Is(err, compress.ErrFFmpegNotFound):
		compressionJobsTotal.WithLabelValues(string(job.Class), "skipped").Inc()
		log.Warn("Сжатие видео пропущено: ffmpeg не найден")
	default:
		compressionJobsTotal.WithLabelValues(string(job.Class), "failed").Inc()
		log.Error("Ошибка сжатия файла", slog.String("error", err.Error()))
	}
}

// compressorFor выбирает компрессор: класс и расширение должны совпадать.
func (q *CompressionQueue) compressorFor(job CompressionJob) Compressor {
	switch {
	case job.Class == media.ClassImage && media.ClassImage.Allows(job.Path):
		return q.image
	case job.Class == media.ClassVideo && media.ClassVideo.Allows(job.Path):
		return q.video
	}
	return nil
}

func safeCompress(ctx context.Context, c Compressor, path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("паника при сжатии: %v", r)
		}
	}()
	return c.Compress(ctx, path)
}
