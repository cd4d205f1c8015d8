// Пакет server — HTTP-сервер Student Registry с graceful shutdown.
// Без TLS: TLS termination на ingress.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/student-registry/internal/api/handlers"
	"github.com/bigkaa/student-registry/internal/config"
)

// Handlers — обработчики, монтируемые на маршруты.
type Handlers struct {
	Health        *handlers.HealthHandler
	Drafts        *handlers.DraftsHandler
	Registrations *handlers.RegistrationsHandler
	Students      *handlers.StudentsHandler
	// UploadsDir — каталог, раздаваемый по /uploads/
	UploadsDir string
}

// Server — HTTP-сервер Student Registry.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер. middlewares применяются в порядке передачи.
func New(cfg *config.Config, logger *slog.Logger, h Handlers, middlewares ...func(http.Handler) http.Handler) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(h, middlewares...),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает маршруты API, health endpoints и раздачу медиафайлов.
func NewRouter(h Handlers, middlewares ...func(http.Handler) http.Handler) chi.Router {
	router := chi.NewRouter()
	for _, mw := range middlewares {
		router.Use(mw)
	}

	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Get("/metrics", h.Health.GetMetrics)

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/drafts", func(r chi.Router) {
			r.Post("/", h.Drafts.CreateDraft)
			r.Post("/field", h.Drafts.UpdateField)
			r.Post("/upload", h.Drafts.Upload)
			r.Get("/{draftId}", h.Drafts.GetDraft)
			r.Delete("/{draftId}", h.Drafts.DeleteDraft)
		})
		r.Post("/registrations", h.Registrations.Register)
		r.Route("/students", func(r chi.Router) {
			r.Get("/", h.Students.ListStudents)
			r.Post("/{studentId}/media", h.Students.UploadMedia)
		})
	})

	fileServer := http.StripPrefix("/uploads/", http.FileServer(noDirListing{http.Dir(h.UploadsDir)}))
	router.Handle("/uploads/*", fileServer)

	return router
}

// noDirListing запрещает листинг каталогов при раздаче /uploads/.
type noDirListing struct {
	fs http.FileSystem
}

func (n noDirListing) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, os.ErrNotExist
	}
	return f, nil
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM)
// или отмены ctx. Затем выполняется graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case <-ctx.Done():
		s.logger.Info("Контекст сервера отменён")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
