// dephealth.go — Student Registry в графе зависимостей topologymetrics.
//
// Единственная зависимость — PostgreSQL, она критическая: без неё нельзя
// ни сохранить черновик, ни зарегистрировать студента. Проверка идёт через
// *sql.DB поверх общего pgxpool, поэтому видно и исчерпание пула.
package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"

	"github.com/bigkaa/student-registry/internal/config"
)

// DependencyPostgres — имя зависимости в метриках app_dependency_*.
const DependencyPostgres = "postgresql"

// DephealthService публикует состояние PostgreSQL на /metrics.
type DephealthService struct {
	dh       *dephealth.DepHealth
	interval string
	logger   *slog.Logger
}

// NewDephealthService регистрирует проверку PostgreSQL для вершины serviceID.
// Группа, интервал и URL для меток берутся из cfg; opts передаются SDK
// (например, dephealth.WithRegisterer в тестах).
func NewDephealthService(
	serviceID string,
	cfg *config.Config,
	db *sql.DB,
	logger *slog.Logger,
	opts ...dephealth.Option,
) (*DephealthService, error) {
	all := append([]dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.AddDependency(DependencyPostgres, dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(db)),
			dephealth.FromURL(cfg.DatabaseURL()),
			dephealth.CheckInterval(cfg.DephealthCheckInterval),
			dephealth.Critical(true),
		),
	}, opts...)

	dh, err := dephealth.New(serviceID, cfg.DephealthGroup, all...)
	if err != nil {
		return nil, fmt.Errorf("topologymetrics %s/%s: %w", cfg.DephealthGroup, serviceID, err)
	}

	return &DephealthService{
		dh:       dh,
		interval: cfg.DephealthCheckInterval.String(),
		logger:   logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку.
func (ds *DephealthService) Start(ctx context.Context) error {
	if err := ds.dh.Start(ctx); err != nil {
		return err
	}
	ds.logger.Info("Проверка PostgreSQL для topologymetrics запущена",
		slog.String("interval", ds.interval),
	)
	return nil
}

// Stop останавливает проверку.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Проверка PostgreSQL для topologymetrics остановлена")
}
