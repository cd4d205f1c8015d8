// health.go — health endpoints и метрики.
// /health/live — процесс жив
// /health/ready — PostgreSQL доступен, каталог uploads существует
package handlers

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/student-registry/internal/config"
)

const (
	statusOK   = "ok"
	statusFail = "fail"
)

// ReadinessChecker — проверка готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "fail") и сообщение.
	CheckReady() (status, message string)
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	pgChecker   ReadinessChecker
	uploadsDir  string
	promHandler http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// pgChecker может быть nil — readiness вернёт "fail".
func NewHealthHandler(pgChecker ReadinessChecker, uploadsDir string) *HealthHandler {
	return &HealthHandler{
		pgChecker:   pgChecker,
		uploadsDir:  uploadsDir,
		promHandler: promhttp.Handler(),
	}
}

type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status    string                       `json:"status"`
	Timestamp string                       `json:"timestamp"`
	Version   string                       `json:"version"`
	Service   string                       `json:"service"`
	Checks    map[string]healthCheckResult `json:"checks,omitempty"`
}

// HealthLive — liveness probe.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    statusOK,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "student-registry",
	})
}

// HealthReady — readiness probe: 200 или 503.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:    statusOK,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "student-registry",
		Checks:    make(map[string]healthCheckResult, 2),
	}

	pg := healthCheckResult{Status: statusFail, Message: "не инициализирован"}
	if h.pgChecker != nil {
		pg.Status, pg.Message = h.pgChecker.CheckReady()
	}
	resp.Checks["postgresql"] = pg

	resp.Checks["filesystem"] = h.checkUploadsDir()

	status := http.StatusOK
	for _, c := range resp.Checks {
		if c.Status != statusOK {
			resp.Status = statusFail
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

func (h *HealthHandler) checkUploadsDir() healthCheckResult {
	info, err := os.Stat(h.uploadsDir)
	if err != nil {
		return healthCheckResult{Status: statusFail, Message: err.Error()}
	}
	if !info.IsDir() {
		return healthCheckResult{Status: statusFail, Message: h.uploadsDir + " не является каталогом"}
	}
	return healthCheckResult{Status: statusOK}
}
