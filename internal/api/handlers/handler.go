// handler.go — основной обработчик REST API карантина, реализующий
// generated.ServerInterface. Маршруты и разбор параметров пути и query
// сгенерированы из api/openapi.yaml; обработчики разбирают тело
// запроса и сериализуют ответ.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/quarantine-module/internal/api/errors"
	"github.com/bigkaa/goartstore/quarantine-module/internal/api/generated"
	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
	"github.com/bigkaa/goartstore/quarantine-module/internal/service"
)

// Scanner — приём пакетов на сканирование.
type Scanner interface {
	Submit(ctx context.Context, uploads []service.Upload, sourceType, submittedBy string) (string, error)
	SubmitPath(ctx context.Context, dir, sourceType, submittedBy string) (string, error)
}

// Queries — чтение состояния карантина.
type Queries interface {
	GetJobStatus(ctx context.Context, jobID string) (*model.JobSummary, error)
	GetFile(ctx context.Context, fileID string) (*model.File, error)
	ListHeldFiles(ctx context.Context, limit, offset int) ([]*model.File, int, error)
	ListAudit(ctx context.Context, fileID string) ([]*model.AuditEntry, error)
	GetStats(ctx context.Context) (*model.Stats, error)
}

// Reviewer — решения проверки.
type Reviewer interface {
	Approve(ctx context.Context, fileID, reason, reviewer string) (*model.File, error)
	Reject(ctx context.Context, fileID, reason, reviewer string) (*model.File, error)
}

// Settings — настройки сканирования.
type Settings interface {
	Get(ctx context.Context) (model.ScanConfig, error)
	Update(ctx context.Context, patch map[string]any) (model.ScanConfig, error)
}

// SignatureReporter — состояние сигнатур.
type SignatureReporter interface {
	GetSignatureInfo(ctx context.Context) service.SignatureInfo
}

// APIHandler — основной обработчик API Quarantine Module.
type APIHandler struct {
	health     *HealthHandler
	scans      Scanner
	queries    Queries
	reviews    Reviewer
	settings   Settings
	signatures SignatureReporter
	// maxMemory — объём multipart-формы в памяти, остальное во временных файлах
	maxMemory int64
	logger    *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	scans Scanner,
	queries Queries,
	reviews Reviewer,
	settings Settings,
	signatures SignatureReporter,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:     health,
		scans:      scans,
		queries:    queries,
		reviews:    reviews,
		settings:   settings,
		signatures: signatures,
		maxMemory:  32 << 20,
		logger:     logger.With(slog.String("component", "api_handler")),
	}
}

// Проверка на этапе компиляции: APIHandler реализует ServerInterface.
var _ generated.ServerInterface = (*APIHandler)(nil)

// HealthLive — GET /health/live.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — GET /health/ready.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — GET /metrics.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// ParamErrorHandler отвечает 400 на некорректные параметры пути и query
// (например, ID не в формате UUID).
func ParamErrorHandler(w http.ResponseWriter, _ *http.Request, err error) {
	apierrors.ValidationError(w, err.Error())
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError отображает ошибку сервисного слоя на HTTP-ответ.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrBatchTooLarge):
		apierrors.BatchTooLarge(w, err.Error())
	case errors.Is(err, service.ErrFileTooLarge):
		apierrors.FileTooLarge(w, err.Error())
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrInvalidStatusTransition):
		apierrors.Conflict(w, err.Error())
	default:
		h.logger.Error("Внутренняя ошибка",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}
