package service

import (
	"context"

	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
)

// PipelineStore — хранилище, которое нужно конвейеру сканирования.
// Реализуется *repository.Store.
type PipelineStore interface {
	CreateJob(ctx context.Context, job *model.Job, files []*model.File) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobFiles(ctx context.Context, jobID string) ([]*model.File, error)
	MarkJobScanning(ctx context.Context, id string) error
	MarkFileScanning(ctx context.Context, id string) error
	SetFileStage(ctx context.Context, id, stageName string) error
	RecordOutcome(ctx context.Context, jobID string, o *model.ScanOutcome) error
	CompleteJob(ctx context.Context, id string) (*model.Job, error)
	ListUnfinishedJobs(ctx context.Context) ([]*model.Job, error)
	ResetScanningFiles(ctx context.Context, jobID string) (int, error)
}

// ReviewStore — хранилище для решений проверки.
type ReviewStore interface {
	GetFile(ctx context.Context, id string) (*model.File, error)
	ApplyReview(ctx context.Context, d *model.ReviewDecision, destinationPath string, entry *model.AuditEntry) (*model.File, error)
}

// QueryStore — хранилище для чтения состояния карантина.
type QueryStore interface {
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobFiles(ctx context.Context, jobID string) ([]*model.File, error)
	GetFile(ctx context.Context, id string) (*model.File, error)
	ListHeld(ctx context.Context, limit, offset int) ([]*model.File, int, error)
	ListAudit(ctx context.Context, fileID string) ([]*model.AuditEntry, error)
	GetStats(ctx context.Context) (*model.Stats, error)
}

// ConfigStore — внешнее хранилище настроек в виде плоской карты строк.
type ConfigStore interface {
	LoadConfig(ctx context.Context, prefix string) (map[string]string, error)
	SaveConfig(ctx context.Context, prefix string, values map[string]string) error
}
