package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/status"
	"github.com/bigkaa/goartstore/quarantine-module/internal/repository"
)

// Ограничения пагинации списка задержанных файлов.
const (
	DefaultHeldLimit = 50
	MaxHeldLimit     = 1000
)

// QueryService — чтение состояния карантина.
type QueryService struct {
	store  QueryStore
	cache  *JobCache
	logger *slog.Logger
}

// NewQueryService создаёт сервис чтения. cache может быть nil.
func NewQueryService(store QueryStore, cache *JobCache, logger *slog.Logger) *QueryService {
	return &QueryService{
		store:  store,
		cache:  cache,
		logger: logger.With(slog.String("component", "query_service")),
	}
}

// GetJobStatus возвращает задание со сводкой по файлам.
// Сводки завершённых заданий берутся из кэша.
func (s *QueryService) GetJobStatus(ctx context.Context, jobID string) (*model.JobSummary, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, fmt.Errorf("%w: задание %s", ErrNotFound, jobID)
	}
	if s.cache != nil {
		if summary, ok := s.cache.Get(jobID); ok {
			return summary, nil
		}
	}

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: задание %s", ErrNotFound, jobID)
		}
		return nil, err
	}
	files, err := s.store.ListJobFiles(ctx, jobID)
	if err != nil {
		return nil, err
	}

	summary := &model.JobSummary{
		ID:             job.ID,
		Status:         job.Status,
		SubmittedBy:    job.SubmittedBy,
		SourceType:     job.SourceType,
		TotalFiles:     job.TotalFiles,
		FilesCompleted: job.FilesCompleted,
		FilesClean:     job.FilesClean,
		FilesFlagged:   job.FilesFlagged,
		CreatedAt:      job.CreatedAt,
		CompletedAt:    job.CompletedAt,
		Files:          make([]model.FileSummary, 0, len(files)),
	}
	for _, f := range files {
		summary.Files = append(summary.Files, model.FileSummary{
			ID:               f.ID,
			OriginalFilename: f.OriginalFilename,
			Status:           f.Status,
			CurrentStage:     f.CurrentStage,
			RiskSeverity:     f.RiskSeverity,
			FindingsCount:    len(f.Findings),
			SizeBytes:        f.SizeBytes,
			SHA256:           f.SHA256,
		})
	}

	if s.cache != nil && job.Status == status.JobCompleted {
		s.cache.Set(jobID, summary)
	}
	return summary, nil
}

// GetFile возвращает файл вместе с находками.
func (s *QueryService) GetFile(ctx context.Context, fileID string) (*model.File, error) {
	if _, err := uuid.Parse(fileID); err != nil {
		return nil, fmt.Errorf("%w: файл %s", ErrNotFound, fileID)
	}
	f, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: файл %s", ErrNotFound, fileID)
		}
		return nil, err
	}
	return f, nil
}

// ListHeldFiles возвращает страницу задержанных файлов и их общее число.
func (s *QueryService) ListHeldFiles(ctx context.Context, limit, offset int) ([]*model.File, int, error) {
	if limit < 1 || limit > MaxHeldLimit {
		return nil, 0, fmt.Errorf("%w: limit должен быть от 1 до %d", ErrValidation, MaxHeldLimit)
	}
	if offset < 0 {
		return nil, 0, fmt.Errorf("%w: offset не может быть отрицательным", ErrValidation)
	}
	files, total, err := s.store.ListHeld(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if files == nil {
		files = []*model.File{}
	}
	return files, total, nil
}

// ListAudit возвращает журнал решений по файлу.
func (s *QueryService) ListAudit(ctx context.Context, fileID string) ([]*model.AuditEntry, error) {
	if _, err := s.GetFile(ctx, fileID); err != nil {
		return nil, err
	}
	entries, err := s.store.ListAudit(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*model.AuditEntry{}
	}
	return entries, nil
}

// GetStats возвращает агрегированную статистику.
func (s *QueryService) GetStats(ctx context.Context) (*model.Stats, error) {
	return s.store.GetStats(ctx)
}
