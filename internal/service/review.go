package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/status"
	"github.com/bigkaa/goartstore/quarantine-module/internal/repository"
	"github.com/bigkaa/goartstore/quarantine-module/internal/storage/filestore"
)

// Действия журнала проверки.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// JobInvalidator сбрасывает закешированное состояние задания.
type JobInvalidator interface {
	InvalidateJob(jobID string)
}

// ReviewService — ручная проверка задержанных файлов.
type ReviewService struct {
	store   ReviewStore
	files   *filestore.FileStore
	invalid JobInvalidator
	logger  *slog.Logger
	now     func() time.Time
}

// NewReviewService создаёт сервис проверки. invalidator может быть nil.
func NewReviewService(store ReviewStore, files *filestore.FileStore, invalidator JobInvalidator, logger *slog.Logger) *ReviewService {
	return &ReviewService{
		store:   store,
		files:   files,
		invalid: invalidator,
		logger:  logger.With(slog.String("component", "review_service")),
		now:     time.Now,
	}
}

// Approve одобряет задержанный файл: артефакт (очищенная копия или
// исходник) переносится в постоянное хранилище, статус меняется
// held → approved, в журнал пишется запись.
func (s *ReviewService) Approve(ctx context.Context, fileID, reason, reviewer string) (*model.File, error) {
	f, id, err := s.load(ctx, fileID, status.FileApproved, reviewer)
	if err != nil {
		return nil, err
	}

	dst, err := s.files.Promote(id, f.ArtifactPath(), f.OriginalFilename)
	if err != nil {
		return nil, fmt.Errorf("ошибка переноса в постоянное хранилище: %w", err)
	}

	reviewed, err := s.apply(ctx, f, status.FileApproved, ActionApprove, reason, reviewer, dst)
	if err != nil {
		if rmErr := s.files.Remove(dst); rmErr != nil {
			s.logger.Warn("Не удалось удалить копию после неудачного одобрения",
				slog.String("file_id", f.ID),
				slog.String("error", rmErr.Error()),
			)
		}
		return nil, err
	}
	return reviewed, nil
}

// Reject отклоняет задержанный файл и удаляет все его копии.
func (s *ReviewService) Reject(ctx context.Context, fileID, reason, reviewer string) (*model.File, error) {
	f, _, err := s.load(ctx, fileID, status.FileRejected, reviewer)
	if err != nil {
		return nil, err
	}

	reviewed, err := s.apply(ctx, f, status.FileRejected, ActionReject, reason, reviewer, "")
	if err != nil {
		return nil, err
	}

	if err := s.files.Remove(f.StagedPath, f.SanitizedPath, f.HeldPath); err != nil {
		s.logger.Warn("Не удалось удалить копии отклонённого файла",
			slog.String("file_id", f.ID),
			slog.String("error", err.Error()),
		)
	}
	return reviewed, nil
}

// load читает файл и проверяет допустимость перехода.
func (s *ReviewService) load(ctx context.Context, fileID string, target status.FileStatus, reviewer string) (*model.File, uuid.UUID, error) {
	id, err := uuid.Parse(fileID)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%w: некорректный ID файла %q", ErrValidation, fileID)
	}
	if strings.TrimSpace(reviewer) == "" {
		return nil, uuid.Nil, fmt.Errorf("%w: не указан проверяющий", ErrValidation)
	}
	f, err := s.store.GetFile(ctx, id.String())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, uuid.Nil, fmt.Errorf("%w: файл %s", ErrNotFound, fileID)
		}
		return nil, uuid.Nil, err
	}
	if _, err := status.ReviewTransition(f.Status, target, reviewer); err != nil {
		return nil, uuid.Nil, fmt.Errorf("%w: %s", ErrInvalidStatusTransition, err.Error())
	}
	return f, id, nil
}

func (s *ReviewService) apply(
	ctx context.Context,
	f *model.File,
	target status.FileStatus,
	action, reason, reviewer, destination string,
) (*model.File, error) {
	at := s.now().UTC()
	decision := &model.ReviewDecision{
		FileID:   f.ID,
		Target:   target,
		Reviewer: reviewer,
		Reason:   reason,
		At:       at,
	}
	entry := &model.AuditEntry{
		ID:     uuid.New().String(),
		FileID: f.ID,
		Action: action,
		Actor:  reviewer,
		Reason: reason,
	}

	reviewed, err := s.store.ApplyReview(ctx, decision, destination, entry)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: файл %s уже не в статусе held", ErrInvalidStatusTransition, f.ID)
		}
		return nil, err
	}

	reviewsTotal.WithLabelValues(action).Inc()
	if s.invalid != nil {
		s.invalid.InvalidateJob(f.JobID)
	}
	s.logger.Info("Решение проверки применено",
		slog.String("file_id", f.ID),
		slog.String("action", action),
		slog.String("reviewer", reviewer),
	)
	return reviewed, nil
}
