package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/status"
)

// Store объединяет репозитории карантина. Операции, затрагивающие
// несколько таблиц, выполняются в одной транзакции через TxRunner.
type Store struct {
	tx     *TxRunner
	jobs   JobRepository
	files  FileRepository
	audit  AuditRepository
	config ConfigRepository
	stats  StatsRepository
}

// NewStore создаёт Store поверх пула подключений.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		tx:     NewTxRunner(pool),
		jobs:   NewJobRepository(pool),
		files:  NewFileRepository(pool),
		audit:  NewAuditRepository(pool),
		config: NewConfigRepository(pool),
		stats:  NewStatsRepository(pool),
	}
}

// CreateJob создаёт задание вместе с его файлами.
func (s *Store) CreateJob(ctx context.Context, job *model.Job, files []*model.File) error {
	return s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := NewJobRepository(tx).Create(ctx, job); err != nil {
			return err
		}
		fileRepo := NewFileRepository(tx)
		for _, f := range files {
			if err := fileRepo.Create(ctx, f); err != nil {
				return err
			}
		}
		return nil
	})
}

// RecordOutcome записывает итог файла и обновляет счётчики задания.
func (s *Store) RecordOutcome(ctx context.Context, jobID string, o *model.ScanOutcome) error {
	return s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := NewFileRepository(tx).SaveOutcome(ctx, o); err != nil {
			return err
		}
		return NewJobRepository(tx).IncrementCounters(ctx, jobID, o.Status == status.FileClean)
	})
}

// ApplyReview применяет решение проверки (CAS по статусу held)
// и пишет запись журнала.
func (s *Store) ApplyReview(ctx context.Context, d *model.ReviewDecision, destinationPath string, entry *model.AuditEntry) (*model.File, error) {
	var reviewed *model.File
	err := s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		f, err := NewFileRepository(tx).Review(ctx, d, destinationPath)
		if err != nil {
			return err
		}
		if err := NewAuditRepository(tx).Insert(ctx, entry); err != nil {
			return err
		}
		reviewed = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reviewed, nil
}

// SaveConfig записывает настройки с префиксом prefix.
func (s *Store) SaveConfig(ctx context.Context, prefix string, values map[string]string) error {
	return s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		repo := NewConfigRepository(tx)
		for key, value := range values {
			if err := repo.Upsert(ctx, prefix+key, value); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadConfig возвращает настройки с префиксом prefix (ключи без префикса).
func (s *Store) LoadConfig(ctx context.Context, prefix string) (map[string]string, error) {
	return s.config.GetByPrefix(ctx, prefix)
}

// GetJob возвращает задание.
func (s *Store) GetJob(ctx context.Context, id string) (*model.Job, error) {
	return s.jobs.GetByID(ctx, id)
}

// ListJobFiles возвращает файлы задания.
func (s *Store) ListJobFiles(ctx context.Context, jobID string) ([]*model.File, error) {
	return s.files.ListByJob(ctx, jobID)
}

// GetFile возвращает файл.
func (s *Store) GetFile(ctx context.Context, id string) (*model.File, error) {
	return s.files.GetByID(ctx, id)
}

// MarkJobScanning переводит задание в scanning.
func (s *Store) MarkJobScanning(ctx context.Context, id string) error {
	return s.jobs.MarkScanning(ctx, id)
}

// MarkFileScanning переводит файл в scanning.
func (s *Store) MarkFileScanning(ctx context.Context, id string) error {
	return s.files.MarkScanning(ctx, id)
}

// SetFileStage записывает текущий этап файла.
func (s *Store) SetFileStage(ctx context.Context, id, stageName string) error {
	return s.files.SetStage(ctx, id, stageName)
}

// CompleteJob завершает задание.
func (s *Store) CompleteJob(ctx context.Context, id string) (*model.Job, error) {
	return s.jobs.Complete(ctx, id)
}

// ListHeld возвращает страницу задержанных файлов.
func (s *Store) ListHeld(ctx context.Context, limit, offset int) ([]*model.File, int, error) {
	return s.files.ListHeld(ctx, limit, offset)
}

// ListAudit возвращает журнал решений по файлу.
func (s *Store) ListAudit(ctx context.Context, fileID string) ([]*model.AuditEntry, error) {
	return s.audit.ListByFile(ctx, fileID)
}

// GetStats возвращает агрегированную статистику.
func (s *Store) GetStats(ctx context.Context) (*model.Stats, error) {
	return s.stats.Get(ctx)
}

// ListUnfinishedJobs возвращает незавершённые задания.
func (s *Store) ListUnfinishedJobs(ctx context.Context) ([]*model.Job, error) {
	return s.jobs.ListUnfinished(ctx)
}

// ResetScanningFiles возвращает прерванные файлы задания в pending.
func (s *Store) ResetScanningFiles(ctx context.Context, jobID string) (int, error) {
	return s.files.ResetScanning(ctx, jobID)
}
