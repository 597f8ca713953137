package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/status"
)

// JobRepository — операции с таблицей quarantine_jobs.
type JobRepository interface {
	// Create создаёт задание.
	Create(ctx context.Context, job *model.Job) error
	// GetByID возвращает задание по UUID.
	GetByID(ctx context.Context, id string) (*model.Job, error)
	// MarkScanning переводит задание pending → scanning (повторно — no-op).
	MarkScanning(ctx context.Context, id string) error
	// IncrementCounters учитывает завершённый файл в счётчиках задания.
	IncrementCounters(ctx context.Context, id string, clean bool) error
	// Complete завершает задание, если все файлы обработаны.
	Complete(ctx context.Context, id string) (*model.Job, error)
	// ListUnfinished возвращает задания в статусах pending и scanning.
	ListUnfinished(ctx context.Context) ([]*model.Job, error)
}

type jobRepo struct {
	db DBTX
}

// NewJobRepository создаёт репозиторий заданий.
func NewJobRepository(db DBTX) JobRepository {
	return &jobRepo{db: db}
}

const jobColumns = `id::text, submitted_by, source_type, status, total_files,
	files_completed, files_clean, files_flagged, created_at, completed_at`

func scanJob(row pgx.Row) (*model.Job, error) {
	j := &model.Job{}
	var st string
	err := row.Scan(
		&j.ID, &j.SubmittedBy, &j.SourceType, &st, &j.TotalFiles,
		&j.FilesCompleted, &j.FilesClean, &j.FilesFlagged, &j.CreatedAt, &j.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Status = status.JobStatus(st)
	return j, nil
}

func (r *jobRepo) Create(ctx context.Context, job *model.Job) error {
	query := `
		INSERT INTO quarantine_jobs (id, submitted_by, source_type, status, total_files)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		job.ID, job.SubmittedBy, job.SourceType, string(job.Status), job.TotalFiles,
	).Scan(&job.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: задание с таким ID уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания задания: %w", err)
	}
	return nil
}

func (r *jobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM quarantine_jobs WHERE id = $1`

	j, err := scanJob(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения задания: %w", err)
	}
	return j, nil
}

func (r *jobRepo) MarkScanning(ctx context.Context, id string) error {
	query := `
		UPDATE quarantine_jobs SET status = 'scanning'
		WHERE id = $1 AND status IN ('pending', 'scanning')`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("ошибка запуска задания: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: задание %s не найдено или уже завершено", ErrConflict, id)
	}
	return nil
}

func (r *jobRepo) IncrementCounters(ctx context.Context, id string, clean bool) error {
	query := `
		UPDATE quarantine_jobs SET
			files_completed = files_completed + 1,
			files_clean = files_clean + CASE WHEN $2 THEN 1 ELSE 0 END,
			files_flagged = files_flagged + CASE WHEN $2 THEN 0 ELSE 1 END
		WHERE id = $1 AND files_completed < total_files`

	tag, err := r.db.Exec(ctx, query, id, clean)
	if err != nil {
		return fmt.Errorf("ошибка обновления счётчиков задания: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: счётчики задания %s уже заполнены", ErrConflict, id)
	}
	return nil
}

func (r *jobRepo) Complete(ctx context.Context, id string) (*model.Job, error) {
	query := `
		UPDATE quarantine_jobs SET status = 'completed', completed_at = now()
		WHERE id = $1 AND status = 'scanning' AND files_completed = total_files
		RETURNING ` + jobColumns

	j, err := scanJob(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("%w: задание %s нельзя завершить", ErrConflict, id)
		}
		return nil, fmt.Errorf("ошибка завершения задания: %w", err)
	}
	return j, nil
}

func (r *jobRepo) ListUnfinished(ctx context.Context) ([]*model.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM quarantine_jobs
		WHERE status IN ('pending', 'scanning')
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения незавершённых заданий: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования задания: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
