package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/status"
)

// FileRepository — операции с таблицей quarantine_files.
type FileRepository interface {
	// Create добавляет файл задания.
	Create(ctx context.Context, f *model.File) error
	// GetByID возвращает файл по UUID.
	GetByID(ctx context.Context, id string) (*model.File, error)
	// ListByJob возвращает файлы задания в порядке добавления.
	ListByJob(ctx context.Context, jobID string) ([]*model.File, error)
	// MarkScanning переводит файл pending → scanning.
	MarkScanning(ctx context.Context, id string) error
	// SetStage записывает текущий этап сканирования.
	SetStage(ctx context.Context, id, stageName string) error
	// SaveOutcome записывает итог сканирования (scanning → clean | held).
	SaveOutcome(ctx context.Context, o *model.ScanOutcome) error
	// ListHeld возвращает страницу задержанных файлов и их общее число.
	ListHeld(ctx context.Context, limit, offset int) ([]*model.File, int, error)
	// Review применяет решение проверки с CAS по статусу held.
	Review(ctx context.Context, d *model.ReviewDecision, destinationPath string) (*model.File, error)
	// ResetScanning возвращает прерванные файлы задания в pending.
	ResetScanning(ctx context.Context, jobID string) (int, error)
}

type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий файлов карантина.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

const fileColumns = `id::text, job_id::text, original_filename, staged_path, size_bytes,
	sha256, mime_type, status, current_stage, risk_severity, findings,
	sanitized_path, held_path, destination_path, reviewed_by, review_reason,
	reviewed_at, created_at, updated_at`

func scanFile(row pgx.Row) (*model.File, error) {
	f := &model.File{}
	var st, sev string
	var findings []byte
	err := row.Scan(
		&f.ID, &f.JobID, &f.OriginalFilename, &f.StagedPath, &f.SizeBytes,
		&f.SHA256, &f.MimeType, &st, &f.CurrentStage, &sev, &findings,
		&f.SanitizedPath, &f.HeldPath, &f.DestinationPath, &f.ReviewedBy, &f.ReviewReason,
		&f.ReviewedAt, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.Status = status.FileStatus(st)
	f.RiskSeverity = model.Severity(sev)
	if f.Findings, err = model.UnmarshalFindings(findings); err != nil {
		return nil, err
	}
	return f, nil
}

func (r *fileRepo) Create(ctx context.Context, f *model.File) error {
	query := `
		INSERT INTO quarantine_files (id, job_id, original_filename, staged_path,
			size_bytes, sha256, mime_type, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		f.ID, f.JobID, f.OriginalFilename, f.StagedPath,
		f.SizeBytes, f.SHA256, f.MimeType, string(f.Status),
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: файл с таким ID уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка добавления файла: %w", err)
	}
	return nil
}

func (r *fileRepo) GetByID(ctx context.Context, id string) (*model.File, error) {
	query := `SELECT ` + fileColumns + ` FROM quarantine_files WHERE id = $1`

	f, err := scanFile(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения файла: %w", err)
	}
	return f, nil
}

func (r *fileRepo) ListByJob(ctx context.Context, jobID string) ([]*model.File, error) {
	query := `
		SELECT ` + fileColumns + `
		FROM quarantine_files
		WHERE job_id = $1
		ORDER BY created_at, id`

	return r.list(ctx, query, jobID)
}

func (r *fileRepo) list(ctx context.Context, query string, args ...any) ([]*model.File, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка файлов: %w", err)
	}
	defer rows.Close()

	var files []*model.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования файла: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (r *fileRepo) MarkScanning(ctx context.Context, id string) error {
	query := `
		UPDATE quarantine_files SET status = 'scanning', updated_at = now()
		WHERE id = $1 AND status = 'pending'`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("ошибка запуска сканирования файла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: файл %s не в статусе pending", ErrConflict, id)
	}
	return nil
}

func (r *fileRepo) SetStage(ctx context.Context, id, stageName string) error {
	query := `
		UPDATE quarantine_files SET current_stage = $2, updated_at = now()
		WHERE id = $1`

	if _, err := r.db.Exec(ctx, query, id, stageName); err != nil {
		return fmt.Errorf("ошибка обновления этапа файла: %w", err)
	}
	return nil
}

func (r *fileRepo) SaveOutcome(ctx context.Context, o *model.ScanOutcome) error {
	findings, err := model.MarshalFindings(o.Findings)
	if err != nil {
		return fmt.Errorf("ошибка сериализации находок: %w", err)
	}

	query := `
		UPDATE quarantine_files SET
			status = $2, risk_severity = $3, findings = $4,
			sanitized_path = $5, held_path = $6, mime_type = $7,
			review_reason = $8, destination_path = $9,
			current_stage = 'complete', updated_at = now()
		WHERE id = $1 AND status = 'scanning'`

	tag, err := r.db.Exec(ctx, query,
		o.FileID, string(o.Status), string(o.RiskSeverity), findings,
		o.SanitizedPath, o.HeldPath, o.MimeType, o.ReviewReason, o.DestinationPath,
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения результата сканирования: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: файл %s не в статусе scanning", ErrConflict, o.FileID)
	}
	return nil
}

func (r *fileRepo) ListHeld(ctx context.Context, limit, offset int) ([]*model.File, int, error) {
	var total int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM quarantine_files WHERE status = 'held'`,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта задержанных файлов: %w", err)
	}

	query := `
		SELECT ` + fileColumns + `
		FROM quarantine_files
		WHERE status = 'held'
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2`

	files, err := r.list(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return files, total, nil
}

func (r *fileRepo) Review(ctx context.Context, d *model.ReviewDecision, destinationPath string) (*model.File, error) {
	query := `
		UPDATE quarantine_files SET
			status = $2, reviewed_by = $3, review_reason = $4, reviewed_at = $5,
			destination_path = $6, updated_at = now()
		WHERE id = $1 AND status = 'held'
		RETURNING ` + fileColumns

	f, err := scanFile(r.db.QueryRow(ctx, query,
		d.FileID, string(d.Target), d.Reviewer, d.Reason, d.At, destinationPath,
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("%w: файл %s не в статусе held", ErrConflict, d.FileID)
		}
		return nil, fmt.Errorf("ошибка применения решения проверки: %w", err)
	}
	return f, nil
}

func (r *fileRepo) ResetScanning(ctx context.Context, jobID string) (int, error) {
	query := `
		UPDATE quarantine_files SET status = 'pending', current_stage = '', updated_at = now()
		WHERE job_id = $1 AND status = 'scanning'`

	tag, err := r.db.Exec(ctx, query, jobID)
	if err != nil {
		return 0, fmt.Errorf("ошибка сброса прерванных файлов: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
