package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
)

// AuditRepository — журнал решений проверки (quarantine_audit).
type AuditRepository interface {
	// Insert добавляет запись журнала.
	Insert(ctx context.Context, e *model.AuditEntry) error
	// ListByFile возвращает записи по файлу в хронологическом порядке.
	ListByFile(ctx context.Context, fileID string) ([]*model.AuditEntry, error)
}

type auditRepo struct {
	db DBTX
}

// NewAuditRepository создаёт репозиторий журнала решений.
func NewAuditRepository(db DBTX) AuditRepository {
	return &auditRepo{db: db}
}

func (r *auditRepo) Insert(ctx context.Context, e *model.AuditEntry) error {
	query := `
		INSERT INTO quarantine_audit (id, file_id, action, actor, reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query, e.ID, e.FileID, e.Action, e.Actor, e.Reason).Scan(&e.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: запись журнала с таким ID уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка записи в журнал решений: %w", err)
	}
	return nil
}

func (r *auditRepo) ListByFile(ctx context.Context, fileID string) ([]*model.AuditEntry, error) {
	query := `
		SELECT id::text, file_id::text, action, actor, reason, created_at
		FROM quarantine_audit
		WHERE file_id = $1
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения журнала решений: %w", err)
	}
	defer rows.Close()

	var entries []*model.AuditEntry
	for rows.Next() {
		e := &model.AuditEntry{}
		if err := rows.Scan(&e.ID, &e.FileID, &e.Action, &e.Actor, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи журнала: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
