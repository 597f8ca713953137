package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
)

// StatsRepository — агрегаты по заданиям и файлам.
type StatsRepository interface {
	Get(ctx context.Context) (*model.Stats, error)
}

type statsRepo struct {
	db DBTX
}

// NewStatsRepository создаёт репозиторий статистики.
func NewStatsRepository(db DBTX) StatsRepository {
	return &statsRepo{db: db}
}

func (r *statsRepo) Get(ctx context.Context) (*model.Stats, error) {
	query := `
		SELECT
			(SELECT count(*) FROM quarantine_jobs),
			(SELECT count(*) FROM quarantine_jobs WHERE status = 'completed'),
			count(*) FILTER (WHERE status IN ('clean', 'held', 'approved', 'rejected')),
			count(*) FILTER (WHERE status = 'clean'),
			count(*) FILTER (WHERE status = 'held'),
			count(*) FILTER (WHERE status = 'approved'),
			count(*) FILTER (WHERE status = 'rejected')
		FROM quarantine_files`

	s := &model.Stats{}
	err := r.db.QueryRow(ctx, query).Scan(
		&s.TotalJobs, &s.JobsCompleted, &s.TotalFilesScanned,
		&s.FilesClean, &s.FilesHeld, &s.FilesApproved, &s.FilesRejected,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения статистики: %w", err)
	}

	s.SeverityDistribution = make(map[model.Severity]int64, len(model.AllSeverities()))
	for _, sev := range model.AllSeverities() {
		s.SeverityDistribution[sev] = 0
	}

	rows, err := r.db.Query(ctx, `
		SELECT risk_severity, count(*)
		FROM quarantine_files
		WHERE status IN ('clean', 'held', 'approved', 'rejected')
		GROUP BY risk_severity`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения распределения по уровням: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sev string
		var n int64
		if err := rows.Scan(&sev, &n); err != nil {
			return nil, fmt.Errorf("ошибка сканирования распределения: %w", err)
		}
		s.SeverityDistribution[model.Severity(sev)] = n
	}
	return s, rows.Err()
}
