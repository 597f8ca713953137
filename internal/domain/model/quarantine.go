// Пакет model — доменные модели карантина.
package model

import (
	"time"

	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/status"
)

// Job — задание сканирования (пакет файлов одной отправки).
// Хранится в таблице quarantine_jobs.
type Job struct {
	ID             string
	SubmittedBy    string
	SourceType     string
	Status         status.JobStatus
	TotalFiles     int
	FilesCompleted int
	FilesClean     int
	FilesFlagged   int
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

// File — файл в карантине.
// Хранится в таблице quarantine_files.
type File struct {
	ID               string
	JobID            string
	OriginalFilename string
	// StagedPath — путь к исходной копии в staging
	StagedPath string
	SizeBytes  int64
	SHA256     string
	MimeType   string
	Status     status.FileStatus
	// CurrentStage — этап, выполняемый сейчас ("complete" после завершения)
	CurrentStage string
	RiskSeverity Severity
	// Findings — находки всех этапов в порядке получения
	Findings []Finding
	// SanitizedPath — очищенная копия (если этап санитизации её создал)
	SanitizedPath string
	// HeldPath — копия артефакта в каталоге held
	HeldPath string
	// DestinationPath — путь в постоянном хранилище после одобрения
	DestinationPath string
	ReviewedBy      string
	ReviewReason    string
	ReviewedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ArtifactPath возвращает путь к артефакту, с которым работают
// следующие операции: очищенная копия, если она есть, иначе исходник.
func (f *File) ArtifactPath() string {
	if f.SanitizedPath != "" {
		return f.SanitizedPath
	}
	return f.StagedPath
}

// ScanOutcome — итог сканирования одного файла, записываемый одной транзакцией.
type ScanOutcome struct {
	FileID        string
	Status        status.FileStatus
	RiskSeverity  Severity
	Findings      []Finding
	SanitizedPath string
	HeldPath      string
	// DestinationPath — путь в постоянном хранилище (для clean)
	DestinationPath string
	MimeType        string
	ReviewReason    string
}

// ReviewDecision — решение проверяющего по задержанному файлу.
type ReviewDecision struct {
	FileID   string
	Target   status.FileStatus
	Reviewer string
	Reason   string
	At       time.Time
}

// AuditEntry — запись журнала решений проверки.
// Хранится в таблице quarantine_audit.
type AuditEntry struct {
	ID        string
	FileID    string
	Action    string
	Actor     string
	Reason    string
	CreatedAt time.Time
}

// FileSummary — краткое описание файла в ответе о статусе задания.
type FileSummary struct {
	ID               string            `json:"id"`
	OriginalFilename string            `json:"original_filename"`
	Status           status.FileStatus `json:"status"`
	CurrentStage     string            `json:"current_stage,omitempty"`
	RiskSeverity     Severity          `json:"risk_severity"`
	FindingsCount    int               `json:"findings_count"`
	SizeBytes        int64             `json:"size_bytes"`
	SHA256           string            `json:"sha256"`
}

// JobSummary — состояние задания вместе со сводкой по файлам.
type JobSummary struct {
	ID             string           `json:"id"`
	Status         status.JobStatus `json:"status"`
	SubmittedBy    string           `json:"submitted_by"`
	SourceType     string           `json:"source_type"`
	TotalFiles     int              `json:"total_files"`
	FilesCompleted int              `json:"files_completed"`
	FilesClean     int              `json:"files_clean"`
	FilesFlagged   int              `json:"files_flagged"`
	CreatedAt      time.Time        `json:"created_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	Files          []FileSummary    `json:"files"`
}

// Stats — агрегированная статистика карантина.
type Stats struct {
	TotalJobs            int64              `json:"total_jobs"`
	JobsCompleted        int64              `json:"jobs_completed"`
	TotalFilesScanned    int64              `json:"total_files_scanned"`
	FilesClean           int64              `json:"files_clean"`
	FilesHeld            int64              `json:"files_held"`
	FilesApproved        int64              `json:"files_approved"`
	FilesRejected        int64              `json:"files_rejected"`
	SeverityDistribution map[Severity]int64 `json:"severity_distribution"`
}
