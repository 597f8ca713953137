// pipeline.go — конвейер карантина: приём пакетов, фоновое сканирование
// файлов по этапам и запись итогов.
//
// Каждое задание выполняется в отдельной горутине. Файлы одного задания
// сканируются параллельно (не более workers одновременно), этапы одного
// файла — строго последовательно: очищенная копия, созданная этапом,
// становится рабочим путём для следующих этапов.
//
// Итог файла (статус, находки, пути) и счётчики задания записываются
// одной транзакцией на файл.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/status"
	"github.com/bigkaa/goartstore/quarantine-module/internal/stage"
	"github.com/bigkaa/goartstore/quarantine-module/internal/stage/integrity"
	"github.com/bigkaa/goartstore/quarantine-module/internal/storage/filestore"
)

// ReasonManualReview — причина задержки чистого файла при auto_approve_clean=false.
const ReasonManualReview = "Manual review required"

// ReasonStageFailed — причина задержки, если этап не удалось определить.
const ReasonStageFailed = "Failed scan stage"

// DefaultSourceType — источник по умолчанию.
const DefaultSourceType = "upload"

// Upload — один файл пакета отправки.
type Upload struct {
	Filename string
	Content  io.Reader
}

// ScanConfigSource — источник текущих настроек сканирования.
type ScanConfigSource interface {
	Get(ctx context.Context) (model.ScanConfig, error)
}

// Pipeline — конвейер карантина.
type Pipeline struct {
	store         PipelineStore
	files         *filestore.FileStore
	config        ScanConfigSource
	stages        []stage.Stage
	workers       int
	maxUploadSize int64
	logger        *slog.Logger
	// scanRoot — каталог с раскрытыми ссылками; пусто — SubmitPath выключен
	scanRoot string

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPipeline создаёт конвейер. stages выполняются в переданном порядке.
// maxUploadSize — жёсткий предел размера одного файла при приёме
// (max_file_size из настроек проверяется этапом file_integrity).
func NewPipeline(
	store PipelineStore,
	files *filestore.FileStore,
	config ScanConfigSource,
	stages []stage.Stage,
	workers int,
	maxUploadSize int64,
	logger *slog.Logger,
) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		store:         store,
		files:         files,
		config:        config,
		stages:        stages,
		workers:       workers,
		maxUploadSize: maxUploadSize,
		logger:        logger.With(slog.String("component", "pipeline")),
		baseCtx:       ctx,
		cancel:        cancel,
	}
}

// source — файл, который нужно поместить в staging.
type source struct {
	name string
	open func() (io.ReadCloser, error)
}

// Submit принимает пакет файлов, создаёт задание и запускает сканирование
// в фоне. Возвращает ID задания сразу после записи файлов в staging.
func (p *Pipeline) Submit(ctx context.Context, uploads []Upload, sourceType, submittedBy string) (string, error) {
	sources := make([]source, len(uploads))
	for i, u := range uploads {
		sources[i] = source{
			name: u.Filename,
			open: func() (io.ReadCloser, error) { return io.NopCloser(u.Content), nil },
		}
	}
	return p.submit(ctx, sources, sourceType, submittedBy)
}

// SetScanRoot задаёт каталог, за пределы которого SubmitPath не выходит
// (например, точку монтирования USB-носителей). Пустой root выключает
// сканирование по пути.
func (p *Pipeline) SetScanRoot(root string) error {
	if root == "" {
		p.scanRoot = ""
		return nil
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("каталог сканирования %s: %w", root, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return fmt.Errorf("каталог сканирования %s: %w", root, err)
	}
	p.scanRoot = resolved
	return nil
}

// resolveScanDir раскрывает dir (относительный путь — от корня
// сканирования) вместе с символическими ссылками и проверяет,
// что результат лежит внутри корня.
func (p *Pipeline) resolveScanDir(dir string) (string, error) {
	if p.scanRoot == "" {
		return "", fmt.Errorf("%w: сканирование по пути выключено (QR_SCAN_ROOT не задан)", ErrValidation)
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(p.scanRoot, dir)
	}
	resolved, err := filepath.EvalSymlinks(filepath.Clean(dir))
	if err != nil {
		return "", fmt.Errorf("%w: %s не является каталогом", ErrValidation, dir)
	}
	rel, err := filepath.Rel(p.scanRoot, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s вне каталога сканирования", ErrValidation, dir)
	}
	return resolved, nil
}

// SubmitPath ставит в очередь все обычные файлы каталога dir (рекурсивно),
// например смонтированного USB-носителя. dir должен лежать внутри
// корня сканирования. Символические ссылки внутри dir пропускаются.
func (p *Pipeline) SubmitPath(ctx context.Context, dir, sourceType, submittedBy string) (string, error) {
	dir, err := p.resolveScanDir(dir)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s не является каталогом", ErrValidation, dir)
	}

	cfg, err := p.config.Get(ctx)
	if err != nil {
		return "", err
	}

	var sources []source
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if len(sources) >= cfg.MaxBatchFiles {
			return fmt.Errorf("%w: больше %d файлов в %s", ErrBatchTooLarge, cfg.MaxBatchFiles, dir)
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			rel = d.Name()
		}
		sources = append(sources, source{
			name: filepath.ToSlash(rel),
			open: func() (io.ReadCloser, error) { return os.Open(path) },
		})
		return nil
	})
	if walkErr != nil {
		if errors.Is(walkErr, ErrBatchTooLarge) {
			return "", walkErr
		}
		return "", fmt.Errorf("ошибка обхода каталога %s: %w", dir, walkErr)
	}

	return p.submit(ctx, sources, sourceType, submittedBy)
}

func (p *Pipeline) submit(ctx context.Context, sources []source, sourceType, submittedBy string) (string, error) {
	if len(sources) == 0 {
		return "", fmt.Errorf("%w: пакет не содержит файлов", ErrValidation)
	}
	cfg, err := p.config.Get(ctx)
	if err != nil {
		return "", err
	}
	if len(sources) > cfg.MaxBatchFiles {
		return "", fmt.Errorf("%w: %d файлов, допустимо не более %d", ErrBatchTooLarge, len(sources), cfg.MaxBatchFiles)
	}
	if sourceType == "" {
		sourceType = DefaultSourceType
	}

	jobID := uuid.New()
	job := &model.Job{
		ID:          jobID.String(),
		SubmittedBy: submittedBy,
		SourceType:  sourceType,
		Status:      status.JobPending,
		TotalFiles:  len(sources),
	}

	files := make([]*model.File, 0, len(sources))
	for _, src := range sources {
		f, err := p.stageOne(jobID, src)
		if err != nil {
			p.discardJob(jobID)
			return "", err
		}
		files = append(files, f)
	}

	if err := p.store.CreateJob(ctx, job, files); err != nil {
		p.discardJob(jobID)
		return "", fmt.Errorf("ошибка создания задания: %w", err)
	}

	p.logger.Info("Задание принято",
		slog.String("job_id", job.ID),
		slog.Int("files", job.TotalFiles),
		slog.String("source_type", sourceType),
		slog.String("submitted_by", submittedBy),
	)

	p.launch(job.ID)
	return job.ID, nil
}

// stageOne записывает один файл в staging.
func (p *Pipeline) stageOne(jobID uuid.UUID, src source) (*model.File, error) {
	if strings.TrimSpace(src.name) == "" {
		return nil, fmt.Errorf("%w: пустое имя файла", ErrValidation)
	}
	r, err := src.open()
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия %s: %w", src.name, err)
	}
	defer r.Close()

	fileID := uuid.New()
	res, err := p.files.Stage(jobID, fileID, r, src.name, p.maxUploadSize)
	if err != nil {
		if errors.Is(err, filestore.ErrTooLarge) {
			return nil, fmt.Errorf("%w: %s", ErrFileTooLarge, src.name)
		}
		return nil, fmt.Errorf("ошибка сохранения %s: %w", src.name, err)
	}
	return &model.File{
		ID:               fileID.String(),
		JobID:            jobID.String(),
		OriginalFilename: src.name,
		StagedPath:       res.Path,
		SizeBytes:        res.Size,
		SHA256:           res.SHA256,
		Status:           status.FilePending,
	}, nil
}

func (p *Pipeline) discardJob(jobID uuid.UUID) {
	if err := p.files.RemoveJob(jobID); err != nil {
		p.logger.Warn("Не удалось удалить файлы отклонённого задания",
			slog.String("job_id", jobID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// launch запускает задание в отдельной горутине.
func (p *Pipeline) launch(jobID string) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runJob(p.baseCtx, jobID)
	}()
}

// Recover перезапускает задания, прерванные остановкой сервиса: файлы
// в статусе scanning возвращаются в pending и сканируются заново.
// Возвращает число перезапущенных заданий.
func (p *Pipeline) Recover(ctx context.Context) (int, error) {
	jobs, err := p.store.ListUnfinishedJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения незавершённых заданий: %w", err)
	}
	for _, job := range jobs {
		n, err := p.store.ResetScanningFiles(ctx, job.ID)
		if err != nil {
			p.logger.Error("Ошибка восстановления задания",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		p.logger.Info("Задание восстановлено после перезапуска",
			slog.String("job_id", job.ID),
			slog.Int("files_reset", n),
			slog.Int("files_completed", job.FilesCompleted),
			slog.Int("total_files", job.TotalFiles),
		)
		p.launch(job.ID)
	}
	return len(jobs), nil
}

// Wait ожидает завершения всех запущенных заданий.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Stop прерывает выполняющиеся задания и ждёт выхода горутин.
// Прерванные файлы остаются в статусе scanning до Recover.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.logger.Info("Конвейер остановлен")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("конвейер не остановился вовремя: %w", ctx.Err())
	}
}

func (p *Pipeline) runJob(ctx context.Context, jobID string) {
	jobsInProgress.Inc()
	defer jobsInProgress.Dec()

	logger := p.logger.With(slog.String("job_id", jobID))
	start := time.Now()

	cfg, err := p.config.Get(ctx)
	if err != nil {
		logger.Error("Ошибка чтения настроек, используются значения по умолчанию",
			slog.String("error", err.Error()),
		)
		cfg = model.DefaultScanConfig()
	}

	if err := p.store.MarkJobScanning(ctx, jobID); err != nil {
		logger.Error("Не удалось начать сканирование задания", slog.String("error", err.Error()))
		return
	}

	files, err := p.store.ListJobFiles(ctx, jobID)
	if err != nil {
		logger.Error("Ошибка получения файлов задания", slog.String("error", err.Error()))
		return
	}

	var g errgroup.Group
	g.SetLimit(p.workers)
	for _, f := range files {
		if f.Status != status.FilePending {
			continue
		}
		g.Go(func() error {
			p.processFile(ctx, jobID, f, cfg, logger)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		logger.Warn("Сканирование задания прервано")
		return
	}

	job, err := p.store.CompleteJob(ctx, jobID)
	if err != nil {
		logger.Error("Не удалось завершить задание", slog.String("error", err.Error()))
		return
	}
	logger.Info("Задание завершено",
		slog.Int("total_files", job.TotalFiles),
		slog.Int("files_clean", job.FilesClean),
		slog.Int("files_flagged", job.FilesFlagged),
		slog.Duration("duration", time.Since(start)),
	)
}

func (p *Pipeline) processFile(ctx context.Context, jobID string, f *model.File, cfg model.ScanConfig, logger *slog.Logger) {
	logger = logger.With(slog.String("file_id", f.ID), slog.String("filename", f.OriginalFilename))

	if err := p.store.MarkFileScanning(ctx, f.ID); err != nil {
		logger.Warn("Файл пропущен", slog.String("error", err.Error()))
		return
	}

	onStage := func(name string) {
		if err := p.store.SetFileStage(ctx, f.ID, name); err != nil {
			logger.Warn("Не удалось записать текущий этап", slog.String("error", err.Error()))
		}
	}
	res, err := RunStages(ctx, p.stages, f.StagedPath, f.OriginalFilename, cfg, onStage)
	if err != nil {
		// Остановка сервиса: файл останется в scanning до восстановления.
		return
	}

	st, reason := Classify(res, cfg)
	outcome := &model.ScanOutcome{
		FileID:        f.ID,
		Status:        st,
		RiskSeverity:  model.MaxSeverity(res.Findings),
		Findings:      res.Findings,
		SanitizedPath: res.SanitizedPath,
		MimeType:      integrity.DetectMIME(f.StagedPath),
		ReviewReason:  reason,
	}
	p.place(f, outcome, logger)

	if err := p.store.RecordOutcome(ctx, jobID, outcome); err != nil {
		logger.Error("Ошибка записи результата сканирования", slog.String("error", err.Error()))
		return
	}

	filesScannedTotal.WithLabelValues(string(outcome.Status)).Inc()
	for _, fd := range outcome.Findings {
		findingsTotal.WithLabelValues(fd.Stage, string(fd.Severity)).Inc()
	}
	logger.Info("Файл просканирован",
		slog.String("status", string(outcome.Status)),
		slog.String("risk_severity", string(outcome.RiskSeverity)),
		slog.Int("findings", len(outcome.Findings)),
	)
}

// place копирует артефакт файла: задержанный — в held/, чистый —
// в постоянное хранилище approved/. Если перенос чистого файла
// не удался, файл задерживается.
func (p *Pipeline) place(f *model.File, o *model.ScanOutcome, logger *slog.Logger) {
	fileID, err := uuid.Parse(f.ID)
	if err != nil {
		logger.Error("Некорректный ID файла", slog.String("error", err.Error()))
		return
	}
	artifact := f.StagedPath
	if o.SanitizedPath != "" {
		artifact = o.SanitizedPath
	}

	if o.Status == status.FileClean {
		dst, err := p.files.Promote(fileID, artifact, f.OriginalFilename)
		if err == nil {
			o.DestinationPath = dst
			return
		}
		logger.Error("Ошибка переноса в постоянное хранилище", slog.String("error", err.Error()))
		o.Status = status.FileHeld
		o.ReviewReason = "Ошибка переноса в постоянное хранилище"
	}

	held, err := p.files.Hold(fileID, artifact, f.OriginalFilename)
	if err != nil {
		logger.Error("Ошибка копирования в held", slog.String("error", err.Error()))
		return
	}
	o.HeldPath = held
}

// StagesResult — итог прогона этапов по одному файлу.
type StagesResult struct {
	// Findings — находки всех выполненных этапов по порядку
	Findings []model.Finding
	// Passed — ни один этап не вернул passed=false
	Passed bool
	// SanitizedPath — последняя очищенная копия (пусто, если не создавалась)
	SanitizedPath string
	// StoppedAfter — этап, после которого прогон остановлен
	// из-за stop_on_critical
	StoppedAfter string
	// FailedStage — первый этап с passed=false или находкой high и выше
	FailedStage string
}

// RunStages выполняет этапы по порядку над файлом path. Ошибка или паника
// этапа превращается в находку medium "<этап>_error" и не прерывает
// остальные этапы. Возвращает ошибку только при отмене ctx.
// onStage (может быть nil) вызывается перед каждым этапом.
func RunStages(
	ctx context.Context,
	stages []stage.Stage,
	path, originalFilename string,
	cfg model.ScanConfig,
	onStage func(name string),
) (StagesResult, error) {
	res := StagesResult{Passed: true}
	working := path

	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		name := st.Name()
		if onStage != nil {
			onStage(name)
		}

		start := time.Now()
		r, err := runStage(ctx, st, working, originalFilename, cfg)
		stageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			res.Findings = append(res.Findings, stage.Finding(name, model.SeverityMedium, name+"_error",
				fmt.Sprintf("Ошибка этапа %s: %v", name, err), nil))
			continue
		}

		res.Findings = append(res.Findings, r.Findings...)
		if !r.Passed {
			res.Passed = false
		}
		if res.FailedStage == "" && (!r.Passed || model.AnyAtLeast(r.Findings, model.SeverityHigh)) {
			res.FailedStage = name
		}
		if r.SanitizedPath != "" {
			working = r.SanitizedPath
			res.SanitizedPath = r.SanitizedPath
		}
		if cfg.StopOnCritical && model.AnyAtLeast(r.Findings, model.SeverityCritical) {
			res.StoppedAfter = name
			break
		}
	}
	return res, nil
}

// failedStageReason — причина задержки по первому проваленному этапу.
func failedStageReason(res StagesResult) string {
	name := res.FailedStage
	if name == "" {
		for _, f := range res.Findings {
			if f.Severity.Rank() >= model.SeverityHigh.Rank() {
				name = f.Stage
				break
			}
		}
	}
	if name == "" {
		return ReasonStageFailed
	}
	return fmt.Sprintf("Failed %s stage", name)
}

// runStage вызывает этап, перехватывая панику.
func runStage(ctx context.Context, st stage.Stage, path, originalFilename string, cfg model.ScanConfig) (res stage.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("паника: %v", r)
		}
	}()
	return st.Scan(ctx, path, originalFilename, cfg)
}

// Classify определяет итоговый статус файла: held при находке high
// и выше или непройденном этапе (причина — "Failed <этап> stage"),
// иначе clean. При auto_approve_clean=false чистый файл тоже
// задерживается с причиной ReasonManualReview.
func Classify(res StagesResult, cfg model.ScanConfig) (status.FileStatus, string) {
	if !res.Passed || model.AnyAtLeast(res.Findings, model.SeverityHigh) {
		return status.FileHeld, failedStageReason(res)
	}
	if !cfg.AutoApproveClean {
		return status.FileHeld, ReasonManualReview
	}
	return status.FileClean, ""
}
