package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/status"
	"github.com/bigkaa/goartstore/quarantine-module/internal/stage"
	"github.com/bigkaa/goartstore/quarantine-module/internal/storage/filestore"
)

// flagStage помечает high файлы, в имени которых есть "bad".
func flagStage() *fakeStage {
	return &fakeStage{
		name: "flag",
		fn: func(_, filename string) (stage.Result, error) {
			if strings.Contains(filename, "bad") {
				f := stage.Finding("flag", model.SeverityHigh, "bad_name", "плохое имя", nil)
				return stage.Result{Passed: false, Findings: []model.Finding{f}}, nil
			}
			return stage.Result{Passed: true}, nil
		},
	}
}

func newTestPipeline(t *testing.T, store *memStore, stages ...stage.Stage) (*Pipeline, *filestore.FileStore) {
	t.Helper()
	fs, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("filestore.New: %v", err)
	}
	cfg := NewConfigService(store, testLogger())
	p := NewPipeline(store, fs, cfg, stages, 2, 1<<20, testLogger())
	t.Cleanup(func() { _ = p.Stop(context.Background()) })
	return p, fs
}

func uploads(names ...string) []Upload {
	out := make([]Upload, len(names))
	for i, n := range names {
		out[i] = Upload{Filename: n, Content: strings.NewReader("content of " + n)}
	}
	return out
}

func TestRunStages_ChainsSanitizedPath(t *testing.T) {
	dir := t.TempDir()
	sanitized := filepath.Join(dir, "clean.pdf")

	first := &fakeStage{name: "first"}
	sanitizer := &fakeStage{
		name: "sanitizer",
		fn: func(string, string) (stage.Result, error) {
			return stage.Result{Passed: true, SanitizedPath: sanitized}, nil
		},
	}
	last := &fakeStage{name: "last"}

	res, err := RunStages(context.Background(), []stage.Stage{first, sanitizer, last},
		"/staged/a.pdf", "a.pdf", model.DefaultScanConfig(), nil)
	if err != nil {
		t.Fatalf("RunStages: %v", err)
	}
	if got := first.seen(); len(got) != 1 || got[0] != "/staged/a.pdf" {
		t.Errorf("первый этап: пути %v, ожидался исходный", got)
	}
	if got := last.seen(); len(got) != 1 || got[0] != sanitized {
		t.Errorf("последний этап: пути %v, ожидалась очищенная копия %s", got, sanitized)
	}
	if res.SanitizedPath != sanitized {
		t.Errorf("SanitizedPath = %q, хотели %q", res.SanitizedPath, sanitized)
	}
	if !res.Passed {
		t.Error("ожидался Passed=true")
	}
}

func TestRunStages_ErrorsBecomeFindings(t *testing.T) {
	failing := &fakeStage{
		name: "failing",
		fn:   func(string, string) (stage.Result, error) { return stage.Result{}, errors.New("сбой") },
	}
	panicking := &fakeStage{
		name: "panicking",
		fn:   func(string, string) (stage.Result, error) { panic("неожиданно") },
	}
	after := &fakeStage{name: "after"}

	var visited []string
	res, err := RunStages(context.Background(), []stage.Stage{failing, panicking, after},
		"/staged/x", "x.txt", model.DefaultScanConfig(), func(name string) { visited = append(visited, name) })
	if err != nil {
		t.Fatalf("RunStages: %v", err)
	}

	if len(visited) != 3 {
		t.Errorf("выполнено этапов: %v, хотели все три", visited)
	}
	if len(res.Findings) != 2 {
		t.Fatalf("находок: %d, хотели 2", len(res.Findings))
	}
	wantCodes := []string{"failing_error", "panicking_error"}
	for i, f := range res.Findings {
		if f.Code != wantCodes[i] {
			t.Errorf("находка %d: код %q, хотели %q", i, f.Code, wantCodes[i])
		}
		if f.Severity != model.SeverityMedium {
			t.Errorf("находка %d: уровень %q, хотели medium", i, f.Severity)
		}
	}
	if !res.Passed {
		t.Error("ошибка этапа не должна делать его непройденным")
	}
}

func TestRunStages_StopOnCritical(t *testing.T) {
	critical := &fakeStage{
		name: "critical",
		fn: func(string, string) (stage.Result, error) {
			f := stage.Finding("critical", model.SeverityCritical, "boom", "критично", nil)
			return stage.Result{Passed: false, Findings: []model.Finding{f}}, nil
		},
	}

	tests := []struct {
		name     string
		stop     bool
		wantNext int
	}{
		{"все этапы по умолчанию", false, 1},
		{"остановка после critical", true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := &fakeStage{name: "next"}
			cfg := model.DefaultScanConfig()
			cfg.StopOnCritical = tt.stop

			res, err := RunStages(context.Background(), []stage.Stage{critical, next}, "/p", "f", cfg, nil)
			if err != nil {
				t.Fatalf("RunStages: %v", err)
			}
			if got := len(next.seen()); got != tt.wantNext {
				t.Errorf("следующий этап вызван %d раз, хотели %d", got, tt.wantNext)
			}
			if tt.stop && res.StoppedAfter != "critical" {
				t.Errorf("StoppedAfter = %q, хотели critical", res.StoppedAfter)
			}
		})
	}
}

func TestRunStages_FailedStage(t *testing.T) {
	clean := &fakeStage{name: "clean"}
	high := &fakeStage{
		name: "yara",
		fn: func(string, string) (stage.Result, error) {
			f := stage.Finding("yara", model.SeverityHigh, "match", "совпадение", nil)
			return stage.Result{Passed: true, Findings: []model.Finding{f}}, nil
		},
	}
	failed := &fakeStage{
		name: "clamav",
		fn: func(string, string) (stage.Result, error) {
			return stage.Result{Passed: false}, nil
		},
	}

	res, err := RunStages(context.Background(), []stage.Stage{clean, high, failed}, "/p", "f", model.DefaultScanConfig(), nil)
	if err != nil {
		t.Fatalf("RunStages: %v", err)
	}
	if res.FailedStage != "yara" {
		t.Errorf("FailedStage = %q, хотели yara", res.FailedStage)
	}
	st, reason := Classify(res, model.DefaultScanConfig())
	if st != status.FileHeld || reason != "Failed yara stage" {
		t.Errorf("Classify = (%s, %q), хотели (held, \"Failed yara stage\")", st, reason)
	}
}

func TestRunStages_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RunStages(ctx, []stage.Stage{&fakeStage{name: "a"}}, "/p", "f", model.DefaultScanConfig(), nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ожидалась context.Canceled, получено %v", err)
	}
}

func TestClassify(t *testing.T) {
	high := []model.Finding{{Stage: "s", Severity: model.SeverityHigh, Code: "c"}}
	medium := []model.Finding{{Stage: "s", Severity: model.SeverityMedium, Code: "c"}}

	tests := []struct {
		name       string
		res        StagesResult
		autoApprov bool
		want       status.FileStatus
		wantReason string
	}{
		{"без находок", StagesResult{Passed: true}, true, status.FileClean, ""},
		{"medium не задерживает", StagesResult{Passed: true, Findings: medium}, true, status.FileClean, ""},
		{"high задерживает", StagesResult{Passed: true, Findings: high}, true, status.FileHeld, "Failed s stage"},
		{"непройденный этап", StagesResult{Passed: false, FailedStage: "clamav"}, true, status.FileHeld, "Failed clamav stage"},
		{"этап не известен", StagesResult{Passed: false}, true, status.FileHeld, ReasonStageFailed},
		{"ручная проверка", StagesResult{Passed: true}, false, status.FileHeld, ReasonManualReview},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := model.DefaultScanConfig()
			cfg.AutoApproveClean = tt.autoApprov
			got, reason := Classify(tt.res, cfg)
			if got != tt.want || reason != tt.wantReason {
				t.Errorf("Classify = (%s, %q), хотели (%s, %q)", got, reason, tt.want, tt.wantReason)
			}
		})
	}
}

func TestSubmit_Validation(t *testing.T) {
	store := newMemStore()
	store.config[model.ConfigKeyPrefix+model.KeyMaxBatchFiles] = "2"
	p, _ := newTestPipeline(t, store)
	ctx := context.Background()

	if _, err := p.Submit(ctx, nil, "", "alice"); !errors.Is(err, ErrValidation) {
		t.Errorf("пустой пакет: ожидалась ErrValidation, получено %v", err)
	}
	if _, err := p.Submit(ctx, uploads("a", "b", "c"), "", "alice"); !errors.Is(err, ErrBatchTooLarge) {
		t.Errorf("3 файла при лимите 2: ожидалась ErrBatchTooLarge, получено %v", err)
	}
	if _, err := p.Submit(ctx, uploads(" "), "", "alice"); !errors.Is(err, ErrValidation) {
		t.Errorf("пустое имя: ожидалась ErrValidation, получено %v", err)
	}

	big := []Upload{{Filename: "big.bin", Content: strings.NewReader(strings.Repeat("x", 2<<20))}}
	if _, err := p.Submit(ctx, big, "", "alice"); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("большой файл: ожидалась ErrFileTooLarge, получено %v", err)
	}
	if len(store.jobs) != 0 {
		t.Errorf("отклонённые пакеты не должны создавать заданий, создано %d", len(store.jobs))
	}
}

func TestSubmit_ScansAndCompletes(t *testing.T) {
	store := newMemStore()
	p, fs := newTestPipeline(t, store, flagStage())
	ctx := context.Background()

	jobID, err := p.Submit(ctx, uploads("good.txt", "bad.txt", "fine.csv"), "", "alice")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	p.Wait()

	job, err := store.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != status.JobCompleted {
		t.Fatalf("статус задания %s, хотели completed", job.Status)
	}
	if job.SourceType != DefaultSourceType {
		t.Errorf("source_type = %q, хотели %q", job.SourceType, DefaultSourceType)
	}
	if job.FilesClean != 2 || job.FilesFlagged != 1 || job.FilesCompleted != 3 {
		t.Errorf("счётчики clean=%d flagged=%d completed=%d, хотели 2/1/3",
			job.FilesClean, job.FilesFlagged, job.FilesCompleted)
	}
	if job.FilesClean+job.FilesFlagged != job.TotalFiles {
		t.Error("clean + flagged должно равняться total_files")
	}

	files, _ := store.ListJobFiles(ctx, jobID)
	for _, f := range files {
		if f.CurrentStage != "complete" {
			t.Errorf("%s: current_stage = %q, хотели complete", f.OriginalFilename, f.CurrentStage)
		}
		if f.SHA256 == "" || f.SizeBytes == 0 {
			t.Errorf("%s: не заполнены sha256/size", f.OriginalFilename)
		}
		switch f.OriginalFilename {
		case "bad.txt":
			if f.Status != status.FileHeld {
				t.Errorf("bad.txt: статус %s, хотели held", f.Status)
			}
			if f.RiskSeverity != model.SeverityHigh {
				t.Errorf("bad.txt: risk_severity %s, хотели high", f.RiskSeverity)
			}
			if f.HeldPath == "" || !fs.Exists(f.HeldPath) {
				t.Errorf("bad.txt: копия в held отсутствует (%q)", f.HeldPath)
			}
			if f.DestinationPath != "" {
				t.Error("задержанный файл не должен попадать в постоянное хранилище")
			}
		default:
			if f.Status != status.FileClean {
				t.Errorf("%s: статус %s, хотели clean", f.OriginalFilename, f.Status)
			}
			if f.DestinationPath == "" || !fs.Exists(f.DestinationPath) {
				t.Errorf("%s: чистый файл не перенесён в approved/", f.OriginalFilename)
			}
			if f.MimeType == "" {
				t.Errorf("%s: mime_type не определён", f.OriginalFilename)
			}
		}
	}
}

func TestSubmit_ManualReview(t *testing.T) {
	store := newMemStore()
	store.config[model.ConfigKeyPrefix+model.KeyAutoApproveClean] = "false"
	p, _ := newTestPipeline(t, store)

	jobID, err := p.Submit(context.Background(), uploads("a.txt"), "usb", "bob")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	p.Wait()

	files, _ := store.ListJobFiles(context.Background(), jobID)
	if len(files) != 1 || files[0].Status != status.FileHeld {
		t.Fatalf("ожидался один held файл, получено %+v", files)
	}
	if files[0].ReviewReason != ReasonManualReview {
		t.Errorf("review_reason = %q, хотели %q", files[0].ReviewReason, ReasonManualReview)
	}
}

func TestSubmitPath(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "usb0")
	for _, name := range []string{"a.txt", "sub/b.txt", "sub/deep/bad.txt"} {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Symlink(filepath.Join(dir, "a.txt"), filepath.Join(dir, "link.txt")); err != nil {
		t.Skipf("символические ссылки недоступны: %v", err)
	}
	if err := os.Mkdir(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}

	store := newMemStore()
	p, _ := newTestPipeline(t, store, flagStage())
	if err := p.SetScanRoot(root); err != nil {
		t.Fatalf("SetScanRoot: %v", err)
	}

	jobID, err := p.SubmitPath(context.Background(), dir, "usb", "kiosk")
	if err != nil {
		t.Fatalf("SubmitPath: %v", err)
	}
	p.Wait()

	job, _ := store.GetJob(context.Background(), jobID)
	if job.TotalFiles != 3 {
		t.Errorf("total_files = %d, хотели 3 (символическая ссылка пропускается)", job.TotalFiles)
	}
	if job.FilesFlagged != 1 {
		t.Errorf("files_flagged = %d, хотели 1", job.FilesFlagged)
	}

	// Относительный путь отсчитывается от корня сканирования.
	if _, err := p.SubmitPath(context.Background(), "usb0/sub", "usb", "kiosk"); err != nil {
		t.Errorf("относительный путь внутри корня: %v", err)
	}
	p.Wait()

	if _, err := p.SubmitPath(context.Background(), filepath.Join(dir, "a.txt"), "usb", "kiosk"); !errors.Is(err, ErrValidation) {
		t.Errorf("файл вместо каталога: ожидалась ErrValidation, получено %v", err)
	}
	if _, err := p.SubmitPath(context.Background(), filepath.Join(root, "empty"), "usb", "kiosk"); !errors.Is(err, ErrValidation) {
		t.Errorf("пустой каталог: ожидалась ErrValidation, получено %v", err)
	}
}

func TestSubmitPath_OutsideScanRoot(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("secret"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(root, "escape")); err != nil {
		t.Skipf("символические ссылки недоступны: %v", err)
	}

	store := newMemStore()
	p, _ := newTestPipeline(t, store)

	if _, err := p.SubmitPath(context.Background(), outside, "usb", "kiosk"); !errors.Is(err, ErrValidation) {
		t.Errorf("корень не задан: ожидалась ErrValidation, получено %v", err)
	}

	if err := p.SetScanRoot(root); err != nil {
		t.Fatalf("SetScanRoot: %v", err)
	}
	tests := []struct {
		name string
		dir  string
	}{
		{"абсолютный путь вне корня", outside},
		{"выход через ..", filepath.Join(root, "..", filepath.Base(outside))},
		{"относительный выход через ..", "../" + filepath.Base(outside)},
		{"ссылка за пределы корня", filepath.Join(root, "escape")},
		{"системный каталог", "/etc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.SubmitPath(context.Background(), tt.dir, "usb", "kiosk"); !errors.Is(err, ErrValidation) {
				t.Errorf("SubmitPath(%q): ожидалась ErrValidation, получено %v", tt.dir, err)
			}
		})
	}
	if jobs := len(store.jobs); jobs != 0 {
		t.Errorf("создано %d заданий, хотели 0", jobs)
	}
}

func TestRecover(t *testing.T) {
	store := newMemStore()
	p, fs := newTestPipeline(t, store, flagStage())

	// Задание, прерванное посреди сканирования: один файл готов, один в scanning.
	jobID := uuid.New()
	job := &model.Job{ID: jobID.String(), Status: status.JobScanning, TotalFiles: 2, SourceType: "upload"}
	var files []*model.File
	for _, name := range []string{"done.txt", "interrupted.txt"} {
		fileID := uuid.New()
		res, err := fs.Stage(jobID, fileID, strings.NewReader(name), name, 0)
		if err != nil {
			t.Fatal(err)
		}
		files = append(files, &model.File{
			ID: fileID.String(), JobID: jobID.String(), OriginalFilename: name,
			StagedPath: res.Path, SizeBytes: res.Size, SHA256: res.SHA256, Status: status.FilePending,
		})
	}
	if err := store.CreateJob(context.Background(), job, files); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	_ = store.MarkFileScanning(ctx, files[0].ID)
	_ = store.RecordOutcome(ctx, jobID.String(), &model.ScanOutcome{
		FileID: files[0].ID, Status: status.FileClean, RiskSeverity: model.SeverityNone,
	})
	_ = store.MarkFileScanning(ctx, files[1].ID)

	n, err := p.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if n != 1 {
		t.Errorf("восстановлено заданий: %d, хотели 1", n)
	}
	p.Wait()

	got, _ := store.GetJob(ctx, jobID.String())
	if got.Status != status.JobCompleted {
		t.Errorf("статус задания %s, хотели completed", got.Status)
	}
	if got.FilesCompleted != 2 || got.FilesClean != 2 {
		t.Errorf("completed=%d clean=%d, хотели 2/2", got.FilesCompleted, got.FilesClean)
	}
}
