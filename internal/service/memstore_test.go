package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/status"
	"github.com/bigkaa/goartstore/quarantine-module/internal/repository"
	"github.com/bigkaa/goartstore/quarantine-module/internal/stage"
)

// memStore — хранилище в памяти с той же семантикой ошибок,
// что и repository.Store.
type memStore struct {
	mu     sync.Mutex
	jobs   map[string]*model.Job
	files  map[string]*model.File
	order  []string
	audit  []*model.AuditEntry
	config map[string]string
	seq    int
}

func newMemStore() *memStore {
	return &memStore{
		jobs:   map[string]*model.Job{},
		files:  map[string]*model.File{},
		config: map[string]string{},
	}
}

func cloneJob(j *model.Job) *model.Job {
	c := *j
	return &c
}

func cloneFile(f *model.File) *model.File {
	c := *f
	c.Findings = append([]model.Finding(nil), f.Findings...)
	return &c
}

func (m *memStore) CreateJob(_ context.Context, job *model.Job, files []*model.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return repository.ErrConflict
	}
	job.CreatedAt = time.Now()
	m.jobs[job.ID] = cloneJob(job)
	for _, f := range files {
		m.seq++
		f.CreatedAt = time.Now().Add(time.Duration(m.seq) * time.Microsecond)
		m.files[f.ID] = cloneFile(f)
		m.order = append(m.order, f.ID)
	}
	return nil
}

func (m *memStore) GetJob(_ context.Context, id string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneJob(j), nil
}

func (m *memStore) ListJobFiles(_ context.Context, jobID string) ([]*model.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.File
	for _, id := range m.order {
		if f := m.files[id]; f.JobID == jobID {
			out = append(out, cloneFile(f))
		}
	}
	return out, nil
}

func (m *memStore) GetFile(_ context.Context, id string) (*model.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneFile(f), nil
}

func (m *memStore) MarkJobScanning(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status == status.JobCompleted {
		return repository.ErrConflict
	}
	j.Status = status.JobScanning
	return nil
}

func (m *memStore) MarkFileScanning(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok || f.Status != status.FilePending {
		return repository.ErrConflict
	}
	f.Status = status.FileScanning
	return nil
}

func (m *memStore) SetFileStage(_ context.Context, id, stageName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.files[id]; ok {
		f.CurrentStage = stageName
	}
	return nil
}

func (m *memStore) RecordOutcome(_ context.Context, jobID string, o *model.ScanOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[o.FileID]
	if !ok || f.Status != status.FileScanning {
		return repository.ErrConflict
	}
	j := m.jobs[jobID]
	if j.FilesCompleted >= j.TotalFiles {
		return repository.ErrConflict
	}
	f.Status = o.Status
	f.RiskSeverity = o.RiskSeverity
	f.Findings = append([]model.Finding(nil), o.Findings...)
	f.SanitizedPath = o.SanitizedPath
	f.HeldPath = o.HeldPath
	f.DestinationPath = o.DestinationPath
	f.MimeType = o.MimeType
	f.ReviewReason = o.ReviewReason
	f.CurrentStage = "complete"

	j.FilesCompleted++
	if o.Status == status.FileClean {
		j.FilesClean++
	} else {
		j.FilesFlagged++
	}
	return nil
}

func (m *memStore) CompleteJob(_ context.Context, id string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status != status.JobScanning || j.FilesCompleted != j.TotalFiles {
		return nil, fmt.Errorf("%w: задание %s нельзя завершить", repository.ErrConflict, id)
	}
	now := time.Now()
	j.Status = status.JobCompleted
	j.CompletedAt = &now
	return cloneJob(j), nil
}

func (m *memStore) ListUnfinishedJobs(_ context.Context) ([]*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Job
	for _, j := range m.jobs {
		if j.Status != status.JobCompleted {
			out = append(out, cloneJob(j))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (m *memStore) ResetScanningFiles(_ context.Context, jobID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, f := range m.files {
		if f.JobID == jobID && f.Status == status.FileScanning {
			f.Status = status.FilePending
			f.CurrentStage = ""
			n++
		}
	}
	return n, nil
}

func (m *memStore) ApplyReview(_ context.Context, d *model.ReviewDecision, destinationPath string, entry *model.AuditEntry) (*model.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[d.FileID]
	if !ok || f.Status != status.FileHeld {
		return nil, fmt.Errorf("%w: файл %s не в статусе held", repository.ErrConflict, d.FileID)
	}
	at := d.At
	f.Status = d.Target
	f.ReviewedBy = d.Reviewer
	f.ReviewReason = d.Reason
	f.ReviewedAt = &at
	f.DestinationPath = destinationPath
	entry.CreatedAt = at
	m.audit = append(m.audit, entry)
	return cloneFile(f), nil
}

func (m *memStore) ListHeld(_ context.Context, limit, offset int) ([]*model.File, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var held []*model.File
	for _, id := range m.order {
		if f := m.files[id]; f.Status == status.FileHeld {
			held = append(held, cloneFile(f))
		}
	}
	total := len(held)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return held[offset:end], total, nil
}

func (m *memStore) ListAudit(_ context.Context, fileID string) ([]*model.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.AuditEntry
	for _, e := range m.audit {
		if e.FileID == fileID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *memStore) GetStats(_ context.Context) (*model.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := &model.Stats{SeverityDistribution: map[model.Severity]int64{}}
	for _, sev := range model.AllSeverities() {
		st.SeverityDistribution[sev] = 0
	}
	for _, j := range m.jobs {
		st.TotalJobs++
		if j.Status == status.JobCompleted {
			st.JobsCompleted++
		}
	}
	for _, f := range m.files {
		switch f.Status {
		case status.FileClean:
			st.FilesClean++
		case status.FileHeld:
			st.FilesHeld++
		case status.FileApproved:
			st.FilesApproved++
		case status.FileRejected:
			st.FilesRejected++
		default:
			continue
		}
		st.TotalFilesScanned++
		st.SeverityDistribution[f.RiskSeverity]++
	}
	return st, nil
}

func (m *memStore) LoadConfig(_ context.Context, prefix string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]string{}
	for k, v := range m.config {
		if strings.HasPrefix(k, prefix) {
			out[strings.TrimPrefix(k, prefix)] = v
		}
	}
	return out, nil
}

func (m *memStore) SaveConfig(_ context.Context, prefix string, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.config[prefix+k] = v
	}
	return nil
}

// fakeStage — этап с подменяемым поведением, запоминающий рабочие пути.
type fakeStage struct {
	name string
	fn   func(path, filename string) (stage.Result, error)

	mu    sync.Mutex
	paths []string
}

func (s *fakeStage) Name() string { return s.name }

func (s *fakeStage) Scan(_ context.Context, path, filename string, _ model.ScanConfig) (stage.Result, error) {
	s.mu.Lock()
	s.paths = append(s.paths, path)
	s.mu.Unlock()
	if s.fn == nil {
		return stage.Result{Passed: true}, nil
	}
	return s.fn(path, filename)
}

func (s *fakeStage) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
