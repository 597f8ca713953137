package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/status"
	"github.com/bigkaa/goartstore/quarantine-module/internal/storage/filestore"
)

// heldFixture прогоняет пакет через конвейер и возвращает файлы задания.
func heldFixture(t *testing.T, names ...string) (*memStore, *filestore.FileStore, string, map[string]*model.File) {
	t.Helper()
	store := newMemStore()
	p, fs := newTestPipeline(t, store, flagStage())
	jobID, err := p.Submit(context.Background(), uploads(names...), "", "alice")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	p.Wait()

	files, _ := store.ListJobFiles(context.Background(), jobID)
	byName := make(map[string]*model.File, len(files))
	for _, f := range files {
		byName[f.OriginalFilename] = f
	}
	return store, fs, jobID, byName
}

func TestReview_Approve(t *testing.T) {
	store, fs, jobID, files := heldFixture(t, "bad.txt")
	cache := NewJobCache(10, time.Minute)
	cache.Set(jobID, &model.JobSummary{ID: jobID})
	svc := NewReviewService(store, fs, cache, testLogger())
	ctx := context.Background()
	held := files["bad.txt"]

	got, err := svc.Approve(ctx, held.ID, "ложное срабатывание", "reviewer-1")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if got.Status != status.FileApproved {
		t.Errorf("статус %s, хотели approved", got.Status)
	}
	if got.ReviewedBy != "reviewer-1" || got.ReviewedAt == nil {
		t.Errorf("не заполнены reviewed_by/reviewed_at: %+v", got)
	}
	if got.DestinationPath == "" || !fs.Exists(got.DestinationPath) {
		t.Errorf("артефакт не перенесён в постоянное хранилище: %q", got.DestinationPath)
	}
	if _, ok := cache.Get(jobID); ok {
		t.Error("сводка задания должна быть сброшена из кэша")
	}

	audit, _ := store.ListAudit(ctx, held.ID)
	if len(audit) != 1 || audit[0].Action != ActionApprove || audit[0].Actor != "reviewer-1" {
		t.Errorf("журнал: %+v, хотели одну запись approve", audit)
	}

	// Повторное решение недопустимо
	if _, err := svc.Reject(ctx, held.ID, "", "reviewer-2"); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Errorf("повторное решение: ожидалась ErrInvalidStatusTransition, получено %v", err)
	}
	if audit, _ := store.ListAudit(ctx, held.ID); len(audit) != 1 {
		t.Errorf("после отказа в переходе записей журнала %d, хотели 1", len(audit))
	}
}

func TestReview_Reject(t *testing.T) {
	store, fs, _, files := heldFixture(t, "bad.txt")
	svc := NewReviewService(store, fs, nil, testLogger())
	held := files["bad.txt"]

	got, err := svc.Reject(context.Background(), held.ID, "вредоносный", "reviewer-1")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if got.Status != status.FileRejected {
		t.Errorf("статус %s, хотели rejected", got.Status)
	}
	for _, path := range []string{held.StagedPath, held.HeldPath} {
		if fs.Exists(path) {
			t.Errorf("копия %s должна быть удалена", path)
		}
	}
}

func TestReview_Errors(t *testing.T) {
	store, fs, _, files := heldFixture(t, "good.txt")
	svc := NewReviewService(store, fs, nil, testLogger())
	ctx := context.Background()

	tests := []struct {
		name    string
		id      string
		wantErr error
	}{
		{"несуществующий файл", uuid.NewString(), ErrNotFound},
		{"некорректный ID", "not-a-uuid", ErrValidation},
		{"чистый файл не подлежит проверке", files["good.txt"].ID, ErrInvalidStatusTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Approve(ctx, tt.id, "", "r"); !errors.Is(err, tt.wantErr) {
				t.Errorf("Approve: ожидалась %v, получено %v", tt.wantErr, err)
			}
			if _, err := svc.Reject(ctx, tt.id, "", "r"); !errors.Is(err, tt.wantErr) {
				t.Errorf("Reject: ожидалась %v, получено %v", tt.wantErr, err)
			}
		})
	}
}

// lockstepStore задерживает чтение файла, пока его не прочитают все
// участники: оба проверяющих видят статус held до первого CAS.
type lockstepStore struct {
	*memStore
	arrived sync.WaitGroup
}

func (s *lockstepStore) GetFile(ctx context.Context, id string) (*model.File, error) {
	f, err := s.memStore.GetFile(ctx, id)
	s.arrived.Done()
	s.arrived.Wait()
	return f, err
}

func TestReview_ConcurrentApprove(t *testing.T) {
	mem, fs, _, files := heldFixture(t, "bad.txt")
	store := &lockstepStore{memStore: mem}
	store.arrived.Add(2)
	svc := NewReviewService(store, fs, nil, testLogger())
	held := files["bad.txt"]

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Approve(context.Background(), held.ID, "", "reviewer")
		}()
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			if !errors.Is(err, ErrInvalidStatusTransition) {
				t.Errorf("проигравшая попытка: ожидалась ErrInvalidStatusTransition, получено %v", err)
			}
			failed++
		}
	}
	if failed != 1 {
		t.Fatalf("неудачных попыток %d, ожидалась 1: %v", failed, errs)
	}

	got, err := mem.GetFile(context.Background(), held.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != status.FileApproved {
		t.Errorf("статус %s, хотели approved", got.Status)
	}
	if got.DestinationPath == "" || !fs.Exists(got.DestinationPath) {
		t.Errorf("одобренный файл без артефакта: %q", got.DestinationPath)
	}
	if audit, _ := mem.ListAudit(context.Background(), held.ID); len(audit) != 1 {
		t.Errorf("записей журнала %d, хотели 1", len(audit))
	}
}
