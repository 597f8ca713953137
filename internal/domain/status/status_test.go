package status

import (
	"errors"
	"testing"
)

// TestTransition_FileLifecycle проверяет матрицу переходов файла.
func TestTransition_FileLifecycle(t *testing.T) {
	tests := []struct {
		from, to FileStatus
		ok       bool
	}{
		{FilePending, FileScanning, true},
		{FileScanning, FileClean, true},
		{FileScanning, FileHeld, true},
		{FileScanning, FilePending, true},
		{FileHeld, FileApproved, true},
		{FileHeld, FileRejected, true},
		{FilePending, FileClean, false},
		{FilePending, FileHeld, false},
		{FileClean, FileApproved, false},
		{FileClean, FileHeld, false},
		{FileApproved, FileRejected, false},
		{FileRejected, FileApproved, false},
		{FileApproved, FileHeld, false},
	}

	for _, tt := range tests {
		err := Transition(tt.from, tt.to)
		if tt.ok && err != nil {
			t.Errorf("%s → %s: неожиданная ошибка: %v", tt.from, tt.to, err)
		}
		if !tt.ok {
			var te *TransitionError
			if !errors.As(err, &te) {
				t.Errorf("%s → %s: ожидалась TransitionError, получено %v", tt.from, tt.to, err)
				continue
			}
			if te.Code != CodeInvalidTransition {
				t.Errorf("%s → %s: код = %q, хотели %q", tt.from, tt.to, te.Code, CodeInvalidTransition)
			}
		}
	}
}

// TestTransition_Unknown проверяет обработку неизвестного статуса.
func TestTransition_Unknown(t *testing.T) {
	err := Transition(FileStatus("quarantined"), FileHeld)
	var te *TransitionError
	if !errors.As(err, &te) || te.Code != CodeUnknownStatus {
		t.Fatalf("ожидался код %s, получено %v", CodeUnknownStatus, err)
	}
}

// TestReviewTransition проверяет, что решение принимается только для held.
func TestReviewTransition(t *testing.T) {
	rec, err := ReviewTransition(FileHeld, FileApproved, "alice")
	if err != nil {
		t.Fatalf("held → approved: %v", err)
	}
	if rec.Subject != "alice" || rec.From != FileHeld || rec.To != FileApproved {
		t.Errorf("неверная запись перехода: %+v", rec)
	}
	if rec.Timestamp.IsZero() {
		t.Error("Timestamp не заполнен")
	}

	for _, from := range []FileStatus{FilePending, FileScanning, FileClean, FileApproved, FileRejected} {
		if _, err := ReviewTransition(from, FileRejected, "bob"); err == nil {
			t.Errorf("%s → rejected должен вернуть ошибку", from)
		}
	}

	if _, err := ReviewTransition(FileHeld, FileClean, "bob"); err == nil {
		t.Error("held → clean не является решением проверки")
	}
}

// TestFileStatus_Predicates проверяет вспомогательные предикаты.
func TestFileStatus_Predicates(t *testing.T) {
	for _, s := range []FileStatus{FileClean, FileApproved} {
		if !s.Promotable() {
			t.Errorf("%s должен допускать перенос в хранилище", s)
		}
	}
	for _, s := range []FileStatus{FileHeld, FileRejected, FilePending, FileScanning} {
		if s.Promotable() {
			t.Errorf("%s не должен допускать перенос в хранилище", s)
		}
	}
	for _, s := range []FileStatus{FileClean, FileApproved, FileRejected} {
		if !s.Terminal() {
			t.Errorf("%s должен быть конечным", s)
		}
	}
	if FileHeld.Terminal() {
		t.Error("held не конечный статус")
	}
	if FilePending.Resolved() || FileScanning.Resolved() {
		t.Error("pending/scanning не являются завершёнными")
	}
}

// TestJobTransitions проверяет переходы задания.
func TestJobTransitions(t *testing.T) {
	if !CanJobTransition(JobPending, JobScanning) {
		t.Error("pending → scanning должен быть допустим")
	}
	if !CanJobTransition(JobScanning, JobCompleted) {
		t.Error("scanning → completed должен быть допустим")
	}
	if CanJobTransition(JobCompleted, JobScanning) {
		t.Error("completed — конечный статус")
	}
	if CanJobTransition(JobPending, JobCompleted) {
		t.Error("pending → completed недопустим")
	}
}

// TestParse проверяет разбор статусов.
func TestParse(t *testing.T) {
	if s, err := ParseFileStatus("held"); err != nil || s != FileHeld {
		t.Errorf("ParseFileStatus(held) = %q, %v", s, err)
	}
	if _, err := ParseFileStatus("infected"); err == nil {
		t.Error("ParseFileStatus(infected): ожидалась ошибка")
	}
	if s, err := ParseJobStatus("completed"); err != nil || s != JobCompleted {
		t.Errorf("ParseJobStatus(completed) = %q, %v", s, err)
	}
	if _, err := ParseJobStatus("failed"); err == nil {
		t.Error("ParseJobStatus(failed): ожидалась ошибка")
	}
}
