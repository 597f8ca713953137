// Пакет status — конечные автоматы статусов карантина.
//
// Жизненный цикл файла:
//   - pending → scanning → clean | held
//   - held → approved | rejected (конечные статусы, ручная проверка)
//   - scanning → pending — только при восстановлении после сбоя
//
// Жизненный цикл задания: pending → scanning → completed.
package status

import (
	"fmt"
	"time"
)

// FileStatus — статус файла в карантине.
type FileStatus string

const (
	// FilePending — файл сохранён в staging, сканирование не начато
	FilePending FileStatus = "pending"
	// FileScanning — выполняются этапы сканирования
	FileScanning FileStatus = "scanning"
	// FileClean — сканирование завершено без блокирующих находок
	FileClean FileStatus = "clean"
	// FileHeld — файл задержан для ручной проверки
	FileHeld FileStatus = "held"
	// FileApproved — задержанный файл одобрен проверяющим
	FileApproved FileStatus = "approved"
	// FileRejected — задержанный файл отклонён проверяющим
	FileRejected FileStatus = "rejected"
)

// JobStatus — статус задания сканирования.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobScanning  JobStatus = "scanning"
	JobCompleted JobStatus = "completed"
)

// Коды ошибок переходов.
const (
	CodeInvalidTransition = "INVALID_STATUS_TRANSITION"
	CodeUnknownStatus     = "UNKNOWN_STATUS"
)

// fileTransitions — матрица допустимых переходов файла.
var fileTransitions = map[FileStatus]map[FileStatus]bool{
	FilePending:  {FileScanning: true},
	FileScanning: {FileClean: true, FileHeld: true, FilePending: true},
	FileClean:    {},
	FileHeld:     {FileApproved: true, FileRejected: true},
	FileApproved: {},
	FileRejected: {},
}

// jobTransitions — матрица допустимых переходов задания.
var jobTransitions = map[JobStatus]map[JobStatus]bool{
	JobPending:   {JobScanning: true},
	JobScanning:  {JobCompleted: true, JobPending: true},
	JobCompleted: {},
}

// TransitionRecord — запись о ручном переходе (одобрение / отклонение).
type TransitionRecord struct {
	From      FileStatus `json:"from"`
	To        FileStatus `json:"to"`
	Subject   string     `json:"subject"`
	Timestamp time.Time  `json:"timestamp"`
}

// TransitionError — ошибка перехода между статусами.
type TransitionError struct {
	Code    string // Машиночитаемый код (INVALID_STATUS_TRANSITION, UNKNOWN_STATUS)
	Message string // Человекочитаемое описание
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CanTransition проверяет, допустим ли переход файла from → to.
func CanTransition(from, to FileStatus) bool {
	return fileTransitions[from][to]
}

// Transition проверяет переход файла и возвращает TransitionError, если он недопустим.
func Transition(from, to FileStatus) error {
	if !from.Valid() || !to.Valid() {
		return &TransitionError{
			Code:    CodeUnknownStatus,
			Message: fmt.Sprintf("неизвестный статус: %q → %q", from, to),
		}
	}
	if !CanTransition(from, to) {
		return &TransitionError{
			Code:    CodeInvalidTransition,
			Message: fmt.Sprintf("переход %s → %s недопустим", from, to),
		}
	}
	return nil
}

// ReviewTransition проверяет ручной переход из held и формирует запись о нём.
func ReviewTransition(from, to FileStatus, subject string) (TransitionRecord, error) {
	if to != FileApproved && to != FileRejected {
		return TransitionRecord{}, &TransitionError{
			Code:    CodeInvalidTransition,
			Message: fmt.Sprintf("%s не является решением проверки", to),
		}
	}
	if from != FileHeld {
		return TransitionRecord{}, &TransitionError{
			Code: CodeInvalidTransition,
			Message: fmt.Sprintf("статус файла %q, проверке подлежат только файлы в статусе %q",
				from, FileHeld),
		}
	}
	return TransitionRecord{
		From:      from,
		To:        to,
		Subject:   subject,
		Timestamp: time.Now().UTC(),
	}, nil
}

// CanJobTransition проверяет, допустим ли переход задания from → to.
func CanJobTransition(from, to JobStatus) bool {
	return jobTransitions[from][to]
}

// Valid проверяет, является ли статус файла допустимым.
func (s FileStatus) Valid() bool {
	_, ok := fileTransitions[s]
	return ok
}

// Resolved — сканирование файла завершено (clean, held или решение проверки).
func (s FileStatus) Resolved() bool {
	switch s {
	case FileClean, FileHeld, FileApproved, FileRejected:
		return true
	default:
		return false
	}
}

// Promotable — файл может быть перенесён в постоянное хранилище.
func (s FileStatus) Promotable() bool {
	return s == FileClean || s == FileApproved
}

// Terminal — из статуса нет переходов.
func (s FileStatus) Terminal() bool {
	return s.Valid() && len(fileTransitions[s]) == 0
}

// ParseFileStatus преобразует строку в FileStatus.
func ParseFileStatus(s string) (FileStatus, error) {
	st := FileStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("недопустимый статус файла: %q, допустимые: pending, scanning, clean, held, approved, rejected", s)
	}
	return st, nil
}

// ParseJobStatus преобразует строку в JobStatus.
func ParseJobStatus(s string) (JobStatus, error) {
	st := JobStatus(s)
	if _, ok := jobTransitions[st]; !ok {
		return "", fmt.Errorf("недопустимый статус задания: %q, допустимые: pending, scanning, completed", s)
	}
	return st, nil
}
