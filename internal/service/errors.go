// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — задание или файл не найдены.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrBatchTooLarge — в пакете больше файлов, чем max_batch_files.
	ErrBatchTooLarge = errors.New("слишком много файлов в пакете")
	// ErrFileTooLarge — файл больше max_file_size.
	ErrFileTooLarge = errors.New("файл превышает допустимый размер")
	// ErrInvalidStatusTransition — решение проверки для файла не в статусе held.
	ErrInvalidStatusTransition = errors.New("недопустимый переход статуса")
)
