// Пакет repository — слой доступа к данным карантина в PostgreSQL:
// задания, файлы, журнал решений, настройки и статистика.
// Запросы пишутся на SQL через pgx; переходы статусов выполняются
// условным UPDATE (CAS), конфликт возвращается как ErrConflict.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — задание, файл или настройка отсутствует.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — повторный ID или запись уже не в ожидаемом статусе
	// (например, файл рассмотрен другим проверяющим).
	ErrConflict = errors.New("конфликт состояния записи")
)

// Коды ошибок PostgreSQL, которые различает слой.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// DefaultTxRetries — число повторов транзакции после взаимоблокировки.
// Воркеры одного задания обновляют одну строку quarantine_jobs.
const DefaultTxRetries = 3

// DBTX — то, на чём выполняются запросы репозиториев: пул или транзакция.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxBeginner открывает транзакции (*pgxpool.Pool).
type TxBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// TxRunner выполняет составные операции карантина в транзакции
// и повторяет их при взаимоблокировке или сбое сериализации.
type TxRunner struct {
	db      TxBeginner
	retries int
}

// NewTxRunner создаёт TxRunner с DefaultTxRetries повторами.
func NewTxRunner(db TxBeginner) *TxRunner {
	return &TxRunner{db: db, retries: DefaultTxRetries}
}

// RunInTx выполняет fn в транзакции READ COMMITTED: коммит при nil,
// откат при ошибке. fn может быть вызвана повторно и не должна иметь
// побочных эффектов вне tx.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	for attempt := 0; ; attempt++ {
		err := pgx.BeginTxFunc(ctx, r.db, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
		if err == nil || attempt >= r.retries || !isRetryable(err) || ctx.Err() != nil {
			return err
		}
	}
}

// pgErrorCode возвращает SQLSTATE ошибки PostgreSQL или "".
func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgErrorCode(err) == pgUniqueViolation
}

func isRetryable(err error) bool {
	code := pgErrorCode(err)
	return code == pgSerializationFailure || code == pgDeadlockDetected
}
