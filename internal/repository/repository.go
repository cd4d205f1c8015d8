// Пакет repository — слой доступа к данным PostgreSQL.
// Все запросы — чистый SQL через pgx, без ORM.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — конфликт уникальности (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — запись уже существует")
)

// DBTX — общий интерфейс *pgxpool.Pool и pgx.Tx: репозитории работают
// одинаково внутри и вне транзакции.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// beginner — DBTX, умеющий открывать (вложенную) транзакцию.
type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// inTx выполняет fn в транзакции, если db её поддерживает, иначе напрямую.
func inTx(ctx context.Context, db DBTX, fn func(DBTX) error) error {
	b, ok := db.(beginner)
	if !ok {
		return fn(db)
	}
	return pgx.BeginFunc(ctx, b, func(tx pgx.Tx) error {
		return fn(tx)
	})
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
