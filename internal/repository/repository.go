package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/rl-arena/ranked-matchmaker/internal/service"
)

// querier *sql.DB 와 *sql.Tx 공통
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type scanner interface {
	Scan(dest ...interface{}) error
}

const pqUniqueViolation = "23505"

// persistErr 인프라 에러를 ErrPersistence 로 감쌈
func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", service.ErrPersistence, op, err)
}

// uniqueViolation 지정한 제약 조건 위반인지
func uniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return string(pqErr.Code) == pqUniqueViolation && (constraint == "" || pqErr.Constraint == constraint)
}
