package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// postgres error codes this package distinguishes from generic failures.
// https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgCodeUniqueViolation = "23505"
)

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation, surfaced via pgconn.PgError by the pgx stdlib driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgCodeUniqueViolation
	}
	return false
}
