package persistence

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/leasehold/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// isDuplicateKey reports unique-constraint violations from postgres or sqlite
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isValueTooLong reports postgres string_data_right_truncation, raised when a
// value exceeds its VARCHAR length
func isValueTooLong(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22001"
}

// notFound maps gorm.ErrRecordNotFound to a NOT_FOUND domain error
func notFound(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.NotFound(message)
	}
	return err
}
