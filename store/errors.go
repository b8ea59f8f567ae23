package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// PostgreSQL SQLSTATE codes.
const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
)

// IsDuplicateKey reports whether err is a uniqueness constraint violation.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	if code, ok := sqliteExtendedCode(err); ok {
		return code == sqlite3.ErrConstraintUnique || code == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// IsForeignKeyViolation reports whether err is a foreign key violation, as
// raised when deleting a row that is still referenced.
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgForeignKeyViolation
	}

	if code, ok := sqliteExtendedCode(err); ok {
		return code == sqlite3.ErrConstraintForeignKey
	}
	return false
}

func sqliteExtendedCode(err error) (sqlite3.ErrNoExtended, bool) {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.ExtendedCode, true
	}
	var sqlErrPtr *sqlite3.Error
	if errors.As(err, &sqlErrPtr) && sqlErrPtr != nil {
		return sqlErrPtr.ExtendedCode, true
	}
	return 0, false
}
