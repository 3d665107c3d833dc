package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"residence-data/internal/domain"

	"github.com/lib/pq"
)

// Postgres SQLSTATE
const (
	pqUniqueViolation      = "23505"
	pqForeignKeyViolation  = "23503"
	pqCheckViolation       = "23514"
	pqInvalidTextRep       = "22P02"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqLockNotAvailable     = "55P03"
	pqQueryCanceled        = "57014"
	pqAdminShutdown        = "57P01"
)

// classifyPQError 把驱动错误映射为领域错误；已是领域错误的原样返回
func classifyPQError(err error) error {
	if err == nil {
		return nil
	}
	if domain.KindOf(err) != "" {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return domain.Unavailable(err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqUniqueViolation:
			switch pqErr.Constraint {
			case "uq_occupancies_active_bed":
				return domain.Conflictf("Lit non disponible (statut: %s)", domain.BedOccupied.Label())
			case "uq_beds_room_number":
				return domain.Conflictf("bed number already exists in this room")
			case "uq_rooms_housing_label":
				return domain.Conflictf("room label already exists in this housing")
			}
			return domain.Conflictf("duplicate record")
		case pqForeignKeyViolation:
			return domain.NotFoundf("referenced record not found")
		case pqCheckViolation:
			return domain.Validationf("invalid value (%s)", pqErr.Constraint)
		case pqInvalidTextRep:
			return domain.NotFoundf("record not found")
		case pqSerializationFailure, pqDeadlockDetected, pqLockNotAvailable, pqQueryCanceled, pqAdminShutdown:
			return domain.Unavailable(err)
		}
	}
	return fmt.Errorf("database error: %w", err)
}

// notFoundOr sql.ErrNoRows -> NotFound，其它交给 classifyPQError
func notFoundOr(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFoundf(format, args...)
	}
	return classifyPQError(err)
}
