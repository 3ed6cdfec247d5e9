package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"exam-system/internal/apperr"
)

// Conn returns tx when a transaction is in flight, otherwise db. Either way
// the handle is bound to ctx.
func Conn(ctx context.Context, db, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

// Translate maps driver errors onto the apperr taxonomy. what names the
// record for NotFound and Conflict messages.
func Translate(err error, what string) error {
	var ae *apperr.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ae):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.NotFound(what)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Conflict(what+" already exists", err)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return apperr.ReferentialProtection(what + " is still referenced by other records")
	case isContention(err):
		return apperr.Conflict("concurrent update of "+what+", please retry", err)
	}
	return apperr.Internal(pkgerrors.Wrap(err, what))
}

// Postgres SQLSTATEs raised when two transactions collide.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

func isContention(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	return false
}
