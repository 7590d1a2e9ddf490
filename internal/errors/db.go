package errors

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// MapDBError maps store errors to AppError instances.
// It handles:
// - pgx.ErrNoRows and mongo.ErrNoDocuments → NotFound
// - Unique violations and duplicate keys → Conflict
// - Check and NOT NULL violations → InvalidArgument
// - Context timeouts/cancellations → Timeout/Canceled
//
// If the error is not a recognized store error, it returns the original error.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &AppError{Code: ErrCodeTimeout, Message: "store request timed out", Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return &AppError{Code: ErrCodeCanceled, Message: "store request was canceled", Cause: err}
	}

	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, mongo.ErrNoDocuments) {
		return &AppError{Code: ErrCodeNotFound, Message: "report not found", Cause: err}
	}

	if mongo.IsDuplicateKeyError(err) {
		return &AppError{Code: ErrCodeConflict, Message: "report already exists", Field: "id", Cause: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr)
	}

	return err
}

func mapPgError(pgErr *pgconn.PgError) error {
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return &AppError{
			Code:    ErrCodeConflict,
			Message: "report already exists",
			Field:   columnOr(pgErr, "id"),
			Cause:   pgErr,
		}
	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
		return &AppError{
			Code:    ErrCodeInvalidArgument,
			Message: "report has an invalid or missing field",
			Field:   pgErr.ColumnName,
			Cause:   pgErr,
		}
	default:
		return &AppError{
			Code:    ErrCodeInternal,
			Message: "a database error occurred",
			Cause:   pgErr,
		}
	}
}

func columnOr(pgErr *pgconn.PgError, fallback string) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	return fallback
}
