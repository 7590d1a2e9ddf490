package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

func TestMapDBError_NilError(t *testing.T) {
	if err := MapDBError(nil); err != nil {
		t.Errorf("MapDBError(nil) = %v, want nil", err)
	}
}

func TestMapDBError_ContextErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode ErrorCode
	}{
		{name: "deadline exceeded", err: context.DeadlineExceeded, wantCode: ErrCodeTimeout},
		{name: "canceled", err: context.Canceled, wantCode: ErrCodeCanceled},
		{name: "wrapped deadline", err: fmt.Errorf("query: %w", context.DeadlineExceeded), wantCode: ErrCodeTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(MapDBError(tt.err)); got != tt.wantCode {
				t.Errorf("MapDBError() code = %v, want %v", got, tt.wantCode)
			}
		})
	}
}

func TestMapDBError_NotFound(t *testing.T) {
	for _, err := range []error{pgx.ErrNoRows, mongo.ErrNoDocuments} {
		if !IsNotFound(MapDBError(err)) {
			t.Errorf("MapDBError(%v) should be NotFound, got %v", err, GetCode(MapDBError(err)))
		}
	}
}

func TestMapDBError_PgErrors(t *testing.T) {
	tests := []struct {
		name      string
		pgErr     *pgconn.PgError
		wantCode  ErrorCode
		wantField string
	}{
		{
			name:      "unique violation defaults field to id",
			pgErr:     &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "reports_pkey"},
			wantCode:  ErrCodeConflict,
			wantField: "id",
		},
		{
			name:      "check violation on status",
			pgErr:     &pgconn.PgError{Code: pgerrcode.CheckViolation, ColumnName: "status"},
			wantCode:  ErrCodeInvalidArgument,
			wantField: "status",
		},
		{
			name:      "not null violation",
			pgErr:     &pgconn.PgError{Code: pgerrcode.NotNullViolation, ColumnName: "type"},
			wantCode:  ErrCodeInvalidArgument,
			wantField: "type",
		},
		{
			name:     "unhandled code is internal",
			pgErr:    &pgconn.PgError{Code: pgerrcode.DiskFull},
			wantCode: ErrCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.pgErr)
			if got := GetCode(err); got != tt.wantCode {
				t.Errorf("MapDBError() code = %v, want %v", got, tt.wantCode)
			}
			if got := GetField(err); got != tt.wantField {
				t.Errorf("MapDBError() field = %q, want %q", got, tt.wantField)
			}
			var pgErr *pgconn.PgError
			if !errors.As(err, &pgErr) {
				t.Error("mapped error should keep the PgError as cause")
			}
		})
	}
}

func TestMapDBError_Passthrough(t *testing.T) {
	orig := errors.New("something else")
	if got := MapDBError(orig); !errors.Is(got, orig) || GetCode(got) != "" {
		t.Errorf("MapDBError() = %v, want original error", got)
	}
}
