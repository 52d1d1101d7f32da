package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	pkgerrors "github.com/angelmondragon/packfinderz-stock/pkg/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestClassifyTransientErrors(t *testing.T) {
	cases := map[string]error{
		"bad conn":          driver.ErrBadConn,
		"deadline":          fmt.Errorf("query: %w", context.DeadlineExceeded),
		"pgx serialization": &pgconn.PgError{Code: "40001"},
		"pgx deadlock":      &pgconn.PgError{Code: "40P01"},
		"pq admin shutdown": &pq.Error{Code: "57P01"},
		"pq connection":     &pq.Error{Code: "08006"},
		"sqlite locked":     errors.New("database is locked"),
		"sqlite busy code":  sqlite3.Error{Code: sqlite3.ErrBusy},
	}
	for name, err := range cases {
		t.Run(name, func(t *testing.T) {
			classified := Classify(err)
			require.True(t, pkgerrors.IsCode(classified, pkgerrors.CodeDependency), "got %v", classified)
			assert.ErrorIs(t, classified, err)
		})
	}
}

func TestClassifyLeavesOtherErrorsUntouched(t *testing.T) {
	assert.NoError(t, Classify(nil))

	notFound := gorm.ErrRecordNotFound
	assert.Same(t, notFound, Classify(notFound))

	typed := pkgerrors.New(pkgerrors.CodeInsufficientStock, "short")
	assert.Same(t, typed, Classify(typed))

	checkViolation := &pgconn.PgError{Code: "23514"}
	assert.Equal(t, error(checkViolation), Classify(checkViolation))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint \"ux_stock_alerts_open\""}, ""))
	assert.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: product_stocks.product_id"), ""))
	assert.True(t, IsUniqueViolation(errors.New("duplicate key value violates unique constraint \"ux_reservations_active_checkout\""), "ux_reservations_active_checkout"))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23514", Message: "check constraint"}, ""))
	assert.False(t, IsUniqueViolation(nil, ""))
	assert.True(t, IsUniqueViolation(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, ""))
	assert.False(t, IsUniqueViolation(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintCheck}, ""))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(fmt.Errorf("find: %w", gorm.ErrRecordNotFound)))
	assert.False(t, IsNotFound(errors.New("other")))
}
