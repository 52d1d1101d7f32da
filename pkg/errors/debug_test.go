package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

func TestDumpCapturesPostgresDiagnostics(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23514", ConstraintName: "chk_product_stocks_reserved_le_total", TableName: "product_stocks"}
	err := Wrap(CodeDependency, fmt.Errorf("update: %w", pgErr), "storage unavailable")

	d := Dump(err)
	if d.Code != CodeDependency || !d.Retryable {
		t.Fatalf("unexpected code/retryable: %s %v", d.Code, d.Retryable)
	}
	if d.PGCode != "23514" || d.PGConstraint != "chk_product_stocks_reserved_le_total" || d.PGTable != "product_stocks" {
		t.Fatalf("missing pg diagnostics: %+v", d)
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %v", d.Chain)
	}
}

func TestDumpCapturesSQLiteCodes(t *testing.T) {
	err := fmt.Errorf("insert: %w", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintCheck})
	d := Dump(err)
	if d.SQLiteCode != int(sqlite3.ErrConstraint) || d.SQLiteExtended != int(sqlite3.ErrConstraintCheck) {
		t.Fatalf("missing sqlite codes: %+v", d)
	}
	if d.Code != "" || d.Retryable {
		t.Fatalf("untyped error must not carry a code: %+v", d)
	}
	if Dump(nil).TopMessage != "" {
		t.Fatal("expected empty dump for nil")
	}
}

func TestDumpListsStockShortages(t *testing.T) {
	err := fmt.Errorf("reserve: %w", InsufficientStock(
		StockShortage{ProductID: "B", Requested: 4, Available: 1},
		StockShortage{ProductID: "C", Requested: 2, Available: 0},
	))

	d := Dump(err)
	if d.Code != CodeInsufficientStock || d.Retryable {
		t.Fatalf("unexpected code/retryable: %s %v", d.Code, d.Retryable)
	}
	if len(d.Shortages) != 2 || d.Shortages[0].ProductID != "B" || d.Shortages[1].ProductID != "C" {
		t.Fatalf("expected both shortages in order, got %+v", d.Shortages)
	}
	if d.PGCode != "" || d.SQLiteCode != 0 {
		t.Fatalf("no driver diagnostics expected: %+v", d)
	}
}
