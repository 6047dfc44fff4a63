package mssql

import (
	"context"
	"errors"
	"testing"

	"sql2parquet/internal/schema"
	"sql2parquet/internal/source"
)

func TestDescribe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typeName  string
		prec, sc  int64
		decimalOK bool
		wantTag   schema.SourceTypeTag
		wantPrec  int
		wantScale int
	}{
		{"TINYINT", 0, 0, false, schema.TagInteger, 3, 0},
		{"smallint", 0, 0, false, schema.TagInteger, 5, 0},
		{"INT", 0, 0, false, schema.TagInteger, 10, 0},
		{"BIGINT", 0, 0, false, schema.TagInteger, 19, 0},
		{"DECIMAL", 12, 3, true, schema.TagDecimal, 12, 3},
		{"NUMERIC", 0, 0, false, schema.TagDecimal, 18, 0},
		{"MONEY", 0, 0, false, schema.TagDecimal, 19, 4},
		{"SMALLMONEY", 0, 0, false, schema.TagDecimal, 10, 4},
		{"FLOAT", 0, 0, false, schema.TagFloat, 53, 0},
		{"REAL", 0, 0, false, schema.TagFloat, 24, 0},
		{"NVARCHAR", 0, 0, false, schema.TagText, 0, 0},
		{"VARBINARY", 0, 0, false, schema.TagBinary, 0, 0},
		{"DATE", 0, 0, false, schema.TagDate, 0, 0},
		{"TIME", 0, 0, false, schema.TagTime, 0, 0},
		{"DATETIME2", 0, 0, false, schema.TagDateTime, 0, 0},
		{"DATETIMEOFFSET", 0, 0, false, schema.TagDateTime, 0, 0},
		{"BIT", 0, 0, false, schema.TagBoolean, 0, 0},
		{"GEOGRAPHY", 0, 0, false, schema.TagOther, 0, 0},
		{"UNIQUEIDENTIFIER", 0, 0, false, schema.TagOther, 0, 0},
		{"", 0, 0, false, schema.TagOther, 0, 0},
	}
	for _, tt := range tests {
		d := describe("c", tt.typeName, tt.prec, tt.sc, tt.decimalOK)
		if d.Tag != tt.wantTag || d.Precision != tt.wantPrec || d.Scale != tt.wantScale {
			t.Fatalf("%s: got %s, want tag=%s prec=%d scale=%d", tt.typeName, d, tt.wantTag, tt.wantPrec, tt.wantScale)
		}
		if !d.Nullable {
			t.Fatalf("%s: nullable must default to true", tt.typeName)
		}
	}
}

func TestFallback_UniqueIdentifier(t *testing.T) {
	t.Parallel()

	raw := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F, 0x10}
	col := schema.ColumnDescriptor{Name: "rowguid", Tag: schema.TagOther, TypeName: "UNIQUEIDENTIFIER"}

	got, err := Fallback(col, raw)
	if err != nil {
		t.Fatalf("Fallback: %v", err)
	}
	if want := "04030201-0605-0807-090A-0B0C0D0E0F10"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFallback_GeographyBytes(t *testing.T) {
	t.Parallel()

	col := schema.ColumnDescriptor{Name: "shape", Tag: schema.TagOther, TypeName: "GEOGRAPHY"}
	got, err := Fallback(col, []byte{0xE6, 0x10, 0x00})
	if err != nil {
		t.Fatalf("Fallback: %v", err)
	}
	if got != "0xE61000" {
		t.Fatalf("got %q", got)
	}
}

func TestOpen(t *testing.T) {
	orig := openSQL
	defer func() { openSQL = orig }()

	var gotDriver, gotStmt string
	dialErr := errors.New("dial refused")
	openSQL = func(_ context.Context, driver, _, stmt string, _ source.DescribeFunc) (*source.SQLCursor, error) {
		gotDriver, gotStmt = driver, stmt
		return nil, dialErr
	}

	_, err := Open(context.Background(), source.Config{
		DSN:   "sqlserver://user:pw@localhost:1433?database=AdventureWorks",
		Table: "SalesLT.SalesOrderHeader",
	})
	if !errors.Is(err, dialErr) {
		t.Fatalf("err=%v, want %v", err, dialErr)
	}
	if gotDriver != "sqlserver" || gotStmt != "SELECT * FROM SalesLT.SalesOrderHeader" {
		t.Fatalf("driver=%q stmt=%q", gotDriver, gotStmt)
	}

	gotDriver = ""
	if _, err := Open(context.Background(), source.Config{DSN: "sqlserver://%zz", Table: "t"}); err == nil {
		t.Fatalf("expected DSN error")
	}
	if gotDriver != "" {
		t.Fatalf("driver dialed despite invalid DSN")
	}
}
