package source

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"sql2parquet/internal/schema"
)

func TestDefaultFallback(t *testing.T) {
	t.Parallel()

	col := schema.ColumnDescriptor{Name: "x", Tag: schema.TagOther}
	ts := time.Date(2024, 3, 1, 12, 30, 0, 500, time.UTC)

	tests := []struct {
		in   any
		want string
	}{
		{"plain", "plain"},
		{[]byte{0xde, 0xad}, "0xDEAD"},
		{ts, "2024-03-01T12:30:00.0000005Z"},
		{net.IPv4(10, 0, 0, 1), "10.0.0.1"},
		{map[string]any{"k": "v"}, `{"k":"v"}`},
		{[]any{float64(1), "a"}, `[1,"a"]`},
		{int64(7), "7"},
		{true, "true"},
	}
	for _, tt := range tests {
		got, err := DefaultFallback(col, tt.in)
		if err != nil {
			t.Fatalf("%#v: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("%#v: got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestApplyFallback_OnlyOtherNonNull(t *testing.T) {
	t.Parallel()

	cols := []schema.ColumnDescriptor{
		{Name: "id", Tag: schema.TagInteger, Precision: 10},
		{Name: "geo", Tag: schema.TagOther},
		{Name: "note", Tag: schema.TagOther},
		{Name: "tag", Tag: schema.TagOther},
	}
	row := schema.Row{int64(1), []byte{0x01}, nil, "already"}

	var calls int
	fn := func(c schema.ColumnDescriptor, v any) (string, error) {
		calls++
		return DefaultFallback(c, v)
	}
	if err := ApplyFallback(cols, row, fn); err != nil {
		t.Fatalf("ApplyFallback: %v", err)
	}
	if calls != 1 {
		t.Fatalf("fallback called %d times, want 1", calls)
	}
	if row[0] != int64(1) || row[1] != "0x01" || row[2] != nil || row[3] != "already" {
		t.Fatalf("row=%#v", row)
	}
}

func TestApplyFallback_Error(t *testing.T) {
	t.Parallel()

	cols := []schema.ColumnDescriptor{{Name: "geo", Tag: schema.TagOther, TypeName: "GEOGRAPHY"}}
	boom := errors.New("cannot render")
	err := ApplyFallback(cols, schema.Row{42}, func(schema.ColumnDescriptor, any) (string, error) { return "", boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	if want := `fallback for column "geo" (GEOGRAPHY): cannot render`; err.Error() != want {
		t.Fatalf("err=%q, want %q", err.Error(), want)
	}
}

func TestSliceCursor_InstalledFallback(t *testing.T) {
	t.Parallel()

	cur := &SliceCursor{
		Cols: []schema.ColumnDescriptor{{Name: "v", Tag: schema.TagOther}},
		Rows: []schema.Row{{int64(5)}},
	}
	cur.SetFallback(func(schema.ColumnDescriptor, any) (string, error) { return "five", nil })
	page, err := cur.Fetch(context.Background(), 10)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if page[0][0] != "five" {
		t.Fatalf("value=%#v", page[0][0])
	}
	// The source rows are not mutated.
	if cur.Rows[0][0] != int64(5) {
		t.Fatalf("source row mutated: %#v", cur.Rows[0][0])
	}
}
