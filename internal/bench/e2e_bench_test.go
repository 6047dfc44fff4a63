package bench

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"sql2parquet/internal/export"
	"sql2parquet/internal/schema"
	"sql2parquet/internal/source"
)

// cols mimic a typical order table: keys, a nullable label, money, timestamps.
var cols = []schema.ColumnDescriptor{
	{Name: "id", Tag: schema.TagInteger, Precision: 19},
	{Name: "customer_id", Tag: schema.TagInteger, Precision: 10},
	{Name: "status", Tag: schema.TagText, Nullable: true},
	{Name: "total", Tag: schema.TagDecimal, Precision: 12, Scale: 2},
	{Name: "created", Tag: schema.TagDateTime},
	{Name: "paid", Tag: schema.TagBoolean, Nullable: true},
}

var created = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func row(i int) schema.Row {
	var status any = "shipped"
	if i%11 == 0 {
		status = nil
	}
	return schema.Row{int64(i), int32(i % 5000), status, "1249.90", created.Add(time.Duration(i) * time.Second), i%3 == 0}
}

// BenchmarkEndToEnd streams b.N generated rows through the exporter into a
// temp file, without any database in the loop. It isolates conversion and
// container encoding cost.
//
// Run with:
//
//	go test ./internal/bench -run=^$ -bench ^BenchmarkEndToEnd -cpuprofile cpu.out -memprofile mem.out -count=1
func BenchmarkEndToEnd(b *testing.B) {
	for _, pipelined := range []bool{false, true} {
		b.Run(fmt.Sprintf("pipelined=%t", pipelined), func(b *testing.B) {
			log, _ := test.NewNullLogger()
			cur := &source.GenCursor{Cols: cols, Total: b.N, Page: 4096, Gen: row}
			e := export.New(export.Options{
				Job:          "bench",
				Output:       filepath.Join(b.TempDir(), "orders.parquet"),
				RowGroupSize: 65536,
				Pipelined:    pipelined,
				Logger:       log,
			})

			b.ReportAllocs()
			b.ResetTimer()
			res, err := e.Run(context.Background(), cur)
			b.StopTimer()
			if err != nil {
				b.Fatalf("Run: %v", err)
			}
			if res.Rows != int64(b.N) {
				b.Fatalf("rows=%d, want %d", res.Rows, b.N)
			}
			b.ReportMetric(res.RowsPerSecond, "rows/s")
		})
	}
}
