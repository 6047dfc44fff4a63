package parquetio

import (
	"context"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/cockroachdb/errors"
	"github.com/parquet-go/parquet-go"
)

// FileSummary is what a reader recovers from one segment on its own.
type FileSummary struct {
	Path         string
	Schema       *arrow.Schema
	Rows         int64
	RowGroupRows []int64
}

// Inspect opens a segment and returns its stored schema and row counts.
func Inspect(path string) (FileSummary, error) {
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return FileSummary{}, errors.Wrapf(err, "open %s", path)
	}
	defer rdr.Close()

	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return FileSummary{}, errors.Wrapf(err, "read %s", path)
	}
	sc, err := fr.Schema()
	if err != nil {
		return FileSummary{}, errors.Wrapf(err, "schema of %s", path)
	}
	sum := FileSummary{Path: path, Schema: sc, Rows: rdr.NumRows()}
	for i := 0; i < rdr.NumRowGroups(); i++ {
		sum.RowGroupRows = append(sum.RowGroupRows, rdr.MetaData().RowGroup(i).NumRows())
	}
	return sum, nil
}

// Preview returns the column names and up to n rows of a segment rendered as
// text. Nulls render as "(null)".
func Preview(ctx context.Context, path string, n int) ([]string, [][]string, error) {
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open %s", path)
	}
	defer rdr.Close()

	props := pqarrow.ArrowReadProperties{BatchSize: int64(max(n, 1))}
	fr, err := pqarrow.NewFileReader(rdr, props, memory.DefaultAllocator)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "read %s", path)
	}
	sc, err := fr.Schema()
	if err != nil {
		return nil, nil, errors.Wrapf(err, "schema of %s", path)
	}
	names := make([]string, sc.NumFields())
	for i, f := range sc.Fields() {
		names[i] = f.Name
	}
	if n <= 0 || rdr.NumRows() == 0 {
		return names, nil, nil
	}

	rr, err := fr.GetRecordReader(ctx, nil, nil)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "rows of %s", path)
	}
	defer rr.Release()

	var rows [][]string
	for len(rows) < n && rr.Next() {
		rec := rr.Record()
		for r := 0; r < int(rec.NumRows()) && len(rows) < n; r++ {
			row := make([]string, rec.NumCols())
			for c := range row {
				col := rec.Column(c)
				if col.IsNull(r) {
					row[c] = "(null)"
				} else {
					row[c] = col.ValueStr(r)
				}
			}
			rows = append(rows, row)
		}
	}
	if err := rr.Err(); err != nil {
		return nil, nil, errors.Wrapf(err, "rows of %s", path)
	}
	return names, rows, nil
}

// Verification is the result of reopening a segment with an independent
// Parquet implementation.
type Verification struct {
	Path      string
	Columns   []string
	Rows      int64
	RowGroups int
}

// Verify reopens path with parquet-go and checks that the footer's row count
// matches the sum of its rowgroups.
func Verify(path string) (Verification, error) {
	f, err := os.Open(path)
	if err != nil {
		return Verification{}, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return Verification{}, errors.Wrapf(err, "stat %s", path)
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return Verification{}, errors.Wrapf(err, "parse %s", path)
	}

	v := Verification{Path: path, Rows: pf.NumRows(), RowGroups: len(pf.RowGroups())}
	for _, fld := range pf.Schema().Fields() {
		v.Columns = append(v.Columns, fld.Name())
	}
	var sum int64
	for _, rg := range pf.RowGroups() {
		sum += rg.NumRows()
	}
	if sum != v.Rows {
		return v, errors.Newf("%s: footer reports %d rows, rowgroups hold %d", path, v.Rows, sum)
	}
	return v, nil
}
