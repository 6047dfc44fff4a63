package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"sql2parquet/internal/config"
	"sql2parquet/internal/export"
	"sql2parquet/internal/parquetio"
	"sql2parquet/internal/progress"
	"sql2parquet/internal/schema"
	"sql2parquet/internal/source"
)

// openCursor is a test hook.
var openCursor = source.Open

// previewRows is how many rows of each segment -debug prints.
const previewRows = 5

// runExport opens the source, runs the export and prints the summary to out.
func runExport(ctx context.Context, cfg config.Export, log logrus.FieldLogger, out io.Writer) error {
	log = log.WithField("job", cfg.Job)
	stmt, _ := cfg.Source.Cursor().Statement()
	log.WithFields(logrus.Fields{"kind": cfg.Source.Kind, "output": cfg.Output.Path}).
		Infof("source: %s", stmt)

	cur, err := openCursor(ctx, cfg.Source.Cursor())
	if err != nil {
		// The source failing before the first batch is still a source failure.
		return errors.Mark(errors.Wrap(err, "open source"), export.ErrFetch)
	}
	defer func() {
		if err := cur.Close(); err != nil {
			log.WithError(err).Warn("source: close failed")
		}
	}()

	exp := export.New(export.Options{
		Job:          cfg.Job,
		Output:       cfg.Output.Path,
		RowGroupSize: cfg.Runtime.RowGroupSize,
		BlockBytes:   parquetio.BlockBytesFromMB(cfg.Output.BlockSizeMB),
		Compression:  cfg.Output.Compression,
		Overwrite:    cfg.Output.Overwrite,
		Pipelined:    cfg.Runtime.Pipelined,
		QueueDepth:   cfg.Runtime.QueueDepth,
		Mapper:       schema.Mapper{IEEEFloats: cfg.Mapping.IEEEFloats},
		Debug:        cfg.Runtime.Debug,
		Manifest:     cfg.Output.WriteManifest(),
		Logger:       log,
		Observers:    []progress.Observer{progress.NewReporter(log)},
	})
	res, err := exp.Run(ctx, cur)
	if err != nil {
		return err
	}

	if cfg.Runtime.Debug {
		for _, s := range res.Segments {
			if err := printSegment(ctx, out, s); err != nil {
				log.WithError(err).WithField("segment", s.Path).Warn("debug: preview failed")
			}
		}
		if res.Manifest != "" {
			if m, err := parquetio.ReadManifest(cfg.Output.Path); err != nil {
				log.WithError(err).Warn("debug: manifest unreadable")
			} else {
				fmt.Fprintf(out, "== manifest %s: %d rows, %d segment(s)\n", m.Status, m.Rows, len(m.Segments))
			}
		}
	}
	printSummary(out, res)
	return nil
}

func printSummary(out io.Writer, res export.Result) {
	fmt.Fprintf(out, "exported %d rows in %d segment(s) in %s (%.0f rows/s)\n",
		res.Rows, len(res.Segments), res.Elapsed.Round(time.Millisecond), res.RowsPerSecond)
	for _, s := range res.Segments {
		fmt.Fprintf(out, "  %s\t%d rows\t%d bytes\txxh3:%s\n", s.Path, s.Rows, s.Bytes, s.Checksum)
	}
	if res.Manifest != "" {
		fmt.Fprintf(out, "manifest: %s\n", res.Manifest)
	}
}

// printSegment reopens a finished segment and prints its stored schema and
// first rows.
func printSegment(ctx context.Context, out io.Writer, s parquetio.SegmentInfo) error {
	sum, err := parquetio.Inspect(s.Path)
	if err != nil {
		return err
	}
	v, err := parquetio.Verify(s.Path)
	if err != nil {
		return err
	}
	if v.Rows != sum.Rows || v.RowGroups != len(sum.RowGroupRows) {
		return errors.Newf("%s: readers disagree: %d rows in %d rowgroups vs %d rows in %d rowgroups",
			s.Path, sum.Rows, len(sum.RowGroupRows), v.Rows, v.RowGroups)
	}
	names, rows, err := parquetio.Preview(ctx, s.Path, previewRows)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "== %s (seq %d, %d rows, rowgroups %v)\n", s.Path, s.Seq, sum.Rows, sum.RowGroupRows)
	fmt.Fprintf(out, "  verified: %d rows in %d rowgroups\n", v.Rows, v.RowGroups)
	for _, f := range sum.Schema.Fields() {
		fmt.Fprintf(out, "  %s: %s nullable=%t\n", f.Name, f.Type, f.Nullable)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(names, "\t"))
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	return tw.Flush()
}
