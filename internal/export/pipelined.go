package export

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"sql2parquet/internal/progress"
	"sql2parquet/internal/schema"
)

// item is one batch moving through the pipelined stages.
type item struct {
	batch  schema.RowBatch
	rec    arrow.Record
	stages progress.Stages
}

// streamPipelined runs fetch, convert and write as three goroutines joined by
// bounded channels, so batch N+1 is fetched while batch N is converted and
// written. Batches stay in cursor order because each stage is a single
// goroutine. The first failing stage cancels the others.
func (r *run) streamPipelined(ctx context.Context) error {
	depth := r.e.opts.QueueDepth
	fetched := make(chan item, depth)
	built := make(chan item, depth)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(fetched)
		for {
			if err := gctx.Err(); err != nil {
				return err
			}
			t := r.now()
			batch, err := r.reader.Next(gctx)
			d := r.step("fetch", err, t)
			if err != nil {
				return errors.Mark(err, ErrFetch)
			}
			if batch.Len() == 0 {
				return nil
			}
			select {
			case fetched <- item{batch: batch, stages: progress.Stages{Fetch: d}}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	g.Go(func() error {
		defer close(built)
		for it := range fetched {
			t := r.now()
			rec, err := r.writer.Build(it.batch)
			it.stages.Convert = r.step("convert", err, t)
			if err != nil {
				return errors.Mark(err, ErrWrite)
			}
			it.batch, it.rec = nil, rec
			select {
			case built <- it:
			case <-gctx.Done():
				rec.Release()
				return gctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		for it := range built {
			if err := gctx.Err(); err != nil {
				it.rec.Release()
				return err
			}
			if err := r.commit(it.rec, it.stages); err != nil {
				return err
			}
		}
		return nil
	})

	err := g.Wait()
	for it := range built {
		it.rec.Release()
	}
	if err != nil && ctx.Err() != nil {
		return errors.Mark(err, ErrCanceled)
	}
	return err
}
