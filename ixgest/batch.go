// Package ixgest drives one extraction run: it partitions the input into
// batches, feeds them to the worker pool, folds every artifact into the
// merged store as it arrives, and finally aggregates the merged store into
// the canonical store.
package ixgest

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/pwcmeta/ixgest/types"
	"github.com/teranos/pwcmeta/logger"
)

type (
	WorkItem = types.WorkItem
	Result   = types.Result
)

// BatchSize returns fixed when positive, otherwise total/desiredBatches.
// The result is never below 1.
func BatchSize(total, desiredBatches, fixed int) int {
	if fixed > 0 {
		return fixed
	}
	if desiredBatches < 1 {
		desiredBatches = 1
	}
	return max(1, total/desiredBatches)
}

// Partition splits items into contiguous batches of at most size items,
// preserving order. The batches share items' backing array.
func Partition(items []WorkItem, size int) [][]WorkItem {
	if size < 1 {
		size = 1
	}
	batches := make([][]WorkItem, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end:end])
	}
	return batches
}

// Runner executes one batch, sending one Result per item.
type Runner interface {
	Run(ctx context.Context, batch []WorkItem, results chan<- Result)
}

// Dispatcher hands batches to the pool one after another.
type Dispatcher struct {
	Pool      Runner
	BatchSize int
	Logger    *zap.SugaredLogger
}

// Dispatch runs every batch in order and sends exactly one Result per item
// to results. Once ctx is done no new batch starts; the items of the
// remaining batches are sent as skipped, without an artifact, and ctx.Err()
// is returned. Items skipped inside a running batch are the pool's to report.
// Dispatch does not close results.
func (d *Dispatcher) Dispatch(ctx context.Context, items []WorkItem, results chan<- Result) error {
	log := logger.OrNop(d.Logger)
	batches := Partition(items, d.BatchSize)

	for i, batch := range batches {
		if ctx.Err() != nil {
			skipped := 0
			for _, rest := range batches[i:] {
				for _, item := range rest {
					results <- Result{Item: item, Skipped: true}
					skipped++
				}
			}
			log.Warnw("Dispatch stopped",
				logger.FieldBatch, i,
				logger.FieldCount, skipped,
				logger.FieldError, ctx.Err())
			return ctx.Err()
		}

		log.Infow("Dispatching batch",
			logger.FieldBatch, i+1,
			logger.FieldTotalCount, len(batches),
			logger.FieldBatchSize, len(batch))
		d.Pool.Run(ctx, batch, results)
	}
	return nil
}
