// Package pipeline runs the per-partition stages (assembly, localization,
// alignment, call extraction) over a fixed-size worker
// pool, one goroutine-range per partition (spec.md §5), feeding every
// result through a single mutex-protected sink.
package pipeline

import (
	"context"
	"sync"

	"github.com/exascience/pargo/parallel"

	"github.com/knovel/knovel/call"
	"github.com/knovel/knovel/partition"
	"github.com/knovel/knovel/runsummary"
)

// Options configures the worker pool.
type Options struct {
	// NumWorkers bounds how many partitions are processed concurrently.
	// Zero means let parallel.Range pick its own grain.
	NumWorkers int
}

// Stage processes a single partition into zero or more calls. Stage
// implementations report non-fatal conditions against summary themselves
// (e.g. runsummary.PartitionTooSmall, runsummary.NoReferenceMatch) and
// return an error only for conditions that should abort that partition's
// processing outright.
type Stage func(ctx context.Context, p *partition.Partition) ([]*call.Call, error)

// Sink receives completed partitions' calls as they land, one at a time;
// it is called while holding the pipeline's single writer lock, so
// implementations may safely append to shared state or write to a
// single underlying io.Writer without their own synchronization.
type Sink func(p *partition.Partition, calls []*call.Call)

// Run processes every partition in partitions through stage, feeding each
// partition's resulting calls to sink as they complete. It returns the
// first error any stage invocation returned (processing of the other
// partitions still completes; Run does not abort early, mirroring the
// teacher's token-bucket worker pool waiting out all in-flight work
// before reporting).
//
// ctx cancellation stops new partitions from starting their stage call
// (already-running stage calls are expected to check ctx themselves to
// cooperate); this is the pipeline's "cooperative cancellation between
// partitions" contract.
func Run(ctx context.Context, partitions []*partition.Partition, stage Stage, sink Sink, summary *runsummary.Summary, opts Options) error {
	if len(partitions) == 0 {
		return nil
	}

	grain := opts.NumWorkers
	if grain < 0 {
		grain = 0
	}

	var (
		sinkMu  sync.Mutex
		errMu   sync.Mutex
		firstErr error
	)

	parallel.Range(0, len(partitions), grain, func(low, high int) {
		for i := low; i < high; i++ {
			select {
			case <-ctx.Done():
				return
			default:
			}

			p := partitions[i]
			if len(p.Reads) == 0 {
				if summary != nil {
					summary.Add(runsummary.PartitionTooSmall)
				}
				continue
			}

			calls, err := stage(ctx, p)
			if err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
				continue
			}

			sinkMu.Lock()
			sink(p, calls)
			sinkMu.Unlock()
		}
	})

	return firstErr
}
