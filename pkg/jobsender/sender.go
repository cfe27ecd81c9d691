// Package jobsender drives delta discovery and enqueues the resulting
// records, only when the queue is observed empty.
package jobsender

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"objectreplicator/pkg/core"
	"objectreplicator/pkg/delta"
	"objectreplicator/pkg/logging"
	"objectreplicator/pkg/pool"
	"objectreplicator/pkg/queue"
)

// Sender drives Finder and batches its output onto Queue. Batch sends
// are dispatched through a bounded worker pool so a large delta
// doesn't serialize one SQS round-trip after another; BatchWorkers
// defaults to 4.
type Sender struct {
	Finder       *delta.Finder
	Queue        queue.Queue
	BatchWorkers int
}

// Run checks the queue-empty gate and, if satisfied, streams the full
// delta into batches of QUEUE_BATCH_SIZE, sent concurrently.
func (s *Sender) Run(ctx context.Context) (int, error) {
	empty, err := s.Queue.IsEmpty(ctx)
	if err != nil {
		return 0, fmt.Errorf("jobsender: check queue empty: %w", err)
	}
	if !empty {
		logging.Info("jobsender: queue not empty, skipping this run")
		return 0, nil
	}

	workers := s.BatchWorkers
	if workers <= 0 {
		workers = 4
	}
	wp := pool.NewWorkerPool(ctx, workers)

	var sent int64
	var firstErr error
	var errMu sync.Mutex
	var wg sync.WaitGroup

	drainDone := make(chan struct{})
	go func() {
		for taskErr := range wp.Results() {
			if taskErr != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = taskErr
				}
				errMu.Unlock()
			}
		}
		close(drainDone)
	}()

	submit := func(batch []core.DeltaRecord) {
		b := append([]core.DeltaRecord(nil), batch...)
		wg.Add(1)
		if !wp.Submit(func(ctx context.Context) error {
			defer wg.Done()
			if err := s.Queue.SendBatch(ctx, b); err != nil {
				return fmt.Errorf("send batch: %w", err)
			}
			atomic.AddInt64(&sent, int64(len(b)))
			return nil
		}) {
			wg.Done()
		}
	}

	records := make(chan core.DeltaRecord, core.DefaultQueueBatchSize*4)
	findErr := make(chan error, 1)
	go func() {
		findErr <- s.Finder.Find(ctx, records)
		close(records)
	}()

	var batch []core.DeltaRecord
	for r := range records {
		batch = append(batch, r)
		if len(batch) == core.DefaultQueueBatchSize {
			submit(batch)
			batch = nil
		}
	}
	fErr := <-findErr
	if len(batch) > 0 {
		submit(batch)
	}

	wg.Wait()
	wp.Stop()
	<-drainDone

	total := int(atomic.LoadInt64(&sent))

	if fErr != nil {
		return total, fmt.Errorf("jobsender: find delta: %w", fErr)
	}
	if firstErr != nil {
		return total, fmt.Errorf("jobsender: %w", firstErr)
	}

	logging.OK("jobsender: enqueued %d delta records", total)
	return total, nil
}
