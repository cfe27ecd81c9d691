// Command worker drains one batch of queue messages and processes
// each: a direct delta record, a batch of change-notification records,
// or a test ping. Designed for serverless-style invocation — one
// process lifetime per batch, bounded by JOB_TIMEOUT — rather than a
// long-running daemon loop.
package main

import (
	"context"
	"os"

	"objectreplicator/internal/bootstrap"
	"objectreplicator/pkg/core"
	"objectreplicator/pkg/eventproc"
	"objectreplicator/pkg/logging"
	"objectreplicator/pkg/progress"
	"objectreplicator/pkg/queue"
)

const batchSize = int32(10)

func main() {
	ctx := context.Background()

	env, err := bootstrap.Build(ctx)
	if err != nil {
		logging.Error("worker: %v", err)
		os.Exit(1)
	}

	envelopes, err := env.Queue.Receive(ctx, batchSize)
	if err != nil {
		logging.Error("worker: receive: %v", err)
		os.Exit(1)
	}
	if len(envelopes) == 0 {
		logging.Info("worker: no messages to process")
		return
	}

	mig := bootstrap.NewMigrator(env)
	processor := &eventproc.Processor{Store: env.Store, DesPrefix: env.Settings.DesPrefix, PropagateDels: true}
	tracker := progress.NewTracker(int64(len(envelopes)), 0)

	invalidPayload := false
	for _, e := range envelopes {
		if err := processEnvelope(ctx, env, mig, processor, tracker, e); err != nil {
			if err == queue.ErrUnknownPayload {
				invalidPayload = true
				logging.Error("worker: %v", err)
				continue
			}
			logging.Error("worker: processing message failed, leaving for redelivery: %v", err)
			continue
		}
		if err := env.Queue.Delete(ctx, e.ReceiptHandle); err != nil {
			logging.Warn("worker: delete message after successful processing: %v", err)
		}
	}

	logging.Info("%s", tracker.FormatProgress())

	if invalidPayload {
		os.Exit(1)
	}
}

func processEnvelope(ctx context.Context, env *bootstrap.Env, mig migrator, processor *eventproc.Processor, tracker *progress.Tracker, e queue.Envelope) error {
	kind, direct, notifications, err := queue.Parse(e.Body)
	if err != nil {
		return err
	}

	switch kind {
	case queue.PayloadTestPing:
		logging.Info("worker: test ping, skipping")
		return nil

	case queue.PayloadDirectJob:
		job := core.JobInfo{Key: direct.Key, Size: direct.Size, Version: direct.Version, StorageClass: env.Settings.StorageClass}
		err := mig.Migrate(ctx, job)
		tracker.Update(job.Size, err == nil)
		return err

	case queue.PayloadChangeBatch:
		transfers, deletes, err := processor.Process(ctx, notifications)
		if err != nil {
			return err
		}
		for _, d := range deletes {
			if err := env.Dest.DeleteObject(ctx, d); err != nil {
				logging.Warn("worker: delete destination object %s: %v", d, err)
			}
		}
		for _, t := range transfers {
			job := core.JobInfo{Key: t.Key, Size: t.Size, Version: t.Version, StorageClass: env.Settings.StorageClass}
			err := mig.Migrate(ctx, job)
			tracker.Update(job.Size, err == nil)
			if err != nil {
				return err
			}
		}
		return nil

	default:
		return queue.ErrUnknownPayload
	}
}

// migrator is the subset of *migrator.Migrator that processEnvelope
// needs, narrowed for testability.
type migrator interface {
	Migrate(ctx context.Context, job core.JobInfo) error
}
