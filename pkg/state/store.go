// Package state implements the StateStore: a durable per-object
// migration record plus an event-sequencer table used to reject stale
// change-notification deliveries.
package state

import (
	"context"

	"objectreplicator/pkg/core"
)

// Store is the StateStore contract. CheckSequencer must be atomic per
// key: a linearizable compare-and-swap on the stored hex sequencer
// value, wrapped in a conditional expression when the backing store
// offers only last-writer-wins updates.
type Store interface {
	LogJobStart(ctx context.Context, srcBucket, srcPrefix, desBucket, desPrefix string, job core.JobInfo, extraArgs map[string]string) error
	LogJobEnd(ctx context.Context, srcBucket, key, etag, errString string) error
	CheckSequencer(ctx context.Context, key, sequencer string) (bool, error)

	// GetRecord returns the migration record for "srcBucket/key", for
	// the admin/status surface.
	GetRecord(ctx context.Context, srcBucket, key string) (*core.MigrationRecord, error)
	// ListRecords returns up to limit records for srcBucket, most
	// recently started first.
	ListRecords(ctx context.Context, srcBucket string, limit int) ([]core.MigrationRecord, error)
}
