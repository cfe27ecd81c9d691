// Package eventproc turns a batch of S3-style change notifications into
// transfer and delete work, filtering out-of-order and duplicate events
// via the StateStore's per-key sequencer.
package eventproc

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"objectreplicator/pkg/core"
	"objectreplicator/pkg/logging"
	"objectreplicator/pkg/queue"
	"objectreplicator/pkg/state"
)

// Processor applies sequencer filtering and event-type dispatch to a
// change-notification batch.
type Processor struct {
	Store         state.Store
	DesPrefix     string
	PropagateDels bool // SUPPLEMENTED FEATURE 3: propagate ObjectRemoved to destination
}

// Process decodes, sequences, and classifies one batch. transfers is
// the set of keys to migrate; deletes is the set of destination keys to
// remove, already prefixed with DesPrefix.
func (p *Processor) Process(ctx context.Context, notifications []queue.ChangeNotification) (transfers []core.DeltaRecord, deletes []string, err error) {
	for _, n := range notifications {
		key, decodeErr := decodeKey(n.Key)
		if decodeErr != nil {
			return transfers, deletes, fmt.Errorf("eventproc: decode key %q: %w", n.Key, decodeErr)
		}

		accepted, seqErr := p.Store.CheckSequencer(ctx, key, n.Sequencer)
		if seqErr != nil {
			return transfers, deletes, fmt.Errorf("eventproc: check sequencer for %s: %w", key, seqErr)
		}
		if !accepted {
			logging.Info("eventproc: dropping stale/duplicate event for %s (sequencer %s)", key, n.Sequencer)
			continue
		}

		if strings.Contains(n.EventName, "ObjectRemoved") {
			if p.PropagateDels {
				deletes = append(deletes, path.Join(p.DesPrefix, key))
			}
			continue
		}

		version := n.VersionID
		if version == "" {
			version = "null"
		}
		transfers = append(transfers, core.DeltaRecord{Key: key, Size: n.Size, Version: version})
	}
	return transfers, deletes, nil
}

// decodeKey reverses the change-notification encoding: '+' stands for a
// literal space, everything else is standard percent-encoding.
func decodeKey(raw string) (string, error) {
	return url.QueryUnescape(strings.ReplaceAll(raw, "+", " "))
}
