package eventproc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"objectreplicator/pkg/core"
	"objectreplicator/pkg/queue"
)

// fakeSequencerStore implements state.Store with an in-memory map that
// accepts a sequencer only if it compares greater than the stored one,
// enough to exercise Processor's filtering logic.
type fakeSequencerStore struct {
	seq map[string]string
}

func newFakeSequencerStore() *fakeSequencerStore {
	return &fakeSequencerStore{seq: map[string]string{}}
}

func (s *fakeSequencerStore) LogJobStart(ctx context.Context, srcBucket, srcPrefix, desBucket, desPrefix string, job core.JobInfo, extraArgs map[string]string) error {
	return nil
}
func (s *fakeSequencerStore) LogJobEnd(ctx context.Context, srcBucket, key, etag, errString string) error {
	return nil
}

func (s *fakeSequencerStore) CheckSequencer(ctx context.Context, key, sequencer string) (bool, error) {
	if prior, ok := s.seq[key]; ok && sequencer <= prior {
		return false, nil
	}
	s.seq[key] = sequencer
	return true, nil
}

func (s *fakeSequencerStore) GetRecord(ctx context.Context, srcBucket, key string) (*core.MigrationRecord, error) {
	return nil, nil
}

func (s *fakeSequencerStore) ListRecords(ctx context.Context, srcBucket string, limit int) ([]core.MigrationRecord, error) {
	return nil, nil
}

func TestProcessTransfersNewObject(t *testing.T) {
	store := newFakeSequencerStore()
	p := &Processor{Store: store, DesPrefix: "dest/"}

	transfers, deletes, err := p.Process(context.Background(), []queue.ChangeNotification{
		{EventName: "ObjectCreated:Put", Key: "photo.jpg", Size: 100, Sequencer: "005"},
	})

	require.NoError(t, err)
	assert.Empty(t, deletes)
	require.Len(t, transfers, 1)
	assert.Equal(t, "photo.jpg", transfers[0].Key)
	assert.Equal(t, "null", transfers[0].Version)
}

func TestProcessDropsStaleSequencer(t *testing.T) {
	store := newFakeSequencerStore()
	p := &Processor{Store: store, DesPrefix: "dest/"}

	_, _, err := p.Process(context.Background(), []queue.ChangeNotification{
		{EventName: "ObjectCreated:Put", Key: "photo.jpg", Sequencer: "010"},
	})
	require.NoError(t, err)

	transfers, _, err := p.Process(context.Background(), []queue.ChangeNotification{
		{EventName: "ObjectCreated:Put", Key: "photo.jpg", Sequencer: "003"},
	})
	require.NoError(t, err)
	assert.Empty(t, transfers)
}

func TestProcessDeleteEventPropagatesWhenEnabled(t *testing.T) {
	store := newFakeSequencerStore()
	p := &Processor{Store: store, DesPrefix: "dest", PropagateDels: true}

	transfers, deletes, err := p.Process(context.Background(), []queue.ChangeNotification{
		{EventName: "ObjectRemoved:Delete", Key: "old+file.txt", Sequencer: "001"},
	})

	require.NoError(t, err)
	assert.Empty(t, transfers)
	require.Len(t, deletes, 1)
	assert.Equal(t, "dest/old file.txt", deletes[0])
}

func TestProcessDeleteEventSuppressedWhenDisabled(t *testing.T) {
	store := newFakeSequencerStore()
	p := &Processor{Store: store, DesPrefix: "dest", PropagateDels: false}

	transfers, deletes, err := p.Process(context.Background(), []queue.ChangeNotification{
		{EventName: "ObjectRemoved:Delete", Key: "file.txt", Sequencer: "001"},
	})

	require.NoError(t, err)
	assert.Empty(t, transfers)
	assert.Empty(t, deletes)
}

func TestProcessDecodesPlusAsSpace(t *testing.T) {
	key, err := decodeKey("a+b%2Bc")
	require.NoError(t, err)
	assert.Equal(t, "a b+c", key)
}
