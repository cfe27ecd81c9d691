package transfer

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"objectreplicator/pkg/storageclient"
)

func md5Sum(b []byte) []byte {
	sum := md5.Sum(b)
	return sum[:]
}

func TestCompositeETagMatchesUpstreamConvention(t *testing.T) {
	part1 := md5Sum([]byte("hello "))
	part2 := md5Sum([]byte("world"))

	got := compositeETag([][]byte{part1, part2})

	concat := append(append([]byte{}, part1...), part2...)
	want := fmt.Sprintf("%q", fmt.Sprintf("%x-2", md5Sum(concat)))
	assert.Equal(t, want, got)
}

func TestCompositeETagSinglePart(t *testing.T) {
	part := md5Sum([]byte("only part"))
	got := compositeETag([][]byte{part})
	want := fmt.Sprintf("%q", fmt.Sprintf("%x-1", md5Sum(part)))
	assert.Equal(t, want, got)
}

// fakeBackend implements both DownloadCapability and UploadCapability
// against a single in-memory object, for exercising Pool.Run end to
// end without a real network call.
type fakeBackend struct {
	mu       sync.Mutex
	body     map[int64][]byte
	uploaded map[int32][]byte
	failFrom int32 // if > 0, UploadPart fails for this part number once
	failed   map[int32]bool
	downloads int
}

func (f *fakeBackend) GetObject(ctx context.Context, key string, size, start, chunkSize int64, version string) ([]byte, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads++
	b := f.body[start]
	sum := md5Sum(b)
	return append([]byte{}, b...), sum, nil
}

func (f *fakeBackend) HeadObject(ctx context.Context, key string) (map[string]string, error) {
	return nil, nil
}

func (f *fakeBackend) ListObjects(ctx context.Context, includeVersion bool) (storageclient.PageIterator, error) {
	return nil, fmt.Errorf("not implemented in fakeBackend")
}

func (f *fakeBackend) UploadObject(ctx context.Context, key string, body []byte, contentMD5Base64, storageClass string, extraMetadata map[string]string) (string, error) {
	return "", fmt.Errorf("not implemented in fakeBackend")
}

func (f *fakeBackend) CreateMultipartUpload(ctx context.Context, key, storageClass string, extraMetadata map[string]string) (string, error) {
	return "upload-1", nil
}

func (f *fakeBackend) CompleteMultipartUpload(ctx context.Context, key, uploadID string) (string, error) {
	return "", fmt.Errorf("not implemented in fakeBackend")
}

func (f *fakeBackend) ListParts(ctx context.Context, key, uploadID string) ([]storageclient.PartInfo, error) {
	return nil, nil
}

func (f *fakeBackend) ListMultipartUploads(ctx context.Context, prefix, key string) ([]storageclient.MultipartUploadInfo, error) {
	return nil, nil
}

func (f *fakeBackend) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	return nil
}

func (f *fakeBackend) DeleteObject(ctx context.Context, key string) error {
	return nil
}

func (f *fakeBackend) UploadPart(ctx context.Context, key string, body []byte, bodyMD5Base64 string, partNumber int32, uploadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFrom == partNumber && !f.failed[partNumber] {
		f.failed[partNumber] = true
		return fmt.Errorf("injected failure for part %d", partNumber)
	}
	if f.uploaded == nil {
		f.uploaded = map[int32][]byte{}
	}
	f.uploaded[partNumber] = append([]byte{}, body...)
	return nil
}

func TestPoolRunUploadsEveryPartAndComputesCompositeETag(t *testing.T) {
	partA := []byte("aaaaaaaaaa")
	partB := []byte("bbbbbbbbbb")
	backend := &fakeBackend{
		body:   map[int64][]byte{0: partA, 10: partB},
		failed: map[int32]bool{},
	}

	p := &Pool{
		Source:     backend,
		Dest:       backend,
		MaxThreads: 2,
		ChunkSize:  10,
		MaxRetries: 3,
		JobTimeout: time.Second,
	}

	plan := []PlanEntry{
		{PartNumber: 1, StartIndex: 0},
		{PartNumber: 2, StartIndex: 10},
	}
	etag, outcome, err := p.Run(context.Background(), "upload-1", plan, 2, Job{Key: "obj", Size: 20})

	require.NoError(t, err)
	assert.Equal(t, "COMPLETE", string(outcome))
	assert.NotEmpty(t, etag)
	assert.Equal(t, partA, backend.uploaded[1])
	assert.Equal(t, partB, backend.uploaded[2])

	wantETag := fmt.Sprintf("%q", fmt.Sprintf("%x-2", md5Sum(append(append([]byte{}, md5Sum(partA)...), md5Sum(partB)...))))
	assert.Equal(t, wantETag, etag)
}

func TestPoolRunRetriesThenSucceeds(t *testing.T) {
	partA := []byte("aaaaaaaaaa")
	backend := &fakeBackend{
		body:     map[int64][]byte{0: partA},
		failFrom: 1,
		failed:   map[int32]bool{},
	}

	p := &Pool{
		Source:     backend,
		Dest:       backend,
		MaxThreads: 1,
		ChunkSize:  10,
		MaxRetries: 3,
		JobTimeout: 10 * time.Second,
	}

	plan := []PlanEntry{{PartNumber: 1, StartIndex: 0}}
	_, outcome, err := p.Run(context.Background(), "upload-1", plan, 1, Job{Key: "obj", Size: 10})

	require.NoError(t, err)
	assert.Equal(t, "COMPLETE", string(outcome))
	assert.Equal(t, partA, backend.uploaded[1])
}

func TestPoolRunDryrunPartSkipsDownload(t *testing.T) {
	backend := &fakeBackend{body: map[int64][]byte{}, failed: map[int32]bool{}}
	p := &Pool{
		Source:     backend,
		Dest:       backend,
		MaxThreads: 1,
		ChunkSize:  10,
		MaxRetries: 1,
		JobTimeout: time.Second,
	}

	plan := []PlanEntry{{PartNumber: 1, StartIndex: 0, Dryrun: true}}
	_, outcome, err := p.Run(context.Background(), "upload-1", plan, 1, Job{Key: "obj", Size: 10})

	require.NoError(t, err)
	assert.Equal(t, "COMPLETE", string(outcome))
	_, wasUploaded := backend.uploaded[1]
	assert.False(t, wasUploaded)
	assert.Equal(t, 0, backend.downloads)
}

func TestPoolRunDryrunPartWithVerifyMD5TwiceDoesNotReupload(t *testing.T) {
	partA := []byte("aaaaaaaaaa")
	backend := &fakeBackend{body: map[int64][]byte{0: partA}, failed: map[int32]bool{}}
	p := &Pool{
		Source:         backend,
		Dest:           backend,
		MaxThreads:     1,
		ChunkSize:      10,
		MaxRetries:     1,
		JobTimeout:     time.Second,
		VerifyMD5Twice: true,
	}

	plan := []PlanEntry{{PartNumber: 1, StartIndex: 0, Dryrun: true}}
	etag, outcome, err := p.Run(context.Background(), "upload-1", plan, 1, Job{Key: "obj", Size: 10})

	require.NoError(t, err)
	assert.Equal(t, "COMPLETE", string(outcome))
	_, wasUploaded := backend.uploaded[1]
	assert.False(t, wasUploaded, "dryrun part must never be re-uploaded even when verifying MD5 twice")

	wantETag := fmt.Sprintf("%q", fmt.Sprintf("%x-1", md5Sum(md5Sum(partA))))
	assert.Equal(t, wantETag, etag)
}

func TestCompositeETagPlaceholdersForUndownloadedDryrunParts(t *testing.T) {
	empty := md5Sum(nil)
	part2 := md5Sum([]byte("world"))
	md5List := make([][]byte, 2)
	md5List[0] = empty
	md5List[1] = part2

	got := compositeETag(md5List)
	concat := append(append([]byte{}, empty...), part2...)
	want := fmt.Sprintf("%q", fmt.Sprintf("%x-2", md5Sum(concat)))
	assert.Equal(t, want, got)
}

func TestBase64MD5Roundtrip(t *testing.T) {
	digest := md5Sum([]byte("content"))
	decoded, err := base64.StdEncoding.DecodeString(base64.StdEncoding.EncodeToString(digest))
	require.NoError(t, err)
	assert.Equal(t, digest, decoded)
}
