// Package storageclient adapts the engine's two capability sets
// (download, upload) onto concrete object-store backends: the S3-shaped
// API (also covers Tencent COS and Qiniu Kodo by endpoint override) and
// Aliyun OSS.
package storageclient

import "context"

// ObjectPage is one page of a listing. Objects in GLACIER or
// DEEP_ARCHIVE storage classes are never present — they cannot be read.
type ObjectPage struct {
	Objects     []ObjectInfo
	Truncated   bool
	NextToken   string
}

// ObjectInfo is one entry of a list_objects page.
type ObjectInfo struct {
	Key     string
	Size    int64
	Version string // "null" when unversioned or include_version is false
}

// MultipartUploadInfo describes one in-progress multipart upload as
// returned by list_multipart_uploads.
type MultipartUploadInfo struct {
	Key          string
	UploadID     string
	InitiatedAt  string
}

// PartInfo describes one already-uploaded part as returned by list_parts.
type PartInfo struct {
	PartNumber int32
	ETag       string
}

// DownloadCapability is implemented by every source-side backend.
type DownloadCapability interface {
	// ListObjects returns a lazy, restartable paged sequence of objects
	// under the client's (bucket, prefix). When includeVersion is true,
	// only the latest non-delete-marker version of each key is yielded.
	ListObjects(ctx context.Context, includeVersion bool) (PageIterator, error)

	// GetObject reads the whole object when chunkSize == 0, otherwise the
	// byte range [start, start+chunkSize) clamped to size. Returns the
	// body and an MD5 digest of that body.
	GetObject(ctx context.Context, key string, size, start, chunkSize int64, version string) (body []byte, md5Digest []byte, err error)

	// HeadObject returns the recognized metadata attributes for key.
	// Attributes unsupported by the backend are simply absent from the
	// returned map.
	HeadObject(ctx context.Context, key string) (map[string]string, error)
}

// PageIterator walks a lazy listing one page at a time.
type PageIterator interface {
	Next(ctx context.Context) (*ObjectPage, error)
	Done() bool
}

// UploadCapability is implemented by every destination-side backend.
type UploadCapability interface {
	UploadObject(ctx context.Context, key string, body []byte, contentMD5Base64, storageClass string, extraMetadata map[string]string) (etag string, err error)

	CreateMultipartUpload(ctx context.Context, key, storageClass string, extraMetadata map[string]string) (uploadID string, err error)
	UploadPart(ctx context.Context, key string, body []byte, bodyMD5Base64 string, partNumber int32, uploadID string) error
	CompleteMultipartUpload(ctx context.Context, key, uploadID string) (etag string, err error)
	ListParts(ctx context.Context, key, uploadID string) ([]PartInfo, error)
	ListMultipartUploads(ctx context.Context, prefix string, key string) ([]MultipartUploadInfo, error)
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error
	DeleteObject(ctx context.Context, key string) error
}

// Client bundles both capability sets against one (bucket, prefix).
type Client interface {
	DownloadCapability
	UploadCapability
	Bucket() string
	Prefix() string
}

// SourceClient is the read-side subset of Client a migration source
// needs: DownloadCapability plus the source-key prefix. Narrower
// than Client so a read-only backend (Google Drive) can serve as a
// migration source without also implementing UploadCapability.
type SourceClient interface {
	DownloadCapability
	Prefix() string
}

// BucketEnsurer is implemented by backends that can check for, and
// optionally create, their own bucket before a run starts. Not every
// backend supports bucket creation through the same API its object
// operations use (Aliyun OSS, for one, manages buckets through a
// separate client type) so this is an optional capability, checked
// with a type assertion rather than folded into Client.
type BucketEnsurer interface {
	EnsureBucketExists(ctx context.Context, region string, createIfMissing bool) error
}
