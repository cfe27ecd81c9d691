package storageclient

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

// AliyunOSSBackend adapts the Aliyun OSS wire protocol, which differs
// from the S3-shaped backends in two ways the spec calls out: range-read
// end index is clamped to the object size client-side in GetObject
// before the Range option is built, and HEAD only reliably returns
// ContentType via GetObjectMeta (the
// richer GetObjectDetailedMeta is not used here to mirror the limited
// HEAD surface other backends expose).
type AliyunOSSBackend struct {
	bucket *oss.Bucket
	name   string
	prefix string
}

// NewAliyunOSSBackend builds a backend against the given endpoint
// (computed by the factory from region via SourceType.EndpointURL).
func NewAliyunOSSBackend(bucketName, prefix, endpoint string, creds Credentials) (*AliyunOSSBackend, error) {
	client, err := oss.New(endpoint, creds.AccessKeyID, creds.SecretAccessKey)
	if err != nil {
		return nil, fmt.Errorf("storageclient: aliyun oss client: %w", err)
	}
	bucket, err := client.Bucket(bucketName)
	if err != nil {
		return nil, fmt.Errorf("storageclient: aliyun oss bucket %s: %w", bucketName, err)
	}
	return &AliyunOSSBackend{bucket: bucket, name: bucketName, prefix: prefix}, nil
}

func (b *AliyunOSSBackend) Bucket() string { return b.name }
func (b *AliyunOSSBackend) Prefix() string { return b.prefix }

func (b *AliyunOSSBackend) fullKey(key string) string {
	if b.prefix == "" {
		return key
	}
	return b.prefix + key
}

type ossPageIterator struct {
	b       *AliyunOSSBackend
	marker  string
	done    bool
}

func (b *AliyunOSSBackend) ListObjects(ctx context.Context, includeVersion bool) (PageIterator, error) {
	// Aliyun OSS versioned listing is not wired; include_version callers
	// fall back to unversioned comparison per Open Question 3's default.
	return &ossPageIterator{b: b}, nil
}

func (it *ossPageIterator) Done() bool { return it.done }

func (it *ossPageIterator) Next(ctx context.Context) (*ObjectPage, error) {
	if it.done {
		return &ObjectPage{}, nil
	}
	res, err := it.b.bucket.ListObjects(oss.Prefix(it.b.prefix), oss.Marker(it.marker), oss.MaxKeys(1000))
	if err != nil {
		return nil, fmt.Errorf("storageclient: aliyun oss list objects: %w", err)
	}
	page := &ObjectPage{}
	for _, o := range res.Objects {
		if isUnreadableClass(o.StorageClass) {
			continue
		}
		page.Objects = append(page.Objects, ObjectInfo{
			Key:     stripPrefix(o.Key, it.b.prefix),
			Size:    o.Size,
			Version: "null",
		})
	}
	it.done = !res.IsTruncated
	it.marker = res.NextMarker
	page.Truncated = !it.done
	return page, nil
}

func (b *AliyunOSSBackend) GetObject(ctx context.Context, key string, size, start, chunkSize int64, version string) ([]byte, []byte, error) {
	var opts []oss.Option
	if chunkSize > 0 {
		end := start + chunkSize - 1
		if end >= size {
			end = size - 1
		}
		opts = append(opts, oss.Range(start, end))
	}

	rc, err := b.bucket.GetObject(b.fullKey(key), opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("storageclient: aliyun oss get object %s: %w", key, err)
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, nil, fmt.Errorf("storageclient: aliyun oss read object %s: %w", key, err)
	}
	sum := md5.Sum(body)
	return body, sum[:], nil
}

func (b *AliyunOSSBackend) HeadObject(ctx context.Context, key string) (map[string]string, error) {
	header, err := b.bucket.GetObjectMeta(b.fullKey(key))
	if err != nil {
		return nil, fmt.Errorf("storageclient: aliyun oss head object %s: %w", key, err)
	}
	meta := map[string]string{}
	if ct := header.Get("Content-Type"); ct != "" {
		meta["ContentType"] = ct
	}
	return meta, nil
}

func (b *AliyunOSSBackend) UploadObject(ctx context.Context, key string, body []byte, contentMD5Base64, storageClass string, extraMetadata map[string]string) (string, error) {
	opts := []oss.Option{oss.ContentMD5(contentMD5Base64)}
	if storageClass != "" {
		opts = append(opts, oss.ObjectStorageClass(oss.StorageClassType(storageClass)))
	}
	for k, v := range extraMetadata {
		opts = append(opts, oss.Meta(k, v))
	}

	if err := b.bucket.PutObject(b.fullKey(key), bytes.NewReader(body), opts...); err != nil {
		return "", fmt.Errorf("storageclient: aliyun oss put object %s: %w", key, err)
	}
	return b.etagOf(key)
}

func (b *AliyunOSSBackend) etagOf(key string) (string, error) {
	header, err := b.bucket.GetObjectMeta(b.fullKey(key))
	if err != nil {
		return "", fmt.Errorf("storageclient: aliyun oss fetch etag %s: %w", key, err)
	}
	return header.Get("ETag"), nil
}

func (b *AliyunOSSBackend) CreateMultipartUpload(ctx context.Context, key, storageClass string, extraMetadata map[string]string) (string, error) {
	var opts []oss.Option
	if storageClass != "" {
		opts = append(opts, oss.ObjectStorageClass(oss.StorageClassType(storageClass)))
	}
	imur, err := b.bucket.InitiateMultipartUpload(b.fullKey(key), opts...)
	if err != nil {
		return "", fmt.Errorf("storageclient: aliyun oss create multipart upload %s: %w", key, err)
	}
	return imur.UploadID, nil
}

func (b *AliyunOSSBackend) imur(key, uploadID string) oss.InitiateMultipartUploadResult {
	return oss.InitiateMultipartUploadResult{
		Bucket:   b.name,
		Key:      b.fullKey(key),
		UploadID: uploadID,
	}
}

func (b *AliyunOSSBackend) UploadPart(ctx context.Context, key string, body []byte, bodyMD5Base64 string, partNumber int32, uploadID string) error {
	_, err := b.bucket.UploadPart(b.imur(key, uploadID), bytes.NewReader(body), int64(len(body)), int(partNumber))
	if err != nil {
		return fmt.Errorf("storageclient: aliyun oss upload part %d of %s: %w", partNumber, key, err)
	}
	return nil
}

func (b *AliyunOSSBackend) CompleteMultipartUpload(ctx context.Context, key, uploadID string) (string, error) {
	parts, err := b.ListParts(ctx, key, uploadID)
	if err != nil {
		return "", err
	}
	ossParts := make([]oss.UploadPart, len(parts))
	for i, p := range parts {
		ossParts[i] = oss.UploadPart{PartNumber: int(p.PartNumber), ETag: p.ETag}
	}
	res, err := b.bucket.CompleteMultipartUpload(b.imur(key, uploadID), ossParts)
	if err != nil {
		return "", fmt.Errorf("storageclient: aliyun oss complete multipart upload %s: %w", key, err)
	}
	return res.ETag, nil
}

func (b *AliyunOSSBackend) ListParts(ctx context.Context, key, uploadID string) ([]PartInfo, error) {
	var parts []PartInfo
	marker := 0
	for {
		res, err := b.bucket.ListUploadedParts(b.imur(key, uploadID), oss.MaxUploads(1000), oss.PartNumberMarker(fmt.Sprintf("%d", marker)))
		if err != nil {
			return nil, fmt.Errorf("storageclient: aliyun oss list parts %s: %w", key, err)
		}
		for _, p := range res.UploadedParts {
			parts = append(parts, PartInfo{PartNumber: int32(p.PartNumber), ETag: p.ETag})
		}
		if !res.IsTruncated {
			break
		}
		marker++
	}
	return parts, nil
}

func (b *AliyunOSSBackend) ListMultipartUploads(ctx context.Context, prefix string, key string) ([]MultipartUploadInfo, error) {
	var uploads []MultipartUploadInfo
	res, err := b.bucket.ListMultipartUploads(oss.Prefix(b.fullKey(prefix)))
	if err != nil {
		return nil, fmt.Errorf("storageclient: aliyun oss list multipart uploads: %w", err)
	}
	for _, u := range res.Uploads {
		if key != "" && u.Key != b.fullKey(key) {
			continue
		}
		uploads = append(uploads, MultipartUploadInfo{
			Key:         stripPrefix(u.Key, b.prefix),
			UploadID:    u.UploadID,
			InitiatedAt: u.Initiated,
		})
	}
	return uploads, nil
}

func (b *AliyunOSSBackend) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	if err := b.bucket.AbortMultipartUpload(b.imur(key, uploadID)); err != nil {
		return fmt.Errorf("storageclient: aliyun oss abort multipart upload %s: %w", key, err)
	}
	return nil
}

func (b *AliyunOSSBackend) DeleteObject(ctx context.Context, key string) error {
	if err := b.bucket.DeleteObject(b.fullKey(key)); err != nil {
		return fmt.Errorf("storageclient: aliyun oss delete object %s: %w", key, err)
	}
	return nil
}
