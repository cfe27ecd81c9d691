package storageclient

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"objectreplicator/pkg/logging"
)

// S3Backend implements Client against any S3-shaped API: Amazon S3
// itself, and Tencent COS / Qiniu Kodo by supplying their endpoint via
// EndpointURL. Range requests cover [start, start+chunkSize) and are sent
// as the inclusive AWS Range header "bytes=start-end"; GetObject clamps
// end to size-1 before sending it.
type S3Backend struct {
	client      *s3.Client
	bucket      string
	prefix      string
	maxKeys     int32
}

// NewS3Backend builds an S3-shaped backend. endpointURL is "" for real
// Amazon S3; for Tencent COS / Qiniu Kodo pass SourceType.EndpointURL.
func NewS3Backend(ctx context.Context, bucket, prefix string, creds Credentials, endpointURL string, maxRetries int) (*S3Backend, error) {
	region := creds.Region
	if region == "" {
		region = "us-east-1"
	}

	var httpClient *http.Client
	if endpointURL != "" {
		httpClient = &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithRetryMaxAttempts(maxRetries),
	}
	switch {
	case creds.NoAuth:
		opts = append(opts, awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}))
	case creds.AccessKeyID != "":
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken)))
	}
	if httpClient != nil {
		opts = append(opts, awsconfig.WithHTTPClient(httpClient))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storageclient: load aws config: %w", err)
	}

	clientOpts := []func(*s3.Options){
		func(o *s3.Options) { o.RetryMaxAttempts = maxRetries },
	}
	if endpointURL != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpointURL)
			o.UsePathStyle = true
		})
	}

	return &S3Backend{
		client:  s3.NewFromConfig(awsCfg, clientOpts...),
		bucket:  bucket,
		prefix:  prefix,
		maxKeys: 1000,
	}, nil
}

func (b *S3Backend) Bucket() string { return b.bucket }
func (b *S3Backend) Prefix() string { return b.prefix }

// s3PageIterator walks either ListObjectsV2 or ListObjectVersions.
type s3PageIterator struct {
	b              *S3Backend
	includeVersion bool
	token          string
	versionToken   string
	keyMarker      string
	done           bool
}

func (b *S3Backend) ListObjects(ctx context.Context, includeVersion bool) (PageIterator, error) {
	return &s3PageIterator{b: b, includeVersion: includeVersion}, nil
}

func (it *s3PageIterator) Done() bool { return it.done }

func (it *s3PageIterator) Next(ctx context.Context) (*ObjectPage, error) {
	if it.done {
		return &ObjectPage{}, nil
	}
	b := it.b
	if it.includeVersion {
		out, err := b.client.ListObjectVersions(ctx, &s3.ListObjectVersionsInput{
			Bucket:          aws.String(b.bucket),
			Prefix:          aws.String(b.prefix),
			MaxKeys:         aws.Int32(b.maxKeys),
			KeyMarker:       nilIfEmpty(it.keyMarker),
			VersionIdMarker: nilIfEmpty(it.versionToken),
		})
		if err != nil {
			return nil, fmt.Errorf("storageclient: list object versions: %w", err)
		}
		page := &ObjectPage{}
		for _, v := range out.Versions {
			if !aws.ToBool(v.IsLatest) {
				continue
			}
			if isUnreadableClass(string(v.StorageClass)) {
				continue
			}
			page.Objects = append(page.Objects, ObjectInfo{
				Key:     stripPrefix(aws.ToString(v.Key), b.prefix),
				Size:    aws.ToInt64(v.Size),
				Version: aws.ToString(v.VersionId),
			})
		}
		it.done = !aws.ToBool(out.IsTruncated)
		it.keyMarker = aws.ToString(out.NextKeyMarker)
		it.versionToken = aws.ToString(out.NextVersionIdMarker)
		page.Truncated = !it.done
		return page, nil
	}

	out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:            aws.String(b.bucket),
		Prefix:            aws.String(b.prefix),
		MaxKeys:           aws.Int32(b.maxKeys),
		ContinuationToken: nilIfEmpty(it.token),
	})
	if err != nil {
		return nil, fmt.Errorf("storageclient: list objects: %w", err)
	}
	page := &ObjectPage{}
	for _, o := range out.Contents {
		if isUnreadableClass(string(o.StorageClass)) {
			continue
		}
		page.Objects = append(page.Objects, ObjectInfo{
			Key:     stripPrefix(aws.ToString(o.Key), b.prefix),
			Size:    aws.ToInt64(o.Size),
			Version: "null",
		})
	}
	it.done = !aws.ToBool(out.IsTruncated)
	it.token = aws.ToString(out.NextContinuationToken)
	page.Truncated = !it.done
	return page, nil
}

func isUnreadableClass(sc string) bool {
	return sc == string(types.StorageClassGlacier) || sc == string(types.StorageClassDeepArchive)
}

func stripPrefix(key, prefix string) string {
	if prefix == "" {
		return key
	}
	if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
		return key[len(prefix):]
	}
	return key
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}

func (b *S3Backend) fullKey(key string) string {
	if b.prefix == "" {
		return key
	}
	return b.prefix + key
}

func (b *S3Backend) GetObject(ctx context.Context, key string, size, start, chunkSize int64, version string) ([]byte, []byte, error) {
	in := &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.fullKey(key)),
	}
	if version != "" && version != "null" {
		in.VersionId = aws.String(version)
	}
	if chunkSize > 0 {
		end := start + chunkSize - 1
		if end >= size {
			end = size - 1
		}
		in.Range = aws.String(fmt.Sprintf("bytes=%d-%d", start, end))
	}

	out, err := b.client.GetObject(ctx, in)
	if err != nil {
		return nil, nil, fmt.Errorf("storageclient: get object %s: %w", key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("storageclient: read object %s: %w", key, err)
	}
	sum := md5.Sum(body)
	return body, sum[:], nil
}

func (b *S3Backend) HeadObject(ctx context.Context, key string) (map[string]string, error) {
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.fullKey(key)),
	})
	if err != nil {
		return nil, fmt.Errorf("storageclient: head object %s: %w", key, err)
	}
	meta := map[string]string{}
	setIf(meta, "ETag", aws.ToString(out.ETag))
	setIf(meta, "ContentType", aws.ToString(out.ContentType))
	setIf(meta, "ContentDisposition", aws.ToString(out.ContentDisposition))
	setIf(meta, "ContentLanguage", aws.ToString(out.ContentLanguage))
	setIf(meta, "ContentEncoding", aws.ToString(out.ContentEncoding))
	setIf(meta, "CacheControl", aws.ToString(out.CacheControl))
	if out.Expires != nil {
		setIf(meta, "Expires", out.Expires.String())
	}
	setIf(meta, "WebsiteRedirectLocation", aws.ToString(out.WebsiteRedirectLocation))
	for k, v := range out.Metadata {
		meta["x-amz-meta-"+k] = v
	}
	return meta, nil
}

func setIf(m map[string]string, k, v string) {
	if v != "" {
		m[k] = v
	}
}

func (b *S3Backend) UploadObject(ctx context.Context, key string, body []byte, contentMD5Base64, storageClass string, extraMetadata map[string]string) (string, error) {
	in := &s3.PutObjectInput{
		Bucket:       aws.String(b.bucket),
		Key:          aws.String(b.fullKey(key)),
		Body:         bytes.NewReader(body),
		ContentMD5:   aws.String(contentMD5Base64),
		StorageClass: types.StorageClass(storageClass),
	}
	applyExtraMetadata(in, extraMetadata)

	out, err := b.client.PutObject(ctx, in)
	if err != nil {
		return "", fmt.Errorf("storageclient: put object %s: %w", key, err)
	}
	return aws.ToString(out.ETag), nil
}

func applyExtraMetadata(in *s3.PutObjectInput, extra map[string]string) {
	if v, ok := extra["ContentType"]; ok {
		in.ContentType = aws.String(v)
	}
	if v, ok := extra["ContentDisposition"]; ok {
		in.ContentDisposition = aws.String(v)
	}
	if v, ok := extra["ContentLanguage"]; ok {
		in.ContentLanguage = aws.String(v)
	}
	if v, ok := extra["ContentEncoding"]; ok {
		in.ContentEncoding = aws.String(v)
	}
	if v, ok := extra["CacheControl"]; ok {
		in.CacheControl = aws.String(v)
	}
	if v, ok := extra["WebsiteRedirectLocation"]; ok {
		in.WebsiteRedirectLocation = aws.String(v)
	}
}

func (b *S3Backend) CreateMultipartUpload(ctx context.Context, key, storageClass string, extraMetadata map[string]string) (string, error) {
	out, err := b.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:       aws.String(b.bucket),
		Key:          aws.String(b.fullKey(key)),
		StorageClass: types.StorageClass(storageClass),
	})
	if err != nil {
		return "", fmt.Errorf("storageclient: create multipart upload %s: %w", key, err)
	}
	return aws.ToString(out.UploadId), nil
}

func (b *S3Backend) UploadPart(ctx context.Context, key string, body []byte, bodyMD5Base64 string, partNumber int32, uploadID string) error {
	_, err := b.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(b.bucket),
		Key:        aws.String(b.fullKey(key)),
		Body:       bytes.NewReader(body),
		ContentMD5: aws.String(bodyMD5Base64),
		PartNumber: aws.Int32(partNumber),
		UploadId:   aws.String(uploadID),
	})
	if err != nil {
		return fmt.Errorf("storageclient: upload part %d of %s: %w", partNumber, key, err)
	}
	return nil
}

func (b *S3Backend) CompleteMultipartUpload(ctx context.Context, key, uploadID string) (string, error) {
	parts, err := b.ListParts(ctx, key, uploadID)
	if err != nil {
		return "", err
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })

	completed := make([]types.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = types.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(p.PartNumber),
		}
	}

	out, err := b.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(b.bucket),
		Key:      aws.String(b.fullKey(key)),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		return "", fmt.Errorf("storageclient: complete multipart upload %s: %w", key, err)
	}
	return aws.ToString(out.ETag), nil
}

func (b *S3Backend) ListParts(ctx context.Context, key, uploadID string) ([]PartInfo, error) {
	var parts []PartInfo
	var marker *int32
	for {
		out, err := b.client.ListParts(ctx, &s3.ListPartsInput{
			Bucket:           aws.String(b.bucket),
			Key:              aws.String(b.fullKey(key)),
			UploadId:         aws.String(uploadID),
			PartNumberMarker: marker,
		})
		if err != nil {
			return nil, fmt.Errorf("storageclient: list parts %s: %w", key, err)
		}
		for _, p := range out.Parts {
			parts = append(parts, PartInfo{PartNumber: aws.ToInt32(p.PartNumber), ETag: aws.ToString(p.ETag)})
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		marker = out.NextPartNumberMarker
	}
	return parts, nil
}

func (b *S3Backend) ListMultipartUploads(ctx context.Context, prefix string, key string) ([]MultipartUploadInfo, error) {
	var uploads []MultipartUploadInfo
	var keyMarker, uploadIDMarker *string
	for {
		out, err := b.client.ListMultipartUploads(ctx, &s3.ListMultipartUploadsInput{
			Bucket:         aws.String(b.bucket),
			Prefix:         aws.String(b.fullKey(prefix)),
			KeyMarker:      keyMarker,
			UploadIdMarker: uploadIDMarker,
		})
		if err != nil {
			return nil, fmt.Errorf("storageclient: list multipart uploads: %w", err)
		}
		for _, u := range out.Uploads {
			if key != "" && aws.ToString(u.Key) != b.fullKey(key) {
				continue
			}
			uploads = append(uploads, MultipartUploadInfo{
				Key:         stripPrefix(aws.ToString(u.Key), b.prefix),
				UploadID:    aws.ToString(u.UploadId),
				InitiatedAt: u.Initiated.String(),
			})
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		keyMarker = out.NextKeyMarker
		uploadIDMarker = out.NextUploadIdMarker
	}
	return uploads, nil
}

func (b *S3Backend) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	_, err := b.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(b.bucket),
		Key:      aws.String(b.fullKey(key)),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return fmt.Errorf("storageclient: abort multipart upload %s: %w", key, err)
	}
	return nil
}

// EnsureBucketExists checks for the backend's own bucket and, when
// createIfMissing is set, creates it. Used once at startup so a
// misconfigured destination bucket fails fast instead of erroring out
// on the first upload.
func (b *S3Backend) EnsureBucketExists(ctx context.Context, region string, createIfMissing bool) error {
	exists, err := b.bucketExists(ctx)
	if err != nil {
		return fmt.Errorf("storageclient: check bucket %s: %w", b.bucket, err)
	}
	if exists {
		return nil
	}
	if !createIfMissing {
		return fmt.Errorf("storageclient: bucket %s does not exist", b.bucket)
	}
	return b.createBucket(ctx, region)
}

func (b *S3Backend) bucketExists(ctx context.Context) (bool, error) {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)})
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "NotFound") || strings.Contains(msg, "NoSuchBucket") || strings.Contains(msg, "404") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *S3Backend) createBucket(ctx context.Context, region string) error {
	in := &s3.CreateBucketInput{Bucket: aws.String(b.bucket)}
	if region != "" && region != "us-east-1" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}
	if _, err := b.client.CreateBucket(ctx, in); err != nil {
		return fmt.Errorf("storageclient: create bucket %s: %w", b.bucket, err)
	}
	logging.OK("Created destination bucket: %s", b.bucket)
	return nil
}

func (b *S3Backend) DeleteObject(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.fullKey(key)),
	})
	if err != nil {
		return fmt.Errorf("storageclient: delete object %s: %w", key, err)
	}
	return nil
}

// base64MD5 is a small helper shared by callers that compute content-md5
// headers from a raw digest.
func base64MD5(digest []byte) string {
	return base64.StdEncoding.EncodeToString(digest)
}
