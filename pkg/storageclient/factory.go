package storageclient

import (
	"context"
	"fmt"

	"objectreplicator/pkg/core"
)

// Factory builds a Client for a given SourceType, computing endpoints the
// way the original per-provider lookup table does and normalizing
// credentials into the shape each adapter expects.
type Factory struct {
	MaxRetries int
}

// NewFactory returns a Factory with the documented retry default.
func NewFactory() *Factory {
	return &Factory{MaxRetries: core.DefaultMaxAttempts}
}

// New builds a Client for sourceType against (bucket, prefix, region).
// Amazon S3 uses the AWS SDK's own endpoint resolution; the other three
// backends compute an explicit endpoint from region.
func (f *Factory) New(ctx context.Context, sourceType core.SourceType, bucket, prefix, region string, creds Credentials) (Client, error) {
	creds = creds.WithRegion(region)

	switch sourceType {
	case core.SourceAmazonS3:
		return NewS3Backend(ctx, bucket, prefix, creds, "", f.MaxRetries)
	case core.SourceTencentCOS, core.SourceQiniuKodo:
		endpoint := sourceType.EndpointURL(region)
		return NewS3Backend(ctx, bucket, prefix, creds, endpoint, f.MaxRetries)
	case core.SourceAliyunOSS:
		endpoint := sourceType.EndpointURL(region)
		return NewAliyunOSSBackend(bucket, prefix, endpoint, creds)
	default:
		return nil, fmt.Errorf("storageclient: unsupported source type %q", sourceType)
	}
}
