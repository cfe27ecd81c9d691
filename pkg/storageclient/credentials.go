package storageclient

// Credentials is the normalized credential record the Factory hands to
// every backend adapter; the caller always supplies access_key_id /
// secret_access_key and the adapter renames fields to its native SDK's
// conventions internally. NoAuth requests anonymous/unsigned access,
// where the backend permits it (S3-shaped backends only).
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string
	NoAuth          bool
}

// WithRegion returns a copy of c with Region overridden.
func (c Credentials) WithRegion(region string) Credentials {
	c.Region = region
	return c
}
