// Package config resolves the environment-variable surface the outer
// process wrapper reads at startup into the core's JobConfig and
// per-side storageclient.Credentials, including the SSM-backed secret
// indirection and the GET/PUT credential-side swap.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"objectreplicator/pkg/core"
	"objectreplicator/pkg/storageclient"
)

// Settings is the fully-resolved configuration for one process
// invocation, covering both job-sender and worker modes.
type Settings struct {
	JobTableName  string
	EventTable    string
	QueueName     string
	SrcBucket     string
	SrcPrefix     string
	DesBucket     string
	DesPrefix     string
	JobType       core.JobType
	SourceType    core.SourceType
	Region        string
	StorageClass  string
	IncludeVersion bool
	Job           core.JobConfig

	SourceCreds storageclient.Credentials
	DestCreds   storageclient.Credentials

	AutoCreateDestBucket bool
	AugmentDestVersions  bool
}

// Load reads the documented environment variables, resolves the
// SSM_PARAMETER_CREDENTIALS secret when set, and applies the GET/PUT
// credential-side swap (SUPPLEMENTED FEATURE 2).
func Load(ctx context.Context) (Settings, error) {
	s := Settings{
		JobTableName:   firstNonEmpty(os.Getenv("TABLE_QUEUE_NAME"), os.Getenv("JOB_TABLE_NAME")),
		EventTable:     os.Getenv("EVENT_TABLE_NAME"),
		QueueName:      os.Getenv("SQS_QUEUE_NAME"),
		SrcBucket:      os.Getenv("SRC_BUCKET_NAME"),
		SrcPrefix:      os.Getenv("SRC_BUCKET_PREFIX"),
		DesBucket:      os.Getenv("DEST_BUCKET_NAME"),
		DesPrefix:      os.Getenv("DEST_BUCKET_PREFIX"),
		JobType:        core.JobType(envOr("JOB_TYPE", string(core.JobTypeGet))),
		SourceType:     core.SourceType(os.Getenv("SOURCE_TYPE")),
		Region:         os.Getenv("REGION_NAME"),
		StorageClass:   os.Getenv("STORAGE_CLASS"),
		IncludeVersion: envBool("INCLUDE_VERSION", false),
		AutoCreateDestBucket: envBool("AUTO_CREATE_DEST_BUCKET", false),
		AugmentDestVersions:  envBool("AUGMENT_DEST_VERSIONS", false),
	}

	s.Job = core.DefaultJobConfig()
	s.Job.IncludeVersion = s.IncludeVersion
	if v, ok := envMiB("MULTIPART_THRESHOLD"); ok {
		s.Job.MultipartThreshold = v
	}
	if v, ok := envMiB("CHUNK_SIZE"); ok {
		s.Job.ChunkSize = v
	}
	if v, ok := envInt("MAX_THREADS"); ok {
		s.Job.MaxThreads = v
	}
	if v, ok := envInt("MAX_RETRY"); ok {
		s.Job.MaxRetries = v
	}
	if v, ok := envInt("JOB_TIMEOUT"); ok {
		s.Job.JobTimeout = time.Duration(v) * time.Second
	}

	creds, noAuth, err := resolveCredentials(ctx, s.Region)
	if err != nil {
		return Settings{}, fmt.Errorf("config: resolve credentials: %w", err)
	}
	creds.NoAuth = noAuth

	// SUPPLEMENTED FEATURE 2: JOB_TYPE decides which side owns the
	// resolved credentials and region; the other side falls back to the
	// process's ambient default credential chain.
	ambient := storageclient.Credentials{Region: s.Region}
	switch s.JobType {
	case core.JobTypePut:
		s.SourceCreds = ambient
		s.DestCreds = creds
	default:
		s.SourceCreds = creds
		s.DestCreds = ambient
	}

	return s, nil
}

// resolveCredentials implements SUPPLEMENTED FEATURE 1: when
// SSM_PARAMETER_CREDENTIALS is unset, the process runs in no_auth mode
// against whichever backend permits anonymous access.
func resolveCredentials(ctx context.Context, region string) (storageclient.Credentials, bool, error) {
	paramName := os.Getenv("SSM_PARAMETER_CREDENTIALS")
	if paramName == "" {
		return storageclient.Credentials{Region: region}, true, nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return storageclient.Credentials{}, false, fmt.Errorf("load aws config for ssm: %w", err)
	}
	client := ssm.NewFromConfig(cfg)

	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(paramName),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return storageclient.Credentials{}, false, fmt.Errorf("get ssm parameter %s: %w", paramName, err)
	}

	var payload struct {
		AccessKeyID     string `json:"access_key_id"`
		SecretAccessKey string `json:"secret_access_key"`
		RegionName      string `json:"region_name"`
	}
	if err := json.Unmarshal([]byte(aws.ToString(out.Parameter.Value)), &payload); err != nil {
		return storageclient.Credentials{}, false, fmt.Errorf("decode ssm parameter %s: %w", paramName, err)
	}

	resolvedRegion := region
	if payload.RegionName != "" {
		resolvedRegion = payload.RegionName
	}
	return storageclient.Credentials{
		AccessKeyID:     payload.AccessKeyID,
		SecretAccessKey: payload.SecretAccessKey,
		Region:          resolvedRegion,
	}, false, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envMiB(key string) (int64, bool) {
	n, ok := envInt(key)
	if !ok {
		return 0, false
	}
	return int64(n) * 1024 * 1024, true
}
