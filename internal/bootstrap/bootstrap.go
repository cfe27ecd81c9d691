// Package bootstrap wires the Settings resolved by pkg/config into the
// concrete StorageClient, StateStore, Queue, and Migrator/Sender
// instances each cmd/ entry point needs, so the three entry points
// (job-sender, worker, admin server) don't each re-derive the same
// construction logic.
package bootstrap

import (
	"context"
	"fmt"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"objectreplicator/pkg/config"
	"objectreplicator/pkg/core"
	"objectreplicator/pkg/delta"
	"objectreplicator/pkg/jobsender"
	"objectreplicator/pkg/logging"
	"objectreplicator/pkg/migrator"
	"objectreplicator/pkg/queue"
	"objectreplicator/pkg/state"
	"objectreplicator/pkg/storageclient"
	"objectreplicator/pkg/storageclient/googledrive"
)

// Env bundles everything built from Settings.
type Env struct {
	Settings config.Settings
	Source   storageclient.SourceClient
	Dest     storageclient.Client
	Store    state.Store
	Queue    queue.Queue
}

// Build resolves Settings and constructs every dependency an entry
// point might need. Callers use the subset relevant to their mode.
func Build(ctx context.Context) (*Env, error) {
	settings, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load settings: %w", err)
	}

	// Exactly one side is ever SOURCE_TYPE; the other is always Amazon S3.
	// JOB_TYPE=GET pulls from SOURCE_TYPE into S3 (source=SOURCE_TYPE,
	// dest=S3); JOB_TYPE=PUT pushes the opposite direction.
	sourceType, destType := core.SourceAmazonS3, settings.SourceType
	if settings.JobType == core.JobTypeGet {
		sourceType, destType = settings.SourceType, core.SourceAmazonS3
	}

	factory := storageclient.NewFactory()
	source, err := buildSource(ctx, factory, sourceType, settings)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: build source client: %w", err)
	}
	if destType == core.SourceGoogleDrive {
		return nil, fmt.Errorf("bootstrap: %s cannot be a replication destination (read-only source)", core.SourceGoogleDrive)
	}
	dest, err := factory.New(ctx, destType, settings.DesBucket, settings.DesPrefix, settings.Region, settings.DestCreds)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: build destination client: %w", err)
	}
	if ensurer, ok := dest.(storageclient.BucketEnsurer); ok {
		if err := ensurer.EnsureBucketExists(ctx, settings.Region, settings.AutoCreateDestBucket); err != nil {
			return nil, fmt.Errorf("bootstrap: destination bucket: %w", err)
		}
	}

	store, err := buildStore(ctx, settings)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: build state store: %w", err)
	}

	q, err := buildQueue(ctx, settings)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: build queue: %w", err)
	}

	return &Env{Settings: settings, Source: source, Dest: dest, Store: store, Queue: q}, nil
}

// buildSource builds the source client, special-casing Google Drive
// (an enrichment beyond the four SOURCE_TYPE backends spec.md
// enumerates) since it only satisfies SourceClient, not the full
// bidirectional Client the Factory returns.
func buildSource(ctx context.Context, factory *storageclient.Factory, sourceType core.SourceType, s config.Settings) (storageclient.SourceClient, error) {
	if sourceType != core.SourceGoogleDrive {
		return factory.New(ctx, sourceType, s.SrcBucket, s.SrcPrefix, s.Region, s.SourceCreds)
	}

	cfg := googledrive.OAuthConfig{
		ClientID:     os.Getenv("GOOGLE_DRIVE_CLIENT_ID"),
		ClientSecret: os.Getenv("GOOGLE_DRIVE_CLIENT_SECRET"),
		RefreshToken: os.Getenv("GOOGLE_DRIVE_REFRESH_TOKEN"),
	}
	rootFolderID := os.Getenv("GOOGLE_DRIVE_ROOT_FOLDER_ID")
	return googledrive.NewBackend(ctx, cfg, rootFolderID, s.SrcPrefix)
}

func buildStore(ctx context.Context, s config.Settings) (state.Store, error) {
	if s.JobTableName != "" {
		cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(s.Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := dynamodb.NewFromConfig(cfg)
		return state.NewDynamoStore(ctx, client, s.JobTableName, s.EventTable), nil
	}

	connStr := os.Getenv("DB_CONNECTION_STRING")
	if connStr == "" {
		return nil, fmt.Errorf("neither JOB_TABLE_NAME nor DB_CONNECTION_STRING is set")
	}
	return state.NewSQLStore(connStr)
}

func buildQueue(ctx context.Context, s config.Settings) (queue.Queue, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(s.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := sqs.NewFromConfig(cfg)
	return queue.NewSQSQueue(ctx, client, s.QueueName)
}

// NewSender builds a jobsender.Sender from env, for the job-sender
// entry point.
func NewSender(env *Env) *jobsender.Sender {
	finder := &delta.Finder{
		Source:         env.Source,
		Destination:    env.Dest,
		IncludeVersion: env.Settings.IncludeVersion,
	}

	// AUGMENT_DEST_VERSIONS opts into Open Question 3 option (b): only
	// meaningful alongside INCLUDE_VERSION, and only when the configured
	// StateStore actually exposes the desBucket-index query.
	if env.Settings.IncludeVersion && env.Settings.AugmentDestVersions {
		if vp, ok := env.Store.(delta.VersionProvider); ok {
			finder.VersionProvider = vp
			finder.DesBucket = env.Settings.DesBucket
		} else {
			logging.Warn("AUGMENT_DEST_VERSIONS set but the configured state store does not support VersionsByDestBucket; falling back to (key,size) comparison")
		}
	}

	return &jobsender.Sender{Finder: finder, Queue: env.Queue}
}

// NewMigrator builds a migrator.Migrator from env, for the worker
// entry point.
func NewMigrator(env *Env) *migrator.Migrator {
	return &migrator.Migrator{
		Source:    env.Source,
		Dest:      env.Dest,
		Config:    env.Settings.Job,
		Store:     env.Store,
		SrcBucket: env.Settings.SrcBucket,
		DesBucket: env.Settings.DesBucket,
	}
}
