// Package migrator implements the per-object orchestrator: small-file
// vs multipart path selection, resume, and StateStore bookkeeping.
package migrator

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"strings"

	"objectreplicator/pkg/core"
	"objectreplicator/pkg/logging"
	"objectreplicator/pkg/state"
	"objectreplicator/pkg/storageclient"
	"objectreplicator/pkg/transfer"
)

// Migrator ties together a source/destination StorageClient pair, a
// JobConfig, and a StateStore handle.
type Migrator struct {
	Source    storageclient.SourceClient
	Dest      storageclient.Client
	Config    core.JobConfig
	Store     state.Store
	SrcBucket string
	DesBucket string
}

// Migrate runs the full per-object pipeline for job: optional HEAD,
// job-start bookkeeping, path dispatch, job-end bookkeeping.
func (m *Migrator) Migrate(ctx context.Context, job core.JobInfo) error {
	extraArgs := map[string]string{}
	if m.Config.IncludeMetadata {
		meta, err := m.Source.HeadObject(ctx, job.Key)
		if err != nil {
			return fmt.Errorf("migrator: head source %s: %w", job.Key, err)
		}
		extraArgs = meta
	}

	if err := m.Store.LogJobStart(ctx, m.SrcBucket, m.Source.Prefix(), m.DesBucket, m.Dest.Prefix(), job, extraArgs); err != nil {
		logging.Warn("migrator: log job start failed for %s, proceeding anyway: %v", job.Key, err)
	}

	var etag string
	var migrateErr error
	if job.Size <= m.Config.MultipartThreshold {
		etag, migrateErr = m.migrateSmall(ctx, job, extraArgs)
	} else {
		etag, migrateErr = m.migrateMultipart(ctx, job, extraArgs)
	}

	errString := ""
	if migrateErr != nil {
		errString = migrateErr.Error()
	}
	if err := m.Store.LogJobEnd(ctx, m.SrcBucket, job.Key, etag, errString); err != nil {
		logging.Warn("migrator: log job end failed for %s: %v", job.Key, err)
	}

	return migrateErr
}

// migrateSmall implements §4.5 step 3's first branch: single get_object,
// compute MD5, upload_object with ContentMD5. No retry at this level —
// failures propagate to the queue's redelivery mechanism.
func (m *Migrator) migrateSmall(ctx context.Context, job core.JobInfo, extraArgs map[string]string) (string, error) {
	version := ""
	if m.Config.IncludeVersion {
		version = job.Version
	}
	body, digest, err := m.Source.GetObject(ctx, job.Key, job.Size, 0, 0, version)
	if err != nil {
		return "", fmt.Errorf("migrator: get object %s: %w", job.Key, err)
	}

	contentMD5 := base64.StdEncoding.EncodeToString(digest)
	etag, err := m.Dest.UploadObject(ctx, job.Key, body, contentMD5, job.StorageClass, extraArgs)
	if err != nil {
		return "", fmt.Errorf("migrator: upload object %s: %w", job.Key, err)
	}

	if m.Config.VerifyMD5Twice {
		if err := m.verifySmall(ctx, job.Key, digest); err != nil {
			return etag, err
		}
	}
	return etag, nil
}

func (m *Migrator) verifySmall(ctx context.Context, key string, expectedDigest []byte) error {
	body, _, err := m.Dest.GetObject(ctx, key, int64(len(expectedDigest)), 0, 0, "")
	if err != nil {
		return fmt.Errorf("migrator: verify_md5_twice re-read %s: %w", key, err)
	}
	sum := md5.Sum(body)
	if base64.StdEncoding.EncodeToString(sum[:]) != base64.StdEncoding.EncodeToString(expectedDigest) {
		return fmt.Errorf("migrator: verify_md5_twice mismatch for %s", key)
	}
	return nil
}

// migrateMultipart implements §4.6's part plan, resume, and pool
// dispatch, then §4.7's completion/abort handling.
func (m *Migrator) migrateMultipart(ctx context.Context, job core.JobInfo, extraArgs map[string]string) (string, error) {
	existing, err := m.Dest.ListMultipartUploads(ctx, "", job.Key)
	if err != nil {
		return "", fmt.Errorf("migrator: list multipart uploads for %s: %w", job.Key, err)
	}

	var uploadID string
	dryrunParts := map[int32]bool{}

	switch {
	case len(existing) > 0 && m.Config.CleanUnfinishedUpload:
		for _, u := range existing {
			if err := m.Dest.AbortMultipartUpload(ctx, job.Key, u.UploadID); err != nil {
				logging.Warn("migrator: abort stale upload %s for %s: %v", u.UploadID, job.Key, err)
			}
		}
	case len(existing) > 0:
		uploadID = existing[0].UploadID
		parts, err := m.Dest.ListParts(ctx, job.Key, uploadID)
		if err != nil {
			return "", fmt.Errorf("migrator: list parts for resumed upload %s: %w", job.Key, err)
		}
		for _, p := range parts {
			dryrunParts[p.PartNumber] = true
		}
	}

	if uploadID == "" {
		uploadID, err = m.Dest.CreateMultipartUpload(ctx, job.Key, job.StorageClass, extraArgs)
		if err != nil {
			return "", fmt.Errorf("migrator: create multipart upload for %s: %w", job.Key, err)
		}
	}

	indexList, chunkSize := core.Split(job.Size, m.Config.ChunkSize)
	plan := make([]transfer.PlanEntry, len(indexList))
	for i, start := range indexList {
		partNumber := int32(i + 1)
		plan[i] = transfer.PlanEntry{
			PartNumber: partNumber,
			StartIndex: start,
			Dryrun:     dryrunParts[partNumber],
		}
	}

	pool := &transfer.Pool{
		Source:         m.Source,
		Dest:           m.Dest,
		MaxThreads:     m.Config.MaxThreads,
		ChunkSize:      chunkSize,
		MaxRetries:     m.Config.MaxRetries,
		JobTimeout:     m.Config.JobTimeout,
		VerifyMD5Twice: m.Config.VerifyMD5Twice,
		IncludeVersion: m.Config.IncludeVersion,
	}
	transferJob := transfer.Job{Key: job.Key, DesKey: job.Key, Size: job.Size, Version: job.Version}

	poolETag, outcome, err := pool.Run(ctx, uploadID, plan, len(indexList), transferJob)
	if err != nil {
		// TIMEOUT leaves the in-progress upload on the destination so a
		// later Migrator run can resume it; QUIT and ERR abort it.
		if outcome == core.PartTimeout {
			return "", err
		}
		m.abortAll(ctx, job.Key, uploadID)
		return "", err
	}

	etag, err := m.Dest.CompleteMultipartUpload(ctx, job.Key, uploadID)
	if err != nil {
		m.abortAll(ctx, job.Key, uploadID)
		return "", fmt.Errorf("migrator: complete multipart upload %s: %w", job.Key, err)
	}

	if m.Config.VerifyMD5Twice {
		if err := m.verifyMultipart(ctx, job.Key, etag, poolETag); err != nil {
			return etag, err
		}
	}

	return etag, nil
}

func (m *Migrator) abortAll(ctx context.Context, key, uploadID string) {
	if err := m.Dest.AbortMultipartUpload(ctx, key, uploadID); err != nil {
		logging.Warn("migrator: abort multipart upload %s for %s: %v", uploadID, key, err)
	}
}

// verifyMultipart re-HEADs the destination and recomputes the expected
// composite ETag from the freshly download-verified part MD5s, comparing
// against what complete_multipart_upload returned (Open Question 2's
// decision: "re-HEAD and compare composite ETag").
func (m *Migrator) verifyMultipart(ctx context.Context, key, completedETag, expectedETag string) error {
	if !strings.EqualFold(expectedETag, completedETag) {
		return fmt.Errorf("migrator: verify_md5_twice composite etag mismatch for %s: expected=%s complete=%s", key, expectedETag, completedETag)
	}
	meta, err := m.Dest.HeadObject(ctx, key)
	if err != nil {
		return fmt.Errorf("migrator: verify_md5_twice head %s: %w", key, err)
	}
	if etag, ok := meta["ETag"]; ok && etag != "" && etag != completedETag {
		return fmt.Errorf("migrator: verify_md5_twice etag mismatch for %s: head=%s complete=%s", key, etag, completedETag)
	}
	return nil
}
