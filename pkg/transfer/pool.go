// Package transfer implements the bounded-concurrency part-transfer
// pool: range-read + part-upload with retry, timeout, cancellation, and
// MD5 accumulation.
package transfer

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"objectreplicator/pkg/core"
	"objectreplicator/pkg/logging"
	"objectreplicator/pkg/storageclient"
)

// PlanEntry is one (part_number, start_index) tuple of the part-transfer
// plan. Dryrun marks a part already present on the destination from a
// prior, interrupted upload.
type PlanEntry struct {
	PartNumber int32
	StartIndex int64
	Dryrun     bool
}

// Job is the subset of JobInfo the pool needs, plus the destination key
// (which may differ from the source key by prefix).
type Job struct {
	Key    string
	DesKey string
	Size   int64
	Version string
}

// Pool executes a part-transfer plan against one object.
type Pool struct {
	Source         storageclient.DownloadCapability
	Dest           storageclient.UploadCapability
	MaxThreads     int
	ChunkSize      int64
	MaxRetries     int
	JobTimeout     time.Duration
	VerifyMD5Twice bool
	IncludeVersion bool
}

type partResult struct {
	entry   PlanEntry
	outcome core.PartOutcome
}

// Run executes plan against uploadID with TotalParts slots in the
// composite MD5 accumulator (TotalParts, not len(plan), since dryrun
// parts from a prior run still occupy a part_number slot).
func (p *Pool) Run(ctx context.Context, uploadID string, plan []PlanEntry, totalParts int, job Job) (etag string, outcome core.PartOutcome, err error) {
	var cancelled atomic.Bool
	sem := make(chan struct{}, p.MaxThreads)
	md5List := make([][]byte, totalParts)
	emptyDigest := md5.Sum(nil)
	for i := range md5List {
		md5List[i] = emptyDigest[:]
	}
	resultCh := make(chan partResult, len(plan))
	var wg sync.WaitGroup

	runCtx, cancel := context.WithTimeout(ctx, p.JobTimeout)
	defer cancel()

	buffers := newBufferPool(p.ChunkSize)

	for _, entry := range plan {
		wg.Add(1)
		go func(e PlanEntry) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-runCtx.Done():
				resultCh <- partResult{entry: e, outcome: core.PartTimeout}
				return
			}
			o := p.runPart(runCtx, &cancelled, e, job, uploadID, md5List, buffers)
			resultCh <- partResult{entry: e, outcome: o}
		}(entry)
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	quit := false
	timedOut := false
	finished := 0
loop:
	for finished < len(plan) {
		select {
		case res, ok := <-resultCh:
			if !ok {
				break loop
			}
			finished++
			if res.outcome == core.PartQuit {
				cancelled.Store(true)
				quit = true
			}
			if res.outcome == core.PartTimeout {
				timedOut = true
			}
		case <-runCtx.Done():
			cancelled.Store(true)
			break loop
		}
	}

	if quit {
		return "", core.PartQuit, fmt.Errorf("transfer: part worker reported an unrecoverable source error")
	}
	if timedOut || finished < len(plan) {
		return "", core.PartTimeout, fmt.Errorf("transfer: job_timeout exceeded or a part exhausted its upload retries")
	}

	return compositeETag(md5List), core.PartComplete, nil
}

// runPart implements the per-part state machine: start -> downloading ->
// uploading -> complete, with absorbing states quit, timeout, and
// cancelled.
func (p *Pool) runPart(ctx context.Context, cancelled *atomic.Bool, e PlanEntry, job Job, uploadID string, md5List [][]byte, buffers *bufferPool) core.PartOutcome {
	if cancelled.Load() {
		return core.PartTimeout
	}

	if e.Dryrun && !p.VerifyMD5Twice {
		return core.PartComplete
	}

	chunkSize := p.partSize(e.StartIndex, job.Size)
	version := ""
	if p.IncludeVersion {
		version = job.Version
	}

	var body, digest []byte
	var err error
	for attempt := 1; attempt <= p.MaxRetries; attempt++ {
		if cancelled.Load() {
			return core.PartTimeout
		}
		logging.Step("Downloading part %d of %s", e.PartNumber, job.Key)
		body, digest, err = p.Source.GetObject(ctx, job.Key, job.Size, e.StartIndex, chunkSize, version)
		if err == nil {
			break
		}
		if !sleepBackoff(ctx, cancelled, attempt) {
			return core.PartTimeout
		}
	}
	if err != nil {
		cancelled.Store(true)
		logging.Error("part %d of %s: download exhausted retries: %v", e.PartNumber, job.Key, err)
		return core.PartQuit
	}

	md5List[e.PartNumber-1] = digest
	defer buffers.put(body)

	if e.Dryrun {
		// Already uploaded in a prior run; the download above was only to
		// recompute its MD5 for the verify_md5_twice composite check.
		return core.PartComplete
	}

	bodyMD5 := base64.StdEncoding.EncodeToString(digest)
	for attempt := 1; attempt <= p.MaxRetries; attempt++ {
		if cancelled.Load() {
			return core.PartTimeout
		}
		logging.Step("Uploading part %d of %s", e.PartNumber, job.Key)
		err = p.Dest.UploadPart(ctx, job.DesKey, body, bodyMD5, e.PartNumber, uploadID)
		if err == nil {
			logging.Step("Complete part %d of %s", e.PartNumber, job.Key)
			return core.PartComplete
		}
		if !sleepBackoff(ctx, cancelled, attempt) {
			return core.PartTimeout
		}
	}
	cancelled.Store(true)
	return core.PartTimeout
}

func (p *Pool) partSize(start, size int64) int64 {
	remaining := size - start
	if remaining < p.ChunkSize {
		return remaining
	}
	return p.ChunkSize
}

// sleepBackoff sleeps 5*attempt seconds, abandoning the sleep and
// returning false the instant cancellation or context expiry is
// observed.
func sleepBackoff(ctx context.Context, cancelled *atomic.Bool, attempt int) bool {
	timer := time.NewTimer(time.Duration(5*attempt) * time.Second)
	defer timer.Stop()
	poll := time.NewTicker(50 * time.Millisecond)
	defer poll.Stop()
	for {
		select {
		case <-timer.C:
			return !cancelled.Load()
		case <-ctx.Done():
			return false
		case <-poll.C:
			if cancelled.Load() {
				return false
			}
		}
	}
}

// compositeETag implements hex(MD5(concat(part_md5s)))-partCount,
// quoted, matching the upstream multipart ETag convention.
func compositeETag(md5List [][]byte) string {
	var buf []byte
	for _, d := range md5List {
		buf = append(buf, d...)
	}
	sum := md5.Sum(buf)
	return fmt.Sprintf("%q", hex.EncodeToString(sum[:])+"-"+fmt.Sprint(len(md5List)))
}
