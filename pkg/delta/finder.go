// Package delta implements the streaming destination-materialize,
// source-page-diff algorithm that discovers the set of objects needing
// replication.
package delta

import (
	"context"
	"fmt"

	"objectreplicator/pkg/core"
	"objectreplicator/pkg/storageclient"
)

// VersionProvider resolves destination-key -> version-id pairs from a
// StateStore's own records, for backends whose ListObjects cannot return
// version info alongside a listing (Open Question 3 option (b)).
type VersionProvider interface {
	VersionsByDestBucket(ctx context.Context, desBucket string) (map[string]string, error)
}

// Finder computes source \ destination under the configured projection.
// The destination set is fully materialized in memory; the source is
// consumed page by page and diffed against it, so peak memory is
// bounded by destination size rather than by the larger of the two
// listings.
type Finder struct {
	Source         storageclient.DownloadCapability
	Destination    storageclient.DownloadCapability
	IncludeVersion bool

	// VersionProvider and DesBucket are the opt-in path (Open Question
	// 3 option (b)): when set and IncludeVersion is true, the
	// destination set built by materializeDestination is augmented with
	// versions resolved from the StateStore instead of comparing by
	// (key,size) alone.
	VersionProvider VersionProvider
	DesBucket       string
}

type tupleKey struct {
	key     string
	size    int64
	version string
}

// Find streams the delta to out as it's discovered, stopping at the
// first error from either side.
func (f *Finder) Find(ctx context.Context, out chan<- core.DeltaRecord) error {
	destSet, err := f.materializeDestination(ctx)
	if err != nil {
		return fmt.Errorf("delta: materialize destination: %w", err)
	}

	if f.IncludeVersion && f.VersionProvider != nil {
		versions, err := f.VersionProvider.VersionsByDestBucket(ctx, f.DesBucket)
		if err != nil {
			return fmt.Errorf("delta: augment destination versions: %w", err)
		}
		AugmentWithVersions(destSet, versions)
	}

	it, err := f.Source.ListObjects(ctx, f.IncludeVersion)
	if err != nil {
		return fmt.Errorf("delta: list source: %w", err)
	}
	for !it.Done() {
		page, err := it.Next(ctx)
		if err != nil {
			return fmt.Errorf("delta: next source page: %w", err)
		}
		for _, obj := range page.Objects {
			version := "null"
			if f.IncludeVersion {
				version = obj.Version
			}
			t := tupleKey{key: obj.Key, size: obj.Size, version: version}
			if _, present := destSet[t]; present {
				continue
			}
			out <- core.DeltaRecord{Key: obj.Key, Size: obj.Size, Version: version}
		}
	}
	return nil
}

// materializeDestination always lists the destination without version
// info (per §4.2): destination comparison keys are (key,size) only,
// matching Open Question 3's default of option (a).
func (f *Finder) materializeDestination(ctx context.Context) (map[tupleKey]struct{}, error) {
	set := make(map[tupleKey]struct{})
	it, err := f.Destination.ListObjects(ctx, false)
	if err != nil {
		return nil, err
	}
	for !it.Done() {
		page, err := it.Next(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Objects {
			version := "null"
			if !f.IncludeVersion {
				set[tupleKey{key: obj.Key, size: obj.Size, version: "null"}] = struct{}{}
				continue
			}
			set[tupleKey{key: obj.Key, size: obj.Size, version: version}] = struct{}{}
		}
	}
	return set, nil
}

// AugmentWithVersions is SUPPLEMENTED FEATURE 5's opt-in path (Open
// Question 3 option (b)): merges version data resolved from the
// DynamoDB-backed StateStore's VersionsByDestBucket query into the
// destination set built above, keyed by destination key.
func AugmentWithVersions(set map[tupleKey]struct{}, versionsByDesKey map[string]string) {
	for t := range set {
		if v, ok := versionsByDesKey[t.key]; ok && v != "" {
			delete(set, t)
			set[tupleKey{key: t.key, size: t.size, version: v}] = struct{}{}
		}
	}
}
