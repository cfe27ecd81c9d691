package state

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"objectreplicator/pkg/core"
)

func TestHexGreaterComparesAsUnsignedHex(t *testing.T) {
	newer, err := hexGreater("0010", "000f")
	require.NoError(t, err)
	assert.True(t, newer)

	newer, err = hexGreater("000a", "000f")
	require.NoError(t, err)
	assert.False(t, newer)

	newer, err = hexGreater("000f", "000f")
	require.NoError(t, err)
	assert.False(t, newer)
}

func TestHexGreaterRejectsNonHex(t *testing.T) {
	_, err := hexGreater("not-hex", "000f")
	require.Error(t, err)
}

// fakeRow implements rowScanner by copying fixed values into the
// destination pointers passed to scanMigrationRecord, in the exact
// column order SQLStore's queries select.
type fakeRow struct {
	objectKey                           string
	size                                int64
	storageClass, desBucket, desKey     sql.NullString
	extraJSON                           string
	startTime, endTime                  sql.NullTime
	totalSpentMS                        int64
	jobStatus                           core.JobStatus
	tryTime                             int
	versionID, etag, errString          sql.NullString
}

func (r fakeRow) Scan(dest ...interface{}) error {
	*dest[0].(*string) = r.objectKey
	*dest[1].(*int64) = r.size
	*dest[2].(*sql.NullString) = r.storageClass
	*dest[3].(*sql.NullString) = r.desBucket
	*dest[4].(*sql.NullString) = r.desKey
	*dest[5].(*string) = r.extraJSON
	*dest[6].(*sql.NullTime) = r.startTime
	*dest[7].(*sql.NullTime) = r.endTime
	*dest[8].(*int64) = r.totalSpentMS
	*dest[9].(*core.JobStatus) = r.jobStatus
	*dest[10].(*int) = r.tryTime
	*dest[11].(*sql.NullString) = r.versionID
	*dest[12].(*sql.NullString) = r.etag
	*dest[13].(*sql.NullString) = r.errString
	return nil
}

func TestScanMigrationRecordPopulatesOptionalFields(t *testing.T) {
	start := time.Now().Add(-time.Minute)
	row := fakeRow{
		objectKey:     "bucket/key.txt",
		size:          1024,
		storageClass:  sql.NullString{String: "STANDARD", Valid: true},
		desBucket:     sql.NullString{String: "dest-bucket", Valid: true},
		desKey:        sql.NullString{String: "key.txt", Valid: true},
		extraJSON:     `{"ContentType":"text/plain"}`,
		startTime:     sql.NullTime{Time: start, Valid: true},
		totalSpentMS:  1500,
		jobStatus:     core.JobStatusDone,
		tryTime:       1,
		etag:          sql.NullString{String: `"abc123"`, Valid: true},
	}

	rec, err := scanMigrationRecord(row)
	require.NoError(t, err)
	assert.Equal(t, "bucket/key.txt", rec.ObjectKey)
	assert.Equal(t, int64(1024), rec.Size)
	assert.Equal(t, "STANDARD", rec.StorageClass)
	assert.Equal(t, `"abc123"`, rec.ETag)
	assert.Equal(t, 1500*time.Millisecond, rec.TotalSpentTime)
	assert.Equal(t, "text/plain", rec.ExtraInfo["ContentType"])
}
