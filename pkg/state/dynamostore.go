package state

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"objectreplicator/pkg/core"
)

// DynamoStore is the primary, AWS-native StateStore backend: a
// migration-record table keyed by objectKey ("src_bucket/key") and a
// separate event-sequencer table keyed by objectKey, mirroring the
// two-table layout the original Python implementation used.
type DynamoStore struct {
	client          *dynamodb.Client
	jobTable        string
	eventTable      string
}

// NewDynamoStore builds a DynamoStore against the given table names.
// Table creation is an infrastructure concern (out of scope per §1) —
// both tables are assumed to already exist.
func NewDynamoStore(ctx context.Context, client *dynamodb.Client, jobTable, eventTable string) *DynamoStore {
	return &DynamoStore{client: client, jobTable: jobTable, eventTable: eventTable}
}

type migrationItem struct {
	ObjectKey      string            `dynamodbav:"objectKey"`
	Size           int64             `dynamodbav:"size"`
	StorageClass   string            `dynamodbav:"storageClass,omitempty"`
	DesBucket      string            `dynamodbav:"desBucket,omitempty"`
	DesKey         string            `dynamodbav:"desKey,omitempty"`
	ExtraInfo      map[string]string `dynamodbav:"extraInfo,omitempty"`
	StartTime      string            `dynamodbav:"startTime,omitempty"`
	EndTime        string            `dynamodbav:"endTime,omitempty"`
	TotalSpentTime int64             `dynamodbav:"totalSpentTime,omitempty"`
	JobStatus      string            `dynamodbav:"jobStatus"`
	TryTime        int               `dynamodbav:"tryTime"`
	VersionID      string            `dynamodbav:"versionId,omitempty"`
	ETag           string            `dynamodbav:"etag,omitempty"`
	Err            string            `dynamodbav:"err,omitempty"`
}

func (s *DynamoStore) LogJobStart(ctx context.Context, srcBucket, srcPrefix, desBucket, desPrefix string, job core.JobInfo, extraArgs map[string]string) error {
	// Expires (if present as a timestamp) must be converted to a string
	// before storage — DynamoDB attribute maps are string-valued here.
	if exp, ok := extraArgs["Expires"]; ok {
		if t, err := time.Parse(time.RFC3339, exp); err == nil {
			extraArgs["Expires"] = strconv.FormatInt(t.Unix(), 10)
		}
	}

	item := migrationItem{
		ObjectKey:    srcBucket + "/" + job.Key,
		Size:         job.Size,
		StorageClass: job.StorageClass,
		DesBucket:    desBucket,
		DesKey:       desPrefix + job.Key,
		ExtraInfo:    extraArgs,
		StartTime:    time.Now().Format(time.RFC3339Nano),
		JobStatus:    string(core.JobStatusStarted),
		TryTime:      1,
		VersionID:    job.Version,
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("state: marshal migration record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.jobTable),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("state: log job start %s: %w", item.ObjectKey, err)
	}
	return nil
}

func (s *DynamoStore) LogJobEnd(ctx context.Context, srcBucket, key, etag, errString string) error {
	objectKey := srcBucket + "/" + key
	status := core.JobStatusDone
	if errString != "" {
		status = core.JobStatusError
	}
	endTime := time.Now()

	existing, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.jobTable),
		Key:       map[string]types.AttributeValue{"objectKey": &types.AttributeValueMemberS{Value: objectKey}},
	})
	if err != nil {
		return fmt.Errorf("state: load migration record %s: %w", objectKey, err)
	}

	var spentMs int64
	if existing.Item != nil {
		var prior migrationItem
		if err := attributevalue.UnmarshalMap(existing.Item, &prior); err == nil && prior.StartTime != "" {
			if start, err := time.Parse(time.RFC3339Nano, prior.StartTime); err == nil {
				spentMs = endTime.Sub(start).Milliseconds()
			}
		}
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.jobTable),
		Key:       map[string]types.AttributeValue{"objectKey": &types.AttributeValueMemberS{Value: objectKey}},
		UpdateExpression: aws.String("SET endTime = :et, totalSpentTime = :tst, jobStatus = :st, etag = :tag, err = :err"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":et":  &types.AttributeValueMemberS{Value: endTime.Format(time.RFC3339Nano)},
			":tst": &types.AttributeValueMemberN{Value: strconv.FormatInt(spentMs, 10)},
			":st":  &types.AttributeValueMemberS{Value: string(status)},
			":tag": &types.AttributeValueMemberS{Value: etag},
			":err": &types.AttributeValueMemberS{Value: errString},
		},
	})
	if err != nil {
		return fmt.Errorf("state: log job end %s: %w", objectKey, err)
	}
	return nil
}

// CheckSequencer implements the read-compare-conditionally-write pattern
// from the original's service.py: query the existing sequencer, compare
// numerically as hex, and issue a conditional update (or a plain put on
// first sighting) so the whole operation is linearizable per key.
func (s *DynamoStore) CheckSequencer(ctx context.Context, key, sequencer string) (bool, error) {
	existing, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.eventTable),
		Key:       map[string]types.AttributeValue{"objectKey": &types.AttributeValueMemberS{Value: key}},
	})
	if err != nil {
		return false, fmt.Errorf("state: read sequencer %s: %w", key, err)
	}

	if existing.Item == nil {
		_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.eventTable),
			Item: map[string]types.AttributeValue{
				"objectKey": &types.AttributeValueMemberS{Value: key},
				"sequencer": &types.AttributeValueMemberS{Value: sequencer},
			},
			ConditionExpression: aws.String("attribute_not_exists(objectKey)"),
		})
		if err != nil {
			// Lost the race to a concurrent first-writer; fall through
			// and let the next check_sequencer call re-evaluate.
			return false, nil
		}
		return true, nil
	}

	var prior struct {
		Sequencer string `dynamodbav:"sequencer"`
	}
	if err := attributevalue.UnmarshalMap(existing.Item, &prior); err != nil {
		return false, fmt.Errorf("state: unmarshal sequencer %s: %w", key, err)
	}

	newer, err := hexGreater(sequencer, prior.Sequencer)
	if err != nil {
		return false, err
	}
	if !newer {
		return false, nil
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.eventTable),
		Key:                 map[string]types.AttributeValue{"objectKey": &types.AttributeValueMemberS{Value: key}},
		UpdateExpression:    aws.String("SET sequencer = :s"),
		ConditionExpression: aws.String("sequencer = :prior"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s":     &types.AttributeValueMemberS{Value: sequencer},
			":prior": &types.AttributeValueMemberS{Value: prior.Sequencer},
		},
	})
	if err != nil {
		// Another writer updated it between our read and write; treat as
		// rejected rather than erroring the whole batch.
		return false, nil
	}
	return true, nil
}

// GetRecord returns the migration record for "srcBucket/key", or nil if
// absent.
func (s *DynamoStore) GetRecord(ctx context.Context, srcBucket, key string) (*core.MigrationRecord, error) {
	objectKey := srcBucket + "/" + key
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.jobTable),
		Key:       map[string]types.AttributeValue{"objectKey": &types.AttributeValueMemberS{Value: objectKey}},
	})
	if err != nil {
		return nil, fmt.Errorf("state: get record %s: %w", objectKey, err)
	}
	if out.Item == nil {
		return nil, nil
	}
	var item migrationItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("state: unmarshal record %s: %w", objectKey, err)
	}
	return item.toRecord(), nil
}

// ListRecords scans the job table for records whose objectKey is
// prefixed by "srcBucket/". DynamoDB has no native prefix query on a
// non-indexed attribute, so this issues a single filtered Scan —
// acceptable for an admin/status surface, not for the hot transfer path.
// limit caps the items the Scan examines before the filter, so the
// result holds at most limit matching records, not necessarily the
// newest ones; the records returned are sorted most recently started
// first.
func (s *DynamoStore) ListRecords(ctx context.Context, srcBucket string, limit int) ([]core.MigrationRecord, error) {
	out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.jobTable),
		FilterExpression: aws.String("begins_with(objectKey, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prefix": &types.AttributeValueMemberS{Value: srcBucket + "/"},
		},
		Limit: aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("state: list records for %s: %w", srcBucket, err)
	}

	records := make([]core.MigrationRecord, 0, len(out.Items))
	for _, rawItem := range out.Items {
		var item migrationItem
		if err := attributevalue.UnmarshalMap(rawItem, &item); err != nil {
			continue
		}
		records = append(records, *item.toRecord())
	}
	sort.Slice(records, func(i, j int) bool { return records[i].StartTime.After(records[j].StartTime) })
	return records, nil
}

func (item *migrationItem) toRecord() *core.MigrationRecord {
	rec := &core.MigrationRecord{
		ObjectKey:    item.ObjectKey,
		Size:         item.Size,
		StorageClass: item.StorageClass,
		DesBucket:    item.DesBucket,
		DesKey:       item.DesKey,
		ExtraInfo:    item.ExtraInfo,
		JobStatus:    core.JobStatus(item.JobStatus),
		TryTime:      item.TryTime,
		VersionID:    item.VersionID,
		ETag:         item.ETag,
		Err:          item.Err,
	}
	if item.StartTime != "" {
		if t, err := time.Parse(time.RFC3339Nano, item.StartTime); err == nil {
			rec.StartTime = t
		}
	}
	if item.EndTime != "" {
		if t, err := time.Parse(time.RFC3339Nano, item.EndTime); err == nil {
			rec.EndTime = t
		}
	}
	rec.TotalSpentTime = time.Duration(item.TotalSpentTime) * time.Millisecond
	return rec
}

// VersionsByDestBucket is SUPPLEMENTED FEATURE 5: a secondary-index
// lookup mirroring the original's desBucket-index, letting DeltaFinder
// optionally augment the destination set with version data instead of
// comparing by (key,size) alone.
func (s *DynamoStore) VersionsByDestBucket(ctx context.Context, desBucket string) (map[string]string, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.jobTable),
		IndexName:              aws.String("desBucket-index"),
		KeyConditionExpression: aws.String("desBucket = :b"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":b": &types.AttributeValueMemberS{Value: desBucket},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("state: query versions by dest bucket %s: %w", desBucket, err)
	}

	versions := make(map[string]string, len(out.Items))
	for _, rawItem := range out.Items {
		var item migrationItem
		if err := attributevalue.UnmarshalMap(rawItem, &item); err != nil {
			continue
		}
		if item.DesKey != "" {
			versions[item.DesKey] = item.VersionID
		}
	}
	return versions, nil
}
