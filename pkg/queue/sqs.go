package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"objectreplicator/pkg/core"
)

// SQSQueue implements Queue against an SQS queue.
type SQSQueue struct {
	client   *sqs.Client
	queueURL string
}

// NewSQSQueue resolves queueName to its URL and returns an SQSQueue.
func NewSQSQueue(ctx context.Context, client *sqs.Client, queueName string) (*SQSQueue, error) {
	out, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(queueName)})
	if err != nil {
		return nil, fmt.Errorf("queue: resolve queue url %s: %w", queueName, err)
	}
	return &SQSQueue{client: client, queueURL: aws.ToString(out.QueueUrl)}, nil
}

// SendBatch transmits records in groups of up to QUEUE_BATCH_SIZE.
func (q *SQSQueue) SendBatch(ctx context.Context, records []core.DeltaRecord) error {
	for start := 0; start < len(records); start += core.DefaultQueueBatchSize {
		end := start + core.DefaultQueueBatchSize
		if end > len(records) {
			end = len(records)
		}
		entries := make([]types.SendMessageBatchRequestEntry, 0, end-start)
		for _, r := range records[start:end] {
			body, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("queue: marshal delta record %s: %w", r.Key, err)
			}
			entries = append(entries, types.SendMessageBatchRequestEntry{
				Id:          aws.String(uuid.NewString()),
				MessageBody: aws.String(string(body)),
			})
		}
		out, err := q.client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: aws.String(q.queueURL),
			Entries:  entries,
		})
		if err != nil {
			return fmt.Errorf("queue: send batch: %w", err)
		}
		if len(out.Failed) > 0 {
			return fmt.Errorf("queue: %d entries failed in batch send", len(out.Failed))
		}
	}
	return nil
}

func (q *SQSQueue) Receive(ctx context.Context, max int32) ([]Envelope, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: max,
		WaitTimeSeconds:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("queue: receive: %w", err)
	}
	envelopes := make([]Envelope, len(out.Messages))
	for i, m := range out.Messages {
		envelopes[i] = Envelope{Body: aws.ToString(m.Body), ReceiptHandle: aws.ToString(m.ReceiptHandle)}
	}
	return envelopes, nil
}

func (q *SQSQueue) Delete(ctx context.Context, receiptHandle string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("queue: delete message: %w", err)
	}
	return nil
}

// IsEmpty treats a single visible message as empty too, accommodating a
// backend's bucket-creation test ping that would otherwise wedge the
// job-sender's "queue empty" gate forever.
func (q *SQSQueue) IsEmpty(ctx context.Context) (bool, error) {
	out, err := q.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: aws.String(q.queueURL),
		AttributeNames: []types.QueueAttributeName{
			types.QueueAttributeNameApproximateNumberOfMessages,
			types.QueueAttributeNameApproximateNumberOfMessagesNotVisible,
		},
	})
	if err != nil {
		return false, fmt.Errorf("queue: get attributes: %w", err)
	}

	visible, _ := strconv.Atoi(out.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessages)])
	notVisible, _ := strconv.Atoi(out.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessagesNotVisible)])

	return (visible == 0 || visible == 1) && notVisible == 0, nil
}
