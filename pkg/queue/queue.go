// Package queue implements the batched message channel between the
// job-sender and worker processes.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"objectreplicator/pkg/core"
)

// Envelope is one received message: its raw body plus a receipt handle
// the caller needs to acknowledge (delete) it after successful
// processing.
type Envelope struct {
	Body          string
	ReceiptHandle string
}

// Queue is the contract both job-sender and worker code against.
type Queue interface {
	SendBatch(ctx context.Context, records []core.DeltaRecord) error
	Receive(ctx context.Context, max int32) ([]Envelope, error)
	Delete(ctx context.Context, receiptHandle string) error
	// IsEmpty returns true iff both visible and in-flight counts are
	// zero; a single visible message also counts as empty, to
	// accommodate a backend's test ping.
	IsEmpty(ctx context.Context) (bool, error)
}

// changeNotificationBatch is queue payload shape 2.
type changeNotificationBatch struct {
	Records []changeRecord `json:"Records"`
}

type changeRecord struct {
	EventName string `json:"eventName"`
	S3        struct {
		Object struct {
			Key       string `json:"key"`
			Size      int64  `json:"size"`
			VersionID string `json:"versionId"`
			Sequencer string `json:"sequencer"`
		} `json:"object"`
	} `json:"s3"`
}

// testPing is queue payload shape 3.
type testPing struct {
	Event string `json:"Event"`
}

// PayloadKind classifies a decoded message body.
type PayloadKind int

const (
	PayloadDirectJob PayloadKind = iota
	PayloadChangeBatch
	PayloadTestPing
	PayloadUnknown
)

// ErrUnknownPayload is returned when a message body matches none of the
// three documented shapes; the caller should propagate this so the
// queue redelivers and an operator is alerted.
var ErrUnknownPayload = fmt.Errorf("queue: unrecognized message payload shape")

// Parse classifies and decodes a message body into one of the three
// accepted payload shapes.
func Parse(body string) (PayloadKind, core.DeltaRecord, []ChangeNotification, error) {
	var ping testPing
	if err := json.Unmarshal([]byte(body), &ping); err == nil && ping.Event == "s3:TestEvent" {
		return PayloadTestPing, core.DeltaRecord{}, nil, nil
	}

	var batch changeNotificationBatch
	if err := json.Unmarshal([]byte(body), &batch); err == nil && batch.Records != nil {
		notifications := make([]ChangeNotification, len(batch.Records))
		for i, r := range batch.Records {
			notifications[i] = ChangeNotification{
				EventName: r.EventName,
				Key:       r.S3.Object.Key,
				Size:      r.S3.Object.Size,
				VersionID: r.S3.Object.VersionID,
				Sequencer: r.S3.Object.Sequencer,
			}
		}
		return PayloadChangeBatch, core.DeltaRecord{}, notifications, nil
	}

	var direct core.DeltaRecord
	if err := json.Unmarshal([]byte(body), &direct); err == nil && direct.Key != "" {
		return PayloadDirectJob, direct, nil, nil
	}

	return PayloadUnknown, core.DeltaRecord{}, nil, ErrUnknownPayload
}

// ChangeNotification is the decoded form of one S3-style change record.
type ChangeNotification struct {
	EventName string
	Key       string
	Size      int64
	VersionID string
	Sequencer string
}
