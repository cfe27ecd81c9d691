// Command jobsender runs one job-sender pass: check the queue-empty
// gate, discover the delta, enqueue it. Intended to be invoked
// periodically by an external trigger (cron, serverless schedule).
package main

import (
	"context"
	"log"

	"objectreplicator/internal/bootstrap"
	"objectreplicator/pkg/logging"
)

func main() {
	ctx := context.Background()

	env, err := bootstrap.Build(ctx)
	if err != nil {
		log.Fatalf("jobsender: %v", err)
	}

	sender := bootstrap.NewSender(env)
	sent, err := sender.Run(ctx)
	if err != nil {
		log.Fatalf("jobsender: run failed: %v", err)
	}
	logging.OK("jobsender: done, %d records enqueued", sent)
}
