// Command server runs the admin/status HTTP API and an in-process
// cron scheduler that periodically triggers job-sender passes.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"objectreplicator/api"
	"objectreplicator/internal/bootstrap"
	"objectreplicator/pkg/scheduler"
)

type senderExecutor struct {
	env *bootstrap.Env
}

func (e *senderExecutor) Execute(ctx context.Context, _ *scheduler.Schedule) (int, error) {
	sender := bootstrap.NewSender(e.env)
	return sender.Run(ctx)
}

func main() {
	ctx := context.Background()

	env, err := bootstrap.Build(ctx)
	if err != nil {
		log.Fatalf("server: %v", err)
	}

	sched := scheduler.NewScheduler(&senderExecutor{env: env})
	cronExpr := os.Getenv("SCHEDULE_CRON")
	if cronExpr == "" {
		cronExpr = "0 */5 * * * *" // every 5 minutes, seconds-resolution cron
	}
	if err := sched.AddSchedule(&scheduler.Schedule{
		ID:       "default-jobsender",
		Name:     "job-sender",
		CronExpr: cronExpr,
		Enabled:  true,
	}); err != nil {
		log.Fatalf("server: add default schedule: %v", err)
	}
	if err := sched.Start(); err != nil {
		log.Fatalf("server: start scheduler: %v", err)
	}
	defer sched.Stop()

	app := &api.App{Store: env.Store, Scheduler: sched, SrcBucket: env.Settings.SrcBucket}
	router := api.SetupRouter(app)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}
	fmt.Printf("Starting replication admin API on port %s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("server: %v", err)
	}
}
