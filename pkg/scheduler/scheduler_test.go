package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	mu      sync.Mutex
	calls   int
	sent    int
	err     error
	gotID   []string
	waiters chan struct{}
}

func (e *fakeExecutor) Execute(ctx context.Context, schedule *Schedule) (int, error) {
	e.mu.Lock()
	e.calls++
	e.gotID = append(e.gotID, schedule.ID)
	e.mu.Unlock()
	if e.waiters != nil {
		e.waiters <- struct{}{}
	}
	return e.sent, e.err
}

func TestAddScheduleComputesNextRun(t *testing.T) {
	s := NewScheduler(&fakeExecutor{})
	sched := &Schedule{ID: "s1", Name: "hourly", CronExpr: "0 0 * * * *", Enabled: true}

	require.NoError(t, s.AddSchedule(sched))
	assert.False(t, sched.NextRun.IsZero())
	assert.False(t, sched.CreatedAt.IsZero())
}

func TestAddScheduleRejectsDuplicateID(t *testing.T) {
	s := NewScheduler(&fakeExecutor{})
	sched := &Schedule{ID: "s1", CronExpr: "0 0 * * * *"}
	require.NoError(t, s.AddSchedule(sched))

	err := s.AddSchedule(&Schedule{ID: "s1", CronExpr: "0 0 * * * *"})
	require.Error(t, err)
}

func TestAddScheduleRejectsInvalidCronExpr(t *testing.T) {
	s := NewScheduler(&fakeExecutor{})
	err := s.AddSchedule(&Schedule{ID: "bad", CronExpr: "not a cron expr"})
	require.Error(t, err)
}

func TestRemoveScheduleThenGetFails(t *testing.T) {
	s := NewScheduler(&fakeExecutor{})
	require.NoError(t, s.AddSchedule(&Schedule{ID: "s1", CronExpr: "0 0 * * * *"}))
	require.NoError(t, s.RemoveSchedule("s1"))

	_, err := s.GetSchedule("s1")
	require.Error(t, err)
}

func TestRemoveScheduleUnknownIDFails(t *testing.T) {
	s := NewScheduler(&fakeExecutor{})
	err := s.RemoveSchedule("ghost")
	require.Error(t, err)
}

func TestListSchedulesReturnsAllRegistered(t *testing.T) {
	s := NewScheduler(&fakeExecutor{})
	require.NoError(t, s.AddSchedule(&Schedule{ID: "s1", CronExpr: "0 0 * * * *"}))
	require.NoError(t, s.AddSchedule(&Schedule{ID: "s2", CronExpr: "0 30 * * * *"}))

	all := s.ListSchedules()
	assert.Len(t, all, 2)
}

func TestEnableDisableScheduleToggleState(t *testing.T) {
	s := NewScheduler(&fakeExecutor{})
	sched := &Schedule{ID: "s1", CronExpr: "0 0 * * * *", Enabled: false}
	require.NoError(t, s.AddSchedule(sched))

	require.NoError(t, s.EnableSchedule("s1"))
	got, err := s.GetSchedule("s1")
	require.NoError(t, err)
	assert.True(t, got.Enabled)

	require.NoError(t, s.DisableSchedule("s1"))
	got, err = s.GetSchedule("s1")
	require.NoError(t, err)
	assert.False(t, got.Enabled)
}

func TestEnableScheduleIsIdempotentWhenAlreadyEnabled(t *testing.T) {
	s := NewScheduler(&fakeExecutor{})
	require.NoError(t, s.AddSchedule(&Schedule{ID: "s1", CronExpr: "0 0 * * * *", Enabled: true}))
	require.NoError(t, s.EnableSchedule("s1"))
}

func TestRunNowInvokesExecutorAndRecordsSuccess(t *testing.T) {
	exec := &fakeExecutor{sent: 7, waiters: make(chan struct{}, 1)}
	s := NewScheduler(exec)
	require.NoError(t, s.AddSchedule(&Schedule{ID: "s1", CronExpr: "0 0 * * * *"}))

	require.NoError(t, s.RunNow("s1"))

	select {
	case <-exec.waiters:
	case <-time.After(time.Second):
		t.Fatal("executor was not invoked")
	}

	got, err := s.GetSchedule("s1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.RunCount)
	assert.Equal(t, "", got.LastError)
}

func TestRunNowRecordsFailureOnExecutorError(t *testing.T) {
	exec := &fakeExecutor{err: fmt.Errorf("boom"), waiters: make(chan struct{}, 1)}
	s := NewScheduler(exec)
	require.NoError(t, s.AddSchedule(&Schedule{ID: "s1", CronExpr: "0 0 * * * *"}))

	require.NoError(t, s.RunNow("s1"))

	select {
	case <-exec.waiters:
	case <-time.After(time.Second):
		t.Fatal("executor was not invoked")
	}

	// executeSchedule updates fail count/last error under its own lock
	// after Execute returns; give it a moment to finish.
	time.Sleep(10 * time.Millisecond)

	got, err := s.GetSchedule("s1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.FailCount)
	assert.Equal(t, "boom", got.LastError)
}

func TestGetStatsCountsActiveAndDisabled(t *testing.T) {
	s := NewScheduler(&fakeExecutor{})
	require.NoError(t, s.AddSchedule(&Schedule{ID: "s1", CronExpr: "0 0 * * * *", Enabled: true}))
	require.NoError(t, s.AddSchedule(&Schedule{ID: "s2", CronExpr: "0 30 * * * *", Enabled: false}))

	stats := s.GetStats()
	assert.Equal(t, 2, stats.TotalSchedules)
	assert.Equal(t, 1, stats.ActiveSchedules)
	assert.Equal(t, 1, stats.DisabledSchedules)
}

func TestStartStopTogglesRunningState(t *testing.T) {
	s := NewScheduler(&fakeExecutor{})
	require.NoError(t, s.Start())
	err := s.Start()
	require.Error(t, err)

	require.NoError(t, s.Stop())
	err = s.Stop()
	require.Error(t, err)
}
