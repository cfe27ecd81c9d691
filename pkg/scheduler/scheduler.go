// Package scheduler drives periodic job-sender runs via robfig/cron,
// adapted from the teacher's generic cron-backed task scheduler down to
// the single task this engine actually repeats: running one
// jobsender.Sender pass.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser parses the same six-field (seconds-first) expressions that
// the cron.WithSeconds() runner accepts.
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Schedule describes one recurring job-sender trigger.
type Schedule struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CronExpr  string    `json:"cron_expr"`
	Enabled   bool      `json:"enabled"`
	LastRun   time.Time `json:"last_run"`
	NextRun   time.Time `json:"next_run"`
	RunCount  int       `json:"run_count"`
	FailCount int       `json:"fail_count"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TaskExecutor runs one job-sender pass for schedule.
type TaskExecutor interface {
	Execute(ctx context.Context, schedule *Schedule) (sent int, err error)
}

// Scheduler manages recurring job-sender triggers.
type Scheduler struct {
	mu        sync.RWMutex
	cron      *cron.Cron
	schedules map[string]*Schedule
	entries   map[string]cron.EntryID
	executor  TaskExecutor
	running   bool
}

// NewScheduler returns a Scheduler driving executor.
func NewScheduler(executor TaskExecutor) *Scheduler {
	return &Scheduler{
		cron:      cron.New(cron.WithSeconds()),
		schedules: make(map[string]*Schedule),
		entries:   make(map[string]cron.EntryID),
		executor:  executor,
	}
}

// Start begins firing enabled schedules.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler: already running")
	}
	s.cron.Start()
	s.running = true
	return nil
}

// Stop drains in-flight runs and halts firing.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return fmt.Errorf("scheduler: not running")
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	return nil
}

// AddSchedule registers a new recurring trigger.
func (s *Scheduler) AddSchedule(schedule *Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schedules[schedule.ID]; exists {
		return fmt.Errorf("scheduler: schedule %s already exists", schedule.ID)
	}

	cronSchedule, err := cronParser.Parse(schedule.CronExpr)
	if err != nil {
		return fmt.Errorf("scheduler: invalid cron expression: %w", err)
	}

	now := time.Now()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now
	schedule.NextRun = cronSchedule.Next(now)

	if schedule.Enabled {
		entryID, err := s.cron.AddFunc(schedule.CronExpr, func() { s.executeSchedule(schedule.ID) })
		if err != nil {
			return fmt.Errorf("scheduler: add cron job: %w", err)
		}
		s.entries[schedule.ID] = entryID
	}

	s.schedules[schedule.ID] = schedule
	return nil
}

// RemoveSchedule deregisters a trigger.
func (s *Scheduler) RemoveSchedule(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schedules[id]; !exists {
		return fmt.Errorf("scheduler: schedule %s not found", id)
	}
	if entryID, exists := s.entries[id]; exists {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
	delete(s.schedules, id)
	return nil
}

// GetSchedule retrieves a schedule by ID.
func (s *Scheduler) GetSchedule(id string) (*Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	schedule, exists := s.schedules[id]
	if !exists {
		return nil, fmt.Errorf("scheduler: schedule %s not found", id)
	}
	return schedule, nil
}

// ListSchedules returns every registered schedule.
func (s *Scheduler) ListSchedules() []*Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	schedules := make([]*Schedule, 0, len(s.schedules))
	for _, schedule := range s.schedules {
		schedules = append(schedules, schedule)
	}
	return schedules
}

// EnableSchedule re-arms a disabled schedule.
func (s *Scheduler) EnableSchedule(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	schedule, exists := s.schedules[id]
	if !exists {
		return fmt.Errorf("scheduler: schedule %s not found", id)
	}
	if schedule.Enabled {
		return nil
	}
	entryID, err := s.cron.AddFunc(schedule.CronExpr, func() { s.executeSchedule(id) })
	if err != nil {
		return fmt.Errorf("scheduler: enable schedule: %w", err)
	}
	s.entries[id] = entryID
	schedule.Enabled = true
	schedule.UpdatedAt = time.Now()
	return nil
}

// DisableSchedule suspends a schedule without forgetting its history.
func (s *Scheduler) DisableSchedule(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	schedule, exists := s.schedules[id]
	if !exists {
		return fmt.Errorf("scheduler: schedule %s not found", id)
	}
	if !schedule.Enabled {
		return nil
	}
	if entryID, exists := s.entries[id]; exists {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
	schedule.Enabled = false
	schedule.UpdatedAt = time.Now()
	return nil
}

// RunNow fires schedule id immediately, outside its normal cadence.
func (s *Scheduler) RunNow(id string) error {
	go s.executeSchedule(id)
	return nil
}

func (s *Scheduler) executeSchedule(id string) {
	s.mu.Lock()
	schedule, exists := s.schedules[id]
	if !exists {
		s.mu.Unlock()
		return
	}
	schedule.LastRun = time.Now()
	schedule.RunCount++
	s.mu.Unlock()

	_, err := s.executor.Execute(context.Background(), schedule)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		schedule.FailCount++
		schedule.LastError = err.Error()
	} else {
		schedule.LastError = ""
	}
	if cronSchedule, parseErr := cronParser.Parse(schedule.CronExpr); parseErr == nil {
		schedule.NextRun = cronSchedule.Next(time.Now())
	}
}

// Stats summarizes the scheduler's current state.
type Stats struct {
	TotalSchedules    int       `json:"total_schedules"`
	ActiveSchedules   int       `json:"active_schedules"`
	DisabledSchedules int       `json:"disabled_schedules"`
	NextRun           time.Time `json:"next_run"`
}

// GetStats computes the current Stats snapshot.
func (s *Scheduler) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{TotalSchedules: len(s.schedules)}
	var nextRun time.Time
	for _, schedule := range s.schedules {
		if schedule.Enabled {
			stats.ActiveSchedules++
			if nextRun.IsZero() || schedule.NextRun.Before(nextRun) {
				nextRun = schedule.NextRun
			}
		} else {
			stats.DisabledSchedules++
		}
	}
	stats.NextRun = nextRun
	return stats
}
