package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"objectreplicator/pkg/scheduler"
)

type createScheduleRequest struct {
	Name     string `json:"name" binding:"required"`
	CronExpr string `json:"cron_expr" binding:"required"`
	Enabled  bool   `json:"enabled"`
}

// CreateSchedule registers a new recurring job-sender trigger.
func (a *App) CreateSchedule(c *gin.Context) {
	var req createScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sched := &scheduler.Schedule{
		ID:       uuid.NewString(),
		Name:     req.Name,
		CronExpr: req.CronExpr,
		Enabled:  req.Enabled,
	}
	if err := a.Scheduler.AddSchedule(sched); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, sched)
}

// ListSchedules returns every registered schedule.
func (a *App) ListSchedules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"schedules": a.Scheduler.ListSchedules()})
}

// GetSchedule returns one schedule by ID.
func (a *App) GetSchedule(c *gin.Context) {
	sched, err := a.Scheduler.GetSchedule(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sched)
}

// DeleteSchedule removes a schedule.
func (a *App) DeleteSchedule(c *gin.Context) {
	if err := a.Scheduler.RemoveSchedule(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// EnableSchedule re-arms a disabled schedule.
func (a *App) EnableSchedule(c *gin.Context) {
	if err := a.Scheduler.EnableSchedule(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// DisableSchedule suspends a schedule.
func (a *App) DisableSchedule(c *gin.Context) {
	if err := a.Scheduler.DisableSchedule(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// RunScheduleNow triggers a schedule's job-sender pass immediately.
func (a *App) RunScheduleNow(c *gin.Context) {
	if err := a.Scheduler.RunNow(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusAccepted)
}

// GetSchedulerStats returns the scheduler's summary counters.
func (a *App) GetSchedulerStats(c *gin.Context) {
	c.JSON(http.StatusOK, a.Scheduler.GetStats())
}
