// Package api exposes the admin/status HTTP surface: migration-record
// lookup, health check, and manual job-sender triggering over the
// scheduler, built on the teacher's gin + gin-contrib/cors stack.
package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"objectreplicator/pkg/scheduler"
	"objectreplicator/pkg/state"
)

// App holds the dependencies the HTTP handlers need.
type App struct {
	Store     state.Store
	Scheduler *scheduler.Scheduler
	SrcBucket string
}

// SetupRouter builds the gin engine for the admin/status server.
func SetupRouter(app *App) *gin.Engine {
	router := gin.Default()
	router.Use(requestID())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", app.HealthCheck)

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/records", app.ListRecords)
		apiGroup.GET("/records/*key", app.GetRecord)

		apiGroup.POST("/schedules", app.CreateSchedule)
		apiGroup.GET("/schedules", app.ListSchedules)
		apiGroup.GET("/schedules/stats", app.GetSchedulerStats)
		apiGroup.GET("/schedules/:id", app.GetSchedule)
		apiGroup.DELETE("/schedules/:id", app.DeleteSchedule)
		apiGroup.POST("/schedules/:id/enable", app.EnableSchedule)
		apiGroup.POST("/schedules/:id/disable", app.DisableSchedule)
		apiGroup.POST("/schedules/:id/run", app.RunScheduleNow)
	}

	return router
}

// requestID stamps every response with an X-Request-ID, generating one
// when the caller didn't supply it.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Writer.Header().Set("X-Request-ID", id)
		c.Set("request_id", id)
		c.Next()
	}
}
