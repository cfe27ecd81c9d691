package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"objectreplicator/pkg/core"
	"objectreplicator/pkg/scheduler"
)

type fakeStore struct {
	records map[string]*core.MigrationRecord
}

func (s *fakeStore) LogJobStart(ctx context.Context, srcBucket, srcPrefix, desBucket, desPrefix string, job core.JobInfo, extraArgs map[string]string) error {
	return nil
}
func (s *fakeStore) LogJobEnd(ctx context.Context, srcBucket, key, etag, errString string) error {
	return nil
}
func (s *fakeStore) CheckSequencer(ctx context.Context, key, sequencer string) (bool, error) {
	return true, nil
}
func (s *fakeStore) GetRecord(ctx context.Context, srcBucket, key string) (*core.MigrationRecord, error) {
	return s.records[key], nil
}
func (s *fakeStore) ListRecords(ctx context.Context, srcBucket string, limit int) ([]core.MigrationRecord, error) {
	var out []core.MigrationRecord
	for _, r := range s.records {
		out = append(out, *r)
	}
	return out, nil
}

type fakeExecutor struct{}

func (fakeExecutor) Execute(ctx context.Context, schedule *scheduler.Schedule) (int, error) {
	return 0, nil
}

func newTestRouter() (*gin.Engine, *fakeStore) {
	gin.SetMode(gin.TestMode)
	store := &fakeStore{records: map[string]*core.MigrationRecord{}}
	app := &App{
		Store:     store,
		Scheduler: scheduler.NewScheduler(fakeExecutor{}),
		SrcBucket: "src-bucket",
	}
	return SetupRouter(app), store
}

func TestHealthCheckReturnsOK(t *testing.T) {
	router, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestGetRecordNotFoundReturns404(t *testing.T) {
	router, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/records/missing.txt", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRecordFound(t *testing.T) {
	router, store := newTestRouter()
	store.records["photo.jpg"] = &core.MigrationRecord{ObjectKey: "src-bucket/photo.jpg", Size: 10}

	req := httptest.NewRequest(http.MethodGet, "/api/records/photo.jpg", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "photo.jpg")
}

func TestListRecordsReturnsCount(t *testing.T) {
	router, store := newTestRouter()
	store.records["a.txt"] = &core.MigrationRecord{ObjectKey: "src-bucket/a.txt"}

	req := httptest.NewRequest(http.MethodGet, "/api/records", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
}

func TestCreateAndListScheduleRoundtrip(t *testing.T) {
	router, _ := newTestRouter()

	body := `{"name":"hourly","cron_expr":"0 0 * * * *","enabled":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/schedules", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "hourly")

	listReq := httptest.NewRequest(http.MethodGet, "/api/schedules", nil)
	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, listReq)

	assert.Equal(t, http.StatusOK, listRec.Code)
	assert.Contains(t, listRec.Body.String(), "hourly")
}

func TestCreateScheduleRejectsMissingFields(t *testing.T) {
	router, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/schedules", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestIDHeaderIsStamped(t *testing.T) {
	router, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
