package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classmark/attendance-api/internal/middleware"
	"github.com/classmark/attendance-api/internal/models"
	"github.com/classmark/attendance-api/internal/service"
	appErrors "github.com/classmark/attendance-api/pkg/errors"
)

type attendanceServiceMock struct {
	today      map[string]models.CourseTodaySessions
	todayErr   error
	detail     *models.SessionDetail
	detailErr  error
	entry      *models.LogEntry
	recordErr  error
	tagResult  *models.TagAssociationResult
	tagErr     error
	lastUserID string
}

func (m *attendanceServiceMock) ListTodaySessions(ctx context.Context, claims *models.JWTClaims, userID string) (map[string]models.CourseTodaySessions, error) {
	m.lastUserID = userID
	return m.today, m.todayErr
}

func (m *attendanceServiceMock) GetSessionDetail(ctx context.Context, claims *models.JWTClaims, sessionID string) (*models.SessionDetail, error) {
	return m.detail, m.detailErr
}

func (m *attendanceServiceMock) RecordStatus(ctx context.Context, claims *models.JWTClaims, sessionID string, req service.RecordStatusRequest) (*models.LogEntry, error) {
	return m.entry, m.recordErr
}

func (m *attendanceServiceMock) AssociateTag(ctx context.Context, claims *models.JWTClaims, req service.AssociateTagRequest) (*models.TagAssociationResult, error) {
	return m.tagResult, m.tagErr
}

type exporterMock struct {
	result *service.ExportResult
	err    error
	format service.ExportFormat
}

func (m *exporterMock) SessionSheet(ctx context.Context, claims *models.JWTClaims, sessionID string, format service.ExportFormat) (*service.ExportResult, error) {
	m.format = format
	return m.result, m.err
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestAttendanceHandlerListTodaySessions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &attendanceServiceMock{today: map[string]models.CourseTodaySessions{
		"c1": {ShortName: "MATH", Activities: map[string]models.ActivityTodaySessions{}},
	}}
	h := NewAttendanceHandler(mockSvc, &exporterMock{})

	c, w := newGinContext(http.MethodGet, "/attendance/users/u1/today-sessions", nil)
	c.Params = gin.Params{{Key: "id", Value: "u1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1"})

	h.ListTodaySessions(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", mockSvc.lastUserID)
}

func TestAttendanceHandlerListTodaySessionsUnauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewAttendanceHandler(&attendanceServiceMock{}, &exporterMock{})

	c, w := newGinContext(http.MethodGet, "/attendance/users/u1/today-sessions", nil)
	c.Params = gin.Params{{Key: "id", Value: "u1"}}

	h.ListTodaySessions(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAttendanceHandlerGetSessionDetailNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &attendanceServiceMock{detailErr: appErrors.Clone(appErrors.ErrNotFound, "session not found")}
	h := NewAttendanceHandler(mockSvc, &exporterMock{})

	c, w := newGinContext(http.MethodGet, "/attendance/sessions/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1"})

	h.GetSessionDetail(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAttendanceHandlerRecordStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &attendanceServiceMock{entry: &models.LogEntry{ID: "l1", SessionID: "s1", StudentID: "stu1", StatusID: "st1"}}
	h := NewAttendanceHandler(mockSvc, &exporterMock{})

	payload, _ := json.Marshal(service.RecordStatusRequest{StudentID: "stu1", TakenByID: "u1", StatusID: "st1"})
	c, w := newGinContext(http.MethodPut, "/attendance/sessions/s1/status", payload)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1"})

	h.RecordStatus(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data models.LogEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "l1", envelope.Data.ID)
}

func TestAttendanceHandlerAssociateTag(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &attendanceServiceMock{tagResult: &models.TagAssociationResult{Outcome: models.TagAlreadyInUse}}
	h := NewAttendanceHandler(mockSvc, &exporterMock{})

	payload, _ := json.Marshal(service.AssociateTagRequest{StudentID: "stu1", TagValue: "TAG-1"})
	c, w := newGinContext(http.MethodPost, "/attendance/tags", payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1"})

	h.AssociateTag(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data models.TagAssociationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, models.TagAlreadyInUse, envelope.Data.Outcome)
}

func TestAttendanceHandlerExportSessionSheet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	exporter := &exporterMock{result: &service.ExportResult{
		Filename:    "attendance_s1_20260310.csv",
		ContentType: "text/csv",
		Payload:     []byte("Student,Tag,Status,Taken At,Remarks\n"),
	}}
	h := NewAttendanceHandler(&attendanceServiceMock{}, exporter)

	c, w := newGinContext(http.MethodGet, "/attendance/sessions/s1/export?format=csv", nil)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1"})

	h.ExportSessionSheet(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.ExportFormatCSV, exporter.format)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attendance_s1_20260310.csv")
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
}
