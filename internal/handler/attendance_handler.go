package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classmark/attendance-api/internal/models"
	"github.com/classmark/attendance-api/internal/service"
	appErrors "github.com/classmark/attendance-api/pkg/errors"
	"github.com/classmark/attendance-api/pkg/response"
)

type attendanceService interface {
	ListTodaySessions(ctx context.Context, claims *models.JWTClaims, userID string) (map[string]models.CourseTodaySessions, error)
	GetSessionDetail(ctx context.Context, claims *models.JWTClaims, sessionID string) (*models.SessionDetail, error)
	RecordStatus(ctx context.Context, claims *models.JWTClaims, sessionID string, req service.RecordStatusRequest) (*models.LogEntry, error)
	AssociateTag(ctx context.Context, claims *models.JWTClaims, req service.AssociateTagRequest) (*models.TagAssociationResult, error)
}

type sheetExporter interface {
	SessionSheet(ctx context.Context, claims *models.JWTClaims, sessionID string, format service.ExportFormat) (*service.ExportResult, error)
}

// AttendanceHandler wires HTTP endpoints to the attendance service.
type AttendanceHandler struct {
	service attendanceService
	export  sheetExporter
}

// NewAttendanceHandler creates a new handler.
func NewAttendanceHandler(svc attendanceService, export sheetExporter) *AttendanceHandler {
	return &AttendanceHandler{service: svc, export: export}
}

// ListTodaySessions godoc
// @Summary List today's sessions for a user
// @Description Returns the caller's courses with attendance sessions scheduled today
// @Tags Attendance
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /attendance/users/{id}/today-sessions [get]
func (h *AttendanceHandler) ListTodaySessions(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	courses, err := h.service.ListTodaySessions(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, courses, nil)
}

// GetSessionDetail godoc
// @Summary Get session detail
// @Description Returns the session, its status set, the course roster and recorded statuses
// @Tags Attendance
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/sessions/{id} [get]
func (h *AttendanceHandler) GetSessionDetail(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	detail, err := h.service.GetSessionDetail(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, detail, nil)
}

// RecordStatus godoc
// @Summary Record a student's status
// @Description Inserts or updates the single attendance log row for the student in the session
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.RecordStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /attendance/sessions/{id}/status [put]
func (h *AttendanceHandler) RecordStatus(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.RecordStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}

	entry, err := h.service.RecordStatus(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, entry, nil)
}

// AssociateTag godoc
// @Summary Associate a tag with a student
// @Description Binds a physical tag value to a student's configured profile field
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.AssociateTagRequest true "Tag payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /attendance/tags [post]
func (h *AttendanceHandler) AssociateTag(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.AssociateTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid tag payload"))
		return
	}

	result, err := h.service.AssociateTag(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

// ExportSessionSheet godoc
// @Summary Export a session attendance sheet
// @Description Renders the session roster with recorded statuses as CSV or PDF
// @Tags Attendance
// @Produce octet-stream
// @Param id path string true "Session ID"
// @Param format query string false "Export format (csv or pdf)" default(csv)
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/sessions/{id}/export [get]
func (h *AttendanceHandler) ExportSessionSheet(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	format := service.ExportFormat(c.DefaultQuery("format", string(service.ExportFormatCSV)))
	result, err := h.export.SessionSheet(c.Request.Context(), claims, c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Data(http.StatusOK, result.ContentType, result.Payload)
}
