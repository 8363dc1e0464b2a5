package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/classmark/attendance-api/internal/models"
	appErrors "github.com/classmark/attendance-api/pkg/errors"
)

type courseRepository interface {
	EnrolledCourses(ctx context.Context, userID string) ([]models.Course, error)
	ActivitiesInCourses(ctx context.Context, courseIDs []string) ([]models.Activity, error)
	HasCapability(ctx context.Context, userID, courseID string, capability models.Capability) (bool, error)
}

type sessionRepository interface {
	Find(ctx context.Context, id string) (*models.Session, error)
	ActivityCourseID(ctx context.Context, activityID string) (string, error)
	Statuses(ctx context.Context, activityID string, statusSet int) ([]models.Status, error)
	TodaySessionsByActivity(ctx context.Context, activityIDs []string, day time.Time) (map[string][]models.Session, error)
	LogsBySession(ctx context.Context, sessionID string) (map[string]models.LogEntry, error)
	TouchLastTaken(ctx context.Context, sessionID, takenBy string, ts time.Time) (bool, error)
	UpsertLog(ctx context.Context, entry *models.LogEntry) (*models.LogEntry, error)
}

type rosterRepository interface {
	ListForCourse(ctx context.Context, courseID string, capability models.Capability, tagFieldID string) ([]models.RosterUser, error)
}

type tagRepository interface {
	ValueInUse(ctx context.Context, fieldID, value string) (bool, error)
	StudentHasValue(ctx context.Context, fieldID, userID string) (bool, error)
	Insert(ctx context.Context, association *models.TagAssociation) (bool, error)
}

type tagFieldProvider interface {
	TagFieldID(ctx context.Context) (string, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AttendanceService implements the attendance webservice operations.
type AttendanceService struct {
	courses   courseRepository
	sessions  sessionRepository
	roster    rosterRepository
	tags      tagRepository
	settings  tagFieldProvider
	audit     auditLogger
	cache     *CacheService
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(courses courseRepository, sessions sessionRepository, roster rosterRepository,
	tags tagRepository, settings tagFieldProvider, audit auditLogger, cache *CacheService,
	cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		courses:   courses,
		sessions:  sessions,
		roster:    roster,
		tags:      tags,
		settings:  settings,
		audit:     audit,
		cache:     cache,
		cacheTTL:  cacheTTL,
		validator: validate,
		logger:    logger,
	}
}

// ListTodaySessions returns the caller's courses holding attendance activities
// with sessions scheduled today. The operation only ever answers for the
// caller's own identity.
func (s *AttendanceService) ListTodaySessions(ctx context.Context, claims *models.JWTClaims, userID string) (map[string]models.CourseTodaySessions, error) {
	if claims == nil || claims.UserID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "today sessions can only be listed for the calling user")
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	cacheKey := fmt.Sprintf("attendance:today:%s:%s", userID, today.Format("2006-01-02"))
	cached := map[string]models.CourseTodaySessions{}
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return cached, nil
	}

	courses, err := s.courses.EnrolledCourses(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrolled courses")
	}
	result := map[string]models.CourseTodaySessions{}
	if len(courses) == 0 {
		return result, nil
	}

	courseByID := make(map[string]models.Course, len(courses))
	courseIDs := make([]string, 0, len(courses))
	for _, course := range courses {
		courseByID[course.ID] = course
		courseIDs = append(courseIDs, course.ID)
	}

	activities, err := s.courses.ActivitiesInCourses(ctx, courseIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance activities")
	}

	allowed := make([]models.Activity, 0, len(activities))
	capabilityByCourse := map[string]bool{}
	for _, activity := range activities {
		held, ok := capabilityByCourse[activity.CourseID]
		if !ok {
			held, err = s.courses.HasCapability(ctx, userID, activity.CourseID, models.CapabilityTakeAttendance)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check capability")
			}
			capabilityByCourse[activity.CourseID] = held
		}
		if held {
			allowed = append(allowed, activity)
		}
	}
	if len(allowed) == 0 {
		return result, nil
	}

	activityIDs := make([]string, len(allowed))
	for i, activity := range allowed {
		activityIDs[i] = activity.ID
	}
	sessionsByActivity, err := s.sessions.TodaySessionsByActivity(ctx, activityIDs, today)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list today sessions")
	}

	for _, activity := range allowed {
		todaySessions := sessionsByActivity[activity.ID]
		if len(todaySessions) == 0 {
			continue
		}
		course := courseByID[activity.CourseID]
		entry, ok := result[course.ID]
		if !ok {
			entry = models.CourseTodaySessions{
				ShortName:  course.ShortName,
				FullName:   course.FullName,
				Activities: map[string]models.ActivityTodaySessions{},
			}
		}
		entry.Activities[activity.ID] = models.ActivityTodaySessions{
			Name:          activity.Name,
			TodaySessions: todaySessions,
		}
		result[course.ID] = entry
	}

	if err := s.cache.Set(ctx, cacheKey, result, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache today sessions", zap.String("user_id", userID), zap.Error(err))
	}
	return result, nil
}

// GetSessionDetail composes everything needed to take attendance for a session.
func (s *AttendanceService) GetSessionDetail(ctx context.Context, claims *models.JWTClaims, sessionID string) (*models.SessionDetail, error) {
	session, err := s.sessions.Find(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	courseID, err := s.sessions.ActivityCourseID(ctx, session.ActivityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance activity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve owning course")
	}

	if err := s.requireCapability(ctx, claims, courseID, models.CapabilityTakeAttendance); err != nil {
		return nil, err
	}

	statuses, err := s.sessions.Statuses(ctx, session.ActivityID, session.StatusSet)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load statuses")
	}

	fieldID, err := s.settings.TagFieldID(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve tag field")
	}

	users, err := s.roster.ListForCourse(ctx, courseID, models.CapabilityCanBeListed, fieldID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}

	log, err := s.sessions.LogsBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session log")
	}

	return &models.SessionDetail{
		Session:  *session,
		CourseID: courseID,
		Statuses: statuses,
		Users:    users,
		Log:      log,
	}, nil
}

// RecordStatusRequest carries a single status submission.
type RecordStatusRequest struct {
	StudentID string  `json:"student_id" validate:"required"`
	TakenByID string  `json:"taken_by_id" validate:"required"`
	StatusID  string  `json:"status_id" validate:"required"`
	StatusSet int     `json:"status_set"`
	Remarks   *string `json:"remarks"`
}

// RecordStatus persists one student's status for a session. The actor field
// must match the calling identity; no further capability check happens on this
// path, matching the webservice contract.
func (s *AttendanceService) RecordStatus(ctx context.Context, claims *models.JWTClaims, sessionID string, req RecordStatusRequest) (*models.LogEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if claims == nil || claims.UserID != req.TakenByID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "status must be recorded by the calling user")
	}

	now := time.Now().UTC()
	touched, err := s.sessions.TouchLastTaken(ctx, sessionID, req.TakenByID, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session")
	}
	if !touched {
		s.logger.Warn("recording status for session without a session row", zap.String("session_id", sessionID))
	}

	entry := &models.LogEntry{
		SessionID: sessionID,
		StudentID: req.StudentID,
		StatusID:  req.StatusID,
		StatusSet: req.StatusSet,
		TimeTaken: now,
		TakenBy:   req.TakenByID,
		Remarks:   req.Remarks,
	}
	stored, err := s.sessions.UpsertLog(ctx, entry)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record status")
	}

	s.writeAudit(ctx, claims, models.AuditActionStatusRecord, "attendance_log", stored.ID, map[string]string{
		"session_id": sessionID,
		"student_id": req.StudentID,
		"status_id":  req.StatusID,
	})
	return stored, nil
}

// AssociateTagRequest binds a physical tag value to a student.
type AssociateTagRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	TagValue  string `json:"tag_value" validate:"required"`
}

// AssociateTag attempts to bind the tag value to the student and reports a
// three-way outcome. The insert relies on unique constraints, so a concurrent
// winner downgrades the result to TagAlreadyInUse instead of duplicating rows.
func (s *AttendanceService) AssociateTag(ctx context.Context, claims *models.JWTClaims, req AssociateTagRequest) (*models.TagAssociationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	fieldID, err := s.settings.TagFieldID(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve tag field")
	}
	if fieldID == "" {
		return nil, appErrors.Clone(appErrors.ErrInternal, "tag field is not configured")
	}

	used, err := s.tags.ValueInUse(ctx, fieldID, req.TagValue)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check tag value")
	}
	if used {
		return &models.TagAssociationResult{Outcome: models.TagAlreadyInUse}, nil
	}

	held, err := s.tags.StudentHasValue(ctx, fieldID, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student tag")
	}
	if held {
		return &models.TagAssociationResult{Outcome: models.TagAlreadyHeldByStudent}, nil
	}

	inserted, err := s.tags.Insert(ctx, &models.TagAssociation{
		FieldID: fieldID,
		UserID:  req.StudentID,
		Value:   req.TagValue,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to associate tag")
	}
	if !inserted {
		return &models.TagAssociationResult{Outcome: models.TagAlreadyInUse}, nil
	}

	s.writeAudit(ctx, claims, models.AuditActionTagAssociate, "profile_field_data", req.StudentID, map[string]string{
		"field_id": fieldID,
	})
	return &models.TagAssociationResult{Outcome: models.TagAssociated}, nil
}

func (s *AttendanceService) requireCapability(ctx context.Context, claims *models.JWTClaims, courseID string, capability models.Capability) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	held, err := s.courses.HasCapability(ctx, claims.UserID, courseID, capability)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check capability")
	}
	if !held {
		return appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("missing %s capability in course", capability))
	}
	return nil
}

func (s *AttendanceService) writeAudit(ctx context.Context, claims *models.JWTClaims, action, resource, resourceID string, values map[string]string) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(values)
	var userID *string
	if claims != nil {
		userID = &claims.UserID
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
