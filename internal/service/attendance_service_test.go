package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classmark/attendance-api/internal/models"
	appErrors "github.com/classmark/attendance-api/pkg/errors"
)

type mockCourseRepo struct {
	courses      []models.Course
	activities   []models.Activity
	capabilities map[string]bool
}

func (m *mockCourseRepo) EnrolledCourses(ctx context.Context, userID string) ([]models.Course, error) {
	return m.courses, nil
}

func (m *mockCourseRepo) ActivitiesInCourses(ctx context.Context, courseIDs []string) ([]models.Activity, error) {
	return m.activities, nil
}

func (m *mockCourseRepo) HasCapability(ctx context.Context, userID, courseID string, capability models.Capability) (bool, error) {
	return m.capabilities[courseID+"/"+string(capability)], nil
}

type logKey struct {
	sessionID string
	studentID string
}

type mockSessionRepo struct {
	session      *models.Session
	findErr      error
	courseID     string
	courseIDErr  error
	statuses     []models.Status
	today        map[string][]models.Session
	logs         map[logKey]models.LogEntry
	touchMissing bool
	touchCount   int
}

func (m *mockSessionRepo) Find(ctx context.Context, id string) (*models.Session, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.session, nil
}

func (m *mockSessionRepo) ActivityCourseID(ctx context.Context, activityID string) (string, error) {
	if m.courseIDErr != nil {
		return "", m.courseIDErr
	}
	return m.courseID, nil
}

func (m *mockSessionRepo) Statuses(ctx context.Context, activityID string, statusSet int) ([]models.Status, error) {
	return m.statuses, nil
}

func (m *mockSessionRepo) TodaySessionsByActivity(ctx context.Context, activityIDs []string, day time.Time) (map[string][]models.Session, error) {
	return m.today, nil
}

func (m *mockSessionRepo) LogsBySession(ctx context.Context, sessionID string) (map[string]models.LogEntry, error) {
	result := map[string]models.LogEntry{}
	for key, entry := range m.logs {
		if key.sessionID == sessionID {
			result[key.studentID] = entry
		}
	}
	return result, nil
}

func (m *mockSessionRepo) TouchLastTaken(ctx context.Context, sessionID, takenBy string, ts time.Time) (bool, error) {
	m.touchCount++
	return !m.touchMissing, nil
}

func (m *mockSessionRepo) UpsertLog(ctx context.Context, entry *models.LogEntry) (*models.LogEntry, error) {
	if m.logs == nil {
		m.logs = map[logKey]models.LogEntry{}
	}
	key := logKey{sessionID: entry.SessionID, studentID: entry.StudentID}
	stored := *entry
	if existing, ok := m.logs[key]; ok {
		stored.ID = existing.ID
		if stored.Remarks == nil {
			stored.Remarks = existing.Remarks
		}
	} else if stored.ID == "" {
		stored.ID = "log-1"
	}
	m.logs[key] = stored
	return &stored, nil
}

type mockRosterRepo struct {
	users []models.RosterUser
}

func (m *mockRosterRepo) ListForCourse(ctx context.Context, courseID string, capability models.Capability, tagFieldID string) ([]models.RosterUser, error) {
	return m.users, nil
}

type mockTagRepo struct {
	valueInUse bool
	studentHas bool
	insertLost bool
	inserted   []*models.TagAssociation
}

func (m *mockTagRepo) ValueInUse(ctx context.Context, fieldID, value string) (bool, error) {
	return m.valueInUse, nil
}

func (m *mockTagRepo) StudentHasValue(ctx context.Context, fieldID, userID string) (bool, error) {
	return m.studentHas, nil
}

func (m *mockTagRepo) Insert(ctx context.Context, association *models.TagAssociation) (bool, error) {
	if m.insertLost {
		return false, nil
	}
	m.inserted = append(m.inserted, association)
	return true, nil
}

type stubSettings struct {
	fieldID string
}

func (s *stubSettings) TagFieldID(ctx context.Context) (string, error) {
	return s.fieldID, nil
}

type mockAudit struct {
	logs []*models.AuditLog
}

func (m *mockAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

func newAttendanceService(courses *mockCourseRepo, sessions *mockSessionRepo, roster *mockRosterRepo,
	tags *mockTagRepo, settings *stubSettings, audit *mockAudit) *AttendanceService {
	return NewAttendanceService(courses, sessions, roster, tags, settings, audit,
		nil, time.Minute, validator.New(), zap.NewNop())
}

func TestListTodaySessionsRejectsOtherUser(t *testing.T) {
	svc := newAttendanceService(&mockCourseRepo{}, &mockSessionRepo{}, &mockRosterRepo{}, &mockTagRepo{}, &stubSettings{}, &mockAudit{})
	claims := &models.JWTClaims{UserID: "u1"}

	_, err := svc.ListTodaySessions(context.Background(), claims, "u2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestListTodaySessionsGroupsByCourse(t *testing.T) {
	courses := &mockCourseRepo{
		courses: []models.Course{
			{ID: "c1", ShortName: "MATH", FullName: "Mathematics"},
			{ID: "c2", ShortName: "PHYS", FullName: "Physics"},
		},
		activities: []models.Activity{
			{ID: "a1", CourseID: "c1", Name: "Morning roll"},
			{ID: "a2", CourseID: "c1", Name: "Lab roll"},
			{ID: "a3", CourseID: "c2", Name: "Physics roll"},
		},
		capabilities: map[string]bool{
			"c1/" + string(models.CapabilityTakeAttendance): true,
		},
	}
	sessions := &mockSessionRepo{
		today: map[string][]models.Session{
			"a1": {{ID: "s1", ActivityID: "a1"}},
		},
	}
	svc := newAttendanceService(courses, sessions, &mockRosterRepo{}, &mockTagRepo{}, &stubSettings{}, &mockAudit{})

	result, err := svc.ListTodaySessions(context.Background(), &models.JWTClaims{UserID: "u1"}, "u1")
	require.NoError(t, err)

	require.Len(t, result, 1)
	course, ok := result["c1"]
	require.True(t, ok)
	assert.Equal(t, "MATH", course.ShortName)
	require.Len(t, course.Activities, 1)
	assert.Len(t, course.Activities["a1"].TodaySessions, 1)
}

func TestListTodaySessionsEmptyWhenNotEnrolled(t *testing.T) {
	svc := newAttendanceService(&mockCourseRepo{}, &mockSessionRepo{}, &mockRosterRepo{}, &mockTagRepo{}, &stubSettings{}, &mockAudit{})

	result, err := svc.ListTodaySessions(context.Background(), &models.JWTClaims{UserID: "u1"}, "u1")
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestGetSessionDetailNotFound(t *testing.T) {
	sessions := &mockSessionRepo{findErr: sql.ErrNoRows}
	svc := newAttendanceService(&mockCourseRepo{}, sessions, &mockRosterRepo{}, &mockTagRepo{}, &stubSettings{}, &mockAudit{})

	_, err := svc.GetSessionDetail(context.Background(), &models.JWTClaims{UserID: "u1"}, "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGetSessionDetailForbiddenWithoutCapability(t *testing.T) {
	sessions := &mockSessionRepo{
		session:  &models.Session{ID: "s1", ActivityID: "a1"},
		courseID: "c1",
	}
	svc := newAttendanceService(&mockCourseRepo{capabilities: map[string]bool{}}, sessions, &mockRosterRepo{}, &mockTagRepo{}, &stubSettings{}, &mockAudit{})

	_, err := svc.GetSessionDetail(context.Background(), &models.JWTClaims{UserID: "u1"}, "s1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestGetSessionDetailComposes(t *testing.T) {
	remarks := "late bus"
	sessions := &mockSessionRepo{
		session:  &models.Session{ID: "s1", ActivityID: "a1", StatusSet: 0},
		courseID: "c1",
		statuses: []models.Status{{ID: "st1", Acronym: "P"}},
		logs: map[logKey]models.LogEntry{
			{sessionID: "s1", studentID: "stu1"}: {ID: "log-1", SessionID: "s1", StudentID: "stu1", StatusID: "st1", Remarks: &remarks},
		},
	}
	courses := &mockCourseRepo{capabilities: map[string]bool{
		"c1/" + string(models.CapabilityTakeAttendance): true,
	}}
	roster := &mockRosterRepo{users: []models.RosterUser{{ID: "stu1", FirstName: "Ada", LastName: "Lovelace"}}}
	svc := newAttendanceService(courses, sessions, roster, &mockTagRepo{}, &stubSettings{fieldID: "f1"}, &mockAudit{})

	detail, err := svc.GetSessionDetail(context.Background(), &models.JWTClaims{UserID: "u1"}, "s1")
	require.NoError(t, err)
	assert.Equal(t, "c1", detail.CourseID)
	assert.Len(t, detail.Statuses, 1)
	assert.Len(t, detail.Users, 1)
	require.Contains(t, detail.Log, "stu1")
	assert.Equal(t, "st1", detail.Log["stu1"].StatusID)
}

func TestRecordStatusRejectsActorMismatch(t *testing.T) {
	svc := newAttendanceService(&mockCourseRepo{}, &mockSessionRepo{}, &mockRosterRepo{}, &mockTagRepo{}, &stubSettings{}, &mockAudit{})

	_, err := svc.RecordStatus(context.Background(), &models.JWTClaims{UserID: "u1"}, "s1", RecordStatusRequest{
		StudentID: "stu1",
		TakenByID: "someone-else",
		StatusID:  "st1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestRecordStatusUpdatesInsteadOfDuplicating(t *testing.T) {
	sessions := &mockSessionRepo{}
	audit := &mockAudit{}
	svc := newAttendanceService(&mockCourseRepo{}, sessions, &mockRosterRepo{}, &mockTagRepo{}, &stubSettings{}, audit)
	claims := &models.JWTClaims{UserID: "teacher"}

	remarks := "arrived late"
	first, err := svc.RecordStatus(context.Background(), claims, "s1", RecordStatusRequest{
		StudentID: "stu1", TakenByID: "teacher", StatusID: "st-late", Remarks: &remarks,
	})
	require.NoError(t, err)

	second, err := svc.RecordStatus(context.Background(), claims, "s1", RecordStatusRequest{
		StudentID: "stu1", TakenByID: "teacher", StatusID: "st-present",
	})
	require.NoError(t, err)

	assert.Len(t, sessions.logs, 1)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "st-present", second.StatusID)
	require.NotNil(t, second.Remarks)
	assert.Equal(t, "arrived late", *second.Remarks)
	assert.Len(t, audit.logs, 2)
}

func TestRecordStatusToleratesMissingSessionRow(t *testing.T) {
	sessions := &mockSessionRepo{touchMissing: true}
	svc := newAttendanceService(&mockCourseRepo{}, sessions, &mockRosterRepo{}, &mockTagRepo{}, &stubSettings{}, &mockAudit{})

	entry, err := svc.RecordStatus(context.Background(), &models.JWTClaims{UserID: "teacher"}, "ghost", RecordStatusRequest{
		StudentID: "stu1", TakenByID: "teacher", StatusID: "st1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sessions.touchCount)
	assert.Equal(t, "ghost", entry.SessionID)
}

func TestAssociateTagOutcomes(t *testing.T) {
	claims := &models.JWTClaims{UserID: "teacher"}
	req := AssociateTagRequest{StudentID: "stu1", TagValue: "TAG-1"}

	t.Run("value already in use", func(t *testing.T) {
		svc := newAttendanceService(&mockCourseRepo{}, &mockSessionRepo{}, &mockRosterRepo{},
			&mockTagRepo{valueInUse: true}, &stubSettings{fieldID: "f1"}, &mockAudit{})
		result, err := svc.AssociateTag(context.Background(), claims, req)
		require.NoError(t, err)
		assert.Equal(t, models.TagAlreadyInUse, result.Outcome)
	})

	t.Run("student already holds a tag", func(t *testing.T) {
		svc := newAttendanceService(&mockCourseRepo{}, &mockSessionRepo{}, &mockRosterRepo{},
			&mockTagRepo{studentHas: true}, &stubSettings{fieldID: "f1"}, &mockAudit{})
		result, err := svc.AssociateTag(context.Background(), claims, req)
		require.NoError(t, err)
		assert.Equal(t, models.TagAlreadyHeldByStudent, result.Outcome)
	})

	t.Run("concurrent writer wins the insert", func(t *testing.T) {
		svc := newAttendanceService(&mockCourseRepo{}, &mockSessionRepo{}, &mockRosterRepo{},
			&mockTagRepo{insertLost: true}, &stubSettings{fieldID: "f1"}, &mockAudit{})
		result, err := svc.AssociateTag(context.Background(), claims, req)
		require.NoError(t, err)
		assert.Equal(t, models.TagAlreadyInUse, result.Outcome)
	})

	t.Run("associated", func(t *testing.T) {
		tags := &mockTagRepo{}
		audit := &mockAudit{}
		svc := newAttendanceService(&mockCourseRepo{}, &mockSessionRepo{}, &mockRosterRepo{},
			tags, &stubSettings{fieldID: "f1"}, audit)
		result, err := svc.AssociateTag(context.Background(), claims, req)
		require.NoError(t, err)
		assert.Equal(t, models.TagAssociated, result.Outcome)
		require.Len(t, tags.inserted, 1)
		assert.Equal(t, "f1", tags.inserted[0].FieldID)
		assert.Len(t, audit.logs, 1)
	})
}

func TestAssociateTagRequiresConfiguredField(t *testing.T) {
	svc := newAttendanceService(&mockCourseRepo{}, &mockSessionRepo{}, &mockRosterRepo{},
		&mockTagRepo{}, &stubSettings{fieldID: ""}, &mockAudit{})

	_, err := svc.AssociateTag(context.Background(), &models.JWTClaims{UserID: "teacher"},
		AssociateTagRequest{StudentID: "stu1", TagValue: "TAG-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}
