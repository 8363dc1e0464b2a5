package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/classmark/attendance-api/internal/models"
)

// CourseRepository reads course enrollments, attendance activities and
// per-course capability grants.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// EnrolledCourses returns the courses a user is actively enrolled in.
func (r *CourseRepository) EnrolledCourses(ctx context.Context, userID string) ([]models.Course, error) {
	const query = `SELECT c.id, c.shortname, c.fullname
FROM courses c
JOIN course_enrollments ce ON ce.course_id = c.id
WHERE ce.user_id = $1 AND ce.active
ORDER BY c.shortname ASC`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, userID); err != nil {
		return nil, fmt.Errorf("list enrolled courses: %w", err)
	}
	return courses, nil
}

// ActivitiesInCourses returns the attendance activities attached to the courses.
func (r *CourseRepository) ActivitiesInCourses(ctx context.Context, courseIDs []string) ([]models.Activity, error) {
	if len(courseIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT id, course_id, name, grade
FROM attendance_activities WHERE course_id IN (%s) ORDER BY name ASC`, placeholders(len(courseIDs)))
	args := make([]interface{}, len(courseIDs))
	for i, id := range courseIDs {
		args[i] = id
	}
	var activities []models.Activity
	if err := r.db.SelectContext(ctx, &activities, query, args...); err != nil {
		return nil, fmt.Errorf("list activities in courses: %w", err)
	}
	return activities, nil
}

// HasCapability reports whether the user holds the capability in the course scope.
func (r *CourseRepository) HasCapability(ctx context.Context, userID, courseID string, capability models.Capability) (bool, error) {
	const query = `SELECT EXISTS (
SELECT 1 FROM course_capabilities WHERE course_id = $1 AND user_id = $2 AND capability = $3)`
	var held bool
	if err := r.db.GetContext(ctx, &held, query, courseID, userID, capability); err != nil {
		return false, fmt.Errorf("check capability %s: %w", capability, err)
	}
	return held, nil
}

func placeholders(n int) string {
	values := make([]string, n)
	for i := 1; i <= n; i++ {
		values[i-1] = fmt.Sprintf("$%d", i)
	}
	return strings.Join(values, ",")
}
