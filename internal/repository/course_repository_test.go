package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classmark/attendance-api/internal/models"
)

func TestCourseRepositoryEnrolledCourses(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	rows := sqlmock.NewRows([]string{"id", "shortname", "fullname"}).
		AddRow("c1", "MATH", "Mathematics").
		AddRow("c2", "PHYS", "Physics")
	mock.ExpectQuery("SELECT c.id, c.shortname, c.fullname").
		WithArgs("u1").
		WillReturnRows(rows)

	courses, err := repo.EnrolledCourses(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, courses, 2)
	assert.Equal(t, "MATH", courses[0].ShortName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryActivitiesInCourses(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	rows := sqlmock.NewRows([]string{"id", "course_id", "name", "grade"}).
		AddRow("a1", "c1", "Morning roll", 100.0)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE course_id IN ($1,$2)")).
		WithArgs("c1", "c2").
		WillReturnRows(rows)

	activities, err := repo.ActivitiesInCourses(context.Background(), []string{"c1", "c2"})
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Equal(t, "Morning roll", activities[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryActivitiesEmptyInput(t *testing.T) {
	db, _, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	activities, err := repo.ActivitiesInCourses(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, activities)
}

func TestCourseRepositoryHasCapability(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("c1", "u1", string(models.CapabilityTakeAttendance)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	held, err := repo.HasCapability(context.Background(), "u1", "c1", models.CapabilityTakeAttendance)
	require.NoError(t, err)
	assert.True(t, held)
	assert.NoError(t, mock.ExpectationsWereMet())
}
