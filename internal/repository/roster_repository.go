package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/classmark/attendance-api/internal/models"
)

// RosterRepository loads course rosters with resolved tag values.
type RosterRepository struct {
	db *sqlx.DB
}

// NewRosterRepository constructs the repository.
func NewRosterRepository(db *sqlx.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

// ListForCourse returns enrolled users holding the capability in the course,
// each with the stored value of the given profile field when one exists.
func (r *RosterRepository) ListForCourse(ctx context.Context, courseID string, capability models.Capability, tagFieldID string) ([]models.RosterUser, error) {
	const query = `SELECT u.id, u.first_name, u.last_name, pfd.value AS tag_value
FROM users u
JOIN course_enrollments ce ON ce.user_id = u.id
JOIN course_capabilities cc ON cc.user_id = u.id AND cc.course_id = ce.course_id
LEFT JOIN profile_field_data pfd ON pfd.user_id = u.id AND pfd.field_id = $3
WHERE ce.course_id = $1 AND ce.active AND cc.capability = $2
ORDER BY u.last_name ASC, u.first_name ASC`
	var users []models.RosterUser
	if err := r.db.SelectContext(ctx, &users, query, courseID, capability, tagFieldID); err != nil {
		return nil, fmt.Errorf("list course roster: %w", err)
	}
	return users, nil
}
