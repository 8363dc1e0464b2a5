package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/classmark/attendance-api/internal/models"
)

// TagRepository persists profile-field rows binding physical tags to students.
// profile_field_data carries UNIQUE (field_id, value) and UNIQUE (field_id,
// user_id), so concurrent association attempts cannot both win.
type TagRepository struct {
	db *sqlx.DB
}

// NewTagRepository constructs the repository.
func NewTagRepository(db *sqlx.DB) *TagRepository {
	return &TagRepository{db: db}
}

// ValueInUse reports whether any student already holds the tag value for the field.
func (r *TagRepository) ValueInUse(ctx context.Context, fieldID, value string) (bool, error) {
	const query = `SELECT EXISTS (
SELECT 1 FROM profile_field_data WHERE field_id = $1 AND value = $2)`
	var used bool
	if err := r.db.GetContext(ctx, &used, query, fieldID, value); err != nil {
		return false, fmt.Errorf("check tag value in use: %w", err)
	}
	return used, nil
}

// StudentHasValue reports whether the student already has a row for the field.
func (r *TagRepository) StudentHasValue(ctx context.Context, fieldID, userID string) (bool, error) {
	const query = `SELECT EXISTS (
SELECT 1 FROM profile_field_data WHERE field_id = $1 AND user_id = $2)`
	var held bool
	if err := r.db.GetContext(ctx, &held, query, fieldID, userID); err != nil {
		return false, fmt.Errorf("check student tag: %w", err)
	}
	return held, nil
}

// Insert writes the association. It reports false without error when a unique
// constraint absorbed the row, which means a concurrent writer got there first.
func (r *TagRepository) Insert(ctx context.Context, association *models.TagAssociation) (bool, error) {
	if association.ID == "" {
		association.ID = uuid.NewString()
	}
	const query = `INSERT INTO profile_field_data (id, field_id, user_id, value)
VALUES ($1, $2, $3, $4)
ON CONFLICT DO NOTHING`
	result, err := r.db.ExecContext(ctx, query, association.ID, association.FieldID, association.UserID, association.Value)
	if err != nil {
		return false, fmt.Errorf("insert tag association: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert tag association: %w", err)
	}
	return affected > 0, nil
}
