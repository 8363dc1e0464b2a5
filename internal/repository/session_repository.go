package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/classmark/attendance-api/internal/models"
)

// SessionRepository handles persistence for attendance sessions, status sets
// and the per-student log rows.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Find returns a session by id. sql.ErrNoRows is passed through so callers can
// translate it into an explicit not-found failure.
func (r *SessionRepository) Find(ctx context.Context, id string) (*models.Session, error) {
	const query = `SELECT id, activity_id, status_set, session_date, duration_minutes, description,
last_taken, last_taken_by, time_modified
FROM attendance_sessions WHERE id = $1`
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// ActivityCourseID resolves the owning course for an activity.
func (r *SessionRepository) ActivityCourseID(ctx context.Context, activityID string) (string, error) {
	const query = `SELECT course_id FROM attendance_activities WHERE id = $1`
	var courseID string
	if err := r.db.GetContext(ctx, &courseID, query, activityID); err != nil {
		return "", err
	}
	return courseID, nil
}

// Statuses returns the visible statuses of an activity's status set.
func (r *SessionRepository) Statuses(ctx context.Context, activityID string, statusSet int) ([]models.Status, error) {
	const query = `SELECT id, activity_id, status_set, acronym, description, grade
FROM attendance_statuses
WHERE activity_id = $1 AND status_set = $2 AND visible AND NOT deleted
ORDER BY grade DESC, acronym ASC`
	var statuses []models.Status
	if err := r.db.SelectContext(ctx, &statuses, query, activityID, statusSet); err != nil {
		return nil, fmt.Errorf("list session statuses: %w", err)
	}
	return statuses, nil
}

// TodaySessionsByActivity returns sessions scheduled on the given calendar day,
// keyed by activity id.
func (r *SessionRepository) TodaySessionsByActivity(ctx context.Context, activityIDs []string, day time.Time) (map[string][]models.Session, error) {
	if len(activityIDs) == 0 {
		return map[string][]models.Session{}, nil
	}
	query := fmt.Sprintf(`SELECT id, activity_id, status_set, session_date, duration_minutes, description,
last_taken, last_taken_by, time_modified
FROM attendance_sessions
WHERE activity_id IN (%s) AND session_date = $%d
ORDER BY session_date ASC, id ASC`, placeholders(len(activityIDs)), len(activityIDs)+1)
	args := make([]interface{}, 0, len(activityIDs)+1)
	for _, id := range activityIDs {
		args = append(args, id)
	}
	args = append(args, day.Format("2006-01-02"))

	var rows []models.Session
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list today sessions: %w", err)
	}
	result := make(map[string][]models.Session, len(rows))
	for _, session := range rows {
		result[session.ActivityID] = append(result[session.ActivityID], session)
	}
	return result, nil
}

// LogsBySession returns the session's log rows keyed by student id.
func (r *SessionRepository) LogsBySession(ctx context.Context, sessionID string) (map[string]models.LogEntry, error) {
	const query = `SELECT id, session_id, student_id, status_id, status_set, time_taken, taken_by, remarks
FROM attendance_logs WHERE session_id = $1`
	var rows []models.LogEntry
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session logs: %w", err)
	}
	logs := make(map[string]models.LogEntry, len(rows))
	for _, entry := range rows {
		logs[entry.StudentID] = entry
	}
	return logs, nil
}

// TouchLastTaken updates the session's last-taken bookkeeping. It reports
// whether a session row was present to update.
func (r *SessionRepository) TouchLastTaken(ctx context.Context, sessionID, takenBy string, ts time.Time) (bool, error) {
	const query = `UPDATE attendance_sessions
SET last_taken = $2, last_taken_by = $3, time_modified = $2
WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, sessionID, ts, takenBy)
	if err != nil {
		return false, fmt.Errorf("touch session last taken: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("touch session last taken: %w", err)
	}
	return affected > 0, nil
}

// UpsertLog writes the single log row for (session, student), updating it in
// place when it already exists. Absent remarks leave stored remarks untouched.
func (r *SessionRepository) UpsertLog(ctx context.Context, entry *models.LogEntry) (*models.LogEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.TimeTaken.IsZero() {
		entry.TimeTaken = time.Now().UTC()
	}
	const query = `INSERT INTO attendance_logs (id, session_id, student_id, status_id, status_set, time_taken, taken_by, remarks)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (session_id, student_id)
DO UPDATE SET status_id = EXCLUDED.status_id, status_set = EXCLUDED.status_set,
              time_taken = EXCLUDED.time_taken, taken_by = EXCLUDED.taken_by,
              remarks = COALESCE(EXCLUDED.remarks, attendance_logs.remarks)
RETURNING id, session_id, student_id, status_id, status_set, time_taken, taken_by, remarks`
	var stored models.LogEntry
	if err := r.db.GetContext(ctx, &stored, query, entry.ID, entry.SessionID, entry.StudentID,
		entry.StatusID, entry.StatusSet, entry.TimeTaken, entry.TakenBy, entry.Remarks); err != nil {
		return nil, fmt.Errorf("upsert attendance log: %w", err)
	}
	return &stored, nil
}
