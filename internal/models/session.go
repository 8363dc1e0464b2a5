package models

import "time"

// Session is one scheduled occurrence of an activity.
type Session struct {
	ID              string     `db:"id" json:"id"`
	ActivityID      string     `db:"activity_id" json:"activity_id"`
	StatusSet       int        `db:"status_set" json:"status_set"`
	Date            time.Time  `db:"session_date" json:"date"`
	DurationMinutes int        `db:"duration_minutes" json:"duration_minutes"`
	Description     *string    `db:"description" json:"description,omitempty"`
	LastTaken       *time.Time `db:"last_taken" json:"last_taken,omitempty"`
	LastTakenBy     *string    `db:"last_taken_by" json:"last_taken_by,omitempty"`
	TimeModified    time.Time  `db:"time_modified" json:"time_modified"`
}

// Status is one selectable attendance state within an activity's status set.
type Status struct {
	ID          string  `db:"id" json:"id"`
	ActivityID  string  `db:"activity_id" json:"activity_id"`
	StatusSet   int     `db:"status_set" json:"status_set"`
	Acronym     string  `db:"acronym" json:"acronym"`
	Description string  `db:"description" json:"description"`
	Grade       float64 `db:"grade" json:"grade"`
}

// LogEntry is the single status row held per (session, student).
type LogEntry struct {
	ID        string    `db:"id" json:"id"`
	SessionID string    `db:"session_id" json:"session_id"`
	StudentID string    `db:"student_id" json:"student_id"`
	StatusID  string    `db:"status_id" json:"status_id"`
	StatusSet int       `db:"status_set" json:"status_set"`
	TimeTaken time.Time `db:"time_taken" json:"time_taken"`
	TakenBy   string    `db:"taken_by" json:"taken_by"`
	Remarks   *string   `db:"remarks" json:"remarks,omitempty"`
}

// RosterUser is an enrolled user on a session roster with the resolved tag
// value for the configured profile field, when one is stored.
type RosterUser struct {
	ID        string  `db:"id" json:"id"`
	FirstName string  `db:"first_name" json:"first_name"`
	LastName  string  `db:"last_name" json:"last_name"`
	TagValue  *string `db:"tag_value" json:"tag_value,omitempty"`
}

// SessionDetail is the fully composed aggregate needed to take attendance.
type SessionDetail struct {
	Session
	CourseID string              `json:"course_id"`
	Statuses []Status            `json:"statuses"`
	Users    []RosterUser        `json:"users"`
	Log      map[string]LogEntry `json:"attendance_log"`
}
