package models

// Capability is a named permission granted to a user within a course scope.
type Capability string

const (
	// CapabilityTakeAttendance gates listing, reading and recording of sessions.
	CapabilityTakeAttendance Capability = "attendance:take"
	// CapabilityCanBeListed marks users that appear on session rosters.
	CapabilityCanBeListed Capability = "attendance:listed"
)

// Course represents a course row.
type Course struct {
	ID        string `db:"id" json:"id"`
	ShortName string `db:"shortname" json:"shortname"`
	FullName  string `db:"fullname" json:"fullname"`
}

// Activity is an attendance-taking instance attached to a course.
type Activity struct {
	ID       string  `db:"id" json:"id"`
	CourseID string  `db:"course_id" json:"course_id"`
	Name     string  `db:"name" json:"name"`
	Grade    float64 `db:"grade" json:"grade"`
}

// ActivityTodaySessions pairs an activity with its sessions scheduled today.
type ActivityTodaySessions struct {
	Name          string    `json:"name"`
	TodaySessions []Session `json:"today_sessions"`
}

// CourseTodaySessions groups today's activities under their course. Only
// courses with at least one non-empty activity appear in responses.
type CourseTodaySessions struct {
	ShortName  string                           `json:"shortname"`
	FullName   string                           `json:"fullname"`
	Activities map[string]ActivityTodaySessions `json:"attendance_activities"`
}
