package models

import "time"

// Course is a named training offering owning zero or more sessions.
type Course struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Description   *string   `db:"description" json:"description,omitempty"`
	ResponsibleID *string   `db:"responsible_id" json:"responsible_id,omitempty"`
	SessionCount  int       `db:"session_count" json:"session_count"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// CourseDetail extends Course with its sessions and the responsible partner name.
type CourseDetail struct {
	Course
	ResponsibleName *string   `db:"responsible_name" json:"responsible_name,omitempty"`
	Sessions        []Session `db:"-" json:"sessions"`
}

// CourseFilter defines filter criteria for listing courses.
type CourseFilter struct {
	ResponsibleID string
	Search        string
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}

// CourseSessions is the input of the course recompute graph: the course and the ids of the
// sessions currently pointing at it.
type CourseSessions struct {
	Course     *Course
	SessionIDs []string
}
