package models

import "time"

// Session is a scheduled instance of a course.
type Session struct {
	ID             string     `db:"id" json:"id"`
	Name           string     `db:"name" json:"name"`
	StartDate      *time.Time `db:"start_date" json:"start_date,omitempty"`
	Duration       float64    `db:"duration" json:"duration"`
	EndDate        *time.Time `db:"end_date" json:"end_date,omitempty"`
	Seats          int        `db:"seats" json:"seats"`
	InstructorID   *string    `db:"instructor_id" json:"instructor_id,omitempty"`
	CourseID       string     `db:"course_id" json:"course_id"`
	AttendeeIDs    []string   `db:"-" json:"attendee_ids"`
	AttendeesCount int        `db:"attendees_count" json:"attendees_count"`
	TakenSeats     float64    `db:"taken_seats" json:"taken_seats"`
	Confirmed      bool       `db:"confirmed" json:"confirmed"`
	Active         bool       `db:"active" json:"active"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// HasAttendee reports whether partnerID is in the attendee set.
func (s *Session) HasAttendee(partnerID string) bool {
	for _, id := range s.AttendeeIDs {
		if id == partnerID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can diff before/after states.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.AttendeeIDs = append([]string(nil), s.AttendeeIDs...)
	return &cp
}

// SessionFilter defines filter criteria for listing sessions.
type SessionFilter struct {
	CourseID     string
	InstructorID string
	AttendeeID   string
	Active       *bool
	Confirmed    *bool
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// SessionAttendee is a row of the session/partner many-to-many table.
type SessionAttendee struct {
	SessionID string `db:"session_id"`
	PartnerID string `db:"partner_id"`
}

// SessionRosterLine is one attendee line of a session roster export.
type SessionRosterLine struct {
	PartnerID string  `db:"partner_id"`
	Name      string  `db:"name"`
	Email     *string `db:"email"`
}
