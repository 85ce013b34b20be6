package compute

import (
	"fmt"
	"math"
	"time"

	"github.com/noah-isme/openacademy-api/internal/models"
)

// Session field names used in dependency declarations and write patches.
const (
	FieldName           = "name"
	FieldStartDate      = "start_date"
	FieldDuration       = "duration"
	FieldEndDate        = "end_date"
	FieldSeats          = "seats"
	FieldInstructor     = "instructor_id"
	FieldCourse         = "course_id"
	FieldAttendees      = "attendees"
	FieldAttendeesCount = "attendees_count"
	FieldTakenSeats     = "taken_seats"
	FieldConfirmed      = "confirmed"
	FieldActive         = "active"
)

// ConfirmedThreshold is the taken_seats percentage at which a session counts as confirmed.
const ConfirmedThreshold = 50.0

// SessionGraph holds the derived fields of a session.
var SessionGraph = MustGraph(
	Rule[models.Session]{
		Field:     FieldEndDate,
		DependsOn: []string{FieldStartDate, FieldDuration},
		Compute: func(s *models.Session) {
			s.EndDate = EndDate(s.StartDate, s.Duration)
		},
	},
	Rule[models.Session]{
		Field:     FieldAttendeesCount,
		DependsOn: []string{FieldAttendees},
		Compute: func(s *models.Session) {
			s.AttendeesCount = len(s.AttendeeIDs)
		},
	},
	Rule[models.Session]{
		Field:     FieldTakenSeats,
		DependsOn: []string{FieldSeats, FieldAttendees},
		Compute: func(s *models.Session) {
			s.TakenSeats = TakenSeats(s.Seats, len(s.AttendeeIDs))
		},
	},
	Rule[models.Session]{
		Field:     FieldConfirmed,
		DependsOn: []string{FieldTakenSeats},
		Compute: func(s *models.Session) {
			s.Confirmed = s.TakenSeats >= ConfirmedThreshold
		},
	},
)

// SessionChecks holds the advisory seat check and the blocking instructor check.
var SessionChecks = Checks[models.Session]{
	{
		Name:     "valid_seats",
		Kind:     models.NoticeAdvisory,
		Triggers: []string{FieldSeats, FieldAttendees},
		Run:      checkSeats,
	},
	{
		Name:     "instructor_not_attendee",
		Kind:     models.NoticeBlocking,
		Triggers: []string{FieldInstructor, FieldAttendees},
		Run:      checkInstructorNotAttendee,
	},
}

// EndDate returns the calendar day on which a session starting at midnight of start and lasting
// duration days ends: date(start + duration days - 1s). A missing start or a zero duration
// passes start through unchanged.
func EndDate(start *time.Time, duration float64) *time.Time {
	if start == nil {
		return nil
	}
	day := TruncateDate(*start)
	if duration == 0 {
		return &day
	}
	span := time.Duration(math.Round(duration*float64(24*time.Hour))) - time.Second
	end := TruncateDate(day.Add(span))
	return &end
}

// TakenSeats is the percentage of seats taken, zero when there are no seats.
func TakenSeats(seats, attendees int) float64 {
	if seats == 0 {
		return 0
	}
	return 100.0 * float64(attendees) / float64(seats)
}

// RoundDuration keeps two decimal places, matching the NUMERIC(6,2) column.
func RoundDuration(duration float64) float64 {
	return math.Round(duration*100) / 100
}

// TruncateDate drops the time of day, in UTC.
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func checkSeats(s *models.Session) *models.Notice {
	if s.Seats < 0 {
		return &models.Notice{
			Title:   `Incorrect "seats" value`,
			Message: "The number of available seats may not be negative.",
		}
	}
	if s.Seats < len(s.AttendeeIDs) {
		return &models.Notice{
			Title:   "Too many attendees",
			Message: fmt.Sprintf("Increase number of seats(%d) or remove excess attendees(%d)", s.Seats, len(s.AttendeeIDs)),
		}
	}
	return nil
}

func checkInstructorNotAttendee(s *models.Session) *models.Notice {
	if s.InstructorID == nil || *s.InstructorID == "" {
		return nil
	}
	if !s.HasAttendee(*s.InstructorID) {
		return nil
	}
	return &models.Notice{
		Title:   "Invalid instructor",
		Message: "A session's instructor can't be an attendee",
	}
}
