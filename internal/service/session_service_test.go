package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/openacademy-api/internal/models"
	appErrors "github.com/noah-isme/openacademy-api/pkg/errors"
)

func seedPartners(db *memoryDB, ids ...string) {
	for _, id := range ids {
		db.addPartner(id, "Partner "+id)
	}
}

func TestSessionServiceCreateComputesDerivedFields(t *testing.T) {
	fx := newServiceFixture()
	fx.db.addCourse("c1", "Intro")
	seedPartners(fx.db, "p1", "p2", "p3", "p4", "p5", "i1")

	session, notices, err := fx.sessions.Create(context.Background(), CreateSessionRequest{
		Name:         "Morning",
		StartDate:    strPtr("2024-01-01"),
		Duration:     2,
		Seats:        10,
		InstructorID: strPtr("i1"),
		CourseID:     "c1",
		AttendeeIDs:  []string{"p1", "p2", "p3", "p4", "p5", "p5"},
	})
	require.NoError(t, err)
	assert.Empty(t, notices)

	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), *session.EndDate)
	assert.Equal(t, 5, session.AttendeesCount)
	assert.InDelta(t, 50.0, session.TakenSeats, 1e-9)
	assert.True(t, session.Confirmed)
	assert.True(t, session.Active)

	stored := fx.db.sessions[session.ID]
	assert.Equal(t, []string{"p1", "p2", "p3", "p4", "p5"}, stored.AttendeeIDs)
	assert.Equal(t, 1, fx.db.courses["c1"].SessionCount)
}

func TestSessionServiceCreateDefaultsStartDateToToday(t *testing.T) {
	fx := newServiceFixture()
	fx.db.addCourse("c1", "Intro")

	session, _, err := fx.sessions.Create(context.Background(), CreateSessionRequest{Name: "Draft", CourseID: "c1", Duration: 1.004})
	require.NoError(t, err)
	require.NotNil(t, session.StartDate)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), *session.StartDate)
	assert.Equal(t, 1.0, session.Duration)
	assert.Equal(t, *session.StartDate, *session.EndDate)
}

func TestSessionServiceNegativeSeatsWarnsButPersists(t *testing.T) {
	fx := newServiceFixture()
	fx.db.addCourse("c1", "Intro")

	session, notices, err := fx.sessions.Create(context.Background(), CreateSessionRequest{Name: "Odd", CourseID: "c1", Seats: -1})
	require.NoError(t, err)
	require.Len(t, notices, 1)
	assert.Equal(t, models.NoticeAdvisory, notices[0].Kind)
	assert.Equal(t, `Incorrect "seats" value`, notices[0].Title)
	assert.Equal(t, session.ID, notices[0].RecordID)
	assert.Equal(t, -1, fx.db.sessions[session.ID].Seats)
}

func TestSessionServiceTooManyAttendeesWarning(t *testing.T) {
	fx := newServiceFixture()
	fx.db.addCourse("c1", "Intro")
	seedPartners(fx.db, "p1", "p2", "p3")

	_, notices, err := fx.sessions.Create(context.Background(), CreateSessionRequest{Name: "Full", CourseID: "c1", Seats: 2, AttendeeIDs: []string{"p1", "p2", "p3"}})
	require.NoError(t, err)
	require.Len(t, notices, 1)
	assert.Equal(t, "Too many attendees", notices[0].Title)
	assert.Equal(t, "Increase number of seats(2) or remove excess attendees(3)", notices[0].Message)
}

func TestSessionServiceRejectsInstructorAttendee(t *testing.T) {
	fx := newServiceFixture()
	fx.db.addCourse("c1", "Intro")
	seedPartners(fx.db, "p1", "p2")

	_, _, err := fx.sessions.Create(context.Background(), CreateSessionRequest{
		Name:         "Clash",
		CourseID:     "c1",
		Seats:        5,
		InstructorID: strPtr("p1"),
		AttendeeIDs:  []string{"p1", "p2"},
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInstructorAttendee.Code, appErr.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, appErr.Status)
	assert.Empty(t, fx.db.sessions)
	assert.Equal(t, 0, fx.db.courses["c1"].SessionCount)
}

func TestSessionServiceResolvingInstructorConflictSucceeds(t *testing.T) {
	fx := newServiceFixture()
	fx.db.addCourse("c1", "Intro")
	seedPartners(fx.db, "p1", "p2")
	fx.db.addSession(models.Session{ID: "s1", Name: "Morning", CourseID: "c1", Seats: 10, InstructorID: strPtr("p1"), AttendeeIDs: []string{"p2"}})

	_, _, err := fx.sessions.AddAttendees(context.Background(), "s1", AttendeesRequest{PartnerIDs: []string{"p1"}})
	require.Error(t, err)
	assert.Equal(t, []string{"p2"}, fx.db.sessions["s1"].AttendeeIDs)

	session, _, err := fx.sessions.Update(context.Background(), "s1", UpdateSessionRequest{InstructorID: strPtr("")})
	require.NoError(t, err)
	assert.Nil(t, session.InstructorID)

	session, _, err = fx.sessions.AddAttendees(context.Background(), "s1", AttendeesRequest{PartnerIDs: []string{"p1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, session.AttendeeIDs)
	assert.Equal(t, 2, fx.db.sessions["s1"].AttendeesCount)
}

func TestSessionServiceUpdateRecomputesTakenSeats(t *testing.T) {
	fx := newServiceFixture()
	fx.db.addCourse("c1", "Intro")
	seedPartners(fx.db, "p1", "p2", "p3", "p4", "p5")
	fx.db.addSession(models.Session{ID: "s1", Name: "Morning", CourseID: "c1", Seats: 10, AttendeeIDs: []string{"p1", "p2", "p3", "p4", "p5"}, AttendeesCount: 5, TakenSeats: 50, Confirmed: true})

	session, _, err := fx.sessions.SetAttendees(context.Background(), "s1", AttendeesRequest{PartnerIDs: []string{"p1", "p2", "p3", "p4"}})
	require.NoError(t, err)
	assert.InDelta(t, 40.0, session.TakenSeats, 1e-9)
	assert.False(t, session.Confirmed)

	stored := fx.db.sessions["s1"]
	assert.Equal(t, []string{"p1", "p2", "p3", "p4"}, stored.AttendeeIDs)
	assert.False(t, stored.Confirmed)

	session, _, err = fx.sessions.Update(context.Background(), "s1", UpdateSessionRequest{Seats: intPtr(0)})
	require.NoError(t, err)
	assert.Equal(t, 0.0, session.TakenSeats)
}

func TestSessionServiceUpdateOnlyChecksChangedFields(t *testing.T) {
	fx := newServiceFixture()
	fx.db.addCourse("c1", "Intro")
	fx.db.addSession(models.Session{ID: "s1", Name: "Morning", CourseID: "c1", Seats: -3})

	_, notices, err := fx.sessions.Update(context.Background(), "s1", UpdateSessionRequest{Name: strPtr("Evening")})
	require.NoError(t, err)
	assert.Empty(t, notices)
	assert.Equal(t, "Evening", fx.db.sessions["s1"].Name)
}

func TestSessionServiceUpdateEndDate(t *testing.T) {
	fx := newServiceFixture()
	fx.db.addCourse("c1", "Intro")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fx.db.addSession(models.Session{ID: "s1", Name: "Morning", CourseID: "c1", StartDate: &start, Duration: 1, EndDate: &start})

	session, _, err := fx.sessions.Update(context.Background(), "s1", UpdateSessionRequest{Duration: floatPtr(0.5)})
	require.NoError(t, err)
	assert.Equal(t, start, *session.EndDate)

	session, _, err = fx.sessions.Update(context.Background(), "s1", UpdateSessionRequest{StartDate: strPtr("2024-02-28"), Duration: floatPtr(2)})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), *session.EndDate)
}

func TestSessionServiceMovingCourseRecomputesBothCounts(t *testing.T) {
	fx := newServiceFixture()
	fx.db.addCourse("c1", "Intro")
	fx.db.addCourse("c2", "Advanced")
	fx.db.courses["c1"] = models.Course{ID: "c1", Name: "Intro", SessionCount: 1}
	fx.db.addSession(models.Session{ID: "s1", Name: "Morning", CourseID: "c1"})

	_, _, err := fx.sessions.Update(context.Background(), "s1", UpdateSessionRequest{CourseID: strPtr("c2")})
	require.NoError(t, err)
	assert.Equal(t, 0, fx.db.courses["c1"].SessionCount)
	assert.Equal(t, 1, fx.db.courses["c2"].SessionCount)
}

func TestSessionServiceUpdateBatchIsAllOrNothing(t *testing.T) {
	fx := newServiceFixture()
	fx.db.addCourse("c1", "Intro")
	seedPartners(fx.db, "p1", "p2")
	fx.db.addSession(models.Session{ID: "s1", Name: "Morning", CourseID: "c1", Seats: 10})
	fx.db.addSession(models.Session{ID: "s2", Name: "Evening", CourseID: "c1", Seats: 10, InstructorID: strPtr("p1")})

	_, _, err := fx.sessions.UpdateBatch(context.Background(), BatchUpdateSessionsRequest{Items: []BatchSessionUpdate{
		{ID: "s1", UpdateSessionRequest: UpdateSessionRequest{Seats: intPtr(20)}},
		{ID: "s2", UpdateSessionRequest: UpdateSessionRequest{AttendeeIDs: &[]string{"p1"}}},
	}})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInstructorAttendee.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "session s2")
	assert.Equal(t, 10, fx.db.sessions["s1"].Seats)
	assert.Empty(t, fx.db.sessions["s2"].AttendeeIDs)
}

func TestSessionServiceUpdateBatchCollectsWarnings(t *testing.T) {
	fx := newServiceFixture()
	fx.db.addCourse("c1", "Intro")
	fx.db.addSession(models.Session{ID: "s1", Name: "Morning", CourseID: "c1", Seats: 10})
	fx.db.addSession(models.Session{ID: "s2", Name: "Evening", CourseID: "c1", Seats: 10})

	updated, notices, err := fx.sessions.UpdateBatch(context.Background(), BatchUpdateSessionsRequest{Items: []BatchSessionUpdate{
		{ID: "s1", UpdateSessionRequest: UpdateSessionRequest{Seats: intPtr(-1)}},
		{ID: "s2", UpdateSessionRequest: UpdateSessionRequest{Seats: intPtr(-2)}},
	}})
	require.NoError(t, err)
	assert.Len(t, updated, 2)
	require.Len(t, notices, 2)
	assert.Equal(t, "s1", notices[0].RecordID)
	assert.Equal(t, "s2", notices[1].RecordID)
	assert.Equal(t, 1, fx.tx.calls)
}

func TestSessionServiceMissingReferences(t *testing.T) {
	fx := newServiceFixture()
	fx.db.addCourse("c1", "Intro")

	_, _, err := fx.sessions.Create(context.Background(), CreateSessionRequest{Name: "Ghost", CourseID: "missing"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, _, err = fx.sessions.Create(context.Background(), CreateSessionRequest{Name: "Ghost", CourseID: "c1", AttendeeIDs: []string{"nobody"}})
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Message, "nobody")

	_, _, err = fx.sessions.Update(context.Background(), "missing", UpdateSessionRequest{Name: strPtr("x")})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSessionServiceRejectsInvalidStartDate(t *testing.T) {
	fx := newServiceFixture()
	fx.db.addCourse("c1", "Intro")

	_, _, err := fx.sessions.Create(context.Background(), CreateSessionRequest{Name: "Bad", CourseID: "c1", StartDate: strPtr("01/02/2024")})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSessionServicePreviewDoesNotPersist(t *testing.T) {
	fx := newServiceFixture()

	preview, err := fx.sessions.Preview(context.Background(), CreateSessionRequest{
		Name:         "Draft",
		CourseID:     "c1",
		Seats:        1,
		StartDate:    strPtr("2024-01-01"),
		Duration:     1.25,
		InstructorID: strPtr("p1"),
		AttendeeIDs:  []string{"p1", "p2"},
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), *preview.Session.EndDate)
	assert.InDelta(t, 200.0, preview.Session.TakenSeats, 1e-9)
	require.Len(t, preview.Notices, 2)
	assert.Equal(t, models.NoticeAdvisory, preview.Notices[0].Kind)
	assert.Equal(t, models.NoticeBlocking, preview.Notices[1].Kind)
	assert.Empty(t, fx.db.sessions)
	assert.Equal(t, 0, fx.tx.calls)
}

func TestSessionServiceDeleteRecomputesCourse(t *testing.T) {
	fx := newServiceFixture()
	fx.db.courses["c1"] = models.Course{ID: "c1", Name: "Intro", SessionCount: 2}
	fx.db.addSession(models.Session{ID: "s1", Name: "Morning", CourseID: "c1"})
	fx.db.addSession(models.Session{ID: "s2", Name: "Evening", CourseID: "c1"})

	require.NoError(t, fx.sessions.Delete(context.Background(), "s1"))
	assert.NotContains(t, fx.db.sessions, "s1")
	assert.Equal(t, 1, fx.db.courses["c1"].SessionCount)

	err := fx.sessions.Delete(context.Background(), "s1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSessionServiceRemoveAttendeeNoop(t *testing.T) {
	fx := newServiceFixture()
	fx.db.addCourse("c1", "Intro")
	fx.db.addSession(models.Session{ID: "s1", Name: "Morning", CourseID: "c1", Seats: -1})

	session, notices, err := fx.sessions.RemoveAttendee(context.Background(), "s1", "p9")
	require.NoError(t, err)
	assert.Empty(t, notices)
	assert.Empty(t, session.AttendeeIDs)
}

func TestSessionServiceGetUsesCache(t *testing.T) {
	fx := newServiceFixture()
	cacheRepo := newMemoryCache()
	fx.sessions.cache = NewCacheService(cacheRepo, nil, time.Minute, "test", nil, true)
	fx.db.addSession(models.Session{ID: "s1", Name: "Morning", CourseID: "c1"})

	session, hit, err := fx.sessions.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "Morning", session.Name)

	session, hit, err = fx.sessions.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "Morning", session.Name)
	assert.Contains(t, cacheRepo.items, "test:session:s1")
}

func TestSessionServiceListDefaults(t *testing.T) {
	fx := newServiceFixture()
	fx.db.addSession(models.Session{ID: "s1", Name: "Morning", CourseID: "c1", Active: true})
	fx.db.addSession(models.Session{ID: "s2", Name: "Archived", CourseID: "c1", Active: false})

	active := true
	list, pagination, err := fx.sessions.List(context.Background(), models.SessionFilter{Active: &active})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "s1", list[0].ID)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
}

func TestSessionServiceMoveLocksRowsBeforeCounting(t *testing.T) {
	fx := newServiceFixture()
	fx.db.addCourse("c1", "Intro")
	fx.db.addCourse("c2", "Advanced")
	fx.db.addSession(models.Session{ID: "s1", Name: "Morning", CourseID: "c2"})
	fx.db.addSession(models.Session{ID: "s2", Name: "Evening", CourseID: "c1"})

	_, _, err := fx.sessions.Update(context.Background(), "s1", UpdateSessionRequest{CourseID: strPtr("c1")})
	require.NoError(t, err)

	// session row first, then courses in id order whatever the move direction
	assert.Equal(t, []string{"sessions:s1", "courses:c1", "courses:c2"}, fx.db.locks)
	assert.Equal(t, 2, fx.db.courses["c1"].SessionCount)
	assert.Equal(t, 0, fx.db.courses["c2"].SessionCount)
}

func TestSessionServiceCreateAndDeleteLockCourse(t *testing.T) {
	fx := newServiceFixture()
	fx.db.addCourse("c1", "Intro")

	session, _, err := fx.sessions.Create(context.Background(), CreateSessionRequest{Name: "Morning", CourseID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"courses:c1"}, fx.db.locks)
	assert.Equal(t, 1, fx.db.courses["c1"].SessionCount)

	fx.db.locks = nil
	require.NoError(t, fx.sessions.Delete(context.Background(), session.ID))
	assert.Equal(t, []string{"sessions:" + session.ID, "courses:c1"}, fx.db.locks)
	assert.Equal(t, 0, fx.db.courses["c1"].SessionCount)
}
