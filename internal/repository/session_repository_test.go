package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/openacademy-api/internal/models"
	"github.com/noah-isme/openacademy-api/pkg/database"
)

var sessionRowColumns = []string{"id", "name", "start_date", "duration", "end_date", "seats", "instructor_id", "course_id", "attendees_count", "taken_seats", "confirmed", "active", "created_at", "updated_at"}

func TestSessionRepositoryFindByIDLoadsAttendees(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, start_date, duration, end_date, seats, instructor_id, course_id, attendees_count, taken_seats, confirmed, active, created_at, updated_at FROM sessions WHERE id = $1")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(sessionRowColumns).
			AddRow("s1", "Morning", start, 2.0, start.AddDate(0, 0, 1), 10, nil, "c1", 2, 20.0, false, true, time.Now(), time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT session_id, partner_id FROM session_attendees WHERE session_id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "partner_id"}).
			AddRow("s1", "p2").
			AddRow("s1", "p1"))

	session, err := repo.FindByID(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "c1", session.CourseID)
	assert.Equal(t, []string{"p1", "p2"}, session.AttendeeIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryListDefaultsAndEmptyAttendees(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	active := true
	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE 1=1 AND course_id = $1 AND active = $2 ORDER BY start_date ASC LIMIT 20 OFFSET 0")).
		WithArgs("c1", true).
		WillReturnRows(sqlmock.NewRows(sessionRowColumns).
			AddRow("s1", "Morning", nil, 0.0, nil, 0, nil, "c1", 0, 0.0, false, true, time.Now(), time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM sessions WHERE 1=1 AND course_id = $1 AND active = $2")).
		WithArgs("c1", true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM session_attendees")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "partner_id"}))

	list, total, err := repo.List(context.Background(), models.SessionFilter{CourseID: "c1", Active: &active})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, total)
	assert.NotNil(t, list[0].AttendeeIDs)
	assert.Empty(t, list[0].AttendeeIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryCreateInsertsAttendees(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec("INSERT INTO sessions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO session_attendees")).
		WithArgs(sqlmock.AnyArg(), "p1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO session_attendees")).
		WithArgs(sqlmock.AnyArg(), "p2").
		WillReturnResult(sqlmock.NewResult(1, 1))

	session := &models.Session{Name: "Morning", CourseID: "c1", AttendeeIDs: []string{"p1", "p2"}, Active: true}
	require.NoError(t, repo.Create(context.Background(), session))
	assert.NotEmpty(t, session.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryDeleteByCourse(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM session_attendees WHERE session_id IN (SELECT id FROM sessions WHERE course_id = $1)")).
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE course_id = $1")).
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	deleted, err := repo.DeleteByCourse(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryReplaceAttendees(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM session_attendees WHERE session_id = $1")).
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO session_attendees")).
		WithArgs("s1", "p9").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.ReplaceAttendees(context.Background(), "s1", []string{"p9"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryFindByIDForUpdate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, start_date, duration, end_date, seats, instructor_id, course_id, attendees_count, taken_seats, confirmed, active, created_at, updated_at FROM sessions WHERE id = $1 FOR UPDATE")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(sessionRowColumns).
			AddRow("s1", "Morning", start, 2.0, start.AddDate(0, 0, 1), 10, nil, "c1", 1, 10.0, false, true, time.Now(), time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT session_id, partner_id FROM session_attendees WHERE session_id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "partner_id"}).AddRow("s1", "p1"))
	mock.ExpectCommit()

	var session *models.Session
	err := database.NewTransactor(db).WithinTx(context.Background(), func(ctx context.Context) error {
		var err error
		session, err = repo.FindByIDForUpdate(ctx, "s1")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, session.AttendeeIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
