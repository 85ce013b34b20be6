package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/openacademy-api/internal/models"
	"github.com/noah-isme/openacademy-api/pkg/database"
)

const sessionColumns = "id, name, start_date, duration, end_date, seats, instructor_id, course_id, attendees_count, taken_seats, confirmed, active, created_at, updated_at"

// SessionRepository manages persistence for sessions and their attendee sets.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs a SessionRepository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) exec(ctx context.Context) sqlx.ExtContext {
	return database.Executor(ctx, r.db)
}

// List returns sessions matching filters along with total count. Attendee sets are loaded.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	base := "FROM sessions WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.InstructorID != "" {
		conditions = append(conditions, fmt.Sprintf("instructor_id = $%d", len(args)+1))
		args = append(args, filter.InstructorID)
	}
	if filter.AttendeeID != "" {
		conditions = append(conditions, fmt.Sprintf("id IN (SELECT session_id FROM session_attendees WHERE partner_id = $%d)", len(args)+1))
		args = append(args, filter.AttendeeID)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Confirmed != nil {
		conditions = append(conditions, fmt.Sprintf("confirmed = $%d", len(args)+1))
		args = append(args, *filter.Confirmed)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d)", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "start_date"
	}
	allowedSorts := map[string]bool{
		"name":        true,
		"start_date":  true,
		"end_date":    true,
		"seats":       true,
		"taken_seats": true,
		"created_at":  true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "start_date"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", sessionColumns, base, sortBy, order, size, offset)
	var sessions []models.Session
	if err := sqlx.SelectContext(ctx, r.exec(ctx), &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := sqlx.GetContext(ctx, r.exec(ctx), &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	if err := r.attachAttendees(ctx, sessions); err != nil {
		return nil, 0, err
	}
	return sessions, total, nil
}

// FindByID fetches a session and its attendee set.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	return r.findByID(ctx, id, "")
}

// FindByIDForUpdate is FindByID with the session row locked for the rest of the transaction.
func (r *SessionRepository) FindByIDForUpdate(ctx context.Context, id string) (*models.Session, error) {
	return r.findByID(ctx, id, " FOR UPDATE")
}

func (r *SessionRepository) findByID(ctx context.Context, id, lock string) (*models.Session, error) {
	query := fmt.Sprintf("SELECT %s FROM sessions WHERE id = $1%s", sessionColumns, lock)
	var session models.Session
	if err := sqlx.GetContext(ctx, r.exec(ctx), &session, query, id); err != nil {
		return nil, err
	}
	sessions := []models.Session{session}
	if err := r.attachAttendees(ctx, sessions); err != nil {
		return nil, err
	}
	return &sessions[0], nil
}

// ListByCourse returns every session of a course, archived ones included.
func (r *SessionRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Session, error) {
	query := fmt.Sprintf("SELECT %s FROM sessions WHERE course_id = $1 ORDER BY start_date ASC, name ASC", sessionColumns)
	var sessions []models.Session
	if err := sqlx.SelectContext(ctx, r.exec(ctx), &sessions, query, courseID); err != nil {
		return nil, fmt.Errorf("list course sessions: %w", err)
	}
	if err := r.attachAttendees(ctx, sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// ListIDsByCourse returns the ids of the sessions pointing at a course.
func (r *SessionRepository) ListIDsByCourse(ctx context.Context, courseID string) ([]string, error) {
	var ids []string
	if err := sqlx.SelectContext(ctx, r.exec(ctx), &ids, `SELECT id FROM sessions WHERE course_id = $1`, courseID); err != nil {
		return nil, fmt.Errorf("list course session ids: %w", err)
	}
	return ids, nil
}

// ListByAttendee returns the sessions a partner attends.
func (r *SessionRepository) ListByAttendee(ctx context.Context, partnerID string) ([]models.Session, error) {
	query := fmt.Sprintf("SELECT %s FROM sessions WHERE id IN (SELECT session_id FROM session_attendees WHERE partner_id = $1) ORDER BY start_date ASC, name ASC", sessionColumns)
	var sessions []models.Session
	if err := sqlx.SelectContext(ctx, r.exec(ctx), &sessions, query, partnerID); err != nil {
		return nil, fmt.Errorf("list attended sessions: %w", err)
	}
	if err := r.attachAttendees(ctx, sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Create inserts a session and its attendee rows.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	const query = `INSERT INTO sessions (id, name, start_date, duration, end_date, seats, instructor_id, course_id, attendees_count, taken_seats, confirmed, active, created_at, updated_at)
		VALUES (:id, :name, :start_date, :duration, :end_date, :seats, :instructor_id, :course_id, :attendees_count, :taken_seats, :confirmed, :active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(ctx), query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return r.insertAttendees(ctx, session.ID, session.AttendeeIDs)
}

// Update persists every column of a session, derived ones included.
func (r *SessionRepository) Update(ctx context.Context, session *models.Session) error {
	session.UpdatedAt = time.Now().UTC()
	const query = `UPDATE sessions SET name = :name, start_date = :start_date, duration = :duration, end_date = :end_date, seats = :seats,
		instructor_id = :instructor_id, course_id = :course_id, attendees_count = :attendees_count, taken_seats = :taken_seats,
		confirmed = :confirmed, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(ctx), query, session); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// ReplaceAttendees swaps the attendee set of a session.
func (r *SessionRepository) ReplaceAttendees(ctx context.Context, sessionID string, partnerIDs []string) error {
	if _, err := r.exec(ctx).ExecContext(ctx, `DELETE FROM session_attendees WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("clear session attendees: %w", err)
	}
	return r.insertAttendees(ctx, sessionID, partnerIDs)
}

// Delete removes a session; attendee rows go with it.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.exec(ctx).ExecContext(ctx, `DELETE FROM session_attendees WHERE session_id = $1`, id); err != nil {
		return fmt.Errorf("delete session attendees: %w", err)
	}
	if _, err := r.exec(ctx).ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteByCourse removes every session of a course along with attendee rows.
func (r *SessionRepository) DeleteByCourse(ctx context.Context, courseID string) (int, error) {
	if _, err := r.exec(ctx).ExecContext(ctx, `DELETE FROM session_attendees WHERE session_id IN (SELECT id FROM sessions WHERE course_id = $1)`, courseID); err != nil {
		return 0, fmt.Errorf("delete course session attendees: %w", err)
	}
	res, err := r.exec(ctx).ExecContext(ctx, `DELETE FROM sessions WHERE course_id = $1`, courseID)
	if err != nil {
		return 0, fmt.Errorf("delete course sessions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted sessions: %w", err)
	}
	return int(affected), nil
}

// ClearInstructor unsets the instructor on sessions taught by partnerID.
func (r *SessionRepository) ClearInstructor(ctx context.Context, partnerID string) error {
	const query = `UPDATE sessions SET instructor_id = NULL, updated_at = $2 WHERE instructor_id = $1`
	if _, err := r.exec(ctx).ExecContext(ctx, query, partnerID, time.Now().UTC()); err != nil {
		return fmt.Errorf("clear session instructor: %w", err)
	}
	return nil
}

// Roster returns the attendee lines of a session ordered by name.
func (r *SessionRepository) Roster(ctx context.Context, sessionID string) ([]models.SessionRosterLine, error) {
	const query = `SELECT p.id AS partner_id, p.name, p.email FROM session_attendees sa JOIN partners p ON p.id = sa.partner_id WHERE sa.session_id = $1 ORDER BY p.name ASC`
	var lines []models.SessionRosterLine
	if err := sqlx.SelectContext(ctx, r.exec(ctx), &lines, query, sessionID); err != nil {
		return nil, fmt.Errorf("session roster: %w", err)
	}
	return lines, nil
}

func (r *SessionRepository) insertAttendees(ctx context.Context, sessionID string, partnerIDs []string) error {
	for _, partnerID := range partnerIDs {
		const query = `INSERT INTO session_attendees (session_id, partner_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
		if _, err := r.exec(ctx).ExecContext(ctx, query, sessionID, partnerID); err != nil {
			return fmt.Errorf("insert session attendee: %w", err)
		}
	}
	return nil
}

func (r *SessionRepository) attachAttendees(ctx context.Context, sessions []models.Session) error {
	if len(sessions) == 0 {
		return nil
	}
	ids := make([]string, len(sessions))
	for i := range sessions {
		ids[i] = sessions[i].ID
	}

	const query = `SELECT session_id, partner_id FROM session_attendees WHERE session_id = ANY($1)`
	var rows []models.SessionAttendee
	if err := sqlx.SelectContext(ctx, r.exec(ctx), &rows, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("load session attendees: %w", err)
	}

	bySession := make(map[string][]string, len(sessions))
	for _, row := range rows {
		bySession[row.SessionID] = append(bySession[row.SessionID], row.PartnerID)
	}
	for i := range sessions {
		attendees := bySession[sessions[i].ID]
		sort.Strings(attendees)
		if attendees == nil {
			attendees = []string{}
		}
		sessions[i].AttendeeIDs = attendees
	}
	return nil
}
