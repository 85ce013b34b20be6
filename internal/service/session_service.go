package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/openacademy-api/internal/compute"
	"github.com/noah-isme/openacademy-api/internal/models"
	appErrors "github.com/noah-isme/openacademy-api/pkg/errors"
)

const dateLayout = "2006-01-02"

type transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type sessionRepository interface {
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error)
	FindByID(ctx context.Context, id string) (*models.Session, error)
	FindByIDForUpdate(ctx context.Context, id string) (*models.Session, error)
	ListIDsByCourse(ctx context.Context, courseID string) ([]string, error)
	Create(ctx context.Context, session *models.Session) error
	Update(ctx context.Context, session *models.Session) error
	ReplaceAttendees(ctx context.Context, sessionID string, partnerIDs []string) error
	Delete(ctx context.Context, id string) error
}

type sessionCourseRepository interface {
	FindByIDForUpdate(ctx context.Context, id string) (*models.Course, error)
	UpdateSessionCount(ctx context.Context, id string, count int) error
}

type partnerLookup interface {
	FindMissing(ctx context.Context, ids []string) ([]string, error)
}

// CreateSessionRequest is the payload for creating or previewing a session.
type CreateSessionRequest struct {
	Name         string   `json:"name" validate:"required,max=255"`
	StartDate    *string  `json:"start_date"`
	Duration     float64  `json:"duration" validate:"gte=0,lte=9999.99"`
	Seats        int      `json:"seats"`
	InstructorID *string  `json:"instructor_id"`
	CourseID     string   `json:"course_id" validate:"required"`
	AttendeeIDs  []string `json:"attendee_ids" validate:"omitempty,dive,required"`
	Active       *bool    `json:"active"`
}

// UpdateSessionRequest is a partial update. Absent fields are left untouched; an empty
// start_date or instructor_id clears the value.
type UpdateSessionRequest struct {
	Name         *string   `json:"name" validate:"omitempty,min=1,max=255"`
	StartDate    *string   `json:"start_date"`
	Duration     *float64  `json:"duration" validate:"omitempty,gte=0,lte=9999.99"`
	Seats        *int      `json:"seats"`
	InstructorID *string   `json:"instructor_id"`
	CourseID     *string   `json:"course_id" validate:"omitempty,min=1"`
	AttendeeIDs  *[]string `json:"attendee_ids"`
	Active       *bool     `json:"active"`
}

// BatchSessionUpdate targets one session of a batch update.
type BatchSessionUpdate struct {
	ID string `json:"id" validate:"required"`
	UpdateSessionRequest
}

// BatchUpdateSessionsRequest groups updates applied in one transaction.
type BatchUpdateSessionsRequest struct {
	Items []BatchSessionUpdate `json:"items" validate:"required,min=1,dive"`
}

// AttendeesRequest carries a list of partner ids for attendee-set writes.
type AttendeesRequest struct {
	PartnerIDs []string `json:"partner_ids" validate:"omitempty,dive,required"`
}

// SessionPreview is an unsaved draft with every derived field computed and all checks run.
type SessionPreview struct {
	Session *models.Session `json:"session"`
	Notices []models.Notice `json:"notices"`
}

// SessionServiceParams groups the dependencies of SessionService.
type SessionServiceParams struct {
	Tx        transactor
	Sessions  sessionRepository
	Courses   sessionCourseRepository
	Partners  partnerLookup
	Cache     *CacheService
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
	Now       func() time.Time
}

// SessionService writes sessions through the recompute graph and the session checks.
type SessionService struct {
	tx        transactor
	sessions  sessionRepository
	courses   sessionCourseRepository
	partners  partnerLookup
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(params SessionServiceParams) *SessionService {
	if params.Validator == nil {
		params.Validator = validator.New()
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &SessionService{
		tx:        params.Tx,
		sessions:  params.Sessions,
		courses:   params.Courses,
		partners:  params.Partners,
		cache:     params.Cache,
		metrics:   params.Metrics,
		validator: params.Validator,
		logger:    params.Logger,
		now:       params.Now,
	}
}

// List returns sessions plus pagination data.
func (s *SessionService) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, *models.Pagination, error) {
	sessions, total, err := s.sessions.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return sessions, paginate(filter.Page, filter.PageSize, total), nil
}

// Get returns a session by id. The boolean reports a cache hit.
func (s *SessionService) Get(ctx context.Context, id string) (*models.Session, bool, error) {
	key := s.cache.Key("session", id)
	var cached models.Session
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, true, nil
	}
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, false, err
	}
	_ = s.cache.Set(ctx, key, session, 0)
	return session, false, nil
}

// Create inserts a session, returning advisory notices alongside it.
func (s *SessionService) Create(ctx context.Context, req CreateSessionRequest) (*models.Session, []models.Notice, error) {
	session, err := s.draft(req)
	if err != nil {
		return nil, nil, err
	}
	var notices []models.Notice
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var werr error
		notices, werr = s.write(ctx, nil, session, nil)
		return werr
	})
	if err != nil {
		return nil, nil, err
	}
	s.forget(ctx, nil, session)
	s.logger.Debug("session created", zap.String("session_id", session.ID), zap.Int("warnings", len(notices)))
	return session, notices, nil
}

// Update applies a partial update to one session.
func (s *SessionService) Update(ctx context.Context, id string, req UpdateSessionRequest) (*models.Session, []models.Notice, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	return s.modify(ctx, id, req.apply)
}

// UpdateBatch applies every item in one transaction. The first failure rolls back the whole
// batch and names the failing session.
func (s *SessionService) UpdateBatch(ctx context.Context, req BatchUpdateSessionsRequest) ([]models.Session, []models.Notice, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}
	var (
		updated []models.Session
		notices []models.Notice
		pairs   [][2]*models.Session
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		for _, item := range req.Items {
			before, after, itemNotices, err := s.modifyInTx(ctx, item.ID, item.UpdateSessionRequest.apply)
			if err != nil {
				return prefixError(err, fmt.Sprintf("session %s", item.ID))
			}
			updated = append(updated, *after)
			notices = append(notices, itemNotices...)
			pairs = append(pairs, [2]*models.Session{before, after})
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	for _, pair := range pairs {
		s.forget(ctx, pair[0], pair[1])
	}
	return updated, notices, nil
}

// SetAttendees replaces the attendee set of a session.
func (s *SessionService) SetAttendees(ctx context.Context, id string, req AttendeesRequest) (*models.Session, []models.Notice, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendee payload")
	}
	return s.modify(ctx, id, func(session *models.Session) ([]string, error) {
		session.AttendeeIDs = uniqueIDs(req.PartnerIDs)
		return []string{compute.FieldAttendees}, nil
	})
}

// AddAttendees adds partners to the attendee set. Partners already attending are ignored.
func (s *SessionService) AddAttendees(ctx context.Context, id string, req AttendeesRequest) (*models.Session, []models.Notice, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendee payload")
	}
	return s.modify(ctx, id, func(session *models.Session) ([]string, error) {
		merged := uniqueIDs(append(append([]string(nil), session.AttendeeIDs...), req.PartnerIDs...))
		if len(merged) == len(session.AttendeeIDs) {
			return nil, nil
		}
		session.AttendeeIDs = merged
		return []string{compute.FieldAttendees}, nil
	})
}

// RemoveAttendee drops one partner from the attendee set.
func (s *SessionService) RemoveAttendee(ctx context.Context, id, partnerID string) (*models.Session, []models.Notice, error) {
	return s.modify(ctx, id, func(session *models.Session) ([]string, error) {
		if !session.HasAttendee(partnerID) {
			return nil, nil
		}
		kept := make([]string, 0, len(session.AttendeeIDs))
		for _, attendee := range session.AttendeeIDs {
			if attendee != partnerID {
				kept = append(kept, attendee)
			}
		}
		session.AttendeeIDs = kept
		return []string{compute.FieldAttendees}, nil
	})
}

// Delete removes a session and recomputes its course's session count.
func (s *SessionService) Delete(ctx context.Context, id string) error {
	var before *models.Session
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		before, err = s.lock(ctx, id)
		if err != nil {
			return err
		}
		courses, err := s.lockCourses(ctx, compute.AffectedCourses(before, nil))
		if err != nil {
			return err
		}
		if err := s.sessions.Delete(ctx, id); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete session")
		}
		return s.refreshCourses(ctx, courses)
	})
	if err != nil {
		return err
	}
	s.forget(ctx, before, nil)
	return nil
}

// Preview computes derived fields and runs every check on an unsaved draft.
func (s *SessionService) Preview(ctx context.Context, req CreateSessionRequest) (*SessionPreview, error) {
	session, err := s.draft(req)
	if err != nil {
		return nil, err
	}
	compute.SessionGraph.ApplyAll(session)
	outcome := compute.SessionChecks.Evaluate(session)
	notices := outcome.Notices()
	if notices == nil {
		notices = []models.Notice{}
	}
	return &SessionPreview{Session: session, Notices: notices}, nil
}

func (s *SessionService) modify(ctx context.Context, id string, mutate func(*models.Session) ([]string, error)) (*models.Session, []models.Notice, error) {
	var (
		before, after *models.Session
		notices       []models.Notice
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		before, after, notices, err = s.modifyInTx(ctx, id, mutate)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	s.forget(ctx, before, after)
	return after, notices, nil
}

func (s *SessionService) modifyInTx(ctx context.Context, id string, mutate func(*models.Session) ([]string, error)) (*models.Session, *models.Session, []models.Notice, error) {
	before, err := s.lock(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	after := before.Clone()
	changed, err := mutate(after)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(changed) == 0 {
		return before, after, nil, nil
	}
	notices, err := s.write(ctx, before, after, changed)
	if err != nil {
		return nil, nil, nil, err
	}
	return before, after, notices, nil
}

// write recomputes, checks and persists one session. A nil before means the session is new
// and every derived field and check runs. The caller holds the session row lock; the course
// rows whose session_count changes are locked here before anything is read from them.
func (s *SessionService) write(ctx context.Context, before, after *models.Session, changed []string) ([]models.Notice, error) {
	courses, err := s.lockCourses(ctx, compute.AffectedCourses(before, after))
	if err != nil {
		return nil, err
	}
	if err := s.ensureReferences(ctx, before, after, changed, courses); err != nil {
		return nil, err
	}

	var recomputed []string
	var outcome compute.Outcome
	if before == nil {
		recomputed = compute.SessionGraph.ApplyAll(after)
		outcome = compute.SessionChecks.Evaluate(after)
	} else {
		recomputed = compute.SessionGraph.Apply(after, changed...)
		outcome = compute.SessionChecks.Evaluate(after, changed...)
	}
	s.metrics.ObserveRecompute("session", recomputed...)

	for _, notice := range outcome.Advisories {
		s.metrics.ObserveCheckFailure(notice.Check, string(notice.Kind))
	}
	if outcome.Blocked() {
		s.metrics.ObserveCheckFailure(outcome.Blocking.Check, string(outcome.Blocking.Kind))
		return nil, blockingError(*outcome.Blocking)
	}

	if before == nil {
		if err := s.sessions.Create(ctx, after); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
		}
	} else {
		if err := s.sessions.Update(ctx, after); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session")
		}
		if contains(changed, compute.FieldAttendees) {
			if err := s.sessions.ReplaceAttendees(ctx, after.ID, after.AttendeeIDs); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendees")
			}
		}
	}

	if err := s.refreshCourses(ctx, courses); err != nil {
		return nil, err
	}

	notices := outcome.Advisories
	for i := range notices {
		notices[i].RecordID = after.ID
	}
	return notices, nil
}

func (s *SessionService) ensureReferences(ctx context.Context, before, after *models.Session, changed []string, courses []*models.Course) error {
	isNew := before == nil
	if isNew || contains(changed, compute.FieldCourse) {
		if !hasCourse(courses, after.CourseID) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
	}

	var partnerIDs []string
	if (isNew || contains(changed, compute.FieldInstructor)) && after.InstructorID != nil {
		partnerIDs = append(partnerIDs, *after.InstructorID)
	}
	if isNew || contains(changed, compute.FieldAttendees) {
		partnerIDs = append(partnerIDs, after.AttendeeIDs...)
	}
	if len(partnerIDs) == 0 {
		return nil
	}
	missing, err := s.partners.FindMissing(ctx, uniqueIDs(partnerIDs))
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify partners")
	}
	if len(missing) > 0 {
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("partner not found: %s", strings.Join(missing, ", ")))
	}
	return nil
}

// lockCourses locks the course rows in id order so concurrent writers serialise on them
// without deadlocking. Courses that no longer exist are skipped.
func (s *SessionService) lockCourses(ctx context.Context, courseIDs []string) ([]*models.Course, error) {
	ids := uniqueIDs(courseIDs)
	locked := make([]*models.Course, 0, len(ids))
	for _, id := range ids {
		course, err := s.courses.FindByIDForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock course")
		}
		locked = append(locked, course)
	}
	return locked, nil
}

// refreshCourses recomputes session_count for each locked course through the course graph.
func (s *SessionService) refreshCourses(ctx context.Context, courses []*models.Course) error {
	for _, course := range courses {
		ids, err := s.sessions.ListIDsByCourse(ctx, course.ID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list course sessions")
		}
		state := &models.CourseSessions{Course: course, SessionIDs: ids}
		fields := compute.CourseGraph.Apply(state, compute.FieldSessions)
		if err := s.courses.UpdateSessionCount(ctx, course.ID, course.SessionCount); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session count")
		}
		s.metrics.ObserveRecompute("course", fields...)
	}
	return nil
}

func (s *SessionService) load(ctx context.Context, id string) (*models.Session, error) {
	return s.found(s.sessions.FindByID(ctx, id))
}

// lock loads a session with its row locked until the transaction ends.
func (s *SessionService) lock(ctx context.Context, id string) (*models.Session, error) {
	return s.found(s.sessions.FindByIDForUpdate(ctx, id))
}

func (s *SessionService) found(session *models.Session, err error) (*models.Session, error) {
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

func (s *SessionService) draft(req CreateSessionRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	session := &models.Session{
		Name:         strings.TrimSpace(req.Name),
		Duration:     compute.RoundDuration(req.Duration),
		Seats:        req.Seats,
		InstructorID: normalizeOptional(req.InstructorID),
		CourseID:     req.CourseID,
		AttendeeIDs:  uniqueIDs(req.AttendeeIDs),
		Active:       true,
	}
	if req.Active != nil {
		session.Active = *req.Active
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		return nil, err
	}
	if start == nil {
		today := compute.TruncateDate(s.now())
		start = &today
	}
	session.StartDate = start
	return session, nil
}

// forget evicts the session and the course details that embed it.
func (s *SessionService) forget(ctx context.Context, before, after *models.Session) {
	keys := make([]string, 0, 3)
	courseIDs := compute.AffectedCourses(before, after)
	if before != nil {
		keys = append(keys, s.cache.Key("session", before.ID))
		courseIDs = append(courseIDs, before.CourseID)
	} else if after != nil {
		keys = append(keys, s.cache.Key("session", after.ID))
	}
	for _, courseID := range uniqueIDs(courseIDs) {
		keys = append(keys, s.cache.Key("course", courseID))
	}
	s.cache.Forget(ctx, keys...)
}

// apply copies present fields onto session and reports them as changed.
func (req UpdateSessionRequest) apply(session *models.Session) ([]string, error) {
	var changed []string
	if req.Name != nil {
		session.Name = strings.TrimSpace(*req.Name)
		changed = append(changed, compute.FieldName)
	}
	if req.StartDate != nil {
		start, err := parseDate(req.StartDate)
		if err != nil {
			return nil, err
		}
		session.StartDate = start
		changed = append(changed, compute.FieldStartDate)
	}
	if req.Duration != nil {
		session.Duration = compute.RoundDuration(*req.Duration)
		changed = append(changed, compute.FieldDuration)
	}
	if req.Seats != nil {
		session.Seats = *req.Seats
		changed = append(changed, compute.FieldSeats)
	}
	if req.InstructorID != nil {
		session.InstructorID = normalizeOptional(req.InstructorID)
		changed = append(changed, compute.FieldInstructor)
	}
	if req.CourseID != nil {
		session.CourseID = strings.TrimSpace(*req.CourseID)
		changed = append(changed, compute.FieldCourse)
	}
	if req.AttendeeIDs != nil {
		for _, id := range *req.AttendeeIDs {
			if strings.TrimSpace(id) == "" {
				return nil, appErrors.Clone(appErrors.ErrValidation, "attendee ids must not be empty")
			}
		}
		session.AttendeeIDs = uniqueIDs(*req.AttendeeIDs)
		changed = append(changed, compute.FieldAttendees)
	}
	if req.Active != nil {
		session.Active = *req.Active
		changed = append(changed, compute.FieldActive)
	}
	return changed, nil
}

func blockingError(notice models.Notice) error {
	switch notice.Check {
	case "instructor_not_attendee":
		return appErrors.Clone(appErrors.ErrInstructorAttendee, notice.Message)
	default:
		return appErrors.Clone(appErrors.ErrValidation, notice.Message)
	}
}

// prefixError keeps the code and status of err while naming the record that failed.
func prefixError(err error, prefix string) error {
	appErr := appErrors.FromError(err)
	return appErrors.Clone(appErr, prefix+": "+appErr.Message)
}

func parseDate(raw *string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	value := strings.TrimSpace(*raw)
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "start_date must use YYYY-MM-DD")
	}
	return &parsed, nil
}

// uniqueIDs drops blanks and duplicates and returns the ids sorted.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func hasCourse(courses []*models.Course, id string) bool {
	for _, course := range courses {
		if course.ID == id {
			return true
		}
	}
	return false
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func paginate(page, size, total int) *models.Pagination {
	page, size = models.NormalizePage(page, size)
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
