package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/openacademy-api/internal/models"
	"github.com/noah-isme/openacademy-api/pkg/database"
	appErrors "github.com/noah-isme/openacademy-api/pkg/errors"
)

const copyPrefix = "Copy of "

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindByIDForUpdate(ctx context.Context, id string) (*models.Course, error)
	FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error)
	ExistsByName(ctx context.Context, name string, excludeID string) (bool, error)
	CountByNamePrefix(ctx context.Context, prefix string) (int, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
}

type courseSessionRepository interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.Session, error)
	ListIDsByCourse(ctx context.Context, courseID string) ([]string, error)
	DeleteByCourse(ctx context.Context, courseID string) (int, error)
}

type partnerFinder interface {
	FindByID(ctx context.Context, id string) (*models.Partner, error)
}

// CourseRequest is the payload for creating or updating a course.
type CourseRequest struct {
	Name          string  `json:"name" validate:"required,max=255"`
	Description   string  `json:"description" validate:"omitempty,nefield=Name"`
	ResponsibleID *string `json:"responsible_id"`
}

// DuplicateCourseRequest overrides copied values. Name is accepted but always replaced by the
// generated "Copy of" name.
type DuplicateCourseRequest struct {
	Name          *string `json:"name"`
	Description   *string `json:"description"`
	ResponsibleID *string `json:"responsible_id"`
}

// CourseService manages courses, their constraints and duplication.
type CourseService struct {
	tx        transactor
	courses   courseRepository
	sessions  courseSessionRepository
	partners  partnerFinder
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs a CourseService.
func NewCourseService(tx transactor, courses courseRepository, sessions courseSessionRepository, partners partnerFinder, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{tx: tx, courses: courses, sessions: sessions, partners: partners, cache: cache, validator: validate, logger: logger}
}

// List returns courses plus pagination data.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	courses, total, err := s.courses.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, paginate(filter.Page, filter.PageSize, total), nil
}

// Get returns a course with its sessions. The boolean reports a cache hit.
func (s *CourseService) Get(ctx context.Context, id string) (*models.CourseDetail, bool, error) {
	key := s.cache.Key("course", id)
	var cached models.CourseDetail
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, true, nil
	}

	detail, err := s.courses.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	sessions, err := s.sessions.ListByCourse(ctx, id)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course sessions")
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	detail.Sessions = sessions

	_ = s.cache.Set(ctx, key, detail, 0)
	return detail, false, nil
}

// Create registers a new course.
func (s *CourseService) Create(ctx context.Context, req CourseRequest) (*models.Course, error) {
	var course *models.Course
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		course, err = s.create(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return course, nil
}

// Update replaces the editable fields of a course.
func (s *CourseService) Update(ctx context.Context, id string, req CourseRequest) (*models.Course, error) {
	req = normalizeCourseRequest(req)
	if err := s.validate(req); err != nil {
		return nil, err
	}

	var course *models.Course
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		course, err = s.load(ctx, id)
		if err != nil {
			return err
		}
		if err := s.ensureConstraints(ctx, req, id); err != nil {
			return err
		}
		course.Name = req.Name
		course.Description = optionalString(req.Description)
		course.ResponsibleID = normalizeOptional(req.ResponsibleID)
		if err := s.courses.Update(ctx, course); err != nil {
			return persistError(err, "failed to update course")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.Forget(ctx, s.cache.Key("course", id))
	return course, nil
}

// Delete removes a course together with its sessions and their attendee rows.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	var sessionIDs []string
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		// the lock keeps session writers from attaching new sessions mid-delete
		if _, err := s.found(s.courses.FindByIDForUpdate(ctx, id)); err != nil {
			return err
		}
		var err error
		sessionIDs, err = s.sessions.ListIDsByCourse(ctx, id)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list course sessions")
		}
		if _, err := s.sessions.DeleteByCourse(ctx, id); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course sessions")
		}
		if err := s.courses.Delete(ctx, id); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
		}
		return nil
	})
	if err != nil {
		return err
	}

	keys := []string{s.cache.Key("course", id)}
	for _, sessionID := range sessionIDs {
		keys = append(keys, s.cache.Key("session", sessionID))
	}
	s.cache.Forget(ctx, keys...)
	s.logger.Info("course deleted", zap.String("course_id", id), zap.Int("sessions", len(sessionIDs)))
	return nil
}

// Duplicate copies a course under a generated "Copy of" name. Sessions are not copied.
func (s *CourseService) Duplicate(ctx context.Context, id string, req DuplicateCourseRequest) (*models.Course, error) {
	var course *models.Course
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		source, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		copies, err := s.courses.CountByNamePrefix(ctx, copyPrefix+source.Name)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count course copies")
		}

		copyReq := CourseRequest{Name: CopyName(source.Name, copies), ResponsibleID: source.ResponsibleID}
		if source.Description != nil {
			copyReq.Description = *source.Description
		}
		if req.Description != nil {
			copyReq.Description = *req.Description
		}
		if req.ResponsibleID != nil {
			copyReq.ResponsibleID = req.ResponsibleID
		}

		course, err = s.create(ctx, copyReq)
		return err
	})
	if err != nil {
		return nil, err
	}
	return course, nil
}

// CopyName returns the name of a duplicated course given how many existing names already start
// with "Copy of " followed by name.
func CopyName(name string, existing int) string {
	if existing == 0 {
		return copyPrefix + name
	}
	return fmt.Sprintf("%s%s (%d)", copyPrefix, name, existing)
}

func (s *CourseService) create(ctx context.Context, req CourseRequest) (*models.Course, error) {
	req = normalizeCourseRequest(req)
	if err := s.validate(req); err != nil {
		return nil, err
	}
	if err := s.ensureConstraints(ctx, req, ""); err != nil {
		return nil, err
	}

	course := &models.Course{
		Name:          req.Name,
		Description:   optionalString(req.Description),
		ResponsibleID: normalizeOptional(req.ResponsibleID),
	}
	if err := s.courses.Create(ctx, course); err != nil {
		return nil, persistError(err, "failed to create course")
	}
	return course, nil
}

func (s *CourseService) validate(req CourseRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "course name is required")
	}
	err := s.validator.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fieldErr := range fieldErrs {
			if fieldErr.Tag() == "nefield" {
				return appErrors.Clone(appErrors.ErrNameIsDescription, "")
			}
		}
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
}

func (s *CourseService) ensureConstraints(ctx context.Context, req CourseRequest, excludeID string) error {
	exists, err := s.courses.ExistsByName(ctx, req.Name, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course name")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrDuplicateName, "")
	}

	if req.ResponsibleID == nil {
		return nil
	}
	if _, err := s.partners.FindByID(ctx, *req.ResponsibleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "responsible partner not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load partner")
	}
	return nil
}

func (s *CourseService) load(ctx context.Context, id string) (*models.Course, error) {
	return s.found(s.courses.FindByID(ctx, id))
}

func (s *CourseService) found(course *models.Course, err error) (*models.Course, error) {
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// persistError maps constraint violations raised by the database to their domain errors.
func persistError(err error, message string) error {
	switch {
	case database.IsUniqueViolation(err):
		return appErrors.Wrap(err, appErrors.ErrDuplicateName.Code, appErrors.ErrDuplicateName.Status, appErrors.ErrDuplicateName.Message)
	case database.IsCheckViolation(err):
		return appErrors.Wrap(err, appErrors.ErrNameIsDescription.Code, appErrors.ErrNameIsDescription.Status, appErrors.ErrNameIsDescription.Message)
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
	}
}

// normalizeCourseRequest keeps name and description byte for byte; uniqueness and the
// name/description check compare the stored values.
func normalizeCourseRequest(req CourseRequest) CourseRequest {
	req.ResponsibleID = normalizeOptional(req.ResponsibleID)
	return req
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
