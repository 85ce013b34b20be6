package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/openacademy-api/internal/models"
	appErrors "github.com/noah-isme/openacademy-api/pkg/errors"
)

type partnerRepository interface {
	List(ctx context.Context, filter models.PartnerFilter) ([]models.Partner, int, error)
	FindByID(ctx context.Context, id string) (*models.Partner, error)
	Create(ctx context.Context, partner *models.Partner) error
	Update(ctx context.Context, partner *models.Partner) error
	Delete(ctx context.Context, id string) error
}

type partnerSessionRepository interface {
	ListByAttendee(ctx context.Context, partnerID string) ([]models.Session, error)
	ClearInstructor(ctx context.Context, partnerID string) error
}

type partnerCourseRepository interface {
	ClearResponsible(ctx context.Context, partnerID string) ([]string, error)
}

type attendeeRemover interface {
	RemoveAttendee(ctx context.Context, id, partnerID string) (*models.Session, []models.Notice, error)
}

// PartnerRequest represents the payload for creating or updating partners.
type PartnerRequest struct {
	Name       string  `json:"name" validate:"required,max=255"`
	Email      *string `json:"email" validate:"omitempty,email"`
	Instructor bool    `json:"instructor"`
}

// PartnerServiceParams groups the dependencies of PartnerService.
type PartnerServiceParams struct {
	Tx        transactor
	Partners  partnerRepository
	Sessions  partnerSessionRepository
	Courses   partnerCourseRepository
	Attendees attendeeRemover
	Cache     *CacheService
	Validator *validator.Validate
	Logger    *zap.Logger
}

// PartnerService manages partners and the references other records hold on them.
type PartnerService struct {
	tx        transactor
	partners  partnerRepository
	sessions  partnerSessionRepository
	courses   partnerCourseRepository
	attendees attendeeRemover
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPartnerService constructs a PartnerService.
func NewPartnerService(params PartnerServiceParams) *PartnerService {
	if params.Validator == nil {
		params.Validator = validator.New()
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	return &PartnerService{
		tx:        params.Tx,
		partners:  params.Partners,
		sessions:  params.Sessions,
		courses:   params.Courses,
		attendees: params.Attendees,
		cache:     params.Cache,
		validator: params.Validator,
		logger:    params.Logger,
	}
}

// List returns partners plus pagination data.
func (s *PartnerService) List(ctx context.Context, filter models.PartnerFilter) ([]models.Partner, *models.Pagination, error) {
	partners, total, err := s.partners.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list partners")
	}
	return partners, paginate(filter.Page, filter.PageSize, total), nil
}

// Get returns a partner with the sessions they attend.
func (s *PartnerService) Get(ctx context.Context, id string) (*models.PartnerDetail, error) {
	partner, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	sessions, err := s.sessions.ListByAttendee(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attended sessions")
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	return &models.PartnerDetail{Partner: *partner, AttendedSessions: sessions}, nil
}

// Create registers a new partner.
func (s *PartnerService) Create(ctx context.Context, req PartnerRequest) (*models.Partner, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid partner payload")
	}
	partner := &models.Partner{
		Name:       strings.TrimSpace(req.Name),
		Email:      normalizeOptional(req.Email),
		Instructor: req.Instructor,
	}
	if err := s.partners.Create(ctx, partner); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create partner")
	}
	return partner, nil
}

// Update modifies an existing partner.
func (s *PartnerService) Update(ctx context.Context, id string, req PartnerRequest) (*models.Partner, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid partner payload")
	}
	partner, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	renamed := partner.Name != strings.TrimSpace(req.Name)
	partner.Name = strings.TrimSpace(req.Name)
	partner.Email = normalizeOptional(req.Email)
	partner.Instructor = req.Instructor
	if err := s.partners.Update(ctx, partner); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update partner")
	}
	// course details embed the responsible partner's name
	if renamed {
		_ = s.cache.Invalidate(ctx, s.cache.Key("course", "*"))
	}
	return partner, nil
}

// Delete removes a partner. Courses lose their responsible, sessions lose their instructor and
// every attended session drops the partner through the session write path so its derived
// fields are recomputed.
func (s *PartnerService) Delete(ctx context.Context, id string) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.load(ctx, id); err != nil {
			return err
		}
		attended, err := s.sessions.ListByAttendee(ctx, id)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attended sessions")
		}
		for _, session := range attended {
			if _, _, err := s.attendees.RemoveAttendee(ctx, session.ID, id); err != nil {
				return err
			}
		}
		if err := s.sessions.ClearInstructor(ctx, id); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear session instructor")
		}
		cleared, err := s.courses.ClearResponsible(ctx, id)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear course responsible")
		}
		if err := s.partners.Delete(ctx, id); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete partner")
		}
		s.logger.Debug("partner references cleared",
			zap.String("partner_id", id),
			zap.Int("sessions", len(attended)),
			zap.Strings("courses", cleared),
		)
		return nil
	})
	if err != nil {
		return err
	}
	_ = s.cache.Invalidate(ctx, s.cache.Key("session", "*"))
	_ = s.cache.Invalidate(ctx, s.cache.Key("course", "*"))
	return nil
}

func (s *PartnerService) load(ctx context.Context, id string) (*models.Partner, error) {
	partner, err := s.partners.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "partner not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load partner")
	}
	return partner, nil
}
