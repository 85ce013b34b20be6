package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/openacademy-api/internal/middleware"
	"github.com/noah-isme/openacademy-api/internal/models"
	"github.com/noah-isme/openacademy-api/internal/service"
	appErrors "github.com/noah-isme/openacademy-api/pkg/errors"
	"github.com/noah-isme/openacademy-api/pkg/response"
)

type sessionService interface {
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Session, bool, error)
	Create(ctx context.Context, req service.CreateSessionRequest) (*models.Session, []models.Notice, error)
	Update(ctx context.Context, id string, req service.UpdateSessionRequest) (*models.Session, []models.Notice, error)
	UpdateBatch(ctx context.Context, req service.BatchUpdateSessionsRequest) ([]models.Session, []models.Notice, error)
	SetAttendees(ctx context.Context, id string, req service.AttendeesRequest) (*models.Session, []models.Notice, error)
	AddAttendees(ctx context.Context, id string, req service.AttendeesRequest) (*models.Session, []models.Notice, error)
	RemoveAttendee(ctx context.Context, id, partnerID string) (*models.Session, []models.Notice, error)
	Delete(ctx context.Context, id string) error
	Preview(ctx context.Context, req service.CreateSessionRequest) (*service.SessionPreview, error)
}

type rosterService interface {
	Render(ctx context.Context, sessionID string, format service.RosterFormat) (*service.RosterFile, error)
}

// SessionHandler wires session services to HTTP routes. Advisory warnings produced by writes
// are returned under meta.warnings.
type SessionHandler struct {
	sessions sessionService
	roster   rosterService
}

// NewSessionHandler constructs a new SessionHandler.
func NewSessionHandler(sessions sessionService, roster rosterService) *SessionHandler {
	return &SessionHandler{sessions: sessions, roster: roster}
}

// List godoc
// @Summary List sessions
// @Tags Sessions
// @Produce json
// @Param course_id query string false "Filter by course"
// @Param instructor_id query string false "Filter by instructor"
// @Param attendee_id query string false "Filter by attendee"
// @Param active query string false "true (default), false or all"
// @Param confirmed query bool false "Filter by confirmation"
// @Param search query string false "Search by name"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Param sort query string false "Sort field (start_date,name,taken_seats,created_at)"
// @Param order query string false "Sort order (asc/desc)"
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	filter := models.SessionFilter{
		CourseID:     strings.TrimSpace(c.Query("course_id")),
		InstructorID: strings.TrimSpace(c.Query("instructor_id")),
		AttendeeID:   strings.TrimSpace(c.Query("attendee_id")),
		Confirmed:    boolQuery(c, "confirmed"),
		Search:       strings.TrimSpace(c.Query("search")),
		SortBy:       c.Query("sort"),
		SortOrder:    c.Query("order"),
	}
	if strings.ToLower(strings.TrimSpace(c.Query("active"))) != "all" {
		filter.Active = boolQuery(c, "active")
		if filter.Active == nil {
			active := true
			filter.Active = &active
		}
	}
	filter.Page, filter.PageSize = pageParams(c)

	sessions, pagination, err := h.sessions.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, pagination)
}

// Get godoc
// @Summary Get session detail
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	session, hit, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, session, nil, middleware.ExtractMeta(c))
}

// Create godoc
// @Summary Create session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body service.CreateSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	var req service.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session payload"))
		return
	}
	session, notices, err := h.sessions.Create(c.Request.Context(), req)
	h.respond(c, http.StatusCreated, session, notices, err)
}

// Update godoc
// @Summary Update session
// @Description Partial update; only the fields present in the payload are changed.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.UpdateSessionRequest true "Session patch"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /sessions/{id} [put]
func (h *SessionHandler) Update(c *gin.Context) {
	var req service.UpdateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session payload"))
		return
	}
	session, notices, err := h.sessions.Update(c.Request.Context(), c.Param("id"), req)
	h.respond(c, http.StatusOK, session, notices, err)
}

// UpdateBatch godoc
// @Summary Update several sessions in one transaction
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body service.BatchUpdateSessionsRequest true "Batch payload"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /sessions [patch]
func (h *SessionHandler) UpdateBatch(c *gin.Context) {
	var req service.BatchUpdateSessionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid batch payload"))
		return
	}
	sessions, notices, err := h.sessions.UpdateBatch(c.Request.Context(), req)
	h.respond(c, http.StatusOK, sessions, notices, err)
}

// Preview godoc
// @Summary Preview a session draft
// @Description Computes derived fields and runs every check without saving.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body service.CreateSessionRequest true "Session draft"
// @Success 200 {object} response.Envelope
// @Router /sessions/preview [post]
func (h *SessionHandler) Preview(c *gin.Context) {
	var req service.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session payload"))
		return
	}
	preview, err := h.sessions.Preview(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, preview, nil)
}

// SetAttendees godoc
// @Summary Replace session attendees
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.AttendeesRequest true "Attendees"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/attendees [put]
func (h *SessionHandler) SetAttendees(c *gin.Context) {
	var req service.AttendeesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid attendee payload"))
		return
	}
	session, notices, err := h.sessions.SetAttendees(c.Request.Context(), c.Param("id"), req)
	h.respond(c, http.StatusOK, session, notices, err)
}

// AddAttendees godoc
// @Summary Add session attendees
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.AttendeesRequest true "Attendees"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/attendees [post]
func (h *SessionHandler) AddAttendees(c *gin.Context) {
	var req service.AttendeesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid attendee payload"))
		return
	}
	session, notices, err := h.sessions.AddAttendees(c.Request.Context(), c.Param("id"), req)
	h.respond(c, http.StatusOK, session, notices, err)
}

// RemoveAttendee godoc
// @Summary Remove a session attendee
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Param partnerId path string true "Partner ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/attendees/{partnerId} [delete]
func (h *SessionHandler) RemoveAttendee(c *gin.Context) {
	session, notices, err := h.sessions.RemoveAttendee(c.Request.Context(), c.Param("id"), c.Param("partnerId"))
	h.respond(c, http.StatusOK, session, notices, err)
}

// Delete godoc
// @Summary Delete session
// @Tags Sessions
// @Param id path string true "Session ID"
// @Success 204
// @Router /sessions/{id} [delete]
func (h *SessionHandler) Delete(c *gin.Context) {
	if err := h.sessions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Roster godoc
// @Summary Download session roster
// @Tags Sessions
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Session ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Router /sessions/{id}/roster [get]
func (h *SessionHandler) Roster(c *gin.Context) {
	if h.roster == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	format := service.RosterFormat(strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", string(service.RosterFormatCSV)))))
	file, err := h.roster.Render(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Payload)
}

func (h *SessionHandler) respond(c *gin.Context, status int, data interface{}, notices []models.Notice, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.AddWarnings(c, notices)
	response.JSON(c, status, data, nil, middleware.ExtractMeta(c))
}
