package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/openacademy-api/internal/models"
	"github.com/noah-isme/openacademy-api/internal/service"
	appErrors "github.com/noah-isme/openacademy-api/pkg/errors"
	"github.com/noah-isme/openacademy-api/pkg/response"
)

type partnerService interface {
	List(ctx context.Context, filter models.PartnerFilter) ([]models.Partner, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.PartnerDetail, error)
	Create(ctx context.Context, req service.PartnerRequest) (*models.Partner, error)
	Update(ctx context.Context, id string, req service.PartnerRequest) (*models.Partner, error)
	Delete(ctx context.Context, id string) error
}

// PartnerHandler wires partner services to HTTP routes.
type PartnerHandler struct {
	partners partnerService
}

// NewPartnerHandler constructs a new PartnerHandler.
func NewPartnerHandler(partners partnerService) *PartnerHandler {
	return &PartnerHandler{partners: partners}
}

// List godoc
// @Summary List partners
// @Tags Partners
// @Produce json
// @Param search query string false "Search by name/email"
// @Param instructor query bool false "Filter instructors"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Param sort query string false "Sort field (name,email,created_at)"
// @Param order query string false "Sort order (asc/desc)"
// @Success 200 {object} response.Envelope
// @Router /partners [get]
func (h *PartnerHandler) List(c *gin.Context) {
	filter := models.PartnerFilter{
		Instructor: boolQuery(c, "instructor"),
		Search:     strings.TrimSpace(c.Query("search")),
		SortBy:     c.Query("sort"),
		SortOrder:  c.Query("order"),
	}
	filter.Page, filter.PageSize = pageParams(c)

	partners, pagination, err := h.partners.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, partners, pagination)
}

// Get godoc
// @Summary Get partner with attended sessions
// @Tags Partners
// @Produce json
// @Param id path string true "Partner ID"
// @Success 200 {object} response.Envelope
// @Router /partners/{id} [get]
func (h *PartnerHandler) Get(c *gin.Context) {
	partner, err := h.partners.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, partner, nil)
}

// Create godoc
// @Summary Create partner
// @Tags Partners
// @Accept json
// @Produce json
// @Param payload body service.PartnerRequest true "Partner payload"
// @Success 201 {object} response.Envelope
// @Router /partners [post]
func (h *PartnerHandler) Create(c *gin.Context) {
	var req service.PartnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid partner payload"))
		return
	}
	partner, err := h.partners.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, partner)
}

// Update godoc
// @Summary Update partner
// @Tags Partners
// @Accept json
// @Produce json
// @Param id path string true "Partner ID"
// @Param payload body service.PartnerRequest true "Partner payload"
// @Success 200 {object} response.Envelope
// @Router /partners/{id} [put]
func (h *PartnerHandler) Update(c *gin.Context) {
	var req service.PartnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid partner payload"))
		return
	}
	partner, err := h.partners.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, partner, nil)
}

// Delete godoc
// @Summary Delete partner
// @Description Clears course responsibles and session instructors, and removes the partner from attendee lists.
// @Tags Partners
// @Param id path string true "Partner ID"
// @Success 204
// @Router /partners/{id} [delete]
func (h *PartnerHandler) Delete(c *gin.Context) {
	if err := h.partners.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
