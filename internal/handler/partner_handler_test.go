package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/openacademy-api/internal/models"
	"github.com/noah-isme/openacademy-api/internal/service"
	appErrors "github.com/noah-isme/openacademy-api/pkg/errors"
)

type fakePartnerSrv struct {
	lastFilter models.PartnerFilter
	partner    *models.Partner
	err        error
}

func (f *fakePartnerSrv) List(_ context.Context, filter models.PartnerFilter) ([]models.Partner, *models.Pagination, error) {
	f.lastFilter = filter
	return []models.Partner{}, &models.Pagination{Page: 1, PageSize: 20}, f.err
}

func (f *fakePartnerSrv) Get(context.Context, string) (*models.PartnerDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.PartnerDetail{Partner: *f.partner, AttendedSessions: []models.Session{}}, nil
}

func (f *fakePartnerSrv) Create(context.Context, service.PartnerRequest) (*models.Partner, error) {
	return f.partner, f.err
}

func (f *fakePartnerSrv) Update(context.Context, string, service.PartnerRequest) (*models.Partner, error) {
	return f.partner, f.err
}

func (f *fakePartnerSrv) Delete(context.Context, string) error {
	return f.err
}

func TestPartnerHandlerListInstructorFilter(t *testing.T) {
	srv := &fakePartnerSrv{}
	handler := NewPartnerHandler(srv)

	c, rec := newTestContext(http.MethodGet, "/partners?instructor=true", "")
	handler.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, srv.lastFilter.Instructor)
	assert.True(t, *srv.lastFilter.Instructor)
}

func TestPartnerHandlerGetNotFound(t *testing.T) {
	handler := NewPartnerHandler(&fakePartnerSrv{err: appErrors.Clone(appErrors.ErrNotFound, "partner not found")})

	c, rec := newTestContext(http.MethodGet, "/partners/ghost", "")
	c.Params = gin.Params{{Key: "id", Value: "ghost"}}
	handler.Get(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPartnerHandlerCreate(t *testing.T) {
	handler := NewPartnerHandler(&fakePartnerSrv{partner: &models.Partner{ID: "p1", Name: "Ada"}})

	c, rec := newTestContext(http.MethodPost, "/partners", `{"name":"Ada","instructor":true}`)
	handler.Create(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
}
