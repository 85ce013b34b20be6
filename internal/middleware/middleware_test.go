package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/openacademy-api/internal/models"
)

type observation struct {
	method string
	path   string
	status int
}

type recordingObserver struct {
	seen []observation
}

func (r *recordingObserver) ObserveHTTPRequest(method, path string, status int, _ time.Duration) {
	r.seen = append(r.seen, observation{method: method, path: path, status: status})
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	obs := &recordingObserver{}
	r := gin.New()
	r.Use(Metrics(obs, "/health"))
	r.GET("/sessions/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, target := range []string{"/sessions/s1", "/sessions/s2", "/health", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}

	require.Len(t, obs.seen, 3)
	assert.Equal(t, observation{http.MethodGet, "/sessions/:id", http.StatusNoContent}, obs.seen[0])
	assert.Equal(t, "/sessions/:id", obs.seen[1].path)
	assert.Equal(t, observation{http.MethodGet, "unmatched", http.StatusNotFound}, obs.seen[2])
}

func TestResponseMetaWarnings(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	assert.Nil(t, ExtractMeta(c))

	AddWarnings(c, nil)
	assert.Nil(t, ExtractMeta(c))

	AddWarnings(c, []models.Notice{{Kind: models.NoticeAdvisory, Check: "seats"}})
	AddWarnings(c, []models.Notice{{Kind: models.NoticeAdvisory, Check: "attendees"}})
	SetCacheHit(c, false)

	meta := ExtractMeta(c)
	require.NotNil(t, meta)
	warnings, ok := meta["warnings"].([]models.Notice)
	require.True(t, ok)
	require.Len(t, warnings, 2)
	assert.Equal(t, "attendees", warnings[1].Check)
	assert.Equal(t, false, meta["cache_hit"])
}
