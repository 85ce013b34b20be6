package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/openacademy-api/internal/models"
)

const (
	responseMetaKey = "response_meta"
	cacheHitKey     = "cache_hit"
	warningsKey     = "warnings"
)

// WithResponseMeta initialises response metadata storage on the request context.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Set(responseMetaKey, map[string]interface{}{})
		c.Next()
		meta := ensureMeta(c)
		if _, exists := meta["processing_time_ms"]; !exists {
			meta["processing_time_ms"] = time.Since(start).Milliseconds()
		}
	}
}

// SetCacheHit records cache hit information for the current response.
func SetCacheHit(c *gin.Context, hit bool) {
	ensureMeta(c)[cacheHitKey] = hit
}

// AddWarnings appends advisory notices to the response metadata. Nothing is recorded when
// notices is empty so clean writes keep a lean envelope.
func AddWarnings(c *gin.Context, notices []models.Notice) {
	if len(notices) == 0 {
		return
	}
	meta := ensureMeta(c)
	existing, _ := meta[warningsKey].([]models.Notice)
	meta[warningsKey] = append(existing, notices...)
}

// ExtractMeta returns the metadata map stored on the context, nil when nothing was recorded.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	if meta, exists := c.Get(responseMetaKey); exists {
		if typed, ok := meta.(map[string]interface{}); ok && len(typed) > 0 {
			return typed
		}
	}
	return nil
}

func ensureMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return map[string]interface{}{}
	}
	if meta, exists := c.Get(responseMetaKey); exists {
		if typed, ok := meta.(map[string]interface{}); ok {
			return typed
		}
	}
	newMeta := make(map[string]interface{})
	c.Set(responseMetaKey, newMeta)
	return newMeta
}
