package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// pageParams reads page/limit query parameters with the list defaults.
func pageParams(c *gin.Context) (int, int) {
	page, size := 1, 20
	if v, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		page = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		size = v
	}
	return page, size
}

// boolQuery parses an optional boolean filter. Unknown values leave the filter unset.
func boolQuery(c *gin.Context, key string) *bool {
	switch strings.ToLower(strings.TrimSpace(c.Query(key))) {
	case "true", "1":
		val := true
		return &val
	case "false", "0":
		val := false
		return &val
	default:
		return nil
	}
}
