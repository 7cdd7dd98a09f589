package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const responseMetaKey = "response_meta"

// WithResponseMeta attaches a metadata map to every request so handlers can
// annotate the response envelope with cache and timing information. If a
// handler measured its own processing time the middleware leaves it alone;
// otherwise the full request duration is recorded.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Set(responseMetaKey, map[string]interface{}{})
		c.Next()
		meta := ensureMeta(c)
		if _, ok := meta["processing_time_ms"]; !ok {
			meta["processing_time_ms"] = time.Since(start).Milliseconds()
		}
	}
}

// SetCacheHit marks whether the analytics result was served from Redis.
func SetCacheHit(c *gin.Context, hit bool) {
	ensureMeta(c)["cache_hit"] = hit
}

// ExtractMeta returns the request's metadata map, or nil when the
// WithResponseMeta middleware is not installed.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	if raw, ok := c.Get(responseMetaKey); ok {
		if meta, ok := raw.(map[string]interface{}); ok {
			return meta
		}
	}
	return nil
}

func ensureMeta(c *gin.Context) map[string]interface{} {
	if meta := ExtractMeta(c); meta != nil {
		return meta
	}
	meta := make(map[string]interface{})
	if c != nil {
		c.Set(responseMetaKey, meta)
	}
	return meta
}
