package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bonyankop-api/pkg/middleware/requestid"
)

const responseMetaKey = "response_meta"

type responseMeta struct {
	started time.Time
	values  map[string]interface{}
}

// WithResponseMeta stamps the request start so handlers can report
// processing time in the envelope meta block.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseMetaKey, &responseMeta{started: time.Now(), values: map[string]interface{}{}})
		c.Next()
	}
}

// SetMeta records a key for the envelope meta block of the current response.
func SetMeta(c *gin.Context, key string, value interface{}) {
	metaOf(c).values[key] = value
}

// SetCacheHit reports whether the payload came from cache, in the meta
// block and in the X-Cache header.
func SetCacheHit(c *gin.Context, hit bool) {
	SetMeta(c, "cache_hit", hit)
	if hit {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}
}

// Meta snapshots the meta block, adding processing_time_ms and the request ID.
func Meta(c *gin.Context) map[string]interface{} {
	m := metaOf(c)
	out := make(map[string]interface{}, len(m.values)+2)
	for k, v := range m.values {
		out[k] = v
	}
	out["processing_time_ms"] = time.Since(m.started).Milliseconds()
	if id := requestid.Value(c); id != "" {
		out["request_id"] = id
	}
	return out
}

func metaOf(c *gin.Context) *responseMeta {
	if v, ok := c.Get(responseMetaKey); ok {
		if m, ok := v.(*responseMeta); ok {
			return m
		}
	}
	m := &responseMeta{started: time.Now(), values: map[string]interface{}{}}
	c.Set(responseMetaKey, m)
	return m
}
