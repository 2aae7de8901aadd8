package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"trackwise/api/internal/httpx"
)

// Middleware rejects clients that exhausted their window with 429 and counts
// a new attempt whenever the guarded handler fails. Successful requests pass
// through uncounted, so the limiter throttles brute force without touching
// legitimate sessions.
func Middleware(limiter *Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := Key(c.ClientIP(), c.GetHeader("User-Agent"))

		limited, retryAfter, err := limiter.Limited(c.Request.Context(), key)
		if err != nil {
			// A broken limiter store must not lock everyone out.
			c.Next()
			return
		}
		if limited {
			c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			httpx.Abort(c, http.StatusTooManyRequests, httpx.CodeRateLimited,
				"too many attempts, try again later")
			return
		}

		c.Next()

		if c.Writer.Status() >= http.StatusBadRequest {
			_ = limiter.Record(c.Request.Context(), key)
		}
	}
}
