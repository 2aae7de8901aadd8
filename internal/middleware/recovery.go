package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"trackwise/api/internal/httpx"
)

// Recovery converts panics into the generic 500 envelope. The real error is
// logged server-side only.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("error", r).
					Str("request_id", c.Writer.Header().Get(RequestIDHeader)).
					Msg("panic recovered")
				httpx.Abort(c, http.StatusInternalServerError,
					httpx.CodeInternalError, "something went wrong")
			}
		}()
		c.Next()
	}
}
