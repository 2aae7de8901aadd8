// Package httpx defines the uniform error envelope and the machine-readable
// failure codes the API returns. Every failure carries a stable code distinct
// from the human message so clients can branch without string matching.
package httpx

import (
	"time"

	"github.com/gin-gonic/gin"
)

// Failure codes.
const (
	CodeNoToken             = "NO_TOKEN"
	CodeEmptyToken          = "EMPTY_TOKEN"
	CodeTokenExpired        = "TOKEN_EXPIRED"
	CodeInvalidTokenFormat  = "INVALID_TOKEN_FORMAT"
	CodeVerificationFailed  = "VERIFICATION_FAILED"
	CodeInvalidTokenType    = "INVALID_TOKEN_TYPE"
	CodeInvalidTokenPayload = "INVALID_TOKEN_PAYLOAD"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeAccountDeactivated  = "ACCOUNT_DEACTIVATED"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInsufficientPerms   = "INSUFFICIENT_PERMISSIONS"
	CodeOwnershipRequired   = "OWNERSHIP_REQUIRED"
	CodeAlreadyActive       = "ALREADY_ACTIVE"
	CodeInCooldown          = "IN_COOLDOWN"
	CodeNoActiveSession     = "NO_ACTIVE_SESSION"
	CodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeEmailTaken          = "EMAIL_TAKEN"
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeInvalidCode         = "INVALID_CODE"
	CodeCodeExpired         = "CODE_EXPIRED"
	CodeInvalidResetToken   = "INVALID_RESET_TOKEN"
	CodeUnsupportedMedia    = "UNSUPPORTED_MEDIA_TYPE"
	CodeInternalError       = "INTERNAL_ERROR"
)

type ErrorEnvelope struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Code      string    `json:"code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Fail writes the failure envelope without aborting the handler chain.
func Fail(c *gin.Context, status int, code string, message string) {
	c.JSON(status, ErrorEnvelope{
		Success:   false,
		Message:   message,
		Code:      code,
		Timestamp: time.Now().UTC(),
	})
}

// Abort writes the failure envelope and stops the handler chain. Middleware
// uses this form.
func Abort(c *gin.Context, status int, code string, message string) {
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		Success:   false,
		Message:   message,
		Code:      code,
		Timestamp: time.Now().UTC(),
	})
}

// Internal hides the underlying error behind a generic 500 envelope. The
// caller is expected to have logged the real error already.
func Internal(c *gin.Context) {
	Fail(c, 500, CodeInternalError, "something went wrong")
}
