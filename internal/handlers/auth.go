package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"trackwise/api/internal/httpx"
	"trackwise/api/internal/middleware"
	"trackwise/api/internal/models"
	"trackwise/api/internal/security"
	"trackwise/api/internal/service"
)

type userResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"displayName"`
	Role        string     `json:"role"`
	IsActive    bool       `json:"isActive"`
	IsVerified  bool       `json:"isVerified"`
	AvatarURL   *string    `json:"avatarUrl"`
	LastLogin   *time.Time `json:"lastLogin"`
}

type tokensResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type authResponse struct {
	User   userResponse   `json:"user"`
	Tokens tokensResponse `json:"tokens"`
}

func toUserResponse(user models.User) userResponse {
	return userResponse{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        string(user.Role),
		IsActive:    user.IsActive,
		IsVerified:  user.IsVerified,
		AvatarURL:   user.AvatarURL,
		LastLogin:   user.LastLogin,
	}
}

func toAuthResponse(result service.AuthResult) authResponse {
	return authResponse{
		User: toUserResponse(result.User),
		Tokens: tokensResponse{
			AccessToken:  result.AccessToken,
			RefreshToken: result.RefreshToken,
		},
	}
}

// authFailure maps service errors onto status codes and envelope codes. An
// unrecognized error is logged and hidden behind the generic 500.
func (h HandlerSet) authFailure(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEmailTaken):
		httpx.Fail(c, http.StatusConflict, httpx.CodeEmailTaken, "email already registered")
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.Fail(c, http.StatusUnauthorized, httpx.CodeInvalidCredentials, "invalid email or password")
	case errors.Is(err, service.ErrAccountDeactivated):
		httpx.Fail(c, http.StatusUnauthorized, httpx.CodeAccountDeactivated, "account deactivated")
	case errors.Is(err, service.ErrInvalidRefreshToken):
		httpx.Fail(c, http.StatusUnauthorized, httpx.CodeInvalidRefreshToken, "refresh token not recognized")
	case errors.Is(err, security.ErrTokenExpired):
		httpx.Fail(c, http.StatusUnauthorized, httpx.CodeTokenExpired, "refresh token expired")
	case errors.Is(err, service.ErrInvalidCode):
		httpx.Fail(c, http.StatusBadRequest, httpx.CodeInvalidCode, "verification code not recognized")
	case errors.Is(err, service.ErrCodeExpired):
		httpx.Fail(c, http.StatusBadRequest, httpx.CodeCodeExpired, "verification code expired")
	case errors.Is(err, service.ErrInvalidResetToken):
		httpx.Fail(c, http.StatusBadRequest, httpx.CodeInvalidResetToken, "reset token not recognized")
	default:
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("auth operation failed")
		httpx.Internal(c)
	}
}

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=7"`
}

func (h HandlerSet) RegisterUser(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Fail(c, http.StatusBadRequest, httpx.CodeValidationFailed, err.Error())
		return
	}

	result, err := h.authService.Register(c.Request.Context(), service.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.Name,
	})
	if err != nil {
		h.authFailure(c, err)
		return
	}

	c.JSON(http.StatusCreated, toAuthResponse(result))
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Fail(c, http.StatusBadRequest, httpx.CodeValidationFailed, err.Error())
		return
	}

	result, err := h.authService.Login(c.Request.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.authFailure(c, err)
		return
	}

	c.JSON(http.StatusOK, toAuthResponse(result))
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

func (h HandlerSet) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Fail(c, http.StatusBadRequest, httpx.CodeValidationFailed, err.Error())
		return
	}

	result, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.authFailure(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tokens": tokensResponse{
			AccessToken:  result.AccessToken,
			RefreshToken: result.RefreshToken,
		},
	})
}

func (h HandlerSet) Logout(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		httpx.Fail(c, http.StatusUnauthorized, httpx.CodeNoToken, "authentication required")
		return
	}

	if err := h.authService.Logout(c.Request.Context(), principal.ID); err != nil {
		h.log.Error().Err(err).Str("user_id", principal.ID).Msg("logout failed")
		httpx.Internal(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Verify echoes the normalized principal so clients can validate a stored
// token and rehydrate their session state.
func (h HandlerSet) Verify(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		httpx.Fail(c, http.StatusUnauthorized, httpx.CodeNoToken, "authentication required")
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": principal})
}

type verifyEmailRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

func (h HandlerSet) VerifyEmail(c *gin.Context) {
	var req verifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Fail(c, http.StatusBadRequest, httpx.CodeValidationFailed, err.Error())
		return
	}

	if err := h.authService.VerifyEmail(c.Request.Context(), req.Email, req.Code); err != nil {
		h.authFailure(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

type passwordResetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// RequestPasswordReset always answers 200 so the endpoint cannot be used to
// probe which emails exist. Token delivery is the mail layer's job.
func (h HandlerSet) RequestPasswordReset(c *gin.Context) {
	var req passwordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Fail(c, http.StatusBadRequest, httpx.CodeValidationFailed, err.Error())
		return
	}

	if _, err := h.authService.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		h.log.Error().Err(err).Msg("password reset request failed")
		httpx.Internal(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

type passwordResetConfirm struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=7"`
}

func (h HandlerSet) ConfirmPasswordReset(c *gin.Context) {
	var req passwordResetConfirm
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Fail(c, http.StatusBadRequest, httpx.CodeValidationFailed, err.Error())
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		h.authFailure(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
