package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"trackwise/api/internal/httpx"
	"trackwise/api/internal/repository"
)

func (h HandlerSet) AdminListUsers(c *gin.Context) {
	limit := 50
	offset := 0

	if perPage := c.Query("perPage"); perPage != "" {
		if v, err := strconv.Atoi(perPage); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	if page := c.Query("page"); page != "" {
		if v, err := strconv.Atoi(page); err == nil && v > 1 {
			offset = (v - 1) * limit
		}
	}

	users, err := h.users.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.log.Error().Err(err).Msg("list users failed")
		httpx.Internal(c)
		return
	}

	items := make([]userResponse, 0, len(users))
	for _, user := range users {
		items = append(items, toUserResponse(user))
	}

	c.JSON(http.StatusOK, gin.H{"users": items})
}

type updateStatusRequest struct {
	IsActive *bool `json:"isActive" binding:"required"`
}

// AdminUpdateUserStatus flips the soft-disable flag. A deactivated user fails
// authentication on their next request; tokens are not revoked eagerly.
func (h HandlerSet) AdminUpdateUserStatus(c *gin.Context) {
	userID := c.Param("userId")
	if userID == "" {
		httpx.Fail(c, http.StatusBadRequest, httpx.CodeValidationFailed, "userId required")
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Fail(c, http.StatusBadRequest, httpx.CodeValidationFailed, err.Error())
		return
	}

	if err := h.users.UpdateActive(c.Request.Context(), userID, *req.IsActive); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			httpx.Fail(c, http.StatusNotFound, httpx.CodeUserNotFound, "user not found")
			return
		}
		h.log.Error().Err(err).Str("user_id", userID).Msg("update user status failed")
		httpx.Internal(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
