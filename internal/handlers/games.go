package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"trackwise/api/internal/gamesession"
	"trackwise/api/internal/httpx"
	"trackwise/api/internal/middleware"
)

func (h HandlerSet) GameStatus(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		httpx.Fail(c, http.StatusUnauthorized, httpx.CodeNoToken, "authentication required")
		return
	}

	snap, err := h.tracker.Status(c.Request.Context(), principal.ID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", principal.ID).Msg("game status failed")
		httpx.Internal(c)
		return
	}

	c.JSON(http.StatusOK, snap)
}

func (h HandlerSet) GameStart(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		httpx.Fail(c, http.StatusUnauthorized, httpx.CodeNoToken, "authentication required")
		return
	}

	snap, err := h.tracker.Start(c.Request.Context(), principal.ID)
	if err != nil {
		h.gameFailure(c, principal.ID, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

func (h HandlerSet) GameEnd(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		httpx.Fail(c, http.StatusUnauthorized, httpx.CodeNoToken, "authentication required")
		return
	}

	snap, err := h.tracker.End(c.Request.Context(), principal.ID)
	if err != nil {
		h.gameFailure(c, principal.ID, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

func (h HandlerSet) gameFailure(c *gin.Context, userID string, err error) {
	switch {
	case errors.Is(err, gamesession.ErrAlreadyActive):
		httpx.Fail(c, http.StatusConflict, httpx.CodeAlreadyActive, "a game session is already running")
	case errors.Is(err, gamesession.ErrInCooldown):
		httpx.Fail(c, http.StatusConflict, httpx.CodeInCooldown, "game session cooldown in effect")
	case errors.Is(err, gamesession.ErrNoActiveSession):
		httpx.Fail(c, http.StatusConflict, httpx.CodeNoActiveSession, "no game session is running")
	default:
		h.log.Error().Err(err).Str("user_id", userID).Msg("game session operation failed")
		httpx.Internal(c)
	}
}
