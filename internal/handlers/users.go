package handlers

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"trackwise/api/internal/httpx"
	"trackwise/api/internal/middleware"
	"trackwise/api/internal/repository"
)

const maxAvatarBytes = 2 << 20 // 2 MiB

func (h HandlerSet) Me(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		httpx.Fail(c, http.StatusUnauthorized, httpx.CodeNoToken, "authentication required")
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), principal.ID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			httpx.Fail(c, http.StatusNotFound, httpx.CodeUserNotFound, "user not found")
			return
		}
		h.log.Error().Err(err).Str("user_id", principal.ID).Msg("load profile failed")
		httpx.Internal(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": toUserResponse(user)})
}

type updateProfileRequest struct {
	Name string `json:"name" binding:"required,min=1,max=120"`
}

func (h HandlerSet) UpdateMe(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		httpx.Fail(c, http.StatusUnauthorized, httpx.CodeNoToken, "authentication required")
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Fail(c, http.StatusBadRequest, httpx.CodeValidationFailed, err.Error())
		return
	}

	if err := h.users.UpdateDisplayName(c.Request.Context(), principal.ID, req.Name); err != nil {
		h.log.Error().Err(err).Str("user_id", principal.ID).Msg("update profile failed")
		httpx.Internal(c)
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), principal.ID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", principal.ID).Msg("reload profile failed")
		httpx.Internal(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": toUserResponse(user)})
}

func (h HandlerSet) UploadAvatar(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		httpx.Fail(c, http.StatusUnauthorized, httpx.CodeNoToken, "authentication required")
		return
	}

	file, header, err := c.Request.FormFile("avatar")
	if err != nil {
		httpx.Fail(c, http.StatusBadRequest, httpx.CodeValidationFailed, "avatar file required")
		return
	}
	defer file.Close()

	if header.Size > maxAvatarBytes {
		httpx.Fail(c, http.StatusBadRequest, httpx.CodeValidationFailed, "avatar exceeds 2 MiB")
		return
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		h.log.Error().Err(err).Msg("read avatar failed")
		httpx.Internal(c)
		return
	}
	head = head[:n]

	contentType, ok := sniffAvatar(head)
	if !ok {
		httpx.Fail(c, http.StatusBadRequest, httpx.CodeUnsupportedMedia, "avatar must be png, jpeg or webp")
		return
	}

	body := io.MultiReader(bytes.NewReader(head), file)
	url, err := h.store.PutAvatar(c.Request.Context(), principal.ID, body, header.Size, contentType)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", principal.ID).Msg("store avatar failed")
		httpx.Internal(c)
		return
	}

	if err := h.users.SetAvatar(c.Request.Context(), principal.ID, url); err != nil {
		h.log.Error().Err(err).Str("user_id", principal.ID).Msg("save avatar url failed")
		httpx.Internal(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"avatarUrl": url})
}

// sniffAvatar checks magic bytes rather than trusting the uploaded content
// type. Only raster formats browsers render everywhere are accepted.
func sniffAvatar(head []byte) (string, bool) {
	switch {
	case len(head) > 3 && head[0] == 0xff && head[1] == 0xd8 && head[2] == 0xff:
		return "image/jpeg", true
	case len(head) >= 8 && bytes.Equal(head[:8], []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}):
		return "image/png", true
	case len(head) >= 12 && bytes.Equal(head[:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WEBP")):
		return "image/webp", true
	}
	return "", false
}
