package middleware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"trackwise/api/internal/httpx"
	"trackwise/api/internal/middleware"
	"trackwise/api/internal/models"
	"trackwise/api/internal/repository"
	"trackwise/api/internal/security"
)

const testSecret = "test-secret"

type stubLoader struct {
	users map[string]models.User
}

func (s *stubLoader) GetByID(ctx context.Context, id string) (models.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return models.User{}, repository.ErrUserNotFound
}

type countingRecorder struct {
	hits int
}

func (r *countingRecorder) Record(ctx context.Context, key string) error {
	r.hits++
	return nil
}

func newAuthRouter(t *testing.T, loader *stubLoader, recorder *countingRecorder) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected",
		middleware.Authenticate(testSecret, loader, recorder),
		func(c *gin.Context) {
			principal, _ := middleware.PrincipalFrom(c)
			c.JSON(http.StatusOK, principal)
		})
	return router
}

func activeUser(id string) models.User {
	return models.User{
		ID:          id,
		Email:       id + "@test.local",
		DisplayName: "Test User",
		Role:        models.UserRoleStudent,
		IsActive:    true,
	}
}

func accessTokenFor(t *testing.T, userID string) string {
	t.Helper()
	pair, err := security.IssueTokenPair(testSecret, userID, 15*time.Minute, time.Hour)
	require.NoError(t, err)
	return pair.AccessToken
}

func doRequest(router *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	return res
}

func failureCode(t *testing.T, res *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope httpx.ErrorEnvelope
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &envelope))
	require.False(t, envelope.Success)
	require.NotEmpty(t, envelope.Message)
	return envelope.Code
}

func TestAuthenticateSuccess(t *testing.T) {
	loader := &stubLoader{users: map[string]models.User{"u1": activeUser("u1")}}
	recorder := &countingRecorder{}
	router := newAuthRouter(t, loader, recorder)

	res := doRequest(router, "Bearer "+accessTokenFor(t, "u1"))
	require.Equal(t, http.StatusOK, res.Code)

	var principal models.Principal
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &principal))
	require.Equal(t, "u1", principal.ID)
	require.Equal(t, "u1", principal.UserID)
	require.Equal(t, "u1@test.local", principal.Email)
	require.True(t, principal.IsActive)
	require.Zero(t, recorder.hits)
}

func TestAuthenticateFailureTaxonomy(t *testing.T) {
	loader := &stubLoader{users: map[string]models.User{"u1": activeUser("u1")}}

	expiredPair, err := security.IssueTokenPair(testSecret, "u1", -time.Second, time.Hour)
	require.NoError(t, err)
	validPair, err := security.IssueTokenPair(testSecret, "u1", 15*time.Minute, time.Hour)
	require.NoError(t, err)
	foreignPair, err := security.IssueTokenPair("other-secret", "u1", 15*time.Minute, time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name       string
		header     string
		wantCode   string
		recordsHit bool
	}{
		{"missing header", "", httpx.CodeNoToken, true},
		{"not bearer", "Basic abc", httpx.CodeNoToken, true},
		{"empty bearer", "Bearer ", httpx.CodeEmptyToken, true},
		{"malformed token", "Bearer not.a.jwt", httpx.CodeInvalidTokenFormat, true},
		{"expired token", "Bearer " + expiredPair.AccessToken, httpx.CodeTokenExpired, true},
		{"wrong signature", "Bearer " + foreignPair.AccessToken, httpx.CodeVerificationFailed, true},
		{"refresh token as access", "Bearer " + validPair.RefreshToken, httpx.CodeInvalidTokenType, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recorder := &countingRecorder{}
			router := newAuthRouter(t, loader, recorder)

			res := doRequest(router, tc.header)
			require.Equal(t, http.StatusUnauthorized, res.Code)
			require.Equal(t, tc.wantCode, failureCode(t, res))
			if tc.recordsHit {
				require.Equal(t, 1, recorder.hits)
			} else {
				require.Zero(t, recorder.hits)
			}
		})
	}
}

func TestAuthenticateUserChecks(t *testing.T) {
	inactive := activeUser("u2")
	inactive.IsActive = false
	loader := &stubLoader{users: map[string]models.User{"u2": inactive}}
	recorder := &countingRecorder{}
	router := newAuthRouter(t, loader, recorder)

	// Valid token, unknown user.
	res := doRequest(router, "Bearer "+accessTokenFor(t, "ghost"))
	require.Equal(t, http.StatusUnauthorized, res.Code)
	require.Equal(t, httpx.CodeUserNotFound, failureCode(t, res))

	// Valid token, soft-disabled account.
	res = doRequest(router, "Bearer "+accessTokenFor(t, "u2"))
	require.Equal(t, http.StatusUnauthorized, res.Code)
	require.Equal(t, httpx.CodeAccountDeactivated, failureCode(t, res))

	// User-level failures do not count toward the limiter.
	require.Zero(t, recorder.hits)
}

func TestOptionalAuthenticate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	loader := &stubLoader{users: map[string]models.User{"u1": activeUser("u1")}}
	router := gin.New()
	router.GET("/maybe",
		middleware.OptionalAuthenticate(testSecret, loader),
		func(c *gin.Context) {
			if principal, ok := middleware.PrincipalFrom(c); ok {
				c.JSON(http.StatusOK, gin.H{"user": principal.ID})
				return
			}
			c.JSON(http.StatusOK, gin.H{"user": nil})
		})

	// Bad token still proceeds, just anonymously.
	req := httptest.NewRequest(http.MethodGet, "/maybe", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	require.JSONEq(t, `{"user":null}`, res.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/maybe", nil)
	req.Header.Set("Authorization", "Bearer "+accessTokenFor(t, "u1"))
	res = httptest.NewRecorder()
	router.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	require.JSONEq(t, `{"user":"u1"}`, res.Body.String())
}

func TestRequireRoleAndOwnership(t *testing.T) {
	gin.SetMode(gin.TestMode)

	student := activeUser("student1")
	admin := activeUser("admin1")
	admin.Role = models.UserRoleAdmin
	loader := &stubLoader{users: map[string]models.User{
		"student1": student,
		"admin1":   admin,
	}}

	router := gin.New()
	authed := router.Group("/", middleware.Authenticate(testSecret, loader, nil))
	authed.GET("/admin", middleware.RequireRole(models.UserRoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	authed.GET("/users/:userId/notes", middleware.RequireOwnership("userId"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	do := func(path, userID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+accessTokenFor(t, userID))
		res := httptest.NewRecorder()
		router.ServeHTTP(res, req)
		return res
	}

	res := do("/admin", "student1")
	require.Equal(t, http.StatusForbidden, res.Code)
	require.Equal(t, httpx.CodeInsufficientPerms, failureCode(t, res))

	require.Equal(t, http.StatusOK, do("/admin", "admin1").Code)

	// Owners reach their own resources, others are refused, admins bypass.
	require.Equal(t, http.StatusOK, do("/users/student1/notes", "student1").Code)

	res = do("/users/student1/notes", "student1x")
	require.Equal(t, http.StatusUnauthorized, res.Code) // unknown user fails auth first

	otherStudent := activeUser("student2")
	loader.users["student2"] = otherStudent
	res = do("/users/student1/notes", "student2")
	require.Equal(t, http.StatusForbidden, res.Code)
	require.Equal(t, httpx.CodeOwnershipRequired, failureCode(t, res))

	require.Equal(t, http.StatusOK, do("/users/student1/notes", "admin1").Code)
}
