package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"trackwise/api/internal/config"
	"trackwise/api/internal/gamesession"
	"trackwise/api/internal/middleware"
	"trackwise/api/internal/models"
	"trackwise/api/internal/ratelimit"
	"trackwise/api/internal/repository"
	"trackwise/api/internal/service"
	"trackwise/api/internal/storage"
)

type HandlerSet struct {
	log         zerolog.Logger
	cfg         *config.AppConfig
	authService *service.AuthService
	tracker     *gamesession.Tracker
	limiter     *ratelimit.Limiter
	db          *pgxpool.Pool
	cache       *redis.Client
	store       *storage.ObjectStore
	users       *repository.UserRepository
}

func NewHandlerSet(
	log zerolog.Logger,
	db *pgxpool.Pool,
	cache *redis.Client,
	store *storage.ObjectStore,
	cfg *config.AppConfig,
	limiter *ratelimit.Limiter,
) HandlerSet {
	userRepo := repository.NewUserRepository(db)
	auth := service.NewAuthService(userRepo, cfg, log)
	tracker := gamesession.NewTracker(userRepo)

	return HandlerSet{
		log:         log,
		cfg:         cfg,
		authService: auth,
		tracker:     tracker,
		limiter:     limiter,
		db:          db,
		cache:       cache,
		store:       store,
		users:       userRepo,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	secret := h.cfg.Security.JWTSecret
	authed := middleware.Authenticate(secret, h.users, h.limiter)

	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.Use(ratelimit.Middleware(h.limiter))
		auth.POST("/register", h.RegisterUser)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/verify-email", h.VerifyEmail)
		auth.POST("/password-reset/request", h.RequestPasswordReset)
		auth.POST("/password-reset/confirm", h.ConfirmPasswordReset)

		protected := v1.Group("/auth")
		protected.Use(authed)
		protected.POST("/logout", h.Logout)
		protected.GET("/verify", h.Verify)

		games := protected.Group("/games/session")
		games.GET("/status", h.GameStatus)
		games.POST("/start", h.GameStart)
		games.POST("/end", h.GameEnd)
	}

	users := v1.Group("/users")
	users.Use(authed)
	users.GET("/me", h.Me)
	users.PATCH("/me", h.UpdateMe)
	users.POST("/me/avatar", h.UploadAvatar)

	admin := v1.Group("/admin")
	admin.Use(authed, middleware.RequireRole(models.UserRoleAdmin))
	admin.GET("/users", h.AdminListUsers)
	admin.PATCH("/users/:userId/status", h.AdminUpdateUserStatus)
}
