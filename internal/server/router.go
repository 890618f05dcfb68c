package server

import (
	"context"
	"net/http"
	"time"

	"mathtutor/internal/common/auth"
	"mathtutor/internal/common/db"
	"mathtutor/internal/common/http/middleware"
	"mathtutor/internal/common/metrics"
	"mathtutor/internal/common/ratelimit"
	problemController "mathtutor/internal/problem/controller"
	submitController "mathtutor/internal/submit/controller"
	userController "mathtutor/internal/user/controller"

	"github.com/gin-gonic/gin"
)

// RateLimitConfig holds per-route limits. A zero policy leaves the route
// unlimited.
type RateLimitConfig struct {
	Login  middleware.RateLimitPolicy `yaml:"login"`
	Signup middleware.RateLimitPolicy `yaml:"signup"`
	Submit middleware.RateLimitPolicy `yaml:"submit"`
	Upload middleware.RateLimitPolicy `yaml:"upload"`
}

// Dependencies are the handlers and cross-cutting pieces the router needs.
type Dependencies struct {
	Auth        *userController.AuthController
	Users       *userController.UserController
	Problems    *problemController.ProblemController
	Submissions *submitController.SubmitController
	Uploads     *submitController.UploadController

	// Database is optional; when set /healthz pings it.
	Database db.Provider

	Tokens     *auth.TokenManager
	Limiter    ratelimit.Limiter
	Metrics    *metrics.Metrics
	CORS       middleware.CORSConfig
	RateLimits RateLimitConfig
}

type route struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewRouter builds the gin engine with every public route.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.TraceContextMiddleware())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.MetricsMiddleware(deps.Metrics))
	router.Use(middleware.CORSMiddleware(deps.CORS))
	router.Use(middleware.OptionalAuth(deps.Tokens))

	for _, r := range routes(deps) {
		router.Handle(r.method, r.path, r.handlers...)
	}
	return router
}

func routes(deps Dependencies) []route {
	admin := middleware.RequireAuth(deps.Tokens, middleware.AuthPolicy{Roles: []string{auth.RoleAdmin}})
	limit := func(key string, policy middleware.RateLimitPolicy) gin.HandlerFunc {
		if policy.IPMax <= 0 && policy.UserMax <= 0 {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimitMiddleware(deps.Limiter, key, policy)
	}
	h := func(handlers ...gin.HandlerFunc) []gin.HandlerFunc { return handlers }

	return []route{
		{http.MethodGet, "/healthz", h(healthz(deps.Database))},
		{http.MethodGet, "/metrics", h(gin.WrapH(deps.Metrics.Handler()))},

		{http.MethodPost, "/auth/signup", h(limit("signup", deps.RateLimits.Signup), deps.Auth.Signup)},
		{http.MethodPost, "/auth/login", h(limit("login", deps.RateLimits.Login), deps.Auth.Login)},
		{http.MethodPost, "/auth/reset-password", h(limit("login", deps.RateLimits.Login), deps.Auth.ResetPassword)},

		{http.MethodGet, "/users", h(deps.Users.List)},
		{http.MethodPost, "/users", h(admin, deps.Users.Create)},
		{http.MethodGet, "/users/:id", h(deps.Users.Get)},
		{http.MethodPut, "/users/:id", h(deps.Users.Update)},
		{http.MethodDelete, "/users/:id", h(admin, deps.Users.Delete)},
		{http.MethodPost, "/users/:id/profile-image", h(deps.Users.SetProfileImage)},
		{http.MethodGet, "/users/:id/rating-history", h(deps.Users.RatingHistory)},
		{http.MethodGet, "/users/:id/submissions", h(deps.Submissions.ListByUser)},

		{http.MethodGet, "/problems", h(deps.Problems.List)},
		{http.MethodPost, "/problems/seed", h(admin, deps.Problems.Seed)},
		{http.MethodGet, "/problems/:id", h(deps.Problems.Get)},
		{http.MethodPost, "/problems/:id/submit", h(limit("submit", deps.RateLimits.Submit), deps.Submissions.Submit)},
		{http.MethodGet, "/questions", h(deps.Problems.Questions)},

		{http.MethodGet, "/submissions/:id", h(deps.Submissions.Get)},
		{http.MethodPost, "/upload", h(limit("upload", deps.RateLimits.Upload), deps.Uploads.Upload)},
	}
}

const healthPingTimeout = 2 * time.Second

func healthz(provider db.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"status": "ok", "time": time.Now().UTC()}
		if provider == nil {
			c.JSON(http.StatusOK, body)
			return
		}
		database, err := db.CurrentDatabase(provider)
		if err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
			err = database.Ping(ctx)
			cancel()
		}
		if err != nil {
			body["status"] = "degraded"
			body["database"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		stats := database.Stats()
		body["database"] = gin.H{"open": stats.OpenConnections, "in_use": stats.InUse, "idle": stats.Idle}
		c.JSON(http.StatusOK, body)
	}
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
	// MaxMultipartMemory caps the in-memory part of multipart uploads.
	MaxMultipartMemory int64 `yaml:"maxMultipartMemory"`
}

// NewHTTPServer wraps router in an http.Server configured from cfg.
func NewHTTPServer(cfg ServerConfig, router *gin.Engine) *http.Server {
	if cfg.MaxMultipartMemory > 0 {
		router.MaxMultipartMemory = cfg.MaxMultipartMemory
	}
	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
