package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"powerquality-backend/internal/analyses"
	googleauth "powerquality-backend/internal/auth"
	"powerquality-backend/internal/chat"
	"powerquality-backend/internal/services/health"
	"powerquality-backend/internal/shared/config"
	"powerquality-backend/internal/shared/metrics"
	"powerquality-backend/internal/shared/server/middleware"
	"powerquality-backend/internal/shared/server/respond"
	"powerquality-backend/internal/uploads"
	"powerquality-backend/internal/users"
)

// RouterDeps carries the handlers the router wires up. Nil handlers are
// skipped so partial configurations (worker-only deployments, tests) work.
type RouterDeps struct {
	Config          config.Config
	Health          *health.Service
	AnalysisHandler *analyses.Handler
	ChatHandler     *chat.Handler
	UploadsHandler  *uploads.Handler
	UsersHandler    *users.Handler
	GoogleAuth      *googleauth.GoogleService
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.Auth(),
		middleware.RateLimit(rateLimitConfig()),
	)

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		status := deps.Health.Check(c.Request.Context())
		code := http.StatusOK
		if !status.OK {
			code = http.StatusServiceUnavailable
		}
		respond.JSON(c, code, status)
	})
	api.GET("/metrics", metrics.Handler())

	if deps.GoogleAuth != nil {
		deps.GoogleAuth.RegisterRoutes(api)
	}
	if deps.UsersHandler != nil {
		deps.UsersHandler.RegisterRoutes(api)
	}
	if deps.UploadsHandler != nil {
		deps.UploadsHandler.RegisterRoutes(api)
	}
	if deps.AnalysisHandler != nil {
		deps.AnalysisHandler.RegisterRoutes(api)
	}
	if deps.ChatHandler != nil {
		deps.ChatHandler.RegisterRoutes(api)
	}

	return r
}

func rateLimitConfig() middleware.RateLimitConfig {
	return middleware.RateLimitConfig{
		Rules: map[string]middleware.RateLimitRule{
			"CHAT":   {Rate: 0.5, Burst: 5},
			"MUTATE": {Rate: 2, Burst: 20},
		},
		GroupFor: func(c *gin.Context) string {
			if c.Request.Method == http.MethodGet {
				return ""
			}
			if strings.HasSuffix(c.FullPath(), "/chat") {
				return "CHAT"
			}
			return "MUTATE"
		},
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
