package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aurumvault/adminauth"
	"github.com/aurumvault/adminauth/middleware"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Authenticator is the engine surface the handlers use.
type Authenticator interface {
	RequestOTP(ctx context.Context, email string) (*adminauth.OTPRequestResult, error)
	VerifyOTP(ctx context.Context, email, code string) (*adminauth.Session, error)
	Session(ctx context.Context, token string) (*adminauth.Session, error)
	InvalidateSession(ctx context.Context, token string) error
	Status(ctx context.Context, email string) (adminauth.OTPStatus, error)
	Health(ctx context.Context) error
}

// CookieConfig controls the session cookie set on a successful verify.
type CookieConfig struct {
	Enabled bool
	Name    string
	Secure  bool
	Domain  string
}

// Options configures NewRouter.
type Options struct {
	Engine Authenticator
	Logger *slog.Logger
	Cookie CookieConfig
	// CORSOrigins enables CORS with credentials for the listed origins.
	CORSOrigins []string
	// Metrics is mounted at GET /metrics when set.
	Metrics http.Handler
}

type server struct {
	engine Authenticator
	logger *slog.Logger
	cookie CookieConfig
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cookie := opts.Cookie
	if cookie.Name == "" {
		cookie.Name = middleware.DefaultCookieName
	}

	s := &server{
		engine: opts.Engine,
		logger: logger,
		cookie: cookie,
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestContext(), accessLog(logger))

	if len(opts.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     opts.CORSOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", requestIDHeader},
			ExposeHeaders:    []string{requestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", s.healthz)
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	admin := router.Group("/admin")
	{
		admin.POST("/otp/request", s.requestOTP)
		admin.POST("/otp/verify", s.verifyOTP)
		admin.GET("/otp/status", s.otpStatus)
		admin.GET("/session/validate", s.validateSession)
		admin.POST("/session/logout", middleware.RequireSession(opts.Engine, cookie.Name), s.logout)
	}

	return router
}
