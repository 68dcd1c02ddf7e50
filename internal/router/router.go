package router // package router wires middleware and handlers onto echo

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/campus-events/internal/cache"
	"github.com/iliyamo/campus-events/internal/config"
	"github.com/iliyamo/campus-events/internal/handler"
	"github.com/iliyamo/campus-events/internal/metrics"
	"github.com/iliyamo/campus-events/internal/middleware"
	"github.com/iliyamo/campus-events/internal/model"
	"github.com/iliyamo/campus-events/internal/utils"
)

// APIPrefix is the mount point of the versioned API.
const APIPrefix = "/api/v1"

// Deps is everything the routes need. Cache may be nil, which disables
// response caching; Redis may be nil, which switches the rate limiter to
// its in-process buckets.
type Deps struct {
	Config config.Config
	Logger zerolog.Logger
	Issuer *utils.TokenIssuer
	Users  middleware.UserLoader
	Cache  cache.Store
	Redis  *redis.Client

	Auth   *handler.AuthHandler
	Events *handler.EventHandler
	Health *handler.Health
}

// New builds the echo instance with global middleware and every route.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = handler.ErrorHandler(d.Logger)

	e.Use(echomw.Recover())
	e.Use(middleware.RequestID(d.Logger))
	e.Use(middleware.RequestLogger(d.Logger))
	e.Use(metrics.EchoMiddleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     corsOrigins(d.Config.CORSOrigins),
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization, echo.HeaderXRequestID},
		AllowCredentials: true,
	}))

	RegisterRoutes(e, d.Health)
	api := e.Group(APIPrefix)
	RegisterAuth(api, d)
	RegisterEvents(api, d)
	return e
}

func corsOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, h *handler.Health) {
	e.GET("/health", h.Check)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))
}

// RegisterAuth mounts /auth. Credential endpoints sit behind the rate limiter.
func RegisterAuth(api *echo.Group, d Deps) {
	session := middleware.Session(d.Issuer, d.Users)
	limit := middleware.NewTokenBucket(d.Config.RateLimit, d.Redis, d.Logger)
	a := d.Auth

	g := api.Group("/auth")
	g.POST("/register", a.Register, limit)
	g.POST("/login", a.Login, limit)
	g.POST("/google-login", a.GoogleLogin, limit)
	g.POST("/refresh-token", a.Refresh, limit)

	g.POST("/logout", a.Logout, session)
	g.GET("/me", a.Me, session)
	g.PATCH("/change-password", a.ChangePassword, session, limit)
	g.PATCH("/update-account", a.UpdateAccount, session)
	g.PATCH("/update-interests", a.UpdateInterests, session)

	sa := g.Group("/superadmin", session, middleware.RequireRole(model.RoleSuperadmin))
	sa.GET("/search", a.SearchUsers)
	sa.PATCH("/:id/role", a.UpdateRole)
}

// RegisterEvents mounts /events. Public reads are cached; every write
// invalidates the cached listings through the event service.
func RegisterEvents(api *echo.Group, d Deps) {
	session := middleware.Session(d.Issuer, d.Users)
	cc := d.Config.Cache
	var store cache.Store
	if cc.Enabled {
		store = d.Cache
	}
	cached := func(ttl time.Duration, key middleware.KeyFunc) echo.MiddlewareFunc {
		return middleware.ResponseCache(store, ttl, key, cc.MaxBodyBytes, d.Logger)
	}
	h := d.Events

	g := api.Group("/events")
	g.GET("", h.List, cached(cc.ListTTL, middleware.PathQueryKey(cc.Prefix)))
	g.GET("/interests", h.ListByInterests, session, cached(cc.InterestTTL, middleware.UserInterestsKey(cc.Prefix)))

	admin := g.Group("/admin", session)
	admins := middleware.RequireRole(model.RoleAdmin, model.RoleSuperadmin)
	admin.POST("", h.Create, admins)
	admin.GET("/my-events", h.MyEvents, admins)
	admin.POST("/cleanup", h.Cleanup, middleware.RequireRole(model.RoleSuperadmin))
	admin.PATCH("/:id/details", h.UpdateDetails, admins)
	admin.PATCH("/:id/thumbnail", h.UpdateThumbnail, admins)
	admin.DELETE("/:id", h.Delete, admins)

	g.GET("/:id", h.Get, cached(cc.ItemTTL, middleware.PathQueryKey(cc.Prefix)))
}
